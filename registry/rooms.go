package registry

import (
	"context"
	"log/slog"
	"sync"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
)

// RoomManager maps a chat id to the set of connections currently
// watching it. Membership is volatile by design: it is rebuilt from
// nothing after a restart because clients rejoin, and it never stands in
// for persisted chat participation.
type RoomManager struct {
	log *slog.Logger

	mu     sync.RWMutex // guards the two maps, never held while consuming sinks
	rooms  map[domain.ChatID]*room
	joined map[string]map[domain.ChatID]struct{} // conn id -> rooms it joined
}

// room is one broadcast group. Once evicted is set the room is no
// longer mapped and must never gain members again.
type room struct {
	mu      sync.RWMutex
	members map[string]contract.Connection // keyed by conn id
	evicted bool
}

func NewRoomManager(log *slog.Logger) *RoomManager {
	return &RoomManager{
		log:    log,
		rooms:  make(map[domain.ChatID]*room),
		joined: make(map[string]map[domain.ChatID]struct{}),
	}
}

// Join adds conn to the room, creating it on the fly. It is idempotent;
// the return value reports whether membership actually changed.
func (m *RoomManager) Join(conn contract.Connection, chatID domain.ChatID) bool {
	for {
		m.mu.Lock()
		rm, ok := m.rooms[chatID]
		if !ok {
			rm = &room{members: make(map[string]contract.Connection)}
			m.rooms[chatID] = rm
		}
		set, ok := m.joined[conn.ID()]
		if !ok {
			set = make(map[domain.ChatID]struct{})
			m.joined[conn.ID()] = set
		}
		set[chatID] = struct{}{}
		m.mu.Unlock()

		rm.mu.Lock()
		if rm.evicted {
			// A concurrent last-leave dropped this room between the lookup
			// and the lock. Joining it would make the member invisible to
			// broadcasts, so retry against the live map.
			rm.mu.Unlock()
			continue
		}
		_, dup := rm.members[conn.ID()]
		if !dup {
			rm.members[conn.ID()] = conn
		}
		rm.mu.Unlock()
		return !dup
	}
}

// Leave removes conn from the room. Idempotent like Join.
func (m *RoomManager) Leave(conn contract.Connection, chatID domain.ChatID) bool {
	m.mu.Lock()
	rm := m.rooms[chatID]
	if set, ok := m.joined[conn.ID()]; ok {
		delete(set, chatID)
		if len(set) == 0 {
			delete(m.joined, conn.ID())
		}
	}
	m.mu.Unlock()

	if rm == nil {
		return false
	}

	rm.mu.Lock()
	_, present := rm.members[conn.ID()]
	delete(rm.members, conn.ID())
	empty := len(rm.members) == 0
	rm.mu.Unlock()

	if empty {
		m.evictIfEmpty(chatID)
	}
	return present
}

// evictIfEmpty removes a drained room so dead chats don't accumulate.
// The eviction flag is set under the room lock so a racing Join detects
// the dead room and retries instead of landing in it.
func (m *RoomManager) evictIfEmpty(chatID domain.ChatID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rm, ok := m.rooms[chatID]
	if !ok {
		return
	}
	rm.mu.Lock()
	if len(rm.members) == 0 {
		rm.evicted = true
		delete(m.rooms, chatID)
	}
	rm.mu.Unlock()
}

// Broadcast delivers e to every member of the room except the connection
// whose id matches exclude. Membership is snapshotted first so no lock is
// held while sinks consume; a failing sink is logged and skipped, it must
// never stall the others.
func (m *RoomManager) Broadcast(ctx context.Context, chatID domain.ChatID, e event.DomainEvent, exclude string) {
	for _, conn := range m.memberSnapshot(chatID) {
		if conn.ID() == exclude {
			continue
		}
		if err := conn.Consume(ctx, e); err != nil {
			m.log.Warn("room broadcast dropped",
				"chat_id", chatID,
				"event", e.EventName(),
				"conn_id", conn.ID(),
				"error", err)
		}
	}
}

func (m *RoomManager) memberSnapshot(chatID domain.ChatID) []contract.Connection {
	m.mu.RLock()
	rm := m.rooms[chatID]
	m.mu.RUnlock()
	if rm == nil {
		return nil
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	conns := make([]contract.Connection, 0, len(rm.members))
	for _, c := range rm.members {
		conns = append(conns, c)
	}
	return conns
}

// MembersOf returns the identities currently watching the room,
// deduplicated by user id: two devices of one user count once for
// "who's here" displays.
func (m *RoomManager) MembersOf(chatID domain.ChatID) []domain.Identity {
	seen := make(map[domain.UserID]struct{})
	var ids []domain.Identity
	for _, conn := range m.memberSnapshot(chatID) {
		id := conn.Identity()
		if _, dup := seen[id.UserID]; dup {
			continue
		}
		seen[id.UserID] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// ContainsUser reports whether any connection of userID is in the room.
func (m *RoomManager) ContainsUser(chatID domain.ChatID, userID domain.UserID) bool {
	for _, conn := range m.memberSnapshot(chatID) {
		if conn.Identity().UserID == userID {
			return true
		}
	}
	return false
}

// ContainsConn reports whether the exact connection is in the room.
func (m *RoomManager) ContainsConn(chatID domain.ChatID, connID string) bool {
	m.mu.RLock()
	rm := m.rooms[chatID]
	m.mu.RUnlock()
	if rm == nil {
		return false
	}
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	_, ok := rm.members[connID]
	return ok
}

// DropConnection removes conn from every room it joined and returns the
// affected chat ids, one entry per room actually left. Used on teardown,
// when the client can no longer say leave itself.
func (m *RoomManager) DropConnection(conn contract.Connection) []domain.ChatID {
	m.mu.RLock()
	set := m.joined[conn.ID()]
	chats := make([]domain.ChatID, 0, len(set))
	for chatID := range set {
		chats = append(chats, chatID)
	}
	m.mu.RUnlock()

	left := make([]domain.ChatID, 0, len(chats))
	for _, chatID := range chats {
		if m.Leave(conn, chatID) {
			left = append(left, chatID)
		}
	}
	return left
}

// RoomCount reports how many rooms currently have members.
func (m *RoomManager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}
