// Package registry owns the in-memory connection state of the relay:
// which connections each user currently has (sessions) and which
// connections are watching each room (rooms). Both structures shard
// their locking by key so unrelated users and chats never serialize on
// each other.
package registry

import (
	"log/slog"
	"sync"

	"chat-relay/contract"
	"chat-relay/domain"
)

// SessionRegistry maps a user to its set of live connections and derives
// the online/offline transitions. The live set is authoritative; the
// presence store is only a mirror for cheap external lookups.
type SessionRegistry struct {
	log      *slog.Logger
	presence contract.PresenceStore

	mu    sync.RWMutex // guards the users map, never held across I/O
	users map[domain.UserID]*userSessions
}

// userSessions serializes every register/unregister decision for one
// user, including the mirror write, so a disconnect racing a reconnect
// can never leave a live user permanently marked offline. Once evicted
// is set the entry is no longer mapped and must never be written again.
type userSessions struct {
	mu      sync.Mutex
	conns   map[string]contract.Connection
	evicted bool
}

func NewSessionRegistry(log *slog.Logger, presence contract.PresenceStore) *SessionRegistry {
	return &SessionRegistry{
		log:      log,
		presence: presence,
		users:    make(map[domain.UserID]*userSessions),
	}
}

func (r *SessionRegistry) entry(userID domain.UserID, create bool) *userSessions {
	r.mu.RLock()
	e, ok := r.users[userID]
	r.mu.RUnlock()
	if ok || !create {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.users[userID]; ok {
		return e
	}
	e = &userSessions{conns: make(map[string]contract.Connection)}
	r.users[userID] = e
	return e
}

// Register adds conn to its user's live set. It returns true when this
// was the user's first connection, i.e. the user just came online. The
// presence mirror is written under the per-user lock; a mirror failure
// is returned but the connection stays registered, since the live set
// remains authoritative.
func (r *SessionRegistry) Register(conn contract.Connection) (bool, error) {
	userID := conn.Identity().UserID

	for {
		e := r.entry(userID, true)
		e.mu.Lock()
		if e.evicted {
			// Lost the race against a concurrent last-unregister: this
			// entry was dropped from the map between the lookup and the
			// lock. Writing into it would orphan the connection, so fetch
			// a fresh entry instead.
			e.mu.Unlock()
			continue
		}

		if _, dup := e.conns[conn.ID()]; dup {
			e.mu.Unlock()
			return false, nil
		}
		e.conns[conn.ID()] = conn

		first := len(e.conns) == 1
		var err error
		if first {
			err = r.presence.Set(userID, true)
		}
		e.mu.Unlock()
		return first, err
	}
}

// Unregister removes conn from its user's live set. It returns true when
// the set became empty, i.e. the user just went fully offline. Only then
// is the presence flag cleared; any remaining connection keeps the user
// online.
func (r *SessionRegistry) Unregister(conn contract.Connection) (bool, error) {
	userID := conn.Identity().UserID
	e := r.entry(userID, false)
	if e == nil {
		return false, nil
	}

	e.mu.Lock()
	if _, ok := e.conns[conn.ID()]; !ok {
		e.mu.Unlock()
		return false, nil
	}
	delete(e.conns, conn.ID())
	last := len(e.conns) == 0

	var err error
	if last {
		err = r.presence.Delete(userID)
	}
	e.mu.Unlock()

	if last {
		r.evictIfEmpty(userID)
	}
	return last, err
}

// evictIfEmpty drops the per-user entry once no connection remains, so
// churn over many users doesn't grow the map forever. The eviction flag
// is set under the entry lock so a racing Register detects the dead
// entry and retries instead of landing in it.
func (r *SessionRegistry) evictIfEmpty(userID domain.UserID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.users[userID]
	if !ok {
		return
	}
	e.mu.Lock()
	if len(e.conns) == 0 {
		e.evicted = true
		delete(r.users, userID)
	}
	e.mu.Unlock()
}

// IsOnline answers from the live set when the user is connected to this
// process and falls back to the presence mirror otherwise.
func (r *SessionRegistry) IsOnline(userID domain.UserID) (bool, error) {
	if e := r.entry(userID, false); e != nil {
		e.mu.Lock()
		live := len(e.conns) > 0
		e.mu.Unlock()
		if live {
			return true, nil
		}
	}
	return r.presence.Get(userID)
}

// SessionsOf snapshots the user's live connections. The snapshot is safe
// to iterate without holding any registry lock.
func (r *SessionRegistry) SessionsOf(userID domain.UserID) []contract.Connection {
	e := r.entry(userID, false)
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	conns := make([]contract.Connection, 0, len(e.conns))
	for _, c := range e.conns {
		conns = append(conns, c)
	}
	return conns
}

// ConnectionCount totals live connections across all users.
func (r *SessionRegistry) ConnectionCount() int {
	r.mu.RLock()
	entries := make([]*userSessions, 0, len(r.users))
	for _, e := range r.users {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	total := 0
	for _, e := range entries {
		e.mu.Lock()
		total += len(e.conns)
		e.mu.Unlock()
	}
	return total
}

// UserCount counts users with at least one live connection.
func (r *SessionRegistry) UserCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
