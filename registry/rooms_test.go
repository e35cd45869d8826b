package registry

import (
	"context"
	"log/slog"
	"testing"

	"chat-relay/domain"
	"chat-relay/domain/event"

	"github.com/stretchr/testify/require"
)

func TestRoomManager_Join_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	rooms := NewRoomManager(slog.Default())
	conn := newStubConn(1)
	chatID := domain.ChatID(7)

	// When the same connection joins twice
	req.True(rooms.Join(conn, chatID))
	req.False(rooms.Join(conn, chatID))

	// Then it is in the room exactly once
	req.True(rooms.ContainsConn(chatID, conn.ID()))
	req.Len(rooms.MembersOf(chatID), 1)
}

func TestRoomManager_Leave_Then_Room_Is_Evicted(t *testing.T) {
	req := require.New(t)
	rooms := NewRoomManager(slog.Default())
	conn := newStubConn(1)
	chatID := domain.ChatID(7)
	rooms.Join(conn, chatID)

	// When the last member leaves
	req.True(rooms.Leave(conn, chatID))

	// Then the room is gone and a second leave changes nothing
	req.Equal(0, rooms.RoomCount())
	req.False(rooms.Leave(conn, chatID))
}

func TestRoomManager_Broadcast_Excludes_The_Originator(t *testing.T) {
	req := require.New(t)
	rooms := NewRoomManager(slog.Default())
	alice := newStubConn(1)
	bob := newStubConn(2)
	chatID := domain.ChatID(7)
	rooms.Join(alice, chatID)
	rooms.Join(bob, chatID)

	// When an event is broadcast excluding alice's connection
	e := event.UserTyping{ChatID: chatID, UserID: alice.Identity().UserID, IsTyping: true}
	rooms.Broadcast(context.Background(), chatID, e, alice.ID())

	// Then only bob receives it
	req.Empty(alice.received())
	req.Len(bob.received(), 1)
	req.Equal(e, bob.received()[0])
}

func TestRoomManager_Broadcast_Skips_A_Failing_Member(t *testing.T) {
	req := require.New(t)
	rooms := NewRoomManager(slog.Default())
	saturated := newStubConn(1)
	saturated.fail = true
	healthy := newStubConn(2)
	chatID := domain.ChatID(7)
	rooms.Join(saturated, chatID)
	rooms.Join(healthy, chatID)

	// When one member's buffer is full
	rooms.Broadcast(context.Background(), chatID, event.MemberJoined{ChatID: chatID, UserID: 3}, "")

	// Then the others still receive the event
	req.Len(healthy.received(), 1)
}

func TestRoomManager_MembersOf_Deduplicates_Devices(t *testing.T) {
	req := require.New(t)
	rooms := NewRoomManager(slog.Default())
	phone := newStubConn(1)
	laptop := newStubConn(1)
	chatID := domain.ChatID(7)
	rooms.Join(phone, chatID)
	rooms.Join(laptop, chatID)

	// Then two devices of one user count once
	req.Len(rooms.MembersOf(chatID), 1)
	req.True(rooms.ContainsUser(chatID, domain.UserID(1)))
}

func TestRoomManager_DropConnection_Leaves_Every_Room(t *testing.T) {
	req := require.New(t)
	rooms := NewRoomManager(slog.Default())
	conn := newStubConn(1)
	rooms.Join(conn, domain.ChatID(1))
	rooms.Join(conn, domain.ChatID(2))

	// When the connection is dropped
	left := rooms.DropConnection(conn)

	// Then both rooms were left and nothing remains
	req.ElementsMatch([]domain.ChatID{1, 2}, left)
	req.Equal(0, rooms.RoomCount())
	req.Empty(rooms.DropConnection(conn))
}

func TestRoomManager_Join_Survives_Concurrent_Eviction(t *testing.T) {
	req := require.New(t)
	rooms := NewRoomManager(slog.Default())
	chatID := domain.ChatID(9)

	// Given another connection churning join/leave, so the room is
	// constantly drained and evicted
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 5000; i++ {
			churn := newStubConn(1)
			rooms.Join(churn, chatID)
			rooms.Leave(churn, chatID)
		}
	}()

	// When connections keep joining concurrently
	for i := 0; i < 5000; i++ {
		conn := newStubConn(2)
		req.True(rooms.Join(conn, chatID))

		// Then every successful join is visible to broadcasts
		req.True(rooms.ContainsConn(chatID, conn.ID()))

		req.True(rooms.Leave(conn, chatID))
	}
	<-done

	// And once everyone left, nothing lingers
	req.Equal(0, rooms.RoomCount())
}
