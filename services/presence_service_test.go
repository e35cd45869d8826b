package services

import (
	"context"
	"testing"

	"chat-relay/domain"
	"chat-relay/domain/event"

	"github.com/stretchr/testify/require"
)

func TestPresenceService_First_Connection_Notifies_Friends(t *testing.T) {
	req := require.New(t)
	r := newRelay(t, nil)
	req.NoError(r.social.SetFriends(domain.UserID(10), []domain.UserID{20}))
	friend := newStubConn(20)
	r.connect(t, friend)

	// When the user's first connection registers
	alice := newStubConn(10)
	r.presence.Connect(context.Background(), alice)

	// Then the online friend hears about it
	online := eventsNamed(friend.received(), event.FriendOnline{}.EventName())
	req.Len(online, 1)
	req.Equal(domain.UserID(10), online[0].(event.FriendOnline).UserID)

	// When a second device registers
	friend.mu.Lock()
	friend.events = nil
	friend.mu.Unlock()
	r.presence.Connect(context.Background(), newStubConn(10))

	// Then no second fanout happens
	req.Empty(friend.received())
}

func TestPresenceService_Connect_Redelivers_Pending_Requests(t *testing.T) {
	req := require.New(t)
	r := newRelay(t, nil)
	pending := domain.PendingFriendRequest{
		ID:   7,
		From: domain.Identity{UserID: 30, Username: "clara"},
	}
	req.NoError(r.social.AddPendingRequest(domain.UserID(10), pending))

	// When the target comes online
	alice := newStubConn(10)
	r.presence.Connect(context.Background(), alice)

	// Then the unanswered request lands on the fresh connection
	requests := eventsNamed(alice.received(), event.FriendRequest{}.EventName())
	req.Len(requests, 1)
	req.Equal(pending.ID, requests[0].(event.FriendRequest).RequestID)
	req.Equal(pending.From, requests[0].(event.FriendRequest).From)
}

func TestPresenceService_Disconnect_Leaves_Rooms_And_Notifies(t *testing.T) {
	req := require.New(t)
	r := newRelay(t, nil)
	req.NoError(r.social.SetFriends(domain.UserID(10), []domain.UserID{20}))
	chatID := domain.ChatID(1)
	friend := newStubConn(20)
	r.connect(t, friend, chatID)
	alice := newStubConn(10)
	r.connect(t, alice, chatID)
	friend.mu.Lock()
	friend.events = nil
	friend.mu.Unlock()

	// When alice's only connection drops
	r.presence.Disconnect(context.Background(), alice)

	// Then the room hears member_left and the friend hears friend_offline
	req.Len(eventsNamed(friend.received(), event.MemberLeft{}.EventName()), 1)
	req.Len(eventsNamed(friend.received(), event.FriendOffline{}.EventName()), 1)
	online, err := r.presence.IsOnline(domain.UserID(10))
	req.NoError(err)
	req.False(online)
}

func TestPresenceService_Disconnect_Spares_Rooms_Watched_By_Another_Device(t *testing.T) {
	req := require.New(t)
	r := newRelay(t, nil)
	chatID := domain.ChatID(1)
	watcher := newStubConn(20)
	r.connect(t, watcher, chatID)
	phone := newStubConn(10)
	laptop := newStubConn(10)
	r.connect(t, phone, chatID)
	r.connect(t, laptop, chatID)
	watcher.mu.Lock()
	watcher.events = nil
	watcher.mu.Unlock()

	// When one of two devices watching the room drops
	r.presence.Disconnect(context.Background(), phone)

	// Then the room hears nothing; the user is still there
	req.Empty(eventsNamed(watcher.received(), event.MemberLeft{}.EventName()))
	req.True(r.rooms.ContainsUser(chatID, domain.UserID(10)))
	online, err := r.presence.IsOnline(domain.UserID(10))
	req.NoError(err)
	req.True(online)

	// When the last device drops
	r.presence.Disconnect(context.Background(), laptop)

	// Then the member_left finally fires
	req.Len(eventsNamed(watcher.received(), event.MemberLeft{}.EventName()), 1)
}

func TestRoomService_Second_Device_Join_Is_Silent(t *testing.T) {
	req := require.New(t)
	r := newRelay(t, nil)
	chatID := domain.ChatID(1)
	watcher := newStubConn(20)
	r.connect(t, watcher, chatID)

	// When two devices of one user join the room
	phone := newStubConn(10)
	laptop := newStubConn(10)
	r.connect(t, phone)
	r.connect(t, laptop)
	r.roomSvc.Join(context.Background(), phone, chatID)
	r.roomSvc.Join(context.Background(), laptop, chatID)

	// Then the room hears member_joined exactly once
	req.Len(eventsNamed(watcher.received(), event.MemberJoined{}.EventName()), 1)

	// When the first device leaves
	watcher.mu.Lock()
	watcher.events = nil
	watcher.mu.Unlock()
	r.roomSvc.Leave(context.Background(), phone, chatID)

	// Then the room stays silent until the last one is gone
	req.Empty(eventsNamed(watcher.received(), event.MemberLeft{}.EventName()))
	r.roomSvc.Leave(context.Background(), laptop, chatID)
	req.Len(eventsNamed(watcher.received(), event.MemberLeft{}.EventName()), 1)
}

func TestTypingService_Excludes_The_Originator(t *testing.T) {
	req := require.New(t)
	r := newRelay(t, nil)
	chatID := domain.ChatID(1)
	alice := newStubConn(10)
	bob := newStubConn(20)
	r.connect(t, alice, chatID)
	r.connect(t, bob, chatID)

	// When alice starts typing
	r.typing.PublishTyping(context.Background(), alice, chatID, true)

	// Then only bob sees the indicator
	req.Empty(eventsNamed(alice.received(), event.UserTyping{}.EventName()))
	typings := eventsNamed(bob.received(), event.UserTyping{}.EventName())
	req.Len(typings, 1)
	req.True(typings[0].(event.UserTyping).IsTyping)
}
