package services

import (
	"context"
	"log/slog"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/registry"
)

// PresenceService drives a connection's lifecycle: registration with
// presence fanout on the way in, room teardown and offline fanout on the
// way out.
type PresenceService struct {
	sessions *registry.SessionRegistry
	rooms    *registry.RoomManager
	social   contract.SocialGraph
	notify   *NotifyService
	log      *slog.Logger
}

func NewPresenceService(log *slog.Logger, sessions *registry.SessionRegistry,
	rooms *registry.RoomManager, social contract.SocialGraph, notify *NotifyService) *PresenceService {
	return &PresenceService{
		sessions: sessions,
		rooms:    rooms,
		social:   social,
		notify:   notify,
		log:      log,
	}
}

// Connect registers an authenticated connection. When it is the user's
// first, the social graph gets a friend_online fanout and every pending
// friend request is re-delivered to the fresh connection.
func (s *PresenceService) Connect(ctx context.Context, conn contract.Connection) {
	userID := conn.Identity().UserID

	first, err := s.sessions.Register(conn)
	if err != nil {
		// The live set is authoritative; a mirror failure degrades remote
		// lookups but must not refuse the connection.
		s.log.Warn("presence mirror write failed", "user_id", userID, "error", err)
	}
	if !first {
		return
	}

	friends, err := s.social.FriendIDs(userID)
	if err != nil {
		s.log.Error("friend lookup failed, skipping online fanout", "user_id", userID, "error", err)
	}
	for _, friendID := range friends {
		s.notify.PublishToUser(ctx, friendID, event.FriendOnline{UserID: userID})
	}

	pending, err := s.social.PendingFriendRequests(userID)
	if err != nil {
		s.log.Error("pending request lookup failed", "user_id", userID, "error", err)
		return
	}
	for _, request := range pending {
		e := event.FriendRequest{RequestID: request.ID, From: request.From}
		if err := conn.Consume(ctx, e); err != nil {
			s.log.Warn("pending request redelivery dropped",
				"user_id", userID, "request_id", request.ID, "error", err)
		}
	}
}

// Disconnect is the best-effort teardown after a timeout, close or
// network drop. The socket is already gone, so failures are logged and
// never retried: leave every joined room (one member_left per room),
// unregister, and fan out friend_offline when no connection remains.
func (s *PresenceService) Disconnect(ctx context.Context, conn contract.Connection) {
	userID := conn.Identity().UserID

	for _, chatID := range s.rooms.DropConnection(conn) {
		if s.rooms.ContainsUser(chatID, userID) {
			// Another device of the same user still watches this room.
			continue
		}
		s.rooms.Broadcast(ctx, chatID, event.MemberLeft{ChatID: chatID, UserID: userID}, conn.ID())
	}

	last, err := s.sessions.Unregister(conn)
	if err != nil {
		s.log.Warn("presence mirror clear failed", "user_id", userID, "error", err)
	}
	if !last {
		return
	}

	friends, err := s.social.FriendIDs(userID)
	if err != nil {
		s.log.Error("friend lookup failed, skipping offline fanout", "user_id", userID, "error", err)
		return
	}
	for _, friendID := range friends {
		s.notify.PublishToUser(ctx, friendID, event.FriendOffline{UserID: userID})
	}
}

// IsOnline reports whether the user has at least one live connection.
func (s *PresenceService) IsOnline(userID domain.UserID) (bool, error) {
	return s.sessions.IsOnline(userID)
}
