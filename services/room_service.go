package services

import (
	"context"
	"log/slog"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/registry"
)

// RoomService exposes the join/leave surface of the room manager and
// keeps the watching members informed about each other.
type RoomService struct {
	rooms *registry.RoomManager
	log   *slog.Logger
}

func NewRoomService(log *slog.Logger, rooms *registry.RoomManager) *RoomService {
	return &RoomService{rooms: rooms, log: log}
}

// Join adds the connection to the room. The join is idempotent; other
// members learn about the user once, even when a second device joins.
func (s *RoomService) Join(ctx context.Context, conn contract.Connection, chatID domain.ChatID) {
	userID := conn.Identity().UserID
	alreadyWatching := s.rooms.ContainsUser(chatID, userID)
	if !s.rooms.Join(conn, chatID) {
		return
	}
	if alreadyWatching {
		return
	}
	s.rooms.Broadcast(ctx, chatID, event.MemberJoined{ChatID: chatID, UserID: userID}, conn.ID())
}

// Leave removes the connection from the room and tells the remaining
// members once the user's last device is gone.
func (s *RoomService) Leave(ctx context.Context, conn contract.Connection, chatID domain.ChatID) {
	userID := conn.Identity().UserID
	if !s.rooms.Leave(conn, chatID) {
		return
	}
	if s.rooms.ContainsUser(chatID, userID) {
		return
	}
	s.rooms.Broadcast(ctx, chatID, event.MemberLeft{ChatID: chatID, UserID: userID}, conn.ID())
}

// Members lists who is currently watching the room, one entry per user.
func (s *RoomService) Members(chatID domain.ChatID) []domain.Identity {
	return s.rooms.MembersOf(chatID)
}
