package services

import (
	"context"
	"log/slog"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/observability"
	"chat-relay/registry"
)

// TypingService broadcasts the ephemeral typing indicator to the other
// members of a room. No persistence, no retry, no ack: a lost signal is
// indistinguishable from a user pausing.
type TypingService struct {
	rooms *registry.RoomManager
	stats *observability.Stats
	log   *slog.Logger
}

func NewTypingService(log *slog.Logger, rooms *registry.RoomManager, stats *observability.Stats) *TypingService {
	return &TypingService{rooms: rooms, stats: stats, log: log}
}

// PublishTyping fans the signal out to everyone in the room except its
// originator. Emissions from one connection reach receivers in emission
// order; nothing more is promised.
func (s *TypingService) PublishTyping(ctx context.Context, conn contract.Connection, chatID domain.ChatID, isTyping bool) {
	s.stats.TypingSignals.Add(1)
	s.rooms.Broadcast(ctx, chatID, event.UserTyping{
		ChatID:   chatID,
		UserID:   conn.Identity().UserID,
		IsTyping: isTyping,
	}, conn.ID())
}
