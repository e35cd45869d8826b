package services

import (
	"context"
	"log/slog"

	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/observability"
	"chat-relay/registry"
)

// NotifyService is the addressed fan-out primitive: publish one event to
// every live connection of a user, or to every connection watching a
// room. Offline targets receive nothing now; any pending state they
// missed is re-delivered when they register again.
type NotifyService struct {
	sessions *registry.SessionRegistry
	rooms    *registry.RoomManager
	stats    *observability.Stats
	log      *slog.Logger
}

func NewNotifyService(log *slog.Logger, sessions *registry.SessionRegistry,
	rooms *registry.RoomManager, stats *observability.Stats) *NotifyService {
	return &NotifyService{sessions: sessions, rooms: rooms, stats: stats, log: log}
}

// PublishToUser delivers e to every live connection of userID,
// multi-device included. A full per-connection buffer only costs that
// connection the event.
func (s *NotifyService) PublishToUser(ctx context.Context, userID domain.UserID, e event.DomainEvent) {
	for _, conn := range s.sessions.SessionsOf(userID) {
		if err := conn.Consume(ctx, e); err != nil {
			s.stats.DroppedEvents.Add(1)
			s.log.Warn("user publish dropped",
				"user_id", userID,
				"event", e.EventName(),
				"conn_id", conn.ID(),
				"error", err)
		}
	}
}

// PublishToRoom delivers e to every connection watching chatID.
func (s *NotifyService) PublishToRoom(ctx context.Context, chatID domain.ChatID, e event.DomainEvent) {
	s.rooms.Broadcast(ctx, chatID, e, "")
}

// NotifyUser wraps a higher-level social notification (friend request
// lifecycle, group chat administration) for one user.
func (s *NotifyService) NotifyUser(ctx context.Context, userID domain.UserID, name string, payload any) {
	s.stats.Notifications.Add(1)
	s.PublishToUser(ctx, userID, event.Notification{Name: name, Payload: payload})
}

// NotifyRoom is NotifyUser addressed at a whole room.
func (s *NotifyService) NotifyRoom(ctx context.Context, chatID domain.ChatID, name string, payload any) {
	s.stats.Notifications.Add(1)
	s.PublishToRoom(ctx, chatID, event.Notification{Name: name, Payload: payload})
}
