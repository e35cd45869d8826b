// Package services wires the in-memory registries, the persistence
// collaborators and the fanout paths into the operations the transport
// exposes.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/registry"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// MessageService is the delivery pipeline: validate, persist, fan out,
// acknowledge. Persistence failure aborts the whole send before any
// broadcast; a send that fails authorization or validation has zero side
// effects.
type MessageService struct {
	store  contract.MessageStore
	search contract.SearchIndex
	social contract.SocialGraph

	sessions *registry.SessionRegistry
	rooms    *registry.RoomManager
	notify   *NotifyService

	filter *moderation.Filter
	stats  *observability.Stats
	log    *slog.Logger

	// acked remembers, per connection, the messages already confirmed for
	// a correlation token. A client resubmitting after a lost ack gets the
	// original message back instead of a duplicate persist. A zero token
	// means the client opted out of reconciliation; those sends are never
	// deduplicated.
	mu    sync.Mutex
	acked map[string]map[int64]domain.Message
}

func NewMessageService(log *slog.Logger, store contract.MessageStore, search contract.SearchIndex,
	social contract.SocialGraph, sessions *registry.SessionRegistry, rooms *registry.RoomManager,
	notify *NotifyService, filter *moderation.Filter, stats *observability.Stats) *MessageService {
	return &MessageService{
		store:    store,
		search:   search,
		social:   social,
		sessions: sessions,
		rooms:    rooms,
		notify:   notify,
		filter:   filter,
		stats:    stats,
		log:      log,
		acked:    make(map[string]map[int64]domain.Message),
	}
}

// Send runs the full pipeline for one outbound message and returns the
// persisted message for the sender's ack. The order is fixed: authorize,
// validate, persist, then broadcast; nothing reaches the wire before the
// durable write is acknowledged.
func (s *MessageService) Send(ctx context.Context, sender contract.Connection, cmd domain.SendMessageCommand) (domain.Message, error) {
	senderID := sender.Identity().UserID

	if cmd.CorrelationID != 0 {
		if msg, ok := s.recallAck(sender.ID(), cmd.CorrelationID); ok {
			s.log.Debug("duplicate send reconciled by correlation token",
				"conn_id", sender.ID(), "correlation_id", cmd.CorrelationID, "message_id", msg.ID)
			return msg, nil
		}
	}

	participants, err := s.social.Participants(cmd.ChatID)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: participant lookup: %v", errors.ErrInfrastructure, err)
	}
	if !lo.Contains(participants, senderID) {
		s.stats.RejectedSends.Add(1)
		return domain.Message{}, fmt.Errorf("%w: user %d in chat %d", errors.ErrNotParticipant, senderID, cmd.ChatID)
	}

	if err := domain.ValidateMetadata(cmd.Type, cmd.Metadata); err != nil {
		s.stats.RejectedSends.Add(1)
		return domain.Message{}, err
	}

	content := cmd.Content
	if s.filter != nil && cmd.Type == domain.TypeText {
		content = s.filter.Clean(content)
	}

	msg := domain.Message{
		ID:         uuid.New(),
		ChatID:     cmd.ChatID,
		SenderID:   senderID,
		ReceiverID: cmd.ReceiverID,
		Type:       cmd.Type,
		Content:    content,
		Metadata:   cmd.Metadata,
		Status:     domain.StatusSent,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.store.Create(msg); err != nil {
		return domain.Message{}, fmt.Errorf("%w: message not persisted: %v", errors.ErrInfrastructure, err)
	}
	s.stats.MessagesSent.Add(1)

	if s.search != nil {
		if err := s.search.Index(msg); err != nil {
			s.log.Warn("message not indexed", "message_id", msg.ID, "error", err)
		}
	}

	// The sender never receives its own action as a broadcast, only the
	// explicit ack built from the return value.
	s.rooms.Broadcast(ctx, msg.ChatID, event.NewMessage{Message: msg}, sender.ID())

	s.deliverDirect(ctx, msg)
	s.deliverMentions(ctx, msg, participants)

	if msg.ReceiverID != 0 {
		online, err := s.sessions.IsOnline(msg.ReceiverID)
		if err != nil {
			s.log.Warn("receiver presence lookup failed", "user_id", msg.ReceiverID, "error", err)
		}
		if online {
			delivered := event.MessageDelivered{
				CorrelationID: cmd.CorrelationID,
				MessageID:     msg.ID,
				Status:        domain.StatusDelivered,
			}
			if err := sender.Consume(ctx, delivered); err != nil {
				s.log.Warn("delivered notice dropped", "conn_id", sender.ID(), "error", err)
			}
		}
	}

	if cmd.CorrelationID != 0 {
		s.rememberAck(sender.ID(), cmd.CorrelationID, msg)
	}
	return msg, nil
}

// deliverDirect pushes the message to the addressee's personal channel
// when it is online but not currently watching the room.
func (s *MessageService) deliverDirect(ctx context.Context, msg domain.Message) {
	if msg.ReceiverID == 0 || s.rooms.ContainsUser(msg.ChatID, msg.ReceiverID) {
		return
	}
	s.notify.PublishToUser(ctx, msg.ReceiverID, event.NewMessage{Message: msg})
}

// deliverMentions pushes the message to mentioned users outside the
// room. MentionAll expands to every participant except the sender.
func (s *MessageService) deliverMentions(ctx context.Context, msg domain.Message, participants []domain.UserID) {
	if msg.Metadata == nil {
		return
	}
	mentioned := msg.Metadata.MentionedUserIDs
	if msg.Metadata.MentionAll {
		mentioned = participants
	}
	if len(mentioned) == 0 {
		return
	}

	seen := map[domain.UserID]struct{}{
		msg.SenderID: {},
		// The direct addressee already got its personal push.
		msg.ReceiverID: {},
	}
	for _, userID := range mentioned {
		if _, done := seen[userID]; done {
			continue
		}
		seen[userID] = struct{}{}
		if s.rooms.ContainsUser(msg.ChatID, userID) {
			continue
		}
		s.notify.PublishToUser(ctx, userID, event.NewMessage{Message: msg})
	}
}

// MarkRead atomically claims the unread messages addressed to reader in
// the chat, flips them to READ and emits one batched read_status event
// per distinct original sender. A second call with nothing new claims
// zero messages and emits nothing.
func (s *MessageService) MarkRead(ctx context.Context, reader domain.UserID, chatID domain.ChatID) (int, error) {
	claimed, err := s.store.ClaimUnread(chatID, reader)
	if err != nil {
		return 0, fmt.Errorf("%w: mark read: %v", errors.ErrInfrastructure, err)
	}
	if len(claimed) == 0 {
		return 0, nil
	}
	s.stats.MessagesRead.Add(uint64(len(claimed)))

	bySender := lo.GroupBy(claimed, func(m domain.Message) domain.UserID { return m.SenderID })
	for senderID, msgs := range bySender {
		s.notify.PublishToUser(ctx, senderID, event.ReadStatus{
			ChatID: chatID,
			MessageIDs: lo.Map(msgs, func(m domain.Message, _ int) uuid.UUID {
				return m.ID
			}),
			Status: domain.StatusRead,
		})
	}
	return len(claimed), nil
}

// UpdateStatus is the direct entry point for one explicit client ack.
// Re-applying the current status is a silent no-op; a backward move is
// rejected before anything is written.
func (s *MessageService) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.MessageStatus) error {
	msg, changed, err := s.store.UpdateStatus(id, status)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	s.stats.StatusUpdates.Add(1)
	s.notify.PublishToUser(ctx, msg.SenderID, event.MessageStatusChanged{
		MessageID: msg.ID,
		Status:    msg.Status,
	})
	return nil
}

// UpdateManyStatus advances a batch of messages and notifies each
// affected sender once with the ids that actually moved.
func (s *MessageService) UpdateManyStatus(ctx context.Context, ids []uuid.UUID, status domain.MessageStatus) error {
	changed, err := s.store.UpdateManyStatus(ids, status)
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}
	s.stats.StatusUpdates.Add(uint64(len(changed)))

	bySender := lo.GroupBy(changed, func(m domain.Message) domain.UserID { return m.SenderID })
	for senderID, msgs := range bySender {
		s.notify.PublishToUser(ctx, senderID, event.ReadStatus{
			ChatID: msgs[0].ChatID,
			MessageIDs: lo.Map(msgs, func(m domain.Message, _ int) uuid.UUID {
				return m.ID
			}),
			Status: status,
		})
	}
	return nil
}

// History pages the chat newest-first.
func (s *MessageService) History(chatID domain.ChatID, cursor *string) ([]domain.Message, *string, error) {
	return s.store.History(chatID, cursor)
}

// SearchMessages runs a full-text query over one chat's history.
func (s *MessageService) SearchMessages(ctx context.Context, chatID domain.ChatID, query string, limit int) ([]domain.SearchHit, error) {
	if s.search == nil {
		return nil, nil
	}
	s.stats.SearchQueries.Add(1)
	return s.search.Search(ctx, chatID, query, limit)
}

// ForgetConnection drops the correlation-token cache of a closed
// connection. Tokens are scoped to a connection, so nothing remains to
// reconcile once it is gone.
func (s *MessageService) ForgetConnection(connID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.acked, connID)
}

func (s *MessageService) recallAck(connID string, correlationID int64) (domain.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.acked[connID][correlationID]
	return msg, ok
}

func (s *MessageService) rememberAck(connID string, correlationID int64, msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byToken, ok := s.acked[connID]
	if !ok {
		byToken = make(map[int64]domain.Message)
		s.acked[connID] = byToken
	}
	byToken[correlationID] = msg
}
