package ws

import (
	"encoding/json"
	"time"

	"chat-relay/domain"
	"chat-relay/domain/event"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Envelope is every server-to-client frame: the event name, its payload
// and the emission time.
type Envelope struct {
	Event     string    `json:"event"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

func newEnvelope(name string, data any) Envelope {
	return Envelope{Event: name, Data: data, Timestamp: time.Now().UTC()}
}

// Frame is every client-to-server message: an operation name and its
// raw payload, decoded per operation.
type Frame struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

type roomPayload struct {
	ChatID int64 `json:"chatId"`
}

type messagePayload struct {
	ChatID     int64            `json:"chatId"`
	ReceiverID int64            `json:"receiverId,omitempty"`
	Type       string           `json:"type"`
	Content    string           `json:"content"`
	Metadata   *domain.Metadata `json:"metadata,omitempty"`
	TempID     int64            `json:"tempId"`
}

type typingPayload struct {
	ChatID   int64 `json:"chatId"`
	IsTyping bool  `json:"isTyping"`
}

type statusPayload struct {
	MessageID  string   `json:"messageId,omitempty"`
	MessageIDs []string `json:"messageIds,omitempty"`
	Status     string   `json:"status"`
}

type historyPayload struct {
	ChatID int64   `json:"chatId"`
	Cursor *string `json:"cursor,omitempty"`
}

type searchPayload struct {
	ChatID int64  `json:"chatId"`
	Query  string `json:"query"`
	Limit  int    `json:"limit,omitempty"`
}

type errorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	TempID  *int64 `json:"tempId,omitempty"`
}

type identityData struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

type messageData struct {
	ID         string           `json:"id"`
	ChatID     int64            `json:"chatId"`
	SenderID   int64            `json:"senderId"`
	ReceiverID int64            `json:"receiverId,omitempty"`
	Type       string           `json:"type"`
	Content    string           `json:"content"`
	Metadata   *domain.Metadata `json:"metadata,omitempty"`
	Status     string           `json:"status"`
	CreatedAt  time.Time        `json:"createdAt"`
}

func toIdentityData(id domain.Identity) identityData {
	return identityData{
		UserID:   int64(id.UserID),
		Username: id.Username,
		Avatar:   id.Avatar,
	}
}

func toMessageData(msg domain.Message) messageData {
	return messageData{
		ID:         msg.ID.String(),
		ChatID:     int64(msg.ChatID),
		SenderID:   int64(msg.SenderID),
		ReceiverID: int64(msg.ReceiverID),
		Type:       string(msg.Type),
		Content:    msg.Content,
		Metadata:   msg.Metadata,
		Status:     string(msg.Status),
		CreatedAt:  msg.CreatedAt,
	}
}

// toEnvelope translates a fanned-out domain event into its wire frame.
// Transports translate; they never invent event shapes of their own.
func toEnvelope(e event.DomainEvent) Envelope {
	switch evt := e.(type) {
	case event.NewMessage:
		return newEnvelope(evt.EventName(), toMessageData(evt.Message))
	case event.MessageAck:
		return newEnvelope(evt.EventName(), map[string]any{
			"tempId":  evt.CorrelationID,
			"message": toMessageData(evt.Message),
		})
	case event.MessageDelivered:
		return newEnvelope(evt.EventName(), map[string]any{
			"tempId":    evt.CorrelationID,
			"messageId": evt.MessageID.String(),
			"status":    string(evt.Status),
		})
	case event.MessageStatusChanged:
		return newEnvelope(evt.EventName(), map[string]any{
			"messageId": evt.MessageID.String(),
			"status":    string(evt.Status),
		})
	case event.ReadStatus:
		return newEnvelope(evt.EventName(), map[string]any{
			"chatId": int64(evt.ChatID),
			"messageIds": lo.Map(evt.MessageIDs, func(id uuid.UUID, _ int) string {
				return id.String()
			}),
			"status": string(evt.Status),
		})
	case event.UserTyping:
		return newEnvelope(evt.EventName(), map[string]any{
			"chatId":   int64(evt.ChatID),
			"userId":   int64(evt.UserID),
			"isTyping": evt.IsTyping,
		})
	case event.MemberJoined:
		return newEnvelope(evt.EventName(), map[string]any{
			"chatId": int64(evt.ChatID),
			"userId": int64(evt.UserID),
		})
	case event.MemberLeft:
		return newEnvelope(evt.EventName(), map[string]any{
			"chatId": int64(evt.ChatID),
			"userId": int64(evt.UserID),
		})
	case event.FriendOnline:
		return newEnvelope(evt.EventName(), map[string]any{"userId": int64(evt.UserID)})
	case event.FriendOffline:
		return newEnvelope(evt.EventName(), map[string]any{"userId": int64(evt.UserID)})
	case event.FriendRequest:
		return newEnvelope(evt.EventName(), map[string]any{
			"requestId": evt.RequestID,
			"sender":    toIdentityData(evt.From),
		})
	case event.Notification:
		return newEnvelope(evt.EventName(), evt.Payload)
	default:
		return newEnvelope(e.EventName(), nil)
	}
}
