package ws

import (
	"testing"
	"time"

	"chat-relay/domain"
	"chat-relay/domain/event"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestToEnvelope_NewMessage(t *testing.T) {
	req := require.New(t)
	msg := domain.Message{
		ID:        uuid.New(),
		ChatID:    1,
		SenderID:  10,
		Type:      domain.TypeText,
		Content:   "hello",
		Status:    domain.StatusSent,
		CreatedAt: time.Now().UTC(),
	}

	env := toEnvelope(event.NewMessage{Message: msg})

	req.Equal("new_message", env.Event)
	data, ok := env.Data.(messageData)
	req.True(ok)
	req.Equal(msg.ID.String(), data.ID)
	req.Equal(int64(1), data.ChatID)
	req.Equal("hello", data.Content)
	req.Equal("SENT", data.Status)
}

func TestToEnvelope_MessageAck_Echoes_The_Correlation_Token(t *testing.T) {
	req := require.New(t)
	msg := domain.Message{ID: uuid.New(), ChatID: 1, SenderID: 10, Status: domain.StatusSent}

	env := toEnvelope(event.MessageAck{CorrelationID: 42, Message: msg})

	req.Equal("message_sent", env.Event)
	data, ok := env.Data.(map[string]any)
	req.True(ok)
	req.Equal(int64(42), data["tempId"])
	req.Equal(msg.ID.String(), data["message"].(messageData).ID)
}

func TestToEnvelope_ReadStatus_Lists_Message_Ids(t *testing.T) {
	req := require.New(t)
	first := uuid.New()
	second := uuid.New()

	env := toEnvelope(event.ReadStatus{
		ChatID:     7,
		MessageIDs: []uuid.UUID{first, second},
		Status:     domain.StatusRead,
	})

	req.Equal("read_status", env.Event)
	data := env.Data.(map[string]any)
	req.Equal(int64(7), data["chatId"])
	req.Equal([]string{first.String(), second.String()}, data["messageIds"])
	req.Equal("READ", data["status"])
}

func TestToEnvelope_Notification_Uses_Its_Own_Name(t *testing.T) {
	req := require.New(t)

	env := toEnvelope(event.Notification{
		Name:    event.NotifyGroupDissolved,
		Payload: map[string]any{"chatId": int64(7)},
	})

	req.Equal(event.NotifyGroupDissolved, env.Event)
}

func TestToEnvelope_Typing(t *testing.T) {
	req := require.New(t)

	env := toEnvelope(event.UserTyping{ChatID: 7, UserID: 10, IsTyping: true})

	req.Equal("user_typing", env.Event)
	data := env.Data.(map[string]any)
	req.Equal(int64(7), data["chatId"])
	req.Equal(int64(10), data["userId"])
	req.Equal(true, data["isTyping"])
}
