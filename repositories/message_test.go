package repositories

import (
	"log/slog"
	"testing"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestMessage(chatID domain.ChatID, sender, receiver domain.UserID, at time.Time) domain.Message {
	return domain.Message{
		ID:         uuid.New(),
		ChatID:     chatID,
		SenderID:   sender,
		ReceiverID: receiver,
		Type:       domain.TypeText,
		Content:    "this message will self destruct in 5 seconds",
		Status:     domain.StatusSent,
		CreatedAt:  at,
	}
}

func TestMessageRepository_Create_And_UpdateStatus(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), 50)
	msg := newTestMessage(1, 10, 20, time.Now().UTC())
	req.NoError(repository.Create(msg))

	// When the receiver acks delivery
	updated, changed, err := repository.UpdateStatus(msg.ID, domain.StatusDelivered)

	// Then the stored status advanced
	req.NoError(err)
	req.True(changed)
	req.Equal(domain.StatusDelivered, updated.Status)

	// And re-applying the same status is a silent no-op
	_, changed, err = repository.UpdateStatus(msg.ID, domain.StatusDelivered)
	req.NoError(err)
	req.False(changed)
}

func TestMessageRepository_UpdateStatus_Rejects_Regression(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), 50)
	msg := newTestMessage(1, 10, 20, time.Now().UTC())
	req.NoError(repository.Create(msg))
	_, _, err := repository.UpdateStatus(msg.ID, domain.StatusRead)
	req.NoError(err)

	// When a stale ack tries to move READ back to DELIVERED
	_, changed, err := repository.UpdateStatus(msg.ID, domain.StatusDelivered)

	// Then the transition is refused and nothing changed
	req.ErrorIs(err, errors.ErrStatusRegression)
	req.False(changed)
}

func TestMessageRepository_UpdateStatus_Unknown_Message(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), 50)

	_, _, err := repository.UpdateStatus(uuid.New(), domain.StatusDelivered)

	req.ErrorIs(err, errors.ErrNotFound)
}

func TestMessageRepository_UpdateStatus_Unknown_Status(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), 50)
	msg := newTestMessage(1, 10, 20, time.Now().UTC())
	req.NoError(repository.Create(msg))

	_, _, err := repository.UpdateStatus(msg.ID, domain.MessageStatus("SEEN"))

	req.ErrorIs(err, errors.ErrUnknownStatus)
}

func TestMessageRepository_ClaimUnread_Flips_And_Drains(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), 50)
	chatID := domain.ChatID(1)
	receiver := domain.UserID(20)
	at := time.Now().UTC()
	first := newTestMessage(chatID, 10, receiver, at)
	second := newTestMessage(chatID, 11, receiver, at.Add(time.Second))
	elsewhere := newTestMessage(domain.ChatID(2), 10, receiver, at)
	req.NoError(repository.Create(first))
	req.NoError(repository.Create(second))
	req.NoError(repository.Create(elsewhere))

	// When the receiver opens the chat
	claimed, err := repository.ClaimUnread(chatID, receiver)

	// Then both unread messages of that chat flipped to READ
	req.NoError(err)
	req.Len(claimed, 2)
	for _, msg := range claimed {
		req.Equal(domain.StatusRead, msg.Status)
		req.Equal(chatID, msg.ChatID)
	}

	// And a second claim finds nothing left
	claimed, err = repository.ClaimUnread(chatID, receiver)
	req.NoError(err)
	req.Empty(claimed)

	// And the other chat is untouched
	claimed, err = repository.ClaimUnread(domain.ChatID(2), receiver)
	req.NoError(err)
	req.Len(claimed, 1)
}

func TestMessageRepository_UpdateManyStatus_Skips_Unknown_And_Regressed(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), 50)
	fresh := newTestMessage(1, 10, 20, time.Now().UTC())
	alreadyRead := newTestMessage(1, 10, 20, time.Now().UTC())
	req.NoError(repository.Create(fresh))
	req.NoError(repository.Create(alreadyRead))
	_, _, err := repository.UpdateStatus(alreadyRead.ID, domain.StatusRead)
	req.NoError(err)

	// When a batch ack mixes a fresh message, a finished one and a ghost
	changed, err := repository.UpdateManyStatus(
		[]uuid.UUID{fresh.ID, alreadyRead.ID, uuid.New()},
		domain.StatusDelivered,
	)

	// Then only the fresh message moved
	req.NoError(err)
	req.Len(changed, 1)
	req.Equal(fresh.ID, changed[0].ID)
	req.Equal(domain.StatusDelivered, changed[0].Status)
}

func TestMessageRepository_History_Pages_Newest_First(t *testing.T) {
	req := require.New(t)
	pageSize := 2
	repository := NewMessageRepository(openTestDB(t), slog.Default(), pageSize)
	chatID := domain.ChatID(1)
	at := time.Now().UTC()
	var all []domain.Message
	for i := 0; i < 5; i++ {
		msg := newTestMessage(chatID, 10, 0, at.Add(time.Duration(i)*time.Second))
		req.NoError(repository.Create(msg))
		all = append(all, msg)
	}

	// When the first page is requested
	page, cursor, err := repository.History(chatID, nil)

	// Then it holds the newest messages, newest first
	req.NoError(err)
	req.Len(page, pageSize)
	req.Equal(all[4].ID, page[0].ID)
	req.Equal(all[3].ID, page[1].ID)
	req.NotNil(cursor)

	// When the cursor resumes
	page, cursor, err = repository.History(chatID, cursor)

	// Then the scan continues strictly after the previous page
	req.NoError(err)
	req.Len(page, pageSize)
	req.Equal(all[2].ID, page[0].ID)
	req.Equal(all[1].ID, page[1].ID)
	req.NotNil(cursor)

	// When the last, short page is read
	page, cursor, err = repository.History(chatID, cursor)

	// Then it carries no cursor: the scan is exhausted
	req.NoError(err)
	req.Len(page, 1)
	req.Equal(all[0].ID, page[0].ID)
	req.Nil(cursor)
}

func TestMessageRepository_History_Empty_Chat_Has_No_Cursor(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), 2)

	page, cursor, err := repository.History(domain.ChatID(99), nil)

	req.NoError(err)
	req.Empty(page)
	req.Nil(cursor)
}
