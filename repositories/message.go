// Package repositories implements the persistence collaborators of the
// relay core on BadgerDB, plus the bluge full-text index over message
// history. Values are CBOR-encoded records.
package repositories

import (
	goerrors "errors"
	"fmt"
	"log/slog"
	"time"

	"chat-relay/domain"
	"chat-relay/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// conflictRetries bounds how often an optimistic badger transaction is
// retried before the failure surfaces as a transient store error.
const conflictRetries = 3

type MessageRepository struct {
	db       *badger.DB
	log      *slog.Logger
	pageSize int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, pageSize int) *MessageRepository {
	return &MessageRepository{db: db, log: log, pageSize: pageSize}
}

// messageRecord is the on-disk shape of a message.
type messageRecord struct {
	ID         string           `cbor:"id"`
	ChatID     int64            `cbor:"chat"`
	SenderID   int64            `cbor:"sender"`
	ReceiverID int64            `cbor:"receiver,omitempty"`
	Type       string           `cbor:"type"`
	Content    string           `cbor:"content"`
	Metadata   *domain.Metadata `cbor:"metadata,omitempty"`
	Status     string           `cbor:"status"`
	CreatedAt  int64            `cbor:"at"` // unix nanos, UTC
}

// Key layout:
//
//	msg:{chat_id}:{timestamp_padded}:{uuid}  -> messageRecord
//	msgid:{uuid}                             -> primary key above
//	unread:{receiver_id}:{chat_id}:{uuid}    -> primary key above
//
// The 19-digit zero padding keeps lexicographical order chronological;
// the uuid disambiguates two messages landing on the same nanosecond.
func primaryKey(chatID domain.ChatID, at time.Time, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%d:%019d:%s", chatID, at.UnixNano(), id))
}

func idKey(id uuid.UUID) []byte {
	return []byte("msgid:" + id.String())
}

func unreadKey(receiverID domain.UserID, chatID domain.ChatID, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("unread:%d:%d:%s", receiverID, chatID, id))
}

func fromMessage(msg domain.Message) messageRecord {
	return messageRecord{
		ID:         msg.ID.String(),
		ChatID:     int64(msg.ChatID),
		SenderID:   int64(msg.SenderID),
		ReceiverID: int64(msg.ReceiverID),
		Type:       string(msg.Type),
		Content:    msg.Content,
		Metadata:   msg.Metadata,
		Status:     string(msg.Status),
		CreatedAt:  msg.CreatedAt.UnixNano(),
	}
}

func toMessage(rec messageRecord) (domain.Message, error) {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		return domain.Message{}, err
	}
	return domain.Message{
		ID:         id,
		ChatID:     domain.ChatID(rec.ChatID),
		SenderID:   domain.UserID(rec.SenderID),
		ReceiverID: domain.UserID(rec.ReceiverID),
		Type:       domain.MessageType(rec.Type),
		Content:    rec.Content,
		Metadata:   rec.Metadata,
		Status:     domain.MessageStatus(rec.Status),
		CreatedAt:  time.Unix(0, rec.CreatedAt).UTC(),
	}, nil
}

// update runs fn in a read-write transaction, retrying optimistic
// conflicts a few times. Conflicts happen when two calls claim the same
// unread messages concurrently; one of them wins, the other re-reads.
func (m *MessageRepository) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < conflictRetries; i++ {
		err = m.db.Update(fn)
		if !goerrors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil && goerrors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: transaction conflict: %v", errors.ErrInfrastructure, err)
	}
	return err
}

// Create durably persists msg under its initial status and maintains the
// id and unread indexes. The caller broadcasts only after this returns.
func (m *MessageRepository) Create(msg domain.Message) error {
	rec := fromMessage(msg)
	value, err := cbor.Marshal(rec)
	if err != nil {
		return err
	}
	key := primaryKey(msg.ChatID, msg.CreatedAt, msg.ID)

	return m.update(func(txn *badger.Txn) error {
		if err := txn.Set(key, value); err != nil {
			return err
		}
		if err := txn.Set(idKey(msg.ID), key); err != nil {
			return err
		}
		if msg.ReceiverID != 0 && msg.Status != domain.StatusRead {
			return txn.Set(unreadKey(msg.ReceiverID, msg.ChatID, msg.ID), key)
		}
		return nil
	})
}

func loadByPrimary(txn *badger.Txn, key []byte) (messageRecord, error) {
	var rec messageRecord
	item, err := txn.Get(key)
	if err != nil {
		return rec, err
	}
	err = item.Value(func(val []byte) error {
		return cbor.Unmarshal(val, &rec)
	})
	return rec, err
}

func resolveID(txn *badger.Txn, id uuid.UUID) ([]byte, error) {
	item, err := txn.Get(idKey(id))
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// writeStatus advances one record inside txn. It reports whether the
// record changed; re-applying the current status changes nothing and a
// backward move fails with ErrStatusRegression.
func writeStatus(txn *badger.Txn, id uuid.UUID, status domain.MessageStatus) (domain.Message, bool, error) {
	if !status.Valid() {
		return domain.Message{}, false, fmt.Errorf("%w: %q", errors.ErrUnknownStatus, status)
	}

	key, err := resolveID(txn, id)
	if err != nil {
		return domain.Message{}, false, err
	}
	rec, err := loadByPrimary(txn, key)
	if err != nil {
		return domain.Message{}, false, err
	}

	msg, err := toMessage(rec)
	if err != nil {
		return domain.Message{}, false, err
	}
	if msg.Status == status {
		return msg, false, nil
	}
	if !msg.Status.CanAdvance(status) {
		return msg, false, fmt.Errorf("%w: %s -> %s", errors.ErrStatusRegression, msg.Status, status)
	}

	rec.Status = string(status)
	value, err := cbor.Marshal(rec)
	if err != nil {
		return domain.Message{}, false, err
	}
	if err := txn.Set(key, value); err != nil {
		return domain.Message{}, false, err
	}
	if status == domain.StatusRead && msg.ReceiverID != 0 {
		if err := txn.Delete(unreadKey(msg.ReceiverID, msg.ChatID, msg.ID)); err != nil {
			return domain.Message{}, false, err
		}
	}
	msg.Status = status
	return msg, true, nil
}

// UpdateStatus is the direct entry point for an explicit client ack.
func (m *MessageRepository) UpdateStatus(id uuid.UUID, status domain.MessageStatus) (domain.Message, bool, error) {
	var (
		msg     domain.Message
		changed bool
	)
	err := m.update(func(txn *badger.Txn) error {
		var inner error
		msg, changed, inner = writeStatus(txn, id, status)
		return inner
	})
	if goerrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Message{}, false, fmt.Errorf("%w: message %s", errors.ErrNotFound, id)
	}
	return msg, changed, err
}

// UpdateManyStatus advances a batch in one transaction and returns the
// messages that actually moved. Messages already at or past the target
// status are skipped, not failed: batch acks routinely race each other.
func (m *MessageRepository) UpdateManyStatus(ids []uuid.UUID, status domain.MessageStatus) ([]domain.Message, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", errors.ErrUnknownStatus, status)
	}

	var changed []domain.Message
	err := m.update(func(txn *badger.Txn) error {
		changed = changed[:0]
		for _, id := range ids {
			msg, moved, err := writeStatus(txn, id, status)
			switch {
			case goerrors.Is(err, badger.ErrKeyNotFound):
				m.log.Warn("skipping unknown message in batch status update", "message_id", id)
				continue
			case goerrors.Is(err, errors.ErrStatusRegression):
				continue
			case err != nil:
				return err
			}
			if moved {
				changed = append(changed, msg)
			}
		}
		return nil
	})
	return changed, err
}

// ClaimUnread atomically flips every unread message addressed to
// receiverID in chatID to READ and returns them. The unread index rows
// are deleted in the same transaction, so a concurrent claim conflicts
// on those keys and re-reads an already-drained index: no message is
// ever counted twice.
func (m *MessageRepository) ClaimUnread(chatID domain.ChatID, receiverID domain.UserID) ([]domain.Message, error) {
	prefix := []byte(fmt.Sprintf("unread:%d:%d:", receiverID, chatID))

	var claimed []domain.Message
	err := m.update(func(txn *badger.Txn) error {
		claimed = claimed[:0]

		var primaries [][]byte
		var indexKeys [][]byte
		err := func() error {
			options := badger.DefaultIteratorOptions
			options.Prefix = prefix
			it := txn.NewIterator(options)
			defer it.Close()

			for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
				item := it.Item()
				primary, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				primaries = append(primaries, primary)
				indexKeys = append(indexKeys, item.KeyCopy(nil))
			}
			return nil
		}()
		if err != nil {
			return err
		}

		for i, primary := range primaries {
			rec, err := loadByPrimary(txn, primary)
			if err != nil {
				return err
			}
			msg, err := toMessage(rec)
			if err != nil {
				return err
			}
			if err := txn.Delete(indexKeys[i]); err != nil {
				return err
			}
			if msg.Status == domain.StatusRead {
				// Stale index row; dropping it is the whole fix.
				continue
			}
			rec.Status = string(domain.StatusRead)
			value, err := cbor.Marshal(rec)
			if err != nil {
				return err
			}
			if err := txn.Set(primary, value); err != nil {
				return err
			}
			msg.Status = domain.StatusRead
			claimed = append(claimed, msg)
		}
		return nil
	})
	return claimed, err
}

// History pages a chat's messages newest-first using a reverse prefix
// scan. The padded timestamp in the key makes the scan chronological for
// free. A nil cursor starts from the newest message; the returned cursor
// resumes strictly after the last returned key and is nil once the scan
// is exhausted.
func (m *MessageRepository) History(chatID domain.ChatID, cursor *string) ([]domain.Message, *string, error) {
	prefixStr := fmt.Sprintf("msg:%d:", chatID)
	prefix := []byte(prefixStr)

	var records []messageRecord
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		if cursor == nil {
			// Past any 19-digit timestamp, so the scan starts at the
			// newest message of the chat.
			seekKey = append([]byte(prefixStr), []byte("9999999999999999999")...)
		} else {
			seekKey = append([]byte(prefixStr), []byte(*cursor)...)
		}
		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if len(records) == m.pageSize {
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[len(prefixStr):])
			var rec messageRecord
			err := item.Value(func(val []byte) error {
				return cbor.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	messages := make([]domain.Message, 0, len(records))
	for _, rec := range records {
		msg, err := toMessage(rec)
		if err != nil {
			return nil, nil, err
		}
		messages = append(messages, msg)
	}
	if len(records) < m.pageSize {
		// A short page means the chat ran out of messages.
		return messages, nil, nil
	}
	return messages, &lastKey, nil
}
