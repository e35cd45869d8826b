package repositories

import (
	goerrors "errors"
	"fmt"
	"log/slog"

	"chat-relay/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
)

// SocialRepository stores the slices of relationship data the relay
// reads: chat participants, friend lists and pending friend requests.
// The CRUD service owns this data; the write methods here exist so it
// can sync its view into the relay's store.
type SocialRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewSocialRepository(db *badger.DB, log *slog.Logger) *SocialRepository {
	return &SocialRepository{db: db, log: log}
}

func participantsKey(chatID domain.ChatID) []byte {
	return []byte(fmt.Sprintf("chat:%d:participants", chatID))
}

func friendsKey(userID domain.UserID) []byte {
	return []byte(fmt.Sprintf("user:%d:friends", userID))
}

func pendingRequestKey(to domain.UserID, requestID int64) []byte {
	return []byte(fmt.Sprintf("freq:%d:%d", to, requestID))
}

type pendingRequestRecord struct {
	ID           int64  `cbor:"id"`
	FromUserID   int64  `cbor:"from"`
	FromUsername string `cbor:"username"`
	FromAvatar   string `cbor:"avatar,omitempty"`
}

func (s *SocialRepository) getUserIDs(key []byte) ([]domain.UserID, error) {
	var ids []domain.UserID
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if goerrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return cbor.Unmarshal(val, &ids)
		})
	})
	return ids, err
}

func (s *SocialRepository) setUserIDs(key []byte, ids []domain.UserID) error {
	value, err := cbor.Marshal(ids)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
}

// Participants returns the persisted participant set of a chat. An
// unknown chat yields an empty set, which every caller treats as "no
// one is authorized".
func (s *SocialRepository) Participants(chatID domain.ChatID) ([]domain.UserID, error) {
	return s.getUserIDs(participantsKey(chatID))
}

func (s *SocialRepository) SetParticipants(chatID domain.ChatID, ids []domain.UserID) error {
	return s.setUserIDs(participantsKey(chatID), ids)
}

// FriendIDs returns the users to notify about userID's presence changes.
func (s *SocialRepository) FriendIDs(userID domain.UserID) ([]domain.UserID, error) {
	return s.getUserIDs(friendsKey(userID))
}

func (s *SocialRepository) SetFriends(userID domain.UserID, ids []domain.UserID) error {
	return s.setUserIDs(friendsKey(userID), ids)
}

// PendingFriendRequests lists the unanswered requests addressed to
// userID, for redelivery when the user comes back online.
func (s *SocialRepository) PendingFriendRequests(userID domain.UserID) ([]domain.PendingFriendRequest, error) {
	prefix := []byte(fmt.Sprintf("freq:%d:", userID))

	var pending []domain.PendingFriendRequest
	err := s.db.View(func(txn *badger.Txn) error {
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rec pendingRequestRecord
			err := it.Item().Value(func(val []byte) error {
				return cbor.Unmarshal(val, &rec)
			})
			if err != nil {
				return err
			}
			pending = append(pending, domain.PendingFriendRequest{
				ID: rec.ID,
				From: domain.Identity{
					UserID:   domain.UserID(rec.FromUserID),
					Username: rec.FromUsername,
					Avatar:   rec.FromAvatar,
				},
			})
		}
		return nil
	})
	return pending, err
}

func (s *SocialRepository) AddPendingRequest(to domain.UserID, req domain.PendingFriendRequest) error {
	value, err := cbor.Marshal(pendingRequestRecord{
		ID:           req.ID,
		FromUserID:   int64(req.From.UserID),
		FromUsername: req.From.Username,
		FromAvatar:   req.From.Avatar,
	})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(pendingRequestKey(to, req.ID), value)
	})
}

func (s *SocialRepository) RemovePendingRequest(to domain.UserID, requestID int64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(pendingRequestKey(to, requestID))
	})
}
