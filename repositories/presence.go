package repositories

import (
	goerrors "errors"
	"fmt"
	"log/slog"

	"chat-relay/domain"

	"github.com/dgraph-io/badger/v4"
)

// PresenceRepository mirrors the online flag per user into the KV store.
// The flag has no TTL; it is explicitly cleared when the user's last
// connection goes away. The session registry stays authoritative, this
// mirror only serves cheap lookups for users connected elsewhere.
type PresenceRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewPresenceRepository(db *badger.DB, log *slog.Logger) *PresenceRepository {
	return &PresenceRepository{db: db, log: log}
}

func presenceKey(userID domain.UserID) []byte {
	return []byte(fmt.Sprintf("presence:%d", userID))
}

func (p *PresenceRepository) Get(userID domain.UserID) (bool, error) {
	var online bool
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(presenceKey(userID))
		if goerrors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			online = len(val) == 1 && val[0] == '1'
			return nil
		})
	})
	return online, err
}

func (p *PresenceRepository) Set(userID domain.UserID, online bool) error {
	flag := []byte("0")
	if online {
		flag = []byte("1")
	}
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Set(presenceKey(userID), flag)
	})
}

func (p *PresenceRepository) Delete(userID domain.UserID) error {
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(presenceKey(userID))
	})
}
