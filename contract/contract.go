// Package contract holds the interfaces that stitch the relay core
// together: the event sink every live connection implements, the worker
// shape the supervisor runs, and the external collaborators (presence
// store, message store, social graph, search index).
package contract

import (
	"context"
	"reflect"

	"chat-relay/domain"
	"chat-relay/domain/event"

	"github.com/google/uuid"
)

// EventSink receives fanned-out domain events. Implementations must be
// safe for concurrent use and must not block longer than ctx allows.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Connection is one live, authenticated client connection. It is owned
// by the session registry from registration to teardown and belongs to
// exactly one user for its whole lifetime.
type Connection interface {
	EventSink
	ID() string
	Identity() domain.Identity
}

// Worker doesn't protect itself; the supervisor recovers its panics.
type Worker interface {
	Run(ctx context.Context) error
}

// WorkerName uses reflection to retrieve the type name of the worker,
// avoiding manual naming in the Worker interface.
func WorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// PresenceStore is the external fast key-value flag per user. The live
// connection set stays authoritative; this is a cheap mirror for lookups
// from other processes.
type PresenceStore interface {
	Get(userID domain.UserID) (bool, error)
	Set(userID domain.UserID, online bool) error
	Delete(userID domain.UserID) error
}

// MessageStore persists messages and drives the durable side of the
// delivery state machine.
type MessageStore interface {
	// Create persists msg with its initial status. Nothing may be
	// broadcast before Create returns nil.
	Create(msg domain.Message) error

	// UpdateStatus advances one message. It returns the stored message and
	// whether anything changed: re-applying the current status is a no-op
	// (false, nil), a backward transition fails with ErrStatusRegression.
	UpdateStatus(id uuid.UUID, status domain.MessageStatus) (domain.Message, bool, error)

	// UpdateManyStatus advances a batch and returns the messages that
	// actually changed.
	UpdateManyStatus(ids []uuid.UUID, status domain.MessageStatus) ([]domain.Message, error)

	// ClaimUnread atomically selects the unread messages addressed to
	// receiverID in chatID and flips them to READ. Two concurrent claims
	// never both obtain the same message.
	ClaimUnread(chatID domain.ChatID, receiverID domain.UserID) ([]domain.Message, error)

	// History pages a chat newest-first. A nil cursor starts at the top;
	// the returned cursor resumes after the last message of the page.
	History(chatID domain.ChatID, cursor *string) ([]domain.Message, *string, error)
}

// SocialGraph exposes the slices of persisted relationship data the
// relay needs: chat participation for authorization, friend ids for
// presence fanout, and pending requests for redelivery on reconnect.
type SocialGraph interface {
	Participants(chatID domain.ChatID) ([]domain.UserID, error)
	FriendIDs(userID domain.UserID) ([]domain.UserID, error)
	PendingFriendRequests(userID domain.UserID) ([]domain.PendingFriendRequest, error)
}

// SearchIndex is the full-text index over message content. Indexing is
// best effort and never blocks delivery.
type SearchIndex interface {
	Index(msg domain.Message) error
	Search(ctx context.Context, chatID domain.ChatID, query string, limit int) ([]domain.SearchHit, error)
}
