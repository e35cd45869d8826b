// Package domain contains core concepts of the chat relay.
// This file defines Message, its delivery state machine and related rules.
// Messages are immutable except for their delivery status.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageType discriminates the metadata shape a message must carry.
type MessageType string

const (
	TypeText  MessageType = "TEXT"
	TypeFile  MessageType = "FILE"
	TypeImage MessageType = "IMAGE"
	TypeVoice MessageType = "VOICE"
	TypeVideo MessageType = "VIDEO"
	TypeLink  MessageType = "LINK"
)

// MessageStatus is the delivery state of a persisted message.
// Legal transitions only move forward: SENT -> DELIVERED -> READ.
type MessageStatus string

const (
	StatusSent      MessageStatus = "SENT"
	StatusDelivered MessageStatus = "DELIVERED"
	StatusRead      MessageStatus = "READ"
)

// rank orders statuses along the delivery state machine.
// Unknown statuses rank below SENT so they can never overwrite anything.
func (s MessageStatus) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is one of the three known statuses.
func (s MessageStatus) Valid() bool {
	return s.rank() > 0
}

// CanAdvance reports whether moving from s to next is a strictly forward
// transition. Re-applying the current status is not an advance; callers
// treat it as a no-op rather than an error.
func (s MessageStatus) CanAdvance(next MessageStatus) bool {
	return next.Valid() && next.rank() > s.rank()
}

// Message is a persisted chat message. The relay core only ever mutates
// Status; every other field is immutable after creation.
type Message struct {
	ID         uuid.UUID
	ChatID     ChatID
	SenderID   UserID
	ReceiverID UserID // zero when the message has no single addressee
	Type       MessageType
	Content    string
	Metadata   *Metadata
	Status     MessageStatus
	CreatedAt  time.Time
}

// SendMessageCommand is the intent to post a message, before validation.
// CorrelationID is chosen by the client so it can reconcile its
// optimistic local echo with the acknowledged message.
type SendMessageCommand struct {
	ChatID        ChatID
	ReceiverID    UserID
	Type          MessageType
	Content       string
	Metadata      *Metadata
	CorrelationID int64
}
