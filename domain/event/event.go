// Package event defines the events the relay core fans out to connected
// clients. Every event knows its wire name; transports only translate,
// never invent.
package event

import (
	"chat-relay/domain"

	"github.com/google/uuid"
)

type DomainEvent interface {
	EventName() string
}

// NewMessage is delivered to room members (except the sender) and to the
// addressee's personal channel when it is online but outside the room.
type NewMessage struct {
	Message domain.Message
}

func (NewMessage) EventName() string { return "new_message" }

// MessageAck confirms a successful send to its originator only.
// CorrelationID echoes the client-chosen token of the send.
type MessageAck struct {
	CorrelationID int64
	Message       domain.Message
}

func (MessageAck) EventName() string { return "message_sent" }

// MessageDelivered tells the sender its addressee was reachable.
type MessageDelivered struct {
	CorrelationID int64
	MessageID     uuid.UUID
	Status        domain.MessageStatus
}

func (MessageDelivered) EventName() string { return "message_delivered" }

// MessageStatusChanged reports a single explicit status transition to the
// original sender of the message.
type MessageStatusChanged struct {
	MessageID uuid.UUID
	Status    domain.MessageStatus
}

func (MessageStatusChanged) EventName() string { return "message_status" }

// ReadStatus batches every message of one sender that a mark-read call
// flipped to READ. One event per distinct sender, never per message.
type ReadStatus struct {
	ChatID     domain.ChatID
	MessageIDs []uuid.UUID
	Status     domain.MessageStatus
}

func (ReadStatus) EventName() string { return "read_status" }

// UserTyping is the ephemeral typing indicator. No ack, no persistence.
type UserTyping struct {
	ChatID   domain.ChatID
	UserID   domain.UserID
	IsTyping bool
}

func (UserTyping) EventName() string { return "user_typing" }

// MemberJoined and MemberLeft track volatile room membership, including
// the forced leave on connection teardown.
type MemberJoined struct {
	ChatID domain.ChatID
	UserID domain.UserID
}

func (MemberJoined) EventName() string { return "member_joined" }

type MemberLeft struct {
	ChatID domain.ChatID
	UserID domain.UserID
}

func (MemberLeft) EventName() string { return "member_left" }

// FriendOnline fires once when a user's first connection registers.
type FriendOnline struct {
	UserID domain.UserID
}

func (FriendOnline) EventName() string { return "friend_online" }

// FriendOffline fires once when a user's last connection unregisters.
type FriendOffline struct {
	UserID domain.UserID
}

func (FriendOffline) EventName() string { return "friend_offline" }

// FriendRequest carries a pending or fresh friend request to its target,
// including the redelivery at the target's next register.
type FriendRequest struct {
	RequestID int64
	From      domain.Identity
}

func (FriendRequest) EventName() string { return "friend_request" }

// Notification is the addressed fan-out payload for the higher-level
// social events (friend request lifecycle, group chat administration).
// Name must be one of the Notify* constants below.
type Notification struct {
	Name    string
	Payload any
}

func (n Notification) EventName() string { return n.Name }

const (
	NotifyFriendRequestAccepted = "friend_request_accepted"
	NotifyFriendRequestRejected = "friend_request_rejected"
	NotifyGroupInvitation       = "group_chat_invitation"
	NotifyGroupUpdated          = "group_chat_updated"
	NotifyGroupMembersAdded     = "group_members_added"
	NotifyGroupMemberRemoved    = "group_member_removed"
	NotifyGroupRoleUpdated      = "group_member_role_updated"
	NotifyGroupDissolved        = "group_chat_dissolved"
)
