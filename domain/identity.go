// Package domain contains core concepts of the chat relay.
// This file defines the authenticated identity attached to a connection.
// No runtime, network, or UI logic should be added here.
package domain

// UserID identifies a registered user across the whole system.
type UserID int64

// ChatID identifies a chat room (direct chat, group chat, meeting or
// document session). Room membership is volatile; the id is not.
type ChatID int64

// Identity is the authenticated display identity of a connection.
// It is established once by the gatekeeper and never changes for the
// lifetime of the connection.
type Identity struct {
	UserID   UserID
	Username string
	Avatar   string
}
