// Package services – transport contracts
//
// This file defines the transport-neutral inbound event consumed by the
// session router and the outbound Sender contract it produces directives
// through. The Telegram adapter (internal/telegram) maps raw updates onto
// Event and implements Sender; the services never import the Bot API types.
package services

import "context"

// EventKind discriminates the shape of an inbound event.
type EventKind string

const (
	// EventCommand is a slash command, e.g. /start or /genk 30.
	EventCommand EventKind = "command"
	// EventButton is an inline keyboard button press.
	EventButton EventKind = "button"
	// EventText is a plain free-text message.
	EventText EventKind = "text"
)

// Event is one inbound user interaction, already decoded by the transport.
//
// Exactly one of the payload fields is meaningful depending on Kind:
// Command/Args/ArgText for EventCommand, Button for EventButton, and Text
// for EventText. ArgText preserves the raw argument string (significant for
// /broadcast, where whitespace in the message must survive).
type Event struct {
	Kind        EventKind
	UserID      int64
	DisplayName string

	Command string
	Args    []string
	ArgText string

	Button string
	Text   string
}

// Sender delivers outbound directives. Delivery is fire-and-forget from the
// core's perspective: implementations report failure as an error, and the
// caller logs and swallows it without aborting the enclosing state
// transition.
type Sender interface {
	// SendToUser delivers text to a user, optionally attaching the main
	// menu keyboard.
	SendToUser(ctx context.Context, userID int64, text string, withMenu bool) error

	// SendToAdmin delivers text to the configured admin.
	SendToAdmin(ctx context.Context, text string) error
}
