// Copyright (c) CurioSwitch (choko@curioswitch.org)
// SPDX-License-Identifier: BUSL-1.1

package hangoutdb

import "time"

// MessageSide indicates which side of the conversation authored a message.
type MessageSide string

const (
	// MessageSideUser represents a message written by the user.
	MessageSideUser MessageSide = "user"
	// MessageSideBot represents a message written by the agent.
	MessageSideBot MessageSide = "bot"
)

// EventCard is the structured payload an agent message may carry describing a
// proposed or finalized hangout.
type EventCard struct {
	// Activity is the activity being proposed.
	Activity string `firestore:"activity" json:"activity"`

	// Location is where the activity takes place.
	Location string `firestore:"location" json:"location"`

	// Date is the calendar date of the activity, YYYY-MM-DD.
	Date string `firestore:"date" json:"date"`

	// Time is the start time of the activity as free-form text.
	Time string `firestore:"time" json:"time"`

	// Attendees are the display names of the expected attendees.
	Attendees []string `firestore:"attendees" json:"attendees"`
}

// Message is a single entry in a chat. Messages are immutable once written
// and ordered by timestamp.
type Message struct {
	// ID is the unique identifier of the message.
	ID string `firestore:"id"`

	// Text is the message body. May be empty when Event is set.
	Text string `firestore:"text"`

	// SenderID is the user ID or group ID that authored the message.
	SenderID string `firestore:"senderId"`

	// Timestamp is when the message was written.
	Timestamp time.Time `firestore:"timestamp"`

	// Side is which side of the conversation authored the message.
	Side MessageSide `firestore:"side"`

	// Event is the optional structured payload accompanying the message.
	Event *EventCard `firestore:"event"`
}

// Chat is the conversation between one user and one group's agent. There is at
// most one chat per (user, group) pair, created lazily on first interaction.
type Chat struct {
	// ID is the unique identifier of the chat.
	ID string `firestore:"id"`

	// UserID is the ID of the user the chat belongs to.
	UserID string `firestore:"userId"`

	// GroupID is the ID of the group whose agent participates in the chat.
	GroupID string `firestore:"groupId"`

	// LastMessage is the text of the most recent message, denormalized for
	// list views.
	LastMessage string `firestore:"lastMessage"`

	// LastMessageAt is the timestamp of the most recent message.
	LastMessageAt time.Time `firestore:"lastMessageAt"`

	// CreatedAt is the timestamp when the chat was created.
	CreatedAt time.Time `firestore:"createdAt"`

	// UpdatedAt is the timestamp when the chat was last updated.
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// ReadMarker persists how far a user has read into a chat or group. Unread
// counts are derived from it, never stored.
type ReadMarker struct {
	// LastRead is the timestamp of the newest message the user has seen.
	LastRead time.Time `firestore:"lastRead"`
}
