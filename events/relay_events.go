package events

import (
	"time"

	"github.com/go-monolith/mono/pkg/helper"
)

// RoomMessageEvent is published when a session submits a chat message.
// The origin instance has already appended it to the room history.
type RoomMessageEvent struct {
	Room      string    `json:"room"`
	User      string    `json:"user"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NotificationEvent is published when a session joins or leaves a room.
type NotificationEvent struct {
	Room        string    `json:"room"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// ExternalMessageEvent is published for events pushed in over HTTP.
// It fans out to every connected client regardless of room and is
// never written to history.
type ExternalMessageEvent struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Event definitions for the relay domain.
var (
	RoomMessageV1 = helper.EventDefinition[RoomMessageEvent](
		"relay",
		"RoomMessage",
		"v1",
	)

	NotificationV1 = helper.EventDefinition[NotificationEvent](
		"relay",
		"Notification",
		"v1",
	)

	ExternalMessageV1 = helper.EventDefinition[ExternalMessageEvent](
		"relay",
		"ExternalMessage",
		"v1",
	)
)
