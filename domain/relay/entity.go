package relay

import "time"

// DefaultRoom is the room every client joins on connect.
const DefaultRoom = "generalRoom"

// AnonymousUser attributes messages from clients that have not signed in.
const AnonymousUser = "Anonymous"

// Session is the server-side handle for one connected client.
type Session struct {
	ID   string `json:"id"`
	Room string `json:"room"`
	User string `json:"user,omitempty"`
}

// Message is a chat message relayed to a room.
type Message struct {
	User      string    `json:"user"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Notification is an ephemeral room event sent on join/leave. Never persisted.
type Notification struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}
