package gateway

import "encoding/json"

// Inbound frame types accepted from WebSocket clients.
const (
	wsTypeSendMessage = "sendMessage"
	wsTypeSignIn      = "signin"
)

// Outbound frame types written by the gateway itself. The broadcast
// module owns the fan-out frame types (message, notification,
// pubsubMessage).
const (
	wsTypeMessageHistory = "messageHistory"
	wsTypeAck            = "ack"
	wsTypeWelcome        = "welcome"
	wsTypeError          = "error"
)

// ClientFrame is an inbound WebSocket frame.
type ClientFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// SendMessagePayload carries a chat message from the client.
type SendMessagePayload struct {
	Text string `json:"text"`
}

// SignInPayload carries a sign-in request from the client.
type SignInPayload struct {
	User string `json:"user"`
	Room string `json:"room,omitempty"`
}

// pushRequest is the envelope delivered by the external publisher.
type pushRequest struct {
	Message json.RawMessage `json:"message"`
}

// pushMessage is the payload half of the push envelope.
type pushMessage struct {
	Data string `json:"data"`
}
