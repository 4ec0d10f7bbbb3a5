package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	relay "github.com/example/pubsub-relay-demo/domain/relay"
	"github.com/example/pubsub-relay-demo/modules/broadcast"
)

// handleRoot answers the liveness probe with a static banner.
func (m *Module) handleRoot(c *fiber.Ctx) error {
	return c.SendString("WebSocket and Pub/Sub App")
}

// handleHealth handles GET /health.
func (m *Module) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":            "healthy",
		"connected_clients": m.hub.ClientCount(),
	})
}

// handlePubSubPush accepts a one-shot event pushed by the external
// publisher and fans it out to every connected client. No server-side
// state changes on a rejected request.
func (m *Module) handlePubSubPush(c *fiber.Ctx) error {
	var req pushRequest
	if err := c.BodyParser(&req); err != nil || !validEnvelope(req.Message) {
		log.Println("[gateway] Error: Invalid Pub/Sub message format")
		return c.Status(fiber.StatusBadRequest).SendString("Bad Request: Invalid Pub/Sub message format")
	}

	name := decodePushData(req.Message)
	log.Printf("[gateway] Received Pub/Sub message: %s", name)

	m.broker.DeliverExternal(c.UserContext(), name)
	return c.Status(fiber.StatusNoContent).Send(nil)
}

// validEnvelope reports whether the push envelope carries a usable
// message value. Absent, null, false, zero and empty-string values are
// all rejected, mirroring the external publisher contract. Zero is
// rejected in every JSON spelling (0, 0.0, -0, 0e0).
func validEnvelope(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case float64:
		return val != 0
	case string:
		return val != ""
	}
	return true
}

// decodePushData extracts the optional base64 payload from the
// envelope. Bare markers (e.g. message: true) and undecodable payloads
// yield an empty name; the broker substitutes the default.
func decodePushData(raw json.RawMessage) string {
	var msg pushMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Data == "" {
		return ""
	}

	decoded, err := base64.StdEncoding.DecodeString(msg.Data)
	if err != nil {
		log.Printf("[gateway] Failed to decode push payload: %v", err)
		return ""
	}
	return strings.TrimSpace(string(decoded))
}

// handleWebSocket handles a persistent client connection: register on
// connect, replay history to the new session only, then loop over
// inbound frames until disconnect.
func (m *Module) handleWebSocket(c *websocket.Conn) {
	sessionID := uuid.New().String()

	// Hub first, so the new client receives its own join notification
	// when the bus round-trip lands. The client's writer goroutine is
	// the connection's only writer; the read loop below never touches
	// the connection's write side directly.
	client := broadcast.NewClient(sessionID, relay.DefaultRoom, c)
	m.hub.Register(client)

	_, history := m.broker.Register(context.Background(), sessionID)

	defer func() {
		m.hub.Unregister(client)
		m.broker.Unregister(context.Background(), sessionID)
		client.Wait()
		log.Printf("[gateway] WebSocket client disconnected: %s", sessionID)
	}()

	log.Printf("[gateway] New WebSocket connection: %s", sessionID)

	m.sendFrame(client, wsTypeMessageHistory, history)

	for {
		_, msgBytes, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[gateway] Read error from %s: %v", sessionID, err)
			}
			break
		}

		var frame ClientFrame
		if err := json.Unmarshal(msgBytes, &frame); err != nil {
			m.sendError(client, "Invalid message format")
			continue
		}

		switch frame.Type {
		case wsTypeSendMessage:
			m.handleSendMessage(client, sessionID, frame.Payload)
		case wsTypeSignIn:
			m.handleSignIn(client, sessionID, frame.Payload)
		default:
			m.sendError(client, "Unknown message type: "+frame.Type)
		}
	}
}

// handleSendMessage submits a chat message and acknowledges it once
// the broker has accepted the local publish.
func (m *Module) handleSendMessage(client *broadcast.Client, sessionID string, payload json.RawMessage) {
	var req SendMessagePayload
	if err := json.Unmarshal(payload, &req); err != nil {
		m.sendError(client, "Invalid message payload")
		return
	}
	if req.Text == "" {
		m.sendError(client, "Message text is required")
		return
	}

	if err := m.broker.Submit(context.Background(), sessionID, req.Text); err != nil {
		m.sendError(client, "Failed to send message")
		return
	}

	m.sendFrame(client, wsTypeAck, nil)
}

// handleSignIn assigns a display name, moves the session to the
// requested room and replays that room's history.
func (m *Module) handleSignIn(client *broadcast.Client, sessionID string, payload json.RawMessage) {
	var req SignInPayload
	if err := json.Unmarshal(payload, &req); err != nil || req.User == "" {
		m.sendError(client, "Invalid signin payload")
		return
	}

	sess, history, ok := m.broker.SignIn(context.Background(), sessionID, req.User, req.Room)
	if !ok {
		m.sendError(client, "Unknown session")
		return
	}

	m.hub.MoveClient(sessionID, sess.Room)

	m.sendFrame(client, wsTypeWelcome, fmt.Sprintf("Welcome %s to room %s", sess.User, sess.Room))
	m.sendFrame(client, wsTypeMessageHistory, history)
}

func (m *Module) sendFrame(client *broadcast.Client, event string, payload any) {
	data, err := broadcast.EncodeFrame(event, payload)
	if err != nil {
		log.Printf("[gateway] Failed to encode %s frame: %v", event, err)
		return
	}
	if !client.Send(data) {
		log.Printf("[gateway] Dropped %s frame for %s: send queue unavailable", event, client.ID)
	}
}

func (m *Module) sendError(client *broadcast.Client, errMsg string) {
	data, err := json.Marshal(broadcast.Frame{Type: wsTypeError, Error: errMsg})
	if err != nil {
		return
	}
	if !client.Send(data) {
		log.Printf("[gateway] Dropped error frame for %s: send queue unavailable", client.ID)
	}
}
