// Package broker owns session registration, room membership and
// message routing between the ingress gateway, the history store and
// the event bus.
package broker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-monolith/mono"

	relay "github.com/example/pubsub-relay-demo/domain/relay"
	"github.com/example/pubsub-relay-demo/events"
)

// Notification wording, kept verbatim from the original wire contract.
const (
	joinTitle        = "Someone's here"
	joinDescription  = "A new user just entered the room"
	leaveTitle       = "Someone just left"
	leaveDescription = "A user just left the room"
)

// History is the slice of the history module the broker depends on.
type History interface {
	Append(ctx context.Context, room string, msg relay.Message) error
	Fetch(ctx context.Context, room string) ([]relay.Message, error)
}

// Port defines the broker operations consumed by ingress gateways.
type Port interface {
	Register(ctx context.Context, sessionID string) (*relay.Session, []relay.Message)
	Unregister(ctx context.Context, sessionID string)
	Submit(ctx context.Context, sessionID, text string) error
	SignIn(ctx context.Context, sessionID, user, room string) (*relay.Session, []relay.Message, bool)
	DeliverExternal(ctx context.Context, name string)
}

// eventPublisher is the slice of the event bus the broker emits
// through. A small seam over the typed event definitions so the
// publish side is testable without a live bus.
type eventPublisher interface {
	PublishRoomMessage(events.RoomMessageEvent) error
	PublishNotification(events.NotificationEvent) error
	PublishExternalMessage(events.ExternalMessageEvent) error
}

// busPublisher emits through the framework event bus.
type busPublisher struct {
	bus mono.EventBus
}

func (p busPublisher) PublishRoomMessage(e events.RoomMessageEvent) error {
	return events.RoomMessageV1.Publish(p.bus, e, nil)
}

func (p busPublisher) PublishNotification(e events.NotificationEvent) error {
	return events.NotificationV1.Publish(p.bus, e, nil)
}

func (p busPublisher) PublishExternalMessage(e events.ExternalMessageEvent) error {
	return events.ExternalMessageV1.Publish(p.bus, e, nil)
}

// Module implements the session/room broker.
type Module struct {
	registry  *SessionRegistry
	history   History
	publisher eventPublisher
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventBusAwareModule   = (*Module)(nil)
	_ mono.EventEmitterModule    = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
	_ Port                       = (*Module)(nil)
)

// NewModule creates a new broker module.
func NewModule(history History) *Module {
	return &Module{
		registry: NewSessionRegistry(),
		history:  history,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "broker"
}

// SetEventBus receives the EventBus from the framework.
func (m *Module) SetEventBus(bus mono.EventBus) {
	m.publisher = busPublisher{bus: bus}
}

// EmitEvents declares the events this module can emit.
func (m *Module) EmitEvents() []mono.BaseEventDefinition {
	return []mono.BaseEventDefinition{
		events.RoomMessageV1.ToBase(),
		events.NotificationV1.ToBase(),
		events.ExternalMessageV1.ToBase(),
	}
}

// Start starts the module.
func (m *Module) Start(_ context.Context) error {
	log.Printf("[broker] Module started (default room: %s)", relay.DefaultRoom)
	return nil
}

// Stop stops the module.
func (m *Module) Stop(_ context.Context) error {
	log.Printf("[broker] Module stopped - %d sessions were registered", m.registry.Count())
	return nil
}

// Health reports session and room counts.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"sessions": m.registry.Count(),
			"rooms":    m.registry.RoomCount(),
		},
	}
}

// Register creates a session in the default room, announces the join
// to the room and returns the stored history for replay to the new
// session only.
func (m *Module) Register(ctx context.Context, sessionID string) (*relay.Session, []relay.Message) {
	sess := &relay.Session{ID: sessionID, Room: relay.DefaultRoom}
	m.registry.Add(sess)

	m.publishNotification(sess.Room, joinTitle, joinDescription)

	messages, err := m.history.Fetch(ctx, sess.Room)
	if err != nil {
		log.Printf("[broker] History fetch for room %s failed: %v", sess.Room, err)
		messages = []relay.Message{}
	}

	log.Printf("[broker] Session %s registered in room %s", sessionID, sess.Room)
	return sess, messages
}

// Unregister removes a session and announces the departure to its
// room. Unregistering an unknown or already-removed session is a
// no-op.
func (m *Module) Unregister(_ context.Context, sessionID string) {
	sess, removed := m.registry.Remove(sessionID)
	if !removed {
		return
	}

	m.publishNotification(sess.Room, leaveTitle, leaveDescription)
	log.Printf("[broker] Session %s unregistered from room %s", sessionID, sess.Room)
}

// Submit appends a session's message to its room history and publishes
// it for fan-out to all instances. A nil return means the local
// publish was handed off; remote delivery is fire-and-forget. Messages
// from unknown session IDs are dropped.
func (m *Module) Submit(ctx context.Context, sessionID, text string) error {
	sess, ok := m.registry.Get(sessionID)
	if !ok {
		log.Printf("[broker] Dropping message from unknown session %s", sessionID)
		return nil
	}

	msg := relay.Message{User: sess.User, Text: text, Timestamp: time.Now()}
	if msg.User == "" {
		msg.User = relay.AnonymousUser
	}

	if err := m.history.Append(ctx, sess.Room, msg); err != nil {
		log.Printf("[broker] History append for room %s failed: %v", sess.Room, err)
	}

	m.publishRoomMessage(sess.Room, msg)
	return nil
}

// SignIn assigns a display name to a session and moves it to the
// requested room (the default room when none is given), announcing the
// change to both rooms. It returns the new room's history for replay.
func (m *Module) SignIn(ctx context.Context, sessionID, user, room string) (*relay.Session, []relay.Message, bool) {
	if room == "" {
		room = relay.DefaultRoom
	}

	prevRoom, ok := m.registry.Move(sessionID, user, room)
	if !ok {
		return nil, nil, false
	}

	if prevRoom != room {
		m.publishNotification(prevRoom, leaveTitle, leaveDescription)
		m.publishNotification(room, joinTitle, joinDescription)
	}

	messages, err := m.history.Fetch(ctx, room)
	if err != nil {
		log.Printf("[broker] History fetch for room %s failed: %v", room, err)
		messages = []relay.Message{}
	}

	sess, _ := m.registry.Get(sessionID)
	log.Printf("[broker] Session %s signed in as %s in room %s", sessionID, user, room)
	return sess, messages, true
}

// DeliverExternal publishes an externally pushed event to every
// connected client across all instances. External messages bypass
// room history.
func (m *Module) DeliverExternal(_ context.Context, name string) {
	text := Greeting(name)

	if m.publisher == nil {
		log.Printf("[broker] Dropping external message, event bus not ready")
		return
	}

	event := events.ExternalMessageEvent{Text: text, Timestamp: time.Now()}
	if err := m.publisher.PublishExternalMessage(event); err != nil {
		log.Printf("[broker] Failed to publish external message: %v", err)
	}
}

// Greeting formats the broadcast text for an externally published
// payload. An empty payload falls back to "World".
func Greeting(name string) string {
	if name == "" {
		name = "World"
	}
	return fmt.Sprintf("Hello %s!", name)
}

// Registry returns the session registry.
func (m *Module) Registry() *SessionRegistry {
	return m.registry
}

func (m *Module) publishRoomMessage(room string, msg relay.Message) {
	if m.publisher == nil {
		log.Printf("[broker] Dropping message for room %s, event bus not ready", room)
		return
	}

	event := events.RoomMessageEvent{
		Room:      room,
		User:      msg.User,
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
	}
	if err := m.publisher.PublishRoomMessage(event); err != nil {
		log.Printf("[broker] Failed to publish message for room %s: %v", room, err)
	}
}

func (m *Module) publishNotification(room, title, description string) {
	if m.publisher == nil {
		log.Printf("[broker] Dropping notification for room %s, event bus not ready", room)
		return
	}

	event := events.NotificationEvent{
		Room:        room,
		Title:       title,
		Description: description,
		Timestamp:   time.Now(),
	}
	if err := m.publisher.PublishNotification(event); err != nil {
		log.Printf("[broker] Failed to publish notification for room %s: %v", room, err)
	}
}
