// Package broadcast consumes relay events from the event bus and
// delivers them to this instance's WebSocket clients.
package broadcast

import (
	"context"
	"fmt"
	"log"

	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"

	relay "github.com/example/pubsub-relay-demo/domain/relay"
	"github.com/example/pubsub-relay-demo/events"
)

// Outbound frame types.
const (
	FrameMessage       = "message"
	FrameNotification  = "notification"
	FramePubSubMessage = "pubsubMessage"
)

// Module is an EventConsumerModule that broadcasts relay events to
// WebSocket clients.
type Module struct {
	hub       *Hub
	cancelHub context.CancelFunc
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.EventConsumerModule   = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new broadcast module.
func NewModule() *Module {
	return &Module{
		hub: NewHub(),
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "broadcast"
}

// Start initializes the module and starts the hub.
func (m *Module) Start(_ context.Context) error {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelHub = cancel
	go m.hub.Run(ctx)
	log.Println("[broadcast] Module started - WebSocket hub running")
	return nil
}

// Stop shuts down the module.
func (m *Module) Stop(_ context.Context) error {
	clientCount := m.hub.ClientCount()
	if m.cancelHub != nil {
		m.cancelHub()
		m.hub.Wait()
	}
	log.Printf("[broadcast] Module stopped - %d clients were connected", clientCount)
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"connected_clients": m.hub.ClientCount(),
		},
	}
}

// RegisterEventConsumers registers event handlers. These are the
// receive side of the cross-instance fan-out: every instance sharing
// the bus delivers each event to its own local sessions.
func (m *Module) RegisterEventConsumers(registry mono.EventRegistry) error {
	if err := helper.RegisterTypedEventConsumer(
		registry, events.RoomMessageV1, m.handleRoomMessage, m,
	); err != nil {
		return fmt.Errorf("failed to register RoomMessage consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.NotificationV1, m.handleNotification, m,
	); err != nil {
		return fmt.Errorf("failed to register Notification consumer: %w", err)
	}

	if err := helper.RegisterTypedEventConsumer(
		registry, events.ExternalMessageV1, m.handleExternalMessage, m,
	); err != nil {
		return fmt.Errorf("failed to register ExternalMessage consumer: %w", err)
	}

	log.Println("[broadcast] Registered event consumers: RoomMessage, Notification, ExternalMessage")
	return nil
}

// handleRoomMessage delivers a published chat message to the local
// sessions of the matching room. It never re-publishes and never
// re-appends to history; the origin instance already did both.
func (m *Module) handleRoomMessage(_ context.Context, event events.RoomMessageEvent, _ *mono.Msg) error {
	m.hub.Broadcast(event.Room, FrameMessage, relay.Message{
		User:      event.User,
		Text:      event.Text,
		Timestamp: event.Timestamp,
	})
	return nil
}

// handleNotification delivers a join/leave notification to the local
// sessions of the matching room.
func (m *Module) handleNotification(_ context.Context, event events.NotificationEvent, _ *mono.Msg) error {
	m.hub.Broadcast(event.Room, FrameNotification, relay.Notification{
		Title:       event.Title,
		Description: event.Description,
	})
	return nil
}

// handleExternalMessage delivers an HTTP-pushed greeting to every
// locally connected client, regardless of room.
func (m *Module) handleExternalMessage(_ context.Context, event events.ExternalMessageEvent, _ *mono.Msg) error {
	m.hub.Broadcast("", FramePubSubMessage, event.Text)
	return nil
}

// GetHub returns the WebSocket hub for the gateway module to use.
func (m *Module) GetHub() *Hub {
	return m.hub
}
