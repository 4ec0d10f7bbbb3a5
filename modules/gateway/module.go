// Package gateway is the ingress boundary: it accepts persistent
// WebSocket connections and one-shot Pub/Sub push requests and
// normalizes both into broker calls.
package gateway

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-monolith/mono"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/example/pubsub-relay-demo/modules/broadcast"
	"github.com/example/pubsub-relay-demo/modules/broker"
)

// Module is the HTTP/WebSocket ingress gateway.
type Module struct {
	app         *fiber.App
	broker      broker.Port
	hub         *broadcast.Hub
	port        string
	corsOrigins string
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new gateway module.
func NewModule(port, corsOrigins string, brokerPort broker.Port) *Module {
	return &Module{
		port:        port,
		corsOrigins: corsOrigins,
		broker:      brokerPort,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "gateway"
}

// SetHub sets the broadcast hub (called from main.go).
func (m *Module) SetHub(hub *broadcast.Hub) {
	m.hub = hub
}

// Start initializes the Fiber HTTP server.
func (m *Module) Start(_ context.Context) error {
	if m.broker == nil {
		return fmt.Errorf("broker dependency not set")
	}
	if m.hub == nil {
		return fmt.Errorf("broadcast hub dependency not set")
	}

	m.buildApp()

	// Start server in goroutine with startup error detection.
	errCh := make(chan error, 1)
	go func() {
		if err := m.app.Listen(":" + m.port); err != nil {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("gateway failed to start: %w", err)
	case <-time.After(100 * time.Millisecond):
	}

	log.Printf("[gateway] HTTP server started on :%s", m.port)
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (m *Module) Stop(ctx context.Context) error {
	if m.app == nil {
		return nil
	}
	log.Println("[gateway] Shutting down HTTP server...")
	if err := m.app.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Health returns the health status.
func (m *Module) Health(_ context.Context) mono.HealthStatus {
	return mono.HealthStatus{
		Healthy: m.app != nil,
		Message: "operational",
		Details: map[string]any{
			"port":              m.port,
			"connected_clients": m.hub.ClientCount(),
		},
	}
}

// buildApp assembles the Fiber app with middleware and routes.
func (m *Module) buildApp() {
	m.app = fiber.New(fiber.Config{
		AppName:               "Pub/Sub Message Relay",
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
		IdleTimeout:           120 * time.Second,
	})

	m.app.Use(recover.New())
	m.app.Use(cors.New(cors.Config{
		AllowOrigins: m.corsOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type,Authorization",
	}))

	m.setupRoutes()
}

// setupRoutes configures all HTTP and WebSocket routes.
func (m *Module) setupRoutes() {
	m.app.Get("/", m.handleRoot)
	m.app.Post("/", m.handlePubSubPush)
	m.app.Get("/health", m.handleHealth)

	m.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	m.app.Get("/ws", websocket.New(m.handleWebSocket))
}
