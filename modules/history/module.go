package history

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-monolith/mono"
	"github.com/redis/go-redis/v9"

	relay "github.com/example/pubsub-relay-demo/domain/relay"
)

// Module provides the Redis-backed history store as a mono module.
type Module struct {
	store     *Store
	client    *redis.Client
	redisAddr string
	prefix    string
	ttl       time.Duration
}

// Compile-time interface checks.
var (
	_ mono.Module                = (*Module)(nil)
	_ mono.HealthCheckableModule = (*Module)(nil)
)

// NewModule creates a new history module.
func NewModule(redisAddr string, ttl time.Duration) *Module {
	return &Module{
		redisAddr: redisAddr,
		prefix:    "history:",
		ttl:       ttl,
	}
}

// Name returns the module name.
func (m *Module) Name() string {
	return "history"
}

// Init creates the Redis client. A failed ping is logged, not fatal:
// the relay keeps serving connected clients without history until
// Redis comes back.
func (m *Module) Init(_ mono.ServiceContainer) error {
	m.client = redis.NewClient(&redis.Options{
		Addr:         m.redisAddr,
		PoolSize:     50,
		MinIdleConns: 5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.client.Ping(ctx).Err(); err != nil {
		log.Printf("[history] Redis unavailable at %s: %v", m.redisAddr, err)
	} else {
		log.Printf("[history] Connected to Redis at %s (prefix: %s, TTL: %s)", m.redisAddr, m.prefix, m.ttl)
	}

	m.store = NewStore(m.client, m.prefix, m.ttl)
	return nil
}

// Start starts the module.
func (m *Module) Start(_ context.Context) error {
	log.Println("[history] Module started")
	return nil
}

// Stop stops the module and closes the Redis connection.
func (m *Module) Stop(_ context.Context) error {
	if m.client != nil {
		if err := m.client.Close(); err != nil {
			return fmt.Errorf("failed to close Redis connection: %w", err)
		}
	}
	log.Println("[history] Module stopped")
	return nil
}

// Health reports the Redis connection state and operation counters.
func (m *Module) Health(ctx context.Context) mono.HealthStatus {
	if m.store == nil {
		return mono.HealthStatus{Healthy: false, Message: "store not initialized"}
	}
	if err := m.store.Ping(ctx); err != nil {
		return mono.HealthStatus{Healthy: false, Message: err.Error()}
	}
	stats := m.store.GetStats()
	return mono.HealthStatus{
		Healthy: true,
		Message: "operational",
		Details: map[string]any{
			"appends": stats.Appends,
			"fetches": stats.Fetches,
			"errors":  stats.Errors,
		},
	}
}

// Append persists one message to a room's log.
func (m *Module) Append(ctx context.Context, room string, msg relay.Message) error {
	if m.store == nil {
		return fmt.Errorf("history store not initialized")
	}
	return m.store.Append(ctx, room, msg)
}

// Fetch returns a room's stored messages in append order.
func (m *Module) Fetch(ctx context.Context, room string) ([]relay.Message, error) {
	if m.store == nil {
		return nil, fmt.Errorf("history store not initialized")
	}
	return m.store.Fetch(ctx, room)
}

// GetStore returns the underlying store.
func (m *Module) GetStore() *Store {
	return m.store
}
