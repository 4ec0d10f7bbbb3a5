// Package history persists recent room messages in Redis as a bounded,
// ordered log per room.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	relay "github.com/example/pubsub-relay-demo/domain/relay"
)

// maxEntries is the maximum number of messages retained per room.
const maxEntries = 100

// Store keeps one Redis list of messages per room.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	stats  *Stats
}

// Stats tracks store operation counters.
type Stats struct {
	Appends uint64 `json:"appends"`
	Fetches uint64 `json:"fetches"`
	Errors  uint64 `json:"errors"`
}

// NewStore creates a store on top of an existing Redis client.
func NewStore(client *redis.Client, prefix string, ttl time.Duration) *Store {
	return &Store{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		stats:  &Stats{},
	}
}

// Append adds a message to the end of a room's log and trims the log
// to maxEntries. Callers treat failures as non-fatal: delivery to
// connected sessions must not depend on the append succeeding.
func (s *Store) Append(ctx context.Context, room string, msg relay.Message) error {
	key := s.prefix + room

	data, err := json.Marshal(msg)
	if err != nil {
		atomic.AddUint64(&s.stats.Errors, 1)
		return fmt.Errorf("history marshal error: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, -maxEntries, -1)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		atomic.AddUint64(&s.stats.Errors, 1)
		return fmt.Errorf("history append error: %w", err)
	}

	atomic.AddUint64(&s.stats.Appends, 1)
	return nil
}

// Fetch returns a room's stored messages in append order. A room with
// no history yields an empty slice, not an error.
func (s *Store) Fetch(ctx context.Context, room string) ([]relay.Message, error) {
	key := s.prefix + room

	entries, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			atomic.AddUint64(&s.stats.Fetches, 1)
			return []relay.Message{}, nil
		}
		atomic.AddUint64(&s.stats.Errors, 1)
		return nil, fmt.Errorf("history fetch error: %w", err)
	}

	messages := make([]relay.Message, 0, len(entries))
	for _, entry := range entries {
		var msg relay.Message
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			// Skip corrupt entries, keep the rest of the log.
			atomic.AddUint64(&s.stats.Errors, 1)
			continue
		}
		messages = append(messages, msg)
	}

	atomic.AddUint64(&s.stats.Fetches, 1)
	return messages, nil
}

// GetStats returns a snapshot of the operation counters.
func (s *Store) GetStats() Stats {
	return Stats{
		Appends: atomic.LoadUint64(&s.stats.Appends),
		Fetches: atomic.LoadUint64(&s.stats.Fetches),
		Errors:  atomic.LoadUint64(&s.stats.Errors),
	}
}

// Ping checks if the Redis connection is healthy.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
