// Package redis provides a Redis implementation of the esignsync.EventStore
// interface, intended as the degraded write path when the primary store is
// unavailable. Events are kept as JSON values with a pending index so an
// operator (or a replay job) can drain them back into the primary store.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/esignsync/pkg/esignsync"
)

// Store implements esignsync.EventStore using Redis.
type Store struct {
	client redis.UniversalClient
	config Config
}

// Config holds Redis event store configuration.
type Config struct {
	// KeyPrefix is prepended to all Redis keys (default: "esignsync:").
	KeyPrefix string

	// EventTTL is the TTL for event keys (0 = no expiration). Fallback
	// records are meant to be drained, not kept forever.
	EventTTL time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		KeyPrefix: "esignsync:",
		EventTTL:  7 * 24 * time.Hour,
	}
}

// New creates a new Redis event store.
// The client can be *redis.Client, *redis.ClusterClient, or *redis.Ring.
func New(client redis.UniversalClient, config Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultConfig().KeyPrefix
	}
	return &Store{client: client, config: config}, nil
}

// InsertEvent implements esignsync.EventStore. The id is generated client
// side since Redis assigns none.
func (s *Store) InsertEvent(ctx context.Context, event *esignsync.WebhookEvent) (string, error) {
	if event == nil {
		return "", fmt.Errorf("invalid event")
	}

	stored := *event
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	data, err := json.Marshal(&stored)
	if err != nil {
		return "", fmt.Errorf("failed to encode event: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.eventKey(stored.ID), data, s.config.EventTTL)
	pipe.RPush(ctx, s.pendingKey(), stored.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to store event: %w", err)
	}
	return stored.ID, nil
}

// MarkEventProcessed implements esignsync.EventStore.
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, processingError string) error {
	return s.mutate(ctx, eventID, func(ev *esignsync.WebhookEvent) {
		ev.Processed = true
		ev.ProcessingError = processingError
	})
}

// SetEventArtifact implements esignsync.EventStore.
func (s *Store) SetEventArtifact(ctx context.Context, eventID, url, path string) error {
	return s.mutate(ctx, eventID, func(ev *esignsync.WebhookEvent) {
		ev.SignedDocumentURL = url
		ev.SignedDocumentPath = path
	})
}

// PendingEventIDs lists ids recorded on the fallback path and not yet drained.
func (s *Store) PendingEventIDs(ctx context.Context) ([]string, error) {
	ids, err := s.client.LRange(ctx, s.pendingKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list pending events: %w", err)
	}
	return ids, nil
}

// GetEvent fetches one stored event.
func (s *Store) GetEvent(ctx context.Context, eventID string) (*esignsync.WebhookEvent, error) {
	data, err := s.client.Get(ctx, s.eventKey(eventID)).Bytes()
	if err == redis.Nil {
		return nil, esignsync.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	var ev esignsync.WebhookEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("failed to decode event: %w", err)
	}
	return &ev, nil
}

// Drain removes an event from the pending index after it was replayed into
// the primary store.
func (s *Store) Drain(ctx context.Context, eventID string) error {
	pipe := s.client.TxPipeline()
	pipe.LRem(ctx, s.pendingKey(), 0, eventID)
	pipe.Del(ctx, s.eventKey(eventID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to drain event: %w", err)
	}
	return nil
}

func (s *Store) mutate(ctx context.Context, eventID string, fn func(*esignsync.WebhookEvent)) error {
	ev, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	fn(ev)
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := s.client.Set(ctx, s.eventKey(eventID), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	return nil
}

func (s *Store) eventKey(id string) string {
	return s.config.KeyPrefix + "events:" + id
}

func (s *Store) pendingKey() string {
	return s.config.KeyPrefix + "events:pending"
}
