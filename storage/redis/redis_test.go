package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/esignsync/pkg/esignsync"
)

// setupTestRedis creates a Redis client for testing.
// Requires Redis running on localhost:6379.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use DB 15 for testing
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test database: %v", err)
	}
	return client
}

func TestNew(t *testing.T) {
	if _, err := New(nil, DefaultConfig()); err == nil {
		t.Error("nil client should be rejected")
	}

	store, err := New(redis.NewClient(&redis.Options{}), Config{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if store.config.KeyPrefix != "esignsync:" {
		t.Errorf("default key prefix = %q", store.config.KeyPrefix)
	}
}

func TestStoreKeys(t *testing.T) {
	store, _ := New(redis.NewClient(&redis.Options{}), Config{KeyPrefix: "test:"})
	if got := store.eventKey("evt-1"); got != "test:events:evt-1" {
		t.Errorf("eventKey = %q", got)
	}
	if got := store.pendingKey(); got != "test:events:pending" {
		t.Errorf("pendingKey = %q", got)
	}
}

func TestStore_InsertAndGetEvent(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store, err := New(client, DefaultConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx := context.Background()

	id, err := store.InsertEvent(ctx, &esignsync.WebhookEvent{
		ExternalReference: "1f1e8b4c-2a9d-4f6e-9c3b-7d5a1e2f3a4b",
		EventType:         esignsync.EventTypeRequestCompleted,
		ReceivedAt:        time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("InsertEvent failed: %v", err)
	}

	ev, err := store.GetEvent(ctx, id)
	if err != nil {
		t.Fatalf("GetEvent failed: %v", err)
	}
	if ev.ExternalReference != "1f1e8b4c-2a9d-4f6e-9c3b-7d5a1e2f3a4b" {
		t.Errorf("event = %+v", ev)
	}
	if ev.EventType != esignsync.EventTypeRequestCompleted {
		t.Errorf("event type = %d", ev.EventType)
	}

	pending, err := store.PendingEventIDs(ctx)
	if err != nil {
		t.Fatalf("PendingEventIDs failed: %v", err)
	}
	if len(pending) != 1 || pending[0] != id {
		t.Errorf("pending = %v, want [%s]", pending, id)
	}

	if _, err := store.GetEvent(ctx, "missing"); err != esignsync.ErrEventNotFound {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}
}

func TestStore_MarkEventProcessed(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store, _ := New(client, DefaultConfig())
	ctx := context.Background()

	id, _ := store.InsertEvent(ctx, &esignsync.WebhookEvent{})
	if err := store.MarkEventProcessed(ctx, id, "engine failed"); err != nil {
		t.Fatalf("MarkEventProcessed failed: %v", err)
	}

	ev, _ := store.GetEvent(ctx, id)
	if !ev.Processed || ev.ProcessingError != "engine failed" {
		t.Errorf("event = %+v", ev)
	}

	if err := store.MarkEventProcessed(ctx, "missing", ""); err != esignsync.ErrEventNotFound {
		t.Errorf("expected ErrEventNotFound, got %v", err)
	}
}

func TestStore_SetEventArtifact(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store, _ := New(client, DefaultConfig())
	ctx := context.Background()

	id, _ := store.InsertEvent(ctx, &esignsync.WebhookEvent{})
	if err := store.SetEventArtifact(ctx, id, "https://x/y.pdf", "agreements/a/y.pdf"); err != nil {
		t.Fatalf("SetEventArtifact failed: %v", err)
	}
	ev, _ := store.GetEvent(ctx, id)
	if ev.SignedDocumentURL != "https://x/y.pdf" || ev.SignedDocumentPath != "agreements/a/y.pdf" {
		t.Errorf("event = %+v", ev)
	}
}

func TestStore_Drain(t *testing.T) {
	client := setupTestRedis(t)
	defer client.Close()

	store, _ := New(client, DefaultConfig())
	ctx := context.Background()

	id, _ := store.InsertEvent(ctx, &esignsync.WebhookEvent{})
	if err := store.Drain(ctx, id); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	pending, _ := store.PendingEventIDs(ctx)
	if len(pending) != 0 {
		t.Errorf("pending = %v, want empty", pending)
	}
	if _, err := store.GetEvent(ctx, id); err != esignsync.ErrEventNotFound {
		t.Errorf("drained event should be gone, got %v", err)
	}
}
