// Package redispub provides a Redis Pub/Sub implementation of the
// esignsync.Notifier interface, feeding live dashboards a summary of each
// reconciliation outcome. Delivery is fire and forget.
package redispub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mihaimyh/esignsync/pkg/esignsync"
)

// Notifier publishes outcomes to a Redis channel.
type Notifier struct {
	client  redis.UniversalClient
	channel string
}

// New creates a notifier publishing to channel (default: "esignsync:outcomes").
func New(client redis.UniversalClient, channel string) (*Notifier, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if channel == "" {
		channel = "esignsync:outcomes"
	}
	return &Notifier{client: client, channel: channel}, nil
}

// Notify implements esignsync.Notifier.
func (n *Notifier) Notify(ctx context.Context, outcome esignsync.Outcome) error {
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("failed to encode outcome: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish outcome: %w", err)
	}
	return nil
}
