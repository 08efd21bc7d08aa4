package esignsync

import "context"

// Notifier receives a fire-and-forget summary of each reconciliation outcome,
// typically feeding a live dashboard. Its absence or failure never affects
// the reconciliation result.
type Notifier interface {
	Notify(ctx context.Context, outcome Outcome) error
}

// NoopNotifier discards every notification.
type NoopNotifier struct{}

func (n *NoopNotifier) Notify(ctx context.Context, outcome Outcome) error { return nil }
