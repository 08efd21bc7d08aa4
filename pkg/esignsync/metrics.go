package esignsync

import "time"

// Metrics defines the interface for tracking reconciliation operations.
type Metrics interface {
	// RecordEventReceived records one inbound event by type name.
	RecordEventReceived(eventType string)

	// RecordEventRecorded records which write path persisted the event
	// ("primary", "fallback", "virtual").
	RecordEventRecorded(path string)

	// RecordLocate records an aggregate lookup and the strategy that resolved it
	// (empty strategy on miss).
	RecordLocate(strategy string, found bool)

	// RecordTransition records a lifecycle transition.
	RecordTransition(from, to string)

	// RecordNoOp records an event that reconciled to no state change.
	RecordNoOp(eventType string)

	// RecordArtifactCapture records a capture attempt and the decoded size.
	RecordArtifactCapture(success bool, bytes int)

	// RecordStorageOperation records the duration and status of a storage call.
	RecordStorageOperation(operation string, duration time.Duration, err error)

	// RecordOutcome records one completed orchestration.
	RecordOutcome(success bool, duration time.Duration)
}

// NoopMetrics is a no-op implementation of the Metrics interface.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordEventReceived(eventType string)                                       {}
func (n *NoopMetrics) RecordEventRecorded(path string)                                            {}
func (n *NoopMetrics) RecordLocate(strategy string, found bool)                                   {}
func (n *NoopMetrics) RecordTransition(from, to string)                                           {}
func (n *NoopMetrics) RecordNoOp(eventType string)                                                {}
func (n *NoopMetrics) RecordArtifactCapture(success bool, bytes int)                              {}
func (n *NoopMetrics) RecordStorageOperation(operation string, duration time.Duration, err error) {}
func (n *NoopMetrics) RecordOutcome(success bool, duration time.Duration)                         {}
