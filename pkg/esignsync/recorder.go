package esignsync

import (
	"context"
	"encoding/json"
	"time"
)

// RecorderConfig tunes the event store adapter.
type RecorderConfig struct {
	// StoreTimeout bounds each write attempt (default: 5s).
	StoreTimeout time.Duration

	// Retries is the number of extra attempts per write path after the
	// first fails (default: 1).
	Retries int
}

// DefaultRecorderConfig returns a RecorderConfig with sensible defaults.
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		StoreTimeout: 5 * time.Second,
		Retries:      1,
	}
}

// RecordResult reports how an inbound event was persisted. All outcomes are
// reported as values; Record never fails.
type RecordResult struct {
	// EventID is the persisted id, or a synthesized one on the virtual path.
	EventID string

	// NormalizedReference is the canonical reference used for lookups.
	NormalizedReference string

	// ReferenceGenerated is true when the inbound reference was beyond
	// repair and a fresh one was substituted.
	ReferenceGenerated bool

	// Path is the write path that succeeded: "primary", "fallback" or "virtual".
	Path string

	// Degraded is true for the fallback and virtual paths.
	Degraded bool

	Warnings []string
}

// Virtual reports whether no store accepted the event.
func (r RecordResult) Virtual() bool { return r.Path == "virtual" }

// Recorder persists raw webhook events with a degraded-path chain:
// primary store, then each fallback store in order, then a virtual record so
// the rest of the pipeline can still run.
type Recorder struct {
	primary   EventStore
	fallbacks []EventStore
	config    RecorderConfig
	logger    Logger
	metrics   Metrics

	now   func() time.Time
	newID func() string
}

// NewRecorder creates a recorder over the primary store and optional ordered
// fallback stores.
func NewRecorder(primary EventStore, fallbacks []EventStore, config RecorderConfig, logger Logger, metrics Metrics) *Recorder {
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = DefaultRecorderConfig().StoreTimeout
	}
	if config.Retries < 0 {
		config.Retries = 0
	}
	if logger == nil {
		logger = &NoopLogger{}
	}
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	return &Recorder{
		primary:   primary,
		fallbacks: fallbacks,
		config:    config,
		logger:    logger,
		metrics:   metrics,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     NewReference,
	}
}

// Record validates and persists one inbound event. It never returns an error:
// a failed primary write degrades to the fallback stores, and a fully failed
// chain degrades to a virtual record.
func (r *Recorder) Record(ctx context.Context, ev *InboundEvent) RecordResult {
	result := RecordResult{}

	reference, ok := NormalizeReference(ev.ExternalReference)
	if !ok {
		reference = r.newID()
		result.ReferenceGenerated = true
		result.Warnings = append(result.Warnings,
			"external reference malformed, substituted generated reference")
		r.logger.Warn("malformed external reference",
			Field{"rawReference", ev.ExternalReference},
			Field{"substituted", reference},
		)
	}
	result.NormalizedReference = reference

	event := &WebhookEvent{
		ExternalReference: reference,
		EventType:         ev.EventType,
		RawPayload:        rawPayload(ev),
		ReceivedAt:        r.now(),
	}

	if id, err := r.insert(ctx, r.primary, "primary", event); err == nil {
		result.EventID = id
		result.Path = "primary"
		r.metrics.RecordEventRecorded("primary")
		return result
	} else {
		result.Warnings = append(result.Warnings, "primary event store write failed: "+err.Error())
		r.logger.Warn("primary event store write failed", Field{"error", err})
	}

	for i, fb := range r.fallbacks {
		id, err := r.insert(ctx, fb, "fallback", event)
		if err == nil {
			result.EventID = id
			result.Path = "fallback"
			result.Degraded = true
			r.metrics.RecordEventRecorded("fallback")
			return result
		}
		result.Warnings = append(result.Warnings, "fallback event store write failed: "+err.Error())
		r.logger.Warn("fallback event store write failed",
			Field{"fallback", i},
			Field{"error", err},
		)
	}

	// Nothing accepted the write. Synthesize a record so the caller still
	// gets a best-effort outcome.
	result.EventID = r.newID()
	result.Path = "virtual"
	result.Degraded = true
	result.Warnings = append(result.Warnings, "all event store writes failed, using virtual record")
	r.metrics.RecordEventRecorded("virtual")
	r.logger.Error("event stored as virtual record",
		Field{"eventId", result.EventID},
		Field{"reference", reference},
	)
	return result
}

// MarkProcessed records the processing outcome for an event. Failure to mark
// is logged, never surfaced: a redelivery is reprocessed idempotently.
func (r *Recorder) MarkProcessed(ctx context.Context, result RecordResult, processingError string) {
	if result.Virtual() {
		return
	}
	stores := append([]EventStore{r.primary}, r.fallbacks...)
	for _, store := range stores {
		if store == nil {
			continue
		}
		opCtx, cancel := context.WithTimeout(ctx, r.config.StoreTimeout)
		start := r.now()
		err := store.MarkEventProcessed(opCtx, result.EventID, processingError)
		r.metrics.RecordStorageOperation("mark_processed", time.Since(start), err)
		cancel()
		if err == nil {
			return
		}
		r.logger.Warn("failed to mark event processed",
			Field{"eventId", result.EventID},
			Field{"error", err},
		)
	}
}

func (r *Recorder) insert(ctx context.Context, store EventStore, path string, event *WebhookEvent) (string, error) {
	if store == nil {
		return "", ErrStorageUnavailable
	}
	var lastErr error
	for attempt := 0; attempt <= r.config.Retries; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, r.config.StoreTimeout)
		start := r.now()
		id, err := store.InsertEvent(opCtx, event)
		r.metrics.RecordStorageOperation("insert_event_"+path, time.Since(start), err)
		cancel()
		if err == nil {
			return id, nil
		}
		lastErr = err
	}
	return "", lastErr
}

func rawPayload(ev *InboundEvent) json.RawMessage {
	if len(ev.Raw) > 0 {
		return ev.Raw
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil
	}
	return raw
}
