package esignsync

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Outcome is the structured result of processing one inbound event. The
// ingress boundary always acknowledges receipt; internal failures are
// observable only through this value and logs.
type Outcome struct {
	// Success is the overall verdict. Degraded paths and a missing
	// aggregate still count as success with warnings.
	Success bool `json:"success"`

	// RecordingSuccess is false only when the event landed as a virtual
	// record.
	RecordingSuccess bool `json:"recordingSuccess"`

	// AggregateProcessed is true when an agreement was located and the
	// engine ran against it.
	AggregateProcessed bool `json:"aggregateProcessed"`

	EventID     string `json:"eventId,omitempty"`
	AgreementID string `json:"agreementId,omitempty"`

	Warnings []string `json:"warnings,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Orchestrator wires the recorder, locator, engine and capture pipeline into
// one entry point per inbound event. It owns failure containment: nothing
// escapes its boundary as a panic or error, every outcome is a value.
type Orchestrator struct {
	recorder   *Recorder
	locator    *Locator
	engine     *Engine
	capture    *Capture
	agreements AgreementStore
	notifier   Notifier
	logger     Logger
	metrics    Metrics

	storeTimeout time.Duration
	now          func() time.Time
}

// OrchestratorDeps bundles the collaborators for NewOrchestrator. Notifier,
// Logger and Metrics may be nil.
type OrchestratorDeps struct {
	Recorder   *Recorder
	Locator    *Locator
	Engine     *Engine
	Capture    *Capture
	Agreements AgreementStore
	Notifier   Notifier
	Logger     Logger
	Metrics    Metrics

	// StoreTimeout bounds the agreement write-back (default: 5s).
	StoreTimeout time.Duration
}

// NewOrchestrator creates the per-event entry point.
func NewOrchestrator(deps OrchestratorDeps) (*Orchestrator, error) {
	if deps.Recorder == nil || deps.Locator == nil || deps.Engine == nil || deps.Agreements == nil {
		return nil, errors.New("recorder, locator, engine and agreement store are required")
	}
	if deps.Notifier == nil {
		deps.Notifier = &NoopNotifier{}
	}
	if deps.Logger == nil {
		deps.Logger = &NoopLogger{}
	}
	if deps.Metrics == nil {
		deps.Metrics = &NoopMetrics{}
	}
	if deps.StoreTimeout <= 0 {
		deps.StoreTimeout = 5 * time.Second
	}
	return &Orchestrator{
		recorder:     deps.Recorder,
		locator:      deps.Locator,
		engine:       deps.Engine,
		capture:      deps.Capture,
		agreements:   deps.Agreements,
		notifier:     deps.Notifier,
		logger:       deps.Logger,
		metrics:      deps.Metrics,
		storeTimeout: deps.StoreTimeout,
		now:          func() time.Time { return time.Now().UTC() },
	}, nil
}

// Process runs the full pipeline for one event:
// record -> locate -> reconcile -> write back -> capture -> mark processed.
// Any step's failure short-circuits into a partial outcome; Process never
// panics and never returns an error.
func (o *Orchestrator) Process(ctx context.Context, ev *InboundEvent) (outcome Outcome) {
	start := o.now()

	defer func() {
		if r := recover(); r != nil {
			outcome.Success = false
			outcome.Error = fmt.Sprintf("internal failure: %v", r)
			o.logger.Error("panic during event processing", Field{"panic", r})
		}
		o.metrics.RecordOutcome(outcome.Success, time.Since(start))
		o.notify(ctx, outcome)
	}()

	if ev == nil {
		return Outcome{Success: false, Error: "nil event"}
	}
	o.metrics.RecordEventReceived(ev.EventType.String())

	// 1. Record the raw event. Never fails, possibly degraded.
	rec := o.recorder.Record(ctx, ev)
	outcome.EventID = rec.EventID
	outcome.RecordingSuccess = !rec.Virtual()
	outcome.Warnings = append(outcome.Warnings, rec.Warnings...)

	// 2. Resolve the aggregate. A miss is a partial success: the event is
	// recorded and a later redelivery can still be applied.
	agreement, err := o.locator.Locate(ctx, rec.NormalizedReference)
	if err != nil {
		if !errors.Is(err, ErrAgreementNotFound) {
			outcome.Warnings = append(outcome.Warnings, "agreement lookup failed: "+err.Error())
		}
		outcome.Success = true
		o.logger.Info("agreement not located, processing skipped",
			Field{"reference", rec.NormalizedReference},
			Field{"eventId", rec.EventID},
		)
		o.recorder.MarkProcessed(ctx, rec, "")
		return outcome
	}
	outcome.AgreementID = agreement.ID

	// 3. Compute the new state.
	result := o.engine.Reconcile(agreement, ev)
	if result.NoOp {
		outcome.Success = true
		outcome.AggregateProcessed = true
		o.metrics.RecordNoOp(ev.EventType.String())
		o.recorder.MarkProcessed(ctx, rec, "")
		return outcome
	}

	// 4. Write back.
	if !result.Update.Empty() {
		if result.Transitioned && result.Update.LifecycleStatus != nil {
			o.metrics.RecordTransition(string(agreement.LifecycleStatus), string(*result.Update.LifecycleStatus))
		}
		if err := o.updateAgreement(ctx, agreement.ID, result.Update); err != nil {
			outcome.Error = "agreement update failed: " + err.Error()
			o.recorder.MarkProcessed(ctx, rec, outcome.Error)
			return outcome
		}
		result.Update.Apply(agreement)
	}
	outcome.AggregateProcessed = true

	// 5. Capture artifacts on terminal completion. Failure here is a
	// warning, never a rollback of the lifecycle update.
	if len(result.Documents) > 0 && o.capture != nil {
		for _, doc := range result.Documents {
			if _, err := o.capture.CaptureDocument(ctx, doc, agreement.ID, rec.EventID); err != nil {
				outcome.Warnings = append(outcome.Warnings, "artifact capture failed: "+err.Error())
			}
		}
	}

	outcome.Success = true
	o.recorder.MarkProcessed(ctx, rec, "")
	o.logger.Info("event reconciled",
		Field{"eventId", rec.EventID},
		Field{"agreementId", agreement.ID},
		Field{"eventType", ev.EventType.String()},
		Field{"lifecycleStatus", string(agreement.LifecycleStatus)},
	)
	return outcome
}

func (o *Orchestrator) updateAgreement(ctx context.Context, agreementID string, update *AgreementUpdate) error {
	opCtx, cancel := context.WithTimeout(ctx, o.storeTimeout)
	defer cancel()
	start := o.now()
	err := o.agreements.UpdateAgreement(opCtx, agreementID, update)
	o.metrics.RecordStorageOperation("update_agreement", time.Since(start), err)
	return err
}

// notify fans the outcome out to the dashboard sink. Fire and forget: errors
// and panics in the sink are swallowed.
func (o *Orchestrator) notify(ctx context.Context, outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Warn("notifier panicked", Field{"panic", r})
		}
	}()
	opCtx, cancel := context.WithTimeout(ctx, o.storeTimeout)
	defer cancel()
	if err := o.notifier.Notify(opCtx, outcome); err != nil {
		o.logger.Debug("notifier failed", Field{"error", err})
	}
}
