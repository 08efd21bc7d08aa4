package esignsync

import (
	"strings"
	"time"
)

// ReconcileResult is the write-back computed for one (agreement, event) pair.
type ReconcileResult struct {
	// Update is nil when the event reconciled to a no-op.
	Update *AgreementUpdate

	// Documents are the artifact payloads to capture after the lifecycle
	// write-back succeeds.
	Documents []Document

	// Transitioned is true when the lifecycle status changed.
	Transitioned bool

	NoOp bool
}

// EngineConfig tunes the heuristic parts of reconciliation.
type EngineConfig struct {
	// LandlordKeywords classify a signer as "landlord" when any keyword
	// appears in the signer's email or name. Best-effort, not authoritative.
	LandlordKeywords []string

	// DefaultRole is assigned when classification is ambiguous.
	DefaultRole string
}

// DefaultEngineConfig returns an EngineConfig with sensible defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		LandlordKeywords: []string{"landlord", "owner", "lessor", "agency", "lettings"},
		DefaultRole:      "tenant",
	}
}

// Engine is the pure event-to-state reconciliation function. It never touches
// storage; the only impurity is timestamp generation, injectable for tests.
type Engine struct {
	config EngineConfig
	now    func() time.Time
}

// NewEngine creates an engine with config, filling zero fields with defaults.
func NewEngine(config EngineConfig) *Engine {
	if len(config.LandlordKeywords) == 0 {
		config.LandlordKeywords = DefaultEngineConfig().LandlordKeywords
	}
	if config.DefaultRole == "" {
		config.DefaultRole = DefaultEngineConfig().DefaultRole
	}
	return &Engine{
		config: config,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile computes the next agreement state for one event. Transitions are
// monotonic: once the lifecycle is terminal only roster and artifact data may
// still change, so replaying or reordering deliveries converges.
func (e *Engine) Reconcile(agreement *Agreement, ev *InboundEvent) ReconcileResult {
	now := e.now()

	switch ev.EventType {
	case EventTypeRequestReceived:
		if agreement.LifecycleStatus.Terminal() {
			return ReconcileResult{NoOp: true}
		}
		status := StatusPendingActivation
		sig := SignatureStatus{Step: StepSendForSignature}
		sentAt := eventTime(ev, now)
		return ReconcileResult{
			Update: &AgreementUpdate{
				LifecycleStatus: &status,
				SignatureStatus: &sig,
				SignatureSentAt: &sentAt,
				UpdatedAt:       now,
			},
			Transitioned: agreement.LifecycleStatus != status,
		}

	case EventTypeSignerCompleted:
		name := e.signerName(ev)
		signedAt := eventTime(ev, now)
		roster := mergeSignatory(agreement.Signatories, Signatory{
			Name:     name,
			Email:    ev.SignerEmail,
			Role:     e.classifyRole(ev),
			Status:   SignerCompleted,
			SignedAt: &signedAt,
		})

		update := &AgreementUpdate{
			Signatories: roster,
			UpdatedAt:   now,
		}
		if !agreement.LifecycleStatus.Terminal() {
			// Hold pending_activation until request-completed arrives;
			// never regress an already advanced lifecycle.
			status := StatusPendingActivation
			if agreement.LifecycleStatus.rank() < status.rank() {
				update.LifecycleStatus = &status
			}
			sig := SignatureStatus{Step: StepSignedBySigner, SignerName: name}
			update.SignatureStatus = &sig
		}
		return ReconcileResult{Update: update}

	case EventTypeRequestCompleted:
		update := &AgreementUpdate{UpdatedAt: now}
		transitioned := false
		if !agreement.LifecycleStatus.Terminal() {
			status := StatusActive
			sig := SignatureStatus{Step: StepSigningComplete}
			completedAt := eventTime(ev, now)
			update.LifecycleStatus = &status
			update.SignatureStatus = &sig
			update.SignatureCompletedAt = &completedAt
			transitioned = true
		}
		if update.Empty() && len(ev.Documents) == 0 {
			return ReconcileResult{NoOp: true}
		}
		return ReconcileResult{
			Update:       update,
			Documents:    nonEmptyDocuments(ev.Documents),
			Transitioned: transitioned,
		}

	case EventTypeRequestRejected:
		if agreement.LifecycleStatus.Terminal() {
			return ReconcileResult{NoOp: true}
		}
		status := StatusRejected
		sig := SignatureStatus{Step: StepRejected}
		return ReconcileResult{
			Update: &AgreementUpdate{
				LifecycleStatus: &status,
				SignatureStatus: &sig,
				UpdatedAt:       now,
			},
			Transitioned: true,
		}
	}

	// Unrecognized codes are preserved on the event record but drive nothing.
	return ReconcileResult{NoOp: true}
}

// signerName prefers the display name and falls back to the email local-part.
func (e *Engine) signerName(ev *InboundEvent) string {
	name := strings.TrimSpace(ev.SignerName)
	if name != "" {
		return name
	}
	local := ev.SignerEmail
	if at := strings.IndexByte(local, '@'); at >= 0 {
		local = local[:at]
	}
	local = strings.ReplaceAll(local, ".", " ")
	local = strings.ReplaceAll(local, "_", " ")
	return strings.TrimSpace(local)
}

// classifyRole is a keyword heuristic over the signer's email and name.
func (e *Engine) classifyRole(ev *InboundEvent) string {
	haystack := strings.ToLower(ev.SignerEmail + " " + ev.SignerName)
	for _, kw := range e.config.LandlordKeywords {
		if strings.Contains(haystack, kw) {
			return "landlord"
		}
	}
	return e.config.DefaultRole
}

// mergeSignatory upserts incoming into the roster keyed by email, preserving
// first-seen order and never dropping previously recorded fields.
func mergeSignatory(roster []Signatory, incoming Signatory) []Signatory {
	merged := make([]Signatory, len(roster))
	copy(merged, roster)

	for i := range merged {
		if merged[i].Email != incoming.Email {
			continue
		}
		if incoming.Name != "" {
			merged[i].Name = incoming.Name
		}
		if incoming.Role != "" {
			merged[i].Role = incoming.Role
		}
		if incoming.Status != "" {
			merged[i].Status = incoming.Status
		}
		if incoming.SignedAt != nil {
			merged[i].SignedAt = incoming.SignedAt
		}
		if incoming.Reference != "" {
			merged[i].Reference = incoming.Reference
		}
		return merged
	}
	return append(merged, incoming)
}

func eventTime(ev *InboundEvent, fallback time.Time) time.Time {
	if !ev.EventTime.IsZero() {
		return ev.EventTime.UTC()
	}
	return fallback
}

func nonEmptyDocuments(docs []Document) []Document {
	kept := docs[:0:0]
	for _, d := range docs {
		if strings.TrimSpace(d.Content) != "" {
			kept = append(kept, d)
		}
	}
	return kept
}
