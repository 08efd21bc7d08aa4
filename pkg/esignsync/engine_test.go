package esignsync

import (
	"testing"
	"time"
)

func newTestEngine() *Engine {
	e := NewEngine(DefaultEngineConfig())
	e.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return e
}

func TestReconcileRequestReceived(t *testing.T) {
	engine := newTestEngine()
	agreement := &Agreement{ID: "agr-1", LifecycleStatus: StatusCreated}
	eventTime := time.Date(2026, 3, 1, 11, 30, 0, 0, time.UTC)

	result := engine.Reconcile(agreement, &InboundEvent{
		EventType: EventTypeRequestReceived,
		EventTime: eventTime,
	})

	if result.NoOp {
		t.Fatal("expected a state update, got no-op")
	}
	if !result.Transitioned {
		t.Error("expected a lifecycle transition")
	}
	if result.Update.LifecycleStatus == nil || *result.Update.LifecycleStatus != StatusPendingActivation {
		t.Errorf("lifecycle = %v, want pending_activation", result.Update.LifecycleStatus)
	}
	if result.Update.SignatureStatus == nil || result.Update.SignatureStatus.Step != StepSendForSignature {
		t.Errorf("signature status = %v, want send_for_signature", result.Update.SignatureStatus)
	}
	if result.Update.SignatureSentAt == nil || !result.Update.SignatureSentAt.Equal(eventTime) {
		t.Errorf("sentAt = %v, want event time %v", result.Update.SignatureSentAt, eventTime)
	}
}

func TestReconcileRequestReceivedOnTerminalAgreement(t *testing.T) {
	engine := newTestEngine()
	for _, status := range []LifecycleStatus{StatusActive, StatusRejected, StatusExpired, StatusCancelled} {
		agreement := &Agreement{ID: "agr-1", LifecycleStatus: status}
		result := engine.Reconcile(agreement, &InboundEvent{EventType: EventTypeRequestReceived})
		if !result.NoOp {
			t.Errorf("request-received on %q agreement should be a no-op", status)
		}
	}
}

func TestReconcileSignerCompleted(t *testing.T) {
	engine := newTestEngine()
	agreement := &Agreement{ID: "agr-1", LifecycleStatus: StatusPendingActivation}
	signedAt := time.Date(2026, 3, 1, 11, 45, 0, 0, time.UTC)

	result := engine.Reconcile(agreement, &InboundEvent{
		EventType:   EventTypeSignerCompleted,
		EventTime:   signedAt,
		SignerName:  "Jane Doe",
		SignerEmail: "jane@example.com",
	})

	if result.NoOp {
		t.Fatal("expected a state update, got no-op")
	}
	if result.Transitioned {
		t.Error("signer completion alone must not count as a lifecycle transition")
	}
	if result.Update.SignatureStatus == nil || result.Update.SignatureStatus.Label() != "signed_by_Jane_Doe" {
		t.Errorf("signature status = %v, want signed_by_Jane_Doe", result.Update.SignatureStatus)
	}
	if len(result.Update.Signatories) != 1 {
		t.Fatalf("roster size = %d, want 1", len(result.Update.Signatories))
	}
	signer := result.Update.Signatories[0]
	if signer.Email != "jane@example.com" || signer.Status != SignerCompleted {
		t.Errorf("unexpected signer entry %+v", signer)
	}
	if signer.SignedAt == nil || !signer.SignedAt.Equal(signedAt) {
		t.Errorf("signedAt = %v, want %v", signer.SignedAt, signedAt)
	}
}

func TestReconcileSignerCompletedFallsBackToEmailLocalPart(t *testing.T) {
	engine := newTestEngine()
	agreement := &Agreement{ID: "agr-1", LifecycleStatus: StatusPendingActivation}

	result := engine.Reconcile(agreement, &InboundEvent{
		EventType:   EventTypeSignerCompleted,
		SignerEmail: "jane.doe@example.com",
	})

	if result.Update.SignatureStatus.Label() != "signed_by_jane_doe" {
		t.Errorf("label = %q, want signed_by_jane_doe", result.Update.SignatureStatus.Label())
	}
	if result.Update.Signatories[0].Name != "jane doe" {
		t.Errorf("derived name = %q, want %q", result.Update.Signatories[0].Name, "jane doe")
	}
}

func TestReconcileSignerCompletedMergesRoster(t *testing.T) {
	engine := newTestEngine()
	agreement := &Agreement{
		ID:              "agr-1",
		LifecycleStatus: StatusPendingActivation,
		Signatories: []Signatory{
			{Name: "Jane Doe", Email: "jane@example.com", Role: "tenant", Status: SignerPending, Reference: "sig-1"},
			{Name: "John Roe", Email: "john@example.com", Role: "landlord", Status: SignerPending},
		},
	}

	result := engine.Reconcile(agreement, &InboundEvent{
		EventType:   EventTypeSignerCompleted,
		SignerEmail: "jane@example.com",
		SignerName:  "Jane Doe",
	})

	roster := result.Update.Signatories
	if len(roster) != 2 {
		t.Fatalf("roster size = %d, want 2", len(roster))
	}
	// First-seen order is preserved and existing fields survive the merge.
	if roster[0].Email != "jane@example.com" || roster[1].Email != "john@example.com" {
		t.Errorf("roster order changed: %+v", roster)
	}
	if roster[0].Status != SignerCompleted {
		t.Errorf("jane status = %q, want completed", roster[0].Status)
	}
	if roster[0].Reference != "sig-1" {
		t.Errorf("merge dropped reference field: %+v", roster[0])
	}
	if roster[1].Status != SignerPending {
		t.Errorf("john should remain pending: %+v", roster[1])
	}
	if len(agreement.Signatories) != 2 || agreement.Signatories[0].Status != SignerPending {
		t.Error("reconcile must not mutate the aggregate in place")
	}
}

func TestReconcileSignerCompletedIdempotent(t *testing.T) {
	engine := newTestEngine()
	agreement := &Agreement{ID: "agr-1", LifecycleStatus: StatusPendingActivation}
	ev := &InboundEvent{
		EventType:   EventTypeSignerCompleted,
		SignerEmail: "jane@example.com",
		SignerName:  "Jane Doe",
	}

	first := engine.Reconcile(agreement, ev)
	first.Update.Apply(agreement)
	second := engine.Reconcile(agreement, ev)
	second.Update.Apply(agreement)

	if len(agreement.Signatories) != 1 {
		t.Errorf("redelivery duplicated the signer: %+v", agreement.Signatories)
	}
}

func TestReconcileSignerCompletedOnTerminalAgreement(t *testing.T) {
	engine := newTestEngine()
	agreement := &Agreement{
		ID:              "agr-1",
		LifecycleStatus: StatusActive,
		SignatureStatus: SignatureStatus{Step: StepSigningComplete},
	}

	result := engine.Reconcile(agreement, &InboundEvent{
		EventType:   EventTypeSignerCompleted,
		SignerEmail: "late@example.com",
		SignerName:  "Late Signer",
	})

	// Roster data is still merged; lifecycle and signature status are left alone.
	if result.NoOp {
		t.Fatal("late signer completion should still update the roster")
	}
	if result.Update.LifecycleStatus != nil {
		t.Error("terminal lifecycle must not change")
	}
	if result.Update.SignatureStatus != nil {
		t.Error("terminal signature status must not change")
	}
	if len(result.Update.Signatories) != 1 || result.Update.Signatories[0].Email != "late@example.com" {
		t.Errorf("unexpected roster %+v", result.Update.Signatories)
	}
}

func TestReconcileRequestCompleted(t *testing.T) {
	engine := newTestEngine()
	agreement := &Agreement{ID: "agr-1", LifecycleStatus: StatusPendingActivation}
	completedAt := time.Date(2026, 3, 1, 11, 55, 0, 0, time.UTC)

	result := engine.Reconcile(agreement, &InboundEvent{
		EventType: EventTypeRequestCompleted,
		EventTime: completedAt,
		Documents: []Document{{Name: "lease.pdf", Content: "JVBERi0xLjQ="}},
	})

	if result.NoOp || !result.Transitioned {
		t.Fatalf("expected a transition, got %+v", result)
	}
	if *result.Update.LifecycleStatus != StatusActive {
		t.Errorf("lifecycle = %q, want active", *result.Update.LifecycleStatus)
	}
	if result.Update.SignatureStatus.Label() != "signing_complete" {
		t.Errorf("label = %q, want signing_complete", result.Update.SignatureStatus.Label())
	}
	if result.Update.SignatureCompletedAt == nil || !result.Update.SignatureCompletedAt.Equal(completedAt) {
		t.Errorf("completedAt = %v, want %v", result.Update.SignatureCompletedAt, completedAt)
	}
	if len(result.Documents) != 1 {
		t.Errorf("documents = %d, want 1", len(result.Documents))
	}
}

func TestReconcileRequestCompletedOnTerminalAgreement(t *testing.T) {
	engine := newTestEngine()
	agreement := &Agreement{ID: "agr-1", LifecycleStatus: StatusActive}

	// No documents: nothing left to do.
	result := engine.Reconcile(agreement, &InboundEvent{EventType: EventTypeRequestCompleted})
	if !result.NoOp {
		t.Error("redelivered completion without documents should be a no-op")
	}

	// Documents still get captured even though the lifecycle is settled.
	result = engine.Reconcile(agreement, &InboundEvent{
		EventType: EventTypeRequestCompleted,
		Documents: []Document{{Name: "lease.pdf", Content: "JVBERi0xLjQ="}},
	})
	if result.NoOp {
		t.Fatal("completion with documents should pass them through")
	}
	if result.Transitioned {
		t.Error("terminal agreement must not transition again")
	}
	if result.Update.LifecycleStatus != nil {
		t.Error("terminal lifecycle must not change")
	}
	if len(result.Documents) != 1 {
		t.Errorf("documents = %d, want 1", len(result.Documents))
	}
}

func TestReconcileRequestCompletedDropsBlankDocuments(t *testing.T) {
	engine := newTestEngine()
	agreement := &Agreement{ID: "agr-1", LifecycleStatus: StatusPendingActivation}

	result := engine.Reconcile(agreement, &InboundEvent{
		EventType: EventTypeRequestCompleted,
		Documents: []Document{
			{Name: "empty.pdf", Content: "   "},
			{Name: "lease.pdf", Content: "JVBERi0xLjQ="},
		},
	})

	if len(result.Documents) != 1 || result.Documents[0].Name != "lease.pdf" {
		t.Errorf("expected only the non-empty document, got %+v", result.Documents)
	}
}

func TestReconcileRequestRejected(t *testing.T) {
	engine := newTestEngine()
	agreement := &Agreement{ID: "agr-1", LifecycleStatus: StatusPendingActivation}

	result := engine.Reconcile(agreement, &InboundEvent{EventType: EventTypeRequestRejected})

	if result.NoOp || !result.Transitioned {
		t.Fatalf("expected a transition, got %+v", result)
	}
	if *result.Update.LifecycleStatus != StatusRejected {
		t.Errorf("lifecycle = %q, want rejected", *result.Update.LifecycleStatus)
	}
	if result.Update.SignatureStatus.Label() != "rejected" {
		t.Errorf("label = %q, want rejected", result.Update.SignatureStatus.Label())
	}

	// Out-of-order completion after rejection must not resurrect the agreement.
	result.Update.Apply(agreement)
	late := engine.Reconcile(agreement, &InboundEvent{EventType: EventTypeRequestCompleted})
	if !late.NoOp {
		t.Error("completion after rejection should be a no-op")
	}
}

func TestReconcileUnknownEventType(t *testing.T) {
	engine := newTestEngine()
	agreement := &Agreement{ID: "agr-1", LifecycleStatus: StatusCreated}

	result := engine.Reconcile(agreement, &InboundEvent{EventType: EventType(4)})
	if !result.NoOp {
		t.Error("unknown event codes must reconcile to a no-op")
	}
}

func TestClassifyRole(t *testing.T) {
	engine := newTestEngine()
	tests := []struct {
		email string
		name  string
		want  string
	}{
		{"jane@example.com", "Jane Doe", "tenant"},
		{"owner@lettings-agency.co.uk", "", "landlord"},
		{"jane@example.com", "Jane the Landlord", "landlord"},
		{"lessor@example.com", "", "landlord"},
		{"", "", "tenant"},
	}
	for _, tt := range tests {
		got := engine.classifyRole(&InboundEvent{SignerEmail: tt.email, SignerName: tt.name})
		if got != tt.want {
			t.Errorf("classifyRole(%q, %q) = %q, want %q", tt.email, tt.name, got, tt.want)
		}
	}
}

func TestReconcileUsesNowWhenEventTimeMissing(t *testing.T) {
	engine := newTestEngine()
	agreement := &Agreement{ID: "agr-1", LifecycleStatus: StatusCreated}

	result := engine.Reconcile(agreement, &InboundEvent{EventType: EventTypeRequestReceived})
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if result.Update.SignatureSentAt == nil || !result.Update.SignatureSentAt.Equal(want) {
		t.Errorf("sentAt = %v, want injected clock %v", result.Update.SignatureSentAt, want)
	}
}
