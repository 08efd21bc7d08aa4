package esignsync

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType is the numeric lifecycle code delivered by the e-signature provider.
type EventType int

const (
	// EventTypeRequestReceived signals the signature request was sent to all signers.
	EventTypeRequestReceived EventType = 1

	// EventTypeSignerCompleted signals a single signer finished signing.
	EventTypeSignerCompleted EventType = 2

	// EventTypeRequestCompleted signals all signers finished; the request is done.
	EventTypeRequestCompleted EventType = 3

	// EventTypeRequestRejected signals a signer declined the request.
	EventTypeRequestRejected EventType = 5
)

// Known reports whether the code drives a reconciliation transition.
// Unknown codes are still recorded but reconcile to a no-op.
func (t EventType) Known() bool {
	switch t {
	case EventTypeRequestReceived, EventTypeSignerCompleted,
		EventTypeRequestCompleted, EventTypeRequestRejected:
		return true
	}
	return false
}

// String returns the canonical name for the event code.
func (t EventType) String() string {
	switch t {
	case EventTypeRequestReceived:
		return "request-received"
	case EventTypeSignerCompleted:
		return "signer-completed"
	case EventTypeRequestCompleted:
		return "request-completed"
	case EventTypeRequestRejected:
		return "request-rejected"
	}
	return "unknown"
}

// LifecycleStatus is the coarse workflow state of an agreement.
type LifecycleStatus string

const (
	StatusCreated           LifecycleStatus = "created"
	StatusPendingActivation LifecycleStatus = "pending_activation"
	StatusActive            LifecycleStatus = "active"
	StatusRejected          LifecycleStatus = "rejected"
	StatusExpired           LifecycleStatus = "expired"
	StatusCancelled         LifecycleStatus = "cancelled"
)

// rank orders statuses along the forward-only path the engine walks:
// {created, pending_activation} -> {active, rejected}. Expired and cancelled
// are set by external processes and are treated as terminal here.
func (s LifecycleStatus) rank() int {
	switch s {
	case StatusCreated:
		return 0
	case StatusPendingActivation:
		return 1
	case StatusActive, StatusRejected, StatusExpired, StatusCancelled:
		return 2
	}
	return 0
}

// Terminal reports whether the reconciliation engine may still advance the status.
func (s LifecycleStatus) Terminal() bool {
	return s.rank() >= 2
}

// CanAdvanceTo reports whether moving to next would keep the lifecycle monotonic.
func (s LifecycleStatus) CanAdvanceTo(next LifecycleStatus) bool {
	return !s.Terminal() && next.rank() >= s.rank()
}

// SignatureStep identifies the fine-grained signing step.
type SignatureStep int

const (
	StepNone SignatureStep = iota
	StepSendForSignature
	StepSignedBySigner
	StepSigningComplete
	StepRejected
)

// SignatureStatus is the typed form of the legacy free-text signature label.
// It is serialized to the label only at the storage boundary via Label().
type SignatureStatus struct {
	Step SignatureStep

	// SignerName is set only for StepSignedBySigner.
	SignerName string
}

// Label renders the legacy storage representation, e.g. "signed_by_Jane_Doe".
func (s SignatureStatus) Label() string {
	switch s.Step {
	case StepSendForSignature:
		return "send_for_signature"
	case StepSignedBySigner:
		return "signed_by_" + strings.ReplaceAll(s.SignerName, " ", "_")
	case StepSigningComplete:
		return "signing_complete"
	case StepRejected:
		return "rejected"
	}
	return ""
}

// ParseSignatureLabel converts a stored label back into the typed form.
// Unrecognized labels parse to StepNone with the raw label discarded.
func ParseSignatureLabel(label string) SignatureStatus {
	switch {
	case label == "send_for_signature":
		return SignatureStatus{Step: StepSendForSignature}
	case label == "signing_complete":
		return SignatureStatus{Step: StepSigningComplete}
	case label == "rejected":
		return SignatureStatus{Step: StepRejected}
	case strings.HasPrefix(label, "signed_by_"):
		name := strings.ReplaceAll(strings.TrimPrefix(label, "signed_by_"), "_", " ")
		return SignatureStatus{Step: StepSignedBySigner, SignerName: name}
	}
	return SignatureStatus{}
}

// SignerStatus is the per-signatory completion state.
type SignerStatus string

const (
	SignerPending   SignerStatus = "pending"
	SignerCompleted SignerStatus = "completed"
)

// Signatory is one participant in the signing workflow.
// Within an agreement there is at most one entry per email.
type Signatory struct {
	Name      string       `json:"name"`
	Email     string       `json:"email"`
	Role      string       `json:"role"`
	Status    SignerStatus `json:"status"`
	SignedAt  *time.Time   `json:"signedAt,omitempty"`
	Reference string       `json:"reference,omitempty"`
}

// Agreement is the aggregate under reconciliation. It is created by an
// external process before any event arrives and mutated only through
// AgreementUpdate write-backs.
type Agreement struct {
	ID                string
	ExternalReference string

	// LegacyReference is a secondary correlation id kept for agreements
	// migrated from the previous signature provider.
	LegacyReference string

	LifecycleStatus LifecycleStatus
	SignatureStatus SignatureStatus
	Signatories     []Signatory

	SignedDocumentURL  string
	SignedDocumentPath string

	SignatureSentAt      *time.Time
	SignatureCompletedAt *time.Time
	UpdatedAt            time.Time
}

// Signatory returns the roster entry for email, or nil.
func (a *Agreement) Signatory(email string) *Signatory {
	for i := range a.Signatories {
		if a.Signatories[i].Email == email {
			return &a.Signatories[i]
		}
	}
	return nil
}

// WebhookEvent is the persisted form of one received notification.
// Immutable after insert except the processed/processingError pair and the
// artifact linkage fields, each written once per processing attempt.
type WebhookEvent struct {
	ID                string
	ExternalReference string
	EventType         EventType
	RawPayload        json.RawMessage
	ReceivedAt        time.Time

	Processed       bool
	ProcessingError string

	SignedDocumentURL  string
	SignedDocumentPath string
}

// Document is an attached artifact payload as delivered on a terminal event.
// Content may be raw bytes, base64, or base64 behind a data-URI prefix.
type Document struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// InboundEvent is the parsed provider notification handed to the orchestrator
// by the ingress layer.
type InboundEvent struct {
	ExternalReference string     `json:"externalReference"`
	EventType         EventType  `json:"eventType"`
	EventTime         time.Time  `json:"eventTime"`
	SignerName        string     `json:"signerName,omitempty"`
	SignerEmail       string     `json:"signerEmail,omitempty"`
	Subject           string     `json:"subject,omitempty"`
	Documents         []Document `json:"documents,omitempty"`

	// Raw is the original payload, persisted opaquely with the event.
	Raw json.RawMessage `json:"-"`
}
