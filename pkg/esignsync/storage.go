package esignsync

import (
	"context"
	"time"
)

// EventStore persists webhook events.
// All methods use concrete types from this package to avoid import cycles.
type EventStore interface {
	// InsertEvent persists a new event and returns its assigned id.
	// The event's ID field may be empty; implementations assign one.
	InsertEvent(ctx context.Context, event *WebhookEvent) (string, error)

	// MarkEventProcessed sets the processed flag and, on failure, the
	// processing error. Written once per processing attempt.
	MarkEventProcessed(ctx context.Context, eventID string, processingError string) error

	// SetEventArtifact links a captured artifact to the originating event.
	SetEventArtifact(ctx context.Context, eventID, url, path string) error
}

// AgreementStore looks up and updates agreement aggregates.
type AgreementStore interface {
	// GetAgreementByReference matches the primary external-reference field.
	// The comparison is over normalized text, never a raw cross-type compare.
	// Returns ErrAgreementNotFound on miss.
	GetAgreementByReference(ctx context.Context, reference string) (*Agreement, error)

	// GetAgreementByLegacyReference matches the secondary reference field.
	// Returns ErrAgreementNotFound on miss.
	GetAgreementByLegacyReference(ctx context.Context, reference string) (*Agreement, error)

	// SearchAgreementsByReferencePrefix is the case-insensitive last-resort
	// lookup used only by callers that opt into fuzzy matching.
	SearchAgreementsByReferencePrefix(ctx context.Context, prefix string) ([]*Agreement, error)

	// UpdateAgreement applies the non-nil fields of update to the agreement.
	// Write semantics are last-write-wins per field.
	UpdateAgreement(ctx context.Context, agreementID string, update *AgreementUpdate) error
}

// Storage combines the two collections most backends serve together.
type Storage interface {
	EventStore
	AgreementStore
}

// ArtifactStore is durable object storage for signed documents.
type ArtifactStore interface {
	// Put writes data under path and returns a stable retrievable locator.
	Put(ctx context.Context, path string, data []byte, contentType string) (string, error)
}

// AgreementUpdate carries the write-back computed by the reconciliation
// engine. Nil pointer fields are left untouched by the store.
type AgreementUpdate struct {
	LifecycleStatus *LifecycleStatus
	SignatureStatus *SignatureStatus
	Signatories     []Signatory

	SignedDocumentURL  *string
	SignedDocumentPath *string

	SignatureSentAt      *time.Time
	SignatureCompletedAt *time.Time
	UpdatedAt            time.Time
}

// Empty reports whether the update would not change any field.
func (u *AgreementUpdate) Empty() bool {
	return u == nil ||
		(u.LifecycleStatus == nil &&
			u.SignatureStatus == nil &&
			u.Signatories == nil &&
			u.SignedDocumentURL == nil &&
			u.SignedDocumentPath == nil &&
			u.SignatureSentAt == nil &&
			u.SignatureCompletedAt == nil)
}

// Apply merges the update into the aggregate in place, mirroring the store
// write so callers can keep an in-memory copy consistent.
func (u *AgreementUpdate) Apply(a *Agreement) {
	if u == nil || a == nil {
		return
	}
	if u.LifecycleStatus != nil {
		a.LifecycleStatus = *u.LifecycleStatus
	}
	if u.SignatureStatus != nil {
		a.SignatureStatus = *u.SignatureStatus
	}
	if u.Signatories != nil {
		a.Signatories = u.Signatories
	}
	if u.SignedDocumentURL != nil {
		a.SignedDocumentURL = *u.SignedDocumentURL
	}
	if u.SignedDocumentPath != nil {
		a.SignedDocumentPath = *u.SignedDocumentPath
	}
	if u.SignatureSentAt != nil {
		a.SignatureSentAt = u.SignatureSentAt
	}
	if u.SignatureCompletedAt != nil {
		a.SignatureCompletedAt = u.SignatureCompletedAt
	}
	if !u.UpdatedAt.IsZero() {
		a.UpdatedAt = u.UpdatedAt
	}
}
