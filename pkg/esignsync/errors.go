package esignsync

import "errors"

var (
	// ErrAgreementNotFound is returned when no lookup strategy matches
	ErrAgreementNotFound = errors.New("agreement not found")

	// ErrStorageUnavailable is returned when the backing store cannot be reached
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrCaptureFailed is returned when an artifact cannot be decoded or stored
	ErrCaptureFailed = errors.New("artifact capture failed")

	// ErrEmptyDocument is returned for a document payload with no content
	ErrEmptyDocument = errors.New("empty document payload")

	// ErrEventNotFound is returned when marking an event that was never recorded
	ErrEventNotFound = errors.New("webhook event not found")
)
