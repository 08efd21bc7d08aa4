// Package firestore provides a Firestore implementation of the esignsync
// storage interfaces, for deployments keeping agreements in a document store.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mihaimyh/esignsync/pkg/esignsync"
)

// Storage implements esignsync.Storage using Google Cloud Firestore.
type Storage struct {
	client               *firestore.Client
	eventsCollection     string
	agreementsCollection string
}

// Config holds Firestore storage configuration.
type Config struct {
	// EventsCollection is the collection for webhook events.
	// Default: "webhook_events"
	EventsCollection string

	// AgreementsCollection is the collection for agreements.
	// Default: "agreements"
	AgreementsCollection string
}

// New creates a new Firestore storage adapter.
func New(client *firestore.Client, config Config) (*Storage, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}
	if config.EventsCollection == "" {
		config.EventsCollection = "webhook_events"
	}
	if config.AgreementsCollection == "" {
		config.AgreementsCollection = "agreements"
	}
	return &Storage{
		client:               client,
		eventsCollection:     config.EventsCollection,
		agreementsCollection: config.AgreementsCollection,
	}, nil
}

// InsertEvent implements esignsync.EventStore.
func (s *Storage) InsertEvent(ctx context.Context, event *esignsync.WebhookEvent) (string, error) {
	if event == nil {
		return "", fmt.Errorf("invalid event")
	}

	doc := s.client.Collection(s.eventsCollection).NewDoc()
	data := map[string]interface{}{
		"externalReference": event.ExternalReference,
		"eventType":         int(event.EventType),
		"rawPayload":        string(event.RawPayload),
		"receivedAt":        event.ReceivedAt,
		"processed":         false,
	}
	if _, err := doc.Set(ctx, data); err != nil {
		return "", fmt.Errorf("failed to insert event: %w", err)
	}
	return doc.ID, nil
}

// MarkEventProcessed implements esignsync.EventStore.
func (s *Storage) MarkEventProcessed(ctx context.Context, eventID, processingError string) error {
	doc := s.client.Collection(s.eventsCollection).Doc(eventID)
	updates := []firestore.Update{
		{Path: "processed", Value: true},
		{Path: "processingError", Value: processingError},
	}
	if _, err := doc.Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return esignsync.ErrEventNotFound
		}
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	return nil
}

// SetEventArtifact implements esignsync.EventStore.
func (s *Storage) SetEventArtifact(ctx context.Context, eventID, url, path string) error {
	doc := s.client.Collection(s.eventsCollection).Doc(eventID)
	updates := []firestore.Update{
		{Path: "signedDocumentUrl", Value: url},
		{Path: "signedDocumentPath", Value: path},
	}
	if _, err := doc.Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return esignsync.ErrEventNotFound
		}
		return fmt.Errorf("failed to set event artifact: %w", err)
	}
	return nil
}

// GetAgreementByReference implements esignsync.AgreementStore. References are
// stored lowercased so the equality query is effectively case-insensitive.
func (s *Storage) GetAgreementByReference(ctx context.Context, reference string) (*esignsync.Agreement, error) {
	return s.queryOne(ctx, "externalReference", strings.ToLower(reference))
}

// GetAgreementByLegacyReference implements esignsync.AgreementStore.
func (s *Storage) GetAgreementByLegacyReference(ctx context.Context, reference string) (*esignsync.Agreement, error) {
	return s.queryOne(ctx, "legacyReference", strings.ToLower(reference))
}

// SearchAgreementsByReferencePrefix implements esignsync.AgreementStore using
// a range query over the lowercased reference field.
func (s *Storage) SearchAgreementsByReferencePrefix(ctx context.Context, prefix string) ([]*esignsync.Agreement, error) {
	prefix = strings.ToLower(prefix)
	query := s.client.Collection(s.agreementsCollection).
		Where("externalReference", ">=", prefix).
		Where("externalReference", "<", prefix+"\uf8ff").
		Limit(25)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var matches []*esignsync.Agreement
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to search agreements: %w", err)
		}
		matches = append(matches, agreementFromDoc(snap.Ref.ID, snap.Data()))
	}
	return matches, nil
}

// UpdateAgreement implements esignsync.AgreementStore.
func (s *Storage) UpdateAgreement(ctx context.Context, agreementID string, update *esignsync.AgreementUpdate) error {
	if update == nil {
		return nil
	}

	updates := []firestore.Update{
		{Path: "updatedAt", Value: updatedAtOrNow(update)},
	}
	if update.LifecycleStatus != nil {
		updates = append(updates, firestore.Update{Path: "lifecycleStatus", Value: string(*update.LifecycleStatus)})
	}
	if update.SignatureStatus != nil {
		updates = append(updates, firestore.Update{Path: "signatureStatus", Value: update.SignatureStatus.Label()})
	}
	if update.Signatories != nil {
		updates = append(updates, firestore.Update{Path: "signatories", Value: signatoriesToData(update.Signatories)})
	}
	if update.SignedDocumentURL != nil {
		updates = append(updates, firestore.Update{Path: "signedDocumentUrl", Value: *update.SignedDocumentURL})
	}
	if update.SignedDocumentPath != nil {
		updates = append(updates, firestore.Update{Path: "signedDocumentPath", Value: *update.SignedDocumentPath})
	}
	if update.SignatureSentAt != nil {
		updates = append(updates, firestore.Update{Path: "signatureSentAt", Value: *update.SignatureSentAt})
	}
	if update.SignatureCompletedAt != nil {
		updates = append(updates, firestore.Update{Path: "signatureCompletedAt", Value: *update.SignatureCompletedAt})
	}

	doc := s.client.Collection(s.agreementsCollection).Doc(agreementID)
	if _, err := doc.Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return esignsync.ErrAgreementNotFound
		}
		return fmt.Errorf("failed to update agreement: %w", err)
	}
	return nil
}

func (s *Storage) queryOne(ctx context.Context, field, value string) (*esignsync.Agreement, error) {
	iter := s.client.Collection(s.agreementsCollection).
		Where(field, "==", value).
		Limit(1).
		Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) || status.Code(err) == codes.NotFound {
		return nil, esignsync.ErrAgreementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query agreement: %w", err)
	}
	return agreementFromDoc(snap.Ref.ID, snap.Data()), nil
}

func agreementFromDoc(id string, data map[string]interface{}) *esignsync.Agreement {
	a := &esignsync.Agreement{
		ID:                 id,
		ExternalReference:  getString(data, "externalReference"),
		LegacyReference:    getString(data, "legacyReference"),
		LifecycleStatus:    esignsync.LifecycleStatus(getString(data, "lifecycleStatus")),
		SignatureStatus:    esignsync.ParseSignatureLabel(getString(data, "signatureStatus")),
		SignedDocumentURL:  getString(data, "signedDocumentUrl"),
		SignedDocumentPath: getString(data, "signedDocumentPath"),
		UpdatedAt:          getTime(data, "updatedAt"),
	}
	if t := getTime(data, "signatureSentAt"); !t.IsZero() {
		a.SignatureSentAt = &t
	}
	if t := getTime(data, "signatureCompletedAt"); !t.IsZero() {
		a.SignatureCompletedAt = &t
	}

	if raw, ok := data["signatories"].([]interface{}); ok {
		for _, item := range raw {
			entry, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			sig := esignsync.Signatory{
				Name:      getString(entry, "name"),
				Email:     getString(entry, "email"),
				Role:      getString(entry, "role"),
				Status:    esignsync.SignerStatus(getString(entry, "status")),
				Reference: getString(entry, "reference"),
			}
			if t := getTime(entry, "signedAt"); !t.IsZero() {
				sig.SignedAt = &t
			}
			a.Signatories = append(a.Signatories, sig)
		}
	}
	return a
}

func signatoriesToData(roster []esignsync.Signatory) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(roster))
	for _, sig := range roster {
		entry := map[string]interface{}{
			"name":      sig.Name,
			"email":     sig.Email,
			"role":      sig.Role,
			"status":    string(sig.Status),
			"reference": sig.Reference,
		}
		if sig.SignedAt != nil {
			entry["signedAt"] = *sig.SignedAt
		}
		out = append(out, entry)
	}
	return out
}

func updatedAtOrNow(update *esignsync.AgreementUpdate) time.Time {
	if !update.UpdatedAt.IsZero() {
		return update.UpdatedAt
	}
	return time.Now().UTC()
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

func getTime(data map[string]interface{}, key string) time.Time {
	if v, ok := data[key].(time.Time); ok {
		return v
	}
	return time.Time{}
}

// ArtifactStore implements esignsync.ArtifactStore over a Firestore
// collection. Documents above the Firestore value size limit (~1 MiB) are
// rejected by the server; larger artifacts belong in object storage.
type ArtifactStore struct {
	client     *firestore.Client
	collection string

	// PublicBaseURL is prepended to object paths to form locators.
	PublicBaseURL string
}

// NewArtifactStore creates an artifact store over collection
// (default: "artifacts").
func NewArtifactStore(client *firestore.Client, collection, publicBaseURL string) (*ArtifactStore, error) {
	if client == nil {
		return nil, fmt.Errorf("firestore client is required")
	}
	if collection == "" {
		collection = "artifacts"
	}
	return &ArtifactStore{
		client:        client,
		collection:    collection,
		PublicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

// Put implements esignsync.ArtifactStore. The path doubles as the document
// id, with slashes escaped since Firestore treats them as collection
// separators.
func (s *ArtifactStore) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty artifact path")
	}
	docID := strings.ReplaceAll(path, "/", "__")
	_, err := s.client.Collection(s.collection).Doc(docID).Set(ctx, map[string]interface{}{
		"path":        path,
		"content":     data,
		"contentType": contentType,
		"createdAt":   time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to store artifact: %w", err)
	}
	return s.PublicBaseURL + "/" + path, nil
}
