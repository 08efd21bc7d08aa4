// Package memory provides an in-memory implementation of the esignsync
// storage interfaces. This implementation is primarily intended for testing
// and development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mihaimyh/esignsync/pkg/esignsync"
)

// Storage implements esignsync.Storage using in-memory maps.
type Storage struct {
	mu         sync.RWMutex
	events     map[string]*esignsync.WebhookEvent
	agreements map[string]*esignsync.Agreement
}

// New creates a new in-memory storage adapter.
func New() *Storage {
	return &Storage{
		events:     make(map[string]*esignsync.WebhookEvent),
		agreements: make(map[string]*esignsync.Agreement),
	}
}

// InsertEvent implements esignsync.EventStore.
func (s *Storage) InsertEvent(ctx context.Context, event *esignsync.WebhookEvent) (string, error) {
	if event == nil {
		return "", fmt.Errorf("invalid event")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *event
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	s.events[stored.ID] = &stored
	return stored.ID, nil
}

// MarkEventProcessed implements esignsync.EventStore.
func (s *Storage) MarkEventProcessed(ctx context.Context, eventID, processingError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[eventID]
	if !ok {
		return esignsync.ErrEventNotFound
	}
	ev.Processed = true
	ev.ProcessingError = processingError
	return nil
}

// SetEventArtifact implements esignsync.EventStore.
func (s *Storage) SetEventArtifact(ctx context.Context, eventID, url, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[eventID]
	if !ok {
		return esignsync.ErrEventNotFound
	}
	ev.SignedDocumentURL = url
	ev.SignedDocumentPath = path
	return nil
}

// GetAgreementByReference implements esignsync.AgreementStore.
func (s *Storage) GetAgreementByReference(ctx context.Context, reference string) (*esignsync.Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.agreements {
		if strings.EqualFold(a.ExternalReference, reference) {
			return cloneAgreement(a), nil
		}
	}
	return nil, esignsync.ErrAgreementNotFound
}

// GetAgreementByLegacyReference implements esignsync.AgreementStore.
func (s *Storage) GetAgreementByLegacyReference(ctx context.Context, reference string) (*esignsync.Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.agreements {
		if a.LegacyReference != "" && strings.EqualFold(a.LegacyReference, reference) {
			return cloneAgreement(a), nil
		}
	}
	return nil, esignsync.ErrAgreementNotFound
}

// SearchAgreementsByReferencePrefix implements esignsync.AgreementStore.
func (s *Storage) SearchAgreementsByReferencePrefix(ctx context.Context, prefix string) ([]*esignsync.Agreement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix = strings.ToLower(prefix)
	var matches []*esignsync.Agreement
	for _, a := range s.agreements {
		if strings.HasPrefix(strings.ToLower(a.ExternalReference), prefix) {
			matches = append(matches, cloneAgreement(a))
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	return matches, nil
}

// UpdateAgreement implements esignsync.AgreementStore.
func (s *Storage) UpdateAgreement(ctx context.Context, agreementID string, update *esignsync.AgreementUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agreements[agreementID]
	if !ok {
		return esignsync.ErrAgreementNotFound
	}
	update.Apply(a)
	return nil
}

// PutAgreement seeds an agreement (test/dev helper).
func (s *Storage) PutAgreement(a *esignsync.Agreement) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := cloneAgreement(a)
	s.agreements[cp.ID] = cp
}

// GetAgreement returns a copy of the agreement by id (test/dev helper).
func (s *Storage) GetAgreement(id string) (*esignsync.Agreement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agreements[id]
	if !ok {
		return nil, false
	}
	return cloneAgreement(a), true
}

// GetEvent returns a copy of the event by id (test/dev helper).
func (s *Storage) GetEvent(id string) (*esignsync.WebhookEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[id]
	if !ok {
		return nil, false
	}
	cp := *ev
	return &cp, true
}

// Clear removes all data (useful for testing).
func (s *Storage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = make(map[string]*esignsync.WebhookEvent)
	s.agreements = make(map[string]*esignsync.Agreement)
}

func cloneAgreement(a *esignsync.Agreement) *esignsync.Agreement {
	cp := *a
	cp.Signatories = make([]esignsync.Signatory, len(a.Signatories))
	copy(cp.Signatories, a.Signatories)
	return &cp
}

// ArtifactStore implements esignsync.ArtifactStore over an in-memory map.
type ArtifactStore struct {
	mu      sync.RWMutex
	objects map[string][]byte

	// BaseURL is prepended to object paths to form locators.
	BaseURL string
}

// NewArtifactStore creates a new in-memory artifact store.
func NewArtifactStore(baseURL string) *ArtifactStore {
	if baseURL == "" {
		baseURL = "memory://artifacts"
	}
	return &ArtifactStore{
		objects: make(map[string][]byte),
		BaseURL: baseURL,
	}
}

// Put implements esignsync.ArtifactStore.
func (s *ArtifactStore) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty artifact path")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[path] = cp
	return s.BaseURL + "/" + path, nil
}

// Get returns a stored object (test helper).
func (s *ArtifactStore) Get(path string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[path]
	return data, ok
}
