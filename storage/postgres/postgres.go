// Package postgres provides a PostgreSQL implementation of the esignsync
// storage interfaces using pgx. The signatory roster is stored as JSONB;
// agreement updates are partial, last-write-wins per column.
//
// Expected schema:
//
//	CREATE TABLE webhook_events (
//	    id                   UUID PRIMARY KEY DEFAULT gen_random_uuid(),
//	    external_reference   TEXT NOT NULL,
//	    event_type           INT NOT NULL,
//	    raw_payload          JSONB,
//	    received_at          TIMESTAMPTZ NOT NULL,
//	    processed            BOOLEAN NOT NULL DEFAULT FALSE,
//	    processing_error     TEXT,
//	    signed_document_url  TEXT,
//	    signed_document_path TEXT
//	);
//
//	CREATE TABLE agreements (
//	    id                     UUID PRIMARY KEY,
//	    external_reference     TEXT,
//	    legacy_reference       TEXT,
//	    lifecycle_status       TEXT NOT NULL DEFAULT 'created',
//	    signature_status       TEXT,
//	    signatories            JSONB NOT NULL DEFAULT '[]',
//	    signed_document_url    TEXT,
//	    signed_document_path   TEXT,
//	    signature_sent_at      TIMESTAMPTZ,
//	    signature_completed_at TIMESTAMPTZ,
//	    updated_at             TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
//
//	CREATE TABLE artifacts (
//	    path         TEXT PRIMARY KEY,
//	    content      BYTEA NOT NULL,
//	    content_type TEXT,
//	    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
//	);
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mihaimyh/esignsync/pkg/esignsync"
)

// Storage implements esignsync.Storage using PostgreSQL.
type Storage struct {
	pool *pgxpool.Pool
}

// Config holds PostgreSQL storage configuration.
type Config struct {
	// ConnectionString is the PostgreSQL connection string.
	ConnectionString string

	// Pool configuration.
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL storage adapter.
func New(ctx context.Context, config Config) (*Storage, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Storage{pool: pool}, nil
}

// NewWithPool wraps an existing pool (shared with other services).
func NewWithPool(pool *pgxpool.Pool) *Storage {
	return &Storage{pool: pool}
}

// Pool exposes the underlying pool for collaborators sharing the database,
// such as the artifact store.
func (s *Storage) Pool() *pgxpool.Pool {
	return s.pool
}

// Close closes the connection pool.
func (s *Storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InsertEvent implements esignsync.EventStore.
func (s *Storage) InsertEvent(ctx context.Context, event *esignsync.WebhookEvent) (string, error) {
	if event == nil {
		return "", fmt.Errorf("invalid event")
	}

	var id string
	err := s.pool.QueryRow(ctx,
		`INSERT INTO webhook_events (external_reference, event_type, raw_payload, received_at, processed)
			VALUES ($1, $2, $3, $4, FALSE)
			RETURNING id`,
		event.ExternalReference, int(event.EventType), event.RawPayload, event.ReceivedAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to insert event: %w", err)
	}
	return id, nil
}

// MarkEventProcessed implements esignsync.EventStore.
func (s *Storage) MarkEventProcessed(ctx context.Context, eventID, processingError string) error {
	var errCol *string
	if processingError != "" {
		errCol = &processingError
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE webhook_events SET processed = TRUE, processing_error = $2 WHERE id = $1`,
		eventID, errCol,
	)
	if err != nil {
		return fmt.Errorf("failed to mark event processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return esignsync.ErrEventNotFound
	}
	return nil
}

// SetEventArtifact implements esignsync.EventStore.
func (s *Storage) SetEventArtifact(ctx context.Context, eventID, url, path string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE webhook_events SET signed_document_url = $2, signed_document_path = $3 WHERE id = $1`,
		eventID, url, path,
	)
	if err != nil {
		return fmt.Errorf("failed to set event artifact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return esignsync.ErrEventNotFound
	}
	return nil
}

const agreementColumns = `id::text, COALESCE(external_reference, ''), COALESCE(legacy_reference, ''),
	lifecycle_status, COALESCE(signature_status, ''), signatories,
	COALESCE(signed_document_url, ''), COALESCE(signed_document_path, ''),
	signature_sent_at, signature_completed_at, updated_at`

// GetAgreementByReference implements esignsync.AgreementStore. The reference
// column is compared as lowercased text so a typed-UUID column and a raw
// string reference never silently mismatch.
func (s *Storage) GetAgreementByReference(ctx context.Context, reference string) (*esignsync.Agreement, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+agreementColumns+` FROM agreements
			WHERE lower(external_reference::text) = lower($1)`,
		reference,
	)
	return scanAgreement(row)
}

// GetAgreementByLegacyReference implements esignsync.AgreementStore.
func (s *Storage) GetAgreementByLegacyReference(ctx context.Context, reference string) (*esignsync.Agreement, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+agreementColumns+` FROM agreements
			WHERE legacy_reference IS NOT NULL AND lower(legacy_reference::text) = lower($1)`,
		reference,
	)
	return scanAgreement(row)
}

// SearchAgreementsByReferencePrefix implements esignsync.AgreementStore.
func (s *Storage) SearchAgreementsByReferencePrefix(ctx context.Context, prefix string) ([]*esignsync.Agreement, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+agreementColumns+` FROM agreements
			WHERE lower(external_reference::text) LIKE lower($1) || '%'
			ORDER BY id`,
		prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search agreements: %w", err)
	}
	defer rows.Close()

	var matches []*esignsync.Agreement
	for rows.Next() {
		a, err := scanAgreement(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, a)
	}
	return matches, rows.Err()
}

// UpdateAgreement implements esignsync.AgreementStore with a partial SET
// clause: only non-nil update fields touch their columns.
func (s *Storage) UpdateAgreement(ctx context.Context, agreementID string, update *esignsync.AgreementUpdate) error {
	if update == nil {
		return nil
	}

	sets := []string{"updated_at = $2"}
	args := []interface{}{agreementID, updatedAtOrNow(update)}

	add := func(col string, val interface{}) {
		args = append(args, val)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if update.LifecycleStatus != nil {
		add("lifecycle_status", string(*update.LifecycleStatus))
	}
	if update.SignatureStatus != nil {
		add("signature_status", update.SignatureStatus.Label())
	}
	if update.Signatories != nil {
		roster, err := json.Marshal(update.Signatories)
		if err != nil {
			return fmt.Errorf("failed to encode signatories: %w", err)
		}
		add("signatories", roster)
	}
	if update.SignedDocumentURL != nil {
		add("signed_document_url", *update.SignedDocumentURL)
	}
	if update.SignedDocumentPath != nil {
		add("signed_document_path", *update.SignedDocumentPath)
	}
	if update.SignatureSentAt != nil {
		add("signature_sent_at", *update.SignatureSentAt)
	}
	if update.SignatureCompletedAt != nil {
		add("signature_completed_at", *update.SignatureCompletedAt)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE agreements SET `+strings.Join(sets, ", ")+` WHERE id = $1`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to update agreement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return esignsync.ErrAgreementNotFound
	}
	return nil
}

func updatedAtOrNow(update *esignsync.AgreementUpdate) time.Time {
	if !update.UpdatedAt.IsZero() {
		return update.UpdatedAt
	}
	return time.Now().UTC()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgreement(row rowScanner) (*esignsync.Agreement, error) {
	var (
		a           esignsync.Agreement
		sigLabel    string
		roster      []byte
		sentAt      *time.Time
		completedAt *time.Time
	)
	err := row.Scan(
		&a.ID,
		&a.ExternalReference,
		&a.LegacyReference,
		&a.LifecycleStatus,
		&sigLabel,
		&roster,
		&a.SignedDocumentURL,
		&a.SignedDocumentPath,
		&sentAt,
		&completedAt,
		&a.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, esignsync.ErrAgreementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan agreement: %w", err)
	}

	a.SignatureStatus = esignsync.ParseSignatureLabel(sigLabel)
	a.SignatureSentAt = sentAt
	a.SignatureCompletedAt = completedAt
	if len(roster) > 0 {
		if err := json.Unmarshal(roster, &a.Signatories); err != nil {
			return nil, fmt.Errorf("failed to decode signatories: %w", err)
		}
	}
	return &a, nil
}

// ArtifactStore implements esignsync.ArtifactStore over the artifacts table.
type ArtifactStore struct {
	pool *pgxpool.Pool

	// PublicBaseURL is prepended to object paths to form retrievable
	// locators, e.g. "https://files.example.com".
	PublicBaseURL string
}

// NewArtifactStore creates an artifact store sharing the storage pool.
func NewArtifactStore(pool *pgxpool.Pool, publicBaseURL string) *ArtifactStore {
	return &ArtifactStore{pool: pool, PublicBaseURL: strings.TrimRight(publicBaseURL, "/")}
}

// Put implements esignsync.ArtifactStore.
func (s *ArtifactStore) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("empty artifact path")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO artifacts (path, content, content_type, created_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (path) DO UPDATE SET
				content = EXCLUDED.content,
				content_type = EXCLUDED.content_type`,
		path, data, contentType,
	)
	if err != nil {
		return "", fmt.Errorf("failed to store artifact: %w", err)
	}
	return s.PublicBaseURL + "/" + path, nil
}
