package esignsync

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"strings"
	"time"
)

// CaptureResult reports where one artifact landed.
type CaptureResult struct {
	URL         string
	StoragePath string
}

// Capture decodes terminal-event document payloads and persists them to
// durable object storage, writing the locator back onto both the agreement
// and the originating webhook event. Failures are isolated: they are returned
// for reporting but never roll back the lifecycle update already applied.
type Capture struct {
	artifacts  ArtifactStore
	events     EventStore
	agreements AgreementStore
	logger     Logger
	metrics    Metrics
	now        func() time.Time
}

// NewCapture creates an artifact capture pipeline.
func NewCapture(artifacts ArtifactStore, events EventStore, agreements AgreementStore, logger Logger, metrics Metrics) *Capture {
	if logger == nil {
		logger = &NoopLogger{}
	}
	if metrics == nil {
		metrics = &NoopMetrics{}
	}
	return &Capture{
		artifacts:  artifacts,
		events:     events,
		agreements: agreements,
		logger:     logger,
		metrics:    metrics,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// CaptureDocument stores one document for agreementID and links the locator to
// both records. eventID may be empty (virtual record), in which case only the
// agreement is linked.
func (c *Capture) CaptureDocument(ctx context.Context, doc Document, agreementID, eventID string) (*CaptureResult, error) {
	data, err := DecodeDocumentContent(doc.Content)
	if err != nil {
		c.metrics.RecordArtifactCapture(false, 0)
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}

	storagePath := c.storagePath(agreementID, doc.Name)
	url, err := c.artifacts.Put(ctx, storagePath, data, "application/pdf")
	if err != nil {
		c.metrics.RecordArtifactCapture(false, len(data))
		return nil, fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	}
	c.metrics.RecordArtifactCapture(true, len(data))

	if upd := c.linkAgreement(ctx, agreementID, url, storagePath); upd != nil {
		c.logger.Warn("failed to link artifact to agreement",
			Field{"agreementId", agreementID},
			Field{"error", upd},
		)
	}
	if eventID != "" && c.events != nil {
		if err := c.events.SetEventArtifact(ctx, eventID, url, storagePath); err != nil {
			c.logger.Warn("failed to link artifact to event",
				Field{"eventId", eventID},
				Field{"error", err},
			)
		}
	}

	c.logger.Info("artifact captured",
		Field{"agreementId", agreementID},
		Field{"path", storagePath},
		Field{"bytes", len(data)},
	)
	return &CaptureResult{URL: url, StoragePath: storagePath}, nil
}

func (c *Capture) linkAgreement(ctx context.Context, agreementID, url, storagePath string) error {
	if c.agreements == nil || agreementID == "" {
		return nil
	}
	return c.agreements.UpdateAgreement(ctx, agreementID, &AgreementUpdate{
		SignedDocumentURL:  &url,
		SignedDocumentPath: &storagePath,
		UpdatedAt:          c.now(),
	})
}

// storagePath namespaces artifacts by agreement id and timestamp so repeated
// captures never collide.
func (c *Capture) storagePath(agreementID, name string) string {
	base := sanitizeFilename(name)
	if base == "" {
		base = "signed-document.pdf"
	}
	return path.Join("agreements", agreementID,
		fmt.Sprintf("%d-%s", c.now().UnixNano(), base))
}

// DecodeDocumentContent converts a document payload into raw bytes. Supported
// encodings: base64 with a data-URI prefix, plain base64 (standard or URL
// alphabet, padded or not), and raw binary passed through unchanged.
func DecodeDocumentContent(content string) ([]byte, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, ErrEmptyDocument
	}

	if strings.HasPrefix(trimmed, "data:") {
		idx := strings.Index(trimmed, "base64,")
		if idx < 0 {
			return nil, fmt.Errorf("data URI without base64 payload")
		}
		trimmed = trimmed[idx+len("base64,"):]
		data, err := base64.StdEncoding.DecodeString(trimmed)
		if err != nil {
			return nil, fmt.Errorf("decode data URI: %w", err)
		}
		return data, nil
	}

	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if data, err := enc.DecodeString(trimmed); err == nil {
			return data, nil
		}
	}

	// Not base64: treat the payload as raw binary.
	return []byte(content), nil
}

func sanitizeFilename(name string) string {
	name = path.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		return ""
	}
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
