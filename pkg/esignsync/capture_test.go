package esignsync

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

// mockArtifactStore captures Put calls in memory.
type mockArtifactStore struct {
	putErr error
	paths  []string
	data   map[string][]byte
}

func (m *mockArtifactStore) Put(ctx context.Context, path string, data []byte, contentType string) (string, error) {
	if m.putErr != nil {
		return "", m.putErr
	}
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.paths = append(m.paths, path)
	m.data[path] = data
	return "https://artifacts.example.com/" + path, nil
}

// linkRecordingStore records artifact linkage write-backs.
type linkRecordingStore struct {
	mockAgreementStore
	mockEventStore

	linkedAgreementID string
	linkedUpdate      *AgreementUpdate
	linkedEventID     string
	updateErr         error
}

func (s *linkRecordingStore) UpdateAgreement(ctx context.Context, agreementID string, update *AgreementUpdate) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.linkedAgreementID = agreementID
	s.linkedUpdate = update
	return nil
}

func (s *linkRecordingStore) SetEventArtifact(ctx context.Context, eventID, url, path string) error {
	s.linkedEventID = eventID
	return nil
}

func TestCaptureDocument(t *testing.T) {
	artifacts := &mockArtifactStore{}
	store := &linkRecordingStore{}
	capture := NewCapture(artifacts, store, store, nil, nil)

	pdf := []byte("%PDF-1.4 test")
	doc := Document{Name: "lease.pdf", Content: base64.StdEncoding.EncodeToString(pdf)}

	result, err := capture.CaptureDocument(context.Background(), doc, "agr-1", "evt-1")
	if err != nil {
		t.Fatalf("CaptureDocument failed: %v", err)
	}
	if !strings.HasPrefix(result.StoragePath, "agreements/agr-1/") {
		t.Errorf("path = %q, want agreements/agr-1/ prefix", result.StoragePath)
	}
	if !strings.HasSuffix(result.StoragePath, "-lease.pdf") {
		t.Errorf("path = %q, want sanitized filename suffix", result.StoragePath)
	}
	if result.URL != "https://artifacts.example.com/"+result.StoragePath {
		t.Errorf("url = %q", result.URL)
	}
	if !bytes.Equal(artifacts.data[result.StoragePath], pdf) {
		t.Error("stored bytes differ from the decoded payload")
	}
	if store.linkedAgreementID != "agr-1" {
		t.Error("agreement was not linked to the artifact")
	}
	if store.linkedUpdate == nil || store.linkedUpdate.SignedDocumentURL == nil ||
		*store.linkedUpdate.SignedDocumentURL != result.URL {
		t.Errorf("agreement linkage update = %+v", store.linkedUpdate)
	}
	if store.linkedEventID != "evt-1" {
		t.Error("event was not linked to the artifact")
	}
}

func TestCaptureDocumentVirtualEventSkipsEventLink(t *testing.T) {
	artifacts := &mockArtifactStore{}
	store := &linkRecordingStore{}
	capture := NewCapture(artifacts, store, store, nil, nil)

	doc := Document{Content: base64.StdEncoding.EncodeToString([]byte("%PDF"))}
	if _, err := capture.CaptureDocument(context.Background(), doc, "agr-1", ""); err != nil {
		t.Fatalf("CaptureDocument failed: %v", err)
	}
	if store.linkedEventID != "" {
		t.Error("empty event id must skip the event linkage")
	}
	if store.linkedAgreementID != "agr-1" {
		t.Error("agreement linkage should still happen")
	}
}

func TestCaptureDocumentLinkFailureIsNotFatal(t *testing.T) {
	artifacts := &mockArtifactStore{}
	store := &linkRecordingStore{updateErr: errors.New("agreement row locked")}
	capture := NewCapture(artifacts, store, store, nil, nil)

	doc := Document{Content: base64.StdEncoding.EncodeToString([]byte("%PDF"))}
	result, err := capture.CaptureDocument(context.Background(), doc, "agr-1", "evt-1")
	if err != nil {
		t.Fatalf("linkage failure must not fail the capture: %v", err)
	}
	if result == nil || result.URL == "" {
		t.Errorf("result = %+v", result)
	}
}

func TestCaptureDocumentPutFailure(t *testing.T) {
	artifacts := &mockArtifactStore{putErr: errors.New("bucket unavailable")}
	capture := NewCapture(artifacts, nil, nil, nil, nil)

	doc := Document{Content: base64.StdEncoding.EncodeToString([]byte("%PDF"))}
	_, err := capture.CaptureDocument(context.Background(), doc, "agr-1", "evt-1")
	if !errors.Is(err, ErrCaptureFailed) {
		t.Errorf("err = %v, want ErrCaptureFailed", err)
	}
}

func TestCaptureDocumentEmptyContent(t *testing.T) {
	capture := NewCapture(&mockArtifactStore{}, nil, nil, nil, nil)

	_, err := capture.CaptureDocument(context.Background(), Document{Content: "  "}, "agr-1", "evt-1")
	if !errors.Is(err, ErrCaptureFailed) {
		t.Errorf("err = %v, want ErrCaptureFailed", err)
	}
}

func TestDecodeDocumentContent(t *testing.T) {
	pdf := []byte("%PDF-1.4 content")

	tests := []struct {
		name    string
		content string
		want    []byte
		wantErr bool
	}{
		{
			name:    "standard base64",
			content: base64.StdEncoding.EncodeToString(pdf),
			want:    pdf,
		},
		{
			name:    "unpadded base64",
			content: base64.RawStdEncoding.EncodeToString(pdf),
			want:    pdf,
		},
		{
			name:    "url safe base64",
			content: base64.URLEncoding.EncodeToString([]byte{0xfb, 0xff, 0x01}),
			want:    []byte{0xfb, 0xff, 0x01},
		},
		{
			name:    "data uri",
			content: "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(pdf),
			want:    pdf,
		},
		{
			name:    "data uri without base64 payload",
			content: "data:application/pdf,plain-text",
			wantErr: true,
		},
		{
			name:    "raw binary passthrough",
			content: "%PDF-1.4 raw bytes!",
			want:    []byte("%PDF-1.4 raw bytes!"),
		},
		{
			name:    "blank",
			content: "   ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeDocumentContent(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeDocumentContent failed: %v", err)
			}
			if !bytes.Equal(got, tt.want) {
				t.Errorf("decoded = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"lease.pdf", "lease.pdf"},
		{"signed agreement (final).pdf", "signed_agreement__final_.pdf"},
		{"../../etc/passwd", "passwd"},
		{"  ", ""},
		{"données.pdf", "donn_es.pdf"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
