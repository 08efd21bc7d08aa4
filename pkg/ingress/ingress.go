// Package ingress is the HTTP boundary for provider webhook notifications.
// It parses the payload into an esignsync.InboundEvent, runs the
// orchestrator, and always acknowledges receipt: the provider is never asked
// to redeliver because of a fixable internal failure.
package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mihaimyh/esignsync/pkg/esignsync"
)

// maxBodyBytes bounds the webhook payload; signed documents arrive base64
// encoded, so the ceiling is generous.
const maxBodyBytes = 32 * 1024 * 1024

// Processor is the orchestration entry point the handler drives.
type Processor interface {
	Process(ctx context.Context, ev *esignsync.InboundEvent) esignsync.Outcome
}

// Handler serves the webhook endpoint.
type Handler struct {
	processor Processor
	logger    esignsync.Logger
	router    chi.Router
}

// NewHandler creates the ingress handler.
func NewHandler(processor Processor, logger esignsync.Logger) *Handler {
	if logger == nil {
		logger = &esignsync.NoopLogger{}
	}
	h := &Handler{
		processor: processor,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Recovery(logger))
	r.Post("/webhooks/esign", h.handleWebhook)
	r.Get("/health", h.handleHealth)
	h.router = r
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// handleWebhook processes POST /webhooks/esign. Malformed bodies get a 400;
// everything parseable is acknowledged with 200 no matter how processing
// went, with the structured outcome as the response body.
func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errPayloadTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}

	ev, err := parsePayload(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	outcome := h.processor.Process(r.Context(), ev)
	h.logger.Info("webhook acknowledged",
		esignsync.Field{Key: "eventType", Value: ev.EventType.String()},
		esignsync.Field{Key: "success", Value: outcome.Success},
		esignsync.Field{Key: "requestId", Value: RequestIDFromContext(r.Context())},
	)
	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// payload is the provider wire shape. Field aliases cover the snake_case
// variant some provider configurations emit.
type payload struct {
	ExternalReference string        `json:"externalReference"`
	ExternalRefSnake  string        `json:"external_reference"`
	RequestID         string        `json:"requestId"`
	EventType         int           `json:"eventType"`
	EventTypeSnake    int           `json:"event_type"`
	EventTime         string        `json:"eventTime"`
	EventTimeSnake    string        `json:"event_time"`
	SignerName        string        `json:"signerName"`
	SignerNameSnake   string        `json:"signer_name"`
	SignerEmail       string        `json:"signerEmail"`
	SignerEmailSnake  string        `json:"signer_email"`
	Subject           string        `json:"subject"`
	Documents         []docPayload  `json:"documents"`
}

type docPayload struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

func parsePayload(body []byte) (*esignsync.InboundEvent, error) {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, errors.New("malformed JSON payload")
	}

	ev := &esignsync.InboundEvent{
		ExternalReference: firstNonEmpty(p.ExternalReference, p.ExternalRefSnake, p.RequestID),
		EventType:         esignsync.EventType(firstNonZero(p.EventType, p.EventTypeSnake)),
		SignerName:        firstNonEmpty(p.SignerName, p.SignerNameSnake),
		SignerEmail:       firstNonEmpty(p.SignerEmail, p.SignerEmailSnake),
		Subject:           p.Subject,
		Raw:               json.RawMessage(body),
	}
	if ts := firstNonEmpty(p.EventTime, p.EventTimeSnake); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			ev.EventTime = t
		}
	}
	for _, d := range p.Documents {
		ev.Documents = append(ev.Documents, esignsync.Document{Name: d.Name, Content: d.Content})
	}
	return ev, nil
}

var errPayloadTooLarge = errors.New("payload too large")

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errPayloadTooLarge
		}
		return nil, errors.New("failed to read request body")
	}
	if len(body) == 0 {
		return nil, errors.New("empty request body")
	}
	return body, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
