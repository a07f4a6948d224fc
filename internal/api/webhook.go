package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/concurhq/consent-exchange/internal/domain"
	"github.com/concurhq/consent-exchange/internal/signature"
)

const maxRequestBodySize = 1 << 20 // 1 MiB

// IngressStore is the slice of the event store the webhook ingress
// writes to.
type IngressStore interface {
	PutEvent(ctx context.Context, event *domain.Event) (*domain.Event, bool, error)
	OpenDelivery(ctx context.Context, eventID string, kind domain.AckKind) (*domain.DeliveryRecord, error)
}

// WebhookHandler authenticates, dedupes, and persists incoming consent
// events, opening one delivery obligation per implied ACK kind.
type WebhookHandler struct {
	store    IngressStore
	verifier *signature.Engine
	logger   *slog.Logger
}

func NewWebhookHandler(store IngressStore, verifier *signature.Engine, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		store:    store,
		verifier: verifier,
		logger:   logger.With("component", "webhook_ingress"),
	}
}

type acceptedResponse struct {
	Status    string `json:"status"`
	EventID   string `json:"event_id"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// Receive returns the handler for one ingress endpoint, bound to the
// named verification secret.
func (h *WebhookHandler) Receive(secretName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			respondError(w, http.StatusBadRequest, "failed to read request body")
			return
		}

		// The tag covers the raw body bytes, so the sender's key order
		// is what gets verified.
		tag := r.Header.Get(signature.IngressHeader)
		if !h.verifier.Verify(secretName, raw, tag) {
			h.logger.Warn("rejected webhook with bad signature",
				"secret", secretName,
				"remote_addr", r.RemoteAddr,
				"signature_present", tag != "",
			)
			respondError(w, http.StatusUnauthorized, "invalid signature")
			return
		}

		event, err := domain.ParseEvent(raw, time.Now())
		if err != nil {
			respondError(w, http.StatusBadRequest, parseErrorMessage(err))
			return
		}

		stored, created, err := h.store.PutEvent(ctx, event)
		if err != nil {
			h.logger.Error("storing event failed", "event_id", event.EventID, "error", err)
			respondRetryable(w)
			return
		}

		for _, kind := range domain.AckKindsFor(stored.EventType) {
			if _, err := h.store.OpenDelivery(ctx, stored.EventID, kind); err != nil {
				h.logger.Error("opening delivery failed",
					"event_id", stored.EventID,
					"kind", kind,
					"error", err,
				)
				respondRetryable(w)
				return
			}
		}

		h.logger.Info("event accepted",
			"event_id", stored.EventID,
			"event_type", stored.EventType,
			"duplicate", !created,
		)

		respondJSON(w, http.StatusAccepted, acceptedResponse{
			Status:    "accepted",
			EventID:   stored.EventID,
			Duplicate: !created,
		})
	}
}

// respondRetryable signals a storage-side failure the peer should
// resend; event persistence is idempotent so a resend is safe.
func respondRetryable(w http.ResponseWriter) {
	respondJSON(w, http.StatusInternalServerError, map[string]any{
		"error":     "storage failure",
		"retryable": true,
	})
}

func parseErrorMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrMissingEventID):
		return "event_id is required"
	case errors.Is(err, domain.ErrMissingEventType):
		return "event is required"
	default:
		return "malformed event body"
	}
}
