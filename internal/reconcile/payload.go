package reconcile

import (
	"time"

	"github.com/concurhq/consent-exchange/internal/domain"
)

const (
	consentAckMessage = "Data processing has been stopped for this purpose."
	erasureAckMessage = "Data processing has been deleted."
)

// BuildAckPayload constructs the kind-specific ACK body from the source
// event. Timestamps are generated at attempt time, UTC.
func BuildAckPayload(kind domain.AckKind, event *domain.Event, now time.Time) map[string]any {
	ts := now.UTC().Format(time.RFC3339)

	switch kind {
	case domain.KindVerificationAck:
		payload := map[string]any{
			"dp_id":         event.DPID,
			"df_id":         event.DFID,
			"ack_timestamp": ts,
		}
		if reqID := event.Payload.String("request_id"); reqID != "" {
			payload["request_id"] = reqID
		}
		return payload

	case domain.KindErasureAck:
		deID, purposeID := event.Payload.FirstPurpose()
		return map[string]any{
			"dp_id":               event.DPID,
			"df_id":               event.DFID,
			"original_event_type": event.EventType,
			"ack_status":          "HALTED",
			"ack_timestamp":       ts,
			"message":             erasureAckMessage,
			"de_id":               deID,
			"purpose_id":          purposeID,
		}

	default: // domain.KindConsentAck
		deID, purposeID := event.Payload.FirstPurpose()
		return map[string]any{
			"dp_id":               event.DPID,
			"df_id":               event.DFID,
			"original_event_type": event.EventType,
			"ack_status":          "HALTED",
			"ack_timestamp":       ts,
			"message":             consentAckMessage,
			"de_id":               deID,
			"purpose_id":          purposeID,
		}
	}
}
