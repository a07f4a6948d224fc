package reconcile

import (
	"testing"
	"time"

	"github.com/concurhq/consent-exchange/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestBuildAckPayload_ConsentAck(t *testing.T) {
	event := &domain.Event{
		EventID:   "e1",
		EventType: domain.EventConsentExpired,
		DPID:      "dp1",
		DFID:      "df1",
		Payload:   domain.Payload{"dp_id": "dp1", "df_id": "df1", "de_id": "de1", "purpose_id": "p1"},
	}
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	payload := BuildAckPayload(domain.KindConsentAck, event, now)

	assert.Equal(t, map[string]any{
		"dp_id":               "dp1",
		"df_id":               "df1",
		"original_event_type": "consent_expired",
		"ack_status":          "HALTED",
		"ack_timestamp":       "2026-08-28T12:00:00Z",
		"message":             "Data processing has been stopped for this purpose.",
		"de_id":               "de1",
		"purpose_id":          "p1",
	}, payload)
}

func TestBuildAckPayload_PurposesArrayFallback(t *testing.T) {
	event := &domain.Event{
		EventID:   "e1",
		EventType: domain.EventConsentWithdrawn,
		DPID:      "dp1",
		DFID:      "df1",
		Payload: domain.Payload{
			"purposes": []any{
				map[string]any{"de_id": "de-a", "purpose_id": "p-a"},
				map[string]any{"de_id": "de-b", "purpose_id": "p-b"},
			},
		},
	}

	payload := BuildAckPayload(domain.KindConsentAck, event, time.Now())
	assert.Equal(t, "de-a", payload["de_id"])
	assert.Equal(t, "p-a", payload["purpose_id"])
}

func TestBuildAckPayload_VerificationAck(t *testing.T) {
	event := &domain.Event{
		EventID:   "e1",
		EventType: domain.EventConsentGranted,
		DPID:      "dp1",
		DFID:      "df1",
		Payload:   domain.Payload{"request_id": "req-9"},
	}
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	payload := BuildAckPayload(domain.KindVerificationAck, event, now)

	assert.Equal(t, map[string]any{
		"dp_id":         "dp1",
		"df_id":         "df1",
		"ack_timestamp": "2026-08-28T12:00:00Z",
		"request_id":    "req-9",
	}, payload)
}

func TestBuildAckPayload_ErasureAck(t *testing.T) {
	event := &domain.Event{
		EventID:   "e1",
		EventType: domain.EventDataErasureRequest,
		DPID:      "dp1",
		DFID:      "df1",
		Payload:   domain.Payload{"de_id": "de1", "purpose_id": "p1"},
	}

	payload := BuildAckPayload(domain.KindErasureAck, event, time.Now())
	assert.Equal(t, "data_erasure_request", payload["original_event_type"])
	assert.Equal(t, "Data processing has been deleted.", payload["message"])
}
