package domain

import (
	"errors"
	"testing"
	"time"
)

func TestParseEvent(t *testing.T) {
	body := []byte(`{"event_id":"e1","event":"consent_granted","payload":{"dp_id":"dp1","df_id":"df1","de_id":"de1"}}`)
	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	event, err := ParseEvent(body, now)
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}

	if event.EventID != "e1" {
		t.Errorf("event_id: got %q", event.EventID)
	}
	if event.EventType != EventConsentGranted {
		t.Errorf("event type: got %q", event.EventType)
	}
	if event.DPID != "dp1" || event.DFID != "df1" {
		t.Errorf("principal ids: got dp=%q df=%q", event.DPID, event.DFID)
	}
	if !event.ReceivedAt.Equal(now) {
		t.Errorf("received_at: got %v", event.ReceivedAt)
	}
}

func TestParseEvent_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want error
	}{
		{"missing event_id", `{"event":"consent_granted"}`, ErrMissingEventID},
		{"missing event type", `{"event_id":"e1"}`, ErrMissingEventType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEvent([]byte(tt.body), time.Now())
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := ParseEvent([]byte(`{"event_id":`), time.Now()); err == nil {
		t.Error("malformed JSON should fail")
	}
}

func TestAckKindsFor(t *testing.T) {
	tests := []struct {
		eventType string
		want      []AckKind
	}{
		{EventConsentGranted, []AckKind{KindConsentAck, KindVerificationAck}},
		{EventConsentWithdrawn, []AckKind{KindConsentAck}},
		{EventConsentExpired, []AckKind{KindConsentAck}},
		{EventDataErasureRequest, []AckKind{KindErasureAck}},
		{EventVerificationRequest, nil},
		{"some_extension_type", nil},
	}

	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			got := AckKindsFor(tt.eventType)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("kind %d: got %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPayload_FirstPurpose(t *testing.T) {
	flat := Payload{"de_id": "de1", "purpose_id": "p1"}
	if de, p := flat.FirstPurpose(); de != "de1" || p != "p1" {
		t.Errorf("flat: got (%q, %q)", de, p)
	}

	nested := Payload{"purposes": []any{
		map[string]any{"de_id": "de-a", "purpose_id": "p-a"},
		map[string]any{"de_id": "de-b", "purpose_id": "p-b"},
	}}
	if de, p := nested.FirstPurpose(); de != "de-a" || p != "p-a" {
		t.Errorf("nested: got (%q, %q)", de, p)
	}

	empty := Payload{}
	if de, p := empty.FirstPurpose(); de != "" || p != "" {
		t.Errorf("empty: got (%q, %q)", de, p)
	}
}
