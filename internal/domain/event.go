package domain

import (
	"encoding/json"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Consent lifecycle event types exchanged with the CMP. Peers may send
// types outside this set; those are stored but create no ACK obligation.
const (
	EventConsentGranted      = "consent_granted"
	EventConsentWithdrawn    = "consent_withdrawn"
	EventConsentExpired      = "consent_expired"
	EventDataErasureRequest  = "data_erasure_request"
	EventVerificationRequest = "verification_request"
)

// Event is an immutable record of a consent lifecycle transition as
// received on the webhook ingress. EventID is the peer-assigned natural
// key; persistence is idempotent on it.
type Event struct {
	EventID    string    `bson:"event_id" json:"event_id"`
	EventType  string    `bson:"event_type" json:"event"`
	DFID       string    `bson:"df_id" json:"df_id,omitempty"`
	DPID       string    `bson:"dp_id" json:"dp_id,omitempty"`
	Payload    Payload   `bson:"payload" json:"payload"`
	ReceivedAt time.Time `bson:"received_at" json:"received_at"`
}

// Payload is the free-form, event-type-defined body of an event.
type Payload map[string]any

// String returns the string value under key, or "" when absent or not a
// string.
func (p Payload) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// FirstPurpose extracts the (de_id, purpose_id) pair used in ACK
// payloads: flat payload fields when present, otherwise the first entry
// of a purposes array.
func (p Payload) FirstPurpose() (deID, purposeID string) {
	deID = p.String("de_id")
	purposeID = p.String("purpose_id")
	if deID != "" || purposeID != "" {
		return deID, purposeID
	}

	// Arrays and documents inside an any value come back from the BSON
	// decoder as primitive.A / primitive.M, from the JSON decoder as
	// []any / map[string]any.
	var purposes []any
	switch v := p["purposes"].(type) {
	case []any:
		purposes = v
	case primitive.A:
		purposes = v
	default:
		return "", ""
	}
	if len(purposes) == 0 {
		return "", ""
	}

	var first map[string]any
	switch m := purposes[0].(type) {
	case map[string]any:
		first = m
	case primitive.M:
		first = m
	case primitive.D:
		first = m.Map()
	default:
		return "", ""
	}
	deID, _ = first["de_id"].(string)
	purposeID, _ = first["purpose_id"].(string)
	return deID, purposeID
}

// incomingEvent mirrors the ingress wire format, where the principal
// identifiers live inside the payload.
type incomingEvent struct {
	EventID   string  `json:"event_id"`
	EventType string  `json:"event"`
	Payload   Payload `json:"payload"`
}

// ParseEvent decodes an ingress body into an Event. It validates
// structure only (valid JSON, event_id and event present); the signature
// is checked before parsing, on the raw bytes.
func ParseEvent(body []byte, now time.Time) (*Event, error) {
	var in incomingEvent
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, err
	}
	if in.EventID == "" {
		return nil, ErrMissingEventID
	}
	if in.EventType == "" {
		return nil, ErrMissingEventType
	}
	if in.Payload == nil {
		in.Payload = Payload{}
	}

	return &Event{
		EventID:    in.EventID,
		EventType:  in.EventType,
		DFID:       in.Payload.String("df_id"),
		DPID:       in.Payload.String("dp_id"),
		Payload:    in.Payload,
		ReceivedAt: now.UTC(),
	}, nil
}

// AckKindsFor returns the ACK obligations implied by an event type.
// Unknown and extension types imply none.
func AckKindsFor(eventType string) []AckKind {
	switch eventType {
	case EventConsentGranted:
		return []AckKind{KindConsentAck, KindVerificationAck}
	case EventConsentWithdrawn, EventConsentExpired:
		return []AckKind{KindConsentAck}
	case EventDataErasureRequest:
		return []AckKind{KindErasureAck}
	default:
		return nil
	}
}
