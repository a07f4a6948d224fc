package domain

import (
	"errors"
	"time"
)

// AckKind selects the peer URL and payload shape for an outbound ACK.
type AckKind string

const (
	KindConsentAck      AckKind = "consent-ack"
	KindVerificationAck AckKind = "verification-ack"
	KindErasureAck      AckKind = "data-erasure-ack"
)

// AllKinds lists every ACK kind the reconciler scans for.
var AllKinds = []AckKind{KindConsentAck, KindVerificationAck, KindErasureAck}

// Delivery record statuses. "failed" is soft-terminal: a failed record
// is re-eligible on the next reconciler tick.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// DeliveryRecord is the persisted state machine for one outbound ACK
// obligation. It references its Event one-way via EventID.
type DeliveryRecord struct {
	RecordID  string    `bson:"record_id" json:"record_id"`
	EventID   string    `bson:"event_id" json:"event_id"`
	Kind      AckKind   `bson:"kind" json:"kind"`
	Status    string    `bson:"status" json:"status"`
	Attempts  int       `bson:"attempts" json:"attempts"`
	LastError string    `bson:"last_error,omitempty" json:"last_error,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
	SentAt    time.Time `bson:"sent_at,omitempty" json:"sent_at,omitempty"`
}

// AttemptOutcome is the result of one wire attempt, as recorded against
// a delivery record.
type AttemptOutcome struct {
	Success bool
	Error   string
}

var (
	ErrMissingEventID   = errors.New("event_id is required")
	ErrMissingEventType = errors.New("event is required")
)
