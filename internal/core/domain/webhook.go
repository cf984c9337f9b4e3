package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventOutcome is the processing result recorded for a provider event.
type EventOutcome string

const (
	EventOutcomeAccepted  EventOutcome = "ACCEPTED"
	EventOutcomeDuplicate EventOutcome = "DUPLICATE"
	EventOutcomeRejected  EventOutcome = "REJECTED"
)

// WebhookEvent is the permanent dedup record for one provider event key.
type WebhookEvent struct {
	ID                uuid.UUID    `json:"id"`
	Provider          string       `json:"provider"`
	EventKey          string       `json:"event_key"` // Unique
	EventType         string       `json:"event_type"`
	PayloadEncrypted  string       `json:"-"`
	SignatureVerified bool         `json:"signature_verified"`
	Outcome           EventOutcome `json:"outcome"`
	TransactionID     *uuid.UUID   `json:"transaction_id,omitempty"`
	FailureReason     *string      `json:"failure_reason,omitempty"`
	ReceivedAt        time.Time    `json:"received_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// BuildChargeEventKey is the dedup key for a charge confirmation.
func BuildChargeEventKey(reference string) string {
	return "charge:" + reference
}

// BuildRefundEventKey is the dedup key for a refund of a previously credited charge.
func BuildRefundEventKey(reference string) string {
	return "refund:" + reference
}
