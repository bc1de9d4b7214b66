package transport

import (
	"context"
	"time"
)

// Delivery is one signed message handed up by the network layer. The
// network has already verified the signature and resolved the sender; the
// engine only sees the authenticated envelope.
type Delivery struct {
	MessageID     string
	Sender        string
	Recipient     string
	Payload       []byte
	SentAt        time.Time
	ReceivedAt    time.Time
	ExpiresAt     time.Time
	RetentionDays int
}

// Inbox accepts deliveries from the network layer
type Inbox interface {
	Accept(ctx context.Context, d Delivery) error
}

// SubmitResult reports an accepted outbound submission
type SubmitResult struct {
	MessageID    string  `json:"message_id"`
	EstimatedFee float64 `json:"estimated_fee"`
}

// Submitter sends a signed payload to a recipient over the network layer
type Submitter interface {
	Submit(ctx context.Context, recipient string, payload []byte) (*SubmitResult, error)
}
