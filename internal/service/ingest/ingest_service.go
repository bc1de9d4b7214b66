package ingest

import (
	"context"
	"time"

	"peermarket/internal/config"
	"peermarket/internal/engine"
	"peermarket/internal/model"
	"peermarket/internal/transport"
	"peermarket/pkg/log"
	"peermarket/pkg/utils"
)

const (
	// DefaultExpiry bounds how long an undeliverable dependency keeps a
	// message in retry when the sender did not set an expiration.
	DefaultExpiry = 14 * 24 * time.Hour

	// DefaultRetentionDays how long processed messages stay queryable
	DefaultRetentionDays = 30

	// MaxPayloadSize rejects grossly oversized payloads before they hit
	// the store.
	MaxPayloadSize = 1 << 20
)

// Service accepts authenticated deliveries from the network layer,
// normalizes them into stored messages and hands them to the scheduler.
// It implements transport.Inbox.
type Service struct {
	scheduler *engine.Scheduler
	node      config.NodeConfig
}

// NewService creates the ingest service
func NewService(scheduler *engine.Scheduler, node config.NodeConfig) *Service {
	return &Service{scheduler: scheduler, node: node}
}

// Accept validates a delivery and schedules it for processing
func (s *Service) Accept(ctx context.Context, d transport.Delivery) error {
	if d.MessageID == "" {
		return utils.NewError(utils.CodeInvalidParam, "message id is required")
	}
	if len(d.Payload) == 0 {
		return utils.NewError(utils.CodeInvalidParam, "payload is required")
	}
	if len(d.Payload) > MaxPayloadSize {
		return utils.NewError(utils.CodeInvalidParam, "payload too large")
	}

	now := time.Now()
	receivedAt := d.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = now
	}
	expiresAt := d.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = receivedAt.Add(DefaultExpiry)
	}
	retention := d.RetentionDays
	if retention <= 0 {
		retention = DefaultRetentionDays
	}

	direction := int8(model.DirectionIncoming)
	if d.Sender == s.node.Address {
		direction = model.DirectionOutgoing
	}

	msg := &model.Message{
		ID:            d.MessageID,
		Direction:     direction,
		Status:        model.MessageStatusNew,
		Sender:        d.Sender,
		Recipient:     d.Recipient,
		SentAt:        d.SentAt,
		ReceivedAt:    receivedAt,
		ExpiresAt:     expiresAt,
		RetentionDays: retention,
		Payload:       d.Payload,
	}

	if err := s.scheduler.Deliver(ctx, msg); err != nil {
		log.WithError(err).WithField("message_id", msg.ID).Error("Delivery intake failed")
		return utils.NewErrorWithErr(utils.CodeServiceError, "intake failed", err)
	}
	return nil
}
