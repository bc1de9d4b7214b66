package message

import (
	"context"
	"strings"

	"peermarket/internal/dedup"
	"peermarket/internal/engine"
	"peermarket/internal/model"
	"peermarket/internal/repository"
	"peermarket/pkg/log"
	"peermarket/pkg/queue"
	"peermarket/pkg/utils"
)

// Service exposes the operator view of the message store: inspection,
// failure requeue and engine statistics.
type Service struct {
	messages  repository.MessageRepository
	orders    repository.OrderRepository
	listings  repository.ListingRepository
	deduper   dedup.Deduper
	scheduler *engine.Scheduler
}

// NewService creates the operator message service
func NewService(
	messages repository.MessageRepository,
	orders repository.OrderRepository,
	listings repository.ListingRepository,
	deduper dedup.Deduper,
	scheduler *engine.Scheduler,
) *Service {
	if deduper == nil {
		deduper = dedup.Noop{}
	}
	return &Service{
		messages:  messages,
		orders:    orders,
		listings:  listings,
		deduper:   deduper,
		scheduler: scheduler,
	}
}

// Stats engine statistics for the operator dashboard
type Stats struct {
	Messages map[string]int64 `json:"messages"`
	Orders   map[string]int64 `json:"orders"`
	Listings int64            `json:"listings"`
	Queues   []queue.Stats    `json:"queues,omitempty"`
}

// ParseStatus maps a status name to its stored value
func ParseStatus(name string) (int8, bool) {
	switch strings.ToUpper(name) {
	case "NEW":
		return model.MessageStatusNew, true
	case "WAITING":
		return model.MessageStatusWaiting, true
	case "PROCESSED":
		return model.MessageStatusProcessed, true
	case "FAILED":
		return model.MessageStatusFailed, true
	}
	return 0, false
}

// List returns a page of messages in the given status
func (s *Service) List(ctx context.Context, statusName string, page, pageSize int) ([]*model.Message, int64, error) {
	status, ok := ParseStatus(statusName)
	if !ok {
		return nil, 0, utils.NewError(utils.CodeInvalidParam, "unknown status "+statusName)
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 200 {
		pageSize = 20
	}
	msgs, total, err := s.messages.ListByStatus(ctx, status, page, pageSize)
	if err != nil {
		return nil, 0, utils.NewErrorWithErr(utils.CodeDatabaseError, "list messages failed", err)
	}
	return msgs, total, nil
}

// Get returns one message by id
func (s *Service) Get(ctx context.Context, id string) (*model.Message, error) {
	msg, err := s.messages.GetByID(ctx, id)
	if err != nil {
		return nil, utils.NewErrorWithErr(utils.CodeDatabaseError, "get message failed", err)
	}
	if msg == nil {
		return nil, utils.ErrMessageNotFound
	}
	return msg, nil
}

// Requeue resets a FAILED message to NEW and re-offers it to the engine.
// The dedup cache entry is dropped first so the retry is not short-circuited
// as a duplicate.
func (s *Service) Requeue(ctx context.Context, id string) (*model.Message, error) {
	msg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !msg.CanRequeue() {
		return nil, utils.NewError(utils.CodeMessageNotFailed, "message is "+msg.StatusName()+", only FAILED can be requeued")
	}

	if err := s.deduper.Remove(ctx, id); err != nil {
		log.WithError(err).WithField("message_id", id).Warn("Dedup cache remove failed")
	}
	if err := s.messages.ResetToNew(ctx, id); err != nil {
		return nil, utils.NewErrorWithErr(utils.CodeDatabaseError, "requeue failed", err)
	}

	msg.Status = model.MessageStatusNew
	msg.Attempts = 0
	if s.scheduler != nil {
		s.scheduler.Offer(msg)
	}
	log.WithField("message_id", id).Info("Message requeued")
	return msg, nil
}

// Stats aggregates store and queue counters
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	msgCounts, err := s.messages.CountByStatus(ctx)
	if err != nil {
		return nil, utils.NewErrorWithErr(utils.CodeDatabaseError, "message counts failed", err)
	}
	orderCounts, err := s.orders.CountByStatus(ctx)
	if err != nil {
		return nil, utils.NewErrorWithErr(utils.CodeDatabaseError, "order counts failed", err)
	}
	listings, err := s.listings.Count(ctx)
	if err != nil {
		return nil, utils.NewErrorWithErr(utils.CodeDatabaseError, "listing count failed", err)
	}

	stats := &Stats{
		Messages: msgCounts,
		Orders:   orderCounts,
		Listings: listings,
	}
	if s.scheduler != nil {
		stats.Queues = s.scheduler.Stats()
	}
	return stats, nil
}
