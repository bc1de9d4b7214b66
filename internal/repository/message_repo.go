package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"peermarket/internal/model"
)

// RecordResult outcome of recording an inbound message
type RecordResult int

const (
	// RecordAccepted the message was stored and is new
	RecordAccepted RecordResult = iota
	// RecordDuplicate the message id already exists; nothing was mutated
	RecordDuplicate
)

// MessageRepository message store interface
type MessageRepository interface {
	// Record inserts the message keyed by id. A duplicate id returns
	// RecordDuplicate without mutating anything, which is what makes
	// transport re-delivery safe.
	Record(ctx context.Context, msg *model.Message) (RecordResult, error)

	// Get message by id, nil when absent
	GetByID(ctx context.Context, id string) (*model.Message, error)

	// Mark message processed
	MarkProcessed(ctx context.Context, id string) error

	// Mark message waiting for a dependency with its retry bookkeeping
	MarkWaiting(ctx context.Context, id string, reason string, attempts int, nextRetryAt time.Time) error

	// Mark message terminally failed
	MarkFailed(ctx context.Context, id string, reason string) error

	// Reset a FAILED message to NEW (operator requeue)
	ResetToNew(ctx context.Context, id string) error

	// PendingWaiting lists WAITING messages whose retry time has elapsed,
	// oldest receipt first
	PendingWaiting(ctx context.Context, before time.Time, limit int) ([]*model.Message, error)

	// FailExpired fails WAITING messages whose transport expiration passed
	FailExpired(ctx context.Context, now time.Time) (int64, error)

	// ListByStatus pages messages in a given status, newest receipt first
	ListByStatus(ctx context.Context, status int8, page, pageSize int) ([]*model.Message, int64, error)

	// CountByStatus returns message counts keyed by status
	CountByStatus(ctx context.Context) (map[string]int64, error)

	// PurgeProcessed deletes PROCESSED messages older than their retention
	PurgeProcessed(ctx context.Context, now time.Time) (int64, error)
}

// messageRepository message store implementation
type messageRepository struct {
	db *gorm.DB
}

// NewMessageRepository creates a message repository
func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

// Record inserts a new message, reporting duplicates instead of failing
func (r *messageRepository) Record(ctx context.Context, msg *model.Message) (RecordResult, error) {
	err := r.db.WithContext(ctx).Create(msg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return RecordDuplicate, nil
		}
		return RecordAccepted, err
	}
	return RecordAccepted, nil
}

// GetByID gets a message by id
func (r *messageRepository) GetByID(ctx context.Context, id string) (*model.Message, error) {
	var msg model.Message
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&msg).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &msg, nil
}

// MarkProcessed marks a message processed
func (r *messageRepository) MarkProcessed(ctx context.Context, id string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        model.MessageStatusProcessed,
			"processed_at":  &now,
			"next_retry_at": nil,
			"fail_reason":   nil,
		}).Error
}

// MarkWaiting marks a message waiting with its retry schedule
func (r *messageRepository) MarkWaiting(ctx context.Context, id string, reason string, attempts int, nextRetryAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        model.MessageStatusWaiting,
			"attempts":      attempts,
			"next_retry_at": &nextRetryAt,
			"fail_reason":   &reason,
		}).Error
}

// MarkFailed marks a message terminally failed
func (r *messageRepository) MarkFailed(ctx context.Context, id string, reason string) error {
	return r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":        model.MessageStatusFailed,
			"next_retry_at": nil,
			"fail_reason":   &reason,
		}).Error
}

// ResetToNew resets a FAILED message to NEW for operator reprocessing
func (r *messageRepository) ResetToNew(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("id = ? AND status = ?", id, model.MessageStatusFailed).
		Updates(map[string]interface{}{
			"status":        model.MessageStatusNew,
			"attempts":      0,
			"next_retry_at": nil,
			"fail_reason":   nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return errors.New("message is not in failed status")
	}
	return nil
}

// PendingWaiting lists retry-due waiting messages, oldest receipt first
func (r *messageRepository) PendingWaiting(ctx context.Context, before time.Time, limit int) ([]*model.Message, error) {
	var msgs []*model.Message

	err := r.db.WithContext(ctx).
		Where("status = ?", model.MessageStatusWaiting).
		Where("next_retry_at <= ?", before).
		Order("received_at ASC").
		Limit(limit).
		Find(&msgs).Error

	return msgs, err
}

// FailExpired fails waiting messages whose transport expiration passed
func (r *messageRepository) FailExpired(ctx context.Context, now time.Time) (int64, error) {
	reason := "expired"
	result := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("status = ?", model.MessageStatusWaiting).
		Where("expires_at < ?", now).
		Updates(map[string]interface{}{
			"status":        model.MessageStatusFailed,
			"next_retry_at": nil,
			"fail_reason":   &reason,
		})
	return result.RowsAffected, result.Error
}

// ListByStatus pages messages in a given status
func (r *messageRepository) ListByStatus(ctx context.Context, status int8, page, pageSize int) ([]*model.Message, int64, error) {
	var msgs []*model.Message
	var total int64

	offset := (page - 1) * pageSize

	db := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("status = ?", status)

	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := db.Offset(offset).
		Limit(pageSize).
		Order("received_at DESC").
		Find(&msgs).Error

	return msgs, total, err
}

// CountByStatus returns message counts keyed by readable status
func (r *messageRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status int8
		Count  int64
	}
	var rows []row

	err := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, rw := range rows {
		counts[(&model.Message{Status: rw.Status}).StatusName()] = rw.Count
	}
	return counts, nil
}

// PurgeProcessed deletes processed messages past their retention period
func (r *messageRepository) PurgeProcessed(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status = ?", model.MessageStatusProcessed).
		Where("DATE_ADD(received_at, INTERVAL retention_days DAY) < ?", now).
		Delete(&model.Message{})
	return result.RowsAffected, result.Error
}
