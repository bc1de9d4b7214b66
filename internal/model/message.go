package model

import (
	"time"
)

// Message transport message model
type Message struct {
	ID            string     `gorm:"type:varchar(64);primaryKey;comment:transport message id" json:"id"`
	Kind          string     `gorm:"type:varchar(32);not null;index;comment:action kind or chat" json:"kind"`
	Direction     int8       `gorm:"type:tinyint;not null;index;comment:1-incoming 2-outgoing" json:"direction"`
	Status        int8       `gorm:"type:tinyint;not null;default:1;index;comment:1-new 2-waiting 3-processed 4-failed" json:"status"`
	Sender        string     `gorm:"type:varchar(128);not null;index;comment:sender address" json:"sender"`
	Recipient     string     `gorm:"type:varchar(128);not null;comment:recipient address" json:"recipient"`
	SentAt        time.Time  `gorm:"type:timestamp;not null;comment:sent time" json:"sent_at"`
	ReceivedAt    time.Time  `gorm:"type:timestamp;not null;index;comment:received time" json:"received_at"`
	ExpiresAt     time.Time  `gorm:"type:timestamp;not null;index;comment:transport expiration" json:"expires_at"`
	RetentionDays int        `gorm:"type:int;not null;default:7;comment:retention period in days" json:"retention_days"`
	Payload       []byte     `gorm:"type:blob;comment:raw payload" json:"-"`
	Attempts      int        `gorm:"type:int;not null;default:0;comment:processing attempts" json:"attempts"`
	NextRetryAt   *time.Time `gorm:"type:timestamp;index;comment:next retry time while waiting" json:"next_retry_at,omitempty"`
	FailReason    *string    `gorm:"type:varchar(500);comment:waiting or failure reason" json:"fail_reason,omitempty"`
	ProcessedAt   *time.Time `gorm:"type:timestamp;comment:processing completion time" json:"processed_at,omitempty"`
	CreatedAt     time.Time  `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;comment:create time" json:"created_at"`
	UpdatedAt     time.Time  `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP;comment:update time" json:"updated_at"`
}

// TableName set name
func (Message) TableName() string {
	return "messages"
}

// MessageStatus message processing status const
const (
	MessageStatusNew       = 1
	MessageStatusWaiting   = 2
	MessageStatusProcessed = 3
	MessageStatusFailed    = 4
)

// MessageDirection message direction const
const (
	DirectionIncoming = 1
	DirectionOutgoing = 2
)

// IsNew check message is new
func (m *Message) IsNew() bool {
	return m.Status == MessageStatusNew
}

// IsWaiting check message is waiting for a dependency
func (m *Message) IsWaiting() bool {
	return m.Status == MessageStatusWaiting
}

// IsProcessed check message is processed
func (m *Message) IsProcessed() bool {
	return m.Status == MessageStatusProcessed
}

// IsFailed check message is failed
func (m *Message) IsFailed() bool {
	return m.Status == MessageStatusFailed
}

// IsExpired check transport expiration has passed
func (m *Message) IsExpired() bool {
	return time.Now().After(m.ExpiresAt)
}

// IsTerminal check message is in a terminal status
func (m *Message) IsTerminal() bool {
	return m.IsProcessed() || m.IsFailed()
}

// CanRequeue check message can be reset to new by an operator
func (m *Message) CanRequeue() bool {
	return m.IsFailed()
}

// RetentionDeadline returns the time after which a processed message may be purged
func (m *Message) RetentionDeadline() time.Time {
	return m.ReceivedAt.Add(time.Duration(m.RetentionDays) * 24 * time.Hour)
}

// StatusName returns a human readable status
func (m *Message) StatusName() string {
	switch m.Status {
	case MessageStatusNew:
		return "NEW"
	case MessageStatusWaiting:
		return "WAITING"
	case MessageStatusProcessed:
		return "PROCESSED"
	case MessageStatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}
