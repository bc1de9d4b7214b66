package model

import (
	"time"
)

// ListingItem content-addressed listing model
type ListingItem struct {
	ID         uint64     `gorm:"primaryKey;autoIncrement;comment:listing id" json:"id"`
	Hash       string     `gorm:"type:varchar(64);uniqueIndex;not null;comment:content address of the listing payload" json:"hash"`
	Seller     string     `gorm:"type:varchar(128);not null;index;comment:seller address" json:"seller"`
	Market     string     `gorm:"type:varchar(64);not null;index;comment:market identifier" json:"market"`
	TemplateID *uint64    `gorm:"type:bigint unsigned;comment:local listing template when this node is the seller" json:"template_id,omitempty"`
	Payload    []byte     `gorm:"type:blob;comment:raw listing payload" json:"-"`
	ReceivedAt time.Time  `gorm:"type:timestamp;not null;comment:first seen time" json:"received_at"`
	LastSeenAt *time.Time `gorm:"type:timestamp;comment:last rebroadcast time" json:"last_seen_at,omitempty"`
	CreatedAt  time.Time  `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;comment:create time" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP;comment:update time" json:"updated_at"`
}

// TableName set name
func (ListingItem) TableName() string {
	return "listing_items"
}

// IsLocal check whether this node published the listing
func (l *ListingItem) IsLocal() bool {
	return l.TemplateID != nil
}
