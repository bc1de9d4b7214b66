package model

import (
	"time"
)

// ListingTemplate local seller draft behind a published listing. The hash
// is the content address of the rendered payload, the same one every peer
// derives, so the node can recognize its own LISTING_ADD when the message
// reconciles back through the engine.
type ListingTemplate struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement;comment:template id" json:"id"`
	Hash      string    `gorm:"type:varchar(64);uniqueIndex;not null;comment:content address of the rendered payload" json:"hash"`
	Payload   []byte    `gorm:"type:blob;comment:rendered listing payload" json:"-"`
	CreatedAt time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;comment:create time" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP;comment:update time" json:"updated_at"`
}

// TableName set name
func (ListingTemplate) TableName() string {
	return "listing_templates"
}
