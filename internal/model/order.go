package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Order order model
type Order struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement;comment:order id" json:"id"`
	Hash      string    `gorm:"type:varchar(64);uniqueIndex;not null;comment:order hash" json:"hash"`
	OrderNo   string    `gorm:"type:varchar(32);uniqueIndex;not null;comment:order number" json:"order_no"`
	Buyer     string    `gorm:"type:varchar(128);not null;index;comment:buyer address" json:"buyer"`
	Seller    string    `gorm:"type:varchar(128);not null;index;comment:seller address" json:"seller"`
	Status    string    `gorm:"type:varchar(16);not null;default:PROCESSING;index;comment:aggregate status" json:"status"`
	CreatedAt time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;index;comment:create time" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP;comment:update time" json:"updated_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

// TableName set name
func (Order) TableName() string {
	return "orders"
}

// OrderStatus aggregate order status const
const (
	OrderStatusProcessing = "PROCESSING"
	OrderStatusComplete   = "COMPLETE"
	OrderStatusRejected   = "REJECTED"
	OrderStatusCancelled  = "CANCELLED"
	OrderStatusRefunded   = "REFUNDED"
)

// IsProcessing check order is still in flight
func (o *Order) IsProcessing() bool {
	return o.Status == OrderStatusProcessing
}

// OrderItem fulfillment tracking for one listing within an order
type OrderItem struct {
	ID          uint64        `gorm:"primaryKey;autoIncrement;comment:order item id" json:"id"`
	OrderID     uint64        `gorm:"type:bigint unsigned;not null;index;comment:owning order" json:"order_id"`
	ListingHash string        `gorm:"type:varchar(64);not null;index;comment:listing content address" json:"listing_hash"`
	Bidder      string        `gorm:"type:varchar(128);not null;index;comment:bidder address" json:"bidder"`
	Status      string        `gorm:"type:varchar(16);not null;default:BIDDED;index;comment:derived lifecycle status" json:"status"`
	History     ActionHistory `gorm:"type:json;comment:accepted action history, append-only, authoritative" json:"history"`
	Version     uint64        `gorm:"type:bigint unsigned;not null;default:0;comment:optimistic lock version" json:"version"`
	CreatedAt   time.Time     `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;comment:create time" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP;comment:update time" json:"updated_at"`
}

// TableName set name
func (OrderItem) TableName() string {
	return "order_items"
}

// OrderItemStatus derived order item status const
const (
	ItemStatusBidded         = "BIDDED"
	ItemStatusAwaitingEscrow = "AWAITING_ESCROW"
	ItemStatusEscrowLocked   = "ESCROW_LOCKED"
	ItemStatusShipping       = "SHIPPING"
	ItemStatusComplete       = "COMPLETE"
	ItemStatusRejected       = "REJECTED"
	ItemStatusCancelled      = "CANCELLED"
	ItemStatusRefunded       = "REFUNDED"
)

// IsTerminalItemStatus check the status admits no further transitions
func IsTerminalItemStatus(status string) bool {
	switch status {
	case ItemStatusComplete, ItemStatusRejected, ItemStatusCancelled, ItemStatusRefunded:
		return true
	}
	return false
}

// IsTerminal check item is in a terminal status
func (oi *OrderItem) IsTerminal() bool {
	return IsTerminalItemStatus(oi.Status)
}

// HasAction check the item history already holds the given message id
func (oi *OrderItem) HasAction(messageID string) bool {
	for _, e := range oi.History {
		if e.MessageID == messageID {
			return true
		}
	}
	return false
}

// ActionEntry one accepted action in an order item history
type ActionEntry struct {
	MessageID string `json:"message_id"`
	Kind      string `json:"kind"`
}

// ActionHistory custom json history type
type ActionHistory []ActionEntry

// Value implement driver.Valuer interface
func (h ActionHistory) Value() (driver.Value, error) {
	if h == nil {
		return nil, nil
	}
	return json.Marshal(h)
}

// Scan implement sql.Scanner interface
func (h *ActionHistory) Scan(value interface{}) error {
	if value == nil {
		*h = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("cannot scan %T into ActionHistory", value)
	}

	return json.Unmarshal(bytes, h)
}

// Kinds returns the ordered action kinds of the history
func (h ActionHistory) Kinds() []string {
	kinds := make([]string, len(h))
	for i, e := range h {
		kinds[i] = e.Kind
	}
	return kinds
}
