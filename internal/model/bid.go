package model

import (
	"time"
)

// Bid bid-chain action model
//
// Bids form a causal chain per buyer/listing pair: a root BID followed by
// at most one terminal resolution (ACCEPT, REJECT or CANCEL). Escrow
// progress after ACCEPT is tracked on the owning OrderItem history.
type Bid struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement;comment:bid id" json:"id"`
	MessageID   string    `gorm:"type:varchar(64);uniqueIndex;not null;comment:message that produced this bid" json:"message_id"`
	Kind        string    `gorm:"type:varchar(16);not null;index;comment:BID/ACCEPT/REJECT/CANCEL" json:"kind"`
	Bidder      string    `gorm:"type:varchar(128);not null;index:idx_bids_listing_bidder;comment:bidder address" json:"bidder"`
	ListingHash string    `gorm:"type:varchar(64);not null;index:idx_bids_listing_bidder;comment:listing content address" json:"listing_hash"`
	ParentBidID *uint64   `gorm:"type:bigint unsigned;index;comment:root BID for resolutions" json:"parent_bid_id,omitempty"`
	OrderItemID uint64    `gorm:"type:bigint unsigned;not null;index;comment:owning order item" json:"order_item_id"`
	CreatedAt   time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;index;comment:create time" json:"created_at"`

	Parent *Bid `gorm:"foreignKey:ParentBidID" json:"parent,omitempty"`
}

// TableName set name
func (Bid) TableName() string {
	return "bids"
}

// BidKind bid action kind const
const (
	BidKindBid    = "BID"
	BidKindAccept = "ACCEPT"
	BidKindReject = "REJECT"
	BidKindCancel = "CANCEL"
)

// IsRoot check this is the opening BID of a chain
func (b *Bid) IsRoot() bool {
	return b.Kind == BidKindBid
}

// IsResolution check this bid resolves a root BID
func (b *Bid) IsResolution() bool {
	return b.Kind == BidKindAccept || b.Kind == BidKindReject || b.Kind == BidKindCancel
}

// IsTerminal check this bid closes its chain to further bidding
func (b *Bid) IsTerminal() bool {
	return b.Kind == BidKindReject || b.Kind == BidKindCancel
}
