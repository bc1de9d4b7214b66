package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"peermarket/internal/model"
)

// BidRepository bid-chain repository interface
type BidRepository interface {
	// Create appends a bid to its chain; duplicate message ids are rejected
	// by the unique index and reported as ErrDuplicateAction
	Create(ctx context.Context, bid *model.Bid) error

	// Get bid by the message that produced it, nil when absent
	GetByMessageID(ctx context.Context, messageID string) (*model.Bid, error)

	// GetRootBid finds the opening BID for a buyer/listing pair, nil when absent
	GetRootBid(ctx context.Context, listingHash, bidder string) (*model.Bid, error)

	// GetResolution finds the resolution child of a root BID, nil when absent
	GetResolution(ctx context.Context, rootBidID uint64) (*model.Bid, error)

	// ListChain lists the full chain for a buyer/listing pair in causal order
	ListChain(ctx context.Context, listingHash, bidder string) ([]*model.Bid, error)
}

// ErrDuplicateAction the action was already applied to the chain
var ErrDuplicateAction = errors.New("action already applied")

// bidRepository bid repository implementation
type bidRepository struct {
	db *gorm.DB
}

// NewBidRepository creates a bid repository
func NewBidRepository(db *gorm.DB) BidRepository {
	return &bidRepository{db: db}
}

// Create appends a bid to its chain
func (r *bidRepository) Create(ctx context.Context, bid *model.Bid) error {
	err := r.db.WithContext(ctx).Create(bid).Error
	if err != nil && errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateAction
	}
	return err
}

// GetByMessageID gets a bid by its originating message id
func (r *bidRepository) GetByMessageID(ctx context.Context, messageID string) (*model.Bid, error) {
	var bid model.Bid
	err := r.db.WithContext(ctx).
		Where("message_id = ?", messageID).
		First(&bid).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bid, nil
}

// GetRootBid finds the opening BID for a buyer/listing pair
func (r *bidRepository) GetRootBid(ctx context.Context, listingHash, bidder string) (*model.Bid, error) {
	var bid model.Bid
	err := r.db.WithContext(ctx).
		Where("listing_hash = ? AND bidder = ? AND kind = ?", listingHash, bidder, model.BidKindBid).
		Order("id ASC").
		First(&bid).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bid, nil
}

// GetResolution finds the resolution child of a root BID
func (r *bidRepository) GetResolution(ctx context.Context, rootBidID uint64) (*model.Bid, error) {
	var bid model.Bid
	err := r.db.WithContext(ctx).
		Where("parent_bid_id = ?", rootBidID).
		Order("id ASC").
		First(&bid).Error

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bid, nil
}

// ListChain lists the full chain for a buyer/listing pair in causal order
func (r *bidRepository) ListChain(ctx context.Context, listingHash, bidder string) ([]*model.Bid, error) {
	var bids []*model.Bid
	err := r.db.WithContext(ctx).
		Where("listing_hash = ? AND bidder = ?", listingHash, bidder).
		Order("id ASC").
		Find(&bids).Error
	return bids, err
}
