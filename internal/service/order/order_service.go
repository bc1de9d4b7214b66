package order

import (
	"context"

	"peermarket/internal/model"
	"peermarket/internal/protocol"
	"peermarket/internal/repository"
	"peermarket/pkg/utils"
)

// Service exposes the operator view of reconciled commerce state
type Service struct {
	orders   repository.OrderRepository
	listings repository.ListingRepository
	bids     repository.BidRepository
}

// NewService creates the order query service
func NewService(
	orders repository.OrderRepository,
	listings repository.ListingRepository,
	bids repository.BidRepository,
) *Service {
	return &Service{orders: orders, listings: listings, bids: bids}
}

// Get returns one order with its items
func (s *Service) Get(ctx context.Context, id uint64) (*model.Order, error) {
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, utils.NewErrorWithErr(utils.CodeDatabaseError, "get order failed", err)
	}
	if order == nil {
		return nil, utils.ErrOrderNotFound
	}
	return order, nil
}

// GetByHash returns one order by its deterministic hash
func (s *Service) GetByHash(ctx context.Context, hash string) (*model.Order, error) {
	if !protocol.ValidHash(hash) {
		return nil, utils.NewError(utils.CodeInvalidParam, "invalid order hash")
	}
	order, err := s.orders.GetByHash(ctx, hash)
	if err != nil {
		return nil, utils.NewErrorWithErr(utils.CodeDatabaseError, "get order failed", err)
	}
	if order == nil {
		return nil, utils.ErrOrderNotFound
	}
	return order, nil
}

// GetListing returns one stored listing by content hash
func (s *Service) GetListing(ctx context.Context, hash string) (*model.ListingItem, error) {
	if !protocol.ValidHash(hash) {
		return nil, utils.NewError(utils.CodeInvalidParam, "invalid listing hash")
	}
	listing, err := s.listings.GetByHash(ctx, hash)
	if err != nil {
		return nil, utils.NewErrorWithErr(utils.CodeDatabaseError, "get listing failed", err)
	}
	if listing == nil {
		return nil, utils.ErrListingNotFound
	}
	return listing, nil
}

// BidChain returns the recorded action chain for one listing and bidder,
// oldest first. Useful when auditing why an item reached its status.
func (s *Service) BidChain(ctx context.Context, listingHash, bidder string) ([]*model.Bid, error) {
	if !protocol.ValidHash(listingHash) {
		return nil, utils.NewError(utils.CodeInvalidParam, "invalid listing hash")
	}
	if bidder == "" {
		return nil, utils.NewError(utils.CodeInvalidParam, "bidder is required")
	}
	chain, err := s.bids.ListChain(ctx, listingHash, bidder)
	if err != nil {
		return nil, utils.NewErrorWithErr(utils.CodeDatabaseError, "bid chain failed", err)
	}
	return chain, nil
}
