package engine

import (
	"context"

	"peermarket/internal/model"
	"peermarket/internal/protocol"
	"peermarket/internal/repository"
)

// Resolver decides whether an action's causal prerequisite is already
// satisfied locally. A nil result means the action is ready for its
// handler; *MissingDependency parks the message WAITING; a
// *ProtocolViolation means the prerequisite can never appear.
type Resolver struct {
	listings repository.ListingRepository
	bids     repository.BidRepository
	orders   repository.OrderRepository
}

// NewResolver creates a dependency resolver
func NewResolver(listings repository.ListingRepository, bids repository.BidRepository, orders repository.OrderRepository) *Resolver {
	return &Resolver{
		listings: listings,
		bids:     bids,
		orders:   orders,
	}
}

// Check evaluates the prerequisite relation for the action kind.
func (r *Resolver) Check(ctx context.Context, action *protocol.Action) error {
	switch action.Kind {
	case protocol.KindListingAdd, protocol.KindChat, protocol.KindUnsupported:
		return nil

	case protocol.KindBid:
		return r.checkListing(ctx, action.Bid.ListingHash)

	case protocol.KindAccept, protocol.KindReject, protocol.KindCancel:
		return r.checkRootBid(ctx, action.Resolution.ListingHash, action.Resolution.Bidder)

	case protocol.KindLock:
		return r.checkEscrow(ctx, action, protocol.KindAccept)

	case protocol.KindComplete, protocol.KindRelease:
		return r.checkEscrow(ctx, action, protocol.KindLock)

	case protocol.KindRefund:
		if err := r.checkEscrow(ctx, action, protocol.KindLock); err != nil {
			return err
		}
		return r.checkNoSettlement(ctx, action)
	}

	return nil
}

// checkListing requires the referenced listing to be present
func (r *Resolver) checkListing(ctx context.Context, hash string) error {
	listing, err := r.listings.GetByHash(ctx, hash)
	if err != nil {
		return err
	}
	if listing == nil {
		return missingf("listing %s not present", hash)
	}
	return nil
}

// checkRootBid requires an opening BID for the buyer/listing pair
func (r *Resolver) checkRootBid(ctx context.Context, listingHash, bidder string) error {
	root, err := r.bids.GetRootBid(ctx, listingHash, bidder)
	if err != nil {
		return err
	}
	if root == nil {
		return missingf("no bid from %s on listing %s", bidder, listingHash)
	}
	return nil
}

// checkEscrow requires the order item history to already hold the given
// prerequisite kind
func (r *Resolver) checkEscrow(ctx context.Context, action *protocol.Action, requires protocol.Kind) error {
	item, err := r.orders.GetItemByListingAndBidder(ctx, action.Escrow.ListingHash, action.Escrow.Bidder)
	if err != nil {
		return err
	}
	if item == nil {
		return missingf("no order item for %s on listing %s", action.Escrow.Bidder, action.Escrow.ListingHash)
	}

	if historyHas(item, requires) {
		return nil
	}

	// A chain closed by REJECT/CANCEL or settled by REFUND can never grow
	// the prerequisite, so waiting would be pointless.
	if item.IsTerminal() {
		return violationf("%s for %s on listing %s: chain already %s",
			action.Kind, action.Escrow.Bidder, action.Escrow.ListingHash, item.Status)
	}

	return missingf("%s for %s on listing %s: no %s yet",
		action.Kind, action.Escrow.Bidder, action.Escrow.ListingHash, requires)
}

// checkNoSettlement enforces REFUND's exclusion of COMPLETE/RELEASE
func (r *Resolver) checkNoSettlement(ctx context.Context, action *protocol.Action) error {
	item, err := r.orders.GetItemByListingAndBidder(ctx, action.Escrow.ListingHash, action.Escrow.Bidder)
	if err != nil {
		return err
	}
	if item == nil {
		return missingf("no order item for %s on listing %s", action.Escrow.Bidder, action.Escrow.ListingHash)
	}
	if historyHas(item, protocol.KindComplete) || historyHas(item, protocol.KindRelease) {
		return violationf("refund after settlement for %s on listing %s",
			action.Escrow.Bidder, action.Escrow.ListingHash)
	}
	return nil
}

func historyHas(item *model.OrderItem, kind protocol.Kind) bool {
	for _, entry := range item.History {
		if protocol.Kind(entry.Kind) == kind {
			return true
		}
	}
	return false
}
