package engine

import (
	"context"
	"fmt"

	"peermarket/internal/model"
	"peermarket/internal/protocol"
	"peermarket/internal/repository"
	"peermarket/pkg/log"
)

// TemplateLinker lets the local seller recognize its own listings so the
// stored ListingItem can be linked back to the template it was published
// from. Nodes that never sell can wire nil.
type TemplateLinker interface {
	LookupTemplate(ctx context.Context, listingHash string) (uint64, bool, error)
}

// IDGenerator produces node-local unique ids for order numbers
type IDGenerator interface {
	NextID() int64
}

// Handlers applies one idempotent state transition per action kind.
//
// Idempotency rule: before mutating, each handler checks whether the
// target entity already reflects this exact message id and, if so,
// returns success without re-applying.
type Handlers struct {
	listings  repository.ListingRepository
	bids      repository.BidRepository
	orders    repository.OrderRepository
	templates TemplateLinker
	idGen     IDGenerator
}

// NewHandlers creates the action handler set
func NewHandlers(
	listings repository.ListingRepository,
	bids repository.BidRepository,
	orders repository.OrderRepository,
	templates TemplateLinker,
	idGen IDGenerator,
) *Handlers {
	return &Handlers{
		listings:  listings,
		bids:      bids,
		orders:    orders,
		templates: templates,
		idGen:     idGen,
	}
}

// Apply dispatches the action to its kind handler. The resolver has
// already confirmed the causal prerequisite, but handlers re-check what
// they need for idempotency and violation detection.
func (h *Handlers) Apply(ctx context.Context, msg *model.Message, action *protocol.Action) error {
	switch action.Kind {
	case protocol.KindListingAdd:
		return h.applyListingAdd(ctx, msg, action.ListingAdd)
	case protocol.KindBid:
		return h.applyBid(ctx, msg, action.Bid)
	case protocol.KindAccept, protocol.KindReject, protocol.KindCancel:
		return h.applyResolution(ctx, msg, action.Kind, action.Resolution)
	case protocol.KindLock, protocol.KindComplete, protocol.KindRelease, protocol.KindRefund:
		return h.applyEscrow(ctx, msg, action.Kind, action.Escrow)
	}
	return fmt.Errorf("no handler for kind %q", action.Kind)
}

// applyListingAdd creates the listing if absent; the same hash is a no-op
func (h *Handlers) applyListingAdd(ctx context.Context, msg *model.Message, body *protocol.ListingAdd) error {
	existing, err := h.listings.GetByHash(ctx, body.Hash)
	if err != nil {
		return err
	}
	if existing != nil {
		return h.listings.TouchLastSeen(ctx, body.Hash, msg.ReceivedAt)
	}

	listing := &model.ListingItem{
		Hash:       body.Hash,
		Seller:     body.Seller,
		Market:     body.Market,
		Payload:    body.Listing,
		ReceivedAt: msg.ReceivedAt,
	}
	if err := h.listings.Create(ctx, listing); err != nil {
		return err
	}

	if h.templates != nil {
		templateID, ok, err := h.templates.LookupTemplate(ctx, body.Hash)
		if err != nil {
			// Linking is bookkeeping; the listing itself is already durable.
			log.WithError(err).WithField("hash", body.Hash).Warn("Template lookup failed")
			return nil
		}
		if ok {
			return h.listings.LinkTemplate(ctx, body.Hash, templateID)
		}
	}
	return nil
}

// applyBid creates the root BID and, when this buyer/listing pair has no
// order yet, the order and its item
func (h *Handlers) applyBid(ctx context.Context, msg *model.Message, body *protocol.Bid) error {
	listing, err := h.listings.GetByHash(ctx, body.ListingHash)
	if err != nil {
		return err
	}
	if listing == nil {
		return missingf("listing %s not present", body.ListingHash)
	}

	// The idempotency key for BID is the listing/bidder pair, not the
	// message id: a second BID under a fresh id must not reopen a chain
	// that already has a root, or its history would regress the item.
	root, err := h.bids.GetRootBid(ctx, body.ListingHash, body.Bidder)
	if err != nil {
		return err
	}
	if root != nil && root.MessageID != msg.ID {
		return nil
	}

	item, err := h.orders.GetItemByListingAndBidder(ctx, body.ListingHash, body.Bidder)
	if err != nil {
		return err
	}
	if item == nil {
		item, err = h.createOrder(ctx, listing, body.Bidder)
		if err != nil {
			return err
		}
	}

	bid := &model.Bid{
		MessageID:   msg.ID,
		Kind:        model.BidKindBid,
		Bidder:      body.Bidder,
		ListingHash: body.ListingHash,
		OrderItemID: item.ID,
	}
	if err := h.bids.Create(ctx, bid); err != nil && err != repository.ErrDuplicateAction {
		return err
	}

	return h.appendHistory(ctx, item, msg.ID, protocol.KindBid)
}

// applyResolution creates the ACCEPT/REJECT/CANCEL child of the root BID
func (h *Handlers) applyResolution(ctx context.Context, msg *model.Message, kind protocol.Kind, body *protocol.Resolution) error {
	root, err := h.bids.GetRootBid(ctx, body.ListingHash, body.Bidder)
	if err != nil {
		return err
	}
	if root == nil {
		return missingf("no bid from %s on listing %s", body.Bidder, body.ListingHash)
	}

	resolution, err := h.bids.GetResolution(ctx, root.ID)
	if err != nil {
		return err
	}
	if resolution != nil && resolution.MessageID != msg.ID {
		return violationf("%s for bid %d: already resolved by %s %s",
			kind, root.ID, resolution.Kind, resolution.MessageID)
	}
	if resolution == nil {
		child := &model.Bid{
			MessageID:   msg.ID,
			Kind:        string(kind),
			Bidder:      body.Bidder,
			ListingHash: body.ListingHash,
			ParentBidID: &root.ID,
			OrderItemID: root.OrderItemID,
		}
		if err := h.bids.Create(ctx, child); err != nil && err != repository.ErrDuplicateAction {
			return err
		}
	}

	item, err := h.orders.GetItemByListingAndBidder(ctx, body.ListingHash, body.Bidder)
	if err != nil {
		return err
	}
	if item == nil {
		return violationf("%s for %s on listing %s: order item missing", kind, body.Bidder, body.ListingHash)
	}
	return h.appendHistory(ctx, item, msg.ID, kind)
}

// applyEscrow advances the locked-funds phase on the order item
func (h *Handlers) applyEscrow(ctx context.Context, msg *model.Message, kind protocol.Kind, body *protocol.Escrow) error {
	item, err := h.orders.GetItemByListingAndBidder(ctx, body.ListingHash, body.Bidder)
	if err != nil {
		return err
	}
	if item == nil {
		return missingf("no order item for %s on listing %s", body.Bidder, body.ListingHash)
	}
	if item.HasAction(msg.ID) {
		return nil
	}

	switch kind {
	case protocol.KindLock:
		if historyHas(item, protocol.KindLock) {
			return violationf("lock for %s on listing %s: escrow already locked", body.Bidder, body.ListingHash)
		}
		if !historyHas(item, protocol.KindAccept) {
			return missingf("lock for %s on listing %s: no accept yet", body.Bidder, body.ListingHash)
		}
	case protocol.KindComplete, protocol.KindRelease:
		if !historyHas(item, protocol.KindLock) {
			return missingf("%s for %s on listing %s: no lock yet", kind, body.Bidder, body.ListingHash)
		}
		if item.IsTerminal() {
			return violationf("%s for %s on listing %s: chain already %s", kind, body.Bidder, body.ListingHash, item.Status)
		}
	case protocol.KindRefund:
		if !historyHas(item, protocol.KindLock) {
			return missingf("refund for %s on listing %s: no lock yet", body.Bidder, body.ListingHash)
		}
		if historyHas(item, protocol.KindComplete) || historyHas(item, protocol.KindRelease) {
			return violationf("refund after settlement for %s on listing %s", body.Bidder, body.ListingHash)
		}
	}

	return h.appendHistory(ctx, item, msg.ID, kind)
}

// createOrder creates the order and first item for a buyer/listing pair.
// The order hash is derived from the pair so that both peers address the
// same order without coordination.
func (h *Handlers) createOrder(ctx context.Context, listing *model.ListingItem, bidder string) (*model.OrderItem, error) {
	order := &model.Order{
		Hash:    protocol.HashListing([]byte(listing.Hash + ":" + bidder)),
		OrderNo: fmt.Sprintf("PM%d", h.idGen.NextID()),
		Buyer:   bidder,
		Seller:  listing.Seller,
		Status:  model.OrderStatusProcessing,
	}
	item := &model.OrderItem{
		ListingHash: listing.Hash,
		Bidder:      bidder,
		Status:      model.ItemStatusBidded,
		History:     model.ActionHistory{},
	}

	err := h.orders.CreateWithItem(ctx, order, item)
	if err == repository.ErrStorageConflict {
		// A concurrent BID for the same pair won the insert; adopt its item.
		existing, getErr := h.orders.GetItemByListingAndBidder(ctx, listing.Hash, bidder)
		if getErr != nil {
			return nil, getErr
		}
		if existing != nil {
			return existing, nil
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// appendHistory appends the accepted action and refreshes the cached
// status projection plus the aggregate order status
func (h *Handlers) appendHistory(ctx context.Context, item *model.OrderItem, messageID string, kind protocol.Kind) error {
	if item.HasAction(messageID) {
		return nil
	}

	item.History = append(item.History, model.ActionEntry{MessageID: messageID, Kind: string(kind)})
	item.Status = DeriveItemStatus(item.History)

	if err := h.orders.UpdateItem(ctx, item); err != nil {
		return err
	}
	return h.recomputeOrder(ctx, item.OrderID)
}

// recomputeOrder refreshes the aggregate order status from its items
func (h *Handlers) recomputeOrder(ctx context.Context, orderID uint64) error {
	order, err := h.orders.GetByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return nil
	}

	derived := DeriveOrderStatus(order.Items)
	if derived == order.Status {
		return nil
	}
	return h.orders.UpdateStatus(ctx, orderID, derived)
}
