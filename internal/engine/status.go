package engine

import (
	"peermarket/internal/model"
	"peermarket/internal/protocol"
)

// DeriveItemStatus maps an order item's accepted action history to its
// lifecycle status. It is a pure fold over the history: the same history
// always yields the same status, in any component instance. The persisted
// status column is only a cached projection of this function; history is
// authoritative.
func DeriveItemStatus(history model.ActionHistory) string {
	status := model.ItemStatusBidded

	for _, entry := range history {
		switch protocol.Kind(entry.Kind) {
		case protocol.KindBid:
			status = model.ItemStatusBidded
		case protocol.KindAccept:
			status = model.ItemStatusAwaitingEscrow
		case protocol.KindReject:
			status = model.ItemStatusRejected
		case protocol.KindCancel:
			status = model.ItemStatusCancelled
		case protocol.KindLock:
			status = model.ItemStatusEscrowLocked
		case protocol.KindComplete, protocol.KindRelease:
			status = model.ItemStatusComplete
		case protocol.KindRefund:
			status = model.ItemStatusRefunded
		}

		// The bid chain is append-only and handlers never accept actions
		// past a terminal resolution, so a terminal status ends the fold.
		if model.IsTerminalItemStatus(status) {
			break
		}
	}

	return status
}

// DeriveOrderStatus maps the statuses of an order's items to the aggregate
// order status.
func DeriveOrderStatus(items []model.OrderItem) string {
	if len(items) == 0 {
		return model.OrderStatusProcessing
	}

	allRejected, allCancelled, allRefunded := true, true, true
	anyComplete := false

	for _, item := range items {
		if !item.IsTerminal() {
			return model.OrderStatusProcessing
		}
		switch item.Status {
		case model.ItemStatusComplete:
			anyComplete = true
		}
		allRejected = allRejected && item.Status == model.ItemStatusRejected
		allCancelled = allCancelled && item.Status == model.ItemStatusCancelled
		allRefunded = allRefunded && item.Status == model.ItemStatusRefunded
	}

	switch {
	case anyComplete:
		return model.OrderStatusComplete
	case allRefunded:
		return model.OrderStatusRefunded
	case allCancelled:
		return model.OrderStatusCancelled
	case allRejected:
		return model.OrderStatusRejected
	default:
		return model.OrderStatusCancelled
	}
}
