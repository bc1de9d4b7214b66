package command

import (
	"context"

	"peermarket/internal/config"
	"peermarket/internal/model"
	"peermarket/internal/protocol"
	"peermarket/internal/repository"
	"peermarket/internal/transport"
	"peermarket/pkg/log"
	"peermarket/pkg/utils"
)

// Service builds and submits outbound actions. It only encodes; the
// resulting state change happens when the message comes back through the
// engine like any peer's message, so local and remote actions reconcile
// identically.
type Service struct {
	submitter transport.Submitter
	templates repository.TemplateRepository
	node      config.NodeConfig
}

// NewService creates the outbound command service
func NewService(submitter transport.Submitter, templates repository.TemplateRepository, node config.NodeConfig) *Service {
	return &Service{submitter: submitter, templates: templates, node: node}
}

// AddListing announces a listing payload to a recipient. The hash is the
// content address of the payload, so every peer derives the same one. A
// template row is recorded first so the engine links the listing back to
// this seller when the announcement reconciles.
func (s *Service) AddListing(ctx context.Context, recipient string, listing []byte) (*transport.SubmitResult, error) {
	if len(listing) == 0 {
		return nil, utils.NewError(utils.CodeInvalidParam, "listing payload is required")
	}
	hash := protocol.HashListing(listing)
	if err := s.templates.Create(ctx, &model.ListingTemplate{Hash: hash, Payload: listing}); err != nil {
		return nil, utils.NewErrorWithErr(utils.CodeDatabaseError, "record listing template failed", err)
	}
	action := &protocol.Action{
		Kind: protocol.KindListingAdd,
		ListingAdd: &protocol.ListingAdd{
			Hash:    hash,
			Seller:  s.node.Address,
			Market:  s.node.Market,
			Listing: listing,
		},
	}
	return s.submit(ctx, recipient, action)
}

// PlaceBid opens a bid chain against a listing
func (s *Service) PlaceBid(ctx context.Context, recipient, listingHash string) (*transport.SubmitResult, error) {
	if !protocol.ValidHash(listingHash) {
		return nil, utils.NewError(utils.CodeInvalidParam, "invalid listing hash")
	}
	action := &protocol.Action{
		Kind: protocol.KindBid,
		Bid: &protocol.Bid{
			ListingHash: listingHash,
			Bidder:      s.node.Address,
		},
	}
	return s.submit(ctx, recipient, action)
}

// Resolve answers a root bid with ACCEPT, REJECT or CANCEL
func (s *Service) Resolve(ctx context.Context, recipient string, kind protocol.Kind, listingHash, bidder string) (*transport.SubmitResult, error) {
	if !kind.IsResolution() {
		return nil, utils.NewError(utils.CodeInvalidParam, "kind is not a resolution")
	}
	if !protocol.ValidHash(listingHash) {
		return nil, utils.NewError(utils.CodeInvalidParam, "invalid listing hash")
	}
	if bidder == "" {
		return nil, utils.NewError(utils.CodeInvalidParam, "bidder is required")
	}
	action := &protocol.Action{
		Kind: kind,
		Resolution: &protocol.Resolution{
			ListingHash: listingHash,
			Bidder:      bidder,
		},
	}
	return s.submit(ctx, recipient, action)
}

// Escrow drives the locked-funds phase with LOCK, COMPLETE, RELEASE or
// REFUND. txid and memo are optional settlement references.
func (s *Service) Escrow(ctx context.Context, recipient string, kind protocol.Kind, listingHash, bidder, txid, memo string) (*transport.SubmitResult, error) {
	if !kind.IsEscrow() {
		return nil, utils.NewError(utils.CodeInvalidParam, "kind is not an escrow action")
	}
	if !protocol.ValidHash(listingHash) {
		return nil, utils.NewError(utils.CodeInvalidParam, "invalid listing hash")
	}
	if bidder == "" {
		return nil, utils.NewError(utils.CodeInvalidParam, "bidder is required")
	}
	action := &protocol.Action{
		Kind: kind,
		Escrow: &protocol.Escrow{
			ListingHash: listingHash,
			Bidder:      bidder,
			TxID:        txid,
			Memo:        memo,
		},
	}
	return s.submit(ctx, recipient, action)
}

// SendChat sends free-form text with no entity effect
func (s *Service) SendChat(ctx context.Context, recipient, text string) (*transport.SubmitResult, error) {
	if text == "" {
		return nil, utils.NewError(utils.CodeInvalidParam, "text is required")
	}
	action := &protocol.Action{
		Kind: protocol.KindChat,
		Chat: &protocol.Chat{Text: text},
	}
	return s.submit(ctx, recipient, action)
}

func (s *Service) submit(ctx context.Context, recipient string, action *protocol.Action) (*transport.SubmitResult, error) {
	if recipient == "" {
		return nil, utils.NewError(utils.CodeInvalidParam, "recipient is required")
	}
	payload, err := protocol.Encode(action)
	if err != nil {
		return nil, utils.NewErrorWithErr(utils.CodeInvalidParam, "encode failed", err)
	}
	result, err := s.submitter.Submit(ctx, recipient, payload)
	if err != nil {
		log.WithError(err).WithFields(map[string]interface{}{
			"kind":      string(action.Kind),
			"recipient": recipient,
		}).Error("Outbound submit failed")
		return nil, utils.NewErrorWithErr(utils.CodeServiceError, "submit failed", err)
	}
	return result, nil
}
