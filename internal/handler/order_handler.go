package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"peermarket/internal/protocol"
	"peermarket/internal/service/command"
	"peermarket/internal/service/order"
	"peermarket/pkg/utils"
)

// OrderHandler operator commerce state and outbound command handler
type OrderHandler struct {
	orderService   *order.Service
	commandService *command.Service
}

// NewOrderHandler creates an order handler
func NewOrderHandler(orderService *order.Service, commandService *command.Service) *OrderHandler {
	return &OrderHandler{
		orderService:   orderService,
		commandService: commandService,
	}
}

// Get returns one order with its items
// GET /api/v1/orders/:id
func (h *OrderHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid order id")
		return
	}

	ord, err := h.orderService.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, ord)
}

// GetByHash returns one order by its deterministic hash
// GET /api/v1/orders/hash/:hash
func (h *OrderHandler) GetByHash(c *gin.Context) {
	ord, err := h.orderService.GetByHash(c.Request.Context(), c.Param("hash"))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, ord)
}

// GetListing returns one stored listing
// GET /api/v1/listings/:hash
func (h *OrderHandler) GetListing(c *gin.Context) {
	listing, err := h.orderService.GetListing(c.Request.Context(), c.Param("hash"))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, listing)
}

// BidChain returns the action chain for a listing and bidder
// GET /api/v1/listings/:hash/bids?bidder=addr
func (h *OrderHandler) BidChain(c *gin.Context) {
	chain, err := h.orderService.BidChain(c.Request.Context(), c.Param("hash"), c.Query("bidder"))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, chain)
}

// actionRequest is the outbound action body
type actionRequest struct {
	Kind        string `json:"kind" binding:"required"`
	Recipient   string `json:"recipient" binding:"required"`
	ListingHash string `json:"listing_hash"`
	Bidder      string `json:"bidder"`
	TxID        string `json:"txid"`
	Memo        string `json:"memo"`
	Listing     []byte `json:"listing"`
	Text        string `json:"text"`
}

// Submit encodes and submits an outbound action
// POST /api/v1/actions
func (h *OrderHandler) Submit(c *gin.Context) {
	var req actionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid parameters: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	kind := protocol.Kind(req.Kind)

	var (
		result interface{}
		err    error
	)
	switch {
	case kind == protocol.KindListingAdd:
		result, err = h.commandService.AddListing(ctx, req.Recipient, req.Listing)
	case kind == protocol.KindBid:
		result, err = h.commandService.PlaceBid(ctx, req.Recipient, req.ListingHash)
	case kind.IsResolution():
		result, err = h.commandService.Resolve(ctx, req.Recipient, kind, req.ListingHash, req.Bidder)
	case kind.IsEscrow():
		result, err = h.commandService.Escrow(ctx, req.Recipient, kind, req.ListingHash, req.Bidder, req.TxID, req.Memo)
	case kind == protocol.KindChat:
		result, err = h.commandService.SendChat(ctx, req.Recipient, req.Text)
	default:
		utils.ErrorResponse(c, http.StatusBadRequest, "unknown action kind "+req.Kind)
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, result)
}
