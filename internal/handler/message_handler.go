package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"peermarket/internal/service/ingest"
	"peermarket/internal/service/message"
	"peermarket/internal/transport"
	"peermarket/pkg/utils"
)

// MessageHandler operator message inspection and requeue handler
type MessageHandler struct {
	messageService *message.Service
	ingestService  *ingest.Service
}

// NewMessageHandler creates a message handler
func NewMessageHandler(messageService *message.Service, ingestService *ingest.Service) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
		ingestService:  ingestService,
	}
}

// List lists messages by status
// GET /api/v1/messages?status=WAITING&page=1&size=20
func (h *MessageHandler) List(c *gin.Context) {
	status := c.DefaultQuery("status", "WAITING")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	msgs, total, err := h.messageService.List(c.Request.Context(), status, page, size)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessPageResponse(c, msgs, total, page, size)
}

// Get returns one message
// GET /api/v1/messages/:id
func (h *MessageHandler) Get(c *gin.Context) {
	msg, err := h.messageService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, msg)
}

// Requeue resets a failed message and re-offers it
// POST /api/v1/messages/:id/requeue
func (h *MessageHandler) Requeue(c *gin.Context) {
	msg, err := h.messageService.Requeue(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message_id": msg.ID,
		"status":     msg.StatusName(),
	})
}

// Stats returns engine statistics
// GET /api/v1/stats
func (h *MessageHandler) Stats(c *gin.Context) {
	stats, err := h.messageService.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, stats)
}

// ingestRequest is the local delivery injection body. Meant for tooling
// and tests; production deliveries arrive through the network layer.
type ingestRequest struct {
	MessageID     string `json:"message_id" binding:"required"`
	Sender        string `json:"sender" binding:"required"`
	Recipient     string `json:"recipient" binding:"required"`
	Payload       []byte `json:"payload" binding:"required"`
	SentAt        int64  `json:"sent_at"`
	ExpiresAt     int64  `json:"expires_at"`
	RetentionDays int    `json:"retention_days"`
}

// Ingest injects a delivery into the engine
// POST /api/v1/ingest
func (h *MessageHandler) Ingest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid parameters: "+err.Error())
		return
	}

	d := transport.Delivery{
		MessageID:     req.MessageID,
		Sender:        req.Sender,
		Recipient:     req.Recipient,
		Payload:       req.Payload,
		ReceivedAt:    time.Now(),
		RetentionDays: req.RetentionDays,
	}
	if req.SentAt > 0 {
		d.SentAt = time.Unix(req.SentAt, 0)
	}
	if req.ExpiresAt > 0 {
		d.ExpiresAt = time.Unix(req.ExpiresAt, 0)
	}

	if err := h.ingestService.Accept(c.Request.Context(), d); err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"message_id": req.MessageID})
}
