package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"darkpool-backend/internal/dto"
	"darkpool-backend/internal/services"
)

// ChannelHandler exposes the off-chain channel ledger.
type ChannelHandler struct {
	ledger *services.ChannelLedger
}

// NewChannelHandler creates the channel handler.
func NewChannelHandler(ledger *services.ChannelLedger) *ChannelHandler {
	return &ChannelHandler{ledger: ledger}
}

// OpenHandler opens a channel for the authenticated trader.
// POST /api/channels/open
func (h *ChannelHandler) OpenHandler(c *gin.Context) {
	var req dto.OpenChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	if trader, ok := c.Get("trader_address"); ok && trader.(string) != "" {
		req.Participant = trader.(string)
	}

	channel, err := h.ledger.Open(c.Request.Context(), &req)
	if err != nil {
		status, code := intakeStatus(err)
		c.JSON(status, gin.H{"success": false, "code": code, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "channel": channel})
}

// UpdateHandler applies a signed balance update.
// POST /api/channels/update
func (h *ChannelHandler) UpdateHandler(c *gin.Context) {
	var req dto.UpdateChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	channel, err := h.ledger.Update(c.Request.Context(), &req)
	if err != nil {
		status, code := intakeStatus(err)
		c.JSON(status, gin.H{"success": false, "code": code, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "channel": channel})
}

// CloseHandler cooperatively closes with a signed final balance.
// POST /api/channels/close
func (h *ChannelHandler) CloseHandler(c *gin.Context) {
	var req dto.CloseChannelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	channel, err := h.ledger.Close(c.Request.Context(), &req)
	if err != nil {
		status, code := intakeStatus(err)
		c.JSON(status, gin.H{"success": false, "code": code, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "channel": channel})
}

// EmergencyRequestHandler starts the time-locked unilateral exit.
// POST /api/channels/emergency
func (h *ChannelHandler) EmergencyRequestHandler(c *gin.Context) {
	var req dto.EmergencyWithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	if trader, ok := c.Get("trader_address"); ok && trader.(string) != "" {
		req.Participant = trader.(string)
	}

	request, err := h.ledger.RequestEmergencyWithdraw(c.Request.Context(), &req)
	if err != nil {
		status, code := intakeStatus(err)
		c.JSON(status, gin.H{"success": false, "code": code, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "request": request})
}

// EmergencyExecuteHandler completes the exit after the timelock.
// POST /api/channels/emergency/execute
func (h *ChannelHandler) EmergencyExecuteHandler(c *gin.Context) {
	var req dto.EmergencyWithdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	if trader, ok := c.Get("trader_address"); ok && trader.(string) != "" {
		req.Participant = trader.(string)
	}

	channel, err := h.ledger.ExecuteEmergencyWithdraw(c.Request.Context(), req.Participant)
	if err != nil {
		status, code := intakeStatus(err)
		c.JSON(status, gin.H{"success": false, "code": code, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "channel": channel})
}

// EmergencyStatusHandler reports the timelock position.
// GET /api/channels/:participant/emergency
func (h *ChannelHandler) EmergencyStatusHandler(c *gin.Context) {
	status, err := h.ledger.EmergencyStatus(c.Param("participant"))
	if err != nil {
		httpStatus, code := intakeStatus(err)
		c.JSON(httpStatus, gin.H{"success": false, "code": code, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "emergency": status})
}

// GetHandler returns the channel for a participant.
// GET /api/channels/:participant
func (h *ChannelHandler) GetHandler(c *gin.Context) {
	channel, err := h.ledger.Get(c.Param("participant"))
	if err != nil {
		status, code := intakeStatus(err)
		c.JSON(status, gin.H{"success": false, "code": code, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "channel": channel})
}
