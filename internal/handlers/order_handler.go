package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"darkpool-backend/internal/dto"
	"darkpool-backend/internal/services"
)

// OrderHandler exposes the commit-reveal intake and book queries.
type OrderHandler struct {
	engine *services.MatchingEngine
}

// NewOrderHandler creates the order handler.
func NewOrderHandler(engine *services.MatchingEngine) *OrderHandler {
	return &OrderHandler{engine: engine}
}

// CommitHandler registers an order commitment.
// POST /api/orders/commit
func (h *OrderHandler) CommitHandler(c *gin.Context) {
	var req dto.CommitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.AckResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Message: err.Error(),
		})
		return
	}

	// The authenticated trader commits on their own behalf only.
	if trader, ok := c.Get("trader_address"); ok && trader.(string) != "" {
		req.Trader = trader.(string)
	}

	txID, err := h.engine.Commit(c.Request.Context(), req.Trader, req.Commitment)
	if err != nil {
		status, code := intakeStatus(err)
		c.JSON(status, dto.AckResponse{Success: false, Code: code, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.AckResponse{Success: true, TxID: txID})
}

// RevealHandler submits the encrypted order for a commitment.
// POST /api/orders/reveal
func (h *OrderHandler) RevealHandler(c *gin.Context) {
	var req dto.RevealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.AckResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Message: err.Error(),
		})
		return
	}

	if err := h.engine.Reveal(c.Request.Context(), &req); err != nil {
		status, code := intakeStatus(err)
		c.JSON(status, dto.AckResponse{Success: false, Code: code, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.AckResponse{Success: true})
}

// CancelHandler withdraws a pending commitment.
// POST /api/orders/cancel
func (h *OrderHandler) CancelHandler(c *gin.Context) {
	var req dto.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.AckResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Message: err.Error(),
		})
		return
	}
	if trader, ok := c.Get("trader_address"); ok && trader.(string) != "" {
		req.Trader = trader.(string)
	}

	if err := h.engine.Cancel(c.Request.Context(), req.Trader, req.Commitment); err != nil {
		status, code := intakeStatus(err)
		c.JSON(status, dto.AckResponse{Success: false, Code: code, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.AckResponse{Success: true})
}

// DepthHandler reports resting order counts per side. Counts only; resting
// order contents are never exposed.
// GET /api/orders/depth
func (h *OrderHandler) DepthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"depth":   h.engine.Depth(),
	})
}

// CommitmentStatusHandler reports the lifecycle state of one commitment, so
// traders can see whether a reveal was accepted, dropped, or expired.
// GET /api/orders/commitment/:commitment
func (h *OrderHandler) CommitmentStatusHandler(c *gin.Context) {
	status, err := h.engine.CommitmentStatus(c.Param("commitment"))
	if err != nil {
		code, label := intakeStatus(err)
		c.JSON(code, gin.H{"success": false, "code": label, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"commitment": status,
	})
}

// EpochInfoHandler reports the matching scheduler position.
// GET /api/orders/epoch
func (h *OrderHandler) EpochInfoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"epoch":   h.engine.EpochInfo(),
	})
}

// EngineKeyHandler returns the public key clients encrypt reveals to.
// GET /api/orders/engine-key
func (h *OrderHandler) EngineKeyHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"public_key": h.engine.EnginePublicKeyHex(),
	})
}

// intakeStatus maps service errors to HTTP status and a stable code.
func intakeStatus(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, services.ErrWindowExpired):
		return http.StatusGone, "WINDOW_EXPIRED"
	case errors.Is(err, services.ErrTradingPaused):
		return http.StatusServiceUnavailable, "TRADING_PAUSED"
	case errors.Is(err, services.ErrVerificationFailed):
		return http.StatusUnauthorized, "VERIFICATION_FAILED"
	case errors.Is(err, services.ErrTimelockNotElapsed):
		return http.StatusConflict, "TIMELOCK_NOT_ELAPSED"
	case errors.Is(err, services.ErrSettlementFailed):
		return http.StatusBadGateway, "SETTLEMENT_FAILED"
	case errors.Is(err, services.ErrInputRejected):
		return http.StatusBadRequest, "INPUT_REJECTED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}
