package handlers

import (
	"net/http"
	"strings"

	"log"

	"github.com/gin-gonic/gin"

	"darkpool-backend/internal/services"
)

// WebSocketHandler upgrades feed subscriptions.
type WebSocketHandler struct {
	push *services.PushService
}

// NewWebSocketHandler creates the websocket handler.
func NewWebSocketHandler(push *services.PushService) *WebSocketHandler {
	return &WebSocketHandler{push: push}
}

// FeedHandler subscribes to the exchange feed. A valid JWT in the query
// string scopes the connection to that trader's private events; without one
// the connection gets public events only.
// GET /ws/feed?token=...
func (h *WebSocketHandler) FeedHandler(c *gin.Context) {
	trader := ""
	if token := c.Query("token"); token != "" {
		claims, err := ValidateJWTToken(token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "invalid token",
			})
			return
		}
		trader = strings.ToLower(claims.TraderAddress)
	}

	if err := h.push.HandleConnection(c.Writer, c.Request, trader); err != nil {
		log.Printf("❌ WebSocket upgrade failed: %v", err)
	}
}
