package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"darkpool-backend/internal/dto"
	"darkpool-backend/internal/repository"
	"darkpool-backend/internal/services"
)

// StatsHandler serves exchange-wide statistics and match history from the
// database mirror.
type StatsHandler struct {
	orderRepo repository.OrderRepository
	matchRepo repository.MatchRepository
	ledger    *services.ChannelLedger
	balances  *services.BalanceBook
}

// NewStatsHandler creates the stats handler.
func NewStatsHandler(orderRepo repository.OrderRepository, matchRepo repository.MatchRepository, ledger *services.ChannelLedger, balances *services.BalanceBook) *StatsHandler {
	return &StatsHandler{orderRepo: orderRepo, matchRepo: matchRepo, ledger: ledger, balances: balances}
}

// NetworkStatsHandler aggregates exchange counters.
// GET /api/stats
func (h *StatsHandler) NetworkStatsHandler(c *gin.Context) {
	ctx := c.Request.Context()
	stats := dto.NetworkStats{TotalVolume: "0"}

	if h.orderRepo != nil {
		if n, err := h.orderRepo.CountOrders(ctx); err == nil {
			stats.TotalOrders = n
		} else {
			logrus.WithError(err).Warn("⚠️ Order count query failed")
		}
	}
	if h.matchRepo != nil {
		if n, err := h.matchRepo.Count(ctx); err == nil {
			stats.TotalMatches = n
		}
		if v, err := h.matchRepo.TotalVolume(ctx); err == nil {
			stats.TotalVolume = v
		} else {
			logrus.WithError(err).Warn("⚠️ Volume aggregate query failed")
		}
	}
	if h.ledger != nil {
		stats.ActiveChannels = h.ledger.ActiveCount()
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

// RecentMatchesHandler lists recent match prints.
// GET /api/matches/recent?limit=50
func (h *StatsHandler) RecentMatchesHandler(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 500 {
		limit = 50
	}

	matches, err := h.matchRepo.FindRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "matches": matches})
}

// EpochMatchesHandler lists matches for one epoch.
// GET /api/matches/epoch/:epoch
func (h *StatsHandler) EpochMatchesHandler(c *gin.Context) {
	epoch, err := strconv.ParseUint(c.Param("epoch"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid epoch"})
		return
	}

	matches, err := h.matchRepo.FindByEpoch(c.Request.Context(), epoch)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "matches": matches})
}

// TraderOrdersHandler lists the authenticated trader's own orders.
// GET /api/orders/mine
func (h *StatsHandler) TraderOrdersHandler(c *gin.Context) {
	trader, ok := c.Get("trader_address")
	if !ok || trader.(string) == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "authentication required"})
		return
	}

	orders, err := h.orderRepo.FindOrdersByTrader(c.Request.Context(), trader.(string))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "orders": orders})
}

// MyBalancesHandler lists the recorded token balances of the authenticated
// trader.
// GET /api/balances/mine
func (h *StatsHandler) MyBalancesHandler(c *gin.Context) {
	trader, ok := c.Get("trader_address")
	if !ok || trader.(string) == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "authentication required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "balances": h.balances.Balances(trader.(string))})
}
