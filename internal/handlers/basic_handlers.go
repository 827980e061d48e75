package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"darkpool-backend/internal/services"
)

var startedAt = time.Now()

// HealthCheckHandler liveness probe.
// GET /api/health
func HealthCheckHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "darkpool-backend",
		"version": "v1.0",
		"api":     "healthy",
	})
}

// PingHandler trivial reachability check.
// GET /api/ping
func PingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// SystemStatusHandler readiness probe: database connectivity plus the
// matching scheduler position.
// GET /api/status
func SystemStatusHandler(db *gorm.DB, engine *services.MatchingEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		dbStatus := "ok"
		if db != nil {
			sqlDB, err := db.DB()
			if err != nil || sqlDB.Ping() != nil {
				dbStatus = "unreachable"
			}
		} else {
			dbStatus = "disabled"
		}

		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"database": dbStatus,
			"epoch":    engine.EpochInfo(),
			"uptime":   time.Since(startedAt).String(),
		})
	}
}
