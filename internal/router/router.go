package router

import (
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"darkpool-backend/internal/config"
	"darkpool-backend/internal/handlers"
	"darkpool-backend/internal/middleware"
	"darkpool-backend/internal/services"
)

// corsMiddleware CORS middleware.
// Priority: Environment Variable > YAML Config > Default (*)
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowedOrigins := []string{"*"}
		allowCredentials := true
		maxAge := 3600

		if envOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); envOrigins != "" {
			allowedOrigins = allowedOrigins[:0]
			for _, o := range strings.Split(envOrigins, ",") {
				if trimmed := strings.TrimSpace(o); trimmed != "" {
					allowedOrigins = append(allowedOrigins, trimmed)
				}
			}
		} else if config.AppConfig != nil && len(config.AppConfig.CORS.AllowedOrigins) > 0 {
			allowedOrigins = config.AppConfig.CORS.AllowedOrigins
			allowCredentials = config.AppConfig.CORS.AllowCredentials
			if config.AppConfig.CORS.MaxAge > 0 {
				maxAge = config.AppConfig.CORS.MaxAge
			}
		}

		if len(allowedOrigins) == 1 && allowedOrigins[0] == "*" {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			for _, allowed := range allowedOrigins {
				if strings.TrimSpace(allowed) == origin {
					c.Header("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, Accept, X-TOTP-Code")
		if allowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth      *handlers.AuthHandler
	Orders    *handlers.OrderHandler
	Channels  *handlers.ChannelHandler
	Admin     *handlers.AdminHandler
	Stats     *handlers.StatsHandler
	WebSocket *handlers.WebSocketHandler
}

// SetupRouter builds the gin engine with all routes mounted.
func SetupRouter(db *gorm.DB, engine *services.MatchingEngine, h *Handlers) *gin.Engine {
	r := gin.Default()
	r.Use(corsMiddleware())

	logger := logrus.StandardLogger()
	var allowedIPs []string
	if config.AppConfig != nil && len(config.AppConfig.Admin.AllowedIPs) > 0 {
		allowedIPs = config.AppConfig.Admin.AllowedIPs
		logger.WithFields(logrus.Fields{
			"allowed_ips": allowedIPs,
			"count":       len(allowedIPs),
		}).Info("Admin API IP whitelist configured")
	} else {
		logger.Info("No admin.allowedIPs configured, using localhost-only mode")
	}
	localhostOnly := middleware.NewLocalhostOnly(logger, allowedIPs)
	auth := middleware.NewAuthMiddleware(logger)

	// ============ Health / Probes ============
	r.GET("/ping", handlers.PingHandler)
	r.GET("/health", handlers.HealthCheckHandler)
	r.GET("/api/health", handlers.HealthCheckHandler)
	r.GET("/api/ping", handlers.PingHandler)
	r.GET("/api/status", handlers.SystemStatusHandler(db, engine))

	// ============ Prometheus Metrics ============
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ============ WebSocket Feed ============
	r.GET("/ws/feed", h.WebSocket.FeedHandler)

	// ============ API Routes ============
	api := r.Group("/api")
	{
		// Auth
		api.GET("/auth/challenge", h.Auth.ChallengeHandler)
		api.POST("/auth/login", h.Auth.AuthenticateHandler)

		// Public market data
		api.GET("/orders/depth", h.Orders.DepthHandler)
		api.GET("/orders/epoch", h.Orders.EpochInfoHandler)
		api.GET("/orders/commitment/:commitment", h.Orders.CommitmentStatusHandler)
		api.GET("/orders/engine-key", h.Orders.EngineKeyHandler)
		api.GET("/pairs", h.Admin.ListPairsHandler)
		api.GET("/stats", h.Stats.NetworkStatsHandler)
		api.GET("/matches/recent", h.Stats.RecentMatchesHandler)
		api.GET("/matches/epoch/:epoch", h.Stats.EpochMatchesHandler)

		// Intake, authenticated
		orders := api.Group("/orders", auth.RequireAuth())
		{
			orders.POST("/commit", h.Orders.CommitHandler)
			orders.POST("/reveal", h.Orders.RevealHandler)
			orders.POST("/cancel", h.Orders.CancelHandler)
			orders.GET("/mine", h.Stats.TraderOrdersHandler)
		}

		// Balance views, authenticated
		api.GET("/balances/mine", auth.RequireAuth(), h.Stats.MyBalancesHandler)

		// Channel ledger, authenticated
		channels := api.Group("/channels", auth.RequireAuth())
		{
			channels.POST("/open", h.Channels.OpenHandler)
			channels.POST("/update", h.Channels.UpdateHandler)
			channels.POST("/close", h.Channels.CloseHandler)
			channels.POST("/emergency", h.Channels.EmergencyRequestHandler)
			channels.POST("/emergency/execute", h.Channels.EmergencyExecuteHandler)
			channels.GET("/:participant", h.Channels.GetHandler)
			channels.GET("/:participant/emergency", h.Channels.EmergencyStatusHandler)
		}

		// Operator controls, IP-restricted
		admin := api.Group("/admin", localhostOnly.Restrict())
		{
			admin.POST("/pause", h.Admin.PauseHandler)
			admin.POST("/resume", h.Admin.ResumeHandler)
			admin.POST("/pairs", h.Admin.UpsertPairHandler)
			admin.POST("/balances", h.Admin.SetBalanceHandler)
			admin.POST("/totp/generate", h.Admin.GenerateTOTPSecretHandler)
		}
	}

	// ============ NoRoute handler for 404 ============
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"message":    "Endpoint not found",
			"path":       c.Request.URL.Path,
			"suggestion": "Check /api endpoints for available APIs",
		})
	})

	return r
}
