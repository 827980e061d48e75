package handlers

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"

	"darkpool-backend/internal/config"
	"darkpool-backend/internal/dto"
	"darkpool-backend/internal/models"
	"darkpool-backend/internal/services"
)

// AdminHandler exposes operator controls: trading pause/resume and the
// trading pair registry. Sensitive operations require a TOTP code on top of
// the IP allowlist.
type AdminHandler struct {
	engine   *services.MatchingEngine
	pairs    *services.PairRegistry
	balances *services.BalanceBook
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(engine *services.MatchingEngine, pairs *services.PairRegistry, balances *services.BalanceBook) *AdminHandler {
	return &AdminHandler{engine: engine, pairs: pairs, balances: balances}
}

// requireTOTP validates the X-TOTP-Code header against the configured
// secret. An unset secret disables the check for local development.
func (h *AdminHandler) requireTOTP(c *gin.Context) bool {
	secret := config.AppConfig.Admin.TOTPSecret
	if secret == "" {
		logrus.Warn("⚠️ Admin TOTP secret not configured, skipping verification")
		return true
	}
	code := c.GetHeader("X-TOTP-Code")
	if code == "" || !totp.Validate(code, secret) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"message": "invalid TOTP code",
		})
		return false
	}
	return true
}

// PauseHandler halts order intake. Resting orders keep matching and
// channels stay operational.
// POST /api/admin/pause
func (h *AdminHandler) PauseHandler(c *gin.Context) {
	if !h.requireTOTP(c) {
		return
	}
	h.engine.Pause()
	c.JSON(http.StatusOK, gin.H{"success": true, "paused": true})
}

// ResumeHandler re-enables order intake.
// POST /api/admin/resume
func (h *AdminHandler) ResumeHandler(c *gin.Context) {
	if !h.requireTOTP(c) {
		return
	}
	h.engine.Resume()
	c.JSON(http.StatusOK, gin.H{"success": true, "paused": false})
}

// UpsertPairHandler lists or updates a trading pair.
// POST /api/admin/pairs
func (h *AdminHandler) UpsertPairHandler(c *gin.Context) {
	if !h.requireTOTP(c) {
		return
	}

	var pair models.TradingPair
	if err := c.ShouldBindJSON(&pair); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	if pair.TokenIn == "" || pair.TokenOut == "" || pair.TokenIn == pair.TokenOut {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid token pair"})
		return
	}
	pair.ID = services.PairID(pair.TokenIn, pair.TokenOut)

	if err := h.pairs.Upsert(c.Request.Context(), &pair); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "pair": pair})
}

// SetBalanceHandler records a user's absolute token balance after an
// off-band settlement confirms.
// POST /api/admin/balances
func (h *AdminHandler) SetBalanceHandler(c *gin.Context) {
	if !h.requireTOTP(c) {
		return
	}

	var req dto.SetBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}

	balance, err := h.balances.Set(c.Request.Context(), req.Address, req.Token, req.Amount)
	if err != nil {
		status, code := intakeStatus(err)
		c.JSON(status, gin.H{"success": false, "code": code, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "balance": balance})
}

// ListPairsHandler returns all registered pairs. Public read.
// GET /api/pairs
func (h *AdminHandler) ListPairsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"pairs":   h.pairs.List(),
	})
}

// GenerateTOTPSecretHandler bootstraps an operator TOTP secret. Disabled
// once a secret is configured.
// POST /api/admin/totp/generate
func (h *AdminHandler) GenerateTOTPSecretHandler(c *gin.Context) {
	if config.AppConfig.Admin.TOTPSecret != "" || os.Getenv("ADMIN_TOTP_SECRET") != "" {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"message": "TOTP secret already configured",
		})
		return
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "Darkpool Admin",
		AccountName: "operator",
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "failed to generate TOTP secret",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"secret":  key.Secret(),
		"url":     key.URL(),
		"message": "Save this secret to the admin.totpSecret config or ADMIN_TOTP_SECRET env var",
	})
}
