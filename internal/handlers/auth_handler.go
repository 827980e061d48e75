package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"log"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"darkpool-backend/internal/config"
	"darkpool-backend/internal/dto"
)

// AuthHandler issues login challenges and exchanges wallet signatures for
// JWT tokens.
type AuthHandler struct {
	mu         sync.Mutex
	challenges map[string]challengeEntry // key: lowercase trader address
}

type challengeEntry struct {
	message  string
	issuedAt time.Time
}

const challengeTTL = 5 * time.Minute

// NewAuthHandler creates the auth handler.
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{challenges: make(map[string]challengeEntry)}
}

// ChallengeHandler issues a one-time message the wallet must sign.
// GET /api/auth/challenge?address=0x...
func (h *AuthHandler) ChallengeHandler(c *gin.Context) {
	address := strings.ToLower(c.Query("address"))
	if !common.IsHexAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "invalid trader address",
		})
		return
	}

	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"message": "challenge generation failed",
		})
		return
	}
	message := fmt.Sprintf("darkpool login %s nonce %s issued %d",
		address, hex.EncodeToString(nonce[:]), time.Now().Unix())

	h.mu.Lock()
	h.challenges[address] = challengeEntry{message: message, issuedAt: time.Now()}
	h.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": message,
	})
}

// AuthenticateHandler verifies a wallet signature over the issued challenge
// and returns a JWT.
// POST /api/auth/login
func (h *AuthHandler) AuthenticateHandler(c *gin.Context) {
	var req dto.AuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.AuthResponse{
			Success: false,
			Message: fmt.Sprintf("invalid request: %v", err),
		})
		return
	}

	address := strings.ToLower(req.TraderAddress)
	if !h.consumeChallenge(address, req.Message) {
		c.JSON(http.StatusUnauthorized, dto.AuthResponse{
			Success: false,
			Message: "unknown or expired challenge",
		})
		return
	}
	if !h.validateSignature(address, req.Message, req.Signature) {
		log.Printf("❌ Signature verification failed: trader=%s", address)
		c.JSON(http.StatusUnauthorized, dto.AuthResponse{
			Success: false,
			Message: "signature verification failed",
		})
		return
	}

	token, err := h.generateJWTToken(address)
	if err != nil {
		log.Printf("❌ JWT generation failed: %v", err)
		c.JSON(http.StatusInternalServerError, dto.AuthResponse{
			Success: false,
			Message: "token generation failed",
		})
		return
	}

	log.Printf("✅ Trader authenticated: %s", address)
	c.JSON(http.StatusOK, dto.AuthResponse{
		Success: true,
		Token:   token,
		Message: "authenticated",
	})
}

// consumeChallenge checks the submitted message against the issued one and
// burns it so a signature can never be replayed into a second token.
func (h *AuthHandler) consumeChallenge(address, message string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.challenges[address]
	if !ok {
		return false
	}
	delete(h.challenges, address)
	if time.Since(entry.issuedAt) > challengeTTL {
		return false
	}
	return entry.message == message
}

// validateSignature recovers the signer from an EIP-191 personal_sign
// signature and compares it to the claimed address.
func (h *AuthHandler) validateSignature(address, message, signature string) bool {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil || len(sig) != 65 {
		return false
	}
	// Wallets emit V as 27/28; go-ethereum expects 0/1.
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	prefixed := fmt.Sprintf("\x19Ethereum Signed Message:\n%d%s", len(message), message)
	digest := ethcrypto.Keccak256([]byte(prefixed))

	pub, err := ethcrypto.SigToPub(digest, sig)
	if err != nil {
		return false
	}
	recovered := ethcrypto.PubkeyToAddress(*pub)
	return strings.EqualFold(recovered.Hex(), address)
}

func (h *AuthHandler) generateJWTToken(address string) (string, error) {
	cfg := config.AppConfig.Auth
	expiry := time.Duration(cfg.TokenExpiry) * time.Second
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}

	claims := dto.JWTClaims{
		TraderAddress: address,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "darkpool-backend",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

// ValidateJWTToken parses and verifies a token string. Used by the auth
// middleware.
func ValidateJWTToken(tokenString string) (*dto.JWTClaims, error) {
	claims := &dto.JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(config.AppConfig.Auth.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
