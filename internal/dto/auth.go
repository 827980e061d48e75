package dto

import "github.com/golang-jwt/jwt/v5"

// ==================== Auth DTOs ====================

// AuthRequest Authentication request structure
type AuthRequest struct {
	TraderAddress string `json:"trader_address" binding:"required"` // trader wallet address
	Message       string `json:"message" binding:"required"`        // challenge message to be signed
	Signature     string `json:"signature" binding:"required"`      // wallet signature, hex
}

// AuthResponse Authentication response structure
type AuthResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

// JWTClaims JWT Claims structure
type JWTClaims struct {
	TraderAddress string `json:"trader_address"` // wallet address
	jwt.RegisteredClaims
}
