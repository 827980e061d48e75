package services

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"darkpool-backend/internal/models"
)

func TestPairIDCanonical(t *testing.T) {
	assert.Equal(t, PairID(tokenETH, tokenUSDC), PairID(tokenUSDC, tokenETH))
}

func TestEmptyRegistryAcceptsAll(t *testing.T) {
	r, err := NewPairRegistry(context.Background(), nil)
	assert.NoError(t, err)
	assert.NoError(t, r.Validate(tokenETH, tokenUSDC, big.NewInt(1)))
}

func TestRegistryValidation(t *testing.T) {
	r, _ := NewPairRegistry(context.Background(), nil)
	err := r.Upsert(context.Background(), &models.TradingPair{
		ID:           PairID(tokenETH, tokenUSDC),
		TokenIn:      tokenUSDC,
		TokenOut:     tokenETH,
		MinOrderSize: "100",
		MaxOrderSize: "10000",
		IsActive:     true,
	})
	assert.NoError(t, err)

	assert.NoError(t, r.Validate(tokenUSDC, tokenETH, big.NewInt(500)))
	// Both trade directions resolve to the listed pair.
	assert.NoError(t, r.Validate(tokenETH, tokenUSDC, big.NewInt(500)))

	assert.ErrorIs(t, r.Validate(tokenUSDC, tokenETH, big.NewInt(50)), ErrInputRejected)
	assert.ErrorIs(t, r.Validate(tokenUSDC, tokenETH, big.NewInt(20000)), ErrInputRejected)

	unlisted := "0xdddddddddddddddddddddddddddddddddddddddd"
	assert.ErrorIs(t, r.Validate(tokenUSDC, unlisted, big.NewInt(500)), ErrInputRejected)
}

func TestRegistrySuspendedPair(t *testing.T) {
	r, _ := NewPairRegistry(context.Background(), nil)
	_ = r.Upsert(context.Background(), &models.TradingPair{
		ID:       PairID(tokenETH, tokenUSDC),
		TokenIn:  tokenUSDC,
		TokenOut: tokenETH,
		IsActive: false,
	})
	assert.ErrorIs(t, r.Validate(tokenUSDC, tokenETH, big.NewInt(1)), ErrInputRejected)
	assert.Len(t, r.List(), 1)
}
