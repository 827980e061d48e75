package services

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/sirupsen/logrus"

	"darkpool-backend/internal/models"
	"darkpool-backend/internal/repository"
)

// PairRegistry holds the tradable pair set in memory, mirrored to the
// database through the repository. Pair IDs are "<tokenIn>/<tokenOut>" from
// the buy side's perspective; a pair listed once covers both directions.
type PairRegistry struct {
	mu    sync.RWMutex
	pairs map[string]*models.TradingPair
	repo  repository.TradingPairRepository
}

// NewPairRegistry loads the existing pair set from the database.
func NewPairRegistry(ctx context.Context, repo repository.TradingPairRepository) (*PairRegistry, error) {
	r := &PairRegistry{
		pairs: make(map[string]*models.TradingPair),
		repo:  repo,
	}
	if repo != nil {
		pairs, err := repo.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading trading pairs: %w", err)
		}
		for _, p := range pairs {
			r.pairs[p.ID] = p
		}
		logrus.WithField("pairs", len(pairs)).Info("📋 Trading pair registry loaded")
	}
	return r, nil
}

// PairID canonicalizes a token pair to its registry key. Both directions of
// a trade map to the same key by sorting the token addresses.
func PairID(tokenA, tokenB string) string {
	if tokenA > tokenB {
		tokenA, tokenB = tokenB, tokenA
	}
	return tokenA + "/" + tokenB
}

// Upsert registers or updates a pair and persists it.
func (r *PairRegistry) Upsert(ctx context.Context, pair *models.TradingPair) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.repo != nil {
		if err := r.repo.Upsert(ctx, pair); err != nil {
			return fmt.Errorf("persisting trading pair %s: %w", pair.ID, err)
		}
	}
	r.pairs[pair.ID] = pair
	return nil
}

// List returns a snapshot of all registered pairs.
func (r *PairRegistry) List() []models.TradingPair {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.TradingPair, 0, len(r.pairs))
	for _, p := range r.pairs {
		out = append(out, *p)
	}
	return out
}

// Validate checks a revealed order's pair and size against the registry.
// An empty registry accepts everything, so the engine works out of the box
// before an operator lists pairs.
func (r *PairRegistry) Validate(tokenIn, tokenOut string, amountIn *big.Int) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.pairs) == 0 {
		return nil
	}

	pair, ok := r.pairs[PairID(tokenIn, tokenOut)]
	if !ok {
		return fmt.Errorf("%w: pair %s/%s not listed", ErrInputRejected, tokenIn, tokenOut)
	}
	if !pair.IsActive {
		return fmt.Errorf("%w: pair %s suspended", ErrInputRejected, pair.ID)
	}

	if pair.MinOrderSize != "" {
		min, ok := new(big.Int).SetString(pair.MinOrderSize, 10)
		if ok && amountIn.Cmp(min) < 0 {
			return fmt.Errorf("%w: amount below pair minimum %s", ErrInputRejected, pair.MinOrderSize)
		}
	}
	if pair.MaxOrderSize != "" {
		max, ok := new(big.Int).SetString(pair.MaxOrderSize, 10)
		if ok && amountIn.Cmp(max) > 0 {
			return fmt.Errorf("%w: amount above pair maximum %s", ErrInputRejected, pair.MaxOrderSize)
		}
	}
	return nil
}
