package services

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"darkpool-backend/internal/models"
	"darkpool-backend/internal/repository"
)

// BalanceBook holds per-user token balances in memory, mirrored to the
// database. Balances are absolute values written by the settlement side
// after payouts confirm; they are a view, not a source of truth for the
// channel ledger.
type BalanceBook struct {
	mu       sync.RWMutex
	balances map[string]map[string]*models.UserBalance // address -> token -> record
	repo     repository.BalanceRepository

	now func() time.Time
}

// NewBalanceBook loads the recorded balances from the database.
func NewBalanceBook(ctx context.Context, repo repository.BalanceRepository) (*BalanceBook, error) {
	b := &BalanceBook{
		balances: make(map[string]map[string]*models.UserBalance),
		repo:     repo,
		now:      time.Now,
	}
	if repo != nil {
		records, err := repo.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading user balances: %w", err)
		}
		for _, record := range records {
			b.put(record)
		}
		logrus.WithField("records", len(records)).Info("📋 User balance book loaded")
	}
	return b, nil
}

func (b *BalanceBook) put(record *models.UserBalance) {
	byToken, ok := b.balances[record.Address]
	if !ok {
		byToken = make(map[string]*models.UserBalance)
		b.balances[record.Address] = byToken
	}
	byToken[record.Token] = record
}

// Set records the absolute balance of one token for one user, replacing any
// previous value.
func (b *BalanceBook) Set(ctx context.Context, address, token, amount string) (*models.UserBalance, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: invalid user address", ErrInputRejected)
	}
	if !common.IsHexAddress(token) {
		return nil, fmt.Errorf("%w: invalid token address", ErrInputRejected)
	}
	value, ok := new(big.Rat).SetString(amount)
	if !ok || value.Sign() < 0 {
		return nil, fmt.Errorf("%w: amount must be a non-negative decimal", ErrInputRejected)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	record := &models.UserBalance{
		Address:      strings.ToLower(address),
		Token:        strings.ToLower(token),
		Amount:       amount,
		LastUpdateAt: b.now(),
	}
	if b.repo != nil {
		if err := b.repo.Upsert(ctx, record); err != nil {
			return nil, fmt.Errorf("persisting balance for %s: %w", record.Address, err)
		}
	}
	b.put(record)

	snapshot := *record
	return &snapshot, nil
}

// Balances returns the recorded token balances for one user, empty when
// nothing has been recorded yet.
func (b *BalanceBook) Balances(address string) []*models.UserBalance {
	address = strings.ToLower(address)

	b.mu.RLock()
	defer b.mu.RUnlock()

	byToken := b.balances[address]
	out := make([]*models.UserBalance, 0, len(byToken))
	for _, record := range byToken {
		snapshot := *record
		out = append(out, &snapshot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out
}
