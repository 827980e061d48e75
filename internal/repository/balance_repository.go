package repository

import (
	"context"

	"darkpool-backend/internal/models"

	"gorm.io/gorm"
)

// BalanceRepository defines data access for per-user token balances
type BalanceRepository interface {
	Upsert(ctx context.Context, balance *models.UserBalance) error
	FindByAddress(ctx context.Context, address string) ([]*models.UserBalance, error)
	List(ctx context.Context) ([]*models.UserBalance, error)
}

// balanceRepository implements BalanceRepository
type balanceRepository struct {
	db *gorm.DB
}

// NewBalanceRepository creates a new BalanceRepository instance
func NewBalanceRepository(db *gorm.DB) BalanceRepository {
	return &balanceRepository{db: db}
}

// Upsert creates or replaces a user's balance record for one token
func (r *balanceRepository) Upsert(ctx context.Context, balance *models.UserBalance) error {
	return r.db.WithContext(ctx).Save(balance).Error
}

// FindByAddress retrieves all token balances recorded for a user
func (r *balanceRepository) FindByAddress(ctx context.Context, address string) ([]*models.UserBalance, error) {
	var balances []*models.UserBalance
	err := r.db.WithContext(ctx).
		Where("address = ?", address).
		Order("token ASC").
		Find(&balances).Error
	return balances, err
}

// List retrieves every balance record
func (r *balanceRepository) List(ctx context.Context) ([]*models.UserBalance, error) {
	var balances []*models.UserBalance
	err := r.db.WithContext(ctx).Order("address ASC, token ASC").Find(&balances).Error
	return balances, err
}
