package repository

import (
	"context"

	"darkpool-backend/internal/models"

	"gorm.io/gorm"
)

// TradingPairRepository defines data access for trading pair listings
type TradingPairRepository interface {
	Upsert(ctx context.Context, pair *models.TradingPair) error
	GetByID(ctx context.Context, id string) (*models.TradingPair, error)
	List(ctx context.Context) ([]*models.TradingPair, error)
}

// tradingPairRepository implements TradingPairRepository
type tradingPairRepository struct {
	db *gorm.DB
}

// NewTradingPairRepository creates a new TradingPairRepository instance
func NewTradingPairRepository(db *gorm.DB) TradingPairRepository {
	return &tradingPairRepository{db: db}
}

// Upsert creates or replaces a trading pair listing
func (r *tradingPairRepository) Upsert(ctx context.Context, pair *models.TradingPair) error {
	return r.db.WithContext(ctx).Save(pair).Error
}

// GetByID retrieves a trading pair by its "<tokenIn>/<tokenOut>" id
func (r *tradingPairRepository) GetByID(ctx context.Context, id string) (*models.TradingPair, error) {
	var pair models.TradingPair
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&pair).Error
	if err != nil {
		return nil, err
	}
	return &pair, nil
}

// List retrieves all trading pairs
func (r *tradingPairRepository) List(ctx context.Context) ([]*models.TradingPair, error) {
	var pairs []*models.TradingPair
	err := r.db.WithContext(ctx).Order("id ASC").Find(&pairs).Error
	return pairs, err
}
