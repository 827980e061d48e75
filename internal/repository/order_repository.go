package repository

import (
	"context"

	"darkpool-backend/internal/models"

	"gorm.io/gorm"
)

// OrderRepository defines data access for commitment records and revealed
// orders. Rows mirror the engine's in-memory state for queries and audit.
type OrderRepository interface {
	// Commitment records
	CreateCommitment(ctx context.Context, record *models.CommitmentRecord) error
	GetCommitment(ctx context.Context, commitment string) (*models.CommitmentRecord, error)
	UpdateCommitmentStatus(ctx context.Context, commitment string, status models.CommitmentStatus) error
	CountCommitmentsByStatus(ctx context.Context, status models.CommitmentStatus) (int64, error)

	// Revealed orders
	CreateOrder(ctx context.Context, order *models.Order) error
	UpdateOrderStatus(ctx context.Context, commitment string, status models.OrderStatus) error
	FindOrdersByTrader(ctx context.Context, trader string) ([]*models.Order, error)
	CountOrders(ctx context.Context) (int64, error)
}

// orderRepository implements OrderRepository
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new OrderRepository instance
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// CreateCommitment stores a new commitment record
func (r *orderRepository) CreateCommitment(ctx context.Context, record *models.CommitmentRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// GetCommitment retrieves a commitment record by its hash
func (r *orderRepository) GetCommitment(ctx context.Context, commitment string) (*models.CommitmentRecord, error) {
	var record models.CommitmentRecord
	err := r.db.WithContext(ctx).Where("commitment = ?", commitment).First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// UpdateCommitmentStatus updates the status of a commitment record
func (r *orderRepository) UpdateCommitmentStatus(ctx context.Context, commitment string, status models.CommitmentStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.CommitmentRecord{}).
		Where("commitment = ?", commitment).
		Update("status", status).Error
}

// CountCommitmentsByStatus counts commitment records in a given status
func (r *orderRepository) CountCommitmentsByStatus(ctx context.Context, status models.CommitmentStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CommitmentRecord{}).
		Where("status = ?", status).
		Count(&count).Error
	return count, err
}

// CreateOrder stores a revealed order
func (r *orderRepository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// UpdateOrderStatus updates the status of a revealed order
func (r *orderRepository) UpdateOrderStatus(ctx context.Context, commitment string, status models.OrderStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("commitment = ?", commitment).
		Update("status", status).Error
}

// FindOrdersByTrader finds revealed orders for a trader
func (r *orderRepository) FindOrdersByTrader(ctx context.Context, trader string) ([]*models.Order, error) {
	var orders []*models.Order
	err := r.db.WithContext(ctx).
		Where("trader = ?", trader).
		Order("revealed_at DESC").
		Find(&orders).Error
	return orders, err
}

// CountOrders counts all revealed orders
func (r *orderRepository) CountOrders(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Order{}).Count(&count).Error
	return count, err
}
