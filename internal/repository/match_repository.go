package repository

import (
	"context"

	"darkpool-backend/internal/models"

	"gorm.io/gorm"
)

// MatchRepository defines data access for executed matches
type MatchRepository interface {
	Create(ctx context.Context, match *models.Match) error
	GetByID(ctx context.Context, id string) (*models.Match, error)
	FindRecent(ctx context.Context, limit int) ([]*models.Match, error)
	FindByEpoch(ctx context.Context, epoch uint64) ([]*models.Match, error)
	Count(ctx context.Context) (int64, error)
	TotalVolume(ctx context.Context) (string, error)
}

// matchRepository implements MatchRepository
type matchRepository struct {
	db *gorm.DB
}

// NewMatchRepository creates a new MatchRepository instance
func NewMatchRepository(db *gorm.DB) MatchRepository {
	return &matchRepository{db: db}
}

// Create stores an executed match
func (r *matchRepository) Create(ctx context.Context, match *models.Match) error {
	return r.db.WithContext(ctx).Create(match).Error
}

// GetByID retrieves a match by ID
func (r *matchRepository) GetByID(ctx context.Context, id string) (*models.Match, error) {
	var match models.Match
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&match).Error
	if err != nil {
		return nil, err
	}
	return &match, nil
}

// FindRecent retrieves the most recent matches, newest first
func (r *matchRepository) FindRecent(ctx context.Context, limit int) ([]*models.Match, error) {
	var matches []*models.Match
	err := r.db.WithContext(ctx).
		Order("timestamp DESC").
		Limit(limit).
		Find(&matches).Error
	return matches, err
}

// FindByEpoch retrieves all matches produced in one epoch
func (r *matchRepository) FindByEpoch(ctx context.Context, epoch uint64) ([]*models.Match, error) {
	var matches []*models.Match
	err := r.db.WithContext(ctx).
		Where("epoch = ?", epoch).
		Order("timestamp ASC").
		Find(&matches).Error
	return matches, err
}

// Count counts all matches
func (r *matchRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Match{}).Count(&count).Error
	return count, err
}

// TotalVolume sums the quote volume across all matches. Volumes are stored
// as decimal strings, so the sum happens in the database as numeric.
func (r *matchRepository) TotalVolume(ctx context.Context) (string, error) {
	var total string
	err := r.db.WithContext(ctx).Model(&models.Match{}).
		Select("COALESCE(SUM(volume::numeric), 0)::text").
		Scan(&total).Error
	return total, err
}
