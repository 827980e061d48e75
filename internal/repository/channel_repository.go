package repository

import (
	"context"

	"darkpool-backend/internal/models"

	"gorm.io/gorm"
)

// ChannelRepository defines data access for channels and emergency requests
type ChannelRepository interface {
	// Channels
	Create(ctx context.Context, channel *models.Channel) error
	GetByParticipant(ctx context.Context, participant string) (*models.Channel, error)
	Save(ctx context.Context, channel *models.Channel) error
	CountActive(ctx context.Context) (int64, error)
	FindByParticipants(ctx context.Context, participants []string) ([]*models.Channel, error)

	// Emergency requests
	CreateEmergencyRequest(ctx context.Context, request *models.EmergencyRequest) error
	GetPendingEmergencyRequest(ctx context.Context, channelID string) (*models.EmergencyRequest, error)
	SaveEmergencyRequest(ctx context.Context, request *models.EmergencyRequest) error
}

// channelRepository implements ChannelRepository
type channelRepository struct {
	db *gorm.DB
}

// NewChannelRepository creates a new ChannelRepository instance
func NewChannelRepository(db *gorm.DB) ChannelRepository {
	return &channelRepository{db: db}
}

// Create stores a newly opened channel
func (r *channelRepository) Create(ctx context.Context, channel *models.Channel) error {
	return r.db.WithContext(ctx).Create(channel).Error
}

// GetByParticipant retrieves the channel owned by a participant
func (r *channelRepository) GetByParticipant(ctx context.Context, participant string) (*models.Channel, error) {
	var channel models.Channel
	err := r.db.WithContext(ctx).Where("participant = ?", participant).First(&channel).Error
	if err != nil {
		return nil, err
	}
	return &channel, nil
}

// Save persists channel mutations
func (r *channelRepository) Save(ctx context.Context, channel *models.Channel) error {
	return r.db.WithContext(ctx).Save(channel).Error
}

// CountActive counts active channels
func (r *channelRepository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Channel{}).
		Where("is_active = ?", true).
		Count(&count).Error
	return count, err
}

// FindByParticipants retrieves channels for a set of participants
func (r *channelRepository) FindByParticipants(ctx context.Context, participants []string) ([]*models.Channel, error) {
	var channels []*models.Channel
	err := r.db.WithContext(ctx).
		Where("participant IN ?", participants).
		Find(&channels).Error
	return channels, err
}

// CreateEmergencyRequest stores a new emergency withdrawal request
func (r *channelRepository) CreateEmergencyRequest(ctx context.Context, request *models.EmergencyRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

// GetPendingEmergencyRequest retrieves the outstanding non-executed request
// for a channel, if any
func (r *channelRepository) GetPendingEmergencyRequest(ctx context.Context, channelID string) (*models.EmergencyRequest, error) {
	var request models.EmergencyRequest
	err := r.db.WithContext(ctx).
		Where("channel_id = ? AND is_executed = ?", channelID, false).
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// SaveEmergencyRequest persists emergency request mutations
func (r *channelRepository) SaveEmergencyRequest(ctx context.Context, request *models.EmergencyRequest) error {
	return r.db.WithContext(ctx).Save(request).Error
}
