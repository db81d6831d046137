package repo

import (
	"github.com/28devcom/whats-suite-feed-nps-sub002/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QueueRepository handles queue and membership data access. Membership writes
// run inside transactions so concurrent readers observe either the old or the
// new set, never a partial one.
type QueueRepository struct {
	db *gorm.DB
}

// NewQueueRepository creates a new queue repository
func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// GetByID gets a queue by ID
func (r *QueueRepository) GetByID(id uuid.UUID) (*models.Queue, error) {
	var queue models.Queue
	err := r.db.Where("id = ?", id).First(&queue).Error
	if err != nil {
		return nil, err
	}
	return &queue, nil
}

// Create creates a new queue
func (r *QueueRepository) Create(queue *models.Queue) error {
	return r.db.Create(queue).Error
}

// Update updates a queue
func (r *QueueRepository) Update(queue *models.Queue) error {
	return r.db.Save(queue).Error
}

// Delete deletes a queue (soft delete)
func (r *QueueRepository) Delete(id, tenantID uuid.UUID) error {
	result := r.db.Where("id = ? AND tenant_id = ?", id, tenantID).Delete(&models.Queue{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListByTenant lists queues for a tenant with pagination
func (r *QueueRepository) ListByTenant(tenantID uuid.UUID, limit, offset int) (models.PaginationResult[models.Queue], error) {
	var queues []models.Queue
	var total int64

	if err := r.db.Model(&models.Queue{}).Where("tenant_id = ?", tenantID).Count(&total).Error; err != nil {
		return models.PaginationResult[models.Queue]{}, err
	}

	err := r.db.Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&queues).Error
	if err != nil {
		return models.PaginationResult[models.Queue]{}, err
	}

	return paginate(queues, total, limit, offset), nil
}

// AddAgent adds an agent to a queue, ignoring duplicates
func (r *QueueRepository) AddAgent(tenantID, queueID, userID uuid.UUID) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.QueueAgent{}).
			Where("queue_id = ? AND user_id = ?", queueID, userID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		member := &models.QueueAgent{QueueID: queueID, UserID: userID}
		member.TenantID = tenantID
		return tx.Create(member).Error
	})
}

// RemoveAgent removes an agent from a queue
func (r *QueueRepository) RemoveAgent(queueID, userID uuid.UUID) error {
	return r.db.Unscoped().
		Where("queue_id = ? AND user_id = ?", queueID, userID).
		Delete(&models.QueueAgent{}).Error
}

// AddChannel adds a channel to a queue, ignoring duplicates
func (r *QueueRepository) AddChannel(tenantID, queueID, channelID uuid.UUID) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.QueueChannel{}).
			Where("queue_id = ? AND channel_id = ?", queueID, channelID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}
		member := &models.QueueChannel{QueueID: queueID, ChannelID: channelID}
		member.TenantID = tenantID
		return tx.Create(member).Error
	})
}

// RemoveChannel removes a channel from a queue
func (r *QueueRepository) RemoveChannel(queueID, channelID uuid.UUID) error {
	return r.db.Unscoped().
		Where("queue_id = ? AND channel_id = ?", queueID, channelID).
		Delete(&models.QueueChannel{}).Error
}

// IsAgentMember reports whether an agent belongs to a queue
func (r *QueueRepository) IsAgentMember(queueID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.Model(&models.QueueAgent{}).
		Where("queue_id = ? AND user_id = ?", queueID, userID).
		Count(&count).Error
	return count > 0, err
}

// ListAgentIDs lists the member agent ids of a queue
func (r *QueueRepository) ListAgentIDs(queueID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.Model(&models.QueueAgent{}).
		Where("queue_id = ?", queueID).
		Pluck("user_id", &ids).Error
	return ids, err
}

// ListChannelIDs lists the member channel ids of a queue
func (r *QueueRepository) ListChannelIDs(queueID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.Model(&models.QueueChannel{}).
		Where("queue_id = ?", queueID).
		Pluck("channel_id", &ids).Error
	return ids, err
}
