package repo

import (
	"github.com/28devcom/whats-suite-feed-nps-sub002/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationRepository handles conversation data access. It is the only
// writer of conversation rows and their event trails.
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository creates a new conversation repository
func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// GetByID gets a conversation by ID
func (r *ConversationRepository) GetByID(id uuid.UUID) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.Where("id = ?", id).First(&conversation).Error
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// GetByIDAndTenant gets a conversation by ID and tenant ID for security
func (r *ConversationRepository) GetByIDAndTenant(id, tenantID uuid.UUID) (*models.Conversation, error) {
	var conversation models.Conversation
	err := r.db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&conversation).Error
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// Create creates a new conversation
func (r *ConversationRepository) Create(conversation *models.Conversation) error {
	return r.db.Create(conversation).Error
}

// CommitAssignment persists an assignment in a single transaction: the
// conversation row update plus its AssignmentEvent and StatusEvent rows.
// A crash never leaves an assignment without its audit trail.
func (r *ConversationRepository) CommitAssignment(conversation *models.Conversation, assignment *models.AssignmentEvent, status *models.StatusEvent) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(conversation).Error; err != nil {
			return err
		}
		if err := tx.Create(assignment).Error; err != nil {
			return err
		}
		return tx.Create(status).Error
	})
}

// CommitAssignmentIfStatus is the compare-and-set variant of CommitAssignment
// used by auto-assignment: the conversation row is only written if its status
// still equals expectedStatus at commit time. Returns false when the row was
// concurrently assigned and nothing was written.
func (r *ConversationRepository) CommitAssignmentIfStatus(conversation *models.Conversation, expectedStatus string, assignment *models.AssignmentEvent, status *models.StatusEvent) (bool, error) {
	won := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Conversation{}).
			Where("id = ? AND status = ?", conversation.ID, expectedStatus).
			Updates(map[string]interface{}{
				"assigned_agent_id": conversation.AssignedAgentID,
				"status":            conversation.Status,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Lost the race, leave the events unwritten
			return nil
		}
		won = true
		if err := tx.Create(assignment).Error; err != nil {
			return err
		}
		return tx.Create(status).Error
	})
	return won, err
}

// CommitStatus persists a status transition and its StatusEvent atomically
func (r *ConversationRepository) CommitStatus(conversation *models.Conversation, status *models.StatusEvent) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Conversation{}).
			Where("id = ?", conversation.ID).
			Updates(map[string]interface{}{
				"assigned_agent_id": conversation.AssignedAgentID,
				"status":            conversation.Status,
			})
		if result.Error != nil {
			return result.Error
		}
		return tx.Create(status).Error
	})
}

// CountOpenAssignedByAgent counts the conversations currently assigned to an
// agent, the load figure used by auto-assignment
func (r *ConversationRepository) CountOpenAssignedByAgent(agentID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.Model(&models.Conversation{}).
		Where("assigned_agent_id = ? AND status = ?", agentID, models.ConversationStatusAssigned).
		Count(&count).Error
	return count, err
}

// ListAssignmentEvents lists assignment events for a conversation ordered by
// creation time ascending
func (r *ConversationRepository) ListAssignmentEvents(conversationID uuid.UUID) ([]models.AssignmentEvent, error) {
	var events []models.AssignmentEvent
	err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}

// ListStatusEvents lists status events for a conversation ordered by creation
// time ascending
func (r *ConversationRepository) ListStatusEvents(conversationID uuid.UUID) ([]models.StatusEvent, error) {
	var events []models.StatusEvent
	err := r.db.Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Find(&events).Error
	return events, err
}

// ListByTenant lists conversations for a tenant with pagination
func (r *ConversationRepository) ListByTenant(tenantID uuid.UUID, status string, limit, offset int) (models.PaginationResult[models.Conversation], error) {
	var conversations []models.Conversation
	var total int64

	query := r.db.Model(&models.Conversation{}).Where("tenant_id = ?", tenantID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return models.PaginationResult[models.Conversation]{}, err
	}

	err := query.Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&conversations).Error
	if err != nil {
		return models.PaginationResult[models.Conversation]{}, err
	}

	return paginate(conversations, total, limit, offset), nil
}

// paginate builds a PaginationResult from a page of rows
func paginate[T any](data []T, total int64, limit, offset int) models.PaginationResult[T] {
	page := 1
	totalPages := 1
	if limit > 0 {
		page = (offset / limit) + 1
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}

	return models.PaginationResult[T]{
		Data:       data,
		Total:      total,
		Page:       page,
		PerPage:    limit,
		TotalPages: totalPages,
	}
}
