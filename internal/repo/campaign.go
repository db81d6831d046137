package repo

import (
	"time"

	"github.com/28devcom/whats-suite-feed-nps-sub002/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CampaignRepository handles campaign data access. The dispatcher is the only
// writer of campaign and target status fields; state transitions go through
// the conditional-update helpers so concurrent writers lose cleanly.
type CampaignRepository struct {
	db *gorm.DB
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *gorm.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// GetByID gets a campaign by ID
func (r *CampaignRepository) GetByID(id uuid.UUID) (*models.Campaign, error) {
	var campaign models.Campaign
	err := r.db.Where("id = ?", id).First(&campaign).Error
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

// GetByIDAndTenant gets a campaign by ID and tenant ID for security
func (r *CampaignRepository) GetByIDAndTenant(id, tenantID uuid.UUID) (*models.Campaign, error) {
	var campaign models.Campaign
	err := r.db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&campaign).Error
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

// CreateWithTargets creates a campaign and its target list in one transaction
func (r *CampaignRepository) CreateWithTargets(campaign *models.Campaign, targets []models.CampaignTarget) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(campaign).Error; err != nil {
			return err
		}
		for i := range targets {
			targets[i].CampaignID = campaign.ID
			targets[i].TenantID = campaign.TenantID
			if targets[i].Status == "" {
				targets[i].Status = models.TargetStatusPending
			}
			if err := tx.Create(&targets[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateStatusIf writes the campaign status only if it currently equals one of
// the expected values. Returns false when the row was in another state and
// nothing was written.
func (r *CampaignRepository) UpdateStatusIf(id uuid.UUID, expected []string, to string) (bool, error) {
	result := r.db.Model(&models.Campaign{}).
		Where("id = ? AND status IN ?", id, expected).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ScheduleIfDraft records the scheduled time and moves draft to scheduled in
// one conditional update
func (r *CampaignRepository) ScheduleIfDraft(id uuid.UUID, at time.Time) (bool, error) {
	result := r.db.Model(&models.Campaign{}).
		Where("id = ? AND status = ?", id, models.CampaignStatusDraft).
		Updates(map[string]interface{}{
			"status":       models.CampaignStatusScheduled,
			"scheduled_at": at,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ListPendingTargets lists the pending targets of a campaign in creation order
func (r *CampaignRepository) ListPendingTargets(campaignID uuid.UUID) ([]models.CampaignTarget, error) {
	var targets []models.CampaignTarget
	err := r.db.Where("campaign_id = ? AND status = ?", campaignID, models.TargetStatusPending).
		Order("created_at ASC").
		Find(&targets).Error
	return targets, err
}

// MarkTargetSent marks a target as sent and appends the send event atomically
func (r *CampaignRepository) MarkTargetSent(target *models.CampaignTarget, event *models.CampaignEvent) error {
	now := time.Now()
	return r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.CampaignTarget{}).
			Where("id = ?", target.ID).
			Updates(map[string]interface{}{
				"status":     models.TargetStatusSent,
				"last_error": "",
				"sent_at":    now,
			})
		if result.Error != nil {
			return result.Error
		}
		return tx.Create(event).Error
	})
}

// MarkTargetFailed marks a target as failed, records the error and appends
// the failure event atomically
func (r *CampaignRepository) MarkTargetFailed(target *models.CampaignTarget, sendErr string, event *models.CampaignEvent) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.CampaignTarget{}).
			Where("id = ?", target.ID).
			Updates(map[string]interface{}{
				"status":     models.TargetStatusFailed,
				"last_error": sendErr,
			})
		if result.Error != nil {
			return result.Error
		}
		return tx.Create(event).Error
	})
}

// RequeueTargetIfFailed moves a failed target back to pending so a later run
// picks it up again. Returns false when the target was not in failed state.
func (r *CampaignRepository) RequeueTargetIfFailed(campaignID, targetID uuid.UUID) (bool, error) {
	result := r.db.Model(&models.CampaignTarget{}).
		Where("id = ? AND campaign_id = ? AND status = ?", targetID, campaignID, models.TargetStatusFailed).
		Updates(map[string]interface{}{
			"status":     models.TargetStatusPending,
			"last_error": "",
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// AppendEvent appends a campaign lifecycle event
func (r *CampaignRepository) AppendEvent(event *models.CampaignEvent) error {
	return r.db.Create(event).Error
}

// ListTargets lists campaign targets with optional status filter, paginated,
// in creation order
func (r *CampaignRepository) ListTargets(campaignID uuid.UUID, status string, limit, offset int) (models.PaginationResult[models.CampaignTarget], error) {
	var targets []models.CampaignTarget
	var total int64

	query := r.db.Model(&models.CampaignTarget{}).Where("campaign_id = ?", campaignID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return models.PaginationResult[models.CampaignTarget]{}, err
	}

	err := query.Order("created_at ASC").
		Limit(limit).Offset(offset).
		Find(&targets).Error
	if err != nil {
		return models.PaginationResult[models.CampaignTarget]{}, err
	}

	return paginate(targets, total, limit, offset), nil
}

// ListEvents lists campaign events paginated, in creation order
func (r *CampaignRepository) ListEvents(campaignID uuid.UUID, limit, offset int) (models.PaginationResult[models.CampaignEvent], error) {
	var events []models.CampaignEvent
	var total int64

	if err := r.db.Model(&models.CampaignEvent{}).Where("campaign_id = ?", campaignID).Count(&total).Error; err != nil {
		return models.PaginationResult[models.CampaignEvent]{}, err
	}

	err := r.db.Where("campaign_id = ?", campaignID).
		Order("created_at ASC").
		Limit(limit).Offset(offset).
		Find(&events).Error
	if err != nil {
		return models.PaginationResult[models.CampaignEvent]{}, err
	}

	return paginate(events, total, limit, offset), nil
}

// ListDueScheduled lists scheduled campaigns whose scheduled time has passed
func (r *CampaignRepository) ListDueScheduled(now time.Time) ([]models.Campaign, error) {
	var campaigns []models.Campaign
	err := r.db.Where("status = ? AND scheduled_at IS NOT NULL AND scheduled_at <= ?", models.CampaignStatusScheduled, now).
		Find(&campaigns).Error
	return campaigns, err
}

// GetTemplate gets the message template referenced by a campaign
func (r *CampaignRepository) GetTemplate(id uuid.UUID) (*models.MessageTemplate, error) {
	var template models.MessageTemplate
	err := r.db.Where("id = ?", id).First(&template).Error
	if err != nil {
		return nil, err
	}
	return &template, nil
}

// GetChannel gets the channel a campaign sends through
func (r *CampaignRepository) GetChannel(id uuid.UUID) (*models.Channel, error) {
	var channel models.Channel
	err := r.db.Where("id = ?", id).First(&channel).Error
	if err != nil {
		return nil, err
	}
	return &channel, nil
}
