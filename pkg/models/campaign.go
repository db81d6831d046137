package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Campaign status values
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusScheduled = "scheduled"
	CampaignStatusRunning   = "running"
	CampaignStatusCompleted = "completed"
	CampaignStatusFailed    = "failed"
)

// Campaign target status values
const (
	TargetStatusPending = "pending"
	TargetStatusSent    = "sent"
	TargetStatusFailed  = "failed"
)

// TargetVariables holds the per-target template variable values as JSONB
type TargetVariables map[string]string

// Value implements driver.Valuer for JSONB
func (v TargetVariables) Value() (driver.Value, error) {
	if v == nil {
		return "{}", nil
	}
	return json.Marshal(v)
}

// Scan implements sql.Scanner for JSONB
func (v *TargetVariables) Scan(value interface{}) error {
	if value == nil {
		*v = TargetVariables{}
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}

	return json.Unmarshal(bytes, v)
}

// Campaign represents a scheduled bulk-send job over a fixed target list
type Campaign struct {
	BaseTenantModel
	Name        string     `gorm:"not null" json:"name" validate:"required"`
	TemplateID  uuid.UUID  `gorm:"type:uuid;not null;constraint:OnDelete:RESTRICT" json:"template_id"`
	ChannelID   uuid.UUID  `gorm:"type:uuid;not null;constraint:OnDelete:RESTRICT" json:"channel_id"`
	Status      string     `gorm:"default:'draft';index" json:"status"`
	ScheduledAt *time.Time `json:"scheduled_at"`
	DelayMinMs  int        `gorm:"default:3000" json:"delay_min_ms"`
	DelayMaxMs  int        `gorm:"default:8000" json:"delay_max_ms"`

	// Relations
	Template *MessageTemplate `gorm:"foreignKey:TemplateID" json:"template,omitempty"`
	Channel  *Channel         `gorm:"foreignKey:ChannelID" json:"channel,omitempty"`
}

// CampaignTarget is one recipient within a campaign with its own send status.
// Target status, not loop position, is the dispatcher's source of truth for
// progress, so a restarted run resumes from the pending rows.
type CampaignTarget struct {
	BaseTenantModel
	CampaignID uuid.UUID       `gorm:"type:uuid;not null;index;constraint:OnDelete:CASCADE" json:"campaign_id"`
	Contact    string          `gorm:"not null" json:"contact" validate:"required"`
	Variables  TargetVariables `gorm:"type:jsonb;default:'{}'" json:"variables"`
	Status     string          `gorm:"default:'pending';index" json:"status"`
	LastError  string          `json:"last_error"`
	SentAt     *time.Time      `json:"sent_at"`
}

// CampaignEvent is the append-only lifecycle log of a campaign, one row per
// state change or send attempt
type CampaignEvent struct {
	BaseTenantModel
	CampaignID uuid.UUID `gorm:"type:uuid;not null;index;constraint:OnDelete:CASCADE" json:"campaign_id"`
	Type       string    `gorm:"not null" json:"type"` // scheduled, started, target_sent, target_failed, completed, failed, stopped
	Detail     string    `json:"detail"`
}

// Warmup run-state values
const (
	WarmupStateIdle    = "idle"
	WarmupStateRunning = "running"
	WarmupStatePaused  = "paused"
)

// WarmupStatus is the read-only snapshot returned by the warmup scheduler
type WarmupStatus struct {
	RunState         string      `json:"run_state"`
	SelectedChannels []uuid.UUID `json:"selected_channels"`
	LastCycleAt      *time.Time  `json:"last_cycle_at"`
	CyclesCompleted  int64       `json:"cycles_completed"`
}
