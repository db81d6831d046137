package models

import (
	"time"

	"github.com/google/uuid"
)

// Conversation status values
const (
	ConversationStatusOpen     = "open"
	ConversationStatusAssigned = "assigned"
	ConversationStatusClosed   = "closed"
)

// Channel represents a messaging connection/line (WhatsApp session)
type Channel struct {
	BaseTenantModel
	Name     string `gorm:"not null" json:"name" validate:"required"`
	Type     string `gorm:"not null;default:'whatsapp'" json:"type"`
	Session  string `gorm:"not null" json:"session" validate:"required"` // session identifier on the gateway
	Status   string `gorm:"default:'disconnected'" json:"status"`        // disconnected, connecting, connected
	IsActive bool   `gorm:"default:true" json:"is_active"`
}

// Conversation represents a conversation with a customer.
// Invariant: status is assigned exactly when assigned_agent_id is set,
// and open conversations never carry an agent.
type Conversation struct {
	BaseTenantModel
	ChannelID       uuid.UUID  `gorm:"type:uuid;not null;constraint:OnDelete:RESTRICT" json:"channel_id"`
	QueueID         *uuid.UUID `gorm:"type:uuid;index;constraint:OnDelete:SET NULL" json:"queue_id"`
	AssignedAgentID *uuid.UUID `gorm:"type:uuid;index;constraint:OnDelete:SET NULL" json:"assigned_agent_id"`
	Contact         string     `gorm:"not null;index" json:"contact"` // customer chat id, e.g. 5527999999999@c.us
	Status          string     `gorm:"default:'open';index" json:"status"`
	LastMessageAt   *time.Time `json:"last_message_at"`

	// Relations
	Channel       *Channel `gorm:"foreignKey:ChannelID" json:"channel,omitempty"`
	Queue         *Queue   `gorm:"foreignKey:QueueID" json:"queue,omitempty"`
	AssignedAgent *User    `gorm:"foreignKey:AssignedAgentID" json:"assigned_agent,omitempty"`
}

// IsClosed reports whether the conversation reached the closed state
func (c *Conversation) IsClosed() bool {
	return c.Status == ConversationStatusClosed
}

// AssignmentEvent is the append-only audit trail of agent assignments.
// Rows are never updated after creation.
type AssignmentEvent struct {
	BaseTenantModel
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index;constraint:OnDelete:RESTRICT" json:"conversation_id"`
	AgentID        uuid.UUID `gorm:"type:uuid;not null" json:"agent_id"`
	ActorID        uuid.UUID `gorm:"type:uuid;not null" json:"actor_id"`
	Reason         string    `json:"reason"`
}

// StatusEvent is the append-only audit trail of status transitions
type StatusEvent struct {
	BaseTenantModel
	ConversationID uuid.UUID `gorm:"type:uuid;not null;index;constraint:OnDelete:RESTRICT" json:"conversation_id"`
	FromStatus     string    `gorm:"not null" json:"from_status"`
	ToStatus       string    `gorm:"not null" json:"to_status"`
	ActorID        uuid.UUID `gorm:"type:uuid;not null" json:"actor_id"`
}

// Queue represents a named pool of agents and channels used to scope
// auto-assignment eligibility
type Queue struct {
	BaseTenantModel
	Name   string `gorm:"not null" json:"name" validate:"required"`
	Active bool   `gorm:"default:true" json:"active"`
}

// QueueAgent links a queue to a member agent
type QueueAgent struct {
	BaseTenantModel
	QueueID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_queue_agents_member;constraint:OnDelete:CASCADE" json:"queue_id"`
	UserID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_queue_agents_member;constraint:OnDelete:CASCADE" json:"user_id"`
}

// QueueChannel links a queue to a member channel
type QueueChannel struct {
	BaseTenantModel
	QueueID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_queue_channels_member;constraint:OnDelete:CASCADE" json:"queue_id"`
	ChannelID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_queue_channels_member;constraint:OnDelete:CASCADE" json:"channel_id"`
}

// MessageTemplate represents a message template with {{variable}} placeholders
type MessageTemplate struct {
	BaseTenantModel
	Title     string `gorm:"not null" json:"title" validate:"required"`
	Content   string `gorm:"not null;type:text" json:"content" validate:"required"`
	Variables string `gorm:"type:text" json:"variables"` // JSON array of variable names
	IsActive  bool   `gorm:"default:true" json:"is_active"`
}

// ConversationHistory bundles both event sequences for a conversation,
// each ordered by creation time ascending
type ConversationHistory struct {
	Assignments []AssignmentEvent `json:"assignments"`
	Statuses    []StatusEvent     `json:"statuses"`
}
