package handlers

import (
	"net/http"

	"github.com/28devcom/whats-suite-feed-nps-sub002/internal/repo"
	"github.com/28devcom/whats-suite-feed-nps-sub002/internal/services"
	"github.com/28devcom/whats-suite-feed-nps-sub002/pkg/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// ConversationHandler handles conversation and assignment endpoints
type ConversationHandler struct {
	assignmentService *services.AssignmentService
	conversationRepo  *repo.ConversationRepository
	queueRepo         *repo.QueueRepository
}

// NewConversationHandler creates a new conversation handler
func NewConversationHandler(assignmentService *services.AssignmentService, conversationRepo *repo.ConversationRepository, queueRepo *repo.QueueRepository) *ConversationHandler {
	return &ConversationHandler{
		assignmentService: assignmentService,
		conversationRepo:  conversationRepo,
		queueRepo:         queueRepo,
	}
}

// CreateConversationRequest represents an explicit conversation creation
type CreateConversationRequest struct {
	ChannelID string  `json:"channel_id" validate:"required,uuid"`
	QueueID   *string `json:"queue_id" validate:"omitempty,uuid"`
	Contact   string  `json:"contact" validate:"required"`
}

// Create creates a new open conversation
func (h *ConversationHandler) Create(c echo.Context) error {
	var req CreateConversationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	tenant, err := tenantID(c)
	if err != nil {
		return err
	}

	conversation := &models.Conversation{
		ChannelID: uuid.MustParse(req.ChannelID),
		Contact:   req.Contact,
		Status:    models.ConversationStatusOpen,
	}
	conversation.TenantID = tenant
	if req.QueueID != nil {
		queueID := uuid.MustParse(*req.QueueID)
		conversation.QueueID = &queueID
	}

	if err := h.conversationRepo.Create(conversation); err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusCreated, conversation)
}

// GetByID returns a conversation
func (h *ConversationHandler) GetByID(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	tenant, err := tenantID(c)
	if err != nil {
		return err
	}

	conversation, err := h.conversationRepo.GetByIDAndTenant(id, tenant)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, conversation)
}

// List returns the tenant's conversations, optionally filtered by status
func (h *ConversationHandler) List(c echo.Context) error {
	tenant, err := tenantID(c)
	if err != nil {
		return err
	}

	limit, offset := pagination(c)
	result, err := h.conversationRepo.ListByTenant(tenant, c.QueryParam("status"), limit, offset)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

// ManualAssignRequest represents a manual assignment command
type ManualAssignRequest struct {
	AgentID string `json:"agent_id" validate:"required,uuid"`
	Reason  string `json:"reason"`
}

// ManualAssign assigns a specific agent to a conversation
func (h *ConversationHandler) ManualAssign(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	var req ManualAssignRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	conversation, err := h.assignmentService.ManualAssign(id, uuid.MustParse(req.AgentID), actorID(c), req.Reason)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, conversation)
}

// AutoAssignRequest represents an automatic assignment command. When the
// candidate list is omitted the conversation queue's members are used.
type AutoAssignRequest struct {
	CandidateAgentIDs []string `json:"candidate_agent_ids" validate:"omitempty,dive,uuid"`
}

// AutoAssign assigns the least-loaded eligible agent to a conversation
func (h *ConversationHandler) AutoAssign(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	var req AutoAssignRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	candidates := make([]uuid.UUID, 0, len(req.CandidateAgentIDs))
	for _, raw := range req.CandidateAgentIDs {
		candidates = append(candidates, uuid.MustParse(raw))
	}

	if len(candidates) == 0 {
		candidates, err = h.queueCandidates(id)
		if err != nil {
			return serviceError(c, err)
		}
	}

	conversation, err := h.assignmentService.AutoAssign(id, candidates, actorID(c))
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, conversation)
}

// ChangeStatusRequest represents a status transition command
type ChangeStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=open assigned closed"`
}

// ChangeStatus applies a status transition to a conversation
func (h *ConversationHandler) ChangeStatus(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	var req ChangeStatusRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	conversation, err := h.assignmentService.ChangeStatus(id, req.Status, actorID(c))
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, conversation)
}

// History returns the assignment and status event trails of a conversation
func (h *ConversationHandler) History(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	history, err := h.assignmentService.History(id)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, history)
}

// queueCandidates loads the member agents of the conversation's queue
func (h *ConversationHandler) queueCandidates(conversationID uuid.UUID) ([]uuid.UUID, error) {
	conversation, err := h.conversationRepo.GetByID(conversationID)
	if err != nil {
		return nil, err
	}
	if conversation.QueueID == nil {
		return nil, nil
	}
	return h.queueRepo.ListAgentIDs(*conversation.QueueID)
}
