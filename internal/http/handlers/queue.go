package handlers

import (
	"net/http"

	"github.com/28devcom/whats-suite-feed-nps-sub002/internal/repo"
	"github.com/28devcom/whats-suite-feed-nps-sub002/pkg/models"

	"github.com/labstack/echo/v4"
)

// QueueHandler handles queue directory admin endpoints
type QueueHandler struct {
	queueRepo *repo.QueueRepository
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(queueRepo *repo.QueueRepository) *QueueHandler {
	return &QueueHandler{queueRepo: queueRepo}
}

// CreateQueueRequest represents a queue creation command
type CreateQueueRequest struct {
	Name string `json:"name" validate:"required"`
}

// Create creates a new queue
func (h *QueueHandler) Create(c echo.Context) error {
	var req CreateQueueRequest
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

	queue := &models.Queue{Name: req.Name, Active: true}
	queue.TenantID = tenant

	if err := h.queueRepo.Create(queue); err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusCreated, queue)
}

// List returns the tenant's queues
func (h *QueueHandler) List(c echo.Context) error {
	tenant, err := tenantID(c)
	if err != nil {
		return err
	}

	limit, offset := pagination(c)
	result, err := h.queueRepo.ListByTenant(tenant, limit, offset)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

// GetByID returns a queue with its member sets
func (h *QueueHandler) GetByID(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	queue, err := h.queueRepo.GetByID(id)
	if err != nil {
		return serviceError(c, err)
	}

	agentIDs, err := h.queueRepo.ListAgentIDs(id)
	if err != nil {
		return serviceError(c, err)
	}

	channelIDs, err := h.queueRepo.ListChannelIDs(id)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"queue":       queue,
		"agent_ids":   agentIDs,
		"channel_ids": channelIDs,
	})
}

// Delete removes a queue
func (h *QueueHandler) Delete(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	tenant, err := tenantID(c)
	if err != nil {
		return err
	}

	if err := h.queueRepo.Delete(id, tenant); err != nil {
		return serviceError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// AddAgent adds an agent to a queue
func (h *QueueHandler) AddAgent(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	userID, err := pathUUID(c, "user_id")
	if err != nil {
		return err
	}

	tenant, err := tenantID(c)
	if err != nil {
		return err
	}

	if err := h.queueRepo.AddAgent(tenant, id, userID); err != nil {
		return serviceError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// RemoveAgent removes an agent from a queue
func (h *QueueHandler) RemoveAgent(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	userID, err := pathUUID(c, "user_id")
	if err != nil {
		return err
	}

	if err := h.queueRepo.RemoveAgent(id, userID); err != nil {
		return serviceError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// AddChannel adds a channel to a queue
func (h *QueueHandler) AddChannel(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	channelID, err := pathUUID(c, "channel_id")
	if err != nil {
		return err
	}

	tenant, err := tenantID(c)
	if err != nil {
		return err
	}

	if err := h.queueRepo.AddChannel(tenant, id, channelID); err != nil {
		return serviceError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}

// RemoveChannel removes a channel from a queue
func (h *QueueHandler) RemoveChannel(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	channelID, err := pathUUID(c, "channel_id")
	if err != nil {
		return err
	}

	if err := h.queueRepo.RemoveChannel(id, channelID); err != nil {
		return serviceError(c, err)
	}

	return c.NoContent(http.StatusNoContent)
}
