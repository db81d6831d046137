package handlers

import (
	"net/http"

	"github.com/28devcom/whats-suite-feed-nps-sub002/internal/services"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// WarmupHandler handles warmup scheduler endpoints
type WarmupHandler struct {
	warmupService *services.WarmupService
}

// NewWarmupHandler creates a new warmup handler
func NewWarmupHandler(warmupService *services.WarmupService) *WarmupHandler {
	return &WarmupHandler{warmupService: warmupService}
}

// Start begins or resumes warmup cycles
func (h *WarmupHandler) Start(c echo.Context) error {
	if err := h.warmupService.Start(); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, h.warmupService.Status())
}

// Pause suspends the cycle timer; a cycle in progress runs to completion
func (h *WarmupHandler) Pause(c echo.Context) error {
	if err := h.warmupService.Pause(); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, h.warmupService.Status())
}

// Resume restarts the cycle timer from paused
func (h *WarmupHandler) Resume(c echo.Context) error {
	if err := h.warmupService.Resume(); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, h.warmupService.Status())
}

// Status returns the scheduler state snapshot
func (h *WarmupHandler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, h.warmupService.Status())
}

// Simulate executes one warmup cycle synchronously without touching the
// run state
func (h *WarmupHandler) Simulate(c echo.Context) error {
	if err := h.warmupService.Simulate(c.Request().Context()); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, h.warmupService.Status())
}

// RunCycle executes one warmup cycle synchronously
func (h *WarmupHandler) RunCycle(c echo.Context) error {
	if err := h.warmupService.RunCycle(c.Request().Context()); err != nil {
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, h.warmupService.Status())
}

// SetSelectionRequest represents a selection replacement command
type SetSelectionRequest struct {
	ChannelIDs []string `json:"channel_ids" validate:"dive,uuid"`
}

// SetSelection replaces the selected channel set
func (h *WarmupHandler) SetSelection(c echo.Context) error {
	var req SetSelectionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	channelIDs := make([]uuid.UUID, 0, len(req.ChannelIDs))
	for _, raw := range req.ChannelIDs {
		channelIDs = append(channelIDs, uuid.MustParse(raw))
	}

	h.warmupService.SetSelection(channelIDs)
	return c.JSON(http.StatusOK, h.warmupService.Status())
}
