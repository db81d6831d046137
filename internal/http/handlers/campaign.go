package handlers

import (
	"net/http"
	"time"

	"github.com/28devcom/whats-suite-feed-nps-sub002/internal/repo"
	"github.com/28devcom/whats-suite-feed-nps-sub002/internal/services"
	"github.com/28devcom/whats-suite-feed-nps-sub002/pkg/models"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// CampaignHandler handles campaign endpoints
type CampaignHandler struct {
	dispatcher   *services.CampaignDispatcher
	campaignRepo *repo.CampaignRepository
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(dispatcher *services.CampaignDispatcher, campaignRepo *repo.CampaignRepository) *CampaignHandler {
	return &CampaignHandler{
		dispatcher:   dispatcher,
		campaignRepo: campaignRepo,
	}
}

// CreateCampaignTarget is one recipient in a campaign creation request
type CreateCampaignTarget struct {
	Contact   string            `json:"contact" validate:"required"`
	Variables map[string]string `json:"variables"`
}

// CreateCampaignRequest represents a campaign creation command
type CreateCampaignRequest struct {
	Name       string                 `json:"name" validate:"required"`
	TemplateID string                 `json:"template_id" validate:"required,uuid"`
	ChannelID  string                 `json:"channel_id" validate:"required,uuid"`
	DelayMinMs int                    `json:"delay_min_ms" validate:"gte=0"`
	DelayMaxMs int                    `json:"delay_max_ms" validate:"gte=0"`
	Targets    []CreateCampaignTarget `json:"targets" validate:"required,min=1,dive"`
}

// Create creates a draft campaign with its target list
func (h *CampaignHandler) Create(c echo.Context) error {
	var req CreateCampaignRequest
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

	campaign := &models.Campaign{
		Name:       req.Name,
		TemplateID: uuid.MustParse(req.TemplateID),
		ChannelID:  uuid.MustParse(req.ChannelID),
		Status:     models.CampaignStatusDraft,
		DelayMinMs: req.DelayMinMs,
		DelayMaxMs: req.DelayMaxMs,
	}
	campaign.TenantID = tenant

	targets := make([]models.CampaignTarget, 0, len(req.Targets))
	for _, t := range req.Targets {
		targets = append(targets, models.CampaignTarget{
			Contact:   t.Contact,
			Variables: t.Variables,
		})
	}

	if err := h.dispatcher.CreateCampaign(campaign, targets); err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusCreated, campaign)
}

// GetByID returns a campaign
func (h *CampaignHandler) GetByID(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	tenant, err := tenantID(c)
	if err != nil {
		return err
	}

	campaign, err := h.campaignRepo.GetByIDAndTenant(id, tenant)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, campaign)
}

// ScheduleCampaignRequest represents a schedule command
type ScheduleCampaignRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" validate:"required"`
}

// Schedule records the scheduled start time of a draft campaign
func (h *CampaignHandler) Schedule(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	var req ScheduleCampaignRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	if err := h.dispatcher.Schedule(id, req.ScheduledAt, actorID(c)); err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": models.CampaignStatusScheduled})
}

// Run starts the campaign send loop. The response returns immediately with
// the running status; completion is observed via targets and events.
func (h *CampaignHandler) Run(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.dispatcher.Run(id, actorID(c)); err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": models.CampaignStatusRunning})
}

// Stop cancels the active run of a campaign
func (h *CampaignHandler) Stop(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	if err := h.dispatcher.Stop(id, actorID(c)); err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "stopping"})
}

// RequeueTarget moves a failed target back to pending
func (h *CampaignHandler) RequeueTarget(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}
	targetID, err := pathUUID(c, "target_id")
	if err != nil {
		return err
	}

	if err := h.dispatcher.RequeueTarget(id, targetID, actorID(c)); err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]string{"status": models.TargetStatusPending})
}

// ListTargets returns the campaign targets, optionally filtered by status
func (h *CampaignHandler) ListTargets(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	limit, offset := pagination(c)
	result, err := h.dispatcher.GetTargets(id, c.QueryParam("status"), limit, offset)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

// ListEvents returns the campaign lifecycle events
func (h *CampaignHandler) ListEvents(c echo.Context) error {
	id, err := pathUUID(c, "id")
	if err != nil {
		return err
	}

	limit, offset := pagination(c)
	result, err := h.dispatcher.GetEvents(id, limit, offset)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}
