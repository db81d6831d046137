package services

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/28devcom/whats-suite-feed-nps-sub002/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CampaignStore is the transactional store contract the dispatcher needs.
// Status transitions are conditional updates so concurrent writers lose
// cleanly; target mutations commit atomically with their campaign event.
type CampaignStore interface {
	GetByID(id uuid.UUID) (*models.Campaign, error)
	CreateWithTargets(campaign *models.Campaign, targets []models.CampaignTarget) error
	UpdateStatusIf(id uuid.UUID, expected []string, to string) (bool, error)
	ScheduleIfDraft(id uuid.UUID, at time.Time) (bool, error)
	ListPendingTargets(campaignID uuid.UUID) ([]models.CampaignTarget, error)
	MarkTargetSent(target *models.CampaignTarget, event *models.CampaignEvent) error
	MarkTargetFailed(target *models.CampaignTarget, sendErr string, event *models.CampaignEvent) error
	RequeueTargetIfFailed(campaignID, targetID uuid.UUID) (bool, error)
	AppendEvent(event *models.CampaignEvent) error
	ListTargets(campaignID uuid.UUID, status string, limit, offset int) (models.PaginationResult[models.CampaignTarget], error)
	ListEvents(campaignID uuid.UUID, limit, offset int) (models.PaginationResult[models.CampaignEvent], error)
	ListDueScheduled(now time.Time) ([]models.Campaign, error)
	GetTemplate(id uuid.UUID) (*models.MessageTemplate, error)
	GetChannel(id uuid.UUID) (*models.Channel, error)
}

// Sender is the outbound delivery primitive owned by the messaging gateway
type Sender interface {
	SendText(ctx context.Context, session, chatID, text string) error
}

// CampaignDispatcher runs paced send loops over campaign target lists. Each
// run is a detached goroutine outliving the request that started it;
// progress lives in target status so a crashed run resumes from the pending
// rows on the next Run call.
type CampaignDispatcher struct {
	store  CampaignStore
	sender Sender
	audit  AuditPublisher

	mu      sync.Mutex
	running map[uuid.UUID]context.CancelFunc
	wg      sync.WaitGroup

	rootCtx    context.Context
	rootCancel context.CancelFunc

	sendTimeout   time.Duration
	checkInterval time.Duration
}

// NewCampaignDispatcher creates a new campaign dispatcher
func NewCampaignDispatcher(store CampaignStore, sender Sender, audit AuditPublisher) *CampaignDispatcher {
	rootCtx, rootCancel := context.WithCancel(context.Background())

	return &CampaignDispatcher{
		store:         store,
		sender:        sender,
		audit:         audit,
		running:       make(map[uuid.UUID]context.CancelFunc),
		rootCtx:       rootCtx,
		rootCancel:    rootCancel,
		sendTimeout:   30 * time.Second,
		checkInterval: 30 * time.Second,
	}
}

// CreateCampaign creates a draft campaign with its target list
func (d *CampaignDispatcher) CreateCampaign(campaign *models.Campaign, targets []models.CampaignTarget) error {
	if campaign.Status == "" {
		campaign.Status = models.CampaignStatusDraft
	}
	if campaign.DelayMaxMs < campaign.DelayMinMs {
		campaign.DelayMaxMs = campaign.DelayMinMs
	}

	if err := d.store.CreateWithTargets(campaign, targets); err != nil {
		return err
	}

	d.appendEvent(campaign.TenantID, campaign.ID, "created", fmt.Sprintf("%d targets", len(targets)))
	return nil
}

// Schedule records the scheduled time of a draft campaign. It does not start
// sending; the scheduler tick or an explicit Run does.
func (d *CampaignDispatcher) Schedule(campaignID uuid.UUID, at time.Time, actorID uuid.UUID) error {
	ok, err := d.store.ScheduleIfDraft(campaignID, at)
	if err != nil {
		return err
	}
	if !ok {
		campaign, err := d.store.GetByID(campaignID)
		if err != nil {
			return mapStoreError(err)
		}
		return fmt.Errorf("%w: cannot schedule campaign in status %s", ErrInvalidState, campaign.Status)
	}

	campaign, err := d.store.GetByID(campaignID)
	if err != nil {
		return mapStoreError(err)
	}

	d.appendEvent(campaign.TenantID, campaignID, "scheduled", at.Format(time.RFC3339))
	publishAudit(d.audit, "campaign.scheduled", actorID, campaignID, "schedule_campaign", map[string]string{
		"scheduled_at": at.Format(time.RFC3339),
	})
	return nil
}

// Run transitions a draft or scheduled campaign to running and starts its
// send loop in the background. At most one loop may be active per campaign;
// a second Run on a running campaign returns ErrAlreadyRunning. The call
// returns as soon as the loop is started, completion is observed through
// target status and campaign events.
func (d *CampaignDispatcher) Run(campaignID uuid.UUID, actorID uuid.UUID) error {
	// Reserve the registry slot first and do the store calls outside the
	// lock, so one slow campaign never serializes Run and Stop for the rest
	loopCtx, cancel := context.WithCancel(d.rootCtx)
	d.mu.Lock()
	if _, active := d.running[campaignID]; active {
		d.mu.Unlock()
		cancel()
		return ErrAlreadyRunning
	}
	d.running[campaignID] = cancel
	d.mu.Unlock()

	campaign, err := d.store.GetByID(campaignID)
	if err != nil {
		d.unregister(campaignID, cancel)
		return mapStoreError(err)
	}

	ok, err := d.store.UpdateStatusIf(campaignID, []string{models.CampaignStatusDraft, models.CampaignStatusScheduled}, models.CampaignStatusRunning)
	if err != nil {
		d.unregister(campaignID, cancel)
		return err
	}
	if !ok {
		d.unregister(campaignID, cancel)
		if campaign.Status == models.CampaignStatusRunning {
			return ErrAlreadyRunning
		}
		return fmt.Errorf("%w: cannot run campaign in status %s", ErrInvalidState, campaign.Status)
	}

	// The started event lands before the loop can commit any target, keeping
	// the event log in causal order
	d.appendEvent(campaign.TenantID, campaignID, "started", "")
	publishAudit(d.audit, "campaign.started", actorID, campaignID, "run_campaign", nil)

	d.wg.Add(1)
	go d.runLoop(loopCtx, campaign)

	log.Info().Str("campaign_id", campaignID.String()).Msg("campaign run started")
	return nil
}

// unregister releases a reserved run slot after a failed Run
func (d *CampaignDispatcher) unregister(campaignID uuid.UUID, cancel context.CancelFunc) {
	d.mu.Lock()
	delete(d.running, campaignID)
	d.mu.Unlock()
	cancel()
}

// Stop cancels the active run of a campaign. The cancellation takes effect
// before the next pacing sleep elapses; the in-flight target's status is
// already committed when the loop exits.
func (d *CampaignDispatcher) Stop(campaignID uuid.UUID, actorID uuid.UUID) error {
	d.mu.Lock()
	cancel, active := d.running[campaignID]
	d.mu.Unlock()

	if !active {
		return fmt.Errorf("%w: campaign has no active run", ErrInvalidState)
	}

	cancel()
	publishAudit(d.audit, "campaign.stopped", actorID, campaignID, "stop_campaign", nil)
	return nil
}

// RequeueTarget moves a failed target back to pending so the next run
// retries it. Failed targets are terminal until an operator requeues them.
func (d *CampaignDispatcher) RequeueTarget(campaignID, targetID uuid.UUID, actorID uuid.UUID) error {
	ok, err := d.store.RequeueTargetIfFailed(campaignID, targetID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: target is not in failed state", ErrInvalidState)
	}

	campaign, err := d.store.GetByID(campaignID)
	if err != nil {
		return mapStoreError(err)
	}

	d.appendEvent(campaign.TenantID, campaignID, "target_requeued", targetID.String())
	publishAudit(d.audit, "campaign.target_requeued", actorID, campaignID, "requeue_target", map[string]string{
		"target_id": targetID.String(),
	})
	return nil
}

// GetTargets returns the campaign targets, optionally filtered by status
func (d *CampaignDispatcher) GetTargets(campaignID uuid.UUID, status string, limit, offset int) (models.PaginationResult[models.CampaignTarget], error) {
	return d.store.ListTargets(campaignID, status, limit, offset)
}

// GetEvents returns the campaign lifecycle events
func (d *CampaignDispatcher) GetEvents(campaignID uuid.UUID, limit, offset int) (models.PaginationResult[models.CampaignEvent], error) {
	return d.store.ListEvents(campaignID, limit, offset)
}

// Start begins the scheduler tick that launches due scheduled campaigns.
// It returns immediately; the poll loop runs until the context is done.
func (d *CampaignDispatcher) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(d.checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				d.startDueCampaigns()
			case <-ctx.Done():
				log.Info().Msg("campaign scheduler stopped")
				return
			}
		}
	}()
}

// Shutdown cancels every active run loop and waits for them to exit. The
// loops commit the in-flight target before leaving, so restart resumes at
// the next pending row.
func (d *CampaignDispatcher) Shutdown() {
	d.rootCancel()
	d.wg.Wait()
}

// startDueCampaigns launches runs for scheduled campaigns whose time passed
func (d *CampaignDispatcher) startDueCampaigns() {
	campaigns, err := d.store.ListDueScheduled(time.Now())
	if err != nil {
		log.Error().Err(err).Msg("failed to list due campaigns")
		return
	}

	for _, campaign := range campaigns {
		if err := d.Run(campaign.ID, uuid.Nil); err != nil && err != ErrAlreadyRunning {
			log.Error().Err(err).Str("campaign_id", campaign.ID.String()).Msg("failed to start scheduled campaign")
		}
	}
}

// runLoop is the paced send loop of one campaign run. It iterates pending
// targets in creation order, commits each target's outcome before pacing,
// and never retries a failed target within the same run.
func (d *CampaignDispatcher) runLoop(ctx context.Context, campaign *models.Campaign) {
	defer func() {
		d.mu.Lock()
		if cancel, ok := d.running[campaign.ID]; ok {
			cancel()
			delete(d.running, campaign.ID)
		}
		d.mu.Unlock()
		d.wg.Done()
	}()

	template, err := d.store.GetTemplate(campaign.TemplateID)
	if err != nil {
		d.failRun(campaign, fmt.Sprintf("load template: %v", err))
		return
	}

	channel, err := d.store.GetChannel(campaign.ChannelID)
	if err != nil {
		d.failRun(campaign, fmt.Sprintf("load channel: %v", err))
		return
	}

	targets, err := d.store.ListPendingTargets(campaign.ID)
	if err != nil {
		d.failRun(campaign, fmt.Sprintf("load targets: %v", err))
		return
	}

	for i := range targets {
		target := &targets[i]

		select {
		case <-ctx.Done():
			d.suspendRun(campaign)
			return
		default:
		}

		payload := RenderTemplate(template.Content, target.Variables)
		if err := d.sendTarget(campaign, channel, target, payload); err != nil {
			// Store failure: the loop cannot record progress, abort the run
			d.failRun(campaign, fmt.Sprintf("persist target outcome: %v", err))
			return
		}

		// Pacing between consecutive sends is the anti-abuse control and is
		// never skipped; cancellation interrupts the sleep, not the commit
		if i < len(targets)-1 {
			if !sleepJitter(ctx, campaign.DelayMinMs, campaign.DelayMaxMs) {
				d.suspendRun(campaign)
				return
			}
		}
	}

	if ok, err := d.store.UpdateStatusIf(campaign.ID, []string{models.CampaignStatusRunning}, models.CampaignStatusCompleted); err != nil || !ok {
		log.Error().Err(err).Str("campaign_id", campaign.ID.String()).Msg("failed to complete campaign")
		return
	}

	d.appendEvent(campaign.TenantID, campaign.ID, "completed", "")
	publishAudit(d.audit, "campaign.completed", uuid.Nil, campaign.ID, "campaign_completed", nil)
	log.Info().Str("campaign_id", campaign.ID.String()).Int("targets", len(targets)).Msg("campaign run completed")
}

// sendTarget delivers one target and commits its outcome. A delivery failure
// marks the target failed and returns nil so the loop continues; only store
// failures propagate. The timeout context is detached from the loop context:
// an operator stop interrupts the loop at the pacing boundary, never the
// in-flight delivery, so the target commits its real outcome.
func (d *CampaignDispatcher) sendTarget(campaign *models.Campaign, channel *models.Channel, target *models.CampaignTarget, payload string) error {
	sendCtx, cancel := context.WithTimeout(context.Background(), d.sendTimeout)
	defer cancel()

	sendErr := d.sender.SendText(sendCtx, channel.Session, target.Contact, payload)
	if sendErr != nil {
		event := d.buildEvent(campaign.TenantID, campaign.ID, "target_failed", fmt.Sprintf("%s: %v", target.Contact, sendErr))
		if err := d.store.MarkTargetFailed(target, sendErr.Error(), event); err != nil {
			return err
		}
		log.Warn().Err(sendErr).Str("campaign_id", campaign.ID.String()).Str("contact", target.Contact).Msg("campaign target delivery failed")
		return nil
	}

	event := d.buildEvent(campaign.TenantID, campaign.ID, "target_sent", target.Contact)
	return d.store.MarkTargetSent(target, event)
}

// suspendRun records an operator stop: the campaign drops back to scheduled
// so a later Run resumes from the remaining pending targets
func (d *CampaignDispatcher) suspendRun(campaign *models.Campaign) {
	if _, err := d.store.UpdateStatusIf(campaign.ID, []string{models.CampaignStatusRunning}, models.CampaignStatusScheduled); err != nil {
		log.Error().Err(err).Str("campaign_id", campaign.ID.String()).Msg("failed to suspend campaign")
		return
	}
	d.appendEvent(campaign.TenantID, campaign.ID, "stopped", "")
	log.Info().Str("campaign_id", campaign.ID.String()).Msg("campaign run stopped")
}

// failRun marks a campaign failed after the loop itself aborted
func (d *CampaignDispatcher) failRun(campaign *models.Campaign, detail string) {
	if _, err := d.store.UpdateStatusIf(campaign.ID, []string{models.CampaignStatusRunning}, models.CampaignStatusFailed); err != nil {
		log.Error().Err(err).Str("campaign_id", campaign.ID.String()).Msg("failed to mark campaign failed")
	}
	d.appendEvent(campaign.TenantID, campaign.ID, "failed", detail)
	publishAudit(d.audit, "campaign.failed", uuid.Nil, campaign.ID, "campaign_failed", map[string]string{"detail": detail})
	log.Error().Str("campaign_id", campaign.ID.String()).Str("detail", detail).Msg("campaign run failed")
}

// appendEvent appends a lifecycle event, logging instead of failing the
// caller when the append itself breaks
func (d *CampaignDispatcher) appendEvent(tenantID, campaignID uuid.UUID, eventType, detail string) {
	if err := d.store.AppendEvent(d.buildEvent(tenantID, campaignID, eventType, detail)); err != nil {
		log.Error().Err(err).Str("campaign_id", campaignID.String()).Str("type", eventType).Msg("failed to append campaign event")
	}
}

func (d *CampaignDispatcher) buildEvent(tenantID, campaignID uuid.UUID, eventType, detail string) *models.CampaignEvent {
	event := &models.CampaignEvent{
		CampaignID: campaignID,
		Type:       eventType,
		Detail:     detail,
	}
	event.TenantID = tenantID
	return event
}

// sleepJitter sleeps a uniform random duration in [minMs, maxMs]. Returns
// false when the context was cancelled before the sleep elapsed.
func sleepJitter(ctx context.Context, minMs, maxMs int) bool {
	if minMs < 0 {
		minMs = 0
	}
	if maxMs < minMs {
		maxMs = minMs
	}

	delay := time.Duration(minMs+rand.Intn(maxMs-minMs+1)) * time.Millisecond
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
