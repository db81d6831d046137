package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/28devcom/whats-suite-feed-nps-sub002/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// fakeCampaignStore is an in-memory CampaignStore with the repository's
// conditional-update semantics
type fakeCampaignStore struct {
	mu        sync.Mutex
	campaigns map[uuid.UUID]*models.Campaign
	targets   []*models.CampaignTarget
	events    []models.CampaignEvent
	templates map[uuid.UUID]*models.MessageTemplate
	channels  map[uuid.UUID]*models.Channel
}

func newFakeCampaignStore() *fakeCampaignStore {
	return &fakeCampaignStore{
		campaigns: make(map[uuid.UUID]*models.Campaign),
		templates: make(map[uuid.UUID]*models.MessageTemplate),
		channels:  make(map[uuid.UUID]*models.Channel),
	}
}

func (f *fakeCampaignStore) GetByID(id uuid.UUID) (*models.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	campaign, ok := f.campaigns[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *campaign
	return &copied, nil
}

func (f *fakeCampaignStore) CreateWithTargets(campaign *models.Campaign, targets []models.CampaignTarget) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if campaign.ID == uuid.Nil {
		campaign.ID = uuid.New()
	}
	copied := *campaign
	f.campaigns[campaign.ID] = &copied
	for i := range targets {
		target := targets[i]
		if target.ID == uuid.Nil {
			target.ID = uuid.New()
		}
		target.CampaignID = campaign.ID
		if target.Status == "" {
			target.Status = models.TargetStatusPending
		}
		f.targets = append(f.targets, &target)
	}
	return nil
}

func (f *fakeCampaignStore) UpdateStatusIf(id uuid.UUID, expected []string, to string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	campaign, ok := f.campaigns[id]
	if !ok {
		return false, nil
	}
	for _, status := range expected {
		if campaign.Status == status {
			campaign.Status = to
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCampaignStore) ScheduleIfDraft(id uuid.UUID, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	campaign, ok := f.campaigns[id]
	if !ok || campaign.Status != models.CampaignStatusDraft {
		return false, nil
	}
	campaign.Status = models.CampaignStatusScheduled
	campaign.ScheduledAt = &at
	return true, nil
}

func (f *fakeCampaignStore) ListPendingTargets(campaignID uuid.UUID) ([]models.CampaignTarget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pending []models.CampaignTarget
	for _, target := range f.targets {
		if target.CampaignID == campaignID && target.Status == models.TargetStatusPending {
			pending = append(pending, *target)
		}
	}
	return pending, nil
}

func (f *fakeCampaignStore) MarkTargetSent(target *models.CampaignTarget, event *models.CampaignEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, stored := range f.targets {
		if stored.ID == target.ID {
			now := time.Now()
			stored.Status = models.TargetStatusSent
			stored.SentAt = &now
			break
		}
	}
	f.events = append(f.events, *event)
	return nil
}

func (f *fakeCampaignStore) MarkTargetFailed(target *models.CampaignTarget, sendErr string, event *models.CampaignEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, stored := range f.targets {
		if stored.ID == target.ID {
			stored.Status = models.TargetStatusFailed
			stored.LastError = sendErr
			break
		}
	}
	f.events = append(f.events, *event)
	return nil
}

func (f *fakeCampaignStore) RequeueTargetIfFailed(campaignID, targetID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, stored := range f.targets {
		if stored.ID == targetID && stored.CampaignID == campaignID && stored.Status == models.TargetStatusFailed {
			stored.Status = models.TargetStatusPending
			stored.LastError = ""
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeCampaignStore) AppendEvent(event *models.CampaignEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, *event)
	return nil
}

func (f *fakeCampaignStore) ListTargets(campaignID uuid.UUID, status string, limit, offset int) (models.PaginationResult[models.CampaignTarget], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var data []models.CampaignTarget
	for _, target := range f.targets {
		if target.CampaignID == campaignID && (status == "" || target.Status == status) {
			data = append(data, *target)
		}
	}
	return models.PaginationResult[models.CampaignTarget]{Data: data, Total: int64(len(data))}, nil
}

func (f *fakeCampaignStore) ListEvents(campaignID uuid.UUID, limit, offset int) (models.PaginationResult[models.CampaignEvent], error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var data []models.CampaignEvent
	for _, event := range f.events {
		if event.CampaignID == campaignID {
			data = append(data, event)
		}
	}
	return models.PaginationResult[models.CampaignEvent]{Data: data, Total: int64(len(data))}, nil
}

func (f *fakeCampaignStore) ListDueScheduled(now time.Time) ([]models.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []models.Campaign
	for _, campaign := range f.campaigns {
		if campaign.Status == models.CampaignStatusScheduled && campaign.ScheduledAt != nil && !campaign.ScheduledAt.After(now) {
			due = append(due, *campaign)
		}
	}
	return due, nil
}

func (f *fakeCampaignStore) GetTemplate(id uuid.UUID) (*models.MessageTemplate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	template, ok := f.templates[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return template, nil
}

func (f *fakeCampaignStore) GetChannel(id uuid.UUID) (*models.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	channel, ok := f.channels[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return channel, nil
}

func (f *fakeCampaignStore) campaignStatus(id uuid.UUID) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.campaigns[id].Status
}

func (f *fakeCampaignStore) targetStatuses(campaignID uuid.UUID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var statuses []string
	for _, target := range f.targets {
		if target.CampaignID == campaignID {
			statuses = append(statuses, target.Status)
		}
	}
	return statuses
}

func (f *fakeCampaignStore) eventTypes(campaignID uuid.UUID) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var types []string
	for _, event := range f.events {
		if event.CampaignID == campaignID {
			types = append(types, event.Type)
		}
	}
	return types
}

// fakeSender records deliveries and fails configured contacts. The optional
// gate blocks each send until released so tests can observe in-flight state.
type fakeSender struct {
	mu      sync.Mutex
	sent    []string
	failing map[string]error
	started chan string
	release chan struct{}
}

func newFakeSender() *fakeSender {
	return &fakeSender{failing: make(map[string]error)}
}

func (f *fakeSender) SendText(ctx context.Context, session, chatID, text string) error {
	if f.started != nil {
		f.started <- chatID
	}
	if f.release != nil {
		<-f.release
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failing[chatID]; ok {
		return err
	}
	f.sent = append(f.sent, chatID)
	return nil
}

func (f *fakeSender) sentContacts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func seedCampaign(store *fakeCampaignStore, contacts []string, delayMinMs, delayMaxMs int) *models.Campaign {
	template := &models.MessageTemplate{Title: "promo", Content: "Oi {{nome}}!"}
	template.ID = uuid.New()
	store.templates[template.ID] = template

	channel := &models.Channel{Name: "main", Type: "whatsapp", Session: "session-1", Status: "connected"}
	channel.ID = uuid.New()
	store.channels[channel.ID] = channel

	campaign := &models.Campaign{
		Name:       "august promo",
		TemplateID: template.ID,
		ChannelID:  channel.ID,
		Status:     models.CampaignStatusDraft,
		DelayMinMs: delayMinMs,
		DelayMaxMs: delayMaxMs,
	}
	campaign.ID = uuid.New()
	campaign.TenantID = uuid.New()

	var targets []models.CampaignTarget
	for _, contact := range contacts {
		target := models.CampaignTarget{Contact: contact, Variables: models.TargetVariables{"nome": contact}}
		target.TenantID = campaign.TenantID
		targets = append(targets, target)
	}
	store.CreateWithTargets(campaign, targets)
	return campaign
}

// waitForIdle waits until no run loop is registered, so follow-up calls see
// the dispatcher after cleanup rather than racing the loop's deferred exit
func waitForIdle(t *testing.T, dispatcher *CampaignDispatcher) {
	t.Helper()
	waitFor(t, "run loop exit", func() bool {
		dispatcher.mu.Lock()
		defer dispatcher.mu.Unlock()
		return len(dispatcher.running) == 0
	})
}

// waitFor polls until the condition holds or the test deadline passes
func waitFor(t *testing.T, what string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestRunCompletesWithPartialFailures(t *testing.T) {
	store := newFakeCampaignStore()
	sender := newFakeSender()
	sender.failing["contact-2"] = errors.New("number not on whatsapp")
	dispatcher := NewCampaignDispatcher(store, sender, NopAuditPublisher{})

	campaign := seedCampaign(store, []string{"contact-1", "contact-2", "contact-3"}, 0, 0)

	if err := dispatcher.Run(campaign.ID, uuid.New()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	waitFor(t, "campaign completion", func() bool {
		return store.campaignStatus(campaign.ID) == models.CampaignStatusCompleted
	})

	statuses := store.targetStatuses(campaign.ID)
	expected := []string{models.TargetStatusSent, models.TargetStatusFailed, models.TargetStatusSent}
	for i, status := range statuses {
		if status != expected[i] {
			t.Errorf("target %d status = %q, expected %q", i, status, expected[i])
		}
	}

	sent := sender.sentContacts()
	if len(sent) != 2 || sent[0] != "contact-1" || sent[1] != "contact-3" {
		t.Errorf("sent contacts = %v, expected [contact-1 contact-3]", sent)
	}

	types := store.eventTypes(campaign.ID)
	counts := make(map[string]int)
	for _, eventType := range types {
		counts[eventType]++
	}
	if counts["started"] != 1 || counts["target_sent"] != 2 || counts["target_failed"] != 1 || counts["completed"] != 1 {
		t.Errorf("event type counts = %v", counts)
	}
	if types[0] != "started" || types[len(types)-1] != "completed" {
		t.Errorf("event order = %v, expected started first and completed last", types)
	}
}

func TestRunRendersTemplatePerTarget(t *testing.T) {
	store := newFakeCampaignStore()
	var payloads []string
	var payloadMu sync.Mutex
	sender := newFakeSender()
	dispatcher := NewCampaignDispatcher(store, senderFunc(func(ctx context.Context, session, chatID, text string) error {
		payloadMu.Lock()
		payloads = append(payloads, text)
		payloadMu.Unlock()
		return sender.SendText(ctx, session, chatID, text)
	}), NopAuditPublisher{})

	campaign := seedCampaign(store, []string{"ana", "bruno"}, 0, 0)

	if err := dispatcher.Run(campaign.ID, uuid.New()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	waitFor(t, "campaign completion", func() bool {
		return store.campaignStatus(campaign.ID) == models.CampaignStatusCompleted
	})

	payloadMu.Lock()
	defer payloadMu.Unlock()
	if len(payloads) != 2 || payloads[0] != "Oi ana!" || payloads[1] != "Oi bruno!" {
		t.Errorf("payloads = %v", payloads)
	}
}

type senderFunc func(ctx context.Context, session, chatID, text string) error

func (f senderFunc) SendText(ctx context.Context, session, chatID, text string) error {
	return f(ctx, session, chatID, text)
}

func TestRunResumesFromPendingTargets(t *testing.T) {
	store := newFakeCampaignStore()
	sender := newFakeSender()
	dispatcher := NewCampaignDispatcher(store, sender, NopAuditPublisher{})

	campaign := seedCampaign(store, []string{"contact-1", "contact-2", "contact-3"}, 0, 0)

	// A previous run already delivered the first target
	store.mu.Lock()
	store.targets[0].Status = models.TargetStatusSent
	store.campaigns[campaign.ID].Status = models.CampaignStatusScheduled
	store.mu.Unlock()

	if err := dispatcher.Run(campaign.ID, uuid.New()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	waitFor(t, "campaign completion", func() bool {
		return store.campaignStatus(campaign.ID) == models.CampaignStatusCompleted
	})

	sent := sender.sentContacts()
	if len(sent) != 2 || sent[0] != "contact-2" || sent[1] != "contact-3" {
		t.Errorf("sent contacts = %v, expected the two pending targets only", sent)
	}
}

func TestRunRejectsConcurrentAndTerminalStates(t *testing.T) {
	store := newFakeCampaignStore()
	sender := newFakeSender()
	sender.started = make(chan string, 8)
	sender.release = make(chan struct{})
	dispatcher := NewCampaignDispatcher(store, sender, NopAuditPublisher{})

	campaign := seedCampaign(store, []string{"contact-1"}, 0, 0)

	if err := dispatcher.Run(campaign.ID, uuid.New()); err != nil {
		t.Fatalf("first Run returned error: %v", err)
	}
	<-sender.started

	if err := dispatcher.Run(campaign.ID, uuid.New()); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Run error = %v, expected %v", err, ErrAlreadyRunning)
	}

	close(sender.release)
	waitFor(t, "campaign completion", func() bool {
		return store.campaignStatus(campaign.ID) == models.CampaignStatusCompleted
	})
	waitForIdle(t, dispatcher)

	if err := dispatcher.Run(campaign.ID, uuid.New()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Run on completed campaign = %v, expected %v", err, ErrInvalidState)
	}

	if err := dispatcher.Run(uuid.New(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Run on missing campaign = %v, expected %v", err, ErrNotFound)
	}
}

func TestStopCommitsInFlightTargetAndSuspends(t *testing.T) {
	store := newFakeCampaignStore()
	sender := newFakeSender()
	sender.started = make(chan string, 8)
	sender.release = make(chan struct{}, 8)
	dispatcher := NewCampaignDispatcher(store, sender, NopAuditPublisher{})

	// The long pacing window gives Stop time to land between targets
	campaign := seedCampaign(store, []string{"contact-1", "contact-2"}, 60000, 60000)

	if err := dispatcher.Run(campaign.ID, uuid.New()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	<-sender.started
	sender.release <- struct{}{}

	waitFor(t, "first target committed", func() bool {
		return store.targetStatuses(campaign.ID)[0] == models.TargetStatusSent
	})

	if err := dispatcher.Stop(campaign.ID, uuid.New()); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}

	waitFor(t, "campaign suspension", func() bool {
		return store.campaignStatus(campaign.ID) == models.CampaignStatusScheduled
	})
	waitForIdle(t, dispatcher)

	statuses := store.targetStatuses(campaign.ID)
	if statuses[0] != models.TargetStatusSent {
		t.Errorf("first target = %q, expected sent", statuses[0])
	}
	if statuses[1] != models.TargetStatusPending {
		t.Errorf("second target = %q, expected pending for resume", statuses[1])
	}

	if err := dispatcher.Stop(campaign.ID, uuid.New()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Stop without active run = %v, expected %v", err, ErrInvalidState)
	}
}

func TestStopDuringDeliveryCommitsTrueOutcome(t *testing.T) {
	store := newFakeCampaignStore()
	started := make(chan struct{}, 1)
	release := make(chan struct{})

	// The sender honors its context like the real gateway client, so a
	// cancellation leaking into the in-flight send would surface as an error
	sender := senderFunc(func(ctx context.Context, session, chatID, text string) error {
		started <- struct{}{}
		<-release
		return ctx.Err()
	})
	dispatcher := NewCampaignDispatcher(store, sender, NopAuditPublisher{})

	campaign := seedCampaign(store, []string{"contact-1", "contact-2"}, 60000, 60000)

	if err := dispatcher.Run(campaign.ID, uuid.New()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	// Stop lands while the first delivery is in flight
	<-started
	if err := dispatcher.Stop(campaign.ID, uuid.New()); err != nil {
		t.Fatalf("Stop returned error: %v", err)
	}
	close(release)

	waitFor(t, "campaign suspension", func() bool {
		return store.campaignStatus(campaign.ID) == models.CampaignStatusScheduled
	})
	waitForIdle(t, dispatcher)

	statuses := store.targetStatuses(campaign.ID)
	if statuses[0] != models.TargetStatusSent {
		t.Errorf("in-flight target = %q, expected sent", statuses[0])
	}
	if statuses[1] != models.TargetStatusPending {
		t.Errorf("second target = %q, expected pending", statuses[1])
	}
}

// gatedStore delays GetByID for one campaign to model a slow store call
type gatedStore struct {
	*fakeCampaignStore
	slowID uuid.UUID
	gate   chan struct{}
}

func (g *gatedStore) GetByID(id uuid.UUID) (*models.Campaign, error) {
	if id == g.slowID {
		<-g.gate
	}
	return g.fakeCampaignStore.GetByID(id)
}

func TestRunDoesNotSerializeCampaignsBehindSlowStore(t *testing.T) {
	store := newFakeCampaignStore()
	slowCampaign := seedCampaign(store, []string{"contact-1"}, 0, 0)
	fastCampaign := seedCampaign(store, []string{"contact-2"}, 0, 0)

	gated := &gatedStore{fakeCampaignStore: store, slowID: slowCampaign.ID, gate: make(chan struct{})}
	dispatcher := NewCampaignDispatcher(gated, newFakeSender(), NopAuditPublisher{})

	slowDone := make(chan error, 1)
	go func() {
		slowDone <- dispatcher.Run(slowCampaign.ID, uuid.New())
	}()

	// The fast campaign must start and finish while the slow one is still
	// blocked inside its store read
	if err := dispatcher.Run(fastCampaign.ID, uuid.New()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	waitFor(t, "fast campaign completion", func() bool {
		return store.campaignStatus(fastCampaign.ID) == models.CampaignStatusCompleted
	})

	close(gated.gate)
	if err := <-slowDone; err != nil {
		t.Fatalf("slow campaign Run returned error: %v", err)
	}
	waitFor(t, "slow campaign completion", func() bool {
		return store.campaignStatus(slowCampaign.ID) == models.CampaignStatusCompleted
	})
}

func TestScheduleOnlyFromDraft(t *testing.T) {
	store := newFakeCampaignStore()
	dispatcher := NewCampaignDispatcher(store, newFakeSender(), NopAuditPublisher{})

	campaign := seedCampaign(store, []string{"contact-1"}, 0, 0)
	at := time.Now().Add(time.Hour)

	if err := dispatcher.Schedule(campaign.ID, at, uuid.New()); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	if status := store.campaignStatus(campaign.ID); status != models.CampaignStatusScheduled {
		t.Errorf("status = %q, expected scheduled", status)
	}

	if err := dispatcher.Schedule(campaign.ID, at, uuid.New()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Schedule on scheduled campaign = %v, expected %v", err, ErrInvalidState)
	}
}

func TestRequeueTargetOnlyFromFailed(t *testing.T) {
	store := newFakeCampaignStore()
	dispatcher := NewCampaignDispatcher(store, newFakeSender(), NopAuditPublisher{})

	campaign := seedCampaign(store, []string{"contact-1", "contact-2"}, 0, 0)
	store.mu.Lock()
	store.targets[0].Status = models.TargetStatusFailed
	store.targets[0].LastError = "timeout"
	failedID := store.targets[0].ID
	pendingID := store.targets[1].ID
	store.mu.Unlock()

	if err := dispatcher.RequeueTarget(campaign.ID, failedID, uuid.New()); err != nil {
		t.Fatalf("RequeueTarget returned error: %v", err)
	}
	statuses := store.targetStatuses(campaign.ID)
	if statuses[0] != models.TargetStatusPending {
		t.Errorf("requeued target = %q, expected pending", statuses[0])
	}

	if err := dispatcher.RequeueTarget(campaign.ID, pendingID, uuid.New()); !errors.Is(err, ErrInvalidState) {
		t.Errorf("RequeueTarget on pending target = %v, expected %v", err, ErrInvalidState)
	}
}

func TestRunFailsWhenTemplateMissing(t *testing.T) {
	store := newFakeCampaignStore()
	dispatcher := NewCampaignDispatcher(store, newFakeSender(), NopAuditPublisher{})

	campaign := seedCampaign(store, []string{"contact-1"}, 0, 0)
	store.mu.Lock()
	delete(store.templates, campaign.TemplateID)
	store.mu.Unlock()

	if err := dispatcher.Run(campaign.ID, uuid.New()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	waitFor(t, "campaign failure", func() bool {
		return store.campaignStatus(campaign.ID) == models.CampaignStatusFailed
	})
}

func TestCreateCampaignClampsDelayWindow(t *testing.T) {
	store := newFakeCampaignStore()
	dispatcher := NewCampaignDispatcher(store, newFakeSender(), NopAuditPublisher{})

	campaign := &models.Campaign{
		Name:       "inverted window",
		TemplateID: uuid.New(),
		ChannelID:  uuid.New(),
		DelayMinMs: 5000,
		DelayMaxMs: 1000,
	}
	campaign.TenantID = uuid.New()

	if err := dispatcher.CreateCampaign(campaign, nil); err != nil {
		t.Fatalf("CreateCampaign returned error: %v", err)
	}
	if campaign.DelayMaxMs != campaign.DelayMinMs {
		t.Errorf("delay max = %d, expected clamp to min %d", campaign.DelayMaxMs, campaign.DelayMinMs)
	}
	if campaign.Status != models.CampaignStatusDraft {
		t.Errorf("status = %q, expected draft", campaign.Status)
	}
}

func TestSleepJitterHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sleepJitter(ctx, 60000, 60000) {
		t.Error("sleepJitter returned true on a cancelled context")
	}

	start := time.Now()
	if !sleepJitter(context.Background(), 10, 20) {
		t.Error("sleepJitter returned false without cancellation")
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("sleepJitter slept %v, expected at least 10ms", elapsed)
	}
}
