package services

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/28devcom/whats-suite-feed-nps-sub002/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ChannelStore is the channel lookup the warmup scheduler needs
type ChannelStore interface {
	GetChannel(id uuid.UUID) (*models.Channel, error)
}

// warmupMessages is the low-volume content pool cycled through by warmup
// sends; innocuous text keeps the traffic indistinguishable from a person
// checking in
var warmupMessages = []string{
	"Bom dia! Tudo certo por aqui.",
	"Ola, passando para confirmar que o canal esta ativo.",
	"Oi! Qualquer novidade eu aviso por aqui.",
	"Tudo bem? Seguimos a disposicao.",
}

// WarmupService runs low-volume simulated activity on a selected subset of
// channels to build sending reputation. It is an explicit state object with
// run states idle, running and paused; process start is always idle and a
// restart never silently resumes.
type WarmupService struct {
	sender   Sender
	channels ChannelStore

	mu              sync.RWMutex
	runState        string
	selected        []uuid.UUID
	lastCycleAt     *time.Time
	cyclesCompleted int64
	stopChan        chan struct{}

	cycleInterval time.Duration
	delayMinMs    int
	delayMaxMs    int
	peerContact   string
}

// NewWarmupService creates a new warmup scheduler in the idle state
func NewWarmupService(sender Sender, channels ChannelStore, cycleInterval time.Duration, peerContact string) *WarmupService {
	if cycleInterval <= 0 {
		cycleInterval = 15 * time.Minute
	}

	return &WarmupService{
		sender:        sender,
		channels:      channels,
		runState:      models.WarmupStateIdle,
		cycleInterval: cycleInterval,
		delayMinMs:    2000,
		delayMaxMs:    6000,
		peerContact:   peerContact,
	}
}

// Start begins or resumes the cycle timer. Valid from idle and paused.
func (s *WarmupService) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runState == models.WarmupStateRunning {
		return ErrInvalidState
	}

	s.runState = models.WarmupStateRunning
	s.stopChan = make(chan struct{})
	go s.cycleLoop(s.stopChan)

	log.Info().Int("selected", len(s.selected)).Msg("warmup scheduler started")
	return nil
}

// Pause suspends the cycle timer but keeps the selection. A cycle already in
// progress runs to completion; the pause takes effect before the next
// scheduled cycle starts.
func (s *WarmupService) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runState != models.WarmupStateRunning {
		return ErrInvalidState
	}

	s.runState = models.WarmupStatePaused
	close(s.stopChan)
	s.stopChan = nil

	log.Info().Msg("warmup scheduler paused")
	return nil
}

// Resume restarts the cycle timer from paused
func (s *WarmupService) Resume() error {
	s.mu.RLock()
	state := s.runState
	s.mu.RUnlock()

	if state != models.WarmupStatePaused {
		return ErrInvalidState
	}
	return s.Start()
}

// Stop tears the scheduler down for process shutdown
func (s *WarmupService) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopChan != nil {
		close(s.stopChan)
		s.stopChan = nil
	}
	s.runState = models.WarmupStateIdle
}

// SetSelection replaces the selected channel set atomically. A cycle in
// flight continues against the snapshot it started with; the new set applies
// from the next cycle.
func (s *WarmupService) SetSelection(channelIDs []uuid.UUID) {
	selected := make([]uuid.UUID, 0, len(channelIDs))
	seen := make(map[uuid.UUID]bool, len(channelIDs))
	for _, id := range channelIDs {
		if !seen[id] {
			seen[id] = true
			selected = append(selected, id)
		}
	}

	s.mu.Lock()
	s.selected = selected
	s.mu.Unlock()
}

// Status returns a read-only snapshot of the scheduler state
func (s *WarmupService) Status() models.WarmupStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	selected := make([]uuid.UUID, len(s.selected))
	copy(selected, s.selected)

	return models.WarmupStatus{
		RunState:         s.runState,
		SelectedChannels: selected,
		LastCycleAt:      s.lastCycleAt,
		CyclesCompleted:  s.cyclesCompleted,
	}
}

// RunCycle executes exactly one warmup cycle synchronously, regardless of
// the run state, and does not alter it. Used for on-demand testing.
func (s *WarmupService) RunCycle(ctx context.Context) error {
	s.executeCycle(ctx)
	return nil
}

// Simulate is the on-demand alias of RunCycle
func (s *WarmupService) Simulate(ctx context.Context) error {
	return s.RunCycle(ctx)
}

// cycleLoop runs cycles on the timer until the stop channel closes
func (s *WarmupService) cycleLoop(stop chan struct{}) {
	ticker := time.NewTicker(s.cycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.executeCycle(context.Background())
		case <-stop:
			return
		}
	}
}

// executeCycle performs one warmup send per selected channel. Failures on
// one channel never abort the cycle for the others.
func (s *WarmupService) executeCycle(ctx context.Context) {
	s.mu.RLock()
	selected := make([]uuid.UUID, len(s.selected))
	copy(selected, s.selected)
	s.mu.RUnlock()

	for i, channelID := range selected {
		if err := s.warmChannel(ctx, channelID); err != nil {
			log.Warn().Err(err).Str("channel_id", channelID.String()).Msg("warmup send failed, skipping channel")
		}

		// Same pacing discipline as the campaign dispatcher
		if i < len(selected)-1 {
			if !sleepJitter(ctx, s.delayMinMs, s.delayMaxMs) {
				break
			}
		}
	}

	now := time.Now()
	s.mu.Lock()
	s.cyclesCompleted++
	s.lastCycleAt = &now
	s.mu.Unlock()

	log.Debug().Int("channels", len(selected)).Msg("warmup cycle completed")
}

// warmChannel performs one low-volume send on a channel
func (s *WarmupService) warmChannel(ctx context.Context, channelID uuid.UUID) error {
	channel, err := s.channels.GetChannel(channelID)
	if err != nil {
		return err
	}

	text := warmupMessages[rand.Intn(len(warmupMessages))]
	return s.sender.SendText(ctx, channel.Session, s.peerContact, text)
}
