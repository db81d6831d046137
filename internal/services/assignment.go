package services

import (
	"errors"
	"fmt"

	"github.com/28devcom/whats-suite-feed-nps-sub002/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// ConversationStore is the transactional store contract the assignment engine
// needs. Commit methods persist the row update atomically with the event
// appends; the conditional variant implements the compare-and-set used to
// resolve auto-assignment races.
type ConversationStore interface {
	GetByID(id uuid.UUID) (*models.Conversation, error)
	CommitAssignment(conversation *models.Conversation, assignment *models.AssignmentEvent, status *models.StatusEvent) error
	CommitAssignmentIfStatus(conversation *models.Conversation, expectedStatus string, assignment *models.AssignmentEvent, status *models.StatusEvent) (bool, error)
	CommitStatus(conversation *models.Conversation, status *models.StatusEvent) error
	CountOpenAssignedByAgent(agentID uuid.UUID) (int64, error)
	ListAssignmentEvents(conversationID uuid.UUID) ([]models.AssignmentEvent, error)
	ListStatusEvents(conversationID uuid.UUID) ([]models.StatusEvent, error)
}

// QueueDirectory is the read-only membership lookup consumed by the engine
type QueueDirectory interface {
	IsAgentMember(queueID, userID uuid.UUID) (bool, error)
}

// AssignmentService implements manual and automatic agent assignment, status
// transitions and history reads over the conversation store
type AssignmentService struct {
	store  ConversationStore
	queues QueueDirectory
	audit  AuditPublisher
}

// NewAssignmentService creates a new assignment service
func NewAssignmentService(store ConversationStore, queues QueueDirectory, audit AuditPublisher) *AssignmentService {
	return &AssignmentService{
		store:  store,
		queues: queues,
		audit:  audit,
	}
}

// ManualAssign assigns an agent to a conversation. The agent must belong to
// the conversation's queue when one is set; closed conversations are
// rejected. Reassignment of an already assigned conversation is allowed.
func (s *AssignmentService) ManualAssign(conversationID, agentID, actorID uuid.UUID, reason string) (*models.Conversation, error) {
	conversation, err := s.store.GetByID(conversationID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	if conversation.IsClosed() {
		return nil, fmt.Errorf("%w: conversation is closed", ErrInvalidState)
	}

	if err := s.checkQueueMembership(conversation, agentID); err != nil {
		return nil, err
	}

	fromStatus := conversation.Status
	conversation.AssignedAgentID = &agentID
	conversation.Status = models.ConversationStatusAssigned

	assignment, status := s.buildAssignmentEvents(conversation, agentID, actorID, reason, fromStatus)
	if err := s.store.CommitAssignment(conversation, assignment, status); err != nil {
		return nil, err
	}

	publishAudit(s.audit, "conversation.assigned", actorID, conversation.ID, "manual_assign", map[string]string{
		"agent_id": agentID.String(),
		"reason":   reason,
	})

	return conversation, nil
}

// AutoAssign selects the least-loaded candidate agent and assigns it to the
// conversation. Selection is deterministic: minimum open-assigned count,
// ties broken by lowest agent id. The commit is a compare-and-set against
// the open status; when the conversation is grabbed concurrently the loser
// re-selects once against the updated state before giving up with
// ErrAlreadyAssigned.
func (s *AssignmentService) AutoAssign(conversationID uuid.UUID, candidateIDs []uuid.UUID, actorID uuid.UUID) (*models.Conversation, error) {
	if len(candidateIDs) == 0 {
		return nil, ErrNoCandidates
	}

	// One retry after a lost race, then surface the conflict
	for attempt := 0; attempt < 2; attempt++ {
		conversation, err := s.store.GetByID(conversationID)
		if err != nil {
			return nil, mapStoreError(err)
		}

		if conversation.IsClosed() {
			return nil, fmt.Errorf("%w: conversation is closed", ErrInvalidState)
		}
		if conversation.Status != models.ConversationStatusOpen {
			return nil, ErrAlreadyAssigned
		}

		for _, candidateID := range candidateIDs {
			if err := s.checkQueueMembership(conversation, candidateID); err != nil {
				return nil, err
			}
		}

		agentID, err := s.selectLeastLoaded(candidateIDs)
		if err != nil {
			return nil, err
		}

		fromStatus := conversation.Status
		conversation.AssignedAgentID = &agentID
		conversation.Status = models.ConversationStatusAssigned

		assignment, status := s.buildAssignmentEvents(conversation, agentID, actorID, "auto", fromStatus)
		won, err := s.store.CommitAssignmentIfStatus(conversation, models.ConversationStatusOpen, assignment, status)
		if err != nil {
			return nil, err
		}
		if won {
			publishAudit(s.audit, "conversation.assigned", actorID, conversation.ID, "auto_assign", map[string]string{
				"agent_id": agentID.String(),
			})
			return conversation, nil
		}

		log.Debug().Str("conversation_id", conversationID.String()).Msg("auto-assign lost compare-and-set, retrying selection")
	}

	return nil, ErrAlreadyAssigned
}

// ChangeStatus applies a status transition. Valid transitions are
// open→closed, assigned→closed and closed→open (reopen). Closing or
// reopening clears the assigned agent; the AssignmentEvent trail preserves
// who handled the conversation. Moving to assigned requires a simultaneous
// agent assignment and is rejected here; use ManualAssign or AutoAssign.
func (s *AssignmentService) ChangeStatus(conversationID uuid.UUID, targetStatus string, actorID uuid.UUID) (*models.Conversation, error) {
	conversation, err := s.store.GetByID(conversationID)
	if err != nil {
		return nil, mapStoreError(err)
	}

	fromStatus := conversation.Status
	switch {
	case fromStatus == models.ConversationStatusOpen && targetStatus == models.ConversationStatusClosed:
		conversation.AssignedAgentID = nil
	case fromStatus == models.ConversationStatusAssigned && targetStatus == models.ConversationStatusClosed:
		conversation.AssignedAgentID = nil
	case fromStatus == models.ConversationStatusClosed && targetStatus == models.ConversationStatusOpen:
		conversation.AssignedAgentID = nil
	case targetStatus == models.ConversationStatusAssigned:
		return nil, fmt.Errorf("%w: transition to assigned requires an agent assignment", ErrInvalidTransition)
	default:
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, fromStatus, targetStatus)
	}

	conversation.Status = targetStatus
	status := &models.StatusEvent{
		ConversationID: conversation.ID,
		FromStatus:     fromStatus,
		ToStatus:       targetStatus,
		ActorID:        actorID,
	}
	status.TenantID = conversation.TenantID

	if err := s.store.CommitStatus(conversation, status); err != nil {
		return nil, err
	}

	publishAudit(s.audit, "conversation.status_changed", actorID, conversation.ID, "change_status", map[string]string{
		"from": fromStatus,
		"to":   targetStatus,
	})

	return conversation, nil
}

// History returns the assignment and status event sequences of a
// conversation, each ordered by creation time ascending
func (s *AssignmentService) History(conversationID uuid.UUID) (*models.ConversationHistory, error) {
	if _, err := s.store.GetByID(conversationID); err != nil {
		return nil, mapStoreError(err)
	}

	assignments, err := s.store.ListAssignmentEvents(conversationID)
	if err != nil {
		return nil, err
	}

	statuses, err := s.store.ListStatusEvents(conversationID)
	if err != nil {
		return nil, err
	}

	return &models.ConversationHistory{
		Assignments: assignments,
		Statuses:    statuses,
	}, nil
}

// checkQueueMembership rejects agents outside the conversation's queue.
// Conversations without a queue accept any agent.
func (s *AssignmentService) checkQueueMembership(conversation *models.Conversation, agentID uuid.UUID) error {
	if conversation.QueueID == nil {
		return nil
	}

	member, err := s.queues.IsAgentMember(*conversation.QueueID, agentID)
	if err != nil {
		return err
	}
	if !member {
		return fmt.Errorf("%w: agent %s, queue %s", ErrNotQueueMember, agentID, *conversation.QueueID)
	}
	return nil
}

// selectLeastLoaded picks the candidate with the fewest assigned
// conversations, breaking ties by lowest agent id so repeated runs over the
// same load snapshot pick the same agent
func (s *AssignmentService) selectLeastLoaded(candidateIDs []uuid.UUID) (uuid.UUID, error) {
	var best uuid.UUID
	bestLoad := int64(-1)

	for _, candidateID := range candidateIDs {
		load, err := s.store.CountOpenAssignedByAgent(candidateID)
		if err != nil {
			return uuid.Nil, err
		}
		if bestLoad < 0 || load < bestLoad || (load == bestLoad && candidateID.String() < best.String()) {
			best = candidateID
			bestLoad = load
		}
	}

	return best, nil
}

// buildAssignmentEvents builds the event pair appended with every assignment
func (s *AssignmentService) buildAssignmentEvents(conversation *models.Conversation, agentID, actorID uuid.UUID, reason, fromStatus string) (*models.AssignmentEvent, *models.StatusEvent) {
	assignment := &models.AssignmentEvent{
		ConversationID: conversation.ID,
		AgentID:        agentID,
		ActorID:        actorID,
		Reason:         reason,
	}
	assignment.TenantID = conversation.TenantID

	status := &models.StatusEvent{
		ConversationID: conversation.ID,
		FromStatus:     fromStatus,
		ToStatus:       models.ConversationStatusAssigned,
		ActorID:        actorID,
	}
	status.TenantID = conversation.TenantID

	return assignment, status
}

// mapStoreError translates store-level not-found errors into the engine's
// error taxonomy
func mapStoreError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
