package services

import "errors"

// Sentinel errors returned by the assignment engine and campaign dispatcher.
// Handlers map these to HTTP status codes; callers that lost a race
// (ErrAlreadyAssigned, ErrAlreadyRunning) should re-query and decide whether
// to retry.
var (
	ErrNotFound          = errors.New("entity not found")
	ErrInvalidState      = errors.New("operation not legal from current state")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotQueueMember    = errors.New("agent is not a member of the conversation queue")
	ErrAlreadyAssigned   = errors.New("conversation was assigned concurrently")
	ErrAlreadyRunning    = errors.New("campaign already has an active run")
	ErrNoCandidates      = errors.New("candidate agent list is empty")
)
