package errors

import "errors"

var (
	ErrInvalidInput           = errors.New("invalid voting input")
	ErrSessionNotFound        = errors.New("voting session not found")
	ErrVoteAlreadyActive      = errors.New("group already has an active vote")
	ErrInsufficientCandidates = errors.New("a vote needs at least two candidate ideas")
	ErrSessionNotActive       = errors.New("voting session is not active")
	ErrAlreadyResolved        = errors.New("voting session is already resolved")
	ErrNotEligible            = errors.New("member is not eligible to vote in this round")
	ErrCandidateNotInRound    = errors.New("candidate is not in the current round")
	ErrNoVotesCast            = errors.New("no votes have been cast in this round")
	ErrNoVetoesRemaining      = errors.New("no veto cards remaining")
	ErrNotInCurrentRound      = errors.New("idea is not in the current round")
	ErrVotingClosed           = errors.New("voting deadline has passed")
	ErrNotMember              = errors.New("user is not an active member of the group")
	ErrForbidden              = errors.New("administrator role required")
	ErrConflict               = errors.New("voting session conflict")
	ErrIdempotencyConflict    = errors.New("idempotency key conflict")
)
