package http

import "time"

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type StartVoteRequest struct {
	TieBreakerMode   string `json:"tie_breaker_mode"`
	TimeLimitMinutes int    `json:"time_limit_minutes"`
	CandidateCount   int    `json:"candidate_count,omitempty"`
}

type CastVoteRequest struct {
	CandidateID string `json:"candidate_id"`
}

type VetoIdeaRequest struct {
	CandidateID string `json:"candidate_id"`
}

type ExtendVoteRequest struct {
	DeltaMinutes int `json:"delta_minutes,omitempty"`
}

type GrantVetoesRequest struct {
	MemberID string `json:"member_id"`
	Count    int    `json:"count"`
}

type SessionResponse struct {
	SessionID        string     `json:"session_id"`
	GroupID          string     `json:"group_id"`
	Status           string     `json:"status"`
	Round            int        `json:"round"`
	TieBreakerMode   string     `json:"tie_breaker_mode"`
	CandidateIDs     []string   `json:"candidate_ids"`
	StartedAt        time.Time  `json:"started_at"`
	EndsAt           *time.Time `json:"ends_at,omitempty"`
	WinnerID         string     `json:"winner_id,omitempty"`
	ResolutionMethod string     `json:"resolution_method,omitempty"`
	Replayed         bool       `json:"replayed,omitempty"`
}

type TallyItem struct {
	CandidateID string `json:"candidate_id"`
	Votes       int    `json:"votes"`
}

// OutcomeResponse is the tagged resolution result. Kind is one of "winner",
// "next_round" or "no_change".
type OutcomeResponse struct {
	Kind    string          `json:"kind"`
	Session SessionResponse `json:"session"`
	TiedIDs []string        `json:"tied_ids,omitempty"`
	Tally   []TallyItem     `json:"tally,omitempty"`
	Message string          `json:"message,omitempty"`
}

type CastVoteResponse struct {
	OK            bool             `json:"ok"`
	Session       SessionResponse  `json:"session"`
	VotesCast     int              `json:"votes_cast"`
	EligibleCount int              `json:"eligible_count"`
	Outcome       *OutcomeResponse `json:"outcome,omitempty"`
	Replayed      bool             `json:"replayed,omitempty"`
}

type VetoIdeaResponse struct {
	OK              bool             `json:"ok"`
	Session         SessionResponse  `json:"session"`
	VetoesRemaining int              `json:"vetoes_remaining"`
	Outcome         *OutcomeResponse `json:"outcome,omitempty"`
	Replayed        bool             `json:"replayed,omitempty"`
}

type ExtendVoteResponse struct {
	Session SessionResponse  `json:"session"`
	Outcome *OutcomeResponse `json:"outcome,omitempty"`
}

type GrantVetoesResponse struct {
	MemberID  string `json:"member_id"`
	Remaining int    `json:"remaining"`
}

type VoteStatusResponse struct {
	Active             bool       `json:"active"`
	SessionID          string     `json:"session_id,omitempty"`
	Status             string     `json:"status,omitempty"`
	Round              int        `json:"round,omitempty"`
	TieBreakerMode     string     `json:"tie_breaker_mode,omitempty"`
	CandidateIDs       []string   `json:"candidate_ids,omitempty"`
	EndsAt             *time.Time `json:"ends_at,omitempty"`
	WinnerID           string     `json:"winner_id,omitempty"`
	ResolutionMethod   string     `json:"resolution_method,omitempty"`
	HasVoted           bool       `json:"has_voted"`
	IsEligible         bool       `json:"is_eligible"`
	IsAdmin            bool       `json:"is_admin"`
	VotesCast          int        `json:"votes_cast"`
	TotalMembers       int        `json:"total_members"`
	PendingVoters      []string   `json:"pending_voters,omitempty"`
	VetoCardsRemaining int        `json:"veto_cards_remaining"`
}

type AuditBallot struct {
	BallotID    string    `json:"ballot_id"`
	Round       int       `json:"round"`
	VoterID     string    `json:"voter_id"`
	CandidateID string    `json:"candidate_id"`
	CastAt      time.Time `json:"cast_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Void        bool      `json:"void"`
}

type AuditVeto struct {
	VetoID      string    `json:"veto_id"`
	Round       int       `json:"round"`
	MemberID    string    `json:"member_id"`
	CandidateID string    `json:"candidate_id"`
	VetoedAt    time.Time `json:"vetoed_at"`
}

type SessionAuditResponse struct {
	Session SessionResponse `json:"session"`
	Ballots []AuditBallot   `json:"ballots"`
	Vetoes  []AuditVeto     `json:"vetoes"`
}
