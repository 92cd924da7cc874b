package entities

import (
	"slices"
	"time"
)

type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusResolved  SessionStatus = "resolved"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// IsTerminal reports whether no further mutation is permitted.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusResolved || s == SessionStatusCancelled
}

type TieBreakerMode string

const (
	TieBreakerRandomPick TieBreakerMode = "random_pick"
	TieBreakerReVote     TieBreakerMode = "re_vote"
)

func (m TieBreakerMode) Valid() bool {
	return m == TieBreakerRandomPick || m == TieBreakerReVote
}

type ResolutionMethod string

const (
	ResolutionPlurality        ResolutionMethod = "plurality"
	ResolutionRandomPick       ResolutionMethod = "random_pick"
	ResolutionStalemate        ResolutionMethod = "stalemate_random_pick"
	ResolutionNoEligibleVoters ResolutionMethod = "no_eligible_voters"
	ResolutionLastCandidate    ResolutionMethod = "last_candidate"
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Idea is the projection of an idea owned by the idea inventory collaborator.
type Idea struct {
	IdeaID   string
	GroupID  string
	AuthorID string
}

// Candidate is an idea snapshotted into a session together with its author so
// eligibility can be evaluated without re-reading the inventory.
type Candidate struct {
	IdeaID   string `json:"idea_id"`
	AuthorID string `json:"author_id"`
}

type VotingSession struct {
	SessionID        string
	GroupID          string
	Status           SessionStatus
	Round            int
	TieBreakerMode   TieBreakerMode
	Candidates       []Candidate
	LastTiedIDs      []string
	TimeLimitMinutes int
	StartedAt        time.Time
	EndsAt           *time.Time
	WinnerID         string
	ResolutionMethod ResolutionMethod
	ResolvedAt       *time.Time
	CancelledAt      *time.Time
	StartedBy        string
	Version          int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (s VotingSession) IsActive() bool {
	return s.Status == SessionStatusActive
}

func (s VotingSession) CandidateIDs() []string {
	ids := make([]string, 0, len(s.Candidates))
	for _, candidate := range s.Candidates {
		ids = append(ids, candidate.IdeaID)
	}
	return ids
}

func (s VotingSession) HasCandidate(ideaID string) bool {
	for _, candidate := range s.Candidates {
		if candidate.IdeaID == ideaID {
			return true
		}
	}
	return false
}

// Expired reports whether the deadline has passed. Sessions without a deadline
// never expire on their own.
func (s VotingSession) Expired(now time.Time) bool {
	return s.EndsAt != nil && now.After(s.EndsAt.UTC())
}

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (s VotingSession) Clone() VotingSession {
	out := s
	out.Candidates = slices.Clone(s.Candidates)
	out.LastTiedIDs = slices.Clone(s.LastTiedIDs)
	if s.EndsAt != nil {
		endsAt := *s.EndsAt
		out.EndsAt = &endsAt
	}
	if s.ResolvedAt != nil {
		resolvedAt := *s.ResolvedAt
		out.ResolvedAt = &resolvedAt
	}
	if s.CancelledAt != nil {
		cancelledAt := *s.CancelledAt
		out.CancelledAt = &cancelledAt
	}
	return out
}

type Ballot struct {
	BallotID    string
	SessionID   string
	Round       int
	VoterID     string
	CandidateID string
	CastAt      time.Time
	UpdatedAt   time.Time
}

type VetoRecord struct {
	VetoID      string
	SessionID   string
	GroupID     string
	Round       int
	MemberID    string
	CandidateID string
	VetoedAt    time.Time
}

type VetoLedgerEntry struct {
	GroupID   string
	MemberID  string
	Remaining int
	UpdatedAt time.Time
}
