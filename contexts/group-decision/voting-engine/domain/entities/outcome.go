package entities

// Outcome is the closed set of results a resolution attempt can produce:
// WinnerSelected, RoundAdvanced or NoChange.
type Outcome interface {
	outcome()
	CurrentSession() VotingSession
}

// WinnerSelected is returned when the session transitioned to resolved.
type WinnerSelected struct {
	Session VotingSession
	Tally   []CandidateTally
}

// RoundAdvanced is returned when a re-vote tie narrowed the field.
type RoundAdvanced struct {
	Session VotingSession
	TiedIDs []string
	Tally   []CandidateTally
}

// NoChange is returned when the session was already terminal or another caller
// won the transition race. Message explains which.
type NoChange struct {
	Session VotingSession
	Message string
}

func (WinnerSelected) outcome() {}
func (RoundAdvanced) outcome()  {}
func (NoChange) outcome()       {}

func (o WinnerSelected) CurrentSession() VotingSession { return o.Session }
func (o RoundAdvanced) CurrentSession() VotingSession  { return o.Session }
func (o NoChange) CurrentSession() VotingSession       { return o.Session }

// CandidateTally is the live ballot count for one candidate in one round.
type CandidateTally struct {
	CandidateID string `json:"candidate_id"`
	Votes       int    `json:"votes"`
}

// Trigger identifies what asked for resolution; manual resolution is the only
// trigger that refuses an empty tally.
type Trigger string

const (
	TriggerManual   Trigger = "manual"
	TriggerQuorum   Trigger = "quorum"
	TriggerDeadline Trigger = "deadline"
	TriggerVeto     Trigger = "veto"
)
