package postgresadapter

import (
	"encoding/json"
	"strings"
	"time"

	"ideajar/contexts/group-decision/voting-engine/domain/entities"
)

type sessionModel struct {
	SessionID        string     `gorm:"column:session_id;primaryKey"`
	GroupID          string     `gorm:"column:group_id;not null;index:idx_voting_sessions_active_group,unique,where:status = 'active';index:idx_voting_sessions_group_started,priority:1"`
	Status           string     `gorm:"column:status;not null"`
	Round            int        `gorm:"column:round;not null"`
	TieBreakerMode   string     `gorm:"column:tie_breaker_mode;not null"`
	Candidates       string     `gorm:"column:candidates;type:text;not null"`
	LastTiedIDs      string     `gorm:"column:last_tied_ids;type:text"`
	TimeLimitMinutes int        `gorm:"column:time_limit_minutes;not null"`
	StartedAt        time.Time  `gorm:"column:started_at;not null;index:idx_voting_sessions_group_started,priority:2"`
	EndsAt           *time.Time `gorm:"column:ends_at;index"`
	WinnerID         *string    `gorm:"column:winner_id"`
	ResolutionMethod *string    `gorm:"column:resolution_method"`
	ResolvedAt       *time.Time `gorm:"column:resolved_at"`
	CancelledAt      *time.Time `gorm:"column:cancelled_at"`
	StartedBy        string     `gorm:"column:started_by"`
	Version          int64      `gorm:"column:version;not null"`
	CreatedAt        time.Time  `gorm:"column:created_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at"`
}

func (sessionModel) TableName() string {
	return "voting_sessions"
}

func sessionModelFromEntity(session entities.VotingSession) sessionModel {
	row := sessionModel{
		SessionID:        strings.TrimSpace(session.SessionID),
		GroupID:          strings.TrimSpace(session.GroupID),
		Status:           string(session.Status),
		Round:            session.Round,
		TieBreakerMode:   string(session.TieBreakerMode),
		Candidates:       encodeJSON(session.Candidates),
		LastTiedIDs:      encodeJSON(session.LastTiedIDs),
		TimeLimitMinutes: session.TimeLimitMinutes,
		StartedAt:        session.StartedAt.UTC(),
		EndsAt:           normalizeOptionalTime(session.EndsAt),
		WinnerID:         optionalString(session.WinnerID),
		ResolutionMethod: optionalString(string(session.ResolutionMethod)),
		ResolvedAt:       normalizeOptionalTime(session.ResolvedAt),
		CancelledAt:      normalizeOptionalTime(session.CancelledAt),
		StartedBy:        strings.TrimSpace(session.StartedBy),
		Version:          session.Version,
		CreatedAt:        session.CreatedAt.UTC(),
		UpdatedAt:        session.UpdatedAt.UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.UpdatedAt.IsZero() {
		row.UpdatedAt = row.CreatedAt
	}
	return row
}

// mutableColumns lists what a compare-and-swap may rewrite.
func (m sessionModel) mutableColumns() map[string]any {
	return map[string]any{
		"status":            m.Status,
		"round":             m.Round,
		"candidates":        m.Candidates,
		"last_tied_ids":     m.LastTiedIDs,
		"ends_at":           m.EndsAt,
		"winner_id":         m.WinnerID,
		"resolution_method": m.ResolutionMethod,
		"resolved_at":       m.ResolvedAt,
		"cancelled_at":      m.CancelledAt,
		"version":           m.Version,
		"updated_at":        m.UpdatedAt,
	}
}

func (m sessionModel) toEntity() entities.VotingSession {
	session := entities.VotingSession{
		SessionID:        m.SessionID,
		GroupID:          m.GroupID,
		Status:           entities.SessionStatus(m.Status),
		Round:            m.Round,
		TieBreakerMode:   entities.TieBreakerMode(m.TieBreakerMode),
		Candidates:       decodeCandidates(m.Candidates),
		LastTiedIDs:      decodeStrings(m.LastTiedIDs),
		TimeLimitMinutes: m.TimeLimitMinutes,
		StartedAt:        m.StartedAt.UTC(),
		EndsAt:           normalizeOptionalTime(m.EndsAt),
		ResolvedAt:       normalizeOptionalTime(m.ResolvedAt),
		CancelledAt:      normalizeOptionalTime(m.CancelledAt),
		StartedBy:        m.StartedBy,
		Version:          m.Version,
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
	}
	if m.WinnerID != nil {
		session.WinnerID = *m.WinnerID
	}
	if m.ResolutionMethod != nil {
		session.ResolutionMethod = entities.ResolutionMethod(*m.ResolutionMethod)
	}
	return session
}

type ballotModel struct {
	BallotID    string    `gorm:"column:ballot_id;primaryKey"`
	SessionID   string    `gorm:"column:session_id;not null;uniqueIndex:idx_voting_ballots_voter,priority:1"`
	Round       int       `gorm:"column:round;not null;uniqueIndex:idx_voting_ballots_voter,priority:2"`
	VoterID     string    `gorm:"column:voter_id;not null;uniqueIndex:idx_voting_ballots_voter,priority:3"`
	CandidateID string    `gorm:"column:candidate_id;not null"`
	CastAt      time.Time `gorm:"column:cast_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (ballotModel) TableName() string {
	return "voting_ballots"
}

func (m ballotModel) toEntity() entities.Ballot {
	return entities.Ballot{
		BallotID:    m.BallotID,
		SessionID:   m.SessionID,
		Round:       m.Round,
		VoterID:     m.VoterID,
		CandidateID: m.CandidateID,
		CastAt:      m.CastAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}
}

type vetoRecordModel struct {
	VetoID      string    `gorm:"column:veto_id;primaryKey"`
	SessionID   string    `gorm:"column:session_id;not null;index"`
	GroupID     string    `gorm:"column:group_id;not null"`
	Round       int       `gorm:"column:round;not null"`
	MemberID    string    `gorm:"column:member_id;not null"`
	CandidateID string    `gorm:"column:candidate_id;not null"`
	VetoedAt    time.Time `gorm:"column:vetoed_at"`
}

func (vetoRecordModel) TableName() string {
	return "voting_vetoes"
}

func (m vetoRecordModel) toEntity() entities.VetoRecord {
	return entities.VetoRecord{
		VetoID:      m.VetoID,
		SessionID:   m.SessionID,
		GroupID:     m.GroupID,
		Round:       m.Round,
		MemberID:    m.MemberID,
		CandidateID: m.CandidateID,
		VetoedAt:    m.VetoedAt.UTC(),
	}
}

type vetoLedgerModel struct {
	GroupID   string    `gorm:"column:group_id;primaryKey"`
	MemberID  string    `gorm:"column:member_id;primaryKey"`
	Remaining int       `gorm:"column:remaining;not null;check:remaining >= 0"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (vetoLedgerModel) TableName() string {
	return "veto_ledger"
}

type idempotencyModel struct {
	IdempotencyKey string    `gorm:"column:idempotency_key;primaryKey"`
	RequestHash    string    `gorm:"column:request_hash"`
	SessionID      string    `gorm:"column:session_id"`
	ExpiresAt      time.Time `gorm:"column:expires_at"`
}

func (idempotencyModel) TableName() string {
	return "voting_idempotency"
}

type outboxModel struct {
	OutboxID     string     `gorm:"column:outbox_id;primaryKey"`
	EventType    string     `gorm:"column:event_type"`
	PartitionKey string     `gorm:"column:partition_key"`
	Payload      []byte     `gorm:"column:payload"`
	Status       string     `gorm:"column:status;index"`
	CreatedAt    time.Time  `gorm:"column:created_at"`
	PublishedAt  *time.Time `gorm:"column:published_at"`
}

func (outboxModel) TableName() string {
	return "voting_outbox"
}

type eventDedupModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	PayloadHash string    `gorm:"column:payload_hash"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
}

func (eventDedupModel) TableName() string {
	return "voting_event_dedup"
}

// ideaProjectionModel mirrors the idea inventory's rows this service reads.
type ideaProjectionModel struct {
	IdeaID     string     `gorm:"column:idea_id;primaryKey"`
	GroupID    string     `gorm:"column:group_id;not null;index"`
	AuthorID   string     `gorm:"column:author_id;not null"`
	SelectedAt *time.Time `gorm:"column:selected_at"`
	CreatedAt  time.Time  `gorm:"column:created_at"`
}

func (ideaProjectionModel) TableName() string {
	return "jar_ideas"
}

type memberProjectionModel struct {
	GroupID  string `gorm:"column:group_id;primaryKey"`
	MemberID string `gorm:"column:member_id;primaryKey"`
	Role     string `gorm:"column:role;not null"`
	Status   string `gorm:"column:status;not null"`
}

func (memberProjectionModel) TableName() string {
	return "jar_members"
}

// Candidate lists are stored as JSON text columns so the same schema works on
// Postgres and SQLite.
func encodeJSON(value any) string {
	raw, err := json.Marshal(value)
	if err != nil {
		return "null"
	}
	return string(raw)
}

func decodeCandidates(raw string) []entities.Candidate {
	var items []entities.Candidate
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	_ = json.Unmarshal([]byte(raw), &items)
	return items
}

func decodeStrings(raw string) []string {
	var items []string
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	_ = json.Unmarshal([]byte(raw), &items)
	return items
}

func normalizeOptionalTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	timestamp := value.UTC()
	return &timestamp
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
