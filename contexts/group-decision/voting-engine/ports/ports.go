package ports

import (
	"context"
	"time"

	"ideajar/contexts/group-decision/voting-engine/domain/entities"
	"ideajar/internal/shared/events"
	"ideajar/internal/shared/outbox"
)

type EventEnvelope = events.Envelope

type OutboxMessage = outbox.Message

// SessionRepository owns voting session rows. Every write after creation is a
// compare-and-swap on the session version.
type SessionRepository interface {
	CreateSession(ctx context.Context, session entities.VotingSession) error
	GetSession(ctx context.Context, sessionID string) (entities.VotingSession, error)
	GetActiveSession(ctx context.Context, groupID string) (entities.VotingSession, bool, error)
	GetLatestSession(ctx context.Context, groupID string) (entities.VotingSession, bool, error)
	// SwapSession persists session if the stored version still equals
	// session.Version. It returns the stored copy with the bumped version and
	// false when another writer got there first.
	SwapSession(ctx context.Context, session entities.VotingSession) (entities.VotingSession, bool, error)
	ListExpiredSessions(ctx context.Context, now time.Time, limit int) ([]entities.VotingSession, error)
}

type BallotRepository interface {
	// UpsertBallot inserts or overwrites the ballot for (session, round, voter).
	UpsertBallot(ctx context.Context, ballot entities.Ballot) (entities.Ballot, error)
	ListBallots(ctx context.Context, sessionID string, round int) ([]entities.Ballot, error)
	ListSessionBallots(ctx context.Context, sessionID string) ([]entities.Ballot, error)
}

// VetoLedger tracks veto cards per (group, member). SpendVeto must decrement
// only when remaining > 0, in a single statement.
type VetoLedger interface {
	GetVetoBalance(ctx context.Context, groupID string, memberID string) (int, error)
	SpendVeto(ctx context.Context, groupID string, memberID string, at time.Time) (bool, error)
	GrantVetoes(ctx context.Context, groupID string, memberID string, count int, at time.Time) (int, error)
	RecordVeto(ctx context.Context, record entities.VetoRecord) error
	ListVetoes(ctx context.Context, sessionID string) ([]entities.VetoRecord, error)
}

type OutboxWriter interface {
	AppendOutbox(ctx context.Context, envelope EventEnvelope) error
}

type OutboxRepository interface {
	ListPendingOutbox(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error
}

// Repository is the transactional view handed to a unit of work.
type Repository interface {
	SessionRepository
	BallotRepository
	VetoLedger
	OutboxWriter
}

// UnitOfWork runs fn atomically against session, ballot, veto and outbox
// records. A non-nil error from fn rolls everything back.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}

type IdempotencyRecord struct {
	Key         string
	RequestHash string
	SessionID   string
	ExpiresAt   time.Time
}

type IdempotencyStore interface {
	Get(ctx context.Context, key string, now time.Time) (IdempotencyRecord, bool, error)
	Put(ctx context.Context, record IdempotencyRecord) error
}

// EventDedupStore gates redeliveries. A consumer that fails after reserving
// releases the reservation so the next delivery is processed again.
type EventDedupStore interface {
	ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error)
	ReleaseEvent(ctx context.Context, eventID string, payloadHash string) error
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, event EventEnvelope) error
}

type EventSubscriber interface {
	Subscribe(
		ctx context.Context,
		topic string,
		consumerGroup string,
		handler func(context.Context, EventEnvelope) error,
	) error
}

// IdeaInventory is the idea storage collaborator.
type IdeaInventory interface {
	ListUnselectedIdeas(ctx context.Context, groupID string) ([]entities.Idea, error)
}

// Membership is the membership and role collaborator.
type Membership interface {
	ListActiveMembers(ctx context.Context, groupID string) ([]string, error)
	// GetRole returns false when the member is not active in the group.
	GetRole(ctx context.Context, groupID string, memberID string) (entities.Role, bool, error)
}

// Notifier delivers fire-and-forget group broadcasts.
type Notifier interface {
	NotifyGroup(ctx context.Context, groupID string, event string, payload map[string]any) error
}

// IdeaSelection receives the winner hand-off.
type IdeaSelection interface {
	MarkIdeaSelected(ctx context.Context, ideaID string) error
}

type Clock interface {
	Now() time.Time
}

type IDGenerator interface {
	NewID(ctx context.Context) (string, error)
}

type RandomSource interface {
	IntN(n int) int
}

// Metrics receives engine counters. Implementations must be safe for
// concurrent use.
type Metrics interface {
	SessionStarted()
	SessionResolved(method entities.ResolutionMethod)
	SessionCancelled()
	RoundAdvanced()
	BallotCast()
	VetoSpent()
	SessionExpired(source string)
}
