package postgresadapter_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	postgresadapter "ideajar/contexts/group-decision/voting-engine/adapters/postgres"
	"ideajar/contexts/group-decision/voting-engine/application/commands"
	"ideajar/contexts/group-decision/voting-engine/domain/entities"
	domainerrors "ideajar/contexts/group-decision/voting-engine/domain/errors"
	"ideajar/contexts/group-decision/voting-engine/ports"
	"ideajar/internal/platform/db"

	"github.com/stretchr/testify/require"
)

// Whole-second UTC times keep SQLite's text timestamps comparable.
var baseTime = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.now
}

type zeroRandom struct{}

func (zeroRandom) IntN(int) int { return 0 }

func newRepository(t *testing.T) *postgresadapter.Repository {
	t.Helper()
	database, err := db.Connect(db.DriverSQLite, filepath.Join(t.TempDir(), "voting.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, database.Migrate(postgresadapter.AutoMigrate, nil))
	return postgresadapter.NewRepository(database.DB, nil)
}

func newSession(sessionID string, groupID string) entities.VotingSession {
	endsAt := baseTime.Add(10 * time.Minute)
	return entities.VotingSession{
		SessionID:        sessionID,
		GroupID:          groupID,
		Status:           entities.SessionStatusActive,
		Round:            1,
		TieBreakerMode:   entities.TieBreakerReVote,
		Candidates:       []entities.Candidate{{IdeaID: "a", AuthorID: "u1"}, {IdeaID: "b", AuthorID: "u2"}},
		TimeLimitMinutes: 10,
		StartedAt:        baseTime,
		EndsAt:           &endsAt,
		StartedBy:        "admin",
		Version:          1,
		CreatedAt:        baseTime,
		UpdatedAt:        baseTime,
	}
}

func TestSessionLifecycle(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateSession(ctx, newSession("s1", "g1")))
	err := repo.CreateSession(ctx, newSession("s2", "g1"))
	require.ErrorIs(t, err, domainerrors.ErrVoteAlreadyActive)

	active, found, err := repo.GetActiveSession(ctx, "g1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []string{"a", "b"}, active.CandidateIDs())
	require.Equal(t, "u2", active.Candidates[1].AuthorID)
	require.NotNil(t, active.EndsAt)
	require.True(t, active.EndsAt.Equal(baseTime.Add(10*time.Minute)))

	next := active.Clone()
	next.Round = 2
	next.LastTiedIDs = []string{"a", "b"}
	stored, applied, err := repo.SwapSession(ctx, next)
	require.NoError(t, err)
	require.True(t, applied)
	require.EqualValues(t, 2, stored.Version)

	stale := active.Clone()
	stale.Status = entities.SessionStatusCancelled
	current, applied, err := repo.SwapSession(ctx, stale)
	require.NoError(t, err)
	require.False(t, applied)
	require.Equal(t, 2, current.Round)
	require.Equal(t, []string{"a", "b"}, current.LastTiedIDs)

	resolved := current.Clone()
	resolved.Status = entities.SessionStatusResolved
	resolved.WinnerID = "b"
	resolved.ResolutionMethod = entities.ResolutionStalemate
	resolvedAt := baseTime.Add(time.Minute)
	resolved.ResolvedAt = &resolvedAt
	_, applied, err = repo.SwapSession(ctx, resolved)
	require.NoError(t, err)
	require.True(t, applied)

	_, found, err = repo.GetActiveSession(ctx, "g1")
	require.NoError(t, err)
	require.False(t, found)
	latest, found, err := repo.GetLatestSession(ctx, "g1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "b", latest.WinnerID)
	require.Equal(t, entities.ResolutionStalemate, latest.ResolutionMethod)

	// The partial index only covers active rows.
	second := newSession("s2", "g1")
	second.StartedAt = baseTime.Add(time.Hour)
	require.NoError(t, repo.CreateSession(ctx, second))

	_, err = repo.GetSession(ctx, "missing")
	require.ErrorIs(t, err, domainerrors.ErrSessionNotFound)
}

func TestListExpiredSessions(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	early := newSession("s1", "g1")
	late := newSession("s2", "g2")
	lateEnds := baseTime.Add(time.Hour)
	late.EndsAt = &lateEnds
	untimed := newSession("s3", "g3")
	untimed.EndsAt = nil
	for _, session := range []entities.VotingSession{early, late, untimed} {
		require.NoError(t, repo.CreateSession(ctx, session))
	}

	expired, err := repo.ListExpiredSessions(ctx, baseTime.Add(30*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	require.Equal(t, "s1", expired[0].SessionID)

	expired, err = repo.ListExpiredSessions(ctx, baseTime.Add(2*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, expired, 2)
}

func TestUpsertBallotKeepsOneRowPerVoter(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()
	require.NoError(t, repo.CreateSession(ctx, newSession("s1", "g1")))

	first, err := repo.UpsertBallot(ctx, entities.Ballot{
		BallotID: "b1", SessionID: "s1", Round: 1, VoterID: "v1", CandidateID: "a",
		CastAt: baseTime, UpdatedAt: baseTime,
	})
	require.NoError(t, err)
	recast, err := repo.UpsertBallot(ctx, entities.Ballot{
		BallotID: "b2", SessionID: "s1", Round: 1, VoterID: "v1", CandidateID: "b",
		CastAt: baseTime.Add(time.Minute), UpdatedAt: baseTime.Add(time.Minute),
	})
	require.NoError(t, err)
	require.Equal(t, first.BallotID, recast.BallotID)
	require.Equal(t, "b", recast.CandidateID)
	require.True(t, recast.CastAt.Equal(baseTime))

	_, err = repo.UpsertBallot(ctx, entities.Ballot{
		BallotID: "b3", SessionID: "s1", Round: 2, VoterID: "v1", CandidateID: "a",
		CastAt: baseTime, UpdatedAt: baseTime,
	})
	require.NoError(t, err)

	roundOne, err := repo.ListBallots(ctx, "s1", 1)
	require.NoError(t, err)
	require.Len(t, roundOne, 1)
	all, err := repo.ListSessionBallots(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, 1, all[0].Round)
}

func TestVetoLedger(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	spent, err := repo.SpendVeto(ctx, "g1", "m1", baseTime)
	require.NoError(t, err)
	require.False(t, spent)

	remaining, err := repo.GrantVetoes(ctx, "g1", "m1", 1, baseTime)
	require.NoError(t, err)
	require.Equal(t, 1, remaining)
	remaining, err = repo.GrantVetoes(ctx, "g1", "m1", 1, baseTime)
	require.NoError(t, err)
	require.Equal(t, 2, remaining)

	for i := 0; i < 2; i++ {
		spent, err = repo.SpendVeto(ctx, "g1", "m1", baseTime)
		require.NoError(t, err)
		require.True(t, spent)
	}
	spent, err = repo.SpendVeto(ctx, "g1", "m1", baseTime)
	require.NoError(t, err)
	require.False(t, spent)
	balance, err := repo.GetVetoBalance(ctx, "g1", "m1")
	require.NoError(t, err)
	require.Zero(t, balance)

	require.NoError(t, repo.RecordVeto(ctx, entities.VetoRecord{
		VetoID: "veto-1", SessionID: "s1", GroupID: "g1", Round: 1, MemberID: "m1", CandidateID: "a", VetoedAt: baseTime,
	}))
	vetoes, err := repo.ListVetoes(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, vetoes, 1)
	require.Equal(t, "a", vetoes[0].CandidateID)

	_, err = repo.GrantVetoes(ctx, "g1", "m1", 0, baseTime)
	require.ErrorIs(t, err, domainerrors.ErrInvalidInput)
}

func TestIdempotencyStore(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()
	record := ports.IdempotencyRecord{Key: "k1", RequestHash: "h1", SessionID: "s1", ExpiresAt: baseTime.Add(time.Hour)}

	require.NoError(t, repo.Put(ctx, record))
	require.NoError(t, repo.Put(ctx, record))
	conflicting := record
	conflicting.RequestHash = "h2"
	require.ErrorIs(t, repo.Put(ctx, conflicting), domainerrors.ErrIdempotencyConflict)

	got, found, err := repo.Get(ctx, "k1", baseTime)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "s1", got.SessionID)

	_, found, err = repo.Get(ctx, "k1", baseTime.Add(2*time.Hour))
	require.NoError(t, err)
	require.False(t, found)
}

func TestOutboxAndDedup(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()
	envelope := ports.EventEnvelope{
		EventID:      "e1",
		EventType:    commands.EventSessionStarted,
		OccurredAt:   baseTime,
		PartitionKey: "g1",
		Data:         []byte(`{"group_id":"g1"}`),
	}
	require.NoError(t, repo.AppendOutbox(ctx, envelope))
	require.NoError(t, repo.AppendOutbox(ctx, envelope))
	changed := envelope
	changed.Data = []byte(`{"group_id":"g2"}`)
	require.ErrorIs(t, repo.AppendOutbox(ctx, changed), domainerrors.ErrConflict)

	pending, err := repo.ListPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, commands.EventSessionStarted, pending[0].EventType)

	require.NoError(t, repo.MarkOutboxPublished(ctx, "e1", baseTime))
	pending, err = repo.ListPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)
	require.ErrorIs(t, repo.MarkOutboxPublished(ctx, "nope", baseTime), domainerrors.ErrConflict)

	seen, err := repo.ReserveEvent(ctx, "e1", "hash", baseTime.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, seen)
	seen, err = repo.ReserveEvent(ctx, "e1", "hash", baseTime.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, seen)
	_, err = repo.ReserveEvent(ctx, "e1", "other", baseTime.Add(time.Hour))
	require.ErrorIs(t, err, domainerrors.ErrConflict)

	require.NoError(t, repo.ReleaseEvent(ctx, "e1", "other"))
	seen, err = repo.ReserveEvent(ctx, "e1", "hash", baseTime.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, seen, "a release for another payload keeps the reservation")

	require.NoError(t, repo.ReleaseEvent(ctx, "e1", "hash"))
	seen, err = repo.ReserveEvent(ctx, "e1", "hash", baseTime.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, seen, "a released event is processed again")
}

func TestDirectoryProjections(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.UpsertMember(ctx, "g1", "alice", entities.RoleAdmin, "active"))
	require.NoError(t, repo.UpsertMember(ctx, "g1", "bob", entities.RoleMember, "active"))
	require.NoError(t, repo.UpsertMember(ctx, "g1", "carol", entities.RoleMember, "active"))
	require.NoError(t, repo.UpsertMember(ctx, "g1", "carol", entities.RoleMember, "left"))

	members, err := repo.ListActiveMembers(ctx, "g1")
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob"}, members)
	role, found, err := repo.GetRole(ctx, "g1", "alice")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, entities.RoleAdmin, role)
	_, found, err = repo.GetRole(ctx, "g1", "carol")
	require.NoError(t, err)
	require.False(t, found)

	require.NoError(t, repo.UpsertIdea(ctx, entities.Idea{IdeaID: "i2", GroupID: "g1", AuthorID: "bob"}))
	require.NoError(t, repo.UpsertIdea(ctx, entities.Idea{IdeaID: "i1", GroupID: "g1", AuthorID: "alice"}))
	require.NoError(t, repo.MarkIdeaSelected(ctx, "i1"))
	require.NoError(t, repo.MarkIdeaSelected(ctx, "i1"))
	require.ErrorIs(t, repo.MarkIdeaSelected(ctx, "ghost"), domainerrors.ErrInvalidInput)

	ideas, err := repo.ListUnselectedIdeas(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, ideas, 1)
	require.Equal(t, "i2", ideas[0].IdeaID)
}

func TestWithinTxRollsBack(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.WithinTx(ctx, func(ctx context.Context, tx ports.Repository) error {
		if err := tx.CreateSession(ctx, newSession("s1", "g1")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	_, found, err := repo.GetLatestSession(ctx, "g1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestSessionUseCaseOverSQLite(t *testing.T) {
	repo := newRepository(t)
	ctx := context.Background()
	for _, member := range []string{"admin", "ann", "ben"} {
		role := entities.RoleMember
		if member == "admin" {
			role = entities.RoleAdmin
		}
		require.NoError(t, repo.UpsertMember(ctx, "jar", member, role, "active"))
	}
	require.NoError(t, repo.UpsertIdea(ctx, entities.Idea{IdeaID: "hike", GroupID: "jar", AuthorID: "ann"}))
	require.NoError(t, repo.UpsertIdea(ctx, entities.Idea{IdeaID: "karaoke", GroupID: "jar", AuthorID: "ben"}))

	sessions := commands.SessionUseCase{
		UnitOfWork:  repo,
		Ideas:       repo,
		Members:     repo,
		Idempotency: repo,
		Clock:       &fixedClock{now: baseTime},
		IDGen:       postgresadapter.UUIDGenerator{},
		Random:      zeroRandom{},
	}
	started, err := sessions.StartVote(ctx, commands.StartVoteCommand{GroupID: "jar", ActorID: "admin", TimeLimitMinutes: 30, IdempotencyKey: "start"})
	require.NoError(t, err)
	require.Len(t, started.Session.Candidates, 2)

	replayed, err := sessions.StartVote(ctx, commands.StartVoteCommand{GroupID: "jar", ActorID: "admin", TimeLimitMinutes: 30, IdempotencyKey: "start"})
	require.NoError(t, err)
	require.True(t, replayed.Replayed)
	require.Equal(t, started.Session.SessionID, replayed.Session.SessionID)

	_, err = sessions.StartVote(ctx, commands.StartVoteCommand{GroupID: "jar", ActorID: "ann"})
	require.ErrorIs(t, err, domainerrors.ErrVoteAlreadyActive)

	for _, voter := range []string{"admin", "ann"} {
		result, err := sessions.CastVote(ctx, commands.CastVoteCommand{GroupID: "jar", VoterID: voter, CandidateID: "karaoke"})
		require.NoError(t, err)
		require.Nil(t, result.Outcome)
	}
	result, err := sessions.CastVote(ctx, commands.CastVoteCommand{GroupID: "jar", VoterID: "ben", CandidateID: "hike"})
	require.NoError(t, err)
	winner, ok := result.Outcome.(entities.WinnerSelected)
	require.True(t, ok)
	require.Equal(t, "karaoke", winner.Session.WinnerID)
	require.Equal(t, entities.ResolutionPlurality, winner.Session.ResolutionMethod)

	pending, err := repo.ListPendingOutbox(ctx, 100)
	require.NoError(t, err)
	types := make([]string, 0, len(pending))
	for _, row := range pending {
		types = append(types, row.EventType)
	}
	require.Contains(t, types, commands.EventSessionStarted)
	require.Contains(t, types, commands.EventSessionResolved)
}
