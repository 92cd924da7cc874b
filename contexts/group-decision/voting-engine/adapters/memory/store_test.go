package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"ideajar/contexts/group-decision/voting-engine/domain/entities"
	domainerrors "ideajar/contexts/group-decision/voting-engine/domain/errors"
	"ideajar/contexts/group-decision/voting-engine/ports"
)

func newSession(id string, groupID string, startedAt time.Time) entities.VotingSession {
	return entities.VotingSession{
		SessionID:      id,
		GroupID:        groupID,
		Status:         entities.SessionStatusActive,
		Round:          1,
		TieBreakerMode: entities.TieBreakerReVote,
		Candidates: []entities.Candidate{
			{IdeaID: "a", AuthorID: "x"},
			{IdeaID: "b", AuthorID: "y"},
		},
		StartedAt: startedAt,
		Version:   1,
	}
}

func TestWithinTxRestoresSnapshotOnError(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	if err := store.CreateSession(ctx, newSession("s1", "g1", now)); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		if _, err := repo.UpsertBallot(ctx, entities.Ballot{SessionID: "s1", Round: 1, VoterID: "v1", CandidateID: "a"}); err != nil {
			return err
		}
		if _, err := repo.GrantVetoes(ctx, "g1", "v1", 2, now); err != nil {
			return err
		}
		session, _ := repo.GetSession(ctx, "s1")
		session.Status = entities.SessionStatusCancelled
		if _, ok, err := repo.SwapSession(ctx, session); err != nil || !ok {
			t.Fatalf("swap inside tx failed: ok=%v err=%v", ok, err)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the callback error, got %v", err)
	}

	ballots, _ := store.ListBallots(ctx, "s1", 1)
	if len(ballots) != 0 {
		t.Fatalf("expected the ballot to be rolled back, got %d", len(ballots))
	}
	if balance, _ := store.GetVetoBalance(ctx, "g1", "v1"); balance != 0 {
		t.Fatalf("expected the grant to be rolled back, got %d", balance)
	}
	session, _ := store.GetSession(ctx, "s1")
	if session.Status != entities.SessionStatusActive || session.Version != 1 {
		t.Fatalf("expected the session untouched, got %s v%d", session.Status, session.Version)
	}
}

func TestSwapSessionComparesVersion(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	if err := store.CreateSession(ctx, newSession("s1", "g1", time.Now())); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := store.CreateSession(ctx, newSession("s2", "g1", time.Now())); !errors.Is(err, domainerrors.ErrVoteAlreadyActive) {
		t.Fatalf("expected ErrVoteAlreadyActive, got %v", err)
	}

	first, _ := store.GetSession(ctx, "s1")
	stale := first
	first.Round = 2
	next, ok, err := store.SwapSession(ctx, first)
	if err != nil || !ok || next.Version != 2 {
		t.Fatalf("expected the first swap to win, got ok=%v v%d err=%v", ok, next.Version, err)
	}

	stale.Status = entities.SessionStatusCancelled
	current, ok, err := store.SwapSession(ctx, stale)
	if err != nil || ok {
		t.Fatalf("expected a stale swap to lose, got ok=%v err=%v", ok, err)
	}
	if current.Round != 2 || current.Status != entities.SessionStatusActive {
		t.Fatalf("expected the stored row back, got %+v", current)
	}

	if _, _, err := store.SwapSession(ctx, newSession("missing", "g1", time.Now())); !errors.Is(err, domainerrors.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestIdempotencyRecordsExpire(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	record := ports.IdempotencyRecord{Key: "k1", RequestHash: "h1", SessionID: "s1", ExpiresAt: now.Add(time.Hour)}
	if err := store.Put(ctx, record); err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if err := store.Put(ctx, record); err != nil {
		t.Fatalf("expected an identical put to be accepted, got %v", err)
	}
	conflicting := record
	conflicting.RequestHash = "h2"
	if err := store.Put(ctx, conflicting); !errors.Is(err, domainerrors.ErrIdempotencyConflict) {
		t.Fatalf("expected ErrIdempotencyConflict, got %v", err)
	}

	if got, found, _ := store.Get(ctx, "k1", now); !found || got.SessionID != "s1" {
		t.Fatalf("expected the live record, got %+v found=%v", got, found)
	}
	if _, found, _ := store.Get(ctx, "k1", now.Add(2*time.Hour)); found {
		t.Fatalf("expected the record to expire")
	}
	if err := store.Put(ctx, conflicting); err != nil {
		t.Fatalf("expected the key to be reusable after expiry, got %v", err)
	}
}

func TestVetoLedgerSpendsOnlyGrantedCards(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Now()
	if spent, _ := store.SpendVeto(ctx, "g1", "m1", now); spent {
		t.Fatalf("expected no cards before a grant")
	}
	if _, err := store.GrantVetoes(ctx, "g1", "m1", 0, now); !errors.Is(err, domainerrors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for a zero grant, got %v", err)
	}
	if remaining, _ := store.GrantVetoes(ctx, "g1", "m1", 1, now); remaining != 1 {
		t.Fatalf("expected 1 card, got %d", remaining)
	}
	if spent, _ := store.SpendVeto(ctx, "g1", "m1", now); !spent {
		t.Fatalf("expected the card to be spent")
	}
	if spent, _ := store.SpendVeto(ctx, "g1", "m1", now); spent {
		t.Fatalf("expected the ledger to be empty again")
	}
}

func TestListExpiredSessionsOrdersByDeadline(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	for i, groupID := range []string{"g1", "g2", "g3"} {
		session := newSession("s-"+groupID, groupID, now)
		ends := now.Add(time.Duration(3-i) * time.Minute)
		session.EndsAt = &ends
		if err := store.CreateSession(ctx, session); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	expired, err := store.ListExpiredSessions(ctx, now.Add(150*time.Second), 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(expired) != 2 || expired[0].GroupID != "g3" || expired[1].GroupID != "g2" {
		t.Fatalf("expected g3 then g2, got %+v", expired)
	}
	limited, _ := store.ListExpiredSessions(ctx, now.Add(time.Hour), 1)
	if len(limited) != 1 || limited[0].GroupID != "g3" {
		t.Fatalf("expected the limit to keep the earliest deadline, got %+v", limited)
	}
}
