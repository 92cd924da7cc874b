package queries_test

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"ideajar/contexts/group-decision/voting-engine/adapters/memory"
	"ideajar/contexts/group-decision/voting-engine/application/commands"
	"ideajar/contexts/group-decision/voting-engine/application/queries"
	"ideajar/contexts/group-decision/voting-engine/domain/entities"
	domainerrors "ideajar/contexts/group-decision/voting-engine/domain/errors"
)

type fixedClock struct {
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	return c.now
}

type zeroRandom struct{}

func (zeroRandom) IntN(int) int { return 0 }

type harness struct {
	store    *memory.Store
	clock    *fixedClock
	sessions commands.SessionUseCase
	status   queries.StatusUseCase
	audit    queries.AuditUseCase
}

func newHarness() *harness {
	store := memory.NewStore()
	clock := &fixedClock{now: time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)}
	sessions := commands.SessionUseCase{
		UnitOfWork:  store,
		Ideas:       store,
		Members:     store,
		Idempotency: store,
		Clock:       clock,
		IDGen:       store,
		Random:      zeroRandom{},
	}
	h := &harness{
		store:    store,
		clock:    clock,
		sessions: sessions,
		status: queries.StatusUseCase{
			Sessions: store,
			Ballots:  store,
			Vetoes:   store,
			Members:  store,
			Expirer:  sessions,
			Clock:    clock,
		},
		audit: queries.AuditUseCase{
			Sessions: store,
			Ballots:  store,
			Vetoes:   store,
			Members:  store,
		},
	}
	store.SetMember("jar", "admin", entities.RoleAdmin)
	store.SetMember("jar", "ann", entities.RoleMember)
	store.SetMember("jar", "ben", entities.RoleMember)
	store.SetIdea(entities.Idea{IdeaID: "picnic", GroupID: "jar", AuthorID: "ann"})
	store.SetIdea(entities.Idea{IdeaID: "museum", GroupID: "jar", AuthorID: "ann"})
	return h
}

func (h *harness) start(t *testing.T, minutes int) entities.VotingSession {
	t.Helper()
	result, err := h.sessions.StartVote(context.Background(), commands.StartVoteCommand{
		GroupID:          "jar",
		ActorID:          "admin",
		TimeLimitMinutes: minutes,
	})
	if err != nil {
		t.Fatalf("start vote failed: %v", err)
	}
	return result.Session
}

func TestGetVoteStatusWithoutSession(t *testing.T) {
	h := newHarness()
	status, err := h.status.GetVoteStatus(context.Background(), "jar", "ben")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.Active || status.SessionID != "" || status.IsAdmin {
		t.Fatalf("expected an empty member view, got %+v", status)
	}
}

func TestGetVoteStatusRejectsNonMembers(t *testing.T) {
	h := newHarness()
	_, err := h.status.GetVoteStatus(context.Background(), "jar", "stranger")
	if !errors.Is(err, domainerrors.ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
}

func TestGetVoteStatusViews(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.start(t, 0)
	if _, err := h.sessions.CastVote(ctx, commands.CastVoteCommand{GroupID: "jar", VoterID: "ben", CandidateID: "picnic"}); err != nil {
		t.Fatalf("cast failed: %v", err)
	}

	admin, err := h.status.GetVoteStatus(ctx, "jar", "admin")
	if err != nil {
		t.Fatalf("admin status failed: %v", err)
	}
	if !admin.Active || !admin.IsAdmin || admin.HasVoted {
		t.Fatalf("unexpected admin view %+v", admin)
	}
	// ann authored every candidate, so only admin and ben can vote.
	if admin.TotalMembers != 2 || admin.VotesCast != 1 {
		t.Fatalf("expected 1 of 2 votes, got %d of %d", admin.VotesCast, admin.TotalMembers)
	}
	if !slices.Equal(admin.PendingVoters, []string{"admin"}) {
		t.Fatalf("expected admin pending, got %v", admin.PendingVoters)
	}

	ben, err := h.status.GetVoteStatus(ctx, "jar", "ben")
	if err != nil {
		t.Fatalf("member status failed: %v", err)
	}
	if !ben.HasVoted || !ben.IsEligible || ben.PendingVoters != nil {
		t.Fatalf("unexpected member view %+v", ben)
	}

	ann, err := h.status.GetVoteStatus(ctx, "jar", "ann")
	if err != nil {
		t.Fatalf("author status failed: %v", err)
	}
	if ann.IsEligible {
		t.Fatalf("expected the sole author to be ineligible")
	}
}

func TestGetVoteStatusResolvesOverdueSession(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	session := h.start(t, 5)
	if _, err := h.sessions.CastVote(ctx, commands.CastVoteCommand{GroupID: "jar", VoterID: "ben", CandidateID: "museum"}); err != nil {
		t.Fatalf("cast failed: %v", err)
	}

	h.clock.now = h.clock.now.Add(6 * time.Minute)
	status, err := h.status.GetVoteStatus(ctx, "jar", "ben")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.Active || status.Status != entities.SessionStatusResolved {
		t.Fatalf("expected the poll to resolve the session, got %+v", status)
	}
	if status.SessionID != session.SessionID || status.WinnerID != "museum" {
		t.Fatalf("expected museum to win %s, got %+v", session.SessionID, status)
	}
	if status.ResolutionMethod != entities.ResolutionPlurality {
		t.Fatalf("expected plurality, got %s", status.ResolutionMethod)
	}

	again, err := h.status.GetVoteStatus(ctx, "jar", "admin")
	if err != nil {
		t.Fatalf("second status failed: %v", err)
	}
	if again.WinnerID != "museum" {
		t.Fatalf("expected the stored winner on later polls, got %s", again.WinnerID)
	}
}

func TestSessionAuditFlagsVoidBallots(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.store.SetIdea(entities.Idea{IdeaID: "cinema", GroupID: "jar", AuthorID: "ben"})
	session := h.start(t, 0)
	if _, err := h.sessions.GrantVetoes(ctx, commands.GrantVetoesCommand{GroupID: "jar", ActorID: "admin", MemberID: "ann", Count: 1}); err != nil {
		t.Fatalf("grant failed: %v", err)
	}
	if _, err := h.sessions.CastVote(ctx, commands.CastVoteCommand{GroupID: "jar", VoterID: "ben", CandidateID: "picnic"}); err != nil {
		t.Fatalf("cast failed: %v", err)
	}
	if _, err := h.sessions.CastVote(ctx, commands.CastVoteCommand{GroupID: "jar", VoterID: "admin", CandidateID: "cinema"}); err != nil {
		t.Fatalf("cast failed: %v", err)
	}
	if _, err := h.sessions.VetoIdea(ctx, commands.VetoIdeaCommand{GroupID: "jar", MemberID: "ann", CandidateID: "picnic"}); err != nil {
		t.Fatalf("veto failed: %v", err)
	}

	if _, err := h.audit.SessionAudit(ctx, "jar", "ben", session.SessionID); !errors.Is(err, domainerrors.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for members, got %v", err)
	}
	if _, err := h.audit.SessionAudit(ctx, "other", "admin", session.SessionID); !errors.Is(err, domainerrors.ErrNotMember) {
		t.Fatalf("expected ErrNotMember for another group, got %v", err)
	}

	audit, err := h.audit.SessionAudit(ctx, "jar", "admin", session.SessionID)
	if err != nil {
		t.Fatalf("audit failed: %v", err)
	}
	if len(audit.Ballots) != 2 || len(audit.Vetoes) != 1 {
		t.Fatalf("expected 2 ballots and 1 veto, got %d/%d", len(audit.Ballots), len(audit.Vetoes))
	}
	for _, item := range audit.Ballots {
		wantVoid := item.Ballot.CandidateID == "picnic"
		if item.Void != wantVoid {
			t.Fatalf("ballot for %s: expected void=%v", item.Ballot.CandidateID, wantVoid)
		}
	}
	if audit.Vetoes[0].MemberID != "ann" || audit.Vetoes[0].Round != 1 {
		t.Fatalf("unexpected veto record %+v", audit.Vetoes[0])
	}
}
