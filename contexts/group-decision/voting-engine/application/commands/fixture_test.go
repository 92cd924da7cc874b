package commands_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"ideajar/contexts/group-decision/voting-engine/adapters/memory"
	"ideajar/contexts/group-decision/voting-engine/application/commands"
	"ideajar/contexts/group-decision/voting-engine/domain/entities"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type zeroRandom struct{}

func (zeroRandom) IntN(int) int { return 0 }

type sentNotification struct {
	groupID string
	event   string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *recordingNotifier) NotifyGroup(_ context.Context, groupID string, event string, _ map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{groupID: groupID, event: event})
	return nil
}

func (n *recordingNotifier) count(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, item := range n.sent {
		if item.event == event {
			total++
		}
	}
	return total
}

type countingMetrics struct {
	mu       sync.Mutex
	started  int
	resolved map[entities.ResolutionMethod]int
	rounds   int
	ballots  int
	vetoes   int
	expired  map[string]int
	canceled int
}

func (m *countingMetrics) SessionStarted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
}
func (m *countingMetrics) SessionResolved(method entities.ResolutionMethod) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.resolved == nil {
		m.resolved = map[entities.ResolutionMethod]int{}
	}
	m.resolved[method]++
}
func (m *countingMetrics) SessionCancelled() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.canceled++
}
func (m *countingMetrics) RoundAdvanced() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rounds++
}
func (m *countingMetrics) BallotCast() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ballots++
}
func (m *countingMetrics) VetoSpent() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vetoes++
}
func (m *countingMetrics) SessionExpired(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expired == nil {
		m.expired = map[string]int{}
	}
	m.expired[source]++
}

type fixture struct {
	store    *memory.Store
	clock    *testClock
	notifier *recordingNotifier
	metrics  *countingMetrics
	uc       commands.SessionUseCase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	clock := &testClock{now: time.Date(2026, 3, 2, 18, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}
	metrics := &countingMetrics{}
	return &fixture{
		store:    store,
		clock:    clock,
		notifier: notifier,
		metrics:  metrics,
		uc: commands.SessionUseCase{
			UnitOfWork:     store,
			Ideas:          store,
			Members:        store,
			Idempotency:    store,
			Notifier:       notifier,
			Metrics:        metrics,
			Clock:          clock,
			IDGen:          store,
			Random:         zeroRandom{},
			IdempotencyTTL: time.Hour,
		},
	}
}

// seed registers members (the first is the admin) and ideas keyed by id with
// their author.
func (f *fixture) seed(groupID string, members []string, ideas map[string]string) {
	for i, memberID := range members {
		role := entities.RoleMember
		if i == 0 {
			role = entities.RoleAdmin
		}
		f.store.SetMember(groupID, memberID, role)
	}
	for ideaID, authorID := range ideas {
		f.store.SetIdea(entities.Idea{IdeaID: ideaID, GroupID: groupID, AuthorID: authorID})
	}
}

func (f *fixture) start(t *testing.T, groupID string, actorID string, mode entities.TieBreakerMode, minutes int) entities.VotingSession {
	t.Helper()
	result, err := f.uc.StartVote(context.Background(), commands.StartVoteCommand{
		GroupID:          groupID,
		ActorID:          actorID,
		TieBreakerMode:   mode,
		TimeLimitMinutes: minutes,
	})
	if err != nil {
		t.Fatalf("start vote failed: %v", err)
	}
	return result.Session
}

func (f *fixture) cast(t *testing.T, groupID string, voterID string, candidateID string) commands.CastVoteResult {
	t.Helper()
	result, err := f.uc.CastVote(context.Background(), commands.CastVoteCommand{
		GroupID:     groupID,
		VoterID:     voterID,
		CandidateID: candidateID,
	})
	if err != nil {
		t.Fatalf("cast by %s for %s failed: %v", voterID, candidateID, err)
	}
	return result
}

func (f *fixture) outboxCount(t *testing.T, eventType string) int {
	t.Helper()
	pending, err := f.store.ListPendingOutbox(context.Background(), 10000)
	if err != nil {
		t.Fatalf("list outbox failed: %v", err)
	}
	total := 0
	for _, message := range pending {
		if message.EventType == eventType {
			total++
		}
	}
	return total
}

func (f *fixture) latest(t *testing.T, groupID string) entities.VotingSession {
	t.Helper()
	session, found, err := f.store.GetLatestSession(context.Background(), groupID)
	if err != nil || !found {
		t.Fatalf("expected a session for %s: found=%v err=%v", groupID, found, err)
	}
	return session
}
