package metrics

import (
	"sync"

	"ideajar/contexts/group-decision/voting-engine/domain/entities"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// VotingMetrics exports voting-engine counters. The zero value is unusable;
// build it with NewVotingMetrics.
type VotingMetrics struct {
	sessionsStarted   prometheus.Counter
	sessionsResolved  *prometheus.CounterVec
	sessionsCancelled prometheus.Counter
	roundsAdvanced    prometheus.Counter
	ballotsCast       prometheus.Counter
	vetoesSpent       prometheus.Counter
	sessionsExpired   *prometheus.CounterVec

	registerOnce sync.Once
}

// NewVotingMetrics creates the collectors without registering them.
func NewVotingMetrics() *VotingMetrics {
	m := &VotingMetrics{}
	m.init(nil)
	return m
}

func (m *VotingMetrics) init(registry prometheus.Registerer) {
	factory := promauto.With(registry)
	m.sessionsStarted = factory.NewCounter(prometheus.CounterOpts{
		Name: "ideajar_voting_sessions_started_total",
		Help: "voting sessions started",
	})
	m.sessionsResolved = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "ideajar_voting_sessions_resolved_total",
		Help: "voting sessions resolved, by resolution method",
	}, []string{"method"})
	m.sessionsCancelled = factory.NewCounter(prometheus.CounterOpts{
		Name: "ideajar_voting_sessions_cancelled_total",
		Help: "voting sessions cancelled by an administrator",
	})
	m.roundsAdvanced = factory.NewCounter(prometheus.CounterOpts{
		Name: "ideajar_voting_rounds_advanced_total",
		Help: "re-vote rounds opened after a tie",
	})
	m.ballotsCast = factory.NewCounter(prometheus.CounterOpts{
		Name: "ideajar_voting_ballots_cast_total",
		Help: "ballots cast or overwritten",
	})
	m.vetoesSpent = factory.NewCounter(prometheus.CounterOpts{
		Name: "ideajar_voting_vetoes_spent_total",
		Help: "veto cards spent",
	})
	m.sessionsExpired = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "ideajar_voting_sessions_expired_total",
		Help: "deadline transitions, by what noticed the deadline",
	}, []string{"source"})
}

// Register adds the collectors to registry. Calling it again, or with a nil
// registry, does nothing.
func (m *VotingMetrics) Register(registry prometheus.Registerer) error {
	if registry == nil {
		return nil
	}
	var err error
	m.registerOnce.Do(func() {
		for _, collector := range []prometheus.Collector{
			m.sessionsStarted,
			m.sessionsResolved,
			m.sessionsCancelled,
			m.roundsAdvanced,
			m.ballotsCast,
			m.vetoesSpent,
			m.sessionsExpired,
		} {
			if err = registry.Register(collector); err != nil {
				return
			}
		}
	})
	return err
}

func (m *VotingMetrics) SessionStarted() { m.sessionsStarted.Inc() }

func (m *VotingMetrics) SessionResolved(method entities.ResolutionMethod) {
	m.sessionsResolved.WithLabelValues(string(method)).Inc()
}

func (m *VotingMetrics) SessionCancelled() { m.sessionsCancelled.Inc() }
func (m *VotingMetrics) RoundAdvanced()    { m.roundsAdvanced.Inc() }
func (m *VotingMetrics) BallotCast()       { m.ballotsCast.Inc() }
func (m *VotingMetrics) VetoSpent()        { m.vetoesSpent.Inc() }

func (m *VotingMetrics) SessionExpired(source string) {
	m.sessionsExpired.WithLabelValues(source).Inc()
}
