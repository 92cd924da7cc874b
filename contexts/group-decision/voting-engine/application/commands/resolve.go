package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "ideajar/contexts/group-decision/voting-engine/application"
	"ideajar/contexts/group-decision/voting-engine/domain/entities"
	domainerrors "ideajar/contexts/group-decision/voting-engine/domain/errors"
	"ideajar/contexts/group-decision/voting-engine/domain/services"
	"ideajar/contexts/group-decision/voting-engine/ports"
)

// roundView is the evaluated state of the current round: who may vote, which
// ballots count and the resulting tally.
type roundView struct {
	eligible []string
	live     []entities.Ballot
	tally    []entities.CandidateTally
}

func (v roundView) quorumReached() bool {
	return len(v.eligible) > 0 && len(v.live) >= len(v.eligible)
}

func (uc SessionUseCase) loadRound(
	ctx context.Context,
	repo ports.BallotRepository,
	session entities.VotingSession,
) (roundView, error) {
	members, err := uc.Members.ListActiveMembers(ctx, session.GroupID)
	if err != nil {
		return roundView{}, err
	}
	eligible := services.EligibleVoters(members, session.Candidates)
	ballots, err := repo.ListBallots(ctx, session.SessionID, session.Round)
	if err != nil {
		return roundView{}, err
	}
	live := services.LiveBallots(session, ballots, eligible)
	return roundView{
		eligible: eligible,
		live:     live,
		tally:    services.Tally(session.Candidates, live),
	}, nil
}

// ResolveVote is the administrator's manual resolution. Resolving a session
// that is already resolved returns the existing winner and writes nothing.
func (uc SessionUseCase) ResolveVote(ctx context.Context, groupID string, actorID string) (entities.Outcome, error) {
	logger := application.ResolveLogger(uc.Logger)
	groupID = strings.TrimSpace(groupID)
	actorID = strings.TrimSpace(actorID)
	logger.Info("vote resolve processing started",
		"event", "voting_resolve_started",
		"module", application.ModuleName,
		"layer", "application",
		"group_id", groupID,
		"actor_id", actorID,
	)
	if groupID == "" || actorID == "" {
		return nil, domainerrors.ErrInvalidInput
	}
	if err := uc.requireAdmin(ctx, groupID, actorID); err != nil {
		logger.Warn("vote resolve rejected",
			"event", "voting_resolve_rejected",
			"module", application.ModuleName,
			"layer", "application",
			"group_id", groupID,
			"actor_id", actorID,
			"error", err.Error(),
		)
		return nil, err
	}

	fx := &effects{}
	var outcome entities.Outcome
	err := uc.UnitOfWork.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		session, err := loadActive(ctx, repo, groupID)
		if errors.Is(err, domainerrors.ErrAlreadyResolved) {
			outcome = entities.NoChange{Session: session, Message: "session already resolved"}
			return nil
		}
		if err != nil {
			return err
		}
		view, err := uc.loadRound(ctx, repo, session)
		if err != nil {
			return err
		}
		outcome, err = uc.decide(ctx, repo, session, view, entities.TriggerManual, uc.now(), fx)
		return err
	})
	if err != nil {
		logger.Warn("vote resolve failed",
			"event", "voting_resolve_failed",
			"module", application.ModuleName,
			"layer", "application",
			"group_id", groupID,
			"error", err.Error(),
		)
		return nil, err
	}
	uc.flush(ctx, fx)
	logOutcome(logger, "manual", outcome)
	return outcome, nil
}

// ExpireGroup resolves the group's active session if its deadline has passed.
// It is the lazy clock used by status polling and the deadline sweeper; both
// can race here and only one of them performs the transition.
func (uc SessionUseCase) ExpireGroup(ctx context.Context, groupID string, source string) (entities.Outcome, error) {
	logger := application.ResolveLogger(uc.Logger)
	groupID = strings.TrimSpace(groupID)
	now := uc.now()

	fx := &effects{}
	var outcome entities.Outcome
	err := uc.UnitOfWork.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		session, found, err := repo.GetActiveSession(ctx, groupID)
		if err != nil {
			return err
		}
		if !found {
			latest, _, err := repo.GetLatestSession(ctx, groupID)
			if err != nil {
				return err
			}
			outcome = entities.NoChange{Session: latest, Message: "no active session"}
			return nil
		}
		if !session.Expired(now) {
			outcome = entities.NoChange{Session: session, Message: "deadline not reached"}
			return nil
		}
		outcome, err = uc.expireInline(ctx, repo, session, source, now, fx)
		return err
	})
	if err != nil {
		logger.Error("vote expiry failed",
			"event", "voting_expiry_failed",
			"module", application.ModuleName,
			"layer", "application",
			"group_id", groupID,
			"source", source,
			"error", err.Error(),
		)
		return nil, err
	}
	uc.flush(ctx, fx)
	if _, unchanged := outcome.(entities.NoChange); !unchanged {
		logOutcome(logger, source, outcome)
	}
	return outcome, nil
}

// decide applies the resolution rules to an evaluated round:
//   - no eligible voters: random pick among current candidates
//   - manual trigger with no live ballots: ErrNoVotesCast
//   - single leader: plurality winner
//   - tie under random_pick: uniform pick among the leaders
//   - tie under re_vote: narrow to the leaders and open the next round, unless
//     the same set tied in the previous round, then random pick
func (uc SessionUseCase) decide(
	ctx context.Context,
	repo ports.Repository,
	session entities.VotingSession,
	view roundView,
	trigger entities.Trigger,
	now time.Time,
	fx *effects,
) (entities.Outcome, error) {
	if len(view.eligible) == 0 {
		winnerID := services.PickRandom(session.CandidateIDs(), uc.random())
		return uc.finish(ctx, repo, session, winnerID, entities.ResolutionNoEligibleVoters, view.tally, now, fx)
	}
	if len(view.live) == 0 && trigger == entities.TriggerManual {
		return nil, domainerrors.ErrNoVotesCast
	}

	leaders := services.Leaders(view.tally)
	if len(leaders) == 1 {
		return uc.finish(ctx, repo, session, leaders[0], entities.ResolutionPlurality, view.tally, now, fx)
	}

	switch session.TieBreakerMode {
	case entities.TieBreakerReVote:
		if services.SameSet(leaders, session.LastTiedIDs) {
			winnerID := services.PickRandom(leaders, uc.random())
			return uc.finish(ctx, repo, session, winnerID, entities.ResolutionStalemate, view.tally, now, fx)
		}
		return uc.advanceRound(ctx, repo, session, leaders, view.tally, now, fx)
	default:
		winnerID := services.PickRandom(leaders, uc.random())
		return uc.finish(ctx, repo, session, winnerID, entities.ResolutionRandomPick, view.tally, now, fx)
	}
}

// finish moves an active session to resolved. Losing the compare-and-swap is
// not an error: the caller gets the state the winner wrote.
func (uc SessionUseCase) finish(
	ctx context.Context,
	repo ports.Repository,
	session entities.VotingSession,
	winnerID string,
	method entities.ResolutionMethod,
	tally []entities.CandidateTally,
	now time.Time,
	fx *effects,
) (entities.Outcome, error) {
	next := session.Clone()
	next.Status = entities.SessionStatusResolved
	next.WinnerID = winnerID
	next.ResolutionMethod = method
	resolvedAt := now
	next.ResolvedAt = &resolvedAt
	next.UpdatedAt = now

	stored, applied, err := repo.SwapSession(ctx, next)
	if err != nil {
		return nil, err
	}
	if !applied {
		return uc.lostRace(ctx, repo, session.SessionID)
	}
	if err := uc.appendEvent(ctx, repo, EventSessionResolved, stored, now, map[string]any{
		"winner_id":         winnerID,
		"resolution_method": string(method),
		"tally":             tally,
	}); err != nil {
		return nil, err
	}
	fx.notify(stored.GroupID, notificationVoteResolved, map[string]any{
		"session_id":        stored.SessionID,
		"winner_id":         winnerID,
		"resolution_method": string(method),
		"round":             stored.Round,
	})
	fx.count(func(m ports.Metrics) { m.SessionResolved(method) })
	return entities.WinnerSelected{Session: stored, Tally: tally}, nil
}

// advanceRound opens the next re-vote round on the tied candidates. Eligibility
// is re-evaluated on the narrowed pool; if nobody can vote any more the
// session resolves in the same write.
func (uc SessionUseCase) advanceRound(
	ctx context.Context,
	repo ports.Repository,
	session entities.VotingSession,
	tiedIDs []string,
	tally []entities.CandidateTally,
	now time.Time,
	fx *effects,
) (entities.Outcome, error) {
	next := session.Clone()
	next.Round = session.Round + 1
	next.Candidates = services.NarrowCandidates(session.Candidates, tiedIDs)
	next.LastTiedIDs = tiedIDs
	// Without a time limit the round keeps whatever deadline ExtendVote set.
	if session.TimeLimitMinutes > 0 {
		endsAt := now.Add(time.Duration(session.TimeLimitMinutes) * time.Minute)
		next.EndsAt = &endsAt
	}
	next.UpdatedAt = now

	members, err := uc.Members.ListActiveMembers(ctx, session.GroupID)
	if err != nil {
		return nil, err
	}
	if len(services.EligibleVoters(members, next.Candidates)) == 0 {
		winnerID := services.PickRandom(next.CandidateIDs(), uc.random())
		return uc.finish(ctx, repo, next, winnerID, entities.ResolutionNoEligibleVoters, tally, now, fx)
	}

	stored, applied, err := repo.SwapSession(ctx, next)
	if err != nil {
		return nil, err
	}
	if !applied {
		return uc.lostRace(ctx, repo, session.SessionID)
	}
	if err := uc.appendEvent(ctx, repo, EventRoundAdvanced, stored, now, map[string]any{
		"previous_round": session.Round,
		"tied_ids":       tiedIDs,
		"tally":          tally,
	}); err != nil {
		return nil, err
	}
	fx.notify(stored.GroupID, notificationNextRound, map[string]any{
		"session_id":    stored.SessionID,
		"round":         stored.Round,
		"candidate_ids": stored.CandidateIDs(),
	})
	fx.count(func(m ports.Metrics) { m.RoundAdvanced() })
	return entities.RoundAdvanced{Session: stored, TiedIDs: tiedIDs, Tally: tally}, nil
}

func (uc SessionUseCase) lostRace(ctx context.Context, repo ports.SessionRepository, sessionID string) (entities.Outcome, error) {
	current, err := repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return entities.NoChange{Session: current, Message: "session changed concurrently"}, nil
}

// settle re-checks the round after a cast or veto and resolves inline when
// every eligible voter has a live ballot or nobody is eligible any more.
func (uc SessionUseCase) settle(
	ctx context.Context,
	repo ports.Repository,
	session entities.VotingSession,
	trigger entities.Trigger,
	now time.Time,
	fx *effects,
) (entities.Outcome, roundView, error) {
	view, err := uc.loadRound(ctx, repo, session)
	if err != nil {
		return nil, roundView{}, err
	}
	if len(view.eligible) > 0 && !view.quorumReached() {
		return nil, view, nil
	}
	outcome, err := uc.decide(ctx, repo, session, view, trigger, now, fx)
	return outcome, view, err
}

func logOutcome(logger *slog.Logger, trigger string, outcome entities.Outcome) {
	switch result := outcome.(type) {
	case entities.WinnerSelected:
		logger.Info("voting session resolved",
			"event", "voting_session_resolved",
			"module", application.ModuleName,
			"layer", "application",
			"trigger", trigger,
			"session_id", result.Session.SessionID,
			"group_id", result.Session.GroupID,
			"winner_id", result.Session.WinnerID,
			"resolution_method", string(result.Session.ResolutionMethod),
			"round", result.Session.Round,
		)
	case entities.RoundAdvanced:
		logger.Info("voting round advanced",
			"event", "voting_round_advanced",
			"module", application.ModuleName,
			"layer", "application",
			"trigger", trigger,
			"session_id", result.Session.SessionID,
			"group_id", result.Session.GroupID,
			"round", result.Session.Round,
			"tied_ids", result.TiedIDs,
		)
	case entities.NoChange:
		logger.Info("voting session unchanged",
			"event", "voting_session_unchanged",
			"module", application.ModuleName,
			"layer", "application",
			"trigger", trigger,
			"session_id", result.Session.SessionID,
			"message", result.Message,
		)
	}
}
