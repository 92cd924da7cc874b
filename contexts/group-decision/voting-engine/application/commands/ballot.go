package commands

import (
	"context"
	"strings"
	"time"

	application "ideajar/contexts/group-decision/voting-engine/application"
	"ideajar/contexts/group-decision/voting-engine/domain/entities"
	domainerrors "ideajar/contexts/group-decision/voting-engine/domain/errors"
	"ideajar/contexts/group-decision/voting-engine/domain/services"
	"ideajar/contexts/group-decision/voting-engine/ports"
)

type CastVoteCommand struct {
	GroupID        string
	VoterID        string
	CandidateID    string
	IdempotencyKey string
}

// CastVoteResult reports the stored ballot and, when the cast completed the
// quorum, the resolution outcome. Outcome is nil while the round stays open.
type CastVoteResult struct {
	Session       entities.VotingSession
	Ballot        entities.Ballot
	Outcome       entities.Outcome
	VotesCast     int
	EligibleCount int
	Replayed      bool
}

// CastVote records or replaces the voter's ballot for the current round and
// resolves inline once every eligible voter has a live ballot.
func (uc SessionUseCase) CastVote(ctx context.Context, cmd CastVoteCommand) (CastVoteResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	groupID := strings.TrimSpace(cmd.GroupID)
	voterID := strings.TrimSpace(cmd.VoterID)
	candidateID := strings.TrimSpace(cmd.CandidateID)
	logger.Info("ballot cast processing started",
		"event", "voting_ballot_cast_started",
		"module", application.ModuleName,
		"layer", "application",
		"group_id", groupID,
		"voter_id", voterID,
		"candidate_id", candidateID,
	)
	if groupID == "" || voterID == "" || candidateID == "" {
		logger.Warn("ballot cast validation failed",
			"event", "voting_ballot_cast_validation_failed",
			"module", application.ModuleName,
			"layer", "application",
			"group_id", groupID,
			"voter_id", voterID,
		)
		return CastVoteResult{}, domainerrors.ErrInvalidInput
	}
	if _, err := uc.requireMember(ctx, groupID, voterID); err != nil {
		return CastVoteResult{}, err
	}

	requestHash := hashCommand(map[string]string{
		"op":           "cast",
		"group_id":     groupID,
		"voter_id":     voterID,
		"candidate_id": candidateID,
	})
	if sessionID, found, err := uc.replay(ctx, cmd.IdempotencyKey, requestHash); err != nil {
		return CastVoteResult{}, err
	} else if found {
		session, err := uc.getSession(ctx, sessionID)
		if err != nil {
			return CastVoteResult{}, err
		}
		logger.Info("ballot cast replayed from idempotency",
			"event", "voting_ballot_cast_replayed",
			"module", application.ModuleName,
			"layer", "application",
			"group_id", groupID,
			"session_id", sessionID,
			"voter_id", voterID,
		)
		return CastVoteResult{Session: session, Replayed: true}, nil
	}

	now := uc.now()
	fx := &effects{}
	var (
		result CastVoteResult
		closed bool
	)
	err := uc.UnitOfWork.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		session, err := loadActive(ctx, repo, groupID)
		if err != nil {
			return err
		}
		if session.Expired(now) {
			closed = true
			result.Outcome, err = uc.expireInline(ctx, repo, session, "cast", now, fx)
			return err
		}
		if !services.IsEligible(voterID, session.Candidates) {
			return domainerrors.ErrNotEligible
		}
		if !session.HasCandidate(candidateID) {
			return domainerrors.ErrCandidateNotInRound
		}

		ballotID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return err
		}
		ballot, err := repo.UpsertBallot(ctx, entities.Ballot{
			BallotID:    ballotID,
			SessionID:   session.SessionID,
			Round:       session.Round,
			VoterID:     voterID,
			CandidateID: candidateID,
			CastAt:      now,
			UpdatedAt:   now,
		})
		if err != nil {
			return err
		}
		if err := uc.appendEvent(ctx, repo, EventBallotCast, session, now, map[string]any{
			"ballot_id":    ballot.BallotID,
			"voter_id":     voterID,
			"candidate_id": candidateID,
		}); err != nil {
			return err
		}
		fx.count(func(m ports.Metrics) { m.BallotCast() })

		outcome, view, err := uc.settle(ctx, repo, session, entities.TriggerQuorum, now, fx)
		if err != nil {
			return err
		}
		result.Session = session
		result.Ballot = ballot
		result.Outcome = outcome
		result.VotesCast = len(view.live)
		result.EligibleCount = len(view.eligible)
		if outcome != nil {
			result.Session = outcome.CurrentSession()
		}
		return nil
	})
	if err != nil {
		logger.Warn("ballot cast failed",
			"event", "voting_ballot_cast_failed",
			"module", application.ModuleName,
			"layer", "application",
			"group_id", groupID,
			"voter_id", voterID,
			"candidate_id", candidateID,
			"error", err.Error(),
		)
		return CastVoteResult{}, err
	}
	uc.flush(ctx, fx)
	if closed {
		logOutcome(logger, "cast", result.Outcome)
		return CastVoteResult{}, domainerrors.ErrVotingClosed
	}
	if err := uc.remember(ctx, cmd.IdempotencyKey, requestHash, result.Session.SessionID); err != nil {
		return CastVoteResult{}, err
	}

	logger.Info("ballot cast recorded",
		"event", "voting_ballot_cast_recorded",
		"module", application.ModuleName,
		"layer", "application",
		"group_id", groupID,
		"session_id", result.Ballot.SessionID,
		"round", result.Ballot.Round,
		"voter_id", voterID,
		"votes_cast", result.VotesCast,
		"eligible_count", result.EligibleCount,
	)
	if result.Outcome != nil {
		logOutcome(logger, string(entities.TriggerQuorum), result.Outcome)
	}
	return result, nil
}

// expireInline applies the deadline resolution inside a write that found the
// session overdue. The caller commits and then reports ErrVotingClosed.
func (uc SessionUseCase) expireInline(
	ctx context.Context,
	repo ports.Repository,
	session entities.VotingSession,
	source string,
	now time.Time,
	fx *effects,
) (entities.Outcome, error) {
	view, err := uc.loadRound(ctx, repo, session)
	if err != nil {
		return nil, err
	}
	outcome, err := uc.decide(ctx, repo, session, view, entities.TriggerDeadline, now, fx)
	if err != nil {
		return nil, err
	}
	fx.count(func(m ports.Metrics) { m.SessionExpired(source) })
	return outcome, nil
}
