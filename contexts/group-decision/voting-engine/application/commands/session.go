package commands

import (
	"context"
	"strconv"
	"strings"
	"time"

	application "ideajar/contexts/group-decision/voting-engine/application"
	"ideajar/contexts/group-decision/voting-engine/domain/entities"
	domainerrors "ideajar/contexts/group-decision/voting-engine/domain/errors"
	"ideajar/contexts/group-decision/voting-engine/domain/services"
	"ideajar/contexts/group-decision/voting-engine/ports"
)

// StartVoteCommand opens a session for a group. CandidateCount overrides the
// configured pool cap when positive.
type StartVoteCommand struct {
	GroupID          string
	ActorID          string
	TieBreakerMode   entities.TieBreakerMode
	TimeLimitMinutes int
	CandidateCount   int
	IdempotencyKey   string
}

type StartVoteResult struct {
	Session  entities.VotingSession
	Replayed bool
}

type CancelVoteCommand struct {
	GroupID string
	ActorID string
}

// ExtendVoteCommand pushes the deadline out by DeltaMinutes (configured
// default when zero).
type ExtendVoteCommand struct {
	GroupID      string
	ActorID      string
	DeltaMinutes int
}

// ExtendVoteResult carries the extended session. Outcome is set when the
// membership changed enough since the last cast that the round settled.
type ExtendVoteResult struct {
	Session entities.VotingSession
	Outcome entities.Outcome
}

func (uc SessionUseCase) StartVote(ctx context.Context, cmd StartVoteCommand) (StartVoteResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	groupID := strings.TrimSpace(cmd.GroupID)
	actorID := strings.TrimSpace(cmd.ActorID)
	mode := cmd.TieBreakerMode
	if mode == "" {
		mode = entities.TieBreakerRandomPick
	}
	logger.Info("vote start processing started",
		"event", "voting_start_started",
		"module", application.ModuleName,
		"layer", "application",
		"group_id", groupID,
		"actor_id", actorID,
		"tie_breaker_mode", string(mode),
	)
	if groupID == "" || actorID == "" || !mode.Valid() || cmd.TimeLimitMinutes < 0 || cmd.CandidateCount < 0 {
		logger.Warn("vote start validation failed",
			"event", "voting_start_validation_failed",
			"module", application.ModuleName,
			"layer", "application",
			"group_id", groupID,
			"actor_id", actorID,
		)
		return StartVoteResult{}, domainerrors.ErrInvalidInput
	}
	if _, err := uc.requireMember(ctx, groupID, actorID); err != nil {
		return StartVoteResult{}, err
	}

	requestHash := hashCommand(map[string]string{
		"op":                 "start",
		"group_id":           groupID,
		"actor_id":           actorID,
		"tie_breaker_mode":   string(mode),
		"time_limit_minutes": strconv.Itoa(cmd.TimeLimitMinutes),
		"candidate_count":    strconv.Itoa(cmd.CandidateCount),
	})
	if sessionID, found, err := uc.replay(ctx, cmd.IdempotencyKey, requestHash); err != nil {
		return StartVoteResult{}, err
	} else if found {
		session, err := uc.getSession(ctx, sessionID)
		if err != nil {
			return StartVoteResult{}, err
		}
		logger.Info("vote start replayed from idempotency",
			"event", "voting_start_replayed",
			"module", application.ModuleName,
			"layer", "application",
			"group_id", groupID,
			"session_id", sessionID,
		)
		return StartVoteResult{Session: session, Replayed: true}, nil
	}

	maxCandidates := uc.CandidateCount
	if cmd.CandidateCount > 0 {
		maxCandidates = cmd.CandidateCount
	}
	now := uc.now()
	fx := &effects{}
	var created entities.VotingSession
	err := uc.UnitOfWork.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		if _, found, err := repo.GetActiveSession(ctx, groupID); err != nil {
			return err
		} else if found {
			return domainerrors.ErrVoteAlreadyActive
		}
		ideas, err := uc.Ideas.ListUnselectedIdeas(ctx, groupID)
		if err != nil {
			return err
		}
		candidates, err := services.SelectCandidates(ideas, maxCandidates, uc.random())
		if err != nil {
			return err
		}
		sessionID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return err
		}
		session := entities.VotingSession{
			SessionID:        sessionID,
			GroupID:          groupID,
			Status:           entities.SessionStatusActive,
			Round:            1,
			TieBreakerMode:   mode,
			Candidates:       candidates,
			TimeLimitMinutes: cmd.TimeLimitMinutes,
			StartedAt:        now,
			StartedBy:        actorID,
			Version:          1,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		if cmd.TimeLimitMinutes > 0 {
			endsAt := now.Add(time.Duration(cmd.TimeLimitMinutes) * time.Minute)
			session.EndsAt = &endsAt
		}
		if err := repo.CreateSession(ctx, session); err != nil {
			return err
		}
		if err := uc.appendEvent(ctx, repo, EventSessionStarted, session, now, map[string]any{
			"started_by": actorID,
		}); err != nil {
			return err
		}
		created = session
		fx.notify(groupID, notificationVoteStarted, map[string]any{
			"session_id":       session.SessionID,
			"started_by":       actorID,
			"tie_breaker_mode": string(mode),
			"candidate_ids":    session.CandidateIDs(),
			"ends_at":          session.EndsAt,
		})
		fx.count(func(m ports.Metrics) { m.SessionStarted() })
		return nil
	})
	if err != nil {
		logger.Warn("vote start failed",
			"event", "voting_start_failed",
			"module", application.ModuleName,
			"layer", "application",
			"group_id", groupID,
			"error", err.Error(),
		)
		return StartVoteResult{}, err
	}
	if err := uc.remember(ctx, cmd.IdempotencyKey, requestHash, created.SessionID); err != nil {
		return StartVoteResult{}, err
	}
	uc.flush(ctx, fx)

	logger.Info("voting session started",
		"event", "voting_session_started",
		"module", application.ModuleName,
		"layer", "application",
		"group_id", groupID,
		"session_id", created.SessionID,
		"candidate_count", len(created.Candidates),
	)
	return StartVoteResult{Session: created}, nil
}

// CancelVote is idempotent: cancelling when the latest session is already
// terminal returns that session unchanged.
func (uc SessionUseCase) CancelVote(ctx context.Context, cmd CancelVoteCommand) (entities.VotingSession, error) {
	logger := application.ResolveLogger(uc.Logger)
	groupID := strings.TrimSpace(cmd.GroupID)
	actorID := strings.TrimSpace(cmd.ActorID)
	if groupID == "" || actorID == "" {
		return entities.VotingSession{}, domainerrors.ErrInvalidInput
	}
	if err := uc.requireAdmin(ctx, groupID, actorID); err != nil {
		return entities.VotingSession{}, err
	}

	now := uc.now()
	fx := &effects{}
	var result entities.VotingSession
	err := uc.UnitOfWork.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		session, found, err := repo.GetActiveSession(ctx, groupID)
		if err != nil {
			return err
		}
		if !found {
			latest, found, err := repo.GetLatestSession(ctx, groupID)
			if err != nil {
				return err
			}
			if !found {
				return domainerrors.ErrSessionNotFound
			}
			result = latest
			return nil
		}

		next := session.Clone()
		next.Status = entities.SessionStatusCancelled
		cancelledAt := now
		next.CancelledAt = &cancelledAt
		next.UpdatedAt = now
		stored, applied, err := repo.SwapSession(ctx, next)
		if err != nil {
			return err
		}
		if !applied {
			current, err := repo.GetSession(ctx, session.SessionID)
			if err != nil {
				return err
			}
			if current.IsActive() {
				return domainerrors.ErrConflict
			}
			result = current
			return nil
		}
		if err := uc.appendEvent(ctx, repo, EventSessionCancelled, stored, now, map[string]any{
			"cancelled_by": actorID,
		}); err != nil {
			return err
		}
		result = stored
		fx.notify(groupID, notificationVoteCanceled, map[string]any{
			"session_id":   stored.SessionID,
			"cancelled_by": actorID,
		})
		fx.count(func(m ports.Metrics) { m.SessionCancelled() })
		return nil
	})
	if err != nil {
		logger.Warn("vote cancel failed",
			"event", "voting_cancel_failed",
			"module", application.ModuleName,
			"layer", "application",
			"group_id", groupID,
			"actor_id", actorID,
			"error", err.Error(),
		)
		return entities.VotingSession{}, err
	}
	uc.flush(ctx, fx)
	logger.Info("voting session cancel processed",
		"event", "voting_session_cancelled",
		"module", application.ModuleName,
		"layer", "application",
		"group_id", groupID,
		"session_id", result.SessionID,
		"status", string(result.Status),
	)
	return result, nil
}

// ExtendVote adds DeltaMinutes to the deadline. A session without a deadline
// gets one at now+delta; an overdue session is extended from now.
func (uc SessionUseCase) ExtendVote(ctx context.Context, cmd ExtendVoteCommand) (ExtendVoteResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	groupID := strings.TrimSpace(cmd.GroupID)
	actorID := strings.TrimSpace(cmd.ActorID)
	if groupID == "" || actorID == "" || cmd.DeltaMinutes < 0 {
		return ExtendVoteResult{}, domainerrors.ErrInvalidInput
	}
	if err := uc.requireAdmin(ctx, groupID, actorID); err != nil {
		return ExtendVoteResult{}, err
	}
	delta := time.Duration(uc.resolveExtendMinutes(cmd.DeltaMinutes)) * time.Minute

	now := uc.now()
	fx := &effects{}
	var result ExtendVoteResult
	err := uc.UnitOfWork.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		session, err := loadActive(ctx, repo, groupID)
		if err != nil {
			return err
		}
		base := now
		if session.EndsAt != nil && session.EndsAt.After(now) {
			base = session.EndsAt.UTC()
		}
		next := session.Clone()
		endsAt := base.Add(delta)
		next.EndsAt = &endsAt
		next.UpdatedAt = now
		stored, applied, err := repo.SwapSession(ctx, next)
		if err != nil {
			return err
		}
		if !applied {
			return domainerrors.ErrConflict
		}
		if err := uc.appendEvent(ctx, repo, EventSessionExtended, stored, now, map[string]any{
			"extended_by":   actorID,
			"delta_minutes": int(delta / time.Minute),
		}); err != nil {
			return err
		}
		fx.notify(groupID, notificationVoteExtended, map[string]any{
			"session_id": stored.SessionID,
			"ends_at":    endsAt,
		})
		result.Session = stored

		outcome, _, err := uc.settle(ctx, repo, stored, entities.TriggerQuorum, now, fx)
		if err != nil {
			return err
		}
		if outcome != nil {
			result.Session = outcome.CurrentSession()
			result.Outcome = outcome
		}
		return nil
	})
	if err != nil {
		logger.Warn("vote extend failed",
			"event", "voting_extend_failed",
			"module", application.ModuleName,
			"layer", "application",
			"group_id", groupID,
			"actor_id", actorID,
			"error", err.Error(),
		)
		return ExtendVoteResult{}, err
	}
	uc.flush(ctx, fx)
	logger.Info("voting session extended",
		"event", "voting_session_extended",
		"module", application.ModuleName,
		"layer", "application",
		"group_id", groupID,
		"session_id", result.Session.SessionID,
		"ends_at", result.Session.EndsAt,
	)
	if result.Outcome != nil {
		logOutcome(logger, string(entities.TriggerQuorum), result.Outcome)
	}
	return result, nil
}

func (uc SessionUseCase) getSession(ctx context.Context, sessionID string) (entities.VotingSession, error) {
	var session entities.VotingSession
	err := uc.UnitOfWork.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		var err error
		session, err = repo.GetSession(ctx, sessionID)
		return err
	})
	return session, err
}
