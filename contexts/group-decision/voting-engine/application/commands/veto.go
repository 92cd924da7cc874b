package commands

import (
	"context"
	"errors"
	"strings"
	"time"

	application "ideajar/contexts/group-decision/voting-engine/application"
	"ideajar/contexts/group-decision/voting-engine/domain/entities"
	domainerrors "ideajar/contexts/group-decision/voting-engine/domain/errors"
	"ideajar/contexts/group-decision/voting-engine/ports"
)

type VetoIdeaCommand struct {
	GroupID        string
	MemberID       string
	CandidateID    string
	IdempotencyKey string
}

type VetoIdeaResult struct {
	Session         entities.VotingSession
	Outcome         entities.Outcome
	VetoesRemaining int
	Replayed        bool
}

// GrantVetoesCommand replenishes a member's veto cards. It is the only path
// that increases a balance.
type GrantVetoesCommand struct {
	GroupID  string
	ActorID  string
	MemberID string
	Count    int
}

// VetoIdea spends one veto card and strikes the candidate from the current
// round. Ballots already cast for it stay stored but stop counting.
func (uc SessionUseCase) VetoIdea(ctx context.Context, cmd VetoIdeaCommand) (VetoIdeaResult, error) {
	logger := application.ResolveLogger(uc.Logger)
	groupID := strings.TrimSpace(cmd.GroupID)
	memberID := strings.TrimSpace(cmd.MemberID)
	candidateID := strings.TrimSpace(cmd.CandidateID)
	logger.Info("veto processing started",
		"event", "voting_veto_started",
		"module", application.ModuleName,
		"layer", "application",
		"group_id", groupID,
		"member_id", memberID,
		"candidate_id", candidateID,
	)
	if groupID == "" || memberID == "" || candidateID == "" {
		return VetoIdeaResult{}, domainerrors.ErrInvalidInput
	}
	if _, err := uc.requireMember(ctx, groupID, memberID); err != nil {
		return VetoIdeaResult{}, err
	}

	requestHash := hashCommand(map[string]string{
		"op":           "veto",
		"group_id":     groupID,
		"member_id":    memberID,
		"candidate_id": candidateID,
	})
	if sessionID, found, err := uc.replay(ctx, cmd.IdempotencyKey, requestHash); err != nil {
		return VetoIdeaResult{}, err
	} else if found {
		session, err := uc.getSession(ctx, sessionID)
		if err != nil {
			return VetoIdeaResult{}, err
		}
		return VetoIdeaResult{Session: session, Replayed: true}, nil
	}

	now := uc.now()
	fx := &effects{}
	var (
		result VetoIdeaResult
		closed bool
	)
	err := uc.UnitOfWork.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		session, err := loadActive(ctx, repo, groupID)
		if errors.Is(err, domainerrors.ErrAlreadyResolved) {
			return domainerrors.ErrSessionNotActive
		}
		if err != nil {
			return err
		}
		if session.Expired(now) {
			closed = true
			result.Outcome, err = uc.expireInline(ctx, repo, session, "veto", now, fx)
			return err
		}
		if !session.HasCandidate(candidateID) {
			return domainerrors.ErrNotInCurrentRound
		}
		spent, err := repo.SpendVeto(ctx, groupID, memberID, now)
		if err != nil {
			return err
		}
		if !spent {
			return domainerrors.ErrNoVetoesRemaining
		}
		vetoID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return err
		}
		if err := repo.RecordVeto(ctx, entities.VetoRecord{
			VetoID:      vetoID,
			SessionID:   session.SessionID,
			GroupID:     groupID,
			Round:       session.Round,
			MemberID:    memberID,
			CandidateID: candidateID,
			VetoedAt:    now,
		}); err != nil {
			return err
		}
		fx.count(func(m ports.Metrics) { m.VetoSpent() })

		next := session.Clone()
		next.Candidates = next.Candidates[:0]
		for _, candidate := range session.Candidates {
			if candidate.IdeaID != candidateID {
				next.Candidates = append(next.Candidates, candidate)
			}
		}
		next.UpdatedAt = now

		var outcome entities.Outcome
		if len(next.Candidates) < 2 {
			// The lone survivor wins outright; there is nothing left to vote on.
			view, err := uc.loadRound(ctx, repo, next)
			if err != nil {
				return err
			}
			outcome, err = uc.finish(ctx, repo, next, next.Candidates[0].IdeaID, entities.ResolutionLastCandidate, view.tally, now, fx)
			if err != nil {
				return err
			}
			result.Session = outcome.CurrentSession()
		} else {
			stored, applied, err := repo.SwapSession(ctx, next)
			if err != nil {
				return err
			}
			if !applied {
				return domainerrors.ErrConflict
			}
			result.Session = stored
		}
		if _, raced := outcome.(entities.NoChange); raced {
			return domainerrors.ErrConflict
		}

		if err := uc.appendEvent(ctx, repo, EventIdeaVetoed, result.Session, now, map[string]any{
			"veto_id":      vetoID,
			"member_id":    memberID,
			"candidate_id": candidateID,
			"vetoed_round": session.Round,
		}); err != nil {
			return err
		}
		fx.notify(groupID, notificationIdeaVetoed, map[string]any{
			"session_id":   session.SessionID,
			"candidate_id": candidateID,
			"round":        session.Round,
		})

		if outcome == nil {
			outcome, _, err = uc.settle(ctx, repo, result.Session, entities.TriggerVeto, now, fx)
			if err != nil {
				return err
			}
			if outcome != nil {
				result.Session = outcome.CurrentSession()
			}
		}
		result.Outcome = outcome

		result.VetoesRemaining, err = repo.GetVetoBalance(ctx, groupID, memberID)
		return err
	})
	if err != nil {
		logger.Warn("veto failed",
			"event", "voting_veto_failed",
			"module", application.ModuleName,
			"layer", "application",
			"group_id", groupID,
			"member_id", memberID,
			"candidate_id", candidateID,
			"error", err.Error(),
		)
		return VetoIdeaResult{}, err
	}
	uc.flush(ctx, fx)
	if closed {
		logOutcome(logger, "veto", result.Outcome)
		return VetoIdeaResult{}, domainerrors.ErrVotingClosed
	}
	if err := uc.remember(ctx, cmd.IdempotencyKey, requestHash, result.Session.SessionID); err != nil {
		return VetoIdeaResult{}, err
	}

	logger.Info("idea vetoed",
		"event", "voting_idea_vetoed",
		"module", application.ModuleName,
		"layer", "application",
		"group_id", groupID,
		"session_id", result.Session.SessionID,
		"member_id", memberID,
		"candidate_id", candidateID,
		"vetoes_remaining", result.VetoesRemaining,
	)
	if result.Outcome != nil {
		logOutcome(logger, string(entities.TriggerVeto), result.Outcome)
	}
	return result, nil
}

// GrantVetoes adds Count cards to a member's ledger and returns the new balance.
func (uc SessionUseCase) GrantVetoes(ctx context.Context, cmd GrantVetoesCommand) (int, error) {
	logger := application.ResolveLogger(uc.Logger)
	groupID := strings.TrimSpace(cmd.GroupID)
	actorID := strings.TrimSpace(cmd.ActorID)
	memberID := strings.TrimSpace(cmd.MemberID)
	if groupID == "" || actorID == "" || memberID == "" || cmd.Count <= 0 {
		return 0, domainerrors.ErrInvalidInput
	}
	if err := uc.requireAdmin(ctx, groupID, actorID); err != nil {
		return 0, err
	}
	if _, err := uc.requireMember(ctx, groupID, memberID); err != nil {
		return 0, err
	}

	now := uc.now()
	var remaining int
	err := uc.UnitOfWork.WithinTx(ctx, func(ctx context.Context, repo ports.Repository) error {
		var err error
		remaining, err = repo.GrantVetoes(ctx, groupID, memberID, cmd.Count, now)
		if err != nil {
			return err
		}
		eventID, err := uc.IDGen.NewID(ctx)
		if err != nil {
			return err
		}
		envelope, err := newVotingEnvelope(eventID, EventVetoCardsGranted, groupID, now, map[string]any{
			"group_id":    groupID,
			"member_id":   memberID,
			"granted_by":  actorID,
			"granted":     cmd.Count,
			"remaining":   remaining,
			"occurred_at": now.Format(time.RFC3339),
		})
		if err != nil {
			return err
		}
		return repo.AppendOutbox(ctx, envelope)
	})
	if err != nil {
		logger.Warn("veto grant failed",
			"event", "voting_veto_grant_failed",
			"module", application.ModuleName,
			"layer", "application",
			"group_id", groupID,
			"member_id", memberID,
			"error", err.Error(),
		)
		return 0, err
	}
	logger.Info("veto cards granted",
		"event", "voting_veto_cards_granted",
		"module", application.ModuleName,
		"layer", "application",
		"group_id", groupID,
		"member_id", memberID,
		"granted", cmd.Count,
		"remaining", remaining,
	)
	return remaining, nil
}
