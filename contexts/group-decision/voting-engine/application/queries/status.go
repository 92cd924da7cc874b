package queries

import (
	"context"
	"log/slog"
	"strings"
	"time"

	application "ideajar/contexts/group-decision/voting-engine/application"
	"ideajar/contexts/group-decision/voting-engine/domain/entities"
	domainerrors "ideajar/contexts/group-decision/voting-engine/domain/errors"
	"ideajar/contexts/group-decision/voting-engine/domain/services"
	"ideajar/contexts/group-decision/voting-engine/ports"
)

// SessionExpirer resolves an overdue session. The status poll is one of the
// clocks that drive deadline resolution.
type SessionExpirer interface {
	ExpireGroup(ctx context.Context, groupID string, source string) (entities.Outcome, error)
}

// VoteStatus is the caller-specific view of a group's current or latest
// session. PendingVoters is only filled for administrators.
type VoteStatus struct {
	Active             bool
	SessionID          string
	Status             entities.SessionStatus
	Round              int
	TieBreakerMode     entities.TieBreakerMode
	CandidateIDs       []string
	StartedAt          time.Time
	EndsAt             *time.Time
	WinnerID           string
	ResolutionMethod   entities.ResolutionMethod
	HasVoted           bool
	IsEligible         bool
	IsAdmin            bool
	VotesCast          int
	TotalMembers       int
	PendingVoters      []string
	VetoCardsRemaining int
}

type StatusUseCase struct {
	Sessions ports.SessionRepository
	Ballots  ports.BallotRepository
	Vetoes   ports.VetoLedger
	Members  ports.Membership
	Expirer  SessionExpirer
	Clock    ports.Clock
	Logger   *slog.Logger
}

// GetVoteStatus reads the group's session for the caller. An active session
// whose deadline has passed is resolved before the view is built.
func (uc StatusUseCase) GetVoteStatus(ctx context.Context, groupID string, callerID string) (VoteStatus, error) {
	logger := application.ResolveLogger(uc.Logger)
	groupID = strings.TrimSpace(groupID)
	callerID = strings.TrimSpace(callerID)
	if groupID == "" || callerID == "" {
		return VoteStatus{}, domainerrors.ErrInvalidInput
	}
	role, found, err := uc.Members.GetRole(ctx, groupID, callerID)
	if err != nil {
		return VoteStatus{}, err
	}
	if !found {
		return VoteStatus{}, domainerrors.ErrNotMember
	}

	session, found, err := uc.Sessions.GetActiveSession(ctx, groupID)
	if err != nil {
		return VoteStatus{}, err
	}
	if found && session.Expired(uc.now()) && uc.Expirer != nil {
		outcome, err := uc.Expirer.ExpireGroup(ctx, groupID, "status_poll")
		if err != nil {
			logger.Error("lazy vote expiry failed",
				"event", "voting_status_expiry_failed",
				"module", application.ModuleName,
				"layer", "application",
				"group_id", groupID,
				"session_id", session.SessionID,
				"error", err.Error(),
			)
			return VoteStatus{}, err
		}
		session = outcome.CurrentSession()
	}
	if !found {
		session, found, err = uc.Sessions.GetLatestSession(ctx, groupID)
		if err != nil {
			return VoteStatus{}, err
		}
	}

	balance, err := uc.Vetoes.GetVetoBalance(ctx, groupID, callerID)
	if err != nil {
		return VoteStatus{}, err
	}
	view := VoteStatus{
		IsAdmin:            role == entities.RoleAdmin,
		VetoCardsRemaining: balance,
	}
	if !found {
		return view, nil
	}

	view.Active = session.IsActive()
	view.SessionID = session.SessionID
	view.Status = session.Status
	view.Round = session.Round
	view.TieBreakerMode = session.TieBreakerMode
	view.CandidateIDs = session.CandidateIDs()
	view.StartedAt = session.StartedAt
	view.EndsAt = session.EndsAt
	view.WinnerID = session.WinnerID
	view.ResolutionMethod = session.ResolutionMethod
	if !view.Active {
		return view, nil
	}

	members, err := uc.Members.ListActiveMembers(ctx, groupID)
	if err != nil {
		return VoteStatus{}, err
	}
	eligible := services.EligibleVoters(members, session.Candidates)
	ballots, err := uc.Ballots.ListBallots(ctx, session.SessionID, session.Round)
	if err != nil {
		return VoteStatus{}, err
	}
	live := services.LiveBallots(session, ballots, eligible)
	voted := make(map[string]struct{}, len(live))
	for _, ballot := range live {
		voted[ballot.VoterID] = struct{}{}
	}

	_, view.HasVoted = voted[callerID]
	view.IsEligible = services.IsEligible(callerID, session.Candidates)
	view.VotesCast = len(live)
	view.TotalMembers = len(eligible)
	if view.IsAdmin {
		view.PendingVoters = make([]string, 0, len(eligible)-len(live))
		for _, memberID := range eligible {
			if _, ok := voted[memberID]; !ok {
				view.PendingVoters = append(view.PendingVoters, memberID)
			}
		}
	}
	return view, nil
}

func (uc StatusUseCase) now() time.Time {
	if uc.Clock != nil {
		return uc.Clock.Now().UTC()
	}
	return time.Now().UTC()
}
