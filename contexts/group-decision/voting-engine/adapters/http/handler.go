package httpadapter

import (
	"context"
	"log/slog"

	"ideajar/contexts/group-decision/voting-engine/application/commands"
	"ideajar/contexts/group-decision/voting-engine/application/queries"
	"ideajar/contexts/group-decision/voting-engine/domain/entities"
	httptransport "ideajar/contexts/group-decision/voting-engine/transport/http"
)

type Handler struct {
	Sessions commands.SessionUseCase
	Status   queries.StatusUseCase
	Audit    queries.AuditUseCase
	Logger   *slog.Logger
}

func (h Handler) StartVoteHandler(
	ctx context.Context,
	groupID string,
	userID string,
	idempotencyKey string,
	req httptransport.StartVoteRequest,
) (httptransport.SessionResponse, error) {
	result, err := h.Sessions.StartVote(ctx, commands.StartVoteCommand{
		GroupID:          groupID,
		ActorID:          userID,
		TieBreakerMode:   entities.TieBreakerMode(req.TieBreakerMode),
		TimeLimitMinutes: req.TimeLimitMinutes,
		CandidateCount:   req.CandidateCount,
		IdempotencyKey:   idempotencyKey,
	})
	if err != nil {
		return httptransport.SessionResponse{}, err
	}
	response := mapSession(result.Session)
	response.Replayed = result.Replayed
	return response, nil
}

func (h Handler) CastVoteHandler(
	ctx context.Context,
	groupID string,
	userID string,
	idempotencyKey string,
	req httptransport.CastVoteRequest,
) (httptransport.CastVoteResponse, error) {
	result, err := h.Sessions.CastVote(ctx, commands.CastVoteCommand{
		GroupID:        groupID,
		VoterID:        userID,
		CandidateID:    req.CandidateID,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return httptransport.CastVoteResponse{}, err
	}
	return httptransport.CastVoteResponse{
		OK:            true,
		Session:       mapSession(result.Session),
		VotesCast:     result.VotesCast,
		EligibleCount: result.EligibleCount,
		Outcome:       mapOutcome(result.Outcome),
		Replayed:      result.Replayed,
	}, nil
}

func (h Handler) VetoIdeaHandler(
	ctx context.Context,
	groupID string,
	userID string,
	idempotencyKey string,
	req httptransport.VetoIdeaRequest,
) (httptransport.VetoIdeaResponse, error) {
	result, err := h.Sessions.VetoIdea(ctx, commands.VetoIdeaCommand{
		GroupID:        groupID,
		MemberID:       userID,
		CandidateID:    req.CandidateID,
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		return httptransport.VetoIdeaResponse{}, err
	}
	return httptransport.VetoIdeaResponse{
		OK:              true,
		Session:         mapSession(result.Session),
		VetoesRemaining: result.VetoesRemaining,
		Outcome:         mapOutcome(result.Outcome),
		Replayed:        result.Replayed,
	}, nil
}

func (h Handler) ResolveVoteHandler(ctx context.Context, groupID string, userID string) (httptransport.OutcomeResponse, error) {
	outcome, err := h.Sessions.ResolveVote(ctx, groupID, userID)
	if err != nil {
		return httptransport.OutcomeResponse{}, err
	}
	return *mapOutcome(outcome), nil
}

func (h Handler) CancelVoteHandler(ctx context.Context, groupID string, userID string) (httptransport.SessionResponse, error) {
	session, err := h.Sessions.CancelVote(ctx, commands.CancelVoteCommand{
		GroupID: groupID,
		ActorID: userID,
	})
	if err != nil {
		return httptransport.SessionResponse{}, err
	}
	return mapSession(session), nil
}

func (h Handler) ExtendVoteHandler(
	ctx context.Context,
	groupID string,
	userID string,
	req httptransport.ExtendVoteRequest,
) (httptransport.ExtendVoteResponse, error) {
	result, err := h.Sessions.ExtendVote(ctx, commands.ExtendVoteCommand{
		GroupID:      groupID,
		ActorID:      userID,
		DeltaMinutes: req.DeltaMinutes,
	})
	if err != nil {
		return httptransport.ExtendVoteResponse{}, err
	}
	return httptransport.ExtendVoteResponse{
		Session: mapSession(result.Session),
		Outcome: mapOutcome(result.Outcome),
	}, nil
}

func (h Handler) GrantVetoesHandler(
	ctx context.Context,
	groupID string,
	userID string,
	req httptransport.GrantVetoesRequest,
) (httptransport.GrantVetoesResponse, error) {
	remaining, err := h.Sessions.GrantVetoes(ctx, commands.GrantVetoesCommand{
		GroupID:  groupID,
		ActorID:  userID,
		MemberID: req.MemberID,
		Count:    req.Count,
	})
	if err != nil {
		return httptransport.GrantVetoesResponse{}, err
	}
	return httptransport.GrantVetoesResponse{
		MemberID:  req.MemberID,
		Remaining: remaining,
	}, nil
}

func (h Handler) VoteStatusHandler(ctx context.Context, groupID string, userID string) (httptransport.VoteStatusResponse, error) {
	status, err := h.Status.GetVoteStatus(ctx, groupID, userID)
	if err != nil {
		return httptransport.VoteStatusResponse{}, err
	}
	return httptransport.VoteStatusResponse{
		Active:             status.Active,
		SessionID:          status.SessionID,
		Status:             string(status.Status),
		Round:              status.Round,
		TieBreakerMode:     string(status.TieBreakerMode),
		CandidateIDs:       status.CandidateIDs,
		EndsAt:             status.EndsAt,
		WinnerID:           status.WinnerID,
		ResolutionMethod:   string(status.ResolutionMethod),
		HasVoted:           status.HasVoted,
		IsEligible:         status.IsEligible,
		IsAdmin:            status.IsAdmin,
		VotesCast:          status.VotesCast,
		TotalMembers:       status.TotalMembers,
		PendingVoters:      status.PendingVoters,
		VetoCardsRemaining: status.VetoCardsRemaining,
	}, nil
}

func (h Handler) SessionAuditHandler(
	ctx context.Context,
	groupID string,
	userID string,
	sessionID string,
) (httptransport.SessionAuditResponse, error) {
	audit, err := h.Audit.SessionAudit(ctx, groupID, userID, sessionID)
	if err != nil {
		return httptransport.SessionAuditResponse{}, err
	}
	response := httptransport.SessionAuditResponse{
		Session: mapSession(audit.Session),
		Ballots: make([]httptransport.AuditBallot, 0, len(audit.Ballots)),
		Vetoes:  make([]httptransport.AuditVeto, 0, len(audit.Vetoes)),
	}
	for _, item := range audit.Ballots {
		response.Ballots = append(response.Ballots, httptransport.AuditBallot{
			BallotID:    item.Ballot.BallotID,
			Round:       item.Ballot.Round,
			VoterID:     item.Ballot.VoterID,
			CandidateID: item.Ballot.CandidateID,
			CastAt:      item.Ballot.CastAt,
			UpdatedAt:   item.Ballot.UpdatedAt,
			Void:        item.Void,
		})
	}
	for _, veto := range audit.Vetoes {
		response.Vetoes = append(response.Vetoes, httptransport.AuditVeto{
			VetoID:      veto.VetoID,
			Round:       veto.Round,
			MemberID:    veto.MemberID,
			CandidateID: veto.CandidateID,
			VetoedAt:    veto.VetoedAt,
		})
	}
	return response, nil
}

func mapSession(session entities.VotingSession) httptransport.SessionResponse {
	return httptransport.SessionResponse{
		SessionID:        session.SessionID,
		GroupID:          session.GroupID,
		Status:           string(session.Status),
		Round:            session.Round,
		TieBreakerMode:   string(session.TieBreakerMode),
		CandidateIDs:     session.CandidateIDs(),
		StartedAt:        session.StartedAt,
		EndsAt:           session.EndsAt,
		WinnerID:         session.WinnerID,
		ResolutionMethod: string(session.ResolutionMethod),
	}
}

func mapOutcome(outcome entities.Outcome) *httptransport.OutcomeResponse {
	switch result := outcome.(type) {
	case entities.WinnerSelected:
		return &httptransport.OutcomeResponse{
			Kind:    "winner",
			Session: mapSession(result.Session),
			Tally:   mapTally(result.Tally),
		}
	case entities.RoundAdvanced:
		return &httptransport.OutcomeResponse{
			Kind:    "next_round",
			Session: mapSession(result.Session),
			TiedIDs: result.TiedIDs,
			Tally:   mapTally(result.Tally),
		}
	case entities.NoChange:
		return &httptransport.OutcomeResponse{
			Kind:    "no_change",
			Session: mapSession(result.Session),
			Message: result.Message,
		}
	default:
		return nil
	}
}

func mapTally(tally []entities.CandidateTally) []httptransport.TallyItem {
	items := make([]httptransport.TallyItem, 0, len(tally))
	for _, item := range tally {
		items = append(items, httptransport.TallyItem{CandidateID: item.CandidateID, Votes: item.Votes})
	}
	return items
}
