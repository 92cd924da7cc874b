package queries

import (
	"context"
	"sort"
	"strings"

	"ideajar/contexts/group-decision/voting-engine/domain/entities"
	domainerrors "ideajar/contexts/group-decision/voting-engine/domain/errors"
	"ideajar/contexts/group-decision/voting-engine/ports"
)

// AuditBallot is a stored ballot with its standing. Void ballots were cast for
// a candidate that was vetoed in the same round.
type AuditBallot struct {
	Ballot entities.Ballot
	Void   bool
}

type SessionAudit struct {
	Session entities.VotingSession
	Ballots []AuditBallot
	Vetoes  []entities.VetoRecord
}

// AuditUseCase exposes every ballot and veto of a session to administrators.
type AuditUseCase struct {
	Sessions ports.SessionRepository
	Ballots  ports.BallotRepository
	Vetoes   ports.VetoLedger
	Members  ports.Membership
}

func (uc AuditUseCase) SessionAudit(ctx context.Context, groupID string, actorID string, sessionID string) (SessionAudit, error) {
	groupID = strings.TrimSpace(groupID)
	actorID = strings.TrimSpace(actorID)
	sessionID = strings.TrimSpace(sessionID)
	if groupID == "" || actorID == "" || sessionID == "" {
		return SessionAudit{}, domainerrors.ErrInvalidInput
	}
	role, found, err := uc.Members.GetRole(ctx, groupID, actorID)
	if err != nil {
		return SessionAudit{}, err
	}
	if !found {
		return SessionAudit{}, domainerrors.ErrNotMember
	}
	if role != entities.RoleAdmin {
		return SessionAudit{}, domainerrors.ErrForbidden
	}

	session, err := uc.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		return SessionAudit{}, err
	}
	if session.GroupID != groupID {
		return SessionAudit{}, domainerrors.ErrSessionNotFound
	}
	ballots, err := uc.Ballots.ListSessionBallots(ctx, sessionID)
	if err != nil {
		return SessionAudit{}, err
	}
	vetoes, err := uc.Vetoes.ListVetoes(ctx, sessionID)
	if err != nil {
		return SessionAudit{}, err
	}

	type roundCandidate struct {
		round       int
		candidateID string
	}
	vetoed := make(map[roundCandidate]struct{}, len(vetoes))
	for _, veto := range vetoes {
		vetoed[roundCandidate{round: veto.Round, candidateID: veto.CandidateID}] = struct{}{}
	}

	audit := SessionAudit{
		Session: session,
		Ballots: make([]AuditBallot, 0, len(ballots)),
		Vetoes:  vetoes,
	}
	for _, ballot := range ballots {
		_, void := vetoed[roundCandidate{round: ballot.Round, candidateID: ballot.CandidateID}]
		audit.Ballots = append(audit.Ballots, AuditBallot{Ballot: ballot, Void: void})
	}
	sort.SliceStable(audit.Ballots, func(i, j int) bool {
		left, right := audit.Ballots[i].Ballot, audit.Ballots[j].Ballot
		if left.Round != right.Round {
			return left.Round < right.Round
		}
		return left.VoterID < right.VoterID
	})
	return audit, nil
}
