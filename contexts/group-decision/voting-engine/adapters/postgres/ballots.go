package postgresadapter

import (
	"context"
	"strings"

	"ideajar/contexts/group-decision/voting-engine/domain/entities"

	"gorm.io/gorm/clause"
)

// UpsertBallot keeps one row per (session, round, voter). A recast rewrites the
// candidate and updated_at; the original ballot id and cast time stay.
func (r *Repository) UpsertBallot(ctx context.Context, ballot entities.Ballot) (entities.Ballot, error) {
	row := ballotModel{
		BallotID:    strings.TrimSpace(ballot.BallotID),
		SessionID:   strings.TrimSpace(ballot.SessionID),
		Round:       ballot.Round,
		VoterID:     strings.TrimSpace(ballot.VoterID),
		CandidateID: strings.TrimSpace(ballot.CandidateID),
		CastAt:      ballot.CastAt.UTC(),
		UpdatedAt:   ballot.UpdatedAt.UTC(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}, {Name: "round"}, {Name: "voter_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"candidate_id": row.CandidateID,
			"updated_at":   row.UpdatedAt,
		}),
	}).Create(&row).Error
	if err != nil {
		return entities.Ballot{}, r.logError("voting_repo_upsert_ballot_failed", err,
			"session_id", row.SessionID,
			"round", row.Round,
			"voter_id", row.VoterID,
		)
	}

	var stored ballotModel
	if err := r.db.WithContext(ctx).
		Where("session_id = ? AND round = ? AND voter_id = ?", row.SessionID, row.Round, row.VoterID).
		First(&stored).Error; err != nil {
		return entities.Ballot{}, r.logError("voting_repo_upsert_ballot_reload_failed", err,
			"session_id", row.SessionID,
			"voter_id", row.VoterID,
		)
	}
	return stored.toEntity(), nil
}

func (r *Repository) ListBallots(ctx context.Context, sessionID string, round int) ([]entities.Ballot, error) {
	var rows []ballotModel
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", strings.TrimSpace(sessionID)).
		Where("round = ?", round).
		Order("voter_id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("voting_repo_list_ballots_failed", err,
			"session_id", strings.TrimSpace(sessionID),
			"round", round,
		)
	}
	return toBallotEntities(rows), nil
}

func (r *Repository) ListSessionBallots(ctx context.Context, sessionID string) ([]entities.Ballot, error) {
	var rows []ballotModel
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", strings.TrimSpace(sessionID)).
		Order("round ASC").
		Order("voter_id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("voting_repo_list_session_ballots_failed", err,
			"session_id", strings.TrimSpace(sessionID),
		)
	}
	return toBallotEntities(rows), nil
}

func toBallotEntities(rows []ballotModel) []entities.Ballot {
	items := make([]entities.Ballot, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items
}
