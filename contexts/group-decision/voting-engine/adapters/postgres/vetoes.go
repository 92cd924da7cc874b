package postgresadapter

import (
	"context"
	"errors"
	"strings"
	"time"

	"ideajar/contexts/group-decision/voting-engine/domain/entities"
	domainerrors "ideajar/contexts/group-decision/voting-engine/domain/errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (r *Repository) GetVetoBalance(ctx context.Context, groupID string, memberID string) (int, error) {
	var row vetoLedgerModel
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND member_id = ?", strings.TrimSpace(groupID), strings.TrimSpace(memberID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, r.logError("voting_repo_get_veto_balance_failed", err,
			"group_id", strings.TrimSpace(groupID),
			"member_id", strings.TrimSpace(memberID),
		)
	}
	return row.Remaining, nil
}

// SpendVeto decrements in one conditional statement so concurrent spends by the
// same member can never take the balance below zero.
func (r *Repository) SpendVeto(ctx context.Context, groupID string, memberID string, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&vetoLedgerModel{}).
		Where("group_id = ? AND member_id = ?", strings.TrimSpace(groupID), strings.TrimSpace(memberID)).
		Where("remaining > 0").
		Updates(map[string]any{
			"remaining":  gorm.Expr("remaining - 1"),
			"updated_at": at.UTC(),
		})
	if result.Error != nil {
		return false, r.logError("voting_repo_spend_veto_failed", result.Error,
			"group_id", strings.TrimSpace(groupID),
			"member_id", strings.TrimSpace(memberID),
		)
	}
	return result.RowsAffected == 1, nil
}

func (r *Repository) GrantVetoes(ctx context.Context, groupID string, memberID string, count int, at time.Time) (int, error) {
	if count <= 0 {
		return 0, domainerrors.ErrInvalidInput
	}
	row := vetoLedgerModel{
		GroupID:   strings.TrimSpace(groupID),
		MemberID:  strings.TrimSpace(memberID),
		Remaining: count,
		UpdatedAt: at.UTC(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "group_id"}, {Name: "member_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"remaining":  gorm.Expr("veto_ledger.remaining + ?", count),
			"updated_at": row.UpdatedAt,
		}),
	}).Create(&row).Error
	if err != nil {
		return 0, r.logError("voting_repo_grant_vetoes_failed", err,
			"group_id", row.GroupID,
			"member_id", row.MemberID,
			"count", count,
		)
	}
	return r.GetVetoBalance(ctx, row.GroupID, row.MemberID)
}

func (r *Repository) RecordVeto(ctx context.Context, record entities.VetoRecord) error {
	row := vetoRecordModel{
		VetoID:      strings.TrimSpace(record.VetoID),
		SessionID:   strings.TrimSpace(record.SessionID),
		GroupID:     strings.TrimSpace(record.GroupID),
		Round:       record.Round,
		MemberID:    strings.TrimSpace(record.MemberID),
		CandidateID: strings.TrimSpace(record.CandidateID),
		VetoedAt:    record.VetoedAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return r.logError("voting_repo_record_veto_failed", err,
			"veto_id", row.VetoID,
			"session_id", row.SessionID,
		)
	}
	return nil
}

func (r *Repository) ListVetoes(ctx context.Context, sessionID string) ([]entities.VetoRecord, error) {
	var rows []vetoRecordModel
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", strings.TrimSpace(sessionID)).
		Order("vetoed_at ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("voting_repo_list_vetoes_failed", err,
			"session_id", strings.TrimSpace(sessionID),
		)
	}
	items := make([]entities.VetoRecord, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}
