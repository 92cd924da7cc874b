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

const memberStatusActive = "active"

// UpsertIdea writes the idea projection. Selection state is owned by
// MarkIdeaSelected and left untouched here.
func (r *Repository) UpsertIdea(ctx context.Context, idea entities.Idea) error {
	row := ideaProjectionModel{
		IdeaID:    strings.TrimSpace(idea.IdeaID),
		GroupID:   strings.TrimSpace(idea.GroupID),
		AuthorID:  strings.TrimSpace(idea.AuthorID),
		CreatedAt: time.Now().UTC(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idea_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"group_id", "author_id"}),
	}).Create(&row).Error
	if err != nil {
		return r.logError("voting_repo_upsert_idea_failed", err, "idea_id", row.IdeaID)
	}
	return nil
}

// UpsertMember writes the membership projection; status other than "active"
// removes the member from every voting computation.
func (r *Repository) UpsertMember(ctx context.Context, groupID string, memberID string, role entities.Role, status string) error {
	row := memberProjectionModel{
		GroupID:  strings.TrimSpace(groupID),
		MemberID: strings.TrimSpace(memberID),
		Role:     string(role),
		Status:   strings.TrimSpace(status),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "group_id"}, {Name: "member_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role", "status"}),
	}).Create(&row).Error
	if err != nil {
		return r.logError("voting_repo_upsert_member_failed", err,
			"group_id", row.GroupID,
			"member_id", row.MemberID,
		)
	}
	return nil
}

func (r *Repository) ListUnselectedIdeas(ctx context.Context, groupID string) ([]entities.Idea, error) {
	var rows []ideaProjectionModel
	if err := r.db.WithContext(ctx).
		Where("group_id = ?", strings.TrimSpace(groupID)).
		Where("selected_at IS NULL").
		Order("idea_id ASC").
		Find(&rows).Error; err != nil {
		return nil, r.logError("voting_repo_list_unselected_ideas_failed", err,
			"group_id", strings.TrimSpace(groupID),
		)
	}
	items := make([]entities.Idea, 0, len(rows))
	for _, row := range rows {
		items = append(items, entities.Idea{
			IdeaID:   row.IdeaID,
			GroupID:  row.GroupID,
			AuthorID: row.AuthorID,
		})
	}
	return items, nil
}

// MarkIdeaSelected sets selected_at once; repeated hand-offs are no-ops.
func (r *Repository) MarkIdeaSelected(ctx context.Context, ideaID string) error {
	ideaID = strings.TrimSpace(ideaID)
	result := r.db.WithContext(ctx).
		Model(&ideaProjectionModel{}).
		Where("idea_id = ?", ideaID).
		Where("selected_at IS NULL").
		Update("selected_at", time.Now().UTC())
	if result.Error != nil {
		return r.logError("voting_repo_mark_idea_selected_failed", result.Error, "idea_id", ideaID)
	}
	if result.RowsAffected > 0 {
		return nil
	}
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&ideaProjectionModel{}).
		Where("idea_id = ?", ideaID).
		Count(&count).Error; err != nil {
		return r.logError("voting_repo_mark_idea_selected_lookup_failed", err, "idea_id", ideaID)
	}
	if count == 0 {
		return domainerrors.ErrInvalidInput
	}
	return nil
}

func (r *Repository) ListActiveMembers(ctx context.Context, groupID string) ([]string, error) {
	var memberIDs []string
	if err := r.db.WithContext(ctx).
		Model(&memberProjectionModel{}).
		Where("group_id = ?", strings.TrimSpace(groupID)).
		Where("status = ?", memberStatusActive).
		Order("member_id ASC").
		Pluck("member_id", &memberIDs).Error; err != nil {
		return nil, r.logError("voting_repo_list_active_members_failed", err,
			"group_id", strings.TrimSpace(groupID),
		)
	}
	return memberIDs, nil
}

func (r *Repository) GetRole(ctx context.Context, groupID string, memberID string) (entities.Role, bool, error) {
	var row memberProjectionModel
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND member_id = ?", strings.TrimSpace(groupID), strings.TrimSpace(memberID)).
		Where("status = ?", memberStatusActive).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, r.logError("voting_repo_get_role_failed", err,
			"group_id", strings.TrimSpace(groupID),
			"member_id", strings.TrimSpace(memberID),
		)
	}
	return entities.Role(row.Role), true, nil
}
