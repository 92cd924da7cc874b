package workers

import (
	"context"
	"log/slog"
	"time"

	application "ideajar/contexts/group-decision/voting-engine/application"
	"ideajar/contexts/group-decision/voting-engine/domain/entities"
	"ideajar/contexts/group-decision/voting-engine/ports"
)

// GroupExpirer runs deadline resolution for one group.
type GroupExpirer interface {
	ExpireGroup(ctx context.Context, groupID string, source string) (entities.Outcome, error)
}

// DeadlineSweeper resolves overdue sessions nobody is polling. It goes through
// the same conditional transition as the status read, so a poll and a sweep
// racing on one session produce a single resolution.
type DeadlineSweeper struct {
	Sessions  ports.SessionRepository
	Expirer   GroupExpirer
	Clock     ports.Clock
	BatchSize int
	Logger    *slog.Logger
}

// RunOnce sweeps one batch and returns how many sessions changed state. A
// failing group is logged and skipped.
func (s DeadlineSweeper) RunOnce(ctx context.Context) (int, error) {
	logger := application.ResolveLogger(s.Logger)
	limit := s.BatchSize
	if limit <= 0 {
		limit = 50
	}
	now := time.Now().UTC()
	if s.Clock != nil {
		now = s.Clock.Now().UTC()
	}

	overdue, err := s.Sessions.ListExpiredSessions(ctx, now, limit)
	if err != nil {
		logger.Error("voting deadline sweep list failed",
			"event", "voting_deadline_sweep_list_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"error", err.Error(),
		)
		return 0, err
	}

	changed := 0
	for _, session := range overdue {
		if err := ctx.Err(); err != nil {
			return changed, err
		}
		outcome, err := s.Expirer.ExpireGroup(ctx, session.GroupID, "sweeper")
		if err != nil {
			logger.Warn("voting deadline sweep skipped group",
				"event", "voting_deadline_sweep_group_failed",
				"module", application.ModuleName,
				"layer", "worker",
				"group_id", session.GroupID,
				"session_id", session.SessionID,
				"error", err.Error(),
			)
			continue
		}
		if _, unchanged := outcome.(entities.NoChange); !unchanged {
			changed++
		}
	}
	if changed > 0 {
		logger.Info("voting deadline sweep completed",
			"event", "voting_deadline_sweep_completed",
			"module", application.ModuleName,
			"layer", "worker",
			"overdue_count", len(overdue),
			"changed_count", changed,
		)
	}
	return changed, nil
}
