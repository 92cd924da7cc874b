package postgresadapter

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	application "ideajar/contexts/group-decision/voting-engine/application"
	"ideajar/contexts/group-decision/voting-engine/domain/entities"
	domainerrors "ideajar/contexts/group-decision/voting-engine/domain/errors"
	"ideajar/contexts/group-decision/voting-engine/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the gorm implementation of the voting-engine ports. Inside
// WithinTx it is rebound to the transaction and reads of the active session
// take a row lock.
type Repository struct {
	db     *gorm.DB
	logger *slog.Logger
	inTx   bool
}

func NewRepository(db *gorm.DB, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// AutoMigrate creates or updates every table this adapter owns, including the
// idea and membership projections.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&sessionModel{},
		&ballotModel{},
		&vetoRecordModel{},
		&vetoLedgerModel{},
		&idempotencyModel{},
		&outboxModel{},
		&eventDedupModel{},
		&ideaProjectionModel{},
		&memberProjectionModel{},
	)
}

func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, repo ports.Repository) error) error {
	if r.inTx {
		return fn(ctx, r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &Repository{db: tx, logger: r.logger, inTx: true})
	})
}

func (r *Repository) sessions(ctx context.Context) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&sessionModel{})
	if r.inTx {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return query
}

func (r *Repository) CreateSession(ctx context.Context, session entities.VotingSession) error {
	row := sessionModelFromEntity(session)
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return domainerrors.ErrVoteAlreadyActive
		}
		return r.logError("voting_repo_create_session_failed", err,
			"session_id", row.SessionID,
			"group_id", row.GroupID,
		)
	}
	return nil
}

func (r *Repository) GetSession(ctx context.Context, sessionID string) (entities.VotingSession, error) {
	var row sessionModel
	err := r.sessions(ctx).
		Where("session_id = ?", strings.TrimSpace(sessionID)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.VotingSession{}, domainerrors.ErrSessionNotFound
		}
		return entities.VotingSession{}, r.logError("voting_repo_get_session_failed", err,
			"session_id", strings.TrimSpace(sessionID),
		)
	}
	return row.toEntity(), nil
}

func (r *Repository) GetActiveSession(ctx context.Context, groupID string) (entities.VotingSession, bool, error) {
	var row sessionModel
	err := r.sessions(ctx).
		Where("group_id = ?", strings.TrimSpace(groupID)).
		Where("status = ?", string(entities.SessionStatusActive)).
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.VotingSession{}, false, nil
		}
		return entities.VotingSession{}, false, r.logError("voting_repo_get_active_session_failed", err,
			"group_id", strings.TrimSpace(groupID),
		)
	}
	return row.toEntity(), true, nil
}

func (r *Repository) GetLatestSession(ctx context.Context, groupID string) (entities.VotingSession, bool, error) {
	var row sessionModel
	err := r.db.WithContext(ctx).
		Where("group_id = ?", strings.TrimSpace(groupID)).
		Order("started_at DESC").
		Order("created_at DESC").
		First(&row).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entities.VotingSession{}, false, nil
		}
		return entities.VotingSession{}, false, r.logError("voting_repo_get_latest_session_failed", err,
			"group_id", strings.TrimSpace(groupID),
		)
	}
	return row.toEntity(), true, nil
}

// SwapSession is a conditional update on (session_id, version). Zero affected
// rows means another writer moved the session first.
func (r *Repository) SwapSession(ctx context.Context, session entities.VotingSession) (entities.VotingSession, bool, error) {
	row := sessionModelFromEntity(session)
	expected := row.Version
	row.Version = expected + 1
	result := r.db.WithContext(ctx).
		Model(&sessionModel{}).
		Where("session_id = ?", row.SessionID).
		Where("version = ?", expected).
		Updates(row.mutableColumns())
	if result.Error != nil {
		return entities.VotingSession{}, false, r.logError("voting_repo_swap_session_failed", result.Error,
			"session_id", row.SessionID,
			"expected_version", expected,
		)
	}
	if result.RowsAffected == 0 {
		current, err := r.GetSession(ctx, row.SessionID)
		if err != nil {
			return entities.VotingSession{}, false, err
		}
		return current, false, nil
	}
	return row.toEntity(), true, nil
}

func (r *Repository) ListExpiredSessions(ctx context.Context, now time.Time, limit int) ([]entities.VotingSession, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []sessionModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(entities.SessionStatusActive)).
		Where("ends_at IS NOT NULL").
		Where("ends_at < ?", now.UTC()).
		Order("ends_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, r.logError("voting_repo_list_expired_sessions_failed", err, "limit", limit)
	}
	items := make([]entities.VotingSession, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toEntity())
	}
	return items, nil
}

func (r *Repository) logError(event string, err error, attrs ...any) error {
	fields := make([]any, 0, len(attrs)+8)
	fields = append(fields,
		"event", event,
		"module", application.ModuleName,
		"layer", "adapter",
		"error", err.Error(),
	)
	fields = append(fields, attrs...)
	r.logger.Error("voting repository operation failed", fields...)
	return err
}

// isUniqueViolation covers the raw pgx error and the translated gorm error
// (SQLite, or Postgres with TranslateError enabled).
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

var _ ports.Repository = (*Repository)(nil)
var _ ports.UnitOfWork = (*Repository)(nil)
var _ ports.OutboxRepository = (*Repository)(nil)
var _ ports.IdempotencyStore = (*Repository)(nil)
var _ ports.EventDedupStore = (*Repository)(nil)
var _ ports.IdeaInventory = (*Repository)(nil)
var _ ports.Membership = (*Repository)(nil)
var _ ports.IdeaSelection = (*Repository)(nil)
