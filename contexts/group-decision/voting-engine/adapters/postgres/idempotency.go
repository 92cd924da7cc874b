package postgresadapter

import (
	"context"
	"errors"
	"strings"
	"time"

	domainerrors "ideajar/contexts/group-decision/voting-engine/domain/errors"
	"ideajar/contexts/group-decision/voting-engine/ports"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// insertIfAbsent creates row unless keyColumn already holds its key, and
// reports whether this call inserted it. On a clash existing is loaded so the
// caller can compare payloads.
func (r *Repository) insertIfAbsent(ctx context.Context, row any, keyColumn string, key string, existing any, fields ...string) (bool, error) {
	create := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: keyColumn}}, DoNothing: true}).
		Create(row)
	if create.Error != nil {
		return false, create.Error
	}
	if create.RowsAffected > 0 {
		return true, nil
	}
	query := r.db.WithContext(ctx)
	if len(fields) > 0 {
		query = query.Select(fields)
	}
	return false, query.Where(keyColumn+" = ?", key).First(existing).Error
}

func (r *Repository) Get(ctx context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	key = strings.TrimSpace(key)
	var row idempotencyModel
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ports.IdempotencyRecord{}, false, nil
	}
	if err != nil {
		return ports.IdempotencyRecord{}, false, r.logError("voting_repo_idempotency_get_failed", err, "idempotency_key", key)
	}

	if !row.ExpiresAt.IsZero() && !row.ExpiresAt.After(now.UTC()) {
		// Expired keys are dropped on read so the key can be reused.
		if err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).Delete(&idempotencyModel{}).Error; err != nil {
			return ports.IdempotencyRecord{}, false, r.logError("voting_repo_idempotency_expire_failed", err, "idempotency_key", key)
		}
		return ports.IdempotencyRecord{}, false, nil
	}
	return ports.IdempotencyRecord{
		Key:         row.IdempotencyKey,
		RequestHash: row.RequestHash,
		SessionID:   row.SessionID,
		ExpiresAt:   row.ExpiresAt.UTC(),
	}, true, nil
}

// Put stores the first result for a key. Repeating the same request is a
// no-op; anything else under the key is an idempotency conflict.
func (r *Repository) Put(ctx context.Context, record ports.IdempotencyRecord) error {
	row := idempotencyModel{
		IdempotencyKey: strings.TrimSpace(record.Key),
		RequestHash:    strings.TrimSpace(record.RequestHash),
		SessionID:      strings.TrimSpace(record.SessionID),
		ExpiresAt:      record.ExpiresAt.UTC(),
	}
	var existing idempotencyModel
	inserted, err := r.insertIfAbsent(ctx, &row, "idempotency_key", row.IdempotencyKey, &existing)
	if err != nil {
		return r.logError("voting_repo_idempotency_put_failed", err, "idempotency_key", row.IdempotencyKey)
	}
	if !inserted && (existing.RequestHash != row.RequestHash || existing.SessionID != row.SessionID) {
		return domainerrors.ErrIdempotencyConflict
	}
	return nil
}

// ReserveEvent records a consumed bus event. It returns true when the event was
// already processed with the same payload hash.
func (r *Repository) ReserveEvent(ctx context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error) {
	row := eventDedupModel{
		EventID:     strings.TrimSpace(eventID),
		PayloadHash: strings.TrimSpace(payloadHash),
		ExpiresAt:   expiresAt.UTC(),
		ProcessedAt: time.Now().UTC(),
	}
	var existing eventDedupModel
	inserted, err := r.insertIfAbsent(ctx, &row, "event_id", row.EventID, &existing, "payload_hash")
	if err != nil {
		return false, r.logError("voting_repo_reserve_event_failed", err, "event_id", row.EventID)
	}
	if inserted {
		return false, nil
	}
	if existing.PayloadHash != row.PayloadHash {
		return false, domainerrors.ErrConflict
	}
	return true, nil
}

// ReleaseEvent drops a reservation made for payloadHash. A row written for a
// different payload is left alone.
func (r *Repository) ReleaseEvent(ctx context.Context, eventID string, payloadHash string) error {
	eventID = strings.TrimSpace(eventID)
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND payload_hash = ?", eventID, strings.TrimSpace(payloadHash)).
		Delete(&eventDedupModel{}).Error
	if err != nil {
		return r.logError("voting_repo_release_event_failed", err, "event_id", eventID)
	}
	return nil
}
