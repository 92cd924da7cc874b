package postgresadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	domainerrors "ideajar/contexts/group-decision/voting-engine/domain/errors"
	"ideajar/contexts/group-decision/voting-engine/ports"
	"ideajar/internal/shared/outbox"

	"github.com/google/uuid"
)

// AppendOutbox writes a session event in the caller's transaction. Appending
// the same event id twice is accepted only with an identical payload.
func (r *Repository) AppendOutbox(ctx context.Context, envelope ports.EventEnvelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return r.logError("voting_repo_outbox_marshal_failed", err, "event_type", envelope.EventType)
	}
	row := outboxModel{
		OutboxID:     strings.TrimSpace(envelope.EventID),
		EventType:    strings.TrimSpace(envelope.EventType),
		PartitionKey: strings.TrimSpace(envelope.PartitionKey),
		Payload:      payload,
		Status:       outbox.StatusPending,
		CreatedAt:    envelope.OccurredAt.UTC(),
	}
	if row.OutboxID == "" {
		row.OutboxID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	var existing outboxModel
	inserted, err := r.insertIfAbsent(ctx, &row, "outbox_id", row.OutboxID, &existing, "payload")
	if err != nil {
		return r.logError("voting_repo_outbox_append_failed", err, "outbox_id", row.OutboxID)
	}
	if !inserted && !bytes.Equal(existing.Payload, row.Payload) {
		return domainerrors.ErrConflict
	}
	return nil
}

func (r *Repository) ListPendingOutbox(ctx context.Context, limit int) ([]ports.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []outboxModel
	err := r.db.WithContext(ctx).
		Where("status = ?", outbox.StatusPending).
		Order("created_at ASC, outbox_id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, r.logError("voting_repo_outbox_list_failed", err, "limit", limit)
	}

	items := make([]ports.OutboxMessage, len(rows))
	for i, row := range rows {
		items[i] = ports.OutboxMessage{
			OutboxID:     row.OutboxID,
			EventType:    row.EventType,
			PartitionKey: row.PartitionKey,
			Payload:      bytes.Clone(row.Payload),
			Status:       row.Status,
			CreatedAt:    row.CreatedAt.UTC(),
		}
	}
	return items, nil
}

func (r *Repository) MarkOutboxPublished(ctx context.Context, outboxID string, publishedAt time.Time) error {
	outboxID = strings.TrimSpace(outboxID)
	result := r.db.WithContext(ctx).
		Model(&outboxModel{}).
		Where("outbox_id = ?", outboxID).
		Updates(map[string]any{"status": outbox.StatusPublished, "published_at": publishedAt.UTC()})
	if result.Error != nil {
		return r.logError("voting_repo_outbox_mark_failed", result.Error, "outbox_id", outboxID)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrConflict
	}
	return nil
}
