package workers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	application "ideajar/contexts/group-decision/voting-engine/application"
	"ideajar/contexts/group-decision/voting-engine/ports"
)

const (
	sessionResolvedTopic = "voting_session.resolved"
	defaultHandoffCG     = "voting-engine-winner-handoff-cg"
)

// WinnerHandoffConsumer marks the winning idea selected once per resolved
// session. Delivery is at-least-once; the dedup store gates replays.
type WinnerHandoffConsumer struct {
	Subscriber    ports.EventSubscriber
	Dedup         ports.EventDedupStore
	Selection     ports.IdeaSelection
	Clock         ports.Clock
	ConsumerGroup string
	DedupTTL      time.Duration
	Disabled      bool
	Logger        *slog.Logger
}

func (c WinnerHandoffConsumer) Start(ctx context.Context) error {
	logger := application.ResolveLogger(c.Logger)
	if c.Disabled {
		logger.Info("winner handoff consumer disabled by feature flag",
			"event", "voting_winner_handoff_disabled",
			"module", application.ModuleName,
			"layer", "worker",
		)
		return nil
	}
	group := strings.TrimSpace(c.ConsumerGroup)
	if group == "" {
		group = defaultHandoffCG
	}
	if err := c.Subscriber.Subscribe(ctx, sessionResolvedTopic, group, c.handleSessionResolved); err != nil {
		logger.Error("winner handoff subscribe failed",
			"event", "voting_winner_handoff_subscribe_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"topic", sessionResolvedTopic,
			"consumer_group", group,
			"error", err.Error(),
		)
		return err
	}
	logger.Info("winner handoff subscription active",
		"event", "voting_winner_handoff_started",
		"module", application.ModuleName,
		"layer", "worker",
		"consumer_group", group,
	)
	return nil
}

func (c WinnerHandoffConsumer) handleSessionResolved(ctx context.Context, event ports.EventEnvelope) error {
	logger := application.ResolveLogger(c.Logger)
	hash := payloadHash(event.Data)
	alreadyProcessed, err := c.Dedup.ReserveEvent(ctx, event.EventID, hash, c.now().Add(c.dedupTTL()))
	if err != nil {
		logger.Error("winner handoff dedupe failed",
			"event", "voting_winner_handoff_dedupe_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return err
	}
	if alreadyProcessed {
		logger.Debug("voting_session.resolved replay skipped",
			"event", "voting_winner_handoff_replayed",
			"module", application.ModuleName,
			"layer", "worker",
			"event_id", event.EventID,
		)
		return nil
	}

	var payload struct {
		SessionID string `json:"session_id"`
		GroupID   string `json:"group_id"`
		WinnerID  string `json:"winner_id"`
	}
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		logger.Error("voting_session.resolved payload decode failed",
			"event", "voting_winner_handoff_decode_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"event_id", event.EventID,
			"error", err.Error(),
		)
		return err
	}
	winnerID := strings.TrimSpace(payload.WinnerID)
	if winnerID == "" {
		return nil
	}
	if err := c.Selection.MarkIdeaSelected(ctx, winnerID); err != nil {
		logger.Error("winner handoff mark selected failed",
			"event", "voting_winner_handoff_mark_failed",
			"module", application.ModuleName,
			"layer", "worker",
			"event_id", event.EventID,
			"session_id", payload.SessionID,
			"idea_id", winnerID,
			"error", err.Error(),
		)
		// MarkIdeaSelected is idempotent, so the next delivery may simply retry.
		if releaseErr := c.Dedup.ReleaseEvent(ctx, event.EventID, hash); releaseErr != nil {
			logger.Error("winner handoff dedupe release failed",
				"event", "voting_winner_handoff_release_failed",
				"module", application.ModuleName,
				"layer", "worker",
				"event_id", event.EventID,
				"error", releaseErr.Error(),
			)
		}
		return err
	}
	logger.Info("voting_session.resolved consumed",
		"event", "voting_winner_handoff_consumed",
		"module", application.ModuleName,
		"layer", "worker",
		"event_id", event.EventID,
		"session_id", payload.SessionID,
		"group_id", payload.GroupID,
		"idea_id", winnerID,
	)
	return nil
}

func (c WinnerHandoffConsumer) now() time.Time {
	if c.Clock != nil {
		return c.Clock.Now().UTC()
	}
	return time.Now().UTC()
}

func (c WinnerHandoffConsumer) dedupTTL() time.Duration {
	if c.DedupTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return c.DedupTTL
}

// payloadHash fingerprints a delivery so a reused event id with a different
// body is caught by the dedup store.
func payloadHash(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
