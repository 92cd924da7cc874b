package commands

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	application "ideajar/contexts/group-decision/voting-engine/application"
	"ideajar/contexts/group-decision/voting-engine/domain/entities"
	domainerrors "ideajar/contexts/group-decision/voting-engine/domain/errors"
	"ideajar/contexts/group-decision/voting-engine/ports"
)

const defaultExtendMinutes = 60

// SessionUseCase is the voting session state machine. It is the only writer of
// session, ballot and veto records; every mutation runs inside one unit of work
// and leaves the active state through a version compare-and-swap.
type SessionUseCase struct {
	UnitOfWork     ports.UnitOfWork
	Ideas          ports.IdeaInventory
	Members        ports.Membership
	Idempotency    ports.IdempotencyStore
	Notifier       ports.Notifier
	Metrics        ports.Metrics
	Clock          ports.Clock
	IDGen          ports.IDGenerator
	Random         ports.RandomSource
	IdempotencyTTL time.Duration
	ExtendMinutes  int
	CandidateCount int
	Logger         *slog.Logger
}

// effects collects what must happen only after a transaction commits.
type effects struct {
	notifications []notification
	metrics       []func(ports.Metrics)
}

type notification struct {
	groupID string
	event   string
	payload map[string]any
}

func (fx *effects) notify(groupID string, event string, payload map[string]any) {
	fx.notifications = append(fx.notifications, notification{groupID: groupID, event: event, payload: payload})
}

func (fx *effects) count(fn func(ports.Metrics)) {
	fx.metrics = append(fx.metrics, fn)
}

// flush delivers notifications and counters. Notification failures are logged
// and never surface to the caller.
func (uc SessionUseCase) flush(ctx context.Context, fx *effects) {
	logger := application.ResolveLogger(uc.Logger)
	if uc.Metrics != nil {
		for _, fn := range fx.metrics {
			fn(uc.Metrics)
		}
	}
	if uc.Notifier == nil {
		return
	}
	for _, item := range fx.notifications {
		if err := uc.Notifier.NotifyGroup(ctx, item.groupID, item.event, item.payload); err != nil {
			logger.Warn("group notification failed",
				"event", "voting_notification_failed",
				"module", application.ModuleName,
				"layer", "application",
				"group_id", item.groupID,
				"notification", item.event,
				"error", err.Error(),
			)
		}
	}
}

func (uc SessionUseCase) now() time.Time {
	now := time.Now().UTC()
	if uc.Clock != nil {
		now = uc.Clock.Now().UTC()
	}
	return now
}

func (uc SessionUseCase) random() ports.RandomSource {
	if uc.Random != nil {
		return uc.Random
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

func (uc SessionUseCase) resolveIdempotencyTTL() time.Duration {
	if uc.IdempotencyTTL <= 0 {
		return 7 * 24 * time.Hour
	}
	return uc.IdempotencyTTL
}

func (uc SessionUseCase) resolveExtendMinutes(requested int) int {
	if requested > 0 {
		return requested
	}
	if uc.ExtendMinutes > 0 {
		return uc.ExtendMinutes
	}
	return defaultExtendMinutes
}

// requireMember resolves the caller's role; inactive callers are rejected.
func (uc SessionUseCase) requireMember(ctx context.Context, groupID string, memberID string) (entities.Role, error) {
	role, found, err := uc.Members.GetRole(ctx, groupID, memberID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", domainerrors.ErrNotMember
	}
	return role, nil
}

func (uc SessionUseCase) requireAdmin(ctx context.Context, groupID string, memberID string) error {
	role, err := uc.requireMember(ctx, groupID, memberID)
	if err != nil {
		return err
	}
	if role != entities.RoleAdmin {
		return domainerrors.ErrForbidden
	}
	return nil
}

// replay looks up an idempotency record. found=true means the same request was
// already applied and the caller should return the stored session state.
func (uc SessionUseCase) replay(ctx context.Context, key string, requestHash string) (string, bool, error) {
	key = strings.TrimSpace(key)
	if key == "" || uc.Idempotency == nil {
		return "", false, nil
	}
	record, found, err := uc.Idempotency.Get(ctx, key, uc.now())
	if err != nil {
		return "", false, err
	}
	if !found {
		return "", false, nil
	}
	if record.RequestHash != requestHash {
		return "", false, domainerrors.ErrIdempotencyConflict
	}
	return record.SessionID, true, nil
}

func (uc SessionUseCase) remember(ctx context.Context, key string, requestHash string, sessionID string) error {
	key = strings.TrimSpace(key)
	if key == "" || uc.Idempotency == nil {
		return nil
	}
	return uc.Idempotency.Put(ctx, ports.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		SessionID:   sessionID,
		ExpiresAt:   uc.now().Add(uc.resolveIdempotencyTTL()),
	})
}

// loadActive returns the group's active session or the error that describes
// why there is none.
func loadActive(ctx context.Context, repo ports.SessionRepository, groupID string) (entities.VotingSession, error) {
	session, found, err := repo.GetActiveSession(ctx, groupID)
	if err != nil {
		return entities.VotingSession{}, err
	}
	if found {
		return session, nil
	}
	latest, found, err := repo.GetLatestSession(ctx, groupID)
	if err != nil {
		return entities.VotingSession{}, err
	}
	if found && latest.Status == entities.SessionStatusResolved {
		return latest, domainerrors.ErrAlreadyResolved
	}
	return latest, domainerrors.ErrSessionNotActive
}

func (uc SessionUseCase) appendEvent(
	ctx context.Context,
	repo ports.OutboxWriter,
	eventType string,
	session entities.VotingSession,
	occurredAt time.Time,
	metadata map[string]any,
) error {
	eventID, err := uc.IDGen.NewID(ctx)
	if err != nil {
		return err
	}
	data := map[string]any{
		"session_id":       session.SessionID,
		"group_id":         session.GroupID,
		"status":           string(session.Status),
		"round":            session.Round,
		"tie_breaker_mode": string(session.TieBreakerMode),
		"candidate_ids":    session.CandidateIDs(),
		"occurred_at":      occurredAt.Format(time.RFC3339),
	}
	if session.EndsAt != nil {
		data["ends_at"] = session.EndsAt.UTC().Format(time.RFC3339)
	}
	for key, value := range metadata {
		data[key] = value
	}
	envelope, err := newVotingEnvelope(eventID, eventType, session.GroupID, occurredAt, data)
	if err != nil {
		return err
	}
	return repo.AppendOutbox(ctx, envelope)
}

func hashCommand(payload map[string]string) string {
	raw, _ := json.Marshal(payload)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
