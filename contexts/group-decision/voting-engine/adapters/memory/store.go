package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"ideajar/contexts/group-decision/voting-engine/domain/entities"
	domainerrors "ideajar/contexts/group-decision/voting-engine/domain/errors"
	"ideajar/contexts/group-decision/voting-engine/ports"
	"ideajar/internal/shared/outbox"

	"github.com/google/uuid"
)

type outboxRecord struct {
	message   ports.OutboxMessage
	published bool
}

type dedupRecord struct {
	payloadHash string
	expiresAt   time.Time
}

type ballotKey struct {
	sessionID string
	round     int
	voterID   string
}

type ledgerKey struct {
	groupID  string
	memberID string
}

type ideaRecord struct {
	idea       entities.Idea
	selectedAt *time.Time
}

// Store is the in-process implementation of every voting-engine port. WithinTx
// serializes writers and restores a snapshot when the callback fails.
type Store struct {
	tx sync.Mutex
	mu sync.RWMutex

	sessions    map[string]entities.VotingSession
	ballots     map[ballotKey]entities.Ballot
	vetoes      []entities.VetoRecord
	ledger      map[ledgerKey]entities.VetoLedgerEntry
	outbox      map[string]outboxRecord
	idempotency map[string]ports.IdempotencyRecord
	eventDedup  map[string]dedupRecord

	ideas   map[string]ideaRecord
	members map[string]map[string]entities.Role
}

type snapshot struct {
	sessions map[string]entities.VotingSession
	ballots  map[ballotKey]entities.Ballot
	vetoes   []entities.VetoRecord
	ledger   map[ledgerKey]entities.VetoLedgerEntry
	outbox   map[string]outboxRecord
}

func NewStore() *Store {
	return &Store{
		sessions:    make(map[string]entities.VotingSession),
		ballots:     make(map[ballotKey]entities.Ballot),
		ledger:      make(map[ledgerKey]entities.VetoLedgerEntry),
		outbox:      make(map[string]outboxRecord),
		idempotency: make(map[string]ports.IdempotencyRecord),
		eventDedup:  make(map[string]dedupRecord),
		ideas:       make(map[string]ideaRecord),
		members:     make(map[string]map[string]entities.Role),
	}
}

func (s *Store) SetIdea(idea entities.Idea) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := strings.TrimSpace(idea.IdeaID)
	s.ideas[id] = ideaRecord{idea: entities.Idea{
		IdeaID:   id,
		GroupID:  strings.TrimSpace(idea.GroupID),
		AuthorID: strings.TrimSpace(idea.AuthorID),
	}}
}

func (s *Store) SetMember(groupID string, memberID string, role entities.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	groupID = strings.TrimSpace(groupID)
	if s.members[groupID] == nil {
		s.members[groupID] = make(map[string]entities.Role)
	}
	s.members[groupID][strings.TrimSpace(memberID)] = role
}

func (s *Store) RemoveMember(groupID string, memberID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members[strings.TrimSpace(groupID)], strings.TrimSpace(memberID))
}

// IsSelected reports whether the idea was handed off as a winner.
func (s *Store) IsSelected(ideaID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.ideas[strings.TrimSpace(ideaID)]
	return ok && record.selectedAt != nil
}

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, repo ports.Repository) error) error {
	s.tx.Lock()
	defer s.tx.Unlock()

	saved := s.snapshot()
	if err := fn(ctx, s); err != nil {
		s.restore(saved)
		return err
	}
	return nil
}

func (s *Store) snapshot() snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make(map[string]entities.VotingSession, len(s.sessions))
	for id, session := range s.sessions {
		sessions[id] = session.Clone()
	}
	return snapshot{
		sessions: sessions,
		ballots:  maps.Clone(s.ballots),
		vetoes:   append([]entities.VetoRecord(nil), s.vetoes...),
		ledger:   maps.Clone(s.ledger),
		outbox:   maps.Clone(s.outbox),
	}
}

func (s *Store) restore(saved snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = saved.sessions
	s.ballots = saved.ballots
	s.vetoes = saved.vetoes
	s.ledger = saved.ledger
	s.outbox = saved.outbox
}

func (s *Store) CreateSession(_ context.Context, session entities.VotingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[session.SessionID]; exists {
		return domainerrors.ErrConflict
	}
	for _, existing := range s.sessions {
		if existing.GroupID == session.GroupID && existing.IsActive() {
			return domainerrors.ErrVoteAlreadyActive
		}
	}
	s.sessions[session.SessionID] = session.Clone()
	return nil
}

func (s *Store) GetSession(_ context.Context, sessionID string) (entities.VotingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[strings.TrimSpace(sessionID)]
	if !ok {
		return entities.VotingSession{}, domainerrors.ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (s *Store) GetActiveSession(_ context.Context, groupID string) (entities.VotingSession, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	groupID = strings.TrimSpace(groupID)
	for _, session := range s.sessions {
		if session.GroupID == groupID && session.IsActive() {
			return session.Clone(), true, nil
		}
	}
	return entities.VotingSession{}, false, nil
}

func (s *Store) GetLatestSession(_ context.Context, groupID string) (entities.VotingSession, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	groupID = strings.TrimSpace(groupID)
	var (
		latest entities.VotingSession
		found  bool
	)
	for _, session := range s.sessions {
		if session.GroupID != groupID {
			continue
		}
		if !found || session.StartedAt.After(latest.StartedAt) {
			latest = session
			found = true
		}
	}
	if !found {
		return entities.VotingSession{}, false, nil
	}
	return latest.Clone(), true, nil
}

func (s *Store) SwapSession(_ context.Context, session entities.VotingSession) (entities.VotingSession, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.sessions[session.SessionID]
	if !ok {
		return entities.VotingSession{}, false, domainerrors.ErrSessionNotFound
	}
	if stored.Version != session.Version {
		return stored.Clone(), false, nil
	}
	next := session.Clone()
	next.Version = stored.Version + 1
	s.sessions[next.SessionID] = next
	return next.Clone(), true, nil
}

func (s *Store) ListExpiredSessions(_ context.Context, now time.Time, limit int) ([]entities.VotingSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.VotingSession, 0)
	for _, session := range s.sessions {
		if session.IsActive() && session.Expired(now) {
			items = append(items, session.Clone())
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].EndsAt.Before(*items[j].EndsAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) UpsertBallot(_ context.Context, ballot entities.Ballot) (entities.Ballot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ballotKey{sessionID: ballot.SessionID, round: ballot.Round, voterID: ballot.VoterID}
	if existing, ok := s.ballots[key]; ok {
		existing.CandidateID = ballot.CandidateID
		existing.UpdatedAt = ballot.UpdatedAt
		s.ballots[key] = existing
		return existing, nil
	}
	s.ballots[key] = ballot
	return ballot, nil
}

func (s *Store) ListBallots(_ context.Context, sessionID string, round int) ([]entities.Ballot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Ballot, 0)
	for key, ballot := range s.ballots {
		if key.sessionID == sessionID && key.round == round {
			items = append(items, ballot)
		}
	}
	sortBallots(items)
	return items, nil
}

func (s *Store) ListSessionBallots(_ context.Context, sessionID string) ([]entities.Ballot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.Ballot, 0)
	for key, ballot := range s.ballots {
		if key.sessionID == sessionID {
			items = append(items, ballot)
		}
	}
	sortBallots(items)
	return items, nil
}

func (s *Store) GetVetoBalance(_ context.Context, groupID string, memberID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ledger[ledgerKey{groupID: groupID, memberID: memberID}].Remaining, nil
}

func (s *Store) SpendVeto(_ context.Context, groupID string, memberID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ledgerKey{groupID: groupID, memberID: memberID}
	entry, ok := s.ledger[key]
	if !ok || entry.Remaining <= 0 {
		return false, nil
	}
	entry.Remaining--
	entry.UpdatedAt = at.UTC()
	s.ledger[key] = entry
	return true, nil
}

func (s *Store) GrantVetoes(_ context.Context, groupID string, memberID string, count int, at time.Time) (int, error) {
	if count <= 0 {
		return 0, domainerrors.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ledgerKey{groupID: groupID, memberID: memberID}
	entry := s.ledger[key]
	entry.GroupID = groupID
	entry.MemberID = memberID
	entry.Remaining += count
	entry.UpdatedAt = at.UTC()
	s.ledger[key] = entry
	return entry.Remaining, nil
}

func (s *Store) RecordVeto(_ context.Context, record entities.VetoRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vetoes = append(s.vetoes, record)
	return nil
}

func (s *Store) ListVetoes(_ context.Context, sessionID string) ([]entities.VetoRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]entities.VetoRecord, 0)
	for _, record := range s.vetoes {
		if record.SessionID == sessionID {
			items = append(items, record)
		}
	}
	return items, nil
}

func (s *Store) Get(_ context.Context, key string, now time.Time) (ports.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key = strings.TrimSpace(key)
	record, exists := s.idempotency[key]
	if !exists {
		return ports.IdempotencyRecord{}, false, nil
	}
	if !record.ExpiresAt.After(now.UTC()) {
		delete(s.idempotency, key)
		return ports.IdempotencyRecord{}, false, nil
	}
	return record, true, nil
}

func (s *Store) Put(_ context.Context, record ports.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(record.Key)
	if existing, exists := s.idempotency[key]; exists {
		if existing.RequestHash != record.RequestHash || existing.SessionID != record.SessionID {
			return domainerrors.ErrIdempotencyConflict
		}
		return nil
	}
	s.idempotency[key] = ports.IdempotencyRecord{
		Key:         key,
		RequestHash: strings.TrimSpace(record.RequestHash),
		SessionID:   strings.TrimSpace(record.SessionID),
		ExpiresAt:   record.ExpiresAt.UTC(),
	}
	return nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		outboxID = uuid.NewString()
	}
	if existing, ok := s.outbox[outboxID]; ok {
		if !bytes.Equal(existing.message.Payload, payload) {
			return domainerrors.ErrConflict
		}
		return nil
	}
	createdAt := envelope.OccurredAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	s.outbox[outboxID] = outboxRecord{
		message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    strings.TrimSpace(envelope.EventType),
			PartitionKey: strings.TrimSpace(envelope.PartitionKey),
			Payload:      payload,
			Status:       outbox.StatusPending,
			CreatedAt:    createdAt,
		},
	}
	return nil
}

// ListPendingOutbox and MarkOutboxPublished take the transaction lock so a
// rollback snapshot never resurrects a row the relay already published.
func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.tx.Lock()
	defer s.tx.Unlock()
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	items := make([]ports.OutboxMessage, 0, len(s.outbox))
	for _, row := range s.outbox {
		if row.published {
			continue
		}
		items = append(items, row.message)
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].OutboxID < items[j].OutboxID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, _ time.Time) error {
	s.tx.Lock()
	defer s.tx.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrConflict
	}
	row.published = true
	row.message.Status = outbox.StatusPublished
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

func (s *Store) ReserveEvent(
	_ context.Context,
	eventID string,
	payloadHash string,
	expiresAt time.Time,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(eventID)
	if existing, ok := s.eventDedup[key]; ok {
		if !existing.expiresAt.IsZero() && time.Now().UTC().After(existing.expiresAt.UTC()) {
			delete(s.eventDedup, key)
		} else {
			if existing.payloadHash != strings.TrimSpace(payloadHash) {
				return false, domainerrors.ErrConflict
			}
			return true, nil
		}
	}
	s.eventDedup[key] = dedupRecord{
		payloadHash: strings.TrimSpace(payloadHash),
		expiresAt:   expiresAt.UTC(),
	}
	return false, nil
}

func (s *Store) ReleaseEvent(_ context.Context, eventID string, payloadHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.TrimSpace(eventID)
	if existing, ok := s.eventDedup[key]; ok && existing.payloadHash == strings.TrimSpace(payloadHash) {
		delete(s.eventDedup, key)
	}
	return nil
}

func (s *Store) ListUnselectedIdeas(_ context.Context, groupID string) ([]entities.Idea, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	groupID = strings.TrimSpace(groupID)
	items := make([]entities.Idea, 0)
	for _, record := range s.ideas {
		if record.idea.GroupID == groupID && record.selectedAt == nil {
			items = append(items, record.idea)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].IdeaID < items[j].IdeaID
	})
	return items, nil
}

// MarkIdeaSelected is idempotent; the first selection time is kept.
func (s *Store) MarkIdeaSelected(_ context.Context, ideaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ideaID = strings.TrimSpace(ideaID)
	record, ok := s.ideas[ideaID]
	if !ok {
		return domainerrors.ErrInvalidInput
	}
	if record.selectedAt == nil {
		now := time.Now().UTC()
		record.selectedAt = &now
		s.ideas[ideaID] = record
	}
	return nil
}

func (s *Store) ListActiveMembers(_ context.Context, groupID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	roster := s.members[strings.TrimSpace(groupID)]
	items := make([]string, 0, len(roster))
	for memberID := range roster {
		items = append(items, memberID)
	}
	sort.Strings(items)
	return items, nil
}

func (s *Store) GetRole(_ context.Context, groupID string, memberID string) (entities.Role, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.members[strings.TrimSpace(groupID)][strings.TrimSpace(memberID)]
	return role, ok, nil
}

func (s *Store) Now() time.Time {
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func sortBallots(items []entities.Ballot) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].Round != items[j].Round {
			return items[i].Round < items[j].Round
		}
		return items[i].VoterID < items[j].VoterID
	})
}
