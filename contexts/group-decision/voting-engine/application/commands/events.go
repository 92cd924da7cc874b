package commands

import (
	"encoding/json"
	"time"

	"ideajar/contexts/group-decision/voting-engine/ports"
)

const (
	EventSessionStarted      = "voting_session.started"
	EventBallotCast          = "ballot.cast"
	EventIdeaVetoed          = "idea.vetoed"
	EventRoundAdvanced       = "voting_session.round_advanced"
	EventSessionResolved     = "voting_session.resolved"
	EventSessionCancelled    = "voting_session.cancelled"
	EventSessionExtended     = "voting_session.extended"
	EventVetoCardsGranted    = "veto_cards.granted"
	sourceService            = "voting-engine"
	partitionKeyPathGroup    = "group_id"
	notificationVoteStarted  = "vote.started"
	notificationVoteResolved = "vote.resolved"
	notificationNextRound    = "vote.next_round"
	notificationVoteCanceled = "vote.cancelled"
	notificationVoteExtended = "vote.extended"
	notificationIdeaVetoed   = "vote.idea_vetoed"
)

func newVotingEnvelope(
	eventID string,
	eventType string,
	groupID string,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	// Session events are partitioned by group so one group's lifecycle stays
	// ordered for group-scoped consumers.
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    sourceService,
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: partitionKeyPathGroup,
		PartitionKey:     groupID,
		Data:             payload,
	}, nil
}
