package services

import (
	"slices"
	"sort"

	"ideajar/contexts/group-decision/voting-engine/domain/entities"
)

// LiveBallots keeps the ballots that count for the session's current round:
// same round, candidate still in the round (vetoed candidates void their
// ballots) and voter in the eligible set. One ballot per voter survives; the
// most recently updated wins if a store ever returns duplicates.
func LiveBallots(session entities.VotingSession, ballots []entities.Ballot, eligible []string) []entities.Ballot {
	allowed := make(map[string]struct{}, len(eligible))
	for _, voterID := range eligible {
		allowed[voterID] = struct{}{}
	}
	byVoter := make(map[string]entities.Ballot, len(ballots))
	for _, ballot := range ballots {
		if ballot.SessionID != session.SessionID || ballot.Round != session.Round {
			continue
		}
		if !session.HasCandidate(ballot.CandidateID) {
			continue
		}
		if _, ok := allowed[ballot.VoterID]; !ok {
			continue
		}
		if current, ok := byVoter[ballot.VoterID]; ok && current.UpdatedAt.After(ballot.UpdatedAt) {
			continue
		}
		byVoter[ballot.VoterID] = ballot
	}
	live := make([]entities.Ballot, 0, len(byVoter))
	for _, ballot := range byVoter {
		live = append(live, ballot)
	}
	sort.Slice(live, func(i, j int) bool {
		return live[i].VoterID < live[j].VoterID
	})
	return live
}

// Tally counts live ballots per candidate, in the session's candidate order.
// Candidates without votes are reported with zero.
func Tally(candidates []entities.Candidate, live []entities.Ballot) []entities.CandidateTally {
	counts := make(map[string]int, len(candidates))
	for _, ballot := range live {
		counts[ballot.CandidateID]++
	}
	items := make([]entities.CandidateTally, 0, len(candidates))
	for _, candidate := range candidates {
		items = append(items, entities.CandidateTally{
			CandidateID: candidate.IdeaID,
			Votes:       counts[candidate.IdeaID],
		})
	}
	return items
}

// Leaders returns the candidates sharing the highest count, in tally order.
// With an all-zero tally every candidate leads.
func Leaders(tally []entities.CandidateTally) []string {
	best := -1
	for _, item := range tally {
		if item.Votes > best {
			best = item.Votes
		}
	}
	leaders := make([]string, 0, 1)
	for _, item := range tally {
		if item.Votes == best {
			leaders = append(leaders, item.CandidateID)
		}
	}
	return leaders
}

// TotalVotes sums a tally.
func TotalVotes(tally []entities.CandidateTally) int {
	total := 0
	for _, item := range tally {
		total += item.Votes
	}
	return total
}

// SameSet reports whether a and b hold the same ids regardless of order.
func SameSet(a []string, b []string) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}
	left := slices.Clone(a)
	right := slices.Clone(b)
	sort.Strings(left)
	sort.Strings(right)
	return slices.Equal(left, right)
}

// NarrowCandidates keeps the candidates whose ids are in ids, preserving order.
func NarrowCandidates(candidates []entities.Candidate, ids []string) []entities.Candidate {
	keep := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		keep[id] = struct{}{}
	}
	narrowed := make([]entities.Candidate, 0, len(ids))
	for _, candidate := range candidates {
		if _, ok := keep[candidate.IdeaID]; ok {
			narrowed = append(narrowed, candidate)
		}
	}
	return narrowed
}
