// Package services holds the pure decision rules of the voting engine: pool
// selection, author-exclusion eligibility and plurality tallying. Nothing here
// touches storage or the clock.
package services

import (
	"strings"

	"ideajar/contexts/group-decision/voting-engine/domain/entities"
	domainerrors "ideajar/contexts/group-decision/voting-engine/domain/errors"
)

// MinCandidates is the smallest pool a vote can run on.
const MinCandidates = 2

// RandomSource is satisfied by *math/rand/v2.Rand.
type RandomSource interface {
	IntN(n int) int
}

// SelectCandidates derives the eligible pool for a new session from the group's
// un-selected ideas. A positive maxCandidates draws a uniform random subset
// without replacement; 1 is raised to MinCandidates. Duplicate or blank ideas
// are ignored. The inventory order is kept when no sampling happens.
func SelectCandidates(ideas []entities.Idea, maxCandidates int, random RandomSource) ([]entities.Candidate, error) {
	pool := make([]entities.Candidate, 0, len(ideas))
	seen := make(map[string]struct{}, len(ideas))
	for _, idea := range ideas {
		ideaID := strings.TrimSpace(idea.IdeaID)
		if ideaID == "" {
			continue
		}
		if _, ok := seen[ideaID]; ok {
			continue
		}
		seen[ideaID] = struct{}{}
		pool = append(pool, entities.Candidate{
			IdeaID:   ideaID,
			AuthorID: strings.TrimSpace(idea.AuthorID),
		})
	}

	if maxCandidates > 0 && maxCandidates < MinCandidates {
		maxCandidates = MinCandidates
	}
	if maxCandidates > 0 && len(pool) > maxCandidates {
		// Partial Fisher-Yates: the leading slots end up a uniform sample.
		for i := 0; i < maxCandidates; i++ {
			j := i + random.IntN(len(pool)-i)
			pool[i], pool[j] = pool[j], pool[i]
		}
		pool = pool[:maxCandidates]
	}

	if len(pool) < MinCandidates {
		return nil, domainerrors.ErrInsufficientCandidates
	}
	return pool, nil
}

// PickRandom returns one id chosen uniformly from ids. ids must not be empty.
func PickRandom(ids []string, random RandomSource) string {
	if len(ids) == 1 {
		return ids[0]
	}
	return ids[random.IntN(len(ids))]
}
