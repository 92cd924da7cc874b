package services

import (
	"sort"

	"ideajar/contexts/group-decision/voting-engine/domain/entities"
)

// IsEligible reports whether memberID may vote on the given candidate set.
// A member is excluded only when every remaining candidate is their own idea.
func IsEligible(memberID string, candidates []entities.Candidate) bool {
	if len(candidates) == 0 {
		return false
	}
	for _, candidate := range candidates {
		if candidate.AuthorID != memberID {
			return true
		}
	}
	return false
}

// EligibleVoters filters the active membership snapshot down to the quorum
// denominator for the round. The result is sorted and de-duplicated.
func EligibleVoters(activeMembers []string, candidates []entities.Candidate) []string {
	seen := make(map[string]struct{}, len(activeMembers))
	voters := make([]string, 0, len(activeMembers))
	for _, memberID := range activeMembers {
		if memberID == "" {
			continue
		}
		if _, ok := seen[memberID]; ok {
			continue
		}
		seen[memberID] = struct{}{}
		if IsEligible(memberID, candidates) {
			voters = append(voters, memberID)
		}
	}
	sort.Strings(voters)
	return voters
}
