package matching

import "sort"

// ScoreAll scores every candidate against the trusted metadata and returns
// them sorted by final score descending. Equal scores keep the provider's
// original rank order. Pure; callers own the returned slice.
func ScoreAll(meta TrackMetadata, candidates []Candidate) []ScoredCandidate {
	scored := make([]ScoredCandidate, 0, len(candidates))
	for _, c := range candidates {
		scored = append(scored, ScoreCandidate(meta, c, DefaultRankStrength))
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Final > scored[j].Final
	})
	return scored
}

// AutoSelect picks the best candidate when it clears the acceptance
// threshold. The second return is false when no candidate is confident
// enough and the caller should fall back to manual disambiguation.
func AutoSelect(meta TrackMetadata, candidates []Candidate) (ScoredCandidate, bool) {
	scored := ScoreAll(meta, candidates)
	if len(scored) == 0 || !scored[0].AboveThreshold {
		return ScoredCandidate{}, false
	}
	return scored[0], true
}
