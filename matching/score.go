package matching

import (
	"math"
	"strconv"
	"strings"
)

// Score weights and tunables for the five-signal candidate model.
const (
	TitleWeight    = 0.45
	ArtistWeight   = 0.25
	DurationWeight = 0.20
	RankWeight     = 0.10

	// DefaultRankStrength controls how fast the rank prior decays.
	DefaultRankStrength = 6.0

	// AcceptThreshold is the minimum final score for automatic selection.
	AcceptThreshold = 0.65
)

var liveMarkers = []string{"live", "ライブ", "现场", "現場", "演唱会"}
var coverMarkers = []string{"cover", "翻唱", "カバー"}

// Similarity is a normalized edit-distance ratio in [0,1].
// Both strings empty compares as identical.
func Similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	return 1.0 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// TitleScore compares the trusted title against the candidate title.
// A full-containment token bonus is blended in and a whole-title substring
// match floors the score at 0.85.
func TitleScore(trusted, candidate string) float64 {
	nt := Normalize(trusted)
	nc := Normalize(candidate)
	score := Similarity(nt, nc)

	tokens := Tokenize(trusted)
	if len(tokens) > 0 {
		contained := 0
		for _, tok := range tokens {
			if strings.Contains(nc, tok) {
				contained++
			}
		}
		if contained == len(tokens) {
			fraction := float64(contained) / float64(len(tokens))
			blended := 0.55*score + 0.45*fraction
			if blended > score {
				score = blended
			}
		}
	}

	if nt != "" && strings.Contains(nc, nt) && score < 0.85 {
		score = 0.85
	}
	return clamp01(score)
}

// ArtistScore compares every trusted artist against the candidate's
// channel text and title combined. Returns the clamped score, how many
// artists matched (per-artist similarity >= 0.75) and the per-artist
// similarity list for diagnostics.
func ArtistScore(artists []string, channel, candidateTitle string) (float64, int, []float64) {
	haystack := Normalize(channel + " " + candidateTitle)

	best := 0.0
	matched := 0
	sims := make([]float64, 0, len(artists))
	for _, artist := range artists {
		na := Normalize(artist)
		sim := Similarity(na, haystack)
		if na != "" && strings.Contains(haystack, na) && sim < 0.95 {
			sim = 0.95
		}
		sims = append(sims, sim)
		if sim >= 0.75 {
			matched++
		}
		if sim > best {
			best = sim
		}
	}

	switch {
	case matched >= 2:
		best += 0.08
	case matched == 1:
		best += 0.02
	}
	return clamp01(best), matched, sims
}

// DurationScore buckets the absolute delta between the trusted duration and
// the candidate's textual duration. Neutral 0.5 when either side is unknown.
func DurationScore(trustedMS int, candidate string) float64 {
	if trustedMS <= 0 {
		return 0.5
	}
	candidateSec, ok := ParseClockDuration(candidate)
	if !ok {
		return 0.5
	}

	delta := math.Abs(float64(trustedMS)/1000.0 - float64(candidateSec))
	switch {
	case delta <= 5:
		return 1.0
	case delta <= 15:
		return 0.85
	case delta <= 30:
		return 0.65
	case delta <= 60:
		return 0.35
	default:
		return 0.0
	}
}

// ParseClockDuration parses "mm:ss" or "h:mm:ss" into whole seconds.
func ParseClockDuration(text string) (int, bool) {
	parts := strings.Split(strings.TrimSpace(text), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, false
	}
	total := 0
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 {
			return 0, false
		}
		total = total*60 + n
	}
	return total, true
}

// RankScore is the search provider's ordering turned into a decaying prior:
// exp(-(rank-1)/strength). Rank 1 scores exactly 1.0.
func RankScore(rank int, strength float64) float64 {
	if rank < 1 {
		rank = 1
	}
	if strength <= 0 {
		strength = DefaultRankStrength
	}
	return math.Exp(-float64(rank-1) / strength)
}

// HeuristicAdjust applies live/cover/remix marker adjustments. Positive when
// both sides are live recordings, negative when the candidate is a cover or
// remix the trusted title does not claim to be.
func HeuristicAdjust(trustedTitle, candidateTitle string) float64 {
	tt := strings.ToLower(trustedTitle)
	ct := strings.ToLower(candidateTitle)

	adjust := 0.0
	if containsAny(tt, liveMarkers) && containsAny(ct, liveMarkers) {
		adjust += 0.05
	}
	if containsAny(ct, coverMarkers) && !containsAny(tt, coverMarkers) {
		adjust -= 0.12
	}
	if strings.Contains(ct, "remix") && !strings.Contains(tt, "remix") {
		adjust -= 0.10
	}
	return adjust
}

func containsAny(s string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

// ScoreCandidate computes all five component scores for one candidate and
// combines them into the clamped final score. Pure and deterministic.
func ScoreCandidate(meta TrackMetadata, candidate Candidate, rankStrength float64) ScoredCandidate {
	title := TitleScore(meta.Title, candidate.Title)
	artist, matched, sims := ArtistScore(meta.Artists, candidate.Channel, candidate.Title)
	duration := DurationScore(meta.DurationMS, candidate.Duration)
	rank := RankScore(candidate.Rank, rankStrength)
	heuristic := HeuristicAdjust(meta.Title, candidate.Title)

	final := clamp01(TitleWeight*title + ArtistWeight*artist + DurationWeight*duration + RankWeight*rank + heuristic)

	return ScoredCandidate{
		Candidate:      candidate,
		TitleScore:     title,
		ArtistScore:    artist,
		DurationScore:  duration,
		RankScore:      rank,
		Heuristic:      heuristic,
		Final:          final,
		ArtistsMatched: matched,
		ArtistSims:     sims,
		AboveThreshold: final >= AcceptThreshold,
	}
}
