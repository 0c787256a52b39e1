// Package analytics computes activity, quality and reputation signals from a
// corpus of anchored proofs. Every function is pure: callers fetch the proof
// slice from storage themselves and no function performs I/O or keeps state.
package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/dotrep/contribchain/pkg/types"
)

const (
	// DefaultWeeks is the histogram window used when the caller does not
	// specify one.
	DefaultWeeks = 12

	// DefaultAnomalyThreshold is the z-score above which a weekly burst is
	// flagged.
	DefaultAnomalyThreshold = 3
)

// WeekBucket is one calendar week of contribution counts. WeekStart is the
// Monday 00:00 UTC opening the week.
type WeekBucket struct {
	WeekStart time.Time `json:"week_start"`
	Count     int       `json:"count"`
}

// MergedPRStats summarises pull request outcomes for an actor or the whole
// corpus.
type MergedPRStats struct {
	PrTotal   int `json:"pr_total"`
	PrMerged  int `json:"pr_merged"`
	MergedPct int `json:"merged_pct"`
}

// AnomalyFlag marks a single actor-week whose contribution count sits more
// than the threshold number of standard deviations above that actor's own
// weekly mean.
type AnomalyFlag struct {
	Actor     string    `json:"actor"`
	WeekStart time.Time `json:"week_start"`
	Count     int       `json:"count"`
	Mean      float64   `json:"mean"`
	Std       float64   `json:"std"`
	Z         float64   `json:"z"`
}

// Weights controls the relative contribution of each reputation factor.
// Callers may pass arbitrary values; the weights are applied verbatim and
// never renormalized, so overrides that do not sum to 1 scale the final score
// accordingly.
type Weights struct {
	Quality     float64 `json:"quality"`
	Impact      float64 `json:"impact"`
	Consistency float64 `json:"consistency"`
	Community   float64 `json:"community"`
}

// DefaultWeights is the documented production weighting.
var DefaultWeights = Weights{
	Quality:     0.4,
	Impact:      0.3,
	Consistency: 0.2,
	Community:   0.1,
}

// FactorVector holds the four per-factor sub-scores, each in [0, 100].
type FactorVector struct {
	Quality     int `json:"quality"`
	Impact      int `json:"impact"`
	Consistency int `json:"consistency"`
	Community   int `json:"community"`
}

// Reputation is an explainable reputation score. Explanation carries one
// human-readable line per factor for audit trails; it is not machine-parsed.
type Reputation struct {
	FinalScore  int          `json:"final_score"`
	Vector      FactorVector `json:"vector"`
	Explanation []string     `json:"explanation"`
}

// WeekStart truncates a timestamp to the Monday 00:00 UTC opening its
// calendar week.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	daysPastMonday := (int(t.Weekday()) + 6) % 7
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.AddDate(0, 0, -daysPastMonday)
}

// ContributionsPerWeek buckets proofs into the trailing `weeks` calendar
// weeks ending with the current week. The result always has exactly `weeks`
// entries ordered oldest first, zero-filled for weeks without activity. A
// non-empty actor filter restricts counting to proofs attributed to that
// actor.
func ContributionsPerWeek(proofs []types.Proof, actor string, weeks int) []WeekBucket {
	return contributionsPerWeekAt(time.Now(), proofs, actor, weeks)
}

func contributionsPerWeekAt(now time.Time, proofs []types.Proof, actor string, weeks int) []WeekBucket {
	if weeks <= 0 {
		weeks = DefaultWeeks
	}

	latest := WeekStart(now)
	buckets := make([]WeekBucket, weeks)
	index := make(map[time.Time]int, weeks)
	for i := range buckets {
		start := latest.AddDate(0, 0, -7*(weeks-1-i))
		buckets[i].WeekStart = start
		index[start] = i
	}

	for _, proof := range proofs {
		if actor != "" && proof.Metadata.ActorName() != actor {
			continue
		}

		if i, ok := index[WeekStart(proof.Timestamp)]; ok {
			buckets[i].Count++
		}
	}

	return buckets
}

// MergedPRRatio counts pull request proofs and the merged fraction among
// them. MergedPct is a whole percentage, 0 when no pull requests matched.
func MergedPRRatio(proofs []types.Proof, actor string) MergedPRStats {
	var stats MergedPRStats
	for _, proof := range proofs {
		if actor != "" && proof.Metadata.ActorName() != actor {
			continue
		}

		if types.NormalizeEventType(string(proof.EventType)) != types.EventTypePullRequest {
			continue
		}

		stats.PrTotal++
		if proof.Metadata.IsMerged() {
			stats.PrMerged++
		}
	}

	if stats.PrTotal > 0 {
		stats.MergedPct = int(math.Round(float64(stats.PrMerged) / float64(stats.PrTotal) * 100))
	}

	return stats
}

// DetectAnomalies flags actor-weeks whose contribution count bursts above the
// actor's own weekly history: z = (count - mean) / std over the weeks the
// actor was active, with the sample (Bessel-corrected) standard deviation.
// Actors observed in fewer than two distinct weeks carry no signal and are
// skipped, and a zero deviation defines z as 0 so a perfectly flat history is
// never flagged. The full flag list is returned, ordered by actor then week.
func DetectAnomalies(proofs []types.Proof, threshold float64) []AnomalyFlag {
	if threshold <= 0 {
		threshold = DefaultAnomalyThreshold
	}

	weeklyByActor := make(map[string]map[time.Time]int)
	for _, proof := range proofs {
		actor := anomalyActorOf(proof)
		if actor == "" {
			continue
		}

		weekly, ok := weeklyByActor[actor]
		if !ok {
			weekly = make(map[time.Time]int)
			weeklyByActor[actor] = weekly
		}

		weekly[WeekStart(proof.Timestamp)]++
	}

	var flags []AnomalyFlag
	for actor, weekly := range weeklyByActor {
		if len(weekly) < 2 {
			continue
		}

		mean, std := meanAndSampleStd(weekly)
		if std == 0 {
			continue
		}

		for weekStart, count := range weekly {
			z := (float64(count) - mean) / std
			if z > threshold {
				flags = append(flags, AnomalyFlag{
					Actor:     actor,
					WeekStart: weekStart,
					Count:     count,
					Mean:      mean,
					Std:       std,
					Z:         z,
				})
			}
		}
	}

	sort.Slice(flags, func(i, j int) bool {
		if flags[i].Actor != flags[j].Actor {
			return flags[i].Actor < flags[j].Actor
		}

		return flags[i].WeekStart.Before(flags[j].WeekStart)
	})

	return flags
}

// ComputeReputationScore derives a four-factor weighted score for one actor:
// quality from the merged PR percentage, impact from repository spread plus a
// capped review signal, consistency from the median of the trailing 12-week
// histogram, and community from the raw review signal. A nil weights argument
// selects DefaultWeights.
func ComputeReputationScore(proofs []types.Proof, actor string, weights *Weights) Reputation {
	return computeReputationScoreAt(time.Now(), proofs, actor, weights)
}

func computeReputationScoreAt(now time.Time, proofs []types.Proof, actor string, weights *Weights) Reputation {
	w := DefaultWeights
	if weights != nil {
		w = *weights
	}

	uniqueRepos := make(map[string]struct{})
	reviewSignal := 0
	for _, proof := range proofs {
		if actor != "" && proof.Metadata.ActorName() != actor {
			continue
		}

		if proof.RepoIdentifier != "" {
			uniqueRepos[proof.RepoIdentifier] = struct{}{}
		}
		reviewSignal += proof.Metadata.ReviewCount
	}

	prStats := MergedPRRatio(proofs, actor)
	quality := prStats.MergedPct

	impact := clamp100(int(math.Round(
		math.Log(1+float64(len(uniqueRepos)))*30 + math.Min(20, float64(reviewSignal)),
	)))

	histogram := contributionsPerWeekAt(now, proofs, actor, DefaultWeeks)
	counts := make([]int, len(histogram))
	for i, bucket := range histogram {
		counts[i] = bucket.Count
	}
	sort.Ints(counts)
	// Lower median on even-length histograms.
	median := counts[len(counts)/2]
	consistency := clamp100(int(math.Round(float64(median) / 10 * 100)))

	community := clamp100(reviewSignal * 5)

	final := int(math.Round(
		float64(quality)*w.Quality +
			float64(impact)*w.Impact +
			float64(consistency)*w.Consistency +
			float64(community)*w.Community,
	))

	return Reputation{
		FinalScore: final,
		Vector: FactorVector{
			Quality:     quality,
			Impact:      impact,
			Consistency: consistency,
			Community:   community,
		},
		Explanation: []string{
			fmt.Sprintf("quality %d: %d of %d pull requests merged (%d%%)",
				quality, prStats.PrMerged, prStats.PrTotal, prStats.MergedPct),
			fmt.Sprintf("impact %d: activity across %d repositories with review signal %d",
				impact, len(uniqueRepos), reviewSignal),
			fmt.Sprintf("consistency %d: median weekly contributions %d over the last %d weeks",
				consistency, median, DefaultWeeks),
			fmt.Sprintf("community %d: review signal %d", community, reviewSignal),
		},
	}
}

// anomalyActorOf attributes a proof to its metadata actor or author. Anomaly
// grouping additionally falls back to the provider login so actor-less
// provider events (commit rollups carry no author metadata) still build a
// weekly history; the per-actor filters elsewhere match metadata fields only.
func anomalyActorOf(proof types.Proof) string {
	if name := proof.Metadata.ActorName(); name != "" {
		return name
	}

	return proof.ProviderLogin
}

func meanAndSampleStd(weekly map[time.Time]int) (float64, float64) {
	n := float64(len(weekly))

	var sum float64
	for _, count := range weekly {
		sum += float64(count)
	}
	mean := sum / n

	var squares float64
	for _, count := range weekly {
		diff := float64(count) - mean
		squares += diff * diff
	}

	return mean, math.Sqrt(squares / (n - 1))
}

func clamp100(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}

	return v
}
