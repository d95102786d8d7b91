// Package scoring computes the provider performance score used to rank
// dispatch candidates. All functions are pure: the evaluation instant is an
// explicit input so that time decay is reproducible.
package scoring

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/jobroute/core/model"
)

// Neutral is the sub-score used when there is not enough data.
const Neutral = 50.0

// Weights of the composite score.
const (
	WeightDistance     = 0.25
	WeightPerformance  = 0.30
	WeightReliability  = 0.25
	WeightConsistency  = 0.10
	WeightAvailability = 0.10
)

const (
	day                  = 24 * time.Hour
	minConsistencyRating = 3
	maxRating            = 5.0
)

// Input is everything the engine needs about one provider.
type Input struct {
	ProviderID string
	Home       *model.Point
	Metrics    model.PerformanceMetrics
	History    []model.PerformanceHistoryRecord
}

// InputFromProfile adapts a stored profile.
func InputFromProfile(p model.ProviderProfile) Input {
	return Input{
		ProviderID: p.Provider.ID,
		Home:       p.Provider.Home.Point,
		Metrics:    p.Metrics,
		History:    p.History,
	}
}

// Ranked is one entry of a bulk ranking.
type Ranked struct {
	ProviderID string
	Rank       int
	Scores     model.ScoreBreakdown
}

// DecayWeight returns the influence of a record completed age ago.
func DecayWeight(age time.Duration) float64 {
	switch {
	case age <= 30*day:
		return 1.0
	case age <= 90*day:
		return 0.5
	case age <= 180*day:
		return 0.25
	default:
		return 0.1
	}
}

// Score computes the breakdown for one provider. job may be nil.
func Score(in Input, job *model.Point, now time.Time) model.ScoreBreakdown {
	s := model.ScoreBreakdown{
		Distance:     DistanceScore(in.Home, job),
		Performance:  PerformanceScore(in.Metrics, in.History, now),
		Reliability:  ReliabilityScore(in.Metrics),
		Consistency:  ConsistencyScore(in.History),
		Availability: AvailabilityScore(in.Metrics),
	}
	s.Composite = Composite(s)
	return s
}

// Composite combines the five sub-scores into a rounded 0..100 value.
func Composite(s model.ScoreBreakdown) float64 {
	c := WeightDistance*s.Distance +
		WeightPerformance*s.Performance +
		WeightReliability*s.Reliability +
		WeightConsistency*s.Consistency +
		WeightAvailability*s.Availability
	return clamp(math.Round(c))
}

// Rank scores every input and returns them by composite descending. Ties are
// broken by provider ID. limit <= 0 keeps every entry.
func Rank(ins []Input, job *model.Point, now time.Time, limit int) []Ranked {
	out := make([]Ranked, 0, len(ins))
	for _, in := range ins {
		out = append(out, Ranked{ProviderID: in.ProviderID, Scores: Score(in, job, now)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Scores.Composite != out[j].Scores.Composite {
			return out[i].Scores.Composite > out[j].Scores.Composite
		}
		return out[i].ProviderID < out[j].ProviderID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// DistanceScore loses two points per mile. Missing coordinates are neutral.
func DistanceScore(home, job *model.Point) float64 {
	if home == nil || job == nil {
		return Neutral
	}
	return math.Max(0, 100-2*model.DistanceMiles(*home, *job))
}

// PerformanceScore blends the decay-weighted rating (60%) with the
// completion rate (40%).
func PerformanceScore(m model.PerformanceMetrics, history []model.PerformanceHistoryRecord, now time.Time) float64 {
	if m.JobsCompleted == 0 {
		return Neutral
	}
	ratings, weights := ratedHistory(history, now)
	rating := Neutral
	if len(ratings) > 0 {
		rating = stat.Mean(ratings, weights) / maxRating * 100
	}
	completion := 100.0
	if m.JobsAccepted > 0 {
		completion = math.Min(100, float64(m.JobsCompleted)/float64(m.JobsAccepted)*100)
	}
	return clamp(0.6*rating + 0.4*completion)
}

// ReliabilityScore rewards punctuality and penalises cancellations.
func ReliabilityScore(m model.PerformanceMetrics) float64 {
	timed := m.OnTime + m.Late
	jobs := m.JobsCompleted + m.Cancellations
	if timed == 0 && jobs == 0 {
		return Neutral
	}
	onTime := 1.0
	if timed > 0 {
		onTime = float64(m.OnTime) / float64(timed)
	}
	cancel := 0.0
	if jobs > 0 {
		cancel = float64(m.Cancellations) / float64(jobs)
	}
	return clamp(100*onTime - 100*cancel)
}

// ConsistencyScore maps the rating standard deviation onto 100 (σ=0) down
// to 0 (σ>=2).
func ConsistencyScore(history []model.PerformanceHistoryRecord) float64 {
	ratings := make([]float64, 0, len(history))
	for _, h := range history {
		if h.Rating > 0 {
			ratings = append(ratings, h.Rating)
		}
	}
	if len(ratings) < minConsistencyRating {
		return Neutral
	}
	_, sd := stat.PopMeanStdDev(ratings, nil)
	return clamp(100 * (1 - sd/2))
}

// AvailabilityScore is the offer acceptance ratio.
func AvailabilityScore(m model.PerformanceMetrics) float64 {
	if m.JobsOffered == 0 {
		return Neutral
	}
	return clamp(100 * float64(m.JobsAccepted) / float64(m.JobsOffered))
}

func ratedHistory(history []model.PerformanceHistoryRecord, now time.Time) ([]float64, []float64) {
	ratings := make([]float64, 0, len(history))
	weights := make([]float64, 0, len(history))
	for _, h := range history {
		if h.Rating <= 0 {
			continue
		}
		ratings = append(ratings, h.Rating)
		weights = append(weights, DecayWeight(now.Sub(h.CompletedAt)))
	}
	return ratings, weights
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
