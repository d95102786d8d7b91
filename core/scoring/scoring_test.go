package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/jobroute/core/model"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func rec(rating float64, age time.Duration) model.PerformanceHistoryRecord {
	return model.PerformanceHistoryRecord{Rating: rating, CompletedAt: now.Add(-age)}
}

func TestNeutralScoresWithoutHistory(t *testing.T) {
	s := Score(Input{ProviderID: "p"}, nil, now)
	assert.Equal(t, Neutral, s.Distance)
	assert.Equal(t, Neutral, s.Performance)
	assert.Equal(t, Neutral, s.Reliability)
	assert.Equal(t, Neutral, s.Consistency)
	assert.Equal(t, Neutral, s.Availability)
	assert.Equal(t, 50.0, s.Composite)
}

func TestDistanceNotNeutralWithCoordinates(t *testing.T) {
	home := &model.Point{Lat: 40.7580, Lng: -73.9855}
	assert.Equal(t, 100.0, DistanceScore(home, home))

	far := &model.Point{Lat: 41.7580, Lng: -73.9855} // about 69 miles
	assert.Equal(t, 0.0, DistanceScore(home, far))

	near := &model.Point{Lat: 40.7725, Lng: -73.9855} // about 1 mile
	d := DistanceScore(home, near)
	assert.InDelta(t, 98, d, 0.5)
	assert.Equal(t, Neutral, DistanceScore(nil, near))
	assert.Equal(t, Neutral, DistanceScore(home, nil))
}

func TestDecayWeight(t *testing.T) {
	assert.Equal(t, 1.0, DecayWeight(30*day))
	assert.Equal(t, 0.5, DecayWeight(31*day))
	assert.Equal(t, 0.5, DecayWeight(90*day))
	assert.Equal(t, 0.25, DecayWeight(180*day))
	assert.Equal(t, 0.1, DecayWeight(181*day))
}

func TestPerformanceScoreDecay(t *testing.T) {
	m := model.PerformanceMetrics{JobsAccepted: 2, JobsCompleted: 2}
	// 5 stars recently (w=1), 1 star long ago (w=0.1): mean = 5.1/1.1.
	h := []model.PerformanceHistoryRecord{rec(5, day), rec(1, 200*day)}
	want := 0.6*(5.1/1.1/5*100) + 0.4*100
	assert.InDelta(t, want, PerformanceScore(m, h, now), 1e-9)
}

func TestPerformanceScoreCompletionRate(t *testing.T) {
	m := model.PerformanceMetrics{JobsAccepted: 4, JobsCompleted: 2}
	h := []model.PerformanceHistoryRecord{rec(4, day), rec(4, day)}
	assert.InDelta(t, 0.6*80+0.4*50, PerformanceScore(m, h, now), 1e-9)
}

func TestReliabilityScore(t *testing.T) {
	m := model.PerformanceMetrics{JobsCompleted: 8, OnTime: 6, Late: 2, Cancellations: 2}
	// on-time 75%, cancellations 2/10.
	assert.InDelta(t, 55, ReliabilityScore(m), 1e-9)

	bad := model.PerformanceMetrics{JobsCompleted: 1, Late: 1, Cancellations: 3}
	assert.Equal(t, 0.0, ReliabilityScore(bad))
}

func TestConsistencyScore(t *testing.T) {
	assert.Equal(t, Neutral, ConsistencyScore([]model.PerformanceHistoryRecord{rec(5, 0), rec(1, 0)}))
	same := []model.PerformanceHistoryRecord{rec(4, 0), rec(4, 0), rec(4, 0)}
	assert.Equal(t, 100.0, ConsistencyScore(same))
	// ratings 1,1,5,5 have a population std-dev of 2.
	wide := []model.PerformanceHistoryRecord{rec(1, 0), rec(1, 0), rec(5, 0), rec(5, 0)}
	assert.Equal(t, 0.0, ConsistencyScore(wide))
	// 3,4,5 has σ = sqrt(2/3).
	mid := []model.PerformanceHistoryRecord{rec(3, 0), rec(4, 0), rec(5, 0)}
	assert.InDelta(t, 100*(1-math.Sqrt(2.0/3)/2), ConsistencyScore(mid), 1e-9)
}

func TestAvailabilityScore(t *testing.T) {
	assert.Equal(t, Neutral, AvailabilityScore(model.PerformanceMetrics{}))
	assert.Equal(t, 75.0, AvailabilityScore(model.PerformanceMetrics{JobsOffered: 4, JobsAccepted: 3}))
}

func TestCompositeBoundsAndDeterminism(t *testing.T) {
	job := &model.Point{Lat: 48.85, Lng: 2.35}
	in := Input{
		ProviderID: "p",
		Home:       &model.Point{Lat: 48.86, Lng: 2.34},
		Metrics: model.PerformanceMetrics{
			JobsOffered: 10, JobsAccepted: 9, JobsCompleted: 9, OnTime: 8, Late: 1,
		},
		History: []model.PerformanceHistoryRecord{rec(5, day), rec(4, 40*day), rec(5, 100*day)},
	}
	a := Score(in, job, now)
	b := Score(in, job, now)
	assert.Equal(t, a, b)
	assert.GreaterOrEqual(t, a.Composite, 0.0)
	assert.LessOrEqual(t, a.Composite, 100.0)
	assert.Equal(t, math.Round(a.Composite), a.Composite)
}

func TestRankOrdersAndLimits(t *testing.T) {
	strong := model.PerformanceMetrics{JobsOffered: 10, JobsAccepted: 10}
	weak := model.PerformanceMetrics{JobsOffered: 10, JobsAccepted: 1}
	ins := []Input{
		{ProviderID: "weak", Metrics: weak},
		{ProviderID: "b", Metrics: strong},
		{ProviderID: "a", Metrics: strong},
		{ProviderID: "neutral"},
	}
	ranked := Rank(ins, nil, now, 0)
	require.Len(t, ranked, 4)
	assert.Equal(t, []string{"a", "b", "neutral", "weak"},
		[]string{ranked[0].ProviderID, ranked[1].ProviderID, ranked[2].ProviderID, ranked[3].ProviderID})
	for i, r := range ranked {
		assert.Equal(t, i+1, r.Rank)
	}

	top := Rank(ins, nil, now, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "a", top[0].ProviderID)
}
