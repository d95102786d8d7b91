package model

import "time"

// PerformanceMetrics holds the rolling counters of a provider and the
// sub-scores cached after the last recompute.
type PerformanceMetrics struct {
	ProviderID     string `json:"provider_id"`
	JobsOffered    int    `json:"jobs_offered"`
	JobsAccepted   int    `json:"jobs_accepted"`
	JobsDeclined   int    `json:"jobs_declined"`
	JobsNoResponse int    `json:"jobs_no_response"`
	JobsCompleted  int    `json:"jobs_completed"`
	OnTime         int    `json:"on_time"`
	Late           int    `json:"late"`
	Cancellations  int    `json:"cancellations"`

	CachedScores ScoreBreakdown `json:"cached_scores"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Outcome is a counter delta applied atomically to PerformanceMetrics.
type Outcome struct {
	Offered      int
	Accepted     int
	Declined     int
	NoResponse   int
	Completed    int
	OnTime       int
	Late         int
	Cancellation int
}

// Convenience outcomes used by the dispatch engine.
var (
	OutcomeOffered    = Outcome{Offered: 1}
	OutcomeAccepted   = Outcome{Accepted: 1}
	OutcomeDeclined   = Outcome{Declined: 1}
	OutcomeNoResponse = Outcome{NoResponse: 1}
)

// Apply adds the outcome deltas to m.
func (m *PerformanceMetrics) Apply(o Outcome) {
	m.JobsOffered += o.Offered
	m.JobsAccepted += o.Accepted
	m.JobsDeclined += o.Declined
	m.JobsNoResponse += o.NoResponse
	m.JobsCompleted += o.Completed
	m.OnTime += o.OnTime
	m.Late += o.Late
	m.Cancellations += o.Cancellation
}

// PerformanceHistoryRecord describes one resolved job. Append-only.
type PerformanceHistoryRecord struct {
	ProviderID    string    `json:"provider_id"`
	BookingID     string    `json:"booking_id"`
	Rating        float64   `json:"rating"`
	OnTime        bool      `json:"on_time"`
	DistanceMiles float64   `json:"distance_miles"`
	CompletedAt   time.Time `json:"completed_at"`
	DecayWeight   float64   `json:"decay_weight"`
}

// ScoreBreakdown is the composite score and its five components, all on a
// 0..100 scale.
type ScoreBreakdown struct {
	Composite    float64 `json:"composite"`
	Distance     float64 `json:"distance"`
	Performance  float64 `json:"performance"`
	Reliability  float64 `json:"reliability"`
	Consistency  float64 `json:"consistency"`
	Availability float64 `json:"availability"`
}

// CoverageKind selects how a ServiceCoverage is evaluated.
type CoverageKind string

const (
	CoverageRadius  CoverageKind = "radius"
	CoveragePolygon CoverageKind = "polygon"
	CoverageZip     CoverageKind = "zip"
)

// ServiceCoverage is an area a provider accepts jobs in.
type ServiceCoverage struct {
	ProviderID  string       `json:"provider_id" yaml:"-"`
	Kind        CoverageKind `json:"kind" yaml:"kind"`
	Active      bool         `json:"active" yaml:"active"`
	Center      Point        `json:"center" yaml:"center"`
	RadiusMiles float64      `json:"radius_miles" yaml:"radius_miles"`
	Polygon     []Point      `json:"polygon,omitempty" yaml:"polygon"`
	ZipCodes    []string     `json:"zip_codes,omitempty" yaml:"zip_codes"`
}

// Provider is the dispatch-relevant view of a worker.
type Provider struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	ServiceTypes []string          `json:"service_types"`
	Home         Location          `json:"home"`
	Coverage     []ServiceCoverage `json:"coverage"`
	Active       bool              `json:"active"`
}

// Offers reports whether the provider performs the given service type.
// An empty list means every service type.
func (p Provider) Offers(serviceType string) bool {
	if len(p.ServiceTypes) == 0 {
		return true
	}
	for _, s := range p.ServiceTypes {
		if s == serviceType {
			return true
		}
	}
	return false
}

// ProviderProfile bundles everything the scoring engine needs for one
// provider.
type ProviderProfile struct {
	Provider Provider
	Metrics  PerformanceMetrics
	History  []PerformanceHistoryRecord
}
