// Package fixtures loads providers and bookings from a YAML file into a
// store, for demos and local development.
package fixtures

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/jobroute/core/model"
	"github.com/kilianp07/jobroute/core/store"
)

// Location is a point and/or zip code.
type Location struct {
	Lat *float64 `yaml:"lat"`
	Lng *float64 `yaml:"lng"`
	Zip string   `yaml:"zip"`
}

func (l Location) model() model.Location {
	out := model.Location{Zip: l.Zip}
	if l.Lat != nil && l.Lng != nil {
		out.Point = &model.Point{Lat: *l.Lat, Lng: *l.Lng}
	}
	return out
}

// Coverage is a service area. Active defaults to true.
type Coverage struct {
	Kind        model.CoverageKind `yaml:"kind"`
	Active      *bool              `yaml:"active"`
	Center      model.Point        `yaml:"center"`
	RadiusMiles float64            `yaml:"radius_miles"`
	Polygon     []model.Point      `yaml:"polygon"`
	ZipCodes    []string           `yaml:"zip_codes"`
}

// Metrics seeds the outcome counters of a provider.
type Metrics struct {
	Offered       int `yaml:"jobs_offered"`
	Accepted      int `yaml:"jobs_accepted"`
	Declined      int `yaml:"jobs_declined"`
	NoResponse    int `yaml:"jobs_no_response"`
	Completed     int `yaml:"jobs_completed"`
	OnTime        int `yaml:"on_time"`
	Late          int `yaml:"late"`
	Cancellations int `yaml:"cancellations"`
}

func (m Metrics) outcome() model.Outcome {
	return model.Outcome{
		Offered: m.Offered, Accepted: m.Accepted, Declined: m.Declined, NoResponse: m.NoResponse,
		Completed: m.Completed, OnTime: m.OnTime, Late: m.Late, Cancellation: m.Cancellations,
	}
}

// Job is one completed job of a provider's history.
type Job struct {
	BookingID     string    `yaml:"booking_id"`
	Rating        float64   `yaml:"rating"`
	OnTime        bool      `yaml:"on_time"`
	DistanceMiles float64   `yaml:"distance_miles"`
	CompletedAt   time.Time `yaml:"completed_at"`
}

// Provider is a provider entry of the fixture file. Active defaults to true.
type Provider struct {
	ID           string     `yaml:"id"`
	Name         string     `yaml:"name"`
	ServiceTypes []string   `yaml:"service_types"`
	Home         Location   `yaml:"home"`
	Active       *bool      `yaml:"active"`
	Coverage     []Coverage `yaml:"coverage"`
	Metrics      *Metrics   `yaml:"metrics"`
	History      []Job      `yaml:"history"`
}

// Booking is a booking entry of the fixture file.
type Booking struct {
	ID          string    `yaml:"id"`
	CustomerID  string    `yaml:"customer_id"`
	ServiceType string    `yaml:"service_type"`
	Location    Location  `yaml:"location"`
	CreatedAt   time.Time `yaml:"created_at"`
}

// Set is the content of a fixture file.
type Set struct {
	Providers []Provider `yaml:"providers"`
	Bookings  []Booking  `yaml:"bookings"`
}

// Load reads and validates a fixture file.
func Load(path string) (*Set, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes and validates fixture YAML. Unknown keys are rejected.
func Parse(b []byte) (*Set, error) {
	var s Set
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks IDs are present and unique.
func (s *Set) Validate() error {
	seen := map[string]bool{}
	for i, p := range s.Providers {
		if p.ID == "" {
			return fmt.Errorf("provider #%d has no id", i+1)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate provider %s", p.ID)
		}
		seen[p.ID] = true
	}
	seen = map[string]bool{}
	for i, b := range s.Bookings {
		if b.ID == "" || b.ServiceType == "" {
			return fmt.Errorf("booking #%d needs id and service_type", i+1)
		}
		if seen[b.ID] {
			return fmt.Errorf("duplicate booking %s", b.ID)
		}
		seen[b.ID] = true
	}
	return nil
}

func orTrue(b *bool) bool { return b == nil || *b }

// ProviderModel converts a fixture entry.
func (p Provider) ProviderModel() model.Provider {
	out := model.Provider{
		ID:           p.ID,
		Name:         p.Name,
		ServiceTypes: p.ServiceTypes,
		Home:         p.Home.model(),
		Active:       orTrue(p.Active),
	}
	for _, c := range p.Coverage {
		out.Coverage = append(out.Coverage, model.ServiceCoverage{
			ProviderID:  p.ID,
			Kind:        c.Kind,
			Active:      orTrue(c.Active),
			Center:      c.Center,
			RadiusMiles: c.RadiusMiles,
			Polygon:     c.Polygon,
			ZipCodes:    c.ZipCodes,
		})
	}
	return out
}

// Apply writes the set into st. Providers and bookings are upserted;
// metric counters and history are added on top of what the store holds.
// Bookings without created_at are stamped with now.
func (s *Set) Apply(ctx context.Context, st store.Store, now time.Time) error {
	var errs []error
	for _, p := range s.Providers {
		if err := st.UpsertProvider(ctx, p.ProviderModel()); err != nil {
			errs = append(errs, fmt.Errorf("provider %s: %w", p.ID, err))
			continue
		}
		if p.Metrics != nil {
			if _, err := st.ApplyOutcome(ctx, p.ID, p.Metrics.outcome(), now); err != nil {
				errs = append(errs, fmt.Errorf("metrics of %s: %w", p.ID, err))
			}
		}
		for _, j := range p.History {
			at := j.CompletedAt
			if at.IsZero() {
				at = now
			}
			rec := model.PerformanceHistoryRecord{
				ProviderID: p.ID, BookingID: j.BookingID, Rating: j.Rating, OnTime: j.OnTime,
				DistanceMiles: j.DistanceMiles, CompletedAt: at.UTC(), DecayWeight: 1,
			}
			if err := st.AppendHistory(ctx, rec); err != nil {
				errs = append(errs, fmt.Errorf("history of %s: %w", p.ID, err))
			}
		}
	}
	for _, b := range s.Bookings {
		created := b.CreatedAt
		if created.IsZero() {
			created = now
		}
		bk := model.Booking{
			ID:          b.ID,
			CustomerID:  b.CustomerID,
			ServiceType: b.ServiceType,
			Location:    b.Location.model(),
			Status:      model.BookingPending,
			CreatedAt:   created.UTC(),
			UpdatedAt:   now.UTC(),
		}
		if err := st.UpsertBooking(ctx, bk); err != nil {
			errs = append(errs, fmt.Errorf("booking %s: %w", b.ID, err))
		}
	}
	return errors.Join(errs...)
}
