package metrics

import (
	"context"
	"math"
	"net/http"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/jobroute/core/metrics"
	"github.com/kilianp07/jobroute/infra/logger"
)

// InfluxConfig locates the InfluxDB bucket receiving dispatch events.
type InfluxConfig struct {
	URL    string `json:"url"`
	Token  string `json:"token"`
	Org    string `json:"org"`
	Bucket string `json:"bucket"`
}

// InfluxSink writes dispatch events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(cfg InfluxConfig) *InfluxSink {
	base := strings.TrimSuffix(cfg.URL, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, cfg.Token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg InfluxConfig) coremetrics.MetricsSink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

func (s *InfluxSink) write(p *write.Point) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordTransition writes one assignment status change.
func (s *InfluxSink) RecordTransition(ev coremetrics.TransitionEvent) error {
	p := write.NewPointWithMeasurement("assignment_transition").
		AddTag("provider_id", ev.ProviderID).
		AddTag("booking_id", ev.BookingID).
		AddTag("from", string(ev.From)).
		AddTag("to", string(ev.To)).
		AddField("assignment_id", ev.AssignmentID).
		AddField("response_ms", round3(ev.ResponseTime.Seconds()*1000))
	if ev.Reason != "" {
		p = p.AddField("reason", ev.Reason)
	}
	return s.write(p.SetTime(ev.Time))
}

// RecordOffer writes an offered assignment with its score.
func (s *InfluxSink) RecordOffer(ev coremetrics.OfferEvent) error {
	p := write.NewPointWithMeasurement("assignment_offer").
		AddTag("provider_id", ev.ProviderID).
		AddTag("booking_id", ev.BookingID).
		AddTag("service_type", ev.ServiceType).
		AddTag("method", string(ev.Method)).
		AddField("order", ev.Order).
		AddField("score", round3(ev.Score)).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordEscalation writes a manual intervention request.
func (s *InfluxSink) RecordEscalation(ev coremetrics.EscalationEvent) error {
	p := write.NewPointWithMeasurement("booking_escalation").
		AddTag("booking_id", ev.BookingID).
		AddField("attempts", ev.Attempts).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordConfirmation writes a confirmed booking.
func (s *InfluxSink) RecordConfirmation(ev coremetrics.ConfirmationEvent) error {
	p := write.NewPointWithMeasurement("booking_confirmed").
		AddTag("booking_id", ev.BookingID).
		AddTag("provider_id", ev.ProviderID).
		AddField("assignment_id", ev.AssignmentID).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordPresence writes an online/offline transition.
func (s *InfluxSink) RecordPresence(ev coremetrics.PresenceSample) error {
	p := write.NewPointWithMeasurement("presence").
		AddTag("identity", ev.Identity).
		AddTag("role", ev.Role).
		AddField("online", ev.Online).
		SetTime(ev.Time)
	return s.write(p)
}

// RecordDeliveryFailure writes a dropped notification.
func (s *InfluxSink) RecordDeliveryFailure(ev coremetrics.DeliveryFailureEvent) error {
	p := write.NewPointWithMeasurement("notification_undeliverable").
		AddTag("identity", ev.Identity).
		AddTag("event", ev.Event).
		AddField("attempts", ev.Attempts).
		AddField("error", ev.Error).
		SetTime(ev.Time)
	return s.write(p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
