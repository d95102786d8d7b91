package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/jobroute/core/factory"
	coremetrics "github.com/kilianp07/jobroute/core/metrics"
	"github.com/kilianp07/jobroute/infra/logger"
)

func newCollectorLogger() logger.Logger { return logger.New("metrics-collector") }

// init registers built-in metrics sinks.
func init() {
	_ = coremetrics.RegisterMetricsSink("nop", func(map[string]any) (coremetrics.MetricsSink, error) {
		return coremetrics.NopSink{}, nil
	})

	_ = coremetrics.RegisterMetricsSink("prometheus", func(map[string]any) (coremetrics.MetricsSink, error) {
		return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
	})

	_ = coremetrics.RegisterMetricsSink("influx", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c InfluxConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c), nil
	})
}
