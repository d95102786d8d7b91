package metrics

import "github.com/kilianp07/jobroute/core/factory"

// Config defines settings for metrics sinks.
type Config struct {
	// Addr exposes the Prometheus registry on /metrics when set.
	Addr  string                 `json:"addr" yaml:"addr"`
	Sinks []factory.ModuleConfig `json:"sinks" yaml:"sinks"`
}
