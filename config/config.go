// Package config loads the service configuration from a YAML or JSON file
// with K_ prefixed environment overrides (K_MQTT__BROKER sets mqtt.broker).
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/jobroute/core/dispatch"
	"github.com/kilianp07/jobroute/core/factory"
	"github.com/kilianp07/jobroute/core/metrics"
	"github.com/kilianp07/jobroute/core/notify"
	"github.com/kilianp07/jobroute/core/reconcile"
	"github.com/kilianp07/jobroute/infra/audit"
	"github.com/kilianp07/jobroute/infra/mqtt"
	"github.com/kilianp07/jobroute/infra/presence"
	"github.com/kilianp07/jobroute/infra/push"
)

// Config is the full service configuration. Optional integrations (mqtt,
// push, redis, audit, relay, api) are disabled while their key field is
// empty.
type Config struct {
	Store      factory.ModuleConfig `json:"store"`
	Dispatch   dispatch.Config      `json:"dispatch"`
	Reconciler reconcile.Config     `json:"reconciler"`
	Notify     notify.Config        `json:"notify"`
	Scoring    ScoringConfig        `json:"scoring"`
	MQTT       mqtt.Config          `json:"mqtt"`
	Push       push.Config          `json:"push"`
	Redis      presence.Config      `json:"redis"`
	Relay      factory.ModuleConfig `json:"relay"`
	Metrics    metrics.Config       `json:"metrics"`
	API        APIConfig            `json:"api"`
	Audit      audit.Config         `json:"audit"`
	Sentry     SentryConfig         `json:"sentry"`
	Logging    LoggingConfig        `json:"logging"`
}

func errorf(section, format string, args ...any) error {
	return fmt.Errorf("%s: %s", section, fmt.Sprintf(format, args...))
}

// Load reads path, applies environment overrides, defaults and validation.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults fills every section. Optional integrations are only defaulted
// when enabled.
func (c *Config) SetDefaults() {
	if c.Store.Type == "" {
		c.Store.Type = "sqlite"
	}
	c.Dispatch.SetDefaults()
	c.Reconciler.SetDefaults()
	c.Notify.SetDefaults()
	c.Scoring.SetDefaults()
	if c.MQTT.Broker != "" {
		c.MQTT.SetDefaults()
	}
	if c.Push.URL != "" {
		c.Push.SetDefaults()
	}
	if c.Redis.Addr != "" {
		c.Redis.SetDefaults()
	}
	if c.Audit.Path != "" {
		c.Audit.SetDefaults()
	}
	c.API.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section and collects all problems.
func (c Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	add(c.Dispatch.Validate())
	add(c.Reconciler.Validate(c.Dispatch.ResponseWindow))
	if c.MQTT.Broker != "" {
		add(c.MQTT.Validate())
	}
	if c.Push.URL != "" {
		add(c.Push.Validate())
	}
	if c.Audit.Path != "" {
		add(c.Audit.Validate())
	}
	add(c.API.Validate())
	add(c.Sentry.Validate())
	add(c.Logging.Validate())
	return errors.Join(errs...)
}
