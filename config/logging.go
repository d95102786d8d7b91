package config

import "strings"

// LoggingConfig selects the default level and output format of the
// component loggers. LOG_LEVEL and APP_ENV=dev still take precedence.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level"`
	// Format is "json" or "console".
	Format string `json:"format"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "json"
	}
}

// Validate checks mandatory fields.
func (c LoggingConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "error":
	default:
		return errorf("logging", "unknown level %s", c.Level)
	}
	if c.Format != "json" && c.Format != "console" {
		return errorf("logging", "unknown format %s", c.Format)
	}
	return nil
}
