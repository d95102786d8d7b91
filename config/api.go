package config

import "time"

// APIConfig configures the HTTP API.
type APIConfig struct {
	// Addr is the listen address; empty disables the API.
	Addr      string        `json:"addr"`
	JWTSecret string        `json:"jwt_secret"`
	Issuer    string        `json:"issuer"`
	TokenTTL  time.Duration `json:"token_ttl"`
}

// SetDefaults applies sane defaults.
func (c *APIConfig) SetDefaults() {
	if c.Issuer == "" {
		c.Issuer = "jobroute"
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 12 * time.Hour
	}
}

// Validate checks mandatory fields.
func (c APIConfig) Validate() error {
	if c.Addr != "" && len(c.JWTSecret) < 16 {
		return errorf("api", "jwt_secret of at least 16 bytes is required")
	}
	return nil
}

// ScoringConfig drives the periodic provider rescoring.
type ScoringConfig struct {
	RescoreInterval time.Duration `json:"rescore_interval"`
}

// SetDefaults applies sane defaults.
func (c *ScoringConfig) SetDefaults() {
	if c.RescoreInterval <= 0 {
		c.RescoreInterval = time.Hour
	}
}
