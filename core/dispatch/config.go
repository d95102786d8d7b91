package dispatch

import (
	"fmt"
	"time"
)

// Default dispatch settings.
const (
	DefaultResponseWindow = 7 * time.Minute
	DefaultMaxCandidates  = 5
	DefaultAdminRole      = "admin"
)

// Config defines dispatch-related settings.
type Config struct {
	// ResponseWindow is how long a provider has to answer an offer.
	ResponseWindow time.Duration `json:"response_window"`
	// MaxCandidates bounds the length of an offer chain.
	MaxCandidates int `json:"max_candidates"`
	// AdminRole is the presence role signalled on manual intervention.
	AdminRole string `json:"admin_role"`
	// LocalTimers arms in-process deadline timers in addition to the
	// reconciler sweep.
	LocalTimers *bool `json:"local_timers"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.ResponseWindow == 0 {
		c.ResponseWindow = DefaultResponseWindow
	}
	if c.MaxCandidates == 0 {
		c.MaxCandidates = DefaultMaxCandidates
	}
	if c.AdminRole == "" {
		c.AdminRole = DefaultAdminRole
	}
	if c.LocalTimers == nil {
		on := true
		c.LocalTimers = &on
	}
}

// Validate checks the settings.
func (c Config) Validate() error {
	if c.ResponseWindow <= 0 {
		return fmt.Errorf("dispatch: response_window must be positive, got %s", c.ResponseWindow)
	}
	if c.MaxCandidates < 0 {
		return fmt.Errorf("dispatch: max_candidates must not be negative")
	}
	return nil
}
