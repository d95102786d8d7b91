package push

import (
	"errors"
	"time"

	"golang.org/x/oauth2/clientcredentials"
)

// Config describes the push gateway endpoint and its OAuth2 client
// credentials. Leaving TokenURL empty sends unauthenticated requests.
type Config struct {
	URL          string        `json:"url"`
	ClientID     string        `json:"client_id"`
	ClientSecret string        `json:"client_secret"`
	TokenURL     string        `json:"token_url"`
	Scopes       []string      `json:"scopes"`
	Timeout      time.Duration `json:"timeout"`
}

// SetDefaults applies the request timeout.
func (c *Config) SetDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.URL == "" {
		return errors.New("push url is required")
	}
	if c.TokenURL != "" && (c.ClientID == "" || c.ClientSecret == "") {
		return errors.New("push client_id and client_secret are required with token_url")
	}
	return nil
}

func (c Config) toOauth2Config() clientcredentials.Config {
	return clientcredentials.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		TokenURL:     c.TokenURL,
		Scopes:       c.Scopes,
	}
}
