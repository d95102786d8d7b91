package push

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// clientCred caches the access token of the client credentials flow.
type clientCred struct {
	conf clientcredentials.Config

	mu    sync.Mutex
	token *oauth2.Token
}

func newClientCred(cfg Config) *clientCred {
	return &clientCred{conf: cfg.toOauth2Config()}
}

// setAuthHeader authorizes r, fetching a token when the cached one expired.
func (c *clientCred) setAuthHeader(ctx context.Context, r *http.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == nil || !c.token.Valid() {
		if err := c.fetch(ctx); err != nil {
			return err
		}
	}
	c.token.SetAuthHeader(r)
	return nil
}

// invalidate forgets the cached token so the next request fetches a new one.
func (c *clientCred) invalidate() {
	c.mu.Lock()
	c.token = nil
	c.mu.Unlock()
}

func (c *clientCred) fetch(ctx context.Context) error {
	tok, err := c.conf.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to get token: %w", err)
	}
	c.token = tok
	return nil
}
