// Package push delivers notifications to identities without a live session
// through an HTTP push gateway.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/kilianp07/jobroute/core/notify"
	"github.com/kilianp07/jobroute/core/presence"
)

// Message is the body posted to the push gateway.
type Message struct {
	Identity string          `json:"identity"`
	Event    string          `json:"event"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// StatusError reports a non-2xx answer of the push gateway.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("push gateway returned %d: %s", e.Code, e.Body)
}

// Client posts envelopes to the push gateway.
type Client struct {
	url  string
	http *http.Client
	cred *clientCred
}

var _ notify.PushTransport = (*Client)(nil)

// New builds a push client.
func New(cfg Config) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Client{url: cfg.URL, http: &http.Client{Timeout: cfg.Timeout}}
	if cfg.TokenURL != "" {
		c.cred = newClientCred(cfg)
	}
	return c, nil
}

// Deliver posts env for identity. A 401 answer discards the cached token and
// retries once with a fresh one.
func (c *Client) Deliver(ctx context.Context, identity string, env presence.Envelope) error {
	body, err := json.Marshal(Message{Identity: identity, Event: env.Event, Payload: env.Payload})
	if err != nil {
		return err
	}
	err = c.post(ctx, body)
	var se *StatusError
	if c.cred != nil && errors.As(err, &se) && se.Code == http.StatusUnauthorized {
		c.cred.invalidate()
		err = c.post(ctx, body)
	}
	return err
}

func (c *Client) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cred != nil {
		if err := c.cred.setAuthHeader(ctx, req); err != nil {
			return err
		}
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("push request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: string(bytes.TrimSpace(b))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
