package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"fwdefense/core"
	"fwdefense/engine"
)

// Sink mirrors broadcast messages to configured HTTP endpoints, so external
// systems (Discord bridges, analytics pipelines) can follow game activity
// without holding a websocket open.
type Sink struct {
	client    *http.Client
	endpoints []string
}

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the HTTP client (defaults to 2s timeout).
func WithClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

// New creates a webhook sink.
func New(endpoints []string, opts ...Option) *Sink {
	s := &Sink{
		client: &http.Client{Timeout: 2 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.endpoints = append([]string{}, endpoints...)
	return s
}

// Publish posts the message JSON to all endpoints. The first delivery error
// is returned; callers treat broadcasts as best-effort anyway.
func (s *Sink) Publish(ctx context.Context, msg core.Message) error {
	if len(s.endpoints) == 0 {
		return nil
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", msg.MessageType(), err)
	}
	var firstErr error
	for _, ep := range s.endpoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep, bytes.NewReader(body))
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		_ = resp.Body.Close()
		if resp.StatusCode >= 400 && firstErr == nil {
			firstErr = fmt.Errorf("webhook %s returned %d", ep, resp.StatusCode)
		}
	}
	return firstErr
}

var _ engine.Publisher = (*Sink)(nil)
