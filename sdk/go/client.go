package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"fwdefense/core"
)

// ErrEmptyPlayerID is returned when a call requires a player id and none was given.
var ErrEmptyPlayerID = errors.New("player id is required")

// Option configures the Client.
type Option func(*Client)

// Client provides typed access to the game's HTTP + WebSocket API.
type Client struct {
	baseURL    string
	wsURL      string
	httpClient *http.Client
	headers    http.Header
}

// NewClient constructs a new SDK client targeting the given baseURL (e.g., http://localhost:8080/api).
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("baseURL is required")
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	c := &Client{
		baseURL:    baseURL,
		wsURL:      deriveWSURL(baseURL),
		httpClient: http.DefaultClient,
		headers:    make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// WithSessionToken adds an Authorization: Bearer token header to all requests (HTTP + WS).
func WithSessionToken(token string) Option {
	return func(c *Client) {
		if strings.TrimSpace(token) != "" {
			c.headers.Set("Authorization", "Bearer "+token)
		}
	}
}

// WithAdminKey adds the X-Admin-API-Key header for admin calls.
func WithAdminKey(key string) Option {
	return func(c *Client) {
		if strings.TrimSpace(key) != "" {
			c.headers.Set("X-Admin-API-Key", key)
		}
	}
}

// Enroll registers (or touches) the player and stores the returned session
// token on the client for subsequent calls.
func (c *Client) Enroll(ctx context.Context, playerID string) (EnrollResult, error) {
	if strings.TrimSpace(playerID) == "" {
		return EnrollResult{}, ErrEmptyPlayerID
	}
	var out EnrollResult
	err := c.do(ctx, http.MethodPost, "/auth/enroll", map[string]string{"uuid": playerID}, &out)
	if err != nil {
		return EnrollResult{}, err
	}
	c.headers.Set("Authorization", "Bearer "+out.Token)
	return out, nil
}

// Profile fetches the authenticated player's record.
func (c *Client) Profile(ctx context.Context) (core.Player, error) {
	var p core.Player
	err := c.do(ctx, http.MethodGet, "/player/profile", nil, &p)
	return p, err
}

// SetupProfile submits the profile form and returns the updated record.
func (c *Client) SetupProfile(ctx context.Context, productName, tagline, color string) (core.Player, error) {
	var p core.Player
	err := c.do(ctx, http.MethodPost, "/player/setup", map[string]string{
		"productName": productName,
		"tagline":     tagline,
		"color":       color,
	}, &p)
	return p, err
}

// CompleteMatch reports a finished match's score.
func (c *Client) CompleteMatch(ctx context.Context, score int64) (MatchResult, error) {
	var out MatchResult
	err := c.do(ctx, http.MethodPost, "/match/complete", map[string]int64{"score": score}, &out)
	return out, err
}

// Leaderboard fetches the enriched top entries plus the flush countdown state.
func (c *Client) Leaderboard(ctx context.Context, limit int) (LeaderboardView, error) {
	path := "/leaderboard"
	if limit > 0 {
		path = fmt.Sprintf("/leaderboard?limit=%d", limit)
	}
	var out LeaderboardView
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

// FirewallStatus fetches the global firewall health pair.
func (c *Client) FirewallStatus(ctx context.Context) (FirewallStatus, error) {
	var out FirewallStatus
	err := c.do(ctx, http.MethodGet, "/firewall/status", nil, &out)
	return out, err
}

// MOTD fetches the current message of the day, empty when unset.
func (c *Client) MOTD(ctx context.Context) (string, error) {
	var out struct {
		MOTD string `json:"motd"`
	}
	err := c.do(ctx, http.MethodGet, "/motd", nil, &out)
	return out.MOTD, err
}

// GameConfig fetches the remote game configuration.
func (c *Client) GameConfig(ctx context.Context) (core.GameConfig, error) {
	var out core.GameConfig
	err := c.do(ctx, http.MethodGet, "/game-config", nil, &out)
	return out, err
}

// Health probes /healthz and returns status + storage check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	var out HealthStatus
	err := c.do(ctx, http.MethodGet, "/healthz", nil, &out)
	return out, err
}

// SubscribeUpdates connects to the WebSocket stream and emits broadcast
// frames. The returned channel closes when ctx is done or the connection drops.
func (c *Client) SubscribeUpdates(ctx context.Context) (<-chan Update, error) {
	if c.wsURL == "" {
		return nil, errors.New("wsURL is not set; ensure baseURL is http/https")
	}
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, c.wsURL, c.headers)
	if err != nil {
		return nil, err
	}

	out := make(chan Update, 32)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				return
			default:
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var peek struct {
					Type core.MessageType `json:"type"`
				}
				if json.Unmarshal(data, &peek) != nil {
					continue
				}
				select {
				case out <- Update{Type: peek.Type, Raw: data}:
				default:
					// drop if consumer is slow
				}
			}
		}
	}()
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var rdr *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(data)
	} else {
		rdr = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.applyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("%s: %s", apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) applyHeaders(r *http.Request) {
	for k, vals := range c.headers {
		for _, v := range vals {
			r.Header.Add(k, v)
		}
	}
}

func deriveWSURL(httpBase string) string {
	u, err := url.Parse(httpBase)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return ""
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String()
}
