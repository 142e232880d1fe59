package httpapi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	wsadapter "fwdefense/adapters/websocket"
	"fwdefense/analytics"
	"fwdefense/core"
	"fwdefense/engine"
	"fwdefense/realtime"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// AdminAPIKey guards the /admin routes. Empty disables the whole admin surface.
	AdminAPIKey string
	// SessionTTL is the lifetime of tokens minted by /auth/enroll.
	SessionTTL time.Duration
	// RateLimitEnabled toggles rate limiting.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
}

const defaultSessionTTL = 24 * time.Hour

// NewMux builds the game's REST API and WebSocket stream.
// Player routes (session token via Authorization: Bearer):
//   - POST {prefix}/auth/enroll
//   - GET  {prefix}/player/profile
//   - POST {prefix}/player/setup
//   - POST {prefix}/match/complete
//   - GET  {prefix}/leaderboard
//   - GET  {prefix}/firewall/status
//   - GET  {prefix}/motd
//   - GET  {prefix}/game-config
//   - GET  {prefix}/healthz
//   - WS   {prefix}/ws
//
// Admin routes (X-Admin-API-Key) live under {prefix}/admin/.
func NewMux(svc *engine.GameService, sessions engine.SessionStore, hub *realtime.Hub, stats *analytics.Collector, opts Options) http.Handler {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	a := &api{svc: svc, sessions: sessions, stats: stats, opts: opts}

	mux := http.NewServeMux()

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/healthz"), a.healthCheck)
	if hub != nil {
		mux.Handle(withPrefix(opts.PathPrefix, "/ws"), wsadapter.Handler(hub))
	}

	mux.HandleFunc(withPrefix(opts.PathPrefix, "/auth/enroll"), a.enroll)
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/player/profile"), a.requireSession(a.profile))
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/player/setup"), a.requireSession(a.setupProfile))
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/match/complete"), a.requireSession(a.matchComplete))
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/leaderboard"), a.leaderboard)
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/firewall/status"), a.firewallStatus)
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/motd"), a.motd)
	mux.HandleFunc(withPrefix(opts.PathPrefix, "/game-config"), a.gameConfig)

	if opts.AdminAPIKey != "" {
		mux.HandleFunc(withPrefix(opts.PathPrefix, "/admin/"), a.requireAdmin(a.admin))
	}

	var handler http.Handler = mux
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		handler = withRateLimit(handler, opts.RateLimitRPM, opts.RateLimitBurst)
	}
	return handler
}

type api struct {
	svc      *engine.GameService
	sessions engine.SessionStore
	stats    *analytics.Collector
	opts     Options
}

// --- auth ---

func (a *api) enroll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST", nil)
		return
	}
	var body struct {
		UUID string `json:"uuid"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON", nil)
		return
	}
	player, err := a.svc.Enroll(r.Context(), core.PlayerID(body.UUID))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_player", err.Error(), nil)
		return
	}
	token := uuid.NewString()
	if err := a.sessions.PutSession(r.Context(), token, player.ID, a.opts.SessionTTL); err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "could not create session", nil)
		return
	}
	writeJSON(w, map[string]any{"token": token, "player": player})
}

// requireSession resolves the bearer token to a player id before calling the
// wrapped handler.
func (a *api) requireSession(next func(w http.ResponseWriter, r *http.Request, id core.PlayerID)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing session token", nil)
			return
		}
		id, err := a.sessions.GetSession(r.Context(), token)
		if errors.Is(err, engine.ErrSessionNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired session", nil)
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", "session lookup failed", nil)
			return
		}
		next(w, r, id)
	}
}

// --- player ---

func (a *api) profile(w http.ResponseWriter, r *http.Request, id core.PlayerID) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET", nil)
		return
	}
	p, err := a.svc.Profile(r.Context(), id)
	if err != nil {
		writePlayerError(w, err)
		return
	}
	writeJSON(w, p)
}

func (a *api) setupProfile(w http.ResponseWriter, r *http.Request, id core.PlayerID) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST", nil)
		return
	}
	var body struct {
		ProductName string `json:"productName"`
		Tagline     string `json:"tagline"`
		Color       string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON", nil)
		return
	}
	if err := a.svc.SetupProfile(r.Context(), id, body.ProductName, body.Tagline, body.Color); err != nil {
		writePlayerError(w, err)
		return
	}
	p, err := a.svc.Profile(r.Context(), id)
	if err != nil {
		writePlayerError(w, err)
		return
	}
	writeJSON(w, p)
}

func (a *api) matchComplete(w http.ResponseWriter, r *http.Request, id core.PlayerID) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST", nil)
		return
	}
	var body struct {
		Score *int64 `json:"score"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Score == nil {
		writeError(w, http.StatusBadRequest, "invalid_score", "score must be an integer", nil)
		return
	}
	total, err := a.svc.SubmitScore(r.Context(), id, *body.Score)
	if err != nil {
		writePlayerError(w, err)
		return
	}
	// A defensive match repairs the firewall, a lost one damages it.
	health, err := a.svc.ApplyFirewallDamage(r.Context(), *body.Score)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "firewall update failed", nil)
		return
	}
	writeJSON(w, map[string]any{"totalScore": total, "firewallHealth": health})
}

// --- public reads ---

func (a *api) leaderboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET", nil)
		return
	}
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be 1..100", nil)
			return
		}
		limit = n
	}
	view, err := a.svc.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
		return
	}
	writeJSON(w, view)
}

func (a *api) firewallStatus(w http.ResponseWriter, r *http.Request) {
	health, max, err := a.svc.FirewallHealth(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
		return
	}
	writeJSON(w, map[string]any{"health": health, "maxHealth": max})
}

func (a *api) motd(w http.ResponseWriter, r *http.Request) {
	msg, err := a.svc.MOTD(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
		return
	}
	writeJSON(w, map[string]any{"motd": msg})
}

func (a *api) gameConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := a.svc.GameConfig(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
		return
	}
	writeJSON(w, cfg)
}

// healthCheck verifies storage works with a lightweight probe read.
func (a *api) healthCheck(w http.ResponseWriter, r *http.Request) {
	_, err := a.svc.FlushState(r.Context())

	status := map[string]any{
		"status": "healthy",
		"checks": map[string]any{
			"storage": "ok",
		},
	}
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		status["status"] = "unhealthy"
		status["checks"].(map[string]any)["storage"] = "failed"
	} else {
		w.WriteHeader(http.StatusOK)
	}
	writeJSON(w, status)
}

// --- admin ---

func (a *api) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Admin-API-Key") != a.opts.AdminAPIKey {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid admin key", nil)
			return
		}
		next(w, r)
	}
}

func (a *api) admin(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, a.opts.PathPrefix)
	parts := split(path, '/') // parts[0] == "admin"
	if len(parts) < 2 {
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
		return
	}
	switch parts[1] {
	case "leaderboard":
		a.adminLeaderboard(w, r)
	case "leaderboard-flush-interval":
		a.adminFlushInterval(w, r)
	case "health":
		a.adminHealth(w, r)
	case "max-health":
		a.adminMaxHealth(w, r)
	case "broadcast-motd":
		a.adminBroadcastMOTD(w, r)
	case "game-config":
		a.adminGameConfig(w, r)
	case "stats":
		a.adminStats(w, r)
	case "players":
		a.adminPlayers(w, r, parts[2:])
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	}
}

func (a *api) adminLeaderboard(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rows, err := a.svc.FullLeaderboard(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		if rows == nil {
			rows = []core.RankedPlayer{}
		}
		writeJSON(w, map[string]any{"leaderboard": rows})
	case http.MethodDelete:
		if err := a.svc.ForceFlush(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or DELETE", nil)
	}
}

func (a *api) adminFlushInterval(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		st, err := a.svc.FlushState(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		writeJSON(w, map[string]any{
			"flushIntervalMinutes": st.IntervalMinutes,
			"lastFlush":            st.LastFlushMillis(),
		})
	case http.MethodPost:
		var body struct {
			Minutes *int `json:"minutes"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Minutes == nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "minutes must be an integer", nil)
			return
		}
		if err := a.svc.SetFlushInterval(r.Context(), *body.Minutes); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_interval", err.Error(), nil)
			return
		}
		writeJSON(w, map[string]any{"flushIntervalMinutes": *body.Minutes})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or POST", nil)
	}
}

func (a *api) adminHealth(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.firewallStatus(w, r)
	case http.MethodPost:
		var body struct {
			Health *int64 `json:"health"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Health == nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "health must be an integer", nil)
			return
		}
		health, err := a.svc.SetFirewallHealth(r.Context(), *body.Health)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		writeJSON(w, map[string]any{"health": health})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or POST", nil)
	}
}

func (a *api) adminMaxHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST", nil)
		return
	}
	var body struct {
		MaxHealth *int64 `json:"maxHealth"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.MaxHealth == nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "maxHealth must be an integer", nil)
		return
	}
	if err := a.svc.SetMaxFirewallHealth(r.Context(), *body.MaxHealth); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_max_health", err.Error(), nil)
		return
	}
	writeJSON(w, map[string]any{"maxHealth": *body.MaxHealth})
}

func (a *api) adminBroadcastMOTD(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST", nil)
		return
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON", nil)
		return
	}
	if err := a.svc.BroadcastMOTD(r.Context(), body.Message); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_message", err.Error(), nil)
		return
	}
	writeJSON(w, map[string]any{"ok": true})
}

func (a *api) adminGameConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.gameConfig(w, r)
	case http.MethodPost:
		var cfg core.GameConfig
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON", nil)
			return
		}
		if err := a.svc.SetGameConfig(r.Context(), cfg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_config", err.Error(), nil)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or POST", nil)
	}
}

func (a *api) adminStats(w http.ResponseWriter, r *http.Request) {
	if a.stats == nil {
		writeError(w, http.StatusNotFound, "not_found", "stats not enabled", nil)
		return
	}
	writeJSON(w, a.stats.Snapshot())
}

func (a *api) adminPlayers(w http.ResponseWriter, r *http.Request, rest []string) {
	switch {
	case len(rest) == 0 && r.Method == http.MethodGet:
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		result, err := a.svc.ListPlayers(r.Context(), page, limit, r.URL.Query().Get("search"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		writeJSON(w, result)
	case len(rest) == 0 && r.Method == http.MethodDelete:
		n, err := a.svc.DeleteAllPlayers(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		writeJSON(w, map[string]any{"deleted": n})
	case len(rest) == 1 && rest[0] == "bulk-delete" && r.Method == http.MethodPost:
		var body struct {
			UUIDs []core.PlayerID `json:"uuids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body.UUIDs) == 0 {
			writeError(w, http.StatusBadRequest, "invalid_body", "uuids must be a non-empty array", nil)
			return
		}
		deleted, notFound, err := a.svc.BulkDeletePlayers(r.Context(), body.UUIDs)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		writeJSON(w, map[string]any{"deleted": deleted, "notFound": notFound})
	case len(rest) == 1 && r.Method == http.MethodPut:
		var body struct {
			ProductName *string `json:"productName"`
			Tagline     *string `json:"tagline"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON", nil)
			return
		}
		p, err := a.svc.UpdatePlayer(r.Context(), core.PlayerID(rest[0]), engine.ProfilePatch{
			ProductName: body.ProductName,
			Tagline:     body.Tagline,
		})
		if err != nil {
			writePlayerError(w, err)
			return
		}
		writeJSON(w, p)
	case len(rest) == 1 && r.Method == http.MethodDelete:
		if err := a.svc.DeletePlayer(r.Context(), core.PlayerID(rest[0])); err != nil {
			writePlayerError(w, err)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	}
}

// Helpers

func writePlayerError(w http.ResponseWriter, err error) {
	if errors.Is(err, engine.ErrPlayerNotFound) {
		writeError(w, http.StatusNotFound, "player_not_found", err.Error(), nil)
		return
	}
	writeError(w, http.StatusBadRequest, "invalid_input", err.Error(), nil)
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func withPrefix(prefix, path string) string {
	if prefix == "" || prefix == "/" {
		return path
	}
	if prefix[len(prefix)-1] == '/' {
		return prefix[:len(prefix)-1] + path
	}
	return prefix + path
}

func split(p string, sep rune) []string {
	var parts []string
	cur := make([]rune, 0, len(p))
	// trim leading '/'
	for len(p) > 0 && p[0] == '/' {
		p = p[1:]
	}
	for _, r := range p {
		if r == sep {
			if len(cur) > 0 {
				parts = append(parts, string(cur))
				cur = cur[:0]
			}
			continue
		}
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		parts = append(parts, string(cur))
	}
	return parts
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{Code: code, Message: msg, Details: details})
}

// withCORS wraps a handler with a minimal CORS policy.
func withCORS(next http.Handler, origin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-Admin-API-Key")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit applies a simple token-bucket limiter per client key.
func withRateLimit(next http.Handler, rpm int, burst int) http.Handler {
	limiter := newRateLimiter(rpm, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !limiter.allow(key) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientKey uses the session token if present, otherwise remote IP.
func clientKey(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return token
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type rateLimiter struct {
	rpm   float64
	burst float64
	mu    sync.Mutex
	b     map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newRateLimiter(rpm, burst int) *rateLimiter {
	return &rateLimiter{
		rpm:   float64(rpm),
		burst: float64(burst),
		b:     make(map[string]*bucket),
	}
}

func (l *rateLimiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.b[key]
	if !ok {
		l.b[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}

	elapsed := now.Sub(b.last).Minutes()
	b.tokens += elapsed * l.rpm
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	if b.tokens < 1 {
		b.last = now
		return false
	}
	b.tokens--
	b.last = now
	return true
}
