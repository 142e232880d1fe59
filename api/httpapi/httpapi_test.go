package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	mem "fwdefense/adapters/memory"
	"fwdefense/analytics"
	"fwdefense/engine"
)

func newTestHandler(t *testing.T, opts Options) (http.Handler, *mem.Store) {
	t.Helper()
	store := mem.New()
	svc := engine.NewGameService(store, store, engine.NopPublisher{})
	return NewMux(svc, store, nil, analytics.NewCollector(), opts), store
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string, header map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rdr *strings.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	} else {
		rdr = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, rdr)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

// enroll registers a player and returns the session header map.
func enroll(t *testing.T, handler http.Handler, id string) map[string]string {
	t.Helper()
	rec, resp := doJSON(t, handler, http.MethodPost, "/api/auth/enroll", `{"uuid":"`+id+`"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("enroll: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	token, _ := resp["token"].(string)
	if token == "" {
		t.Fatal("enroll: no token in response")
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestEnrollIssuesSession(t *testing.T) {
	handler, _ := newTestHandler(t, Options{PathPrefix: "/api"})
	auth := enroll(t, handler, "alice")

	rec, resp := doJSON(t, handler, http.MethodGet, "/api/player/profile", "", auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp["uuid"] != "alice" {
		t.Fatalf("unexpected profile: %v", resp)
	}
}

func TestProfileRequiresSession(t *testing.T) {
	handler, _ := newTestHandler(t, Options{PathPrefix: "/api"})

	rec, _ := doJSON(t, handler, http.MethodGet, "/api/player/profile", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec, _ = doJSON(t, handler, http.MethodGet, "/api/player/profile", "",
		map[string]string{"Authorization": "Bearer bogus"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bogus token, got %d", rec.Code)
	}
}

func TestMatchComplete(t *testing.T) {
	handler, _ := newTestHandler(t, Options{PathPrefix: "/api"})
	auth := enroll(t, handler, "alice")

	rec, resp := doJSON(t, handler, http.MethodPost, "/api/match/complete", `{"score":100}`, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp["totalScore"] != float64(100) {
		t.Fatalf("expected totalScore 100, got %v", resp["totalScore"])
	}

	rec, resp = doJSON(t, handler, http.MethodPost, "/api/match/complete", `{"score":50}`, auth)
	if rec.Code != http.StatusOK || resp["totalScore"] != float64(150) {
		t.Fatalf("expected totalScore 150, got %d %v", rec.Code, resp["totalScore"])
	}

	rec, _ = doJSON(t, handler, http.MethodPost, "/api/match/complete", `{"score":"bad"}`, auth)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestLeaderboardRead(t *testing.T) {
	handler, _ := newTestHandler(t, Options{PathPrefix: "/api"})
	auth := enroll(t, handler, "alice")
	doJSON(t, handler, http.MethodPost, "/api/match/complete", `{"score":100}`, auth)

	rec, resp := doJSON(t, handler, http.MethodGet, "/api/leaderboard", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	rows, ok := resp["leaderboard"].([]any)
	if !ok || len(rows) != 1 {
		t.Fatalf("unexpected leaderboard: %v", resp)
	}
	if _, present := resp["flushIntervalMinutes"]; !present {
		t.Fatalf("missing flush interval: %v", resp)
	}

	rec, _ = doJSON(t, handler, http.MethodGet, "/api/leaderboard?limit=0", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestSetupProfile(t *testing.T) {
	handler, _ := newTestHandler(t, Options{PathPrefix: "/api"})
	auth := enroll(t, handler, "alice")

	rec, resp := doJSON(t, handler, http.MethodPost, "/api/player/setup",
		`{"productName":"Acme","tagline":"we defend","color":"#ff0000"}`, auth)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if resp["color"] != "#FF0000" {
		t.Fatalf("color not normalized: %v", resp["color"])
	}

	rec, _ = doJSON(t, handler, http.MethodPost, "/api/player/setup",
		`{"tagline":"ok","color":"red"}`, auth)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad color, got %d", rec.Code)
	}
}

func TestAdminRequiresKey(t *testing.T) {
	handler, _ := newTestHandler(t, Options{PathPrefix: "/api", AdminAPIKey: "secret"})

	rec, _ := doJSON(t, handler, http.MethodGet, "/api/admin/leaderboard", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}

	rec, _ = doJSON(t, handler, http.MethodGet, "/api/admin/leaderboard", "",
		map[string]string{"X-Admin-API-Key": "secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAdminFlushAndInterval(t *testing.T) {
	handler, _ := newTestHandler(t, Options{PathPrefix: "/api", AdminAPIKey: "secret"})
	admin := map[string]string{"X-Admin-API-Key": "secret"}
	auth := enroll(t, handler, "alice")
	doJSON(t, handler, http.MethodPost, "/api/match/complete", `{"score":100}`, auth)

	rec, _ := doJSON(t, handler, http.MethodDelete, "/api/admin/leaderboard", "", admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("flush: expected 200, got %d", rec.Code)
	}
	_, resp := doJSON(t, handler, http.MethodGet, "/api/leaderboard", "", nil)
	if rows := resp["leaderboard"].([]any); len(rows) != 0 {
		t.Fatalf("leaderboard not flushed: %v", rows)
	}

	rec, _ = doJSON(t, handler, http.MethodPost, "/api/admin/leaderboard-flush-interval",
		`{"minutes":0}`, admin)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid interval, got %d", rec.Code)
	}
	rec, resp = doJSON(t, handler, http.MethodPost, "/api/admin/leaderboard-flush-interval",
		`{"minutes":15}`, admin)
	if rec.Code != http.StatusOK || resp["flushIntervalMinutes"] != float64(15) {
		t.Fatalf("set interval: %d %v", rec.Code, resp)
	}
}

func TestAdminPlayers(t *testing.T) {
	handler, _ := newTestHandler(t, Options{PathPrefix: "/api", AdminAPIKey: "secret"})
	admin := map[string]string{"X-Admin-API-Key": "secret"}
	enroll(t, handler, "alice")
	enroll(t, handler, "bob")

	_, resp := doJSON(t, handler, http.MethodGet, "/api/admin/players?page=1&limit=10", "", admin)
	if resp["total"] != float64(2) {
		t.Fatalf("expected 2 players, got %v", resp["total"])
	}

	rec, resp := doJSON(t, handler, http.MethodPut, "/api/admin/players/alice",
		`{"tagline":"edited"}`, admin)
	if rec.Code != http.StatusOK || resp["tagline"] != "edited" {
		t.Fatalf("update: %d %v", rec.Code, resp)
	}

	rec, _ = doJSON(t, handler, http.MethodDelete, "/api/admin/players/bob", "", admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}
	rec, _ = doJSON(t, handler, http.MethodDelete, "/api/admin/players/bob", "", admin)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for repeat delete, got %d", rec.Code)
	}

	rec, resp = doJSON(t, handler, http.MethodPost, "/api/admin/players/bulk-delete",
		`{"uuids":["alice","ghost"]}`, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("bulk delete: expected 200, got %d", rec.Code)
	}
	if deleted := resp["deleted"].([]any); len(deleted) != 1 {
		t.Fatalf("expected one deleted, got %v", resp)
	}
	if notFound := resp["notFound"].([]any); len(notFound) != 1 {
		t.Fatalf("expected one notFound, got %v", resp)
	}
}

func TestAdminStats(t *testing.T) {
	store := mem.New()
	stats := analytics.NewCollector()
	svc := engine.NewGameService(store, store, engine.NopPublisher{}, engine.WithStats(stats))
	handler := NewMux(svc, store, nil, stats, Options{PathPrefix: "/api", AdminAPIKey: "secret"})
	admin := map[string]string{"X-Admin-API-Key": "secret"}

	auth := enroll(t, handler, "alice")
	doJSON(t, handler, http.MethodPost, "/api/match/complete", `{"score":10}`, auth)

	_, resp := doJSON(t, handler, http.MethodGet, "/api/admin/stats", "", admin)
	if resp["matchesCompleted"] != float64(1) {
		t.Fatalf("unexpected stats: %v", resp)
	}
}

func TestRateLimit(t *testing.T) {
	handler, _ := newTestHandler(t, Options{
		PathPrefix:       "/api",
		RateLimitEnabled: true,
		RateLimitRPM:     1,
		RateLimitBurst:   1,
	})

	rec, _ := doJSON(t, handler, http.MethodGet, "/api/motd", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 first request, got %d", rec.Code)
	}
	rec, _ = doJSON(t, handler, http.MethodGet, "/api/motd", "", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	handler, _ := newTestHandler(t, Options{PathPrefix: "/api"})
	rec, resp := doJSON(t, handler, http.MethodGet, "/api/healthz", "", nil)
	if rec.Code != http.StatusOK || resp["status"] != "healthy" {
		t.Fatalf("healthz: %d %v", rec.Code, resp)
	}
}
