package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"fwdefense/core"
)

const topSize = 3

// Stats receives operational counters from the service. Implementations
// must be safe for concurrent use.
type Stats interface {
	MatchCompleted()
	FlushOccurred()
	BroadcastSent()
	BroadcastSuppressed()
}

type nopStats struct{}

func (nopStats) MatchCompleted()      {}
func (nopStats) FlushOccurred()       {}
func (nopStats) BroadcastSent()       {}
func (nopStats) BroadcastSuppressed() {}

// NopPublisher discards every message. Useful for tests and tools that do
// not fan out updates.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, core.Message) error { return nil }

// Option configures a GameService.
type Option func(*GameService)

// WithClock overrides the wall-clock source, used by flush-scheduling tests.
func WithClock(now func() time.Time) Option {
	return func(g *GameService) {
		if now != nil {
			g.now = now
		}
	}
}

// WithStats wires an operational counter sink.
func WithStats(s Stats) Option {
	return func(g *GameService) {
		if s != nil {
			g.stats = s
		}
	}
}

// GameService wires storage, global state, and the broadcast channel into
// the game API: score submissions with lazy leaderboard flushing, the
// change-gated top-3 broadcast, profile management, and the admin surface.
type GameService struct {
	storage Storage
	state   StateStore
	pub     Publisher
	stats   Stats
	now     func() time.Time
}

func NewGameService(storage Storage, state StateStore, pub Publisher, opts ...Option) *GameService {
	if storage == nil || state == nil || pub == nil {
		panic("NewGameService requires non-nil storage, state, and publisher")
	}
	g := &GameService{
		storage: storage,
		state:   state,
		pub:     pub,
		stats:   nopStats{},
		now:     time.Now,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// SubmitScore applies a completed match's score delta to the player's
// cumulative total. The flush check runs first so the increment lands on a
// fresh baseline when the epoch expired; flushing after the increment would
// erase the submitting player's own score. Returns the new cumulative score.
func (g *GameService) SubmitScore(ctx context.Context, id core.PlayerID, delta int64) (int64, error) {
	id, err := core.NormalizePlayerID(id)
	if err != nil {
		return 0, err
	}
	if _, err := g.storage.GetPlayer(ctx, id); err != nil {
		return 0, err
	}

	// The interval is read fresh from the store on every evaluation; no
	// in-process copy that could drift across instances.
	st, err := g.storage.FlushState(ctx)
	if err != nil {
		return 0, fmt.Errorf("read flush state: %w", err)
	}
	now := g.now()

	flushed := false
	if st.Due(now) {
		if err := g.flushAll(ctx, now); err != nil {
			return 0, err
		}
		flushed = true
		last := now
		st.LastFlush = &last
	}

	var before []core.Entry
	if !flushed {
		before, err = g.storage.TopK(ctx, topSize)
		if err != nil {
			return 0, fmt.Errorf("read top entries: %w", err)
		}
	}

	total, err := g.storage.AddScore(ctx, id, delta)
	if err != nil {
		return 0, err
	}
	g.stats.MatchCompleted()

	after, err := g.storage.TopK(ctx, topSize)
	if err != nil {
		// The score change is the durable fact; the notification degrades.
		slog.Warn("top-3 snapshot after submit failed, skipping broadcast", "error", err)
		return total, nil
	}

	if flushed || topChanged(before, after) {
		g.broadcastLeaderboard(ctx, after, st, flushed)
	} else {
		g.stats.BroadcastSuppressed()
	}
	return total, nil
}

// topChanged compares positional (id, score) pairs. A board with the same
// scores in a different id order counts as changed.
func topChanged(before, after []core.Entry) bool {
	if len(before) != len(after) {
		return true
	}
	for i := range before {
		if before[i].ID != after[i].ID || before[i].Score != after[i].Score {
			return true
		}
	}
	return false
}

// flushAll resets the cumulative score of every ranked player, clears the
// ranking structure, and records the flush timestamp. The reset pass is
// best-effort per player: aborting mid-way would leave the ranking non-empty
// after a flush, which readers treat as an invariant violation.
func (g *GameService) flushAll(ctx context.Context, now time.Time) error {
	entries, err := g.storage.AllRanked(ctx)
	if err != nil {
		return fmt.Errorf("enumerate ranked players: %w", err)
	}
	for _, e := range entries {
		if err := g.storage.ResetScore(ctx, e.ID); err != nil {
			slog.Warn("score reset failed during flush", "player", e.ID, "error", err)
		}
	}
	if err := g.storage.ClearRanking(ctx); err != nil {
		return fmt.Errorf("clear ranking: %w", err)
	}
	if err := g.storage.SetLastFlush(ctx, now); err != nil {
		return fmt.Errorf("record flush timestamp: %w", err)
	}
	g.stats.FlushOccurred()
	slog.Info("leaderboard flushed", "players_reset", len(entries))
	return nil
}

// ForceFlush flushes unconditionally and always broadcasts, regardless of
// whether the board was already empty.
func (g *GameService) ForceFlush(ctx context.Context) error {
	now := g.now()
	if err := g.flushAll(ctx, now); err != nil {
		return err
	}
	st := core.FlushState{LastFlush: &now, IntervalMinutes: core.DefaultFlushIntervalMinutes}
	if fresh, err := g.storage.FlushState(ctx); err == nil {
		st = fresh
	}
	g.broadcastLeaderboard(ctx, nil, st, true)
	return nil
}

// SetFlushInterval persists a new interval, effective on the next flush
// evaluation. The last-flush timestamp is not recomputed.
func (g *GameService) SetFlushInterval(ctx context.Context, minutes int) error {
	if minutes < 1 {
		return ErrInvalidInterval
	}
	return g.storage.SetFlushInterval(ctx, minutes)
}

// FlushState returns the current flush scalars.
func (g *GameService) FlushState(ctx context.Context) (core.FlushState, error) {
	return g.storage.FlushState(ctx)
}

// TopK returns up to k raw ranking entries, best score first.
func (g *GameService) TopK(ctx context.Context, k int) ([]core.Entry, error) {
	return g.storage.TopK(ctx, k)
}

// LeaderboardView is the public leaderboard read model.
type LeaderboardView struct {
	Leaderboard          []core.RankedPlayer `json:"leaderboard"`
	LastFlush            *int64              `json:"lastFlush"`
	FlushIntervalMinutes int                 `json:"flushIntervalMinutes"`
}

// Leaderboard returns the enriched top-k plus the flush state so clients
// can render the countdown.
func (g *GameService) Leaderboard(ctx context.Context, k int) (LeaderboardView, error) {
	entries, err := g.storage.TopK(ctx, k)
	if err != nil {
		return LeaderboardView{}, err
	}
	st, err := g.storage.FlushState(ctx)
	if err != nil {
		return LeaderboardView{}, err
	}
	return LeaderboardView{
		Leaderboard:          g.enrich(ctx, entries, false),
		LastFlush:            st.LastFlushMillis(),
		FlushIntervalMinutes: st.IntervalMinutes,
	}, nil
}

// FullLeaderboard returns every ranked player with ids, for the admin panel.
func (g *GameService) FullLeaderboard(ctx context.Context) ([]core.RankedPlayer, error) {
	entries, err := g.storage.AllRanked(ctx)
	if err != nil {
		return nil, err
	}
	return g.enrich(ctx, entries, true), nil
}

// enrich attaches display metadata to ranking entries, substituting
// deterministic placeholders for anything unset or unreadable.
func (g *GameService) enrich(ctx context.Context, entries []core.Entry, includeID bool) []core.RankedPlayer {
	rows := make([]core.RankedPlayer, 0, len(entries))
	for _, e := range entries {
		row := core.RankedPlayer{
			Tagline: core.DefaultTagline(e.ID),
			Color:   core.DefaultColor,
			Score:   e.Score,
		}
		if includeID {
			row.ID = e.ID
		}
		if p, err := g.storage.GetPlayer(ctx, e.ID); err == nil {
			row.ProductName = p.ProductName
			if p.Tagline != "" {
				row.Tagline = p.Tagline
			}
			if p.Color != "" {
				row.Color = p.Color
			}
		}
		rows = append(rows, row)
	}
	return rows
}

func (g *GameService) broadcastLeaderboard(ctx context.Context, entries []core.Entry, st core.FlushState, flushed bool) {
	msg := core.NewLeaderboardUpdate(g.enrich(ctx, entries, false), st, flushed)
	if err := g.pub.Publish(ctx, msg); err != nil {
		slog.Warn("leaderboard broadcast failed", "error", err)
		return
	}
	g.stats.BroadcastSent()
}

// --- players ---

// Enroll creates the player record on first contact and touches the login
// timestamp on every subsequent one.
func (g *GameService) Enroll(ctx context.Context, id core.PlayerID) (core.Player, error) {
	id, err := core.NormalizePlayerID(id)
	if err != nil {
		return core.Player{}, err
	}
	now := g.now()
	p, err := g.storage.GetPlayer(ctx, id)
	switch {
	case errors.Is(err, ErrPlayerNotFound):
		p = core.Player{
			ID:          id,
			ProductName: core.DefaultProductName(id),
			Tagline:     "Your tagline here!",
			Color:       core.DefaultColor,
			LastLogin:   now,
		}
	case err != nil:
		return core.Player{}, err
	default:
		p.LastLogin = now
	}
	if err := g.storage.PutPlayer(ctx, p); err != nil {
		return core.Player{}, err
	}
	return p, nil
}

// Profile returns the player's record.
func (g *GameService) Profile(ctx context.Context, id core.PlayerID) (core.Player, error) {
	return g.storage.GetPlayer(ctx, id)
}

// SetupProfile applies the player-facing profile form. Tagline and color
// are required; the corporation name is optional and cleared when empty.
func (g *GameService) SetupProfile(ctx context.Context, id core.PlayerID, productName, tagline, color string) error {
	p, err := g.storage.GetPlayer(ctx, id)
	if err != nil {
		return err
	}
	limits := core.DefaultProfileLimits()
	if cfg, err := g.state.GameConfig(ctx); err == nil {
		limits = cfg.Validation
	}
	if err := limits.ValidateTagline(tagline); err != nil {
		return err
	}
	if err := limits.ValidateProductName(productName); err != nil {
		return err
	}
	if err := core.ValidateColor(color); err != nil {
		return err
	}
	p.ProductName = strings.TrimSpace(productName)
	p.Tagline = strings.TrimSpace(tagline)
	p.Color = strings.ToUpper(color)
	return g.storage.PutPlayer(ctx, p)
}

// ProfilePatch carries the admin-editable profile fields; nil leaves a
// field untouched.
type ProfilePatch struct {
	ProductName *string
	Tagline     *string
}

// UpdatePlayer applies an admin profile edit and notifies the player.
func (g *GameService) UpdatePlayer(ctx context.Context, id core.PlayerID, patch ProfilePatch) (core.Player, error) {
	p, err := g.storage.GetPlayer(ctx, id)
	if err != nil {
		return core.Player{}, err
	}
	limits := core.DefaultProfileLimits()
	if cfg, err := g.state.GameConfig(ctx); err == nil {
		limits = cfg.Validation
	}
	if patch.ProductName != nil {
		if err := limits.ValidateProductName(*patch.ProductName); err != nil {
			return core.Player{}, err
		}
		p.ProductName = strings.TrimSpace(*patch.ProductName)
	}
	if patch.Tagline != nil {
		if err := limits.ValidateTagline(*patch.Tagline); err != nil {
			return core.Player{}, err
		}
		p.Tagline = strings.TrimSpace(*patch.Tagline)
	}
	if err := g.storage.PutPlayer(ctx, p); err != nil {
		return core.Player{}, err
	}
	if patch.ProductName != nil || patch.Tagline != nil {
		g.publishBestEffort(ctx, core.NewProfileUpdated(p.ID, p.ProductName, p.Tagline))
	}
	return p, nil
}

// DeletePlayer removes the record and its ranking entry, then pushes the
// deletion and a refreshed leaderboard to live viewers.
func (g *GameService) DeletePlayer(ctx context.Context, id core.PlayerID) error {
	if _, err := g.storage.GetPlayer(ctx, id); err != nil {
		return err
	}
	if err := g.storage.DeletePlayer(ctx, id); err != nil {
		return err
	}
	if err := g.storage.RemoveFromRanking(ctx, id); err != nil {
		slog.Warn("ranking removal failed after player delete", "player", id, "error", err)
	}
	g.publishBestEffort(ctx, core.NewPlayerDeleted(id))
	if entries, err := g.storage.TopK(ctx, topSize); err == nil {
		if st, err := g.storage.FlushState(ctx); err == nil {
			g.broadcastLeaderboard(ctx, entries, st, false)
		}
	}
	return nil
}

// DeleteAllPlayers wipes every record and the ranking, returning how many
// players were removed.
func (g *GameService) DeleteAllPlayers(ctx context.Context) (int, error) {
	players, err := g.storage.ListPlayers(ctx)
	if err != nil {
		return 0, err
	}
	for _, p := range players {
		if err := g.storage.DeletePlayer(ctx, p.ID); err != nil {
			slog.Warn("player delete failed during wipe", "player", p.ID, "error", err)
			continue
		}
		g.publishBestEffort(ctx, core.NewPlayerDeleted(p.ID))
	}
	if err := g.storage.ClearRanking(ctx); err != nil {
		return len(players), err
	}
	if st, err := g.storage.FlushState(ctx); err == nil {
		g.broadcastLeaderboard(ctx, nil, st, false)
	}
	return len(players), nil
}

// BulkDeletePlayers removes the given ids, reporting which existed.
func (g *GameService) BulkDeletePlayers(ctx context.Context, ids []core.PlayerID) (deleted, notFound []core.PlayerID, err error) {
	deleted = []core.PlayerID{}
	notFound = []core.PlayerID{}
	for _, id := range ids {
		if _, err := g.storage.GetPlayer(ctx, id); errors.Is(err, ErrPlayerNotFound) {
			notFound = append(notFound, id)
			continue
		} else if err != nil {
			return deleted, notFound, err
		}
		if err := g.storage.DeletePlayer(ctx, id); err != nil {
			return deleted, notFound, err
		}
		if err := g.storage.RemoveFromRanking(ctx, id); err != nil {
			slog.Warn("ranking removal failed during bulk delete", "player", id, "error", err)
		}
		deleted = append(deleted, id)
		g.publishBestEffort(ctx, core.NewPlayerDeleted(id))
	}
	return deleted, notFound, nil
}

// PlayerPage is one page of the admin player list.
type PlayerPage struct {
	Players    []core.Player `json:"players"`
	Page       int           `json:"page"`
	Limit      int           `json:"limit"`
	Total      int           `json:"total"`
	TotalPages int           `json:"totalPages"`
}

// ListPlayers returns a lastLogin-descending page, optionally filtered by a
// case-insensitive search over id, corporation name, and tagline.
func (g *GameService) ListPlayers(ctx context.Context, page, limit int, search string) (PlayerPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	players, err := g.storage.ListPlayers(ctx)
	if err != nil {
		return PlayerPage{}, err
	}
	if q := strings.ToLower(strings.TrimSpace(search)); q != "" {
		filtered := players[:0]
		for _, p := range players {
			if strings.Contains(strings.ToLower(string(p.ID)), q) ||
				strings.Contains(strings.ToLower(p.ProductName), q) ||
				strings.Contains(strings.ToLower(p.Tagline), q) {
				filtered = append(filtered, p)
			}
		}
		players = filtered
	}
	sort.Slice(players, func(i, j int) bool {
		return players[i].LastLogin.After(players[j].LastLogin)
	})
	total := len(players)
	totalPages := (total + limit - 1) / limit
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return PlayerPage{
		Players:    players[start:end],
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}

// --- firewall health ---

// FirewallHealth returns the current and maximum global health.
func (g *GameService) FirewallHealth(ctx context.Context) (health, max int64, err error) {
	health, err = g.state.Health(ctx)
	if err != nil {
		return 0, 0, err
	}
	max, err = g.state.MaxHealth(ctx)
	if err != nil {
		return 0, 0, err
	}
	return health, max, nil
}

// ApplyFirewallDamage shifts global health by the match score: negative
// scores chip the firewall down (floored at 0), positive ones repair it
// (capped at max). The new value is broadcast best-effort.
func (g *GameService) ApplyFirewallDamage(ctx context.Context, delta int64) (int64, error) {
	health, max, err := g.FirewallHealth(ctx)
	if err != nil {
		return 0, err
	}
	next := health + delta
	if next < 0 {
		next = 0
	}
	if next > max {
		next = max
	}
	if err := g.state.SetHealth(ctx, next); err != nil {
		return 0, err
	}
	g.publishBestEffort(ctx, core.NewHealthUpdate(next))
	return next, nil
}

// SetFirewallHealth force-sets health, clamped to [0, max].
func (g *GameService) SetFirewallHealth(ctx context.Context, v int64) (int64, error) {
	_, max, err := g.FirewallHealth(ctx)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		v = 0
	}
	if v > max {
		v = max
	}
	if err := g.state.SetHealth(ctx, v); err != nil {
		return 0, err
	}
	g.publishBestEffort(ctx, core.NewHealthUpdate(v))
	return v, nil
}

// SetMaxFirewallHealth updates the ceiling and caps current health to it.
func (g *GameService) SetMaxFirewallHealth(ctx context.Context, v int64) error {
	if v < 1 {
		return errors.New("max health must be at least 1")
	}
	if err := g.state.SetMaxHealth(ctx, v); err != nil {
		return err
	}
	health, err := g.state.Health(ctx)
	if err != nil {
		return err
	}
	if health > v {
		if err := g.state.SetHealth(ctx, v); err != nil {
			return err
		}
		g.publishBestEffort(ctx, core.NewHealthUpdate(v))
	}
	return nil
}

// --- motd / game config ---

// MOTD returns the persisted message of the day, empty when unset.
func (g *GameService) MOTD(ctx context.Context) (string, error) {
	return g.state.MOTD(ctx)
}

// BroadcastMOTD persists the message and pushes it to live viewers. The
// persisted message is the durable fact; a failed push is logged only.
func (g *GameService) BroadcastMOTD(ctx context.Context, message string) error {
	if strings.TrimSpace(message) == "" {
		return errors.New("message is required")
	}
	if err := g.state.SetMOTD(ctx, message); err != nil {
		return err
	}
	g.publishBestEffort(ctx, core.NewMOTD("MESSAGE FROM ADMIN: "+message))
	return nil
}

// GameConfig returns the remote game configuration.
func (g *GameService) GameConfig(ctx context.Context) (core.GameConfig, error) {
	return g.state.GameConfig(ctx)
}

// SetGameConfig validates and persists an admin config update.
func (g *GameService) SetGameConfig(ctx context.Context, cfg core.GameConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return g.state.SetGameConfig(ctx, cfg)
}

func (g *GameService) publishBestEffort(ctx context.Context, msg core.Message) {
	if err := g.pub.Publish(ctx, msg); err != nil {
		slog.Warn("broadcast failed", "type", msg.MessageType(), "error", err)
	}
}
