package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fwdefense/core"
	"fwdefense/engine"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Store implements the engine storage interfaces using Redis as the backend.
// Data structure:
// - player:{uuid} -> hash {uuid, productName, tagline, color, totalScore, lastLogin}
// - leaderboard -> sorted set of uuid scored by totalScore
// - leaderboard_last_flush -> unix millis of the last flush
// - leaderboard_flush_interval_minutes -> int
// - global_health / global_max_health -> int64
// - global_motd -> string
// - game_config -> JSON blob of core.GameConfig
// - session:{token} -> uuid, with TTL
type Store struct {
	client *redis.Client
}

// New creates a new Redis-backed storage with the provided configuration
func New(config Config) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

// NewWithClient creates a Store using an existing Redis client (useful for testing)
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Client exposes the underlying connection so pub/sub components can share
// the pool instead of dialing their own.
func (s *Store) Client() *redis.Client {
	return s.client
}

const (
	leaderboardKey   = "leaderboard"
	lastFlushKey     = "leaderboard_last_flush"
	flushIntervalKey = "leaderboard_flush_interval_minutes"
	healthKey        = "global_health"
	maxHealthKey     = "global_max_health"
	motdKey          = "global_motd"
	gameConfigKey    = "game_config"
)

// playerKey generates the Redis key for a player record
func playerKey(id core.PlayerID) string {
	return fmt.Sprintf("player:%s", id)
}

// sessionKey generates the Redis key for a session token
func sessionKey(token string) string {
	return fmt.Sprintf("session:%s", token)
}

// --- players ---

func (s *Store) PutPlayer(ctx context.Context, p core.Player) error {
	err := s.client.HSet(ctx, playerKey(p.ID), map[string]interface{}{
		"uuid":        string(p.ID),
		"productName": p.ProductName,
		"tagline":     p.Tagline,
		"color":       p.Color,
		"totalScore":  p.TotalScore,
		"lastLogin":   p.LastLogin.UnixMilli(),
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to store player: %w", err)
	}
	return nil
}

func (s *Store) GetPlayer(ctx context.Context, id core.PlayerID) (core.Player, error) {
	fields, err := s.client.HGetAll(ctx, playerKey(id)).Result()
	if err != nil {
		return core.Player{}, fmt.Errorf("failed to read player: %w", err)
	}
	if len(fields) == 0 {
		return core.Player{}, engine.ErrPlayerNotFound
	}
	return playerFromHash(id, fields), nil
}

func (s *Store) DeletePlayer(ctx context.Context, id core.PlayerID) error {
	if err := s.client.Del(ctx, playerKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete player: %w", err)
	}
	return nil
}

func (s *Store) ListPlayers(ctx context.Context) ([]core.Player, error) {
	keys, err := s.client.Keys(ctx, "player:*").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list player keys: %w", err)
	}

	players := make([]core.Player, 0, len(keys))
	for _, key := range keys {
		fields, err := s.client.HGetAll(ctx, key).Result()
		if err != nil || len(fields) == 0 {
			continue // key expired or unreadable mid-scan
		}
		id := core.PlayerID(strings.TrimPrefix(key, "player:"))
		players = append(players, playerFromHash(id, fields))
	}
	return players, nil
}

// playerFromHash maps a player hash onto the core record. Unparseable
// numeric fields fall back to their zero values.
func playerFromHash(id core.PlayerID, fields map[string]string) core.Player {
	p := core.Player{
		ID:          id,
		ProductName: fields["productName"],
		Tagline:     fields["tagline"],
		Color:       fields["color"],
	}
	if v, err := strconv.ParseInt(fields["totalScore"], 10, 64); err == nil {
		p.TotalScore = v
	}
	if ms, err := strconv.ParseInt(fields["lastLogin"], 10, 64); err == nil {
		p.LastLogin = time.UnixMilli(ms).UTC()
	}
	return p
}

// --- scores / ranking ---

// Lua script keeping the player hash and the ranking sorted set in lockstep.
// Running both writes in one script means no observer can ever see the hash
// total and the ZSET score disagree.
var addScoreScript = redis.NewScript(`
	if redis.call('EXISTS', KEYS[1]) == 0 then
		return redis.error_reply('player not found')
	end
	local total = redis.call('HINCRBY', KEYS[1], 'totalScore', ARGV[1])
	redis.call('ZADD', KEYS[2], total, ARGV[2])
	return total
`)

// AddScore atomically increments the cumulative score and upserts the
// ranking entry to the same value, returning the new total.
func (s *Store) AddScore(ctx context.Context, id core.PlayerID, delta int64) (int64, error) {
	result, err := addScoreScript.Run(ctx, s.client,
		[]string{playerKey(id), leaderboardKey}, delta, string(id)).Result()
	if err != nil {
		if strings.Contains(err.Error(), "player not found") {
			return 0, engine.ErrPlayerNotFound
		}
		return 0, fmt.Errorf("failed to add score: %w", err)
	}

	total, ok := result.(int64)
	if !ok {
		return 0, errors.New("unexpected result type from Redis script")
	}
	return total, nil
}

func (s *Store) ResetScore(ctx context.Context, id core.PlayerID) error {
	exists, err := s.client.Exists(ctx, playerKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to check player: %w", err)
	}
	if exists == 0 {
		return engine.ErrPlayerNotFound
	}
	if err := s.client.HSet(ctx, playerKey(id), "totalScore", 0).Err(); err != nil {
		return fmt.Errorf("failed to reset score: %w", err)
	}
	return nil
}

func (s *Store) TopK(ctx context.Context, k int) ([]core.Entry, error) {
	if k < 1 {
		return nil, nil
	}
	return s.rankedRange(ctx, 0, int64(k-1))
}

func (s *Store) AllRanked(ctx context.Context) ([]core.Entry, error) {
	return s.rankedRange(ctx, 0, -1)
}

func (s *Store) rankedRange(ctx context.Context, start, stop int64) ([]core.Entry, error) {
	members, err := s.client.ZRevRangeWithScores(ctx, leaderboardKey, start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read ranking: %w", err)
	}
	entries := make([]core.Entry, 0, len(members))
	for _, m := range members {
		id, ok := m.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, core.Entry{ID: core.PlayerID(id), Score: int64(m.Score)})
	}
	return entries, nil
}

func (s *Store) RemoveFromRanking(ctx context.Context, id core.PlayerID) error {
	if err := s.client.ZRem(ctx, leaderboardKey, string(id)).Err(); err != nil {
		return fmt.Errorf("failed to remove ranking entry: %w", err)
	}
	return nil
}

func (s *Store) ClearRanking(ctx context.Context) error {
	if err := s.client.Del(ctx, leaderboardKey).Err(); err != nil {
		return fmt.Errorf("failed to clear ranking: %w", err)
	}
	return nil
}

// --- flush state ---

func (s *Store) FlushState(ctx context.Context) (core.FlushState, error) {
	st := core.FlushState{IntervalMinutes: core.DefaultFlushIntervalMinutes}

	ms, err := s.client.Get(ctx, lastFlushKey).Int64()
	switch {
	case err == nil:
		t := time.UnixMilli(ms).UTC()
		st.LastFlush = &t
	case !errors.Is(err, redis.Nil):
		return core.FlushState{}, fmt.Errorf("failed to read last flush: %w", err)
	}

	interval, err := s.client.Get(ctx, flushIntervalKey).Int()
	switch {
	case err == nil && interval > 0:
		st.IntervalMinutes = interval
	case err != nil && !errors.Is(err, redis.Nil):
		return core.FlushState{}, fmt.Errorf("failed to read flush interval: %w", err)
	}
	return st, nil
}

func (s *Store) SetLastFlush(ctx context.Context, t time.Time) error {
	if err := s.client.Set(ctx, lastFlushKey, t.UnixMilli(), 0).Err(); err != nil {
		return fmt.Errorf("failed to record last flush: %w", err)
	}
	return nil
}

func (s *Store) SetFlushInterval(ctx context.Context, minutes int) error {
	if err := s.client.Set(ctx, flushIntervalKey, minutes, 0).Err(); err != nil {
		return fmt.Errorf("failed to set flush interval: %w", err)
	}
	return nil
}

// --- global state ---

const (
	defaultHealth    = 100
	defaultMaxHealth = 1000
)

func (s *Store) Health(ctx context.Context) (int64, error) {
	return s.getInt64(ctx, healthKey, defaultHealth)
}

func (s *Store) SetHealth(ctx context.Context, v int64) error {
	if err := s.client.Set(ctx, healthKey, v, 0).Err(); err != nil {
		return fmt.Errorf("failed to set health: %w", err)
	}
	return nil
}

func (s *Store) MaxHealth(ctx context.Context) (int64, error) {
	return s.getInt64(ctx, maxHealthKey, defaultMaxHealth)
}

func (s *Store) SetMaxHealth(ctx context.Context, v int64) error {
	if err := s.client.Set(ctx, maxHealthKey, v, 0).Err(); err != nil {
		return fmt.Errorf("failed to set max health: %w", err)
	}
	return nil
}

func (s *Store) getInt64(ctx context.Context, key string, fallback int64) (int64, error) {
	v, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return fallback, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) MOTD(ctx context.Context) (string, error) {
	v, err := s.client.Get(ctx, motdKey).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read motd: %w", err)
	}
	return v, nil
}

func (s *Store) SetMOTD(ctx context.Context, msg string) error {
	if err := s.client.Set(ctx, motdKey, msg, 0).Err(); err != nil {
		return fmt.Errorf("failed to set motd: %w", err)
	}
	return nil
}

func (s *Store) GameConfig(ctx context.Context) (core.GameConfig, error) {
	data, err := s.client.Get(ctx, gameConfigKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.DefaultGameConfig(), nil
	}
	if err != nil {
		return core.GameConfig{}, fmt.Errorf("failed to read game config: %w", err)
	}
	var cfg core.GameConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return core.GameConfig{}, fmt.Errorf("failed to decode game config: %w", err)
	}
	return cfg, nil
}

func (s *Store) SetGameConfig(ctx context.Context, cfg core.GameConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode game config: %w", err)
	}
	if err := s.client.Set(ctx, gameConfigKey, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to store game config: %w", err)
	}
	return nil
}

// --- sessions ---

func (s *Store) PutSession(ctx context.Context, token string, id core.PlayerID, ttl time.Duration) error {
	if err := s.client.Set(ctx, sessionKey(token), string(id), ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, token string) (core.PlayerID, error) {
	v, err := s.client.Get(ctx, sessionKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return "", engine.ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read session: %w", err)
	}
	return core.PlayerID(v), nil
}

var (
	_ engine.Storage      = (*Store)(nil)
	_ engine.StateStore   = (*Store)(nil)
	_ engine.SessionStore = (*Store)(nil)
)
