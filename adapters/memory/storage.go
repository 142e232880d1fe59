package memory

import (
	"context"
	"sync"
	"time"

	"fwdefense/core"
	"fwdefense/engine"
	"fwdefense/leaderboard"
)

// Store is a concurrent in-memory implementation of the engine storage
// interfaces, used by tests and single-process development runs. The
// ranking structure is a skip list; production deployments use Redis.
type Store struct {
	mu      sync.RWMutex
	players map[core.PlayerID]core.Player
	board   *leaderboard.SkipList

	lastFlush       *time.Time
	intervalMinutes int

	health    int64
	maxHealth int64
	motd      string
	gameCfg   *core.GameConfig

	sessions map[string]session
}

type session struct {
	id      core.PlayerID
	expires time.Time
}

const (
	defaultHealth    = 100
	defaultMaxHealth = 1000
)

func New() *Store {
	return &Store{
		players:   map[core.PlayerID]core.Player{},
		board:     leaderboard.NewSkipList(),
		health:    defaultHealth,
		maxHealth: defaultMaxHealth,
		sessions:  map[string]session{},
	}
}

// --- players ---

func (s *Store) PutPlayer(_ context.Context, p core.Player) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players[p.ID] = p
	return nil
}

func (s *Store) GetPlayer(_ context.Context, id core.PlayerID) (core.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return core.Player{}, engine.ErrPlayerNotFound
	}
	return p, nil
}

func (s *Store) DeletePlayer(_ context.Context, id core.PlayerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.players, id)
	return nil
}

func (s *Store) ListPlayers(_ context.Context) ([]core.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	return out, nil
}

// --- scores / ranking ---

func (s *Store) AddScore(_ context.Context, id core.PlayerID, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return 0, engine.ErrPlayerNotFound
	}
	p.TotalScore += delta
	s.players[id] = p
	s.board.Upsert(id, p.TotalScore)
	return p.TotalScore, nil
}

func (s *Store) ResetScore(_ context.Context, id core.PlayerID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return engine.ErrPlayerNotFound
	}
	p.TotalScore = 0
	s.players[id] = p
	return nil
}

func (s *Store) TopK(_ context.Context, k int) ([]core.Entry, error) {
	return s.board.TopN(k), nil
}

func (s *Store) AllRanked(_ context.Context) ([]core.Entry, error) {
	return s.board.All(), nil
}

func (s *Store) RemoveFromRanking(_ context.Context, id core.PlayerID) error {
	s.board.Remove(id)
	return nil
}

func (s *Store) ClearRanking(_ context.Context) error {
	s.board.Clear()
	return nil
}

// --- flush state ---

func (s *Store) FlushState(_ context.Context) (core.FlushState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := core.FlushState{IntervalMinutes: s.intervalMinutes}
	if st.IntervalMinutes == 0 {
		st.IntervalMinutes = core.DefaultFlushIntervalMinutes
	}
	if s.lastFlush != nil {
		t := *s.lastFlush
		st.LastFlush = &t
	}
	return st, nil
}

func (s *Store) SetLastFlush(_ context.Context, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFlush = &t
	return nil
}

func (s *Store) SetFlushInterval(_ context.Context, minutes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intervalMinutes = minutes
	return nil
}

// --- global state ---

func (s *Store) Health(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.health, nil
}

func (s *Store) SetHealth(_ context.Context, v int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health = v
	return nil
}

func (s *Store) MaxHealth(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxHealth, nil
}

func (s *Store) SetMaxHealth(_ context.Context, v int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxHealth = v
	return nil
}

func (s *Store) MOTD(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.motd, nil
}

func (s *Store) SetMOTD(_ context.Context, msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.motd = msg
	return nil
}

func (s *Store) GameConfig(_ context.Context) (core.GameConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.gameCfg == nil {
		return core.DefaultGameConfig(), nil
	}
	return *s.gameCfg, nil
}

func (s *Store) SetGameConfig(_ context.Context, cfg core.GameConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gameCfg = &cfg
	return nil
}

// --- sessions ---

func (s *Store) PutSession(_ context.Context, token string, id core.PlayerID, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = session{id: id, expires: time.Now().Add(ttl)}
	return nil
}

func (s *Store) GetSession(_ context.Context, token string) (core.PlayerID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return "", engine.ErrSessionNotFound
	}
	if time.Now().After(sess.expires) {
		delete(s.sessions, token)
		return "", engine.ErrSessionNotFound
	}
	return sess.id, nil
}

var (
	_ engine.Storage      = (*Store)(nil)
	_ engine.StateStore   = (*Store)(nil)
	_ engine.SessionStore = (*Store)(nil)
)
