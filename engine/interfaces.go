package engine

import (
	"context"
	"errors"
	"time"

	"fwdefense/core"
)

// ErrPlayerNotFound is returned when an operation references an unknown
// player id. Score submissions must never create a phantom ranking entry.
var ErrPlayerNotFound = errors.New("player not found")

// ErrInvalidInterval is returned for flush intervals below one minute.
var ErrInvalidInterval = errors.New("flush interval must be at least 1 minute")

// ErrSessionNotFound is returned for unknown or expired session tokens.
var ErrSessionNotFound = errors.New("session not found")

// Storage abstracts persistence for player records, cumulative scores, the
// ranking structure, and the flush scalars. Every id in the ranking has a
// player record; a zero-score player may be absent from the ranking.
type Storage interface {
	PutPlayer(ctx context.Context, p core.Player) error
	GetPlayer(ctx context.Context, id core.PlayerID) (core.Player, error)
	DeletePlayer(ctx context.Context, id core.PlayerID) error
	ListPlayers(ctx context.Context) ([]core.Player, error)

	// AddScore atomically increments the player's cumulative score and
	// upserts the ranking entry to the same value, returning the new total.
	AddScore(ctx context.Context, id core.PlayerID, delta int64) (int64, error)
	// ResetScore sets the player's cumulative score back to zero without
	// touching the ranking structure.
	ResetScore(ctx context.Context, id core.PlayerID) error

	TopK(ctx context.Context, k int) ([]core.Entry, error)
	AllRanked(ctx context.Context) ([]core.Entry, error)
	RemoveFromRanking(ctx context.Context, id core.PlayerID) error
	ClearRanking(ctx context.Context) error

	FlushState(ctx context.Context) (core.FlushState, error)
	SetLastFlush(ctx context.Context, t time.Time) error
	SetFlushInterval(ctx context.Context, minutes int) error
}

// StateStore holds the global scalars outside the leaderboard core: the
// firewall health pair, the message of the day, and the game config blob.
type StateStore interface {
	Health(ctx context.Context) (int64, error)
	SetHealth(ctx context.Context, v int64) error
	MaxHealth(ctx context.Context) (int64, error)
	SetMaxHealth(ctx context.Context, v int64) error

	MOTD(ctx context.Context) (string, error)
	SetMOTD(ctx context.Context, msg string) error

	GameConfig(ctx context.Context) (core.GameConfig, error)
	SetGameConfig(ctx context.Context, cfg core.GameConfig) error
}

// SessionStore maps opaque bearer tokens to player ids with a TTL.
type SessionStore interface {
	PutSession(ctx context.Context, token string, id core.PlayerID, ttl time.Duration) error
	GetSession(ctx context.Context, token string) (core.PlayerID, error)
}

// Publisher delivers broadcast messages to live viewers. Fire-and-forget,
// at-most-once: no acknowledgement is awaited and failures never fail the
// triggering operation.
type Publisher interface {
	Publish(ctx context.Context, msg core.Message) error
}

// MultiPublisher fans each message out to every wrapped publisher. Delivery
// is attempted on all of them even when one fails.
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, msg core.Message) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
