package analytics

import (
	"sync/atomic"
	"time"

	"fwdefense/engine"
)

// Collector counts engine activity with atomics so the hot submission path
// never takes a lock.
type Collector struct {
	started              time.Time
	matchesCompleted     atomic.Int64
	flushes              atomic.Int64
	broadcastsSent       atomic.Int64
	broadcastsSuppressed atomic.Int64
}

func NewCollector() *Collector {
	return &Collector{started: time.Now()}
}

func (c *Collector) MatchCompleted()      { c.matchesCompleted.Add(1) }
func (c *Collector) FlushOccurred()       { c.flushes.Add(1) }
func (c *Collector) BroadcastSent()       { c.broadcastsSent.Add(1) }
func (c *Collector) BroadcastSuppressed() { c.broadcastsSuppressed.Add(1) }

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	UptimeSeconds        int64 `json:"uptimeSeconds"`
	MatchesCompleted     int64 `json:"matchesCompleted"`
	Flushes              int64 `json:"flushes"`
	BroadcastsSent       int64 `json:"broadcastsSent"`
	BroadcastsSuppressed int64 `json:"broadcastsSuppressed"`
}

func (c *Collector) Snapshot() Snapshot {
	return Snapshot{
		UptimeSeconds:        int64(time.Since(c.started).Seconds()),
		MatchesCompleted:     c.matchesCompleted.Load(),
		Flushes:              c.flushes.Load(),
		BroadcastsSent:       c.broadcastsSent.Load(),
		BroadcastsSuppressed: c.broadcastsSuppressed.Load(),
	}
}

var _ engine.Stats = (*Collector)(nil)
