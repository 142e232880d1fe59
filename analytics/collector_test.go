package analytics

import (
	"sync"
	"testing"
)

func TestCollectorCounts(t *testing.T) {
	c := NewCollector()
	c.MatchCompleted()
	c.MatchCompleted()
	c.FlushOccurred()
	c.BroadcastSent()
	c.BroadcastSuppressed()

	s := c.Snapshot()
	if s.MatchesCompleted != 2 || s.Flushes != 1 || s.BroadcastsSent != 1 || s.BroadcastsSuppressed != 1 {
		t.Fatalf("unexpected snapshot: %+v", s)
	}
}

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.MatchCompleted()
		}()
	}
	wg.Wait()
	if got := c.Snapshot().MatchesCompleted; got != 50 {
		t.Fatalf("matches %d", got)
	}
}
