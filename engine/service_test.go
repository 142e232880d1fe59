package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mem "fwdefense/adapters/memory"
	"fwdefense/core"
	"fwdefense/engine"
)

// capturePublisher records everything published for later inspection.
type capturePublisher struct {
	msgs []core.Message
}

func (c *capturePublisher) Publish(_ context.Context, m core.Message) error {
	c.msgs = append(c.msgs, m)
	return nil
}

func (c *capturePublisher) leaderboardUpdates() []core.LeaderboardUpdate {
	var out []core.LeaderboardUpdate
	for _, m := range c.msgs {
		if lu, ok := m.(core.LeaderboardUpdate); ok {
			out = append(out, lu)
		}
	}
	return out
}

func (c *capturePublisher) reset() { c.msgs = nil }

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, core.Message) error {
	return errors.New("broker down")
}

type fixture struct {
	svc   *engine.GameService
	store *mem.Store
	pub   *capturePublisher
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: mem.New(),
		pub:   &capturePublisher{},
		now:   time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = engine.NewGameService(f.store, f.store, f.pub,
		engine.WithClock(func() time.Time { return f.now }))
	return f
}

// startEpoch marks a flush at the current test clock so submissions do not
// trigger the never-flushed lazy flush.
func (f *fixture) startEpoch(t *testing.T) {
	t.Helper()
	require.NoError(t, f.store.SetLastFlush(context.Background(), f.now))
}

func (f *fixture) enroll(t *testing.T, id core.PlayerID) {
	t.Helper()
	_, err := f.svc.Enroll(context.Background(), id)
	require.NoError(t, err)
}

func TestSubmitScoreAccumulates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enroll(t, "alice")
	f.startEpoch(t)

	total, err := f.svc.SubmitScore(ctx, "alice", 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), total)

	total, err = f.svc.SubmitScore(ctx, "alice", 20)
	require.NoError(t, err)
	assert.Equal(t, int64(30), total)

	total, err = f.svc.SubmitScore(ctx, "alice", 30)
	require.NoError(t, err)
	assert.Equal(t, int64(60), total)
}

func TestSubmitScoreUnknownPlayer(t *testing.T) {
	f := newFixture(t)
	f.startEpoch(t)
	_, err := f.svc.SubmitScore(context.Background(), "ghost", 10)
	assert.ErrorIs(t, err, engine.ErrPlayerNotFound)
}

func TestSubmitScoreNegativeDelta(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enroll(t, "alice")
	f.startEpoch(t)

	_, err := f.svc.SubmitScore(ctx, "alice", 10)
	require.NoError(t, err)
	// no clamping: penalties may push the total negative
	total, err := f.svc.SubmitScore(ctx, "alice", -25)
	require.NoError(t, err)
	assert.Equal(t, int64(-15), total)
}

func TestFlushResetsEveryRankedPlayer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.startEpoch(t)
	for _, id := range []core.PlayerID{"a", "b", "c"} {
		f.enroll(t, id)
		_, err := f.svc.SubmitScore(ctx, id, 50)
		require.NoError(t, err)
	}
	f.pub.reset()

	require.NoError(t, f.svc.ForceFlush(ctx))

	for _, id := range []core.PlayerID{"a", "b", "c"} {
		p, err := f.store.GetPlayer(ctx, id)
		require.NoError(t, err)
		assert.Zero(t, p.TotalScore, "player %s not reset", id)
	}
	top, err := f.svc.TopK(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, top)

	updates := f.pub.leaderboardUpdates()
	require.Len(t, updates, 1)
	assert.True(t, updates[0].Flushed)
	assert.Empty(t, updates[0].Leaderboard)
}

func TestNoFlushWithoutSubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SetFlushInterval(ctx, 1))
	f.enroll(t, "alice")
	f.startEpoch(t)
	_, err := f.svc.SubmitScore(ctx, "alice", 100)
	require.NoError(t, err)

	// Advance well past the interval. Flushing is lazy: without a
	// submission the board must stay intact.
	f.now = f.now.Add(10 * time.Minute)

	view, err := f.svc.Leaderboard(ctx, 3)
	require.NoError(t, err)
	require.Len(t, view.Leaderboard, 1)
	assert.Equal(t, int64(100), view.Leaderboard[0].Score)

	st, err := f.svc.FlushState(ctx)
	require.NoError(t, err)
	assert.True(t, st.Due(f.now), "epoch should be overdue")

	// The next submission finally triggers it.
	total, err := f.svc.SubmitScore(ctx, "alice", 7)
	require.NoError(t, err)
	assert.Equal(t, int64(7), total)
}

func TestFlushOrderingOnDueSubmit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SetFlushInterval(ctx, 1))
	f.enroll(t, "alice")
	f.startEpoch(t)
	_, err := f.svc.SubmitScore(ctx, "alice", 100)
	require.NoError(t, err)

	f.now = f.now.Add(61 * time.Second)

	// Flush runs before the increment: the result is exactly the delta,
	// not delta plus the stale baseline, and not zero.
	total, err := f.svc.SubmitScore(ctx, "alice", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(50), total)

	st, err := f.svc.FlushState(ctx)
	require.NoError(t, err)
	require.NotNil(t, st.LastFlush)
	assert.True(t, st.LastFlush.Equal(f.now))
}

func TestBroadcastOnlyWhenTopThreeChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.startEpoch(t)
	scores := map[core.PlayerID]int64{"a": 100, "b": 90, "c": 80}
	for id, s := range scores {
		f.enroll(t, id)
		_, err := f.svc.SubmitScore(ctx, id, s)
		require.NoError(t, err)
	}
	f.enroll(t, "d")
	f.pub.reset()

	// d lands in 4th place: top-3 pairs unchanged, nothing broadcast
	_, err := f.svc.SubmitScore(ctx, "d", 5)
	require.NoError(t, err)
	assert.Empty(t, f.pub.leaderboardUpdates())

	// d overtakes 3rd place: exactly one broadcast, matching topK(3)
	_, err = f.svc.SubmitScore(ctx, "d", 80)
	require.NoError(t, err)
	updates := f.pub.leaderboardUpdates()
	require.Len(t, updates, 1)
	assert.False(t, updates[0].Flushed)

	top, err := f.svc.TopK(ctx, 3)
	require.NoError(t, err)
	require.Len(t, updates[0].Leaderboard, len(top))
	for i, e := range top {
		assert.Equal(t, e.Score, updates[0].Leaderboard[i].Score)
	}
}

func TestSoleEntrantScoreChangeStillBroadcasts(t *testing.T) {
	// The comparison is by (id, score) pairs, so a sole entrant improving
	// their own score counts as a change and is pushed every time. That is
	// the documented comparison semantics, preserved rather than "fixed".
	f := newFixture(t)
	ctx := context.Background()
	f.enroll(t, "solo")
	f.startEpoch(t)
	_, err := f.svc.SubmitScore(ctx, "solo", 100)
	require.NoError(t, err)
	f.pub.reset()

	_, err = f.svc.SubmitScore(ctx, "solo", 50)
	require.NoError(t, err)
	updates := f.pub.leaderboardUpdates()
	require.Len(t, updates, 1)
	require.Len(t, updates[0].Leaderboard, 1)
	assert.Equal(t, int64(150), updates[0].Leaderboard[0].Score)
}

func TestDoubleFlushIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enroll(t, "a")
	f.startEpoch(t)
	_, err := f.svc.SubmitScore(ctx, "a", 10)
	require.NoError(t, err)

	require.NoError(t, f.svc.ForceFlush(ctx))
	stateAfterFirst, err := f.svc.FlushState(ctx)
	require.NoError(t, err)

	f.now = f.now.Add(time.Second)
	require.NoError(t, f.svc.ForceFlush(ctx))

	top, err := f.svc.TopK(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, top)

	// the second flush is a no-op except for the rewritten timestamp
	stateAfterSecond, err := f.svc.FlushState(ctx)
	require.NoError(t, err)
	assert.True(t, stateAfterSecond.LastFlush.After(*stateAfterFirst.LastFlush))
}

func TestFirstSubmissionScenario(t *testing.T) {
	// End-to-end walk of the documented scenario: first entrant, a second
	// submission, an admin flush, then a post-flush submission.
	f := newFixture(t)
	ctx := context.Background()
	f.enroll(t, "alice")
	f.pub.reset()

	// never flushed before: the first submission flushes the empty board
	// first, then scores against the zero baseline
	total, err := f.svc.SubmitScore(ctx, "alice", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), total)

	updates := f.pub.leaderboardUpdates()
	require.Len(t, updates, 1)
	assert.True(t, updates[0].Flushed)
	require.Len(t, updates[0].Leaderboard, 1)
	assert.Equal(t, int64(100), updates[0].Leaderboard[0].Score)
	f.pub.reset()

	total, err = f.svc.SubmitScore(ctx, "alice", 50)
	require.NoError(t, err)
	assert.Equal(t, int64(150), total)
	require.Len(t, f.pub.leaderboardUpdates(), 1)
	f.pub.reset()

	require.NoError(t, f.svc.ForceFlush(ctx))
	top, err := f.svc.TopK(ctx, 3)
	require.NoError(t, err)
	assert.Empty(t, top)
	updates = f.pub.leaderboardUpdates()
	require.Len(t, updates, 1)
	assert.True(t, updates[0].Flushed)

	total, err = f.svc.SubmitScore(ctx, "alice", 20)
	require.NoError(t, err)
	assert.Equal(t, int64(20), total)
}

func TestBroadcastFailureDoesNotFailSubmit(t *testing.T) {
	store := mem.New()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc := engine.NewGameService(store, store, failingPublisher{},
		engine.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	_, err := svc.Enroll(ctx, "alice")
	require.NoError(t, err)

	total, err := svc.SubmitScore(ctx, "alice", 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), total)
}

func TestSetFlushInterval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.SetFlushInterval(ctx, 0), engine.ErrInvalidInterval)
	assert.ErrorIs(t, f.svc.SetFlushInterval(ctx, -5), engine.ErrInvalidInterval)

	require.NoError(t, f.svc.SetFlushInterval(ctx, 15))
	st, err := f.svc.FlushState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 15, st.IntervalMinutes)
}

func TestEnrollCreatesAndTouches(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Enroll(ctx, "abcd-1234-00ff")
	require.NoError(t, err)
	assert.Equal(t, "Generic Co. #255", p.ProductName)
	assert.Equal(t, "Your tagline here!", p.Tagline)
	assert.Equal(t, core.DefaultColor, p.Color)
	firstLogin := p.LastLogin

	f.now = f.now.Add(time.Hour)
	p, err = f.svc.Enroll(ctx, "abcd-1234-00ff")
	require.NoError(t, err)
	assert.True(t, p.LastLogin.After(firstLogin))
	assert.Equal(t, "Generic Co. #255", p.ProductName, "existing profile untouched")
}

func TestSetupProfileValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.enroll(t, "alice")

	require.NoError(t, f.svc.SetupProfile(ctx, "alice", "Acme Corp", "we defend", "#ff0000"))
	p, err := f.svc.Profile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", p.ProductName)
	assert.Equal(t, "#FF0000", p.Color, "color normalized to uppercase")

	assert.Error(t, f.svc.SetupProfile(ctx, "alice", "", "  ", "#FF0000"), "blank tagline")
	assert.Error(t, f.svc.SetupProfile(ctx, "alice", "", "ok", "red"), "bad color")
	assert.ErrorIs(t, f.svc.SetupProfile(ctx, "ghost", "", "ok", "#FF0000"), engine.ErrPlayerNotFound)
}

func TestDeletePlayerBroadcasts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.startEpoch(t)
	f.enroll(t, "alice")
	_, err := f.svc.SubmitScore(ctx, "alice", 100)
	require.NoError(t, err)
	f.pub.reset()

	require.NoError(t, f.svc.DeletePlayer(ctx, "alice"))

	_, err = f.svc.Profile(ctx, "alice")
	assert.ErrorIs(t, err, engine.ErrPlayerNotFound)
	top, _ := f.svc.TopK(ctx, 3)
	assert.Empty(t, top)

	var sawDeleted bool
	for _, m := range f.pub.msgs {
		if m.MessageType() == core.MsgPlayerDeleted {
			sawDeleted = true
		}
	}
	assert.True(t, sawDeleted)
	assert.NotEmpty(t, f.pub.leaderboardUpdates())
}

func TestListPlayersPaginationAndSearch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i, id := range []core.PlayerID{"alpha", "beta", "gamma"} {
		f.enroll(t, id)
		f.now = f.now.Add(time.Duration(i+1) * time.Minute)
	}

	page, err := f.svc.ListPlayers(ctx, 1, 2, "")
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Players, 2)
	// most recent login first
	assert.Equal(t, core.PlayerID("gamma"), page.Players[0].ID)

	page, err = f.svc.ListPlayers(ctx, 1, 20, "BET")
	require.NoError(t, err)
	require.Len(t, page.Players, 1)
	assert.Equal(t, core.PlayerID("beta"), page.Players[0].ID)
}

func TestApplyFirewallDamageClamping(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	h, err := f.svc.ApplyFirewallDamage(ctx, -150)
	require.NoError(t, err)
	assert.Equal(t, int64(0), h, "floored at zero")

	h, err = f.svc.ApplyFirewallDamage(ctx, 5000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), h, "capped at max")

	var sawHealth bool
	for _, m := range f.pub.msgs {
		if m.MessageType() == core.MsgHealthUpdate {
			sawHealth = true
		}
	}
	assert.True(t, sawHealth)
}

func TestBroadcastMOTD(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.Error(t, f.svc.BroadcastMOTD(ctx, "  "))

	require.NoError(t, f.svc.BroadcastMOTD(ctx, "maintenance at noon"))
	motd, err := f.svc.MOTD(ctx)
	require.NoError(t, err)
	assert.Equal(t, "maintenance at noon", motd)

	var found *core.MOTDMessage
	for _, m := range f.pub.msgs {
		if mm, ok := m.(core.MOTDMessage); ok {
			found = &mm
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, "MESSAGE FROM ADMIN: maintenance at noon", found.Message)
}
