package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/latoulicious/Abyss/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTickSkipsIdleChannels(t *testing.T) {
	r, transport, _ := newTestRegistry(t)
	q := r.Get(chanA)
	q.Enqueue("a", "A", "")

	NewScheduler(r).Tick(context.Background())

	assert.Empty(t, transport.Connects(), "a queue without a handle waits for a command")
	assert.False(t, q.Entries()[0].Playing)
}

func TestTickIsIdempotentWhilePlaying(t *testing.T) {
	r, transport, notifier := newTestRegistry(t)
	q := r.Get(chanA)
	q.Enqueue("a", "A", "")
	q.Enqueue("b", "B", "")
	ctx := context.Background()
	require.NoError(t, q.PlayNextOrResume(ctx))
	before := q.Entries()

	s := NewScheduler(r)
	for i := 0; i < 5; i++ {
		s.Tick(ctx)
	}

	assert.Equal(t, before, q.Entries())
	assert.Equal(t, []string{"play"}, transport.Last().Calls())
	assert.Len(t, notifier.Played(), 1)
}

func TestSkipThenTickAdvances(t *testing.T) {
	r, transport, notifier := newTestRegistry(t)
	q := r.Get(chanA)
	q.Enqueue("a", "A", "")
	q.Enqueue("b", "B", "")
	ctx := context.Background()
	require.NoError(t, q.PlayNextOrResume(ctx))

	q.Skip()
	NewScheduler(r).Tick(ctx)

	entries := q.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "B", entries[0].Title)
	assert.True(t, entries[0].Playing)
	assert.Equal(t, []string{"a", "b"}, transport.Last().Locators())
	assert.Len(t, transport.Handles(), 1)

	played := notifier.Played()
	require.Len(t, played, 2)
	assert.Equal(t, "B", played[1].Title)
}

func TestTickAdvancesOnNaturalEnd(t *testing.T) {
	r, transport, _ := newTestRegistry(t)
	q := r.Get(chanA)
	q.Enqueue("a", "A", "")
	q.Enqueue("b", "B", "")
	q.Enqueue("c", "C", "")
	ctx := context.Background()
	require.NoError(t, q.PlayNextOrResume(ctx))
	s := NewScheduler(r)

	transport.Last().Finish()
	s.Tick(ctx)
	assert.Equal(t, []string{"B", "C"}, titles(q))

	transport.Last().Finish()
	s.Tick(ctx)
	assert.Equal(t, []string{"C"}, titles(q))
	assert.True(t, q.Entries()[0].Playing)
}

func TestTickLeavesPausedChannelAlone(t *testing.T) {
	r, transport, _ := newTestRegistry(t)
	q := r.Get(chanA)
	q.Enqueue("a", "A", "")
	q.Enqueue("b", "B", "")
	ctx := context.Background()
	require.NoError(t, q.PlayNextOrResume(ctx))
	q.Pause()

	s := NewScheduler(r)
	s.Tick(ctx)
	s.Tick(ctx)

	assert.Equal(t, []string{"A", "B"}, titles(q))
	assert.True(t, q.IsPaused())
	assert.Equal(t, []string{"play", "pause"}, transport.Last().Calls())
}

func TestTickReconnectsSilently(t *testing.T) {
	r, transport, notifier := newTestRegistry(t)
	q := r.Get(chanA)
	q.Enqueue("a", "A", "")
	q.Enqueue("b", "B", "")
	ctx := context.Background()
	require.NoError(t, q.PlayNextOrResume(ctx))
	first := transport.Last()

	first.Drop()
	NewScheduler(r).Tick(ctx)

	handles := transport.Handles()
	require.Len(t, handles, 2)
	second := handles[1]
	assert.True(t, q.IsConnected())
	assert.True(t, q.IsPaused(), "a reconnected channel stays paused")
	assert.Equal(t, []string{"b"}, second.Locators())
	assert.Equal(t, []string{"play", "pause"}, second.Calls())
	assert.Contains(t, first.Calls(), "disconnect")

	// Held channels are not advanced until a user resumes them.
	NewScheduler(r).Tick(ctx)
	assert.Equal(t, []string{"play", "pause"}, second.Calls())

	require.NoError(t, q.PlayNextOrResume(ctx))
	assert.True(t, q.IsPlaying())
	assert.Equal(t, []string{"B"}, titles(q))
	assert.Len(t, notifier.Played(), 2)
}

func TestTickReconnectRetriesAfterFailure(t *testing.T) {
	r, transport, _ := newTestRegistry(t)
	q := r.Get(chanA)
	q.Enqueue("a", "A", "")
	q.Enqueue("b", "B", "")
	ctx := context.Background()
	require.NoError(t, q.PlayNextOrResume(ctx))
	transport.Last().Drop()

	transport.FailConnects(ErrTimeout)
	s := NewScheduler(r)
	s.Tick(ctx)
	assert.False(t, q.IsConnected())
	assert.Len(t, transport.Connects(), 2)

	transport.FailConnects(nil)
	s.Tick(ctx)
	assert.True(t, q.IsConnected())
	assert.Len(t, transport.Connects(), 3)
}

func TestTickReleasesDrainedQueueAfterIdleTimeout(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	transport := NewMockTransport()
	notifier := &RecordingNotifier{}
	cfg := DefaultConfig()
	cfg.IdleTimeout = 30 * time.Second
	r := NewRegistry(transport, cfg, WithNotifier(notifier), WithClock(clock.Now), WithLogger(logging.Discard()))

	q := r.Get(chanA)
	q.Enqueue("a", "A", "")
	ctx := context.Background()
	require.NoError(t, q.PlayNextOrResume(ctx))
	transport.Last().Finish()

	s := NewScheduler(r)
	s.Tick(ctx)
	assert.Empty(t, q.Entries())
	assert.True(t, q.IsConnected())

	clock.Advance(10 * time.Second)
	s.Tick(ctx)
	assert.True(t, q.IsConnected())

	clock.Advance(25 * time.Second)
	s.Tick(ctx)
	assert.False(t, q.IsConnected())
	assert.Equal(t, 1, notifier.StoppedCount())

	_, held := r.Holder()
	assert.False(t, held)
}

func TestTickIsolatesChannelFailures(t *testing.T) {
	r, transport, _ := newTestRegistry(t)
	ctx := context.Background()

	qa := r.Get(chanA)
	qa.Enqueue("a", "A", "")
	qa.Enqueue("a2", "A2", "")
	require.NoError(t, qa.PlayNextOrResume(ctx))
	handleA := transport.Last()
	handleA.FailPlay(errors.New("broken stream"))
	handleA.Finish()

	// chanB holds a dropped handle; its reconnect is rejected as busy.
	qb := r.Get(chanB)
	qb.Enqueue("b", "B", "")
	staleB := &MockHandle{dest: chanB}
	qb.setHandle(staleB)

	NewScheduler(r).Tick(ctx)

	assert.Equal(t, []string{"A2"}, titles(qa))
	assert.Equal(t, []string{"pause"}, staleB.Calls(), "a stale handle is not torn down while another channel holds the connection")
	assert.Equal(t, []string{"B"}, titles(qb))
	assert.NotContains(t, transport.Connects(), chanB)
}

func TestTickSkipsQueueStillReconciling(t *testing.T) {
	r, transport, _ := newTestRegistry(t)
	q := r.Get(chanA)
	q.Enqueue("a", "A", "")
	q.Enqueue("b", "B", "")
	ctx := context.Background()
	require.NoError(t, q.PlayNextOrResume(ctx))
	transport.Last().Finish()

	q.reconciling.Store(true)
	NewScheduler(r).Tick(ctx)
	assert.Equal(t, []string{"A", "B"}, titles(q))

	q.reconciling.Store(false)
	NewScheduler(r).Tick(ctx)
	assert.Equal(t, []string{"B"}, titles(q))
}

func TestTickReconnectKeepsPausedHead(t *testing.T) {
	r, transport, notifier := newTestRegistry(t)
	q := r.Get(chanA)
	q.Enqueue("a", "A", "")
	q.Enqueue("b", "B", "")
	ctx := context.Background()
	require.NoError(t, q.PlayNextOrResume(ctx))
	require.True(t, q.Pause())
	first := transport.Last()

	first.Drop()
	NewScheduler(r).Tick(ctx)

	handles := transport.Handles()
	require.Len(t, handles, 2)
	second := handles[1]
	assert.Contains(t, first.Calls(), "disconnect")
	assert.Equal(t, []string{"a"}, second.Locators(), "the paused song is reloaded")
	assert.Equal(t, []string{"play", "pause"}, second.Calls())
	assert.True(t, q.IsPaused())

	entries := q.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "A", entries[0].Title)
	assert.True(t, entries[0].Playing)

	require.NoError(t, q.PlayNextOrResume(ctx))
	assert.True(t, q.IsPlaying())
	assert.Equal(t, []string{"A", "B"}, titles(q))
	assert.Equal(t, []string{"play", "pause", "resume"}, second.Calls())
	assert.Len(t, notifier.Played(), 1)
}

func TestTickReconnectKeepsPausedHeadAfterFailure(t *testing.T) {
	r, transport, _ := newTestRegistry(t)
	q := r.Get(chanA)
	q.Enqueue("a", "A", "")
	q.Enqueue("b", "B", "")
	ctx := context.Background()
	require.NoError(t, q.PlayNextOrResume(ctx))
	require.True(t, q.Pause())
	transport.Last().Drop()

	transport.FailConnects(ErrTimeout)
	s := NewScheduler(r)
	s.Tick(ctx)
	assert.False(t, q.IsConnected())
	assert.Equal(t, []string{"A", "B"}, titles(q))

	transport.FailConnects(nil)
	s.Tick(ctx)
	assert.True(t, q.IsPaused())
	assert.Equal(t, []string{"a"}, transport.Last().Locators())
	assert.Equal(t, []string{"A", "B"}, titles(q))
}

func TestTickReleasesDroppedDrainedQueue(t *testing.T) {
	r, transport, notifier := newTestRegistry(t)
	q := r.Get(chanA)
	q.Enqueue("a", "A", "")
	ctx := context.Background()
	require.NoError(t, q.PlayNextOrResume(ctx))
	h := transport.Last()
	h.Finish()
	h.Drop()

	s := NewScheduler(r)
	for range 5 {
		s.Tick(ctx)
	}

	assert.Empty(t, q.Entries())
	assert.Nil(t, q.currentHandle())
	assert.Equal(t, []string{"play", "disconnect"}, h.Calls())
	assert.Equal(t, 1, notifier.StoppedCount())
	assert.Len(t, transport.Connects(), 1)
}

func TestTickReleasesDroppedHandleWhileIdle(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	transport := NewMockTransport()
	notifier := &RecordingNotifier{}
	r := NewRegistry(transport, DefaultConfig(), WithNotifier(notifier), WithClock(clock.Now), WithLogger(logging.Discard()))

	q := r.Get(chanA)
	q.Enqueue("a", "A", "")
	ctx := context.Background()
	require.NoError(t, q.PlayNextOrResume(ctx))
	h := transport.Last()
	h.Finish()

	s := NewScheduler(r)
	s.Tick(ctx)
	require.Empty(t, q.Entries())
	require.True(t, q.IsConnected(), "idle timeout not reached yet")

	h.Drop()
	s.Tick(ctx)

	assert.Nil(t, q.currentHandle())
	assert.Equal(t, []string{"play", "disconnect"}, h.Calls())
	assert.Equal(t, 1, notifier.StoppedCount())
}
