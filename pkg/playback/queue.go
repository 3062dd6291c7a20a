package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ChannelQueue is the FIFO of entries for one destination channel together
// with that channel's transport handle.
type ChannelQueue struct {
	registry *Registry
	dest     Destination

	mu        sync.Mutex
	entries   []*Entry
	held      bool
	idleSince time.Time

	// hmu guards handle only, so the registry can scan other queues
	// without taking their main lock.
	hmu    sync.Mutex
	handle Handle

	reconciling atomic.Bool
}

func newChannelQueue(r *Registry, dest Destination) *ChannelQueue {
	return &ChannelQueue{registry: r, dest: dest}
}

// Destination returns the channel this queue plays into.
func (q *ChannelQueue) Destination() Destination {
	return q.dest
}

// Enqueue appends a track. It never touches the transport.
func (q *ChannelQueue) Enqueue(locator, title, artist string) EntryID {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enqueue(locator, title, artist)
}

// Track is a song to be queued.
type Track struct {
	Locator string
	Title   string
	Artist  string
}

// Submission describes what Submit did with its tracks.
type Submission struct {
	IDs []EntryID
	// Waiting is set when the tracks queued behind a head that was
	// already playing.
	Waiting bool
	// Paused is set when the channel was paused, so nothing was started.
	Paused bool
}

// Submit appends tracks and starts playback unless the channel is paused.
// When the voice connection cannot be had the tracks are withdrawn again,
// so a rejected request leaves the queue as it was.
func (q *ChannelQueue) Submit(ctx context.Context, tracks ...Track) (Submission, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	sub := Submission{
		IDs:     make([]EntryID, 0, len(tracks)),
		Waiting: len(q.entries) > 0 && q.entries[0].Playing,
	}
	if h := q.currentHandle(); h != nil && h.IsPaused() {
		sub.Paused = true
	}
	for _, t := range tracks {
		sub.IDs = append(sub.IDs, q.enqueue(t.Locator, t.Title, t.Artist))
	}
	if sub.Paused {
		return sub, nil
	}

	err := q.playNextOrResume(ctx)
	if errors.Is(err, ErrConnectionBusy) || errors.Is(err, ErrConnectionFailed) {
		q.withdraw(sub.IDs...)
	}
	return sub, err
}

func (q *ChannelQueue) enqueue(locator, title, artist string) EntryID {
	e := &Entry{
		ID:      q.registry.newEntryID(),
		Locator: locator,
		Title:   title,
		Artist:  artist,
	}
	q.entries = append(q.entries, e)
	q.registry.log.Debug("enqueued", "channel", q.dest.ChannelID, "title", title, "position", len(q.entries))
	return e.ID
}

// PlayNextOrResume resumes a paused handle, or, when nothing is playing,
// drops a finished head and starts the next entry.
func (q *ChannelQueue) PlayNextOrResume(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.playNextOrResume(ctx)
}

func (q *ChannelQueue) playNextOrResume(ctx context.Context) error {
	h := q.currentHandle()
	if h != nil && h.IsConnected() && h.IsPaused() {
		h.Resume()
		q.held = false
		return nil
	}
	q.held = false

	if h != nil && h.IsConnected() && h.IsPlaying() {
		return nil
	}

	if len(q.entries) > 0 && q.entries[0].Playing {
		q.pop()
	}
	if len(q.entries) == 0 {
		return nil
	}

	h, err := q.ensureHandle(ctx)
	if err != nil {
		return err
	}

	// Marked before Play so a failed start is dropped by the next tick
	// instead of being retried forever.
	head := q.entries[0]
	head.Playing = true
	q.idleSince = time.Time{}

	if err := h.Play(head.Locator); err != nil {
		return fmt.Errorf("play %q: %w", head.Title, err)
	}

	q.registry.metrics.TrackStarted(q.dest)
	q.registry.log.Info("now playing", "channel", q.dest.ChannelID, "title", head.Title, "artist", head.Artist)
	q.registry.notifier.NowPlaying(ctx, q.dest, *head)
	return nil
}

// ensureHandle returns a connected handle, replacing a dropped one.
func (q *ChannelQueue) ensureHandle(ctx context.Context) (Handle, error) {
	if h := q.currentHandle(); h != nil && h.IsConnected() {
		return h, nil
	}
	return q.registry.AcquireTransport(ctx, q)
}

// reconnect replaces the dropped handle stale without resuming audio. A
// paused head is kept and reloaded paused. Otherwise the queue advances as
// usual and the new track is paused, or stale is released when nothing is
// left to play. Callers hold q.mu.
func (q *ChannelQueue) reconnect(ctx context.Context, stale Handle) error {
	pausedHead := (q.held || stale.IsPaused()) && len(q.entries) > 0 && q.entries[0].Playing
	if !pausedHead {
		err := q.playNextOrResume(ctx)
		if err == nil && len(q.entries) == 0 {
			return q.release(ctx, stale)
		}
		q.pause()
		return err
	}

	h, err := q.registry.AcquireTransport(ctx, q)
	if err != nil {
		// held keeps the next tick retrying the same head.
		q.held = true
		return err
	}
	head := q.entries[0]
	if err := h.Play(head.Locator); err != nil {
		q.held = true
		return fmt.Errorf("reload %q: %w", head.Title, err)
	}
	q.pause()
	return nil
}

// Pause pauses the transport. Entries are untouched.
func (q *ChannelQueue) Pause() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pause()
}

func (q *ChannelQueue) pause() bool {
	h := q.currentHandle()
	if h == nil {
		return false
	}
	q.held = true
	h.Pause()
	return true
}

// Stop discards the in-progress entry and releases the transport. It
// reports false when there was no transport to stop.
func (q *ChannelQueue) Stop(ctx context.Context) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	h := q.currentHandle()
	if h == nil {
		return false, nil
	}
	q.held = true

	if (h.IsPlaying() || h.IsPaused()) && len(q.entries) > 0 && q.entries[0].Playing {
		q.pop()
	}
	h.Stop()
	return true, q.release(ctx, h)
}

// Skip stops the current stream. The next tick drops the head and starts
// the following entry.
func (q *ChannelQueue) Skip() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	h := q.currentHandle()
	if h == nil {
		return false
	}
	q.held = false
	h.Stop()
	return true
}

// Clear removes every entry except a playing head and reports how many
// were removed.
func (q *ChannelQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	before := len(q.entries)
	if before > 0 && q.entries[0].Playing {
		q.entries = q.entries[:1]
	} else {
		q.entries = nil
	}
	return before - len(q.entries)
}

// Withdraw removes the given entries unless they already started playing.
func (q *ChannelQueue) Withdraw(ids ...EntryID) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.withdraw(ids...)
}

func (q *ChannelQueue) withdraw(ids ...EntryID) int {
	drop := make(map[EntryID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	kept := q.entries[:0]
	removed := 0
	for _, e := range q.entries {
		if _, ok := drop[e.ID]; ok && !e.Playing {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = nil
	}
	q.entries = kept
	return removed
}

// Entries returns a copy of the queue contents, head first.
func (q *ChannelQueue) Entries() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Entry, len(q.entries))
	for i, e := range q.entries {
		out[i] = *e
	}
	return out
}

// Len returns the number of entries, including a playing head.
func (q *ChannelQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *ChannelQueue) IsPlaying() bool {
	h := q.currentHandle()
	return h != nil && h.IsPlaying()
}

func (q *ChannelQueue) IsPaused() bool {
	h := q.currentHandle()
	return h != nil && h.IsPaused()
}

func (q *ChannelQueue) IsConnected() bool {
	h := q.currentHandle()
	return h != nil && h.IsConnected()
}

// release disconnects h and clears it. The handle is cleared even when the
// disconnect fails. Callers hold q.mu.
func (q *ChannelQueue) release(ctx context.Context, h Handle) error {
	err := h.Disconnect(ctx)
	q.setHandle(nil)
	q.idleSince = time.Time{}
	q.registry.log.Info("released voice connection", "channel", q.dest.ChannelID)
	q.registry.notifier.Stopped(ctx, q.dest)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDisconnect, err)
	}
	return nil
}

func (q *ChannelQueue) pop() {
	q.entries[0] = nil
	q.entries = q.entries[1:]
}

func (q *ChannelQueue) currentHandle() Handle {
	q.hmu.Lock()
	defer q.hmu.Unlock()
	return q.handle
}

func (q *ChannelQueue) setHandle(h Handle) {
	q.hmu.Lock()
	q.handle = h
	q.hmu.Unlock()
}
