package playback

import (
	"context"
	"time"
)

// Notifier receives playback events. Implementations must not block for long;
// they are called with the channel's queue lock held.
type Notifier interface {
	NowPlaying(ctx context.Context, dest Destination, entry Entry)
	Stopped(ctx context.Context, dest Destination)
}

// Notifiers fans events out to every notifier in order.
type Notifiers []Notifier

func (n Notifiers) NowPlaying(ctx context.Context, dest Destination, entry Entry) {
	for _, notifier := range n {
		notifier.NowPlaying(ctx, dest, entry)
	}
}

func (n Notifiers) Stopped(ctx context.Context, dest Destination) {
	for _, notifier := range n {
		notifier.Stopped(ctx, dest)
	}
}

// Metrics collects scheduler and arbitration counters.
type Metrics interface {
	TrackStarted(dest Destination)
	ConnectionBusy(dest Destination)
	ConnectionFailed(dest Destination)
	TickCompleted(queues int, elapsed time.Duration)
}

type nopNotifier struct{}

func (nopNotifier) NowPlaying(context.Context, Destination, Entry) {}
func (nopNotifier) Stopped(context.Context, Destination)           {}

type nopMetrics struct{}

func (nopMetrics) TrackStarted(Destination)         {}
func (nopMetrics) ConnectionBusy(Destination)       {}
func (nopMetrics) ConnectionFailed(Destination)     {}
func (nopMetrics) TickCompleted(int, time.Duration) {}
