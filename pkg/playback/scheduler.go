package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// Scheduler reconciles every queue's transport state on each tick. It is
// the only place a queue advances after a track ends on its own.
type Scheduler struct {
	registry *Registry
	log      *slog.Logger
}

// NewScheduler creates a scheduler over r.
func NewScheduler(r *Registry) *Scheduler {
	return &Scheduler{
		registry: r,
		log:      r.log.With("component", "scheduler"),
	}
}

// Tick reconciles all queues concurrently and waits for them. A queue whose
// previous reconciliation has not finished is skipped.
func (s *Scheduler) Tick(ctx context.Context) {
	start := s.registry.now()
	queues := s.registry.Queues()

	var wg sync.WaitGroup
	for _, q := range queues {
		if !q.reconciling.CompareAndSwap(false, true) {
			continue
		}
		wg.Add(1)
		go func(q *ChannelQueue) {
			defer wg.Done()
			defer q.reconciling.Store(false)

			if err := s.reconcile(ctx, q); err != nil {
				level := slog.LevelWarn
				if errors.Is(err, ErrConnectionBusy) {
					level = slog.LevelDebug
				}
				s.log.Log(ctx, level, "reconcile failed", "channel", q.dest.ChannelID, "error", err)
			}
		}(q)
	}
	wg.Wait()

	s.registry.metrics.TickCompleted(len(queues), s.registry.now().Sub(start))
}

func (s *Scheduler) reconcile(ctx context.Context, q *ChannelQueue) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	h := q.currentHandle()
	switch {
	case h == nil:
		return nil
	case !h.IsConnected():
		if len(q.entries) == 0 {
			s.log.Info("voice connection dropped with nothing queued, releasing", "channel", q.dest.ChannelID)
			return q.release(ctx, h)
		}
		s.log.Info("voice connection dropped, reconnecting", "channel", q.dest.ChannelID)
		return q.reconnect(ctx, h)
	case h.IsPaused() || q.held:
		return nil
	case h.IsPlaying():
		q.idleSince = time.Time{}
		return nil
	}

	if err := q.playNextOrResume(ctx); err != nil {
		return err
	}
	if len(q.entries) > 0 {
		return nil
	}

	now := s.registry.now()
	if q.idleSince.IsZero() {
		q.idleSince = now
	}
	if now.Sub(q.idleSince) < s.registry.cfg.IdleTimeout {
		return nil
	}
	s.log.Info("queue drained, releasing voice connection", "channel", q.dest.ChannelID)
	return q.release(ctx, h)
}
