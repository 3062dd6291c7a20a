package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the playback timing knobs.
type Config struct {
	TickInterval   time.Duration `koanf:"tick_interval"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
	IdleTimeout    time.Duration `koanf:"idle_timeout"`
}

// DefaultConfig returns the default playback configuration
func DefaultConfig() Config {
	return Config{
		TickInterval:   time.Second,
		ConnectTimeout: 15 * time.Second,
		IdleTimeout:    30 * time.Second,
	}
}

// Option customizes a Registry.
type Option func(*Registry)

// WithNotifier sets the receiver of now-playing and stopped events.
func WithNotifier(n Notifier) Option {
	return func(r *Registry) { r.notifier = n }
}

// WithMetrics sets the metrics collector.
func WithMetrics(m Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.log = l }
}

// WithClock overrides time.Now, used by idle tracking.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// Registry maps destination channels to their queues and arbitrates the
// single voice connection between them.
type Registry struct {
	transport Transport
	cfg       Config
	notifier  Notifier
	metrics   Metrics
	log       *slog.Logger
	now       func() time.Time

	mu     sync.RWMutex
	queues map[string]*ChannelQueue

	// acquireMu serializes the busy scan and the connect that follows it.
	acquireMu sync.Mutex

	nextID atomic.Uint64
}

// NewRegistry creates an empty registry backed by transport.
func NewRegistry(transport Transport, cfg Config, opts ...Option) *Registry {
	r := &Registry{
		transport: transport,
		cfg:       cfg,
		notifier:  nopNotifier{},
		metrics:   nopMetrics{},
		log:       slog.Default(),
		now:       time.Now,
		queues:    make(map[string]*ChannelQueue),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With("component", "playback")
	return r
}

// Get returns the queue for dest, creating it on first use.
func (r *Registry) Get(dest Destination) *ChannelQueue {
	r.mu.RLock()
	q, ok := r.queues[dest.ChannelID]
	r.mu.RUnlock()
	if ok {
		return q
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if q, ok := r.queues[dest.ChannelID]; ok {
		return q
	}
	q = newChannelQueue(r, dest)
	r.queues[dest.ChannelID] = q
	r.log.Debug("created channel queue", "guild", dest.GuildID, "channel", dest.ChannelID)
	return q
}

// Lookup returns the queue for channelID without creating one.
func (r *Registry) Lookup(channelID string) (*ChannelQueue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queues[channelID]
	return q, ok
}

// Queues returns every known queue.
func (r *Registry) Queues() []*ChannelQueue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	queues := make([]*ChannelQueue, 0, len(r.queues))
	for _, q := range r.queues {
		queues = append(queues, q)
	}
	return queues
}

// Holder returns the queue currently holding a connected handle, if any.
func (r *Registry) Holder() (*ChannelQueue, bool) {
	for _, q := range r.Queues() {
		if h := q.currentHandle(); h != nil && h.IsConnected() {
			return q, true
		}
	}
	return nil, false
}

// AcquireTransport connects q to its destination unless another queue
// holds a handle. A dropped handle still counts: the transport may revive
// the same underlying connection, so it belongs to its queue until that
// queue reconnects or releases it. The first holder is never preempted.
func (r *Registry) AcquireTransport(ctx context.Context, q *ChannelQueue) (Handle, error) {
	r.acquireMu.Lock()
	defer r.acquireMu.Unlock()

	own := q.currentHandle()
	if own != nil && own.IsConnected() {
		return own, nil
	}

	for _, other := range r.Queues() {
		if other == q {
			continue
		}
		if h := other.currentHandle(); h != nil {
			r.metrics.ConnectionBusy(q.dest)
			return nil, fmt.Errorf("%w: channel %s holds the voice connection", ErrConnectionBusy, other.dest.ChannelID)
		}
	}

	if own != nil {
		// Torn down before connecting again. It stays set if the connect
		// fails so the next tick retries.
		if err := own.Disconnect(ctx); err != nil {
			r.log.Debug("stale handle disconnect", "channel", q.dest.ChannelID, "error", err)
		}
	}

	connectCtx := ctx
	if r.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, r.cfg.ConnectTimeout)
		defer cancel()
	}

	h, err := r.transport.Connect(connectCtx, q.dest)
	if err != nil {
		r.metrics.ConnectionFailed(q.dest)
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	q.setHandle(h)
	r.log.Info("acquired voice connection", "guild", q.dest.GuildID, "channel", q.dest.ChannelID)
	return h, nil
}

// Shutdown stops and disconnects every queue's handle. Queued entries are
// left in place.
func (r *Registry) Shutdown(ctx context.Context) {
	for _, q := range r.Queues() {
		q.mu.Lock()
		if h := q.currentHandle(); h != nil {
			h.Stop()
			if err := q.release(ctx, h); err != nil {
				r.log.Warn("shutdown disconnect failed", "channel", q.dest.ChannelID, "error", err)
			}
		}
		q.mu.Unlock()
	}
}

func (r *Registry) newEntryID() EntryID {
	return EntryID(r.nextID.Add(1))
}
