package database

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/latoulicious/Abyss/pkg/playback"
)

var _ playback.Notifier = (*Recorder)(nil)

// Recorder writes every started track to the play history. Notifier calls
// only enqueue; a background loop inserts in batches so the playback lock is
// never held across a database write.
type Recorder struct {
	repo *HistoryRepository
	log  *slog.Logger
	now  func() time.Time

	batchSize     int
	flushInterval time.Duration

	buffer   chan PlayRecord
	stopChan chan struct{}
	doneChan chan struct{}

	runMutex sync.Mutex
	running  bool
	stopped  bool

	statsMutex sync.Mutex
	stats      RecorderStats
}

// RecorderStats counts what the recorder has done since it started.
type RecorderStats struct {
	Recorded int64
	Dropped  int64
	Failed   int64
}

// NewRecorder creates a stopped recorder writing to repo.
func NewRecorder(repo *HistoryRepository, config Config, logger *slog.Logger) *Recorder {
	return &Recorder{
		repo:          repo,
		log:           logger.With("component", "history"),
		now:           time.Now,
		batchSize:     config.BatchSize,
		flushInterval: config.FlushInterval,
		buffer:        make(chan PlayRecord, config.BatchSize*4),
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
}

// Start begins the write loop.
func (r *Recorder) Start() error {
	r.runMutex.Lock()
	defer r.runMutex.Unlock()

	if r.stopped {
		return ErrRecorderStopped
	}
	if r.running {
		return fmt.Errorf("history recorder is already running")
	}
	r.running = true
	go r.run()

	r.log.Debug("history recorder started", "batch_size", r.batchSize, "flush_interval", r.flushInterval)
	return nil
}

// Stop flushes what is buffered and ends the write loop.
func (r *Recorder) Stop(ctx context.Context) error {
	r.runMutex.Lock()
	defer r.runMutex.Unlock()

	if r.stopped {
		return nil
	}
	r.stopped = true
	close(r.stopChan)

	if !r.running {
		return nil
	}
	r.running = false

	select {
	case <-r.doneChan:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("history recorder stop: %w", ctx.Err())
	}
}

// Add queues rec for writing.
func (r *Recorder) Add(rec PlayRecord) error {
	select {
	case <-r.stopChan:
		return ErrRecorderStopped
	default:
	}

	select {
	case r.buffer <- rec:
		return nil
	default:
		r.count(func(s *RecorderStats) { s.Dropped++ })
		return ErrRecorderBufferFull
	}
}

// NowPlaying records entry as started in dest.
func (r *Recorder) NowPlaying(_ context.Context, dest playback.Destination, entry playback.Entry) {
	err := r.Add(PlayRecord{
		GuildID:   dest.GuildID,
		ChannelID: dest.ChannelID,
		Title:     entry.Title,
		Artist:    entry.Artist,
		Locator:   entry.Locator,
		PlayedAt:  r.now(),
	})
	if err != nil {
		r.log.Warn("play not recorded", "channel", dest.ChannelID, "title", entry.Title, "error", err)
	}
}

func (r *Recorder) Stopped(context.Context, playback.Destination) {}

// Stats returns a snapshot of the recorder counters.
func (r *Recorder) Stats() RecorderStats {
	r.statsMutex.Lock()
	defer r.statsMutex.Unlock()
	return r.stats
}

func (r *Recorder) run() {
	defer close(r.doneChan)

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	batch := make([]PlayRecord, 0, r.batchSize)
	for {
		select {
		case rec := <-r.buffer:
			batch = append(batch, rec)
			if len(batch) >= r.batchSize {
				batch = r.flush(batch)
			}
		case <-ticker.C:
			batch = r.flush(batch)
		case <-r.stopChan:
			for {
				select {
				case rec := <-r.buffer:
					batch = append(batch, rec)
				default:
					r.flush(batch)
					return
				}
			}
		}
	}
}

// flush writes batch and returns it emptied for reuse.
func (r *Recorder) flush(batch []PlayRecord) []PlayRecord {
	if len(batch) == 0 {
		return batch
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n := int64(len(batch))
	if err := r.repo.RecordBatch(ctx, batch); err != nil {
		r.log.Error("history batch write failed", "records", n, "error", err)
		r.count(func(s *RecorderStats) { s.Failed += n })
	} else {
		r.count(func(s *RecorderStats) { s.Recorded += n })
	}
	return batch[:0]
}

func (r *Recorder) count(update func(*RecorderStats)) {
	r.statsMutex.Lock()
	update(&r.stats)
	r.statsMutex.Unlock()
}
