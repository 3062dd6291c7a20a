package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/latoulicious/Abyss/pkg/playback"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "abyss"

var _ playback.Metrics = (*Playback)(nil)

// Playback exports scheduler and arbitration counters to Prometheus.
type Playback struct {
	tracksStarted      *prometheus.CounterVec
	connectionBusy     *prometheus.CounterVec
	connectionFailures *prometheus.CounterVec
	tickDuration       prometheus.Histogram
	channelQueues      prometheus.Gauge
}

// NewPlayback creates the collectors and registers them with reg.
func NewPlayback(reg prometheus.Registerer) *Playback {
	m := &Playback{
		tracksStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tracks_started_total",
			Help:      "Tracks started, by voice channel.",
		}, []string{"channel"}),
		connectionBusy: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_busy_total",
			Help:      "Play requests rejected because another channel held the voice connection.",
		}, []string{"channel"}),
		connectionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connection_failures_total",
			Help:      "Voice connection attempts that failed.",
		}, []string{"channel"}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent reconciling all channel queues in one tick.",
			Buckets:   []float64{.001, .01, .05, .1, .5, 1, 5, 15},
		}),
		channelQueues: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_queues",
			Help:      "Channel queues known to the registry.",
		}),
	}
	reg.MustRegister(m.tracksStarted, m.connectionBusy, m.connectionFailures, m.tickDuration, m.channelQueues)
	return m
}

func (m *Playback) TrackStarted(dest playback.Destination) {
	m.tracksStarted.WithLabelValues(dest.ChannelID).Inc()
}

func (m *Playback) ConnectionBusy(dest playback.Destination) {
	m.connectionBusy.WithLabelValues(dest.ChannelID).Inc()
}

func (m *Playback) ConnectionFailed(dest playback.Destination) {
	m.connectionFailures.WithLabelValues(dest.ChannelID).Inc()
}

func (m *Playback) TickCompleted(queues int, elapsed time.Duration) {
	m.channelQueues.Set(float64(queues))
	m.tickDuration.Observe(elapsed.Seconds())
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}()

	logger.Info("serving metrics", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
