package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cartelera-live/cartelera/internal/logger"
	"go.uber.org/zap"
)

var (
	// ActiveConnections tracks currently registered WebSocket connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cartelera_active_connections",
		Help: "Number of registered WebSocket connections",
	})

	// BroadcastsTotal counts envelopes accepted for fan-out.
	BroadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartelera_broadcasts_total",
		Help: "Envelopes published to the broadcaster, by event name",
	}, []string{"event"})

	// FramesDelivered counts per-connection delivery attempts that succeeded.
	FramesDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cartelera_frames_delivered_total",
		Help: "Frames written to connections",
	})

	// DeliveryFailures counts write errors during fan-out.
	DeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cartelera_delivery_failures_total",
		Help: "Per-connection write failures during broadcast",
	})

	// FramesDropped counts publisher queue overflow drops.
	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cartelera_frames_dropped_total",
		Help: "Envelopes dropped because the publish queue was full",
	})

	// MalformedFrames counts undecodable inbound frames.
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cartelera_malformed_frames_total",
		Help: "Inbound frames dropped as undecodable",
	})

	// CacheHits counts image cache hits by tier (memory or persistent).
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartelera_image_cache_hits_total",
		Help: "Image cache hits by tier",
	}, []string{"tier"})

	// CacheEvictions counts LRU evictions from the in-memory tier.
	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cartelera_image_cache_evictions_total",
		Help: "Entries evicted from the in-memory image cache",
	})

	// FetchFailures counts image fetches that fell back to the remote URL.
	FetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cartelera_image_fetch_failures_total",
		Help: "Image fetches that degraded to the original URL",
	})

	// Reconnects counts client channel reconnect attempts.
	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cartelera_channel_reconnects_total",
		Help: "Scheduled reconnect attempts by the live update channel",
	})

	// BroadcastDuration observes registry fan-out latency.
	BroadcastDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cartelera_broadcast_duration_seconds",
		Help:    "Time spent fanning one envelope out to its audience",
		Buckets: prometheus.DefBuckets,
	})
)

// Prometheus counters cannot be read back, so the connection count is
// mirrored in an atomic for admission control and health reporting.
var activeConnections int64

func IncrementActiveConnections() {
	atomic.AddInt64(&activeConnections, 1)
	ActiveConnections.Inc()
}

func DecrementActiveConnections() {
	atomic.AddInt64(&activeConnections, -1)
	ActiveConnections.Dec()
}

func GetActiveConnectionsCount() int64 {
	return atomic.LoadInt64(&activeConnections)
}

// Serve exposes /metrics on the given port until ctx is canceled.
func Serve(ctx context.Context, port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server listening", zap.Int("port", port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server error", zap.Error(err))
	}
}
