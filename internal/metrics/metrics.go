// Package metrics exposes the cache engine counters as Prometheus metrics.
// Counters are read from an engine snapshot at scrape time rather than
// incremented inline, so the hot read path stays free of Prometheus calls.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/higlass/httpfs-go/internal/engine"
)

// Collector implements prometheus.Collector over the engine counters.
type Collector struct {
	engine *engine.Engine

	memoryHits    *prometheus.Desc
	memoryMisses  *prometheus.Desc
	diskHits      *prometheus.Desc
	diskMisses    *prometheus.Desc
	blockRequests *prometheus.Desc
	readCalls     *prometheus.Desc
	bytesRead     *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector creates a collector for one engine instance. The schema is
// attached as a constant label so multiple mounts can share a registry.
func NewCollector(eng *engine.Engine) *Collector {
	labels := prometheus.Labels{"schema": eng.Schema()}
	return &Collector{
		engine: eng,
		memoryHits: prometheus.NewDesc("httpfs_memory_hits_total",
			"Block requests served from the in-memory cache", nil, labels),
		memoryMisses: prometheus.NewDesc("httpfs_memory_misses_total",
			"Block requests that missed the in-memory cache", nil, labels),
		diskHits: prometheus.NewDesc("httpfs_disk_hits_total",
			"Block requests served from the persistent store", nil, labels),
		diskMisses: prometheus.NewDesc("httpfs_disk_misses_total",
			"Block requests that went to the remote backend", nil, labels),
		blockRequests: prometheus.NewDesc("httpfs_block_requests_total",
			"Total block requests", nil, labels),
		readCalls: prometheus.NewDesc("httpfs_read_calls_total",
			"Total read operations", nil, labels),
		bytesRead: prometheus.NewDesc("httpfs_bytes_read_total",
			"Total bytes returned to readers", nil, labels),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.memoryHits
	ch <- c.memoryMisses
	ch <- c.diskHits
	ch <- c.diskMisses
	ch <- c.blockRequests
	ch <- c.readCalls
	ch <- c.bytesRead
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.engine.Metrics()
	ch <- prometheus.MustNewConstMetric(c.memoryHits, prometheus.CounterValue, float64(snap.MemoryHits))
	ch <- prometheus.MustNewConstMetric(c.memoryMisses, prometheus.CounterValue, float64(snap.MemoryMisses))
	ch <- prometheus.MustNewConstMetric(c.diskHits, prometheus.CounterValue, float64(snap.DiskHits))
	ch <- prometheus.MustNewConstMetric(c.diskMisses, prometheus.CounterValue, float64(snap.DiskMisses))
	ch <- prometheus.MustNewConstMetric(c.blockRequests, prometheus.CounterValue, float64(snap.BlockRequests))
	ch <- prometheus.MustNewConstMetric(c.readCalls, prometheus.CounterValue, float64(snap.ReadCalls))
	ch <- prometheus.MustNewConstMetric(c.bytesRead, prometheus.CounterValue, float64(snap.BytesRead))
}

// NewRegistry builds a registry holding the engine collector plus the
// standard Go and process collectors.
func NewRegistry(eng *engine.Engine) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(NewCollector(eng))
	return registry
}

// Handler returns an HTTP handler serving the registry in the Prometheus
// exposition format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// Serve runs the metrics endpoint on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, eng *engine.Engine, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(NewRegistry(eng)))

	server := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("metrics server shutdown")
		}
	}()

	logger.Info().Str("addr", addr).Msg("serving metrics")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
