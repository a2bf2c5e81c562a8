// Package metrics exposes extraction counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "patent_extractor"

// Metrics holds every collector of a run on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	Archives        *prometheus.CounterVec // status: processed, skipped, failed
	Documents       *prometheus.CounterVec // format
	Degraded        *prometheus.CounterVec // format
	EmptySegments   prometheus.Counter
	SinkErrors      *prometheus.CounterVec // category
	ArchiveDuration prometheus.Histogram
	InFlight        prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		Archives: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archives_total",
			Help:      "Archives handled, by outcome",
		}, []string{"status"}),
		Documents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "documents_total",
			Help:      "Records written, by format",
		}, []string{"format"}),
		Degraded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "degraded_segments_total",
			Help:      "Segments whose markup broke before the end, by format",
		}, []string{"format"}),
		EmptySegments: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "empty_segments_total",
			Help:      "Blank segments skipped without output",
		}),
		SinkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Record sink failures, by category",
		}, []string{"category"}),
		ArchiveDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "archive_duration_seconds",
			Help:      "Wall time spent per archive",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		InFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "archives_in_flight",
			Help:      "Archives currently being processed",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Serve listens on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
