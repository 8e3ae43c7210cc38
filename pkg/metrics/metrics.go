// Package metrics exposes Prometheus instrumentation for the command queue, element lookups and script runs.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "browser_runner"

// Node outcomes.
const (
	OutcomeResolved   = "resolved"
	OutcomeRejected   = "rejected"
	OutcomeSuppressed = "suppressed" // failed, resolved with nil
)

// Locate outcomes.
const (
	LocateFound    = "found"
	LocateNotFound = "not_found"
	LocateError    = "error"
)

var (
	metricNodesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "queue_nodes_total",
		Help:      "Queue nodes executed, by action name and outcome.",
	}, []string{"name", "outcome"})
	metricNodeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "queue_node_duration_seconds",
		Help:      "Time spent running a queue node, including argument resolution.",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
	}, []string{"name"})
	metricQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Nodes enqueued but not yet finished across all sessions.",
	})
	metricLocatePolls = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "locate_polls_total",
		Help:      "Single-shot locate requests issued to transports.",
	})
	metricLocateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "locate_total",
		Help:      "Completed element lookups, by outcome.",
	}, []string{"outcome"})
	metricFailuresReported = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "failures_reported_total",
		Help:      "Failures registered with the reporter.",
	})
	metricScriptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scripts_total",
		Help:      "Scripts finished, by status.",
	}, []string{"status"})
)

// RecordNode records a finished queue node.
func RecordNode(name, outcome string, d time.Duration) {
	metricNodesTotal.WithLabelValues(name, outcome).Inc()
	metricNodeDuration.WithLabelValues(name).Observe(d.Seconds())
}

// NodeEnqueued increments the queue depth gauge.
func NodeEnqueued() {
	metricQueueDepth.Inc()
}

// NodeFinished decrements the queue depth gauge.
func NodeFinished() {
	metricQueueDepth.Dec()
}

// RecordPoll counts one locate request.
func RecordPoll() {
	metricLocatePolls.Inc()
}

// RecordLocate counts a completed lookup.
func RecordLocate(outcome string) {
	metricLocateTotal.WithLabelValues(outcome).Inc()
}

// RecordFailure counts a reporter notification.
func RecordFailure() {
	metricFailuresReported.Inc()
}

// RecordScript counts a finished script.
func RecordScript(status string) {
	metricScriptsTotal.WithLabelValues(status).Inc()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
