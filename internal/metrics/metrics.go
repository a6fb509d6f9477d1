// Package metrics holds the per-run Prometheus collectors for keeper loops.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ggonzalez94/defi-keeper/internal/model"
)

// Metrics is safe to use as a nil pointer; every observation becomes a no-op.
type Metrics struct {
	registry *prometheus.Registry

	cycles          *prometheus.CounterVec
	cycleDuration   *prometheus.HistogramVec
	outcomes        *prometheus.CounterVec
	actions         *prometheus.CounterVec
	oracleDecisions *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		cycles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keeper_cycles_total",
			Help: "Completed polling cycles by loop",
		}, []string{"loop"}),
		cycleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "keeper_cycle_duration_seconds",
			Help:    "Wall-clock duration of one polling cycle",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"loop"}),
		outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keeper_tasks_total",
			Help: "Reported task and action outcomes",
		}, []string{"loop", "outcome"}),
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keeper_rebalance_actions_total",
			Help: "Rebalance actions by kind and pipeline stage",
		}, []string{"kind", "stage"}),
		oracleDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keeper_oracle_decisions_total",
			Help: "Decision gate verdicts after fail-closed normalization",
		}, []string{"verdict"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveCycle(loop string, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(loop).Inc()
	m.cycleDuration.WithLabelValues(loop).Observe(d.Seconds())
}

func (m *Metrics) ObserveOutcome(loop string, kind model.OutcomeKind) {
	if m == nil {
		return
	}
	m.outcomes.WithLabelValues(loop, string(kind)).Inc()
}

func (m *Metrics) ObserveAction(kind, stage string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(kind, stage).Inc()
}

func (m *Metrics) ObserveDecision(approved bool) {
	if m == nil {
		return
	}
	verdict := string(model.VerdictReject)
	if approved {
		verdict = string(model.VerdictApprove)
	}
	m.oracleDecisions.WithLabelValues(verdict).Inc()
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, m *Metrics, log *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
