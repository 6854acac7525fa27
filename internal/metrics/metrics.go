// Package metrics records the outcome of a single n8nstack run and writes it
// in the Prometheus textfile format, for node_exporter's textfile collector.
package metrics

import (
	"fmt"

	"n8nstack/internal/bootstrap"
	"n8nstack/internal/ownership"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "n8nstack"

// Recorder owns a private registry; nothing is registered globally.
type Recorder struct {
	reg *prometheus.Registry

	rows           *prometheus.CounterVec
	repairs        *prometheus.CounterVec
	attempts       *prometheus.GaugeVec
	bootstrapOK    prometheus.Gauge
	ownershipTotal *prometheus.CounterVec
	lastRun        prometheus.Gauge
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		rows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_inserted_total",
			Help:      "Rows inserted by bootstrap, by entity.",
		}, []string{"entity"}),
		repairs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_repaired_total",
			Help:      "Existing rows corrected by bootstrap, by entity.",
		}, []string{"entity"}),
		attempts: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wait_attempts",
			Help:      "Polling attempts used by the last bootstrap, by phase.",
		}, []string{"phase"}),
		bootstrapOK: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bootstrap_success",
			Help:      "1 if the last bootstrap completed, 0 otherwise.",
		}),
		ownershipTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ownership_results_total",
			Help:      "Ownership reconciliations, by winning strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		lastRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}
}

// ObserveBootstrap records a bootstrap report. err is the error Run
// returned.
func (r *Recorder) ObserveBootstrap(rep bootstrap.Report, err error) {
	for entity, outcome := range rep.Outcomes {
		c := r.rows.WithLabelValues(string(entity))
		if outcome == bootstrap.OutcomeInserted {
			c.Inc()
		}
	}
	for _, entity := range rep.Repaired {
		r.repairs.WithLabelValues(string(entity)).Inc()
	}
	r.attempts.WithLabelValues(bootstrap.PhaseLiveness.String()).Set(float64(rep.LivenessAttempts))
	r.attempts.WithLabelValues(bootstrap.PhaseSchema.String()).Set(float64(rep.SchemaAttempts))
	if err == nil {
		r.bootstrapOK.Set(1)
	} else {
		r.bootstrapOK.Set(0)
	}
	r.lastRun.SetToCurrentTime()
}

// ObserveOwnership records one reconciliation result.
func (r *Recorder) ObserveOwnership(res ownership.Result) {
	strategy, outcome := res.Strategy, "reconciled"
	switch {
	case res.AlreadyOwned:
		strategy, outcome = "none", "already_owned"
	case !res.OK():
		strategy, outcome = "none", "unreconciled"
	case res.ModeErr != nil:
		outcome = "mode_failed"
	}
	r.ownershipTotal.WithLabelValues(strategy, outcome).Inc()
	r.lastRun.SetToCurrentTime()
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.reg
}

// WriteTextfile atomically replaces path with the current metrics.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
