package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"n8nstack/internal/bootstrap"
	"n8nstack/internal/ownership"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveBootstrap(t *testing.T) {
	r := New()
	r.ObserveBootstrap(bootstrap.Report{
		LivenessAttempts: 3,
		SchemaAttempts:   7,
		Outcomes: map[bootstrap.Entity]bootstrap.Outcome{
			bootstrap.EntityUser:       bootstrap.OutcomeInserted,
			bootstrap.EntityWorkspace:  bootstrap.OutcomeExisted,
			bootstrap.EntityMembership: bootstrap.OutcomeInserted,
		},
		Repaired: []bootstrap.Entity{bootstrap.EntityWorkspace},
	}, nil)

	if got := testutil.ToFloat64(r.rows.WithLabelValues("user")); got != 1 {
		t.Errorf("rows_inserted_total{entity=user} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.rows.WithLabelValues("workspace")); got != 0 {
		t.Errorf("rows_inserted_total{entity=workspace} = %v, want 0", got)
	}
	if got := testutil.ToFloat64(r.repairs.WithLabelValues("workspace")); got != 1 {
		t.Errorf("rows_repaired_total{entity=workspace} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(r.attempts.WithLabelValues("schema")); got != 7 {
		t.Errorf("wait_attempts{phase=schema} = %v, want 7", got)
	}
	if got := testutil.ToFloat64(r.bootstrapOK); got != 1 {
		t.Errorf("bootstrap_success = %v, want 1", got)
	}

	r.ObserveBootstrap(bootstrap.Report{}, errors.New("boom"))
	if got := testutil.ToFloat64(r.bootstrapOK); got != 0 {
		t.Errorf("bootstrap_success after failure = %v, want 0", got)
	}
}

func TestObserveOwnership(t *testing.T) {
	r := New()
	r.ObserveOwnership(ownership.Result{Strategy: ownership.StrategyUnshare})
	r.ObserveOwnership(ownership.Result{AlreadyOwned: true})
	r.ObserveOwnership(ownership.Result{Err: &ownership.UnreconciledError{}})

	expected := `
# HELP n8nstack_ownership_results_total Ownership reconciliations, by winning strategy and outcome.
# TYPE n8nstack_ownership_results_total counter
n8nstack_ownership_results_total{outcome="already_owned",strategy="none"} 1
n8nstack_ownership_results_total{outcome="reconciled",strategy="podman-unshare"} 1
n8nstack_ownership_results_total{outcome="unreconciled",strategy="none"} 1
`
	if err := testutil.GatherAndCompare(r.Registry(), strings.NewReader(expected), "n8nstack_ownership_results_total"); err != nil {
		t.Fatal(err)
	}
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.ObserveOwnership(ownership.Result{Strategy: ownership.StrategySudo})
	path := filepath.Join(t.TempDir(), "n8nstack.prom")

	if err := r.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `n8nstack_ownership_results_total{outcome="reconciled",strategy="sudo"} 1`) {
		t.Fatalf("textfile = %s", data)
	}
}
