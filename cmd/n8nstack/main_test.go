package main

import (
	"bytes"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"n8nstack/cmd/n8nstack/ui"
	"n8nstack/internal/adapter/fake"
	"n8nstack/internal/config"
	"n8nstack/internal/metrics"
	"n8nstack/internal/ownership"
	"n8nstack/internal/testkit/n8nschema"
)

func runRoot(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	ui.ConfigureInteraction(true)
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--no-interaction"}, args...))
	err := root.ExecuteContext(t.Context())
	return out.String(), err
}

func sqliteDeployment(t *testing.T) string {
	t.Helper()
	t.Chdir(t.TempDir())

	path := filepath.Join(t.TempDir(), "database.sqlite")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	n8nschema.MustApply(t, db)
	_ = db.Close()

	t.Setenv("DB_TYPE", "sqlite")
	t.Setenv("DB_SQLITE_DATABASE", path)
	t.Setenv("N8N_ADMIN_EMAIL", "owner@example.com")
	t.Setenv("N8N_ADMIN_PASSWORD", "s3cret-pass")
	t.Setenv("N8NSTACK_INTERVAL", "10ms")
	return path
}

func TestBootstrapCommandIsIdempotent(t *testing.T) {
	dbPath := sqliteDeployment(t)
	metricsPath := filepath.Join(t.TempDir(), "n8nstack.prom")

	out, err := runRoot(t, "", "bootstrap", "--metrics-file", metricsPath)
	if err != nil {
		t.Fatalf("bootstrap error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "bootstrap complete") || strings.Contains(out, "nothing to change") {
		t.Fatalf("first run output = %q", out)
	}

	out, err = runRoot(t, "", "bootstrap")
	if err != nil {
		t.Fatalf("second bootstrap error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "nothing to change") {
		t.Fatalf("second run output = %q, want no changes", out)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if n := n8nschema.Count(t, db, n8nschema.User, "email = ?", "owner@example.com"); n != 1 {
		t.Fatalf("users = %d, want 1", n)
	}
	if n := n8nschema.Count(t, db, n8nschema.Project, "type = ?", "personal"); n != 1 {
		t.Fatalf("personal projects = %d, want 1", n)
	}
	if n := n8nschema.Count(t, db, n8nschema.ProjectRelation, ""); n != 1 {
		t.Fatalf("memberships = %d, want 1", n)
	}

	prom, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("read metrics file: %v", err)
	}
	if !strings.Contains(string(prom), "n8nstack_bootstrap_success 1") {
		t.Fatalf("metrics file missing success gauge:\n%s", prom)
	}
}

func TestBootstrapCommandRejectsInvalidConfig(t *testing.T) {
	sqliteDeployment(t)
	t.Setenv("N8N_ADMIN_EMAIL", "not-an-email")

	_, err := runRoot(t, "", "bootstrap")
	if err == nil || !strings.Contains(err.Error(), "admin.email") {
		t.Fatalf("bootstrap error = %v, want admin.email validation error", err)
	}
}

func TestAPIKeySaveAndShow(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := filepath.Join(t.TempDir(), "config")
	t.Setenv("CONFIG_DIR", dir)
	t.Setenv("N8N_API_KEY", "")

	if _, err := runRoot(t, "  n8n_api_abcdef123456\n", "api-key", "save"); err != nil {
		t.Fatalf("api-key save error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "n8n_api_key.txt"))
	if err != nil {
		t.Fatalf("read key file: %v", err)
	}
	if string(data) != "n8n_api_abcdef123456" {
		t.Fatalf("key file = %q", data)
	}

	out, err := runRoot(t, "", "api-key", "show")
	if err != nil {
		t.Fatalf("api-key show error = %v", err)
	}
	if strings.Contains(out, "abcdef12") || !strings.Contains(out, "3456") {
		t.Fatalf("show output = %q, want masked key", out)
	}

	out, err = runRoot(t, "", "api-key", "show", "--reveal")
	if err != nil {
		t.Fatalf("api-key show --reveal error = %v", err)
	}
	if strings.TrimSpace(out) != "n8n_api_abcdef123456" {
		t.Fatalf("reveal output = %q", out)
	}
}

func TestAPIKeyShowWithoutKey(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_DIR", t.TempDir())
	t.Setenv("N8N_API_KEY", "")

	_, err := runRoot(t, "", "api-key", "show")
	if err == nil || !strings.Contains(err.Error(), "api-key save") {
		t.Fatalf("api-key show error = %v, want hint to save", err)
	}
}

func TestCollectTargets(t *testing.T) {
	dir := t.TempDir()
	composePath := filepath.Join(dir, "compose.yaml")
	body := `
name: n8n
services:
  n8n:
    image: docker.n8n.io/n8nio/n8n
    volumes:
      - ./data/n8n:/home/node/.n8n
      - ./files:/files:ro
  postgres:
    image: postgres:16
    volumes:
      - ./data/postgres:/var/lib/postgresql/data
`
	if err := os.WriteFile(composePath, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	explicit := filepath.Join(dir, "data", "n8n")
	targets, err := collectTargets(t.Context(), config.OwnershipConfig{
		Paths:   []string{explicit},
		UID:     1000,
		GID:     1000,
		Compose: composePath,
	})
	if err != nil {
		t.Fatalf("collectTargets() error = %v", err)
	}

	want := []string{explicit, filepath.Join(dir, "data", "postgres")}
	if len(targets) != len(want) {
		t.Fatalf("targets = %+v, want paths %v", targets, want)
	}
	for i, tg := range targets {
		if tg.Path != want[i] {
			t.Fatalf("target %d path = %q, want %q", i, tg.Path, want[i])
		}
		if tg.UID != 1000 || tg.GID != 1000 || tg.Mode != ownership.DefaultMode {
			t.Fatalf("target %d = %+v", i, tg)
		}
	}
}

func TestReportOwnershipPrintsRemediation(t *testing.T) {
	ui.ConfigureInteraction(true)
	target := ownership.Target{Path: "/srv/n8n/data", UID: 1000, GID: 1000, Mode: ownership.DefaultMode}
	results := []ownership.Result{
		{Target: target, Strategy: ownership.StrategyUnshare},
		{Target: target, Err: &ownership.UnreconciledError{
			Target:      target,
			Attempts:    []ownership.Attempt{{Strategy: ownership.StrategySudo, Err: errors.New("password required")}},
			Remediation: []string{"sudo chown -R 1000:1000 /srv/n8n/data"},
		}},
	}

	var buf bytes.Buffer
	reportOwnership(&buf, results)
	out := buf.String()
	for _, want := range []string{"fixed", "unreconciled", "$ sudo chown -R 1000:1000 /srv/n8n/data"} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}

func TestFixOwnershipContinuesPastUncreatableDirectory(t *testing.T) {
	ui.ConfigureInteraction(true)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "afile"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	good := filepath.Join(dir, "good")
	bad := filepath.Join(dir, "afile", "sub")

	fsys := fake.NewFilesystem()
	fsys.Add(good, 0, 0, 0o700)
	rc, err := ownership.NewReconciler(fsys, ownership.DirectStrategy{FS: fsys})
	if err != nil {
		t.Fatalf("NewReconciler() error = %v", err)
	}

	targets := []ownership.Target{
		{Path: bad, UID: 1000, GID: 1000},
		{Path: good, UID: 1000, GID: 1000},
	}
	var buf bytes.Buffer
	if err := runFixOwnership(t.Context(), &buf, rc, targets, true, metrics.New()); err != nil {
		t.Fatalf("runFixOwnership() error = %v", err)
	}

	if uid, gid, err := fsys.Owner(good); err != nil || uid != 1000 || gid != 1000 {
		t.Fatalf("good owner = %d:%d (%v), want 1000:1000", uid, gid, err)
	}
	if info, err := os.Stat(good); err != nil || !info.IsDir() {
		t.Fatalf("good dir not created: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"fixed", "unreconciled", "$ mkdir -p " + bad} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
}
