package ownership_test

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"n8nstack/internal/adapter/fake"
	"n8nstack/internal/ownership"
)

const dataDir = "/srv/n8n/data"

func target() ownership.Target {
	return ownership.Target{Path: dataDir, UID: 1000, GID: 1000}
}

// namespace is the ownership as seen from inside the user namespace.
type namespace struct {
	uid, gid int
}

func (n *namespace) stat() ([]byte, error) {
	return []byte(fmt.Sprintf("%d:%d\n", n.uid, n.gid)), nil
}

func newHostFS() *fake.Filesystem {
	fs := fake.NewFilesystem()
	fs.Add(dataDir, 501, 20, 0o700)
	fs.Add(dataDir+"/config", 501, 20, 0o600)
	return fs
}

func unshareHandler(ns *namespace, applies bool) fake.CommandFunc {
	return func(args []string) ([]byte, error) {
		if len(args) < 2 || args[0] != "unshare" {
			return nil, fmt.Errorf("unexpected podman args %v", args)
		}
		switch args[1] {
		case "chown":
			if applies {
				if _, err := fmt.Sscanf(args[3], "%d:%d", &ns.uid, &ns.gid); err != nil {
					return nil, err
				}
			}
			return nil, nil
		case "chmod":
			return nil, nil
		case "stat":
			return ns.stat()
		}
		return nil, fmt.Errorf("unexpected podman args %v", args)
	}
}

func TestReconcileViaUnshare(t *testing.T) {
	fs := newHostFS()
	cmds := fake.NewCommandRunner()
	ns := &namespace{}
	cmds.Handle("podman", unshareHandler(ns, true))
	containers := &fake.ContainerRunner{}

	r, err := ownership.NewReconciler(fs, ownership.DefaultStrategies(cmds, containers, fs, "")...)
	if err != nil {
		t.Fatalf("NewReconciler() error = %v", err)
	}
	res := r.Reconcile(t.Context(), target())
	if res.Err != nil {
		t.Fatalf("Reconcile() Err = %v", res.Err)
	}
	if res.Strategy != ownership.StrategyUnshare {
		t.Fatalf("Strategy = %q, want %q", res.Strategy, ownership.StrategyUnshare)
	}
	if res.ModeErr != nil {
		t.Fatalf("ModeErr = %v", res.ModeErr)
	}

	want := []string{
		"podman unshare chown -R 1000:1000 " + dataDir,
		"podman unshare stat -c %u:%g " + dataDir,
		"podman unshare chmod -R 755 " + dataDir,
	}
	if got := cmds.Lines(); !slices.Equal(got, want) {
		t.Fatalf("commands = %q, want %q", got, want)
	}
	if n := containers.Count("RunOnce"); n != 0 {
		t.Fatalf("container strategy ran %d jobs, want 0", n)
	}
}

func TestReconcileFallsBackToContainer(t *testing.T) {
	fs := newHostFS()
	cmds := fake.NewCommandRunner() // no podman, no sudo
	ns := &namespace{}
	containers := &fake.ContainerRunner{Handler: func(job ownership.Job) (ownership.JobResult, error) {
		switch job.Cmd[0] {
		case "chown":
			_, err := fmt.Sscanf(job.Cmd[2], "%d:%d", &ns.uid, &ns.gid)
			return ownership.JobResult{}, err
		case "stat":
			out, _ := ns.stat()
			return ownership.JobResult{Output: string(out)}, nil
		}
		return ownership.JobResult{}, nil
	}}

	r, err := ownership.NewReconciler(fs, ownership.DefaultStrategies(cmds, containers, fs, "busybox:test")...)
	if err != nil {
		t.Fatal(err)
	}
	res := r.Reconcile(t.Context(), target())
	if res.Err != nil {
		t.Fatalf("Reconcile() Err = %v", res.Err)
	}
	if res.Strategy != ownership.StrategyContainer {
		t.Fatalf("Strategy = %q, want %q", res.Strategy, ownership.StrategyContainer)
	}
	if len(res.Attempts) != 2 || !errors.Is(res.Attempts[0].Err, ownership.ErrToolUnavailable) {
		t.Fatalf("Attempts = %+v, want unshare unavailable then container", res.Attempts)
	}

	jobs := containers.Jobs()
	if len(jobs) != 3 {
		t.Fatalf("jobs = %d, want chown, stat, chmod", len(jobs))
	}
	chown := jobs[0]
	if !chown.Privileged || chown.Image != "busybox:test" {
		t.Fatalf("chown job = %+v", chown)
	}
	if len(chown.Binds) != 1 || !chown.Binds[0].ChownToContainer || chown.Binds[0].Source != dataDir {
		t.Fatalf("chown binds = %+v, want %s with :U", chown.Binds, dataDir)
	}
	if jobs[1].Binds[0].ChownToContainer {
		t.Fatal("stat job must not remap ownership")
	}
	if got := strings.Join(jobs[2].Cmd, " "); got != "chmod -R 755 /target" {
		t.Fatalf("mode job = %q", got)
	}
}

func TestReconcileRejectsNoopSuccess(t *testing.T) {
	fs := newHostFS()
	cmds := fake.NewCommandRunner()
	cmds.Handle("podman", unshareHandler(&namespace{}, false))
	cmds.Handle("sudo", func(args []string) ([]byte, error) {
		if args[1] == "chown" {
			fs.SetOwnerAll(args[4], 1000, 1000)
		}
		return nil, nil
	})

	r, err := ownership.NewReconciler(fs, ownership.DefaultStrategies(cmds, nil, fs, "")...)
	if err != nil {
		t.Fatal(err)
	}
	res := r.Reconcile(t.Context(), target())
	if res.Err != nil {
		t.Fatalf("Reconcile() Err = %v", res.Err)
	}
	if res.Strategy != ownership.StrategySudo {
		t.Fatalf("Strategy = %q, want %q", res.Strategy, ownership.StrategySudo)
	}
	var mismatch *ownership.MismatchError
	if !errors.As(res.Attempts[0].Err, &mismatch) {
		t.Fatalf("unshare attempt error = %v, want *MismatchError", res.Attempts[0].Err)
	}
}

func TestReconcileUnreconciledIsWarning(t *testing.T) {
	fs := newHostFS()
	fs.FailAlways(fake.FaultFilesystemChown, errors.New("operation not permitted"))
	cmds := fake.NewCommandRunner()
	cmds.Handle("sudo", func([]string) ([]byte, error) {
		return []byte("sudo: a password is required"), errors.New("exit status 1")
	})
	containers := &fake.ContainerRunner{}
	containers.FailAlways(fake.FaultContainerRunOnce, errors.New("engine unreachable"))

	r, err := ownership.NewReconciler(fs, ownership.DefaultStrategies(cmds, containers, fs, "")...)
	if err != nil {
		t.Fatal(err)
	}
	res := r.Reconcile(t.Context(), target())
	if res.OK() {
		t.Fatal("Reconcile() OK = true, want unreconciled")
	}

	var unreconciled *ownership.UnreconciledError
	if !errors.As(res.Err, &unreconciled) {
		t.Fatalf("Err = %T %v, want *UnreconciledError", res.Err, res.Err)
	}
	if len(unreconciled.Attempts) != 4 {
		t.Fatalf("Attempts = %d, want 4", len(unreconciled.Attempts))
	}
	if !errors.Is(res.Err, ownership.ErrToolUnavailable) {
		t.Fatal("Err does not expose the unavailable tool")
	}
	wantCmds := []string{
		"podman unshare chown -R 1000:1000 " + dataDir,
		"sudo chown -R 1000:1000 " + dataDir,
	}
	for _, want := range wantCmds {
		if !slices.Contains(unreconciled.Remediation, want) {
			t.Errorf("Remediation = %q, missing %q", unreconciled.Remediation, want)
		}
	}
	if !strings.Contains(res.Err.Error(), "sudo: a password is required") {
		t.Errorf("Err = %q, want sudo output included", res.Err)
	}
	if fs.Count("ChmodAll") != 0 {
		t.Fatal("mode applied without verified ownership")
	}
}

func TestReconcileAlreadyOwned(t *testing.T) {
	fs := fake.NewFilesystem()
	fs.Add(dataDir, 1000, 1000, 0o700)
	cmds := fake.NewCommandRunner()

	r, err := ownership.NewReconciler(fs, ownership.DefaultStrategies(cmds, nil, fs, "")...)
	if err != nil {
		t.Fatal(err)
	}
	res := r.Reconcile(t.Context(), target())
	if res.Err != nil || !res.AlreadyOwned {
		t.Fatalf("Reconcile() = %+v, want already owned", res)
	}
	if fs.Count("ChownAll") != 0 {
		t.Fatal("ChownAll called for an already owned path")
	}
	if res.ModeErr != nil {
		t.Fatalf("ModeErr = %v", res.ModeErr)
	}
	if got := fs.Mode(dataDir); got != 0o755 {
		t.Fatalf("mode = %o, want 755", got)
	}
}

func TestReconcileModeFailureIsNonFatal(t *testing.T) {
	fs := newHostFS()
	fs.FailAlways(fake.FaultFilesystemChmod, errors.New("read-only file system"))

	r, err := ownership.NewReconciler(fs, ownership.DirectStrategy{FS: fs})
	if err != nil {
		t.Fatal(err)
	}
	res := r.Reconcile(t.Context(), target())
	if res.Err != nil {
		t.Fatalf("Err = %v", res.Err)
	}
	if res.Strategy != ownership.StrategyDirect {
		t.Fatalf("Strategy = %q", res.Strategy)
	}
	if res.ModeErr == nil {
		t.Fatal("ModeErr = nil, want chmod failure")
	}
}

func TestReconcileInvalidTarget(t *testing.T) {
	fs := fake.NewFilesystem()
	r, err := ownership.NewReconciler(fs, ownership.DirectStrategy{FS: fs})
	if err != nil {
		t.Fatal(err)
	}
	res := r.Reconcile(t.Context(), ownership.Target{Path: "relative/dir", UID: 1000, GID: 1000})
	if res.OK() {
		t.Fatal("Reconcile(relative) OK = true")
	}
	if fs.Count("") != 0 {
		t.Fatalf("filesystem touched: %v", fs.Calls(""))
	}
}

func TestNewReconcilerValidation(t *testing.T) {
	if _, err := ownership.NewReconciler(nil, ownership.DirectStrategy{}); err == nil {
		t.Fatal("NewReconciler(nil fs) error = nil")
	}
	if _, err := ownership.NewReconciler(fake.NewFilesystem()); err == nil {
		t.Fatal("NewReconciler(no strategies) error = nil")
	}
}

func TestPrepareFailedCarriesMkdirRemediation(t *testing.T) {
	fs := newHostFS()
	cmds := fake.NewCommandRunner()
	r, err := ownership.NewReconciler(fs, ownership.DefaultStrategies(cmds, nil, fs, "")...)
	if err != nil {
		t.Fatal(err)
	}

	cause := errors.New("mkdir: not a directory")
	res := r.PrepareFailed(target(), cause)
	if res.OK() {
		t.Fatal("PrepareFailed() OK = true")
	}
	var unreconciled *ownership.UnreconciledError
	if !errors.As(res.Err, &unreconciled) {
		t.Fatalf("Err = %T, want *UnreconciledError", res.Err)
	}
	if !errors.Is(res.Err, cause) {
		t.Fatal("Err does not wrap the mkdir failure")
	}
	if got := unreconciled.Remediation[0]; got != "mkdir -p "+dataDir {
		t.Fatalf("Remediation[0] = %q, want mkdir first", got)
	}
	if !slices.Contains(unreconciled.Remediation, "sudo chown -R 1000:1000 "+dataDir) {
		t.Fatalf("Remediation = %q, missing sudo chown", unreconciled.Remediation)
	}
	if len(cmds.Lines()) != 0 {
		t.Fatalf("strategies ran: %q", cmds.Lines())
	}
}
