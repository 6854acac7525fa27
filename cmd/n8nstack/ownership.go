package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"n8nstack/cmd/n8nstack/ui"
	"n8nstack/internal/adapter/docker"
	"n8nstack/internal/adapter/host"
	"n8nstack/internal/compose"
	"n8nstack/internal/config"
	"n8nstack/internal/metrics"
	"n8nstack/internal/ownership"

	"github.com/spf13/cobra"
)

func fixOwnershipCmd(g *globalFlags) *cobra.Command {
	var (
		paths       []string
		owner       string
		composeFile string
		services    []string
		helperImage string
		create      bool
	)

	cmd := &cobra.Command{
		Use:   "fix-ownership [path...]",
		Short: "Make shared storage owned by the container user",
		Long: "Sets the owner of each path to the container user and its mode to 755.\n" +
			"Tries podman unshare, a helper container, sudo and a plain chown in that order and\n" +
			"verifies every claimed success. Paths nothing could fix are reported with the\n" +
			"commands to run by hand; the command still exits 0.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := g.loadConfig(ctx, config.SectionOwnership)
			if err != nil {
				return err
			}

			oc := cfg.Ownership
			if explicit := append(append([]string(nil), args...), paths...); len(explicit) > 0 {
				oc.Paths = explicit
			}
			if owner != "" {
				if oc.UID, oc.GID, err = ownership.ParseOwner(owner); err != nil {
					return err
				}
			}
			if composeFile != "" {
				oc.Compose = composeFile
			}
			if len(services) > 0 {
				oc.Services = services
			}
			if helperImage != "" {
				oc.HelperImage = helperImage
			}

			targets, err := collectTargets(ctx, oc)
			if err != nil {
				return err
			}
			if len(targets) == 0 {
				return errors.New("no paths to fix: pass paths, --path or --compose")
			}

			rc, closeEngine, err := newReconciler(cfg.Engine.Host, oc.HelperImage)
			if err != nil {
				return err
			}
			defer closeEngine()

			rec := metrics.New()
			defer flushMetrics(cfg, rec)
			return runFixOwnership(ctx, cmd.OutOrStdout(), rc, targets, create, rec)
		},
	}

	cmd.Flags().StringArrayVar(&paths, "path", nil, "Path to fix (repeatable)")
	cmd.Flags().StringVar(&owner, "owner", "", "Owner as uid:gid (default from config, 1000:1000)")
	cmd.Flags().StringVar(&composeFile, "compose", "", "Compose file whose bind mounts should be fixed")
	cmd.Flags().StringArrayVar(&services, "service", nil, "Limit compose discovery to this service (repeatable)")
	cmd.Flags().StringVar(&helperImage, "helper-image", "", "Image for the helper container")
	cmd.Flags().BoolVar(&create, "create", true, "Create missing directories first")
	return cmd
}

// collectTargets merges explicit paths with the writable bind mounts of the
// compose project, dropping duplicates.
func collectTargets(ctx context.Context, oc config.OwnershipConfig) ([]ownership.Target, error) {
	var sources []string
	for _, p := range oc.Paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		sources = append(sources, abs)
	}

	if oc.Compose != "" {
		project, err := compose.Load(ctx, oc.Compose, environ())
		if err != nil {
			return nil, err
		}
		mounts, err := compose.BindMounts(project, oc.Services...)
		if err != nil {
			return nil, err
		}
		for _, m := range mounts {
			if m.ReadOnly {
				slog.Debug("skipping read-only mount", "service", m.Service, "source", m.Source)
				continue
			}
			sources = append(sources, m.Source)
		}
	}

	seen := make(map[string]struct{}, len(sources))
	targets := make([]ownership.Target, 0, len(sources))
	for _, src := range sources {
		if _, dup := seen[src]; dup {
			continue
		}
		seen[src] = struct{}{}
		targets = append(targets, ownership.Target{Path: src, UID: oc.UID, GID: oc.GID, Mode: ownership.DefaultMode})
	}
	return targets, nil
}

// newReconciler wires the host tools and, when an engine client can be
// built, the helper-container strategy.
func newReconciler(engineHost, image string) (*ownership.Reconciler, func(), error) {
	closeEngine := func() {}
	var containers ownership.ContainerRunner
	if rt, err := docker.NewRuntime(engineHost); err != nil {
		slog.Debug("container strategy disabled", "err", err)
	} else {
		closeEngine = func() { _ = rt.Close() }
		containers = rt
	}

	fsys := host.FS{}
	rc, err := ownership.NewReconciler(fsys, ownership.DefaultStrategies(host.Runner{}, containers, fsys, image)...)
	if err != nil {
		closeEngine()
		return nil, func() {}, err
	}
	return rc, closeEngine, nil
}

// runFixOwnership reconciles every target. A directory that cannot be
// created becomes an unreconciled result for that target only; the error
// return is reserved for cancellation.
func runFixOwnership(ctx context.Context, out io.Writer, rc *ownership.Reconciler, targets []ownership.Target, create bool, rec *metrics.Recorder) error {
	results := make([]ownership.Result, 0, len(targets))
	for _, t := range targets {
		var res ownership.Result
		if err := prepare(t, create); err != nil {
			res = rc.PrepareFailed(t, err)
		} else {
			res = rc.Reconcile(ctx, t)
		}
		rec.ObserveOwnership(res)
		results = append(results, res)
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	reportOwnership(out, results)
	return nil
}

func prepare(t ownership.Target, create bool) error {
	if !create {
		return nil
	}
	if err := os.MkdirAll(t.Path, ownership.DefaultMode); err != nil {
		return fmt.Errorf("create %s: %w", t.Path, err)
	}
	return nil
}

func reportOwnership(out io.Writer, results []ownership.Result) {
	rows := make([][]string, 0, len(results))
	for _, res := range results {
		rows = append(rows, []string{res.Target.Path, res.Target.Owner(), strategyLabel(res), outcomeLabel(res)})
	}
	fmt.Fprintln(out, ui.Table([]string{"PATH", "OWNER", "STRATEGY", "RESULT"}, rows))

	for _, res := range results {
		if res.ModeErr != nil {
			fmt.Fprintln(out, ui.Line(ui.Warn, "%s: owner set but mode not applied: %v", res.Target.Path, res.ModeErr))
		}
		var unreconciled *ownership.UnreconciledError
		if !errors.As(res.Err, &unreconciled) {
			continue
		}
		fmt.Fprintln(out, ui.Line(ui.Warn, "%s could not be fixed automatically; run one of:", ui.Active.Render(res.Target.Path)))
		fmt.Fprint(out, ui.Commands("    ", unreconciled.Remediation))
	}
}

func strategyLabel(res ownership.Result) string {
	switch {
	case res.AlreadyOwned:
		return ui.Neutral.Render("none")
	case res.Strategy == "":
		return ui.Neutral.Render("-")
	default:
		return res.Strategy
	}
}

func outcomeLabel(res ownership.Result) string {
	switch {
	case !res.OK():
		return ui.Warn.Render("unreconciled")
	case res.AlreadyOwned:
		return ui.Good.Render("already owned")
	default:
		return ui.Good.Render("fixed")
	}
}
