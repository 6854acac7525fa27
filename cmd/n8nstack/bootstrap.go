package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"n8nstack/cmd/n8nstack/ui"
	"n8nstack/internal/adapter/docker"
	"n8nstack/internal/adapter/sqlstore"
	"n8nstack/internal/bootstrap"
	"n8nstack/internal/compose"
	"n8nstack/internal/config"
	"n8nstack/internal/metrics"
	"n8nstack/internal/probe"

	"github.com/spf13/cobra"
)

func bootstrapCmd(g *globalFlags) *cobra.Command {
	var (
		composeFile string
		dbService   string
	)

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Wait for the database and provision the owner account",
		Long: "Waits until the database answers and n8n has created its tables, then makes sure\n" +
			"the owner account, its personal project and the membership between them exist.\n" +
			"Safe to re-run; existing rows are left alone and a broken project owner is repaired.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := g.loadConfig(ctx, config.SectionBootstrap)
			if err != nil {
				return err
			}
			if composeFile == "" {
				composeFile = cfg.Ownership.Compose
			}
			if dbService != "" {
				name, err := resolveContainer(ctx, composeFile, dbService)
				if err != nil {
					return err
				}
				cfg.Database.Container = name
			}
			return runBootstrap(ctx, cmd.OutOrStdout(), cfg)
		},
	}

	cmd.Flags().StringVar(&composeFile, "compose", "", "Compose file used to resolve --db-service")
	cmd.Flags().StringVar(&dbService, "db-service", "", "Compose service of the database; probes it with pg_isready")
	return cmd
}

func resolveContainer(ctx context.Context, composeFile, service string) (string, error) {
	if composeFile == "" {
		return "", errors.New("--db-service requires --compose or ownership.compose")
	}
	project, err := compose.Load(ctx, composeFile, environ())
	if err != nil {
		return "", err
	}
	return compose.ContainerName(project, service)
}

func runBootstrap(ctx context.Context, out io.Writer, cfg config.Config) error {
	dialect, err := sqlstore.ParseDialect(cfg.Database.Type)
	if err != nil {
		return err
	}
	slog.Debug("opening database", "dsn", cfg.Database.Redacted())
	store, err := sqlstore.Open(dialect, cfg.Database.ConnString(), sqlstore.WithTablePrefix(cfg.Database.TablePrefix))
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	liveness, closeProbes, err := livenessProbes(ctx, cfg, store)
	if err != nil {
		return err
	}
	defer closeProbes()

	hasher, err := bootstrap.NewBcryptHasher(cfg.Bootstrap.BcryptCost)
	if err != nil {
		return err
	}

	tel := ui.NewTelemetryOutput()
	defer tel.Close()

	orch, err := bootstrap.New(store, liveness, bootstrap.Options{
		AdminEmail:     cfg.Admin.Email,
		AdminPassword:  cfg.Admin.Password,
		AdminFirstName: cfg.Admin.FirstName,
		AdminLastName:  cfg.Admin.LastName,
		Interval:       cfg.Bootstrap.Interval,
		SchemaAttempts: cfg.Bootstrap.SchemaAttempts,
	},
		bootstrap.WithHasher(hasher),
		bootstrap.WithTracer(tel.Tracer("n8nstack/bootstrap")),
	)
	if err != nil {
		return err
	}

	rec := metrics.New()
	defer flushMetrics(cfg, rec)

	report, runErr := orch.Run(ctx)
	rec.ObserveBootstrap(report, runErr)
	if runErr != nil {
		return decorateBootstrapError(runErr)
	}

	fmt.Fprint(out, ui.NewFields("  ").
		Add("owner", cfg.Admin.Email).
		Add("user id", report.UserID).
		Add("project id", report.WorkspaceID).
		Add("inserted", strconv.Itoa(report.Inserts())).
		Add("repaired", entityList(report.Repaired)))
	if report.Changed() {
		fmt.Fprintln(out, ui.Line(ui.Good, "bootstrap complete"))
	} else {
		fmt.Fprintln(out, ui.Line(ui.Good, "bootstrap complete, nothing to change"))
	}
	return nil
}

// livenessProbes builds the probe set for cfg: pg_isready inside the
// database container when one is named, a pool ping otherwise, plus Redis
// when configured.
func livenessProbes(ctx context.Context, cfg config.Config, store *sqlstore.Store) (bootstrap.LivenessProbe, func(), error) {
	var (
		probes  []bootstrap.LivenessProbe
		closers []func()
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.Database.Container != "" && !cfg.Database.IsSQLite() {
		rt, err := docker.NewRuntime(cfg.Engine.Host)
		if err != nil {
			return nil, closeAll, err
		}
		closers = append(closers, func() { _ = rt.Close() })
		if err := rt.WaitReady(ctx); err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("container engine: %w", err)
		}
		probes = append(probes,
			probe.HealthProbe{Inspect: rt, Container: cfg.Database.Container},
			probe.ContainerProbe{Exec: rt, Container: cfg.Database.Container, User: cfg.Database.User, Database: cfg.Database.Name},
		)
	}
	probes = append(probes, probe.SQLProbe{DB: store.DB()})

	if cfg.Redis.URL != "" {
		rp, err := probe.NewRedisProbe(cfg.Redis.URL)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		rp.ReadWrite = cfg.Redis.ReadWrite
		closers = append(closers, func() { _ = rp.Close() })
		probes = append(probes, rp)
	}
	return probe.All(probes...), closeAll, nil
}

func decorateBootstrapError(err error) error {
	var schemaErr *bootstrap.SchemaNotReadyError
	if errors.As(err, &schemaErr) {
		return fmt.Errorf("%w. check that n8n started and ran its migrations, then re-run bootstrap", err)
	}
	var resErr *bootstrap.ResolutionError
	if errors.As(err, &resErr) {
		return fmt.Errorf("%w. re-run bootstrap; if it persists inspect the %s table", err, resErr.Entity)
	}
	return err
}

func entityList(entities []bootstrap.Entity) string {
	if len(entities) == 0 {
		return "none"
	}
	names := make([]string, len(entities))
	for i, e := range entities {
		names[i] = string(e)
	}
	return strings.Join(names, ", ")
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}
