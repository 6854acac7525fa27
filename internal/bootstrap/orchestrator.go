package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"n8nstack/internal/retry"
	"n8nstack/internal/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "n8nstack/bootstrap"

// Options carries the already-resolved inputs of a run.
type Options struct {
	AdminEmail     string
	AdminPassword  string
	AdminFirstName string
	AdminLastName  string

	// Interval between polling attempts. Defaults to DefaultInterval.
	Interval time.Duration
	// SchemaAttempts bounds the schema wait. Defaults to DefaultSchemaAttempts.
	SchemaAttempts int
	// ProgressEvery controls how often the liveness and schema waits log
	// progress at info level.
	ProgressEvery int
}

func (o *Options) applyDefaults() {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.SchemaAttempts <= 0 {
		o.SchemaAttempts = DefaultSchemaAttempts
	}
	if o.ProgressEvery <= 0 {
		o.ProgressEvery = DefaultProgressEvery
	}
}

func (o Options) validate() error {
	email := strings.TrimSpace(o.AdminEmail)
	if email == "" {
		return errors.New("admin email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("admin email %q is invalid: %w", email, err)
	}
	if len(o.AdminPassword) < MinPasswordLength {
		return fmt.Errorf("admin password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

type Orchestrator struct {
	store   Store
	probe   LivenessProbe
	hasher  PasswordHasher
	newUUID func() string
	tracer  trace.Tracer
	log     *slog.Logger
	opts    Options
}

type Option func(*Orchestrator)

func WithHasher(h PasswordHasher) Option {
	return func(o *Orchestrator) { o.hasher = h }
}

// WithUUIDSource overrides the random source for user and project ids.
func WithUUIDSource(fn func() string) Option {
	return func(o *Orchestrator) { o.newUUID = fn }
}

func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

func New(store Store, probe LivenessProbe, opts Options, options ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("bootstrap: store is required")
	}
	if probe == nil {
		return nil, errors.New("bootstrap: liveness probe is required")
	}
	opts.AdminEmail = strings.TrimSpace(opts.AdminEmail)
	if err := opts.validate(); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	opts.applyDefaults()

	o := &Orchestrator{
		store:   store,
		probe:   probe,
		hasher:  BcryptHasher{cost: MinBcryptCost},
		newUUID: uuid.NewString,
		tracer:  otel.Tracer(tracerName),
		log:     slog.Default(),
		opts:    opts,
	}
	for _, opt := range options {
		opt(o)
	}
	o.log = o.log.With("component", "bootstrap")
	return o, nil
}

type phaseStep struct {
	phase Phase
	run   func(ctx context.Context, r *Report) error
}

// Run executes every phase in order and stops at the first fatal error,
// which is returned as a *PhaseError.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	report := newReport()
	var userID, workspaceID string

	steps := []phaseStep{
		{PhaseLiveness, o.waitAlive},
		{PhaseSchema, o.waitSchema},
		{PhaseAdmin, func(ctx context.Context, r *Report) error {
			id, err := o.ensureAdmin(ctx, r)
			userID = id
			return err
		}},
		{PhaseWorkspace, func(ctx context.Context, r *Report) error {
			id, err := o.ensureWorkspace(ctx, r, userID)
			workspaceID = id
			return err
		}},
		{PhaseMembership, func(ctx context.Context, r *Report) error {
			return o.ensureMembership(ctx, r, workspaceID, userID)
		}},
		{PhasePreferences, func(ctx context.Context, r *Report) error {
			return o.writePreferences(ctx, r, userID)
		}},
	}

	plan := telemetry.Plan{Steps: make([]telemetry.PlannedStep, 0, len(steps))}
	for _, s := range steps {
		plan.Steps = append(plan.Steps, telemetry.PlannedStep{ID: s.phase.String(), Title: s.phase.Title()})
	}
	op, err := telemetry.Start(ctx, o.tracer, "bootstrap", plan)
	if err != nil {
		return report, err
	}

	for _, s := range steps {
		report.Phase = report.Phase.Transition(s.phase)
		err := op.RunStep(op.Context(), s.phase.String(), func(stepCtx context.Context) error {
			return s.run(stepCtx, &report)
		})
		if err != nil {
			report.Phase = report.Phase.Transition(PhaseFailed)
			perr := &PhaseError{Phase: s.phase, Err: err}
			op.End(perr)
			o.log.Error("bootstrap failed", "phase", s.phase.String(), "err", err)
			return report, perr
		}
	}
	report.Phase = report.Phase.Transition(PhaseDone)
	op.End(nil)

	o.log.Info("bootstrap complete",
		"user_id", report.UserID,
		"workspace_id", report.WorkspaceID,
		"inserted", report.Inserts(),
		"repaired", len(report.Repaired))
	return report, nil
}

func (o *Orchestrator) waitAlive(ctx context.Context, r *Report) error {
	log := o.log.With("phase", PhaseLiveness.String())
	policy := retry.Policy{
		Interval: o.opts.Interval,
		OnRetry: func(attempt int, err error) {
			if attempt%o.opts.ProgressEvery == 0 {
				log.Info("still waiting for database", "attempt", attempt, "err", err)
				return
			}
			log.Debug("database not accepting connections yet", "attempt", attempt, "err", err)
		},
	}
	err := retry.Until(ctx, policy, func(ctx context.Context, attempt int) (bool, error) {
		r.LivenessAttempts = attempt
		if err := o.probe.Alive(ctx); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("wait for database: %w", err)
	}
	telemetry.Annotate(ctx, attribute.Int("attempts", r.LivenessAttempts))
	log.Info("database accepting connections", "attempts", r.LivenessAttempts)
	return nil
}

func (o *Orchestrator) waitSchema(ctx context.Context, r *Report) error {
	log := o.log.With("phase", PhaseSchema.String())
	missing := append([]string(nil), RequiredTables...)

	policy := retry.Policy{Interval: o.opts.Interval, MaxAttempts: o.opts.SchemaAttempts}
	err := retry.Until(ctx, policy, func(ctx context.Context, attempt int) (bool, error) {
		r.SchemaAttempts = attempt
		m, err := o.missingTables(ctx)
		if err == nil {
			missing = m
		}
		if attempt%o.opts.ProgressEvery == 0 {
			log.Info("waiting for schema", "attempt", attempt, "max", o.opts.SchemaAttempts, "missing", missing)
		}
		if err != nil {
			return false, err
		}
		return len(m) == 0, nil
	})
	telemetry.Annotate(ctx, attribute.Int("attempts", r.SchemaAttempts))
	if err == nil {
		log.Info("schema ready", "attempts", r.SchemaAttempts)
		return nil
	}
	if !errors.Is(err, retry.ErrExhausted) {
		return fmt.Errorf("wait for schema: %w", err)
	}

	final, err := o.missingTables(ctx)
	if err != nil {
		return &SchemaNotReadyError{Missing: missing, Attempts: r.SchemaAttempts, Err: err}
	}
	if len(final) > 0 {
		return &SchemaNotReadyError{Missing: final, Attempts: r.SchemaAttempts}
	}
	log.Info("schema ready on final check", "attempts", r.SchemaAttempts)
	return nil
}

func (o *Orchestrator) missingTables(ctx context.Context) ([]string, error) {
	var missing []string
	for _, table := range RequiredTables {
		ok, err := o.store.TableExists(ctx, table)
		if err != nil {
			return nil, fmt.Errorf("check table %q: %w", table, err)
		}
		if !ok {
			missing = append(missing, table)
		}
	}
	return missing, nil
}

func (o *Orchestrator) ensureAdmin(ctx context.Context, r *Report) (string, error) {
	email := o.opts.AdminEmail
	log := o.log.With("phase", PhaseAdmin.String(), "email", email)

	var userID string
	outcome, err := ensure(ctx, upsert{
		entity: EntityUser,
		find: func(ctx context.Context) (bool, error) {
			id, ok, err := o.store.UserIDByEmail(ctx, email)
			userID = id
			return ok, err
		},
		insert: func(ctx context.Context) (bool, error) {
			hash, err := o.hasher.Hash(o.opts.AdminPassword)
			if err != nil {
				return false, err
			}
			ok, err := o.store.RoleExists(ctx, RoleOwner)
			if err != nil {
				return false, fmt.Errorf("look up role %q: %w", RoleOwner, err)
			}
			if !ok {
				return false, &ResolutionError{Entity: "role", Key: RoleOwner}
			}
			return o.store.InsertUser(ctx, NewUser{
				ID:           o.newUUID(),
				Email:        email,
				FirstName:    o.opts.AdminFirstName,
				LastName:     o.opts.AdminLastName,
				PasswordHash: hash,
				RoleSlug:     RoleOwner,
			})
		},
	})
	if err != nil {
		return "", err
	}
	r.Outcomes[EntityUser] = outcome

	if outcome != OutcomeExisted {
		id, ok, err := o.store.UserIDByEmail(ctx, email)
		if err != nil {
			return "", fmt.Errorf("re-read user: %w", err)
		}
		if !ok {
			return "", &ResolutionError{Entity: "user", Key: email}
		}
		userID = id
	}
	if userID == "" {
		return "", &ResolutionError{Entity: "user", Key: email}
	}

	r.UserID = userID
	log.Info("owner account ensured", "user_id", userID, "outcome", outcome.String())
	return userID, nil
}

func (o *Orchestrator) ensureWorkspace(ctx context.Context, r *Report, userID string) (string, error) {
	log := o.log.With("phase", PhaseWorkspace.String())

	var ws Workspace
	outcome, err := ensure(ctx, upsert{
		entity: EntityWorkspace,
		find: func(ctx context.Context) (bool, error) {
			found, ok, err := o.store.PersonalWorkspace(ctx)
			ws = found
			return ok, err
		},
		insert: func(ctx context.Context) (bool, error) {
			ws = Workspace{
				ID:        o.shortID(),
				Name:      o.workspaceName(),
				Type:      WorkspaceKindPersonal,
				CreatorID: userID,
			}
			return o.store.InsertWorkspace(ctx, ws)
		},
	})
	if err != nil {
		return "", err
	}
	r.Outcomes[EntityWorkspace] = outcome

	if outcome == OutcomeRaced {
		found, ok, err := o.store.PersonalWorkspace(ctx)
		if err != nil {
			return "", fmt.Errorf("re-read personal project: %w", err)
		}
		if !ok {
			return "", &ResolutionError{Entity: "project", Key: WorkspaceKindPersonal}
		}
		ws = found
	}

	if ws.CreatorID != userID {
		if err := o.store.SetWorkspaceCreator(ctx, ws.ID, userID); err != nil {
			return "", fmt.Errorf("repair creator of project %q: %w", ws.ID, err)
		}
		log.Info("repaired project creator", "workspace_id", ws.ID, "previous", ws.CreatorID, "user_id", userID)
		r.Repaired = append(r.Repaired, EntityWorkspace)
	}

	r.WorkspaceID = ws.ID
	log.Info("personal project ensured", "workspace_id", ws.ID, "outcome", outcome.String())
	return ws.ID, nil
}

func (o *Orchestrator) ensureMembership(ctx context.Context, r *Report, workspaceID, userID string) error {
	outcome, err := ensure(ctx, upsert{
		entity: EntityMembership,
		find: func(ctx context.Context) (bool, error) {
			return o.store.MembershipExists(ctx, workspaceID, userID)
		},
		insert: func(ctx context.Context) (bool, error) {
			return o.store.InsertMembership(ctx, Membership{
				WorkspaceID: workspaceID,
				UserID:      userID,
				Role:        MembershipRoleOwner,
			})
		},
	})
	if err != nil {
		return err
	}
	r.Outcomes[EntityMembership] = outcome
	o.log.Info("project membership ensured", "phase", PhaseMembership.String(), "outcome", outcome.String())
	return nil
}

func (o *Orchestrator) writePreferences(ctx context.Context, _ *Report, userID string) error {
	payload, err := DefaultPreferences().encode()
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := o.store.WriteUserSettings(ctx, userID, payload); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	o.log.Debug("owner settings reset", "phase", PhasePreferences.String())
	return nil
}

func (o *Orchestrator) shortID() string {
	id := strings.ReplaceAll(o.newUUID(), "-", "")
	if len(id) > workspaceIDLength {
		id = id[:workspaceIDLength]
	}
	return id
}

func (o *Orchestrator) workspaceName() string {
	name := strings.TrimSpace(o.opts.AdminFirstName + " " + o.opts.AdminLastName)
	if name == "" {
		return "<" + o.opts.AdminEmail + ">"
	}
	return name + " <" + o.opts.AdminEmail + ">"
}
