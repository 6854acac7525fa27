package ownership

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Result describes one Reconcile call. Err is nil or an
// *UnreconciledError; ModeErr is set when ownership is right but the mode
// could not be applied. Neither is fatal to the caller.
type Result struct {
	Target       Target
	Strategy     string
	AlreadyOwned bool
	Attempts     []Attempt
	Err          error
	ModeErr      error
}

// OK reports whether ownership was verified.
func (r Result) OK() bool {
	return r.Err == nil
}

type Reconciler struct {
	fs         Filesystem
	strategies []Strategy
	log        *slog.Logger
}

// NewReconciler builds a reconciler that tries strategies in the given
// order and uses fsys for the host-side stat.
func NewReconciler(fsys Filesystem, strategies ...Strategy) (*Reconciler, error) {
	if fsys == nil {
		return nil, errors.New("ownership: filesystem is required")
	}
	if len(strategies) == 0 {
		return nil, errors.New("ownership: at least one strategy is required")
	}
	for i, s := range strategies {
		if s == nil {
			return nil, fmt.Errorf("ownership: strategy %d is nil", i)
		}
	}
	return &Reconciler{
		fs:         fsys,
		strategies: strategies,
		log:        slog.With("component", "ownership"),
	}, nil
}

// Reconcile makes t.Path owned by t.UID:t.GID and applies t.Mode. It only
// returns early on an invalid target; every other outcome is in the Result.
func (r *Reconciler) Reconcile(ctx context.Context, t Target) Result {
	t = t.withDefaults()
	res := Result{Target: t}
	if err := t.Validate(); err != nil {
		res.Err = &UnreconciledError{Target: t, Attempts: []Attempt{{Strategy: "validate", Err: err}}}
		return res
	}
	log := r.log.With("path", t.Path, "owner", t.Owner())

	var winner Strategy
	if r.alreadyOwned(t) {
		res.AlreadyOwned = true
		log.Debug("already owned by target")
	} else {
		winner = r.apply(ctx, t, &res, log)
		if winner == nil {
			res.Err = r.unreconciled(t, res.Attempts)
			log.Warn("ownership not reconciled", "attempts", len(res.Attempts))
			return res
		}
		res.Strategy = winner.Name()
		log.Info("ownership reconciled", "strategy", winner.Name())
	}

	if err := r.applyMode(ctx, t, winner); err != nil {
		res.ModeErr = err
		log.Warn("could not apply mode", "mode", t.modeArg(), "err", err)
	}
	return res
}

// alreadyOwned reports whether the host stat already shows the target owner.
// Mode is then applied by the first strategy that manages it.
func (r *Reconciler) alreadyOwned(t Target) bool {
	uid, gid, err := r.fs.Owner(t.Path)
	if err != nil {
		return false
	}
	return uid == t.UID && gid == t.GID
}

func (r *Reconciler) apply(ctx context.Context, t Target, res *Result, log *slog.Logger) Strategy {
	for _, s := range r.strategies {
		if ctx.Err() != nil {
			res.Attempts = append(res.Attempts, Attempt{Strategy: s.Name(), Err: ctx.Err()})
			return nil
		}
		err := s.Chown(ctx, t)
		if err == nil {
			err = r.verify(ctx, s, t)
		}
		res.Attempts = append(res.Attempts, Attempt{Strategy: s.Name(), Err: err})
		if err == nil {
			return s
		}
		if isUnavailable(err) {
			log.Debug("strategy unavailable", "strategy", s.Name(), "err", err)
		} else {
			log.Debug("strategy failed", "strategy", s.Name(), "err", err)
		}
	}
	return nil
}

func (r *Reconciler) verify(ctx context.Context, s Strategy, t Target) error {
	var (
		uid, gid int
		err      error
	)
	if v, ok := s.(OwnerViewer); ok {
		uid, gid, err = v.ViewOwner(ctx, t)
	} else {
		uid, gid, err = r.fs.Owner(t.Path)
	}
	if err != nil {
		return fmt.Errorf("verify owner: %w", err)
	}
	if uid != t.UID || gid != t.GID {
		return &MismatchError{Path: t.Path, WantUID: t.UID, WantGID: t.GID, GotUID: uid, GotGID: gid}
	}
	return nil
}

func (r *Reconciler) applyMode(ctx context.Context, t Target, winner Strategy) error {
	if winner != nil {
		return winner.Chmod(ctx, t)
	}
	var errs []error
	for _, s := range r.strategies {
		err := s.Chmod(ctx, t)
		if err == nil {
			return nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
	}
	return errors.Join(errs...)
}

func (r *Reconciler) unreconciled(t Target, attempts []Attempt) *UnreconciledError {
	e := &UnreconciledError{Target: t, Attempts: attempts}
	for _, s := range r.strategies {
		if s.Name() == StrategyDirect {
			continue
		}
		e.Remediation = append(e.Remediation, s.Remediation(t)...)
	}
	if len(e.Remediation) == 0 {
		e.Remediation = r.strategies[len(r.strategies)-1].Remediation(t)
	}
	return e
}

// PrepareFailed is the Result for a target whose directory could not be
// created before reconciling. It carries the usual remediation, preceded by
// the mkdir an operator has to run first.
func (r *Reconciler) PrepareFailed(t Target, err error) Result {
	t = t.withDefaults()
	attempts := []Attempt{{Strategy: "mkdir", Err: err}}
	ue := r.unreconciled(t, attempts)
	ue.Remediation = append([]string{"mkdir -p " + shellQuote(t.Path)}, ue.Remediation...)
	r.log.Warn("could not create directory", "path", t.Path, "err", err)
	return Result{Target: t, Attempts: attempts, Err: ue}
}
