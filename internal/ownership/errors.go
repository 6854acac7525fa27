package ownership

import (
	"errors"
	"fmt"
	"strings"
)

// errNotApplied marks a strategy that exited cleanly but left the owner
// unchanged.
var errNotApplied = errors.New("ownership unchanged after strategy")

// Attempt is one strategy tried by the reconciler.
type Attempt struct {
	Strategy string
	Err      error
}

// UnreconciledError reports that no strategy could take ownership of the
// target. Remediation holds commands for an operator, one per line.
type UnreconciledError struct {
	Target      Target
	Attempts    []Attempt
	Remediation []string
}

func (e *UnreconciledError) Error() string {
	tried := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		tried = append(tried, fmt.Sprintf("%s: %v", a.Strategy, a.Err))
	}
	msg := fmt.Sprintf("could not set ownership of %s to %s", e.Target.Path, e.Target.Owner())
	if len(tried) > 0 {
		msg += " (" + strings.Join(tried, "; ") + ")"
	}
	return msg
}

func (e *UnreconciledError) Unwrap() []error {
	errs := make([]error, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		errs = append(errs, a.Err)
	}
	return errs
}

// MismatchError is a failed stat-and-compare.
type MismatchError struct {
	Path    string
	WantUID int
	WantGID int
	GotUID  int
	GotGID  int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s is owned by %d:%d, want %d:%d", e.Path, e.GotUID, e.GotGID, e.WantUID, e.WantGID)
}

func (e *MismatchError) Unwrap() error { return errNotApplied }
