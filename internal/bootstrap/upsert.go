package bootstrap

import (
	"context"
	"fmt"
)

// Outcome is the result of ensure.
type Outcome uint8

const (
	// OutcomeExisted: the row was already there; nothing was written.
	OutcomeExisted Outcome = iota + 1
	// OutcomeInserted: this run inserted the row.
	OutcomeInserted
	// OutcomeRaced: the row was absent at lookup but the conflict-safe
	// insert was a no-op, so another writer got there first.
	OutcomeRaced
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExisted:
		return "existed"
	case OutcomeInserted:
		return "inserted"
	case OutcomeRaced:
		return "raced"
	default:
		return "unknown"
	}
}

// upsert is a check-then-insert pair. insert must be conflict-safe and
// report whether it wrote a row.
type upsert struct {
	entity Entity
	find   func(ctx context.Context) (bool, error)
	insert func(ctx context.Context) (bool, error)
}

func ensure(ctx context.Context, u upsert) (Outcome, error) {
	found, err := u.find(ctx)
	if err != nil {
		return 0, fmt.Errorf("look up %s: %w", u.entity, err)
	}
	if found {
		return OutcomeExisted, nil
	}

	inserted, err := u.insert(ctx)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", u.entity, err)
	}
	if !inserted {
		return OutcomeRaced, nil
	}
	return OutcomeInserted, nil
}
