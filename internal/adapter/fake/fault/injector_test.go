package fault

import (
	"errors"
	"testing"
)

const testPoint = "store.insert_user"

func TestInjectorFailOnceQueuesInOrder(t *testing.T) {
	i := NewInjector()
	first, second := errors.New("first"), errors.New("second")
	i.FailOnce(testPoint, first)
	i.FailOnce(testPoint, second)

	if err := i.Eval(testPoint); !errors.Is(err, first) {
		t.Fatalf("Eval #1 error = %v, want %v", err, first)
	}
	if err := i.Eval(testPoint); !errors.Is(err, second) {
		t.Fatalf("Eval #2 error = %v, want %v", err, second)
	}
	if err := i.Eval(testPoint); err != nil {
		t.Fatalf("Eval #3 error = %v, want nil", err)
	}
	if got := i.Evals(testPoint); got != 3 {
		t.Fatalf("Evals() = %d, want 3", got)
	}
}

func TestInjectorFailAlwaysUntilCleared(t *testing.T) {
	i := NewInjector()
	injected := errors.New("down")
	i.FailAlways(testPoint, injected)

	for n := range 3 {
		if err := i.Eval(testPoint); !errors.Is(err, injected) {
			t.Fatalf("Eval #%d error = %v, want %v", n+1, err, injected)
		}
	}
	i.Clear(testPoint)
	if err := i.Eval(testPoint); err != nil {
		t.Fatalf("Eval after Clear error = %v", err)
	}
}

func TestInjectorHookSeesArgs(t *testing.T) {
	i := NewInjector()
	blocked := errors.New("blocked")
	i.SetHook(testPoint, func(args ...any) error {
		if len(args) == 1 && args[0] == "owner@example.com" {
			return blocked
		}
		return nil
	})

	if err := i.Eval(testPoint, "other@example.com"); err != nil {
		t.Fatalf("Eval(other) error = %v", err)
	}
	if err := i.Eval(testPoint, "owner@example.com"); !errors.Is(err, blocked) {
		t.Fatalf("Eval(owner) error = %v, want %v", err, blocked)
	}
}

func TestInjectorReset(t *testing.T) {
	i := NewInjector()
	i.FailAlways(testPoint, errors.New("x"))
	i.Reset()
	if err := i.Eval(testPoint); err != nil {
		t.Fatalf("Eval after Reset error = %v", err)
	}
}
