package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestUntilBoundedExhausts(t *testing.T) {
	calls := 0
	err := Until(context.Background(), Policy{Interval: time.Millisecond, MaxAttempts: 60}, func(context.Context, int) (bool, error) {
		calls++
		return false, nil
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Until() error = %v, want ErrExhausted", err)
	}
	if calls != 60 {
		t.Fatalf("condition calls = %d, want 60", calls)
	}
}

func TestUntilSucceedsOnLaterAttempt(t *testing.T) {
	var seen []int
	retried := 0
	err := Until(context.Background(), Policy{
		Interval:    time.Millisecond,
		MaxAttempts: 10,
		OnRetry:     func(int, error) { retried++ },
	}, func(_ context.Context, attempt int) (bool, error) {
		seen = append(seen, attempt)
		return attempt == 3, nil
	})
	if err != nil {
		t.Fatalf("Until() error = %v", err)
	}
	if len(seen) != 3 || seen[0] != 1 || seen[2] != 3 {
		t.Fatalf("attempts = %v, want [1 2 3]", seen)
	}
	if retried != 2 {
		t.Fatalf("OnRetry calls = %d, want 2", retried)
	}
}

func TestUntilUnboundedKeepsPollingThroughErrors(t *testing.T) {
	flaky := errors.New("connection refused")
	err := Until(context.Background(), Policy{Interval: time.Millisecond}, func(_ context.Context, attempt int) (bool, error) {
		if attempt < 100 {
			return false, flaky
		}
		return true, nil
	})
	if err != nil {
		t.Fatalf("Until() error = %v", err)
	}
}

func TestUntilPermanentStopsImmediately(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Until(context.Background(), Policy{Interval: time.Millisecond, MaxAttempts: 5}, func(context.Context, int) (bool, error) {
		calls++
		return false, Permanent(boom)
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Until() error = %v, want boom", err)
	}
	if errors.Is(err, ErrExhausted) {
		t.Fatalf("Until() error = %v, must not report exhaustion", err)
	}
	if calls != 1 {
		t.Fatalf("condition calls = %d, want 1", calls)
	}
}

func TestUntilCancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := Until(ctx, Policy{Interval: 5 * time.Millisecond}, func(_ context.Context, attempt int) (bool, error) {
		if attempt == 2 {
			cancel()
		}
		return false, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Until() error = %v, want context.Canceled", err)
	}
}

func TestUntilRejectsInvalidPolicy(t *testing.T) {
	never := func(context.Context, int) (bool, error) { return false, nil }
	if err := Until(context.Background(), Policy{}, never); err == nil {
		t.Fatal("Until() error = nil, want error for zero interval")
	}
	if err := Until(context.Background(), Policy{Interval: time.Millisecond, MaxAttempts: -1}, never); err == nil {
		t.Fatal("Until() error = nil, want error for negative attempts")
	}
}
