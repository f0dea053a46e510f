package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avolkov/choreo/pkg/types/errs"
)

func TestDo_Success(t *testing.T) {
	calls := 0

	err := Do(context.Background(), 3, time.Millisecond, 10*time.Millisecond, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Errorf("expected no error, got: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got: %d", calls)
	}
}

func TestDo_SuccessAfterRetries(t *testing.T) {
	calls := 0

	err := Do(context.Background(), 3, time.Millisecond, 10*time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient error")
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected no error, got: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got: %d", calls)
	}
}

func TestDo_Exhausted(t *testing.T) {
	calls := 0
	permanent := errors.New("permanent error")

	err := Do(context.Background(), 3, time.Millisecond, 10*time.Millisecond, func() error {
		calls++
		return permanent
	})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, errs.ErrMaxRetriesExceeded) {
		t.Errorf("expected ErrMaxRetriesExceeded, got: %v", err)
	}
	if !errors.Is(err, permanent) {
		t.Errorf("expected wrapped original error, got: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got: %d", calls)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0

	err := Do(ctx, 5, 50*time.Millisecond, time.Second, func() error {
		calls++
		return errors.New("error")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if calls != 0 {
		t.Errorf("expected 0 calls with pre-cancelled context, got: %d", calls)
	}
}

func TestDo_ZeroAttemptsStillRunsOnce(t *testing.T) {
	calls := 0

	err := Do(context.Background(), 0, time.Millisecond, 10*time.Millisecond, func() error {
		calls++
		return errors.New("error")
	})
	if !errors.Is(err, errs.ErrMaxRetriesExceeded) {
		t.Errorf("expected ErrMaxRetriesExceeded, got: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got: %d", calls)
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		name     string
		base     time.Duration
		max      time.Duration
		attempt  int
		expected time.Duration
	}{
		{"first", time.Second, 30 * time.Second, 1, time.Second},
		{"second", time.Second, 30 * time.Second, 2, 2 * time.Second},
		{"third", time.Second, 30 * time.Second, 3, 4 * time.Second},
		{"fourth", time.Second, 30 * time.Second, 4, 8 * time.Second},
		{"fifth", time.Second, 30 * time.Second, 5, 16 * time.Second},
		{"capped", time.Second, 30 * time.Second, 6, 30 * time.Second},
		{"capped far", time.Second, 30 * time.Second, 20, 30 * time.Second},
		{"base above cap", time.Minute, 30 * time.Second, 1, 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual := Backoff(tt.base, tt.max, tt.attempt)
			if actual != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, actual)
			}
		})
	}
}
