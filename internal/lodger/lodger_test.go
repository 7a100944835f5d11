package lodger

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"
)

func TestLodge_SuccessBranch(t *testing.T) {
	t.Parallel()
	s := NewSimulated(0, 0, 0)

	jobID, err := s.Lodge(context.Background(), "C1")
	if err != nil {
		t.Fatalf("Lodge: %v", err)
	}

	n, err := strconv.Atoi(jobID)
	if err != nil {
		t.Fatalf("job id %q is not numeric: %v", jobID, err)
	}
	if n < 1000000 || n >= 2000000 {
		t.Errorf("job id = %d, want within [1000000, 2000000)", n)
	}
}

func TestLodge_FailureBranch(t *testing.T) {
	t.Parallel()
	s := NewSimulated(0, 0, 1)

	_, err := s.Lodge(context.Background(), "C1")
	if !errors.Is(err, ErrLodgingFailed) {
		t.Fatalf("err = %v, want ErrLodgingFailed", err)
	}
	if err.Error() != "Failure detected in lodging job" {
		t.Errorf("cause = %q, want %q", err.Error(), "Failure detected in lodging job")
	}
}

func TestLodge_DelayWithinBounds(t *testing.T) {
	t.Parallel()
	s := NewSimulated(10*time.Millisecond, 30*time.Millisecond, 0)

	start := time.Now()
	if _, err := s.Lodge(context.Background(), "C1"); err != nil {
		t.Fatalf("Lodge: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("returned after %v, want at least the minimum delay", elapsed)
	}
}

func TestLodge_ContextCancelled(t *testing.T) {
	t.Parallel()
	s := NewSimulated(time.Hour, time.Hour, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Lodge(ctx, "C1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestLodge_OutcomeDistribution(t *testing.T) {
	t.Parallel()
	s := NewSimulated(0, 0, 0.2)

	failures := 0
	const attempts = 500
	for i := 0; i < attempts; i++ {
		if _, err := s.Lodge(context.Background(), "C1"); err != nil {
			failures++
		}
	}
	// 0.2 failure rate; allow a wide band to keep the test stable.
	if failures < 50 || failures > 150 {
		t.Errorf("failures = %d of %d, want roughly 20%%", failures, attempts)
	}
}
