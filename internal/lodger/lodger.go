// Package lodger models the external lodging operation that produces a
// job's terminal outcome.
package lodger

import (
	"context"
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"time"
)

// ErrLodgingFailed is the modeled failure outcome of a lodging attempt. The
// worker records it as a FAILURE rather than treating it as an invocation
// error.
var ErrLodgingFailed = errors.New("Failure detected in lodging job")

// Lodger performs the lodging operation for one contact. A production
// implementation calls the downstream system; Simulated stands in for it.
type Lodger interface {
	// Lodge attempts to lodge the job and returns the downstream job id.
	// A context error means the attempt was cut off, not that it failed.
	Lodge(ctx context.Context, contactID string) (jobID string, err error)
}

// Simulated waits a uniform random delay from [MinDelay, MaxDelay), then
// fails with probability FailureRate and otherwise succeeds with a synthetic
// job id in [1000000, 2000000).
type Simulated struct {
	MinDelay    time.Duration
	MaxDelay    time.Duration
	FailureRate float64

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulated(minDelay, maxDelay time.Duration, failureRate float64) *Simulated {
	return &Simulated{
		MinDelay:    minDelay,
		MaxDelay:    maxDelay,
		FailureRate: failureRate,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *Simulated) Lodge(ctx context.Context, contactID string) (string, error) {
	delay, fail, jobID := s.draw()

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
	}

	if fail {
		return "", ErrLodgingFailed
	}
	return jobID, nil
}

// draw samples the delay and outcome under the lock; rand.Rand is not safe
// for concurrent use.
func (s *Simulated) draw() (time.Duration, bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delay := s.MinDelay
	if spread := s.MaxDelay - s.MinDelay; spread > 0 {
		delay += time.Duration(s.rng.Int63n(int64(spread)))
	}
	fail := s.rng.Float64() < s.FailureRate
	jobID := strconv.Itoa(1000000 + s.rng.Intn(1000000))
	return delay, fail, jobID
}
