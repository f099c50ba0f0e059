package waits

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
)

// DefaultPollInterval is used when a ConditionWaiter is constructed with a
// non-positive interval.
const DefaultPollInterval = 500 * time.Millisecond

// Predicate reports whether a condition currently holds. Returning an error
// means the evaluation itself failed; the waiter treats that as "not yet
// satisfied" and keeps polling, but remembers the error for diagnostics.
type Predicate func(ctx context.Context) (bool, error)

// ConditionWaiter polls a boolean condition until it holds or a deadline
// elapses. It is the single primitive underneath the progressive wait
// engine and the modal readiness detector.
type ConditionWaiter struct {
	pollInterval time.Duration
	logger       arbor.ILogger
}

// NewConditionWaiter creates a waiter with the given poll interval.
func NewConditionWaiter(pollInterval time.Duration, logger arbor.ILogger) *ConditionWaiter {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &ConditionWaiter{
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Await polls predicate until it returns true or timeout elapses.
// Predicate errors are swallowed and treated as "not yet satisfied"; the
// last one is attached to the returned ConditionTimeoutError. No timers are
// left running after return.
func (w *ConditionWaiter) Await(ctx context.Context, name string, predicate Predicate, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var lastErr error
	evaluations := 0

	// Evaluate immediately so a condition that already holds does not pay
	// one poll interval of latency.
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := predicate(waitCtx)
		evaluations++
		if err != nil {
			lastErr = err
		} else if ok {
			w.logger.Debug().
				Str("condition", name).
				Int("evaluations", evaluations).
				Msg("Condition satisfied")
			return nil
		}

		select {
		case <-waitCtx.Done():
			w.logger.Debug().
				Str("condition", name).
				Int("evaluations", evaluations).
				Dur("timeout", timeout).
				Msg("Condition wait timed out")
			return &ConditionTimeoutError{
				Condition: name,
				Timeout:   timeout,
				LastErr:   lastErr,
			}
		case <-ticker.C:
		}
	}
}
