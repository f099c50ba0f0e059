package waits

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ternarybob/arbor"
)

// RetryPolicy parameterizes one Perform call. The delay before retrying
// attempt i (0-indexed) is BaseDelay * BackoffMultiplier^i.
type RetryPolicy struct {
	MaxAttempts       int     `validate:"min=1"`
	BaseDelay         time.Duration
	BackoffMultiplier float64 `validate:"min=1"`
}

// Delay returns the backoff delay following failed attempt i (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return time.Duration(float64(p.BaseDelay) * math.Pow(p.BackoffMultiplier, float64(attempt)))
}

// normalize clamps out-of-range values to the policy invariants.
func (p RetryPolicy) normalize() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BackoffMultiplier < 1 {
		p.BackoffMultiplier = 1
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	return p
}

// Action is one way of performing a user-facing operation. Actions that
// produce a value close over a destination, the same way chromedp actions
// write through result pointers.
type Action struct {
	Name string
	Run  func(ctx context.Context) error
}

// ActionOutcome describes one Perform invocation. It is created per call
// and not persisted.
type ActionOutcome struct {
	Succeeded    bool
	AttemptsUsed int
	StrategyUsed string
	Err          error
}

// ResilientActionExecutor wraps a single user-facing action with retries
// and an ordered list of fallback actions. Attempts are strictly
// sequential; there are no concurrent retries.
type ResilientActionExecutor struct {
	logger arbor.ILogger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewResilientActionExecutor creates an executor.
func NewResilientActionExecutor(logger arbor.ILogger) *ResilientActionExecutor {
	return &ResilientActionExecutor{
		logger: logger,
		sleep:  sleepCtx,
	}
}

// Perform attempts primary under policy, then each fallback in order under
// the same policy. The first success returns immediately. If every attempt
// of every strategy fails, the returned error is an
// AllStrategiesExhaustedError aggregating each individual error in order.
// Exactly one of {success outcome, aggregated error} is produced.
func (e *ResilientActionExecutor) Perform(ctx context.Context, primary Action, fallbacks []Action, policy RetryPolicy) (ActionOutcome, error) {
	policy = policy.normalize()

	actionName := primary.Name
	if actionName == "" {
		actionName = "action"
	}

	var history []AttemptError
	attemptsUsed := 0

	strategies := make([]struct {
		label  string
		action Action
	}, 0, len(fallbacks)+1)
	strategies = append(strategies, struct {
		label  string
		action Action
	}{"primary", primary})
	for _, fb := range fallbacks {
		strategies = append(strategies, struct {
			label  string
			action Action
		}{"fallback:" + fb.Name, fb})
	}

	for si, s := range strategies {
		for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
			if err := ctx.Err(); err != nil {
				return e.exhausted(actionName, attemptsUsed, history, err)
			}

			attemptsUsed++
			err := s.action.Run(ctx)
			if err == nil {
				if len(history) > 0 {
					e.logger.Info().
						Str("action", actionName).
						Str("strategy", s.label).
						Int("attempts", attemptsUsed).
						Msg("Action succeeded after retries")
				}
				return ActionOutcome{
					Succeeded:    true,
					AttemptsUsed: attemptsUsed,
					StrategyUsed: s.label,
				}, nil
			}

			history = append(history, AttemptError{
				Strategy: s.label,
				Attempt:  attempt + 1,
				Err:      err,
			})

			// No backoff after the terminal attempt: nothing follows it.
			terminal := attempt == policy.MaxAttempts-1 && si == len(strategies)-1

			backoff := policy.Delay(attempt)
			e.logger.Debug().
				Str("action", actionName).
				Str("strategy", s.label).
				Int("attempt", attempt+1).
				Int("max_attempts", policy.MaxAttempts).
				Dur("backoff", backoff).
				Err(err).
				Msg("Attempt failed")

			if backoff > 0 && !terminal {
				if err := e.sleep(ctx, backoff); err != nil {
					return e.exhausted(actionName, attemptsUsed, history, err)
				}
			}
		}
	}

	return e.exhausted(actionName, attemptsUsed, history, nil)
}

// exhausted builds the terminal outcome once no strategy can succeed.
func (e *ResilientActionExecutor) exhausted(action string, attemptsUsed int, history []AttemptError, cause error) (ActionOutcome, error) {
	if cause != nil {
		history = append(history, AttemptError{
			Strategy: "cancelled",
			Attempt:  attemptsUsed,
			Err:      cause,
		})
	}
	err := &AllStrategiesExhaustedError{
		Action:   action,
		Attempts: history,
	}
	e.logger.Warn().
		Str("action", action).
		Int("attempts", attemptsUsed).
		Msg("All strategies exhausted")
	return ActionOutcome{
		Succeeded:    false,
		AttemptsUsed: attemptsUsed,
		StrategyUsed: "",
		Err:          err,
	}, err
}

// sleepCtx sleeps for d unless ctx is cancelled first. The timer is always
// stopped before return.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
