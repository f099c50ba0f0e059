package waits

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"
)

// WaitStep is one named, timed attempt at detecting readiness. Steps are
// immutable once constructed and owned by the caller for one Run.
type WaitStep struct {
	Name    string
	Timeout time.Duration
	Execute func(ctx context.Context) error
}

// FixedDelayStep returns a step that simply sleeps for d. It never fails,
// so it only makes sense as the terminal, lowest-priority step of a
// progressive strategy. It must never be used as a standalone wait.
func FixedDelayStep(name string, d time.Duration) WaitStep {
	return WaitStep{
		Name:    name,
		Timeout: d + time.Second,
		Execute: func(ctx context.Context) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}
}

// ProgressiveWaitEngine executes an ordered cascade of wait steps, from
// most precise to least precise. The first step that completes within its
// timeout ends the run; a step that times out moves execution to the next
// step. Exhaustion of all steps is not an error: readiness signals are
// unreliable across environments, and callers order steps so the final one
// (typically a fixed delay) always completes. Callers that need a hard
// failure assert after the run.
type ProgressiveWaitEngine struct {
	logger arbor.ILogger
}

// NewProgressiveWaitEngine creates a progressive wait engine.
func NewProgressiveWaitEngine(logger arbor.ILogger) *ProgressiveWaitEngine {
	return &ProgressiveWaitEngine{logger: logger}
}

// Run executes steps strictly in order and returns the name of the step
// that succeeded, or "" if every step timed out. An empty step list
// returns immediately. Run never returns an error.
func (e *ProgressiveWaitEngine) Run(ctx context.Context, steps []WaitStep) string {
	for i, step := range steps {
		if ctx.Err() != nil {
			e.logger.Debug().
				Str("step", step.Name).
				Msg("Wait cascade abandoned, context cancelled")
			return ""
		}

		start := time.Now()
		err := e.runStep(ctx, step)
		if err == nil {
			e.logger.Debug().
				Str("step", step.Name).
				Int("position", i+1).
				Dur("elapsed", time.Since(start)).
				Msg("Wait step satisfied")
			return step.Name
		}

		e.logger.Debug().
			Str("step", step.Name).
			Int("position", i+1).
			Dur("timeout", step.Timeout).
			Err(err).
			Msg("Wait step timed out, trying next")
	}
	return ""
}

// runStep runs one step under its own timeout, cancelling the step's work
// when the budget elapses so no polling leaks past the deadline.
func (e *ProgressiveWaitEngine) runStep(ctx context.Context, step WaitStep) error {
	stepCtx, cancel := context.WithTimeout(ctx, step.Timeout)
	defer cancel()
	return step.Execute(stepCtx)
}
