package waits

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingStep never completes within its timeout.
func blockingStep(name string) WaitStep {
	return WaitStep{
		Name:    name,
		Timeout: 20 * time.Millisecond,
		Execute: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
}

func TestProgressiveEngineReturnsOnFirstSuccess(t *testing.T) {
	engine := NewProgressiveWaitEngine(testLogger())

	executed := []string{}
	steps := []WaitStep{
		blockingStep("precise-signal"),
		{
			Name:    "secondary-signal",
			Timeout: 100 * time.Millisecond,
			Execute: func(ctx context.Context) error {
				executed = append(executed, "secondary-signal")
				return nil
			},
		},
		{
			Name:    "must-not-run",
			Timeout: 100 * time.Millisecond,
			Execute: func(ctx context.Context) error {
				executed = append(executed, "must-not-run")
				return nil
			},
		},
	}

	satisfied := engine.Run(context.Background(), steps)

	assert.Equal(t, "secondary-signal", satisfied)
	assert.Equal(t, []string{"secondary-signal"}, executed, "steps after the first success must not execute")
}

func TestProgressiveEngineExhaustionIsNotAnError(t *testing.T) {
	engine := NewProgressiveWaitEngine(testLogger())

	// Every step times out. This is the documented best-effort design:
	// the cascade returns normally rather than failing.
	steps := []WaitStep{
		blockingStep("dom-ready"),
		blockingStep("network-idle"),
	}

	satisfied := engine.Run(context.Background(), steps)
	assert.Empty(t, satisfied, "exhaustion reports no satisfied step but must not fail")
}

func TestProgressiveEngineEmptyStepsReturnsImmediately(t *testing.T) {
	engine := NewProgressiveWaitEngine(testLogger())

	start := time.Now()
	satisfied := engine.Run(context.Background(), nil)

	assert.Empty(t, satisfied)
	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

func TestProgressiveEngineStepsRunStrictlyInOrder(t *testing.T) {
	engine := NewProgressiveWaitEngine(testLogger())

	var order []string
	step := func(name string) WaitStep {
		return WaitStep{
			Name:    name,
			Timeout: 10 * time.Millisecond,
			Execute: func(ctx context.Context) error {
				order = append(order, name)
				<-ctx.Done()
				return ctx.Err()
			},
		}
	}

	engine.Run(context.Background(), []WaitStep{step("first"), step("second"), step("third")})
	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestProgressiveEngineStopsWhenContextCancelled(t *testing.T) {
	engine := NewProgressiveWaitEngine(testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	satisfied := engine.Run(ctx, []WaitStep{
		{
			Name:    "never",
			Timeout: time.Second,
			Execute: func(ctx context.Context) error {
				ran = true
				return nil
			},
		},
	})

	assert.Empty(t, satisfied)
	assert.False(t, ran, "steps must not run once the overall deadline has expired")
}

func TestFixedDelayStepCompletes(t *testing.T) {
	step := FixedDelayStep("settle", 15*time.Millisecond)

	start := time.Now()
	err := step.Execute(context.Background())

	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestFixedDelayStepHonoursCancellation(t *testing.T) {
	step := FixedDelayStep("settle", 10*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := step.Execute(ctx)

	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}
