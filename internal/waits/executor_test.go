package waits

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/emptor/internal/browser"
)

// newRecordingExecutor returns an executor whose backoff sleeps are
// recorded instead of actually waiting, so retry tests stay fast.
func newRecordingExecutor() (*ResilientActionExecutor, *[]time.Duration) {
	delays := []time.Duration{}
	e := NewResilientActionExecutor(testLogger())
	e.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}
	return e, &delays
}

func TestRetryPolicyDelayGrowsExponentially(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, BackoffMultiplier: 2}

	assert.Equal(t, 100*time.Millisecond, policy.Delay(0))
	assert.Equal(t, 200*time.Millisecond, policy.Delay(1))
	assert.Equal(t, 400*time.Millisecond, policy.Delay(2))
}

func TestPerformPrimarySuccessSkipsFallbacksAndBackoff(t *testing.T) {
	e, delays := newRecordingExecutor()

	fallbackRan := false
	outcome, err := e.Perform(context.Background(),
		Action{Name: "click", Run: func(ctx context.Context) error { return nil }},
		[]Action{{Name: "script-click", Run: func(ctx context.Context) error {
			fallbackRan = true
			return nil
		}}},
		RetryPolicy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, BackoffMultiplier: 2},
	)

	require.NoError(t, err)
	assert.True(t, outcome.Succeeded)
	assert.Equal(t, 1, outcome.AttemptsUsed)
	assert.Equal(t, "primary", outcome.StrategyUsed)
	assert.False(t, fallbackRan)
	assert.Empty(t, *delays, "a succeeding primary must never incur backoff delay")
}

func TestPerformFallbackAfterExhaustedPrimary(t *testing.T) {
	e, delays := newRecordingExecutor()

	primaryCalls := 0
	outcome, err := e.Perform(context.Background(),
		Action{Name: "click", Run: func(ctx context.Context) error {
			primaryCalls++
			return errors.New("element detached")
		}},
		[]Action{{Name: "script-click", Run: func(ctx context.Context) error { return nil }}},
		RetryPolicy{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, BackoffMultiplier: 2},
	)

	require.NoError(t, err)
	assert.True(t, outcome.Succeeded)
	assert.Equal(t, 3, primaryCalls)
	assert.Equal(t, 4, outcome.AttemptsUsed, "three primary failures plus one fallback success")
	assert.Equal(t, "fallback:script-click", outcome.StrategyUsed)

	// 100+200+400ms of backoff accrue before the fallback series begins.
	require.Len(t, *delays, 3)
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
	}, *delays)
}

func TestPerformInterceptedClickRecoveredByScriptClick(t *testing.T) {
	e, _ := newRecordingExecutor()

	outcome, err := e.Perform(context.Background(),
		Action{Name: "click", Run: func(ctx context.Context) error {
			return &browser.ClickInterceptedError{Selector: ".add-to-cart", Err: errors.New("overlay covers element")}
		}},
		[]Action{{Name: "script-click", Run: func(ctx context.Context) error { return nil }}},
		RetryPolicy{MaxAttempts: 1},
	)

	require.NoError(t, err)
	assert.True(t, outcome.Succeeded)
	assert.Equal(t, 2, outcome.AttemptsUsed)
	assert.Equal(t, "fallback:script-click", outcome.StrategyUsed)
}

func TestPerformAggregatesEveryErrorInOrder(t *testing.T) {
	e, _ := newRecordingExecutor()

	primaryErr := errors.New("primary failed")
	fb1Err := errors.New("script click failed")
	fb2Err := errors.New("direct navigation failed")

	outcome, err := e.Perform(context.Background(),
		Action{Name: "open-cart", Run: func(ctx context.Context) error { return primaryErr }},
		[]Action{
			{Name: "script-click", Run: func(ctx context.Context) error { return fb1Err }},
			{Name: "direct-url", Run: func(ctx context.Context) error { return fb2Err }},
		},
		RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, BackoffMultiplier: 1},
	)

	require.Error(t, err)
	assert.False(t, outcome.Succeeded)
	assert.Equal(t, 6, outcome.AttemptsUsed)
	assert.Empty(t, outcome.StrategyUsed)

	var exhausted *AllStrategiesExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.Attempts, 6)
	assert.Equal(t, "primary", exhausted.Attempts[0].Strategy)
	assert.Equal(t, "primary", exhausted.Attempts[1].Strategy)
	assert.Equal(t, "fallback:script-click", exhausted.Attempts[2].Strategy)
	assert.Equal(t, "fallback:script-click", exhausted.Attempts[3].Strategy)
	assert.Equal(t, "fallback:direct-url", exhausted.Attempts[4].Strategy)
	assert.Equal(t, "fallback:direct-url", exhausted.Attempts[5].Strategy)

	assert.ErrorIs(t, err, primaryErr)
	assert.ErrorIs(t, err, fb1Err)
	assert.ErrorIs(t, err, fb2Err)
}

func TestPerformSkipsBackoffAfterTerminalAttempt(t *testing.T) {
	e, delays := newRecordingExecutor()

	boom := errors.New("boom")
	_, err := e.Perform(context.Background(),
		Action{Name: "click", Run: func(ctx context.Context) error { return boom }},
		[]Action{{Name: "script-click", Run: func(ctx context.Context) error { return boom }}},
		RetryPolicy{MaxAttempts: 2, BaseDelay: 100 * time.Millisecond, BackoffMultiplier: 2},
	)

	require.Error(t, err)
	// Four attempts fail, but the last one has nothing after it, so only
	// three backoff delays are paid.
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		100 * time.Millisecond,
	}, *delays)
}

func TestPerformExactlyOneOfResultOrError(t *testing.T) {
	e, _ := newRecordingExecutor()

	outcome, err := e.Perform(context.Background(),
		Action{Name: "noop", Run: func(ctx context.Context) error { return errors.New("boom") }},
		nil,
		RetryPolicy{MaxAttempts: 1},
	)

	require.Error(t, err)
	assert.False(t, outcome.Succeeded)
	assert.Equal(t, err, outcome.Err)
}

func TestPerformStopsOnContextCancellation(t *testing.T) {
	e := NewResilientActionExecutor(testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	outcome, err := e.Perform(ctx,
		Action{Name: "click", Run: func(ctx context.Context) error {
			calls++
			cancel()
			return errors.New("transient")
		}},
		[]Action{{Name: "never", Run: func(ctx context.Context) error { return nil }}},
		RetryPolicy{MaxAttempts: 5, BaseDelay: 10 * time.Millisecond, BackoffMultiplier: 1},
	)

	require.Error(t, err)
	assert.False(t, outcome.Succeeded)
	assert.Equal(t, 1, calls, "no further attempts once the overall deadline is gone")
}

func TestPerformNormalizesDegeneratePolicy(t *testing.T) {
	e, _ := newRecordingExecutor()

	calls := 0
	outcome, err := e.Perform(context.Background(),
		Action{Name: "click", Run: func(ctx context.Context) error {
			calls++
			return nil
		}},
		nil,
		RetryPolicy{MaxAttempts: 0},
	)

	require.NoError(t, err)
	assert.Equal(t, 1, calls, "maxAttempts below 1 clamps to a single attempt")
	assert.Equal(t, 1, outcome.AttemptsUsed)
}
