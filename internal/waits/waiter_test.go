package waits

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func testLogger() arbor.ILogger {
	return arbor.NewLogger()
}

func TestConditionWaiterImmediateSuccess(t *testing.T) {
	waiter := NewConditionWaiter(10*time.Millisecond, testLogger())

	calls := 0
	start := time.Now()
	err := waiter.Await(context.Background(), "already-true", func(ctx context.Context) (bool, error) {
		calls++
		return true, nil
	}, time.Second)

	require.NoError(t, err)
	assert.Equal(t, 1, calls, "predicate should be evaluated exactly once")
	assert.Less(t, time.Since(start), 100*time.Millisecond, "an already-true condition must not pay a poll interval")
}

func TestConditionWaiterSwallowsPredicateErrors(t *testing.T) {
	waiter := NewConditionWaiter(5*time.Millisecond, testLogger())

	calls := 0
	err := waiter.Await(context.Background(), "flaky-probe", func(ctx context.Context) (bool, error) {
		calls++
		if calls < 3 {
			return false, errors.New("DOM not attached yet")
		}
		return true, nil
	}, time.Second)

	require.NoError(t, err, "errors on early evaluations must not propagate once the condition holds")
	assert.Equal(t, 3, calls)
}

func TestConditionWaiterTimeoutCarriesLastError(t *testing.T) {
	waiter := NewConditionWaiter(5*time.Millisecond, testLogger())

	probeErr := errors.New("selector resolution failed")
	err := waiter.Await(context.Background(), "never-true", func(ctx context.Context) (bool, error) {
		return false, probeErr
	}, 50*time.Millisecond)

	require.Error(t, err)
	var timeoutErr *ConditionTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, "never-true", timeoutErr.Condition)
	assert.ErrorIs(t, err, probeErr, "the last predicate error must be attached for diagnostics")
}

func TestConditionWaiterTimeoutWithoutPredicateError(t *testing.T) {
	waiter := NewConditionWaiter(5*time.Millisecond, testLogger())

	err := waiter.Await(context.Background(), "quiet-timeout", func(ctx context.Context) (bool, error) {
		return false, nil
	}, 30*time.Millisecond)

	var timeoutErr *ConditionTimeoutError
	require.ErrorAs(t, err, &timeoutErr)
	assert.NoError(t, timeoutErr.LastErr)
}

func TestConditionWaiterRespectsCallerCancellation(t *testing.T) {
	waiter := NewConditionWaiter(5*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := waiter.Await(ctx, "cancelled", func(ctx context.Context) (bool, error) {
		return false, nil
	}, 10*time.Second)

	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second, "cancellation must stop polling well before the timeout")
}
