package waits

import (
	"fmt"
	"strings"
	"time"
)

// ConditionTimeoutError indicates a single condition never became true
// within its budget. Callers typically treat this as recoverable: it
// triggers the next wait step or the next fallback action.
type ConditionTimeoutError struct {
	Condition string
	Timeout   time.Duration
	LastErr   error // last predicate-evaluation error, if any
}

func (e *ConditionTimeoutError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("condition %q not satisfied within %v (last evaluation error: %v)", e.Condition, e.Timeout, e.LastErr)
	}
	return fmt.Sprintf("condition %q not satisfied within %v", e.Condition, e.Timeout)
}

func (e *ConditionTimeoutError) Unwrap() error {
	return e.LastErr
}

// AttemptError records one failed attempt of one strategy, in order.
type AttemptError struct {
	Strategy string
	Attempt  int
	Err      error
}

func (e AttemptError) Error() string {
	return fmt.Sprintf("%s attempt %d: %v", e.Strategy, e.Attempt, e.Err)
}

func (e AttemptError) Unwrap() error {
	return e.Err
}

// AllStrategiesExhaustedError indicates every primary and fallback attempt
// failed. It preserves every individual error in the order encountered so
// the terminal failure is maximally diagnostic.
type AllStrategiesExhaustedError struct {
	Action   string
	Attempts []AttemptError
	Context  *FailureContext
}

func (e *AllStrategiesExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "all strategies exhausted for %q after %d attempts", e.Action, len(e.Attempts))
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "\n  %s", a.Error())
	}
	if e.Context != nil {
		fmt.Fprintf(&b, "\n  %s", e.Context.String())
	}
	return b.String()
}

// Unwrap exposes each attempt error to errors.Is / errors.As.
func (e *AllStrategiesExhaustedError) Unwrap() []error {
	errs := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		errs[i] = a.Err
	}
	return errs
}

// ReadinessTimeoutError indicates a transient UI surface never reached the
// Ready state. The attached FailureContext names the unmet conditions.
type ReadinessTimeoutError struct {
	Surface string
	Timeout time.Duration
	Context *FailureContext
	Cause   error
}

func (e *ReadinessTimeoutError) Error() string {
	return fmt.Sprintf("surface %q not ready within %v: %s", e.Surface, e.Timeout, e.Context.String())
}

func (e *ReadinessTimeoutError) Unwrap() error {
	return e.Cause
}

// FailureContext is a diagnostic snapshot constructed only on terminal
// failure. It is attached to the thrown error and discarded once surfaced.
type FailureContext struct {
	SelectorOrCondition string
	PageURL             string
	PageTitle           string
	Elapsed             time.Duration
	AttemptHistory      []string
}

func (c *FailureContext) String() string {
	if c == nil {
		return ""
	}
	return fmt.Sprintf("condition=%s url=%s title=%q elapsed=%v history=[%s]",
		c.SelectorOrCondition, c.PageURL, c.PageTitle, c.Elapsed.Round(time.Millisecond),
		strings.Join(c.AttemptHistory, "; "))
}
