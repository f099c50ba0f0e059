package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// NavigationError indicates a page navigation failed.
type NavigationError struct {
	URL string
	Err error
}

func (e *NavigationError) Error() string {
	return fmt.Sprintf("navigation to %s failed: %v", e.URL, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }

// TimeoutError indicates a driver operation ran out of budget.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v: %v", e.Op, e.Timeout, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// ClickInterceptedError indicates a click landed on a competing element
// (overlay, spinner, sticky header). It is a transient failure expected to
// be recovered by a script-dispatched click fallback.
type ClickInterceptedError struct {
	Selector string
	Err      error
}

func (e *ClickInterceptedError) Error() string {
	return fmt.Sprintf("click on %q intercepted: %v", e.Selector, e.Err)
}

func (e *ClickInterceptedError) Unwrap() error { return e.Err }

// classifyClickError maps a raw chromedp click failure onto the typed
// taxonomy. Deadline expiry stays a timeout; anything that looks like a
// hit-test miss becomes ClickInterceptedError.
func classifyClickError(selector string, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: "click " + selector, Timeout: timeout, Err: err}
	}
	msg := err.Error()
	if strings.Contains(msg, "does not receive pointer events") ||
		strings.Contains(msg, "intercept") ||
		strings.Contains(msg, "not visible") ||
		strings.Contains(msg, "not clickable") {
		return &ClickInterceptedError{Selector: selector, Err: err}
	}
	return fmt.Errorf("click on %q failed: %w", selector, err)
}
