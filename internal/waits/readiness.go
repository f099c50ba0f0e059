package waits

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
)

// SurfaceState tracks a transient UI surface (modal, flyout, toast) from
// trigger to usability.
type SurfaceState int

const (
	// SurfaceAbsent is the initial state before the triggering action.
	SurfaceAbsent SurfaceState = iota
	// SurfaceAppearing means the triggering action has run but the surface
	// has not passed a visibility check yet.
	SurfaceAppearing
	// SurfaceVisibleNotReady means CSS visibility holds but the compound
	// readiness predicate does not.
	SurfaceVisibleNotReady
	// SurfaceReady is the terminal success state.
	SurfaceReady
	// SurfaceTimedOut is the terminal failure state.
	SurfaceTimedOut
)

func (s SurfaceState) String() string {
	switch s {
	case SurfaceAbsent:
		return "absent"
	case SurfaceAppearing:
		return "appearing"
	case SurfaceVisibleNotReady:
		return "visible-not-ready"
	case SurfaceReady:
		return "ready"
	case SurfaceTimedOut:
		return "timed-out"
	default:
		return "unknown"
	}
}

// DOMProber is the slice of the browser capability the readiness detector
// needs: point-in-time DOM probes plus page identity for diagnostics.
type DOMProber interface {
	IsVisible(ctx context.Context, selector string) (bool, error)
	ComputedOpacity(ctx context.Context, selector string) (float64, error)
	ElementExists(ctx context.Context, selector string) (bool, error)
	Location(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
}

// ReadinessCondition is one named sub-predicate of a compound readiness
// check. All conditions must hold at the same poll for the surface to be
// declared ready.
type ReadinessCondition struct {
	Name  string
	Probe Predicate
}

// ModalReadinessDetector asserts that a transient UI surface is truly
// usable: visible, finished animating (opacity settled at 1), and populated
// with its required child elements. Mere CSS visibility is not enough;
// declaring readiness off a fixed delay alone is how the flaky add-to-cart
// modal races happen, so this detector only ever samples live DOM state.
type ModalReadinessDetector struct {
	prober DOMProber
	waiter *ConditionWaiter
	logger arbor.ILogger
}

// NewModalReadinessDetector creates a detector over the given prober.
func NewModalReadinessDetector(prober DOMProber, waiter *ConditionWaiter, logger arbor.ILogger) *ModalReadinessDetector {
	return &ModalReadinessDetector{
		prober: prober,
		waiter: waiter,
		logger: logger,
	}
}

// Conditions builds the compound readiness conditions for a container and
// its required children: visibility, settled opacity, and presence of every
// required child selector.
func (d *ModalReadinessDetector) Conditions(containerSelector string, requiredChildSelectors []string) []ReadinessCondition {
	conditions := []ReadinessCondition{
		{
			Name: "visible:" + containerSelector,
			Probe: func(ctx context.Context) (bool, error) {
				return d.prober.IsVisible(ctx, containerSelector)
			},
		},
		{
			Name: "opacity-settled:" + containerSelector,
			Probe: func(ctx context.Context) (bool, error) {
				opacity, err := d.prober.ComputedOpacity(ctx, containerSelector)
				if err != nil {
					return false, err
				}
				return opacity == 1, nil
			},
		},
	}
	for _, child := range requiredChildSelectors {
		conditions = append(conditions, ReadinessCondition{
			Name: "child-present:" + child,
			Probe: func(ctx context.Context) (bool, error) {
				return d.prober.ElementExists(ctx, child)
			},
		})
	}
	return conditions
}

// WaitUntilReady polls the compound readiness conditions until they all
// hold in the same evaluation, or timeout elapses. On timeout the returned
// ReadinessTimeoutError carries a FailureContext naming the conditions that
// never held, including any missing child selector.
func (d *ModalReadinessDetector) WaitUntilReady(ctx context.Context, containerSelector string, requiredChildSelectors []string, timeout time.Duration) error {
	start := time.Now()
	conditions := d.Conditions(containerSelector, requiredChildSelectors)

	state := SurfaceAppearing
	var history []string
	var lastUnmet []string
	record := func(next SurfaceState) {
		if next != state {
			d.logger.Debug().
				Str("surface", containerSelector).
				Str("from", state.String()).
				Str("to", next.String()).
				Dur("elapsed", time.Since(start)).
				Msg("Surface state transition")
			history = append(history, fmt.Sprintf("%s->%s at %v", state, next, time.Since(start).Round(time.Millisecond)))
			state = next
		}
	}

	predicate := func(ctx context.Context) (bool, error) {
		visible, err := d.prober.IsVisible(ctx, containerSelector)
		if err != nil {
			return false, err
		}
		if !visible {
			record(SurfaceAppearing)
			lastUnmet = []string{"visible:" + containerSelector}
			return false, nil
		}

		var unmet []string
		for _, c := range conditions {
			ok, err := c.Probe(ctx)
			if err != nil {
				return false, fmt.Errorf("condition %s: %w", c.Name, err)
			}
			if !ok {
				unmet = append(unmet, c.Name)
			}
		}
		lastUnmet = unmet
		if len(unmet) > 0 {
			record(SurfaceVisibleNotReady)
			return false, nil
		}
		record(SurfaceReady)
		return true, nil
	}

	err := d.waiter.Await(ctx, "surface-ready:"+containerSelector, predicate, timeout)
	if err == nil {
		return nil
	}

	record(SurfaceTimedOut)
	failure := &FailureContext{
		SelectorOrCondition: strings.Join(lastUnmet, ","),
		Elapsed:             time.Since(start),
		AttemptHistory:      history,
	}
	if failure.SelectorOrCondition == "" {
		failure.SelectorOrCondition = containerSelector
	}
	// Page identity is best-effort diagnostics; a probe failure here must
	// not mask the readiness timeout.
	if url, uerr := d.prober.Location(ctx); uerr == nil {
		failure.PageURL = url
	}
	if title, terr := d.prober.Title(ctx); terr == nil {
		failure.PageTitle = title
	}

	return &ReadinessTimeoutError{
		Surface: containerSelector,
		Timeout: timeout,
		Context: failure,
		Cause:   err,
	}
}
