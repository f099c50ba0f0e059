package pages

import (
	"context"
	"fmt"

	"github.com/ternarybob/emptor/internal/browser"
	"github.com/ternarybob/emptor/internal/waits"
)

// ConsentResult distinguishes "banner dismissed" from "banner never shown"
// from "something actually broke". Callers must not treat NotPresent as a
// failure.
type ConsentResult int

const (
	ConsentDismissed ConsentResult = iota
	ConsentNotPresent
)

func (r ConsentResult) String() string {
	switch r {
	case ConsentDismissed:
		return "dismissed"
	case ConsentNotPresent:
		return "not-present"
	default:
		return "unknown"
	}
}

// HomePage is the landing page of the site under test.
type HomePage struct {
	site *Site
}

// Open navigates to the home page and waits for it to settle using a
// cascade of decreasing precision: load event, then the page title
// element, then a short terminal delay.
func (p *HomePage) Open(ctx context.Context) error {
	s := p.site
	if err := s.Browser.Navigate(ctx, s.URL(s.Config.Site.HomePath)); err != nil {
		return fmt.Errorf("failed to open home page: %w", err)
	}
	s.Engine.Run(ctx, p.readySteps())
	return nil
}

// readySteps is the progressive readiness cascade shared by home-page
// navigation entry points.
func (p *HomePage) readySteps() []waits.WaitStep {
	s := p.site
	return []waits.WaitStep{
		{
			Name:    "load-event",
			Timeout: s.Config.Timeouts.Default(),
			Execute: func(ctx context.Context) error {
				return s.Browser.WaitForLoadState(ctx, browser.LoadStateLoad, s.Config.Timeouts.Default())
			},
		},
		{
			Name:    "page-title-visible",
			Timeout: s.Config.Timeouts.Short(),
			Execute: func(ctx context.Context) error {
				return s.Browser.WaitForSelector(ctx, s.Config.Selectors.PageTitle, browser.ElementVisible, s.Config.Timeouts.Short())
			},
		},
		waits.FixedDelayStep("settle-delay", s.Config.Timeouts.Poll()),
	}
}

// DismissConsent dismisses the cookie consent banner if it is present.
// A banner that never appears is a normal outcome, not an error.
func (p *HomePage) DismissConsent(ctx context.Context) (ConsentResult, error) {
	s := p.site
	sel := s.Config.Selectors.ConsentBanner
	if sel == "" {
		return ConsentNotPresent, nil
	}

	visible, err := s.Browser.IsVisible(ctx, sel)
	if err != nil {
		return ConsentNotPresent, fmt.Errorf("consent banner probe failed: %w", err)
	}
	if !visible {
		s.Logger.Debug().Str("selector", sel).Msg("Consent banner not present")
		return ConsentNotPresent, nil
	}

	accept := s.Config.Selectors.ConsentAccept
	outcome, err := s.Executor.Perform(ctx,
		waits.Action{
			Name: "accept-consent",
			Run: func(ctx context.Context) error {
				return s.Browser.Click(ctx, accept, s.Config.Timeouts.Short())
			},
		},
		[]waits.Action{
			{
				Name: "script-click",
				Run: func(ctx context.Context) error {
					return s.Browser.ScriptClick(ctx, accept)
				},
			},
		},
		s.RetryPolicy(),
	)
	if err != nil {
		return ConsentNotPresent, fmt.Errorf("failed to dismiss consent banner: %w", err)
	}

	// The banner must actually leave before interactions are safe.
	if err := s.Waiter.Await(ctx, "consent-gone", func(ctx context.Context) (bool, error) {
		v, err := s.Browser.IsVisible(ctx, sel)
		return !v, err
	}, s.Config.Timeouts.Short()); err != nil {
		return ConsentNotPresent, err
	}

	s.Logger.Info().Str("strategy", outcome.StrategyUsed).Msg("Consent banner dismissed")
	return ConsentDismissed, nil
}

// SearchFor fills the search box and submits, returning once the results
// container is visible.
func (p *HomePage) SearchFor(ctx context.Context, term string) error {
	s := p.site
	sel := s.Config.Selectors

	if err := s.Browser.Fill(ctx, sel.SearchInput, term, s.Config.Timeouts.Default()); err != nil {
		return fmt.Errorf("failed to enter search term %q: %w", term, err)
	}

	_, err := s.Executor.Perform(ctx,
		waits.Action{
			Name: "submit-search",
			Run: func(ctx context.Context) error {
				return s.Browser.Click(ctx, sel.SearchSubmit, s.Config.Timeouts.Short())
			},
		},
		[]waits.Action{
			{
				Name: "script-click",
				Run: func(ctx context.Context) error {
					return s.Browser.ScriptClick(ctx, sel.SearchSubmit)
				},
			},
		},
		s.RetryPolicy(),
	)
	if err != nil {
		return fmt.Errorf("failed to submit search for %q: %w", term, err)
	}

	return s.Browser.WaitForSelector(ctx, sel.SearchResults, browser.ElementVisible, s.Config.Timeouts.Medium())
}
