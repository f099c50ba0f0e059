package pages

import (
	"context"
	"fmt"

	"github.com/ternarybob/emptor/internal/browser"
	"github.com/ternarybob/emptor/internal/waits"
)

// ProductsPage lists products with search and category filtering.
type ProductsPage struct {
	site *Site
}

// Open navigates to the products listing and waits for product cards.
func (p *ProductsPage) Open(ctx context.Context) error {
	s := p.site
	if err := s.Browser.Navigate(ctx, s.URL(s.Config.Site.ProductsPath)); err != nil {
		return fmt.Errorf("failed to open products page: %w", err)
	}

	s.Engine.Run(ctx, []waits.WaitStep{
		{
			Name:    "network-idle",
			Timeout: s.Config.Timeouts.NetworkIdle(),
			Execute: func(ctx context.Context) error {
				return s.Browser.WaitForLoadState(ctx, browser.LoadStateNetworkIdle, s.Config.Timeouts.NetworkIdle())
			},
		},
		{
			Name:    "product-cards-visible",
			Timeout: s.Config.Timeouts.Default(),
			Execute: func(ctx context.Context) error {
				return s.Browser.WaitForSelector(ctx, s.Config.Selectors.ProductCard, browser.ElementVisible, s.Config.Timeouts.Default())
			},
		},
		waits.FixedDelayStep("settle-delay", s.Config.Timeouts.Poll()),
	})
	return nil
}

// FilterByCategory applies a category filter and waits for the listing to
// repopulate. The filter value is matched against the filter control's
// data-category attribute.
func (p *ProductsPage) FilterByCategory(ctx context.Context, category string) error {
	s := p.site
	sel := fmt.Sprintf(`%s[data-category=%q]`, s.Config.Selectors.CategoryFilter, category)

	before, err := s.Browser.CountElements(ctx, s.Config.Selectors.ProductCard)
	if err != nil {
		return fmt.Errorf("failed to count products before filtering: %w", err)
	}

	_, err = s.Executor.Perform(ctx,
		waits.Action{
			Name: "filter-category:" + category,
			Run: func(ctx context.Context) error {
				return s.Browser.Click(ctx, sel, s.Config.Timeouts.Short())
			},
		},
		[]waits.Action{
			{
				Name: "script-click",
				Run: func(ctx context.Context) error {
					return s.Browser.ScriptClick(ctx, sel)
				},
			},
		},
		s.RetryPolicy(),
	)
	if err != nil {
		return fmt.Errorf("failed to apply category filter %q: %w", category, err)
	}

	// The listing repaints in place. Treat either a changed card count or
	// a network round-trip as the refresh signal, then settle briefly.
	s.Engine.Run(ctx, []waits.WaitStep{
		{
			Name:    "listing-changed",
			Timeout: s.Config.Timeouts.Default(),
			Execute: func(ctx context.Context) error {
				return s.Waiter.Await(ctx, "product-count-changed", func(ctx context.Context) (bool, error) {
					after, err := s.Browser.CountElements(ctx, s.Config.Selectors.ProductCard)
					if err != nil {
						return false, err
					}
					return after != before, nil
				}, s.Config.Timeouts.Default())
			},
		},
		{
			Name:    "network-idle",
			Timeout: s.Config.Timeouts.NetworkIdle(),
			Execute: func(ctx context.Context) error {
				return s.Browser.WaitForLoadState(ctx, browser.LoadStateNetworkIdle, s.Config.Timeouts.NetworkIdle())
			},
		},
		waits.FixedDelayStep("settle-delay", s.Config.Timeouts.Poll()),
	})
	return nil
}

// ProductCount returns the number of product cards currently listed.
func (p *ProductsPage) ProductCount(ctx context.Context) (int, error) {
	return p.site.Browser.CountElements(ctx, p.site.Config.Selectors.ProductCard)
}

// AddToCart clicks the add-to-cart control of the product at index
// (0-based) and waits for the confirmation modal to be truly usable before
// confirming it. Visibility alone is not trusted: the modal must have
// settled opacity and its title and confirm button present.
func (p *ProductsPage) AddToCart(ctx context.Context, index int) error {
	s := p.site
	sel := s.Config.Selectors
	button := fmt.Sprintf("%s:nth-of-type(%d) %s", sel.ProductCard, index+1, sel.AddToCartButton)

	outcome, err := s.Executor.Perform(ctx,
		waits.Action{
			Name: "add-to-cart",
			Run: func(ctx context.Context) error {
				return s.Browser.Click(ctx, button, s.Config.Timeouts.Short())
			},
		},
		[]waits.Action{
			{
				Name: "script-click",
				Run: func(ctx context.Context) error {
					return s.Browser.ScriptClick(ctx, button)
				},
			},
		},
		s.RetryPolicy(),
	)
	if err != nil {
		return fmt.Errorf("failed to add product %d to cart: %w", index, err)
	}
	s.Logger.Debug().
		Str("strategy", outcome.StrategyUsed).
		Int("attempts", outcome.AttemptsUsed).
		Msg("Add-to-cart clicked")

	if err := s.Detector.WaitUntilReady(ctx, sel.CartModal,
		[]string{sel.CartModalTitle, sel.CartModalConfirm},
		s.Config.Timeouts.Medium(),
	); err != nil {
		return fmt.Errorf("add-to-cart modal never became usable: %w", err)
	}

	_, err = s.Executor.Perform(ctx,
		waits.Action{
			Name: "confirm-add-to-cart",
			Run: func(ctx context.Context) error {
				return s.Browser.Click(ctx, sel.CartModalConfirm, s.Config.Timeouts.Short())
			},
		},
		[]waits.Action{
			{
				Name: "script-click",
				Run: func(ctx context.Context) error {
					return s.Browser.ScriptClick(ctx, sel.CartModalConfirm)
				},
			},
		},
		s.RetryPolicy(),
	)
	if err != nil {
		return fmt.Errorf("failed to confirm add-to-cart: %w", err)
	}

	// Interactions are unsafe until the modal has fully left.
	return s.Browser.WaitForSelector(ctx, sel.CartModal, browser.ElementHidden, s.Config.Timeouts.Default())
}
