package pages

import (
	"context"
	"fmt"

	"github.com/ternarybob/emptor/internal/browser"
	"github.com/ternarybob/emptor/internal/waits"
)

// CartPage is the shopping cart.
type CartPage struct {
	site *Site
}

// Open navigates to the cart and waits for it to settle.
func (p *CartPage) Open(ctx context.Context) error {
	s := p.site
	if err := s.Browser.Navigate(ctx, s.URL(s.Config.Site.CartPath)); err != nil {
		return fmt.Errorf("failed to open cart page: %w", err)
	}

	s.Engine.Run(ctx, []waits.WaitStep{
		{
			Name:    "load-event",
			Timeout: s.Config.Timeouts.Default(),
			Execute: func(ctx context.Context) error {
				return s.Browser.WaitForLoadState(ctx, browser.LoadStateLoad, s.Config.Timeouts.Default())
			},
		},
		waits.FixedDelayStep("settle-delay", s.Config.Timeouts.Poll()),
	})
	return nil
}

// ItemCount returns the number of cart item rows.
func (p *CartPage) ItemCount(ctx context.Context) (int, error) {
	return p.site.Browser.CountElements(ctx, p.site.Config.Selectors.CartItemRow)
}

// Total returns the displayed cart total text.
func (p *CartPage) Total(ctx context.Context) (string, error) {
	return p.site.Browser.Text(ctx, p.site.Config.Selectors.CartTotal, p.site.Config.Timeouts.Default())
}

// RemoveItem removes the cart row at index (0-based) and waits for the
// removal to be confirmed. Confirmation strategies run strictly in order:
// first the cart API response, then a DOM poll for the row count dropping.
// Never both concurrently; the DOM poll only runs if the network signal
// never arrived.
func (p *CartPage) RemoveItem(ctx context.Context, index int) error {
	s := p.site
	sel := s.Config.Selectors
	removeButton := fmt.Sprintf("%s:nth-of-type(%d) %s", sel.CartItemRow, index+1, sel.CartRemoveButton)

	before, err := p.ItemCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to count cart items before removal: %w", err)
	}
	if before == 0 {
		return fmt.Errorf("cannot remove item %d: cart is empty", index)
	}

	// Mark the response stream before clicking so the confirmation wait
	// cannot match the page-load response from opening the cart.
	mark := s.Browser.ResponseMark()

	_, err = s.Executor.Perform(ctx,
		waits.Action{
			Name: "remove-cart-item",
			Run: func(ctx context.Context) error {
				return s.Browser.Click(ctx, removeButton, s.Config.Timeouts.Short())
			},
		},
		[]waits.Action{
			{
				Name: "script-click",
				Run: func(ctx context.Context) error {
					return s.Browser.ScriptClick(ctx, removeButton)
				},
			},
		},
		s.RetryPolicy(),
	)
	if err != nil {
		return fmt.Errorf("failed to click remove for cart item %d: %w", index, err)
	}

	outcome, err := s.Executor.Perform(ctx,
		waits.Action{
			Name: "confirm-removal",
			Run: func(ctx context.Context) error {
				_, err := s.Browser.WaitForResponse(ctx, s.Config.Site.CartEndpoint, mark, s.Config.Timeouts.Default())
				return err
			},
		},
		[]waits.Action{
			{
				Name: "dom-poll",
				Run: func(ctx context.Context) error {
					return s.Waiter.Await(ctx, "cart-row-removed", func(ctx context.Context) (bool, error) {
						after, err := p.ItemCount(ctx)
						if err != nil {
							return false, err
						}
						return after < before, nil
					}, s.Config.Timeouts.Default())
				},
			},
		},
		waits.RetryPolicy{MaxAttempts: 1},
	)
	if err != nil {
		return fmt.Errorf("removal of cart item %d was never confirmed: %w", index, err)
	}
	s.Logger.Debug().
		Str("strategy", outcome.StrategyUsed).
		Msg("Cart removal confirmed")
	return nil
}
