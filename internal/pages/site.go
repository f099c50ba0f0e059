package pages

import (
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/emptor/internal/browser"
	"github.com/ternarybob/emptor/internal/common"
	"github.com/ternarybob/emptor/internal/waits"
)

// Site wires the browser capability and the wait/retry core together and
// hands out page objects. One Site serves one sequential test flow.
type Site struct {
	Browser  browser.Capability
	Config   *common.Config
	Waiter   *waits.ConditionWaiter
	Engine   *waits.ProgressiveWaitEngine
	Executor *waits.ResilientActionExecutor
	Detector *waits.ModalReadinessDetector
	Logger   arbor.ILogger
}

// NewSite composes the core against a browser capability. Configuration is
// passed in explicitly; there is no ambient global state.
func NewSite(b browser.Capability, config *common.Config, logger arbor.ILogger) *Site {
	waiter := waits.NewConditionWaiter(config.Timeouts.Poll(), logger)
	return &Site{
		Browser:  b,
		Config:   config,
		Waiter:   waiter,
		Engine:   waits.NewProgressiveWaitEngine(logger),
		Executor: waits.NewResilientActionExecutor(logger),
		Detector: waits.NewModalReadinessDetector(b, waiter, logger),
		Logger:   logger,
	}
}

// URL joins a page path onto the configured base URL.
func (s *Site) URL(path string) string {
	return strings.TrimRight(s.Config.Site.BaseURL, "/") + path
}

// RetryPolicy returns the configured default retry policy.
func (s *Site) RetryPolicy() waits.RetryPolicy {
	return waits.RetryPolicy{
		MaxAttempts:       s.Config.Retry.MaxAttempts,
		BaseDelay:         time.Duration(s.Config.Retry.BaseDelayMs) * time.Millisecond,
		BackoffMultiplier: s.Config.Retry.BackoffMultiplier,
	}
}

// Home returns the home page object.
func (s *Site) Home() *HomePage {
	return &HomePage{site: s}
}

// Products returns the products page object.
func (s *Site) Products() *ProductsPage {
	return &ProductsPage{site: s}
}

// Cart returns the cart page object.
func (s *Site) Cart() *CartPage {
	return &CartPage{site: s}
}
