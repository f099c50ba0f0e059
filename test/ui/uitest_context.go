// uitest_context.go - Shared UI test context and helpers for Emptor
// This provides UITestContext and helper functions used by all UI tests.
// NOTE: This is NOT a test file - it contains shared test infrastructure.

package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/emptor/internal/browser"
	"github.com/ternarybob/emptor/internal/common"
	"github.com/ternarybob/emptor/internal/pages"
)

// MaxUITestTimeout bounds any single UI test, browser startup included.
const MaxUITestTimeout = 5 * time.Minute

// UITestContext holds shared state for UI tests
type UITestContext struct {
	T       *testing.T
	Ctx     context.Context
	Config  *common.Config
	Session *browser.Session
	Site    *pages.Site
	Logger  arbor.ILogger

	// Internal cleanup functions
	cleanup []func()

	// Screenshot counter for sequential naming
	screenshotNum int
}

// NewUITestContext creates a new UI test context with a live browser session.
// Tests calling this are skipped unless EMPTOR_E2E=1 is set, so unit test
// runs never try to launch Chrome.
func NewUITestContext(t *testing.T, timeout time.Duration) *UITestContext {
	if os.Getenv("EMPTOR_E2E") != "1" {
		t.Skip("Skipping UI test: set EMPTOR_E2E=1 to run against a live site")
	}

	config, err := loadTestConfig()
	if err != nil {
		t.Fatalf("Failed to load test configuration: %v", err)
	}

	logger := common.GetLogger()

	// Timeout context for the entire test
	ctx, cancelTimeout := context.WithTimeout(context.Background(), timeout)

	session, err := browser.NewSession(ctx, config.Browser, logger)
	if err != nil {
		cancelTimeout()
		t.Fatalf("Failed to start browser session: %v", err)
	}

	utc := &UITestContext{
		T:       t,
		Ctx:     ctx,
		Config:  config,
		Session: session,
		Site:    pages.NewSite(session, config, logger),
		Logger:  logger,
		cleanup: make([]func(), 0),
	}

	// Cleanup runs in reverse order (LIFO)
	utc.cleanup = append(utc.cleanup, cancelTimeout)
	utc.cleanup = append(utc.cleanup, session.Close)

	return utc
}

// loadTestConfig loads the suite configuration. An emptor.toml next to the
// repository root is used when present; environment overrides apply either
// way so the runner can point the suite at any deployment.
func loadTestConfig() (*common.Config, error) {
	for _, candidate := range []string{"emptor.toml", "../emptor.toml", "../../emptor.toml"} {
		if _, err := os.Stat(candidate); err == nil {
			return common.LoadFromFiles(candidate)
		}
	}
	return common.LoadFromFiles()
}

// Cleanup releases all resources. Call this with defer.
func (utc *UITestContext) Cleanup() {
	// Capture the final page state before tearing the browser down so a
	// failure always leaves visual evidence behind.
	if utc.T.Failed() {
		utc.Screenshot("test_failed_final_state")
		utc.Log("=== TEST RESULT: FAIL ===")
	} else {
		utc.Log("=== TEST RESULT: PASS ===")
	}

	for i := len(utc.cleanup) - 1; i >= 0; i-- {
		utc.cleanup[i]()
	}
}

// Log writes a message to the test log
func (utc *UITestContext) Log(format string, args ...interface{}) {
	utc.T.Logf(format, args...)
}

// Screenshot takes a full page screenshot with a sequential number prefix
func (utc *UITestContext) Screenshot(name string) error {
	utc.screenshotNum++
	fullName := fmt.Sprintf("%02d_%s", utc.screenshotNum, sanitizeName(name))
	if err := TakeScreenshot(utc.Ctx, utc.Session, fullName); err != nil {
		utc.Log("Warning: screenshot %s failed: %v", fullName, err)
		return err
	}
	return nil
}

// OpenHome opens the home page and dismisses the consent banner if shown.
// Nearly every UI test starts this way.
func (utc *UITestContext) OpenHome() *pages.HomePage {
	home := utc.Site.Home()
	if err := home.Open(utc.Ctx); err != nil {
		utc.Screenshot("home_open_failed")
		utc.T.Fatalf("Failed to open home page: %v", err)
	}
	result, err := home.DismissConsent(utc.Ctx)
	if err != nil {
		utc.Screenshot("consent_dismiss_failed")
		utc.T.Fatalf("Failed to dismiss consent banner: %v", err)
	}
	utc.Log("Consent banner: %s", result)
	return home
}

// sanitizeName converts a name to a safe filename format
func sanitizeName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}
