package ui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ternarybob/emptor/internal/browser"
)

var (
	testRunDir     string
	testRunDirOnce sync.Once
)

// getOrCreateTestRunDir returns the test run directory, creating it if necessary.
// This ensures all screenshots from a single test run go to the same directory.
func getOrCreateTestRunDir() (string, error) {
	var err error
	testRunDirOnce.Do(func() {
		// The runner sets TEST_RESULTS_DIR for each suite it executes
		if envDir := os.Getenv("TEST_RESULTS_DIR"); envDir != "" {
			testRunDir = envDir
			return
		}

		// Standalone `go test` run: create a timestamped directory under
		// test/results/, relative to wherever the tests run from.
		timestamp := time.Now().Format("run-2006-01-02-15-04-05")
		resultsBase := filepath.Join("..", "results")
		if _, statErr := os.Stat("results"); statErr == nil {
			resultsBase = "results"
		}

		testRunDir = filepath.Join(resultsBase, timestamp)
		err = os.MkdirAll(testRunDir, 0755)
	})

	if err != nil {
		return "", fmt.Errorf("failed to create test run directory: %w", err)
	}

	return testRunDir, nil
}

// TakeScreenshot captures a screenshot and saves it under the run's
// screenshots directory.
func TakeScreenshot(ctx context.Context, session *browser.Session, name string) error {
	runDir, err := getOrCreateTestRunDir()
	if err != nil {
		return err
	}

	screenshotDir := filepath.Join(runDir, "screenshots")
	if err := os.MkdirAll(screenshotDir, 0755); err != nil {
		return fmt.Errorf("failed to create screenshots directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filename := filepath.Join(screenshotDir, fmt.Sprintf("%s-%s.png", name, timestamp))

	buf, err := session.Screenshot(ctx)
	if err != nil {
		return err
	}

	if err := os.WriteFile(filename, buf, 0644); err != nil {
		return fmt.Errorf("failed to save screenshot: %w", err)
	}

	return nil
}

// GetScreenshotsDir returns the screenshots directory path for the current test run
func GetScreenshotsDir() string {
	runDir, err := getOrCreateTestRunDir()
	if err != nil {
		return filepath.Join("..", "results", "screenshots")
	}
	return filepath.Join(runDir, "screenshots")
}
