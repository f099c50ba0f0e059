package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/emptor/internal/common"
)

// TestSuite is one go-test package the runner executes.
type TestSuite struct {
	Name string
	Path string
}

// TestResult captures one suite execution.
type TestResult struct {
	Suite    string
	Success  bool
	Output   string
	Duration time.Duration
}

var (
	configPath  = flag.String("config", "", "Configuration file path")
	showVersion = flag.Bool("version", false, "Print version information")
	once        = flag.Bool("once", false, "Ignore any configured schedule and run a single pass")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("emptor-test-runner version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	var paths []string
	if *configPath != "" {
		paths = append(paths, *configPath)
	} else if _, err := os.Stat("emptor.toml"); err == nil {
		paths = append(paths, "emptor.toml")
	}

	config, err := common.LoadFromFiles(paths...)
	if err != nil {
		arbor.NewLogger().Fatal().Err(err).Msg("Failed to load configuration")
	}

	logger := common.InitLogger(config)

	common.InstallCrashHandler(filepath.Join(config.Runner.OutputDir, "logs"))
	defer common.RecoverWithCrashFile()

	common.PrintBanner(common.GetVersion())

	logger.Info().
		Str("suites_dir", config.Runner.SuitesDir).
		Str("output_dir", config.Runner.OutputDir).
		Str("base_url", config.Site.BaseURL).
		Msg("Runner configured")

	if config.Runner.Schedule != "" && !*once {
		runOnSchedule(config, logger)
		return
	}

	if ok := runOnce(config, logger); !ok {
		os.Exit(1)
	}
}

// runOnSchedule executes the suite pass on the configured cron schedule
// until interrupted.
func runOnSchedule(config *common.Config, logger arbor.ILogger) {
	c := cron.New()
	_, err := c.AddFunc(config.Runner.Schedule, func() {
		common.SafeGo(logger, "scheduled-run", func() {
			runOnce(config, logger)
		})
	})
	if err != nil {
		logger.Fatal().Err(err).Str("schedule", config.Runner.Schedule).Msg("Invalid cron schedule")
	}

	logger.Info().Str("schedule", config.Runner.Schedule).Msg("Running on schedule, Ctrl+C to stop")
	c.Run()
}

// runOnce discovers and executes every suite, then writes the reports.
// Returns false when any suite failed.
func runOnce(config *common.Config, logger arbor.ILogger) bool {
	runID := common.NewRunID()
	started := time.Now()

	resultsDir := filepath.Join(config.Runner.OutputDir, started.Format("run-2006-01-02-15-04-05"))
	if err := os.MkdirAll(resultsDir, 0755); err != nil {
		logger.Error().Err(err).Str("dir", resultsDir).Msg("Failed to create results directory")
		return false
	}

	suites, err := discoverSuites(config.Runner.SuitesDir)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to discover test suites")
		return false
	}
	if len(suites) == 0 {
		logger.Warn().Str("dir", config.Runner.SuitesDir).Msg("No test suites found")
		return true
	}

	logger.Info().
		Str("run_id", runID).
		Int("suites", len(suites)).
		Msg("Starting test run")

	results := make([]TestResult, 0, len(suites))
	for _, suite := range suites {
		results = append(results, runSuite(suite, config, resultsDir, logger))
	}

	report := BuildReport(runID, started, results)
	printConsoleReport(report, logger)

	reportPath := filepath.Join(resultsDir, "report.html")
	if err := WriteHTMLReport(reportPath, report); err != nil {
		logger.Error().Err(err).Msg("Failed to write HTML report")
	} else {
		logger.Info().Str("path", reportPath).Msg("HTML report written")
	}

	return report.Failed == 0
}

// discoverSuites finds go-test packages one level under the suites dir.
func discoverSuites(dir string) ([]TestSuite, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read suites directory %s: %w", dir, err)
	}

	var suites []TestSuite
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		matches, _ := filepath.Glob(filepath.Join(path, "*_test.go"))
		if len(matches) > 0 {
			suites = append(suites, TestSuite{Name: entry.Name(), Path: path})
		}
	}
	return suites, nil
}

// runSuite executes one suite via go test, with the run's results
// directory and an E2E opt-in exported to the tests.
func runSuite(suite TestSuite, config *common.Config, resultsDir string, logger arbor.ILogger) TestResult {
	logger.Info().Str("suite", suite.Name).Msg("Running suite")
	start := time.Now()

	cmd := exec.Command("go", "test", "-v", "-timeout", "30m", "./"+filepath.ToSlash(suite.Path))
	cmd.Env = append(os.Environ(),
		"EMPTOR_E2E=1",
		"EMPTOR_BASE_URL="+config.Site.BaseURL,
		"TEST_RESULTS_DIR="+resultsDir,
	)
	output, err := cmd.CombinedOutput()
	duration := time.Since(start)

	result := TestResult{
		Suite:    suite.Name,
		Success:  err == nil,
		Output:   string(output),
		Duration: duration,
	}

	logPath := filepath.Join(resultsDir, suite.Name+".log")
	if werr := os.WriteFile(logPath, output, 0644); werr != nil {
		logger.Warn().Err(werr).Str("suite", suite.Name).Msg("Failed to write suite log")
	}

	if result.Success {
		logger.Info().Str("suite", suite.Name).Dur("duration", duration).Msg("Suite passed")
	} else {
		logger.Error().Str("suite", suite.Name).Dur("duration", duration).Err(err).Msg("Suite failed")
	}
	return result
}

// printConsoleReport prints the pass/fail summary.
func printConsoleReport(report Report, logger arbor.ILogger) {
	for _, r := range report.Results {
		status := "PASS"
		if !r.Success {
			status = "FAIL"
		}
		fmt.Printf("  %-4s %-30s %v\n", status, r.Suite, r.Duration.Round(time.Millisecond))
	}
	logger.Info().
		Str("run_id", report.RunID).
		Int("passed", report.Passed).
		Int("failed", report.Failed).
		Dur("elapsed", report.Elapsed).
		Msg("Test run complete")
}
