package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the suite configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "ci"
	Site        SiteConfig      `toml:"site"`
	Browser     BrowserConfig   `toml:"browser"`
	Selectors   SelectorsConfig `toml:"selectors"`
	Timeouts    TimeoutsConfig  `toml:"timeouts"`
	Retry       RetryConfig     `toml:"retry"`
	Logging     LoggingConfig   `toml:"logging"`
	Runner      RunnerConfig    `toml:"runner"`
}

// SiteConfig identifies the site under test, its page paths, and the URL
// fragment of the cart API responses used to confirm mutations
type SiteConfig struct {
	BaseURL      string `toml:"base_url" validate:"required,url"`
	HomePath     string `toml:"home_path"`
	ProductsPath string `toml:"products_path"`
	CartPath     string `toml:"cart_path"`
	CartEndpoint string `toml:"cart_endpoint" validate:"required"`
}

// BrowserConfig controls the Chrome instance driven by the suite
type BrowserConfig struct {
	Headless      bool    `toml:"headless"`
	DisableGPU    bool    `toml:"disable_gpu"`
	NoSandbox     bool    `toml:"no_sandbox"`
	WindowWidth   int     `toml:"window_width" validate:"min=0"`
	WindowHeight  int     `toml:"window_height" validate:"min=0"`
	UserAgent     string  `toml:"user_agent"`
	ActionsPerSec float64 `toml:"actions_per_sec" validate:"min=0"` // 0 disables pacing
}

// SelectorsConfig maps logical element names to CSS selectors.
// The wait/retry core treats these as opaque strings; only the page
// objects know which selector belongs to which page.
type SelectorsConfig struct {
	ConsentBanner     string `toml:"consent_banner"`
	ConsentAccept     string `toml:"consent_accept"`
	SearchInput       string `toml:"search_input"`
	SearchSubmit      string `toml:"search_submit"`
	SearchResults     string `toml:"search_results"`
	ProductCard       string `toml:"product_card"`
	CategoryFilter    string `toml:"category_filter"`
	AddToCartButton   string `toml:"add_to_cart_button"`
	CartModal         string `toml:"cart_modal"`
	CartModalTitle    string `toml:"cart_modal_title"`
	CartModalConfirm  string `toml:"cart_modal_confirm"`
	CartItemRow       string `toml:"cart_item_row"`
	CartRemoveButton  string `toml:"cart_remove_button"`
	CartTotal         string `toml:"cart_total"`
	OverlaySpinner    string `toml:"overlay_spinner"`
	PageTitle         string `toml:"page_title"`
	PaginationControl string `toml:"pagination_control"`
}

// TimeoutsConfig holds the graduated timeout budgets (milliseconds)
type TimeoutsConfig struct {
	ShortMs       int `toml:"short_ms" validate:"min=1"`
	DefaultMs     int `toml:"default_ms" validate:"min=1"`
	MediumMs      int `toml:"medium_ms" validate:"min=1"`
	LongMs        int `toml:"long_ms" validate:"min=1"`
	NetworkIdleMs int `toml:"network_idle_ms" validate:"min=1"`
	PollMs        int `toml:"poll_ms" validate:"min=1"`
}

// Short returns the short timeout as a duration
func (t TimeoutsConfig) Short() time.Duration { return time.Duration(t.ShortMs) * time.Millisecond }

// Default returns the default timeout as a duration
func (t TimeoutsConfig) Default() time.Duration {
	return time.Duration(t.DefaultMs) * time.Millisecond
}

// Medium returns the medium timeout as a duration
func (t TimeoutsConfig) Medium() time.Duration { return time.Duration(t.MediumMs) * time.Millisecond }

// Long returns the long timeout as a duration
func (t TimeoutsConfig) Long() time.Duration { return time.Duration(t.LongMs) * time.Millisecond }

// NetworkIdle returns the network-idle timeout as a duration
func (t TimeoutsConfig) NetworkIdle() time.Duration {
	return time.Duration(t.NetworkIdleMs) * time.Millisecond
}

// Poll returns the polling interval as a duration
func (t TimeoutsConfig) Poll() time.Duration { return time.Duration(t.PollMs) * time.Millisecond }

// RetryConfig holds default retry parameters for resilient actions
type RetryConfig struct {
	MaxAttempts       int     `toml:"max_attempts" validate:"min=1"`
	BaseDelayMs       int     `toml:"base_delay_ms" validate:"min=0"`
	BackoffMultiplier float64 `toml:"backoff_multiplier" validate:"min=1"`
}

// LoggingConfig controls arbor output
type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// RunnerConfig configures the test runner CLI
type RunnerConfig struct {
	SuitesDir string `toml:"suites_dir"`
	OutputDir string `toml:"output_dir"`
	Schedule  string `toml:"schedule"` // optional cron spec for repeated runs
}

// DefaultConfig returns the configuration defaults applied before any file
// or environment override.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Site: SiteConfig{
			BaseURL:      "https://demo.emptor.test",
			HomePath:     "/",
			ProductsPath: "/products",
			CartPath:     "/cart",
			CartEndpoint: "/cart",
		},
		Browser: BrowserConfig{
			Headless:     true,
			DisableGPU:   true,
			WindowWidth:  1920,
			WindowHeight: 1080,
		},
		Selectors: SelectorsConfig{
			ConsentBanner:     "#consent-banner",
			ConsentAccept:     "#consent-banner .btn-accept",
			SearchInput:       "#search-input",
			SearchSubmit:      "#search-submit",
			SearchResults:     ".search-results",
			ProductCard:       ".product-card",
			CategoryFilter:    ".category-filter",
			AddToCartButton:   ".add-to-cart",
			CartModal:         ".modal.cart-confirm",
			CartModalTitle:    ".modal.cart-confirm .modal-title",
			CartModalConfirm:  ".modal.cart-confirm .btn-confirm",
			CartItemRow:       ".cart-row",
			CartRemoveButton:  ".btn-remove",
			CartTotal:         ".cart-total",
			OverlaySpinner:    ".overlay-spinner",
			PageTitle:         ".page-title",
			PaginationControl: ".pagination",
		},
		Timeouts: TimeoutsConfig{
			ShortMs:       2000,
			DefaultMs:     5000,
			MediumMs:      10000,
			LongMs:        30000,
			NetworkIdleMs: 15000,
			PollMs:        500,
		},
		Retry: RetryConfig{
			MaxAttempts:       3,
			BaseDelayMs:       100,
			BackoffMultiplier: 2.0,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Runner: RunnerConfig{
			SuitesDir: "test",
			OutputDir: "test/results",
		},
	}
}

// LoadFromFiles loads configuration from defaults, then the given TOML files
// in order (later files override earlier ones), then environment variables.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies EMPTOR_* environment variable overrides
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("EMPTOR_BASE_URL"); v != "" {
		config.Site.BaseURL = v
	}
	if v := os.Getenv("EMPTOR_HEADLESS"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Browser.Headless = b
		}
	}
	if v := os.Getenv("EMPTOR_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("EMPTOR_ENVIRONMENT"); v != "" {
		config.Environment = v
	}
}

// Validate checks the configuration against struct tags
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
