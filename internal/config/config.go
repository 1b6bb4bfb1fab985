// Package config provides centralized configuration for the knowledge-e2e suite.
// It loads settings from environment variables, applies CI-dependent defaults,
// resolves named execution profiles, and validates the result.
//
// The returned *Config is built once per test binary and passed explicitly into
// fixtures; nothing in the suite reads the environment after Load returns.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultBaseURL  = "http://localhost:3000"
	defaultAPIURL   = "http://localhost:8000"
	defaultAPIToken = "test-token"

	defaultActionTimeout     = 10 * time.Second
	defaultNavigationTimeout = 30 * time.Second
	defaultWebServerTimeout  = 120 * time.Second
)

// Artifact capture modes.
const (
	CaptureOff             = "off"
	CaptureOnlyOnFailure   = "only-on-failure"
	CaptureRetainOnFailure = "retain-on-failure"
	CaptureOnFirstRetry    = "on-first-retry"
)

// Browser engines.
const (
	BrowserNone     = ""
	BrowserChromium = "chromium"
	BrowserFirefox  = "firefox"
	BrowserWebKit   = "webkit"
)

// Viewport is a browser viewport size in CSS pixels.
type Viewport struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Profile is a named execution target: which tests run, in which browser, on which device.
type Profile struct {
	Name             string            `yaml:"name"`
	TestDir          string            `yaml:"testDir"`
	Browser          string            `yaml:"browser"`
	Device           string            `yaml:"device"`
	Viewport         *Viewport         `yaml:"viewport,omitempty"`
	ExtraHTTPHeaders map[string]string `yaml:"extraHTTPHeaders,omitempty"`
}

// UsesBrowser reports whether the profile drives a browser.
func (p Profile) UsesBrowser() bool {
	return p.Browser != BrowserNone
}

// Config holds all suite configuration.
type Config struct {
	// Targets
	BaseURL  string // BASE_URL: web UI of the application under test
	APIURL   string // API_URL: REST API of the application under test
	APIToken string // API_TOKEN: bearer token for API calls

	// Optional OAuth2 client-credentials flow replacing the static token.
	OAuthTokenURL     string
	OAuthClientID     string
	OAuthClientSecret string
	OAuthScopes       []string

	// UI login
	TestUserEmail    string
	TestUserPassword string

	// Runner behaviour
	CI      bool
	Retries int
	// RetryAttempt is 0 on the first run and counts reruns of failed tests.
	RetryAttempt int
	Workers      int
	ForbidOnly   bool
	Headless     bool

	ActionTimeout     time.Duration
	NavigationTimeout time.Duration

	// Client-side request throttle for the API client; 0 disables it.
	APIRPS float64

	// Artifacts
	ArtifactsDir string
	Screenshot   string
	Video        string
	Trace        string

	// S3 artifact sink (enabled when ArtifactsBucket is set)
	ArtifactsBucket    string
	AWSEndpointS3      string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string

	// Application under test started in a container outside CI.
	AppImage         string
	AppPort          string
	WebServerTimeout time.Duration

	LogFile  string
	LogLevel slog.Level

	Profiles map[string]Profile
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// Load reads the environment, merges PROFILES_FILE when set, and validates.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.BaseURL = strings.TrimRight(getEnvOrDefault("BASE_URL", defaultBaseURL), "/")
	cfg.APIURL = strings.TrimRight(getEnvOrDefault("API_URL", defaultAPIURL), "/")
	cfg.APIToken = getEnvOrDefault("API_TOKEN", defaultAPIToken)

	cfg.OAuthTokenURL = strings.TrimSpace(os.Getenv("OAUTH_TOKEN_URL"))
	cfg.OAuthClientID = strings.TrimSpace(os.Getenv("OAUTH_CLIENT_ID"))
	cfg.OAuthClientSecret = strings.TrimSpace(os.Getenv("OAUTH_CLIENT_SECRET"))
	if scopes := strings.TrimSpace(os.Getenv("OAUTH_SCOPES")); scopes != "" {
		cfg.OAuthScopes = strings.Fields(scopes)
	}

	cfg.TestUserEmail = os.Getenv("TEST_USER_EMAIL")
	cfg.TestUserPassword = os.Getenv("TEST_USER_PASSWORD")

	cfg.CI = parseBool(os.Getenv("CI"))
	cfg.ForbidOnly = cfg.CI
	if cfg.CI {
		cfg.Retries = 2
		cfg.Workers = 1
	}
	cfg.Retries = parseIntOrDefault("RETRIES", cfg.Retries)
	cfg.RetryAttempt = parseIntOrDefault("RETRY_ATTEMPT", 0)
	cfg.Workers = parseIntOrDefault("WORKERS", cfg.Workers)
	cfg.Headless = os.Getenv("HEADLESS") != "false"

	cfg.ActionTimeout = parseDurationOrDefault("ACTION_TIMEOUT", defaultActionTimeout)
	cfg.NavigationTimeout = parseDurationOrDefault("NAVIGATION_TIMEOUT", defaultNavigationTimeout)
	cfg.APIRPS = parseFloat64OrDefault("API_RPS", 0)

	cfg.ArtifactsDir = getEnvOrDefault("ARTIFACTS_DIR", "reports")
	cfg.Screenshot = getEnvOrDefault("SCREENSHOT_MODE", CaptureOnlyOnFailure)
	cfg.Video = getEnvOrDefault("VIDEO_MODE", CaptureRetainOnFailure)
	cfg.Trace = getEnvOrDefault("TRACE_MODE", CaptureOnFirstRetry)

	cfg.ArtifactsBucket = strings.TrimSpace(os.Getenv("ARTIFACTS_BUCKET"))
	cfg.AWSEndpointS3 = strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL_S3"))
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", "us-east-1")
	cfg.AWSAccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	cfg.AWSSecretAccessKey = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))

	cfg.AppImage = strings.TrimSpace(os.Getenv("APP_IMAGE"))
	cfg.AppPort = getEnvOrDefault("APP_PORT", "3000/tcp")
	cfg.WebServerTimeout = parseDurationOrDefault("WEB_SERVER_TIMEOUT", defaultWebServerTimeout)

	cfg.LogFile = strings.TrimSpace(os.Getenv("LOG_FILE"))
	if raw := strings.TrimSpace(os.Getenv("LOG_LEVEL")); raw != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(raw)); err != nil {
			return nil, &ValidationError{Errors: []string{fmt.Sprintf("LOG_LEVEL %q must be debug, info, warn or error", raw)}}
		}
	}

	cfg.Profiles = DefaultProfiles(cfg.APIToken)
	if path := strings.TrimSpace(os.Getenv("PROFILES_FILE")); path != "" {
		overrides, err := LoadProfilesFile(path)
		if err != nil {
			return nil, err
		}
		for name, p := range overrides {
			cfg.Profiles[name] = p
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad loads configuration and panics if validation fails.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		var validationErr *ValidationError
		if errors.As(err, &validationErr) {
			panic(fmt.Sprintf("Configuration validation failed:\n  - %s", strings.Join(validationErr.Errors, "\n  - ")))
		}
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}
	return cfg
}

// DefaultProfiles returns the built-in execution profiles.
// The api profile carries the JSON and bearer headers every API call needs.
func DefaultProfiles(apiToken string) map[string]Profile {
	return map[string]Profile{
		"api": {
			Name:    "api",
			TestDir: "tests/api",
			Device:  "Desktop Chrome",
			ExtraHTTPHeaders: map[string]string{
				"Accept":        "application/json",
				"Content-Type":  "application/json",
				"Authorization": "Bearer " + apiToken,
			},
		},
		"chromium": {
			Name:    "chromium",
			TestDir: "tests/e2e",
			Browser: BrowserChromium,
			Device:  "Desktop Chrome",
		},
		"firefox": {
			Name:    "firefox",
			TestDir: "tests/e2e",
			Browser: BrowserFirefox,
			Device:  "Desktop Firefox",
		},
		"webkit": {
			Name:    "webkit",
			TestDir: "tests/e2e",
			Browser: BrowserWebKit,
			Device:  "Desktop Safari",
		},
		"mobile": {
			Name:    "mobile",
			TestDir: "tests/e2e",
			Browser: BrowserWebKit,
			Device:  "iPhone 13",
		},
		"integration": {
			Name:     "integration",
			TestDir:  "tests/integration",
			Browser:  BrowserChromium,
			Device:   "Desktop Chrome",
			Viewport: &Viewport{Width: 1920, Height: 1080},
		},
	}
}

type profilesFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// LoadProfilesFile reads additional or overriding profiles from a YAML file.
func LoadProfilesFile(path string) (map[string]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles file %q: %w", path, err)
	}
	var parsed profilesFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse profiles file %q: %w", path, err)
	}
	out := make(map[string]Profile, len(parsed.Profiles))
	for i, p := range parsed.Profiles {
		p.Name = strings.TrimSpace(p.Name)
		if p.Name == "" {
			return nil, fmt.Errorf("profiles file %q: entry %d has no name", path, i)
		}
		out[p.Name] = p
	}
	return out, nil
}

// Profile returns the named profile.
func (c *Config) Profile(name string) (Profile, error) {
	p, ok := c.Profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("unknown profile %q (known: %s)", name, strings.Join(c.ProfileNames(), ", "))
	}
	return p, nil
}

// ProfileNames returns profile names in sorted order.
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []string

	if err := checkHTTPURL(c.BaseURL); err != nil {
		errs = append(errs, "BASE_URL "+err.Error())
	}
	if err := checkHTTPURL(c.APIURL); err != nil {
		errs = append(errs, "API_URL "+err.Error())
	}
	if c.APIToken == "" && c.OAuthTokenURL == "" {
		errs = append(errs, "API_TOKEN is required unless OAUTH_TOKEN_URL is set")
	}
	if c.OAuthTokenURL != "" {
		if err := checkHTTPURL(c.OAuthTokenURL); err != nil {
			errs = append(errs, "OAUTH_TOKEN_URL "+err.Error())
		}
		if c.OAuthClientID == "" {
			errs = append(errs, "OAUTH_CLIENT_ID is required when OAUTH_TOKEN_URL is set")
		}
	}

	if c.ActionTimeout <= 0 {
		errs = append(errs, "ACTION_TIMEOUT must be positive")
	}
	if c.NavigationTimeout <= 0 {
		errs = append(errs, "NAVIGATION_TIMEOUT must be positive")
	}
	if c.APIRPS < 0 {
		errs = append(errs, "API_RPS must not be negative")
	}
	if c.Retries < 0 {
		errs = append(errs, "RETRIES must not be negative")
	}

	for key, mode := range map[string]string{"SCREENSHOT_MODE": c.Screenshot, "VIDEO_MODE": c.Video, "TRACE_MODE": c.Trace} {
		switch mode {
		case CaptureOff, CaptureOnlyOnFailure, CaptureRetainOnFailure, CaptureOnFirstRetry:
		default:
			errs = append(errs, fmt.Sprintf("%s has unknown mode %q", key, mode))
		}
	}

	if c.ArtifactsBucket != "" {
		if c.AWSRegion == "" {
			errs = append(errs, "AWS_REGION is required when ARTIFACTS_BUCKET is set")
		}
		if (c.AWSAccessKeyID == "") != (c.AWSSecretAccessKey == "") {
			errs = append(errs, "AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
		}
	}

	for _, name := range c.ProfileNames() {
		p := c.Profiles[name]
		switch p.Browser {
		case BrowserNone, BrowserChromium, BrowserFirefox, BrowserWebKit:
		default:
			errs = append(errs, fmt.Sprintf("profile %q has unknown browser %q", name, p.Browser))
		}
		if p.Viewport != nil && (p.Viewport.Width <= 0 || p.Viewport.Height <= 0) {
			errs = append(errs, fmt.Sprintf("profile %q has a non-positive viewport", name))
		}
	}

	sort.Strings(errs)
	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// ShouldStartWebServer reports whether the suite should launch the application itself.
// CI runs against an already deployed target.
func (c *Config) ShouldStartWebServer() bool {
	return !c.CI && c.AppImage != ""
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("is not a valid URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("must use http or https, got %q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("must include a host, got %q", raw)
	}
	return nil
}

// Helper functions for parsing environment variables

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseBool(value string) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		// CI systems commonly set CI to a non-boolean marker such as "yes".
		return strings.TrimSpace(value) != ""
	}
	return parsed
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		// Bare integers are milliseconds.
		if ms, convErr := strconv.Atoi(value); convErr == nil {
			return time.Duration(ms) * time.Millisecond
		}
		return defaultValue
	}
	return parsed
}
