package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Browser    BrowserConfig    `yaml:"browser"`
	Site       SiteConfig       `yaml:"site"`
	Timeouts   TimeoutConfig    `yaml:"timeouts"`
	Pacing     PacingConfig     `yaml:"pacing"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Images     ImageConfig      `yaml:"images"`
	Output     OutputConfig     `yaml:"output"`
	Preview    PreviewConfig    `yaml:"preview"`
	Webhook    WebhookConfig    `yaml:"webhook"`
	Log        LogConfig        `yaml:"log"`
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool `yaml:"headless"` // default: true

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool `yaml:"no_sandbox"` // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string `yaml:"bin"`

	// Proxy is the proxy URL for the browser and image fetches.
	Proxy string `yaml:"proxy"`

	// UserDataDir keeps the profile on disk between runs when set.
	UserDataDir string `yaml:"user_data_dir"`

	// Stealth injects anti-automation evasions before the first navigation.
	Stealth bool `yaml:"stealth"` // default: true

	// BlockedResourceTypes lists resource types to block.
	// default: ["Font", "Media"]
	BlockedResourceTypes []string `yaml:"blocked_resource_types"`

	// BlockTrackers blocks well-known analytics domains.
	BlockTrackers bool `yaml:"block_trackers"` // default: true
}

// SiteConfig describes the target web application.
type SiteConfig struct {
	// BaseURL is the scheme and host of the target application. Required.
	BaseURL string `yaml:"base_url"`

	// LoginPath is the path of the login form.
	LoginPath string `yaml:"login_path"` // default: "/login"

	// PostLoginPrefixes are the path prefixes that prove a successful login.
	PostLoginPrefixes []string `yaml:"post_login_prefixes"`

	// BancoPath is the path of the question bank listing page.
	BancoPath string `yaml:"banco_path"` // default: "/banco-questoes"

	// OpenExamText is the visible text of the button that opens an exam.
	OpenExamText string `yaml:"open_exam_text"` // default: "Abrir prova"

	// DismissWords are matched case-insensitively against interstitial buttons.
	DismissWords []string `yaml:"dismiss_words"`

	// Login form selectors.
	EmailSelector    string `yaml:"email_selector"`    // default: `input[type="email"]`
	PasswordSelector string `yaml:"password_selector"` // default: `input[type="password"]`
	SubmitSelector   string `yaml:"submit_selector"`   // default: `button[type="submit"]`

	// IframeSelector locates the embed that hosts the exam picker.
	IframeSelector string `yaml:"iframe_selector"` // default: "iframe"
}

// LoginURL joins BaseURL and LoginPath.
func (s SiteConfig) LoginURL() string {
	return strings.TrimRight(s.BaseURL, "/") + s.LoginPath
}

// BancoURL joins BaseURL and BancoPath.
func (s SiteConfig) BancoURL() string {
	return strings.TrimRight(s.BaseURL, "/") + s.BancoPath
}

// TimeoutConfig holds independent per-operation deadlines.
type TimeoutConfig struct {
	// Navigation is the max time for page.Navigate alone.
	Navigation time.Duration `yaml:"navigation"` // default: 30s

	// Selector is the max time to wait for a required element.
	Selector time.Duration `yaml:"selector"` // default: 15s

	// PageLoad is the max time for a full page load.
	PageLoad time.Duration `yaml:"page_load"` // default: 60s

	// LoginForm is the max time for the login form to hydrate.
	LoginForm time.Duration `yaml:"login_form"` // default: 20s

	// PostSubmit is the max time to wait for navigation after submitting login.
	PostSubmit time.Duration `yaml:"post_submit"` // default: 15s
}

// PacingConfig holds the settle delays used when the UI offers no better signal.
type PacingConfig struct {
	KeystrokeDelay  time.Duration `yaml:"keystroke_delay"`   // default: 50ms
	QuestionSettle  time.Duration `yaml:"question_settle"`   // default: 2s
	RetrySettle     time.Duration `yaml:"retry_settle"`      // default: 4s
	OpenExamSettle  time.Duration `yaml:"open_exam_settle"`  // default: 4s
	ScrollStepDelay time.Duration `yaml:"scroll_step_delay"` // default: 400ms
	ScrollSteps     int           `yaml:"scroll_steps"`      // default: 4
	FrameZoom       float64       `yaml:"frame_zoom"`        // default: 0.5
}

// ExtractionConfig controls the per-question loop.
type ExtractionConfig struct {
	// FailureThreshold is the consecutive-miss count that ends extraction.
	FailureThreshold int `yaml:"failure_threshold"` // default: 3

	// FallbackTotal is used when the question count cannot be read.
	FallbackTotal int `yaml:"fallback_total"` // default: 200

	// Sentinel is the console prefix marking question payloads.
	Sentinel string `yaml:"sentinel"` // default: "rawles"

	// ConsoleBuffer is the capacity of the console message channel.
	ConsoleBuffer int `yaml:"console_buffer"` // default: 256

	// DuplicateDistance is the SimHash distance at or below which two
	// statements are reported as near-duplicates. Negative disables.
	DuplicateDistance int `yaml:"duplicate_distance"` // default: 3
}

// ImageConfig controls the image downloader.
type ImageConfig struct {
	Dir         string        `yaml:"dir"`          // default: "public/images/questoes"
	ServePrefix string        `yaml:"serve_prefix"` // default: "/images/questoes"
	Concurrency int           `yaml:"concurrency"`  // default: 6
	RatePerSec  float64       `yaml:"rate_per_sec"` // default: 5
	MinBytes    int           `yaml:"min_bytes"`    // default: 1024
	MaxBytes    int64         `yaml:"max_bytes"`    // default: 20 MiB
	Timeout     time.Duration `yaml:"timeout"`      // default: 30s
}

// OutputConfig controls where artifacts land.
type OutputConfig struct {
	Dir             string `yaml:"dir"`              // default: "output"
	LogsDir         string `yaml:"logs_dir"`         // default: "logs"
	DebugDir        string `yaml:"debug_dir"`        // default: "logs/debug"
	Source          string `yaml:"source"`           // default: "rawles"
	PipelineVersion string `yaml:"pipeline_version"` // default: "1.0.0"
}

// PreviewConfig controls the local preview server.
type PreviewConfig struct {
	Host string `yaml:"host"` // default: "127.0.0.1"
	Port int    `yaml:"port"` // default: 8090
	Mode string `yaml:"mode"` // "debug", "release", "test"; default: "release"

	// APIKeys protects /api/v1 when non-empty.
	APIKeys []string `yaml:"api_keys"`

	// Per-client token bucket for /api/v1.
	RequestsPerSecond float64 `yaml:"requests_per_second"` // default: 20
	Burst             int     `yaml:"burst"`               // default: 40

	// Decoded output files kept for per-question lookups.
	CacheEntries int           `yaml:"cache_entries"` // default: 32
	CacheTTL     time.Duration `yaml:"cache_ttl"`     // default: 10m
}

// Addr returns host:port.
func (p PreviewConfig) Addr() string {
	return fmt.Sprintf("%s:%d", p.Host, p.Port)
}

// WebhookConfig controls completion notifications.
type WebhookConfig struct {
	URL    string `yaml:"url"`
	Secret string `yaml:"secret"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // default: "info"
	Format string `yaml:"format"` // "json" or "text"; default: "text"
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:             true,
			Stealth:              true,
			BlockedResourceTypes: []string{"Font", "Media"},
			BlockTrackers:        true,
		},
		Site: SiteConfig{
			LoginPath:         "/login",
			PostLoginPrefixes: []string{"/dashboard", "/home", "/inicio"},
			BancoPath:         "/banco-questoes",
			OpenExamText:      "Abrir prova",
			DismissWords:      []string{"fechar", "pular", "agora não", "não", "depois", "mais tarde"},
			EmailSelector:     `input[type="email"]`,
			PasswordSelector:  `input[type="password"]`,
			SubmitSelector:    `button[type="submit"]`,
			IframeSelector:    "iframe",
		},
		Timeouts: TimeoutConfig{
			Navigation: 30 * time.Second,
			Selector:   15 * time.Second,
			PageLoad:   60 * time.Second,
			LoginForm:  20 * time.Second,
			PostSubmit: 15 * time.Second,
		},
		Pacing: PacingConfig{
			KeystrokeDelay:  50 * time.Millisecond,
			QuestionSettle:  2 * time.Second,
			RetrySettle:     4 * time.Second,
			OpenExamSettle:  4 * time.Second,
			ScrollStepDelay: 400 * time.Millisecond,
			ScrollSteps:     4,
			FrameZoom:       0.5,
		},
		Extraction: ExtractionConfig{
			FailureThreshold:  3,
			FallbackTotal:     200,
			Sentinel:          "rawles",
			ConsoleBuffer:     256,
			DuplicateDistance: 3,
		},
		Images: ImageConfig{
			Dir:         "public/images/questoes",
			ServePrefix: "/images/questoes",
			Concurrency: 6,
			RatePerSec:  5,
			MinBytes:    1024,
			MaxBytes:    20 << 20,
			Timeout:     30 * time.Second,
		},
		Output: OutputConfig{
			Dir:             "output",
			LogsDir:         "logs",
			DebugDir:        "logs/debug",
			Source:          "rawles",
			PipelineVersion: "1.0.0",
		},
		Preview: PreviewConfig{
			Host:              "127.0.0.1",
			Port:              8090,
			Mode:              "release",
			RequestsPerSecond: 20,
			Burst:             40,
			CacheEntries:      32,
			CacheTTL:          10 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load builds the configuration from defaults, then the optional YAML file at
// path (PROVAS_CONFIG when path is empty), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		path = os.Getenv("PROVAS_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// Validate reports configuration that cannot drive a run.
func (c *Config) Validate() error {
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site base URL is required (PROVAS_BASE_URL)")
	}
	if len(c.Site.PostLoginPrefixes) == 0 {
		return fmt.Errorf("at least one post-login path prefix is required")
	}
	if c.Extraction.FailureThreshold < 1 {
		return fmt.Errorf("failure threshold must be >= 1, got %d", c.Extraction.FailureThreshold)
	}
	if c.Images.Concurrency < 1 {
		c.Images.Concurrency = 1
	}
	return nil
}

func applyEnv(cfg *Config) {
	b := &cfg.Browser
	b.Headless = envBoolOr("PROVAS_HEADLESS", b.Headless)
	b.NoSandbox = envBoolOr("PROVAS_NO_SANDBOX", b.NoSandbox)
	b.BrowserBin = envOr("PROVAS_BROWSER_BIN", b.BrowserBin)
	b.Proxy = envOr("PROVAS_PROXY", b.Proxy)
	b.UserDataDir = envOr("PROVAS_USER_DATA_DIR", b.UserDataDir)
	b.Stealth = envBoolOr("PROVAS_STEALTH", b.Stealth)
	b.BlockedResourceTypes = envSliceOr("PROVAS_BLOCKED_RESOURCES", b.BlockedResourceTypes)
	b.BlockTrackers = envBoolOr("PROVAS_BLOCK_TRACKERS", b.BlockTrackers)

	s := &cfg.Site
	s.BaseURL = envOr("PROVAS_BASE_URL", s.BaseURL)
	s.LoginPath = envOr("PROVAS_LOGIN_PATH", s.LoginPath)
	s.PostLoginPrefixes = envSliceOr("PROVAS_POST_LOGIN_PREFIXES", s.PostLoginPrefixes)
	s.BancoPath = envOr("PROVAS_BANCO_PATH", s.BancoPath)
	s.OpenExamText = envOr("PROVAS_OPEN_EXAM_TEXT", s.OpenExamText)
	s.DismissWords = envSliceOr("PROVAS_DISMISS_WORDS", s.DismissWords)
	s.IframeSelector = envOr("PROVAS_IFRAME_SELECTOR", s.IframeSelector)

	t := &cfg.Timeouts
	t.Navigation = envDurationOr("PROVAS_NAV_TIMEOUT", t.Navigation)
	t.Selector = envDurationOr("PROVAS_SELECTOR_TIMEOUT", t.Selector)
	t.PageLoad = envDurationOr("PROVAS_PAGE_LOAD_TIMEOUT", t.PageLoad)
	t.LoginForm = envDurationOr("PROVAS_LOGIN_FORM_TIMEOUT", t.LoginForm)
	t.PostSubmit = envDurationOr("PROVAS_POST_SUBMIT_TIMEOUT", t.PostSubmit)

	p := &cfg.Pacing
	p.KeystrokeDelay = envDurationOr("PROVAS_KEYSTROKE_DELAY", p.KeystrokeDelay)
	p.QuestionSettle = envDurationOr("PROVAS_QUESTION_SETTLE", p.QuestionSettle)
	p.RetrySettle = envDurationOr("PROVAS_RETRY_SETTLE", p.RetrySettle)
	p.OpenExamSettle = envDurationOr("PROVAS_OPEN_EXAM_SETTLE", p.OpenExamSettle)
	p.ScrollStepDelay = envDurationOr("PROVAS_SCROLL_STEP_DELAY", p.ScrollStepDelay)
	p.ScrollSteps = envIntOr("PROVAS_SCROLL_STEPS", p.ScrollSteps)
	p.FrameZoom = envFloatOr("PROVAS_FRAME_ZOOM", p.FrameZoom)

	e := &cfg.Extraction
	e.FailureThreshold = envIntOr("PROVAS_FAILURE_THRESHOLD", e.FailureThreshold)
	e.FallbackTotal = envIntOr("PROVAS_FALLBACK_TOTAL", e.FallbackTotal)
	e.Sentinel = envOr("PROVAS_SENTINEL", e.Sentinel)
	e.ConsoleBuffer = envIntOr("PROVAS_CONSOLE_BUFFER", e.ConsoleBuffer)
	e.DuplicateDistance = envIntOr("PROVAS_DUPLICATE_DISTANCE", e.DuplicateDistance)

	i := &cfg.Images
	i.Dir = envOr("PROVAS_IMAGES_DIR", i.Dir)
	i.ServePrefix = envOr("PROVAS_IMAGES_PREFIX", i.ServePrefix)
	i.Concurrency = envIntOr("PROVAS_IMAGES_CONCURRENCY", i.Concurrency)
	i.RatePerSec = envFloatOr("PROVAS_IMAGES_RPS", i.RatePerSec)
	i.MinBytes = envIntOr("PROVAS_IMAGES_MIN_BYTES", i.MinBytes)
	i.MaxBytes = int64(envIntOr("PROVAS_IMAGES_MAX_BYTES", int(i.MaxBytes)))
	i.Timeout = envDurationOr("PROVAS_IMAGES_TIMEOUT", i.Timeout)

	o := &cfg.Output
	o.Dir = envOr("PROVAS_OUTPUT_DIR", o.Dir)
	o.LogsDir = envOr("PROVAS_LOGS_DIR", o.LogsDir)
	o.DebugDir = envOr("PROVAS_DEBUG_DIR", o.DebugDir)
	o.Source = envOr("PROVAS_SOURCE", o.Source)
	o.PipelineVersion = envOr("PROVAS_PIPELINE_VERSION", o.PipelineVersion)

	cfg.Preview.Host = envOr("PROVAS_PREVIEW_HOST", cfg.Preview.Host)
	cfg.Preview.Port = envIntOr("PROVAS_PREVIEW_PORT", cfg.Preview.Port)
	cfg.Preview.Mode = envOr("PROVAS_PREVIEW_MODE", cfg.Preview.Mode)
	cfg.Preview.APIKeys = envSliceOr("PROVAS_PREVIEW_API_KEYS", cfg.Preview.APIKeys)
	cfg.Preview.RequestsPerSecond = envFloatOr("PROVAS_PREVIEW_RPS", cfg.Preview.RequestsPerSecond)
	cfg.Preview.Burst = envIntOr("PROVAS_PREVIEW_BURST", cfg.Preview.Burst)
	cfg.Preview.CacheEntries = envIntOr("PROVAS_PREVIEW_CACHE_ENTRIES", cfg.Preview.CacheEntries)
	cfg.Preview.CacheTTL = envDurationOr("PROVAS_PREVIEW_CACHE_TTL", cfg.Preview.CacheTTL)

	cfg.Webhook.URL = envOr("PROVAS_WEBHOOK_URL", cfg.Webhook.URL)
	cfg.Webhook.Secret = envOr("PROVAS_WEBHOOK_SECRET", cfg.Webhook.Secret)

	cfg.Log.Level = envOr("PROVAS_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = envOr("PROVAS_LOG_FORMAT", cfg.Log.Format)
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
