package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Renderer kinds
const (
	RendererBrowser = "browser"
	RendererStatic  = "static"
)

// Config represents the application configuration
type Config struct {
	// Target site
	BaseURL string
	Locale  string

	// Rendering
	Renderer       string
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	BrowserBin     string
	ProxyURLs      []string

	// Collection loop
	MaxDuration         time.Duration
	StallRounds         int
	FirstContentTimeout time.Duration
	NetworkIdleTimeout  time.Duration
	SettleDelay         time.Duration
	LoadMoreLabels      []string

	// Report
	OutlierFactor  float64
	ReportFilename string

	// Concurrency
	MaxConcurrentRuns int

	// Redis configuration
	RedisAddr             string
	RedisDB               int
	JobStream             string
	JobGroup              string
	JobConsumer           string
	ResultStream          string
	ResultStreamMaxLength int

	// Memcache configuration
	MemcacheAddr string
	Cooldown     time.Duration

	// HTTP API
	HTTPAddr          string
	APIRatePerMinute  int
	APIAllowedOrigins []string

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	return &Config{
		BaseURL:               getEnv("BASE_URL", "https://divar.ir"),
		Locale:                getEnv("LOCALE", "fa-IR"),
		Renderer:              getEnv("RENDERER", RendererBrowser),
		Headless:              getEnvBool("HEADLESS", true),
		ViewportWidth:         getEnvInt("VIEWPORT_WIDTH", 1400),
		ViewportHeight:        getEnvInt("VIEWPORT_HEIGHT", 2800),
		BrowserBin:            getEnv("BROWSER_BIN", ""),
		ProxyURLs:             getEnvList("PROXY_URLS", nil),
		MaxDuration:           time.Duration(getEnvInt("MAX_DURATION_SECONDS", 240)) * time.Second,
		StallRounds:           getEnvInt("STALL_ROUNDS", 6),
		FirstContentTimeout:   time.Duration(getEnvInt("FIRST_CONTENT_TIMEOUT_SECONDS", 20)) * time.Second,
		NetworkIdleTimeout:    time.Duration(getEnvInt("NETWORK_IDLE_MS", 1500)) * time.Millisecond,
		SettleDelay:           time.Duration(getEnvInt("SETTLE_DELAY_MS", 300)) * time.Millisecond,
		LoadMoreLabels:        getEnvList("LOAD_MORE_LABELS", []string{"نمایش بیشتر", "بیشتر", "Load more"}),
		OutlierFactor:         getEnvFloat("OUTLIER_FACTOR", 1.5),
		ReportFilename:        getEnv("REPORT_FILENAME", "cars.xlsx"),
		MaxConcurrentRuns:     getEnvInt("MAX_CONCURRENT_RUNS", 2),
		RedisAddr:             getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:               getEnvInt("REDIS_DB", 0),
		JobStream:             getEnv("JOB_STREAM", "harvest:jobs"),
		JobGroup:              getEnv("JOB_GROUP", "harvesters"),
		JobConsumer:           getEnv("JOB_CONSUMER", defaultConsumer()),
		ResultStream:          getEnv("RESULT_STREAM", "harvest:results"),
		ResultStreamMaxLength: getEnvInt("RESULT_STREAM_MAX_LENGTH", 1000),
		MemcacheAddr:          getEnv("MEMCACHE_ADDR", "localhost:11211"),
		Cooldown:              time.Duration(getEnvInt("COOLDOWN_SECONDS", 300)) * time.Second,
		HTTPAddr:              os.Getenv("HTTP_ADDR"),
		APIRatePerMinute:      getEnvInt("API_RATE_PER_MINUTE", 6),
		APIAllowedOrigins:     getEnvList("API_ALLOWED_ORIGINS", []string{"*"}),
		Environment:           getEnv("HARVEST_ENVIRONMENT", "development"),
	}
}

// Validate checks the configuration for values the collector cannot run with
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("BASE_URL must be an absolute URL, got %q", c.BaseURL)
	}
	if c.Renderer != RendererBrowser && c.Renderer != RendererStatic {
		return fmt.Errorf("RENDERER must be %q or %q, got %q", RendererBrowser, RendererStatic, c.Renderer)
	}
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", c.ViewportWidth, c.ViewportHeight)
	}
	if c.MaxDuration <= 0 {
		return fmt.Errorf("MAX_DURATION_SECONDS must be positive")
	}
	if c.StallRounds <= 0 {
		return fmt.Errorf("STALL_ROUNDS must be positive")
	}
	if c.FirstContentTimeout <= 0 {
		return fmt.Errorf("FIRST_CONTENT_TIMEOUT_SECONDS must be positive")
	}
	if c.OutlierFactor <= 0 {
		return fmt.Errorf("OUTLIER_FACTOR must be positive")
	}
	if c.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_RUNS must be positive")
	}
	if c.JobStream == "" || c.ResultStream == "" {
		return fmt.Errorf("JOB_STREAM and RESULT_STREAM are required")
	}
	return nil
}

// defaultConsumer names the stream consumer after the host so restarts keep the name
func defaultConsumer() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return ""
	}
	return "harvester-" + host
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvList splits a '|' separated variable; labels may contain commas and spaces
func getEnvList(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}

	var items []string
	for _, item := range strings.Split(raw, "|") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
