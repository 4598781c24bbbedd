// Package config provides configuration management for the storefront server.
//
// Values are resolved in increasing priority: built-in defaults, an optional
// TOML file named by APP_CONFIG_FILE, then APP_* environment variables. A
// .env file (APP_ENV_FILE, default ".env") is loaded into the environment
// first and never overrides variables that are already set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Default configuration values.
const (
	DefaultServerPort       = 8080
	DefaultProbePort        = 9090
	DefaultLogLevel         = "info"
	DefaultShutdownTimeout  = 30 * time.Second
	DefaultMetricsEnabled   = true
	DefaultCatalogBaseURL   = "https://fakestoreapi.com"
	DefaultCatalogTimeout   = 10 * time.Second
	DefaultCatalogCacheTTL  = time.Hour
	DefaultStoreBackend     = "memory"
	DefaultStorageName      = "ecommerce-store"
	DefaultSearchMinLength  = 2
	DefaultSearchMaxResults = 5
	DefaultSearchDebounce   = 300 * time.Millisecond
	DefaultCheckoutDelay    = 2 * time.Second
	DefaultContactDelay     = 1500 * time.Millisecond
	DefaultSessionIdle      = 30 * time.Minute
	DefaultSessionPrune     = 5 * time.Minute
	DefaultEnvFile          = ".env"
)

// Environment variable names.
const (
	EnvConfigFile       = "APP_CONFIG_FILE"
	EnvEnvFile          = "APP_ENV_FILE"
	EnvServerPort       = "APP_SERVER_PORT"
	EnvProbePort        = "APP_PROBE_PORT"
	EnvLogLevel         = "APP_LOG_LEVEL"
	EnvShutdownTimeout  = "APP_SHUTDOWN_TIMEOUT"
	EnvMetricsEnabled   = "APP_METRICS_ENABLED"
	EnvCORSOrigins      = "APP_CORS_ORIGINS"
	EnvSecureCookie     = "APP_SECURE_COOKIE"
	EnvCatalogBaseURL   = "APP_CATALOG_BASE_URL"
	EnvCatalogTimeout   = "APP_CATALOG_TIMEOUT"
	EnvCatalogCacheTTL  = "APP_CATALOG_CACHE_TTL"
	EnvStoreBackend     = "APP_STORE_BACKEND"
	EnvStoreDSN         = "APP_STORE_DSN"
	EnvStorageName      = "APP_STORAGE_NAME"
	EnvSearchMinLength  = "APP_SEARCH_MIN_LENGTH"
	EnvSearchMaxResults = "APP_SEARCH_MAX_RESULTS"
	EnvSearchDebounce   = "APP_SEARCH_DEBOUNCE"
	EnvCheckoutDelay    = "APP_CHECKOUT_DELAY"
	EnvContactDelay     = "APP_CONTACT_DELAY"
	EnvSessionIdle      = "APP_SESSION_IDLE_TIMEOUT"
	EnvSessionPrune     = "APP_SESSION_PRUNE_INTERVAL"
)

// Config holds the application configuration.
type Config struct {
	// Server settings.
	ServerPort      int
	ProbePort       int // Probe server port (0 = disabled).
	LogLevel        string
	ShutdownTimeout time.Duration
	MetricsEnabled  bool
	CORSOrigins     []string
	SecureCookie    bool

	// Catalog settings.
	CatalogBaseURL  string
	CatalogTimeout  time.Duration
	CatalogCacheTTL time.Duration

	// Persistence: memory, file, sqlite or postgres.
	StoreBackend string
	StoreDSN     string
	StorageName  string

	// Live search.
	SearchMinLength  int
	SearchMaxResults int
	SearchDebounce   time.Duration

	// Simulated form processing.
	CheckoutDelay time.Duration
	ContactDelay  time.Duration

	// In-memory sessions idle longer than SessionIdleTimeout are dropped
	// every SessionPruneInterval. A zero interval disables pruning.
	SessionIdleTimeout   time.Duration
	SessionPruneInterval time.Duration
}

// Validation errors.
var (
	ErrInvalidServerPort      = errors.New("server port must be between 1 and 65535")
	ErrInvalidProbePort       = errors.New("probe port must be between 0 and 65535")
	ErrProbePortConflict      = errors.New("probe port must differ from server port when probe port is not 0")
	ErrInvalidLogLevel        = errors.New("log level must be one of: debug, info, warn, error")
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")
	ErrInvalidCatalogURL      = errors.New("catalog base URL must be set")
	ErrInvalidCatalogTimeout  = errors.New("catalog timeout must be positive")
	ErrInvalidCacheTTL        = errors.New("catalog cache TTL must not be negative")
	ErrInvalidStoreBackend    = errors.New("store backend must be one of: memory, file, sqlite, postgres")
	ErrStoreDSNRequired       = errors.New("store DSN must be set for file, sqlite and postgres backends")
	ErrInvalidStorageName     = errors.New("storage name must be set")
	ErrInvalidSearchLimits    = errors.New("search min length and max results must be positive")
	ErrInvalidDelay           = errors.New("debounce and processing delays must not be negative")
	ErrInvalidSessionTimings  = errors.New("session prune interval must not be negative and idle timeout must be positive while pruning")
)

// fileConfig mirrors the TOML layout. Absent keys leave the current value.
type fileConfig struct {
	Server struct {
		Port            *int     `toml:"port"`
		ProbePort       *int     `toml:"probe_port"`
		LogLevel        string   `toml:"log_level"`
		ShutdownTimeout string   `toml:"shutdown_timeout"`
		MetricsEnabled  *bool    `toml:"metrics_enabled"`
		CORSOrigins     []string `toml:"cors_origins"`
		SecureCookie    *bool    `toml:"secure_cookie"`
	} `toml:"server"`
	Catalog struct {
		BaseURL  string `toml:"base_url"`
		Timeout  string `toml:"timeout"`
		CacheTTL string `toml:"cache_ttl"`
	} `toml:"catalog"`
	Store struct {
		Backend string `toml:"backend"`
		DSN     string `toml:"dsn"`
		Name    string `toml:"name"`
	} `toml:"store"`
	Search struct {
		MinLength  *int   `toml:"min_length"`
		MaxResults *int   `toml:"max_results"`
		Debounce   string `toml:"debounce"`
	} `toml:"search"`
	Checkout struct {
		ProcessingDelay string `toml:"processing_delay"`
		ContactDelay    string `toml:"contact_delay"`
	} `toml:"checkout"`
	Session struct {
		IdleTimeout   string `toml:"idle_timeout"`
		PruneInterval string `toml:"prune_interval"`
	} `toml:"session"`
}

// Default returns the configuration with every setting at its default.
func Default() *Config {
	return &Config{
		ServerPort:           DefaultServerPort,
		ProbePort:            DefaultProbePort,
		LogLevel:             DefaultLogLevel,
		ShutdownTimeout:      DefaultShutdownTimeout,
		MetricsEnabled:       DefaultMetricsEnabled,
		CatalogBaseURL:       DefaultCatalogBaseURL,
		CatalogTimeout:       DefaultCatalogTimeout,
		CatalogCacheTTL:      DefaultCatalogCacheTTL,
		StoreBackend:         DefaultStoreBackend,
		StorageName:          DefaultStorageName,
		SearchMinLength:      DefaultSearchMinLength,
		SearchMaxResults:     DefaultSearchMaxResults,
		SearchDebounce:       DefaultSearchDebounce,
		CheckoutDelay:        DefaultCheckoutDelay,
		ContactDelay:         DefaultContactDelay,
		SessionIdleTimeout:   DefaultSessionIdle,
		SessionPruneInterval: DefaultSessionPrune,
	}
}

// Load resolves the configuration from defaults, files and environment.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, fmt.Errorf("loading env file: %w", err)
	}

	cfg := Default()

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("loading config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// loadDotEnv loads the .env file into the process environment. A missing
// file is not an error.
func loadDotEnv() error {
	path := os.Getenv(EnvEnvFile)
	if path == "" {
		path = DefaultEnvFile
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// loadFromFile overlays the TOML file at path onto c.
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	var raw fileConfig
	if err := toml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return c.apply(&raw)
}

func (c *Config) apply(raw *fileConfig) error {
	setInt(&c.ServerPort, raw.Server.Port)
	setInt(&c.ProbePort, raw.Server.ProbePort)
	setString(&c.LogLevel, raw.Server.LogLevel)
	setBool(&c.MetricsEnabled, raw.Server.MetricsEnabled)
	setBool(&c.SecureCookie, raw.Server.SecureCookie)
	if raw.Server.CORSOrigins != nil {
		c.CORSOrigins = raw.Server.CORSOrigins
	}

	setString(&c.CatalogBaseURL, raw.Catalog.BaseURL)
	setString(&c.StoreBackend, raw.Store.Backend)
	setString(&c.StoreDSN, raw.Store.DSN)
	setString(&c.StorageName, raw.Store.Name)
	setInt(&c.SearchMinLength, raw.Search.MinLength)
	setInt(&c.SearchMaxResults, raw.Search.MaxResults)

	durations := []struct {
		key string
		val string
		dst *time.Duration
	}{
		{"server.shutdown_timeout", raw.Server.ShutdownTimeout, &c.ShutdownTimeout},
		{"catalog.timeout", raw.Catalog.Timeout, &c.CatalogTimeout},
		{"catalog.cache_ttl", raw.Catalog.CacheTTL, &c.CatalogCacheTTL},
		{"search.debounce", raw.Search.Debounce, &c.SearchDebounce},
		{"checkout.processing_delay", raw.Checkout.ProcessingDelay, &c.CheckoutDelay},
		{"checkout.contact_delay", raw.Checkout.ContactDelay, &c.ContactDelay},
		{"session.idle_timeout", raw.Session.IdleTimeout, &c.SessionIdleTimeout},
		{"session.prune_interval", raw.Session.PruneInterval, &c.SessionPruneInterval},
	}
	for _, d := range durations {
		if d.val == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.val)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	return nil
}

// loadFromEnv loads configuration values from environment variables.
func (c *Config) loadFromEnv() error {
	if err := c.loadServerEnv(); err != nil {
		return err
	}

	if err := c.loadCatalogEnv(); err != nil {
		return err
	}

	c.loadStoreEnv()

	return c.loadBehaviorEnv()
}

// loadServerEnv loads server-related environment variables.
func (c *Config) loadServerEnv() error {
	if err := envInt(EnvServerPort, &c.ServerPort); err != nil {
		return err
	}

	if err := envInt(EnvProbePort, &c.ProbePort); err != nil {
		return err
	}

	if val := os.Getenv(EnvLogLevel); val != "" {
		c.LogLevel = val
	}

	if err := envDuration(EnvShutdownTimeout, &c.ShutdownTimeout); err != nil {
		return err
	}

	if err := envBool(EnvMetricsEnabled, &c.MetricsEnabled); err != nil {
		return err
	}

	if val := os.Getenv(EnvCORSOrigins); val != "" {
		c.CORSOrigins = splitList(val)
	}

	return envBool(EnvSecureCookie, &c.SecureCookie)
}

// loadCatalogEnv loads catalog client environment variables.
func (c *Config) loadCatalogEnv() error {
	if val := os.Getenv(EnvCatalogBaseURL); val != "" {
		c.CatalogBaseURL = val
	}

	if err := envDuration(EnvCatalogTimeout, &c.CatalogTimeout); err != nil {
		return err
	}

	return envDuration(EnvCatalogCacheTTL, &c.CatalogCacheTTL)
}

// loadStoreEnv loads persistence environment variables.
func (c *Config) loadStoreEnv() {
	if val := os.Getenv(EnvStoreBackend); val != "" {
		c.StoreBackend = val
	}

	if val := os.Getenv(EnvStoreDSN); val != "" {
		c.StoreDSN = val
	}

	if val := os.Getenv(EnvStorageName); val != "" {
		c.StorageName = val
	}
}

// loadBehaviorEnv loads search, checkout and session timing variables.
func (c *Config) loadBehaviorEnv() error {
	if err := envInt(EnvSearchMinLength, &c.SearchMinLength); err != nil {
		return err
	}

	if err := envInt(EnvSearchMaxResults, &c.SearchMaxResults); err != nil {
		return err
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{EnvSearchDebounce, &c.SearchDebounce},
		{EnvCheckoutDelay, &c.CheckoutDelay},
		{EnvContactDelay, &c.ContactDelay},
		{EnvSessionIdle, &c.SessionIdleTimeout},
		{EnvSessionPrune, &c.SessionPruneInterval},
	}
	for _, d := range durations {
		if err := envDuration(d.name, d.dst); err != nil {
			return err
		}
	}

	return nil
}

// Validate checks if the configuration values are valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateCatalog(); err != nil {
		return err
	}

	if err := c.validateStore(); err != nil {
		return err
	}

	return c.validateBehavior()
}

// validateServer validates server-related configuration.
func (c *Config) validateServer() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return ErrInvalidServerPort
	}

	if c.ProbePort < 0 || c.ProbePort > 65535 {
		return ErrInvalidProbePort
	}

	if c.ProbePort != 0 && c.ProbePort == c.ServerPort {
		return ErrProbePortConflict
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return ErrInvalidLogLevel
	}

	if c.ShutdownTimeout <= 0 {
		return ErrInvalidShutdownTimeout
	}

	return nil
}

func (c *Config) validateCatalog() error {
	if strings.TrimSpace(c.CatalogBaseURL) == "" {
		return ErrInvalidCatalogURL
	}

	if c.CatalogTimeout <= 0 {
		return ErrInvalidCatalogTimeout
	}

	if c.CatalogCacheTTL < 0 {
		return ErrInvalidCacheTTL
	}

	return nil
}

func (c *Config) validateStore() error {
	switch c.StoreBackend {
	case "memory":
	case "file", "sqlite", "postgres":
		if c.StoreDSN == "" {
			return ErrStoreDSNRequired
		}
	default:
		return ErrInvalidStoreBackend
	}

	if strings.TrimSpace(c.StorageName) == "" {
		return ErrInvalidStorageName
	}

	return nil
}

func (c *Config) validateBehavior() error {
	if c.SearchMinLength < 1 || c.SearchMaxResults < 1 {
		return ErrInvalidSearchLimits
	}

	if c.SearchDebounce < 0 || c.CheckoutDelay < 0 || c.ContactDelay < 0 {
		return ErrInvalidDelay
	}

	if c.SessionPruneInterval < 0 {
		return ErrInvalidSessionTimings
	}

	if c.SessionPruneInterval > 0 && c.SessionIdleTimeout <= 0 {
		return ErrInvalidSessionTimings
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *Config) Address() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

// ProbeAddress returns the probe server address in host:port format.
func (c *Config) ProbeAddress() string {
	return fmt.Sprintf(":%d", c.ProbePort)
}

func envInt(name string, dst *int) error {
	val := os.Getenv(name)
	if val == "" {
		return nil
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	*dst = parsed
	return nil
}

func envBool(name string, dst *bool) error {
	val := os.Getenv(name)
	if val == "" {
		return nil
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	*dst = parsed
	return nil
}

func envDuration(name string, dst *time.Duration) error {
	val := os.Getenv(name)
	if val == "" {
		return nil
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", name, err)
	}
	*dst = parsed
	return nil
}

func setInt(dst *int, val *int) {
	if val != nil {
		*dst = *val
	}
}

func setBool(dst *bool, val *bool) {
	if val != nil {
		*dst = *val
	}
}

func setString(dst *string, val string) {
	if val = strings.TrimSpace(val); val != "" {
		*dst = val
	}
}

// splitList parses a comma separated list, dropping empty entries.
func splitList(val string) []string {
	var out []string
	for part := range strings.SplitSeq(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
