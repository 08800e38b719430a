package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/livetemplate/storefront/internal/style"
)

// Config represents the storefront configuration
type Config struct {
	Title    string         `yaml:"title"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Preview  PreviewConfig  `yaml:"preview"`
	Theme    style.Theme    `yaml:"theme"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	API      *APIConfig     `yaml:"api,omitempty"`
	Notify   []NotifyConfig `yaml:"notify,omitempty"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port  int    `yaml:"port"`
	Host  string `yaml:"host"`
	Debug bool   `yaml:"debug"`
	Watch bool   `yaml:"watch"` // Reload catalog feeds when catalog files change
}

// DatabaseConfig selects the config store backend
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`             // "sqlite", "postgres", "mysql", "mongo" or "memory"
	DSN      string `yaml:"dsn,omitempty"`      // File path for sqlite, connection string or URI otherwise (env vars expanded)
	Database string `yaml:"database,omitempty"` // For mongo: database name (default: storefront)
}

// NotifyConfig is a target told about each publish
type NotifyConfig struct {
	Type       string `yaml:"type"`                  // "slack" or "email"
	Channel    string `yaml:"channel,omitempty"`     // For slack: e.g. "#merch"
	WebhookURL string `yaml:"webhook_url,omitempty"` // For slack (env vars expanded). Default: $SLACK_WEBHOOK_URL
	To         string `yaml:"to,omitempty"`          // For email: recipient address
	Subject    string `yaml:"subject,omitempty"`     // For email
}

// GetWebhookURL returns the Slack webhook URL with environment variable expansion
func (c NotifyConfig) GetWebhookURL() string {
	if c.WebhookURL == "" {
		return os.Getenv("SLACK_WEBHOOK_URL")
	}
	return os.ExpandEnv(c.WebhookURL)
}

// GetDriver returns the backend driver (default: sqlite)
func (c DatabaseConfig) GetDriver() string {
	if c.Driver == "" {
		return "sqlite"
	}
	return c.Driver
}

// GetDSN returns the DSN with environment variable expansion
func (c DatabaseConfig) GetDSN() string {
	if c.DSN == "" && c.GetDriver() == "sqlite" {
		return "storefront.db"
	}
	return os.ExpandEnv(c.DSN)
}

// PreviewConfig throttles editor-to-preview updates
type PreviewConfig struct {
	UpdatesPerSecond float64 `yaml:"updates_per_second,omitempty"` // Default: 10
	Burst            int     `yaml:"burst,omitempty"`              // Default: 1
}

// GetUpdatesPerSecond returns the preview update rate (default: 10)
func (c PreviewConfig) GetUpdatesPerSecond() float64 {
	if c.UpdatesPerSecond <= 0 {
		return 10
	}
	return c.UpdatesPerSecond
}

// GetBurst returns the preview update burst (default: 1)
func (c PreviewConfig) GetBurst() int {
	if c.Burst <= 0 {
		return 1
	}
	return c.Burst
}

// CatalogConfig points at the collaborator data feeds
type CatalogConfig struct {
	Dir     string                  `yaml:"dir,omitempty"`     // Base directory for file feeds and the watcher (default: catalog)
	Sources map[string]SourceConfig `yaml:"sources,omitempty"` // Keyed by feed name: products, categories, brands, menus, banners
}

// GetDir returns the catalog directory (default: catalog)
func (c CatalogConfig) GetDir() string {
	if c.Dir == "" {
		return "catalog"
	}
	return c.Dir
}

// SourceConfig defines one catalog feed
type SourceConfig struct {
	Type       string            `yaml:"type"`                  // "json", "sqlite", "pg", "mysql", "mongo", "rest"
	File       string            `yaml:"file,omitempty"`        // For json: file path, relative to the catalog dir
	DB         string            `yaml:"db,omitempty"`          // For sqlite: database file; for pg/mysql/mongo: DSN or URI (env vars expanded)
	Table      string            `yaml:"table,omitempty"`       // For sqlite: table name
	Query      string            `yaml:"query,omitempty"`       // For pg/mysql: SQL query
	URL        string            `yaml:"url,omitempty"`         // For rest: endpoint URL
	Database   string            `yaml:"database,omitempty"`    // For mongo: database name
	Collection string            `yaml:"collection,omitempty"`  // For mongo: collection name
	Headers    map[string]string `yaml:"headers,omitempty"`     // For rest: HTTP headers (env vars expanded)
	ResultPath string            `yaml:"result_path,omitempty"` // For rest: dot-path to the array (e.g., "data.items")
	Options    map[string]string `yaml:"options,omitempty"`     // Type-specific options
	Timeout    string            `yaml:"timeout,omitempty"`     // Request timeout (e.g., "30s"). Default: 10s
	Retry      *RetryConfig      `yaml:"retry,omitempty"`
	Cache      *CacheConfig      `yaml:"cache,omitempty"`
}

// RetryConfig configures retry behavior for a source
type RetryConfig struct {
	MaxRetries int    `yaml:"max_retries,omitempty"` // Maximum retry attempts (default: 3)
	BaseDelay  string `yaml:"base_delay,omitempty"`  // Initial delay (e.g., "100ms"). Default: 100ms
	MaxDelay   string `yaml:"max_delay,omitempty"`   // Maximum delay (e.g., "5s"). Default: 5s
}

// CacheConfig configures caching behavior for a source
type CacheConfig struct {
	TTL      string `yaml:"ttl,omitempty"`      // Cache TTL (e.g., "5m"). Default: disabled (empty)
	Strategy string `yaml:"strategy,omitempty"` // "simple" or "stale-while-revalidate". Default: "simple"
}

// GetTimeout returns the parsed timeout duration (default: 10s)
func (c SourceConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 10*time.Second)
}

// GetRetryMaxRetries returns the max retries (default: 3, set to 0 to disable retries)
func (c SourceConfig) GetRetryMaxRetries() int {
	if c.Retry == nil || c.Retry.MaxRetries < 0 {
		return 3
	}
	return c.Retry.MaxRetries
}

// GetRetryBaseDelay returns the base delay (default: 100ms)
func (c SourceConfig) GetRetryBaseDelay() time.Duration {
	if c.Retry == nil {
		return 100 * time.Millisecond
	}
	return parseDuration(c.Retry.BaseDelay, 100*time.Millisecond)
}

// GetRetryMaxDelay returns the max delay (default: 5s)
func (c SourceConfig) GetRetryMaxDelay() time.Duration {
	if c.Retry == nil {
		return 5 * time.Second
	}
	return parseDuration(c.Retry.MaxDelay, 5*time.Second)
}

// IsCacheEnabled returns true if caching is enabled for this source
func (c SourceConfig) IsCacheEnabled() bool {
	return c.GetCacheTTL() > 0
}

// GetCacheTTL returns the cache TTL (0 if caching is disabled)
func (c SourceConfig) GetCacheTTL() time.Duration {
	if c.Cache == nil {
		return 0
	}
	return parseDuration(c.Cache.TTL, 0)
}

// IsStaleWhileRevalidate returns true if using stale-while-revalidate strategy
func (c SourceConfig) IsStaleWhileRevalidate() bool {
	return c.Cache != nil && c.Cache.Strategy == "stale-while-revalidate"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// APIConfig holds admin API configuration
type APIConfig struct {
	CORS      *CORSConfig      `yaml:"cors,omitempty"`
	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty"`
	Auth      *AuthConfig      `yaml:"auth,omitempty"`
}

// AuthConfig holds authentication configuration for the admin API
type AuthConfig struct {
	// APIKey is a single full-access key. Supports environment variable
	// expansion (e.g., "${ADMIN_API_KEY}").
	APIKey string `yaml:"api_key,omitempty"`
	// APIKeys maps key names to keys with explicit permissions.
	APIKeys map[string]*APIKeyConfig `yaml:"api_keys,omitempty"`
	// HeaderName is the HTTP header name for the API key (default: "X-API-Key")
	// Also supports "Authorization: Bearer <token>" format when set to "Authorization"
	HeaderName string `yaml:"header_name,omitempty"`
}

// APIKeyConfig is a named key with permissions ("read", "write", "publish").
type APIKeyConfig struct {
	Key         string   `yaml:"key"`
	Permissions []string `yaml:"permissions,omitempty"` // Default: all
}

// CORSConfig holds CORS configuration for the API
type CORSConfig struct {
	Origins []string `yaml:"origins,omitempty"` // Allowed origins (e.g., ["http://localhost:3000", "*"])
}

// RateLimitConfig holds rate limiting configuration for the API
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second,omitempty"` // Default: 10
	Burst             int     `yaml:"burst,omitempty"`               // Default: 20
}

// GetCORSOrigins returns the configured CORS origins, or nil if not configured
func (c *APIConfig) GetCORSOrigins() []string {
	if c == nil || c.CORS == nil {
		return nil
	}
	return c.CORS.Origins
}

// GetRateLimitRPS returns the rate limit in requests per second (default: 10)
func (c *APIConfig) GetRateLimitRPS() float64 {
	if c == nil || c.RateLimit == nil || c.RateLimit.RequestsPerSecond <= 0 {
		return 10
	}
	return c.RateLimit.RequestsPerSecond
}

// GetRateLimitBurst returns the burst size (default: 20)
func (c *APIConfig) GetRateLimitBurst() int {
	if c == nil || c.RateLimit == nil || c.RateLimit.Burst <= 0 {
		return 20
	}
	return c.RateLimit.Burst
}

// IsAuthEnabled returns true if admin API authentication is configured
func (c *APIConfig) IsAuthEnabled() bool {
	if c == nil || c.Auth == nil {
		return false
	}
	return c.Auth.GetAPIKey() != "" || len(c.Auth.GetAPIKeys()) > 0
}

// GetAPIKey returns the configured single API key with environment variable expansion
func (c *AuthConfig) GetAPIKey() string {
	if c == nil || c.APIKey == "" {
		return ""
	}
	return os.ExpandEnv(c.APIKey)
}

// GetAPIKeys returns expanded key -> permissions for every named key.
// Keys that expand to empty are skipped.
func (c *AuthConfig) GetAPIKeys() map[string][]string {
	if c == nil || len(c.APIKeys) == 0 {
		return nil
	}
	out := make(map[string][]string, len(c.APIKeys))
	for _, k := range c.APIKeys {
		if k == nil {
			continue
		}
		key := os.ExpandEnv(k.Key)
		if key == "" {
			continue
		}
		perms := k.Permissions
		if len(perms) == 0 {
			perms = []string{"read", "write", "publish"}
		}
		out[key] = perms
	}
	return out
}

// GetHeaderName returns the header name for authentication (default: "X-API-Key")
func (c *AuthConfig) GetHeaderName() string {
	if c == nil || c.HeaderName == "" {
		return "X-API-Key"
	}
	return c.HeaderName
}

// Validate checks values that would otherwise fail late at startup.
func (c *Config) Validate() error {
	switch c.Database.GetDriver() {
	case "sqlite", "postgres", "mysql", "mongo", "memory":
	default:
		return fmt.Errorf("database.driver: unsupported driver %q", c.Database.Driver)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port: %d out of range", c.Server.Port)
	}
	for name, src := range c.Catalog.Sources {
		switch src.Type {
		case "json", "sqlite", "pg", "mysql", "mongo", "rest":
		default:
			return fmt.Errorf("catalog.sources.%s: unsupported type %q", name, src.Type)
		}
	}
	for i, n := range c.Notify {
		switch n.Type {
		case "slack":
			if n.Channel == "" {
				return fmt.Errorf("notify[%d]: slack channel is required", i)
			}
		case "email":
			if n.To == "" {
				return fmt.Errorf("notify[%d]: email recipient (to) is required", i)
			}
		default:
			return fmt.Errorf("notify[%d]: unsupported type %q", i, n.Type)
		}
	}
	return nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Title: "Storefront",
		Server: ServerConfig{
			Port:  8080,
			Host:  "localhost",
			Debug: false,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "storefront.db",
		},
		Theme: style.DefaultTheme(),
		Catalog: CatalogConfig{
			Dir: "catalog",
		},
	}
}

// Load loads configuration from a YAML file
// If the file doesn't exist, returns the default configuration
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig() // Start with defaults
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// LoadFromDir looks for storefront.yaml, then storefront.yml, in the given directory
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range []string{"storefront.yaml", "storefront.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return DefaultConfig(), nil
}

// Save writes the configuration to a YAML file
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
