package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gridtech/portfolio/internal/domain/search"
)

// Config holds the GridTech portfolio service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Records   RecordsConfig   `yaml:"records"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chat      ChatConfig      `yaml:"chat"`
	Search    SearchConfig    `yaml:"search"`
	Batch     BatchConfig     `yaml:"batch"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds vector store connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // redis, valkey (default: redis)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	KeyPrefix        string   `yaml:"key_prefix"`
	HNSWM            int      `yaml:"hnsw_m"`
	HNSWEFConstruct  int      `yaml:"hnsw_ef_construction"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// RecordsConfig holds the relational record store settings.
type RecordsConfig struct {
	DSN string `yaml:"dsn"` // sqlite path or file: URI
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	APIKey      string `yaml:"api_key"`
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	Dimensions  int    `yaml:"dimensions"`
	CacheTTLSec int    `yaml:"cache_ttl_sec"` // 0 disables the query cache
}

// ChatConfig holds language-model settings for the chat orchestrator.
type ChatConfig struct {
	APIKey          string   `yaml:"api_key"` // defaults to embedding.api_key
	BaseURL         string   `yaml:"base_url"`
	Model           string   `yaml:"model"`
	MaxTokens       int      `yaml:"max_tokens"`
	Temperature     *float32 `yaml:"temperature"`       // nil = 0.7; 0 is a valid setting
	MaxContextChars int      `yaml:"max_context_chars"` // 0 = unbounded
	TimeoutSec      int      `yaml:"timeout_sec"`
}

// SearchConfig holds defaults applied to chat-initiated searches.
type SearchConfig struct {
	Threshold *float64 `yaml:"threshold"` // nil = 0.5; 0 keeps every match
	Limit     int      `yaml:"limit"`
}

// BatchConfig holds the batch embedding throttle.
type BatchConfig struct {
	IntervalMS int `yaml:"interval_ms"` // minimum spacing between embedding calls
	Burst      int `yaml:"burst"`
	Workers    int `yaml:"workers"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
// .env.local and .env are loaded first so ${VAR} references resolve against them.
func Load(env string) (Config, error) {
	loadDotEnv()

	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse expands env references, decodes YAML, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 35 // chat completions can take up to chat.timeout_sec
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "redis"
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "gridtech:"
	}
	if c.Database.HNSWM <= 0 {
		c.Database.HNSWM = 16
	}
	if c.Database.HNSWEFConstruct <= 0 {
		c.Database.HNSWEFConstruct = 200
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Records.DSN == "" {
		c.Records.DSN = "gridtech.db"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-3-small"
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Chat.APIKey == "" {
		c.Chat.APIKey = c.Embedding.APIKey
	}
	if c.Chat.BaseURL == "" {
		c.Chat.BaseURL = c.Embedding.BaseURL
	}
	if c.Chat.Model == "" {
		c.Chat.Model = "gpt-4o-mini"
	}
	if c.Chat.MaxTokens <= 0 {
		c.Chat.MaxTokens = 1000
	}
	if c.Chat.Temperature == nil {
		c.Chat.Temperature = ptr(float32(0.7))
	}
	if c.Chat.TimeoutSec <= 0 {
		c.Chat.TimeoutSec = 30
	}
	if c.Search.Threshold == nil {
		c.Search.Threshold = ptr(search.DefaultThreshold)
	}
	if c.Search.Limit == 0 {
		c.Search.Limit = search.DefaultLimit
	}
	if c.Batch.IntervalMS <= 0 {
		c.Batch.IntervalMS = 100
	}
	if c.Batch.Burst <= 0 {
		c.Batch.Burst = 1
	}
	if c.Batch.Workers <= 0 {
		c.Batch.Workers = 1
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case "redis", "valkey":
	default:
		return fmt.Errorf("database.driver must be \"redis\" or \"valkey\", got %q", c.Database.Driver)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Embedding.APIKey == "" {
		return fmt.Errorf("embedding.api_key is required")
	}
	if t := c.Search.Threshold; t != nil && (math.IsNaN(*t) || *t < 0 || *t > 1) {
		return fmt.Errorf("search.threshold must be within [0,1], got %v", *t)
	}
	if c.Search.Limit < 1 || c.Search.Limit > search.MaxLimit {
		return fmt.Errorf("search.limit must be between 1 and %d, got %d", search.MaxLimit, c.Search.Limit)
	}
	if t := c.Chat.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("chat.temperature must be within [0,2], got %v", *t)
	}
	return nil
}

// loadDotEnv follows the Next.js convention the web app uses: .env.local wins over .env.
// Missing files are fine; existing process variables are never overwritten.
func loadDotEnv() {
	for _, f := range []string{".env.local", ".env"} {
		if fileExists(f) {
			_ = godotenv.Load(f)
		}
	}
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func ptr[T any](v T) *T { return &v }

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
