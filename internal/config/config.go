package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/calliope-hq/calliope/internal/domain/entity"
)

// Config holds the calliope service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	RAG       RAGConfig       `yaml:"rag"`
	Queue     QueueConfig     `yaml:"queue"`
	Auth      AuthConfig      `yaml:"auth"`
	Index     IndexConfig     `yaml:"index"`
	Storage   StorageConfig   `yaml:"storage"`
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

// DatabaseConfig holds Redis connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// IndexConfig holds HNSW index settings.
type IndexConfig struct {
	HNSWM           int `yaml:"hnsw_m"`
	HNSWEFConstruct int `yaml:"hnsw_ef_construction"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// EmbeddingConfig holds the embedding provider and model settings.
type EmbeddingConfig struct {
	Provider            string       `yaml:"provider"`
	APIKey              string       `yaml:"api_key"`
	BaseURL             string       `yaml:"base_url"`
	Model               string       `yaml:"model"`
	Dimensions          int          `yaml:"dimensions"`
	MaxInputChars       int          `yaml:"max_input_chars"`
	TimeoutSec          int          `yaml:"timeout_sec"`
	DocumentInstruction string       `yaml:"document_instruction"`
	QueryInstruction    string       `yaml:"query_instruction"`
	Budget              BudgetConfig `yaml:"budget"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
}

// SearchConfig holds hybrid search scoring and deadline settings.
type SearchConfig struct {
	WVector             float64  `yaml:"w_vector"`
	WKeyword            float64  `yaml:"w_keyword"`
	RecencyHalfLifeDays float64  `yaml:"recency_half_life_days"`
	RecencyFloor        float64  `yaml:"recency_floor"`
	TimeoutSec          int      `yaml:"timeout_sec"`
	TypePriority        []string `yaml:"type_priority"`
}

// RAGConfig holds context assembly settings.
type RAGConfig struct {
	DefaultTokenBudget int    `yaml:"default_token_budget"`
	Encoding           string `yaml:"encoding"`
}

// QueueConfig holds the embed job queue settings.
type QueueConfig struct {
	URL          string `yaml:"url"`
	Subject      string `yaml:"subject"`
	QueueGroup   string `yaml:"queue_group"`
	MaxAttempts  int    `yaml:"max_attempts"`
	BackoffSec   int    `yaml:"backoff_sec"`
	InlineWorker bool   `yaml:"inline_worker"` // run the embed worker inside the API process
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
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

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
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
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 10
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 1536
	}
	if c.Embedding.MaxInputChars <= 0 {
		c.Embedding.MaxInputChars = 8000
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 10
	}
	// Both weights unset means an even hybrid split.
	if c.Search.WVector == 0 && c.Search.WKeyword == 0 {
		c.Search.WVector = 0.5
		c.Search.WKeyword = 0.5
	}
	if c.Search.RecencyHalfLifeDays == 0 {
		c.Search.RecencyHalfLifeDays = 30
	}
	if c.Search.RecencyFloor == 0 {
		c.Search.RecencyFloor = 0.1
	}
	if c.Search.TimeoutSec <= 0 {
		c.Search.TimeoutSec = 3
	}
	if len(c.Search.TypePriority) == 0 {
		c.Search.TypePriority = []string{"document", "note", "comment"}
	}
	if c.RAG.DefaultTokenBudget <= 0 {
		c.RAG.DefaultTokenBudget = 1024
	}
	if c.RAG.Encoding == "" {
		c.RAG.Encoding = "cl100k_base"
	}
	if c.Queue.Subject == "" {
		c.Queue.Subject = "calliope.embed.jobs"
	}
	if c.Queue.QueueGroup == "" {
		c.Queue.QueueGroup = "embedworkers"
	}
	if c.Queue.MaxAttempts <= 0 {
		c.Queue.MaxAttempts = 3
	}
	if c.Queue.BackoffSec <= 0 {
		c.Queue.BackoffSec = 2
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 32
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 400
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "calliope:"
	}
}

// Validate checks the configuration for correctness. Failures here are fatal
// at startup; nothing else may reject configuration at request time.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	switch c.Embedding.Budget.Action {
	case "", "warn", "reject":
	default:
		return fmt.Errorf(
			"embedding.budget.action must be \"warn\" or \"reject\", got %q",
			c.Embedding.Budget.Action,
		)
	}
	if c.Search.WVector < 0 || c.Search.WKeyword < 0 {
		return fmt.Errorf("search weights must be non-negative, got w_vector=%g w_keyword=%g",
			c.Search.WVector, c.Search.WKeyword)
	}
	if c.Search.WVector == 0 && c.Search.WKeyword == 0 {
		return fmt.Errorf("at least one of search.w_vector and search.w_keyword must be positive")
	}
	if c.Search.RecencyHalfLifeDays < 0 {
		return fmt.Errorf("search.recency_half_life_days must be non-negative, got %g",
			c.Search.RecencyHalfLifeDays)
	}
	if c.Search.RecencyFloor < 0 || c.Search.RecencyFloor > 1 {
		return fmt.Errorf("search.recency_floor must be in [0,1], got %g", c.Search.RecencyFloor)
	}
	for _, name := range c.Search.TypePriority {
		if _, err := entity.ParseType(name); err != nil {
			return fmt.Errorf("search.type_priority: %w", err)
		}
	}
	if c.Queue.URL == "" {
		return fmt.Errorf("queue.url is required")
	}
	return nil
}

// TypePriority returns the configured tie-break order as entity types.
func (c *Config) TypePriority() []entity.Type {
	out := make([]entity.Type, 0, len(c.Search.TypePriority))
	for _, name := range c.Search.TypePriority {
		out = append(out, entity.Type(name))
	}
	return out
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
