package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    slog.Level

	RedisURL    string
	DatabaseURL string // optional Postgres archive
	DBSchema    string
	DataDir     string
	ScenarioDir string
	CatalogDir  string

	// Providers is the ordered failover chain, e.g. gemini,groq,ollama.
	Providers      []string
	GeminiAPIKeys  []string
	GeminiModel    string
	GroqAPIKeys    []string
	GroqModel      string
	OpenAIAPIKey   string
	OpenAIModel    string
	AnthropicKey   string
	AnthropicModel string
	OllamaURL      string
	OllamaModel    string
	Temperature    float64
	MaxTokens      int
	Cooldown       time.Duration

	MaxTurns         int
	MinTurns         int
	MinActions       int
	MemoryBufferSize int
	MaxConsecutive   int
	ConclusionMode   string

	WorkerID          string
	WorkerConcurrency int
	// WorkerMaxRuns caps scenes played at once; 0 means one per slot.
	WorkerMaxRuns int
	MetricsAddr   string
}

// Load reads the environment, after loading .env from the working directory
// when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    parseLogLevel(getEnv("LOG_LEVEL", "info")),

		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379"),
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBSchema:    getEnv("DB_SCHEMA", "public"),
		DataDir:     getEnv("DATA_DIR", "./data"),
		ScenarioDir: getEnv("SCENARIO_DIR", ""),
		CatalogDir:  getEnv("CATALOG_DIR", ""),

		Providers:      getEnvList("LLM_PROVIDERS", []string{"gemini", "groq"}),
		GeminiAPIKeys:  getEnvList("GEMINI_API_KEYS", nil),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		GroqAPIKeys:    getEnvList("GROQ_API_KEYS", nil),
		GroqModel:      getEnv("GROQ_MODEL", "llama-3.3-70b-versatile"),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		AnthropicKey:   getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel: getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		OllamaURL:      getEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:    getEnv("OLLAMA_MODEL", "llama3.1"),

		ConclusionMode: strings.ToLower(getEnv("CONCLUSION_MODE", "strict")),
		WorkerID:       getEnv("WORKER_ID", ""),
		MetricsAddr:    getEnv("METRICS_ADDR", ":9090"),
	}
	// A single GEMINI_API_KEY is accepted for local setups.
	if len(cfg.GeminiAPIKeys) == 0 {
		cfg.GeminiAPIKeys = getEnvList("GEMINI_API_KEY", nil)
	}
	if len(cfg.GroqAPIKeys) == 0 {
		cfg.GroqAPIKeys = getEnvList("GROQ_API_KEY", nil)
	}

	var errs []error
	cfg.Temperature = getEnvFloat("LLM_TEMPERATURE", 0.7, &errs)
	cfg.MaxTokens = getEnvInt("LLM_MAX_TOKENS", 500, &errs)
	cfg.Cooldown = getEnvDuration("LLM_COOLDOWN", 60*time.Second, &errs)
	cfg.MaxTurns = getEnvInt("SCENE_MAX_TURNS", 25, &errs)
	// Zero derives the thresholds from each scene's turn budget.
	cfg.MinTurns = getEnvInt("SCENE_MIN_TURNS", 0, &errs)
	cfg.MinActions = getEnvInt("SCENE_MIN_ACTIONS", 0, &errs)
	cfg.MemoryBufferSize = getEnvInt("MEMORY_BUFFER_SIZE", 6, &errs)
	cfg.MaxConsecutive = getEnvInt("MAX_CONSECUTIVE_SAME_CHARACTER", 2, &errs)
	cfg.WorkerConcurrency = getEnvInt("WORKER_CONCURRENCY", 1, &errs)
	cfg.WorkerMaxRuns = getEnvInt("WORKER_MAX_RUNS", 0, &errs)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if cfg.ScenarioDir == "" {
		cfg.ScenarioDir = cfg.DataDir + "/scenarios"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges that the loaders cannot.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxTurns < 1 {
		errs = append(errs, fmt.Errorf("SCENE_MAX_TURNS must be positive, got %d", c.MaxTurns))
	}
	if c.MinTurns < 0 || c.MinTurns > c.MaxTurns {
		errs = append(errs, fmt.Errorf("SCENE_MIN_TURNS must be between 0 and %d, got %d", c.MaxTurns, c.MinTurns))
	}
	if c.MinActions < 0 {
		errs = append(errs, fmt.Errorf("SCENE_MIN_ACTIONS must not be negative, got %d", c.MinActions))
	}
	if c.MemoryBufferSize < 1 {
		errs = append(errs, fmt.Errorf("MEMORY_BUFFER_SIZE must be positive, got %d", c.MemoryBufferSize))
	}
	if c.MaxConsecutive < 1 {
		errs = append(errs, fmt.Errorf("MAX_CONSECUTIVE_SAME_CHARACTER must be positive, got %d", c.MaxConsecutive))
	}
	if c.WorkerConcurrency < 1 {
		errs = append(errs, fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.WorkerConcurrency))
	}
	if c.WorkerMaxRuns < 0 || c.WorkerMaxRuns > c.WorkerConcurrency {
		errs = append(errs, fmt.Errorf("WORKER_MAX_RUNS must be between 0 and %d, got %d", c.WorkerConcurrency, c.WorkerMaxRuns))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("LLM_TEMPERATURE must be between 0 and 2, got %v", c.Temperature))
	}
	switch c.ConclusionMode {
	case "strict", "lenient":
	default:
		errs = append(errs, fmt.Errorf("CONCLUSION_MODE must be strict or lenient, got %q", c.ConclusionMode))
	}
	if len(c.Providers) == 0 {
		errs = append(errs, errors.New("LLM_PROVIDERS must name at least one provider"))
	}
	return errors.Join(errs...)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma-separated value, dropping blanks.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int, errs *[]error) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid integer %q", key, value))
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64, errs *[]error) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: invalid number %q", key, value))
		return defaultValue
	}
	return f
}

// getEnvDuration accepts Go durations ("90s") or whole seconds ("90").
func getEnvDuration(key string, defaultValue time.Duration, errs *[]error) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	*errs = append(*errs, fmt.Errorf("%s: invalid duration %q", key, value))
	return defaultValue
}
