// Package config loads the service configuration from YAML and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the resolved, immutable configuration bundle.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Paths     PathsConfig     `yaml:"paths"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Selection SelectionConfig `yaml:"selection"`
	Agent     AgentConfig     `yaml:"agent"`
	NL2SQL    ServiceConfig   `yaml:"nl2sql"`
	Ingestion ServiceConfig   `yaml:"ingestion"`
	Database  DatabaseConfig  `yaml:"database"`
	Tasks     TasksConfig     `yaml:"tasks"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// PathsConfig holds directories. Relative paths are resolved against the
// directory of the config file.
type PathsConfig struct {
	SchemaDir string `yaml:"schema_dir"`
	DataDir   string `yaml:"data_dir"`
	DocDir    string `yaml:"doc_dir"`
	IndexDir  string `yaml:"index_dir"`
}

type LLMConfig struct {
	Provider       string  `yaml:"provider"` // ollama | openai
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	APIKey         string  `yaml:"api_key"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	MaxRetries     int     `yaml:"max_retries"`
	InitialDelayMS int     `yaml:"initial_delay_ms"`
}

type EmbeddingConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	Policy  string `yaml:"policy"` // rebuild | build_if_missing | load_only
}

type SelectionConfig struct {
	Alpha           float64 `yaml:"alpha_content_weight"`
	Beta            float64 `yaml:"beta_name_weight"`
	TopM            int     `yaml:"top_m"`
	StrongThreshold float64 `yaml:"strong_threshold"`
	YearGuardMin    float64 `yaml:"year_guard_min"`
	DefaultTopK     int     `yaml:"default_top_k"`
}

type AgentConfig struct {
	MaxIterations int `yaml:"max_iterations"`
	CorpusLimit   int `yaml:"corpus_limit"`
	RetrieveTopK  int `yaml:"retrieve_top_k"`
}

type ServiceConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite3 | pgx | mysql
	DSN    string `yaml:"dsn"`
}

type TasksConfig struct {
	Backend          string `yaml:"backend"` // memory | redis
	RedisURL         string `yaml:"redis_url"`
	RetentionMinutes int    `yaml:"retention_minutes"`
}

type TelemetryConfig struct {
	Tracing bool `yaml:"tracing"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		Paths: PathsConfig{
			SchemaDir: "data/schema",
			DataDir:   "data/excel",
			DocDir:    "data/doc",
			IndexDir:  "data/index",
		},
		LLM: LLMConfig{
			Provider:       "ollama",
			BaseURL:        "http://localhost:11434",
			Model:          "qwen2.5:7b",
			Temperature:    0.1,
			TimeoutSeconds: 300,
			MaxRetries:     3,
			InitialDelayMS: 1000,
		},
		Embedding: EmbeddingConfig{
			BaseURL: "http://localhost:11434",
			Model:   "nomic-embed-text",
			Policy:  "build_if_missing",
		},
		Selection: SelectionConfig{
			Alpha:           0.85,
			Beta:            0.15,
			TopM:            3,
			StrongThreshold: 0.5,
			YearGuardMin:    1.0,
			DefaultTopK:     3,
		},
		Agent: AgentConfig{MaxIterations: 5, CorpusLimit: 30, RetrieveTopK: 5},
		NL2SQL: ServiceConfig{
			URL:            "http://localhost:5000/get_tablerag_response",
			TimeoutSeconds: 120,
			MaxRetries:     2,
		},
		Ingestion: ServiceConfig{
			URL:            "http://localhost:5001",
			TimeoutSeconds: 1800,
			MaxRetries:     0,
		},
		Database: DatabaseConfig{Driver: "sqlite3", DSN: "data/tables.db"},
		Tasks:    TasksConfig{Backend: "memory", RetentionMinutes: 24 * 60},
		Log:      LogConfig{Level: "info"},
	}
}

// Load reads path (optional) over the defaults, applies environment
// overrides and resolves relative paths.
func Load(path string) (Config, error) {
	cfg := Default()
	baseDir, err := os.Getwd()
	if err != nil {
		return cfg, fmt.Errorf("resolving working directory: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return cfg, fmt.Errorf("resolving config path: %w", err)
		}
		baseDir = filepath.Dir(abs)
	}

	cfg.applyEnv(os.Getenv)
	cfg.resolvePaths(baseDir)
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(getenv func(string) string) {
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := getenv(k); v != "" {
				*dst = v
				return
			}
		}
	}
	str(&c.LLM.BaseURL, "TABLERAG_LLM_BASE_URL", "OLLAMA_BASE_URL")
	str(&c.LLM.Model, "TABLERAG_LLM_MODEL")
	str(&c.LLM.Provider, "TABLERAG_LLM_PROVIDER")
	str(&c.LLM.APIKey, "TABLERAG_LLM_API_KEY", "OPENAI_API_KEY")
	str(&c.Embedding.BaseURL, "TABLERAG_EMBEDDING_BASE_URL", "OLLAMA_BASE_URL")
	str(&c.NL2SQL.URL, "TABLERAG_SQL_SERVICE_URL")
	str(&c.Ingestion.URL, "TABLERAG_INGESTION_URL")
	str(&c.Database.DSN, "TABLERAG_DATABASE_DSN")
	str(&c.Tasks.RedisURL, "TABLERAG_REDIS_URL")
	str(&c.Log.Level, "TABLERAG_LOG_LEVEL")
	str(&c.Server.Addr, "TABLERAG_ADDR")

	if v := getenv("TABLERAG_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Agent.MaxIterations = n
		}
	}
}

func (c *Config) resolvePaths(baseDir string) {
	abs := func(p *string) {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(baseDir, *p)
		}
	}
	abs(&c.Paths.SchemaDir)
	abs(&c.Paths.DataDir)
	abs(&c.Paths.DocDir)
	abs(&c.Paths.IndexDir)
	if c.Database.Driver == "sqlite3" {
		abs(&c.Database.DSN)
	}
}

// Validate rejects values the service cannot run with.
func (c Config) Validate() error {
	switch c.LLM.Provider {
	case "ollama", "openai":
	default:
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	switch c.Embedding.Policy {
	case "rebuild", "build_if_missing", "load_only":
	default:
		return fmt.Errorf("unknown embedding policy %q", c.Embedding.Policy)
	}
	if c.LLM.InitialDelayMS <= 0 {
		return fmt.Errorf("llm.initial_delay_ms must be positive")
	}
	switch c.Database.Driver {
	case "sqlite3", "pgx", "mysql":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Tasks.Backend {
	case "memory":
	case "redis":
		if c.Tasks.RedisURL == "" {
			return fmt.Errorf("tasks.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown task backend %q", c.Tasks.Backend)
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive")
	}
	return nil
}

// Seconds converts a whole-second setting to a duration.
func Seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// Millis converts a millisecond setting to a duration.
func Millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// Retention is how long finished task records are kept by stores that expire them.
func (t TasksConfig) Retention() time.Duration {
	return time.Duration(t.RetentionMinutes) * time.Minute
}
