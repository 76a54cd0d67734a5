package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DevelopmentEnv toggles verbose diagnostics when set to a truthy value.
const DevelopmentEnv = "FOLDER_MCP_DEVELOPMENT_ENABLED"

// FolderConfig describes one monitored folder.
type FolderConfig struct {
	Path       string          `yaml:"path"`
	Name       string          `yaml:"name"`
	Enabled    bool            `yaml:"enabled"`
	Embeddings EmbeddingConfig `yaml:"embeddings"`
	Include    []string        `yaml:"include,omitempty"`
	Exclude    []string        `yaml:"exclude,omitempty"`
}

type EmbeddingConfig struct {
	Backend string `yaml:"backend"`
	Model   string `yaml:"model"`
}

type PerformanceConfig struct {
	MaxConcurrentIndexing int `yaml:"max_concurrent_indexing"`
	DebounceMS            int `yaml:"debounce_ms"`
	EmbedBatchSize        int `yaml:"embed_batch_size"`
}

type DaemonConfig struct {
	HealthCheckSeconds     int               `yaml:"health_check_seconds"`
	AutoRestart            bool              `yaml:"auto_restart"`
	Performance            PerformanceConfig `yaml:"performance"`
	ShutdownTimeoutSeconds int               `yaml:"shutdown_timeout_seconds"`
	MemoryCeilingMB        int               `yaml:"memory_ceiling_mb"`
}

type ChunkingConfig struct {
	TargetTokens int `yaml:"target_tokens"`
}

type ServerConfig struct {
	Listen                string `yaml:"listen"`
	MCPPath               string `yaml:"mcp_path"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	DefaultMaxTokens      int    `yaml:"default_max_tokens"`
}

// Config is the process-wide configuration. Built once on start, replaced
// atomically on reload; readers hold immutable snapshots.
type Config struct {
	Folders  []FolderConfig `yaml:"folders"`
	Daemon   DaemonConfig   `yaml:"daemon"`
	Chunking ChunkingConfig `yaml:"chunking"`
	Server   ServerConfig   `yaml:"server"`

	// StateDir is the process-wide state directory (pid file, logs,
	// active config). Runtime-only; not persisted.
	StateDir string `yaml:"-"`
	// Development mirrors the FOLDER_MCP_DEVELOPMENT_ENABLED env toggle.
	Development bool `yaml:"-"`
}

func Default() Config {
	return Config{
		Daemon: DaemonConfig{
			HealthCheckSeconds: 30,
			AutoRestart:        false,
			Performance: PerformanceConfig{
				MaxConcurrentIndexing: 0, // 0 means min(NumCPU, 4)
				DebounceMS:            500,
				EmbedBatchSize:        32,
			},
			ShutdownTimeoutSeconds: 20,
			MemoryCeilingMB:        0,
		},
		Chunking: ChunkingConfig{TargetTokens: 400},
		Server: ServerConfig{
			Listen:                "127.0.0.1:0",
			MCPPath:               "/mcp",
			RequestTimeoutSeconds: 30,
			DefaultMaxTokens:      2000,
		},
	}
}

// Load reads defaults, layers the optional YAML file at path, applies dotenv
// and env overrides, and validates. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	// .env.local wins over .env; neither overrides already-set variables.
	_ = godotenv.Load(".env.local", ".env")

	if strings.TrimSpace(path) != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// fall through to env overrides
		case err != nil:
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		default:
			dec := yaml.NewDecoder(strings.NewReader(string(raw)))
			dec.KnownFields(true)
			if err := dec.Decode(&cfg); err != nil {
				return Config{}, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the configuration back to path, creating parent directories.
func Save(path string, cfg Config) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("config path is required")
	}
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, raw, 0o644)
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv(DevelopmentEnv); ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "", "0", "false", "no", "off":
		default:
			cfg.Development = true
		}
	}
	if v := strings.TrimSpace(os.Getenv("FOLDER_MCP_STATE_DIR")); v != "" {
		cfg.StateDir = v
	}
	if v := strings.TrimSpace(os.Getenv("FOLDER_MCP_LISTEN")); v != "" {
		cfg.Server.Listen = v
	}
}

// AddFolder appends a folder entry unless its path is already registered.
// It returns true when the entry was added.
func (c *Config) AddFolder(folder FolderConfig) bool {
	for _, existing := range c.Folders {
		if existing.Path == folder.Path {
			return false
		}
	}
	c.Folders = append(c.Folders, folder)
	return true
}

// DebounceWindow returns the configured watcher debounce in milliseconds,
// falling back to the 500 ms default when unset.
func (c Config) DebounceWindow() int {
	if c.Daemon.Performance.DebounceMS <= 0 {
		return 500
	}
	return c.Daemon.Performance.DebounceMS
}
