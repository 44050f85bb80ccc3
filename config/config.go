package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

type ProviderConfig struct {
	ID           string `toml:"id"`
	Name         string `toml:"name"`
	Enabled      bool   `toml:"enabled"`
	BaseURL      string `toml:"base_url,omitempty"`
	DefaultModel string `toml:"default_model,omitempty"`
}

type UserConfig struct {
	ListenAddr          string           `toml:"listen_addr"`
	DefaultProvider     string           `toml:"default_provider"`
	DefaultSystemPrompt string           `toml:"default_system_prompt,omitempty"`
	ImageBudgetKB       int              `toml:"image_budget_kb"`
	HistoryLimit        int              `toml:"history_limit"`
	TokenFile           string           `toml:"token_file,omitempty"`
	Providers           []ProviderConfig `toml:"providers"`
}

type Config struct {
	DataDirectory       string
	ListenAddr          string
	DefaultProvider     string
	DefaultSystemPrompt string
	ImageBudgetKB       int
	HistoryLimit        int
	TokenFile           string
	Providers           []ProviderConfig
}

var Debug = false
var DebugLog *log.Logger

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("CLRON_LISTEN_ADDR"); addr != "" {
		c.ListenAddr = addr
	}
	if provider := os.Getenv("CLRON_PROVIDER"); provider != "" {
		c.DefaultProvider = provider
	}
	if dataDir := os.Getenv("CLRON_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
	if tokenFile := os.Getenv("CLRON_TOKEN_FILE"); tokenFile != "" {
		c.TokenFile = tokenFile
	}
}

func CheckDebug() bool {
	debug := os.Getenv("CLRON_DEBUG")
	return debug == "true" || debug == "1"
}

func InitDebugLog(dataDir string) {
	if !CheckDebug() {
		return
	}

	Debug = true
	logPath := filepath.Join(dataDir, "debug.log")

	// Create debug log with secure permissions (0600 - may contain sensitive debug info)
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return
	}

	DebugLog = log.New(f, "", log.Ldate|log.Ltime|log.Lmicroseconds|log.Lshortfile)
	DebugLog.Printf("=== Debug logging started (CLRON_DEBUG=%s) ===", os.Getenv("CLRON_DEBUG"))
	DebugLog.Printf("Log path: %s", logPath)
}

func Load() (*Config, error) {
	cfg := &Config{
		DataDirectory:   "~/.local/share/clron",
		ListenAddr:      ":8000",
		DefaultProvider: "anthropic",
		ImageBudgetKB:   4096,
		HistoryLimit:    20,
	}

	systemCfg, err := LoadSystemConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load system config: %w", err)
	}
	cfg.DataDirectory = systemCfg.DataDirectory

	// Env override for the data directory has to land before the user
	// config is read from it.
	if dataDir := os.Getenv("CLRON_DATA_DIR"); dataDir != "" {
		cfg.DataDirectory = dataDir
	}

	dataDir := cfg.DataDir()
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	userCfg, err := LoadUserConfig(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	}
	if userCfg.ListenAddr != "" {
		cfg.ListenAddr = userCfg.ListenAddr
	}
	if userCfg.DefaultProvider != "" {
		cfg.DefaultProvider = userCfg.DefaultProvider
	}
	if userCfg.ImageBudgetKB > 0 {
		cfg.ImageBudgetKB = userCfg.ImageBudgetKB
	}
	if userCfg.HistoryLimit > 0 {
		cfg.HistoryLimit = userCfg.HistoryLimit
	}
	cfg.DefaultSystemPrompt = userCfg.DefaultSystemPrompt
	cfg.TokenFile = userCfg.TokenFile
	cfg.Providers = userCfg.Providers

	cfg.applyEnvOverrides()

	if err := EnsureDataDirPermissions(cfg.DataDir()); err != nil {
		return nil, fmt.Errorf("failed to set data directory permissions: %w", err)
	}

	return cfg, nil
}
