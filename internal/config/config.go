package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"raffle/internal/draw"
)

// Config holds the settings of the raffle host.
type Config struct {
	ListenAddr       string        `yaml:"listen_addr"`
	DataDir          string        `yaml:"data_dir"`
	TickInterval     time.Duration `yaml:"tick_interval"`
	DrawMode         string        `yaml:"draw_mode"`
	BackupLimit      int           `yaml:"backup_limit"`
	AutosaveInterval time.Duration `yaml:"autosave_interval"`
	LogVerbose       bool          `yaml:"log_verbose"`
	LogFile          string        `yaml:"log_file"`
}

// Default returns the configuration used when nothing else is given.
func Default() Config {
	return Config{
		ListenAddr:       "127.0.0.1:8080",
		DataDir:          defaultDataDir(),
		TickInterval:     draw.DefaultTickInterval,
		DrawMode:         draw.ModeRepeat.String(),
		BackupLimit:      10,
		AutosaveInterval: 10 * time.Minute,
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".raffle"
	}
	return filepath.Join(home, ".raffle")
}

// Load builds the configuration from defaults, then the YAML file at path
// (skipped when it does not exist), then RAFFLE_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	c.ListenAddr = getEnv("RAFFLE_LISTEN_ADDR", c.ListenAddr)
	c.DataDir = getEnv("RAFFLE_DATA_DIR", c.DataDir)
	c.DrawMode = getEnv("RAFFLE_DRAW_MODE", c.DrawMode)
	c.LogFile = getEnv("RAFFLE_LOG_FILE", c.LogFile)

	var err error
	if c.TickInterval, err = getEnvAsDuration("RAFFLE_TICK_INTERVAL", c.TickInterval); err != nil {
		return err
	}
	if c.AutosaveInterval, err = getEnvAsDuration("RAFFLE_AUTOSAVE_INTERVAL", c.AutosaveInterval); err != nil {
		return err
	}
	if c.BackupLimit, err = getEnvAsInt("RAFFLE_BACKUP_LIMIT", c.BackupLimit); err != nil {
		return err
	}
	if c.LogVerbose, err = getEnvAsBool("RAFFLE_LOG_VERBOSE", c.LogVerbose); err != nil {
		return err
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errors.New("listen_addr is required")
	}
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick_interval must be positive, got %s", c.TickInterval)
	}
	if _, err := draw.ParseMode(c.DrawMode); err != nil {
		return err
	}
	if c.BackupLimit < 0 {
		return fmt.Errorf("backup_limit must not be negative, got %d", c.BackupLimit)
	}
	if c.AutosaveInterval < 0 {
		return fmt.Errorf("autosave_interval must not be negative, got %s", c.AutosaveInterval)
	}
	return nil
}

// Mode returns the parsed draw mode. Validate has already checked it.
func (c *Config) Mode() draw.Mode {
	m, _ := draw.ParseMode(c.DrawMode)
	return m
}

func (c *Config) HistoryPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
