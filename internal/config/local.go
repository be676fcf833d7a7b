package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/felixgeelhaar/codementor/internal/domain"
	"gopkg.in/yaml.v3"
)

// LocalConfig holds configuration for local daemon mode
type LocalConfig struct {
	Daemon     DaemonConfig     `yaml:"daemon"`
	Storage    StorageConfig    `yaml:"storage"`
	Queue      QueueConfig      `yaml:"queue"`
	Difficulty DifficultyConfig `yaml:"difficulty"`
}

// DaemonConfig holds daemon server settings
type DaemonConfig struct {
	Port     int    `yaml:"port"`
	Bind     string `yaml:"bind"`
	LogLevel string `yaml:"log_level"`
}

// StorageConfig selects where difficulty profiles live
type StorageConfig struct {
	Driver      string `yaml:"driver"` // sqlite, postgres, file
	SQLitePath  string `yaml:"sqlite_path,omitempty"`
	DatabaseURL string `yaml:"-"` // Loaded from secrets.yaml
}

// QueueConfig holds RabbitMQ consumer settings
type QueueConfig struct {
	Enabled bool   `yaml:"enabled"`
	Workers int    `yaml:"workers"`
	URL     string `yaml:"-"` // Loaded from secrets.yaml
}

// DifficultyConfig holds the engine thresholds. Any field left out of the
// YAML file keeps its default.
type DifficultyConfig struct {
	domain.ThresholdConfig `yaml:",inline"`
}

// Thresholds validates the section and returns the engine configuration
func (d DifficultyConfig) Thresholds() (*domain.ThresholdConfig, error) {
	cfg, err := domain.NewThresholdConfig(d.ThresholdConfig)
	if err != nil {
		return nil, fmt.Errorf("difficulty config: %w", err)
	}
	return cfg, nil
}

// applyEnv lets operators retune smoothing without editing the file
func (d *DifficultyConfig) applyEnv() {
	d.SmoothingWeight = getEnvFloat("CODEMENTOR_SMOOTHING_WEIGHT", d.SmoothingWeight)
	d.MinAdjustment = getEnvFloat("CODEMENTOR_MIN_ADJUSTMENT", d.MinAdjustment)
	d.PlateauEpsilon = getEnvFloat("CODEMENTOR_PLATEAU_EPSILON", d.PlateauEpsilon)
	d.PlateauWindowSize = getEnvInt("CODEMENTOR_PLATEAU_WINDOW", d.PlateauWindowSize)
}

// SecretsConfig holds connection strings loaded from secrets.yaml
type SecretsConfig struct {
	DatabaseURL string `yaml:"database_url"`
	RabbitMQURL string `yaml:"rabbitmq_url"`
}

// CodementorDir returns the path to ~/.codementor
func CodementorDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".codementor"), nil
}

// EnsureCodementorDir creates ~/.codementor and subdirectories if they don't exist
func EnsureCodementorDir() (string, error) {
	dir, err := CodementorDir()
	if err != nil {
		return "", err
	}

	subdirs := []string{
		"",
		"logs",
		"profiles",
		"data",
	}

	for _, subdir := range subdirs {
		path := filepath.Join(dir, subdir)
		if err := os.MkdirAll(path, 0755); err != nil {
			return "", fmt.Errorf("create dir %s: %w", path, err)
		}
	}

	return dir, nil
}

// DefaultLocalConfig returns sensible defaults for local mode
func DefaultLocalConfig() *LocalConfig {
	return &LocalConfig{
		Daemon: DaemonConfig{
			Port:     7433,
			Bind:     "127.0.0.1",
			LogLevel: "info",
		},
		Storage: StorageConfig{
			Driver: StorageSQLite,
		},
		Queue: QueueConfig{
			Enabled: false,
			Workers: 4,
		},
		Difficulty: DifficultyConfig{
			ThresholdConfig: domain.DefaultThresholdConfig(),
		},
	}
}

// LoadLocalConfig loads configuration from ~/.codementor/config.yaml
func LoadLocalConfig() (*LocalConfig, error) {
	dir, err := CodementorDir()
	if err != nil {
		return nil, err
	}
	return LoadLocalConfigFrom(dir)
}

// LoadLocalConfigFrom loads config.yaml and secrets.yaml from dir
func LoadLocalConfigFrom(dir string) (*LocalConfig, error) {
	configPath := filepath.Join(dir, "config.yaml")

	cfg := DefaultLocalConfig()

	// If config doesn't exist, keep defaults
	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat config: %w", err)
	}

	if err := loadSecrets(dir, cfg); err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}

	cfg.Difficulty.applyEnv()

	return cfg, nil
}

// loadSecrets loads connection strings from secrets.yaml
func loadSecrets(dir string, cfg *LocalConfig) error {
	secretsPath := filepath.Join(dir, "secrets.yaml")

	// If secrets file doesn't exist, skip
	if _, err := os.Stat(secretsPath); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(secretsPath)
	if err != nil {
		return fmt.Errorf("read secrets: %w", err)
	}

	var secrets SecretsConfig
	if err := yaml.Unmarshal(data, &secrets); err != nil {
		return fmt.Errorf("parse secrets: %w", err)
	}

	cfg.Storage.DatabaseURL = secrets.DatabaseURL
	cfg.Queue.URL = secrets.RabbitMQURL

	return nil
}

// SaveLocalConfig saves configuration to ~/.codementor/config.yaml
func SaveLocalConfig(cfg *LocalConfig) error {
	dir, err := EnsureCodementorDir()
	if err != nil {
		return err
	}
	return SaveLocalConfigTo(dir, cfg)
}

// SaveLocalConfigTo writes config.yaml into dir
func SaveLocalConfigTo(dir string, cfg *LocalConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// SaveSecrets saves connection strings to ~/.codementor/secrets.yaml
func SaveSecrets(secrets SecretsConfig) error {
	dir, err := EnsureCodementorDir()
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(secrets)
	if err != nil {
		return fmt.Errorf("marshal secrets: %w", err)
	}

	// Write with restricted permissions (owner read/write only)
	if err := os.WriteFile(filepath.Join(dir, "secrets.yaml"), data, 0600); err != nil {
		return fmt.Errorf("write secrets: %w", err)
	}

	return nil
}

// Merge overlays environment config onto the local file. Environment
// variables win when set.
func (c *LocalConfig) Merge(env *Config) {
	if os.Getenv("PORT") != "" {
		c.Daemon.Port = env.Port
	}
	if os.Getenv("STORAGE_DRIVER") != "" {
		c.Storage.Driver = env.StorageDriver
	}
	if os.Getenv("SQLITE_PATH") != "" {
		c.Storage.SQLitePath = env.SQLitePath
	}
	if os.Getenv("DATABASE_URL") != "" || c.Storage.DatabaseURL == "" {
		c.Storage.DatabaseURL = env.DatabaseURL
	}
	if os.Getenv("RABBITMQ_URL") != "" || c.Queue.URL == "" {
		c.Queue.URL = env.RabbitMQURL
	}
	if os.Getenv("QUEUE_ENABLED") != "" {
		c.Queue.Enabled = env.QueueEnabled
	}
	if os.Getenv("QUEUE_WORKERS") != "" {
		c.Queue.Workers = env.QueueWorkers
	}
	if env.Debug {
		c.Daemon.LogLevel = "debug"
	}
}
