// Package config loads the engine's configuration from a YAML file merged
// with defaults and environment overrides, following the viper wiring the
// rest of the justchokingaround tooling uses.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// LoggingConfig controls internal/logging.New.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Color      bool   `mapstructure:"color"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// DownloadConfig controls internal/segments and internal/assembler defaults.
type DownloadConfig struct {
	OutputDir    string `mapstructure:"output_dir"`
	Workers      int    `mapstructure:"workers"`
	FFmpegPath   string `mapstructure:"ffmpeg_path"`
	MaxRetries   int    `mapstructure:"max_retries"`
	RequestHost  string `mapstructure:"request_host"`
	UserAgent    string `mapstructure:"user_agent"`
	StateDBPath  string `mapstructure:"state_db_path"`
}

// Config is the engine's full configuration document.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Download DownloadConfig `mapstructure:"download"`
}

// Default returns the configuration used when no file and no overrides are
// present, matching the bounds in SPEC_FULL.md §4.E (workers in [2, 64],
// default 10) and §4.A (default host, user agent, retry budget).
func Default() Config {
	return Config{
		Logging: LoggingConfig{
			Level:      "info",
			Color:      true,
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Download: DownloadConfig{
			OutputDir:   ".",
			Workers:     10,
			FFmpegPath:  "ffmpeg",
			MaxRetries:  5,
			RequestHost: "https://animepahe.ru",
			UserAgent:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			StateDBPath: "",
		},
	}
}

// ConfigDir returns the directory the engine stores its config file and
// state document in, creating it if absent.
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve user config dir: %w", err)
	}
	dir := filepath.Join(base, "animepahe-dl")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("config: create config dir: %w", err)
	}
	return dir, nil
}

// Load reads cfgFile (or the default config path when cfgFile is empty),
// merges it over Default(), and applies ANIMEPAHE_DL_-prefixed environment
// overrides. It returns the parsed Config and the underlying *viper.Viper so
// callers can watch the file for hot-reload.
func Load(cfgFile string) (*Config, *viper.Viper, error) {
	v := viper.New()

	d := Default()
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.color", d.Logging.Color)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
	v.SetDefault("download.output_dir", d.Download.OutputDir)
	v.SetDefault("download.workers", d.Download.Workers)
	v.SetDefault("download.ffmpeg_path", d.Download.FFmpegPath)
	v.SetDefault("download.max_retries", d.Download.MaxRetries)
	v.SetDefault("download.request_host", d.Download.RequestHost)
	v.SetDefault("download.user_agent", d.Download.UserAgent)

	v.SetEnvPrefix("ANIMEPAHE_DL")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := ConfigDir()
		if err != nil {
			return nil, nil, err
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(dir)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if cfg.Download.Workers < 2 {
		cfg.Download.Workers = 2
	}
	if cfg.Download.Workers > 64 {
		cfg.Download.Workers = 64
	}
	if cfg.Download.StateDBPath == "" {
		dir, err := ConfigDir()
		if err != nil {
			return nil, nil, err
		}
		cfg.Download.StateDBPath = filepath.Join(dir, "download_state.json")
	}

	return &cfg, v, nil
}
