// Package config loads runtime settings from an optional YAML file and the
// environment. Environment variables take precedence over the file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values.
type Config struct {
	// OCR
	Language    string
	TessdataDir string

	// Output locations
	CacheDir string

	// Progress polling
	OCRPollInterval       time.Duration
	ThumbnailPollInterval time.Duration
	StuckAfter            time.Duration

	// Thumbnails
	ThumbnailWidth int

	// HTTP server
	ServerAddr string

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// fileConfig mirrors Config for YAML decoding. Empty fields keep defaults.
type fileConfig struct {
	Language              string `yaml:"language"`
	TessdataDir           string `yaml:"tessdata_dir"`
	CacheDir              string `yaml:"cache_dir"`
	OCRPollInterval       string `yaml:"ocr_poll_interval"`
	ThumbnailPollInterval string `yaml:"thumbnail_poll_interval"`
	StuckAfter            string `yaml:"stuck_after"`
	ThumbnailWidth        int    `yaml:"thumbnail_width"`
	ServerAddr            string `yaml:"server_addr"`
	LogFile               string `yaml:"log_file"`
	LogLevel              string `yaml:"log_level"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Language:              "eng",
		CacheDir:              defaultCacheDir(),
		OCRPollInterval:       250 * time.Millisecond,
		ThumbnailPollInterval: 100 * time.Millisecond,
		StuckAfter:            5 * time.Minute,
		ThumbnailWidth:        200,
		ServerAddr:            ":8585",
		LogFile:               "/tmp/scanjobs.log",
		LogLevel:              slog.LevelInfo,
	}
}

// Load reads the YAML file named by SCANJOBS_CONFIG (if set) and then
// applies environment overrides.
func Load() (Config, error) {
	return LoadFile(os.Getenv("SCANJOBS_CONFIG"))
}

// LoadFile reads path (if non-empty) over the defaults and then applies
// environment overrides.
func LoadFile(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		var fc fileConfig
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		if err := fc.apply(&cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (fc fileConfig) apply(cfg *Config) error {
	setString(&cfg.Language, fc.Language)
	setString(&cfg.TessdataDir, fc.TessdataDir)
	setString(&cfg.CacheDir, fc.CacheDir)
	setString(&cfg.ServerAddr, fc.ServerAddr)
	setString(&cfg.LogFile, fc.LogFile)
	if fc.LogLevel != "" {
		cfg.LogLevel = parseLogLevel(fc.LogLevel)
	}
	if fc.ThumbnailWidth > 0 {
		cfg.ThumbnailWidth = fc.ThumbnailWidth
	}
	for _, d := range []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"ocr_poll_interval", fc.OCRPollInterval, &cfg.OCRPollInterval},
		{"thumbnail_poll_interval", fc.ThumbnailPollInterval, &cfg.ThumbnailPollInterval},
		{"stuck_after", fc.StuckAfter, &cfg.StuckAfter},
	} {
		if err := setDuration(d.dst, d.key, d.raw); err != nil {
			return err
		}
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Language = getEnv("SCANJOBS_LANGUAGE", cfg.Language)
	cfg.TessdataDir = getEnv("SCANJOBS_TESSDATA_DIR", cfg.TessdataDir)
	cfg.CacheDir = getEnv("SCANJOBS_CACHE_DIR", cfg.CacheDir)
	cfg.ServerAddr = getEnv("SCANJOBS_SERVER_ADDR", cfg.ServerAddr)
	cfg.LogFile = getEnv("SCANJOBS_LOG_FILE", cfg.LogFile)
	if v := os.Getenv("SCANJOBS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	if v := os.Getenv("SCANJOBS_THUMB_WIDTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("SCANJOBS_THUMB_WIDTH: invalid width %q", v)
		}
		cfg.ThumbnailWidth = n
	}
	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"SCANJOBS_OCR_POLL_INTERVAL", &cfg.OCRPollInterval},
		{"SCANJOBS_THUMB_POLL_INTERVAL", &cfg.ThumbnailPollInterval},
		{"SCANJOBS_STUCK_AFTER", &cfg.StuckAfter},
	} {
		if err := setDuration(d.dst, d.key, os.Getenv(d.key)); err != nil {
			return err
		}
	}
	return nil
}

func defaultCacheDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "scanjobs")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key, raw string) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return fmt.Errorf("%s: negative duration %s", key, raw)
	}
	*dst = d
	return nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
