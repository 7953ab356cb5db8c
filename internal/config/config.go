package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Config keeps runtime settings for the back office scheduler.
type Config struct {
	DatabaseURL         string
	LogLevel            string
	GenerationInterval  time.Duration // how often the engine scans for due rules
	GenerationAt        string        // optional HH:MM; overrides the interval with one daily run
	ReportCheckInterval time.Duration
	RuleTimeout         time.Duration // bound on one rule's generation, sink call included
}

// fileConfig is the YAML shape; durations are strings like "30m".
type fileConfig struct {
	DatabaseURL         string `yaml:"database_url"`
	LogLevel            string `yaml:"log_level"`
	GenerationInterval  string `yaml:"generation_interval"`
	GenerationAt        string `yaml:"generation_at"`
	ReportCheckInterval string `yaml:"report_check_interval"`
	RuleTimeout         string `yaml:"rule_timeout"`
}

// Load reads the optional YAML file named by PROPERTYOPS_CONFIG, applies
// environment overrides and fills defaults.
func Load() (Config, error) {
	var cfg Config

	if path := strings.TrimSpace(os.Getenv("PROPERTYOPS_CONFIG")); path != "" {
		loaded, err := loadFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}

	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("GENERATION_AT")); v != "" {
		cfg.GenerationAt = v
	}
	var err error
	if cfg.GenerationInterval, err = overrideDuration("GENERATION_INTERVAL", cfg.GenerationInterval); err != nil {
		return cfg, err
	}
	if cfg.ReportCheckInterval, err = overrideDuration("REPORT_CHECK_INTERVAL", cfg.ReportCheckInterval); err != nil {
		return cfg, err
	}
	if cfg.RuleTimeout, err = overrideDuration("RULE_TIMEOUT", cfg.RuleTimeout); err != nil {
		return cfg, err
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "propertyops.db"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.GenerationInterval == 0 {
		cfg.GenerationInterval = time.Hour
	}
	if cfg.ReportCheckInterval == 0 {
		cfg.ReportCheckInterval = 15 * time.Minute
	}
	if cfg.RuleTimeout == 0 {
		cfg.RuleTimeout = 30 * time.Second
	}

	return cfg, nil
}

func loadFile(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	var raw fileConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}
	cfg.DatabaseURL = raw.DatabaseURL
	cfg.LogLevel = raw.LogLevel
	cfg.GenerationAt = raw.GenerationAt
	if cfg.GenerationInterval, err = parseDurationField("generation_interval", raw.GenerationInterval); err != nil {
		return cfg, err
	}
	if cfg.ReportCheckInterval, err = parseDurationField("report_check_interval", raw.ReportCheckInterval); err != nil {
		return cfg, err
	}
	if cfg.RuleTimeout, err = parseDurationField("rule_timeout", raw.RuleTimeout); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func overrideDuration(env string, current time.Duration) (time.Duration, error) {
	d, err := parseDurationField(env, os.Getenv(env))
	if err != nil {
		return 0, err
	}
	if d > 0 {
		return d, nil
	}
	return current, nil
}

func parseDurationField(name, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", name, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", name)
	}
	return d, nil
}
