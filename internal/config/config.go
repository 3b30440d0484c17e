package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config keeps runtime settings for the planner.
type Config struct {
	TelegramToken        string        `yaml:"telegram_token"`
	DatabaseURL          string        `yaml:"database_url"`
	ListenAddr           string        `yaml:"listen_addr"`
	DefaultTimezone      string        `yaml:"default_timezone"`
	CalendarFetchTimeout time.Duration `yaml:"calendar_fetch_timeout"`
	AutogenTime          string        `yaml:"autogen_time"`
	SyncInterval         time.Duration `yaml:"sync_interval"`
	DefaultSections      []string      `yaml:"default_sections"`
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		DatabaseURL:          "dayplanner.db",
		ListenAddr:           "127.0.0.1:8080",
		DefaultTimezone:      "UTC",
		CalendarFetchTimeout: 5 * time.Second,
		AutogenTime:          "21:00",
		SyncInterval:         30 * time.Minute,
		DefaultSections:      []string{"Morning", "Afternoon", "Evening"},
	}
}

// Load reads an optional YAML file named by DAYPLANNER_CONFIG and then applies environment
// variables on top of it.
func Load() (Config, error) {
	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv("DAYPLANNER_CONFIG")); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, err
		}
	}

	if v := strings.TrimSpace(os.Getenv("TELEGRAM_TOKEN")); v != "" {
		cfg.TelegramToken = v
	}
	if v := strings.TrimSpace(os.Getenv("DATABASE_URL")); v != "" {
		cfg.DatabaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("DEFAULT_TIMEZONE")); v != "" {
		cfg.DefaultTimezone = v
	}
	if v := strings.TrimSpace(os.Getenv("CALENDAR_FETCH_TIMEOUT")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return cfg, fmt.Errorf("CALENDAR_FETCH_TIMEOUT: invalid duration %q", v)
		}
		cfg.CalendarFetchTimeout = d
	}
	if v := strings.TrimSpace(os.Getenv("AUTOGEN_TIME")); v != "" {
		cfg.AutogenTime = v
	}
	if v := strings.TrimSpace(os.Getenv("SYNC_INTERVAL_MINUTES")); v != "" {
		cfg.SyncInterval = parseMinutes(v)
	}
	if v := strings.TrimSpace(os.Getenv("DEFAULT_SECTIONS")); v != "" {
		cfg.DefaultSections = splitList(v)
	}

	if _, err := time.LoadLocation(cfg.DefaultTimezone); err != nil {
		return cfg, fmt.Errorf("DEFAULT_TIMEZONE: %w", err)
	}
	return cfg, nil
}

// Location resolves DefaultTimezone, falling back to UTC.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DefaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config file %s does not exist", path)
	}
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func parseMinutes(raw string) time.Duration {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Minute
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
