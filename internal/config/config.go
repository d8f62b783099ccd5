// Package config loads watcher configuration from a YAML file and the
// environment.
//
// The file is named by the --config flag or the WATCHER_CONFIG environment
// variable. When neither is set, Default() is used. A handful of environment
// variables override file values so secrets never need to live on disk.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultURLTemplate is the class schedule detail page. {term} and {crn} are
// substituted per request.
const DefaultURLTemplate = "https://oscar.gatech.edu/bprod/bwckschd.p_disp_detail_sched?term_in={term}&crn_in={crn}"

// Config is the complete watcher configuration.
type Config struct {
	// Term is the registration term used when a subscribe request names none.
	Term string `yaml:"term"`

	HTTP    HTTPConfig    `yaml:"http"`
	Source  SourceConfig  `yaml:"source"`
	Poll    PollConfig    `yaml:"poll"`
	Discord DiscordConfig `yaml:"discord"`
	Journal JournalConfig `yaml:"journal"`
	Log     LogConfig     `yaml:"log"`
}

// HTTPConfig configures the command API server.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// SourceConfig configures requests to the registrar.
type SourceConfig struct {
	URLTemplate string `yaml:"url_template"`

	// Timeout bounds every request, including reading the body.
	Timeout time.Duration `yaml:"timeout"`

	// RatePerSecond limits outbound requests. Zero disables limiting.
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// PollConfig configures the poller.
type PollConfig struct {
	Interval time.Duration `yaml:"interval"`

	// Concurrency is the number of courses fetched in parallel per tick.
	Concurrency int `yaml:"concurrency"`

	// DegradedAfter is the number of consecutive failed refreshes after
	// which subscribers get a one-time notice. Zero disables the notice.
	DegradedAfter int `yaml:"degraded_after"`
}

// DiscordConfig configures the Discord webhook sink.
type DiscordConfig struct {
	WebhookURL      string `yaml:"webhook_url"`
	Username        string `yaml:"username"`
	AnnounceStartup bool   `yaml:"announce_startup"`
}

// JournalConfig configures the optional Postgres notification journal.
type JournalConfig struct {
	// DSN is a libpq connection string or URL. Empty disables the journal.
	DSN string `yaml:"dsn"`
}

// LogConfig configures slog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration that runs without a config file.
func Default() *Config {
	return &Config{
		Term: "202508",
		HTTP: HTTPConfig{Addr: ":8080"},
		Source: SourceConfig{
			URLTemplate:   DefaultURLTemplate,
			Timeout:       10 * time.Second,
			RatePerSecond: 5,
			Burst:         5,
		},
		Poll: PollConfig{
			Interval:      30 * time.Second,
			Concurrency:   4,
			DegradedAfter: 3,
		},
		Discord: DiscordConfig{
			Username:        "Course Watcher",
			AnnounceStartup: true,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path (or WATCHER_CONFIG when path is empty) over Default() and
// applies environment overrides. Callers apply their own overrides and then
// call Validate.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("WATCHER_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if port := os.Getenv("PORT"); port != "" {
		c.HTTP.Addr = ":" + port
	}
	c.Term = getEnv("WATCHER_TERM", c.Term)
	c.Discord.WebhookURL = getEnv("DISCORD_WEBHOOK_URL", c.Discord.WebhookURL)
	c.Journal.DSN = getEnv("DATABASE_URL", c.Journal.DSN)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Validate checks the configuration for values the watcher cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Term) == "" {
		errs = append(errs, errors.New("term is required"))
	}
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if !strings.Contains(c.Source.URLTemplate, "{crn}") {
		errs = append(errs, errors.New("source.url_template must contain {crn}"))
	}
	if c.Source.Timeout <= 0 {
		errs = append(errs, errors.New("source.timeout must be positive"))
	}
	if c.Source.RatePerSecond < 0 {
		errs = append(errs, errors.New("source.rate_per_second cannot be negative"))
	}
	if c.Poll.Interval < time.Second {
		errs = append(errs, errors.New("poll.interval must be at least 1s"))
	}
	if c.Poll.Concurrency < 1 {
		errs = append(errs, errors.New("poll.concurrency must be at least 1"))
	}
	if c.Poll.DegradedAfter < 0 {
		errs = append(errs, errors.New("poll.degraded_after cannot be negative"))
	}
	if c.Discord.WebhookURL != "" && !strings.HasPrefix(c.Discord.WebhookURL, "https://") {
		errs = append(errs, errors.New("discord.webhook_url must be an https URL"))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q must be one of debug, info, warn, error", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}

	return errors.Join(errs...)
}
