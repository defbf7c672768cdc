package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jobwatch/jobwatch/internal/model"
)

// Config is the root configuration for the jobwatch engine.
type Config struct {
	DatabasePath string
	Monitoring   MonitoringConfig
	Fetcher      FetcherConfig
	Server       ServerConfig
	Subscribers  []SubscriberConfig
}

// MonitoringConfig controls run batching and priority scoring.
type MonitoringConfig struct {
	BatchLimit          int           // max jobs per run
	Concurrency         int           // max in-flight checks per run
	Interval            time.Duration // daemon trigger cadence
	SimilarityThreshold float64       // description noise gate, (0, 1]
	StalenessWeight     float64
	VolatilityWeight    float64
	VolatilityWindow    time.Duration
	OverrideBonus       map[string]float64 // bucket name -> score bonus
}

// FetcherConfig controls the HTTP fetcher and its decorators.
type FetcherConfig struct {
	Timeout           time.Duration
	UserAgent         string
	RequestsPerSecond float64
	Burst             int
	MaxRetries        int
	RetryBaseDelay    time.Duration
}

// ServerConfig controls the status/metrics HTTP server in daemon mode.
type ServerConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

// SubscriberConfig describes one notification recipient.
type SubscriberConfig struct {
	ID               string `yaml:"id"`
	Name             string `yaml:"name"`
	Channel          string `yaml:"channel"` // "log", "slack" or "webhook"
	Target           string `yaml:"target"`  // webhook URL where applicable
	NotifyNewJobs    bool   `yaml:"notify_new_jobs"`
	NotifyChanges    bool   `yaml:"notify_changes"`
	NotifyStatistics bool   `yaml:"notify_statistics"`
	MinSeverity      string `yaml:"min_severity"`
	Enabled          bool   `yaml:"enabled"`
}

// rawConfig is used for YAML unmarshaling (snake_case fields and durations as
// strings).
type rawConfig struct {
	DatabasePath string              `yaml:"database_path"`
	Monitoring   rawMonitoringConfig `yaml:"monitoring"`
	Fetcher      rawFetcherConfig    `yaml:"fetcher"`
	Server       ServerConfig        `yaml:"server"`
	Subscribers  []SubscriberConfig  `yaml:"subscribers"`
}

type rawMonitoringConfig struct {
	BatchLimit          int                `yaml:"batch_limit"`
	Concurrency         int                `yaml:"concurrency"`
	Interval            string             `yaml:"interval"`
	SimilarityThreshold float64            `yaml:"similarity_threshold"`
	StalenessWeight     *float64           `yaml:"staleness_weight"`
	VolatilityWeight    *float64           `yaml:"volatility_weight"`
	VolatilityWindow    string             `yaml:"volatility_window"`
	OverrideBonus       map[string]float64 `yaml:"override_bonus"`
}

type rawFetcherConfig struct {
	Timeout           string  `yaml:"timeout"`
	UserAgent         string  `yaml:"user_agent"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	MaxRetries        *int    `yaml:"max_retries"`
	RetryBaseDelay    string  `yaml:"retry_base_delay"`
}

// Load reads and parses the YAML config file at path, applies defaults,
// validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := &Config{
		DatabasePath: raw.DatabasePath,
		Server:       raw.Server,
		Subscribers:  raw.Subscribers,
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = "jobwatch.db"
	}
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}

	if err := loadMonitoring(&cfg.Monitoring, raw.Monitoring); err != nil {
		return nil, err
	}
	if err := loadFetcher(&cfg.Fetcher, raw.Fetcher); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadMonitoring(m *MonitoringConfig, raw rawMonitoringConfig) error {
	m.BatchLimit = raw.BatchLimit
	if m.BatchLimit == 0 {
		m.BatchLimit = 50
	}
	m.Concurrency = raw.Concurrency
	if m.Concurrency == 0 {
		m.Concurrency = 4
	}

	m.Interval = 1 * time.Hour
	if raw.Interval != "" {
		d, err := time.ParseDuration(raw.Interval)
		if err != nil {
			return fmt.Errorf("parse monitoring.interval %q: %w", raw.Interval, err)
		}
		m.Interval = d
	}

	m.SimilarityThreshold = raw.SimilarityThreshold
	if m.SimilarityThreshold == 0 {
		m.SimilarityThreshold = 0.9
	}

	m.StalenessWeight = 1
	if raw.StalenessWeight != nil {
		m.StalenessWeight = *raw.StalenessWeight
	}
	m.VolatilityWeight = 2
	if raw.VolatilityWeight != nil {
		m.VolatilityWeight = *raw.VolatilityWeight
	}

	m.VolatilityWindow = 7 * 24 * time.Hour
	if raw.VolatilityWindow != "" {
		d, err := time.ParseDuration(raw.VolatilityWindow)
		if err != nil {
			return fmt.Errorf("parse monitoring.volatility_window %q: %w", raw.VolatilityWindow, err)
		}
		m.VolatilityWindow = d
	}

	m.OverrideBonus = map[string]float64{
		"low":      0,
		"medium":   10,
		"high":     25,
		"critical": 50,
	}
	for bucket, bonus := range raw.OverrideBonus {
		m.OverrideBonus[bucket] = bonus
	}
	return nil
}

func loadFetcher(f *FetcherConfig, raw rawFetcherConfig) error {
	f.Timeout = 30 * time.Second
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("parse fetcher.timeout %q: %w", raw.Timeout, err)
		}
		f.Timeout = d
	}

	f.UserAgent = raw.UserAgent
	f.RequestsPerSecond = raw.RequestsPerSecond
	if f.RequestsPerSecond == 0 {
		f.RequestsPerSecond = 1
	}
	f.Burst = raw.Burst
	if f.Burst == 0 {
		f.Burst = 2
	}

	f.MaxRetries = 2
	if raw.MaxRetries != nil {
		f.MaxRetries = *raw.MaxRetries
	}

	f.RetryBaseDelay = 5 * time.Second
	if raw.RetryBaseDelay != "" {
		d, err := time.ParseDuration(raw.RetryBaseDelay)
		if err != nil {
			return fmt.Errorf("parse fetcher.retry_base_delay %q: %w", raw.RetryBaseDelay, err)
		}
		f.RetryBaseDelay = d
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.Monitoring.BatchLimit < 1 {
		return fmt.Errorf("monitoring.batch_limit must be >= 1, got %d", cfg.Monitoring.BatchLimit)
	}
	if cfg.Monitoring.Concurrency < 1 {
		return fmt.Errorf("monitoring.concurrency must be >= 1, got %d", cfg.Monitoring.Concurrency)
	}
	if cfg.Monitoring.Interval <= 0 {
		return fmt.Errorf("monitoring.interval must be positive, got %v", cfg.Monitoring.Interval)
	}
	if cfg.Monitoring.SimilarityThreshold <= 0 || cfg.Monitoring.SimilarityThreshold > 1 {
		return fmt.Errorf("monitoring.similarity_threshold must be in (0, 1], got %v", cfg.Monitoring.SimilarityThreshold)
	}
	if cfg.Monitoring.StalenessWeight < 0 || cfg.Monitoring.VolatilityWeight < 0 {
		return fmt.Errorf("monitoring weights must be non-negative")
	}
	if cfg.Fetcher.RequestsPerSecond <= 0 {
		return fmt.Errorf("fetcher.requests_per_second must be positive, got %v", cfg.Fetcher.RequestsPerSecond)
	}
	if cfg.Fetcher.MaxRetries < 0 {
		return fmt.Errorf("fetcher.max_retries must be >= 0, got %d", cfg.Fetcher.MaxRetries)
	}

	for i, sub := range cfg.Subscribers {
		if sub.ID == "" {
			return fmt.Errorf("subscribers[%d].id is required", i)
		}
		switch sub.Channel {
		case "", "log":
		case "slack":
			if !strings.HasPrefix(sub.Target, "https://hooks.slack.com/") {
				return fmt.Errorf("subscribers[%d].target must start with https://hooks.slack.com/", i)
			}
		case "webhook":
			if sub.Target == "" {
				return fmt.Errorf("subscribers[%d].target is required for channel \"webhook\"", i)
			}
		default:
			return fmt.Errorf("subscribers[%d].channel %q is not supported", i, sub.Channel)
		}
		switch sub.MinSeverity {
		case "", "low", "medium", "high", "critical":
		default:
			return fmt.Errorf("subscribers[%d].min_severity %q is not a severity", i, sub.MinSeverity)
		}
	}
	return nil
}

// ActiveSubscribers implements model.SubscriberSource over the config file.
// It is the default subscriber store; a real deployment can swap in any other
// implementation of the interface.
func (c *Config) ActiveSubscribers(_ context.Context) ([]model.Subscriber, error) {
	var subs []model.Subscriber
	for _, sc := range c.Subscribers {
		if !sc.Enabled {
			continue
		}
		min := model.Severity(sc.MinSeverity)
		if sc.MinSeverity == "" {
			min = model.SeverityLow
		}
		subs = append(subs, model.Subscriber{
			ID:               sc.ID,
			Name:             sc.Name,
			Channel:          sc.Channel,
			Target:           sc.Target,
			NotifyNewJobs:    sc.NotifyNewJobs,
			NotifyChanges:    sc.NotifyChanges,
			NotifyStatistics: sc.NotifyStatistics,
			MinSeverity:      min,
		})
	}
	return subs, nil
}
