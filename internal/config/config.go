// Package config loads and validates archiver configuration via Viper.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/wayback-archiver/internal/archiver"
)

// Checkpoint store backends.
const (
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendPostgres = "postgres"
	BackendStdout   = "stdout"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Wayback WaybackConfig `mapstructure:"wayback"`
	Policy  PolicyConfig  `mapstructure:"policy"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Storage StorageConfig `mapstructure:"storage"`
	DB      DBConfig      `mapstructure:"db"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Tracing TracingConfig `mapstructure:"tracing"`
}

// WaybackConfig points the client at the archiving service.
type WaybackConfig struct {
	AvailabilityURL    string  `mapstructure:"availability_url"`
	SaveURL            string  `mapstructure:"save_url"`
	SnapshotPathPrefix string  `mapstructure:"snapshot_path_prefix"`
	UserAgent          string  `mapstructure:"user_agent"`
	TimeoutSeconds     int     `mapstructure:"timeout_seconds"`
	RequestsPerSecond  float64 `mapstructure:"requests_per_second"`
}

// PolicyConfig holds the freshness windows and waits.
type PolicyConfig struct {
	FreshnessDays          int `mapstructure:"freshness_days"`
	ReuseDays              int `mapstructure:"reuse_days"`
	RateLimitWaitSeconds   int `mapstructure:"rate_limit_wait_seconds"`
	CooldownSeconds        int `mapstructure:"cooldown_seconds"`
	MaxRateLimitRetries    int `mapstructure:"max_rate_limit_retries"`
	FinalCheckpointSeconds int `mapstructure:"final_checkpoint_seconds"`
}

// CacheConfig selects the checkpoint store.
type CacheConfig struct {
	Backend         string `mapstructure:"backend"`
	Path            string `mapstructure:"path"`
	Merge           bool   `mapstructure:"merge"`
	CheckpointEvery int    `mapstructure:"checkpoint_every"`
}

// StorageConfig locates the result object in Cloud Storage.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	GCSObject string `mapstructure:"gcs_object"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int    `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for per-URL outcome notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// QueueConfig sizes the ingestion queue.
type QueueConfig struct {
	Depth int `mapstructure:"depth"`
}

// ServerConfig controls the optional status server. An empty address disables it.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TracingConfig controls OpenTelemetry span export. Spans are written to stderr.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v, err := NewViper(path)
	if err != nil {
		return Config{}, err
	}
	return FromViper(v)
}

// NewViper returns a Viper instance with defaults, environment binding and the optional config
// file applied. Callers may bind flags before calling FromViper.
func NewViper(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("ARCHIVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Cache.Backend = cfg.ResolvedBackend()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("wayback.availability_url", "https://archive.org/wayback/available")
	v.SetDefault("wayback.save_url", "https://web.archive.org/save")
	v.SetDefault("wayback.snapshot_path_prefix", "/web")
	v.SetDefault("wayback.user_agent", "wayback-archiver/0.1")
	v.SetDefault("wayback.timeout_seconds", 120)
	v.SetDefault("wayback.requests_per_second", 0)
	v.SetDefault("policy.freshness_days", 90)
	v.SetDefault("policy.reuse_days", 180)
	v.SetDefault("policy.rate_limit_wait_seconds", 15)
	v.SetDefault("policy.cooldown_seconds", 5)
	v.SetDefault("policy.max_rate_limit_retries", 0)
	v.SetDefault("policy.final_checkpoint_seconds", 30)
	v.SetDefault("cache.backend", "")
	v.SetDefault("cache.path", "")
	v.SetDefault("cache.merge", true)
	v.SetDefault("cache.checkpoint_every", 100)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.gcs_object", "wayback/results.json")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "archive_results")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("queue.depth", 1024)
	v.SetDefault("server.addr", "")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "wayback-archiver")
}

// ResolvedBackend returns the configured backend, or infers one: a result path means a local
// file, otherwise results go to stdout.
func (c Config) ResolvedBackend() string {
	if b := strings.ToLower(strings.TrimSpace(c.Cache.Backend)); b != "" {
		return b
	}
	if strings.TrimSpace(c.Cache.Path) != "" {
		return BackendLocal
	}
	return BackendStdout
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := validateURL("wayback.availability_url", c.Wayback.AvailabilityURL); err != nil {
		return err
	}
	if err := validateURL("wayback.save_url", c.Wayback.SaveURL); err != nil {
		return err
	}
	if !strings.HasPrefix(c.Wayback.SnapshotPathPrefix, "/") {
		return fmt.Errorf("wayback.snapshot_path_prefix must start with /")
	}
	if c.Wayback.TimeoutSeconds <= 0 {
		return fmt.Errorf("wayback.timeout_seconds must be > 0")
	}
	if c.Wayback.RequestsPerSecond < 0 {
		return fmt.Errorf("wayback.requests_per_second must be >= 0")
	}
	if c.Policy.FreshnessDays <= 0 {
		return fmt.Errorf("policy.freshness_days must be > 0")
	}
	if c.Policy.ReuseDays <= 0 {
		return fmt.Errorf("policy.reuse_days must be > 0")
	}
	if c.Policy.RateLimitWaitSeconds <= 0 {
		return fmt.Errorf("policy.rate_limit_wait_seconds must be > 0")
	}
	if c.Policy.CooldownSeconds < 0 {
		return fmt.Errorf("policy.cooldown_seconds must be >= 0")
	}
	if c.Policy.MaxRateLimitRetries < 0 {
		return fmt.Errorf("policy.max_rate_limit_retries must be >= 0")
	}
	if c.Cache.CheckpointEvery <= 0 {
		return fmt.Errorf("cache.checkpoint_every must be > 0")
	}
	if c.Queue.Depth <= 0 {
		return fmt.Errorf("queue.depth must be > 0")
	}
	switch c.ResolvedBackend() {
	case BackendLocal:
		if strings.TrimSpace(c.Cache.Path) == "" {
			return fmt.Errorf("cache.path must be set for the local backend")
		}
	case BackendGCS:
		if c.Storage.GCSBucket == "" || c.Storage.GCSObject == "" {
			return fmt.Errorf("storage.gcs_bucket and storage.gcs_object must be set for the gcs backend")
		}
	case BackendPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres backend")
		}
	case BackendStdout:
	default:
		return fmt.Errorf("cache.backend must be one of local, gcs, postgres, stdout")
	}
	if (c.PubSub.ProjectID == "") != (c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set together")
	}
	return nil
}

// ArchiverPolicy converts the policy section into archiver durations.
func (c Config) ArchiverPolicy() archiver.Policy {
	const day = 24 * time.Hour
	return archiver.Policy{
		FreshnessWindow:     time.Duration(c.Policy.FreshnessDays) * day,
		ReuseWindow:         time.Duration(c.Policy.ReuseDays) * day,
		RateLimitWait:       time.Duration(c.Policy.RateLimitWaitSeconds) * time.Second,
		Cooldown:            time.Duration(c.Policy.CooldownSeconds) * time.Second,
		MaxRateLimitRetries: c.Policy.MaxRateLimitRetries,
	}
}

// RequestTimeout returns the per-request HTTP timeout.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Wayback.TimeoutSeconds) * time.Second
}

// FinalCheckpointTimeout bounds the end-of-run checkpoint.
func (c Config) FinalCheckpointTimeout() time.Duration {
	return time.Duration(c.Policy.FinalCheckpointSeconds) * time.Second
}

func validateURL(key, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL", key)
	}
	return nil
}
