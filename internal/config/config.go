// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// AppName names the XDG data directory.
const AppName = "artist-crawler"

// DefaultUserAgent is a desktop Chrome UA; several studio sites refuse bots.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Provider names accepted by the config.
const (
	OracleAnthropic = "anthropic"
	OracleGemini    = "gemini"

	DatabasePostgres = "postgres"
	DatabaseSQLite   = "sqlite"
	DatabaseMemory   = "memory"

	QueueMemory = "memory"
	QueueRedis  = "redis"

	ProviderNone    = "none"
	ArchiveLocal    = "local"
	ArchiveGCS      = "gcs"
	ArchiveMemory   = "memory"
	PublisherPubSub = "pubsub"
	PublisherMemory = "memory"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Publisher PublisherConfig `mapstructure:"publisher"`
	Server    ServerConfig    `mapstructure:"server"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// CrawlerConfig governs claiming, the worker pool and fetching.
type CrawlerConfig struct {
	Workers       int           `mapstructure:"workers" validate:"gte=1,lte=256"`
	MaxClaim      int           `mapstructure:"max_claim" validate:"gte=1"`
	MaxPageVisits int           `mapstructure:"max_page_visits" validate:"gte=1"`
	UserAgent     string        `mapstructure:"user_agent" validate:"required"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout" validate:"gt=0"`
	RespectRobots bool          `mapstructure:"respect_robots"`
	PerHostRPS    float64       `mapstructure:"per_host_rps" validate:"gte=0"`
	PerHostBurst  int           `mapstructure:"per_host_burst" validate:"gte=1"`
	MaxBodyBytes  int           `mapstructure:"max_body_bytes" validate:"gte=0"`
	ExcludeHosts  []string      `mapstructure:"exclude_hosts"`
	Schedule      string        `mapstructure:"schedule"`
}

// OracleConfig selects the LLM backend and shapes its calls.
type OracleConfig struct {
	Provider            string        `mapstructure:"provider" validate:"oneof=anthropic gemini"`
	APIKey              string        `mapstructure:"api_key"`
	Model               string        `mapstructure:"model"`
	BaseURL             string        `mapstructure:"base_url" validate:"omitempty,url"`
	Timeout             time.Duration `mapstructure:"timeout" validate:"gt=0"`
	DecisionMaxTokens   int64         `mapstructure:"decision_max_tokens" validate:"gte=1"`
	ExtractionMaxTokens int64         `mapstructure:"extraction_max_tokens" validate:"gte=1"`
	MaxPageChars        int           `mapstructure:"max_page_chars" validate:"gte=0"`
	PageFormat          string        `mapstructure:"page_format" validate:"oneof=html markdown"`
}

// DatabaseConfig selects and configures the store.
type DatabaseConfig struct {
	Provider string         `mapstructure:"provider" validate:"oneof=postgres sqlite memory"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
}

// PostgresConfig holds pool settings.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns" validate:"gte=1"`
}

// SQLiteConfig holds the database file location.
type SQLiteConfig struct {
	Path        string        `mapstructure:"path"`
	BusyTimeout time.Duration `mapstructure:"busy_timeout"`
}

// QueueConfig selects the work queue.
type QueueConfig struct {
	Provider string      `mapstructure:"provider" validate:"oneof=memory redis"`
	Redis    RedisConfig `mapstructure:"redis"`
}

// RedisConfig addresses the shared Redis list.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"gte=0"`
	Key      string `mapstructure:"key"`
}

// ArchiveConfig controls where raw pages are kept.
type ArchiveConfig struct {
	Provider string      `mapstructure:"provider" validate:"oneof=none local gcs memory"`
	Prefix   string      `mapstructure:"prefix"`
	Local    LocalConfig `mapstructure:"local"`
	GCS      GCSConfig   `mapstructure:"gcs"`
}

// LocalConfig is the filesystem archive root.
type LocalConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// GCSConfig names the archive bucket.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// PublisherConfig controls completion notifications.
type PublisherConfig struct {
	Provider string       `mapstructure:"provider" validate:"oneof=none pubsub memory"`
	PubSub   PubSubConfig `mapstructure:"pubsub"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port" validate:"gte=1,lte=65535"`
}

// ProgressConfig sizes the progress hub.
type ProgressConfig struct {
	BufferSize int  `mapstructure:"buffer_size" validate:"gte=1"`
	LogEvents  bool `mapstructure:"log_events"`
}

// TracingConfig toggles OpenTelemetry spans.
type TracingConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("crawler.workers", 12)
	v.SetDefault("crawler.max_claim", 100)
	v.SetDefault("crawler.max_page_visits", 5)
	v.SetDefault("crawler.user_agent", DefaultUserAgent)
	v.SetDefault("crawler.fetch_timeout", "15s")
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("crawler.per_host_rps", 0)
	v.SetDefault("crawler.per_host_burst", 1)
	v.SetDefault("crawler.max_body_bytes", 5*1024*1024)
	v.SetDefault("crawler.exclude_hosts", []string{"facebook", "instagram"})
	v.SetDefault("crawler.schedule", "")

	v.SetDefault("oracle.provider", OracleAnthropic)
	v.SetDefault("oracle.api_key", "")
	v.SetDefault("oracle.model", "")
	v.SetDefault("oracle.base_url", "")
	v.SetDefault("oracle.timeout", "30s")
	v.SetDefault("oracle.decision_max_tokens", 1000)
	v.SetDefault("oracle.extraction_max_tokens", 1500)
	v.SetDefault("oracle.max_page_chars", 120000)
	v.SetDefault("oracle.page_format", "html")

	v.SetDefault("database.provider", DatabaseSQLite)
	v.SetDefault("database.postgres.dsn", "")
	v.SetDefault("database.postgres.max_conns", 16)
	v.SetDefault("database.sqlite.path", DefaultSQLitePath())
	v.SetDefault("database.sqlite.busy_timeout", "5s")

	v.SetDefault("queue.provider", QueueMemory)
	v.SetDefault("queue.redis.addr", "localhost:6379")
	v.SetDefault("queue.redis.password", "")
	v.SetDefault("queue.redis.db", 0)
	v.SetDefault("queue.redis.key", "artist-crawler:locations")

	v.SetDefault("archive.provider", ProviderNone)
	v.SetDefault("archive.prefix", "pages")
	v.SetDefault("archive.local.base_dir", "./pages")
	v.SetDefault("archive.gcs.bucket", "")

	v.SetDefault("publisher.provider", ProviderNone)
	v.SetDefault("publisher.pubsub.project_id", "")
	v.SetDefault("publisher.pubsub.topic_id", "")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 9090)

	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.log_events", false)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("logging.development", false)
}

// DefaultSQLitePath is the database file under the XDG data home.
func DefaultSQLitePath() string {
	return filepath.Join(xdg.DataHome, AppName, "artists.db")
}

// ConfigDir is the XDG config directory searched for config.yaml.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Load unmarshals v into a Config, fills the API key from the provider's
// environment variable when unset, and validates the result.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Crawler.ExcludeHosts = normalizeHosts(cfg.Crawler.ExcludeHosts)
	if cfg.Oracle.APIKey == "" {
		cfg.Oracle.APIKey = os.Getenv(apiKeyEnv(cfg.Oracle.Provider))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func apiKeyEnv(provider string) string {
	if provider == OracleGemini {
		return "GEMINI_API_KEY"
	}
	return "ANTHROPIC_API_KEY"
}

// normalizeHosts trims entries, splits any that still carry commas and drops
// empties.
func normalizeHosts(hosts []string) []string {
	var out []string
	for _, h := range hosts {
		for _, part := range strings.Split(h, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Database.Provider {
	case DatabasePostgres:
		if c.Database.Postgres.DSN == "" {
			return errors.New("database.postgres.dsn must be set when database.provider is postgres")
		}
	case DatabaseSQLite:
		if c.Database.SQLite.Path == "" {
			return errors.New("database.sqlite.path must be set when database.provider is sqlite")
		}
	}
	if c.Queue.Provider == QueueRedis && (c.Queue.Redis.Addr == "" || c.Queue.Redis.Key == "") {
		return errors.New("queue.redis.addr and queue.redis.key must be set when queue.provider is redis")
	}
	switch c.Archive.Provider {
	case ArchiveLocal:
		if c.Archive.Local.BaseDir == "" {
			return errors.New("archive.local.base_dir must be set when archive.provider is local")
		}
	case ArchiveGCS:
		if c.Archive.GCS.Bucket == "" {
			return errors.New("archive.gcs.bucket must be set when archive.provider is gcs")
		}
	}
	if c.Publisher.Provider == PublisherPubSub && (c.Publisher.PubSub.ProjectID == "" || c.Publisher.PubSub.TopicID == "") {
		return errors.New("publisher.pubsub.project_id and topic_id must be set when publisher.provider is pubsub")
	}
	return nil
}

// RequireOracle reports whether the oracle credentials needed by crawl are
// present.
func (c Config) RequireOracle() error {
	if c.Oracle.APIKey == "" {
		return fmt.Errorf("oracle.api_key must be set (or %s)", apiKeyEnv(c.Oracle.Provider))
	}
	return nil
}
