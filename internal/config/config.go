// Package config loads the pipeline configuration from defaults, an optional
// YAML file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "SPECTRUMPOST"

type Config struct {
	Debug       bool   `mapstructure:"debug"`
	Timezone    string `mapstructure:"timezone"`
	SourcesFile string `mapstructure:"sources_file"`

	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Oracle    OracleConfig    `mapstructure:"oracle"`
	Ledger    LedgerConfig    `mapstructure:"ledger"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Media     MediaConfig     `mapstructure:"media"`
	Post      PostConfig      `mapstructure:"post"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
}

// DiscoveryConfig applies to feed, topic page and article fetches.
type DiscoveryConfig struct {
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

type TelegramConfig struct {
	Token      string        `mapstructure:"token"`
	ChatID     string        `mapstructure:"chat_id"`
	APIBase    string        `mapstructure:"api_base"`
	Timeout    time.Duration `mapstructure:"timeout"`
	ChunkSize  int           `mapstructure:"chunk_size"`
	ChunkPause time.Duration `mapstructure:"chunk_pause"`
}

// OracleConfig selects the text-completion backend.
type OracleConfig struct {
	Provider    string        `mapstructure:"provider"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Audience    string        `mapstructure:"audience"`
}

type LedgerConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	DSN     string `mapstructure:"dsn"`
}

type ArchiveConfig struct {
	Backend string      `mapstructure:"backend"`
	Dir     string      `mapstructure:"dir"`
	Bucket  string      `mapstructure:"bucket"`
	Prefix  string      `mapstructure:"prefix"`
	Minio   MinioConfig `mapstructure:"minio"`
}

type MinioConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type MediaConfig struct {
	DownloadTimeout  time.Duration `mapstructure:"download_timeout"`
	MinBytes         int64         `mapstructure:"min_bytes"`
	MaxAnimatedBytes int64         `mapstructure:"max_animated_bytes"`
	SmallWebPBytes   int64         `mapstructure:"small_webp_bytes"`
	MaxDimension     int           `mapstructure:"max_dimension"`
	UserAgent        string        `mapstructure:"user_agent"`
	TempDir          string        `mapstructure:"temp_dir"`
}

type PostConfig struct {
	Language        string `mapstructure:"language"`
	LinkPlaceholder string `mapstructure:"link_placeholder"`
	MaxAttempts     int    `mapstructure:"max_attempts"`
}

type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	Job            string `mapstructure:"job"`
}

// ScheduleConfig drives the in-process scheduler.
type ScheduleConfig struct {
	Cron       string `mapstructure:"cron"`
	ListenAddr string `mapstructure:"listen_addr"`
}

// Backends and providers accepted by Validate.
const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"

	LedgerFile     = "file"
	LedgerPostgres = "postgres"

	ArchiveNone  = "none"
	ArchiveLocal = "local"
	ArchiveGCS   = "gcs"
	ArchiveMinio = "minio"
)

// legacyEnv maps keys to the variable names older deployments export.
var legacyEnv = map[string][]string{
	"telegram.token":     {"TELEGRAM_BOT_TOKEN", "TELEGRAM_TOKEN"},
	"telegram.chat_id":   {"TELEGRAM_CHANNEL_ID", "TELEGRAM_CHAT_ID"},
	"oracle.api_key":     {"OPENROUTER_API_KEY", "GEMINI_API_KEY"},
	"oracle.base_url":    {"OPENROUTER_BASE_URL"},
	"oracle.model":       {"AI_MODEL"},
	"oracle.max_tokens":  {"MAX_TOKENS"},
	"oracle.temperature": {"TEMPERATURE"},
	"ledger.dsn":         {"DATABASE_URL"},
	"debug":              {"DEBUG"},
}

// Load reads configuration. path may be empty, in which case config.yaml is
// looked up in the working directory and /etc/spectrumpost, and its absence
// is not an error. overrides win over every other source.
func Load(path string, overrides map[string]any) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/spectrumpost/")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	for key, value := range overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()
	return &cfg, nil
}

func bindLegacyEnv(v *viper.Viper) error {
	for key, names := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		args := append([]string{key, prefixed}, names...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("timezone", "Local")
	v.SetDefault("sources_file", "configs/sources.yaml")

	v.SetDefault("discovery.user_agent", "Mozilla/5.0 (compatible; spectrumpost/1.0)")
	v.SetDefault("discovery.timeout", 30*time.Second)

	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.timeout", 30*time.Second)
	v.SetDefault("telegram.chunk_size", 4096)
	v.SetDefault("telegram.chunk_pause", time.Second)

	v.SetDefault("oracle.provider", ProviderOpenRouter)
	v.SetDefault("oracle.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("oracle.model", "google/gemini-pro")
	v.SetDefault("oracle.max_tokens", 4000)
	v.SetDefault("oracle.temperature", 0.7)
	v.SetDefault("oracle.timeout", 60*time.Second)
	v.SetDefault("oracle.audience", "a Telegram channel about AI and robotics technology")

	v.SetDefault("ledger.backend", LedgerFile)
	v.SetDefault("ledger.path", "published_urls.json")

	v.SetDefault("archive.backend", ArchiveLocal)
	v.SetDefault("archive.dir", "articles_archive")

	v.SetDefault("media.download_timeout", 30*time.Second)
	v.SetDefault("media.min_bytes", 100)
	v.SetDefault("media.max_animated_bytes", 50<<20)
	v.SetDefault("media.small_webp_bytes", 50_000)
	v.SetDefault("media.max_dimension", 2000)

	v.SetDefault("post.language", "English")
	v.SetDefault("post.link_placeholder", "[link]")
	v.SetDefault("post.max_attempts", 10)

	v.SetDefault("metrics.job", "spectrumpost")

	v.SetDefault("schedule.cron", "0 9 * * *")
	v.SetDefault("schedule.listen_addr", ":8080")
}

func (c *Config) normalize() {
	c.Oracle.Provider = strings.ToLower(strings.TrimSpace(c.Oracle.Provider))
	c.Ledger.Backend = strings.ToLower(strings.TrimSpace(c.Ledger.Backend))
	c.Archive.Backend = strings.ToLower(strings.TrimSpace(c.Archive.Backend))
	c.Telegram.Token = strings.TrimSpace(c.Telegram.Token)
	c.Telegram.ChatID = strings.TrimSpace(c.Telegram.ChatID)
}

// Location resolves Timezone; "" and "Local" mean the host zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// ValidateLedger checks only what the ledger commands need.
func (c *Config) ValidateLedger() error {
	switch c.Ledger.Backend {
	case LedgerFile:
		if c.Ledger.Path == "" {
			return fmt.Errorf("ledger.path is required for the file ledger")
		}
	case LedgerPostgres:
		if c.Ledger.DSN == "" {
			return fmt.Errorf("ledger.dsn (DATABASE_URL) is required for the postgres ledger")
		}
	default:
		return fmt.Errorf("ledger.backend must be %q or %q, got %q", LedgerFile, LedgerPostgres, c.Ledger.Backend)
	}
	return nil
}

// Validate checks everything a pipeline run needs.
func (c *Config) Validate() error {
	if c.Telegram.Token == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}
	if c.Telegram.ChatID == "" {
		return fmt.Errorf("TELEGRAM_CHANNEL_ID is required")
	}
	switch c.Oracle.Provider {
	case ProviderOpenRouter, ProviderGemini:
	default:
		return fmt.Errorf("oracle.provider must be %q or %q, got %q", ProviderOpenRouter, ProviderGemini, c.Oracle.Provider)
	}
	if c.Oracle.APIKey == "" {
		return fmt.Errorf("oracle API key is required (OPENROUTER_API_KEY or GEMINI_API_KEY)")
	}
	if c.Post.MaxAttempts < 1 {
		return fmt.Errorf("post.max_attempts must be at least 1")
	}
	if err := c.ValidateLedger(); err != nil {
		return err
	}
	switch c.Archive.Backend {
	case ArchiveNone, ArchiveLocal:
	case ArchiveGCS:
		if c.Archive.Bucket == "" {
			return fmt.Errorf("archive.bucket is required for the gcs archive")
		}
	case ArchiveMinio:
		if c.Archive.Bucket == "" || c.Archive.Minio.Endpoint == "" {
			return fmt.Errorf("archive.bucket and archive.minio.endpoint are required for the minio archive")
		}
	default:
		return fmt.Errorf("unknown archive.backend %q", c.Archive.Backend)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
