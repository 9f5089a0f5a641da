package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig    `yaml:"store" mapstructure:"store"`
	Reddit     RedditConfig   `yaml:"reddit" mapstructure:"reddit"`
	Slack      SlackConfig    `yaml:"slack" mapstructure:"slack"`
	HotPosts   PipelineConfig `yaml:"hot_posts" mapstructure:"hot_posts"`
	Snapshot   PipelineConfig `yaml:"snapshot" mapstructure:"snapshot"`
	MetaUpdate PipelineConfig `yaml:"meta_update" mapstructure:"meta_update"`
	Log        LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RedditConfig holds reddit script-app credentials and client settings.
type RedditConfig struct {
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
	Username     string `yaml:"username" mapstructure:"username"`
	Password     string `yaml:"password" mapstructure:"password"`
	UserAgent    string `yaml:"user_agent" mapstructure:"user_agent"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	AuthURL      string `yaml:"auth_url" mapstructure:"auth_url"`
	TimeoutSecs  int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the HTTP client timeout as a duration.
func (c RedditConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// SlackConfig holds the run-summary webhook settings.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// PipelineConfig configures one collection pipeline variant.
type PipelineConfig struct {
	BatchFile        string `yaml:"batch_file" mapstructure:"batch_file"`
	LockFile         string `yaml:"lock_file" mapstructure:"lock_file"`
	BatchSize        int    `yaml:"batch_size" mapstructure:"batch_size"`
	FetchLimit       int    `yaml:"fetch_limit" mapstructure:"fetch_limit"`
	WindowMinutes    int    `yaml:"window_minutes" mapstructure:"window_minutes"`
	LimiterMaxCalls  int    `yaml:"limiter_max_calls" mapstructure:"limiter_max_calls"`
	LimiterPeriodSec int    `yaml:"limiter_period_secs" mapstructure:"limiter_period_secs"`
	Workers          int    `yaml:"workers" mapstructure:"workers"`
	FetchTimeoutSecs int    `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
}

// LimiterPeriod returns the limiter refill period as a duration.
func (c PipelineConfig) LimiterPeriod() time.Duration {
	return time.Duration(c.LimiterPeriodSec) * time.Second
}

// FetchTimeout returns the per-entity fetch timeout as a duration.
func (c PipelineConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSecs) * time.Second
}

// Window returns the activity window as a duration.
func (c PipelineConfig) Window() time.Duration {
	return time.Duration(c.WindowMinutes) * time.Minute
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("REDDIT_WATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("reddit.base_url", "https://oauth.reddit.com")
	v.SetDefault("reddit.auth_url", "https://www.reddit.com/api/v1/access_token")
	v.SetDefault("reddit.user_agent", "script:reddit-watcher:v0.1")
	v.SetDefault("reddit.timeout_secs", 30)
	v.SetDefault("hot_posts.batch_file", "/var/lib/reddit-watcher/hot_posts_batches.json")
	v.SetDefault("hot_posts.lock_file", "/var/lib/reddit-watcher/hot_posts.lock")
	v.SetDefault("hot_posts.batch_size", 50)
	v.SetDefault("hot_posts.fetch_limit", 25)
	v.SetDefault("hot_posts.limiter_max_calls", 50)
	v.SetDefault("hot_posts.limiter_period_secs", 60)
	v.SetDefault("hot_posts.workers", 10)
	v.SetDefault("hot_posts.fetch_timeout_secs", 60)
	v.SetDefault("snapshot.batch_file", "/var/lib/reddit-watcher/subreddit_batches.json")
	v.SetDefault("snapshot.lock_file", "/var/lib/reddit-watcher/subreddit_snapshot.lock")
	v.SetDefault("snapshot.batch_size", 50)
	v.SetDefault("snapshot.fetch_limit", 100)
	v.SetDefault("snapshot.window_minutes", 5)
	v.SetDefault("snapshot.limiter_max_calls", 20)
	v.SetDefault("snapshot.limiter_period_secs", 60)
	v.SetDefault("snapshot.workers", 5)
	v.SetDefault("snapshot.fetch_timeout_secs", 60)
	v.SetDefault("meta_update.lock_file", "/var/lib/reddit-watcher/meta_update.lock")
	v.SetDefault("meta_update.batch_size", 50)
	v.SetDefault("meta_update.limiter_max_calls", 20)
	v.SetDefault("meta_update.limiter_period_secs", 60)
	v.SetDefault("meta_update.workers", 5)
	v.SetDefault("meta_update.fetch_timeout_secs", 60)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
