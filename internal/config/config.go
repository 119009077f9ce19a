// Package config loads application configuration from config.yaml and the
// environment and owns global logger setup.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/communitas-hq/partner-research/internal/credpool"
	"github.com/communitas-hq/partner-research/internal/research"
	"github.com/communitas-hq/partner-research/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Research   ResearchConfig   `yaml:"research" mapstructure:"research"`
	Scrape     ScrapeConfig     `yaml:"scrape" mapstructure:"scrape"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Wikipedia  WikipediaConfig  `yaml:"wikipedia" mapstructure:"wikipedia"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string           `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// ResearchConfig configures the research pipeline and its background runner.
type ResearchConfig struct {
	Enabled           bool     `yaml:"enabled" mapstructure:"enabled"`
	GlobalTimeoutSecs int      `yaml:"global_timeout_secs" mapstructure:"global_timeout_secs"`
	RateLimit         float64  `yaml:"rate_limit" mapstructure:"rate_limit"`
	Workers           int      `yaml:"workers" mapstructure:"workers"`
	QueueSize         int      `yaml:"queue_size" mapstructure:"queue_size"`
	CrawlCitations    bool     `yaml:"crawl_citations" mapstructure:"crawl_citations"`
	SourcePriority    []string `yaml:"source_priority" mapstructure:"source_priority"`
}

// Orchestrator converts the pipeline tuning into research.Config.
func (r ResearchConfig) Orchestrator() research.Config {
	return research.Config{
		GlobalTimeout: time.Duration(r.GlobalTimeoutSecs) * time.Second,
		RateLimit:     r.RateLimit,
	}
}

// Runner converts the background-run tuning into research.RunnerConfig.
func (r ResearchConfig) Runner() research.RunnerConfig {
	return research.RunnerConfig{
		Enabled:   r.Enabled,
		Workers:   r.Workers,
		QueueSize: r.QueueSize,
	}
}

// ScrapeConfig configures the profile-scrape gateway and its credential pool.
type ScrapeConfig struct {
	GatewayURL           string `yaml:"gateway_url" mapstructure:"gateway_url"`
	CredentialsFile      string `yaml:"credentials_file" mapstructure:"credentials_file"`
	AuthFailureThreshold int    `yaml:"auth_failure_threshold" mapstructure:"auth_failure_threshold"`
	CooldownMins         int    `yaml:"cooldown_mins" mapstructure:"cooldown_mins"`
	SocialSite           string `yaml:"social_site" mapstructure:"social_site"`
}

// PoolOptions converts the credential tuning into credpool.Options.
func (s ScrapeConfig) PoolOptions() credpool.Options {
	return credpool.Options{
		AuthFailureThreshold: s.AuthFailureThreshold,
		Cooldown:             time.Duration(s.CooldownMins) * time.Minute,
	}
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// JinaConfig holds Jina AI Reader/Search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// WikipediaConfig holds encyclopedia lookup settings.
type WikipediaConfig struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`
}

// AnthropicConfig holds Anthropic API settings for introduction drafting.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// NotionConfig holds Notion API credentials and the partner-directory database.
type NotionConfig struct {
	Token       string `yaml:"token" mapstructure:"token"`
	DirectoryDB string `yaml:"directory_db" mapstructure:"directory_db"`
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml and environment variables.
// Environment variables use the PARTNER_ prefix with underscores,
// e.g. PARTNER_STORE_DRIVER overrides store.driver.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PARTNER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "partner-research.db")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("research.enabled", true)
	v.SetDefault("research.global_timeout_secs", 150)
	v.SetDefault("research.rate_limit", 5)
	v.SetDefault("research.workers", 2)
	v.SetDefault("research.queue_size", 16)
	v.SetDefault("research.crawl_citations", false)
	v.SetDefault("scrape.credentials_file", "credentials.yaml")
	v.SetDefault("scrape.auth_failure_threshold", 3)
	v.SetDefault("scrape.cooldown_mins", 45)
	v.SetDefault("scrape.social_site", "linkedin.com")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("jina.base_url", "https://r.jina.ai")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("wikipedia.base_url", "https://en.wikipedia.org/api/rest_v1")
	v.SetDefault("wikipedia.user_agent", "partner-research/1.0")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks that the config carries everything the given mode needs.
// Modes: "research" (pipeline runs), "intro" (introduction drafting),
// "publish" (Notion directory sync), "serve" (admin HTTP server).
func (c *Config) Validate(mode string) error {
	var missing []string

	requireStore := func() {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				missing = append(missing, "store.database_url is required for the postgres driver")
			}
		case "sqlite":
			if c.Store.SQLitePath == "" {
				missing = append(missing, "store.sqlite_path is required for the sqlite driver")
			}
		default:
			missing = append(missing, "store.driver must be postgres or sqlite")
		}
	}

	switch mode {
	case "research":
		requireStore()
		if c.Research.GlobalTimeoutSecs <= 0 {
			missing = append(missing, "research.global_timeout_secs must be > 0")
		}
		if c.Research.RateLimit <= 0 {
			missing = append(missing, "research.rate_limit must be > 0")
		}
	case "intro":
		requireStore()
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
	case "publish":
		requireStore()
		if c.Notion.Token == "" {
			missing = append(missing, "notion.token is required")
		}
		if c.Notion.DirectoryDB == "" {
			missing = append(missing, "notion.directory_db is required")
		}
	case "serve":
		requireStore()
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: invalid for mode %s: %s", mode, strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger builds the global zap logger from the log section.
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
