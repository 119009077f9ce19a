package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chTempDir(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chTempDir(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "partner-research.db", cfg.Store.SQLitePath)
	assert.Equal(t, int32(10), cfg.Store.Pool.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.True(t, cfg.Research.Enabled)
	assert.Equal(t, 150, cfg.Research.GlobalTimeoutSecs)
	assert.InDelta(t, 5, cfg.Research.RateLimit, 0.001)
	assert.Equal(t, 2, cfg.Research.Workers)
	assert.Equal(t, 16, cfg.Research.QueueSize)
	assert.False(t, cfg.Research.CrawlCitations)
	assert.Equal(t, 3, cfg.Scrape.AuthFailureThreshold)
	assert.Equal(t, 45, cfg.Scrape.CooldownMins)
	assert.Equal(t, "linkedin.com", cfg.Scrape.SocialSite)
	assert.Equal(t, "https://api.perplexity.ai", cfg.Perplexity.BaseURL)
	assert.Equal(t, "sonar-pro", cfg.Perplexity.Model)
	assert.Equal(t, "https://r.jina.ai", cfg.Jina.BaseURL)
	assert.Equal(t, "https://s.jina.ai", cfg.Jina.SearchBaseURL)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, int64(1024), cfg.Anthropic.MaxTokens)
}

func TestLoadFromYAML(t *testing.T) {
	chTempDir(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/partners
log:
  level: debug
  format: console
server:
  port: 9090
research:
  workers: 4
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/partners", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Research.Workers)
	// Defaults still apply for unset values
	assert.Equal(t, 16, cfg.Research.QueueSize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	chTempDir(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	dir, _ := os.Getwd()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("PARTNER_STORE_DRIVER", "postgres")
	t.Setenv("PARTNER_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chTempDir(t)

	t.Setenv("PARTNER_SERVER_PORT", "3000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestResearchConfigConversions(t *testing.T) {
	r := ResearchConfig{
		Enabled:           true,
		GlobalTimeoutSecs: 90,
		RateLimit:         3,
		Workers:           4,
		QueueSize:         8,
	}

	orch := r.Orchestrator()
	assert.Equal(t, 90*time.Second, orch.GlobalTimeout)
	assert.InDelta(t, 3, orch.RateLimit, 0.001)

	run := r.Runner()
	assert.True(t, run.Enabled)
	assert.Equal(t, 4, run.Workers)
	assert.Equal(t, 8, run.QueueSize)
}

func TestScrapePoolOptions(t *testing.T) {
	s := ScrapeConfig{AuthFailureThreshold: 5, CooldownMins: 30}
	opts := s.PoolOptions()
	assert.Equal(t, 5, opts.AuthFailureThreshold)
	assert.Equal(t, 30*time.Minute, opts.Cooldown)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with the fields validation depends on.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = "test.db"
	cfg.Research.GlobalTimeoutSecs = 150
	cfg.Research.RateLimit = 5
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateResearch_OK(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("research"))
}

func TestValidateResearch_PostgresNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("research")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateResearch_BadDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("research")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
}

func TestValidateIntro_MissingKey(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("intro")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key is required")

	cfg.Anthropic.Key = "sk-ant-key"
	assert.NoError(t, cfg.Validate("intro"))
}

func TestValidatePublish_MissingNotion(t *testing.T) {
	cfg := validDefaults()

	err := cfg.Validate("publish")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "notion.token is required")
	assert.Contains(t, err.Error(), "notion.directory_db is required")

	cfg.Notion.Token = "ntn_token"
	cfg.Notion.DirectoryDB = "directory-db-id"
	assert.NoError(t, cfg.Validate("publish"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
