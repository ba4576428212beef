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

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.sec-api.io/extractor", cfg.SecAPI.BaseURL)
	assert.Equal(t, 30, cfg.SecAPI.TimeoutSecs)
	assert.Equal(t, "https://finnhub.io/api/v1", cfg.Finnhub.BaseURL)
	assert.Equal(t, 3, cfg.Finnhub.Years)
	assert.Equal(t, "vesto_finnhub_20_companies.json", cfg.Extract.SourceFile)
	assert.Equal(t, 10, cfg.Extract.MaxCompanies)
	assert.Equal(t, 3, cfg.Extract.MaxAttempts)
	assert.Equal(t, 100, cfg.Extract.MinContentLength)
	assert.Equal(t, 500*time.Millisecond, cfg.Extract.ProcessingBackoff)
	assert.Equal(t, time.Second, cfg.Extract.ErrorBackoff)
	assert.Equal(t, 500*time.Millisecond, cfg.Extract.StepDelay)
	assert.Equal(t, time.Second, cfg.Extract.EntityDelay)
	assert.Empty(t, cfg.Extract.Sections)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(4), cfg.Store.MaxConns)
	assert.Equal(t, ".", cfg.Artifact.Dir)
	assert.False(t, cfg.ObjectStore.Enabled())
	assert.Empty(t, cfg.Events.Brokers)
	assert.Equal(t, "tenk.extractions", cfg.Events.Topic)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  sqlite_path: data/tenk.db
log:
  level: debug
  format: console
extract:
  sections: ["1A", "7"]
  step_delay: 2s
objectstore:
  endpoint: localhost:9000
  bucket: filings
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "data/tenk.db", cfg.Store.SQLitePath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, []string{"1A", "7"}, cfg.Extract.Sections)
	assert.Equal(t, 2*time.Second, cfg.Extract.StepDelay)
	assert.True(t, cfg.ObjectStore.Enabled())
	// Defaults still apply for unset values
	assert.Equal(t, time.Second, cfg.Extract.EntityDelay)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
extract:
  max_companies: 5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("TENK_STORE_DRIVER", "postgres")
	t.Setenv("TENK_EXTRACT_MAX_COMPANIES", "20")
	t.Setenv("TENK_EXTRACT_ENTITY_DELAY", "250ms")
	t.Setenv("TENK_EVENTS_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 20, cfg.Extract.MaxCompanies)
	assert.Equal(t, 250*time.Millisecond, cfg.Extract.EntityDelay)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Events.Brokers)
}

func TestLoadLegacyEnvNames(t *testing.T) {
	chdirTemp(t)

	t.Setenv("FINNHUB_API_KEY", "legacy-finnhub")
	t.Setenv("SEC_API_KEY", "legacy-secapi")
	t.Setenv("TENK_SECAPI_TOKEN", "preferred-secapi")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "legacy-finnhub", cfg.Finnhub.Key)
	assert.Equal(t, "preferred-secapi", cfg.SecAPI.Token)
}

func TestLoadEnvFiles(t *testing.T) {
	dir := chdirTemp(t)
	t.Cleanup(func() {
		os.Unsetenv("TENK_SERVER_PORT")
		os.Unsetenv("TENK_LOG_FORMAT")
	})

	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("TENK_SERVER_PORT=7070\n"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "vesto-app"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vesto-app", ".env.local"),
		[]byte("TENK_SERVER_PORT=6060\nTENK_LOG_FORMAT=console\n"), 0644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "console", cfg.Log.Format)

	loaded, err := LoadEnvFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{".env", "vesto-app/.env.local"}, loaded)
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

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.SecAPI.Token = "token"
	cfg.Finnhub.Key = "key"
	cfg.Finnhub.Years = 3
	cfg.Finnhub.Concurrency = 4
	cfg.Extract.MaxCompanies = 10
	cfg.Extract.MaxAttempts = 3
	cfg.Extract.MinContentLength = 100
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/test"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_AllModesPass(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"extract", "filings", "migrate", "serve"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidateExtract_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.SecAPI.Token = ""
	cfg.Extract.MaxAttempts = 0
	cfg.Extract.StepDelay = -time.Second

	err := cfg.Validate("extract")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secapi.token is required")
	assert.Contains(t, err.Error(), "extract.max_attempts must be >= 1")
	assert.Contains(t, err.Error(), "extract delays must be >= 0")
}

func TestValidateFilings(t *testing.T) {
	cfg := validDefaults()
	cfg.Finnhub.Key = ""
	cfg.Finnhub.Concurrency = 17

	err := cfg.Validate("filings")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "finnhub.key is required")
	assert.Contains(t, err.Error(), "finnhub.concurrency must be between 1 and 16")
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""
	err := cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url")

	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = "tenk.db"
	assert.NoError(t, cfg.Validate("migrate"))

	cfg.Store.Driver = "mysql"
	err = cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")
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
