package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	SecAPI      SecAPIConfig      `yaml:"secapi" mapstructure:"secapi"`
	Finnhub     FinnhubConfig     `yaml:"finnhub" mapstructure:"finnhub"`
	Extract     ExtractConfig     `yaml:"extract" mapstructure:"extract"`
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Artifact    ArtifactConfig    `yaml:"artifact" mapstructure:"artifact"`
	ObjectStore ObjectStoreConfig `yaml:"objectstore" mapstructure:"objectstore"`
	Events      EventsConfig      `yaml:"events" mapstructure:"events"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// SecAPIConfig holds sec-api.io extractor settings.
type SecAPIConfig struct {
	Token       string  `yaml:"token" mapstructure:"token"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst       int     `yaml:"burst" mapstructure:"burst"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// FinnhubConfig holds Finnhub API settings for the filings harvest.
type FinnhubConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	Years       int    `yaml:"years" mapstructure:"years"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// ExtractConfig configures the batch extraction run.
type ExtractConfig struct {
	SourceFile        string        `yaml:"source_file" mapstructure:"source_file"`
	OverridesFile     string        `yaml:"overrides_file" mapstructure:"overrides_file"`
	Sections          []string      `yaml:"sections" mapstructure:"sections"`
	MaxCompanies      int           `yaml:"max_companies" mapstructure:"max_companies"`
	MaxAttempts       int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	MinContentLength  int           `yaml:"min_content_length" mapstructure:"min_content_length"`
	ProcessingBackoff time.Duration `yaml:"processing_backoff" mapstructure:"processing_backoff"`
	ErrorBackoff      time.Duration `yaml:"error_backoff" mapstructure:"error_backoff"`
	StepDelay         time.Duration `yaml:"step_delay" mapstructure:"step_delay"`
	EntityDelay       time.Duration `yaml:"entity_delay" mapstructure:"entity_delay"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ArtifactConfig configures local run artifacts.
type ArtifactConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ObjectStoreConfig configures the optional S3-compatible artifact copy.
type ObjectStoreConfig struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
	Region    string `yaml:"region" mapstructure:"region"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
}

// Enabled reports whether an object store is configured.
func (c ObjectStoreConfig) Enabled() bool {
	return c.Endpoint != "" && c.Bucket != ""
}

// EventsConfig configures the Kafka record stream.
type EventsConfig struct {
	Brokers []string `yaml:"brokers" mapstructure:"brokers"`
	Topic   string   `yaml:"topic" mapstructure:"topic"`
}

// ServerConfig configures the read API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// EnvFiles are loaded before the environment is read. Variables already set
// are never overridden, so earlier files win.
var EnvFiles = []string{".env", ".env.local", "vesto-app/.env", "vesto-app/.env.local"}

// LoadEnvFiles loads every existing file of EnvFiles and returns the ones
// that were found.
func LoadEnvFiles() ([]string, error) {
	var loaded []string
	for _, f := range EnvFiles {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return loaded, eris.Wrapf(err, "config: load %s", f)
		}
		loaded = append(loaded, f)
	}
	return loaded, nil
}

// legacyEnv maps keys to additional variable names honored after the
// TENK_ form.
var legacyEnv = map[string][]string{
	"secapi.token":       {"SEC_API_KEY"},
	"finnhub.key":        {"FINNHUB_API_KEY"},
	"store.database_url": {"DATABASE_URL"},
}

// Load reads configuration from env files, config file and environment.
func Load() (*Config, error) {
	if _, err := LoadEnvFiles(); err != nil {
		return nil, err
	}

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TENK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		envKey := "TENK_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, envKey}, names...)...); err != nil {
			return nil, eris.Wrapf(err, "config: bind %s", key)
		}
	}

	// Defaults
	v.SetDefault("secapi.base_url", "https://api.sec-api.io/extractor")
	v.SetDefault("secapi.rate_limit", 2.0)
	v.SetDefault("secapi.burst", 1)
	v.SetDefault("secapi.timeout_secs", 30)
	v.SetDefault("finnhub.base_url", "https://finnhub.io/api/v1")
	v.SetDefault("finnhub.years", 3)
	v.SetDefault("finnhub.concurrency", 4)
	v.SetDefault("extract.source_file", "vesto_finnhub_20_companies.json")
	v.SetDefault("extract.overrides_file", "")
	v.SetDefault("extract.sections", []string{})
	v.SetDefault("extract.max_companies", 10)
	v.SetDefault("extract.max_attempts", 3)
	v.SetDefault("extract.min_content_length", 100)
	v.SetDefault("extract.processing_backoff", 500*time.Millisecond)
	v.SetDefault("extract.error_backoff", time.Second)
	v.SetDefault("extract.step_delay", 500*time.Millisecond)
	v.SetDefault("extract.entity_delay", time.Second)
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "tenk.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("artifact.dir", ".")
	v.SetDefault("objectstore.endpoint", "")
	v.SetDefault("objectstore.access_key", "")
	v.SetDefault("objectstore.secret_key", "")
	v.SetDefault("objectstore.bucket", "")
	v.SetDefault("objectstore.region", "us-east-1")
	v.SetDefault("objectstore.prefix", "tenk")
	v.SetDefault("objectstore.use_ssl", true)
	v.SetDefault("events.brokers", []string{})
	v.SetDefault("events.topic", "tenk.extractions")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings required by a command mode: "extract",
// "filings", "migrate" or "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "extract":
		if c.SecAPI.Token == "" {
			errs = append(errs, "secapi.token is required")
		}
		if c.Extract.MaxAttempts < 1 {
			errs = append(errs, "extract.max_attempts must be >= 1")
		}
		if c.Extract.MaxCompanies < 1 {
			errs = append(errs, "extract.max_companies must be >= 1")
		}
		if c.Extract.MinContentLength < 0 {
			errs = append(errs, "extract.min_content_length must be >= 0")
		}
		if c.Extract.StepDelay < 0 || c.Extract.EntityDelay < 0 ||
			c.Extract.ProcessingBackoff < 0 || c.Extract.ErrorBackoff < 0 {
			errs = append(errs, "extract delays must be >= 0")
		}
	case "filings":
		if c.Finnhub.Key == "" {
			errs = append(errs, "finnhub.key is required")
		}
		if c.Finnhub.Years < 1 {
			errs = append(errs, "finnhub.years must be >= 1")
		}
		if c.Finnhub.Concurrency < 1 || c.Finnhub.Concurrency > 16 {
			errs = append(errs, "finnhub.concurrency must be between 1 and 16")
		}
	case "migrate":
		errs = append(errs, c.storeErrors()...)
	case "serve":
		errs = append(errs, c.storeErrors()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.New(fmt.Sprintf("config: %s", strings.Join(errs, "; ")))
	}
	return nil
}

func (c *Config) storeErrors() []string {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required for the postgres driver"}
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return []string{"store.sqlite_path is required for the sqlite driver"}
		}
	default:
		return []string{fmt.Sprintf("store.driver %q is not supported", c.Store.Driver)}
	}
	return nil
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
