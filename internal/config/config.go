package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/leadgen-cli/internal/cost"
)

// Config holds the full application configuration. It is built once at
// process entry and passed by reference into the pipeline and each
// collaborator constructor.
type Config struct {
	Apify      ApifyConfig      `yaml:"apify" mapstructure:"apify"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Scrape     ScrapeConfig     `yaml:"scrape" mapstructure:"scrape"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	Export     ExportConfig     `yaml:"export" mapstructure:"export"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" mapstructure:"checkpoint"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Costs      cost.Rates       `yaml:"costs" mapstructure:"costs"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// ApifyConfig holds Apify API credentials and the Google Maps actor ID.
type ApifyConfig struct {
	Token   string `yaml:"token" mapstructure:"token"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	ActorID string `yaml:"actor_id" mapstructure:"actor_id"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// ScrapeConfig configures the Google Maps scrape stage.
type ScrapeConfig struct {
	Language         string `yaml:"language" mapstructure:"language"`
	SkipClosed       bool   `yaml:"skip_closed" mapstructure:"skip_closed"`
	ScrapeContacts   bool   `yaml:"scrape_contacts" mapstructure:"scrape_contacts"`
	PollIntervalSecs int    `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	MaxWaitCapSecs   int    `yaml:"max_wait_cap_secs" mapstructure:"max_wait_cap_secs"`
}

// EnrichConfig configures the Perplexity enrichment stage.
type EnrichConfig struct {
	RateLimitDelayMillis int `yaml:"rate_limit_delay_millis" mapstructure:"rate_limit_delay_millis"`
	MaxAttempts          int `yaml:"max_attempts" mapstructure:"max_attempts"`
	BackoffBaseSecs      int `yaml:"backoff_base_secs" mapstructure:"backoff_base_secs"`
}

// ExportConfig configures the spreadsheet export stage.
type ExportConfig struct {
	LockRetries  int `yaml:"lock_retries" mapstructure:"lock_retries"`
	LockWaitSecs int `yaml:"lock_wait_secs" mapstructure:"lock_wait_secs"`
}

// CheckpointConfig configures checkpoint persistence.
type CheckpointConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// StoreConfig configures the run history database.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the web UI server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("LEADGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Secrets default to empty so the env binding is registered.
	v.SetDefault("apify.token", "")
	v.SetDefault("perplexity.key", "")
	v.SetDefault("apify.base_url", "https://api.apify.com/v2")
	v.SetDefault("apify.actor_id", "compass/crawler-google-places")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar")
	v.SetDefault("scrape.language", "en")
	v.SetDefault("scrape.skip_closed", true)
	v.SetDefault("scrape.scrape_contacts", true)
	v.SetDefault("scrape.poll_interval_secs", 10)
	v.SetDefault("scrape.max_wait_cap_secs", 600)
	v.SetDefault("enrich.rate_limit_delay_millis", 1200)
	v.SetDefault("enrich.max_attempts", 3)
	v.SetDefault("enrich.backoff_base_secs", 2)
	v.SetDefault("costs.apify.per_place", 0.004)
	v.SetDefault("costs.perplexity.per_query", 0.005)
	v.SetDefault("export.lock_retries", 3)
	v.SetDefault("export.lock_wait_secs", 3)
	v.SetDefault("checkpoint.dir", ".tmp")
	v.SetDefault("store.path", "leadgen.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Dump renders the effective configuration as YAML with secrets redacted.
func (c *Config) Dump() (string, error) {
	redacted := *c
	if redacted.Apify.Token != "" {
		redacted.Apify.Token = "<redacted>"
	}
	if redacted.Perplexity.Key != "" {
		redacted.Perplexity.Key = "<redacted>"
	}

	out, err := yaml.Marshal(&redacted)
	if err != nil {
		return "", eris.Wrap(err, "config: marshal yaml")
	}
	return string(out), nil
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
