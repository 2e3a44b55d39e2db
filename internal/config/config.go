package config

import (
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Apollo    ApolloConfig    `yaml:"apollo" mapstructure:"apollo"`
	Patents   PatentsConfig   `yaml:"patents" mapstructure:"patents"`
	FDA       FDAConfig       `yaml:"fda" mapstructure:"fda"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Approval  ApprovalConfig  `yaml:"approval" mapstructure:"approval"`
	Scheduler SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key              string `yaml:"key" mapstructure:"key"`
	ScoringModel     string `yaml:"scoring_model" mapstructure:"scoring_model"`
	ResearchModel    string `yaml:"research_model" mapstructure:"research_model"`
	MaxTokens        int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	ScoringMaxTokens int64  `yaml:"scoring_max_tokens" mapstructure:"scoring_max_tokens"`
	WebSearchMaxUses int64  `yaml:"web_search_max_uses" mapstructure:"web_search_max_uses"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SearchConfig holds Exa search settings.
type SearchConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	NumResults    int    `yaml:"num_results" mapstructure:"num_results"`
	MaxCharacters int    `yaml:"max_characters" mapstructure:"max_characters"`
}

// ApolloConfig holds Apollo enrichment settings.
type ApolloConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// RateLimit is requests per second for people search.
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// PatentsConfig holds PatentsView settings.
type PatentsConfig struct {
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Limit   int    `yaml:"limit" mapstructure:"limit"`
}

// FDAConfig holds openFDA settings. Key is optional.
type FDAConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Limit   int    `yaml:"limit" mapstructure:"limit"`
}

// PipelineConfig holds the tunable thresholds of the discovery pipeline.
type PipelineConfig struct {
	ResearchBatchSize        int     `yaml:"research_batch_size" mapstructure:"research_batch_size"`
	MinKeepScore             int     `yaml:"min_keep_score" mapstructure:"min_keep_score"`
	AutoApproveMinScore      int     `yaml:"auto_approve_min_score" mapstructure:"auto_approve_min_score"`
	ConfidenceFloor          string  `yaml:"confidence_floor" mapstructure:"confidence_floor"`
	IPUpsideRevenueThreshold float64 `yaml:"ip_upside_revenue_threshold" mapstructure:"ip_upside_revenue_threshold"`
	MaxRevenue               float64 `yaml:"max_revenue" mapstructure:"max_revenue"`
	MinReportChars           int     `yaml:"min_report_chars" mapstructure:"min_report_chars"`
	IPUpsideMinPatents       int     `yaml:"ip_upside_min_patents" mapstructure:"ip_upside_min_patents"`
	// ScoringRate is LLM scoring calls per second.
	ScoringRate float64 `yaml:"scoring_rate" mapstructure:"scoring_rate"`
}

// ApprovalConfig configures the auto-approval gate.
type ApprovalConfig struct {
	EnforceConfiguredRules bool `yaml:"enforce_configured_rules" mapstructure:"enforce_configured_rules"`
}

// SchedulerConfig configures cron dispatch.
type SchedulerConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Timezone string `yaml:"timezone" mapstructure:"timezone"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// RetryConfig configures retries for transient API failures.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("DEALS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "deals.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("anthropic.scoring_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.research_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 8000)
	v.SetDefault("anthropic.scoring_max_tokens", 1024)
	v.SetDefault("anthropic.web_search_max_uses", 10)
	v.SetDefault("anthropic.timeout_secs", 300)
	v.SetDefault("search.base_url", "https://api.exa.ai")
	v.SetDefault("search.num_results", 35)
	v.SetDefault("search.max_characters", 1000)
	v.SetDefault("apollo.base_url", "https://api.apollo.io/api")
	v.SetDefault("apollo.rate_limit", 1.0)
	v.SetDefault("patents.base_url", "https://api.patentsview.org")
	v.SetDefault("patents.limit", 10)
	v.SetDefault("fda.base_url", "https://api.fda.gov")
	v.SetDefault("fda.limit", 10)
	v.SetDefault("pipeline.research_batch_size", 3)
	v.SetDefault("pipeline.min_keep_score", 3)
	v.SetDefault("pipeline.auto_approve_min_score", 6)
	v.SetDefault("pipeline.confidence_floor", "Low")
	v.SetDefault("pipeline.ip_upside_revenue_threshold", 10_000_000)
	v.SetDefault("pipeline.max_revenue", 150_000_000)
	v.SetDefault("pipeline.min_report_chars", 100)
	v.SetDefault("pipeline.ip_upside_min_patents", 1)
	v.SetDefault("pipeline.scoring_rate", 2.0)
	v.SetDefault("approval.enforce_configured_rules", false)
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 15000)

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

// Validate checks that the settings required by the given mode are present.
// Modes: "serve", "run", "migrate", "export".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve":
		errs = append(errs, c.storeErrors()...)
		errs = append(errs, c.MissingCredentials()...)
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "run":
		errs = append(errs, c.storeErrors()...)
		errs = append(errs, c.MissingCredentials()...)
	case "migrate", "export":
		errs = append(errs, c.storeErrors()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Pipeline.ResearchBatchSize < 1 || c.Pipeline.ResearchBatchSize > 20 {
		errs = append(errs, "pipeline.research_batch_size must be between 1 and 20")
	}
	if c.Pipeline.AutoApproveMinScore < 1 || c.Pipeline.AutoApproveMinScore > 10 {
		errs = append(errs, "pipeline.auto_approve_min_score must be between 1 and 10")
	}
	switch c.Pipeline.ConfidenceFloor {
	case "High", "Medium", "Low":
	default:
		errs = append(errs, "pipeline.confidence_floor must be High, Medium, or Low")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) storeErrors() []string {
	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return []string{"store.sqlite_path is required"}
		}
	default:
		return []string{"store.driver must be postgres or sqlite"}
	}
	return nil
}

// MissingCredentials lists the required API keys that are not set.
func (c *Config) MissingCredentials() []string {
	var missing []string
	if c.Anthropic.Key == "" {
		missing = append(missing, "anthropic.key is required")
	}
	if c.Search.Key == "" {
		missing = append(missing, "search.key is required")
	}
	if c.Apollo.Key == "" {
		missing = append(missing, "apollo.key is required")
	}
	return missing
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
