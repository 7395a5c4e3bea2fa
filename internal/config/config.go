package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// PersistHeadroomSecs is the part of the request timeout reserved for the
// store writes that follow a slow scrape and narrative.
const PersistHeadroomSecs = 10

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	RateLimit  RateLimitConfig  `yaml:"ratelimit" mapstructure:"ratelimit"`
	Firecrawl  FirecrawlConfig  `yaml:"firecrawl" mapstructure:"firecrawl"`
	Narrative  NarrativeConfig  `yaml:"narrative" mapstructure:"narrative"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Email      EmailConfig      `yaml:"email" mapstructure:"email"`
	HubSpot    HubSpotConfig    `yaml:"hubspot" mapstructure:"hubspot"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Admin      AdminConfig      `yaml:"admin" mapstructure:"admin"`
	Site       SiteConfig       `yaml:"site" mapstructure:"site"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port            int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins  []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RequestTimeout  int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	ShutdownTimeout int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	Buffer int    `yaml:"buffer" mapstructure:"buffer"`
}

// RateLimitConfig selects where rate-limit counters live.
type RateLimitConfig struct {
	Backend  string `yaml:"backend" mapstructure:"backend"`
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`
	Prefix   string `yaml:"prefix" mapstructure:"prefix"`
}

// FirecrawlConfig holds Firecrawl API settings.
type FirecrawlConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// NarrativeConfig picks the LLM provider for generated insights.
type NarrativeConfig struct {
	Provider    string `yaml:"provider" mapstructure:"provider"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// GeminiConfig holds Google Gemini settings.
type GeminiConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// EmailConfig configures outbound mail. Resend wins over SMTP when both are
// set; with neither, sends are simulated.
type EmailConfig struct {
	ResendKey string `yaml:"resend_key" mapstructure:"resend_key"`
	SMTPHost  string `yaml:"smtp_host" mapstructure:"smtp_host"`
	SMTPPort  int    `yaml:"smtp_port" mapstructure:"smtp_port"`
	SMTPUser  string `yaml:"smtp_user" mapstructure:"smtp_user"`
	SMTPPass  string `yaml:"smtp_pass" mapstructure:"smtp_pass"`
	From      string `yaml:"from" mapstructure:"from"`
	FromName  string `yaml:"from_name" mapstructure:"from_name"`
	Operator  string `yaml:"operator" mapstructure:"operator"`
}

// HubSpotConfig holds the HubSpot private app token.
type HubSpotConfig struct {
	Key string `yaml:"key" mapstructure:"key"`
}

// SalesforceConfig holds Salesforce client credentials flow settings.
type SalesforceConfig struct {
	Domain       string  `yaml:"domain" mapstructure:"domain"`
	ClientID     string  `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string  `yaml:"client_secret" mapstructure:"client_secret"`
	RateLimit    float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// NotionConfig holds Notion API credentials and the lead mirror database ID.
type NotionConfig struct {
	Token  string `yaml:"token" mapstructure:"token"`
	LeadDB string `yaml:"lead_db" mapstructure:"lead_db"`
}

// AdminConfig holds the single admin account.
type AdminConfig struct {
	Email         string `yaml:"email" mapstructure:"email"`
	Password      string `yaml:"password" mapstructure:"password"`
	SessionSecret string `yaml:"session_secret" mapstructure:"session_secret"`
	SecureCookie  bool   `yaml:"secure_cookie" mapstructure:"secure_cookie"`
}

// SiteConfig holds public URLs used in emails.
type SiteConfig struct {
	SiteURL    string `yaml:"site_url" mapstructure:"site_url"`
	AppURL     string `yaml:"app_url" mapstructure:"app_url"`
	BookingURL string `yaml:"booking_url" mapstructure:"booking_url"`
}

// MonitoringConfig configures health alerting and IP blocking.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	BlockThreshold       int     `yaml:"block_threshold" mapstructure:"block_threshold"`
}

// envAliases binds the unprefixed variable names the deployment already uses.
// The first name listed wins when several are set.
var envAliases = map[string][]string{
	"store.database_url":     {"DATABASE_URL"},
	"ratelimit.redis_url":    {"REDIS_URL"},
	"firecrawl.key":          {"FIRECRAWL_API_KEY"},
	"gemini.key":             {"GEMINI_API_KEY", "GOOGLE_AI_API_KEY"},
	"anthropic.key":          {"ANTHROPIC_API_KEY"},
	"email.resend_key":       {"RESEND_API_KEY"},
	"email.smtp_host":        {"SMTP_HOST"},
	"email.smtp_port":        {"SMTP_PORT"},
	"email.smtp_user":        {"SMTP_USER"},
	"email.smtp_pass":        {"SMTP_PASS"},
	"email.from":             {"SMTP_FROM"},
	"hubspot.key":            {"HUBSPOT_API_KEY"},
	"admin.email":            {"ADMIN_EMAIL"},
	"admin.password":         {"ADMIN_PASSWORD"},
	"site.site_url":          {"NEXT_PUBLIC_SITE_URL"},
	"site.app_url":           {"NEXT_PUBLIC_APP_URL"},
	"monitoring.webhook_url": {"MONITORING_WEBHOOK_URL"},
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
	for key, names := range envAliases {
		prefixed := "LEADGEN_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(append([]string{key, prefixed}, names...)...); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "leadgen.db")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.request_timeout_secs", 60)
	v.SetDefault("server.shutdown_timeout_secs", 15)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.buffer", 1000)
	v.SetDefault("ratelimit.backend", "memory")
	v.SetDefault("ratelimit.prefix", "leadgen:ratelimit:")
	v.SetDefault("firecrawl.base_url", "https://api.firecrawl.dev/v1")
	v.SetDefault("firecrawl.timeout_secs", 20)
	v.SetDefault("narrative.provider", "gemini")
	v.SetDefault("narrative.timeout_secs", 25)
	v.SetDefault("gemini.model", "gemini-1.5-flash")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("email.smtp_port", 587)
	v.SetDefault("email.from", "hello@maruonline.com")
	v.SetDefault("email.from_name", "Maru Online")
	v.SetDefault("email.operator", "hello@maruonline.com")
	v.SetDefault("salesforce.rate_limit", 5)
	v.SetDefault("site.site_url", "https://maruonline.com")
	v.SetDefault("site.app_url", "http://localhost:3000")
	v.SetDefault("site.booking_url", "https://calendly.com/maruonline")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.2)
	v.SetDefault("monitoring.block_threshold", 50)

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

// Validate checks the settings a command strictly needs. Missing integration
// keys are never an error: those integrations degrade to fallbacks.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch {
	case mode == "score":
		// score runs without a database.
	case c.Store.Driver == "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
	case c.Store.Driver == "sqlite":
		if c.Store.SQLitePath == "" {
			problems = append(problems, "store.sqlite_path is required for the sqlite driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}

	switch mode {
	case "migrate", "leads", "score":
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0 and <= 65535")
		}
		switch c.RateLimit.Backend {
		case "memory":
		case "postgres":
			if c.Store.Driver != "postgres" {
				problems = append(problems, "ratelimit.backend postgres requires store.driver postgres")
			}
		case "redis":
			if c.RateLimit.RedisURL == "" {
				problems = append(problems, "ratelimit.redis_url is required for the redis backend")
			}
		default:
			problems = append(problems, fmt.Sprintf("ratelimit.backend %q must be memory, postgres or redis", c.RateLimit.Backend))
		}
		problems = append(problems, c.timeoutProblems()...)
		if t := c.Monitoring.FailureRateThreshold; t < 0 || t > 1 {
			problems = append(problems, "monitoring.failure_rate_threshold must be between 0 and 1")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Narrative.Provider {
	case "gemini", "anthropic", "none":
	default:
		problems = append(problems, fmt.Sprintf("narrative.provider %q must be gemini, anthropic or none", c.Narrative.Provider))
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// timeoutProblems checks that a scrape and a narrative that both run to their
// limits still leave PersistHeadroomSecs of the request timeout for the store.
func (c *Config) timeoutProblems() []string {
	var problems []string
	if c.Server.RequestTimeout <= 0 {
		problems = append(problems, "server.request_timeout_secs must be > 0")
	}
	if c.Firecrawl.TimeoutSecs <= 0 {
		problems = append(problems, "firecrawl.timeout_secs must be > 0")
	}
	if c.Narrative.TimeoutSecs <= 0 {
		problems = append(problems, "narrative.timeout_secs must be > 0")
	}
	if len(problems) > 0 {
		return problems
	}
	if budget := c.Firecrawl.TimeoutSecs + c.Narrative.TimeoutSecs + PersistHeadroomSecs; budget > c.Server.RequestTimeout {
		problems = append(problems, fmt.Sprintf(
			"firecrawl.timeout_secs (%d) + narrative.timeout_secs (%d) must leave %ds of server.request_timeout_secs (%d)",
			c.Firecrawl.TimeoutSecs, c.Narrative.TimeoutSecs, PersistHeadroomSecs, c.Server.RequestTimeout))
	}
	return problems
}

// InitLogger initializes the global zap logger. Extra cores (the monitoring
// log buffer) are tee'd in alongside the encoder output.
func InitLogger(cfg LogConfig, extra ...zapcore.Core) error {
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

	var opts []zap.Option
	if len(extra) > 0 {
		opts = append(opts, zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(append([]zapcore.Core{c}, extra...)...)
		}))
	}

	logger, err := zapCfg.Build(opts...)
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
