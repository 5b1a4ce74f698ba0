package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Mail      MailConfig      `yaml:"mail" mapstructure:"mail"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Classify  ClassifyConfig  `yaml:"classify" mapstructure:"classify"`
	Timeline  TimelineConfig  `yaml:"timeline" mapstructure:"timeline"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Export    ExportConfig    `yaml:"export" mapstructure:"export"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// MailConfig holds IMAP connection settings and the fetch window.
type MailConfig struct {
	Host           string `yaml:"host" mapstructure:"host"`
	Port           int    `yaml:"port" mapstructure:"port"`
	Username       string `yaml:"username" mapstructure:"username"`
	Password       string `yaml:"password" mapstructure:"password"`
	Mailbox        string `yaml:"mailbox" mapstructure:"mailbox"`
	StartTLS       bool   `yaml:"starttls" mapstructure:"starttls"`
	LookbackDays   int    `yaml:"lookback_days" mapstructure:"lookback_days"`
	MaxMessages    int    `yaml:"max_messages" mapstructure:"max_messages"`
	RetryAttempts  int    `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMs int    `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
}

// AnthropicConfig holds Anthropic API settings. An empty key disables
// the AI tier; everything then runs on keyword rules alone.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
	MaxTokens   int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// NotionConfig holds Notion API credentials and the target database.
type NotionConfig struct {
	Token         string `yaml:"token" mapstructure:"token"`
	ApplicationDB string `yaml:"application_db" mapstructure:"application_db"`
}

// ClassifyConfig configures status classification behavior.
type ClassifyConfig struct {
	// AcceptThreshold is the minimum AI confidence, exclusive, for an
	// AI verdict to replace the rule verdict.
	AcceptThreshold float64 `yaml:"accept_threshold" mapstructure:"accept_threshold"`
	// EscalationThreshold routes a message to the AI tier when the
	// rule verdict's confidence falls below it.
	EscalationThreshold float64 `yaml:"escalation_threshold" mapstructure:"escalation_threshold"`
	// KeywordsFile optionally points at a YAML file overriding the
	// built-in keyword families.
	KeywordsFile       string `yaml:"keywords_file" mapstructure:"keywords_file"`
	MaxBodyChars       int    `yaml:"max_body_chars" mapstructure:"max_body_chars"`
	ComplexityMinChars int    `yaml:"complexity_min_chars" mapstructure:"complexity_min_chars"`
}

// TimelineConfig configures timeline building.
type TimelineConfig struct {
	// AIBudget caps how many observations per merge get AI analysis,
	// newest first. Zero disables the AI tier for timelines.
	AIBudget               int     `yaml:"ai_budget" mapstructure:"ai_budget"`
	AuthoritativeThreshold float64 `yaml:"authoritative_threshold" mapstructure:"authoritative_threshold"`
}

// ReconcileConfig configures merge behavior.
type ReconcileConfig struct {
	MatchThreshold      float64 `yaml:"match_threshold" mapstructure:"match_threshold"`
	AutoApplyConfidence float64 `yaml:"auto_apply_confidence" mapstructure:"auto_apply_confidence"`
	AutoApplyMinSources int     `yaml:"auto_apply_min_sources" mapstructure:"auto_apply_min_sources"`
	ThrottleMaxAttempts int     `yaml:"throttle_max_attempts" mapstructure:"throttle_max_attempts"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// ExportConfig configures spreadsheet export.
type ExportConfig struct {
	Path  string `yaml:"path" mapstructure:"path"`
	Sheet string `yaml:"sheet" mapstructure:"sheet"`
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
	v.SetEnvPrefix("APPTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. AutomaticEnv only binds keys viper already knows, so
	// settings without a meaningful default (credentials, hosts) are
	// registered empty.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "apptrack.db")
	v.SetDefault("mail.host", "")
	v.SetDefault("mail.port", 993)
	v.SetDefault("mail.username", "")
	v.SetDefault("mail.password", "")
	v.SetDefault("mail.mailbox", "INBOX")
	v.SetDefault("mail.starttls", false)
	v.SetDefault("mail.lookback_days", 90)
	v.SetDefault("mail.max_messages", 200)
	v.SetDefault("mail.retry_attempts", 3)
	v.SetDefault("mail.retry_backoff_ms", 500)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.application_db", "")
	v.SetDefault("classify.accept_threshold", 0.7)
	v.SetDefault("classify.escalation_threshold", 0.8)
	v.SetDefault("classify.keywords_file", "")
	v.SetDefault("classify.max_body_chars", 4000)
	v.SetDefault("classify.complexity_min_chars", 1500)
	v.SetDefault("timeline.ai_budget", 5)
	v.SetDefault("timeline.authoritative_threshold", 0.7)
	v.SetDefault("reconcile.match_threshold", 0.8)
	v.SetDefault("reconcile.auto_apply_confidence", 0.8)
	v.SetDefault("reconcile.auto_apply_min_sources", 2)
	v.SetDefault("reconcile.throttle_max_attempts", 3)
	v.SetDefault("server.port", 8080)
	v.SetDefault("export.path", "applications.xlsx")
	v.SetDefault("export.sheet", "Applications")
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

// Validate checks the settings a command needs before it starts.
// Recognized modes: sync, suggest, records, export, serve.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "sync", "suggest", "serve", "records", "export":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Store.Driver != "sqlite" && c.Store.Driver != "postgres" {
		problems = append(problems, fmt.Sprintf("store.driver must be sqlite or postgres, got %q", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}

	for name, val := range map[string]float64{
		"classify.accept_threshold":        c.Classify.AcceptThreshold,
		"classify.escalation_threshold":    c.Classify.EscalationThreshold,
		"timeline.authoritative_threshold": c.Timeline.AuthoritativeThreshold,
		"reconcile.match_threshold":        c.Reconcile.MatchThreshold,
		"reconcile.auto_apply_confidence":  c.Reconcile.AutoApplyConfidence,
	} {
		if val < 0 || val > 1 {
			problems = append(problems, fmt.Sprintf("%s must be between 0 and 1", name))
		}
	}

	if c.Timeline.AIBudget < 0 {
		problems = append(problems, "timeline.ai_budget must be >= 0")
	}
	if c.Reconcile.AutoApplyMinSources < 1 {
		problems = append(problems, "reconcile.auto_apply_min_sources must be >= 1")
	}
	if c.Reconcile.ThrottleMaxAttempts < 1 {
		problems = append(problems, "reconcile.throttle_max_attempts must be >= 1")
	}
	if c.Mail.LookbackDays < 1 || c.Mail.LookbackDays > 365 {
		problems = append(problems, "mail.lookback_days must be between 1 and 365")
	}

	switch mode {
	case "sync", "suggest":
		if c.Mail.Host == "" {
			problems = append(problems, "mail.host is required")
		}
		if c.Mail.Username == "" {
			problems = append(problems, "mail.username is required")
		}
		if c.Mail.Password == "" {
			problems = append(problems, "mail.password is required")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0")
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
