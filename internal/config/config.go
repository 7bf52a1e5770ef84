package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DevJWTSecret signs tokens when no secret is configured outside production
const DevJWTSecret = "insurai-development-signing-secret-change-me"

// Config represents the application configuration
type Config struct {
	Environment   string              `mapstructure:"environment"`
	Server        ServerConfig        `mapstructure:"server"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Store         StoreConfig         `mapstructure:"store"`
	Reporting     ReportingConfig     `mapstructure:"reporting"`
	Audit         AuditConfig         `mapstructure:"audit"`
	Monitoring    MonitoringConfig    `mapstructure:"monitoring"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	HTTPPort        int           `mapstructure:"http_port"`
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"` // websocket origins, empty allows any
}

// LoggingConfig contains logger settings
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// AuthConfig contains token issuing settings
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// NotificationsConfig contains notification delivery settings
type NotificationsConfig struct {
	SendOnSubmit bool        `mapstructure:"send_on_submit"`
	QueueSize    int         `mapstructure:"queue_size"`
	WorkerCount  int         `mapstructure:"worker_count"`
	HRRecipients []Recipient `mapstructure:"hr_recipients"`
	Email        EmailConfig `mapstructure:"email"`
}

// Recipient is a named email destination
type Recipient struct {
	Name  string `mapstructure:"name"`
	Email string `mapstructure:"email"`
}

// EmailConfig contains email notification configuration
type EmailConfig struct {
	Provider        string        `mapstructure:"provider"` // log, sendgrid
	SendGridAPIKey  string        `mapstructure:"sendgrid_api_key"`
	FromAddress     string        `mapstructure:"from_address"`
	FromName        string        `mapstructure:"from_name"`
	Timeout         time.Duration `mapstructure:"timeout"`
	RateLimitPerMin int           `mapstructure:"rate_limit_per_min"`
	Burst           int           `mapstructure:"burst"`
}

// SchedulerConfig contains periodic task settings
type SchedulerConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	DigestSchedule string `mapstructure:"digest_schedule"` // cron spec with seconds
	Timezone       string `mapstructure:"timezone"`
}

// StoreConfig contains in-memory store settings
type StoreConfig struct {
	SeedDemoData bool   `mapstructure:"seed_demo_data"`
	SeedFile     string `mapstructure:"seed_file"`
}

// ReportingConfig contains report export settings
type ReportingConfig struct {
	DefaultFormat string `mapstructure:"default_format"`
	SheetName     string `mapstructure:"sheet_name"`
	PDFFont       string `mapstructure:"pdf_font"`
}

// AuditConfig contains audit trail settings
type AuditConfig struct {
	MaxEntries int `mapstructure:"max_entries"`
}

// MonitoringConfig contains metrics settings
type MonitoringConfig struct {
	EnableMetrics bool   `mapstructure:"enable_metrics"`
	MetricsPath   string `mapstructure:"metrics_path"`
}

// LoadConfig loads configuration from file and environment variables.
// An empty path loads defaults and environment only.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INSURAI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{})

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	// Auth defaults
	v.SetDefault("auth.jwt_secret", DevJWTSecret)
	v.SetDefault("auth.issuer", "insurai")
	v.SetDefault("auth.token_ttl", "8h")

	// Notification defaults
	v.SetDefault("notifications.send_on_submit", true)
	v.SetDefault("notifications.queue_size", 100)
	v.SetDefault("notifications.worker_count", 2)
	v.SetDefault("notifications.hr_recipients", []map[string]string{
		{"name": "HR Team", "email": "hr@company.com"},
	})
	v.SetDefault("notifications.email.provider", "log")
	v.SetDefault("notifications.email.sendgrid_api_key", "")
	v.SetDefault("notifications.email.from_address", "compliance@insurai.local")
	v.SetDefault("notifications.email.from_name", "InsurAI Compliance System")
	v.SetDefault("notifications.email.timeout", "10s")
	v.SetDefault("notifications.email.rate_limit_per_min", 60)
	v.SetDefault("notifications.email.burst", 10)

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.digest_schedule", "0 0 9 * * MON-FRI")
	v.SetDefault("scheduler.timezone", "UTC")

	// Store defaults
	v.SetDefault("store.seed_demo_data", true)
	v.SetDefault("store.seed_file", "")

	// Reporting defaults
	v.SetDefault("reporting.default_format", "xlsx")
	v.SetDefault("reporting.sheet_name", "Compliance Records")
	v.SetDefault("reporting.pdf_font", "Arial")

	// Audit defaults
	v.SetDefault("audit.max_entries", 1000)

	// Monitoring defaults
	v.SetDefault("monitoring.enable_metrics", true)
	v.SetDefault("monitoring.metrics_path", "/metrics")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}

	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth token ttl must be positive")
	}

	if c.Environment == "production" && (len(c.Auth.JWTSecret) < 32 || c.Auth.JWTSecret == DevJWTSecret) {
		return fmt.Errorf("auth jwt_secret must be a custom secret of at least 32 characters in production")
	}

	switch c.Notifications.Email.Provider {
	case "log":
	case "sendgrid":
		if c.Notifications.Email.SendGridAPIKey == "" {
			return fmt.Errorf("sendgrid provider requires notifications.email.sendgrid_api_key")
		}
	default:
		return fmt.Errorf("unsupported email provider: %s", c.Notifications.Email.Provider)
	}

	if c.Notifications.QueueSize <= 0 || c.Notifications.WorkerCount <= 0 {
		return fmt.Errorf("notification queue_size and worker_count must be positive")
	}

	if c.Notifications.Email.RateLimitPerMin <= 0 {
		return fmt.Errorf("invalid email rate limit: %d", c.Notifications.Email.RateLimitPerMin)
	}

	for i, r := range c.Notifications.HRRecipients {
		if r.Email == "" {
			return fmt.Errorf("hr recipient %d has no email", i)
		}
	}

	switch c.Reporting.DefaultFormat {
	case "xlsx", "pdf", "csv":
	default:
		return fmt.Errorf("unsupported report format: %s", c.Reporting.DefaultFormat)
	}

	if c.Audit.MaxEntries <= 0 {
		return fmt.Errorf("audit max_entries must be positive")
	}

	return nil
}

// GetHTTPAddr returns the HTTP listen address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.HTTPPort)
}

// InitLogger initializes the logger based on configuration
func (c *Config) InitLogger() (*zap.Logger, error) {
	var config zap.Config
	if c.Logging.Development {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Logging.Level, err)
	}
	config.Level = zap.NewAtomicLevelAt(level)

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger.With(zap.String("environment", c.Environment)), nil
}
