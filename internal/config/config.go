package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/knpiano/knbatch/pkg/tasks"
)

// Catalogue sources
const (
	SourcePostgres = "postgres"
	SourceFile     = "file"
)

type Config struct {
	Environment string          `mapstructure:"environment"`
	Server      ServerConfig    `mapstructure:"server"`
	Database    DatabaseConfig  `mapstructure:"database"`
	Catalogue   CatalogueConfig `mapstructure:"catalogue"`
	Scheduler   SchedulerConfig `mapstructure:"scheduler"`
	Mail        MailConfig      `mapstructure:"mail"`
	NATS        NATSConfig      `mapstructure:"nats"`
	Metrics     MetricsConfig   `mapstructure:"metrics"`
	Tasks       TasksConfig     `mapstructure:"tasks"`
}

type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    string `mapstructure:"port"`
}

type DatabaseConfig struct {
	// URL wins over the individual fields when set
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

type CatalogueConfig struct {
	Source string `mapstructure:"source"`
	File   string `mapstructure:"file"`
}

// CronDescription maps one cron expression to display text. It is a list
// entry rather than a map key because cron expressions do not survive
// viper's key normalisation.
type CronDescription struct {
	Expression  string `mapstructure:"expression"`
	Description string `mapstructure:"description"`
}

type SchedulerConfig struct {
	PoolSize         int               `mapstructure:"pool_size"`
	DrainTimeout     time.Duration     `mapstructure:"drain_timeout"`
	TimeZone         string            `mapstructure:"time_zone"`
	CronDescriptions []CronDescription `mapstructure:"cron_descriptions"`
}

type SMTPConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	Username         string        `mapstructure:"username"`
	Password         string        `mapstructure:"password"`
	TLS              string        `mapstructure:"tls"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
}

type MailConfig struct {
	Enabled               bool       `mapstructure:"enabled"`
	From                  string     `mapstructure:"from"`
	Maintainers           []string   `mapstructure:"maintainers"`
	SendOnSuccess         bool       `mapstructure:"send_on_success"`
	SendOnFailure         bool       `mapstructure:"send_on_failure"`
	ProductionEnvironment string     `mapstructure:"production_environment"`
	SMTP                  SMTPConfig `mapstructure:"smtp"`
}

type NATSConfig struct {
	URL  string `mapstructure:"url"`
	Name string `mapstructure:"name"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type TasksConfig struct {
	Corrections []tasks.CorrectionSpec `mapstructure:"corrections"`
}

// SetDefaults configures default values for all configuration options. Every
// key gets one, even if empty, so AutomaticEnv can override it on Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", "8080")

	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.user", "knbatch")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "knpiano")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 8)

	v.SetDefault("catalogue.source", SourcePostgres)
	v.SetDefault("catalogue.file", "jobs.yaml")

	v.SetDefault("scheduler.pool_size", 5)
	v.SetDefault("scheduler.drain_timeout", "30s")
	v.SetDefault("scheduler.time_zone", "")

	v.SetDefault("mail.enabled", false)
	v.SetDefault("mail.from", "")
	v.SetDefault("mail.maintainers", []string{})
	v.SetDefault("mail.send_on_success", true)
	v.SetDefault("mail.send_on_failure", true)
	v.SetDefault("mail.production_environment", "prod")
	v.SetDefault("mail.smtp.host", "")
	v.SetDefault("mail.smtp.port", 587)
	v.SetDefault("mail.smtp.username", "")
	v.SetDefault("mail.smtp.password", "")
	v.SetDefault("mail.smtp.tls", "opportunistic")
	v.SetDefault("mail.smtp.timeout", "15s")
	v.SetDefault("mail.smtp.failure_threshold", 3)
	v.SetDefault("mail.smtp.open_timeout", "1m")

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.name", "knbatch")

	v.SetDefault("metrics.enabled", true)
}

// BindEnvVars keeps the plain variable names deployments already use. Every
// other key is also reachable as KNBATCH_<SECTION>_<KEY>.
func BindEnvVars(v *viper.Viper) {
	v.SetEnvPrefix("KNBATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("environment", "KNBATCH_ENVIRONMENT", "ENVIRONMENT")
	_ = v.BindEnv("server.port", "KNBATCH_SERVER_PORT", "PORT")
	_ = v.BindEnv("database.url", "KNBATCH_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("database.host", "KNBATCH_DATABASE_HOST", "DB_HOST")
	_ = v.BindEnv("database.port", "KNBATCH_DATABASE_PORT", "DB_PORT")
	_ = v.BindEnv("database.user", "KNBATCH_DATABASE_USER", "DB_USER")
	_ = v.BindEnv("database.password", "KNBATCH_DATABASE_PASSWORD", "DB_PASSWORD")
	_ = v.BindEnv("database.name", "KNBATCH_DATABASE_NAME", "DB_NAME")
	_ = v.BindEnv("database.sslmode", "KNBATCH_DATABASE_SSLMODE", "DB_SSLMODE")
	_ = v.BindEnv("mail.smtp.password", "KNBATCH_MAIL_SMTP_PASSWORD", "SMTP_PASSWORD")
	_ = v.BindEnv("nats.url", "KNBATCH_NATS_URL", "NATS_URL")
}

// Load reads defaults, the optional config file at path and the environment,
// in increasing order of precedence
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	BindEnvVars(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	return LoadWithViper(v)
}

// LoadWithViper loads and validates configuration from a prepared viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with
func (c *Config) Validate() error {
	switch c.Catalogue.Source {
	case SourcePostgres:
	case SourceFile:
		if strings.TrimSpace(c.Catalogue.File) == "" {
			return fmt.Errorf("catalogue.file is required when catalogue.source is %q", SourceFile)
		}
	default:
		return fmt.Errorf("unknown catalogue.source %q (want %q or %q)", c.Catalogue.Source, SourcePostgres, SourceFile)
	}

	if c.Scheduler.PoolSize < 1 {
		return fmt.Errorf("scheduler.pool_size must be at least 1, got %d", c.Scheduler.PoolSize)
	}
	if c.Scheduler.DrainTimeout < 0 {
		return fmt.Errorf("scheduler.drain_timeout must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}

	if c.Mail.Enabled {
		if strings.TrimSpace(c.Mail.SMTP.Host) == "" {
			return fmt.Errorf("mail.smtp.host is required when mail is enabled")
		}
	}

	for i, spec := range c.Tasks.Corrections {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("tasks.corrections[%d]: %w", i, err)
		}
	}
	return nil
}

// Location resolves scheduler.time_zone; empty means the host's zone
func (c *Config) Location() (*time.Location, error) {
	if c.Scheduler.TimeZone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Scheduler.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler.time_zone %q: %w", c.Scheduler.TimeZone, err)
	}
	return loc, nil
}

// CronDescriptionTable returns the configured cron texts keyed by expression
func (c *Config) CronDescriptionTable() map[string]string {
	table := make(map[string]string, len(c.Scheduler.CronDescriptions))
	for _, d := range c.Scheduler.CronDescriptions {
		table[strings.TrimSpace(d.Expression)] = d.Description
	}
	return table
}

func (c *Config) DatabaseURL() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}

	// Otherwise, construct from individual components
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     net.JoinHostPort(c.Database.Host, c.Database.Port),
		Path:     "/" + c.Database.DBName,
		RawQuery: url.Values{"sslmode": {c.Database.SSLMode}}.Encode(),
	}
	return u.String()
}
