package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/example/event-booking/internal/logging"
	"github.com/example/event-booking/internal/scheduler"
)

// EnvPrefix namespaces every environment variable read by Load.
const EnvPrefix = "SCHEDULER"

// Store drivers.
const (
	StoreDriverSQLite   = "sqlite"
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Sweep modes.
const (
	SweepModeCron  = "cron"
	SweepModeAsynq = "asynq"
)

// Config captures the configuration values of the booking service.
type Config struct {
	HTTPPort int

	StoreDriver string
	SQLiteDSN   string
	PostgresDSN string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string
	MailFromName string

	DispatchMinSpacing  time.Duration
	DispatchSendTimeout time.Duration

	ReminderOffsets []scheduler.ReminderOffset

	SweepSchedule string
	SweepDeadline time.Duration
	SweepMode     string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	AvailabilityCacheTTL time.Duration

	LogLevel  string
	LogFormat string
}

var defaults = map[string]any{
	"http_port":              8080,
	"store_driver":           StoreDriverSQLite,
	"sqlite_dsn":             "file:scheduler.db",
	"postgres_dsn":           "",
	"smtp_host":              "",
	"smtp_port":              587,
	"smtp_username":          "",
	"smtp_password":          "",
	"mail_from":              "",
	"mail_from_name":         "Event Scheduler",
	"dispatch_min_spacing":   "600ms",
	"dispatch_send_timeout":  "10s",
	"reminder_offsets":       "24h,1h",
	"sweep_schedule":         "@every 5m",
	"sweep_deadline":         "4m",
	"sweep_mode":             SweepModeCron,
	"redis_addr":             "",
	"redis_password":         "",
	"redis_db":               0,
	"availability_cache_ttl": "15s",
	"log_level":              "info",
	"log_format":             "json",
}

// Load reads configuration from a .env file in the working directory, the
// optional config file at path and SCHEDULER_* environment variables, in
// increasing order of precedence.
//
// Missing and invalid keys are collected and reported together.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	return parse(v)
}

type parser struct {
	v       *viper.Viper
	missing []string
	invalid []string
}

func parse(v *viper.Viper) (Config, error) {
	p := &parser{v: v}

	cfg := Config{
		HTTPPort:             p.port("http_port"),
		StoreDriver:          strings.ToLower(p.str("store_driver")),
		SQLiteDSN:            p.str("sqlite_dsn"),
		PostgresDSN:          p.str("postgres_dsn"),
		SMTPHost:             p.str("smtp_host"),
		SMTPPort:             p.port("smtp_port"),
		SMTPUsername:         p.str("smtp_username"),
		SMTPPassword:         v.GetString("smtp_password"),
		MailFrom:             p.str("mail_from"),
		MailFromName:         p.str("mail_from_name"),
		DispatchMinSpacing:   p.duration("dispatch_min_spacing", false),
		DispatchSendTimeout:  p.duration("dispatch_send_timeout", false),
		ReminderOffsets:      p.offsets("reminder_offsets"),
		SweepSchedule:        p.str("sweep_schedule"),
		SweepDeadline:        p.duration("sweep_deadline", true),
		SweepMode:            strings.ToLower(p.str("sweep_mode")),
		RedisAddr:            p.str("redis_addr"),
		RedisPassword:        v.GetString("redis_password"),
		RedisDB:              p.nonNegative("redis_db"),
		AvailabilityCacheTTL: p.duration("availability_cache_ttl", true),
		LogLevel:             p.str("log_level"),
		LogFormat:            strings.ToLower(p.str("log_format")),
	}

	switch cfg.StoreDriver {
	case StoreDriverSQLite:
		if cfg.SQLiteDSN == "" {
			p.missing = append(p.missing, "sqlite_dsn")
		}
	case StoreDriverPostgres:
		if cfg.PostgresDSN == "" {
			p.missing = append(p.missing, "postgres_dsn")
		}
	case StoreDriverMemory:
	default:
		p.invalid = append(p.invalid, "store_driver")
	}

	if cfg.SMTPHost != "" && cfg.MailFrom == "" {
		p.missing = append(p.missing, "mail_from")
	}

	if _, err := cron.ParseStandard(cfg.SweepSchedule); err != nil {
		p.invalid = append(p.invalid, "sweep_schedule")
	}

	switch cfg.SweepMode {
	case SweepModeCron:
	case SweepModeAsynq:
		if cfg.RedisAddr == "" {
			p.missing = append(p.missing, "redis_addr")
		}
	default:
		p.invalid = append(p.invalid, "sweep_mode")
	}

	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		p.invalid = append(p.invalid, "log_level")
	}
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		p.invalid = append(p.invalid, "log_format")
	}

	if len(p.missing) > 0 {
		return Config{}, fmt.Errorf("missing required configuration: %s", strings.Join(p.missing, ", "))
	}
	if len(p.invalid) > 0 {
		return Config{}, fmt.Errorf("invalid configuration values: %s", strings.Join(p.invalid, ", "))
	}
	return cfg, nil
}

func (p *parser) str(key string) string {
	return strings.TrimSpace(p.v.GetString(key))
}

func (p *parser) port(key string) int {
	n, err := strconv.Atoi(p.str(key))
	if err != nil || n <= 0 || n > 65535 {
		p.invalid = append(p.invalid, key)
		return 0
	}
	return n
}

func (p *parser) nonNegative(key string) int {
	n, err := strconv.Atoi(p.str(key))
	if err != nil || n < 0 {
		p.invalid = append(p.invalid, key)
		return 0
	}
	return n
}

// duration parses key; allowZero admits "0" to disable the feature behind it.
func (p *parser) duration(key string, allowZero bool) time.Duration {
	d, err := time.ParseDuration(p.str(key))
	if err != nil || d < 0 || (d == 0 && !allowZero) {
		p.invalid = append(p.invalid, key)
		return 0
	}
	return d
}

// offsets accepts a comma separated string or a list from a config file.
func (p *parser) offsets(key string) []scheduler.ReminderOffset {
	var values []string
	for _, item := range p.v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				values = append(values, part)
			}
		}
	}
	if len(values) == 0 {
		p.invalid = append(p.invalid, key)
		return nil
	}
	offsets, err := scheduler.ParseReminderOffsets(values)
	if err != nil {
		p.invalid = append(p.invalid, key)
		return nil
	}
	return offsets
}
