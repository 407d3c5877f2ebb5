// Package config loads runtime settings from the environment (and an optional .env file).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	errors "github.com/Laisky/errors/v2"
	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
)

type DBConfig struct {
	Driver string // "postgres" or "sqlite"
	DSN    string
}

type SessionConfig struct {
	Backend       string // "memory" or "redis"
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	TTL           time.Duration
}

type BroadcastConfig struct {
	Limit int
	Rate  float64
	Burst int
}

type RetentionConfig struct {
	Enabled bool
	Cron    string
	Days    int
}

// Config holds everything the bot and the admin CLI need.
type Config struct {
	BotToken         string
	OwnerID          int64
	StaffGroupID     int64
	RequiredChannels []string

	WorkStartHour int
	WorkEndHour   int
	Timezone      string
	Location      *time.Location
	Language      string
	LogMode       string

	DB        DBConfig
	Session   SessionConfig
	Broadcast BroadcastConfig
	Retention RetentionConfig

	HTTPAddr          string
	KeepAliveURL      string
	KeepAliveInterval time.Duration
	DashboardSecret   string
}

// Load reads .env (if present) and then the process environment.
// The returned bool reports whether a .env file was loaded.
func Load() (*Config, bool, error) {
	loaded := godotenv.Load() == nil
	cfg, err := FromEnv(os.Getenv)
	return cfg, loaded, err
}

// FromEnv builds a Config from a getenv-style lookup.
func FromEnv(getenv func(string) string) (*Config, error) {
	e := envReader{get: getenv}

	cfg := &Config{
		BotToken:         e.str("TELEGRAM_BOT_TOKEN", ""),
		OwnerID:          e.int64("OWNER_ID", 0),
		StaffGroupID:     e.int64("STAFF_GROUP_ID", 0),
		RequiredChannels: splitChannels(e.str("REQUIRED_CHANNELS", "")),
		WorkStartHour:    e.int("WORK_START_HOUR", DefaultWorkStartHour),
		WorkEndHour:      e.int("WORK_END_HOUR", DefaultWorkEndHour),
		Timezone:         e.str("TIMEZONE", DefaultTimezone),
		Language:         e.str("LANGUAGE", "uz"),
		LogMode:          e.str("LOG_MODE", "dev"),
		DB: DBConfig{
			Driver: strings.ToLower(e.str("DB_DRIVER", "postgres")),
			DSN:    e.str("DB_DSN", ""),
		},
		Session: SessionConfig{
			Backend:       strings.ToLower(e.str("SESSION_BACKEND", "memory")),
			RedisAddr:     e.str("REDIS_ADDR", "localhost:6379"),
			RedisPassword: e.str("REDIS_PASSWORD", ""),
			RedisDB:       e.int("REDIS_DB", 0),
			TTL:           e.duration("SESSION_TTL", DefaultSessionTTL),
		},
		Broadcast: BroadcastConfig{
			Limit: e.int("BROADCAST_LIMIT", DefaultBroadcastLimit),
			Rate:  e.float("BROADCAST_RATE", DefaultBroadcastRate),
			Burst: e.int("BROADCAST_BURST", DefaultBroadcastBurst),
		},
		Retention: RetentionConfig{
			Enabled: e.bool("RETENTION_ENABLED", false),
			Cron:    e.str("RETENTION_CRON", DefaultRetentionCron),
			Days:    e.int("RETENTION_DAYS", DefaultRetentionDays),
		},
		HTTPAddr:          e.str("HTTP_ADDR", ""),
		KeepAliveURL:      e.str("KEEP_ALIVE_URL", e.str("RENDER_EXTERNAL_URL", "")),
		KeepAliveInterval: e.duration("KEEP_ALIVE_INTERVAL", DefaultKeepAliveInterval),
		DashboardSecret:   e.str("DASHBOARD_JWT_SECRET", ""),
	}
	if e.err != nil {
		return nil, e.err
	}

	if cfg.HTTPAddr == "" {
		if port := e.str("PORT", ""); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = DefaultHTTPAddr
		}
	}

	if cfg.DB.DSN == "" {
		cfg.DB.DSN = defaultDSN(cfg.DB.Driver, e)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "load timezone %q", cfg.Timezone)
	}
	cfg.Location = loc

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ValidateBot checks the settings that only the bot process needs.
func (c *Config) ValidateBot() error {
	if c.BotToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is not set")
	}
	if c.OwnerID == 0 {
		return errors.New("OWNER_ID is not set")
	}
	if c.StaffGroupID == 0 {
		return errors.New("STAFF_GROUP_ID is not set")
	}
	return nil
}

func (c *Config) validate() error {
	if c.WorkStartHour < 0 || c.WorkStartHour > 23 || c.WorkEndHour < 1 || c.WorkEndHour > 24 {
		return errors.Errorf("working hours out of range: %d-%d", c.WorkStartHour, c.WorkEndHour)
	}
	if c.WorkStartHour >= c.WorkEndHour {
		return errors.Errorf("WORK_START_HOUR (%d) must be before WORK_END_HOUR (%d)", c.WorkStartHour, c.WorkEndHour)
	}
	switch c.DB.Driver {
	case "postgres", "sqlite":
	default:
		return errors.Errorf("unsupported DB_DRIVER %q", c.DB.Driver)
	}
	switch c.Session.Backend {
	case "memory", "redis":
	default:
		return errors.Errorf("unsupported SESSION_BACKEND %q", c.Session.Backend)
	}
	if c.Broadcast.Limit < 0 {
		return errors.Errorf("BROADCAST_LIMIT must be >= 0, got %d", c.Broadcast.Limit)
	}
	if c.Broadcast.Rate <= 0 || c.Broadcast.Burst <= 0 {
		return errors.New("BROADCAST_RATE and BROADCAST_BURST must be positive")
	}
	if c.Retention.Days <= 0 {
		return errors.Errorf("RETENTION_DAYS must be positive, got %d", c.Retention.Days)
	}
	if c.Retention.Enabled && !gronx.New().IsValid(c.Retention.Cron) {
		return errors.Errorf("invalid RETENTION_CRON %q", c.Retention.Cron)
	}
	return nil
}

func defaultDSN(driver string, e envReader) string {
	if driver == "sqlite" {
		return "helpdesk.db"
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		e.str("DB_HOST", "localhost"),
		e.str("DB_USER", "user"),
		e.str("DB_PASSWORD", "password"),
		e.str("DB_NAME", "helpdesk"),
		e.str("DB_PORT", "5432"),
	)
}

// splitChannels keeps the configured order and strips a leading "@".
func splitChannels(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimPrefix(strings.TrimSpace(part), "@")
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}

// envReader records the first parse error so FromEnv can stay linear.
type envReader struct {
	get func(string) string
	err error
}

func (e *envReader) str(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e *envReader) int64(key string, def int64) int64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return n
}

func (e *envReader) int(key string, def int) int {
	return int(e.int64(key, int64(def)))
}

func (e *envReader) float(key string, def float64) float64 {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return f
}

func (e *envReader) bool(key string, def bool) bool {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return b
}

func (e *envReader) duration(key string, def time.Duration) time.Duration {
	v := e.str(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, err)
		return def
	}
	return d
}

func (e *envReader) fail(key string, err error) {
	if e.err == nil {
		e.err = errors.Wrapf(err, "parse %s", key)
	}
}
