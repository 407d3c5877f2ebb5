package config_test

import (
	"testing"
	"time"

	"helpdesk/backend/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := config.FromEnv(env(nil))
	require.NoError(t, err)

	assert.Equal(t, config.DefaultWorkStartHour, cfg.WorkStartHour)
	assert.Equal(t, config.DefaultWorkEndHour, cfg.WorkEndHour)
	assert.Equal(t, "Asia/Tashkent", cfg.Location.String())
	assert.Equal(t, "uz", cfg.Language)
	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Contains(t, cfg.DB.DSN, "dbname=helpdesk")
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, config.DefaultSessionTTL, cfg.Session.TTL)
	assert.Equal(t, config.DefaultHTTPAddr, cfg.HTTPAddr)
	assert.Equal(t, 0, cfg.Broadcast.Limit)
	assert.False(t, cfg.Retention.Enabled)
	assert.Empty(t, cfg.RequiredChannels)

	assert.Error(t, cfg.ValidateBot(), "token, owner and group are required to run the bot")
}

func TestFromEnvValues(t *testing.T) {
	cfg, err := config.FromEnv(env(map[string]string{
		"TELEGRAM_BOT_TOKEN":  "123:abc",
		"OWNER_ID":            "1001",
		"STAFF_GROUP_ID":      "-100500",
		"REQUIRED_CHANNELS":   " @news, tips ,,@third",
		"WORK_START_HOUR":     "8",
		"WORK_END_HOUR":       "20",
		"TIMEZONE":            "UTC",
		"DB_DRIVER":           "SQLite",
		"SESSION_BACKEND":     "redis",
		"SESSION_TTL":         "5m",
		"PORT":                "8080",
		"BROADCAST_LIMIT":     "50",
		"BROADCAST_RATE":      "2.5",
		"RETENTION_ENABLED":   "true",
		"RETENTION_DAYS":      "7",
		"KEEP_ALIVE_INTERVAL": "1m",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.ValidateBot())

	assert.Equal(t, int64(1001), cfg.OwnerID)
	assert.Equal(t, int64(-100500), cfg.StaffGroupID)
	assert.Equal(t, []string{"news", "tips", "third"}, cfg.RequiredChannels, "order is kept")
	assert.Equal(t, 8, cfg.WorkStartHour)
	assert.Equal(t, time.UTC.String(), cfg.Location.String())
	assert.Equal(t, "sqlite", cfg.DB.Driver)
	assert.Equal(t, "helpdesk.db", cfg.DB.DSN)
	assert.Equal(t, "redis", cfg.Session.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Session.TTL)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 50, cfg.Broadcast.Limit)
	assert.Equal(t, 2.5, cfg.Broadcast.Rate)
	assert.True(t, cfg.Retention.Enabled)
	assert.Equal(t, 7, cfg.Retention.Days)
	assert.Equal(t, time.Minute, cfg.KeepAliveInterval)
}

func TestFromEnvHTTPAddrWins(t *testing.T) {
	cfg, err := config.FromEnv(env(map[string]string{"HTTP_ADDR": "127.0.0.1:9000", "PORT": "8080"}))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTPAddr)
}

func TestFromEnvRejects(t *testing.T) {
	cases := map[string]map[string]string{
		"bad owner id":        {"OWNER_ID": "boss"},
		"bad duration":        {"SESSION_TTL": "soon"},
		"unknown timezone":    {"TIMEZONE": "Mars/Olympus"},
		"inverted hours":      {"WORK_START_HOUR": "18", "WORK_END_HOUR": "9"},
		"hour out of range":   {"WORK_END_HOUR": "25"},
		"unknown db driver":   {"DB_DRIVER": "mysql"},
		"unknown session":     {"SESSION_BACKEND": "memcached"},
		"negative limit":      {"BROADCAST_LIMIT": "-1"},
		"zero rate":           {"BROADCAST_RATE": "0"},
		"zero retention days": {"RETENTION_DAYS": "0"},
		"bad retention cron":  {"RETENTION_ENABLED": "true", "RETENTION_CRON": "every night"},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := config.FromEnv(env(values))
			assert.Error(t, err)
		})
	}
}
