// Command helpdesk-admin runs maintenance tasks against the bot's database.
package main

import (
	"context"
	"os"

	"helpdesk/backend/internal/config"
	"helpdesk/backend/internal/dashboard"
	"helpdesk/backend/internal/logger"
	"helpdesk/backend/internal/storage"

	errors "github.com/Laisky/errors/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var rootCMD = &cobra.Command{
	Use:          "helpdesk-admin",
	Short:        "helpdesk-admin",
	Long:         `maintenance commands for the support bot`,
	SilenceUsage: true,
}

type app struct {
	cfg    *config.Config
	db     *gorm.DB
	store  *storage.Service
	log    *logger.Logger
	rdb    *redis.Client
	events dashboard.Publisher
}

// setup loads the configuration and opens the database.
func setup(ctx context.Context) (*app, error) {
	cfg, _, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, errors.Wrap(err, "create logger")
	}
	db, err := storage.Open(cfg.DB)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	a := &app{cfg: cfg, db: db, store: storage.NewStorageService(db, lg), log: lg, events: dashboard.Discard}

	// with a redis backend, a running bot hears about changes made here
	if cfg.Session.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Session.RedisAddr,
			Password: cfg.Session.RedisPassword,
			DB:       cfg.Session.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			lg.Warn("redis unavailable, dashboard will not be notified", "addr", cfg.Session.RedisAddr, "error", err)
			_ = rdb.Close()
		} else {
			a.rdb = rdb
			a.events = dashboard.NewRelay(rdb, nil, lg)
		}
	}
	return a, nil
}

func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	a.log.Sync()
}

// withApp runs fn with an initialized app and closes it afterwards.
func withApp(fn func(ctx context.Context, cmd *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := setup(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(ctx, cmd, a, args)
	}
}

func main() {
	if err := rootCMD.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
