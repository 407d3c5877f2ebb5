package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"helpdesk/backend/internal/api/handler"
	"helpdesk/backend/internal/config"
	"helpdesk/backend/internal/dashboard"
	"helpdesk/backend/internal/localization"
	"helpdesk/backend/internal/logger"
	"helpdesk/backend/internal/membership"
	"helpdesk/backend/internal/metrics"
	"helpdesk/backend/internal/retention"
	"helpdesk/backend/internal/session"
	"helpdesk/backend/internal/storage"
	"helpdesk/backend/internal/support"
	"helpdesk/backend/internal/telegram"
	"helpdesk/backend/internal/workhours"

	errors "github.com/Laisky/errors/v2"
	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

func setupDatabase(ctx context.Context, cfg *config.Config, lg *logger.Logger) (*gorm.DB, *storage.Service) {
	db, err := storage.Open(cfg.DB)
	if err != nil {
		lg.Fatal("failed to open database", "driver", cfg.DB.Driver, "error", err)
	}
	if err := storage.Migrate(db); err != nil {
		lg.Fatal("failed to run migrations", "error", err)
	}

	store := storage.NewStorageService(db, lg)
	if err := store.SeedOwner(ctx, cfg.OwnerID); err != nil {
		lg.Fatal("failed to register the owner", "owner_id", cfg.OwnerID, "error", err)
	}
	lg.Info("database ready", "driver", cfg.DB.Driver)
	return db, store
}

// setupSessions returns the conversation state store and, for the redis
// backend, its client. The redis store is emptied on startup so a restart
// drops in-flight flows like the memory store does.
func setupSessions(ctx context.Context, cfg *config.Config, lg *logger.Logger) (session.Store, *redis.Client, error) {
	if cfg.Session.Backend != "redis" {
		return session.NewMemoryStore(cfg.Session.TTL), nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Session.RedisAddr,
		Password: cfg.Session.RedisPassword,
		DB:       cfg.Session.RedisDB,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, nil, errors.Wrapf(err, "connect redis at %s", cfg.Session.RedisAddr)
	}

	store := session.NewRedisStore(rdb, cfg.Session.TTL)
	dropped, err := store.Reset(ctx)
	if err != nil {
		return nil, nil, errors.Wrap(err, "reset sessions")
	}
	lg.Info("redis sessions ready", "addr", cfg.Session.RedisAddr, "dropped", dropped)
	return store, rdb, nil
}

func main() {
	cfg, envLoaded, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer lg.Sync()

	if !envLoaded {
		lg.Warn("no .env file loaded, using the process environment")
	}
	if err := cfg.ValidateBot(); err != nil {
		lg.Fatal("invalid configuration", "error", err)
	}
	lg.Info("starting support bot",
		"owner_id", cfg.OwnerID,
		"staff_group_id", cfg.StaffGroupID,
		"channels", cfg.RequiredChannels,
		"timezone", cfg.Timezone,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Storage and conversation state
	db, store := setupDatabase(ctx, cfg, lg)
	sessions, rdb, err := setupSessions(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("failed to set up sessions", "backend", cfg.Session.Backend, "error", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	l10n, err := localization.Default()
	if err != nil {
		lg.Fatal("failed to load translations", "error", err)
	}
	if !l10n.Has(cfg.Language) {
		lg.Warn("unknown language, falling back", "language", cfg.Language, "fallback", localization.DefaultLanguage)
		cfg.Language = localization.DefaultLanguage
	}

	// 2. Telegram and the support engine
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		lg.Fatal("failed to connect to Telegram", "error", err)
	}
	m := metrics.New()
	client := telegram.NewClient(api, lg)
	gate := membership.NewGate(client, cfg.OwnerID, cfg.RequiredChannels, lg, m)
	hub := dashboard.NewHub(lg, m)
	var events dashboard.Publisher = hub
	var relay *dashboard.Relay
	if rdb != nil {
		relay = dashboard.NewRelay(rdb, hub, lg)
		events = relay
	}

	svc := support.NewService(store, gate, client, events, m, lg, support.Options{
		OwnerID:      cfg.OwnerID,
		StaffGroupID: cfg.StaffGroupID,
		Schedule:     workhours.New(cfg.WorkStartHour, cfg.WorkEndHour, cfg.Location),
		Broadcast:    cfg.Broadcast,
		Lang:         l10n.Bundle(cfg.Language),
		Now:          time.Now,
	})
	bot := telegram.NewBotService(api, client, svc, sessions, gate.Channels(), m, lg)

	// 3. Background goroutines
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		handler.NewPinger(cfg.KeepAliveURL, cfg.KeepAliveInterval, lg).Run(ctx)
	}()

	if relay != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := relay.Run(ctx); err != nil {
				lg.Error("dashboard relay stopped", "error", err)
			}
		}()
	}

	if cfg.Retention.Enabled {
		sched, err := retention.New(store, cfg.Retention, m, lg)
		if err != nil {
			lg.Fatal("invalid retention settings", "error", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.Run(ctx)
		}()
	}

	// 4. HTTP surface
	if cfg.LogMode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	h := handler.NewHandler(hub, svc, cfg.DashboardSecret, m, lg)
	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        h.Router(),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	go func() {
		lg.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("http server failed", "error", err)
			stop()
		}
	}()

	// the update loop returns once ctx is cancelled and any broadcast has finished
	bot.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Warn("http server shutdown", "error", err)
	}
	wg.Wait()

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	lg.Info("support bot stopped")
}
