package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/department-admin/internal/booking"
	"github.com/iliyamo/department-admin/internal/config"
	"github.com/iliyamo/department-admin/internal/database"
	"github.com/iliyamo/department-admin/internal/events"
	"github.com/iliyamo/department-admin/internal/handler"
	"github.com/iliyamo/department-admin/internal/logger"
	"github.com/iliyamo/department-admin/internal/middleware"
	"github.com/iliyamo/department-admin/internal/rbac"
	"github.com/iliyamo/department-admin/internal/repository"
	"github.com/iliyamo/department-admin/internal/router"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	cfg, err := config.New(".env")
	panicOnErr("load config", err)

	lg := logger.New(logger.ParseLevel(cfg.LogLevel))
	slog.SetDefault(lg)

	db, err := database.Open(cfg.DSN())
	panicOnErr("connect to mysql", err)
	defer db.Close()

	roles := repository.NewRoleRepo(db)
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	store := repository.NewBookingStore(db)

	rdb := config.NewRedisClient(config.LoadRedisConfig())
	if rdb == nil {
		lg.WarnContext(ctx, "redis unavailable; rate limit, response cache and grant fan-out disabled")
	} else {
		defer rdb.Close()
	}

	authzOpts := []rbac.Option{rbac.WithTTL(cfg.RBACCacheTTL), rbac.WithLogger(lg)}
	if rdb != nil {
		host, _ := os.Hostname()
		origin := host + "-" + middleware.NewRequestID()
		authzOpts = append(authzOpts, rbac.WithNotifier(rbac.NewRedisNotifier(rdb, rbac.DefaultChannel, origin)))
	}
	authz := rbac.New(roles, authzOpts...)

	deps := booking.Deps{Store: store, Authorizer: authz, Logger: lg}
	if cfg.EventsEnabled {
		pub := events.NewPublisher(cfg.RabbitMQURL)
		defer pub.Close()
		deps.Publisher = pub
	}
	equipment := booking.NewEquipmentService(deps)
	labs := booking.NewLabService(deps)
	meetings := booking.NewMeetingScheduler(deps)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(lg))
	e.Use(echomw.ContextTimeout(cfg.RequestTimeout))
	e.Use(middleware.RateLimit(config.LoadRateLimitConfig(), rdb, lg))

	var cache echo.MiddlewareFunc
	if cacheCfg := config.LoadCacheConfig(); cacheCfg.Enabled && rdb != nil {
		cache = middleware.ResponseCache(cacheCfg, rdb, lg)
	}

	router.Register(e, router.Deps{
		Auth: handler.NewAuthHandler(handler.AuthConfig{
			Secret:       cfg.JWTSecret,
			AccessTTL:    cfg.AccessTTL(),
			RefreshTTL:   cfg.RefreshTTL(),
			Cookie:       cfg.SessionCookie,
			SecureCookie: cfg.Env == "production",
		}, users, tokens, authz, lg),
		Meetings:  handler.NewMeetingHandler(meetings, lg),
		Equipment: handler.NewEquipmentHandler(equipment, lg),
		Labs:      handler.NewLabHandler(labs, lg),
		Roles:     handler.NewRoleHandler(authz, lg),
		Session: middleware.Session(middleware.SessionConfig{
			Secret: cfg.JWTSecret,
			Cookie: cfg.SessionCookie,
			Log:    lg,
		}, users),
		Permission: func(name string) echo.MiddlewareFunc {
			return middleware.RequirePermission(authz, name)
		},
		Cache: cache,
		DB:    db,
	})

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := authz.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			lg.ErrorContext(ctx, "grant watcher stopped", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sweep(ctx, equipment, cfg.BookingSweepInterval, lg)
	}()

	if cfg.EventsEnabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = events.NewAuditConsumer(cfg.RabbitMQURL, cfg.AuditLogPath, lg).Run(ctx)
		}()
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 5 * time.Second,
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Panicf("listen and serve: %s", err)
		}
	}()
	lg.InfoContext(ctx, "service started", "port", cfg.Port, "env", cfg.Env)

	<-ctx.Done()
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error("server shutdown", "error", err)
	}
	wg.Wait()
}

// sweep completes ended equipment bookings every interval.
func sweep(ctx context.Context, s *booking.EquipmentService, every time.Duration, lg *slog.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.CompleteDue(ctx); err != nil {
				lg.WarnContext(ctx, "booking sweep", "error", err)
			}
		}
	}
}

func panicOnErr(msg string, err error) {
	if err != nil {
		log.Panicf("%s: %s", msg, err)
	}
}
