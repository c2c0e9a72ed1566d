package main

import (
	"context"
	"flag"
	"log/slog"
	"time"

	"sipac-backend/internal/api"
	"sipac-backend/internal/components/chrono"
	"sipac-backend/internal/components/telemetry"
	"sipac-backend/internal/service"
	"sipac-backend/internal/sipac/session"
	"sipac-backend/lib/configutil"
	"sipac-backend/lib/serviceutil"

	"github.com/redis/go-redis/v9"
)

func openStore(ctx context.Context, cfg CacheConfig, ttl time.Duration, clock chrono.TimeAPI) (session.Store, error) {
	if cfg.RedisAddr == "" {
		slog.Info("keeping session in memory")
		return session.NewMemoryStore(ttl, clock), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDb,
	})
	err := client.Ping(ctx).Err()
	if err != nil {
		return nil, err
	}
	slog.Info("sharing session through redis", "addr", cfg.RedisAddr)
	return session.NewRedisStore(client, cfg.RedisPrefix, clock), nil
}

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	configPath := flag.String("config", "config.json5", "Path to the configuration file.")
	flag.Parse()

	ctx := serviceutil.SignalContext()

	telemetry.InitSlog(*verbose)

	raw, err := configutil.ReadConfig[Config](*configPath)
	if err != nil {
		serviceutil.Fatal("read config", err)
	}
	cfg := raw.withDefaults()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.Tracing)
	if err != nil {
		serviceutil.Fatal("setup tracing", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		err := shutdownTracing(flushCtx)
		if err != nil {
			slog.Warn("flush traces", "err", err)
		}
	}()

	tel := telemetry.SlogAPI{}

	clock, err := chrono.NewStandardImpl(cfg.Portal.Timezone)
	if err != nil {
		serviceutil.Fatal("load timezone", err)
	}

	store, err := openStore(ctx, cfg.Cache, time.Hour*12, clock)
	if err != nil {
		serviceutil.Fatal("open session store", err)
	}

	stack, err := service.Build(cfg.Config, store, clock, tel)
	if err != nil {
		serviceutil.Fatal("build service", err)
	}

	cron := chrono.NewStandardCron(clock.Location(), tel)
	defer func() { <-cron.Stop() }()

	refreshCron := cfg.Auth.RefreshCron
	if refreshCron == "" {
		refreshCron = defaultRefreshCron
	}
	if refreshCron != "-" {
		err = stack.Manager.ScheduleRefresh(cron, refreshCron, time.Minute)
		if err != nil {
			serviceutil.Fatal("schedule session refresh", err)
		}
	}

	router, err := api.NewRouter(stack.Service, tel, api.Options{
		AccessToken: cfg.Api.AccessToken,
		Routes:      cfg.Api.Routes,
	})
	if err != nil {
		serviceutil.Fatal("init api", err)
	}

	err = serviceutil.StartHttpServer(ctx, cfg.Api.Port, router)
	if err != nil {
		serviceutil.Fatal("serve http", err)
	}
}
