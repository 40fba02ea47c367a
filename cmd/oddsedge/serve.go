package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/oddsedge/oddsedge/internal/cache"
	"github.com/oddsedge/oddsedge/internal/coalesce"
	"github.com/oddsedge/oddsedge/internal/config"
	"github.com/oddsedge/oddsedge/internal/hotset"
	httpiface "github.com/oddsedge/oddsedge/internal/interfaces/http"
	"github.com/oddsedge/oddsedge/internal/provider"
	"github.com/oddsedge/oddsedge/internal/scheduler"
	"github.com/oddsedge/oddsedge/internal/telemetry"
	"github.com/oddsedge/oddsedge/internal/worker"
)

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.New(registry)

	coal := coalesce.New()

	store, closeStore, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	hot := hotset.New(store, cfg.Hot.TTL, cfg.Hot.DefaultSportID)

	gateway := provider.NewGateway(provider.GatewayConfig{
		BaseURL:        cfg.Provider.BaseURL,
		RequestTimeout: cfg.Provider.RequestTimeout,
		PostTimeout:    cfg.Provider.PostTimeout,
		RateLimit:      cfg.Provider.RateLimit,
		Burst:          cfg.Provider.Burst,
	})

	pool := worker.New(gateway, store, coal, worker.Config{
		MaxConcurrency: cfg.Worker.MaxConcurrency,
		OddsTTL:        cfg.TTL.Odds,
		JobTimeout:     cfg.Worker.JobTimeout,
	}, metrics)

	sched := scheduler.New(scheduler.Config{
		OddsInterval:      cfg.Poll.Odds,
		MatchListInterval: cfg.Poll.MatchList,
		TopEventsInterval: cfg.Poll.TopEvents,
		BannersInterval:   cfg.Poll.Banners,
		SidebarInterval:   cfg.Poll.Sidebar,
		SportsTTL:         cfg.TTL.Sports,
		MatchListTTL:      cfg.TTL.MatchList,
		TopEventsTTL:      cfg.TTL.TopEvents,
		BannersTTL:        cfg.TTL.Banners,
		SidebarTTL:        cfg.TTL.Sidebar,
		Sports:            cfg.Sports,
	}, gateway, store, hot, pool, metrics)

	handlers := httpiface.NewHandlers(store, coal, hot, gateway, sched, pool, httpiface.TTLs{
		Sports:    cfg.TTL.Sports,
		MatchList: cfg.TTL.MatchList,
		Odds:      cfg.TTL.Odds,
		Results:   cfg.TTL.Results,
		TopEvents: cfg.TTL.TopEvents,
		Banners:   cfg.TTL.Banners,
		Sidebar:   cfg.TTL.Sidebar,
		OnDemand:  cfg.TTL.OnDemand,
	}, metrics)

	srv, err := httpiface.NewServer(httpiface.ServerConfig{
		Host:         cfg.HTTP.Host,
		Port:         cfg.HTTP.Port,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}, handlers, metrics, registry)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	if err := sched.Start(cmd.Context()); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	log.Info().Str("addr", srv.Address()).Str("backend", cfg.Cache.Backend).Msg("oddsedge running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server failed")
		}
	}

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}

	log.Info().Msg("oddsedge stopped")
	return nil
}

// buildStore selects the cache backend. Memory is the default and the only
// backend with stale-while-revalidate; redis degrades to plain TTL caching
// but survives restarts and can be shared across replicas.
func buildStore(cfg config.Config) (cache.Store, func(), error) {
	switch cfg.Cache.Backend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.Cache.RedisAddr, err)
		}
		store := cache.NewRedis(rdb, cfg.Cache.Prefix)
		return store, func() { _ = rdb.Close() }, nil
	default:
		store := cache.NewMemory(cache.MemoryConfig{
			StaleMultiplier: cfg.Cache.StaleMultiplier,
			EnableSWR:       cfg.Cache.EnableSWR,
		})
		return store, store.Close, nil
	}
}
