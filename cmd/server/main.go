package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"wishwell/internal/checkout"
	checkouthandler "wishwell/internal/checkout/handler"
	"wishwell/internal/fulfillment"
	"wishwell/internal/funding"
	fundinghandler "wishwell/internal/funding/handler"
	fundingmetrics "wishwell/internal/funding/metrics"
	"wishwell/internal/orders"
	"wishwell/internal/outbox"
	"wishwell/internal/platform/config"
	"wishwell/internal/platform/httpserver"
	"wishwell/internal/platform/logger"
	"wishwell/internal/platform/metrics"
	"wishwell/internal/platform/middleware"
	"wishwell/internal/platform/postgres"
	"wishwell/internal/platform/redis"
	"wishwell/internal/recon"
	"wishwell/internal/refund"
	"wishwell/internal/shipping"
	"wishwell/internal/shipping/ratecache"
	httptransport "wishwell/internal/transport/http"
	"wishwell/pkg/platform/retry"
)

// main wires dependencies and keeps the process lifecycle small. Business
// logic lives in the internal services.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Error("postgres open failed", "error", err)
		os.Exit(1)
	}

	var (
		fundingStore funding.Store
		orderStore   orders.Store
		reconStore   recon.Store
	)
	if db != nil {
		fundingPG := funding.NewPostgres(db)
		orderPG := orders.NewPostgres(db)
		reconPG := recon.NewPostgres(db)
		for _, m := range []interface {
			Migrate(ctx context.Context) error
		}{fundingPG, orderPG, reconPG} {
			if err := m.Migrate(ctx); err != nil {
				log.Error("migration failed", "error", err)
				os.Exit(1)
			}
		}
		fundingStore, orderStore, reconStore = fundingPG, orderPG, reconPG
		log.Info("using postgres stores")
	} else {
		fundingStore, orderStore, reconStore = funding.NewInMemory(), orders.NewInMemory(), recon.NewInMemory()
		log.Info("no postgres dsn configured; using in-memory stores")
	}

	rclient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connect failed", "error", err)
		os.Exit(1)
	}

	var quoteCache shipping.QuoteCache
	if rclient != nil {
		quoteCache = ratecache.NewRedis(rclient.Client, 5*time.Minute, log)
		log.Info("using redis quote cache")
	} else {
		quoteCache = ratecache.NewMemory(5 * time.Minute)
	}

	// External collaborators. The dev implementations stand in until real
	// carrier, payment and order platform adapters are configured.
	catalog := newDevCatalog()
	rateService := newDevRateService()
	payments := newDevPayments(log)
	platform := newDevPlatform(log)

	fMetrics := fundingmetrics.New()
	fundingSvc := funding.NewService(fundingStore, catalog, fMetrics, log)

	quoter := shipping.NewQuoter(rateService, log, shipping.WithQuoteCache(quoteCache))
	committer := orders.NewCommitter(orderStore, platform, reconStore, retry.DefaultPolicy(), log)
	delivery := orders.NewCoordinator(platform, log)
	checkoutSvc := checkout.NewService(quoter, committer, delivery, newDevNotifier(log), log)

	trigger := fulfillment.NewTrigger(fundingStore, committer, reconStore, log)
	refunder := refund.NewCoordinator(fundingStore, payments, reconStore, cfg.Workers.RefundTimeout, log)

	poller := outbox.NewPoller(fundingStore, cfg.Workers.OutboxPollInterval, cfg.Workers.OutboxBatchSize, log)
	poller.On(funding.TransitionCompleted, trigger)
	poller.On(funding.TransitionExpired, refunder)
	poller.On(funding.TransitionCancelled, refunder)
	if len(cfg.Kafka.Brokers) > 0 {
		feed := outbox.NewKafkaFeed(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer feed.Close()
		poller.On(funding.TransitionCompleted, feed)
		poller.On(funding.TransitionExpired, feed)
		poller.On(funding.TransitionCancelled, feed)
		log.Info("kafka transition feed enabled", "topic", cfg.Kafka.Topic)
	}

	sweeper := funding.NewSweeper(fundingSvc, fundingStore, cfg.Workers.SweepInterval, 100, log)

	httpMetrics := metrics.New()
	checks := healthChecks(db, rclient)
	var rateLimit func(http.Handler) http.Handler
	if rclient != nil && cfg.Server.RateLimitPerMinute > 0 {
		rateLimit = middleware.RateLimit(rclient.Client, cfg.Server.RateLimitPerMinute, time.Minute, log)
	}
	router := httptransport.NewRouter(log, httpMetrics, checks, rateLimit,
		fundinghandler.New(fundingSvc, log),
		checkouthandler.New(checkoutSvc, log),
		httptransport.NewReconHandler(reconStore),
	)
	srv := httpserver.New(cfg.Server.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return poller.Run(gctx) })
	g.Go(func() error { return sweeper.Run(gctx) })
	g.Go(func() error {
		log.Info("server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func healthChecks(db *sql.DB, rclient *redis.Client) map[string]httptransport.HealthCheck {
	checks := make(map[string]httptransport.HealthCheck)
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if rclient != nil {
		checks["redis"] = rclient.Health
	}
	return checks
}
