package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	leadhandler "leadtriage/internal/leads/handler"
	"leadtriage/internal/leads/intake"
	leadmetrics "leadtriage/internal/leads/metrics"
	"leadtriage/internal/leads/service"
	"leadtriage/internal/platform/config"
	"leadtriage/internal/platform/httpserver"
	"leadtriage/internal/platform/logger"
	"leadtriage/internal/platform/metrics"
	"leadtriage/internal/ratelimit"
	ratelimitmetrics "leadtriage/internal/ratelimit/metrics"
	ratelimitmw "leadtriage/internal/ratelimit/middleware"
	"leadtriage/internal/resume"
	"leadtriage/internal/staff"
	staffhandler "leadtriage/internal/staff/handler"
	httptransport "leadtriage/internal/transport/http"
	"leadtriage/pkg/platform/middleware/metadata"
)

const (
	shutdownTimeout    = 10 * time.Second
	limiterSweepPeriod = time.Minute
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	reg := prometheus.DefaultRegisterer

	leadStore, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Warn("failed to close lead store", "error", err)
		}
	}()

	publisher, err := openPublisher(ctx, cfg.Kafka, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warn("failed to close event publisher", "error", err)
		}
	}()

	ref, err := intake.LoadReferenceData(cfg.Intake.ReferenceDataPath)
	if err != nil {
		return err
	}
	validator := intake.NewValidator(ref, intake.WithEnforceReferenceData(cfg.Intake.EnforceReferenceData))

	leads := service.New(leadStore, validator,
		service.WithLogger(log),
		service.WithPublisher(publisher),
		service.WithMetrics(leadmetrics.New(reg)),
	)
	if cfg.Intake.Seed {
		n, err := leads.SeedDemoLeads(ctx, time.Now())
		if err != nil {
			return err
		}
		log.Info("demo leads seeded", "count", n)
	}

	resumes, err := resume.NewStorage(cfg.Resume.Dir, cfg.Resume.MaxBytes)
	if err != nil {
		return err
	}

	if len(cfg.Staff.Accounts) == 0 {
		log.Warn("no staff accounts configured; the review dashboard is unreachable")
	}
	tokens := staff.NewTokenService(cfg.Staff.SigningKey, cfg.Staff.SessionTTL)
	staffSvc := staff.NewService(staff.NewCredentials(cfg.Staff.Accounts), tokens, log)

	limiter := ratelimit.NewIPLimiter(cfg.Intake.RatePerMinute, cfg.Intake.Burst)
	limiterMetrics := ratelimitmetrics.New(reg)
	rateLimit := ratelimitmw.New(limiter, log, ratelimitmw.WithMetrics(limiterMetrics))

	proxies, err := metadata.NewResolver(cfg.TrustedProxies)
	if err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}

	router := httptransport.NewRouter(httptransport.Deps{
		Logger:    log,
		Proxies:   proxies,
		Metrics:   metrics.New(reg),
		Gatherer:  prometheus.DefaultGatherer,
		Health:    leads,
		Sessions:  tokens,
		RateLimit: rateLimit.RateLimit(),
		Leads:     leadhandler.New(leads, resumes, log),
		Staff:     staffhandler.New(staffSvc, log),
		Resumes:   resume.NewHandler(resumes, log),
	})
	srv := httpserver.New(cfg.Addr, router)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting leadtriage", "addr", cfg.Addr, "store", cfg.Store.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return limiter.Run(gctx, limiterSweepPeriod, limiterMetrics.SetTrackedClients)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})
	return g.Wait()
}
