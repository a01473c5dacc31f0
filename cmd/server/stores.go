package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"leadtriage/internal/leads/events"
	"leadtriage/internal/leads/service"
	"leadtriage/internal/leads/store"
	"leadtriage/internal/platform/config"
	"leadtriage/internal/platform/database"
	"leadtriage/pkg/platform/circuit"
)

// openStore builds the configured lead store, migrating SQL backends. The
// returned closer releases its connections.
func openStore(ctx context.Context, cfg config.Server, log *slog.Logger) (service.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Store.Backend {
	case config.StorePostgres:
		db, err := database.OpenPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		s := store.NewPostgres(db)
		return migrated(ctx, s, db, log, "postgres")
	case config.StoreSQLite:
		db, err := database.OpenSQLite(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, noop, err
		}
		s := store.NewSQLite(db)
		return migrated(ctx, s, db, log, "sqlite")
	case config.StoreRedis:
		client, err := database.OpenRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, noop, err
		}
		log.Info("lead store ready", "backend", "redis")
		return store.NewRedis(client), client.Close, nil
	default:
		log.Info("lead store ready", "backend", "memory")
		return store.NewInMemory(), noop, nil
	}
}

type migratingStore interface {
	service.Store
	store.Migrator
}

func migrated(ctx context.Context, s migratingStore, db *sql.DB, log *slog.Logger, backend string) (service.Store, func() error, error) {
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, func() error { return nil }, fmt.Errorf("migrate %s store: %w", backend, err)
	}
	log.Info("lead store ready", "backend", backend)
	return s, db.Close, nil
}

// openPublisher returns the Kafka publisher when brokers are configured and
// the log publisher otherwise. Kafka failures fall back to the log.
func openPublisher(ctx context.Context, cfg config.KafkaConfig, log *slog.Logger) (events.Publisher, error) {
	logPublisher := events.NewLogPublisher(log)
	if len(cfg.Brokers) == 0 {
		return logPublisher, nil
	}
	p, err := events.NewKafkaPublisher(ctx, cfg.Brokers, cfg.LeadTopic, log,
		events.WithFallback(logPublisher),
		events.WithBreaker(circuit.New("kafka")),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka publisher: %w", err)
	}
	log.Info("lead events publishing to kafka", "brokers", cfg.Brokers, "topic", cfg.LeadTopic)
	return p, nil
}
