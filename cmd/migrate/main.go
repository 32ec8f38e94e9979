package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/logging"
	"storefront/internal/migrate"
	"storefront/internal/repository/kv"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		logging.New("info", "json").WithError(err).Fatal("load config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat).WithField("service", "migrate")
	if err := run(context.Background(), cfg.Store, log); err != nil {
		log.WithError(err).Fatal("migrate failed")
	}
}

func run(ctx context.Context, cfg config.StoreConfig, log logrus.FieldLogger) error {
	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := db.Connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := migrate.Apply(ctx, pool); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	case config.BackendSQLite:
		// Opening the store applies its schema.
		s, err := kv.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		defer s.Close()
	default:
		log.Infof("backend %s has no schema, nothing to do", cfg.Backend)
		return nil
	}

	log.WithField("backend", cfg.Backend).Info("migrations applied")
	return nil
}
