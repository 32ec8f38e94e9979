package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/logging"
	productrepo "storefront/internal/repository/product"
	"storefront/internal/seed"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		logging.New("info", "json").WithError(err).Fatal("load config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat).WithField("service", "seed")
	if err := run(context.Background(), cfg.Store, log); err != nil {
		log.WithError(err).Fatal("seed failed")
	}
	log.WithField("products", len(seed.Products)).Info("seed applied")
}

func run(ctx context.Context, cfg config.StoreConfig, log logrus.FieldLogger) error {
	store, closeStore, err := db.OpenStorage(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	catalog, err := store.Namespace("catalog")
	if err != nil {
		return fmt.Errorf("register catalog namespace: %w", err)
	}
	if err := seed.Apply(ctx, productrepo.NewStore(catalog, log)); err != nil {
		return fmt.Errorf("seed apply: %w", err)
	}
	return nil
}
