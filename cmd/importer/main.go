package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"storefront/internal/config"
	"storefront/internal/db"
	"storefront/internal/importer"
	"storefront/internal/logging"
	productrepo "storefront/internal/repository/product"
)

func main() {
	var filePath string
	flag.StringVar(&filePath, "file", "", "Path to commercetools product CSV export")
	flag.Parse()

	if filePath == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.FromEnv()
	if err != nil {
		logging.New("info", "json").WithError(err).Fatal("load config")
	}
	log := logging.New(cfg.LogLevel, cfg.LogFormat).WithField("service", "importer")

	start := time.Now()
	count, err := run(context.Background(), cfg.Store, filePath, log)
	if err != nil {
		log.WithError(err).Fatal("import failed")
	}

	fmt.Printf("Imported %d products in %s\n", count, time.Since(start).Truncate(time.Millisecond))
}

func run(ctx context.Context, cfg config.StoreConfig, filePath string, log logrus.FieldLogger) (int, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return 0, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	store, closeStore, err := db.OpenStorage(ctx, cfg, log)
	if err != nil {
		return 0, fmt.Errorf("open store: %w", err)
	}
	defer closeStore()

	catalog, err := store.Namespace("catalog")
	if err != nil {
		return 0, fmt.Errorf("register catalog namespace: %w", err)
	}
	return importer.NewCSVImporter(f, productrepo.NewStore(catalog, log), log).Run(ctx)
}
