package db

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"storefront/internal/config"
	"storefront/internal/logging"
	"storefront/internal/repository/kv"
	"storefront/internal/service/storage"
)

// OpenBackend connects the backend named by cfg.Backend. The returned func
// releases its connections.
func OpenBackend(ctx context.Context, cfg config.StoreConfig, logger logrus.FieldLogger) (kv.Repository, func(), error) {
	log := logging.OrDiscard(logger).WithField("backend", cfg.Backend)
	switch cfg.Backend {
	case config.BackendMemory, "":
		log.Warn("using in-memory store, data is lost on exit")
		return kv.NewMemory(cfg.MemoryQuotaBytes), func() {}, nil
	case config.BackendPostgres:
		pool, err := Connect(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		return kv.NewPostgres(pool), pool.Close, nil
	case config.BackendSQLite:
		s, err := kv.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		return s, func() {
			if err := s.Close(); err != nil {
				log.WithError(err).Warn("close sqlite")
			}
		}, nil
	case config.BackendRedis:
		rdb, err := ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisDB, logger)
		if err != nil {
			return nil, nil, err
		}
		return kv.NewRedis(rdb, logger), func() {
			if err := rdb.Close(); err != nil {
				log.WithError(err).Warn("close redis")
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
}

// OpenStorage opens the configured backend and builds the storage service on
// top of it.
func OpenStorage(ctx context.Context, cfg config.StoreConfig, logger logrus.FieldLogger) (*storage.Service, func(), error) {
	repo, closeFn, err := OpenBackend(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	svc, err := storage.New(ctx, repo, logger, storage.WithConfig(storage.Config{
		Prefix:             cfg.Prefix,
		ObfuscationEnabled: cfg.Obfuscate,
		MaxSize:            cfg.MaxSizeBytes,
	}))
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return svc, closeFn, nil
}
