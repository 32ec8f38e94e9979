package db

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"storefront/internal/logging"
)

const redisConnectRetries = 5

// ConnectRedis opens a redis client and retries the initial ping with
// exponential backoff.
func ConnectRedis(ctx context.Context, addr string, dbIndex int, logger logrus.FieldLogger) (*redis.Client, error) {
	log := logging.OrDiscard(logger)
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   dbIndex,
	})

	var err error
	for i := 0; i < redisConnectRetries; i++ {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			log.WithField("addr", addr).Info("connected to redis")
			return rdb, nil
		}

		backoff := time.Duration(1<<i) * time.Second
		log.WithField("addr", addr).Warnf("redis not ready, retry in %v (%d/%d)", backoff, i+1, redisConnectRetries)
		select {
		case <-ctx.Done():
			_ = rdb.Close()
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	_ = rdb.Close()
	return nil, fmt.Errorf("connect to redis after %d retries: %w", redisConnectRetries, err)
}
