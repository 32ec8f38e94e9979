package kv

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"storefront/internal/logging"
)

const redisScanBatch = 256

type redisRepo struct {
	rdb redis.UniversalClient
	cb  *gobreaker.CircuitBreaker
}

// NewRedis stores each entry as a plain string key. Every call goes through a
// circuit breaker.
func NewRedis(rdb redis.UniversalClient, logger logrus.FieldLogger) Repository {
	log := logging.OrDiscard(logger)
	st := gobreaker.Settings{
		Name:        "kv-redis",
		MaxRequests: 1,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrQuotaExceeded) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithField("breaker", name).Warnf("circuit breaker state changed from %s to %s", from, to)
		},
	}
	return &redisRepo{rdb: rdb, cb: gobreaker.NewCircuitBreaker(st)}
}

func (r *redisRepo) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.cb.Execute(func() (interface{}, error) {
		res, err := r.rdb.Get(ctx, key).Result()
		if err == redis.Nil {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return res, nil
	})
	if err != nil {
		return "", false, errors.Wrapf(err, "kv redis: get %s", key)
	}
	if val == nil {
		return "", false, nil
	}
	return val.(string), true, nil
}

func (r *redisRepo) Set(ctx context.Context, key, value string) error {
	_, err := r.cb.Execute(func() (interface{}, error) {
		err := r.rdb.Set(ctx, key, value, 0).Err()
		if err != nil && strings.HasPrefix(err.Error(), "OOM") {
			return nil, errors.Wrap(ErrQuotaExceeded, err.Error())
		}
		return nil, err
	})
	return errors.Wrapf(err, "kv redis: set %s", key)
}

func (r *redisRepo) Remove(ctx context.Context, key string) error {
	_, err := r.cb.Execute(func() (interface{}, error) {
		return nil, r.rdb.Del(ctx, key).Err()
	})
	return errors.Wrapf(err, "kv redis: remove %s", key)
}

// Keys scans the keyspace by prefix. Redis has no insertion order, so keys are
// returned sorted to keep enumeration stable between calls.
func (r *redisRepo) Keys(ctx context.Context, prefix string) ([]string, error) {
	val, err := r.cb.Execute(func() (interface{}, error) {
		var keys []string
		iter := r.rdb.Scan(ctx, 0, globEscape(prefix)+"*", redisScanBatch).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		return keys, iter.Err()
	})
	if err != nil {
		return nil, errors.Wrap(err, "kv redis: keys")
	}
	keys := val.([]string)
	sort.Strings(keys)
	return keys, nil
}

func (r *redisRepo) Ping(ctx context.Context) error {
	return errors.Wrap(r.rdb.Ping(ctx).Err(), "kv redis: ping")
}

func globEscape(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
