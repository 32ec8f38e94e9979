// Package storage is the typed, namespaced key-value layer every stateful
// component of the storefront persists through. Values are wrapped in a JSON
// envelope carrying an optional absolute expiry and stored as one string per
// key in a kv.Repository.
//
// Apart from construction, the untyped methods never return errors: they log
// the failure and hand back a neutral value (false, nil, 0, empty). Put and
// Fetch expose the same operations with typed errors for callers that need to
// tell failures apart.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"storefront/internal/domain"
	"storefront/internal/logging"
	"storefront/internal/repository/kv"
)

const (
	DefaultPrefix  = "producthub_"
	DefaultMaxSize = 5 * 1024 * 1024

	probeKey      = "__test__"
	quotaProbeKey = "__quota_test__"
	quotaProbeLen = 1024
)

var (
	// ErrItemTooLarge is returned when a serialized envelope exceeds MaxSize.
	ErrItemTooLarge = errors.New("storage: item exceeds max size")
	// ErrCorruptEnvelope is returned when a stored value cannot be decoded.
	ErrCorruptEnvelope = errors.New("storage: corrupt envelope")
	// ErrBackendUnavailable is returned by New when the backend fails its probe.
	ErrBackendUnavailable = errors.New("storage: backend unavailable")
	// ErrUnserializable is returned when a value cannot be encoded as JSON.
	ErrUnserializable = errors.New("storage: value is not serializable")
)

// Config is the runtime configuration of a Service.
type Config struct {
	Prefix             string `json:"prefix"`
	ObfuscationEnabled bool   `json:"encryptionEnabled"`
	// CompressionEnabled is accepted and reported but has no effect.
	CompressionEnabled bool `json:"compressionEnabled"`
	MaxSize            int  `json:"maxSize"`
}

func DefaultConfig() Config {
	return Config{Prefix: DefaultPrefix, MaxSize: DefaultMaxSize}
}

// ConfigPatch changes only the fields that are set.
type ConfigPatch struct {
	Prefix             *string
	ObfuscationEnabled *bool
	CompressionEnabled *bool
	MaxSize            *int
}

// SetOptions tunes a single write. A zero Expiry never expires.
type SetOptions struct {
	Expiry    time.Time
	Obfuscate bool
}

type Usage struct {
	Used       int     `json:"used"`
	Available  int     `json:"available"`
	Percentage float64 `json:"percentage"`
}

type Stats struct {
	TotalItems   int   `json:"totalItems"`
	TotalSize    int   `json:"totalSize"`
	Usage        Usage `json:"usage"`
	ExpiredItems int   `json:"expiredItems"`
}

type envelope struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
	Expiry    *int64          `json:"expiry,omitempty"`
	Encrypted bool            `json:"encrypted"`
}

func (e envelope) expiredAt(now time.Time) bool {
	return e.Expiry != nil && *e.Expiry > 0 && now.UnixMilli() > *e.Expiry
}

type Service struct {
	mu     sync.Mutex
	repo   kv.Repository
	cfg    Config
	logger logrus.FieldLogger
	now    func() time.Time

	nsMu       sync.Mutex
	namespaces map[string]struct{}
}

type Option func(*Service)

func WithConfig(cfg Config) Option {
	return func(s *Service) { s.cfg = cfg }
}

// WithClock replaces the wall clock used for expiry decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New probes repo with a write and a delete and fails with
// ErrBackendUnavailable when either is refused. A failing 1 KiB quota probe is
// only logged.
func New(ctx context.Context, repo kv.Repository, logger logrus.FieldLogger, opts ...Option) (*Service, error) {
	s := &Service{
		repo:       repo,
		cfg:        DefaultConfig(),
		logger:     logging.OrDiscard(logger),
		now:        time.Now,
		namespaces: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.MaxSize <= 0 {
		s.cfg.MaxSize = DefaultMaxSize
	}

	if err := repo.Set(ctx, probeKey, "test"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if err := repo.Remove(ctx, probeKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if err := repo.Set(ctx, quotaProbeKey, strings.Repeat("x", quotaProbeLen)); err != nil {
		s.logger.WithError(err).Warn("storage quota may be limited")
	} else if err := repo.Remove(ctx, quotaProbeKey); err != nil {
		s.logger.WithError(err).Warn("remove quota probe")
	}
	return s, nil
}

// Config returns a copy of the current configuration.
func (s *Service) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Configure applies patch to the live configuration. Keys written under an
// earlier prefix are no longer visible after a prefix change.
func (s *Service) Configure(patch ConfigPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if patch.Prefix != nil {
		s.cfg.Prefix = *patch.Prefix
	}
	if patch.ObfuscationEnabled != nil {
		s.cfg.ObfuscationEnabled = *patch.ObfuscationEnabled
	}
	if patch.CompressionEnabled != nil {
		s.cfg.CompressionEnabled = *patch.CompressionEnabled
	}
	if patch.MaxSize != nil && *patch.MaxSize > 0 {
		s.cfg.MaxSize = *patch.MaxSize
	}
}

// Ping checks the backend.
func (s *Service) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}

// Put stores value under key.
func (s *Service) Put(ctx context.Context, key string, value interface{}, opts SetOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(ctx, key, value, opts)
}

// Set is Put with failures logged and reported as false.
func (s *Service) Set(ctx context.Context, key string, value interface{}, opts SetOptions) bool {
	if err := s.Put(ctx, key, value, opts); err != nil {
		s.logger.WithError(err).WithField("key", key).Error("set item")
		return false
	}
	return true
}

// SetWithExpiry stores value for the given number of minutes.
func (s *Service) SetWithExpiry(ctx context.Context, key string, value interface{}, minutes int) bool {
	return s.setFor(ctx, key, value, time.Duration(minutes)*time.Minute)
}

// SetWithTTL stores value for the given number of seconds.
func (s *Service) SetWithTTL(ctx context.Context, key string, value interface{}, seconds int) bool {
	return s.setFor(ctx, key, value, time.Duration(seconds)*time.Second)
}

func (s *Service) setFor(ctx context.Context, key string, value interface{}, ttl time.Duration) bool {
	s.mu.Lock()
	expiry := s.now().Add(ttl)
	s.mu.Unlock()
	return s.Set(ctx, key, value, SetOptions{Expiry: expiry})
}

func (s *Service) put(ctx context.Context, key string, value interface{}, opts SetOptions) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnserializable, err)
	}
	full := s.cfg.Prefix + key
	env := envelope{
		Key:       full,
		Value:     raw,
		Encrypted: opts.Obfuscate || s.cfg.ObfuscationEnabled,
	}
	if !opts.Expiry.IsZero() {
		ms := opts.Expiry.UnixMilli()
		env.Expiry = &ms
	}
	serialized, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnserializable, err)
	}
	if len(serialized) > s.cfg.MaxSize {
		return fmt.Errorf("%w: %d > %d bytes", ErrItemTooLarge, len(serialized), s.cfg.MaxSize)
	}
	stored := string(serialized)
	if env.Encrypted {
		stored = Obfuscate(stored)
	}
	if err := s.repo.Set(ctx, full, stored); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	s.logger.WithField("key", key).Debug("item stored")
	return nil
}

// Fetch returns the raw JSON value stored under key. Absent and expired keys
// yield domain.ErrNotFound; an expired key is deleted as a side effect.
func (s *Service) Fetch(ctx context.Context, key string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	env, err := s.fetch(ctx, key)
	if err != nil {
		return nil, err
	}
	return env.Value, nil
}

func (s *Service) fetch(ctx context.Context, key string) (envelope, error) {
	env, err := s.read(ctx, s.cfg.Prefix+key)
	if err != nil {
		return envelope{}, err
	}
	if env.expiredAt(s.now()) {
		if err := s.repo.Remove(ctx, s.cfg.Prefix+key); err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("evict expired item")
		}
		return envelope{}, domain.ErrNotFound
	}
	return env, nil
}

// read loads and decodes the envelope stored under a fully prefixed key.
func (s *Service) read(ctx context.Context, full string) (envelope, error) {
	stored, ok, err := s.repo.Get(ctx, full)
	if err != nil {
		return envelope{}, fmt.Errorf("read %s: %w", full, err)
	}
	if !ok {
		return envelope{}, domain.ErrNotFound
	}
	return decode(stored)
}

func decode(stored string) (envelope, error) {
	var env envelope
	if plain, err := Deobfuscate(stored); err == nil {
		if err := json.Unmarshal([]byte(plain), &env); err == nil {
			return env, nil
		}
	}
	env = envelope{}
	if err := json.Unmarshal([]byte(stored), &env); err != nil {
		return envelope{}, fmt.Errorf("%w: %v", ErrCorruptEnvelope, err)
	}
	return env, nil
}

// Get returns the raw JSON value under key, or false when it is absent,
// expired or unreadable.
func (s *Service) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	raw, err := s.Fetch(ctx, key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WithError(err).WithField("key", key).Error("get item")
		}
		return nil, false
	}
	return raw, true
}

// Load decodes the value under key into dst.
func (s *Service) Load(ctx context.Context, key string, dst interface{}) bool {
	raw, ok := s.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.logger.WithError(err).WithField("key", key).Error("decode item")
		return false
	}
	return true
}

// Loader is implemented by Service and Namespace.
type Loader interface {
	Load(ctx context.Context, key string, dst interface{}) bool
}

// GetAs returns the value under key decoded as T.
func GetAs[T any](ctx context.Context, l Loader, key string) (T, bool) {
	var v T
	if !l.Load(ctx, key, &v) {
		var zero T
		return zero, false
	}
	return v, true
}

func (s *Service) Remove(ctx context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.Remove(ctx, s.cfg.Prefix+key); err != nil {
		s.logger.WithError(err).WithField("key", key).Error("remove item")
		return false
	}
	s.logger.WithField("key", key).Debug("item removed")
	return true
}

// Has reports whether key exists. It does not look at expiry.
func (s *Service) Has(ctx context.Context, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok, err := s.repo.Get(ctx, s.cfg.Prefix+key)
	if err != nil {
		s.logger.WithError(err).WithField("key", key).Error("check item")
		return false
	}
	return ok
}

// Keys lists the unprefixed keys of the current prefix in backend order.
func (s *Service) Keys(ctx context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, err := s.keys(ctx)
	if err != nil {
		s.logger.WithError(err).Error("list keys")
		return []string{}
	}
	return keys
}

func (s *Service) keys(ctx context.Context) ([]string, error) {
	full, err := s.repo.Keys(ctx, s.cfg.Prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(full))
	for _, k := range full {
		keys = append(keys, strings.TrimPrefix(k, s.cfg.Prefix))
	}
	return keys, nil
}

// All returns every live value keyed by unprefixed key. Expired entries are
// evicted on the way.
func (s *Service) All(ctx context.Context) map[string]json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.all(ctx)
}

func (s *Service) all(ctx context.Context) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage)
	keys, err := s.keys(ctx)
	if err != nil {
		s.logger.WithError(err).Error("list keys")
		return out
	}
	for _, key := range keys {
		env, err := s.fetch(ctx, key)
		if err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				s.logger.WithError(err).WithField("key", key).Error("get item")
			}
			continue
		}
		out[key] = env.Value
	}
	return out
}

// ClearAll removes every key under the current prefix.
func (s *Service) ClearAll(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearAll(ctx)
}

func (s *Service) clearAll(ctx context.Context) bool {
	keys, err := s.keys(ctx)
	if err != nil {
		s.logger.WithError(err).Error("clear storage")
		return false
	}
	ok := true
	for _, key := range keys {
		if err := s.repo.Remove(ctx, s.cfg.Prefix+key); err != nil {
			s.logger.WithError(err).WithField("key", key).Error("remove item")
			ok = false
		}
	}
	s.logger.WithField("count", len(keys)).Info("storage cleared")
	return ok
}

// ClearExpired evicts every expired entry and returns how many were removed.
func (s *Service) ClearExpired(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, err := s.keys(ctx)
	if err != nil {
		s.logger.WithError(err).Error("clear expired")
		return 0
	}
	now := s.now()
	cleared := 0
	for _, key := range keys {
		env, err := s.read(ctx, s.cfg.Prefix+key)
		if err != nil || !env.expiredAt(now) {
			continue
		}
		if err := s.repo.Remove(ctx, s.cfg.Prefix+key); err != nil {
			s.logger.WithError(err).WithField("key", key).Error("evict expired item")
			continue
		}
		cleared++
	}
	if cleared > 0 {
		s.logger.WithField("count", cleared).Info("expired items cleared")
	}
	return cleared
}

// Expiry returns the absolute expiry of key, false when the key is missing or
// never expires.
func (s *Service) Expiry(ctx context.Context, key string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	env, err := s.read(ctx, s.cfg.Prefix+key)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WithError(err).WithField("key", key).Error("get expiry")
		}
		return time.Time{}, false
	}
	if env.Expiry == nil || *env.Expiry <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(*env.Expiry), true
}

// IsExpired reports whether key carries an expiry that has passed. It does
// not evict.
func (s *Service) IsExpired(ctx context.Context, key string) bool {
	expiry, ok := s.Expiry(ctx, key)
	if !ok {
		return false
	}
	s.mu.Lock()
	now := s.now()
	s.mu.Unlock()
	return now.UnixMilli() > expiry.UnixMilli()
}

// Usage sums the stored length of every key under the prefix, expired ones
// included, against MaxSize.
func (s *Service) Usage(ctx context.Context) Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	used, _, _ := s.scan(ctx)
	return s.usage(used)
}

func (s *Service) usage(used int) Usage {
	available := s.cfg.MaxSize - used
	if available < 0 {
		available = 0
	}
	return Usage{
		Used:       used,
		Available:  available,
		Percentage: float64(used) / float64(s.cfg.MaxSize) * 100,
	}
}

// Stats reports item counts and sizes without evicting anything.
func (s *Service) Stats(ctx context.Context) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	used, items, expired := s.scan(ctx)
	return Stats{
		TotalItems:   items,
		TotalSize:    used,
		Usage:        s.usage(used),
		ExpiredItems: expired,
	}
}

func (s *Service) scan(ctx context.Context) (used, items, expired int) {
	keys, err := s.repo.Keys(ctx, s.cfg.Prefix)
	if err != nil {
		s.logger.WithError(err).Error("scan storage")
		return 0, 0, 0
	}
	now := s.now()
	for _, full := range keys {
		stored, ok, err := s.repo.Get(ctx, full)
		if err != nil || !ok {
			continue
		}
		items++
		used += len(stored)
		if env, err := decode(stored); err == nil && env.expiredAt(now) {
			expired++
		}
	}
	return used, items, expired
}
