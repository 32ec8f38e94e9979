package kv

import (
	"context"
	"strings"
	"sync"
)

// memoryRepo keeps entries in insertion order, like a browser's local storage.
type memoryRepo struct {
	mu    sync.RWMutex
	order []string
	items map[string]string
	quota int
	used  int
}

// NewMemory returns an in-process backend. A positive quota caps the summed
// length of keys and values in bytes; zero means unlimited.
func NewMemory(quota int) Repository {
	return &memoryRepo{
		items: make(map[string]string),
		quota: quota,
	}
}

func (r *memoryRepo) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[key]
	return v, ok, nil
}

func (r *memoryRepo) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	old, exists := r.items[key]
	used := r.used + len(value)
	if exists {
		used -= len(old)
	} else {
		used += len(key)
	}
	if r.quota > 0 && used > r.quota {
		return ErrQuotaExceeded
	}
	if !exists {
		r.order = append(r.order, key)
	}
	r.items[key] = value
	r.used = used
	return nil
}

func (r *memoryRepo) Remove(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.items[key]
	if !ok {
		return nil
	}
	delete(r.items, key)
	r.used -= len(key) + len(old)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func (r *memoryRepo) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.order))
	for _, k := range r.order {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (r *memoryRepo) Ping(ctx context.Context) error {
	return ctx.Err()
}
