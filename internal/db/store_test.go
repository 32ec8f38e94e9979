package db

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"storefront/internal/config"
	"storefront/internal/service/storage"
)

func TestOpenStorage_Memory(t *testing.T) {
	svc, closeFn, err := OpenStorage(context.Background(), config.StoreConfig{
		Backend:      config.BackendMemory,
		Prefix:       "test_",
		MaxSizeBytes: 1024,
		Obfuscate:    true,
	}, nil)
	if err != nil {
		t.Fatalf("OpenStorage: %v", err)
	}
	defer closeFn()
	got := svc.Config()
	if got.Prefix != "test_" || got.MaxSize != 1024 || !got.ObfuscationEnabled {
		t.Fatalf("config not applied: %+v", got)
	}
}

func TestOpenStorage_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	svc, closeFn, err := OpenStorage(context.Background(), config.StoreConfig{
		Backend:      config.BackendSQLite,
		SQLitePath:   path,
		Prefix:       "producthub_",
		MaxSizeBytes: storage.DefaultMaxSize,
	}, nil)
	if err != nil {
		t.Fatalf("OpenStorage: %v", err)
	}
	defer closeFn()
	ctx := context.Background()
	if !svc.Set(ctx, "k", "v", storage.SetOptions{}) {
		t.Fatalf("Set failed")
	}
	if v, ok := storage.GetAs[string](ctx, svc, "k"); !ok || v != "v" {
		t.Fatalf("got %q %v", v, ok)
	}
}

func TestOpenStorage_QuotaTooSmallFailsProbe(t *testing.T) {
	_, _, err := OpenStorage(context.Background(), config.StoreConfig{
		Backend:          config.BackendMemory,
		MemoryQuotaBytes: 4,
		MaxSizeBytes:     1024,
	}, nil)
	if !errors.Is(err, storage.ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestOpenBackend_Unknown(t *testing.T) {
	_, _, err := OpenBackend(context.Background(), config.StoreConfig{Backend: "etcd"}, nil)
	if err == nil || !strings.Contains(err.Error(), "etcd") {
		t.Fatalf("expected unsupported backend error, got %v", err)
	}
}
