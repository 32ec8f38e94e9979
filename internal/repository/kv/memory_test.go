package kv

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestMemory_SetGetRemove(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory(0)

	if _, ok, err := repo.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}
	if err := repo.Set(ctx, "a", "1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := repo.Get(ctx, "a")
	if err != nil || !ok || v != "1" {
		t.Fatalf("unexpected get %q %v %v", v, ok, err)
	}
	if err := repo.Remove(ctx, "a"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := repo.Remove(ctx, "a"); err != nil {
		t.Fatalf("second Remove should be a no-op: %v", err)
	}
	if _, ok, _ := repo.Get(ctx, "a"); ok {
		t.Fatalf("expected key removed")
	}
}

func TestMemory_KeysKeepInsertionOrderAndFilterPrefix(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory(0)
	for _, k := range []string{"p_b", "other", "p_a", "p_c"} {
		if err := repo.Set(ctx, k, "x"); err != nil {
			t.Fatalf("Set %s: %v", k, err)
		}
	}
	// overwrite keeps position
	if err := repo.Set(ctx, "p_b", "y"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	keys, err := repo.Keys(ctx, "p_")
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if want := []string{"p_b", "p_a", "p_c"}; !reflect.DeepEqual(keys, want) {
		t.Fatalf("expected %v, got %v", want, keys)
	}
}

func TestMemory_Quota(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory(10)

	if err := repo.Set(ctx, "k", "12345"); err != nil {
		t.Fatalf("Set within quota: %v", err)
	}
	if err := repo.Set(ctx, "j", "123456"); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	// replacing a value only counts the difference
	if err := repo.Set(ctx, "k", "123456789"); err != nil {
		t.Fatalf("replace within quota: %v", err)
	}
	if err := repo.Remove(ctx, "k"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := repo.Set(ctx, "j", "123456"); err != nil {
		t.Fatalf("expected space after remove: %v", err)
	}
}

func TestMemory_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	repo := NewMemory(0)
	if err := repo.Set(ctx, "k", "v"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	if err := repo.Ping(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled ping, got %v", err)
	}
}
