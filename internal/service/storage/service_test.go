package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository/kv"
)

type fakeClock struct{ t time.Time }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	svc, err := New(context.Background(), kv.NewMemory(0), nil, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return svc
}

type profile struct {
	Name  string   `json:"name"`
	Tags  []string `json:"tags"`
	Score int      `json:"score"`
}

func TestSetGetRoundTrip(t *testing.T) {
	for _, obfuscate := range []bool{false, true} {
		svc := newService(t)
		ctx := context.Background()
		in := profile{Name: "Ada", Tags: []string{"a", "b"}, Score: 7}
		if !svc.Set(ctx, "profile", in, SetOptions{Obfuscate: obfuscate}) {
			t.Fatalf("Set failed (obfuscate=%v)", obfuscate)
		}
		out, ok := GetAs[profile](ctx, svc, "profile")
		if !ok {
			t.Fatalf("GetAs missing (obfuscate=%v)", obfuscate)
		}
		if out.Name != in.Name || out.Score != in.Score || len(out.Tags) != 2 || out.Tags[1] != "b" {
			t.Fatalf("round trip mismatch: %+v", out)
		}
	}
}

func TestStoredEnvelopeLayout(t *testing.T) {
	repo := kv.NewMemory(0)
	svc, err := New(context.Background(), repo, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	svc.Set(ctx, "plain", 42, SetOptions{})
	svc.Set(ctx, "hidden", "secret", SetOptions{Obfuscate: true})

	raw, ok, _ := repo.Get(ctx, "producthub_plain")
	if !ok {
		t.Fatalf("expected key under prefix")
	}
	var env map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		t.Fatalf("plain envelope is not JSON: %v", err)
	}
	if env["key"] != "producthub_plain" || env["value"] != float64(42) || env["encrypted"] != false {
		t.Fatalf("unexpected envelope %v", env)
	}
	if _, has := env["expiry"]; has {
		t.Fatalf("expiry should be omitted: %v", env)
	}

	hidden, _, _ := repo.Get(ctx, "producthub_hidden")
	if strings.Contains(hidden, "secret") {
		t.Fatalf("obfuscated envelope leaks value: %s", hidden)
	}
}

func TestObfuscateIsReversible(t *testing.T) {
	for _, in := range []string{"", "hello", `{"key":"x","value":[1,2]}`, "ÿ\x00~"} {
		enc := Obfuscate(in)
		if in != "" && enc == in {
			t.Fatalf("encoding of %q should differ", in)
		}
		dec, err := Deobfuscate(enc)
		if err != nil {
			t.Fatalf("Deobfuscate: %v", err)
		}
		if dec != in {
			t.Fatalf("got %q want %q", dec, in)
		}
	}
	if _, err := Deobfuscate("{not base64"); err == nil {
		t.Fatalf("expected error for invalid input")
	}
}

func TestExpiryIsLazy(t *testing.T) {
	clock := newClock()
	svc := newService(t, WithClock(clock.Now))
	ctx := context.Background()

	if !svc.SetWithExpiry(ctx, "session", "abc", 0) {
		t.Fatalf("SetWithExpiry failed")
	}
	if !svc.SetWithTTL(ctx, "token", "t", 30) {
		t.Fatalf("SetWithTTL failed")
	}
	clock.Advance(time.Millisecond)

	if !svc.Has(ctx, "session") {
		t.Fatalf("Has should ignore expiry")
	}
	if !svc.IsExpired(ctx, "session") {
		t.Fatalf("session should report expired")
	}
	if _, ok := svc.Get(ctx, "session"); ok {
		t.Fatalf("expired item returned")
	}
	for _, k := range svc.Keys(ctx) {
		if k == "session" {
			t.Fatalf("expired key still listed after read")
		}
	}
	if _, ok := svc.Get(ctx, "token"); !ok {
		t.Fatalf("token should still be live")
	}
	expiry, ok := svc.Expiry(ctx, "token")
	if !ok || !expiry.Equal(newClock().t.Add(30*time.Second)) {
		t.Fatalf("unexpected expiry %v %v", expiry, ok)
	}

	clock.Advance(time.Minute)
	if got := svc.ClearExpired(ctx); got != 1 {
		t.Fatalf("ClearExpired = %d, want 1", got)
	}
	if len(svc.Keys(ctx)) != 0 {
		t.Fatalf("keys left: %v", svc.Keys(ctx))
	}
}

func TestStatsCountExpiredWithoutEvicting(t *testing.T) {
	clock := newClock()
	svc := newService(t, WithClock(clock.Now))
	ctx := context.Background()
	svc.SetWithTTL(ctx, "a", 1, 1)
	svc.Set(ctx, "b", 2, SetOptions{})
	clock.Advance(2 * time.Second)

	stats := svc.Stats(ctx)
	if stats.TotalItems != 2 || stats.ExpiredItems != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.TotalSize == 0 || stats.Usage.Used != stats.TotalSize {
		t.Fatalf("unexpected sizes %+v", stats)
	}
	if stats.Usage.Available != DefaultMaxSize-stats.TotalSize {
		t.Fatalf("unexpected available %d", stats.Usage.Available)
	}
}

func TestSetRejectsOversizedItem(t *testing.T) {
	svc := newService(t, WithConfig(Config{Prefix: "p_", MaxSize: 64}))
	ctx := context.Background()
	err := svc.Put(ctx, "big", strings.Repeat("x", 100), SetOptions{})
	if !errors.Is(err, ErrItemTooLarge) {
		t.Fatalf("expected ErrItemTooLarge, got %v", err)
	}
	if svc.Set(ctx, "big", strings.Repeat("x", 100), SetOptions{}) {
		t.Fatalf("Set should report false")
	}
	if svc.Has(ctx, "big") {
		t.Fatalf("rejected item must not be stored")
	}
}

func TestSetReportsBackendQuota(t *testing.T) {
	svc, err := New(context.Background(), kv.NewMemory(2048), nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = svc.Put(context.Background(), "blob", strings.Repeat("y", 4096), SetOptions{})
	if !errors.Is(err, kv.ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
}

func TestUnserializableValue(t *testing.T) {
	svc := newService(t)
	err := svc.Put(context.Background(), "ch", make(chan int), SetOptions{})
	if !errors.Is(err, ErrUnserializable) {
		t.Fatalf("expected ErrUnserializable, got %v", err)
	}
}

func TestFetchDistinguishesFailures(t *testing.T) {
	repo := kv.NewMemory(0)
	svc, _ := New(context.Background(), repo, nil)
	ctx := context.Background()
	if _, err := svc.Fetch(ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	_ = repo.Set(ctx, "producthub_junk", "{{{")
	if _, err := svc.Fetch(ctx, "junk"); !errors.Is(err, ErrCorruptEnvelope) {
		t.Fatalf("expected ErrCorruptEnvelope, got %v", err)
	}
	if _, ok := svc.Get(ctx, "junk"); ok {
		t.Fatalf("corrupt item returned")
	}
}

func TestGlobalObfuscationAppliesToEveryWrite(t *testing.T) {
	repo := kv.NewMemory(0)
	svc, _ := New(context.Background(), repo, nil)
	on := true
	svc.Configure(ConfigPatch{ObfuscationEnabled: &on})
	ctx := context.Background()
	svc.Set(ctx, "k", "visible?", SetOptions{})
	raw, _, _ := repo.Get(ctx, "producthub_k")
	if strings.Contains(raw, "visible?") {
		t.Fatalf("value stored in the clear: %s", raw)
	}
	v, ok := GetAs[string](ctx, svc, "k")
	if !ok || v != "visible?" {
		t.Fatalf("got %q %v", v, ok)
	}
}

func TestConfigurePrefixIsolatesKeys(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	svc.Set(ctx, "a", 1, SetOptions{})
	prefix := "other_"
	svc.Configure(ConfigPatch{Prefix: &prefix})
	if svc.Has(ctx, "a") || len(svc.Keys(ctx)) != 0 {
		t.Fatalf("keys from old prefix are visible")
	}
	if svc.Config().Prefix != "other_" {
		t.Fatalf("prefix not applied")
	}
}

func TestClearAllLeavesForeignKeys(t *testing.T) {
	repo := kv.NewMemory(0)
	svc, _ := New(context.Background(), repo, nil)
	ctx := context.Background()
	_ = repo.Set(ctx, "unrelated", "x")
	svc.Set(ctx, "a", 1, SetOptions{})
	svc.Set(ctx, "b", 2, SetOptions{})
	if !svc.ClearAll(ctx) {
		t.Fatalf("ClearAll failed")
	}
	if len(svc.Keys(ctx)) != 0 {
		t.Fatalf("keys remain")
	}
	if _, ok, _ := repo.Get(ctx, "unrelated"); !ok {
		t.Fatalf("foreign key removed")
	}
}

func TestBackupRestore(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	want := map[string]int{"one": 1, "two": 2, "three": 3}
	for k, v := range want {
		svc.Set(ctx, k, v, SetOptions{})
	}
	backup := svc.Backup(ctx)
	if !strings.Contains(backup, `"encryptionEnabled":false`) || !strings.Contains(backup, `"timestamp"`) {
		t.Fatalf("unexpected backup %s", backup)
	}

	svc.ClearAll(ctx)
	if keys := svc.Keys(ctx); len(keys) != 0 {
		t.Fatalf("keys after ClearAll: %v", keys)
	}
	svc.Set(ctx, "stray", true, SetOptions{})
	if !svc.Restore(ctx, backup) {
		t.Fatalf("Restore failed")
	}
	keys := svc.Keys(ctx)
	if len(keys) != len(want) {
		t.Fatalf("keys after restore: %v", keys)
	}
	for k, v := range want {
		got, ok := GetAs[int](ctx, svc, k)
		if !ok || got != v {
			t.Fatalf("key %s: got %d %v", k, got, ok)
		}
	}
}

func TestRestoreRejectsGarbageWithoutClearing(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	svc.Set(ctx, "keep", 1, SetOptions{})
	if svc.Restore(ctx, "not json") || svc.Restore(ctx, `{"timestamp":"x"}`) {
		t.Fatalf("Restore should fail")
	}
	if !svc.Has(ctx, "keep") {
		t.Fatalf("failed restore cleared data")
	}
}

func TestExportImport(t *testing.T) {
	src := newService(t)
	ctx := context.Background()
	src.Set(ctx, "x", map[string]string{"a": "b"}, SetOptions{})
	out := src.Export(ctx)
	if !strings.Contains(out, "\n  \"x\"") {
		t.Fatalf("export not indented: %s", out)
	}

	dst := newService(t)
	dst.Set(ctx, "existing", 1, SetOptions{})
	if !dst.Import(ctx, out) {
		t.Fatalf("Import failed")
	}
	if !dst.Has(ctx, "existing") || !dst.Has(ctx, "x") {
		t.Fatalf("import should merge: %v", dst.Keys(ctx))
	}
}

func TestNamespaces(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	cart, err := svc.Namespace("cart")
	if err != nil {
		t.Fatalf("Namespace: %v", err)
	}
	if _, err := svc.Namespace("cart"); !errors.Is(err, domain.ErrNamespaceTaken) {
		t.Fatalf("expected ErrNamespaceTaken, got %v", err)
	}
	if _, err := svc.Namespace("car"); !errors.Is(err, domain.ErrNamespaceTaken) {
		t.Fatalf("expected overlap error, got %v", err)
	}
	if _, err := svc.Namespace("a:b"); err == nil {
		t.Fatalf("expected invalid name error")
	}
	catalog, err := svc.Namespace("catalog")
	if err != nil {
		t.Fatalf("Namespace catalog: %v", err)
	}

	cart.Set(ctx, "shopping_cart", 1, SetOptions{})
	catalog.Set(ctx, "p1", 2, SetOptions{})
	if keys := cart.Keys(ctx); len(keys) != 1 || keys[0] != "shopping_cart" {
		t.Fatalf("cart keys %v", keys)
	}
	if !svc.Has(ctx, "catalog:p1") {
		t.Fatalf("namespace key not stored with sub-prefix")
	}
}

type brokenRepo struct {
	kv.Repository
	broken bool
}

var errDown = errors.New("backend down")

func (b *brokenRepo) Get(ctx context.Context, key string) (string, bool, error) {
	if b.broken {
		return "", false, errDown
	}
	return b.Repository.Get(ctx, key)
}

func (b *brokenRepo) Set(ctx context.Context, key, value string) error {
	if b.broken {
		return errDown
	}
	return b.Repository.Set(ctx, key, value)
}

func (b *brokenRepo) Remove(ctx context.Context, key string) error {
	if b.broken {
		return errDown
	}
	return b.Repository.Remove(ctx, key)
}

func (b *brokenRepo) Keys(ctx context.Context, prefix string) ([]string, error) {
	if b.broken {
		return nil, errDown
	}
	return b.Repository.Keys(ctx, prefix)
}

func TestNewFailsFastOnBrokenBackend(t *testing.T) {
	_, err := New(context.Background(), &brokenRepo{Repository: kv.NewMemory(0), broken: true}, nil)
	if !errors.Is(err, ErrBackendUnavailable) {
		t.Fatalf("expected ErrBackendUnavailable, got %v", err)
	}
}

func TestFailuresYieldNeutralValues(t *testing.T) {
	repo := &brokenRepo{Repository: kv.NewMemory(0)}
	svc, err := New(context.Background(), repo, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := context.Background()
	svc.Set(ctx, "a", 1, SetOptions{})
	repo.broken = true

	if svc.Set(ctx, "b", 1, SetOptions{}) {
		t.Fatalf("Set should fail")
	}
	if _, ok := svc.Get(ctx, "a"); ok {
		t.Fatalf("Get should fail")
	}
	if svc.Has(ctx, "a") || svc.Remove(ctx, "a") || svc.ClearAll(ctx) {
		t.Fatalf("expected false results")
	}
	if keys := svc.Keys(ctx); keys == nil || len(keys) != 0 {
		t.Fatalf("expected empty non-nil keys, got %v", keys)
	}
	if len(svc.All(ctx)) != 0 || svc.ClearExpired(ctx) != 0 {
		t.Fatalf("expected empty results")
	}
	if u := svc.Usage(ctx); u.Used != 0 || u.Percentage != 0 {
		t.Fatalf("unexpected usage %+v", u)
	}
}
