package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/strata-ai/semcache/pkg/index"
	"github.com/strata-ai/semcache/pkg/policy"
	"github.com/strata-ai/semcache/pkg/store"
)

func newTestPrefixCache(t *testing.T, maxSize int, bandwidth float64) (*PrefixCache, *mapEmbedder) {
	t.Helper()

	idx := index.New(index.MetricL2)
	respStore, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { respStore.Close() })

	pol := policy.NewLRU(maxSize)
	emb := newMapEmbedder(3)

	base, err := New(idx, respStore, pol, emb, WithHitDistanceThreshold(0.5))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	pc, err := NewPrefixCache(base, 0.5, bandwidth, 0)
	if err != nil {
		t.Fatalf("NewPrefixCache: %v", err)
	}
	return pc, emb
}

func TestNewPrefixCache_RejectsNonPositiveBandwidth(t *testing.T) {
	idx := index.New(index.MetricL2)
	respStore, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer respStore.Close()

	pol := policy.NewLRU(10)
	emb := newMapEmbedder(3)
	base, err := New(idx, respStore, pol, emb)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := NewPrefixCache(base, 0.5, 0, 0); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for bandwidth=0, got %v", err)
	}
}

func TestPrefixCache_MissStoresTruncatedResponse(t *testing.T) {
	// bandwidth=1 char/ms; a 100ms observed delay and confidenceFactor
	// defaulting to 2 with zero variance on the first observation means
	// prefixChars = 1 * (100 + 2*0) = 100.
	pc, emb := newTestPrefixCache(t, 10, 1.0)
	ctx := context.Background()

	emb.register("long prompt", []float32{1, 0, 0})
	full := make([]byte, 500)
	for i := range full {
		full[i] = 'x'
	}

	if err := pc.OnMissStreaming(ctx, "long prompt", string(full), 100); err != nil {
		t.Fatalf("OnMissStreaming: %v", err)
	}

	prefix, requestKey, err := pc.FetchPrefix(ctx, "long prompt")
	if err != nil {
		t.Fatalf("FetchPrefix: %v", err)
	}
	if len(prefix) != 100 {
		t.Errorf("expected 100-char prefix, got %d", len(prefix))
	}
	if requestKey != keyOf("long prompt") {
		t.Errorf("unexpected request key %q", requestKey)
	}
}

func TestPrefixCache_ShortResponseStoredWhole(t *testing.T) {
	pc, emb := newTestPrefixCache(t, 10, 1.0)
	ctx := context.Background()

	emb.register("short prompt", []float32{1, 0, 0})

	if err := pc.OnMissStreaming(ctx, "short prompt", "tiny", 1000); err != nil {
		t.Fatalf("OnMissStreaming: %v", err)
	}

	prefix, _, err := pc.FetchPrefix(ctx, "short prompt")
	if err != nil {
		t.Fatalf("FetchPrefix: %v", err)
	}
	if prefix != "tiny" {
		t.Errorf("expected full short response preserved, got %q", prefix)
	}
}

func TestPrefixCache_FetchPrefixMissOnEmptyIndex(t *testing.T) {
	pc, emb := newTestPrefixCache(t, 10, 1.0)
	ctx := context.Background()
	emb.register("nothing cached", []float32{1, 1, 1})

	_, _, err := pc.FetchPrefix(ctx, "nothing cached")
	if err == nil {
		t.Fatal("expected error when nothing is cached yet")
	}
}

func TestPrefixCache_EvictionRemovesFromBothIndexAndStore(t *testing.T) {
	pc, emb := newTestPrefixCache(t, 1, 1.0)
	ctx := context.Background()

	emb.register("a", []float32{1, 0, 0})
	emb.register("b", []float32{0, 1, 0})

	if err := pc.OnMissStreaming(ctx, "a", "resp-a", 10); err != nil {
		t.Fatal(err)
	}
	if err := pc.OnMissStreaming(ctx, "b", "resp-b", 10); err != nil {
		t.Fatal(err)
	}

	n, err := pc.CurrentSize()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected size capped at 1, got %d", n)
	}

	// FetchPrefix returns the nearest stored entry, so with "b" still
	// cached it must answer with "b" rather than the evicted "a".
	_, requestKey, err := pc.FetchPrefix(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if requestKey == keyOf("a") {
		t.Error("expected \"a\" to have been evicted")
	}
}
