// Package index implements the ANN-ish vector index the similarity
// cache ranks candidate prompts against.
//
// RequestIndex is a flat (brute-force) index rather than a true graph
// index such as HNSW: the cache's candidates_number is small (tens to
// low hundreds) and re-ranking happens one layer up in pkg/cache, so a
// linear scan over a map is both simpler and, at this scale, not
// meaningfully slower than a graph structure would be.
package index

import (
	"crypto/md5"
	"encoding/binary"
	"sort"
	"sync"

	"github.com/strata-ai/semcache/pkg/math/vector"
)

// StoredVector is a single indexed item, returned by FetchNearestK in
// original (un-normalized) vector space regardless of the index metric.
type StoredVector struct {
	Key    string
	ID     int64
	Vector []float32
}

type entry struct {
	id           int64
	key          string
	vector       []float32 // internal representation: normalized for Cosine, raw otherwise
	originalNorm float64   // only meaningful for Cosine
}

// RequestIndex is an ANN vector index over prompt embeddings, supporting
// insert/remove/top-k lookup under a configurable metric.
//
// Safe for concurrent use.
type RequestIndex struct {
	mu      sync.RWMutex
	metric  Metric
	dim     int
	entries map[int64]*entry
	keyToID map[string]int64

	store *BadgerStore // nil for a pure in-memory index (e.g. tests)
}

// New creates an empty RequestIndex for the given metric with no
// persistence backing.
func New(metric Metric) *RequestIndex {
	return &RequestIndex{
		metric:  metric,
		entries: make(map[int64]*entry),
		keyToID: make(map[string]int64),
	}
}

// Open creates a RequestIndex backed by a BadgerStore, restoring any
// prior state. If the store's sidecar metadata records a metric
// different from the one requested here, Open returns ErrMetricConflict
// and the cache must not be used.
func Open(metric Metric, store *BadgerStore) (*RequestIndex, error) {
	idx := New(metric)
	idx.store = store

	meta, err := store.LoadMeta()
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return idx, nil
	}

	// meta.Metric is empty when LoadMeta rebuilt the sidecar from raw
	// Badger records (no prior meta.json, e.g. a crash before it was
	// written): there is nothing to conflict with, so the caller's
	// metric wins.
	if meta.Metric != "" {
		persistedMetric, err := ParseMetric(meta.Metric)
		if err != nil {
			return nil, err
		}
		if persistedMetric != metric {
			return nil, ErrMetricConflict
		}
	}

	idx.dim = meta.Dim
	for key, item := range meta.Items {
		e := &entry{id: item.ID, key: key, vector: item.Vector, originalNorm: item.OriginalNorm}
		idx.entries[item.ID] = e
		idx.keyToID[key] = item.ID
	}

	// The sidecar is authoritative; rebuild Badger's vector records from
	// it in case the previous process crashed between writing one and
	// the other.
	if err := idx.persistLocked(); err != nil {
		return nil, err
	}

	return idx, nil
}

// IndexID derives the stable, restart-independent identifier for key:
// the first 8 bytes of MD5(key), masked to a non-negative 63-bit value.
func IndexID(key string) int64 {
	sum := md5.Sum([]byte(key))
	v := binary.BigEndian.Uint64(sum[:8])
	return int64(v & ((1 << 63) - 1))
}

// Save inserts vector under key. Idempotent: if key is already present
// the call returns key with no mutation. The first Save fixes the
// index's dimension; later vectors of a different length fail with
// ErrDimensionMismatch.
func (idx *RequestIndex) Save(vec []float32, key string) (string, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.keyToID[key]; ok {
		return key, nil
	}

	if idx.dim == 0 {
		idx.dim = len(vec)
	} else if len(vec) != idx.dim {
		return "", ErrDimensionMismatch
	}

	id := IndexID(key)

	e := &entry{id: id, key: key}
	if idx.metric == MetricCosine {
		e.originalNorm = vector.Norm(vec)
		e.vector = vector.Normalize(vec)
	} else {
		stored := make([]float32, len(vec))
		copy(stored, vec)
		e.vector = stored
	}

	idx.entries[id] = e
	idx.keyToID[key] = id

	if idx.store != nil {
		if err := idx.persistLocked(); err != nil {
			delete(idx.entries, id)
			delete(idx.keyToID, key)
			return "", err
		}
	}

	return key, nil
}

// Remove deletes key from the index. Returns true if it was present.
// Removal is best-effort on the persisted side: the item is guaranteed
// absent from future FetchNearestK calls immediately, even if the
// persisted write fails.
func (idx *RequestIndex) Remove(key string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	id, ok := idx.keyToID[key]
	if !ok {
		return false
	}

	delete(idx.entries, id)
	delete(idx.keyToID, key)

	if idx.store != nil {
		_ = idx.persistLocked()
	}

	return true
}

// Size returns the number of indexed vectors.
func (idx *RequestIndex) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

type scored struct {
	e    *entry
	dist float64 // lower is better, uniformly, regardless of metric
}

// FetchNearestK returns the top-k candidates by the index metric, in
// original vector space. k <= 0 is an error; an empty index returns an
// empty, non-nil slice.
func (idx *RequestIndex) FetchNearestK(query []float32, k int) ([]StoredVector, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if len(idx.entries) == 0 {
		return []StoredVector{}, nil
	}

	q := query
	if idx.metric == MetricCosine {
		q = vector.Normalize(query)
	}

	candidates := make([]scored, 0, len(idx.entries))
	for _, e := range idx.entries {
		var d float64
		switch idx.metric {
		case MetricL2:
			d = vector.L2Squared(q, e.vector)
		case MetricInnerProduct, MetricCosine:
			// Larger inner product is more similar; negate so "lower is better"
			// holds uniformly across metrics for the sort below.
			d = -vector.DotProduct(q, e.vector)
		}
		candidates = append(candidates, scored{e: e, dist: d})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].e.id < candidates[j].e.id
	})

	if k > len(candidates) {
		k = len(candidates)
	}

	out := make([]StoredVector, k)
	for i := 0; i < k; i++ {
		e := candidates[i].e
		out[i] = StoredVector{Key: e.key, ID: e.id, Vector: idx.originalVector(e)}
	}
	return out, nil
}

// originalVector reconstructs the pre-normalization vector for cosine-
// metric entries; other metrics store the original vector directly.
func (idx *RequestIndex) originalVector(e *entry) []float32 {
	if idx.metric != MetricCosine {
		out := make([]float32, len(e.vector))
		copy(out, e.vector)
		return out
	}
	out := make([]float32, len(e.vector))
	for i, v := range e.vector {
		out[i] = float32(float64(v) * e.originalNorm)
	}
	return out
}

// persistLocked writes the full sidecar + vector store. Caller must
// hold idx.mu.
func (idx *RequestIndex) persistLocked() error {
	items := make(map[string]MetaItem, len(idx.entries))
	for _, e := range idx.entries {
		items[e.key] = MetaItem{ID: e.id, Vector: e.vector, OriginalNorm: e.originalNorm}
	}
	meta := &IndexMeta{Dim: idx.dim, Metric: idx.metric.String(), Items: items}
	return idx.store.Persist(meta)
}
