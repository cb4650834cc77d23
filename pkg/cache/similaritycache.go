package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/strata-ai/semcache/pkg/embed"
	"github.com/strata-ai/semcache/pkg/index"
	"github.com/strata-ai/semcache/pkg/policy"
	"github.com/strata-ai/semcache/pkg/store"
)

// candidate is a re-ranked index hit: the key and IndexId of a
// StoredVector plus its distance under the ranking metric.
type candidate struct {
	key  string
	id   int64
	dist float64
}

// SimilarityCache is the public façade over a RequestIndex, a
// ResponseStore and an eviction Policy. It owns all three exclusively;
// callers interact only through IsHit/OnHit/OnMiss/CurrentSize.
//
// Safe for concurrent use: a single mutex serializes all mutation and
// the read path that participates in the hit decision, matching the
// single-writer discipline the rest of the system assumes.
type SimilarityCache struct {
	mu sync.Mutex

	index    *index.RequestIndex
	store    *store.ResponseStore
	policy   policy.Policy
	embedder embed.Embedder

	candidatesNumber     int
	hitDistanceThreshold float64
	rankingMetric        RankingMetric
}

// Option configures a SimilarityCache at construction.
type Option func(*SimilarityCache) error

// WithCandidatesNumber overrides the default top-K candidate count
// fetched from the index before re-ranking (default 100).
func WithCandidatesNumber(n int) Option {
	return func(c *SimilarityCache) error {
		if n <= 0 {
			return fmt.Errorf("%w: candidates_number must be positive", ErrInvalidConfig)
		}
		c.candidatesNumber = n
		return nil
	}
}

// WithHitDistanceThreshold sets the maximum ranking distance that
// still counts as a hit.
func WithHitDistanceThreshold(threshold float64) Option {
	return func(c *SimilarityCache) error {
		if threshold < 0 {
			return fmt.Errorf("%w: hit_distance_threshold must be non-negative", ErrInvalidConfig)
		}
		c.hitDistanceThreshold = threshold
		return nil
	}
}

// WithRankingMetric sets the metric candidates are re-ranked under.
func WithRankingMetric(m RankingMetric) Option {
	return func(c *SimilarityCache) error {
		c.rankingMetric = m
		return nil
	}
}

// New builds a SimilarityCache over an already-open index, store and
// policy. Defaults: candidatesNumber=100, hitDistanceThreshold=0.2,
// rankingMetric=Cosine.
func New(idx *index.RequestIndex, responses *store.ResponseStore, pol policy.Policy, embedder embed.Embedder, opts ...Option) (*SimilarityCache, error) {
	if idx == nil || responses == nil || pol == nil || embedder == nil {
		return nil, fmt.Errorf("%w: index, store, policy and embedder are all required", ErrInvalidConfig)
	}

	c := &SimilarityCache{
		index:                idx,
		store:                responses,
		policy:               pol,
		embedder:             embedder,
		candidatesNumber:     100,
		hitDistanceThreshold: 0.2,
		rankingMetric:        RankingCosine,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// keyOf returns the MD5-hex key used to address both the RequestIndex
// and, for responses, the ResponseStore.
func keyOf(text string) string {
	sum := md5.Sum([]byte(text))
	return hex.EncodeToString(sum[:])
}

// best re-ranks the index's top-K candidates for vec under the ranking
// metric, returning the single closest one. Ties are broken by lower
// IndexId. Returns (candidate{}, false) if the index is empty.
func (c *SimilarityCache) best(vec []float32) (candidate, bool, error) {
	results, err := c.index.FetchNearestK(vec, c.candidatesNumber)
	if err != nil {
		return candidate{}, false, err
	}
	if len(results) == 0 {
		return candidate{}, false, nil
	}

	var winner candidate
	found := false
	for _, r := range results {
		d := c.rankingMetric.distance(vec, r.Vector)
		if !found || d < winner.dist || (d == winner.dist && r.ID < winner.id) {
			winner = candidate{key: r.Key, id: r.ID, dist: d}
			found = true
		}
	}
	return winner, found, nil
}

// IsHit reports whether the index has a nearest candidate for prompt
// whose re-ranked distance is within hitDistanceThreshold.
func (c *SimilarityCache) IsHit(ctx context.Context, prompt string) (bool, error) {
	vec, err := c.embedder.Embed(ctx, prompt)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	winner, found, err := c.best(vec)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	return winner.dist <= c.hitDistanceThreshold, nil
}

// OnHit returns the cached response for the nearest stored prompt to
// prompt, and marks it touched in the eviction policy. Fails with
// ErrMissingResponse if the index and store have drifted apart.
func (c *SimilarityCache) OnHit(ctx context.Context, prompt string) (string, error) {
	vec, err := c.embedder.Embed(ctx, prompt)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	winner, found, err := c.best(vec)
	if err != nil {
		return "", err
	}
	if !found {
		return "", ErrMissingResponse
	}

	rec, err := c.store.FetchByRequest(winner.key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	if rec == nil {
		return "", ErrMissingResponse
	}

	c.policy.Touch(winner.key)
	return rec.Response, nil
}

// OnMiss inserts the (prompt, response) pair, updates the eviction
// policy, and propagates any resulting eviction to both the index and
// the store. extra carries policy-specific metadata (e.g.
// *policy.InsertMetadata for AdaptivePipeline); nil is fine for
// policies that don't need it.
func (c *SimilarityCache) OnMiss(ctx context.Context, prompt, response string, extra any) error {
	vec, err := c.embedder.Embed(ctx, prompt)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.insertLocked(vec, prompt, response, extra)
}

// insertLocked performs the four-step insertion protocol. Caller must
// hold c.mu.
func (c *SimilarityCache) insertLocked(vec []float32, prompt, response string, extra any) error {
	key := keyOf(prompt)

	if err := c.policy.Insert(key, extra); err != nil {
		if errors.Is(err, policy.ErrMissingExtra) {
			return ErrMissingExtra
		}
		return err
	}

	if victim, evicted := c.policy.Overflow(); evicted {
		c.index.Remove(victim)
		if _, err := c.store.RemoveByRequest(victim); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreIO, err)
		}
	}

	if _, err := c.index.Save(vec, key); err != nil {
		if errors.Is(err, index.ErrDimensionMismatch) {
			return ErrDimensionMismatch
		}
		return err
	}

	responseKey := keyOf(response)
	if err := c.store.Save(responseKey, key, response); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreIO, err)
	}

	return nil
}

// CurrentSize returns the number of stored responses.
func (c *SimilarityCache) CurrentSize() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, err := c.store.Size()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	return n, nil
}
