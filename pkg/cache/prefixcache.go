package cache

import (
	"context"
	"fmt"

	"github.com/strata-ai/semcache/pkg/policy"
)

// PrefixCache is the streaming variant: on a miss it stores only a
// leading prefix of the full LLM response, sized from per-key
// first-token-delay statistics, so a future hit can be "primed" by
// replaying the prefix while the real LLM call is still in flight.
type PrefixCache struct {
	*SimilarityCache
	tracker *policy.PrefixTracker
}

// NewPrefixCache wraps an already-constructed SimilarityCache with
// prefix-length tracking. alpha, bandwidth (characters/millisecond)
// and confidenceFactor parameterize the underlying PrefixTracker.
func NewPrefixCache(base *SimilarityCache, alpha, bandwidth, confidenceFactor float64) (*PrefixCache, error) {
	tracker, err := policy.NewPrefixTracker(alpha, bandwidth, confidenceFactor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &PrefixCache{SimilarityCache: base, tracker: tracker}, nil
}

// FetchPrefix returns the stored (possibly truncated) response for the
// nearest candidate to prompt, along with that candidate's key so the
// streaming orchestrator can render a continuation prompt. This is the
// "retrieve_only" read path: it touches the eviction policy for
// recency but does not update delay statistics.
func (c *PrefixCache) FetchPrefix(ctx context.Context, prompt string) (prefix, requestKey string, err error) {
	vec, err := c.embedder.Embed(ctx, prompt)
	if err != nil {
		return "", "", err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	winner, found, err := c.best(vec)
	if err != nil {
		return "", "", err
	}
	if !found {
		return "", "", ErrMissingResponse
	}

	rec, err := c.store.FetchByRequest(winner.key)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrStoreIO, err)
	}
	if rec == nil {
		return "", "", ErrMissingResponse
	}

	c.policy.Touch(winner.key)
	return rec.Response, winner.key, nil
}

// OnMissStreaming records the observed first-token delay, runs the
// standard insertion protocol, but stores only the EWMA-derived
// prefix of fullResponse rather than the whole thing.
func (c *PrefixCache) OnMissStreaming(ctx context.Context, prompt, fullResponse string, firstTokenDelayMS float64) error {
	vec, err := c.embedder.Embed(ctx, prompt)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := keyOf(prompt)
	c.tracker.Observe(key, firstTokenDelayMS)

	prefixChars := c.tracker.PrefixChars(key)
	stored := fullResponse
	if prefixChars < len(stored) {
		stored = stored[:prefixChars]
	}

	if err := c.insertLocked(vec, prompt, stored, nil); err != nil {
		return err
	}

	return nil
}
