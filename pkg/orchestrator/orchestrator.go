// Package orchestrator wires an LLM client to a similarity cache,
// implementing the hit/miss decision as the single entry point callers
// use instead of talking to the cache and the model separately.
package orchestrator

import (
	"context"

	"github.com/strata-ai/semcache/pkg/llm"
	"github.com/strata-ai/semcache/pkg/policy"
)

// SimilarityCache is the subset of *cache.SimilarityCache the
// orchestrator depends on. Declared here, rather than imported
// concretely, so tests can substitute a fake without constructing a
// real index/store/policy stack.
type SimilarityCache interface {
	IsHit(ctx context.Context, prompt string) (bool, error)
	OnHit(ctx context.Context, prompt string) (string, error)
	OnMiss(ctx context.Context, prompt, response string, extra any) error
}

// Orchestrator answers prompts by consulting a SimilarityCache before
// falling back to an LLM, recording fresh answers for future reuse.
//
// A nil Cache makes every Ask a pass-through to the LLM (the "cache
// absent" mode); callers choose it by passing nil to New.
type Orchestrator struct {
	Cache SimilarityCache
	LLM   llm.Client
}

// New creates an Orchestrator. cache may be nil to disable caching.
func New(cache SimilarityCache, client llm.Client) *Orchestrator {
	return &Orchestrator{Cache: cache, LLM: client}
}

// Ask answers prompt, either from the cache or by calling the LLM.
// forceLLM is a pure bypass: it skips the cache lookup and never
// records the answer, so it doesn't grow the cache or perturb
// eviction.
func (o *Orchestrator) Ask(ctx context.Context, prompt string, forceLLM bool) (string, error) {
	if o.Cache == nil || forceLLM {
		answer, err := o.LLM.Ask(ctx, prompt)
		if err != nil {
			return "", err
		}
		return answer.Response, nil
	}

	hit, err := o.Cache.IsHit(ctx, prompt)
	if err != nil {
		return "", err
	}
	if hit {
		return o.Cache.OnHit(ctx, prompt)
	}

	answer, err := o.LLM.Ask(ctx, prompt)
	if err != nil {
		return "", err
	}

	extra := &policy.InsertMetadata{ResponseTimeMS: answer.LatencyMS, ResponseLen: len(answer.Response)}
	if err := o.Cache.OnMiss(ctx, prompt, answer.Response, extra); err != nil {
		return "", err
	}
	return answer.Response, nil
}
