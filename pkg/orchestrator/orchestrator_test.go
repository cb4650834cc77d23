package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/strata-ai/semcache/pkg/llm"
)

type fakeCache struct {
	hit       bool
	hitResp   string
	missCalls []string
	isHitErr  error
	onHitErr  error
	onMissErr error
}

func (f *fakeCache) IsHit(ctx context.Context, prompt string) (bool, error) {
	return f.hit, f.isHitErr
}

func (f *fakeCache) OnHit(ctx context.Context, prompt string) (string, error) {
	return f.hitResp, f.onHitErr
}

func (f *fakeCache) OnMiss(ctx context.Context, prompt, response string, extra any) error {
	f.missCalls = append(f.missCalls, response)
	return f.onMissErr
}

type fakeLLM struct {
	answer llm.Answer
	err    error
	calls  int
}

func (f *fakeLLM) Ask(ctx context.Context, prompt string) (llm.Answer, error) {
	f.calls++
	return f.answer, f.err
}

func (f *fakeLLM) StreamAsk(ctx context.Context, prompt string) (<-chan llm.Chunk, <-chan error) {
	panic("not used by Ask tests")
}

func TestOrchestrator_CacheAbsentAlwaysCallsLLM(t *testing.T) {
	model := &fakeLLM{answer: llm.Answer{Response: "hi", LatencyMS: 5}}
	o := New(nil, model)

	resp, err := o.Ask(context.Background(), "hello", false)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "hi" {
		t.Errorf("expected 'hi', got %q", resp)
	}
	if model.calls != 1 {
		t.Errorf("expected 1 LLM call, got %d", model.calls)
	}
}

func TestOrchestrator_HitSkipsLLM(t *testing.T) {
	cache := &fakeCache{hit: true, hitResp: "cached answer"}
	model := &fakeLLM{answer: llm.Answer{Response: "fresh"}}
	o := New(cache, model)

	resp, err := o.Ask(context.Background(), "prompt", false)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "cached answer" {
		t.Errorf("expected cached answer, got %q", resp)
	}
	if model.calls != 0 {
		t.Errorf("expected no LLM call on a hit, got %d", model.calls)
	}
}

func TestOrchestrator_MissCallsLLMAndRecords(t *testing.T) {
	cache := &fakeCache{hit: false}
	model := &fakeLLM{answer: llm.Answer{Response: "fresh answer", LatencyMS: 42}}
	o := New(cache, model)

	resp, err := o.Ask(context.Background(), "prompt", false)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "fresh answer" {
		t.Errorf("expected fresh answer, got %q", resp)
	}
	if len(cache.missCalls) != 1 || cache.missCalls[0] != "fresh answer" {
		t.Errorf("expected OnMiss recorded once with the fresh answer, got %v", cache.missCalls)
	}
}

func TestOrchestrator_ForceLLMBypassesCacheEntirely(t *testing.T) {
	cache := &fakeCache{hit: true, hitResp: "would have hit"}
	model := &fakeLLM{answer: llm.Answer{Response: "forced answer"}}
	o := New(cache, model)

	resp, err := o.Ask(context.Background(), "prompt", true)
	if err != nil {
		t.Fatal(err)
	}
	if resp != "forced answer" {
		t.Errorf("expected forced answer bypassing the cache, got %q", resp)
	}
	if model.calls != 1 {
		t.Errorf("expected LLM called despite a cache hit being available, got %d calls", model.calls)
	}
	if len(cache.missCalls) != 0 {
		t.Errorf("expected force_llm not to record or mutate the cache, got %v", cache.missCalls)
	}
}

func TestOrchestrator_IsHitErrorPropagates(t *testing.T) {
	cache := &fakeCache{isHitErr: errors.New("boom")}
	model := &fakeLLM{}
	o := New(cache, model)

	_, err := o.Ask(context.Background(), "prompt", false)
	if err == nil {
		t.Fatal("expected IsHit error to propagate")
	}
	if model.calls != 0 {
		t.Errorf("expected no LLM call when IsHit fails, got %d", model.calls)
	}
}
