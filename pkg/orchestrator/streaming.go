package orchestrator

import (
	"bytes"
	"context"
	"text/template"

	"github.com/strata-ai/semcache/pkg/llm"
)

// PrefixSimilarityCache is the subset of *cache.PrefixCache the
// streaming orchestrator depends on.
type PrefixSimilarityCache interface {
	IsHit(ctx context.Context, prompt string) (bool, error)
	FetchPrefix(ctx context.Context, prompt string) (prefix, requestKey string, err error)
	OnMissStreaming(ctx context.Context, prompt, fullResponse string, firstTokenDelayMS float64) error
}

// DefaultContinuationTemplate renders the prompt the LLM continues from
// after a cached prefix has already been replayed to the caller.
const DefaultContinuationTemplate = `{{.Prompt}}

You already began answering this with the following text. Continue
seamlessly from exactly where it leaves off; do not repeat it.

{{.Prefix}}`

// continuationVars is the data passed to the continuation template.
type continuationVars struct {
	Prompt string
	Prefix string
}

// StreamingOrchestrator answers prompts as a stream of chunks,
// replaying a cached prefix immediately on a hit and then streaming an
// LLM continuation of it (the continuation request is issued once the
// prefix chunk has been delivered), and recording a length-limited
// prefix of fresh responses on a miss.
type StreamingOrchestrator struct {
	Cache                PrefixSimilarityCache
	LLM                  llm.Client
	ContinuationTemplate *template.Template
}

// StreamingOrchestratorOption configures a StreamingOrchestrator at
// construction.
type StreamingOrchestratorOption func(*StreamingOrchestrator)

// WithContinuationTemplate overrides the default prefix-continuation
// template, e.g. to load one from a file like the original's
// prompt_template.j2.
func WithContinuationTemplate(tmpl *template.Template) StreamingOrchestratorOption {
	return func(o *StreamingOrchestrator) {
		o.ContinuationTemplate = tmpl
	}
}

// NewStreaming creates a StreamingOrchestrator with the default
// continuation template. cache may be nil to disable caching.
func NewStreaming(cache PrefixSimilarityCache, client llm.Client, opts ...StreamingOrchestratorOption) *StreamingOrchestrator {
	tmpl := template.Must(template.New("continuation").Parse(DefaultContinuationTemplate))
	o := &StreamingOrchestrator{Cache: cache, LLM: client, ContinuationTemplate: tmpl}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// StreamAsk streams an answer to prompt. forceLLM bypasses the cache
// entirely, forwarding the LLM's stream untouched and recording
// nothing.
//
// Cancellation of ctx stops pulling from the LLM stream immediately;
// the miss path deliberately does not record a partial response, since
// a canceled generation was never actually completed for a future hit
// to replay.
func (o *StreamingOrchestrator) StreamAsk(ctx context.Context, prompt string, forceLLM bool) (<-chan llm.Chunk, <-chan error) {
	if o.Cache == nil || forceLLM {
		src, srcErr := o.LLM.StreamAsk(ctx, prompt)
		return o.streamMiss(ctx, prompt, src, srcErr, false)
	}

	hit, err := o.Cache.IsHit(ctx, prompt)
	if err != nil {
		return errChannels(err)
	}
	if hit {
		return o.streamHit(ctx, prompt)
	}
	src, srcErr := o.LLM.StreamAsk(ctx, prompt)
	return o.streamMiss(ctx, prompt, src, srcErr, true)
}

func errChannels(err error) (<-chan llm.Chunk, <-chan error) {
	chunks := make(chan llm.Chunk)
	errc := make(chan error, 1)
	close(chunks)
	errc <- err
	close(errc)
	return chunks, errc
}

// streamHit replays the cached prefix as the first chunk, then streams
// an LLM continuation rendered from ContinuationTemplate.
func (o *StreamingOrchestrator) streamHit(ctx context.Context, prompt string) (<-chan llm.Chunk, <-chan error) {
	out := make(chan llm.Chunk)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		prefix, _, err := o.Cache.FetchPrefix(ctx, prompt)
		if err != nil {
			errc <- err
			return
		}

		number := 1
		select {
		case out <- llm.Chunk{Text: prefix, Number: number, DelayMS: 0}:
		case <-ctx.Done():
			return
		}

		var buf bytes.Buffer
		if err := o.ContinuationTemplate.Execute(&buf, continuationVars{Prompt: prompt, Prefix: prefix}); err != nil {
			errc <- err
			return
		}

		contChunks, contErrc := o.LLM.StreamAsk(ctx, buf.String())
		for {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-contChunks:
				if !ok {
					contChunks = nil
					if contErrc == nil {
						return
					}
					continue
				}
				number++
				chunk.Number = number
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			case err, ok := <-contErrc:
				if !ok {
					if contChunks == nil {
						return
					}
					contErrc = nil
					continue
				}
				if err != nil {
					errc <- err
				}
				return
			}
			if contChunks == nil && contErrc == nil {
				return
			}
		}
	}()

	return out, errc
}

// streamMiss forwards src's chunks to the caller while accumulating
// the full response text, then, if record is set, records it (as a
// length-limited prefix) once the stream completes without error or
// cancellation. record is false on the force_llm path, which forwards
// the LLM's stream without ever touching the cache.
func (o *StreamingOrchestrator) streamMiss(ctx context.Context, prompt string, src <-chan llm.Chunk, srcErr <-chan error, record bool) (<-chan llm.Chunk, <-chan error) {
	out := make(chan llm.Chunk)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		var full bytes.Buffer
		firstTokenDelayMS := 0.0

		for src != nil || srcErr != nil {
			select {
			case <-ctx.Done():
				return
			case chunk, ok := <-src:
				if !ok {
					src = nil
					continue
				}
				if chunk.IsFirst() {
					firstTokenDelayMS = chunk.DelayMS
				}
				full.WriteString(chunk.Text)
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			case err, ok := <-srcErr:
				if !ok {
					srcErr = nil
					continue
				}
				if err != nil {
					errc <- err
					return
				}
			}
		}

		if !record || o.Cache == nil {
			return
		}
		if err := o.Cache.OnMissStreaming(ctx, prompt, full.String(), firstTokenDelayMS); err != nil {
			errc <- err
		}
	}()

	return out, errc
}
