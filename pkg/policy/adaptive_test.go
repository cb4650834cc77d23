package policy

import (
	"math"
	"testing"
)

func TestAdaptivePipeline_RequiresMetadata(t *testing.T) {
	p := NewAdaptivePipeline(2, nil)
	if err := p.Insert("a", nil); err != ErrMissingExtra {
		t.Fatalf("expected ErrMissingExtra, got %v", err)
	}
	if err := p.Insert("a", "not metadata"); err != ErrMissingExtra {
		t.Fatalf("expected ErrMissingExtra for wrong type, got %v", err)
	}
}

func TestAdaptivePipeline_EvictsLowestScore(t *testing.T) {
	p := NewAdaptivePipeline(2, nil)

	p.Insert("slow-long", &InsertMetadata{ResponseTimeMS: 1000, ResponseLen: 500})
	p.Insert("fast-short", &InsertMetadata{ResponseTimeMS: 10, ResponseLen: 5})

	p.Insert("another", &InsertMetadata{ResponseTimeMS: 500, ResponseLen: 200})

	victim, ok := p.Overflow()
	if !ok {
		t.Fatal("expected an overflow")
	}
	if victim != "fast-short" {
		t.Fatalf("expected lowest-scoring entry 'fast-short' evicted, got %q", victim)
	}
}

func TestDefaultScorer_Monotonic(t *testing.T) {
	base := DefaultScorer(100, 50)
	longerTime := DefaultScorer(200, 50)
	longerResponse := DefaultScorer(100, 500)

	if longerTime <= base {
		t.Error("expected score to increase with response time")
	}
	if longerResponse <= base {
		t.Error("expected score to increase with response length")
	}
}

func TestDefaultScorer_ZeroLength(t *testing.T) {
	score := DefaultScorer(100, 0)
	if score != 0 {
		t.Fatalf("expected zero-length response to score 0 (log1p(0)=0), got %f", score)
	}
	if math.IsNaN(score) {
		t.Fatal("expected non-NaN score")
	}
}

func TestAdaptivePipeline_ContainsAndLen(t *testing.T) {
	p := NewAdaptivePipeline(5, nil)
	p.Insert("a", &InsertMetadata{ResponseTimeMS: 1, ResponseLen: 1})
	if !p.Contains("a") {
		t.Fatal("expected Contains true")
	}
	if p.Len() != 1 {
		t.Fatalf("expected len 1, got %d", p.Len())
	}
}
