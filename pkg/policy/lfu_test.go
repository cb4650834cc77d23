package policy

import "testing"

func TestLFU_EvictsLeastFrequent(t *testing.T) {
	p := NewLFU(2)
	p.Insert("a", nil)
	p.Insert("b", nil)
	p.Touch("a") // a: freq 2, b: freq 1

	p.Insert("c", nil) // should evict "b" (min frequency)
	victim, ok := p.Overflow()
	if !ok || victim != "b" {
		t.Fatalf("expected victim 'b', got %q", victim)
	}
}

func TestLFU_TiesBrokenByRecency(t *testing.T) {
	p := NewLFU(2)
	p.Insert("a", nil) // freq 1
	p.Insert("b", nil) // freq 1, more recent than a

	p.Insert("c", nil) // both a and b at freq 1; a is least recently touched
	victim, ok := p.Overflow()
	if !ok || victim != "a" {
		t.Fatalf("expected victim 'a' (least recently touched at freq 1), got %q", victim)
	}
}

func TestLFU_ContainsAndLen(t *testing.T) {
	p := NewLFU(5)
	p.Insert("x", nil)
	if !p.Contains("x") {
		t.Fatal("expected Contains true")
	}
	if p.Len() != 1 {
		t.Fatalf("expected len 1, got %d", p.Len())
	}
}

func TestLFU_OverflowOnce(t *testing.T) {
	p := NewLFU(1)
	p.Insert("a", nil)
	p.Insert("b", nil)

	if _, ok := p.Overflow(); !ok {
		t.Fatal("expected an overflow")
	}
	if _, ok := p.Overflow(); ok {
		t.Fatal("expected Overflow false on second call")
	}
}
