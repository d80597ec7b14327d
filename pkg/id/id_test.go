package id

import (
	"bytes"
	"testing"
)

func TestNextIsMonotonic(t *testing.T) {
	g := NewGenerator()
	prev := g.Next()
	for i := 0; i < 1000; i++ {
		cur := g.Next()
		if bytes.Compare(cur[:], prev[:]) <= 0 {
			t.Fatalf("ids not strictly increasing: %s then %s", prev, cur)
		}
		prev = cur
	}
}

func TestBackwardsClock(t *testing.T) {
	g := NewGenerator()
	orig := nowMs
	defer func() { nowMs = orig }()

	nowMs = func() int64 { return 2000 }
	a := g.Next()
	nowMs = func() int64 { return 1000 }
	b := g.Next()
	if bytes.Compare(b[:], a[:]) <= 0 {
		t.Fatalf("id after clock step back should still sort later: %s then %s", a, b)
	}
	if b.TimeMs() != 2000 {
		t.Fatalf("expected reused timestamp 2000, got %d", b.TimeMs())
	}
}

func TestStringRoundTrip(t *testing.T) {
	g := NewGenerator()
	a := g.Next()
	parsed, err := Parse(a.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != a {
		t.Fatalf("round trip mismatch: %s vs %s", a, parsed)
	}
	if _, err := Parse("zz"); err == nil {
		t.Fatalf("expected error on bad hex")
	}
	if _, err := Parse("abcd"); err == nil {
		t.Fatalf("expected error on short id")
	}
}
