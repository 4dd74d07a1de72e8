package source

import "testing"

func TestSpanCover(t *testing.T) {
	a := Span{File: 1, Start: 10, End: 20}
	b := Span{File: 1, Start: 5, End: 15}
	got := a.Cover(b)
	if got.Start != 5 || got.End != 20 {
		t.Fatalf("expected 5-20, got %v", got)
	}
}

func TestSpanCoverDifferentFiles(t *testing.T) {
	a := Span{File: 1, Start: 10, End: 20}
	b := Span{File: 2, Start: 0, End: 100}
	got := a.Cover(b)
	if got != a {
		t.Fatalf("expected %v unchanged, got %v", a, got)
	}
}

func TestSpanLen(t *testing.T) {
	s := Span{Start: 3, End: 9}
	if s.Len() != 6 {
		t.Fatalf("expected 6, got %d", s.Len())
	}
	if s.Empty() {
		t.Fatalf("span should not be empty")
	}
}
