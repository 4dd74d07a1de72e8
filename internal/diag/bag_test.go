package diag

import (
	"sync"
	"testing"

	"kiln/internal/source"
)

func TestBagLimit(t *testing.T) {
	bag := NewBag(2)
	if !bag.Add(NewError(TypeMismatch, source.Span{}, "a")) {
		t.Fatalf("first add should succeed")
	}
	if !bag.Add(NewError(TypeMismatch, source.Span{}, "b")) {
		t.Fatalf("second add should succeed")
	}
	if bag.Add(NewError(TypeMismatch, source.Span{}, "c")) {
		t.Fatalf("third add should hit the limit")
	}
	if bag.Len() != 2 {
		t.Fatalf("expected 2 items, got %d", bag.Len())
	}
}

func TestBagHasErrors(t *testing.T) {
	bag := NewBag(4)
	bag.Add(New(SevWarning, OwnInfo, source.Span{}, "w"))
	if bag.HasErrors() {
		t.Fatalf("warnings are not errors")
	}
	bag.Add(NewError(OwnUseAfterMove, source.Span{}, "e"))
	if !bag.HasErrors() {
		t.Fatalf("expected errors")
	}
}

func TestSinkConcurrentMerge(t *testing.T) {
	sink := NewSink()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n uint32) {
			defer wg.Done()
			bag := NewBag(4)
			bag.Add(NewError(OwnUseAfterMove, source.Span{File: 1, Start: n, End: n + 1}, "x"))
			sink.Merge(bag)
		}(uint32(i))
	}
	wg.Wait()
	items := sink.Drain()
	if len(items) != 8 {
		t.Fatalf("expected 8 diagnostics, got %d", len(items))
	}
	for i := 1; i < len(items); i++ {
		if items[i].Primary.Start < items[i-1].Primary.Start {
			t.Fatalf("drain output not sorted at %d", i)
		}
	}
}

func TestExplainCoversErrorCodes(t *testing.T) {
	codes := []Code{
		TypeMismatch, TypeArityMismatch, TypeInfinite, TypeCannotInfer,
		TypeArraySizeMismatch, TypeTupleSizeMismatch, TypeMutabilityMismatch,
		TypeGenericArityMismatch, TypeAnnotationConflict,
		OwnUseAfterMove, OwnUsePartiallyMoved, OwnUseBeforeInit, OwnDoubleMove,
		OwnConflictingBorrow, OwnMovedWhileBorrowed, OwnRefOutlivesReferent,
		OwnLinearNotConsumed, OwnDoubleConsume,
		GenRegisterExhaustion, GenFrameOverflow,
	}
	for _, c := range codes {
		if Explain(c) == "" {
			t.Fatalf("code %v has no explanation", c)
		}
	}
}
