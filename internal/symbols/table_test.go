package symbols

import (
	"fmt"
	"sync"
	"testing"

	"kiln/internal/types"
)

func TestPublishAndLookup(t *testing.T) {
	tin := types.NewInterner()
	b := tin.Builtins()
	tab := NewTable()
	id, err := tab.Publish(FuncSig{Name: "math::add", Params: []types.TypeID{b.I32, b.I32}, Result: b.I32})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	sig, got, ok := tab.Lookup("math::add")
	if !ok || got != id {
		t.Fatalf("expected to find math::add")
	}
	if len(sig.Params) != 2 || sig.Result != b.I32 {
		t.Fatalf("unexpected signature %+v", sig)
	}
	if _, _, ok := tab.Lookup("does::not::exist"); ok {
		t.Fatalf("lookup of unknown name must fail")
	}
}

func TestPublishDuplicateFails(t *testing.T) {
	tab := NewTable()
	if _, err := tab.Publish(FuncSig{Name: "f"}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	if _, err := tab.Publish(FuncSig{Name: "f"}); err == nil {
		t.Fatalf("expected duplicate symbol error")
	}
}

func TestConcurrentReaders(t *testing.T) {
	tin := types.NewInterner()
	tab := NewTable()
	for i := 0; i < 32; i++ {
		name := fmt.Sprintf("fn%d", i)
		if _, err := tab.Publish(FuncSig{Name: name, Result: tin.Builtins().Unit}); err != nil {
			t.Fatalf("publish %s: %v", name, err)
		}
	}
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 32; i++ {
				if _, _, ok := tab.Lookup(fmt.Sprintf("fn%d", i)); !ok {
					t.Errorf("fn%d not found", i)
					return
				}
			}
		}()
	}
	wg.Wait()
}
