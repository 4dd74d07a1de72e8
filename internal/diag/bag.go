package diag

import (
	"sort"
)

type Bag struct {
	items []Diagnostic
	max   uint16
}

func NewBag(max int) *Bag {
	if max <= 0 {
		max = 1
	}
	return &Bag{
		items: make([]Diagnostic, 0, max),
		max:   uint16(max),
	}
}

// Add добавляет диагностику, учитывая лимит.
// Возвращает false, если диагностика не добавлена (достигнут лимит).
func (b *Bag) Add(d Diagnostic) bool {
	if len(b.items) >= int(b.max) {
		return false
	}
	b.items = append(b.items, d)
	return true
}

// HasErrors возвращает true, если есть хотя бы одна диагностика с Severity >= Error
func (b *Bag) HasErrors() bool {
	for i := range b.items {
		if b.items[i].Severity >= SevError {
			return true
		}
	}
	return false
}

func (b *Bag) Len() int {
	return len(b.items)
}

// Items returns a read-only slice of diagnostics.
// ВАЖНО: не модифицируйте возвращаемый срез! (он указывает на внутренний массив Bag)
func (b *Bag) Items() []Diagnostic {
	return b.items
}

// SortStable orders diagnostics by file, then span start, then code. Used
// before rendering so parallel passes produce deterministic output.
func (b *Bag) SortStable() {
	sort.SliceStable(b.items, func(i, j int) bool {
		a, c := b.items[i], b.items[j]
		if a.Primary.File != c.Primary.File {
			return a.Primary.File < c.Primary.File
		}
		if a.Primary.Start != c.Primary.Start {
			return a.Primary.Start < c.Primary.Start
		}
		return a.Code < c.Code
	})
}
