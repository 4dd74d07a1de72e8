package borrow

import (
	"fmt"

	"kiln/internal/diag"
	"kiln/internal/ir"
	"kiln/internal/source"
	"kiln/internal/types"
)

// Result carries the outcome of the ownership check for one function.
type Result struct {
	Ok bool
	// Regions is the lifetime arena built for the function's scope tree.
	Regions *Arena
	// Borrows lists every reference taken in the body, with its region
	// and creation point.
	Borrows []Borrow
}

// Check enforces ownership, borrow and lifetime rules over one function.
// Inference must have run first: locals carry resolved types. Violations
// are reported exhaustively; the dataflow itself always runs to completion.
func Check(f *ir.Func, tin *types.Interner, rep diag.Reporter) *Result {
	arena := NewArena()
	regions := scopeRegions(f, arena)
	borrows, byBase, byBorrower := collectBorrows(f, regions)
	pm := ir.BuildPointMap(f)
	lv := ir.ComputeLiveness(f)

	c := &checker{
		f:          f,
		tin:        tin,
		rep:        rep,
		arena:      arena,
		regions:    regions,
		borrows:    borrows,
		byBase:     byBase,
		byBorrower: byBorrower,
		lives:      computePointLiveness(f, pm, lv),
		in:         make([]factVec, len(f.Blocks)),
	}
	c.solve()
	c.reporting = true
	for _, b := range ir.ReversePostorder(f) {
		facts := c.in[b].clone()
		c.transferBlock(&f.Blocks[b], facts)
	}
	return &Result{Ok: !c.bad, Regions: arena, Borrows: borrows}
}

type checker struct {
	f          *ir.Func
	tin        *types.Interner
	rep        diag.Reporter
	arena      *Arena
	regions    []types.RegionID
	borrows    []Borrow
	byBase     map[ir.LocalID][]int
	byBorrower map[ir.LocalID]int
	lives      *liveMap

	in        []factVec
	reporting bool
	bad       bool
}

// initialFacts marks parameters owned; everything else starts without a
// value.
func (c *checker) initialFacts() factVec {
	facts := make(factVec, len(c.f.Locals))
	for _, p := range c.f.Params {
		facts[p].state = StateOwned
	}
	return facts
}

// solve runs the forward dataflow to a fixed point, silently.
func (c *checker) solve() {
	rpo := ir.ReversePostorder(c.f)
	for _, b := range rpo {
		c.in[b] = make(factVec, len(c.f.Locals))
	}
	c.in[c.f.Entry] = c.initialFacts()

	seeded := make([]bool, len(c.f.Blocks))
	seeded[c.f.Entry] = true

	work := append([]ir.BlockID(nil), rpo...)
	for len(work) > 0 {
		b := work[0]
		work = work[1:]
		if !seeded[b] {
			continue
		}
		facts := c.in[b].clone()
		c.transferBlock(&c.f.Blocks[b], facts)
		for _, succ := range c.f.Blocks[b].Term.Successors() {
			if !seeded[succ] {
				seeded[succ] = true
				c.in[succ] = facts.clone()
				work = append(work, succ)
				continue
			}
			before := c.in[succ].clone()
			mergeVec(c.in[succ], facts)
			if !c.in[succ].equal(before) {
				work = append(work, succ)
			}
		}
	}
}

// transferBlock applies every instruction and the terminator to the fact
// vector in place.
func (c *checker) transferBlock(b *ir.Block, facts factVec) {
	for ii := range b.Instrs {
		c.transferInstr(facts, &b.Instrs[ii], ir.Point{Block: b.ID, Index: ii})
	}
	c.transferTerm(facts, b)
}

func (c *checker) transferInstr(facts factVec, in *ir.Instr, p ir.Point) {
	sp := c.spanOf(in)
	switch in.Kind {
	case ir.InstrAssign:
		if in.Assign.Src.Kind == ir.RValueRef {
			c.takeBorrow(facts, in, p, sp)
			return
		}
		c.useRValue(facts, &in.Assign.Src, p, sp)
		c.writePlace(facts, in.Assign.Dst, p, sp)
	case ir.InstrCall:
		for _, a := range in.Call.Args {
			c.useOperand(facts, a, p, sp)
		}
		if in.Call.HasDst {
			c.writePlace(facts, in.Call.Dst, p, sp)
		}
	case ir.InstrDestructure:
		c.useOperand(facts, in.Destructure.Src, p, sp)
		for _, d := range in.Destructure.Dsts {
			c.writePlace(facts, d, p, sp)
		}
	case ir.InstrDrop:
		c.dropPlace(facts, in.Drop.Place, sp)
	case ir.InstrEndBorrow, ir.InstrNop:
		// EndBorrow is the borrower's final use; liveness already ends
		// the borrow there.
	}
}

func (c *checker) transferTerm(facts factVec, b *ir.Block) {
	t := b.Term
	sp := t.Span
	if sp.Empty() {
		sp = c.f.Span
	}
	p := c.f.TerminatorPoint(b.ID)
	switch t.Kind {
	case ir.TermReturn:
		if t.Return.HasValue {
			c.useOperand(facts, t.Return.Value, p, sp)
			c.checkEscape(t.Return.Value, sp)
		}
		c.checkLinearAtExit(facts, sp)
	case ir.TermIf:
		c.useOperand(facts, t.If.Cond, p, sp)
	}
}

func (c *checker) useRValue(facts factVec, rv *ir.RValue, p ir.Point, sp source.Span) {
	switch rv.Kind {
	case ir.RValueUse:
		c.useOperand(facts, rv.Use, p, sp)
	case ir.RValueUnary:
		c.useOperand(facts, rv.Unary.Operand, p, sp)
	case ir.RValueBinary:
		c.useOperand(facts, rv.Binary.Left, p, sp)
		c.useOperand(facts, rv.Binary.Right, p, sp)
	case ir.RValueTuple:
		for _, o := range rv.Tuple.Elems {
			c.useOperand(facts, o, p, sp)
		}
	case ir.RValueArray:
		for _, o := range rv.Array.Elems {
			c.useOperand(facts, o, p, sp)
		}
	case ir.RValueStruct:
		for _, o := range rv.Struct.Fields {
			c.useOperand(facts, o, p, sp)
		}
	case ir.RValueCast:
		c.useOperand(facts, rv.Cast.Value, p, sp)
	}
}

func (c *checker) useOperand(facts factVec, o ir.Operand, p ir.Point, sp source.Span) {
	switch o.Kind {
	case ir.OperandCopy:
		c.readPlace(facts, o.Place, p, sp)
	case ir.OperandMove:
		c.movePlace(facts, o.Place, p, sp)
	}
}

// readPlace checks a non-consuming read.
func (c *checker) readPlace(facts factVec, place ir.Place, p ir.Point, sp source.Span) {
	l := place.Local
	name := c.localName(l)
	switch facts[l].state {
	case StateUninit:
		c.errorAt(diag.OwnUseBeforeInit, sp, "%s is used before it is initialized", name).
			WithFix(fmt.Sprintf("initialize %s before this use", name)).Emit()
	case StateMoved:
		c.errorAt(diag.OwnUseAfterMove, sp, "%s is used after it was moved", name).
			WithFix("borrow the value instead of moving it, or clone it before the move").Emit()
	case StateConsumed:
		c.errorAt(diag.OwnUseAfterMove, sp, "%s is used after it was consumed", name).Emit()
	case StatePartiallyMoved:
		if place.Direct() {
			c.errorAt(diag.OwnUsePartiallyMoved, sp,
				"%s is used as a whole, but fields %v were moved out", name,
				movedFieldIndices(facts[l].movedFields)).Emit()
		} else if idx, ok := firstField(place); ok && facts[l].movedFields&(1<<uint(idx)) != 0 {
			c.errorAt(diag.OwnUseAfterMove, sp, "field %d of %s was already moved out", idx, name).Emit()
		}
	}
	c.checkReadConflicts(l, p, sp)
}

// movePlace checks and applies a consuming read.
func (c *checker) movePlace(facts factVec, place ir.Place, p ir.Point, sp source.Span) {
	l := place.Local
	if c.tin.IsCopy(c.localType(l)) {
		// Copy types never relinquish ownership; a move degenerates to a
		// read.
		c.readPlace(facts, place, p, sp)
		return
	}
	if hasDeref(place) {
		// Moving out of a reference would leave the referent hollow;
		// treat it as a read of the reference.
		c.readPlace(facts, ir.Place{Local: l}, p, sp)
		return
	}
	name := c.localName(l)
	linear := c.tin.IsLinear(c.localType(l))

	switch facts[l].state {
	case StateUninit:
		c.errorAt(diag.OwnUseBeforeInit, sp, "%s is moved before it is initialized", name).Emit()
		return
	case StateMoved:
		c.errorAt(diag.OwnDoubleMove, sp, "%s is moved a second time", name).
			WithFix("borrow the value instead of moving it, or clone it before the move").Emit()
		return
	case StateConsumed:
		c.errorAt(diag.OwnDoubleConsume, sp, "linear value %s is consumed a second time", name).Emit()
		return
	}

	if b, live := c.liveBorrowOf(l, p); live {
		c.errorAt(diag.OwnMovedWhileBorrowed, sp, "%s is moved while it is borrowed", name).
			WithNote(c.borrows[b].Span, "borrowed here").
			WithFix("end the borrow before moving the value").Emit()
	}

	if !place.Direct() {
		idx, ok := firstField(place)
		if !ok {
			return
		}
		if facts[l].movedFields&(1<<uint(idx)) != 0 {
			c.errorAt(diag.OwnUseAfterMove, sp, "field %d of %s was already moved out", idx, name).Emit()
			return
		}
		facts[l].state = StatePartiallyMoved
		facts[l].movedFields |= 1 << uint(idx)
		return
	}

	if facts[l].state == StatePartiallyMoved {
		c.errorAt(diag.OwnUsePartiallyMoved, sp,
			"%s is moved as a whole, but fields %v were already moved out", name,
			movedFieldIndices(facts[l].movedFields)).Emit()
		return
	}
	if linear {
		facts[l] = localFact{state: StateConsumed}
		return
	}
	facts[l] = localFact{state: StateMoved}
}

// writePlace applies a definition.
func (c *checker) writePlace(facts factVec, place ir.Place, p ir.Point, sp source.Span) {
	l := place.Local
	name := c.localName(l)

	if hasDeref(place) {
		if !c.refIsMutable(l) {
			c.errorAt(diag.OwnConflictingBorrow, sp,
				"cannot write through %s: it is a shared reference", name).Emit()
		}
		c.readPlace(facts, ir.Place{Local: l}, p, sp)
		return
	}

	if b, live := c.liveBorrowOf(l, p); live {
		c.errorAt(diag.OwnConflictingBorrow, sp, "cannot assign to %s while it is borrowed", name).
			WithNote(c.borrows[b].Span, "borrowed here").
			WithFix("end the borrow before assigning").Emit()
	}

	if place.Direct() {
		if facts[l].state == StateOwned && c.tin.IsLinear(c.localType(l)) {
			c.errorAt(diag.OwnLinearNotConsumed, sp,
				"overwriting %s discards a linear value that was never consumed", name).Emit()
		}
		facts[l] = localFact{state: StateOwned}
		return
	}

	// Field write: re-initializes the field when the base still has
	// storage.
	switch facts[l].state {
	case StateUninit:
		c.errorAt(diag.OwnUseBeforeInit, sp, "cannot write a field of uninitialized %s", name).Emit()
	case StateMoved:
		c.errorAt(diag.OwnUseAfterMove, sp, "cannot write a field of moved %s", name).Emit()
	case StatePartiallyMoved:
		if idx, ok := firstField(place); ok {
			facts[l].movedFields &^= 1 << uint(idx)
			if facts[l].movedFields == 0 {
				facts[l].state = StateOwned
			}
		}
	}
}

// takeBorrow validates a new reference against the base's state and every
// other borrow still live at this point.
func (c *checker) takeBorrow(facts factVec, in *ir.Instr, p ir.Point, sp source.Span) {
	base := in.Assign.Src.Ref.Place
	mutable := in.Assign.Src.Ref.Mutable
	l := base.Local
	name := c.localName(l)

	switch facts[l].state {
	case StateUninit:
		c.errorAt(diag.OwnUseBeforeInit, sp, "%s is borrowed before it is initialized", name).Emit()
	case StateMoved:
		c.errorAt(diag.OwnUseAfterMove, sp, "%s is borrowed after it was moved", name).Emit()
	case StateConsumed:
		c.errorAt(diag.OwnUseAfterMove, sp, "%s is borrowed after it was consumed", name).Emit()
	}

	this, haveThis := c.byBorrower[in.Assign.Dst.Local]
	storage, chain := c.baseChain(l)
	for _, bid := range c.byBase[storage] {
		other := &c.borrows[bid]
		if haveThis && bid == this {
			continue
		}
		if chain[other.Borrower] {
			continue // reborrowing through a parent borrow is fine
		}
		if !c.lives.liveAt(p, other.Borrower) {
			continue
		}
		if !mutable && !other.Mutable {
			continue // any number of shared borrows may coexist
		}
		c.errorAt(diag.OwnConflictingBorrow, sp,
			"cannot borrow %s: a conflicting borrow is still live", name).
			WithNote(other.Span, "the earlier borrow was taken here").
			WithFix("end the earlier borrow before taking this one").Emit()
	}

	// Lifetime check: the reference must not outlive the storage it
	// points at.
	if !hasDeref(base) {
		borrowerRegion := c.regions[c.f.Locals[in.Assign.Dst.Local].Scope]
		baseRegion := c.regions[c.f.Locals[l].Scope]
		if !c.arena.Outlives(baseRegion, borrowerRegion) {
			c.errorAt(diag.OwnRefOutlivesReferent, sp,
				"reference %s outlives %s, the value it points to", c.localName(in.Assign.Dst.Local), name).
				WithNote(c.f.Locals[l].Span, fmt.Sprintf("%s lives only inside its block", name)).Emit()
		}
	}

	c.writePlace(facts, in.Assign.Dst, p, sp)
}

func (c *checker) dropPlace(facts factVec, place ir.Place, sp source.Span) {
	l := place.Local
	if !place.Direct() {
		return
	}
	if c.tin.IsLinear(c.localType(l)) {
		switch facts[l].state {
		case StateConsumed:
			c.errorAt(diag.OwnDoubleConsume, sp,
				"linear value %s is consumed a second time", c.localName(l)).Emit()
		case StateOwned, StatePartiallyMoved:
			facts[l] = localFact{state: StateConsumed}
		}
		return
	}
	if facts[l].state == StateOwned || facts[l].state == StatePartiallyMoved {
		facts[l] = localFact{state: StateMoved}
	}
}

// checkEscape flags returning a reference to storage that dies with the
// frame.
func (c *checker) checkEscape(o ir.Operand, sp source.Span) {
	if o.Kind == ir.OperandConst || !o.Place.Direct() {
		return
	}
	r := o.Place.Local
	bid, ok := c.byBorrower[r]
	if !ok {
		return
	}
	b := &c.borrows[bid]
	if hasDeref(b.Base) && !c.borrowedFromLocalStorage(b.Base.Local) {
		return // reborrow of caller storage escapes safely
	}
	base, _ := c.baseChain(b.Base.Local)
	c.errorAt(diag.OwnRefOutlivesReferent, sp,
		"returning %s lets a reference outlive %s, the local it points to",
		c.localName(r), c.localName(base)).
		WithNote(c.f.Locals[base].Span, "the referent is destroyed when the function returns").
		WithFix("return the value itself instead of a reference to it").Emit()
}

// borrowedFromLocalStorage follows reborrow chains and reports whether the
// ultimate referent is storage owned by this frame.
func (c *checker) borrowedFromLocalStorage(l ir.LocalID) bool {
	for {
		bid, ok := c.byBorrower[l]
		if !ok {
			// Reference parameters and references received from calls
			// both point at storage that survives this frame.
			return false
		}
		b := &c.borrows[bid]
		if !hasDeref(b.Base) {
			return true
		}
		l = b.Base.Local
	}
}

// baseChain resolves reborrow chains down to the storage being borrowed.
// It returns the ultimate base local and the set of reference locals the
// chain passes through.
func (c *checker) baseChain(l ir.LocalID) (ir.LocalID, map[ir.LocalID]bool) {
	chain := make(map[ir.LocalID]bool)
	for range len(c.borrows) + 1 {
		bid, ok := c.byBorrower[l]
		if !ok {
			return l, chain
		}
		chain[l] = true
		b := &c.borrows[bid]
		l = b.Base.Local
		if !hasDeref(b.Base) {
			return l, chain
		}
	}
	return l, chain
}

// checkLinearAtExit verifies every linear value was consumed on this path.
func (c *checker) checkLinearAtExit(facts factVec, sp source.Span) {
	for i := range c.f.Locals {
		if !c.tin.IsLinear(c.localType(ir.LocalID(i))) {
			continue
		}
		switch facts[i].state {
		case StateOwned, StatePartiallyMoved:
			name := c.localName(ir.LocalID(i))
			c.errorAt(diag.OwnLinearNotConsumed, sp,
				"linear value %s reaches the end of the function without being consumed", name).
				WithNote(c.f.Locals[i].Span, "declared here").
				WithFix(fmt.Sprintf("consume %s exactly once before returning", name)).Emit()
		}
	}
}

// checkReadConflicts flags reads of a local while a mutable borrow of it is
// still live.
func (c *checker) checkReadConflicts(l ir.LocalID, p ir.Point, sp source.Span) {
	for _, bid := range c.byBase[l] {
		b := &c.borrows[bid]
		if !b.Mutable || !c.lives.liveAt(p, b.Borrower) {
			continue
		}
		c.errorAt(diag.OwnConflictingBorrow, sp,
			"%s is read while it is mutably borrowed", c.localName(l)).
			WithNote(b.Span, "mutably borrowed here").Emit()
		return
	}
}

// liveBorrowOf finds any borrow of the local still live at the point.
func (c *checker) liveBorrowOf(l ir.LocalID, p ir.Point) (int, bool) {
	for _, bid := range c.byBase[l] {
		if c.lives.liveAt(p, c.borrows[bid].Borrower) {
			return bid, true
		}
	}
	return 0, false
}

func (c *checker) refIsMutable(l ir.LocalID) bool {
	tt, ok := c.tin.Lookup(c.localType(l))
	return ok && tt.Kind == types.KindRef && tt.Mutable
}

func (c *checker) localType(l ir.LocalID) types.TypeID {
	return c.f.Locals[l].Type
}

func (c *checker) localName(l ir.LocalID) string {
	if n := c.f.Locals[l].Name; n != "" {
		return n
	}
	return fmt.Sprintf("_%d", l)
}

func (c *checker) spanOf(in *ir.Instr) source.Span {
	if !in.Span.Empty() {
		return in.Span
	}
	return c.f.Span
}

// errorAt builds an error diagnostic. During the silent fixpoint phase the
// builder goes nowhere; only the final reporting walk emits.
func (c *checker) errorAt(code diag.Code, sp source.Span, format string, args ...any) *diag.ReportBuilder {
	if !c.reporting {
		return nil
	}
	c.bad = true
	return diag.ReportError(c.rep, code, sp, fmt.Sprintf(format, args...))
}

func hasDeref(p ir.Place) bool {
	return len(p.Proj) > 0 && p.Proj[0].Kind == ir.PlaceProjDeref
}

func firstField(p ir.Place) (int, bool) {
	for _, pr := range p.Proj {
		if pr.Kind == ir.PlaceProjField {
			return pr.FieldIdx, true
		}
	}
	return 0, false
}
