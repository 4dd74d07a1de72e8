package regalloc

import (
	"errors"
	"fmt"
	"sort"

	"fortio.org/safecast"

	"kiln/internal/ir"
	"kiln/internal/layout"
	"kiln/internal/target"
	"kiln/internal/types"
)

var (
	// ErrRegisterExhaustion: the target description offers no registers
	// for a class the function needs.
	ErrRegisterExhaustion = errors.New("regalloc: register class exhausted")
	// ErrFrameOverflow: locals and spill slots exceed the target's frame
	// limit.
	ErrFrameOverflow = errors.New("regalloc: frame limit exceeded")
)

// LocKind distinguishes where a local lives.
type LocKind uint8

const (
	// LocNone: the local has no storage (unit values, dead locals).
	LocNone LocKind = iota
	// LocReg: the local occupies a register for its whole lifetime.
	LocReg
	// LocStack: the local lives in the frame, at Offset from the frame
	// base (negative, frame grows down).
	LocStack
)

// Location is the storage assigned to one local.
type Location struct {
	Kind   LocKind
	Reg    string
	Offset int32
}

// Assignment is the allocator's output for one function.
type Assignment struct {
	// Locs is indexed by LocalID.
	Locs []Location
	// Intervals are the live ranges the scan ran over, sorted by start.
	Intervals []Interval
	// SpillSlots counts 8-byte slots used by scan spills, aggregates not
	// included.
	SpillSlots int
	// FrameBytes is the total frame area for locals and spills, aligned
	// to the target's stack alignment. Callee-saved saves come on top in
	// the emitter.
	FrameBytes int64
	// UsedCalleeSaved lists callee-saved registers handed out, in the
	// target's preference order.
	UsedCalleeSaved []string
}

// Allocate runs linear-scan register allocation for one function.
// Inference must have attached types to every local. Failure is an internal
// limit, not a user diagnostic.
func Allocate(f *ir.Func, lay *layout.Engine, desc *target.Desc) (*Assignment, error) {
	asg := &Assignment{Locs: make([]Location, len(f.Locals))}
	var frame int64

	// Aggregates and address-taken locals always live in the frame: the
	// register file only holds word-sized values nobody points at.
	addressTaken := make([]bool, len(f.Locals))
	for bi := range f.Blocks {
		for ii := range f.Blocks[bi].Instrs {
			in := &f.Blocks[bi].Instrs[ii]
			if in.Kind == ir.InstrAssign && in.Assign.Src.Kind == ir.RValueRef {
				addressTaken[in.Assign.Src.Ref.Place.Local] = true
			}
		}
	}
	inMemory := make([]bool, len(f.Locals))
	for i := range f.Locals {
		_, kind := classify(f, lay, ir.LocalID(i))
		if kind != placeMemory && !(addressTaken[i] && kind == placeReg) {
			continue
		}
		l, err := lay.Of(f.Locals[i].Type)
		if err != nil {
			return nil, fmt.Errorf("regalloc: local %d: %w", i, err)
		}
		frame = alignUp64(frame, int64(l.Align))
		frame += int64(l.Size)
		off, err := safecast.Conv[int32](frame)
		if err != nil {
			return nil, fmt.Errorf("regalloc: frame offset overflow: %w", err)
		}
		asg.Locs[i] = Location{Kind: LocStack, Offset: -off}
		inMemory[i] = true
	}

	pm := ir.BuildPointMap(f)
	lv := ir.ComputeLiveness(f)
	intervals := buildIntervals(f, pm, lv, func(l ir.LocalID) (target.RegClass, bool) {
		if inMemory[l] {
			return 0, false
		}
		class, kind := classify(f, lay, l)
		return class, kind == placeReg
	})
	asg.Intervals = intervals

	for _, class := range []target.RegClass{target.ClassGP, target.ClassFP} {
		if err := scanClass(intervals, class, desc, asg, &frame); err != nil {
			return nil, err
		}
	}

	frame = alignUp64(frame, int64(desc.StackAlign))
	asg.FrameBytes = frame
	if frame > desc.FrameLimit {
		return nil, fmt.Errorf("%w: frame of %d bytes exceeds limit %d for %s",
			ErrFrameOverflow, frame, desc.FrameLimit, f.Name)
	}

	asg.UsedCalleeSaved = calleeSavedInUse(desc, asg)
	return asg, nil
}

type placeKind uint8

const (
	placeNone placeKind = iota
	placeReg
	placeMemory
)

// classify decides register class or memory placement from the local's
// resolved type.
func classify(f *ir.Func, lay *layout.Engine, l ir.LocalID) (target.RegClass, placeKind) {
	tt, ok := lay.Types.Lookup(f.Locals[l].Type)
	if !ok {
		return target.ClassGP, placeNone
	}
	switch tt.Kind {
	case types.KindUnit, types.KindInvalid:
		return target.ClassGP, placeNone
	case types.KindFloat:
		return target.ClassFP, placeReg
	case types.KindNamed, types.KindTuple, types.KindArray:
		return target.ClassGP, placeMemory
	default:
		return target.ClassGP, placeReg
	}
}

type activeEntry struct {
	iv  Interval
	reg int // index into the class register list
}

// scanClass is the linear scan proper for one register class: sorted by
// start, expire by end, spill the interval with the furthest end.
func scanClass(intervals []Interval, class target.RegClass, desc *target.Desc, asg *Assignment, frame *int64) error {
	regs := desc.Allocatable(class)
	var active []activeEntry
	free := make([]bool, len(regs))
	for i := range free {
		free[i] = true
	}

	spill := func(local ir.LocalID) error {
		*frame = alignUp64(*frame, 8) + 8
		off, err := safecast.Conv[int32](*frame)
		if err != nil {
			return fmt.Errorf("regalloc: spill offset overflow: %w", err)
		}
		asg.Locs[local] = Location{Kind: LocStack, Offset: -off}
		asg.SpillSlots++
		return nil
	}

	for _, cur := range intervals {
		if cur.Class != class {
			continue
		}
		if len(regs) == 0 {
			return fmt.Errorf("%w: no %s registers in target %s",
				ErrRegisterExhaustion, class, desc.Name)
		}

		// Expire intervals that ended before this one starts.
		live := active[:0]
		for _, a := range active {
			if a.iv.End < cur.Start {
				free[a.reg] = true
				continue
			}
			live = append(live, a)
		}
		active = live

		if len(active) < len(regs) {
			reg := -1
			for i := range regs {
				if free[i] {
					reg = i
					break
				}
			}
			free[reg] = false
			asg.Locs[cur.Local] = Location{Kind: LocReg, Reg: regs[reg].Name}
			active = append(active, activeEntry{iv: cur, reg: reg})
			sortActive(active)
			continue
		}

		// All registers taken: evict whoever ends furthest in the future,
		// unless that is the current interval itself.
		victim := len(active) - 1
		if active[victim].iv.End > cur.End {
			evicted := active[victim]
			if err := spill(evicted.iv.Local); err != nil {
				return err
			}
			asg.Locs[cur.Local] = Location{Kind: LocReg, Reg: regs[evicted.reg].Name}
			active[victim] = activeEntry{iv: cur, reg: evicted.reg}
			sortActive(active)
			continue
		}
		if err := spill(cur.Local); err != nil {
			return err
		}
	}
	return nil
}

func sortActive(active []activeEntry) {
	sort.Slice(active, func(i, j int) bool {
		if active[i].iv.End != active[j].iv.End {
			return active[i].iv.End < active[j].iv.End
		}
		return active[i].iv.Local < active[j].iv.Local
	})
}

func calleeSavedInUse(desc *target.Desc, asg *Assignment) []string {
	used := make(map[string]bool)
	for _, loc := range asg.Locs {
		if loc.Kind == LocReg {
			used[loc.Reg] = true
		}
	}
	var out []string
	for _, r := range desc.GP {
		if r.CalleeSaved && used[r.Name] {
			out = append(out, r.Name)
		}
	}
	for _, r := range desc.FP {
		if r.CalleeSaved && used[r.Name] {
			out = append(out, r.Name)
		}
	}
	return out
}

func alignUp64(n, align int64) int64 {
	if align <= 1 {
		return n
	}
	rem := n % align
	if rem == 0 {
		return n
	}
	return n + align - rem
}
