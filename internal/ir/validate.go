package ir

import (
	"fmt"
)

// Validate checks structural well-formedness the later passes rely on:
// every block terminated, every branch target and local id in range.
func Validate(f *Func) error {
	if f == nil {
		return nil
	}
	if f.Entry == NoBlockID || int(f.Entry) >= len(f.Blocks) {
		return fmt.Errorf("ir: %s: invalid entry block %d", f.Name, f.Entry)
	}
	for bi := range f.Blocks {
		b := &f.Blocks[bi]
		if !b.Terminated() {
			return fmt.Errorf("ir: %s: block b%d is not terminated", f.Name, b.ID)
		}
		for _, s := range b.Term.Successors() {
			if s < 0 || int(s) >= len(f.Blocks) {
				return fmt.Errorf("ir: %s: block b%d branches to invalid block %d", f.Name, b.ID, s)
			}
		}
		for ii := range b.Instrs {
			if err := f.validateInstr(&b.Instrs[ii]); err != nil {
				return fmt.Errorf("ir: %s: b%d[%d]: %w", f.Name, b.ID, ii, err)
			}
		}
		for _, u := range b.Term.Uses() {
			if err := f.checkLocal(u); err != nil {
				return fmt.Errorf("ir: %s: b%d terminator: %w", f.Name, b.ID, err)
			}
		}
	}
	for _, l := range f.Locals {
		if int(l.Scope) >= len(f.ScopeParents) {
			return fmt.Errorf("ir: %s: local %q has invalid scope %d", f.Name, l.Name, l.Scope)
		}
	}
	return nil
}

func (f *Func) validateInstr(in *Instr) error {
	if in.Kind == InstrDestructure && len(in.Destructure.Dsts) == 0 {
		return fmt.Errorf("destructure with no destinations")
	}
	for _, u := range in.Uses() {
		if err := f.checkLocal(u); err != nil {
			return err
		}
	}
	for _, d := range in.Defs() {
		if err := f.checkLocal(d); err != nil {
			return err
		}
	}
	return nil
}

func (f *Func) checkLocal(id LocalID) error {
	if id < 0 || int(id) >= len(f.Locals) {
		return fmt.Errorf("invalid local id %d", id)
	}
	return nil
}
