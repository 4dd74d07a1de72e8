package target

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

var (
	// ErrTargetSectionMissing indicates that [target] is missing in a
	// description file.
	ErrTargetSectionMissing = errors.New("missing [target]")
	// ErrNoRegisters indicates an empty allocatable register set.
	ErrNoRegisters = errors.New("no allocatable registers")
)

type targetFile struct {
	Target struct {
		Name       string `toml:"name"`
		PtrSize    uint32 `toml:"ptr_size"`
		StackAlign uint32 `toml:"stack_align"`
		FrameLimit int64  `toml:"frame_limit"`
		RetGP      string `toml:"ret_gp"`
		RetFP      string `toml:"ret_fp"`
	} `toml:"target"`
	Registers struct {
		GP          []string `toml:"gp"`
		FP          []string `toml:"fp"`
		CalleeSaved []string `toml:"callee_saved"`
		ArgsGP      []string `toml:"args_gp"`
		ArgsFP      []string `toml:"args_fp"`
		Scratch     []string `toml:"scratch"`
		ScratchFP   []string `toml:"scratch_fp"`
	} `toml:"registers"`
}

// LoadFile parses a target description from TOML. Omitted fields fall back
// to the x86-64 defaults, so a file can override just the register set.
func LoadFile(path string) (*Desc, error) {
	var cfg targetFile
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if !meta.IsDefined("target") {
		return nil, fmt.Errorf("%s: %w", path, ErrTargetSectionMissing)
	}

	d := X8664()
	if name := strings.TrimSpace(cfg.Target.Name); name != "" {
		d.Name = name
	}
	if cfg.Target.PtrSize != 0 {
		d.PtrSize = cfg.Target.PtrSize
	}
	if cfg.Target.StackAlign != 0 {
		d.StackAlign = cfg.Target.StackAlign
	}
	if cfg.Target.FrameLimit != 0 {
		d.FrameLimit = cfg.Target.FrameLimit
	}
	if cfg.Target.RetGP != "" {
		d.RetGP = cfg.Target.RetGP
	}
	if cfg.Target.RetFP != "" {
		d.RetFP = cfg.Target.RetFP
	}

	saved := make(map[string]bool, len(cfg.Registers.CalleeSaved))
	for _, n := range cfg.Registers.CalleeSaved {
		saved[n] = true
	}
	if meta.IsDefined("registers", "gp") {
		d.GP = regList(cfg.Registers.GP, ClassGP, saved)
	}
	if meta.IsDefined("registers", "fp") {
		d.FP = regList(cfg.Registers.FP, ClassFP, saved)
	}
	if meta.IsDefined("registers", "args_gp") {
		d.ArgsGP = cfg.Registers.ArgsGP
	}
	if meta.IsDefined("registers", "args_fp") {
		d.ArgsFP = cfg.Registers.ArgsFP
	}
	if meta.IsDefined("registers", "scratch") {
		d.Scratch = cfg.Registers.Scratch
	}
	if meta.IsDefined("registers", "scratch_fp") {
		d.ScratchFP = cfg.Registers.ScratchFP
	}

	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

func regList(names []string, class RegClass, saved map[string]bool) []Reg {
	out := make([]Reg, 0, len(names))
	for _, n := range names {
		out = append(out, Reg{Name: n, Class: class, CalleeSaved: saved[n]})
	}
	return out
}

// Validate rejects descriptions the allocator or emitter cannot work with.
func (d *Desc) Validate() error {
	if len(d.GP) == 0 {
		return fmt.Errorf("%w: gp set is empty", ErrNoRegisters)
	}
	if d.PtrSize != 4 && d.PtrSize != 8 {
		return fmt.Errorf("unsupported pointer size %d", d.PtrSize)
	}
	if d.StackAlign == 0 || d.StackAlign&(d.StackAlign-1) != 0 {
		return fmt.Errorf("stack alignment %d is not a power of two", d.StackAlign)
	}
	if d.FrameLimit <= 0 {
		return fmt.Errorf("frame limit %d must be positive", d.FrameLimit)
	}
	if d.RetGP == "" {
		return errors.New("missing gp result register")
	}
	seen := make(map[string]bool)
	for _, r := range append(append([]Reg(nil), d.GP...), d.FP...) {
		if seen[r.Name] {
			return fmt.Errorf("register %s listed twice", r.Name)
		}
		seen[r.Name] = true
	}
	for _, s := range d.Scratch {
		if seen[s] {
			return fmt.Errorf("scratch register %s is also allocatable", s)
		}
	}
	return nil
}
