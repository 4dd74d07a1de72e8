// Package target describes the machine the back end compiles for: its
// register file, calling convention and frame limits. The x86-64 SysV
// description is built in; alternative register files can be loaded from a
// TOML file for the allocator.
package target

// RegClass separates the integer and floating-point register files. The
// allocator runs them independently.
type RegClass uint8

const (
	ClassGP RegClass = iota
	ClassFP
)

func (c RegClass) String() string {
	if c == ClassFP {
		return "fp"
	}
	return "gp"
}

// Reg is one allocatable register.
type Reg struct {
	Name        string
	Class       RegClass
	CalleeSaved bool
}

// Desc is a complete target description. GP and FP list the allocatable
// registers in preference order; argument, result and scratch registers are
// reserved and never handed to the allocator.
type Desc struct {
	Name       string
	PtrSize    uint32
	StackAlign uint32
	// FrameLimit caps the per-function frame in bytes. Blowing past it is
	// an internal codegen error, not a user diagnostic.
	FrameLimit int64

	GP []Reg
	FP []Reg

	ArgsGP []string
	ArgsFP []string
	RetGP  string
	RetFP  string

	// Scratch registers for spill traffic and address arithmetic.
	Scratch   []string
	ScratchFP []string
}

// X8664 is the built-in x86-64 System V description. RAX/RCX/RDX plus the
// argument registers stay out of the allocatable set so the emitter always
// has scratch space and free argument slots.
func X8664() *Desc {
	return &Desc{
		Name:       "x86_64-sysv",
		PtrSize:    8,
		StackAlign: 16,
		FrameLimit: 1 << 20,
		GP: []Reg{
			{Name: "rbx", Class: ClassGP, CalleeSaved: true},
			{Name: "r12", Class: ClassGP, CalleeSaved: true},
			{Name: "r13", Class: ClassGP, CalleeSaved: true},
			{Name: "r14", Class: ClassGP, CalleeSaved: true},
			{Name: "r15", Class: ClassGP, CalleeSaved: true},
			{Name: "r10", Class: ClassGP},
			{Name: "r11", Class: ClassGP},
			{Name: "r9", Class: ClassGP},
		},
		FP: []Reg{
			{Name: "xmm8", Class: ClassFP},
			{Name: "xmm9", Class: ClassFP},
			{Name: "xmm10", Class: ClassFP},
			{Name: "xmm11", Class: ClassFP},
			{Name: "xmm12", Class: ClassFP},
			{Name: "xmm13", Class: ClassFP},
			{Name: "xmm14", Class: ClassFP},
			{Name: "xmm15", Class: ClassFP},
		},
		ArgsGP:    []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"},
		ArgsFP:    []string{"xmm0", "xmm1", "xmm2", "xmm3", "xmm4", "xmm5", "xmm6", "xmm7"},
		RetGP:     "rax",
		RetFP:     "xmm0",
		Scratch:   []string{"rax", "rcx", "rdx"},
		ScratchFP: []string{"xmm0", "xmm1"},
	}
}

// RegByName finds an allocatable register in either class.
func (d *Desc) RegByName(name string) (Reg, bool) {
	for _, r := range d.GP {
		if r.Name == name {
			return r, true
		}
	}
	for _, r := range d.FP {
		if r.Name == name {
			return r, true
		}
	}
	return Reg{}, false
}

// Allocatable returns the register list for a class.
func (d *Desc) Allocatable(c RegClass) []Reg {
	if c == ClassFP {
		return d.FP
	}
	return d.GP
}
