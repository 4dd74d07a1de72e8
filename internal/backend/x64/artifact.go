// Package x64 lowers the typed IR to x86-64 assembly text following the
// System V AMD64 calling convention. One IR instruction becomes one or more
// machine instructions; spilled values get explicit loads before use and
// stores after definition.
package x64

// Artifact is the emitted assembly for one function.
type Artifact struct {
	// Symbol is the function's linker name.
	Symbol string
	// Global marks externally visible symbols (.globl).
	Global bool
	// Text is the assembly, Intel syntax, including the function's
	// constant pool.
	Text []byte
	// Relocations lists the external symbols the text calls.
	Relocations []string
}
