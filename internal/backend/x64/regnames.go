package x64

import "fmt"

// legacySub maps the eight legacy registers to their narrower names.
var legacySub = map[string][3]string{
	"rax": {"eax", "ax", "al"},
	"rbx": {"ebx", "bx", "bl"},
	"rcx": {"ecx", "cx", "cl"},
	"rdx": {"edx", "dx", "dl"},
	"rsi": {"esi", "si", "sil"},
	"rdi": {"edi", "di", "dil"},
	"rbp": {"ebp", "bp", "bpl"},
	"rsp": {"esp", "sp", "spl"},
}

// sized returns the register name for an operand of the given byte width.
// xmm registers have one name for every width.
func sized(reg string, bytes int) string {
	if len(reg) >= 3 && reg[0] == 'x' {
		return reg
	}
	if sub, ok := legacySub[reg]; ok {
		switch bytes {
		case 4:
			return sub[0]
		case 2:
			return sub[1]
		case 1:
			return sub[2]
		default:
			return reg
		}
	}
	// r8..r15
	switch bytes {
	case 4:
		return reg + "d"
	case 2:
		return reg + "w"
	case 1:
		return reg + "b"
	default:
		return reg
	}
}

// ptrWord is the memory operand size keyword for a width.
func ptrWord(bytes int) string {
	switch bytes {
	case 1:
		return "byte ptr"
	case 2:
		return "word ptr"
	case 4:
		return "dword ptr"
	default:
		return "qword ptr"
	}
}

// isXMM reports whether the register belongs to the SSE file.
func isXMM(reg string) bool {
	return len(reg) >= 3 && reg[:3] == "xmm"
}

func memOperand(bytes int, addr string) string {
	return fmt.Sprintf("%s %s", ptrWord(bytes), addr)
}
