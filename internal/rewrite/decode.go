package rewrite

import (
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// renderOperands formats an instruction's operand list the way the
// original disassembler's op_str did: mnemonic stripped, relative
// branch targets resolved to the absolute address they land on.
func renderOperands(inst x86asm.Inst, pc uint64) string {
	full := x86asm.IntelSyntax(inst, pc, nil)
	if idx := strings.IndexByte(full, ' '); idx >= 0 {
		return strings.TrimSpace(full[idx+1:])
	}
	return ""
}

// hasRIPOperand reports whether inst addresses memory relative to the
// instruction pointer, e.g. "lea rax, [rip+0x1234]".
func hasRIPOperand(inst x86asm.Inst) bool {
	_, ok := ripMemOperand(inst)
	return ok
}

func ripMemOperand(inst x86asm.Inst) (x86asm.Mem, bool) {
	for _, arg := range inst.Args {
		if arg == nil {
			continue
		}
		if mem, ok := arg.(x86asm.Mem); ok && mem.Base == x86asm.RIP {
			return mem, true
		}
	}
	return x86asm.Mem{}, false
}

// ripTarget resolves the absolute address a RIP-relative operand points
// to. RIP-relative addressing is relative to the address of the
// instruction immediately following the one being decoded, not to the
// decoded instruction's own start address.
func ripTarget(inst x86asm.Inst, addr uint64, insBytes []byte) (uint64, bool) {
	mem, ok := ripMemOperand(inst)
	if !ok {
		return 0, false
	}
	next := addr + uint64(len(insBytes))
	return uint64(int64(next) + mem.Disp), true
}
