package rewrite

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Near CALL/JMP opcodes and the MOV r32, imm32 family that can embed an
// absolute address directly as their trailing 4-byte immediate. These are
// the only 5-byte instruction shapes the indirection builder understands;
// see DESIGN.md for why this list is explicit rather than the original's
// accidental catch-all.
const (
	opNearCall  = 0xE8
	opNearJmp   = 0xE9
	opMovEDXImm = 0xBA
	opMovESIImm = 0xBE
	opMovEDIImm = 0xBF
	opNop       = 0x90
)

// indirectionSection accumulates the bytes of a .ind.<lib> section as
// instructions are relocated into it, starting at a caller-supplied base
// address (the section's eventual load address).
type indirectionSection struct {
	startAddr uint64
	addr      uint64
	bytes     []byte
}

func newIndirectionSection(baseAddr uint64) *indirectionSection {
	return &indirectionSection{startAddr: baseAddr, addr: baseAddr}
}

// Bytes returns the accumulated section content.
func (s *indirectionSection) Bytes() []byte {
	return s.bytes
}

// Size returns how many bytes have been written so far.
func (s *indirectionSection) Size() uint64 {
	return s.addr - s.startAddr
}

// optimizeAddrs retracts the most recently written 5-byte back-jump when
// two redirects happen back to back: the first redirect's trailing jump
// back into .text is dead the moment a second redirected instruction
// follows it directly, since execution never returns to .text in between.
func (s *indirectionSection) optimizeAddrs() {
	s.addr -= 5
	s.bytes = s.bytes[:len(s.bytes)-5]
}

// addInsBytes appends a 5-byte relative branch. Its encoding uses the same
// "target minus instruction length" convention the original's formula
// relies on: the displacement is targetMinusLen - addr - offset, so the
// CPU's own pc+5+disp arithmetic lands at targetMinusLen + 5 - offset. An
// offset of 5 lands exactly on targetMinusLen; an offset of 0 lands five
// bytes past it, i.e. on the instruction after a 5-byte site at
// targetMinusLen.
func (s *indirectionSection) addInsBytes(op byte, targetMinusLen uint64, offset uint64) {
	diff := int64(targetMinusLen) - int64(s.addr) - int64(offset)

	s.bytes = append(s.bytes, op)
	var disp [4]byte
	binary.LittleEndian.PutUint32(disp[:], uint32(int32(diff)))
	s.bytes = append(s.bytes, disp[:]...)
	s.addr += 5
}

// addIndBytes relocates a 5-byte CALL/JMP/MOV-immediate instruction:
//   - 0xE8 (call): write a call to the original target, followed by a jump
//     back to the instruction after the patched call site.
//   - 0xE9 (jmp): write a jump to the original target. The second,
//     unreachable entry mirrors the original's arithmetic exactly but is
//     dead code, since the jmp before it never falls through.
//   - 0xBA/0xBE/0xBF (mov edx/esi/edi, imm32): copy the instruction
//     verbatim, then jump back to the instruction after the patched site.
//
// Any other 5-byte opcode is left unredirected: the original's opcode
// check for this branch was an accidental tautology (see DESIGN.md), and
// reproducing it here would emit a back-jump into an indirection entry
// with no real payload.
func (s *indirectionSection) addIndBytes(nextAddr, currentAddr uint64, insBytes []byte, optimizedSuit int) bool {
	op := insBytes[0]
	switch op {
	case opNearCall, opNearJmp, opMovEDXImm, opMovESIImm, opMovEDIImm:
	default:
		// Unhandled opcode: leave any pending back-jump from a previous
		// redirect untouched and report the skip before retracting anything.
		return false
	}

	if optimizedSuit > 0 {
		s.optimizeAddrs()
	}

	switch op {
	case opNearCall:
		s.addInsBytes(op, nextAddr, 0x5)
		s.addInsBytes(opNearJmp, currentAddr, 0x0)
	case opNearJmp:
		s.addInsBytes(op, nextAddr, 0x5)
		s.addInsBytes(opNearJmp, currentAddr+0x5, 0x0)
	case opMovEDXImm, opMovESIImm, opMovEDIImm:
		s.bytes = append(s.bytes, insBytes...)
		s.addr += uint64(len(insBytes))
		s.addInsBytes(opNearJmp, currentAddr, 0x0)
	}

	return true
}

// addIndBytesBigger relocates an instruction longer than 5 bytes that
// carries no RIP-relative operand: its bytes are copied verbatim, since
// whatever addressing it uses is unaffected by where the instruction
// itself lives, followed by a 5-byte jump back to the instruction after
// the patched site.
func (s *indirectionSection) addIndBytesBigger(currentAddr uint64, insBytes []byte, optimizedSuit int) {
	if optimizedSuit > 0 {
		s.optimizeAddrs()
	}

	s.bytes = append(s.bytes, insBytes...)
	s.addr += uint64(len(insBytes))
	s.addInsBytes(opNearJmp, currentAddr, 0x0)
}

// errDisplacementNotFound is returned when a RIP-relative instruction's
// encoded 4-byte displacement can't be located inside its own bytes, which
// would indicate a disassembly mismatch rather than a normal skip case.
var errDisplacementNotFound = fmt.Errorf("rewrite: could not locate encoded rip-relative displacement")

// addIndBytesBiggerRip relocates an instruction longer than 5 bytes whose
// addressing is RIP-relative: since the instruction is moving to a new
// address, its encoded displacement must be rewritten so it still reaches
// target, then a 5-byte jump back to the instruction after the patched
// site is appended, same as addIndBytesBigger.
func (s *indirectionSection) addIndBytesBiggerRip(currentAddr uint64, insBytes []byte, target uint64, optimizedSuit int) error {
	if optimizedSuit > 0 {
		s.optimizeAddrs()
	}

	previousDisp := int32(int64(target) - int64(currentAddr) - int64(len(insBytes)))
	var previousBytes [4]byte
	binary.LittleEndian.PutUint32(previousBytes[:], uint32(previousDisp))

	idx := bytes.Index(insBytes, previousBytes[:])
	if idx < 0 {
		return errDisplacementNotFound
	}

	rewritten := append([]byte(nil), insBytes...)
	newDisp := int32(int64(target) - int64(s.addr) - int64(len(insBytes)))
	var newBytes [4]byte
	binary.LittleEndian.PutUint32(newBytes[:], uint32(newDisp))
	copy(rewritten[idx:idx+4], newBytes[:])

	s.bytes = append(s.bytes, rewritten...)
	s.addr += uint64(len(rewritten))
	s.addInsBytes(opNearJmp, currentAddr, 0x0)

	return nil
}
