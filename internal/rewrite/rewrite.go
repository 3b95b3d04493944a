// Package rewrite redirects out-of-library control-flow and data
// references inside an already-linked unikernel image through per-library
// indirection sections, so each library's code can later be relocated
// independently without re-linking.
package rewrite

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

var hexLiteralPattern = regexp.MustCompile(`0x[A-Fa-f0-9]{4,}`)

// sentinelAllFString is the exact operand text the original disassembler
// treated as "not a real address" (capstone renders a -1 immediate this
// way); sentinelAllFInt is a second, unrelated sentinel later checked as
// an integer rather than a string, both carried over unchanged.
const (
	sentinelAllFString = "0xffffffff"
	sentinelAllFInt    = 0xffffff
)

// Library is the rewritten pair of one library's executable section and
// its companion indirection section.
type Library struct {
	Name            string
	Text            []byte
	Indirection     []byte
	IndirectionSize uint64
}

// Rewriter disassembles and patches the per-library .text sections of an
// already-linked image, redirecting any instruction that addresses
// outside its own library through a trampoline placed in that library's
// .ind section.
type Rewriter struct {
	logger  *slog.Logger
	symbols SymbolTable
}

// New builds a Rewriter that logs through logger.
func New(logger *slog.Logger) *Rewriter {
	return &Rewriter{logger: logger}
}

// WithSymbols attaches a symbol table used to annotate verbose logging
// with the function name a redirected call or jump targets.
func (r *Rewriter) WithSymbols(symbols SymbolTable) *Rewriter {
	r.symbols = symbols
	return r
}

// RewriteSection rewrites one library's .text.<lib> section. text is that
// section's own address window; indirection is the paired .ind.<lib>
// window new trampolines are appended into; allSections is the full
// section layout of the image, used to classify operands that point at
// other libraries.
func (r *Rewriter) RewriteSection(name string, text, indirection sectionWindow, content []byte, allSections []sectionWindow) (*Library, error) {
	ind := newIndirectionSection(indirection.Address)

	var out bytes.Buffer
	optimizedSuit := 0

	offset := 0
	for offset < len(content) {
		inst, err := x86asm.Decode(content[offset:], 64)
		if err != nil || inst.Len == 0 {
			out.WriteByte(content[offset])
			offset++
			optimizedSuit = 0
			continue
		}

		addr := text.Address + uint64(offset)
		insBytes := content[offset : offset+inst.Len]
		operands := renderOperands(inst, addr)
		matched := hexLiteralPattern.FindString(operands)

		switch {
		case matched == "":
			out.Write(insBytes)
			optimizedSuit = 0
		case strings.EqualFold(matched, sentinelAllFString):
			out.Write(insBytes)
			optimizedSuit = 0
		default:
			replacement, redirected := r.processInstruction(ind, inst, addr, insBytes, matched, text, allSections, optimizedSuit)
			if redirected {
				out.Write(replacement)
				optimizedSuit++
			} else {
				out.Write(insBytes)
				optimizedSuit = 0
			}
		}

		offset += inst.Len
	}

	return &Library{
		Name:            name,
		Text:            out.Bytes(),
		Indirection:     ind.Bytes(),
		IndirectionSize: ind.Size(),
	}, nil
}

// processInstruction decides whether one decoded instruction needs to be
// redirected through the indirection section and, if so, builds its
// replacement .text bytes.
func (r *Rewriter) processInstruction(ind *indirectionSection, inst x86asm.Inst, addr uint64, insBytes []byte, matched string, own sectionWindow, allSections []sectionWindow, optimizedSuit int) ([]byte, bool) {
	hasRIP := hasRIPOperand(inst)

	if !hasRIP && len(matched) < 8 {
		return nil, false
	}

	addrInt, err := strconv.ParseUint(strings.TrimPrefix(matched, "0x"), 16, 64)
	if err != nil {
		return nil, false
	}

	if addrInt == sentinelAllFInt || len(matched) > 8 {
		return nil, false
	}

	if !requiresRedirect(addrInt, insBytes, own, allSections) {
		return nil, false
	}

	switch {
	case len(insBytes) == 5:
		before := ind.addr
		if !ind.addIndBytes(addrInt, addr, insBytes, optimizedSuit) {
			return nil, false
		}
		if names := r.symbols.At(addrInt); len(names) > 0 {
			r.logger.Debug("redirecting call", "address", fmt.Sprintf("0x%x", addr), "target", names)
		}
		return trampoline(before, addr, optimizedSuit), true

	case len(insBytes) > 5:
		before := ind.addr
		if hasRIP {
			target, ok := ripTarget(inst, addr, insBytes)
			if !ok {
				return nil, false
			}
			if err := ind.addIndBytesBiggerRip(addr, insBytes, target, optimizedSuit); err != nil {
				r.logger.Warn("skipping unrewritable rip-relative instruction",
					"address", fmt.Sprintf("0x%x", addr), "error", err)
				return nil, false
			}
		} else {
			ind.addIndBytesBigger(addr, insBytes, optimizedSuit)
		}
		return trampolinePadded(before, addr, optimizedSuit, len(insBytes)), true

	default:
		return nil, false
	}
}

// requiresRedirect reports whether an operand needs to be routed through
// the indirection section: either because it literally embeds an
// absolute address in its encoding, or because it addresses a different
// section than the one the instruction itself lives in.
func requiresRedirect(addrInt uint64, insBytes []byte, own sectionWindow, allSections []sectionWindow) bool {
	if useAbsoluteValue(addrInt, insBytes) {
		return true
	}
	if own.ContainsOwn(addrInt) {
		return false
	}
	for _, s := range allSections {
		if s.ContainsOther(addrInt) {
			return true
		}
	}
	return false
}

// useAbsoluteValue reports whether addrInt's hex digits literally appear
// among insBytes's trailing bytes, read back to front. This is a
// byte-pattern heuristic, not a semantic decode: it is what lets
// RIP-relative operands (whose raw displacement is always present in
// their own encoding) fall through to a redirect even though addrInt for
// those is the displacement, not a resolved address.
func useAbsoluteValue(addrInt uint64, insBytes []byte) bool {
	target := fmt.Sprintf("%02x", addrInt)

	var rendered strings.Builder
	for i := len(insBytes) - 1; i >= 0; i-- {
		b := insBytes[i]
		if b == 0x0 && i == len(insBytes)-1 {
			continue
		}
		rendered.WriteString(fmt.Sprintf("%02x", b))
		if strings.Contains(rendered.String(), target) {
			return true
		}
	}
	return false
}

// trampoline builds the 5-byte JMP rel32 written into .text in place of a
// redirected instruction, landing at the spot in the indirection section
// where that instruction's replacement was written.
func trampoline(indAddrBeforeWrite, currentAddr uint64, optimizedSuit int) []byte {
	diff := int64(indAddrBeforeWrite) - int64(currentAddr) - 0x5
	if optimizedSuit > 0 {
		diff -= 0x5
	}

	buf := make([]byte, 5)
	buf[0] = opNearJmp
	binary.LittleEndian.PutUint32(buf[1:], uint32(int32(diff)))
	return buf
}

// trampolinePadded is trampoline plus trailing NOPs, for replacing an
// instruction longer than 5 bytes: the jump itself is still only 5 bytes,
// so the remainder of the original instruction's footprint is padded out
// so later instructions keep their original addresses.
func trampolinePadded(indAddrBeforeWrite, currentAddr uint64, optimizedSuit, insLen int) []byte {
	buf := trampoline(indAddrBeforeWrite, currentAddr, optimizedSuit)
	for i := 0; i < insLen-5; i++ {
		buf = append(buf, opNop)
	}
	return buf
}
