// Package utils provides utility functions for the spacer project.
package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fatih/color"
)

// x86-64 assembly syntax highlighting colors.
var (
	// Mnemonics, e.g. call, jmp, mov
	asmMnemonicColor = color.New(color.FgMagenta, color.Bold)
	// General-purpose and segment registers
	asmRegisterColor = color.New(color.FgCyan)
	// Hex immediates and displacements
	asmNumberColor = color.New(color.FgYellow)
	// Comments (the symbol annotation trailing a disassembled line)
	asmCommentColor = color.New(color.FgHiBlack)
	// Section and symbol addresses
	asmAddressColor = color.New(color.FgBlue)
	// rip-relative and indirection markers
	asmKeywordColor = color.New(color.FgRed, color.Bold)
)

// x86-64 mnemonics this rewriter's disassembly loop actually cares about,
// plus the handful most common in unikernel .text sections worth calling
// out distinctly in verbose output.
var asmMnemonics = map[string]bool{
	"call": true, "jmp": true, "je": true, "jne": true, "jz": true,
	"jnz": true, "jg": true, "jge": true, "jl": true, "jle": true,
	"mov": true, "movzx": true, "movsx": true, "lea": true, "push": true,
	"pop": true, "add": true, "sub": true, "cmp": true, "test": true,
	"xor": true, "and": true, "or": true, "ret": true, "nop": true,
	"leave": true, "endbr64": true,
}

var asmRegisters = map[string]bool{
	"rax": true, "rbx": true, "rcx": true, "rdx": true, "rsi": true,
	"rdi": true, "rbp": true, "rsp": true, "rip": true,
	"eax": true, "ebx": true, "ecx": true, "edx": true, "esi": true,
	"edi": true, "ebp": true, "esp": true,
	"r8": true, "r9": true, "r10": true, "r11": true, "r12": true,
	"r13": true, "r14": true, "r15": true,
}

var (
	asmHexPattern        = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	asmAddressPattern    = regexp.MustCompile(`^[0-9a-fA-F]+:`)
	asmCommentPattern    = regexp.MustCompile(`#.*$`)
	asmIdentifierPattern = regexp.MustCompile(`\b[a-zA-Z_][a-zA-Z0-9_]*\b`)
)

type asmToken struct {
	text  string
	color *color.Color
	start int
	end   int
}

// HighlightDisassembly applies syntax highlighting to one line of
// rendered disassembly output (address, mnemonic, operands, and an
// optional trailing "# symbol" comment), for use behind --verbose.
func HighlightDisassembly(line string) string {
	if line == "" {
		return ""
	}

	var tokens []asmToken

	if match := asmAddressPattern.FindStringIndex(line); match != nil {
		tokens = append(tokens, asmToken{text: line[match[0]:match[1]], color: asmAddressColor, start: match[0], end: match[1]})
	}

	if match := asmCommentPattern.FindStringIndex(line); match != nil && !asmOverlapsAny(match[0], match[1], tokens) {
		tokens = append(tokens, asmToken{text: line[match[0]:match[1]], color: asmCommentColor, start: match[0], end: match[1]})
	}

	for _, match := range asmHexPattern.FindAllStringIndex(line, -1) {
		if !asmOverlapsAny(match[0], match[1], tokens) {
			tokens = append(tokens, asmToken{text: line[match[0]:match[1]], color: asmNumberColor, start: match[0], end: match[1]})
		}
	}

	for _, match := range asmIdentifierPattern.FindAllStringIndex(line, -1) {
		if asmOverlapsAny(match[0], match[1], tokens) {
			continue
		}
		word := strings.ToLower(line[match[0]:match[1]])
		var c *color.Color
		switch {
		case word == "rip":
			c = asmKeywordColor
		case asmMnemonics[word]:
			c = asmMnemonicColor
		case asmRegisters[word]:
			c = asmRegisterColor
		}
		if c != nil {
			tokens = append(tokens, asmToken{text: line[match[0]:match[1]], color: c, start: match[0], end: match[1]})
		}
	}

	return asmBuildHighlightedString(line, tokens)
}

func asmOverlapsAny(start, end int, tokens []asmToken) bool {
	for _, t := range tokens {
		if start < t.end && end > t.start {
			return true
		}
	}
	return false
}

func asmBuildHighlightedString(line string, tokens []asmToken) string {
	if len(tokens) == 0 {
		return line
	}

	asmSortTokens(tokens)

	var result strings.Builder
	pos := 0
	for _, t := range tokens {
		if t.start > pos {
			result.WriteString(line[pos:t.start])
		}
		result.WriteString(t.color.Sprint(t.text))
		pos = t.end
	}
	if pos < len(line) {
		result.WriteString(line[pos:])
	}

	return result.String()
}

func asmSortTokens(tokens []asmToken) {
	for i := 1; i < len(tokens); i++ {
		key := tokens[i]
		j := i - 1
		for j >= 0 && tokens[j].start > key.start {
			tokens[j+1] = tokens[j]
			j--
		}
		tokens[j+1] = key
	}
}

// PrintHighlightedDisassembly prints one disassembled line with syntax
// highlighting to stdout.
func PrintHighlightedDisassembly(line string) {
	fmt.Print(HighlightDisassembly(line))
}
