package rewrite

// DocString describes the indirection rewrite algorithm, for
// `spacer tools docs rewrite`.
func DocString() string {
	return `rewrite: disassembles an already-linked unikernel's .text.<lib>
sections with golang.org/x/arch/x86/x86asm and relocates any instruction
whose operand reaches outside its own library into that library's
.ind.<lib> section, replacing the original site with a same-size jump (or
jump plus NOP padding, for instructions longer than 5 bytes) to the
relocated copy, which itself ends with a jump back. This lets a later
loader randomize each library's .text pages independently while
cross-library control flow stays valid.`
}
