package rewrite

// sectionWindow is the address range of one section of the already-linked
// ELF image being rewritten, used to classify where a redirected
// instruction's operand actually points to.
type sectionWindow struct {
	Name    string
	Address uint64
	Size    uint64
}

func (w sectionWindow) End() uint64 {
	return w.Address + w.Size
}

// ContainsOwn reports membership using the same-section test: an
// instruction addressing the very end of its own section (one past the
// last byte) does not count as a self-reference.
func (w sectionWindow) ContainsOwn(addr uint64) bool {
	return w.Address <= addr && addr < w.End()
}

// ContainsOther reports membership using the other-sections test, which
// treats the end address itself as still belonging to the section. This
// asymmetry with ContainsOwn is carried over unchanged from the original
// classifier.
func (w sectionWindow) ContainsOther(addr uint64) bool {
	return w.Address != 0 && w.Address <= addr && addr <= w.End()
}
