// Package model holds the shared value types the planner, indexer and
// rewriter pass around: section descriptors, per-library object metadata
// and the small set of unikernel-layout constants.
package model

// PageSize is the page alignment boundary every .text region is padded to.
const PageSize = 0x1000

// ObjectExtension is the relocatable object file suffix scanned for in a
// unikernel build folder.
const ObjectExtension = ".o"

// SectionNames lists the ELF sections every library object is probed for,
// in the order the probe reads them.
var SectionNames = []string{".data", ".rodata", ".text", ".bss"}

// PlatformTag identifies which KVM platform driver a unikernel was linked
// against.
type PlatformTag string

const (
	PlatformKVMQ  PlatformTag = "kvmq"
	PlatformKVMFC PlatformTag = "kvmfc"
)

// AlignUp rounds x up to the next multiple of align. An align of 0 yields 0,
// whatever x is.
func AlignUp(x, align uint64) uint64 {
	if align == 0 {
		return 0
	}

	remainder := x % align
	if remainder == 0 {
		return x
	}

	return x + (align - remainder)
}

// SectionDescriptor mirrors one ELF section's geometry as read off a
// relocatable object: its size, the virtual address it was assigned the
// last time it was linked, its file offset and its alignment requirement.
type SectionDescriptor struct {
	Name      string
	Size      uint64
	Address   uint64
	Offset    uint64
	AddrAlign uint64
}

// End returns the first address past this section, given its Address has
// already been set to where the planner placed it.
func (s SectionDescriptor) End() uint64 {
	return s.Address + s.Size
}
