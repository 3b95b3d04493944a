package model

import "debug/elf"

// LibraryObject is the per-unikernel view of a single relocatable object
// file: its section geometry, ELF type and how many unikernels it has been
// seen to occur in so far while merging into a GlobalLibraryIndex.
type LibraryObject struct {
	Name       string
	Type       elf.Type
	Sections   map[string]SectionDescriptor
	Occurrence int
}

// NewLibraryObject creates an empty library record ready to be filled in by
// a probe.
func NewLibraryObject(name string, t elf.Type) *LibraryObject {
	return &LibraryObject{
		Name:       name,
		Type:       t,
		Sections:   make(map[string]SectionDescriptor, len(SectionNames)),
		Occurrence: 1,
	}
}

// Size returns the declared size of a section, or 0 if the library never
// carried that section at all.
func (l *LibraryObject) Size(section string) uint64 {
	return l.Sections[section].Size
}

// IsExecutable reports whether this object is the unikernel's final linked
// ELF image (ET_EXEC) rather than one of its constituent libraries
// (ET_REL).
func (l *LibraryObject) IsExecutable() bool {
	return l.Type == elf.ET_EXEC
}

// Merge folds a newly-probed copy of the same library, found in another
// unikernel, into this GlobalLibraryIndex entry: the occurrence count always
// increments, and a section's size and alignment are both replaced together
// only when the new copy reports a strictly larger size. A smaller or equal
// copy changes nothing, matching the original aligner's largest-copy-wins
// rule.
func (l *LibraryObject) Merge(other *LibraryObject) {
	l.Occurrence++

	for name, newSection := range other.Sections {
		current, ok := l.Sections[name]
		if !ok || newSection.Size > current.Size {
			l.Sections[name] = newSection
		}
	}
}
