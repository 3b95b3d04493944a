package sizestore

// DocString describes the indirection size store's persistence format,
// for `spacer tools docs sizestore`.
func DocString() string {
	return `sizestore: persists, as pretty-printed JSON keyed by ".text.<lib>",
the largest .ind.<lib> indirection section size ever observed for a
library, so the next planning run can reserve at least that much room
instead of guessing and risking an overflow into the following section.
A missing store file is treated as empty rather than fatal.`
}
