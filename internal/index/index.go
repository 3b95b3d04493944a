// Package index builds the cross-unikernel library index the planner walks
// to assign shared addresses, and classifies each library by how many
// unikernels it occurs in.
package index

import (
	"github.com/Manu343726/spacer/internal/model"
)

// GlobalLibraryIndex merges one LibraryObject per distinct library name
// across every unikernel probed, keeping first-seen order so the planner's
// walk is deterministic across runs of the same workspace.
type GlobalLibraryIndex struct {
	order   []string
	entries map[string]*model.LibraryObject
}

// New creates an empty index.
func New() *GlobalLibraryIndex {
	return &GlobalLibraryIndex{entries: make(map[string]*model.LibraryObject)}
}

// Merge folds a freshly-probed library copy into the index: a library seen
// for the first time is recorded as-is (occurrence 1, inherited from the
// probe), a library seen again has its occurrence count bumped and its
// per-section size/alignment adopted from the new copy only when strictly
// larger, via LibraryObject.Merge.
func (idx *GlobalLibraryIndex) Merge(lib *model.LibraryObject) {
	existing, ok := idx.entries[lib.Name]
	if !ok {
		idx.entries[lib.Name] = lib
		idx.order = append(idx.order, lib.Name)
		return
	}

	existing.Merge(lib)
}

// Get returns the merged entry for a library name, if present.
func (idx *GlobalLibraryIndex) Get(name string) (*model.LibraryObject, bool) {
	lib, ok := idx.entries[name]
	return lib, ok
}

// Names returns every distinct library name in first-seen order.
func (idx *GlobalLibraryIndex) Names() []string {
	out := make([]string, len(idx.order))
	copy(out, idx.order)
	return out
}

// Len returns the number of distinct libraries merged so far.
func (idx *GlobalLibraryIndex) Len() int {
	return len(idx.order)
}
