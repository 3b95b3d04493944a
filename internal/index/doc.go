package index

// DocString describes the global library merge and classification rules,
// for `spacer tools docs index`.
func DocString() string {
	return `index: merges per-unikernel library views into one global map keyed
by library name (GlobalLibraryIndex.Merge), then partitions it by
occurrence count against the total unikernel count (Classify) into
common_to_all, common_subset and individual. Insertion order is
preserved so repeated planning runs over the same workspace produce
identical linker-script fragment ordering.`
}
