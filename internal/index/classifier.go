package index

import "github.com/Manu343726/spacer/internal/model"

// Classes partitions a GlobalLibraryIndex by how many unikernels a library
// occurs in, out of unikernelCount total. Each slice preserves the index's
// first-seen order.
type Classes struct {
	// CommonToAll holds libraries present in every unikernel.
	CommonToAll []*model.LibraryObject
	// CommonSubset holds libraries present in more than one, but not all,
	// unikernels.
	CommonSubset []*model.LibraryObject
	// Individual holds libraries present in exactly one unikernel.
	Individual []*model.LibraryObject
}

// Classify partitions idx's libraries against unikernelCount.
func Classify(idx *GlobalLibraryIndex, unikernelCount int) Classes {
	var classes Classes

	for _, name := range idx.Names() {
		lib, _ := idx.Get(name)

		switch {
		case lib.Occurrence == unikernelCount:
			classes.CommonToAll = append(classes.CommonToAll, lib)
		case lib.Occurrence > 1:
			classes.CommonSubset = append(classes.CommonSubset, lib)
		default:
			classes.Individual = append(classes.Individual, lib)
		}
	}

	return classes
}
