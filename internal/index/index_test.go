package index

import (
	"debug/elf"
	"testing"

	"github.com/Manu343726/spacer/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lib(name string, textSize, align uint64) *model.LibraryObject {
	l := model.NewLibraryObject(name, elf.ET_REL)
	l.Sections[".text"] = model.SectionDescriptor{Name: ".text", Size: textSize, AddrAlign: align}
	return l
}

func TestMerge_FirstOccurrenceKeptAsIs(t *testing.T) {
	idx := New()
	idx.Merge(lib("libfoo", 0x100, 8))

	got, ok := idx.Get("libfoo")
	require.True(t, ok)
	assert.Equal(t, 1, got.Occurrence)
	assert.EqualValues(t, 0x100, got.Size(".text"))
}

func TestMerge_SecondOccurrenceIncrementsAndGrowsOnlyWhenLarger(t *testing.T) {
	idx := New()
	idx.Merge(lib("libfoo", 0x100, 8))
	idx.Merge(lib("libfoo", 0x80, 16))

	got, _ := idx.Get("libfoo")
	assert.Equal(t, 2, got.Occurrence)
	assert.EqualValues(t, 0x100, got.Size(".text"), "a smaller copy must not shrink the recorded size")

	idx.Merge(lib("libfoo", 0x200, 32))
	got, _ = idx.Get("libfoo")
	assert.Equal(t, 3, got.Occurrence)
	assert.EqualValues(t, 0x200, got.Size(".text"))
	assert.EqualValues(t, 32, got.Sections[".text"].AddrAlign, "alignment is adopted together with size")
}

func TestNames_PreservesFirstSeenOrder(t *testing.T) {
	idx := New()
	idx.Merge(lib("libc", 1, 1))
	idx.Merge(lib("liba", 1, 1))
	idx.Merge(lib("libb", 1, 1))

	assert.Equal(t, []string{"libc", "liba", "libb"}, idx.Names())
}

func TestClassify_Partitions(t *testing.T) {
	idx := New()
	idx.Merge(lib("libcommon", 1, 1)) // uk1
	idx.Merge(lib("libcommon", 1, 1)) // uk2
	idx.Merge(lib("libcommon", 1, 1)) // uk3

	idx.Merge(lib("libshared", 1, 1)) // uk1
	idx.Merge(lib("libshared", 1, 1)) // uk2

	idx.Merge(lib("libonly", 1, 1)) // uk1 only

	classes := Classify(idx, 3)

	require.Len(t, classes.CommonToAll, 1)
	assert.Equal(t, "libcommon", classes.CommonToAll[0].Name)

	require.Len(t, classes.CommonSubset, 1)
	assert.Equal(t, "libshared", classes.CommonSubset[0].Name)

	require.Len(t, classes.Individual, 1)
	assert.Equal(t, "libonly", classes.Individual[0].Name)
}
