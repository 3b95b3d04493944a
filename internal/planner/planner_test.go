package planner

import (
	"debug/elf"
	"io"
	"log/slog"
	"testing"

	"github.com/Manu343726/spacer/internal/index"
	"github.com/Manu343726/spacer/internal/model"
	"github.com/Manu343726/spacer/internal/unikernel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func libWith(name string, sizes map[string]uint64, align uint64) *model.LibraryObject {
	l := model.NewLibraryObject(name, elf.ET_REL)
	for section, size := range sizes {
		l.Sections[section] = model.SectionDescriptor{Name: section, Size: size, AddrAlign: align}
	}
	return l
}

func TestProcessCommonToAll_CompactsByDefault(t *testing.T) {
	loc := uint64(0x1000)
	libs := []*model.LibraryObject{
		libWith("liba", map[string]uint64{".text": 0x200}, 16),
		libWith("libb", map[string]uint64{".text": 0x100}, 16),
	}

	frag := processCommonToAll(".text", libs, &loc, false, discardLogger())

	assert.Contains(t, frag, "  .text.liba 0x1000 : { liba.o(.text); }\n")
	assert.Contains(t, frag, "  .text.libb 0x1200 : { libb.o(.text); }\n")
	assert.EqualValues(t, 0x1300, loc)
}

func TestProcessCommonToAll_AlignTextPagesEachLibrary(t *testing.T) {
	loc := uint64(0x0)
	libs := []*model.LibraryObject{
		libWith("liba", map[string]uint64{".text": 0x10}, 16),
		libWith("libb", map[string]uint64{".text": 0x10}, 16),
	}

	processCommonToAll(".text", libs, &loc, true, discardLogger())

	assert.EqualValues(t, 2*model.PageSize, loc, "each library's .text is padded out to a page, so two libraries advance the counter by two pages")
}

func TestProcessCommonToAll_SkipsZeroSizeSections(t *testing.T) {
	loc := uint64(0)
	libs := []*model.LibraryObject{libWith("empty", map[string]uint64{".text": 0}, 16)}

	frag := processCommonToAll(".text", libs, &loc, false, discardLogger())

	assert.Empty(t, frag)
	assert.EqualValues(t, 0, loc)
}

func TestComputeLoc_PerUnikernelIndependentWalkSkipsAbsentLibraries(t *testing.T) {
	shared := libWith("libshared", map[string]uint64{".text": 0x100}, 16)
	onlyInA := libWith("libonly", map[string]uint64{".text": 0x50}, 16)

	a := unikernel.New("a", "/tmp/a")
	a.Objects["libshared"] = shared
	a.Objects["libonly"] = onlyInA

	b := unikernel.New("b", "/tmp/b")
	b.Objects["libshared"] = shared

	loc := uint64(0x1000)
	computeLoc(".text", []*model.LibraryObject{shared, onlyInA}, []*unikernel.Unikernel{a, b}, &loc, discardLogger())

	assert.Contains(t, a.LinkerFragment(".text"), "libshared")
	assert.Contains(t, a.LinkerFragment(".text"), "libonly")
	assert.Contains(t, b.LinkerFragment(".text"), "libshared")
	assert.NotContains(t, b.LinkerFragment(".text"), "libonly", "b never links libonly so it must not advance its counter for it")

	assert.Equal(t, a.LocCounter, loc, "the shared counter adopts the largest per-unikernel result")
}

func TestRenderSpacerTemplate_SubstitutesMarkersAndFragments(t *testing.T) {
	lines := []string{
		".text : {",
		"  *(.text)",
		"  *(.text.*)",
		"}",
		"_etext = .;",
		".rodata : {",
		"  *(.rodata)",
		"  *(.rodata.*)",
		"}",
		"_ctors = .;",
		" .init_array : {",
		"_ectors = .;",
		" _data = .;",
		" __bss_start = .;",
		" .intrstack :",
	}

	sections := map[string]uint64{
		"_etext":      0x1000,
		"_ctors":      0x2000,
		".init_array": 0x3000,
		"_ectors":     0x4000,
		".data":       0x5000,
		".bss":        0x6000,
		".intrstack":  0x7000,
	}

	uk := unikernel.New("uk1", "/tmp/uk1")

	out := renderSpacerTemplate(lines, sections, "  .text.common 0x100 : { common.o(.text); }\n", "  .rodata.common 0x200 : { common.o(.rodata); }\n", uk)

	assert.Contains(t, out, ". = 0x1000;")
	assert.Contains(t, out, ". = 0x2000;")
	assert.Contains(t, out, ". = 0x3000;")
	assert.Contains(t, out, ". = 0x4000;")
	assert.Contains(t, out, ". = 0x5000;")
	assert.Contains(t, out, ". = 0x6000;")
	assert.Contains(t, out, ". = 0x7000;")
	assert.Contains(t, out, "common.o(.text)")
	assert.Contains(t, out, "common.o(.rodata)")
}

func TestPlanSpacer_EndToEnd(t *testing.T) {
	common := libWith("libcommon", map[string]uint64{".text": 0x100, ".rodata": 0x40}, 16)

	a := unikernel.New("a", "/tmp/a")
	a.Objects["libcommon"] = common
	a.TotalSize[".data"] = 0x10
	a.TotalSize[".bss"] = 0x20

	b := unikernel.New("b", "/tmp/b")
	b.Objects["libcommon"] = common
	b.TotalSize[".data"] = 0x30
	b.TotalSize[".bss"] = 0x10

	classes := index.Classes{CommonToAll: []*model.LibraryObject{common}}

	template := []string{
		".text : {",
		"  *(.text)",
		"  *(.text.*)",
		"}",
		"_etext = .;",
	}

	result, err := Plan([]*unikernel.Unikernel{a, b}, classes, Options{Mode: ModeSpacer, InitialLocCounter: 0x130000, AlignText: true},
		func(uk *unikernel.Unikernel) ([]string, error) { return template, nil }, discardLogger())

	require.NoError(t, err)
	require.Len(t, result.Scripts, 2)
	assert.Contains(t, result.Sections, "_etext")
	assert.Contains(t, result.Sections, ".intrstack")
	assert.Greater(t, result.Sections[".intrstack"], result.Sections["_etext"])
}
