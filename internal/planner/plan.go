// Package planner runs the deterministic location-counter algorithm that
// assigns shared virtual addresses to every library across a set of
// unikernels, in either spacer mode (one compact shared image per
// unikernel) or ASLR mode (page-aligned per-library sections ready for
// indirection-table rewriting).
package planner

import (
	"fmt"
	"log/slog"

	"github.com/Manu343726/spacer/internal/index"
	"github.com/Manu343726/spacer/internal/model"
	"github.com/Manu343726/spacer/internal/unikernel"
)

// Mode selects which linker-script strategy the planner emits.
type Mode int

const (
	// ModeSpacer packs common, subset and individual libraries into one
	// contiguous shared address range per unikernel.
	ModeSpacer Mode = iota
	// ModeIndirectionFixed page-aligns every library into its own
	// .text.<lib>/.ind.<lib> pair with a fixed (non-randomized) layout.
	ModeIndirectionFixed
	// ModeIndirectionASLR is ModeIndirectionFixed with the per-unikernel
	// library order (excluding the app library) shuffled.
	ModeIndirectionASLR
)

// Options configures a planning run.
type Options struct {
	Mode Mode
	// InitialLocCounter is the starting shared virtual address (spacer
	// mode only).
	InitialLocCounter uint64
	// AlignText, when true, page-aligns each common-to-all library's
	// .text region instead of compacting them back to back.
	AlignText bool
	// CustomLoader, when true, defers individual libraries' placement
	// until after the fixed section layout, for a loader that relocates
	// them independently.
	CustomLoader bool
	// IndirectionSizes maps ".text.<lib>" to a previously recorded
	// reserved indirection-section size (ASLR modes only); libraries
	// absent from the map default to one page.
	IndirectionSizes map[string]uint64
	// Shuffle reorders, in place, one unikernel's rendered per-library
	// .text/.ind fragments (the app library's excluded). Only
	// ModeIndirectionASLR calls it; nil leaves the order unchanged.
	Shuffle func(names []string)
}

// LinkerScript is one unikernel's rendered linker script, the rewritten
// form of that unikernel's link64.lds template.
type LinkerScript struct {
	Unikernel *unikernel.Unikernel
	Content   string
}

// Result is the outcome of a full planning run across every unikernel.
type Result struct {
	Scripts []LinkerScript
	// Sections records the address each marker line in the spacer
	// template was pinned to, for diagnostics and --verbose rendering.
	Sections map[string]uint64
}

// ErrInvalidMode is returned when Options.Mode is not one of the declared
// constants.
var ErrInvalidMode = fmt.Errorf("planner: invalid mode")

// Plan runs the layout algorithm for opts.Mode over uks and classes,
// reading each unikernel's link64.lds template via readTemplate and
// returning the rendered per-unikernel fragments.
func Plan(uks []*unikernel.Unikernel, classes index.Classes, opts Options, readTemplate func(uk *unikernel.Unikernel) ([]string, error), logger *slog.Logger) (*Result, error) {
	switch opts.Mode {
	case ModeSpacer:
		return planSpacer(uks, classes, opts, readTemplate, logger)
	case ModeIndirectionFixed, ModeIndirectionASLR:
		return planIndirection(uks, classes, opts, readTemplate, logger)
	default:
		return nil, ErrInvalidMode
	}
}

// locKey builds the ".text.<lib>" / ".rodata.<lib>" map keys the ASLR
// indirection-size store uses.
func locKey(sectionType, libName string) string {
	return sectionType + "." + libName
}

func indirectionSize(opts Options, libName string) uint64 {
	if opts.IndirectionSizes != nil {
		if size, ok := opts.IndirectionSizes[locKey(".text", libName)]; ok {
			return size
		}
	}
	return model.PageSize
}
