package planner

// DocString describes the two layout modes this package implements, for
// `spacer tools docs planner`.
func DocString() string {
	return `planner: runs the deterministic location-counter algorithm that
assigns addresses to every library across a set of unikernels.

Spacer mode (ModeSpacer) packs common-to-all libraries first, then walks
common-subset and individual libraries independently per unikernel off a
shared starting counter, compacting everything into one contiguous range.

Indirection mode (ModeIndirectionFixed / ModeIndirectionASLR) instead
gives every library its own page-aligned .text.<lib>/.ind.<lib> pair,
sized from a previously recorded IndirectionSizeStore entry; the ASLR
variant additionally shuffles each unikernel's library order, excluding
the application library which always lands last.`
}
