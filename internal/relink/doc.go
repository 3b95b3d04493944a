package relink

// DocString describes the relink command-line construction, for
// `spacer tools docs relink`.
func DocString() string {
	return `relink: invokes the external compiler driver (gcc by default) to
produce the final relinked image from a planner-generated linker script,
replicating the exact -nostdlib/-Wl,--omagic/-no-pie flag set the
original build pipeline used. Also conditionally rewrites libvfscore and
libuknetdev's libparam.lds fragments when a prior build already produced
one, pinning their parameter sections to the layout the rest of the
pipeline already accounted for.`
}
