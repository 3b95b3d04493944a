package unikernel

// DocString describes how a unikernel build folder is discovered and
// aggregated, for `spacer tools docs unikernel`.
func DocString() string {
	return `unikernel: walks one unikernel's build folder, probing every
relocatable object with internal/probe and folding it into both a
per-unikernel view (Objects, ObjectOrder, TotalSize) and a caller-supplied
global library index. UpdateLocCounter advances this unikernel's own
location counter independently through whichever subset of libraries it
actually links, skipping absent ones without advancing past them.`
}
