// Package unikernel discovers the object files that make up a single
// unikernel build folder and aggregates their section sizes, the Go
// analogue of the original aligner's Unikernel/UkLib classes.
package unikernel

import (
	"debug/elf"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Manu343726/spacer/internal/model"
	"github.com/Manu343726/spacer/internal/probe"
	"github.com/Manu343726/spacer/pkg/utils"
)

// ErrNoUnikernels is returned when a workspace's --unikernels selection resolves
// to fewer than two unikernels: layout planning is meaningless without at
// least one pair to compare libraries across.
var ErrNoUnikernels = fmt.Errorf("unikernel: at least two unikernels are required")

// Unikernel is one build folder's worth of linked library objects, plus the
// running location counter the planner advances as it assigns addresses.
type Unikernel struct {
	Name              string
	BuildPath         string
	Elf               *model.LibraryObject
	LocCounter        uint64
	UsesFilesystemCore bool
	UsesParamCore     bool
	PlatformTag       model.PlatformTag
	// Objects is the set of library names this unikernel actually links,
	// used to decide whether a globally-classified library applies here.
	Objects map[string]*model.LibraryObject
	// ObjectOrder preserves the order objects were discovered in, since
	// ASLR-mode layout before shuffling must start from a deterministic
	// per-unikernel library order.
	ObjectOrder []string
	// TotalSize sums this unikernel's own (non-merged) section sizes,
	// matching the original's per-unikernel total_size bookkeeping.
	TotalSize map[string]uint64
	// sbLink accumulates, per section type, the linker-script fragment
	// produced while walking the common-subset and individual libraries
	// that actually occur in this unikernel.
	sbLink map[string]*strings.Builder
}

// New creates an empty unikernel record rooted at buildPath.
func New(name, buildPath string) *Unikernel {
	return &Unikernel{
		Name:        name,
		BuildPath:   buildPath,
		PlatformTag: model.PlatformKVMQ,
		Objects:     make(map[string]*model.LibraryObject),
		TotalSize:   make(map[string]uint64),
		sbLink:      make(map[string]*strings.Builder),
	}
}

// LinkerFragment returns the accumulated .<type>.<lib> fragment this
// unikernel has built so far for sectionType, via UpdateLocCounter.
func (uk *Unikernel) LinkerFragment(sectionType string) string {
	if b, ok := uk.sbLink[sectionType]; ok {
		return b.String()
	}
	return ""
}

// UpdateLocCounter walks subset (a global library classification: common
// subset or individual) and, for every library this unikernel actually
// links, assigns it the next address off uk.LocCounter and appends a
// linker-script fragment placing it there. Libraries absent from this
// particular unikernel are skipped without advancing the counter - the
// counter walk is otherwise shared starting point across every unikernel,
// but each one's actual advance depends only on what it contains.
func (uk *Unikernel) UpdateLocCounter(sectionType string, subset []*model.LibraryObject, logger *slog.Logger) {
	builder, ok := uk.sbLink[sectionType]
	if !ok {
		builder = &strings.Builder{}
		uk.sbLink[sectionType] = builder
	}

	isText := strings.Contains(sectionType, ".text")

	for _, lib := range subset {
		size := lib.Size(sectionType)
		if size == 0 {
			logger.Warn("skipping section with zero size", "library", lib.Name, "section", sectionType, "unikernel", uk.Name)
			continue
		}

		if _, present := uk.Objects[lib.Name]; !present {
			continue
		}

		if !isText {
			uk.LocCounter = model.AlignUp(uk.LocCounter, lib.Sections[sectionType].AddrAlign)
		}

		fmt.Fprintf(builder, "  %s.%s 0x%x : { %s%s(%s); }\n",
			sectionType, lib.Name, uk.LocCounter, lib.Name, model.ObjectExtension, sectionType)

		if isText {
			uk.LocCounter += model.AlignUp(size, model.PageSize)
		} else {
			uk.LocCounter += size
		}
	}
}

// largestCopies tracks, across every unikernel probed so far, the path and
// size of the largest object file seen for a given library name. The
// original aligner keeps this so a later "copy all objects" pass can copy
// the most complete copy of a shared library rather than an arbitrary one.
type largestCopies struct {
	paths map[string]string
	sizes map[string]int64
}

func newLargestCopies() *largestCopies {
	return &largestCopies{paths: make(map[string]string), sizes: make(map[string]int64)}
}

func (l *largestCopies) observe(libname, path string, size int64) {
	if current, ok := l.sizes[libname]; !ok || size > current {
		l.paths[libname] = path
		l.sizes[libname] = size
	}
}

// Discover walks a workspace's build output for the named unikernels,
// probing every relocatable object in each one's build folder and folding
// it into global, the caller's shared library index. It returns the
// discovered unikernels in the order names was given.
//
// A candidate file is considered when its name contains the object
// extension and does not contain "x86_64" (the per-arch staging copies
// unikraft leaves alongside the real objects) and does not end in ".ld.o"
// (pre-linked fragments, not standalone libraries).
func Discover(workspace string, names []string, global GlobalMerger, logger *slog.Logger) ([]*Unikernel, error) {
	if len(names) < 2 {
		return nil, ErrNoUnikernels
	}

	copies := newLargestCopies()
	unikernels := make([]*Unikernel, 0, len(names))

	for _, name := range names {
		buildPath := filepath.Join(workspace, "apps", name, "build")
		uk := New(name, buildPath)

		entries, err := os.ReadDir(buildPath)
		if err != nil {
			return nil, utils.MakeError(ErrDiscover, "%s: %s", buildPath, err)
		}

		filenames := make([]string, 0, len(entries))
		for _, entry := range entries {
			filenames = append(filenames, entry.Name())
		}
		sort.Strings(filenames)

		for _, filename := range filenames {
			if !isCandidateObject(filename) {
				continue
			}

			path := filepath.Join(buildPath, filename)
			info, err := os.Stat(path)
			if err != nil {
				return nil, utils.MakeError(ErrDiscover, "%s: %s", path, err)
			}
			copies.observe(strings.TrimSuffix(filename, model.ObjectExtension), path, info.Size())

			lib, err := probe.Object(path, logger)
			if err != nil {
				return nil, err
			}

			classifyFlags(uk, filename)
			uk.absorb(lib)
			global.Merge(lib)
		}

		unikernels = append(unikernels, uk)
	}

	return unikernels, nil
}

// ErrDiscover wraps filesystem failures while walking a unikernel build
// folder.
var ErrDiscover = fmt.Errorf("unikernel: failed to discover build folder")

// GlobalMerger is the subset of index.GlobalLibraryIndex that Discover
// needs, kept narrow so this package does not import the index package
// back.
type GlobalMerger interface {
	Merge(lib *model.LibraryObject)
}

func isCandidateObject(filename string) bool {
	if strings.Contains(filename, "x86_64") {
		return false
	}
	if !strings.Contains(filename, model.ObjectExtension) {
		return false
	}
	if strings.Contains(filename, ".ld.o") {
		return false
	}
	return true
}

func classifyFlags(uk *Unikernel, filename string) {
	switch {
	case strings.Contains(filename, "vfscore"):
		uk.UsesFilesystemCore = true
	case strings.Contains(filename, "libkvmfcplat"):
		uk.PlatformTag = model.PlatformKVMFC
	case strings.Contains(filename, "libuklibparam"):
		uk.UsesParamCore = true
	}
}

// absorb records lib against this unikernel: the linked executable is
// tracked separately from the libraries contributing to it.
func (uk *Unikernel) absorb(lib *model.LibraryObject) {
	if lib.Type == elf.ET_EXEC {
		uk.Elf = lib
		return
	}

	for name, section := range lib.Sections {
		uk.TotalSize[name] += section.Size
	}
	if _, present := uk.Objects[lib.Name]; !present {
		uk.ObjectOrder = append(uk.ObjectOrder, lib.Name)
	}
	uk.Objects[lib.Name] = lib
}
