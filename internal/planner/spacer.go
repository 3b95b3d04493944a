package planner

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Manu343726/spacer/internal/index"
	"github.com/Manu343726/spacer/internal/model"
	"github.com/Manu343726/spacer/internal/unikernel"
)

// processCommonToAll emits one linker-script fragment line per
// common-to-all library, advancing locCounter as it goes. .text regions
// compact back to back unless alignText pins each one to a page boundary;
// every other section type always compacts.
func processCommonToAll(sectionType string, libs []*model.LibraryObject, locCounter *uint64, alignText bool, logger *slog.Logger) string {
	var b strings.Builder
	isText := strings.Contains(sectionType, ".text")

	for _, lib := range libs {
		size := lib.Size(sectionType)
		if size == 0 {
			logger.Warn("skipping section with zero size", "library", lib.Name, "section", sectionType)
			continue
		}

		if !isText {
			*locCounter = model.AlignUp(*locCounter, lib.Sections[sectionType].AddrAlign)
		}

		fmt.Fprintf(&b, "  %s.%s 0x%x : { %s%s(%s); }\n",
			sectionType, lib.Name, *locCounter, lib.Name, model.ObjectExtension, sectionType)

		if isText && alignText {
			*locCounter = model.AlignUp(*locCounter+size, model.PageSize)
		} else {
			*locCounter += size
		}
	}

	return b.String()
}

// computeLoc runs every unikernel's independent UpdateLocCounter walk over
// subset, all starting from the same shared locCounter, then folds the
// per-unikernel results back into a single shared locCounter: the maximum
// reached by any unikernel, page-aligned for .text sections.
func computeLoc(sectionType string, subset []*model.LibraryObject, uks []*unikernel.Unikernel, locCounter *uint64, logger *slog.Logger) {
	if len(subset) == 0 {
		return
	}

	var max uint64
	for i, uk := range uks {
		uk.LocCounter = *locCounter
		uk.UpdateLocCounter(sectionType, subset, logger)
		if i == 0 || uk.LocCounter > max {
			max = uk.LocCounter
		}
	}

	if strings.Contains(sectionType, ".text") {
		*locCounter = model.AlignUp(max, model.PageSize)
	} else {
		*locCounter = max
	}
}

// planSpacer implements the spacer-mode layout: common-to-all libraries
// are packed first, then common-subset and individual libraries are walked
// independently per unikernel off a shared starting counter, then the
// fixed kernel sections (ctors/init_array/data/bss/intrstack) are pinned
// after them.
func planSpacer(uks []*unikernel.Unikernel, classes index.Classes, opts Options, readTemplate func(uk *unikernel.Unikernel) ([]string, error), logger *slog.Logger) (*Result, error) {
	locCounter := opts.InitialLocCounter
	sections := make(map[string]uint64)

	textFragment := processCommonToAll(".text", classes.CommonToAll, &locCounter, opts.AlignText, logger)

	computeLoc(".text", classes.CommonSubset, uks, &locCounter, logger)
	if !opts.CustomLoader {
		computeLoc(".text", classes.Individual, uks, &locCounter, logger)
	}

	sections["_etext"] = locCounter
	locCounter += model.PageSize

	rodataFragment := processCommonToAll(".rodata", classes.CommonToAll, &locCounter, opts.AlignText, logger)

	computeLoc(".rodata", classes.CommonSubset, uks, &locCounter, logger)
	if !opts.CustomLoader {
		computeLoc(".rodata", classes.Individual, uks, &locCounter, logger)
	}

	locCounter = model.AlignUp(locCounter, model.PageSize)

	for _, marker := range []string{"_ctors", ".init_array", "_ectors"} {
		sections[marker] = locCounter
		locCounter += model.PageSize
	}

	if opts.CustomLoader {
		computeLoc(".text", classes.Individual, uks, &locCounter, logger)
		computeLoc(".rodata", classes.Individual, uks, &locCounter, logger)
		locCounter = model.AlignUp(locCounter, model.PageSize)
	}

	for _, sectionType := range []string{".data", ".bss"} {
		sections[sectionType] = locCounter

		var maxSize uint64
		for i, uk := range uks {
			size := uk.TotalSize[sectionType]
			if i == 0 || size > maxSize {
				maxSize = size
			}
		}

		locCounter += model.AlignUp(maxSize, model.PageSize)
	}

	sections[".intrstack"] = locCounter

	result := &Result{Sections: sections}

	for _, uk := range uks {
		lines, err := readTemplate(uk)
		if err != nil {
			return nil, err
		}

		content := renderSpacerTemplate(lines, sections, textFragment, rodataFragment, uk)
		result.Scripts = append(result.Scripts, LinkerScript{Unikernel: uk, Content: content})
	}

	return result, nil
}
