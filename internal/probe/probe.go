// Package probe reads ELF relocatable objects off disk and extracts the
// section geometry the planner and indexer need, the Go analogue of the
// original aligner's pyelftools-based UkLib.process_file.
package probe

import (
	"debug/elf"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/Manu343726/spacer/internal/model"
	"github.com/Manu343726/spacer/pkg/utils"
)

// ErrOpenObject wraps failures opening or parsing an ELF object file.
var ErrOpenObject = fmt.Errorf("probe: failed to open object file")

// Object reads a single relocatable object (or the unikernel's linked
// executable) off disk and extracts the geometry of every section in
// model.SectionNames. A section absent from the ELF gets a zero-valued
// placeholder descriptor and is reported back as a warning rather than an
// error, mirroring the original's tolerant "does not contain" log line.
func Object(path string, logger *slog.Logger) (*model.LibraryObject, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, utils.MakeError(ErrOpenObject, "%s: %s", path, err)
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), model.ObjectExtension)
	lib := model.NewLibraryObject(name, f.Type)

	for _, sectionName := range model.SectionNames {
		section := f.Section(sectionName)
		if section == nil {
			logger.Warn("object does not contain section", "object", name, "section", sectionName)
			lib.Sections[sectionName] = model.SectionDescriptor{Name: sectionName}
			continue
		}

		lib.Sections[sectionName] = model.SectionDescriptor{
			Name:      sectionName,
			Size:      section.Size,
			Address:   section.Addr,
			Offset:    section.Offset,
			AddrAlign: section.Addralign,
		}
	}

	return lib, nil
}
