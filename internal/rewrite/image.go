package rewrite

import (
	"debug/elf"
	"fmt"
	"strings"

	"github.com/Manu343726/spacer/internal/sizestore"
	"github.com/Manu343726/spacer/pkg/utils"
)

// ErrRewrite wraps any failure encountered while rewriting an image.
var ErrRewrite = fmt.Errorf("rewrite: failed to patch image")

// ImageResult is the full set of rewritten libraries produced from one
// already-linked unikernel ELF image.
type ImageResult struct {
	Libraries []*Library
}

// RewriteImage disassembles and patches every non-app ".text.<lib>"
// section of f against its paired ".ind.<lib>" section, recording the
// largest indirection size observed for each library into sizes so a
// later planning pass can reserve at least that much room next time.
func (r *Rewriter) RewriteImage(f *elf.File, sizes *sizestore.Store) (*ImageResult, error) {
	windows := make([]sectionWindow, 0, len(f.Sections))
	for _, sec := range f.Sections {
		windows = append(windows, sectionWindow{Name: sec.Name, Address: sec.Addr, Size: sec.Size})
	}

	result := &ImageResult{}

	for _, sec := range f.Sections {
		if !strings.HasPrefix(sec.Name, ".text.") {
			continue
		}
		if strings.Contains(sec.Name, "app") {
			r.logger.Info("ignoring application library section", "section", sec.Name)
			continue
		}

		indName := indirectionName(sec.Name)
		indSec := f.Section(indName)
		if indSec == nil {
			return nil, utils.MakeError(ErrRewrite, "missing indirection section %q for %q", indName, sec.Name)
		}

		content, err := sec.Data()
		if err != nil {
			return nil, utils.MakeError(ErrRewrite, "reading %q: %s", sec.Name, err)
		}

		own := sectionWindow{Name: sec.Name, Address: sec.Addr, Size: sec.Size}
		indWindow := sectionWindow{Name: indSec.Name, Address: indSec.Addr, Size: indSec.Size}

		lib, err := r.RewriteSection(sec.Name, own, indWindow, content, windows)
		if err != nil {
			return nil, err
		}

		if lib.IndirectionSize > 0 {
			if existing, ok := sizes.Get(sec.Name); !ok || lib.IndirectionSize > existing {
				sizes.Set(sec.Name, lib.IndirectionSize)
				r.logger.Info("updated indirection size", "section", sec.Name, "size", fmt.Sprintf("0x%x", lib.IndirectionSize))
			}
		}

		result.Libraries = append(result.Libraries, lib)
	}

	return result, nil
}

func indirectionName(textName string) string {
	return strings.Replace(textName, ".text", ".ind", 1)
}
