package rewrite

import (
	"debug/elf"
	"fmt"
	"os"

	"github.com/Manu343726/spacer/pkg/utils"
)

// ErrPatch wraps a failure writing rewritten section content back to disk.
var ErrPatch = fmt.Errorf("rewrite: failed to patch file in place")

// PatchFile writes every rewritten library's .text and .ind section
// content back into path at their existing file offsets. Neither section
// kind changes size during a rewrite (a redirected instruction is always
// replaced by exactly as many bytes as it occupied, and the indirection
// section never grows past what an earlier planning pass reserved for
// it), so patching in place never needs to move or resize anything else
// in the image.
func PatchFile(path string, f *elf.File, result *ImageResult) error {
	out, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return utils.MakeError(ErrPatch, "opening %s: %s", path, err)
	}
	defer out.Close()

	for _, lib := range result.Libraries {
		textSec := f.Section(lib.Name)
		if textSec == nil {
			return utils.MakeError(ErrPatch, "section %q vanished before patching", lib.Name)
		}
		if err := writeAt(out, textSec.Offset, lib.Text, textSec.Size); err != nil {
			return utils.MakeError(ErrPatch, "writing %s: %s", lib.Name, err)
		}

		indName := indirectionName(lib.Name)
		indSec := f.Section(indName)
		if indSec == nil {
			return utils.MakeError(ErrPatch, "section %q vanished before patching", indName)
		}
		if err := writeAt(out, indSec.Offset, lib.Indirection, indSec.Size); err != nil {
			return utils.MakeError(ErrPatch, "writing %s: %s", indName, err)
		}
	}

	return nil
}

func writeAt(f *os.File, offset uint64, data []byte, reservedSize uint64) error {
	if uint64(len(data)) > reservedSize {
		return fmt.Errorf("content of %d bytes exceeds reserved size of %d bytes", len(data), reservedSize)
	}

	buf := make([]byte, reservedSize)
	copy(buf, data)
	_, err := f.WriteAt(buf, int64(offset))
	return err
}
