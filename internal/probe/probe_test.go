package probe

import (
	"debug/elf"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeELF(t *testing.T, dir, name string, elfType uint16, sizes map[string]uint64) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buildELF(elfType, sizes), 0o644))
	return path
}

func TestObject_AllSectionsPresent(t *testing.T) {
	dir := t.TempDir()
	path := writeELF(t, dir, "libfoo.o", uint16(elf.ET_REL), map[string]uint64{
		".text":   0x100,
		".rodata": 0x40,
		".data":   0x10,
		".bss":    0x20,
	})

	lib, err := Object(path, discardLogger())
	require.NoError(t, err)

	assert.Equal(t, "libfoo", lib.Name)
	assert.Equal(t, elf.ET_REL, lib.Type)
	assert.False(t, lib.IsExecutable())
	assert.EqualValues(t, 0x100, lib.Size(".text"))
	assert.EqualValues(t, 0x40, lib.Size(".rodata"))
	assert.EqualValues(t, 0x10, lib.Size(".data"))
	assert.EqualValues(t, 0x20, lib.Size(".bss"))
}

func TestObject_MissingSectionBecomesZeroPlaceholder(t *testing.T) {
	dir := t.TempDir()
	path := writeELF(t, dir, "libbar.o", uint16(elf.ET_REL), map[string]uint64{
		".text": 0x80,
	})

	lib, err := Object(path, discardLogger())
	require.NoError(t, err)

	assert.EqualValues(t, 0x80, lib.Size(".text"))
	assert.EqualValues(t, 0, lib.Size(".rodata"))
	assert.EqualValues(t, 0, lib.Size(".data"))
	assert.EqualValues(t, 0, lib.Size(".bss"))
}

func TestObject_ExecutableType(t *testing.T) {
	dir := t.TempDir()
	path := writeELF(t, dir, "unikernel.o", uint16(elf.ET_EXEC), map[string]uint64{
		".text": 0x1000,
	})

	lib, err := Object(path, discardLogger())
	require.NoError(t, err)

	assert.True(t, lib.IsExecutable())
}

func TestObject_MissingFile(t *testing.T) {
	_, err := Object(filepath.Join(t.TempDir(), "does-not-exist.o"), discardLogger())
	assert.Error(t, err)
}
