package sizestore

import (
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

func TestLoad_MissingFileIsEmptyNotError(t *testing.T) {
	store, err := Load(filepath.Join(t.TempDir(), "missing.json"), discardLogger())
	require.NoError(t, err)

	_, ok := store.Get(".text.libfoo")
	assert.False(t, ok)
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sizes.json")

	store, err := Load(path, discardLogger())
	require.NoError(t, err)
	store.Set(".text.libfoo", 0x1a40)
	store.Set(".text.libbar", 0x1000)
	require.NoError(t, store.Save())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "0x1a40")

	reloaded, err := Load(path, discardLogger())
	require.NoError(t, err)
	size, ok := reloaded.Get(".text.libfoo")
	require.True(t, ok)
	assert.EqualValues(t, 0x1a40, size)
}

func TestLoad_RejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	_, err := Load(path, discardLogger())
	assert.Error(t, err)
}
