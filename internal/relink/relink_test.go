package relink

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/Manu343726/spacer/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeCompiler is a tiny shell script standing in for gcc, recording the
// arguments it was invoked with so the test can assert on the command
// line Relink built without needing a real toolchain installed.
func fakeCompiler(t *testing.T, recordPath string) string {
	t.Helper()
	dir := t.TempDir()
	script := filepath.Join(dir, "fake-gcc")
	contents := "#!/bin/sh\necho \"$@\" > \"" + recordPath + "\"\nexit 0\n"
	require.NoError(t, os.WriteFile(script, []byte(contents), 0o755))
	return script
}

func TestRelink_BuildsExpectedCommandLine(t *testing.T) {
	buildPath := t.TempDir()
	record := filepath.Join(t.TempDir(), "args.txt")
	compiler := fakeCompiler(t, record)

	req := Request{
		BuildPath:    buildPath,
		UnikraftPath: "/unikraft",
		PlatformTag:  model.PlatformKVMQ,
		Compiler:     compiler,
	}

	err := Relink(context.Background(), req, discardLogger())
	require.NoError(t, err)

	out, err := os.ReadFile(record)
	require.NoError(t, err)

	args := string(out)
	assert.Contains(t, args, "-nostdlib")
	assert.Contains(t, args, "-no-pie")
	assert.Contains(t, args, "link64_out.lds")
	assert.Contains(t, args, "unikernel_kvmq-x86_64_local_align.dbg")
	assert.NotContains(t, args, "_aslr")
}

func TestRelink_ASLRSuffixesOutputsAndScripts(t *testing.T) {
	buildPath := t.TempDir()
	record := filepath.Join(t.TempDir(), "args.txt")
	compiler := fakeCompiler(t, record)

	req := Request{
		BuildPath:    buildPath,
		UnikraftPath: "/unikraft",
		PlatformTag:  model.PlatformKVMFC,
		ASLR:         true,
		Compiler:     compiler,
	}

	require.NoError(t, Relink(context.Background(), req, discardLogger()))

	out, err := os.ReadFile(record)
	require.NoError(t, err)
	args := string(out)
	assert.Contains(t, args, "link64_out_aslr.lds")
	assert.Contains(t, args, "unikernel_kvmfc-x86_64_local_align_aslr.dbg")
}

func TestRelink_OverwritesExistingLibparamLDS(t *testing.T) {
	buildPath := t.TempDir()
	vfscoreDir := filepath.Join(buildPath, "libvfscore")
	require.NoError(t, os.MkdirAll(vfscoreDir, 0o755))
	ldsPath := filepath.Join(vfscoreDir, "libparam.lds")
	require.NoError(t, os.WriteFile(ldsPath, []byte("stale"), 0o644))

	record := filepath.Join(t.TempDir(), "args.txt")
	compiler := fakeCompiler(t, record)

	req := Request{BuildPath: buildPath, UnikraftPath: "/unikraft", PlatformTag: model.PlatformKVMQ, Compiler: compiler}
	require.NoError(t, Relink(context.Background(), req, discardLogger()))

	content, err := os.ReadFile(ldsPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "vfs__param_arg")

	out, err := os.ReadFile(record)
	require.NoError(t, err)
	assert.Contains(t, string(out), ldsPath)
}

func TestRelink_FailureWrapsCompilerError(t *testing.T) {
	buildPath := t.TempDir()
	req := Request{BuildPath: buildPath, UnikraftPath: "/unikraft", PlatformTag: model.PlatformKVMQ, Compiler: "/nonexistent-compiler-binary"}

	err := Relink(context.Background(), req, discardLogger())
	assert.Error(t, err)
	assert.ErrorIs(t, err, ErrRelink)
}
