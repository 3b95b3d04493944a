// Package relink drives the external compiler toolchain that performs the
// actual link once a layout has been written to a linker-script fragment,
// the Go analogue of the original aligner's UkManager.relink.
package relink

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/Manu343726/spacer/internal/model"
	"github.com/Manu343726/spacer/pkg/utils"
)

// ldsVFSCore and ldsNetDev are the fixed libparam.lds bodies the original
// writes out ahead of a relink whenever a unikernel links libvfscore or
// libuknetdev with parameter support, pinning their parameter section to a
// location the rest of the layout already accounted for.
const (
	ldsVFSCore = "SECTIONS\n{\n __start_vfs__param_arg = LOADADDR(\n vfs__param_arg);\n vfs__param_arg : {\n  KEEP (*(vfs__param_arg))\n }\n __stop_vfs__param_arg = LOADADDR(\n vfs__param_arg) +\n SIZEOF(\n vfs__param_arg);\n}\nINSERT AFTER .uk_thread_inittab;\n"
	ldsNetDev  = "SECTIONS\n{\n__start_netdev__param_arg = LOADADDR(\n netdev__param_arg);\n netdev__param_arg : {\n  KEEP (*(netdev__param_arg))\n }\n __stop_netdev__param_arg = LOADADDR(\n netdev__param_arg) +\n SIZEOF(\n netdev__param_arg);\n}INSERT AFTER .uk_thread_inittab;\n"
)

// ErrRelink wraps a non-zero exit from the relink compiler driver.
var ErrRelink = fmt.Errorf("relink: compiler driver failed")

// Request describes one unikernel relink.
type Request struct {
	// BuildPath is the unikernel's build/ directory.
	BuildPath string
	// UnikraftPath is the root of the unikraft source tree, needed for
	// the shared uksched/vfscore linker fragments.
	UnikraftPath string
	// UsesFilesystemCore selects the vfscore extra linker fragment.
	UsesFilesystemCore bool
	// PlatformTag selects which libplat the kernel was built against.
	PlatformTag model.PlatformTag
	// ASLR selects the _aslr-suffixed linker script and output image
	// variants written by the ASLR-mode planner.
	ASLR bool
	// Compiler overrides the driver binary; defaults to "gcc".
	Compiler string
}

// Relink invokes the compiler driver to produce the final relinked image
// for req, writing any libparam.lds fragments the layout requires first.
func Relink(ctx context.Context, req Request, logger *slog.Logger) error {
	compiler := req.Compiler
	if compiler == "" {
		compiler = "gcc"
	}

	aslrSuffix := ""
	if req.ASLR {
		aslrSuffix = "_aslr"
	}

	var linkerAdd []string
	if req.UsesFilesystemCore {
		linkerAdd = append(linkerAdd, "-Wl,-T,"+filepath.Join(req.UnikraftPath, "lib", "vfscore", "extra_out64"+aslrSuffix+".ld"))
	}

	vfscoreParam := filepath.Join(req.BuildPath, "libvfscore", "libparam.lds")
	if _, err := os.Stat(vfscoreParam); err == nil {
		linkerAdd = append(linkerAdd, "-Wl,-T,"+vfscoreParam)
		if err := overwriteFile(vfscoreParam, ldsVFSCore); err != nil {
			return err
		}
	}

	netdevParam := filepath.Join(req.BuildPath, "libuknetdev", "libparam.lds")
	if _, err := os.Stat(netdevParam); err == nil {
		linkerAdd = append(linkerAdd, "-Wl,-T,"+netdevParam)
		if err := overwriteFile(netdevParam, ldsNetDev); err != nil {
			return err
		}
	}

	platLib := "lib" + string(req.PlatformTag) + "plat"
	args := []string{
		"-nostdlib",
		"-Wl,--omagic",
		"-Wl,--build-id=none",
		"-nostdinc",
		"-no-pie",
		"-Wl,-m,elf_x86_64",
		"-Wl,-m,elf_x86_64",
		"-Wl,-dT," + filepath.Join(req.BuildPath, platLib, "link64_out"+aslrSuffix+".lds"),
		"-Wl,-T," + filepath.Join(req.UnikraftPath, "lib", "uksched", "extra"+aslrSuffix+".ld"),
	}
	args = append(args, linkerAdd...)
	args = append(args, "-o", fmt.Sprintf("unikernel_%s-x86_64_local_align%s.dbg", req.PlatformTag, aslrSuffix))

	cmd := exec.CommandContext(ctx, compiler, args...)
	cmd.Dir = req.BuildPath
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	logger.Info("relinking", "dir", req.BuildPath, "command", compiler, "args", args)

	if err := cmd.Run(); err != nil {
		return utils.MakeError(ErrRelink, "%s: %s", req.BuildPath, err)
	}

	return nil
}

// overwriteFile atomically replaces an existing file's contents via a
// temp-file-plus-rename, so a crash mid-write never leaves a torn
// libparam.lds behind.
func overwriteFile(path, body string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(body), 0o644); err != nil {
		return utils.MakeError(ErrRelink, "writing %s: %s", path, err)
	}

	return os.Rename(tmp, path)
}
