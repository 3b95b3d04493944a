// Package rewrite implements `spacer rewrite`: disassemble a linked
// unikernel image's per-library .text sections and redirect any
// cross-library branch through its .ind indirection table.
package rewrite

import (
	"context"
	"debug/elf"
	"fmt"
	"log/slog"

	"github.com/Manu343726/spacer/internal/config"
	"github.com/Manu343726/spacer/internal/logging"
	rewriter "github.com/Manu343726/spacer/internal/rewrite"
	"github.com/Manu343726/spacer/internal/sizestore"
	"github.com/Manu343726/spacer/pkg/utils"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ErrConfiguration is returned for any option combination rejected
// before opening the image, and for an image that cannot be opened.
var ErrConfiguration = fmt.Errorf("rewrite: invalid configuration")

const (
	keyElf   = "elf"
	keyStore = "store"
)

// RewriteCmd is `spacer rewrite`.
var RewriteCmd = &cobra.Command{
	Use:   "rewrite",
	Short: "Patch a linked unikernel image's indirection tables in place",
	RunE:  runRewrite,
}

func init() {
	flags := RewriteCmd.Flags()
	flags.String(keyElf, "", "path to the linked unikernel ELF image")
	flags.String(keyStore, "", "path to the indirection size map (ind_map.json)")
	flags.Bool(config.KeyVerbose, false, "print each rewritten library's indirection size")
	flags.String("log-file", "", "also write structured JSON logs to this file")

	if err := config.BindFlags(flags, keyElf, keyStore, config.KeyVerbose); err != nil {
		panic(err)
	}

	_ = RewriteCmd.MarkFlagRequired(keyElf)
	_ = RewriteCmd.MarkFlagRequired(keyStore)
}

func runRewrite(cmd *cobra.Command, _ []string) error {
	path := viper.GetString(keyElf)
	storePath := viper.GetString(keyStore)
	if path == "" || storePath == "" {
		return fmt.Errorf("%w: --elf and --store are both required", ErrConfiguration)
	}

	verbose := viper.GetBool(config.KeyVerbose)
	logger, closer, err := logging.New(logging.Options{Verbose: verbose, LogFile: viper.GetString("log-file")})
	if err != nil {
		return err
	}
	defer closer()

	f, err := elf.Open(path)
	if err != nil {
		return fmt.Errorf("%w: opening %s: %s", ErrConfiguration, path, err)
	}
	defer f.Close()

	store, err := sizestore.Load(storePath, logger)
	if err != nil {
		return err
	}

	rw := rewriter.New(logger)
	if symbols, err := loadSymbols(cmd.Context(), path, logger); err == nil {
		rw = rw.WithSymbols(symbols)
	}

	result, err := rw.RewriteImage(f, store)
	if err != nil {
		return err
	}

	if verbose {
		printDisassembly(result)
	}

	if err := rewriter.PatchFile(path, f, result); err != nil {
		return err
	}

	return store.Save()
}

// loadSymbols shells out to nm for --verbose debug annotations only; a
// missing nm binary or a stripped image is not fatal to rewriting.
func loadSymbols(ctx context.Context, path string, logger *slog.Logger) (rewriter.SymbolTable, error) {
	symbols, err := rewriter.LoadSymbols(ctx, path)
	if err != nil {
		logger.Debug("continuing without a symbol table", "error", err)
		return nil, err
	}
	return symbols, nil
}

func printDisassembly(result *rewriter.ImageResult) {
	for _, lib := range result.Libraries {
		fmt.Printf("%s: %s bytes of indirection\n", lib.Name, utils.FormatUintHex(lib.IndirectionSize, 4))
		fmt.Println(utils.HighlightDisassembly(fmt.Sprintf("  .ind size %s", utils.FormatUintHex(lib.IndirectionSize, 4))))
	}
}
