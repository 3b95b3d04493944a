// Package plan implements `spacer plan`: discover a set of unikernels,
// classify their shared libraries, run the layout planner, write the
// resulting linker-script fragments, and optionally relink.
package plan

import (
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Manu343726/spacer/internal/config"
	"github.com/Manu343726/spacer/internal/index"
	"github.com/Manu343726/spacer/internal/logging"
	"github.com/Manu343726/spacer/internal/model"
	"github.com/Manu343726/spacer/internal/planner"
	"github.com/Manu343726/spacer/internal/relink"
	"github.com/Manu343726/spacer/internal/sizestore"
	"github.com/Manu343726/spacer/internal/unikernel"
	"github.com/Manu343726/spacer/pkg/utils"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ErrConfiguration is returned for any option combination the planner
// rejects before doing any filesystem work, and for a link64.lds template
// that cannot be read.
var ErrConfiguration = fmt.Errorf("plan: invalid configuration")

// PlanCmd is `spacer plan`.
var PlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan and relink a set of unikernels sharing common libraries",
	RunE:  runPlan,
}

func init() {
	flags := PlanCmd.Flags()
	flags.String(config.KeyWorkspace, "", "workspace directory containing apps/<unikernel>/build")
	flags.Uint64(config.KeyLoc, 0x130000, "initial location counter (spacer mode)")
	flags.Bool(config.KeyAlign, true, "page-align each common-to-all library's .text region")
	flags.Bool(config.KeyRel, true, "perform the relink after planning")
	flags.Bool(config.KeyVerbose, false, "print a classification and address-map summary")
	flags.StringSlice(config.KeyUnikernels, nil, "unikernel directory names to align together")
	flags.Bool(config.KeyCustomLoader, true, "defer individual libraries to a custom loader pass")
	flags.Bool(config.KeyCopyObjs, true, "accepted and bound to config; plan does not copy any object files")
	flags.Int(config.KeyASLR, 0, "0=spacer, 1=fixed indirection layout, 2=randomized indirection layout")
	flags.String("log-file", "", "also write structured JSON logs to this file")

	if err := config.BindFlags(flags, config.KeyWorkspace, config.KeyLoc, config.KeyAlign, config.KeyRel,
		config.KeyVerbose, config.KeyUnikernels, config.KeyCustomLoader, config.KeyCopyObjs, config.KeyASLR); err != nil {
		panic(err)
	}
}

func runPlan(cmd *cobra.Command, _ []string) error {
	workspace := viper.GetString(config.KeyWorkspace)
	if workspace == "" {
		return fmt.Errorf("%w: --workspace is required", ErrConfiguration)
	}

	aslrMode := viper.GetInt(config.KeyASLR)
	if aslrMode < 0 || aslrMode > 2 {
		return fmt.Errorf("%w: --aslr must be 0, 1 or 2", ErrConfiguration)
	}

	verbose := viper.GetBool(config.KeyVerbose)
	logger, closer, err := logging.New(logging.Options{Verbose: verbose, LogFile: viper.GetString("log-file")})
	if err != nil {
		return err
	}
	defer closer()

	names := viper.GetStringSlice(config.KeyUnikernels)
	global := index.New()
	uks, err := unikernel.Discover(workspace, names, global, logger)
	if err != nil {
		return err
	}

	classes := index.Classify(global, len(uks))

	store, err := sizestore.Load(filepath.Join(workspace, "ind_map.json"), logger)
	if err != nil {
		return err
	}

	mode := planner.ModeSpacer
	switch aslrMode {
	case 1:
		mode = planner.ModeIndirectionFixed
	case 2:
		mode = planner.ModeIndirectionASLR
	}

	opts := planner.Options{
		Mode:              mode,
		InitialLocCounter: viper.GetUint64(config.KeyLoc),
		AlignText:         viper.GetBool(config.KeyAlign),
		CustomLoader:      viper.GetBool(config.KeyCustomLoader),
		IndirectionSizes:  store.AsMap(),
	}
	if mode == planner.ModeIndirectionASLR {
		opts.Shuffle = func(items []string) {
			rand.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
		}
	}

	result, err := planner.Plan(uks, classes, opts, readTemplate, logger)
	if err != nil {
		return err
	}

	if verbose {
		printSummary(classes, result)
	}

	for _, script := range result.Scripts {
		outPath := outputPath(script.Unikernel, aslrMode)
		if err := writeLinkerScript(outPath, script.Content); err != nil {
			return err
		}

		if viper.GetBool(config.KeyRel) {
			req := relink.Request{
				BuildPath:          script.Unikernel.BuildPath,
				UnikraftPath:       filepath.Join(workspace, "unikraft"),
				UsesFilesystemCore: script.Unikernel.UsesFilesystemCore,
				PlatformTag:        script.Unikernel.PlatformTag,
				ASLR:               aslrMode > 0,
			}
			if err := relink.Relink(cmd.Context(), req, logger); err != nil {
				return err
			}
		}
	}

	return store.Save()
}

func platformLibDir(uk *unikernel.Unikernel) string {
	return filepath.Join(uk.BuildPath, "lib"+string(uk.PlatformTag)+"plat")
}

func readTemplate(uk *unikernel.Unikernel) ([]string, error) {
	path := filepath.Join(platformLibDir(uk), "link64.lds")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %s", ErrConfiguration, path, err)
	}
	return strings.Split(string(data), "\n"), nil
}

func outputPath(uk *unikernel.Unikernel, aslrMode int) string {
	suffix := ""
	if aslrMode > 0 {
		suffix = "_aslr"
	}
	return filepath.Join(platformLibDir(uk), "link64_out"+suffix+".lds")
}

// writeLinkerScript writes content via a temp-file-then-rename, so a
// crash mid-write never leaves a torn linker script behind.
func writeLinkerScript(path, content string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("plan: writing %s: %w", path, err)
	}
	return os.Rename(tmp, path)
}

func printSummary(classes index.Classes, result *planner.Result) {
	bold := color.New(color.FgCyan, color.Bold)

	bold.Println("Library classification:")
	printClass := func(title string, libs []*model.LibraryObject) {
		names := make([]string, len(libs))
		for i, lib := range libs {
			names[i] = lib.Name
		}
		fmt.Printf("  %-16s (%d): %s\n", title, len(libs), strings.Join(names, ", "))
	}
	printClass("common-to-all", classes.CommonToAll)
	printClass("common-subset", classes.CommonSubset)
	printClass("individual", classes.Individual)

	if len(result.Sections) < 2 {
		return
	}

	bold.Println("\nSection marker layout (pages from first marker):")
	fmt.Println(renderMarkerFrame(result.Sections))
}

// renderMarkerFrame draws the planned section markers as a contiguous
// bitfield-style diagram in page-granularity units, the same idiom
// pkg/utils.AsciiFrame otherwise uses for instruction-encoding diagrams.
// A malformed marker set (out of order, duplicated addresses collapsing
// to zero width) is not fatal to planning, so rendering failures are
// swallowed and reported as plain text instead.
func renderMarkerFrame(sections map[string]uint64) (out string) {
	type marker struct {
		name string
		addr uint64
	}

	markers := make([]marker, 0, len(sections))
	for name, addr := range sections {
		markers = append(markers, marker{name, addr})
	}
	sort.Slice(markers, func(i, j int) bool { return markers[i].addr < markers[j].addr })

	defer func() {
		if recover() != nil {
			var b strings.Builder
			for _, m := range markers {
				fmt.Fprintf(&b, "  %-16s %s\n", m.name, utils.FormatUintHex(m.addr, 8))
			}
			out = b.String()
		}
	}()

	base := markers[0].addr
	fields := make([]utils.AsciiFrameField, 0, len(markers))
	for i, m := range markers {
		width := 1
		if i+1 < len(markers) {
			if delta := int((markers[i+1].addr - m.addr) / model.PageSize); delta > 0 {
				width = delta
			}
		}
		fields = append(fields, utils.AsciiFrameField{
			Name:  m.name,
			Begin: int((m.addr - base) / model.PageSize),
			Width: width,
		})
	}

	return utils.AsciiFrame(fields, fields[len(fields)-1].PastTopUnit(), "pages", utils.AsciiFrameUnitLayout_LeftToRight, 2)
}
