// Package cmd wires the spacer cobra command tree: plan, rewrite, and
// tools.
package cmd

import (
	"os"

	"github.com/Manu343726/spacer/cmd/plan"
	"github.com/Manu343726/spacer/cmd/rewrite"
	"github.com/Manu343726/spacer/cmd/tools"
	"github.com/Manu343726/spacer/internal/config"
	"github.com/spf13/cobra"
)

var cfgFile string

// RootCmd is the base command invoked when spacer is run with no
// subcommand.
var RootCmd = &cobra.Command{
	Use:   "spacer",
	Short: "Unikernel layout planner and indirection-table binary rewriter",
	Long: `spacer aligns and relinks a set of unikernel images so instances that
share libraries can be co-located in memory, either by compacting their
common code and data together (spacer mode) or by giving every library
its own page-aligned section pair ready for load-time address space
layout randomization (ASLR mode).`,
}

// Execute adds every child command to RootCmd and runs it. Called once
// from main.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.spacer.yaml)")
	RootCmd.AddCommand(plan.PlanCmd, rewrite.RewriteCmd, tools.ToolsCmd)
	cobra.OnInitialize(func() { config.Init(cfgFile) })
}
