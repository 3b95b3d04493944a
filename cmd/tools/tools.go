// Package tools holds miscellaneous spacer developer tooling, e.g.
// `spacer tools docs`.
package tools

import (
	"github.com/spf13/cobra"
)

// ToolsCmd groups spacer's miscellaneous developer tooling.
var ToolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "spacer miscellaneous tools",
}
