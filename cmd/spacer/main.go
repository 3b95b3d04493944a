// Command spacer is the CLI entrypoint: plan a unikernel layout, or
// patch an already-linked image's indirection tables.
package main

import "github.com/Manu343726/spacer/cmd"

func main() {
	cmd.Execute()
}
