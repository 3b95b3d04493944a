package rewrite

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/Manu343726/spacer/pkg/utils"
)

// ErrSymbols wraps a failure running the external symbol-table reader.
var ErrSymbols = fmt.Errorf("rewrite: failed to read symbol table")

// SymbolTable maps an address to every symbol name nm reports at it,
// used only to annotate verbose rewrite logging with the symbol a
// redirected call or jump targets.
type SymbolTable map[uint64][]string

// LoadSymbols runs nm against path and parses its "<addr> <type> <name>"
// output lines into a SymbolTable. Lines nm can't resolve to an address
// are silently skipped, matching the original's tolerant parser.
func LoadSymbols(ctx context.Context, path string) (SymbolTable, error) {
	cmd := exec.CommandContext(ctx, "nm", "--no-demangle", path)
	out, err := cmd.Output()
	if err != nil {
		return nil, utils.MakeError(ErrSymbols, "running nm on %s: %s", path, err)
	}

	table := make(SymbolTable)
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) != 3 {
			continue
		}
		addr, err := strconv.ParseUint(fields[0], 16, 64)
		if err != nil {
			continue
		}
		table[addr] = append(table[addr], fields[2])
	}

	return table, nil
}

// At returns the symbol names nm reported at addr, if any.
func (t SymbolTable) At(addr uint64) []string {
	return t[addr]
}
