package planner

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Manu343726/spacer/internal/index"
	"github.com/Manu343726/spacer/internal/model"
	"github.com/Manu343726/spacer/internal/unikernel"
)

// planIndirection implements both indirection layout modes: every library
// gets its own page-aligned .text.<lib> output section paired with a
// .ind.<lib> indirection section reserved for the rewriter, sized from a
// previously recorded size store when available. ModeIndirectionASLR
// additionally shuffles each unikernel's library order before laying it
// out, excluding the application library, which always lands last.
func planIndirection(uks []*unikernel.Unikernel, classes index.Classes, opts Options, readTemplate func(uk *unikernel.Unikernel) ([]string, error), _ *slog.Logger) (*Result, error) {
	var rodataCommon strings.Builder
	rodataCommon.WriteString(".rodata.common : {\n")
	for _, lib := range classes.CommonToAll {
		fmt.Fprintf(&rodataCommon, "  %s%s(.rodata);\n", lib.Name, model.ObjectExtension)
	}
	rodataCommon.WriteString("}\n")

	subsetOrIndividual := make(map[string]bool, len(classes.CommonSubset)+len(classes.Individual))
	for _, lib := range classes.CommonSubset {
		subsetOrIndividual[lib.Name] = true
	}
	for _, lib := range classes.Individual {
		subsetOrIndividual[lib.Name] = true
	}

	result := &Result{Sections: map[string]uint64{}}

	for _, uk := range uks {
		var libFragments []string
		var rodataUk strings.Builder
		appLib := ""

		for _, name := range uk.ObjectOrder {
			sizeInd := indirectionSize(opts, name)

			if strings.HasPrefix(name, "app") {
				appLib = name
			} else {
				libFragments = append(libFragments, fmt.Sprintf(
					".text.%s : ALIGN(0x1000){ %s%s(.text); }\n.ind.%s : ALIGN(0x1000) { BYTE(1);. += 0x%x-1; }\n",
					name, name, model.ObjectExtension, name, sizeInd))
			}

			if subsetOrIndividual[name] {
				fmt.Fprintf(&rodataUk, ".rodata.%s : ALIGN(0x1000) { %s%s(.rodata); }\n", name, name, model.ObjectExtension)
			}
		}

		if opts.Mode == ModeIndirectionASLR && opts.Shuffle != nil {
			opts.Shuffle(libFragments)
		}

		if appLib != "" {
			libFragments = append(libFragments, fmt.Sprintf(".text.%s : ALIGN(0x1000){ %s%s(.text); }\n", appLib, appLib, model.ObjectExtension))
		}

		lines, err := readTemplate(uk)
		if err != nil {
			return nil, err
		}

		content := renderASLRTemplate(lines, strings.Join(libFragments, ""), rodataCommon.String(), rodataUk.String())
		result.Scripts = append(result.Scripts, LinkerScript{Unikernel: uk, Content: content})
	}

	return result, nil
}
