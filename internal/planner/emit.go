package planner

import (
	"fmt"
	"strings"

	"github.com/Manu343726/spacer/internal/unikernel"
)

// markerLineSections maps the fixed linker-script lines the spacer
// template carries for its kernel sections to the Sections key the
// planner pinned an address to. The original locates the same four lines
// by extracting their lowercase letters with a regex and reassembling a
// key from them; since the line set is fixed and small, a literal table is
// equivalent and considerably more readable.
var markerLineSections = map[string]string{
	" .init_array : {": ".init_array",
	" _data = .;":       ".data",
	" __bss_start = .;": ".bss",
	" .intrstack :":     ".intrstack",
}

// renderSpacerTemplate rewrites a unikernel's link64.lds template, line by
// line, substituting the generated library placement fragments and pinning
// the fixed kernel sections to the addresses the layout pass computed.
func renderSpacerTemplate(lines []string, sections map[string]uint64, textFragment, rodataFragment string, uk *unikernel.Unikernel) string {
	var out strings.Builder
	inWildcardBlock := false

	for _, line := range lines {
		switch {
		case strings.Contains(line, "*(.text)") || strings.Contains(line, "*(.rodata)"):
			out.WriteString(" }\n")
			continue

		case strings.Contains(line, "_etext = .;"):
			out.WriteString(line)
			out.WriteString("\n")
			fmt.Fprintf(&out, " . = 0x%x;\n", sections["_etext"])
			continue

		case strings.Contains(line, "*(.text.*)"):
			out.WriteString(textFragment)
			out.WriteString(uk.LinkerFragment(".text"))
			inWildcardBlock = true
			continue

		case inWildcardBlock && strings.Contains(line, "}"):
			inWildcardBlock = false
			continue

		case strings.Contains(line, "_ctors = .;") || strings.Contains(line, "_ectors = .;"):
			key := strings.TrimSpace(strings.SplitN(line, "=", 2)[0])
			fmt.Fprintf(&out, " . = 0x%x;\n", sections[key])

		case strings.Contains(line, "*(.rodata.*)"):
			out.WriteString(rodataFragment)
			out.WriteString(uk.LinkerFragment(".rodata"))
			inWildcardBlock = true
			continue

		default:
			if key, ok := markerLineSections[line]; ok {
				fmt.Fprintf(&out, " . = 0x%x;\n", sections[key])
			}
		}

		out.WriteString(line)
		out.WriteString("\n")
	}

	return out.String()
}

// renderASLRTemplate rewrites a unikernel's link64.lds template for
// indirection mode: every library gets its own page-aligned .text.<lib>
// output section instead of one packed region. Read-only data goes into
// one shared .rodata.common block for the common-to-all libraries plus a
// page-aligned .rodata.<lib> section for every other library.
func renderASLRTemplate(lines []string, textFragment, rodataCommonFragment, rodataPerLibFragment string) string {
	var out strings.Builder
	inWildcardBlock := false

	for _, line := range lines {
		switch {
		case strings.Contains(line, "*(.text)") || strings.Contains(line, "*(.rodata)"):
			out.WriteString(" }\n")
			continue

		case strings.Contains(line, "*(.text.*)"):
			out.WriteString(textFragment)
			inWildcardBlock = true
			continue

		case inWildcardBlock && strings.Contains(line, "}"):
			inWildcardBlock = false
			continue

		case strings.Contains(line, "*(.rodata.*)"):
			out.WriteString(rodataCommonFragment)
			out.WriteString(rodataPerLibFragment)
			inWildcardBlock = true
			continue

		default:
		}

		out.WriteString(line)
		out.WriteString("\n")
	}

	return out.String()
}
