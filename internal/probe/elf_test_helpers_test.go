package probe

import (
	"bytes"
	"encoding/binary"
)

// buildELF assembles a minimal well-formed ELF64 relocatable object with
// one PROGBITS section per entry in sizes (or a NOBITS section for ".bss"),
// enough for debug/elf.Open to parse section geometry back out of it. It
// exists purely to give probe_test.go something real to read, since the
// standard library has no ELF writer.
func buildELF(elfType uint16, sizes map[string]uint64) []byte {
	type section struct {
		name  string
		typ   uint32
		size  uint64
		align uint64
	}

	sections := []section{{name: "", typ: 0, size: 0, align: 0}} // SHT_NULL
	for _, name := range []string{".text", ".rodata", ".data", ".bss"} {
		size, ok := sizes[name]
		if !ok {
			continue
		}
		typ := uint32(1) // SHT_PROGBITS
		if name == ".bss" {
			typ = 8 // SHT_NOBITS
		}
		sections = append(sections, section{name: name, typ: typ, size: size, align: 8})
	}
	sections = append(sections, section{name: ".shstrtab", typ: 3, size: 0, align: 1}) // SHT_STRTAB

	var strtab bytes.Buffer
	strtab.WriteByte(0)
	nameOffsets := make([]uint32, len(sections))
	for i, s := range sections {
		nameOffsets[i] = uint32(strtab.Len())
		strtab.WriteString(s.name)
		strtab.WriteByte(0)
	}
	shstrndx := len(sections) - 1
	sections[shstrndx].size = uint64(strtab.Len())

	const ehsize = 64
	const shentsize = 64

	var body bytes.Buffer
	offsets := make([]uint64, len(sections))
	for i, s := range sections {
		if s.typ == 8 { // SHT_NOBITS carries no file content
			offsets[i] = uint64(ehsize) + uint64(body.Len())
			continue
		}
		offsets[i] = uint64(ehsize) + uint64(body.Len())
		if s.name == ".shstrtab" {
			body.Write(strtab.Bytes())
		} else {
			body.Write(make([]byte, s.size))
		}
	}

	shoff := uint64(ehsize) + uint64(body.Len())

	var out bytes.Buffer
	ident := [16]byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0}
	out.Write(ident[:])
	binary.Write(&out, binary.LittleEndian, elfType)         // e_type
	binary.Write(&out, binary.LittleEndian, uint16(62))       // e_machine: EM_X86_64
	binary.Write(&out, binary.LittleEndian, uint32(1))        // e_version
	binary.Write(&out, binary.LittleEndian, uint64(0))        // e_entry
	binary.Write(&out, binary.LittleEndian, uint64(0))        // e_phoff
	binary.Write(&out, binary.LittleEndian, shoff)            // e_shoff
	binary.Write(&out, binary.LittleEndian, uint32(0))        // e_flags
	binary.Write(&out, binary.LittleEndian, uint16(ehsize))   // e_ehsize
	binary.Write(&out, binary.LittleEndian, uint16(0))        // e_phentsize
	binary.Write(&out, binary.LittleEndian, uint16(0))        // e_phnum
	binary.Write(&out, binary.LittleEndian, uint16(shentsize)) // e_shentsize
	binary.Write(&out, binary.LittleEndian, uint16(len(sections)))
	binary.Write(&out, binary.LittleEndian, uint16(shstrndx))

	out.Write(body.Bytes())

	for i, s := range sections {
		binary.Write(&out, binary.LittleEndian, nameOffsets[i]) // sh_name
		binary.Write(&out, binary.LittleEndian, s.typ)          // sh_type
		binary.Write(&out, binary.LittleEndian, uint64(0))      // sh_flags
		binary.Write(&out, binary.LittleEndian, uint64(0))      // sh_addr
		binary.Write(&out, binary.LittleEndian, offsets[i])     // sh_offset
		binary.Write(&out, binary.LittleEndian, s.size)         // sh_size
		binary.Write(&out, binary.LittleEndian, uint32(0))      // sh_link
		binary.Write(&out, binary.LittleEndian, uint32(0))      // sh_info
		binary.Write(&out, binary.LittleEndian, s.align)        // sh_addralign
		binary.Write(&out, binary.LittleEndian, uint64(0))      // sh_entsize
	}

	return out.Bytes()
}
