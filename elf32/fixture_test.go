package elf32

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

// fixtureSection describes one section to bake into a synthetic ELF32
// image, built byte-by-byte rather than through an assembler or real
// toolchain output.
type fixtureSection struct {
	name  string
	typ   elf.SectionType
	flags elf.SectionFlag
	data  []byte // ignored for SHT_NOBITS
	size  uint32 // used for SHT_NOBITS; otherwise derived from len(data)
	link  uint32
	info  uint32
}

type fixtureSymbol struct {
	name  string
	shndx elf.SectionIndex
	value uint32
	size  uint32
	info  uint8
}

type fixtureRela struct {
	offset uint32
	typ    uint32
	symbol uint32
	addend int32
}

// buildImage assembles a minimal, valid little-endian ELF32 ET_REL image
// with the given sections, in order, preceded by the null section. Section
// names are collected into a synthesized .shstrtab appended after the
// caller's sections.
func buildImage(secs []fixtureSection) MemImage {
	var buf bytes.Buffer

	shstrtab, nameOff := buildStrtab(append([]string{""}, sectionNames(secs)...))

	// Lay out: header, then every section's raw bytes back to back, then
	// .shstrtab bytes, then the section header table.
	buf.Write(make([]byte, ehdrSize))

	type laidOut struct {
		fixtureSection
		offset uint32
	}
	laid := make([]laidOut, len(secs))
	for i, s := range secs {
		if s.typ != elf.SHT_NOBITS {
			pad(&buf, 4)
			laid[i] = laidOut{s, uint32(buf.Len())}
			buf.Write(s.data)
		} else {
			laid[i] = laidOut{s, uint32(buf.Len())}
		}
	}
	pad(&buf, 4)
	shstrtabOffset := uint32(buf.Len())
	buf.Write(shstrtab)

	pad(&buf, 4)
	shoff := uint32(buf.Len())

	shnum := len(secs) + 2 // null + caller sections + .shstrtab
	shstrndx := shnum - 1

	writeShdr(&buf, 0, 0, 0, 0, 0, 0, 0, 0) // null section
	for _, s := range laid {
		size := uint32(len(s.data))
		if s.typ == elf.SHT_NOBITS {
			size = s.size
		}
		writeShdr(&buf, nameOff[s.name], uint32(s.typ), uint32(s.flags), s.offset, size, s.link, s.info)
	}
	writeShdr(&buf, nameOff[".shstrtab"], uint32(elf.SHT_STRTAB), 0, shstrtabOffset, uint32(len(shstrtab)), 0, 0)

	img := buf.Bytes()
	putHeader(img, shoff, shnum, shstrndx)
	return MemImage(img)
}

func sectionNames(secs []fixtureSection) []string {
	names := make([]string, len(secs))
	for i, s := range secs {
		names[i] = s.name
	}
	names = append(names, ".shstrtab")
	return names
}

// buildStrtab packs names into a NUL-separated table starting with an empty
// string at offset 0, and returns each name's offset. Repeated names reuse
// the first occurrence's offset.
func buildStrtab(names []string) ([]byte, map[string]uint32) {
	offsets := map[string]uint32{"": 0}
	var buf bytes.Buffer
	buf.WriteByte(0)
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := offsets[n]; ok {
			continue
		}
		offsets[n] = uint32(buf.Len())
		buf.WriteString(n)
		buf.WriteByte(0)
	}
	return buf.Bytes(), offsets
}

func pad(buf *bytes.Buffer, align int) {
	for buf.Len()%align != 0 {
		buf.WriteByte(0)
	}
}

func writeShdr(buf *bytes.Buffer, name, typ, flags, offset, size, link, info uint32) {
	var hdr elf.Section32
	hdr.Name = name
	hdr.Type = typ
	hdr.Flags = flags
	hdr.Off = offset
	hdr.Size = size
	hdr.Link = link
	hdr.Info = info
	hdr.Addralign = 4
	binary.Write(buf, binary.LittleEndian, &hdr)
}

func putHeader(img []byte, shoff uint32, shnum, shstrndx int) {
	copy(img[0:4], magic[:])
	img[4] = 1 // ELFCLASS32
	img[5] = 1 // ELFDATA2LSB
	img[6] = 1 // EV_CURRENT
	binary.LittleEndian.PutUint16(img[16:18], uint16(elf.ET_REL))
	binary.LittleEndian.PutUint16(img[18:20], uint16(0x5E)) // EM_XTENSA
	binary.LittleEndian.PutUint32(img[20:24], 1)            // e_version
	binary.LittleEndian.PutUint32(img[32:36], shoff)
	binary.LittleEndian.PutUint16(img[46:48], uint16(sectionHeaderSize))
	binary.LittleEndian.PutUint16(img[48:50], uint16(shnum))
	binary.LittleEndian.PutUint16(img[50:52], uint16(shstrndx))
}

// buildSymtab packs fixtureSymbols into a raw .symtab byte blob plus a
// matching .strtab, with a null symbol at index 0.
func buildSymtab(syms []fixtureSymbol) (symtab, strtab []byte) {
	var strs bytes.Buffer
	strs.WriteByte(0)
	nameOff := make([]uint32, len(syms))
	for i, s := range syms {
		if s.name == "" {
			continue
		}
		nameOff[i] = uint32(strs.Len())
		strs.WriteString(s.name)
		strs.WriteByte(0)
	}

	var tab bytes.Buffer
	tab.Write(make([]byte, symSize)) // null symbol
	for i, s := range syms {
		var sym elf.Sym32
		sym.Name = nameOff[i]
		sym.Value = s.value
		sym.Size = s.size
		sym.Info = s.info
		sym.Shndx = uint16(s.shndx)
		binary.Write(&tab, binary.LittleEndian, &sym)
	}
	return tab.Bytes(), strs.Bytes()
}

func buildRelaSection(relas []fixtureRela) []byte {
	var buf bytes.Buffer
	for _, r := range relas {
		var rela elf.Rela32
		rela.Off = r.offset
		rela.Info = r.symbol<<8 | r.typ
		rela.Addend = r.addend
		binary.Write(&buf, binary.LittleEndian, &rela)
	}
	return buf.Bytes()
}
