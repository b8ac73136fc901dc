package xtload

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

const (
	testEhdrSize = 52
	testShdrSize = 40
	testSymSize  = 16
	testRelaSize = 12
)

var elfMagic = [4]byte{0x7F, 'E', 'L', 'F'}

type fixtureSection struct {
	name  string
	typ   elf.SectionType
	flags elf.SectionFlag
	data  []byte
	size  uint32 // for SHT_NOBITS
	link  uint32
	info  uint32
}

type fixtureSymbol struct {
	name  string
	shndx elf.SectionIndex
	value uint32
	info  uint8
}

type fixtureRela struct {
	offset uint32
	typ    uint32
	symbol uint32
	addend int32
}

// buildObject assembles a synthetic ELF32 ET_REL Xtensa object with the
// given ordinary sections, followed by a .symtab/.strtab pair built from
// syms, and optionally a .rela<name> section of relas targeting relaTarget
// (a section name already present in secs).
func buildObject(secs []fixtureSection, syms []fixtureSymbol, relaTarget string, relas []fixtureRela) MemImage {
	all := append([]fixtureSection{}, secs...)

	symtab, strtab := buildSymtab(syms)
	symtabIdx := len(all) + 1 // 1-based, null section occupies slot 0
	all = append(all, fixtureSection{name: ".symtab", typ: elf.SHT_SYMTAB, data: symtab, link: uint32(symtabIdx + 1)})
	all = append(all, fixtureSection{name: ".strtab", typ: elf.SHT_STRTAB, data: strtab})

	if relas != nil {
		targetIdx := -1
		for i, s := range secs {
			if s.name == relaTarget {
				targetIdx = i + 1
				break
			}
		}
		relaData := buildRelaSection(relas)
		all = append(all, fixtureSection{
			name: ".rela" + relaTarget, typ: elf.SHT_RELA, data: relaData,
			link: uint32(symtabIdx), info: uint32(targetIdx),
		})
	}

	return buildImage(all)
}

func buildImage(secs []fixtureSection) MemImage {
	var buf bytes.Buffer

	names := make([]string, 0, len(secs)+1)
	names = append(names, "")
	for _, s := range secs {
		names = append(names, s.name)
	}
	names = append(names, ".shstrtab")
	shstrtab, nameOff := buildStrtab(names)

	buf.Write(make([]byte, testEhdrSize))

	offsets := make([]uint32, len(secs))
	for i, s := range secs {
		if s.typ != elf.SHT_NOBITS {
			padTo4(&buf)
			offsets[i] = uint32(buf.Len())
			buf.Write(s.data)
		} else {
			offsets[i] = uint32(buf.Len())
		}
	}
	padTo4(&buf)
	shstrtabOffset := uint32(buf.Len())
	buf.Write(shstrtab)

	padTo4(&buf)
	shoff := uint32(buf.Len())

	shnum := len(secs) + 2
	shstrndx := shnum - 1

	writeShdr(&buf, 0, 0, 0, 0, 0, 0, 0)
	for i, s := range secs {
		size := uint32(len(s.data))
		if s.typ == elf.SHT_NOBITS {
			size = s.size
		}
		writeShdr(&buf, nameOff[s.name], uint32(s.typ), uint32(s.flags), offsets[i], size, s.link, s.info)
	}
	writeShdr(&buf, nameOff[".shstrtab"], uint32(elf.SHT_STRTAB), 0, shstrtabOffset, uint32(len(shstrtab)), 0, 0)

	img := buf.Bytes()
	putHeader(img, shoff, shnum, shstrndx)
	return MemImage(img)
}

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

func padTo4(buf *bytes.Buffer) {
	for buf.Len()%4 != 0 {
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
	copy(img[0:4], elfMagic[:])
	img[4] = 1
	img[5] = 1
	img[6] = 1
	binary.LittleEndian.PutUint16(img[16:18], uint16(elf.ET_REL))
	binary.LittleEndian.PutUint16(img[18:20], 0x5E) // EM_XTENSA
	binary.LittleEndian.PutUint32(img[20:24], 1)
	binary.LittleEndian.PutUint32(img[32:36], shoff)
	binary.LittleEndian.PutUint16(img[46:48], uint16(testShdrSize))
	binary.LittleEndian.PutUint16(img[48:50], uint16(shnum))
	binary.LittleEndian.PutUint16(img[50:52], uint16(shstrndx))
}

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
	tab.Write(make([]byte, testSymSize)) // null symbol
	for i, s := range syms {
		var sym elf.Sym32
		sym.Name = nameOff[i]
		sym.Value = s.value
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
