package elf32

import (
	"bytes"
	"debug/elf"
	"fmt"
)

var ehdrSize = sizeOf(&elf.Header32{})

// Reader parses an ELF32 object held in an Image. It is the ElfReader
// component: all field knowledge lives here, so Loader and RelocEngine never
// touch raw ELF structures directly.
type Reader struct {
	img Image

	header         Header
	shstrtabOffset uint32
	symtabOffset   uint32
	symtabCount    int
	strtabOffset   uint32
}

// NewReader reads and validates the ELF32 header from img, then locates the
// section-name string table (via e_shstrndx). It does not yet know where
// .symtab/.strtab are — locating those requires iterating section headers,
// which is the caller's job.
func NewReader(img Image) (*Reader, error) {
	r := &Reader{img: img}
	if err := r.readHeader(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Reader) readHeader() error {
	var hdr elf.Header32
	if err := readStruct(r.img, 0, ehdrSize, &hdr); err != nil {
		return fmt.Errorf("reading ELF header: %w", err)
	}
	if !bytes.Equal(hdr.Ident[:len(magic)], magic[:]) {
		return errf(KindBadMagic, nil, "image does not start with the ELF magic number")
	}

	r.header = Header{
		Machine:       elf.Machine(hdr.Machine),
		Type:          elf.Type(hdr.Type),
		SectionOffset: hdr.Shoff,
		SectionCount:  int(hdr.Shnum),
		StringTabNdx:  int(hdr.Shstrndx),
	}

	if r.header.SectionCount > 0 {
		shstrtab, err := r.readRawSectionHeader(r.header.StringTabNdx)
		if err != nil {
			return fmt.Errorf("locating section-name string table: %w", err)
		}
		r.shstrtabOffset = shstrtab.Off
	}
	return nil
}

// Header returns the parsed file header.
func (r *Reader) Header() Header { return r.header }

func (r *Reader) sectionHeaderOffset(n int) uint32 {
	return r.header.SectionOffset + uint32(n)*uint32(sectionHeaderSize)
}

var sectionHeaderSize = sizeOf(&elf.Section32{})

func (r *Reader) readRawSectionHeader(n int) (elf.Section32, error) {
	var sh elf.Section32
	if n < 0 || n >= r.header.SectionCount {
		return sh, errf(KindOutOfRange, nil, "section index %d out of range [0,%d)", n, r.header.SectionCount)
	}
	if err := readStruct(r.img, r.sectionHeaderOffset(n), sectionHeaderSize, &sh); err != nil {
		return sh, fmt.Errorf("reading section header %d: %w", n, err)
	}
	return sh, nil
}

// ReadSectionHeader reads section header entry n and resolves its name
// through the section-name string table.
func (r *Reader) ReadSectionHeader(n int) (SectionHeader, error) {
	sh, err := r.readRawSectionHeader(n)
	if err != nil {
		return SectionHeader{}, err
	}
	name, err := r.readStringAt(r.shstrtabOffset, sh.Name)
	if err != nil {
		return SectionHeader{}, fmt.Errorf("resolving name of section %d: %w", n, err)
	}
	return SectionHeader{
		Name:      name,
		Type:      elf.SectionType(sh.Type),
		Flags:     elf.SectionFlag(sh.Flags),
		Addr:      sh.Addr,
		Offset:    sh.Off,
		Size:      sh.Size,
		Link:      sh.Link,
		Info:      sh.Info,
		Addralign: sh.Addralign,
	}, nil
}

// SetSymbolTable records the location of .symtab (file offset and entry
// count), found by the caller while iterating section headers in Pass 2.
func (r *Reader) SetSymbolTable(offset uint32, count int) {
	r.symtabOffset = offset
	r.symtabCount = count
}

// SetStringTable records the location of .strtab, the string table backing
// symbol names (distinct from the section-name string table).
func (r *Reader) SetStringTable(offset uint32) {
	r.strtabOffset = offset
}

// SymbolTableReady reports whether both .symtab and .strtab have been
// located. Both offsets must be checked independently: a file can define
// one without the other, and treating either alone as sufficient would let
// symbol lookups run against an unset string table.
func (r *Reader) SymbolTableReady() bool {
	return r.symtabOffset != 0 && r.strtabOffset != 0
}

// NumSymbols returns the number of entries in .symtab.
func (r *Reader) NumSymbols() int { return r.symtabCount }

// SymEntrySize is the on-disk size of one Elf32_Sym entry, for callers that
// need to turn a .symtab section's sh_size into an entry count.
var SymEntrySize = sizeOf(&elf.Sym32{})

var symSize = SymEntrySize

// SectionInfo reports the flags and type of the section at shndx, for
// classifying the symbols defined in it. ok is false if shndx doesn't name
// a real section (SHN_UNDEF, SHN_ABS, SHN_COMMON, or out of range).
type SectionInfo func(shndx elf.SectionIndex) (flags elf.SectionFlag, typ elf.SectionType, ok bool)

// ReadSymbol reads symbol-table entry n. nameForSection resolves the name of
// an anonymous symbol (st_name == 0) from its defining section: the name is
// taken from the defining section's name in that case. sectionInfo (if
// non-nil) is consulted to classify a defined symbol as text, data, or BSS
// from its defining section's flags; without it, defined symbols classify
// as SymUnknown.
func (r *Reader) ReadSymbol(n int, nameForSection func(shndx elf.SectionIndex) (string, bool), sectionInfo SectionInfo) (SymbolEntry, error) {
	if n < 0 || n >= r.symtabCount {
		return SymbolEntry{}, errf(KindOutOfRange, nil, "symbol index %d out of range [0,%d)", n, r.symtabCount)
	}
	var sym elf.Sym32
	offset := r.symtabOffset + uint32(n)*uint32(symSize)
	if err := readStruct(r.img, offset, symSize, &sym); err != nil {
		return SymbolEntry{}, fmt.Errorf("reading symbol %d: %w", n, err)
	}

	shndx := elf.SectionIndex(sym.Shndx)

	var name string
	if sym.Name != 0 {
		var err error
		name, err = r.readStringAt(r.strtabOffset, sym.Name)
		if err != nil {
			return SymbolEntry{}, fmt.Errorf("resolving name of symbol %d: %w", n, err)
		}
	} else if nameForSection != nil {
		if n, ok := nameForSection(shndx); ok {
			name = n
		}
	}

	return SymbolEntry{
		Name:         name,
		SectionIndex: shndx,
		Value:        sym.Value,
		Size:         sym.Size,
		Kind:         classifySymbol(sym, shndx, sectionInfo),
		Local:        elf.ST_BIND(sym.Info) == elf.STB_LOCAL,
	}, nil
}

func classifySymbol(sym elf.Sym32, shndx elf.SectionIndex, sectionInfo SectionInfo) SymKind {
	if elf.ST_TYPE(sym.Info) == elf.STT_SECTION {
		return SymSection
	}
	switch shndx {
	case elf.SHN_UNDEF:
		return SymUndef
	case elf.SHN_ABS:
		return SymAbsolute
	case elf.SHN_COMMON:
		return SymBSS
	}
	if sectionInfo != nil {
		if flags, typ, ok := sectionInfo(shndx); ok {
			switch {
			case typ == elf.SHT_NOBITS:
				return SymBSS
			case flags&elf.SHF_EXECINSTR != 0:
				return SymText
			case flags&elf.SHF_ALLOC != 0:
				return SymData
			}
		}
	}
	return SymUnknown
}

var relaSize = sizeOf(&elf.Rela32{})

// ReadRelocation reads RELA entry index i of the relocation section at
// sectionOffset (the owning section's sh_offset).
func (r *Reader) ReadRelocation(sectionOffset uint32, i int) (RelocationEntry, error) {
	var rela elf.Rela32
	offset := sectionOffset + uint32(i)*uint32(relaSize)
	if err := readStruct(r.img, offset, relaSize, &rela); err != nil {
		return RelocationEntry{}, fmt.Errorf("reading relocation %d: %w", i, err)
	}
	return RelocationEntry{
		Offset: rela.Off,
		Type:   RelocType(elf.R_TYPE32(rela.Info)),
		Symbol: int(elf.R_SYM32(rela.Info)),
		Addend: rela.Addend,
	}, nil
}

// ReadSectionData copies sh_size bytes of section data starting at
// sh_offset into dest. Callers must not call this for SHT_NOBITS sections
// (there is nothing in the file to read); they should zero the destination
// instead.
func (r *Reader) ReadSectionData(sh SectionHeader, dest []byte) error {
	if uint32(len(dest)) != sh.Size {
		return errf(KindMalformed, nil, "destination buffer size %d does not match section size %d", len(dest), sh.Size)
	}
	if err := r.img.ReadAt(sh.Offset, dest); err != nil {
		return errf(KindImageRead, err, "reading %d bytes of section %q at offset %#x", sh.Size, sh.Name, sh.Offset)
	}
	return nil
}

// readStringAt reads a NUL-terminated string from the table based at
// tableOffset, at the given byte offset within it. Strings are bounded by a
// generous cap so a corrupt table can't force an unbounded read.
func (r *Reader) readStringAt(tableOffset, strOffset uint32) (string, error) {
	const maxNameLen = 256
	buf := make([]byte, maxNameLen)
	if err := r.img.ReadAt(tableOffset+strOffset, buf); err != nil {
		// The string may legitimately run past what we could read in one
		// shot (e.g. right at the end of the image); fall back to
		// byte-at-a-time reads bounded by maxNameLen.
		n, shortErr := r.readStringBytewise(tableOffset+strOffset, buf)
		if shortErr != nil {
			return "", errf(KindImageRead, err, "reading string at offset %#x", tableOffset+strOffset)
		}
		return string(buf[:n]), nil
	}
	if i := bytes.IndexByte(buf, 0); i >= 0 {
		return string(buf[:i]), nil
	}
	return string(buf), nil
}

func (r *Reader) readStringBytewise(offset uint32, buf []byte) (int, error) {
	var b [1]byte
	for i := range buf {
		if err := r.img.ReadAt(offset+uint32(i), b[:]); err != nil {
			return i, nil
		}
		if b[0] == 0 {
			return i, nil
		}
		buf[i] = b[0]
	}
	return len(buf), nil
}
