package elf32

import "debug/elf"

// Header is the parsed ELF32 file header (Elf32_Ehdr), trimmed to the
// fields this loader actually consults.
type Header struct {
	Machine       elf.Machine
	Type          elf.Type
	SectionOffset uint32 // e_shoff
	SectionCount  int    // e_shnum
	StringTabNdx  int    // e_shstrndx
}

// SectionHeader is a parsed ELF32 section header (Elf32_Shdr) together with
// its name, resolved through the section-name string table.
type SectionHeader struct {
	Name      string
	Type      elf.SectionType
	Flags     elf.SectionFlag
	Addr      uint32
	Offset    uint32
	Size      uint32
	Link      uint32
	Info      uint32
	Addralign uint32
}

// Alloc reports whether this section must be present in memory at runtime.
func (h *SectionHeader) Alloc() bool { return h.Flags&elf.SHF_ALLOC != 0 }

// Exec reports whether this section holds executable instructions.
func (h *SectionHeader) Exec() bool { return h.Flags&elf.SHF_EXECINSTR != 0 }

// NoBits reports whether this section has no file contents (BSS-like).
func (h *SectionHeader) NoBits() bool { return h.Type == elf.SHT_NOBITS }

// SymKind loosely categorizes a SymbolEntry. It is metadata only: it plays
// no part in relocation or resolution.
type SymKind uint8

const (
	SymUnknown SymKind = iota
	SymUndef
	SymText
	SymData
	SymBSS
	SymAbsolute
	SymSection
)

func (k SymKind) String() string {
	switch k {
	case SymUndef:
		return "undef"
	case SymText:
		return "text"
	case SymData:
		return "data"
	case SymBSS:
		return "bss"
	case SymAbsolute:
		return "absolute"
	case SymSection:
		return "section"
	}
	return "unknown"
}

// SymbolEntry is a parsed ELF32 symbol-table entry (Elf32_Sym).
type SymbolEntry struct {
	// Name is resolved through the symbol-name string table, or, for an
	// anonymous (st_name == 0) symbol, taken from its defining section's
	// name.
	Name string
	// SectionIndex is st_shndx: the original section index this symbol is
	// defined in, or elf.SHN_UNDEF if it is external.
	SectionIndex elf.SectionIndex
	// Value is st_value: an offset within the defining section for a
	// defined symbol, or an arbitrary file-declared value otherwise.
	Value uint32
	Size  uint32
	Kind  SymKind
	Local bool
}

// Defined reports whether the symbol is defined in some section of this
// image (as opposed to SHN_UNDEF/SHN_ABS/SHN_COMMON).
func (s *SymbolEntry) Defined() bool {
	return s.SectionIndex != elf.SHN_UNDEF && s.SectionIndex < elf.SHN_LORESERVE
}

// RelocationEntry is a parsed RELA entry (Elf32_Rela).
type RelocationEntry struct {
	// Offset is the byte offset within the target section that this entry
	// patches.
	Offset uint32
	Type   RelocType
	Symbol int // index into the symbol table
	Addend int32
}
