package elf32

import "fmt"

// RelocType is an ELF32 Xtensa relocation type (the low byte of Elf32_Rela's
// r_info). debug/elf only special-cases relocation enums for a handful of
// machines (386, ARM, ARM64, MIPS, PPC64, RISCV, S390, SPARC64, X86_64);
// Xtensa isn't one of them, so this package defines its own.
type RelocType uint32

const (
	// R_XTENSA_NONE performs no patch.
	R_XTENSA_NONE RelocType = 0
	// R_XTENSA_32 adds the resolved symbol address to the 32-bit value
	// already stored at the target.
	R_XTENSA_32 RelocType = 1
	// R_XTENSA_ASM_EXPAND records an assembler relaxation hint. It is not a
	// real patch: applying it stores the unmodified word back over itself.
	R_XTENSA_ASM_EXPAND RelocType = 11
	// R_XTENSA_SLOT0_OP patches an immediate embedded in a single-slot
	// Xtensa instruction. The exact field layout depends on the
	// instruction's encoding family; see package xtasm.
	R_XTENSA_SLOT0_OP RelocType = 20
)

func (t RelocType) String() string {
	switch t {
	case R_XTENSA_NONE:
		return "R_XTENSA_NONE"
	case R_XTENSA_32:
		return "R_XTENSA_32"
	case R_XTENSA_ASM_EXPAND:
		return "R_XTENSA_ASM_EXPAND"
	case R_XTENSA_SLOT0_OP:
		return "R_XTENSA_SLOT0_OP"
	}
	return fmt.Sprintf("R_XTENSA_unknown(%d)", uint32(t))
}

// Supported reports whether t is one of the relocation types this loader
// understands. Any other type is a fatal UnsupportedRelocationType.
func (t RelocType) Supported() bool {
	switch t {
	case R_XTENSA_NONE, R_XTENSA_32, R_XTENSA_ASM_EXPAND, R_XTENSA_SLOT0_OP:
		return true
	}
	return false
}
