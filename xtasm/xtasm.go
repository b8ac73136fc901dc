// Package xtasm classifies the Xtensa single-slot instruction encoding
// family a 32-bit instruction word belongs to.
//
// golang.org/x/arch has no Xtensa decoder — it only ships x86, arm64 and
// ppc64 — so there is no general-purpose disassembler to lean on here. This
// package is a small, purpose-built classifier instead: one file, one
// format, a small typed classification result, built directly from the bit
// patterns R_XTENSA_SLOT0_OP relocations need to distinguish.
package xtasm

import "fmt"

// Family identifies which Xtensa instruction encoding a word belongs to,
// for the purpose of locating and patching its embedded PC-relative
// immediate.
type Family int

const (
	// FamilyUnknown means the word didn't match any recognized family.
	FamilyUnknown Family = iota
	// FamilyL32R is the PC-relative literal load, "L32R".
	FamilyL32R
	// FamilyCall is CALLX0/CALLX4/CALLX8/CALLX12/CALL0/CALL4/CALL8/CALL12.
	FamilyCall
	// FamilyJ is the unconditional relative jump, "J" (18-bit immediate).
	FamilyJ
	// FamilyBRI8 is the family of branches with an 8-bit signed immediate
	// (BEQ, BNE, BGE, BLT, BBC, BBS, LOOP, and their *I variants, etc).
	FamilyBRI8
	// FamilyBRI12 is BEQZ/BGEZ/BLTZ/BNEZ, with a 12-bit signed immediate.
	FamilyBRI12
	// FamilyRI6 is the narrow (16-bit) BEQZ.N/BNEZ.N encoding, with a 6-bit
	// split immediate.
	FamilyRI6
)

func (f Family) String() string {
	switch f {
	case FamilyL32R:
		return "L32R"
	case FamilyCall:
		return "CALLx/J0"
	case FamilyJ:
		return "J"
	case FamilyBRI8:
		return "BRI8"
	case FamilyBRI12:
		return "BRI12"
	case FamilyRI6:
		return "RI6"
	}
	return "unknown"
}

// Classify inspects the low-order bits of a little-endian instruction word
// and returns the encoding family it belongs to, or FamilyUnknown if none
// of the recognized patterns match. Patterns are tested in priority order:
// a word that happens to satisfy more than one mask is classified by
// whichever case appears first.
func Classify(word uint32) Family {
	switch {
	case word&0x00000F == 0x000001:
		return FamilyL32R
	case word&0x00000F == 0x000005:
		return FamilyCall
	case word&0x00003F == 0x000006:
		return FamilyJ
	case word&0x00000F == 0x000007,
		word&0x00003F == 0x000026,
		(word&0x00003F == 0x000036 && word&0x0000FF != 0x000036):
		return FamilyBRI8
	case word&0x00003F == 0x000016:
		return FamilyBRI12
	case word&0x008F == 0x008C:
		return FamilyRI6
	}
	return FamilyUnknown
}

// ErrUnsupported reports that a word did not match any known encoding
// family.
type ErrUnsupported struct {
	Word uint32
}

func (e *ErrUnsupported) Error() string {
	return fmt.Sprintf("xtasm: instruction word %#08x does not match any supported Xtensa encoding", e.Word)
}
