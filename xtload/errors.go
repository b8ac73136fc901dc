package xtload

import (
	"fmt"

	"github.com/xtensa-loader/xtload/reloc"
)

// Kind categorizes why a load failed.
type Kind int

const (
	// KindBadMagic means the header magic didn't match.
	KindBadMagic Kind = iota
	// KindImageReadError means an underlying image access failed or
	// returned short.
	KindImageReadError
	// KindMissingRequiredSection means .symtab or .strtab is absent.
	KindMissingRequiredSection
	// KindAllocFailed means a host allocator returned an error.
	KindAllocFailed
	// KindMalformedRela means a RELA section's sh_info pointed at or past
	// its own index, or was otherwise structurally invalid.
	KindMalformedRela
	// KindUnresolvedSymbol means a relocation referenced a symbol that is
	// neither host-exported nor defined in-image, with a zero declared
	// value.
	KindUnresolvedSymbol
	// KindUnsupportedEncoding means a relocation's target instruction word
	// didn't match any known Xtensa encoding family.
	KindUnsupportedEncoding
	// KindUnsupportedRelocationType means a relocation type other than the
	// supported set was encountered.
	KindUnsupportedRelocationType
	// KindRangeViolation means a computed displacement didn't fit its
	// field's width.
	KindRangeViolation
	// KindAlignmentViolation means a computed displacement wasn't aligned
	// where the encoding requires it.
	KindAlignmentViolation
	// KindEntryPointNotFound means no symbol with the requested name
	// resolved to an address.
	KindEntryPointNotFound
)

func (k Kind) String() string {
	switch k {
	case KindBadMagic:
		return "bad magic"
	case KindImageReadError:
		return "image read error"
	case KindMissingRequiredSection:
		return "missing required section"
	case KindAllocFailed:
		return "allocation failed"
	case KindMalformedRela:
		return "malformed RELA section"
	case KindUnresolvedSymbol:
		return "unresolved symbol"
	case KindUnsupportedEncoding:
		return "unsupported instruction encoding"
	case KindUnsupportedRelocationType:
		return "unsupported relocation type"
	case KindRangeViolation:
		return "range violation"
	case KindAlignmentViolation:
		return "alignment violation"
	case KindEntryPointNotFound:
		return "entry point not found"
	}
	return "unknown"
}

// LoadError reports why a Load (or a post-load operation like SetEntry)
// failed.
type LoadError struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("xtload: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("xtload: %s: %s", e.Kind, e.Msg)
}

func (e *LoadError) Unwrap() error { return e.Err }

func errf(kind Kind, err error, format string, args ...interface{}) *LoadError {
	return &LoadError{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// relocKind maps a reloc.Kind onto the corresponding top-level Kind.
func relocKind(k reloc.Kind) Kind {
	switch k {
	case reloc.KindUnresolvedSymbol:
		return KindUnresolvedSymbol
	case reloc.KindUnsupportedType:
		return KindUnsupportedRelocationType
	case reloc.KindUnsupportedEncoding:
		return KindUnsupportedEncoding
	case reloc.KindRangeViolation:
		return KindRangeViolation
	case reloc.KindAlignmentViolation:
		return KindAlignmentViolation
	}
	return KindMalformedRela
}
