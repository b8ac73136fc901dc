package xtload

import (
	"unsafe"

	"github.com/xtensa-loader/xtload/symresolve"
)

// SetEntry resolves name against the symbol table and records its address
// as the entry point Run will invoke. The first symbol with this name
// whose address resolves successfully wins; a name match whose address
// doesn't resolve is skipped in favor of a later one, matching how a
// weak/duplicate definition would behave at link time.
func (l *Loader) SetEntry(name string) error {
	indices, ok := l.entryIndex[name]
	if !ok {
		return errf(KindEntryPointNotFound, nil, "no symbol named %q", name)
	}
	for _, idx := range indices {
		sym := l.symbols[idx]
		addr := l.resolver.Resolve(int(sym.SectionIndex), sym.Value, sym.Name)
		if addr != symresolve.Unresolved {
			l.entryAddr = addr
			return nil
		}
	}
	return errf(KindEntryPointNotFound, nil, "symbol %q does not resolve to an address", name)
}

// invokeEntry calls the entry point at fn with the (byte_buffer, length) ->
// byte_buffer convention and reads back a nul-terminated result. It is
// overridden in tests, since calling through fn only produces a meaningful
// result when this process is itself running on the target CPU.
var invokeEntry = func(fn uintptr, arg []byte) []byte {
	var argPtr *byte
	if len(arg) > 0 {
		argPtr = &arg[0]
	}
	callee := *(*func(*byte, int) *byte)(unsafe.Pointer(&fn))
	retPtr := callee(argPtr, len(arg))
	if retPtr == nil {
		return nil
	}
	return readCString(retPtr)
}

// readCString copies bytes starting at p up to (but not including) the
// first nul byte.
func readCString(p *byte) []byte {
	const maxLen = 1 << 20
	base := uintptr(unsafe.Pointer(p))
	var out []byte
	for i := uintptr(0); i < maxLen; i++ {
		b := *(*byte)(unsafe.Pointer(base + i))
		if b == 0 {
			break
		}
		out = append(out, b)
	}
	return out
}

// Run invokes the entry point set by SetEntry with the convention
// (byte_buffer, length) -> byte_buffer. The callee owns the lifetime of
// the returned buffer.
func (l *Loader) Run(arg []byte) ([]byte, error) {
	if l.entryAddr == 0 {
		return nil, errf(KindEntryPointNotFound, nil, "SetEntry was never called")
	}
	sec, offset, ok := l.sections.ResolveAddr(l.entryAddr)
	if !ok {
		return nil, errf(KindEntryPointNotFound, nil, "entry address %#x does not fall within any loaded section", l.entryAddr)
	}
	fn := uintptr(unsafe.Pointer(&sec.Data[offset]))
	return invokeEntry(fn, arg), nil
}
