// Package symresolve resolves symbol names and references to absolute
// addresses.
package symresolve

import "github.com/xtensa-loader/xtload/section"

// Unresolved is the address sentinel for "could not be resolved" (not a
// valid address any loaded section or export can occupy). It is used
// instead of a (uint32, bool) pair because relocation math downstream needs
// to compare the resolved address against it directly, after folding in a
// relocation's addend.
const Unresolved uint32 = 0xFFFFFFFF

// ExportedSymbol is a (name, address) pair the host makes available for
// loaded code to call back into. The set is finite and read-only for the
// lifetime of a load; names are assumed unique, and lookup is exact byte
// equality — no demangling, no weak/strong distinction.
type ExportedSymbol struct {
	Name    string
	Address uint32
}

// Exports is the host-provided table of exported symbols.
type Exports []ExportedSymbol

func (e Exports) lookup(name string) (uint32, bool) {
	for _, s := range e {
		if s.Name == name {
			return s.Address, true
		}
	}
	return 0, false
}

// Resolver resolves symbol names against the host's exported table first,
// then against in-image defined sections.
type Resolver struct {
	exports  Exports
	sections *section.Table
}

// New builds a Resolver over the host's exported table and the sections
// loaded so far. sections is consulted live, so relocation can happen after
// every section has been allocated but doesn't need the resolver rebuilt.
func New(exports Exports, sections *section.Table) *Resolver {
	return &Resolver{exports: exports, sections: sections}
}

// Resolve looks name up against the host's exported table first (exact
// match wins even if the in-image symbol table defines the same name);
// failing that, shndx is looked up in the loaded section table and the
// address is computed as base(section) + value. Resolve returns Unresolved
// if neither applies.
func (r *Resolver) Resolve(shndx int, value uint32, name string) uint32 {
	if addr, ok := r.exports.lookup(name); ok {
		return addr
	}
	if sec, ok := r.sections.Find(shndx); ok {
		return sec.BaseAddr + value
	}
	return Unresolved
}
