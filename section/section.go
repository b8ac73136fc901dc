// Package section is the in-memory catalog of a loaded object's allocatable
// sections.
package section

import "fmt"

// Section is one loaded, allocatable section.
type Section struct {
	// OriginalIndex is the section's index in the source file's section
	// header table (1-based; index 0 is the null section).
	OriginalIndex int
	// Name is the section name, e.g. ".text".
	Name string
	// Data is the owned, contiguous memory buffer backing this section.
	// Executable sections live in memory the host marked executable;
	// everything else lives in ordinary data memory.
	Data []byte
	// Exec reports whether Data was allocated as executable memory.
	Exec bool
	// RelaIndex is the original section index of a companion RELA section
	// whose relocations target this section, or 0 ("none": 0 is always the
	// null section and can never itself be a RELA section).
	RelaIndex int
	// BaseAddr is this section's base address in the loader's virtual
	// address space, assigned once when the section is allocated. All
	// relocation arithmetic (and symbol addresses for in-image symbols) is
	// expressed in terms of BaseAddr, not a host pointer value: on a real
	// 32-bit target the two coincide, but a Go process hosting this loader
	// for testing may run with a 64-bit address space, so BaseAddr is kept
	// as an independent, loader-assigned uint32 rather than a truncated
	// cast of Data's real address.
	BaseAddr uint32
}

// HasRela reports whether a RELA section targets this section.
func (s *Section) HasRela() bool { return s.RelaIndex != 0 }

func (s *Section) String() string {
	return fmt.Sprintf("%s [%d]", s.Name, s.OriginalIndex)
}

// Table is the flat catalog of loaded sections. Lookup by original index is
// the only operation that needs to work, and the catalog is small (tens of
// entries in a typical task image), so a flat slice with a linear scan is
// enough; no index structure is needed.
type Table struct {
	free func([]byte)
	secs []*Section
}

// NewTable creates an empty table. free is called on every owned buffer
// during FreeAll; it must be the same host deallocator the sections' buffers
// were allocated from.
func NewTable(free func([]byte)) *Table {
	return &Table{free: free}
}

// Add appends s to the table, taking ownership of its Data buffer.
func (t *Table) Add(s *Section) {
	t.secs = append(t.secs, s)
}

// Find returns the section whose OriginalIndex equals index, or (nil, false)
// if there is none.
func (t *Table) Find(index int) (*Section, bool) {
	for _, s := range t.secs {
		if s.OriginalIndex == index {
			return s, true
		}
	}
	return nil, false
}

// All returns every loaded section, in load order.
func (t *Table) All() []*Section {
	return t.secs
}

// ResolveAddr returns the section containing the virtual address addr and
// the byte offset within its Data that addr corresponds to. The loader uses
// this to turn a resolved entry-point address back into the real bytes
// backing it.
func (t *Table) ResolveAddr(addr uint32) (sec *Section, offset uint32, ok bool) {
	for _, s := range t.secs {
		size := uint32(len(s.Data))
		if addr >= s.BaseAddr && addr-s.BaseAddr < size {
			return s, addr - s.BaseAddr, true
		}
	}
	return nil, 0, false
}

// FreeAll releases every owned buffer and clears the table. Safe to call on
// an already-empty table (e.g. after a prior FreeAll, or construction).
func (t *Table) FreeAll() {
	for _, s := range t.secs {
		if s.Data != nil && t.free != nil {
			t.free(s.Data)
		}
		s.Data = nil
	}
	t.secs = nil
}
