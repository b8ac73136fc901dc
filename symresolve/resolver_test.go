package symresolve

import (
	"testing"

	"github.com/xtensa-loader/xtload/section"
)

func TestResolveHostExportWins(t *testing.T) {
	secs := section.NewTable(nil)
	secs.Add(&section.Section{OriginalIndex: 1, BaseAddr: 0x1000, Data: make([]byte, 16)})

	r := New(Exports{{Name: "host_print", Address: 0xDEADBEE0}}, secs)

	got := r.Resolve(1, 4, "host_print")
	if got != 0xDEADBEE0 {
		t.Fatalf("Resolve = %#x, want host export address", got)
	}
}

func TestResolveInImage(t *testing.T) {
	secs := section.NewTable(nil)
	secs.Add(&section.Section{OriginalIndex: 2, BaseAddr: 0x2000, Data: make([]byte, 16)})

	r := New(nil, secs)
	got := r.Resolve(2, 8, "local_sym")
	if got != 0x2008 {
		t.Fatalf("Resolve = %#x, want 0x2008", got)
	}
}

func TestResolveUnresolved(t *testing.T) {
	secs := section.NewTable(nil)
	r := New(nil, secs)
	got := r.Resolve(9, 0, "missing")
	if got != Unresolved {
		t.Fatalf("Resolve = %#x, want Unresolved", got)
	}
}

func TestResolvePrecedence(t *testing.T) {
	// A name defined both as a host export and (coincidentally, via its
	// section) in-image must resolve to the host's address.
	secs := section.NewTable(nil)
	secs.Add(&section.Section{OriginalIndex: 1, BaseAddr: 0x5000, Data: make([]byte, 4)})
	r := New(Exports{{Name: "shared_name", Address: 0x9999}}, secs)

	got := r.Resolve(1, 0, "shared_name")
	if got != 0x9999 {
		t.Fatalf("Resolve = %#x, want host export to win", got)
	}
}
