// Package xtload loads ELF32 relocatable object files targeting the
// Xtensa instruction set, resolves their symbol references against a
// host-exported table, applies Xtensa relocations, and exposes a named
// entry-point function a host can invoke.
package xtload

import (
	"github.com/xtensa-loader/xtload/elf32"
	"github.com/xtensa-loader/xtload/symresolve"
)

// Image is the host-provided byte-addressable source of the object file.
type Image = elf32.Image

// MemImage is a plain in-memory Image backed by a single contiguous
// buffer.
type MemImage = elf32.MemImage

// ExportedSymbol is a (name, address) pair the host makes available for
// loaded code to call back into.
type ExportedSymbol = symresolve.ExportedSymbol

// Exports is the host-provided table of exported symbols.
type Exports = symresolve.Exports

// HostServices are the memory-allocation callbacks the loader needs from
// its host. AllocExec and AllocData must return zeroed memory; Free
// releases a buffer previously returned by either.
type HostServices interface {
	AllocExec(n int) ([]byte, error)
	AllocData(n int) ([]byte, error)
	Free(b []byte)
}
