// Package hostmem implements the host memory services a loader needs
// (executable and data allocation, and release), backed by anonymous mmap.
// Production hosts on constrained targets are expected to supply their own
// allocator; this package gives the loader a real, runnable allocator to
// exercise in tests and examples.
package hostmem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Allocator hands out anonymous mmap'd buffers. The zero value is ready to
// use. Every buffer it returns must eventually be passed to Free.
type Allocator struct{}

// AllocExec returns a zeroed buffer of at least n bytes, mapped read,
// write and exec. Write access is kept so relocations can patch the
// buffer's contents after it is allocated; hosts that require W^X should
// reprotect to read+exec once relocation is complete.
func (Allocator) AllocExec(n int) ([]byte, error) {
	return mmap(n, unix.PROT_READ|unix.PROT_WRITE|unix.PROT_EXEC)
}

// AllocData returns a zeroed buffer of at least n bytes, mapped read-write.
func (Allocator) AllocData(n int) ([]byte, error) {
	return mmap(n, unix.PROT_READ|unix.PROT_WRITE)
}

// Free unmaps a buffer previously returned by AllocExec or AllocData.
func (Allocator) Free(b []byte) {
	if len(b) == 0 {
		return
	}
	if err := unix.Munmap(b); err != nil {
		panic(fmt.Sprintf("hostmem: munmap failed: %v", err))
	}
}

// Reprotect changes a previously allocated exec buffer's protection to
// read+exec, dropping write access once relocation has finished patching
// it. Hosts that don't need W^X enforcement can skip calling this.
func (Allocator) Reprotect(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	return unix.Mprotect(b, unix.PROT_READ|unix.PROT_EXEC)
}

func mmap(n int, prot int) ([]byte, error) {
	if n <= 0 {
		n = 1
	}
	b, err := unix.Mmap(-1, 0, n, prot, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("hostmem: mmap %d bytes: %w", n, err)
	}
	return b, nil
}
