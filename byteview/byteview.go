// Package byteview provides unaligned little-endian access to an
// already-allocated block of memory.
//
// Loaded object sections are addressed byte-by-byte: a relocation site can
// land on any offset, not just one aligned to the size of the value being
// patched. Some targets trap on a misaligned word load or store, so every
// multi-byte access here is built out of single-byte accesses rather than a
// cast to a wider type.
package byteview

import "fmt"

// View is a window onto a byte slice that has already been allocated by the
// host (a Section's data buffer, typically). All offsets are relative to the
// start of the slice; there is no alignment requirement on them.
type View struct {
	b []byte
}

// Of wraps b for unaligned access. The returned View shares storage with b.
func Of(b []byte) View {
	return View{b}
}

// Len returns the number of bytes in the view.
func (v View) Len() int {
	return len(v.b)
}

// Bytes returns the underlying storage. Callers must not retain it past the
// lifetime of the owning section.
func (v View) Bytes() []byte {
	return v.b
}

func (v View) checkRange(offset, n int) error {
	if offset < 0 || n < 0 || offset+n > len(v.b) {
		return fmt.Errorf("byteview: offset %d length %d out of range [0,%d)", offset, n, len(v.b))
	}
	return nil
}

// Get8 returns the byte at offset.
func (v View) Get8(offset int) (uint8, error) {
	if err := v.checkRange(offset, 1); err != nil {
		return 0, err
	}
	return v.b[offset], nil
}

// Set8 writes value at offset.
func (v View) Set8(offset int, value uint8) error {
	if err := v.checkRange(offset, 1); err != nil {
		return err
	}
	v.b[offset] = value
	return nil
}

// Get32 returns the little-endian 32-bit word starting at offset, built byte
// by byte so it tolerates any offset.
func (v View) Get32(offset int) (uint32, error) {
	if err := v.checkRange(offset, 4); err != nil {
		return 0, err
	}
	var d uint32
	for n := 0; n < 4; n++ {
		d |= uint32(v.b[offset+n]) << (8 * uint(n))
	}
	return d, nil
}

// Set32 writes value as a little-endian 32-bit word starting at offset, one
// byte at a time.
func (v View) Set32(offset int, value uint32) error {
	if err := v.checkRange(offset, 4); err != nil {
		return err
	}
	for n := 0; n < 4; n++ {
		v.b[offset+n] = byte(value >> (8 * uint(n)))
	}
	return nil
}

// Copy copies n bytes from src (at srcOffset) into v (at destOffset).
func (v View) Copy(destOffset int, src []byte, srcOffset, n int) error {
	if err := v.checkRange(destOffset, n); err != nil {
		return err
	}
	if srcOffset < 0 || n < 0 || srcOffset+n > len(src) {
		return fmt.Errorf("byteview: source offset %d length %d out of range [0,%d)", srcOffset, n, len(src))
	}
	copy(v.b[destOffset:destOffset+n], src[srcOffset:srcOffset+n])
	return nil
}

// Zero fills the whole view with zero bytes. Used to initialize SHT_NOBITS
// sections, which have no representation in the file.
func (v View) Zero() {
	for i := range v.b {
		v.b[i] = 0
	}
}
