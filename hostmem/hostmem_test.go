package hostmem

import "testing"

func TestAllocDataRoundTrip(t *testing.T) {
	var a Allocator
	b, err := a.AllocData(64)
	if err != nil {
		t.Fatalf("AllocData: %v", err)
	}
	defer a.Free(b)

	if len(b) < 64 {
		t.Fatalf("AllocData returned %d bytes, want at least 64", len(b))
	}
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not zeroed: %#x", i, v)
		}
	}
	b[0] = 0xFF
	if b[0] != 0xFF {
		t.Fatal("data buffer is not writable")
	}
}

func TestAllocExecWritableThenReprotect(t *testing.T) {
	var a Allocator
	b, err := a.AllocExec(32)
	if err != nil {
		t.Fatalf("AllocExec: %v", err)
	}
	defer a.Free(b)

	b[0] = 0x01 // must be writable before the patch/reprotect sequence
	if err := a.Reprotect(b); err != nil {
		t.Fatalf("Reprotect: %v", err)
	}
}

func TestFreeZeroLengthIsNoop(t *testing.T) {
	var a Allocator
	a.Free(nil)
	a.Free([]byte{})
}

func TestAllocExecZeroLength(t *testing.T) {
	var a Allocator
	b, err := a.AllocExec(0)
	if err != nil {
		t.Fatalf("AllocExec(0): %v", err)
	}
	a.Free(b)
}
