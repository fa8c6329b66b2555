package translator

import "testing"

func TestSizeOffsetsAreMonotonicAndContiguous(t *testing.T) {
	d, err := Discover(movAddRet, 0x401000, nil, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	a := Analyze(d)
	s := Size(d, a)

	if len(s.Insns) != len(d.Insns) {
		t.Fatalf("sizing count mismatch")
	}
	var want uint32
	for i, si := range s.Insns {
		if si.HostOffset != want {
			t.Fatalf("insn %d HostOffset = %d, want %d", i, si.HostOffset, want)
		}
		if si.HostBytes == 0 || si.HostBytes%armInsnBytes != 0 {
			t.Fatalf("insn %d HostBytes = %d, not a multiple of %d", i, si.HostBytes, armInsnBytes)
		}
		want += si.HostBytes
	}
	if s.TotalHostBytes != want {
		t.Fatalf("TotalHostBytes = %d, want %d", s.TotalHostBytes, want)
	}
}
