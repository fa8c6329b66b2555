package codegen

import "testing"

func TestMOVZEncoding(t *testing.T) {
	a := NewAssembler()
	a.MOVZ(X0, 0x1234, 0)
	// movz x0, #0x1234 == 0xD2824680
	want := uint32(0xD2800000 | 0x1234<<5 | 0)
	got := hostWord(t, a.Bytes())
	if got != want {
		t.Fatalf("MOVZ encoding = %#x, want %#x", got, want)
	}
}

func TestMOVImm64FixedWordCount(t *testing.T) {
	a := NewAssembler()
	a.MOVImm64(X1, 0x0000000000001000)
	if a.Len() != MOVImm64Words {
		t.Fatalf("expected %d instructions regardless of zero lanes, got %d", MOVImm64Words, a.Len())
	}
}

func TestMOVImm64AllZero(t *testing.T) {
	a := NewAssembler()
	a.MOVImm64(X2, 0)
	if a.Len() != MOVImm64Words {
		t.Fatalf("expected %d instructions for a zero value, got %d", MOVImm64Words, a.Len())
	}
}

func TestRETEncoding(t *testing.T) {
	a := NewAssembler()
	a.RET(X30)
	want := uint32(0xD65F03C0)
	got := hostWord(t, a.Bytes())
	if got != want {
		t.Fatalf("RET encoding = %#x, want %#x", got, want)
	}
}

func TestEncodeBranchComputesWordOffset(t *testing.T) {
	from := uintptr(0x1000)
	to := uintptr(0x1010) // 16 bytes forward = 4 words
	enc := EncodeBranch(from, to)
	want := uint32(0x14000000 | 4)
	if enc != want {
		t.Fatalf("EncodeBranch = %#x, want %#x", enc, want)
	}
}

func TestPatchAtOverwritesWord(t *testing.T) {
	a := NewAssembler()
	a.NOP()
	a.NOP()
	a.PatchAt(4, 0xDEADBEEF)
	got := hostWordAt(a.Bytes(), 4)
	if got != 0xDEADBEEF {
		t.Fatalf("PatchAt did not overwrite the second word, got %#x", got)
	}
}

func hostWord(t *testing.T, b []byte) uint32 {
	t.Helper()
	return hostWordAt(b, 0)
}

func hostWordAt(b []byte, offset int) uint32 {
	return uint32(b[offset]) | uint32(b[offset+1])<<8 | uint32(b[offset+2])<<16 | uint32(b[offset+3])<<24
}
