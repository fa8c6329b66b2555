package threadfork

import (
	"testing"

	"github.com/coldforge/dbt64/sharedctx"
)

func TestNewTLSBlockIsAlignedAndCarriesTemplate(t *testing.T) {
	s := sharedctx.New(0xdead0000)
	s.SetTLSTemplate([]byte{0xAA, 0xBB, 0xCC, 0xDD}, 4)

	b := NewTLSBlock(s, 0x1122334455667788)

	if len(b.mem) == 0 || len(b.mem)%TLSAlignment != 0 {
		t.Fatalf("block size %d is not a multiple of TLSAlignment", len(b.mem))
	}
	if b.Base() == 0 {
		t.Fatalf("expected nonzero base address")
	}
	if b.Canary() != 0x1122334455667788 {
		t.Fatalf("Canary() = %#x, want 0x1122334455667788", b.Canary())
	}

	selfPtr := getUint64(b.mem, b.baseOffset+tcbOffsetSelf)
	if selfPtr != uint64(b.Base()) {
		t.Fatalf("self pointer = %#x, want %#x", selfPtr, b.Base())
	}
}
