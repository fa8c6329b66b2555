package arena

import "testing"

func TestAllocAndFinalize(t *testing.T) {
	a := New()
	h, err := a.Alloc(64)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if len(h.Code) != 64 {
		t.Fatalf("Code len = %d, want 64", len(h.Code))
	}
	copy(h.Code, []byte{0xc0, 0x03, 0x5f, 0xd6}) // arm64 `ret`
	FlushInstructionCache(h.Code)
	if err := a.Finalize(h); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
}

func TestPurgeReclaimsEmptyRegions(t *testing.T) {
	a := New()
	h, err := a.Alloc(32)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if a.RegionCount() != 1 {
		t.Fatalf("expected 1 region after alloc")
	}
	a.Release(h)
	n, err := a.Purge()
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("Purge reclaimed %d regions, want 1", n)
	}
	if a.RegionCount() != 0 {
		t.Fatalf("expected 0 regions after purge")
	}
}

func TestPurgeKeepsLiveRegions(t *testing.T) {
	a := New()
	_, err := a.Alloc(32)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	n, err := a.Purge()
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 0 {
		t.Fatalf("Purge reclaimed %d regions, want 0 (still in use)", n)
	}
}
