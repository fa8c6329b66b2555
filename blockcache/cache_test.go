package blockcache

import (
	"testing"
)

const fakeMissStub = uintptr(0xdead0000)

func newTestBlock(start, end uint64, hostEntry uintptr) *TranslatedBlock {
	return &TranslatedBlock{
		GuestStart:      start,
		GuestEnd:        end,
		HostEntry:       hostEntry,
		HostPrologEntry: hostEntry,
	}
}

func TestLookupMissBeforePublish(t *testing.T) {
	c := New(fakeMissStub)
	if _, ok := c.Lookup(0x400000); ok {
		t.Fatalf("expected miss on empty cache")
	}
	hits, misses := c.Stats()
	if hits != 0 || misses != 1 {
		t.Fatalf("stats = %d/%d, want 0/1", hits, misses)
	}
}

func TestPublishAndLookup(t *testing.T) {
	c := New(fakeMissStub)
	b := newTestBlock(0x400000, 0x400010, 0x1000)
	c.Publish(b)

	entry, ok := c.Lookup(0x400000)
	if !ok || entry != 0x1000 {
		t.Fatalf("Lookup = %x,%v want 0x1000,true", entry, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("Len = %d, want 1", c.Len())
	}
}

func TestContaining(t *testing.T) {
	c := New(fakeMissStub)
	b := newTestBlock(0x400000, 0x400020, 0x1000)
	c.Publish(b)

	got, ok := c.Containing(0x400010)
	if !ok || got != b {
		t.Fatalf("Containing(0x400010) failed to find block")
	}
	if _, ok := c.Containing(0x500000); ok {
		t.Fatalf("Containing should not find unrelated address")
	}
}

func TestInvalidateRemovesAndMarksPendingFree(t *testing.T) {
	c := New(fakeMissStub)
	b := newTestBlock(0x400000, 0x400010, 0x1000)
	c.Publish(b)

	c.Invalidate(b)

	if _, ok := c.Lookup(0x400000); ok {
		t.Fatalf("expected miss after invalidate")
	}
	if !b.PendingFree() {
		t.Fatalf("expected block marked pending-free")
	}
}

func TestRangeVisitsAllBlocks(t *testing.T) {
	c := New(fakeMissStub)
	c.Publish(newTestBlock(0x400000, 0x400010, 0x1000))
	c.Publish(newTestBlock(0x500000, 0x500010, 0x2000))

	seen := 0
	c.Range(func(b *TranslatedBlock) { seen++ })
	if seen != 2 {
		t.Fatalf("Range visited %d blocks, want 2", seen)
	}
}

func TestEnterExitPinCount(t *testing.T) {
	b := newTestBlock(0x400000, 0x400010, 0x1000)
	b.Enter()
	b.Enter()
	if b.InUse.Load() != 2 {
		t.Fatalf("InUse = %d, want 2", b.InUse.Load())
	}
	b.Exit()
	if b.InUse.Load() != 1 {
		t.Fatalf("InUse = %d, want 1", b.InUse.Load())
	}
}

func TestSidecarOffsetLookup(t *testing.T) {
	b := newTestBlock(0x400000, 0x400020, 0x1000)
	b.Sidecar = []SidecarEntry{
		{GuestOffset: 0, HostOffset: 0},
		{GuestOffset: 3, HostOffset: 8},
		{GuestOffset: 7, HostOffset: 20},
	}

	host, ok := b.HostOffsetForGuest(3)
	if !ok || host != 8 {
		t.Fatalf("HostOffsetForGuest(3) = %d,%v want 8,true", host, ok)
	}

	guest, ok := b.GuestForHostOffset(15)
	if !ok || guest != 3 {
		t.Fatalf("GuestForHostOffset(15) = %d,%v want 3,true", guest, ok)
	}
}
