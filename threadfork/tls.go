package threadfork

import (
	"unsafe"

	"github.com/coldforge/dbt64/sharedctx"
)

// TLSAlignment is the block alignment spec.md §4.8 requires: "padded to a
// 64 KiB boundary".
const TLSAlignment = 64 * 1024

// tcbHeaderSize is the thread-control header at block offset zero: self
// pointer, DTV pointer, stack canary (spec.md §4.8). Modeled as three
// 8-byte words; real glibc TCBs carry more, but only these three fields
// have any bearing on this engine's contract with translated code (the
// segment base just needs to resolve __thread accesses and hold the stack
// canary).
const (
	tcbOffsetSelf   = 0
	tcbOffsetDTV    = 8
	tcbOffsetCanary = 16
	tcbHeaderSize   = 24
)

// TLSBlock is one thread's allocated TLS region, block-aligned per
// spec.md §4.8. baseOffset is the byte offset of the TCB header (and
// hence the segment base) within mem; everything below it is the
// negative-offset `__thread` variable region, everything above it through
// tcbHeaderSize+len(template) is the copied per-ELF TLS image.
type TLSBlock struct {
	mem        []byte
	baseOffset int
}

// NewTLSBlock allocates and initializes a TLS block from shared's master
// template: the thread-control header goes at offset zero relative to the
// segment base, the per-ELF TLS images populate the dynamic-thread-vector
// entries above it, and `__thread` variables occupy the negative-offset
// region below the base (spec.md §4.8). canary is a per-process or
// per-thread random value the caller supplies (stack-protector canaries
// must not be predictable).
func NewTLSBlock(shared *sharedctx.SharedContext, canary uint64) *TLSBlock {
	template, size := shared.TLSTemplate()

	total := size + tcbHeaderSize
	total = (total + TLSAlignment - 1) &^ (TLSAlignment - 1)

	mem := make([]byte, total)
	negativeRegion := total - tcbHeaderSize - len(template)
	if negativeRegion < 0 {
		negativeRegion = 0
	}

	b := &TLSBlock{mem: mem, baseOffset: negativeRegion}

	base := b.Base()
	putUint64(mem, b.baseOffset+tcbOffsetSelf, uint64(base))
	putUint64(mem, b.baseOffset+tcbOffsetDTV, uint64(base)+tcbHeaderSize)
	putUint64(mem, b.baseOffset+tcbOffsetCanary, canary)

	copy(mem[b.baseOffset+tcbHeaderSize:], template)

	return b
}

// Base returns the block's base address — what GuestCpu.SegBase[SegFS] (or
// SegGS, per the guest ABI's convention) is set to (spec.md §4.8: "The
// designated segment base in GuestCpu is set to the block's base").
func (b *TLSBlock) Base() uintptr {
	if len(b.mem) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b.mem[0])) + uintptr(b.baseOffset)
}

// Canary reads back the stack canary at its fixed offset.
func (b *TLSBlock) Canary() uint64 {
	return getUint64(b.mem, b.baseOffset+tcbOffsetCanary)
}

func putUint64(mem []byte, offset int, v uint64) {
	for i := 0; i < 8; i++ {
		mem[offset+i] = byte(v >> (8 * i))
	}
}

func getUint64(mem []byte, offset int) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(mem[offset+i]) << (8 * i)
	}
	return v
}
