// Package blockcache implements the translated-block cache: the
// multi-level page table that maps guest addresses to translated blocks
// (spec.md §3 BlockCache, §4.3), and the TranslatedBlock metadata each
// table leaf ultimately points into.
//
// Grounded on the teacher's BasicBlock (pvm/recompiler/basic_block.go),
// which also records a guest-PC-to-host-offset map, a jump classification,
// and per-block gas/size bookkeeping; here the guest/host roles are
// reversed (x86_64 guest, ARM64 host) and the map becomes the literal
// three-level page table spec.md names instead of the teacher's flat Go
// map keyed by PC, since spec.md explicitly requires lookup reachable from
// generated code without re-entering the dispatcher.
package blockcache

import (
	"sync/atomic"

	"github.com/coldforge/dbt64/common"
)

// SidecarEntry maps one guest-instruction offset (from the block's guest
// start) to the host-instruction offset (from the block's host entry) that
// implements it, per spec.md §3's sidecar requirement: used for precise
// fault dispatch when a signal lands inside a block.
type SidecarEntry struct {
	GuestOffset uint32
	HostOffset  uint32
}

// TranslatedBlock is one compiled unit of guest code, spec.md §3.
type TranslatedBlock struct {
	GuestStart uint64
	GuestEnd   uint64 // exclusive

	// HostEntry is the address of the block's post-prolog entry point —
	// the location inline-linked jumps branch to directly (spec.md §4.3).
	HostEntry uintptr
	// HostPrologEntry is the address a dispatcher (rather than an inline
	// link) enters at, which still runs the full prolog.
	HostPrologEntry uintptr

	Sidecar []SidecarEntry

	IntegrityHash common.Hash

	// InUse is incremented on entry and decremented on exit; a block with
	// InUse>0 is pinned against purge.
	InUse atomic.Int32

	// AlwaysVerify is set once a block's source pages have ever been
	// observed writable (spec.md §4.7); such blocks re-hash their source
	// bytes on every entry.
	AlwaysVerify atomic.Bool

	// pendingFree is set by the SMC invalidator; the block is no longer
	// reachable from the cache but may still be InUse>0.
	pendingFree atomic.Bool
}

// Covers reports whether guest address A falls within this block's extent.
func (b *TranslatedBlock) Covers(a uint64) bool {
	return a >= b.GuestStart && a < b.GuestEnd
}

// Enter increments the pin count; callers must pair with Exit.
func (b *TranslatedBlock) Enter() { b.InUse.Add(1) }

// Exit decrements the pin count.
func (b *TranslatedBlock) Exit() { b.InUse.Add(-1) }

// PendingFree reports whether this block has been unpublished by the SMC
// invalidator and is only waiting for InUse to reach zero.
func (b *TranslatedBlock) PendingFree() bool { return b.pendingFree.Load() }

// MarkPendingFree unpublishes the block logically; callers must still
// remove it from the cache table (see Invalidate).
func (b *TranslatedBlock) MarkPendingFree() { b.pendingFree.Store(true) }

// HostOffsetForGuest finds the sidecar entry covering a guest-instruction
// offset, used in the forward direction by the emitter when wiring a
// direct branch target within the same block.
func (b *TranslatedBlock) HostOffsetForGuest(guestOffset uint32) (uint32, bool) {
	// Sidecar entries are monotonic (spec.md §8 property 2), so a linear
	// scan from the end is fine for the block sizes this engine produces;
	// blocks are capped by config.MaxBlockBytes and stay small.
	for i := len(b.Sidecar) - 1; i >= 0; i-- {
		if b.Sidecar[i].GuestOffset == guestOffset {
			return b.Sidecar[i].HostOffset, true
		}
	}
	return 0, false
}

// GuestForHostOffset finds the guest-instruction offset whose host range
// contains hostOffset, used by the signal handler to recover a guest PC
// from a faulting host PC (spec.md §4.7, §9's reverse-lookup requirement).
func (b *TranslatedBlock) GuestForHostOffset(hostOffset uint32) (uint32, bool) {
	best := uint32(0)
	found := false
	for _, e := range b.Sidecar {
		if e.HostOffset <= hostOffset {
			best = e.GuestOffset
			found = true
		} else {
			break
		}
	}
	return best, found
}
