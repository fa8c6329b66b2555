// Package smc implements self-modifying-code detection (spec.md §4.7):
// tracking guest code pages that have taken a write fault, invalidating
// affected translated blocks on such a fault, and the always_verify
// re-hash-on-entry path for blocks compiled from a page that has ever been
// seen writable. The package does not change page protections itself: it
// makes no mprotect call, and protecting and unprotecting guest code pages
// is left to the caller that installs the fault handler.
//
// Grounded on the teacher's page-protection-free model (the PVM recompiler
// never needed SMC detection since PVM bytecode pages are immutable by
// construction) — there is no direct teacher analog, so this package
// follows spec.md §4.7 directly.
package smc

import (
	"sync"

	"github.com/coldforge/dbt64/arena"
	"github.com/coldforge/dbt64/blockcache"
	"github.com/coldforge/dbt64/common"
	"github.com/coldforge/dbt64/log"
	"github.com/coldforge/dbt64/perf"
)

// Detector tracks which guest pages have been observed writable on
// behalf of the translator and answers the translator's
// PageWritabilityChecker query during Discovery.
type Detector struct {
	mu sync.Mutex
	// writable records guest pages (by page-aligned address) that have
	// been observed writable at least once; blocks compiled from such a
	// page must set AlwaysVerify (spec.md §4.7 step 3).
	writable map[uint64]bool

	cache    *blockcache.BlockCache
	counters *perf.Counters
}

// New creates a Detector bound to cache for invalidation and counters for
// metrics (counters may be nil).
func New(cache *blockcache.BlockCache, counters *perf.Counters) *Detector {
	return &Detector{
		writable: make(map[uint64]bool),
		cache:    cache,
		counters: counters,
	}
}

func pageOf(addr uint64) uint64 {
	return addr &^ uint64(arena.PageSize-1)
}

// IsWritable implements translator.PageWritabilityChecker: Pass 0 consults
// this before extending a block across addr's page so SMC cannot silently
// extend a block onto a writable page (spec.md §4.2).
func (d *Detector) IsWritable(addr uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writable[pageOf(addr)]
}

// HandleFault is the host page-fault handler's entry point for a write
// fault on a guest code page: it invalidates every affected block, then
// the caller (the real signal handler, outside this package's scope per
// spec.md §1's "out of scope" boundary) unprotects the page and resumes
// the faulting instruction (spec.md §4.7, steps 1-2).
func (d *Detector) HandleFault(faultAddr uint64) {
	page := pageOf(faultAddr)
	pageEnd := page + arena.PageSize

	d.mu.Lock()
	d.writable[page] = true
	d.mu.Unlock()

	var affected []*blockcache.TranslatedBlock
	d.cache.Range(func(b *blockcache.TranslatedBlock) {
		if rangesOverlap(b.GuestStart, b.GuestEnd, page, pageEnd) {
			affected = append(affected, b)
		}
	})

	for _, b := range affected {
		d.cache.Invalidate(b)
		if d.counters != nil {
			d.counters.BlocksInvalidated.Add(1)
		}
	}

	log.Info(log.SMC, "invalidated blocks on guest write fault", "page", page, "count", len(affected))
}

func rangesOverlap(aStart, aEnd, bStart, bEnd uint64) bool {
	return aStart < bEnd && bStart < aEnd
}

// AlwaysVerifyForNewBlock reports whether a block about to be compiled
// starting at guestStart should be marked AlwaysVerify, because its source
// page has ever been observed writable (spec.md §4.7 step 3: "flags every
// future block compiled for that page").
func (d *Detector) AlwaysVerifyForNewBlock(guestStart uint64) bool {
	return d.IsWritable(guestStart)
}

// VerifyOnEntry re-hashes a block's source bytes and self-invalidates if
// they no longer match the compile-time hash (spec.md §4.7: "must re-hash
// their source bytes on each entry ... if the hash differs from the
// compile-time value"). Returns true if the block is still valid.
func (d *Detector) VerifyOnEntry(b *blockcache.TranslatedBlock, currentSourceBytes []byte) bool {
	if !b.AlwaysVerify.Load() {
		return true
	}
	if common.Blake2Hash(currentSourceBytes) == b.IntegrityHash {
		return true
	}
	d.cache.Invalidate(b)
	if d.counters != nil {
		d.counters.BlocksInvalidated.Add(1)
	}
	log.Warn(log.SMC, "always_verify block failed re-hash, invalidated",
		"guestStart", b.GuestStart)
	return false
}
