// Package blockcache's BlockCache is the three-level, byte-granular page
// table from spec.md §3/§4.3: guest address -> host entry point, walked by
// the dispatcher's fast path without taking a lock, and by generated code
// indirectly through the miss stub.
//
// Grounded on the teacher's map[uint64]*BasicBlock cache in
// pvm/recompiler/recompiler.go (x86Blocks), which serves the same
// "guest address to compiled unit" purpose; that map is keyed by a Go map
// (not safe for concurrent lock-free reads and not directly embeddable in
// generated code), so here it is restructured into the literal radix table
// spec.md calls for, addressable from assembly by simple shifts and masks.
package blockcache

import (
	"sync"
	"sync/atomic"
)

const (
	level1Bits = 16
	level2Bits = 16
	level3Bits = 16

	level1Shift = level2Bits + level3Bits
	level2Shift = level3Bits

	level1Size = 1 << level1Bits
	level2Size = 1 << level2Bits
	level3Size = 1 << level3Bits

	level1Mask = level1Size - 1
	level2Mask = level2Size - 1
	level3Mask = level3Size - 1
)

type level3Table struct {
	slots [level3Size]atomic.Uintptr
}

type level2Table struct {
	children [level2Size]atomic.Pointer[level3Table]
}

type level1Table struct {
	children [level1Size]atomic.Pointer[level2Table]
}

// BlockCache maps guest addresses to live TranslatedBlocks and to the raw
// host entry points the page table's leaves hold directly (spec.md §4.3:
// "leaf slots point directly to executable host code, not metadata").
type BlockCache struct {
	root level1Table

	// MissStub is the host address every unpopulated leaf slot effectively
	// resolves to: code that re-enters the dispatcher with the guest
	// address recovered from a register, per spec.md §4.3.
	MissStub uintptr

	mu     sync.RWMutex // guards blocks only
	blocks map[uint64]*TranslatedBlock

	hits      atomic.Int64
	misses    atomic.Int64
	buildMu   sync.Mutex // serializes level-table node creation (double-checked)
}

// New creates an empty cache; missStub must already be a valid,
// already-published host address before any lookups occur.
func New(missStub uintptr) *BlockCache {
	return &BlockCache{
		MissStub: missStub,
		blocks:   make(map[uint64]*TranslatedBlock),
	}
}

func split(addr uint64) (i1, i2, i3 uint32) {
	i1 = uint32((addr >> level1Shift) & level1Mask)
	i2 = uint32((addr >> level2Shift) & level2Mask)
	i3 = uint32(addr & level3Mask)
	return
}

// Lookup is the lock-free fast path: read three atomic pointers/words and
// return the host entry for addr, or ok=false if no block starts there
// (the caller falls back through the dispatcher's slow path).
func (c *BlockCache) Lookup(addr uint64) (hostEntry uintptr, ok bool) {
	i1, i2, i3 := split(addr)
	l2 := c.root.children[i1].Load()
	if l2 == nil {
		c.misses.Add(1)
		return 0, false
	}
	l3 := l2.children[i2].Load()
	if l3 == nil {
		c.misses.Add(1)
		return 0, false
	}
	entry := l3.slots[i3].Load()
	if entry == 0 {
		c.misses.Add(1)
		return 0, false
	}
	c.hits.Add(1)
	return entry, true
}

// leaf returns (creating if necessary) the level-3 table covering addr.
func (c *BlockCache) leaf(addr uint64) *level3Table {
	i1, i2, _ := split(addr)

	l2 := c.root.children[i1].Load()
	if l2 == nil {
		c.buildMu.Lock()
		l2 = c.root.children[i1].Load()
		if l2 == nil {
			l2 = &level2Table{}
			c.root.children[i1].Store(l2)
		}
		c.buildMu.Unlock()
	}

	l3 := l2.children[i2].Load()
	if l3 == nil {
		c.buildMu.Lock()
		l3 = l2.children[i2].Load()
		if l3 == nil {
			l3 = &level3Table{}
			l2.children[i2].Store(l3)
		}
		c.buildMu.Unlock()
	}
	return l3
}

// Publish installs block into the cache: its sidecar and code must already
// be finalized and i-cache-flushed by the caller (the translator's Emit
// pass), so the leaf-slot store below is the single action that makes the
// block visible to other threads (spec.md §4.3's publication ordering).
func (c *BlockCache) Publish(block *TranslatedBlock) {
	c.mu.Lock()
	c.blocks[block.GuestStart] = block
	c.mu.Unlock()

	l3 := c.leaf(block.GuestStart)
	_, _, i3 := split(block.GuestStart)
	l3.slots[i3].Store(block.HostPrologEntry)
}

// Lookup by guest address of a fully owned block, for callers that need
// the metadata (sidecar, integrity hash) rather than just the entry point.
func (c *BlockCache) Get(addr uint64) (*TranslatedBlock, bool) {
	c.mu.RLock()
	b, ok := c.blocks[addr]
	c.mu.RUnlock()
	return b, ok
}

// Containing returns the block whose extent covers addr, if any; used by
// the SMC fault handler and the signal-based fault dispatcher to map an
// arbitrary guest or host address back to its owning block (spec.md §4.7).
func (c *BlockCache) Containing(addr uint64) (*TranslatedBlock, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, b := range c.blocks {
		if b.Covers(addr) {
			return b, true
		}
	}
	return nil, false
}

// Invalidate removes block from the cache and the page table. Every
// reachability path into a block goes through Lookup's radix-table walk
// (spec.md §4.3) rather than a direct-linked branch patched into another
// block's code, so zeroing this block's own leaf slot below is sufficient
// to make it unreachable before it is freed (spec.md §4.7's ordering
// requirement) — there is no predecessor backlink list to rewrite first.
func (c *BlockCache) Invalidate(block *TranslatedBlock) {
	block.MarkPendingFree()

	l3 := c.leaf(block.GuestStart)
	_, _, i3 := split(block.GuestStart)
	l3.slots[i3].Store(0)

	c.mu.Lock()
	delete(c.blocks, block.GuestStart)
	c.mu.Unlock()
}

// Range calls fn for every live block; fn must not call back into the
// cache. Used by the purge scan (spec.md §6) to find InUse==0 candidates.
func (c *BlockCache) Range(fn func(*TranslatedBlock)) {
	c.mu.RLock()
	blocks := make([]*TranslatedBlock, 0, len(c.blocks))
	for _, b := range c.blocks {
		blocks = append(blocks, b)
	}
	c.mu.RUnlock()
	for _, b := range blocks {
		fn(b)
	}
}

// Stats reports cumulative hit/miss counts for the fast-path Lookup.
func (c *BlockCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Len reports the number of currently published blocks.
func (c *BlockCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks)
}
