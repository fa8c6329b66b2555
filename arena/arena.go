// Package arena implements the executable-memory allocator: page-aligned,
// W^X-safe regions that hold generated host code and the sidecar/literal
// tables that ride alongside it.
//
// Grounded on the teacher's RecompilerRam (pvm/recompiler/recompiler_memory.go),
// which mmaps a large PROT_NONE region up front and mprotects sub-ranges as
// needed. Here the allocator instead carves many smaller regions on demand
// (spec.md's ExecutableArena is a collection of (base, size) regions, not
// one giant reservation), because guest code size is not known ahead of
// time the way the teacher's fixed 4GiB PVM memory model was.
package arena

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/coldforge/dbt64/log"
)

const (
	// PageSize matches the host's page granularity on both ARM64 Linux
	// targets this engine runs on (4 KiB), per spec.md §3 ExecutableArena.
	PageSize = 4096

	// regionSize is the default size of a freshly carved region; large
	// enough to amortize the mmap syscall across many small blocks.
	regionSize = 2 * 1024 * 1024 // 2 MiB
)

// region is one mmap'd, page-aligned chunk of memory. Allocation within a
// region is a simple bump allocator guarded by the arena's lock; freeing
// individual blocks does not shrink the region — only a purge scan that
// finds the region's blocks are all unreferenced can munmap it.
type region struct {
	mem    []byte // RWX-capable backing memory (mprotect toggles W vs X)
	cursor int    // next free byte offset
	blocks int    // live block count; 0 makes the region purge-eligible
	writable bool // current mprotect state: true = RW, false = RX
}

func newRegion(size int) (*region, error) {
	if size < PageSize {
		size = PageSize
	}
	size = (size + PageSize - 1) &^ (PageSize - 1)
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("arena: mmap %d bytes: %w", size, err)
	}
	return &region{mem: mem, writable: true}, nil
}

func (r *region) free() int {
	return len(r.mem) - r.cursor
}

// setExecutable flips the region from writable (RW) to executable (RX),
// maintaining W^X: a region is never both writable and executable at once.
func (r *region) setExecutable() error {
	if !r.writable {
		return nil
	}
	if err := unix.Mprotect(r.mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("arena: mprotect RX: %w", err)
	}
	r.writable = false
	return nil
}

// setWritable flips the region back to RW so new code can be appended; the
// SMC write-protection path (package smc) additionally tracks guest source
// pages independently of this W^X toggle.
func (r *region) setWritable() error {
	if r.writable {
		return nil
	}
	if err := unix.Mprotect(r.mem, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return fmt.Errorf("arena: mprotect RW: %w", err)
	}
	r.writable = true
	return nil
}

func (r *region) unmap() error {
	return unix.Munmap(r.mem)
}

// Handle identifies one allocation inside an arena: the region it lives in
// and its byte range, so the arena can later locate it for purging.
type Handle struct {
	region *region
	Base   uintptr
	Code   []byte
}

// Arena is the executable-memory allocator: spec.md's ExecutableArena.
// Freeing a region requires all its blocks to be uncached first — Arena
// never unmaps a region with blocks>0.
type Arena struct {
	mu      sync.Mutex
	regions []*region
}

func New() *Arena {
	return &Arena{}
}

// Alloc reserves size bytes of executable memory, growing the arena with a
// fresh region if none has room. Returns the handle with Code sized exactly
// to the request; callers write host instructions into Code, flush the
// instruction cache (FlushInstructionCache), then call Finalize to flip the
// region to RX.
func (a *Arena) Alloc(size int) (*Handle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, r := range a.regions {
		if err := r.setWritable(); err != nil {
			return nil, err
		}
		if r.free() >= size {
			return a.allocFrom(r, size), nil
		}
	}

	want := regionSize
	if size > want {
		want = size
	}
	r, err := newRegion(want)
	if err != nil {
		return nil, err
	}
	a.regions = append(a.regions, r)
	return a.allocFrom(r, size), nil
}

func (a *Arena) allocFrom(r *region, size int) *Handle {
	off := r.cursor
	r.cursor += size
	r.blocks++
	code := r.mem[off : off+size]
	return &Handle{region: r, Base: handleBase(code), Code: code}
}

// Finalize flips the handle's region to executable. The caller must have
// finished writing and i-cache-flushed before calling this, since once a
// region is RX its bytes can no longer be mutated.
func (a *Arena) Finalize(h *Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return h.region.setExecutable()
}

// Release decrements the owning region's live-block count. It does not
// immediately reclaim memory — the bytes stay mapped until a purge scan
// observes blocks==0 for that region, matching spec.md §4.7's "purge scan
// of an arena is the only path to reclaim their executable memory".
func (a *Arena) Release(h *Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h.region.blocks--
	if h.region.blocks < 0 {
		h.region.blocks = 0
	}
}

// Purge unmaps every region with zero live blocks. Returns the number of
// regions reclaimed. This is the "stop-the-world-ish guard" spec.md §5
// mentions: callers should ensure no block inside a candidate region is
// still in_use before calling Purge, since Arena itself does not track
// TranslatedBlock.in_use (that invariant is blockcache's).
func (a *Arena) Purge() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	kept := a.regions[:0]
	reclaimed := 0
	for _, r := range a.regions {
		if r.blocks == 0 {
			if err := r.unmap(); err != nil {
				return reclaimed, err
			}
			reclaimed++
			continue
		}
		kept = append(kept, r)
	}
	a.regions = kept
	if reclaimed > 0 {
		log.Info(log.SMC, "arena purge reclaimed regions", "count", reclaimed)
	}
	return reclaimed, nil
}

// RegionCount reports the number of live regions, for tests and metrics.
func (a *Arena) RegionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.regions)
}
