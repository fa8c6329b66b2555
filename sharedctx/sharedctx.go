// Package sharedctx implements SharedContext (spec.md §3): the
// process-wide state every GuestCpu carries a pointer to — the loaded-ELF
// table, the block cache, the fork-callback list, and the TLS master
// template, each behind its own lock as spec.md requires.
//
// Grounded on the teacher's Runtime/StateDB pattern (pvm/runtime.go),
// which plays the same "one process-wide handle threaded through every
// per-VM object" role; here it is narrowed to the four concerns spec.md
// actually names instead of the teacher's full JAM state trie.
package sharedctx

import (
	"sync"

	"github.com/coldforge/dbt64/blockcache"
)

// ELFImage records one loaded guest ELF's mapped range, handed to this
// engine by the external loader (spec.md §1 Out of scope: "ELF parsing,
// loader" — we only record what the loader reports).
type ELFImage struct {
	Path       string
	LoadBase   uint64
	LoadExtent uint64 // exclusive end of the mapped range
	// TLSTemplate is this image's initial TLS data, copied into each
	// thread's TLS block's dynamic-thread-vector entry at thread creation
	// (spec.md §4.8).
	TLSTemplate []byte
}

// AtForkRecord is a guest-registered pthread_atfork triple plus an owner
// tag used to drop a library's callbacks on dlclose (spec.md §3).
type AtForkRecord struct {
	Prepare uint64 // guest function pointer, 0 if unset
	Parent  uint64
	Child   uint64
	Owner   uintptr // opaque handle identifying the registering library
}

// SharedContext is the process-wide instance every GuestCpu references
// (spec.md §3's "pointer to the shared context").
type SharedContext struct {
	elfMu sync.RWMutex
	elfs  []*ELFImage

	Cache *blockcache.BlockCache

	forkMu   sync.Mutex
	forkList []AtForkRecord

	tlsMu       sync.Mutex
	tlsTemplate []byte
	tlsSize     int
}

// New creates a SharedContext with a cache already seeded with a
// dispatcher-provided miss stub address.
func New(missStub uintptr) *SharedContext {
	return &SharedContext{
		Cache: blockcache.New(missStub),
	}
}

// RegisterELF appends a loaded image to the table.
func (s *SharedContext) RegisterELF(img *ELFImage) {
	s.elfMu.Lock()
	defer s.elfMu.Unlock()
	s.elfs = append(s.elfs, img)
}

// ELFContaining returns the image whose mapped range covers addr, if any.
func (s *SharedContext) ELFContaining(addr uint64) (*ELFImage, bool) {
	s.elfMu.RLock()
	defer s.elfMu.RUnlock()
	for _, img := range s.elfs {
		if addr >= img.LoadBase && addr < img.LoadExtent {
			return img, true
		}
	}
	return nil, false
}

// ELFs returns a snapshot of loaded images.
func (s *SharedContext) ELFs() []*ELFImage {
	s.elfMu.RLock()
	defer s.elfMu.RUnlock()
	out := make([]*ELFImage, len(s.elfs))
	copy(out, s.elfs)
	return out
}

// RegisterAtFork appends a fork-callback record, in registration order —
// the order threadfork's parent/child phases must preserve (spec.md §9,
// POSIX pthread_atfork ordering).
func (s *SharedContext) RegisterAtFork(r AtForkRecord) {
	s.forkMu.Lock()
	defer s.forkMu.Unlock()
	s.forkList = append(s.forkList, r)
}

// UnregisterAtForkOwner drops every record belonging to owner, used when a
// library is unloaded.
func (s *SharedContext) UnregisterAtForkOwner(owner uintptr) {
	s.forkMu.Lock()
	defer s.forkMu.Unlock()
	kept := s.forkList[:0]
	for _, r := range s.forkList {
		if r.Owner != owner {
			kept = append(kept, r)
		}
	}
	s.forkList = kept
}

// ForkRecords returns a snapshot of all registered records, in
// registration order.
func (s *SharedContext) ForkRecords() []AtForkRecord {
	s.forkMu.Lock()
	defer s.forkMu.Unlock()
	out := make([]AtForkRecord, len(s.forkList))
	copy(out, s.forkList)
	return out
}

// ForkRecordCount implements cpu.SharedContext.
func (s *SharedContext) ForkRecordCount() int {
	s.forkMu.Lock()
	defer s.forkMu.Unlock()
	return len(s.forkList)
}

// SetTLSTemplate installs the combined master TLS image (concatenation of
// every loaded image's TLS data) and its total padded size; called once
// the loader has finished registering ELF images (spec.md §3).
func (s *SharedContext) SetTLSTemplate(template []byte, size int) {
	s.tlsMu.Lock()
	defer s.tlsMu.Unlock()
	s.tlsTemplate = template
	s.tlsSize = size
}

// TLSTemplate returns the master template and its block size.
func (s *SharedContext) TLSTemplate() ([]byte, int) {
	s.tlsMu.Lock()
	defer s.tlsMu.Unlock()
	return s.tlsTemplate, s.tlsSize
}
