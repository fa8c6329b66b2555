// Package threadfork implements the thread & fork governor (spec.md §4.8):
// ThreadHandle lifecycle, the deferred-fork protocol run by the dispatcher
// when GuestCpu.ForkRequest is set, and the cancellation cleanup stack.
//
// Grounded on the teacher's per-VM lifecycle pattern in
// pvm/recompiler/recompiler.go (a VM struct created before a run and torn
// down after, with explicit setup/teardown methods) — generalized from a
// single-shot benchmark VM to a long-lived, forkable guest thread, since
// the teacher never modeled a thread or fork governor at all (PVM
// execution in the teacher is single-threaded per call).
package threadfork

import (
	"sync"

	"github.com/coldforge/dbt64/cpu"
	"github.com/coldforge/dbt64/log"
	"github.com/coldforge/dbt64/sharedctx"
)

// CleanupRecord is one pthread_cleanup_push registration: a guest-visible
// jmp_buf address plus the cleanup routine's guest entry (spec.md §4.8).
type CleanupRecord struct {
	JmpBufAddr uint64
	RoutineAddr uint64
	ArgAddr    uint64
}

// ThreadHandle wraps a GuestCpu with its entry point, argument, and
// cancellation stack (spec.md §3).
type ThreadHandle struct {
	Cpu   *cpu.GuestCpu
	Entry uint64
	Arg   uint64

	mu       sync.Mutex
	cleanups []CleanupRecord

	// HostSelf is a host-level thread identifier (e.g. goroutine-local
	// handle), opaque to this package.
	HostSelf uintptr
}

// New creates a ThreadHandle around a freshly constructed GuestCpu.
func New(shared cpu.SharedContext, entry, arg uint64) *ThreadHandle {
	return &ThreadHandle{
		Cpu:   cpu.New(shared, entry),
		Entry: entry,
		Arg:   arg,
	}
}

// PushCleanup registers a cancellation cleanup record, most-recent first
// (spec.md §4.8: "The cleanup stack is LIFO").
func (h *ThreadHandle) PushCleanup(r CleanupRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleanups = append(h.cleanups, r)
}

// PopCleanup removes and returns the most recently pushed cleanup record.
func (h *ThreadHandle) PopCleanup() (CleanupRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.cleanups) == 0 {
		return CleanupRecord{}, false
	}
	last := len(h.cleanups) - 1
	r := h.cleanups[last]
	h.cleanups = h.cleanups[:last]
	return r, true
}

// CleanupDepth reports how many cleanup records are pending, for tests and
// diagnostics.
func (h *ThreadHandle) CleanupDepth() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.cleanups)
}

// RunCancellation walks the cleanup stack LIFO, invoking runOne for each
// record until the stack is empty or runOne reports it should stop
// (spec.md §4.8: "walks this stack on cancellation ... for each record
// performs a guest-level long-jump into the cleanup code and re-enters the
// dispatcher until the cleanup signals completion"). runOne returning
// false aborts the walk early (e.g. the guest cleanup itself raised
// another cancellation).
func (h *ThreadHandle) RunCancellation(runOne func(CleanupRecord) bool) {
	for {
		rec, ok := h.PopCleanup()
		if !ok {
			h.Cpu.Quit.Store(true)
			return
		}
		if !runOne(rec) {
			return
		}
	}
}

// shared is the narrow view threadfork needs of sharedctx.SharedContext;
// satisfied directly by *sharedctx.SharedContext.
type shared interface {
	ForkRecords() []sharedctx.AtForkRecord
}

// RunForkProtocol executes the deferred-fork sequence of spec.md §4.8
// through the host fork and the parent/child callbacks, and returns the
// fork-call return value; it does not write that value into the guest
// result register and does not clear ForkRequest or Quit, which is left to
// the caller. hostFork performs the actual host fork (or
// pty-fork) primitive and returns the fork-call return value plus whether
// this goroutine is the parent; prepareFn/parentFn/childFn invoke one
// guest callback each, given its guest function pointer (0 means unset,
// skip); reinitLocks runs only in the child and must reinitialize every
// lock spec.md §5 names (SharedContext's cache/TLS/fork-list locks, the
// executable-memory allocator lock).
func RunForkProtocol(
	s shared,
	kind int32,
	hostFork func() (result int64, isParent bool),
	prepareFn, parentFn, childFn func(guestFuncPtr uint64),
	reinitLocks func(),
	blockParentOnChild func(),
) int64 {
	records := s.ForkRecords()

	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Prepare != 0 {
			prepareFn(records[i].Prepare)
		}
	}

	result, isParent := hostFork()

	if isParent {
		for _, r := range records {
			if r.Parent != 0 {
				parentFn(r.Parent)
			}
		}
		if kind == cpu.ForkVforkLike {
			blockParentOnChild()
		}
	} else {
		for _, r := range records {
			if r.Child != 0 {
				childFn(r.Child)
			}
		}
		reinitLocks()
	}

	log.Info(log.Fork, "fork protocol completed", "kind", kind, "isParent", isParent)
	return result
}
