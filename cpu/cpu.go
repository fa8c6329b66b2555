// Package cpu holds the per-guest-thread architectural state: general
// registers, flags, SIMD/FPU state, segment bases, and the control fields
// the dispatcher and fork governor consult between blocks.
//
// The register layout and the deferred-flags scratch follow the teacher's
// RecompilerVM slot layout (pvm/recompiler/recompiler.go: gasSlotIndex,
// pcSlotIndex, vmStateSlotIndex, ...) — a flat, fixed-offset struct that the
// prolog/epilog trampolines load and spill through, so the host-register
// mapping never has to chase a pointer chain.
package cpu

import "sync/atomic"

// General-purpose register indices, fixed so direct-linked jumps can assume
// the same guest-GPR-to-host-register mapping in every translated block
// (spec.md §4.4: "Mapping is fixed (not per-block)").
const (
	RAX = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	NumGPR
)

// Segment selector indices; only FS and GS carry a live base in practice
// (thread-local addressing), per spec.md §3.
const (
	SegES = iota
	SegCS
	SegSS
	SegDS
	SegFS
	SegGS
	NumSeg
)

// Fork request kinds, written by the guest fork wrapper and consumed by the
// dispatcher's fork protocol (spec.md §4.8).
const (
	ForkNone = iota
	ForkPlain
	ForkPty
	ForkVforkLike
)

// Vec128 is a guest SSE/AVX-128 register. The teacher's SIMD lane mapping in
// recompiler.go operates on fixed-width lanes the same way; box64's own
// widening to 256-bit is modeled by doubling this array, see Vec256.
type Vec128 [2]uint64

// Vec256 extends Vec128 to 256-bit (AVX) lanes, per spec.md §3: "extendable
// to 256-bit when the translator supports wider lanes". Only the low 128
// bits are populated until the translator emits AVX-width code.
type Vec256 [4]uint64

// Float80 holds one x87 extended-precision register: 64 bits of
// significand plus a 16-bit sign/exponent word, stored as raw bytes because
// the host FPU format differs from x86's 80-bit extended format and
// round-trips through a helper rather than a native host type.
type Float80 [10]byte

// DeferredFlags is the lazily-materialized arithmetic-flags scratch
// (spec.md §4.5). Each flag-producing instruction writes here instead of
// computing all six architectural flag bits; a consumer reconstructs only
// the bits it needs.
type DeferredFlags struct {
	Op     uint8  // operation kind tag (add, sub, and, shl, ...)
	Width  uint8  // operand width in bytes: 1, 2, 4, or 8
	Op1    uint64 // first operand, zero/sign-extended to 64 bits
	Op2    uint64 // second operand
	Result uint64 // result, as produced by the host instruction
}

// GuestCpu is the per-guest-thread architectural state. One instance exists
// per guest thread and is never shared; the dispatcher loop for a thread is
// the only goroutine that mutates its own GuestCpu, except for the fields a
// signal handler or a bridge may touch while the thread itself is blocked
// at that exact boundary.
type GuestCpu struct {
	GPR   [NumGPR]uint64
	Flags uint64
	RIP   uint64

	XMM [16]Vec256

	FPUStack [8]Float80
	FPUTop   uint8 // top-of-stack index, modulo 8

	SegSelector [NumSeg]uint16
	SegBase     [NumSeg]uint64 // only SegFS/SegGS are live in practice

	Deferred DeferredFlags

	// PendingSyscall is set by a translated block's syscall expansion right
	// before it returns control to the dispatcher, and cleared by the
	// dispatcher loop after it invokes the syscall translator (spec.md
	// §4.2: "spill state, call the syscall translator, reload state,
	// continue"). Unlike Quit/ForkRequest below, this is touched only by
	// the owning thread's own translated code and its own dispatcher loop,
	// never from another goroutine, so it needs no atomic wrapper.
	PendingSyscall bool

	// Quit requests the dispatcher loop return control to its caller.
	// Written by the fork wrapper, the cancellation handler, and the
	// guest exit syscall translator.
	Quit atomic.Bool

	// ForkRequest is one of the Fork* constants; 0 means no pending fork.
	ForkRequest atomic.Int32

	// TLSData points at this thread's TLS block (see threadfork.TLSBlock);
	// stored as a raw pointer because cpu must not import threadfork.
	TLSData uintptr

	// Shared is the process-wide context this thread belongs to.
	Shared SharedContext
}

// SharedContext is the minimal interface GuestCpu needs from the
// process-wide context (spec.md §3's SharedContext), kept narrow here so
// package cpu has no dependency on package sharedctx; *sharedctx.SharedContext
// satisfies this interface.
type SharedContext interface {
	// ForkRecordCount reports how many AtForkRecords are registered, used
	// only for diagnostics/tests (spec.md §8 property 8).
	ForkRecordCount() int
}

// New creates a GuestCpu with a zeroed register file and the given shared
// context, RIP set to entry.
func New(shared SharedContext, entry uint64) *GuestCpu {
	return &GuestCpu{RIP: entry, Shared: shared}
}

// Snapshot returns a copy of the GuestCpu, Shared pointer included. For
// the epilog-idempotence test (spec.md §8 property 4): applying the epilog
// twice without re-running the prolog must be a no-op, which this helper
// does not perform by itself — it exists so tests can snapshot and compare.
func (c *GuestCpu) Snapshot() GuestCpu {
	cp := *c
	return cp
}
