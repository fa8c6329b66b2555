package translator

import (
	"github.com/coldforge/dbt64/cpu"
	"golang.org/x/arch/x86/x86asm"
)

// FlagLiveness records, per instruction index, which guest flag bits a
// later instruction might observe (spec.md §4.2 Pass 1: "propagates flag
// liveness backward"). A flag not live at an instruction's output need not
// be materialized into GuestCpu.Flags; it can be left in the deferred-flags
// scratch or dropped entirely if the producing instruction is itself
// overwritten before any consumer.
type FlagLiveness struct {
	// LiveOut[i] is the bitmask (cpu.Flag* bits) of flags some later
	// instruction (or the block exit) may read, as observed going forward
	// from instruction i.
	LiveOut []uint64
}

// SimdSlot is a barrier-scoped allocation of a guest SIMD/FPU value to a
// host SIMD register, valid from its definition to the next barrier
// (spec.md §4.2 Pass 1: "subject to a spill point at every intra-block
// branch target").
type SimdSlot struct {
	GuestReg  int // index into GuestCpu.XMM, or -1 for an FPU stack slot
	HostReg   int // host vector register number
	DefInsn   int
	SpillInsn int // index of the barrier this slot must be spilled before; -1 if none
}

// Analysis is Pass 1's output, consumed by Pass 2 (sizing) and Pass 3
// (emission).
type Analysis struct {
	Liveness   FlagLiveness
	SimdSlots  []SimdSlot
	// Materialize[i] is true when instruction i's flag results must be
	// written into GuestCpu.Flags rather than left as a host condition
	// code, because a later instruction (or the block exit) observes them
	// through a path the host condition codes cannot satisfy (e.g. the
	// flags are read by a bridge call rather than a conditional branch in
	// the same block).
	Materialize []bool
}

// barriers returns the instruction indices that are intra-block branch
// targets — the "barrier" points Pass 1 forces SIMD slots to spill at.
func barriers(d *Discovery) map[int]bool {
	b := make(map[int]bool, len(d.Labels))
	for _, idx := range d.Labels {
		b[idx] = true
	}
	return b
}

// Analyze runs Pass 1 over a Pass 0 Discovery.
func Analyze(d *Discovery) *Analysis {
	n := len(d.Insns)
	a := &Analysis{
		Liveness:    FlagLiveness{LiveOut: make([]uint64, n)},
		Materialize: make([]bool, n),
	}
	barrierSet := barriers(d)

	// Backward flag-liveness sweep: a flag bit is live-out of instruction i
	// if some later instruction (or the block exit) consumes it before it is
	// next redefined. The block exit observes every deferred flag.
	liveIn := uint64(cpu.FlagCF | cpu.FlagPF | cpu.FlagAF | cpu.FlagZF | cpu.FlagSF | cpu.FlagOF)
	for i := n - 1; i >= 0; i-- {
		a.Liveness.LiveOut[i] = liveIn
		insn := d.Insns[i]
		consumed := consumesFlags(insn)
		defined := definesFlags(insn)
		liveIn = (liveIn &^ defined) | consumed
	}

	// Materialize attaches to the instruction that actually defines the
	// flags, not to whatever instruction happens to sit before a barrier:
	// an instruction with no flag-defining effect (definesFlags == 0) can
	// never need a Deferred write, and one that does define flags needs it
	// exactly when something later observes them — which LiveOut[i] already
	// answers, regardless of where the next barrier falls (spec.md §4.5).
	// A conditional branch consumes flags via the host's own NZCV from the
	// immediately preceding flag-setting host op and never defines any
	// itself, so it naturally never materializes under this rule.
	for i, insn := range d.Insns {
		if definesFlags(insn) != 0 {
			a.Materialize[i] = a.Liveness.LiveOut[i] != 0
		}
	}

	a.SimdSlots = allocateSimdSlots(d, barrierSet)
	return a
}

// definesFlags returns the flag bits an instruction's execution redefines,
// conservatively including the full arithmetic set for any ALU class
// instruction (spec.md §4.5 names CF/PF/AF/ZF/SF/OF as the deferred set) —
// except the register-move family and NOT, which x86 defines as leaving
// every flag untouched despite decode.go classifying them ClassALU.
func definesFlags(insn DecodedInsn) uint64 {
	if insn.Class != ClassALU {
		return 0
	}
	switch insn.Inst.Op {
	case x86asm.MOV, x86asm.MOVZX, x86asm.MOVSX, x86asm.MOVSXD, x86asm.NOT:
		return 0
	}
	return cpu.FlagCF | cpu.FlagPF | cpu.FlagAF | cpu.FlagZF | cpu.FlagSF | cpu.FlagOF
}

// consumesFlags returns the flag bits a conditional branch observes; no
// other instruction class is counted as reading flags.
func consumesFlags(insn DecodedInsn) uint64 {
	if insn.Class != ClassConditionalBranch {
		return 0
	}
	switch insn.Inst.Op {
	case 0: // unresolved, defensive
		return 0
	}
	// Every Jcc reads some subset of {CF,ZF,SF,OF,PF}; conservatively treat
	// all conditional branches as reading the full set rather than
	// decoding the exact predicate, since over-approximating liveness only
	// costs a few redundant materializations, never a correctness bug.
	return cpu.FlagCF | cpu.FlagPF | cpu.FlagZF | cpu.FlagSF | cpu.FlagOF
}

// allocateSimdSlots assigns host vector registers to guest SIMD/FPU
// operations, scoped between barriers (spec.md §4.2 Pass 1).
func allocateSimdSlots(d *Discovery, barrierSet map[int]bool) []SimdSlot {
	const numHostVectorRegs = 16
	var slots []SimdSlot
	next := 0
	nextBarrierAfter := func(from int) int {
		for i := from + 1; i < len(d.Insns); i++ {
			if barrierSet[i] {
				return i
			}
		}
		return -1
	}
	for i, insn := range d.Insns {
		if insn.Class != ClassSIMD {
			continue
		}
		slots = append(slots, SimdSlot{
			GuestReg:  simdGuestRegOperand(insn),
			HostReg:   next % numHostVectorRegs,
			DefInsn:   i,
			SpillInsn: nextBarrierAfter(i),
		})
		next++
	}
	return slots
}

// simdGuestRegOperand extracts the destination XMM register index from a
// SIMD instruction's first argument, or -1 if it does not name one
// directly (e.g. a memory operand).
func simdGuestRegOperand(insn DecodedInsn) int {
	if len(insn.Inst.Args) == 0 || insn.Inst.Args[0] == nil {
		return -1
	}
	if r, ok := insn.Inst.Args[0].(x86asm.Reg); ok && r >= x86asm.X0 && r <= x86asm.X15 {
		return int(r - x86asm.X0)
	}
	return -1
}
