package translator

// hostWordCountFor returns the exact host instruction count emitInstruction
// will produce for insn. Pass 2 and Pass 3 both derive this from the same
// per-family logic in expand.go, so they can never silently disagree
// (spec.md §4.2: "sizing in pass 2 must agree byte-exactly with emission
// in pass 3") the way a hand-maintained parallel table risked. materialize
// mirrors Analysis.Materialize[i]: only ClassALU's own word count depends on
// it, since only ClassALU ever writes GuestCpu.Deferred (spec.md §4.5).
func hostWordCountFor(insn DecodedInsn, materialize bool) int {
	switch insn.Class {
	case ClassALU:
		return aluWordCount(insn, materialize)
	case ClassLoadStore:
		return loadStoreWordCount(insn)
	case ClassStackOp:
		return stackOpWordCount(insn)
	case ClassRIPRelative:
		return ripRelativeWordCount(insn)
	case ClassDirectBranch:
		return directBranchWordCount()
	case ClassConditionalBranch:
		return conditionalBranchWordCount(insn)
	case ClassCall:
		return callWordCount(insn)
	case ClassReturn:
		return returnWordCount()
	case ClassIndirectJump:
		return indirectJumpWordCount(insn)
	case ClassSyscall:
		return syscallWordCount()
	default:
		// ClassSIMD needs a host vector register file codegen does not
		// model yet (DESIGN.md). ClassOther and any unrecognized shape get
		// a NOP.
		return 1
	}
}

const armInsnBytes = 4

// SizedInsn is one instruction's Pass-2 result: its host byte offset
// within the block and its exact emitted size.
type SizedInsn struct {
	DecodedInsn
	HostOffset uint32
	HostBytes  uint32
	// Materialize mirrors Analysis.Materialize[i]; emitInstruction passes
	// it straight to emitALU, which already accounted for its extra words
	// in hostWordCountFor above (spec.md §4.5).
	Materialize bool
}

// Sizing is Pass 2's output: the exact sidecar offset table and total host
// code size, consumed directly by Pass 3 to allocate the right amount of
// executable memory (spec.md §4.2).
type Sizing struct {
	Insns         []SizedInsn
	TotalHostBytes uint32
	LiteralSlots  int // count of RIP-relative and direct call/jmp instructions carrying a 64-bit constant; Emit writes no literal pool
}

// Size runs Pass 2 over a Discovery/Analysis pair.
func Size(d *Discovery, a *Analysis) *Sizing {
	s := &Sizing{Insns: make([]SizedInsn, len(d.Insns))}
	var offset uint32
	literals := 0

	for i, insn := range d.Insns {
		count := hostWordCountFor(insn, a.Materialize[i])
		hostBytes := uint32(count * armInsnBytes)

		if insn.Class == ClassRIPRelative || needsImmediateLiteral(insn) {
			literals++
		}

		s.Insns[i] = SizedInsn{DecodedInsn: insn, HostOffset: offset, HostBytes: hostBytes, Materialize: a.Materialize[i]}
		offset += hostBytes
	}

	s.TotalHostBytes = offset
	s.LiteralSlots = literals
	return s
}

// needsImmediateLiteral reports whether an instruction is a direct call or
// jump, whose 64-bit target counts toward LiteralSlots. The count is
// informational only: Emit forms every 64-bit constant inline with a
// MOVZ/MOVK sequence (MOVImm64) and writes no literal pool.
func needsImmediateLiteral(insn DecodedInsn) bool {
	return insn.Class == ClassCall || insn.Class == ClassDirectBranch
}
