package translator

import (
	"github.com/coldforge/dbt64/codegen"
	"github.com/coldforge/dbt64/cpu"

	"golang.org/x/arch/x86/x86asm"
)

// This file holds the real per-family host expansions for guest
// instruction classes (spec.md §4.2's "expansion policy per guest
// instruction family"), plus the word-count functions Pass 2 (size.go)
// calls. Each word-count function and its matching emit function are
// written side by side so the two can never silently drift apart — the
// byte-exact Pass2/Pass3 agreement spec.md §4.2 requires.
//
// Scope: operands are resolved only for plain 64-bit GPRs (RAX..R15) and
// simple base+disp8/disp9 memory forms; anything else (8/16/32-bit
// sub-registers, scaled-index addressing, x87/SIMD operands) has no
// expansion. Discover consults Supported below, so such an instruction
// ends the block before it and is never handed to the emitters; the
// single-NOP fallback in the emit functions is not reached from
// Translate. ALU coverage includes the two-operand forms (MOV/ADD/SUB/
// AND/OR/XOR/CMP/TEST) and the single-operand forms (INC/DEC/NOT/NEG);
// SHL/SHR/SAR, ADC/SBB, and the wide IMUL/MUL/IDIV/DIV family are not
// covered.
const inlineLookupWords = 14 // MOVImm64(scratch1)=4 + 3*(shiftMaskLoad=1 + BCondOnZero=2) + BR=1

// guestGPRIndex maps a 64-bit x86 GPR name to its cpu.GuestCpu GPR index.
func guestGPRIndex(r x86asm.Reg) (int, bool) {
	switch r {
	case x86asm.RAX:
		return cpu.RAX, true
	case x86asm.RCX:
		return cpu.RCX, true
	case x86asm.RDX:
		return cpu.RDX, true
	case x86asm.RBX:
		return cpu.RBX, true
	case x86asm.RSP:
		return cpu.RSP, true
	case x86asm.RBP:
		return cpu.RBP, true
	case x86asm.RSI:
		return cpu.RSI, true
	case x86asm.RDI:
		return cpu.RDI, true
	case x86asm.R8:
		return cpu.R8, true
	case x86asm.R9:
		return cpu.R9, true
	case x86asm.R10:
		return cpu.R10, true
	case x86asm.R11:
		return cpu.R11, true
	case x86asm.R12:
		return cpu.R12, true
	case x86asm.R13:
		return cpu.R13, true
	case x86asm.R14:
		return cpu.R14, true
	case x86asm.R15:
		return cpu.R15, true
	}
	return 0, false
}

func operandGPR(arg x86asm.Arg) (int, bool) {
	r, ok := arg.(x86asm.Reg)
	if !ok {
		return 0, false
	}
	return guestGPRIndex(r)
}

func gprOffsetWords(idx int) uint16 { return codegen.GPROffset(idx) / 8 }

// --- ALU -----------------------------------------------------------------

// noFlagOp marks an aluKind/unary form that never defines guest flags (MOV,
// NOT), so Pass 1 never sets Materialize for it and emitDeferredWrite is
// never reached regardless of liveness.
const noFlagOp = 0xFF

// deferredWriteWords is the fixed instruction count emitDeferredWrite always
// emits: MOVZ+STRB for Op, MOVZ+STRB for Width, STR for each of Op1/Op2/Result.
const deferredWriteWords = 7

// aluCompute is a host op taking (dst, lhs, rhs); MOV's compute ignores lhs.
type aluCompute func(a *codegen.Assembler, rd, rn, rm codegen.Reg)

type aluKind struct {
	compute       aluCompute
	writesBack    bool
	needsSelfTest bool  // ARM64 has no flag-setting OR/XOR encoding; fake one with a self-ANDS
	flagOp        uint8 // cpu.Op* tag for the deferred-flags scratch, or noFlagOp
}

// aluKindFor picks the host op that actually sets ARM64 NZCV to mirror the
// guest flags this instruction defines (spec.md §4.5: "the host condition
// code... whenever the host ISA has a matching flag-setting form"). ADD/SUB/
// AND have one (ADDS/SUBS/ANDS); OR/XOR do not, so their result is run back
// through ANDS against itself purely to latch N/Z (CF/OF are architecturally
// 0 for x86 OR/XOR, which ANDS also produces for a self-AND).
func aluKindFor(op x86asm.Op) (aluKind, bool) {
	switch op {
	case x86asm.MOV:
		return aluKind{compute: func(a *codegen.Assembler, rd, _, rm codegen.Reg) { a.MOVReg(rd, rm) }, writesBack: true, flagOp: noFlagOp}, true
	case x86asm.ADD:
		return aluKind{compute: (*codegen.Assembler).ADDS, writesBack: true, flagOp: cpu.OpAdd}, true
	case x86asm.SUB:
		return aluKind{compute: (*codegen.Assembler).SUBS, writesBack: true, flagOp: cpu.OpSub}, true
	case x86asm.AND:
		return aluKind{compute: (*codegen.Assembler).ANDS, writesBack: true, flagOp: cpu.OpAnd}, true
	case x86asm.OR:
		return aluKind{compute: (*codegen.Assembler).ORR, writesBack: true, needsSelfTest: true, flagOp: cpu.OpOr}, true
	case x86asm.XOR:
		return aluKind{compute: (*codegen.Assembler).EOR, writesBack: true, needsSelfTest: true, flagOp: cpu.OpXor}, true
	case x86asm.CMP:
		return aluKind{compute: (*codegen.Assembler).SUBS, writesBack: false, flagOp: cpu.OpCmp}, true
	case x86asm.TEST:
		return aluKind{compute: (*codegen.Assembler).ANDS, writesBack: false, flagOp: cpu.OpTest}, true
	}
	return aluKind{}, false
}

// aluOperands resolves a supported two-operand ALU form, or ok=false if
// emitALU would have to fall back to a NOP.
func aluOperands(insn DecodedInsn) (kind aluKind, dstIdx int, srcIdx int, srcImm uint64, srcIsImm bool, ok bool) {
	kind, supported := aluKindFor(insn.Inst.Op)
	if !supported || len(insn.Inst.Args) < 2 {
		return aluKind{}, 0, 0, 0, false, false
	}
	dstIdx, dstOK := operandGPR(insn.Inst.Args[0])
	if !dstOK {
		return aluKind{}, 0, 0, 0, false, false
	}
	switch src := insn.Inst.Args[1].(type) {
	case x86asm.Reg:
		srcIdx, srcOK := guestGPRIndex(src)
		if !srcOK {
			return aluKind{}, 0, 0, 0, false, false
		}
		return kind, dstIdx, srcIdx, 0, false, true
	case x86asm.Imm:
		return kind, dstIdx, 0, uint64(src), true, true
	}
	return aluKind{}, 0, 0, 0, false, false
}

// emitDeferredWrite stores this instruction's flag-producing operands into
// GuestCpu.Deferred (spec.md §4.5), so a consumer across a block boundary
// can reconstruct the guest flags via cpu.ReconstructFlag even when the
// host NZCV set by the fast path above didn't survive that far. Only the
// 64-bit GPR forms expand.go covers reach here, so width is always 8.
// op1Reg/op2Reg/resultReg must still hold the exact values this
// instruction computed — call this before any later instruction clobbers
// them.
func emitDeferredWrite(asm *codegen.Assembler, op uint8, op1Reg, op2Reg, resultReg codegen.Reg) {
	const width = 8
	asm.MOVZ(codegen.X14, uint16(op), 0)
	asm.STRB(codegen.X14, codegen.GuestCpuReg, codegen.OffsetDeferredOp)
	asm.MOVZ(codegen.X14, width, 0)
	asm.STRB(codegen.X14, codegen.GuestCpuReg, codegen.OffsetDeferredWidth)
	asm.STR(op1Reg, codegen.GuestCpuReg, codegen.OffsetDeferredOp1/8)
	asm.STR(op2Reg, codegen.GuestCpuReg, codegen.OffsetDeferredOp2/8)
	asm.STR(resultReg, codegen.GuestCpuReg, codegen.OffsetDeferredResult/8)
}

func aluWordCount(insn DecodedInsn, materialize bool) int {
	if _, _, flagOp, ok := aluUnaryOperands(insn); ok {
		words := 3 // load op1 + compute + store
		if materialize && flagOp != noFlagOp {
			words += deferredWriteWords
		}
		return words
	}
	kind, dstIdx, _, _, srcIsImm, ok := aluOperands(insn)
	_ = dstIdx
	if !ok {
		return 1
	}
	words := 2 // load op1 + compute
	if srcIsImm {
		words += codegen.MOVImm64Words
	} else {
		words++ // load op2
	}
	if kind.needsSelfTest {
		words++
	}
	if kind.writesBack {
		words++
	}
	if materialize && kind.flagOp != noFlagOp {
		words += deferredWriteWords
	}
	return words
}

func emitALU(asm *codegen.Assembler, insn DecodedInsn, materialize bool) {
	if compute, dstIdx, flagOp, ok := aluUnaryOperands(insn); ok {
		dstOff := gprOffsetWords(dstIdx)
		asm.LDR(codegen.X15, codegen.GuestCpuReg, dstOff) // op1
		compute(asm, codegen.X17, codegen.X15)             // result
		asm.STR(codegen.X17, codegen.GuestCpuReg, dstOff)
		if materialize && flagOp != noFlagOp {
			emitDeferredWrite(asm, flagOp, codegen.X15, codegen.Reg(31), codegen.X17)
		}
		return
	}
	kind, dstIdx, srcIdx, srcImm, srcIsImm, ok := aluOperands(insn)
	if !ok {
		asm.NOP()
		return
	}
	dstOff := gprOffsetWords(dstIdx)
	asm.LDR(codegen.X15, codegen.GuestCpuReg, dstOff) // op1
	if srcIsImm {
		asm.MOVImm64(codegen.X16, srcImm) // op2
	} else {
		asm.LDR(codegen.X16, codegen.GuestCpuReg, gprOffsetWords(srcIdx)) // op2
	}
	kind.compute(asm, codegen.X17, codegen.X15, codegen.X16) // result
	if kind.needsSelfTest {
		asm.ANDS(codegen.X17, codegen.X17, codegen.X17)
	}
	if kind.writesBack {
		asm.STR(codegen.X17, codegen.GuestCpuReg, dstOff)
	}
	if materialize && kind.flagOp != noFlagOp {
		emitDeferredWrite(asm, kind.flagOp, codegen.X15, codegen.X16, codegen.X17)
	}
}

// aluUnaryCompute is a host op taking (dst, src) for a single-operand ALU form.
type aluUnaryCompute func(a *codegen.Assembler, rd, rn codegen.Reg)

// aluUnaryOperands resolves INC/DEC/NOT/NEG on a plain 64-bit GPR — the
// only guest single-operand ALU forms expand.go covers; SHL/SHR/SAR (a
// variable shift amount), ADC/SBB (a carry-in from deferred flags), and
// IMUL/MUL/IDIV/DIV (wide multiply/divide results spanning two GPRs) are
// deliberately left to the NOP fallback, tracked in DESIGN.md. INC/DEC/NEG
// use ARM64's flag-setting immediate/self forms (spec.md §4.5); NOT is
// architecturally flag-inert on x86, so it carries noFlagOp.
func aluUnaryOperands(insn DecodedInsn) (compute aluUnaryCompute, dstIdx int, flagOp uint8, ok bool) {
	if len(insn.Inst.Args) < 1 {
		return nil, 0, noFlagOp, false
	}
	dstIdx, dstOK := operandGPR(insn.Inst.Args[0])
	if !dstOK {
		return nil, 0, noFlagOp, false
	}
	switch insn.Inst.Op {
	case x86asm.INC:
		return func(a *codegen.Assembler, rd, rn codegen.Reg) { a.ADDSImm(rd, rn, 1) }, dstIdx, cpu.OpInc, true
	case x86asm.DEC:
		return func(a *codegen.Assembler, rd, rn codegen.Reg) { a.SUBSImm(rd, rn, 1) }, dstIdx, cpu.OpDec, true
	case x86asm.NOT:
		return func(a *codegen.Assembler, rd, rn codegen.Reg) { a.MVN(rd, rn) }, dstIdx, noFlagOp, true
	case x86asm.NEG:
		return func(a *codegen.Assembler, rd, rn codegen.Reg) { a.SUBS(rd, codegen.Reg(31), rn) }, dstIdx, cpu.OpNeg, true
	}
	return nil, 0, noFlagOp, false
}

// --- Load/store ------------------------------------------------------------

func splitMemReg(inst x86asm.Inst) (mem x86asm.Mem, reg x86asm.Reg, isLoad bool, ok bool) {
	if len(inst.Args) < 2 {
		return mem, 0, false, false
	}
	if m, isMem := inst.Args[0].(x86asm.Mem); isMem {
		if r, isReg := inst.Args[1].(x86asm.Reg); isReg {
			return m, r, false, true // store: [mem] = reg
		}
		return mem, 0, false, false
	}
	if r, isReg := inst.Args[0].(x86asm.Reg); isReg {
		if m, isMem := inst.Args[1].(x86asm.Mem); isMem {
			return m, r, true, true // load: reg = [mem]
		}
	}
	return mem, 0, false, false
}

func supportedLoadStore(insn DecodedInsn) bool {
	if insn.Inst.Op != x86asm.MOV {
		return false
	}
	mem, reg, _, ok := splitMemReg(insn.Inst)
	if !ok || mem.Index != 0 || mem.Base == 0 || mem.Base == x86asm.RIP {
		return false
	}
	if _, ok := guestGPRIndex(mem.Base); !ok {
		return false
	}
	if _, ok := guestGPRIndex(reg); !ok {
		return false
	}
	return mem.Disp >= -256 && mem.Disp <= 255
}

func loadStoreWordCount(insn DecodedInsn) int {
	if !supportedLoadStore(insn) {
		return 1
	}
	return 3
}

func emitLoadStore(asm *codegen.Assembler, insn DecodedInsn) {
	if !supportedLoadStore(insn) {
		asm.NOP()
		return
	}
	mem, reg, isLoad, _ := splitMemReg(insn.Inst)
	baseIdx, _ := guestGPRIndex(mem.Base)
	regIdx, _ := guestGPRIndex(reg)
	asm.LDR(codegen.X16, codegen.GuestCpuReg, gprOffsetWords(baseIdx))
	if isLoad {
		asm.LDUR(codegen.X17, codegen.X16, int16(mem.Disp))
		asm.STR(codegen.X17, codegen.GuestCpuReg, gprOffsetWords(regIdx))
	} else {
		asm.LDR(codegen.X17, codegen.GuestCpuReg, gprOffsetWords(regIdx))
		asm.STUR(codegen.X17, codegen.X16, int16(mem.Disp))
	}
}

// --- Stack ops ---------------------------------------------------------

func supportedStackOp(insn DecodedInsn) bool {
	if insn.Inst.Op != x86asm.PUSH && insn.Inst.Op != x86asm.POP {
		return false
	}
	if len(insn.Inst.Args) < 1 {
		return false
	}
	_, ok := operandGPR(insn.Inst.Args[0])
	return ok
}

func stackOpWordCount(insn DecodedInsn) int {
	if !supportedStackOp(insn) {
		return 1
	}
	return 5
}

func emitStackOp(asm *codegen.Assembler, insn DecodedInsn) {
	if !supportedStackOp(insn) {
		asm.NOP()
		return
	}
	regIdx, _ := operandGPR(insn.Inst.Args[0])
	regOff := gprOffsetWords(regIdx)
	rspOff := gprOffsetWords(cpu.RSP)
	switch insn.Inst.Op {
	case x86asm.PUSH:
		asm.LDR(codegen.X16, codegen.GuestCpuReg, rspOff)
		asm.SUBImm(codegen.X16, codegen.X16, 8)
		asm.STR(codegen.X16, codegen.GuestCpuReg, rspOff)
		asm.LDR(codegen.X17, codegen.GuestCpuReg, regOff)
		asm.STUR(codegen.X17, codegen.X16, 0)
	case x86asm.POP:
		asm.LDR(codegen.X16, codegen.GuestCpuReg, rspOff)
		asm.LDUR(codegen.X17, codegen.X16, 0)
		asm.STR(codegen.X17, codegen.GuestCpuReg, regOff)
		asm.ADDImm(codegen.X16, codegen.X16, 8)
		asm.STR(codegen.X16, codegen.GuestCpuReg, rspOff)
	}
}

// --- Syscall ---------------------------------------------------------------

// syscallWordCount: MOVZ+STRB for PendingSyscall, MOVImm64+STR for the
// resume RIP, then the same LDPPost+RET pair EmitMissStub uses to return to
// the dispatcher (spec.md §4.2's "spill state, call the syscall translator,
// reload state, continue" — the guest syscall table itself stays out of
// scope per spec.md §1, but this mechanism is not the table, it's the
// block-exit/resume seam around it).
func syscallWordCount() int {
	return 2 + codegen.MOVImm64Words + 1 + 2
}

// emitSyscall always terminates the block (discover.go already marks
// ClassSyscall a terminal transfer): it has nothing guest-register-resident
// to spill, since every other expansion in this file round-trips its
// operands through GuestCpu on every instruction rather than keeping them
// host-resident across instructions (see emitInstruction's doc comment) —
// so "spill state" here reduces to recording where to resume and handing
// control back to Go. dispatcher.Dispatcher.Run polls PendingSyscall right
// after RunBlock returns and invokes its SyscallTranslator hook before
// resolving the next block at the resume RIP.
func emitSyscall(asm *codegen.Assembler, insn DecodedInsn) {
	resumeRIP := insn.Addr + uint64(insn.Inst.Len)

	asm.MOVZ(codegen.X14, 1, 0)
	asm.STRB(codegen.X14, codegen.GuestCpuReg, codegen.OffsetPendingSyscall)
	asm.MOVImm64(codegen.X14, resumeRIP)
	asm.STR(codegen.X14, codegen.GuestCpuReg, codegen.OffsetRIP/8)

	asm.LDPPost(codegen.X29, codegen.X30, codegen.SP, 2)
	asm.RET(codegen.X30)
}

// --- RIP-relative LEA ----------------------------------------------------

func supportedRIPRelative(insn DecodedInsn) bool {
	if insn.Inst.Op != x86asm.LEA || len(insn.Inst.Args) < 2 {
		return false
	}
	if _, ok := operandGPR(insn.Inst.Args[0]); !ok {
		return false
	}
	mem, ok := insn.Inst.Args[1].(x86asm.Mem)
	return ok && mem.Base == x86asm.RIP
}

func ripRelativeWordCount(insn DecodedInsn) int {
	if !supportedRIPRelative(insn) {
		return 1
	}
	return codegen.MOVImm64Words + 1
}

// emitRIPRelative resolves the effective address entirely at translate
// time: a block's guest instructions, and therefore every RIP-relative
// displacement within it, are fixed once Discovery runs, so unlike a
// register+displacement load there is nothing left to compute at run
// time (spec.md §4.2).
func emitRIPRelative(asm *codegen.Assembler, insn DecodedInsn) {
	if !supportedRIPRelative(insn) {
		asm.NOP()
		return
	}
	dstIdx, _ := operandGPR(insn.Inst.Args[0])
	mem := insn.Inst.Args[1].(x86asm.Mem)
	nextIP := insn.Addr + uint64(insn.Inst.Len)
	effAddr := nextIP + uint64(mem.Disp)
	asm.MOVImm64(codegen.X16, effAddr)
	asm.STR(codegen.X16, codegen.GuestCpuReg, gprOffsetWords(dstIdx))
}

// --- Control transfer ----------------------------------------------------

func directBranchWordCount() int { return codegen.MOVImm64Words + inlineLookupWords }

func emitDirectBranch(asm *codegen.Assembler, insn DecodedInsn, missStubAddr uintptr) {
	asm.MOVImm64(codegen.X17, insn.Target)
	codegen.EmitInlineLookup(asm, codegen.X17, codegen.X16, codegen.X15, 0, uint64(missStubAddr))
}

func returnWordCount() int { return 4 + inlineLookupWords }

// emitReturn pops the return address the corresponding CALL pushed rather
// than resolving any static target — a RET's destination is a run-time
// value, never known at translate time (spec.md §4.2).
func emitReturn(asm *codegen.Assembler, insn DecodedInsn, missStubAddr uintptr) {
	rspOff := gprOffsetWords(cpu.RSP)
	asm.LDR(codegen.X16, codegen.GuestCpuReg, rspOff)
	asm.LDUR(codegen.X17, codegen.X16, 0)
	asm.ADDImm(codegen.X16, codegen.X16, 8)
	asm.STR(codegen.X16, codegen.GuestCpuReg, rspOff)
	codegen.EmitInlineLookup(asm, codegen.X17, codegen.X16, codegen.X15, 0, uint64(missStubAddr))
}

// indirectTargetOperand classifies a JMP/CALL's non-Rel operand.
func indirectTargetWords(insn DecodedInsn) (words int, supported bool) {
	if len(insn.Inst.Args) < 1 {
		return 0, false
	}
	switch arg := insn.Inst.Args[0].(type) {
	case x86asm.Reg:
		if _, ok := guestGPRIndex(arg); ok {
			return 1, true // LDR target from GuestCpu
		}
	case x86asm.Mem:
		if arg.Index == 0 && arg.Base != 0 && arg.Base != x86asm.RIP {
			if _, ok := guestGPRIndex(arg.Base); ok && arg.Disp >= -256 && arg.Disp <= 255 {
				return 2, true // LDR base, LDUR target
			}
		}
	}
	return 0, false
}

func emitIndirectTarget(asm *codegen.Assembler, insn DecodedInsn, targetReg codegen.Reg) {
	switch arg := insn.Inst.Args[0].(type) {
	case x86asm.Reg:
		idx, _ := guestGPRIndex(arg)
		asm.LDR(targetReg, codegen.GuestCpuReg, gprOffsetWords(idx))
	case x86asm.Mem:
		baseIdx, _ := guestGPRIndex(arg.Base)
		asm.LDR(codegen.X16, codegen.GuestCpuReg, gprOffsetWords(baseIdx))
		asm.LDUR(targetReg, codegen.X16, int16(arg.Disp))
	}
}

func indirectJumpWordCount(insn DecodedInsn) int {
	words, ok := indirectTargetWords(insn)
	if !ok {
		return 1
	}
	return words + inlineLookupWords
}

func emitIndirectJump(asm *codegen.Assembler, insn DecodedInsn, missStubAddr uintptr) {
	if _, ok := indirectTargetWords(insn); !ok {
		asm.NOP()
		return
	}
	emitIndirectTarget(asm, insn, codegen.X17)
	codegen.EmitInlineLookup(asm, codegen.X17, codegen.X16, codegen.X15, 0, uint64(missStubAddr))
}

// callWordCount covers both the direct (Rel, Target resolved by Pass 0)
// and the register/memory indirect forms; an unresolvable operand shape
// falls back to a single NOP, same as every other unsupported case here.
func callWordCount(insn DecodedInsn) int {
	const pushSeq = 3 // LDR RSP, SUBImm, STR RSP
	const storeRetAddr = codegen.MOVImm64Words + 1 // MOVImm64 retAddr, STUR
	if insn.HasTarget {
		return pushSeq + storeRetAddr + codegen.MOVImm64Words + inlineLookupWords
	}
	words, ok := indirectTargetWords(insn)
	if !ok {
		return 1
	}
	return pushSeq + storeRetAddr + words + inlineLookupWords
}

func emitCall(asm *codegen.Assembler, insn DecodedInsn, missStubAddr uintptr) {
	if !insn.HasTarget {
		if _, ok := indirectTargetWords(insn); !ok {
			asm.NOP()
			return
		}
	}
	rspOff := gprOffsetWords(cpu.RSP)
	retAddr := insn.Addr + uint64(insn.Inst.Len)

	asm.LDR(codegen.X16, codegen.GuestCpuReg, rspOff)
	asm.SUBImm(codegen.X16, codegen.X16, 8)
	asm.STR(codegen.X16, codegen.GuestCpuReg, rspOff)
	asm.MOVImm64(codegen.X15, retAddr)
	asm.STUR(codegen.X15, codegen.X16, 0)

	if insn.HasTarget {
		asm.MOVImm64(codegen.X17, insn.Target)
	} else {
		emitIndirectTarget(asm, insn, codegen.X17)
	}
	codegen.EmitInlineLookup(asm, codegen.X17, codegen.X16, codegen.X15, 0, uint64(missStubAddr))
}

// --- Conditional branch --------------------------------------------------

func jccCond(op x86asm.Op) (codegen.Cond, bool) {
	switch op {
	case x86asm.JE:
		return codegen.CondEQ, true
	case x86asm.JNE:
		return codegen.CondNE, true
	case x86asm.JS:
		return codegen.CondMI, true
	case x86asm.JNS:
		return codegen.CondPL, true
	case x86asm.JO:
		return codegen.CondVS, true
	case x86asm.JNO:
		return codegen.CondVC, true
	case x86asm.JA:
		return codegen.CondHI, true
	case x86asm.JAE:
		return codegen.CondCS, true
	case x86asm.JB:
		return codegen.CondCC, true
	case x86asm.JBE:
		return codegen.CondLS, true
	case x86asm.JG:
		return codegen.CondGT, true
	case x86asm.JGE:
		return codegen.CondGE, true
	case x86asm.JL:
		return codegen.CondLT, true
	case x86asm.JLE:
		return codegen.CondLE, true
	}
	// JP/JNP (parity) and the J*CXZ family have no NZCV-derived ARM64
	// condition to map onto (x86's PF has no host equivalent, and JCXZ
	// tests a counter register, not flags); left as a documented gap
	// rather than guessed at, see DESIGN.md.
	return 0, false
}

// conditionalBranchWordCount: BCond(1) + [fallthrough: MOVImm64(4) + B(1)]
// + [taken: MOVImm64(4)] + inline lookup shared by both paths.
func conditionalBranchWordCount(insn DecodedInsn) int {
	if _, ok := jccCond(insn.Inst.Op); !ok {
		return 1
	}
	return 1 + (codegen.MOVImm64Words + 1) + codegen.MOVImm64Words + inlineLookupWords
}

func emitConditionalBranch(asm *codegen.Assembler, insn DecodedInsn, missStubAddr uintptr) {
	cond, ok := jccCond(insn.Inst.Op)
	if !ok {
		asm.NOP()
		return
	}
	fallthroughAddr := insn.Addr + uint64(insn.Inst.Len)

	bcondIdx := asm.Len()
	asm.BCond(cond, 0) // patched once the taken path's start is known

	asm.MOVImm64(codegen.X17, fallthroughAddr)
	bIdx := asm.Len()
	asm.B(0) // patched once the shared lookup's start is known

	takenIdx := asm.Len()
	asm.MOVImm64(codegen.X17, insn.Target)

	lookupIdx := asm.Len()
	codegen.EmitInlineLookup(asm, codegen.X17, codegen.X16, codegen.X15, 0, uint64(missStubAddr))

	asm.PatchAt(bcondIdx*4, codegen.EncodeBCond(cond, int32(takenIdx-bcondIdx)))
	asm.PatchAt(bIdx*4, codegen.EncodeB(int32(lookupIdx-bIdx)))
}

// --- Supported gate --------------------------------------------------------

// Supported reports whether insn's class has a real expansion below rather
// than the documented single-NOP fallback, consulting the exact same
// per-class predicates the word-count/emit functions each use so this can
// never drift out of sync with what Emit actually produces. Discovery
// calls this to decide whether an instruction must terminate the block and
// force the interpreter fallback instead of being silently translated as a
// no-op (spec.md §7: "terminate the block before [an untranslatable]
// instruction, emit an exit to the interpreter fallback").
func Supported(insn DecodedInsn) bool {
	switch insn.Class {
	case ClassALU:
		if _, _, _, ok := aluUnaryOperands(insn); ok {
			return true
		}
		_, _, _, _, _, ok := aluOperands(insn)
		return ok
	case ClassLoadStore:
		return supportedLoadStore(insn)
	case ClassStackOp:
		return supportedStackOp(insn)
	case ClassRIPRelative:
		return supportedRIPRelative(insn)
	case ClassDirectBranch:
		return true
	case ClassConditionalBranch:
		_, ok := jccCond(insn.Inst.Op)
		return ok
	case ClassCall:
		if insn.HasTarget {
			return true
		}
		_, ok := indirectTargetWords(insn)
		return ok
	case ClassReturn:
		return true
	case ClassIndirectJump:
		_, ok := indirectTargetWords(insn)
		return ok
	case ClassSyscall:
		return true
	}
	// ClassSIMD has no host vector register file modeled in codegen yet
	// (DESIGN.md), and ClassOther covers whatever classify() didn't
	// recognize; both fall back to the interpreter rather than a silent
	// NOP now that Discover gates on this.
	return false
}
