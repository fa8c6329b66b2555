// Package translator implements the four-pass compilation pipeline that
// turns a run of guest x86_64 bytes into one TranslatedBlock (spec.md §4.2):
// discovery, analysis, sizing, emission.
//
// Grounded on the driving loop in the teacher's
// pvm/recompiler/recompiler.go (decode-classify-emit over a straight-line
// instruction run, terminating the block at a transfer-of-control
// instruction), generalized from PVM bytecode to real x86_64 machine code
// decoded through golang.org/x/arch/x86/x86asm — the teacher only ever
// used that package to disassemble already-generated host x86 test
// fixtures for debugging (x86_execute.go); here it becomes the actual
// guest instruction decoder Pass 0 depends on.
package translator

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// DecodedInsn is one guest instruction as seen by Pass 0, holding both the
// raw x86asm.Inst and the classification Pass 0 derives from it.
type DecodedInsn struct {
	Addr   uint64
	Inst   x86asm.Inst
	Raw    []byte
	Class  InsnClass
	Target uint64 // resolved intra-block branch target, if Class is a branch
	HasTarget bool
}

// InsnClass is the coarse category Pass 0 assigns each instruction, driving
// both block-termination decisions (spec.md §4.2) and which expansion
// policy Pass 3 uses.
type InsnClass int

const (
	ClassOther InsnClass = iota
	ClassALU
	ClassLoadStore
	ClassStackOp
	ClassRIPRelative
	ClassDirectBranch   // intra- or inter-block unconditional jump
	ClassConditionalBranch
	ClassCall
	ClassReturn
	ClassIndirectJump
	ClassSyscall
	ClassSIMD
	ClassUnsupported // decode failed (instructions without an expansion keep their class and are rejected by Supported)
)

// classify assigns a coarse category to a decoded instruction, used by
// Pass 0 to decide block termination and by later passes to pick an
// expansion policy (spec.md §4.2's "Expansion policy per guest
// instruction family").
func classify(inst x86asm.Inst) InsnClass {
	switch inst.Op {
	case x86asm.JMP:
		if _, ok := inst.Args[0].(x86asm.Rel); ok {
			return ClassDirectBranch
		}
		return ClassIndirectJump
	case x86asm.CALL:
		return ClassCall
	case x86asm.RET:
		return ClassReturn
	case x86asm.SYSCALL, x86asm.SYSENTER:
		return ClassSyscall
	case x86asm.LEA:
		return ClassRIPRelative
	case x86asm.PUSH, x86asm.POP:
		return ClassStackOp
	case x86asm.ADD, x86asm.SUB, x86asm.AND, x86asm.OR, x86asm.XOR,
		x86asm.CMP, x86asm.TEST, x86asm.INC, x86asm.DEC,
		x86asm.SHL, x86asm.SHR, x86asm.SAR, x86asm.NOT, x86asm.NEG,
		x86asm.ADC, x86asm.SBB, x86asm.IMUL, x86asm.MUL,
		x86asm.IDIV, x86asm.DIV:
		return ClassALU
	case x86asm.MOV, x86asm.MOVZX, x86asm.MOVSX, x86asm.MOVSXD:
		if usesMemory(inst) {
			return ClassLoadStore
		}
		return ClassALU
	case x86asm.MOVAPS, x86asm.MOVUPS, x86asm.MOVAPD, x86asm.MOVUPD,
		x86asm.MOVSS, x86asm.MOVSD_XMM, x86asm.ADDPS, x86asm.ADDPD,
		x86asm.SUBPS, x86asm.SUBPD, x86asm.MULPS, x86asm.MULPD,
		x86asm.PXOR, x86asm.PAND, x86asm.POR:
		return ClassSIMD
	}
	if isConditionalJump(inst.Op) {
		return ClassConditionalBranch
	}
	return ClassOther
}

func usesMemory(inst x86asm.Inst) bool {
	for _, a := range inst.Args {
		if a == nil {
			break
		}
		if _, ok := a.(x86asm.Mem); ok {
			return true
		}
	}
	return false
}

// isConditionalJump reports whether op is one of the Jcc family (JE, JNE,
// JG, ...); x86asm has no single grouping constant for these so they are
// enumerated.
func isConditionalJump(op x86asm.Op) bool {
	switch op {
	case x86asm.JA, x86asm.JAE, x86asm.JB, x86asm.JBE, x86asm.JCXZ,
		x86asm.JECXZ, x86asm.JRCXZ, x86asm.JE, x86asm.JG, x86asm.JGE,
		x86asm.JL, x86asm.JLE, x86asm.JNE, x86asm.JNO, x86asm.JNP,
		x86asm.JNS, x86asm.JO, x86asm.JP, x86asm.JS:
		return true
	}
	return false
}

// DecodeOne decodes a single guest instruction at addr from code (which
// must start at the guest bytes for that address), returning a
// DecodedInsn with its class and, for direct branches, its resolved
// target.
func DecodeOne(code []byte, addr uint64) (DecodedInsn, error) {
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return DecodedInsn{Addr: addr, Class: ClassUnsupported}, fmt.Errorf("decode at %#x: %w", addr, err)
	}
	d := DecodedInsn{
		Addr: addr,
		Inst: inst,
		Raw:  code[:inst.Len],
	}
	d.Class = classify(inst)
	if d.Class == ClassDirectBranch || d.Class == ClassConditionalBranch || d.Class == ClassCall {
		// A direct CALL's target is exactly as statically resolvable as a
		// direct JMP's (spec.md §4.2); RET and register/memory-operand
		// CALL/JMP forms have no compile-time target and resolve theirs
		// from guest state at emission time instead (translator/expand.go).
		if rel, ok := inst.Args[0].(x86asm.Rel); ok {
			d.Target = addr + uint64(inst.Len) + uint64(int64(rel))
			d.HasTarget = true
		}
	}
	return d, nil
}
