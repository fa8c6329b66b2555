// Package codegen emits raw ARM64 host machine code: the instruction
// encoder the translator's emission pass drives, and the prolog/epilog
// trampolines around every translated block (spec.md §4.4).
//
// Grounded on the structure of
// _examples/other_examples/MJDaws0n-Novus__emit_arm64.go — a dedicated
// arm64Emitter struct accumulating output through sequential per-
// instruction helper methods (toW-style register helpers, one method per
// ARM64 mnemonic). That emitter targets GAS assembly text for a compiled
// language's own functions; ours targets raw encoded instruction words
// written straight into W^X memory, since a dynamic binary translator has
// no assembler in its runtime path — the same per-mnemonic method shape is
// kept, only the output format changes from text lines to uint32 machine
// words.
package codegen

import "encoding/binary"

// Reg is an ARM64 general-purpose register number, 0-30, or 31 for
// SP/XZR depending on context.
type Reg uint8

const (
	X0 Reg = iota
	X1
	X2
	X3
	X4
	X5
	X6
	X7
	X8
	X9
	X10
	X11
	X12
	X13
	X14
	X15
	X16 // IP0, used as the emitter's scratch register
	X17 // IP1
	X18
	X19
	X20
	X21
	X22
	X23
	X24
	X25
	X26
	X27
	X28 // reserved: holds the GuestCpu pointer across a translated block
	X29 // FP
	X30 // LR
	SP  Reg = 31
)

// GuestCpuReg is the host register the prolog receives the GuestCpu
// pointer in and keeps live across the whole block, per spec.md §4.4:
// "The prolog is entered with the GuestCpu pointer in a reserved host
// register."
const GuestCpuReg = X28

// Assembler accumulates encoded ARM64 instruction words. Every method
// appends exactly one 4-byte instruction (ARM64 is fixed-width), except
// MOVImm64, which always appends MOVImm64Words of them, so callers can
// compute sizes as word counts — exactly what the translator's
// Pass 2 sizing table assumes (spec.md §4.2).
type Assembler struct {
	buf []byte
}

// NewAssembler creates an empty encoder.
func NewAssembler() *Assembler { return &Assembler{} }

// Bytes returns the encoded instruction stream so far.
func (a *Assembler) Bytes() []byte { return a.buf }

// Len returns the number of instructions emitted so far.
func (a *Assembler) Len() int { return len(a.buf) / 4 }

func (a *Assembler) emit(word uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], word)
	a.buf = append(a.buf, b[:]...)
}

// PatchAt overwrites the instruction word at the given byte offset,
// used to back-patch forward branches once their target offset is known.
func (a *Assembler) PatchAt(byteOffset int, word uint32) {
	binary.LittleEndian.PutUint32(a.buf[byteOffset:byteOffset+4], word)
}

// --- Data movement -------------------------------------------------------

// MOVZ rd, #imm16, lsl #(shift*16) — 64-bit form.
func (a *Assembler) MOVZ(rd Reg, imm16 uint16, shift uint8) {
	a.emit(0xD2800000 | uint32(shift&3)<<21 | uint32(imm16)<<5 | uint32(rd))
}

// MOVK rd, #imm16, lsl #(shift*16) — 64-bit form, keeps other bits.
func (a *Assembler) MOVK(rd Reg, imm16 uint16, shift uint8) {
	a.emit(0xF2800000 | uint32(shift&3)<<21 | uint32(imm16)<<5 | uint32(rd))
}

// MOVImm64 loads an arbitrary 64-bit constant into rd with exactly four
// MOVZ/MOVK instructions (one per 16-bit lane), never skipping a zero
// lane. Used for guest immediates too wide for a single encoding (spec.md
// §4.2's register-move expansion). The word count is fixed rather than
// value-dependent so every call site's Pass 2 size estimate agrees
// byte-exactly with what Pass 3 actually emits (spec.md §4.2: "sizing in
// pass 2 must agree byte-exactly with emission in pass 3") — a
// value-dependent lane count would make that agreement impossible without
// re-deriving the constant during sizing too.
func (a *Assembler) MOVImm64(rd Reg, v uint64) {
	lanes := [4]uint16{
		uint16(v), uint16(v >> 16), uint16(v >> 32), uint16(v >> 48),
	}
	a.MOVZ(rd, lanes[0], 0)
	a.MOVK(rd, lanes[1], 1)
	a.MOVK(rd, lanes[2], 2)
	a.MOVK(rd, lanes[3], 3)
}

// MOVImm64Words is the fixed instruction count MOVImm64 always emits.
const MOVImm64Words = 4

// MOVReg rd, rn (alias for ORR rd, xzr, rn).
func (a *Assembler) MOVReg(rd, rn Reg) {
	a.emit(0xAA0003E0 | uint32(rn)<<16 | uint32(rd))
}

// --- Loads/stores ----------------------------------------------------------

// LDR rt, [rn, #imm12*8] — unsigned 64-bit offset form.
func (a *Assembler) LDR(rt, rn Reg, imm12 uint16) {
	a.emit(0xF9400000 | uint32(imm12&0xFFF)<<10 | uint32(rn)<<5 | uint32(rt))
}

// STR rt, [rn, #imm12*8].
func (a *Assembler) STR(rt, rn Reg, imm12 uint16) {
	a.emit(0xF9000000 | uint32(imm12&0xFFF)<<10 | uint32(rn)<<5 | uint32(rt))
}

// LDUR rt, [rn, #simm9] — unscaled signed byte offset load, used for guest
// memory displacements that are not 8-byte aligned (spec.md §4.2's
// load/store expansion; x86 displacements are byte-granular).
func (a *Assembler) LDUR(rt, rn Reg, simm9 int16) {
	a.emit(0xF8400000 | (uint32(simm9)&0x1FF)<<12 | uint32(rn)<<5 | uint32(rt))
}

// STUR rt, [rn, #simm9] — unscaled signed byte offset store.
func (a *Assembler) STUR(rt, rn Reg, simm9 int16) {
	a.emit(0xF8000000 | (uint32(simm9)&0x1FF)<<12 | uint32(rn)<<5 | uint32(rt))
}

// LDRW rt, [rn, #imm12*4] — 32-bit unsigned offset load, used for guest
// 32-bit GPR halves.
func (a *Assembler) LDRW(rt, rn Reg, imm12 uint16) {
	a.emit(0xB9400000 | uint32(imm12&0xFFF)<<10 | uint32(rn)<<5 | uint32(rt))
}

// STRW rt, [rn, #imm12*4].
func (a *Assembler) STRW(rt, rn Reg, imm12 uint16) {
	a.emit(0xB9000000 | uint32(imm12&0xFFF)<<10 | uint32(rn)<<5 | uint32(rt))
}

// STRB rt, [rn, #imm12] — byte store, unscaled (no *size multiplier, since
// the unit is already one byte); used for the single-byte fields of
// GuestCpu.Deferred (spec.md §4.5).
func (a *Assembler) STRB(rt, rn Reg, imm12 uint16) {
	a.emit(0x39000000 | uint32(imm12&0xFFF)<<10 | uint32(rn)<<5 | uint32(rt))
}

// LDP rt1, rt2, [rn, #imm7*8] — pre-computed signed offset, pair load;
// used for the prolog/epilog's bulk GuestCpu field spill/reload.
func (a *Assembler) LDP(rt1, rt2, rn Reg, imm7 int16) {
	a.emit(0xA9400000 | (uint32(imm7)&0x7F)<<15 | uint32(rt2)<<10 | uint32(rn)<<5 | uint32(rt1))
}

// STP rt1, rt2, [rn, #imm7*8].
func (a *Assembler) STP(rt1, rt2, rn Reg, imm7 int16) {
	a.emit(0xA9000000 | (uint32(imm7)&0x7F)<<15 | uint32(rt2)<<10 | uint32(rn)<<5 | uint32(rt1))
}

// STPPre rt1, rt2, [rn, #imm7*8]! — pre-index, used to push the host frame.
func (a *Assembler) STPPre(rt1, rt2, rn Reg, imm7 int16) {
	a.emit(0xA9800000 | (uint32(imm7)&0x7F)<<15 | uint32(rt2)<<10 | uint32(rn)<<5 | uint32(rt1))
}

// LDPPost rt1, rt2, [rn], #imm7*8 — post-index, used to pop the host frame.
func (a *Assembler) LDPPost(rt1, rt2, rn Reg, imm7 int16) {
	a.emit(0xA8C00000 | (uint32(imm7)&0x7F)<<15 | uint32(rt2)<<10 | uint32(rn)<<5 | uint32(rt1))
}

// --- ALU ---------------------------------------------------------------

// ADDImm rd, rn, #imm12.
func (a *Assembler) ADDImm(rd, rn Reg, imm12 uint16) {
	a.emit(0x91000000 | uint32(imm12&0xFFF)<<10 | uint32(rn)<<5 | uint32(rd))
}

// SUBImm rd, rn, #imm12.
func (a *Assembler) SUBImm(rd, rn Reg, imm12 uint16) {
	a.emit(0xD1000000 | uint32(imm12&0xFFF)<<10 | uint32(rn)<<5 | uint32(rd))
}

// ADDSImm rd, rn, #imm12 — flag-setting immediate add, the host expansion
// for guest INC (spec.md §4.5: a flag-defining guest op gets a host op
// that sets NZCV to match it whenever ARM64 has one).
func (a *Assembler) ADDSImm(rd, rn Reg, imm12 uint16) {
	a.emit(0xB1000000 | uint32(imm12&0xFFF)<<10 | uint32(rn)<<5 | uint32(rd))
}

// SUBSImm rd, rn, #imm12 — flag-setting immediate subtract, the host
// expansion for guest DEC.
func (a *Assembler) SUBSImm(rd, rn Reg, imm12 uint16) {
	a.emit(0xF1000000 | uint32(imm12&0xFFF)<<10 | uint32(rn)<<5 | uint32(rd))
}

// ADD rd, rn, rm.
func (a *Assembler) ADD(rd, rn, rm Reg) {
	a.emit(0x8B000000 | uint32(rm)<<16 | uint32(rn)<<5 | uint32(rd))
}

// SUB rd, rn, rm.
func (a *Assembler) SUB(rd, rn, rm Reg) {
	a.emit(0xCB000000 | uint32(rm)<<16 | uint32(rn)<<5 | uint32(rd))
}

// SUBS rd, rn, rm — flag-setting subtract, used to let the host condition
// codes stand in for the guest's CF/ZF/SF/OF directly (spec.md §4.2:
// "Where host condition codes can stand in for the guest flag being
// requested, emit the flag-setting host form and skip materialization").
func (a *Assembler) SUBS(rd, rn, rm Reg) {
	a.emit(0xEB000000 | uint32(rm)<<16 | uint32(rn)<<5 | uint32(rd))
}

// ADDS rd, rn, rm.
func (a *Assembler) ADDS(rd, rn, rm Reg) {
	a.emit(0xAB000000 | uint32(rm)<<16 | uint32(rn)<<5 | uint32(rd))
}

// AND/ORR/EOR rd, rn, rm.
func (a *Assembler) AND(rd, rn, rm Reg) { a.emit(0x8A000000 | uint32(rm)<<16 | uint32(rn)<<5 | uint32(rd)) }
func (a *Assembler) ORR(rd, rn, rm Reg) { a.emit(0xAA000000 | uint32(rm)<<16 | uint32(rn)<<5 | uint32(rd)) }
func (a *Assembler) EOR(rd, rn, rm Reg) { a.emit(0xCA000000 | uint32(rm)<<16 | uint32(rn)<<5 | uint32(rd)) }

// ANDS rd, rn, rm — flag-setting AND, the host expansion for guest TEST
// (spec.md §4.2: ALU instructions that only read their result through
// flags get a host op that sets NZCV without needing a write-back).
func (a *Assembler) ANDS(rd, rn, rm Reg) {
	a.emit(0xEA000000 | uint32(rm)<<16 | uint32(rn)<<5 | uint32(rd))
}

// CMP rn, rm (alias for SUBS xzr, rn, rm).
func (a *Assembler) CMP(rn, rm Reg) { a.SUBS(Reg(31), rn, rm) }

// MVN rd, rm — bitwise NOT (alias for ORN rd, xzr, rm).
func (a *Assembler) MVN(rd, rm Reg) {
	a.emit(0xAA2003E0 | uint32(rm)<<16 | uint32(rd))
}

// --- Control flow --------------------------------------------------------

// Cond is an ARM64 condition code, used by B.cond.
type Cond uint8

const (
	CondEQ Cond = 0x0
	CondNE Cond = 0x1
	CondCS Cond = 0x2
	CondCC Cond = 0x3
	CondMI Cond = 0x4
	CondPL Cond = 0x5
	CondVS Cond = 0x6
	CondVC Cond = 0x7
	CondHI Cond = 0x8
	CondLS Cond = 0x9
	CondGE Cond = 0xA
	CondLT Cond = 0xB
	CondGT Cond = 0xC
	CondLE Cond = 0xD
	CondAL Cond = 0xE
)

// B branches unconditionally by a 26-bit word-granular signed offset.
func (a *Assembler) B(wordOffset int32) {
	a.emit(0x14000000 | uint32(wordOffset)&0x03FFFFFF)
}

// BCond branches conditionally by a 19-bit word-granular signed offset.
func (a *Assembler) BCond(cond Cond, wordOffset int32) {
	a.emit(0x54000000 | (uint32(wordOffset)&0x7FFFF)<<5 | uint32(cond))
}

// BR branches to the address in rn — the host register-indirect branch
// that ends every inline block-cache lookup (spec.md §4.3).
func (a *Assembler) BR(rn Reg) { a.emit(0xD61F0000 | uint32(rn)<<5) }

// BLR branches with link to rn, used by the bridge's guest->host call stub.
func (a *Assembler) BLR(rn Reg) { a.emit(0xD63F0000 | uint32(rn)<<5) }

// RET returns to the address in x30 (or rn if given).
func (a *Assembler) RET(rn Reg) { a.emit(0xD65F0000 | uint32(rn)<<5) }

// NOP.
func (a *Assembler) NOP() { a.emit(0xD503201F) }

// EncodeB computes the "b" encoding for a given word-granular offset, for
// callers that lay out a branch before its target is known and patch the
// word in afterward via Assembler.PatchAt (spec.md §4.2's conditional
// branch expansion, where both the taken and fallthrough targets share
// one inline lookup further down the same block).
func EncodeB(wordOffset int32) uint32 {
	return 0x14000000 | uint32(wordOffset)&0x03FFFFFF
}

// EncodeBCond is EncodeB's B.cond counterpart.
func EncodeBCond(cond Cond, wordOffset int32) uint32 {
	return 0x54000000 | (uint32(wordOffset)&0x7FFFF)<<5 | uint32(cond)
}

// EncodeBranch computes the "b" encoding from a patch site to an
// arbitrary absolute target, given as byte addresses.
func EncodeBranch(fromByteAddr, toByteAddr uintptr) uint32 {
	wordOffset := int32((int64(toByteAddr) - int64(fromByteAddr)) / 4)
	return 0x14000000 | uint32(wordOffset)&0x03FFFFFF
}
