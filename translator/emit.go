package translator

import (
	"time"

	"github.com/coldforge/dbt64/arena"
	"github.com/coldforge/dbt64/blockcache"
	"github.com/coldforge/dbt64/codegen"
	"github.com/coldforge/dbt64/common"
	"github.com/coldforge/dbt64/log"
	"github.com/coldforge/dbt64/perf"
	"github.com/coldforge/dbt64/trace"
)

// EmitResult is Pass 3's product: a fully published TranslatedBlock plus
// the compile-time statistics perf.CompileStats records.
type EmitResult struct {
	Block *blockcache.TranslatedBlock
	Stats *perf.CompileStats
}

// Emit runs Pass 3: allocates executable memory sized as the prolog plus
// Sizing's total (running Arena.Purge and retrying once if the first
// allocation fails), emits host code for each instruction, writes the
// sidecar, hashes the source bytes, flushes the i-cache, and publishes the
// block into cache (spec.md §4.2 Pass 3, §4.3's publish-after-flush
// ordering).
func Emit(a *arena.Arena, cache *blockcache.BlockCache, sourceBytes []byte, sizing *Sizing, missStubAddr uintptr, regAlloc map[int]codegen.Reg, tracer *trace.JSONLTraceWriter) (*EmitResult, error) {
	start := time.Now()

	asm := codegen.NewAssembler()
	codegen.EmitProlog(asm, regAlloc)
	prologBytes := uint32(len(asm.Bytes()))

	handle, err := a.Alloc(int(prologBytes + sizing.TotalHostBytes))
	if err != nil {
		if _, perr := a.Purge(); perr == nil {
			handle, err = a.Alloc(int(prologBytes + sizing.TotalHostBytes))
		}
		if err != nil {
			return nil, err
		}
	}

	sidecar := make([]blockcache.SidecarEntry, 0, len(sizing.Insns))
	for _, insn := range sizing.Insns {
		guestOffset := uint32(insn.Addr - sizing.Insns[0].Addr)
		sidecar = append(sidecar, blockcache.SidecarEntry{
			GuestOffset: guestOffset,
			HostOffset:  insn.HostOffset,
		})
		emitInstruction(asm, insn, regAlloc, missStubAddr)
	}

	copy(handle.Code, asm.Bytes())
	arena.FlushInstructionCache(handle.Code)

	if err := a.Finalize(handle); err != nil {
		return nil, err
	}

	block := &blockcache.TranslatedBlock{
		GuestStart:      sizing.Insns[0].Addr,
		GuestEnd:        sizing.Insns[len(sizing.Insns)-1].Addr + uint64(sizing.Insns[len(sizing.Insns)-1].Inst.Len),
		HostEntry:       handle.Base + uintptr(prologBytes),
		HostPrologEntry: handle.Base,
		Sidecar:         sidecar,
		IntegrityHash:   common.Blake2Hash(sourceBytes),
	}

	cache.Publish(block)

	elapsed := time.Since(start)
	stats := perf.NewCompileStats(block.GuestStart, len(sourceBytes), len(handle.Code), elapsed)

	if tracer != nil {
		rec := trace.NewBlockRecord(block.GuestStart, block.GuestEnd, len(handle.Code))
		rec.SetIntegrityHash(block.IntegrityHash)
		if err := tracer.WriteStep(rec); err != nil {
			log.Warn(log.Translate, "failed to write block trace", "guestStart", block.GuestStart, "err", err)
		}
	}

	return &EmitResult{Block: block, Stats: stats}, nil
}

// emitInstruction expands one Pass-2-sized instruction into host code,
// following the per-family policy in spec.md §4.2. regAlloc is accepted
// for the prolog/epilog's host-resident register set but not yet
// consulted here: every expansion below round-trips its operands through
// GuestCpu directly rather than the block's host-register allocation, a
// documented simplification that trades some speed for guaranteeing the
// fixed, data-independent instruction counts hostWordCountFor relies on
// (see DESIGN.md).
func emitInstruction(asm *codegen.Assembler, insn SizedInsn, regAlloc map[int]codegen.Reg, missStubAddr uintptr) {
	_ = regAlloc
	switch insn.Class {
	case ClassALU:
		emitALU(asm, insn.DecodedInsn, insn.Materialize)
	case ClassLoadStore:
		emitLoadStore(asm, insn.DecodedInsn)
	case ClassStackOp:
		emitStackOp(asm, insn.DecodedInsn)
	case ClassRIPRelative:
		emitRIPRelative(asm, insn.DecodedInsn)
	case ClassSyscall:
		emitSyscall(asm, insn.DecodedInsn)
	case ClassSIMD:
		asm.NOP() // no host vector register file modeled in codegen yet, see DESIGN.md
	case ClassCall:
		emitCall(asm, insn.DecodedInsn, missStubAddr)
	case ClassReturn:
		emitReturn(asm, insn.DecodedInsn, missStubAddr)
	case ClassIndirectJump:
		emitIndirectJump(asm, insn.DecodedInsn, missStubAddr)
	case ClassDirectBranch:
		emitDirectBranch(asm, insn.DecodedInsn, missStubAddr)
	case ClassConditionalBranch:
		emitConditionalBranch(asm, insn.DecodedInsn, missStubAddr)
	default:
		asm.NOP()
	}
	// Every class other than ClassALU always carries Materialize == false
	// (analyze.go's definesFlags only returns nonzero for ClassALU), and
	// emitALU above already accounts for its own Deferred write internally
	// (spec.md §4.5) — there is nothing generic left to emit here.
}
