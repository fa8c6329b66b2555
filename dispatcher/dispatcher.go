// Package dispatcher implements the per-thread loop (spec.md §4.1): given
// a GuestCpu with a valid instruction pointer, find or build the block
// covering it, run it, and react to the control fields it left behind.
//
// Grounded on the driving loop in the teacher's RunRecompiler
// (pvm/recompiler/recompiler.go): fetch-or-compile-then-execute, repeated
// until a halt condition — generalized here from PVM's single gas-metered
// call loop to a persistent per-OS-thread loop that also handles the fork
// protocol between iterations (spec.md §4.1: "if fork_request != 0,
// invoke the fork protocol").
package dispatcher

import (
	"github.com/coldforge/dbt64/blockcache"
	"github.com/coldforge/dbt64/cpu"
	"github.com/coldforge/dbt64/log"
	"github.com/coldforge/dbt64/perf"
	"github.com/coldforge/dbt64/smc"
	"github.com/coldforge/dbt64/translator"
)

// GuestReader supplies raw guest bytes for translation; the loader (out of
// scope, spec.md §1) maps guest code pages before the dispatcher runs, so
// this is a thin accessor rather than an active fetcher.
type GuestReader interface {
	ReadGuestCode(addr uint64, maxLen int) []byte
}

// RunBlock executes one translated block's host code starting at
// hostEntry with c's GuestCpu pointer in the reserved register; returns
// once the block's epilog (or miss stub) returns. In this engine, "running
// host code" at a given entry address is a host-architecture concern
// delegated to the process's execution of the generated machine code
// itself — RunBlock is the seam a platform-specific assembly trampoline
// fills in to actually jump there and return (spec.md §4.1: "the block
// returns either through the epilog ... or via a direct link"). The
// default implementation here exists for hosts without the arm64 jump
// trampoline wired up (tests, non-arm64 builds) and simply panics if
// invoked, so the platform build must supply one.
var RunBlock func(hostEntry uintptr, c *cpu.GuestCpu) = runBlockUnimplemented

func runBlockUnimplemented(hostEntry uintptr, c *cpu.GuestCpu) {
	panic("dispatcher: RunBlock has no platform implementation wired in")
}

// Dispatcher runs guest code for one thread.
type Dispatcher struct {
	Cpu        *cpu.GuestCpu
	Cache      *blockcache.BlockCache
	Translator *translator.Translator
	SMC        *smc.Detector
	Reader     GuestReader
	Counters   *perf.Counters

	// OnFork is invoked when ForkRequest != 0 on return from a block; nil
	// disables the fork protocol entirely (useful for single-threaded
	// guest programs, or tests).
	OnFork func(kind int32)

	// SyscallTranslator is invoked when a block exits with PendingSyscall
	// set, in place of the guest syscall table this engine leaves out of
	// scope (spec.md §1); nil leaves the guest's syscall instruction a
	// no-op beyond the register/RIP state its own expansion already wrote.
	SyscallTranslator func(c *cpu.GuestCpu)
}

// Run executes guest code until Quit is set, per spec.md §4.1's contract.
func (d *Dispatcher) Run() {
	for {
		if d.Cpu.Quit.Load() {
			return
		}

		entry, err := d.resolveBlock(d.Cpu.RIP)
		if err != nil {
			log.Error(log.Dispatch, "failed to resolve block, halting thread",
				"rip", d.Cpu.RIP, "err", err)
			d.Cpu.Quit.Store(true)
			return
		}

		RunBlock(entry, d.Cpu)

		// Every flag-defining instruction the translator found live past
		// its own block already wrote the deferred scratch during emission
		// (translator/expand.go); Materialize turns that into real Flags
		// bits now that control is back in Go, before the fork protocol or
		// anything else inspects them (spec.md §4.5's boundary invariant).
		d.Cpu.Materialize()

		if d.Cpu.PendingSyscall {
			d.Cpu.PendingSyscall = false
			if d.SyscallTranslator != nil {
				d.SyscallTranslator(d.Cpu)
			}
		}

		if fr := d.Cpu.ForkRequest.Load(); fr != cpu.ForkNone && d.OnFork != nil {
			d.OnFork(fr)
		}
		if d.Cpu.Quit.Load() {
			return
		}
	}
}

// resolveBlock looks up the cache fast path first; on a miss, it runs the
// translator and publishes the result, counting hits/misses along the way
// (spec.md §4.1, §8 properties S2/S3).
func (d *Dispatcher) resolveBlock(addr uint64) (uintptr, error) {
	if entry, ok := d.Cache.Lookup(addr); ok {
		if b, ok := d.Cache.Get(addr); ok {
			if d.SMC != nil {
				src := d.Reader.ReadGuestCode(b.GuestStart, int(b.GuestEnd-b.GuestStart))
				if !d.SMC.VerifyOnEntry(b, src) {
					return d.translateAt(addr)
				}
			}
			b.Enter()
			if d.Counters != nil {
				d.Counters.BlockHits.Add(1)
			}
		}
		return entry, nil
	}
	if d.Counters != nil {
		d.Counters.BlockMisses.Add(1)
	}
	return d.translateAt(addr)
}

func (d *Dispatcher) translateAt(addr uint64) (uintptr, error) {
	code := d.Reader.ReadGuestCode(addr, 0)
	var checker translator.PageWritabilityChecker
	if d.SMC != nil {
		checker = d.SMC
	}
	result, err := d.Translator.Translate(addr, code, checker)
	if err != nil {
		return 0, err
	}
	if d.SMC != nil && d.SMC.AlwaysVerifyForNewBlock(addr) {
		result.Block.AlwaysVerify.Store(true)
	}
	return result.Block.HostPrologEntry, nil
}
