package dispatcher

import (
	"testing"

	"github.com/coldforge/dbt64/arena"
	"github.com/coldforge/dbt64/blockcache"
	"github.com/coldforge/dbt64/config"
	"github.com/coldforge/dbt64/cpu"
	"github.com/coldforge/dbt64/perf"
	"github.com/coldforge/dbt64/smc"
	"github.com/coldforge/dbt64/translator"
)

type fakeReader struct {
	code []byte
	base uint64
}

func (f fakeReader) ReadGuestCode(addr uint64, maxLen int) []byte {
	off := addr - f.base
	return f.code[off:]
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	a := arena.New()
	cache := blockcache.New(0xdead0000)
	counters := &perf.Counters{}
	det := smc.New(cache, counters)
	tr := translator.New(a, cache, config.FromEnv(), counters)

	reader := fakeReader{code: []byte{0x48, 0x89, 0xd8, 0x48, 0x01, 0xd8, 0xc3}, base: 0x401000}

	c := cpu.New(nil, 0x401000)
	return &Dispatcher{
		Cpu:        c,
		Cache:      cache,
		Translator: tr,
		SMC:        det,
		Reader:     reader,
		Counters:   counters,
	}
}

func TestRunCallsRunBlockAndHonorsQuit(t *testing.T) {
	d := newTestDispatcher(t)

	orig := RunBlock
	defer func() { RunBlock = orig }()

	calls := 0
	RunBlock = func(entry uintptr, c *cpu.GuestCpu) {
		calls++
		c.Quit.Store(true)
	}

	d.Run()

	if calls != 1 {
		t.Fatalf("RunBlock called %d times, want 1", calls)
	}
	if d.Counters.Translations.Load() != 1 {
		t.Fatalf("expected exactly one translation, got %d", d.Counters.Translations.Load())
	}
	if d.Counters.BlockMisses.Load() != 1 {
		t.Fatalf("expected exactly one cache miss, got %d", d.Counters.BlockMisses.Load())
	}
}

func TestRunReusesCachedBlockOnSecondIteration(t *testing.T) {
	d := newTestDispatcher(t)

	orig := RunBlock
	defer func() { RunBlock = orig }()

	calls := 0
	RunBlock = func(entry uintptr, c *cpu.GuestCpu) {
		calls++
		if calls >= 2 {
			c.Quit.Store(true)
			return
		}
		c.RIP = 0x401000 // loop back to the same block
	}

	d.Run()

	if calls != 2 {
		t.Fatalf("RunBlock called %d times, want 2", calls)
	}
	if d.Counters.Translations.Load() != 1 {
		t.Fatalf("expected translation cached across iterations, got %d", d.Counters.Translations.Load())
	}
	if d.Counters.BlockHits.Load() != 1 {
		t.Fatalf("expected one cache hit on the second iteration, got %d", d.Counters.BlockHits.Load())
	}
}

func TestRunInvokesSyscallTranslatorAndClearsPending(t *testing.T) {
	d := newTestDispatcher(t)

	orig := RunBlock
	defer func() { RunBlock = orig }()

	RunBlock = func(entry uintptr, c *cpu.GuestCpu) {
		// Mimics emitSyscall's own expansion (translator/expand.go): the
		// block sets PendingSyscall and the resume RIP, then returns to
		// the dispatcher, just as the real LDPPost+RET epilog would.
		c.PendingSyscall = true
		c.RIP = 0x402000
		c.Quit.Store(true)
	}

	syscallCalls := 0
	d.SyscallTranslator = func(c *cpu.GuestCpu) {
		syscallCalls++
		if c.RIP != 0x402000 {
			t.Fatalf("RIP at syscall translator = %#x, want 0x402000", c.RIP)
		}
	}

	d.Run()

	if syscallCalls != 1 {
		t.Fatalf("SyscallTranslator called %d times, want 1", syscallCalls)
	}
	if d.Cpu.PendingSyscall {
		t.Fatalf("PendingSyscall should be cleared after the dispatcher services it")
	}
}

func TestRunMaterializesDeferredFlagsBeforeForkCheck(t *testing.T) {
	d := newTestDispatcher(t)

	orig := RunBlock
	defer func() { RunBlock = orig }()

	RunBlock = func(entry uintptr, c *cpu.GuestCpu) {
		// Mimics emitDeferredWrite's effect (translator/expand.go): the
		// block wrote the scratch for a ZF-defining op but never touched
		// Flags itself, since only a same-block fast-path consumer gets
		// the host NZCV directly.
		c.Deferred = cpu.DeferredFlags{Op: cpu.OpSub, Width: 8, Op1: 5, Op2: 5, Result: 0}
		c.ForkRequest.Store(cpu.ForkPlain)
		c.Quit.Store(true)
	}

	zfAtForkCheck := false
	d.OnFork = func(kind int32) {
		zfAtForkCheck = d.Cpu.Flags&cpu.FlagZF != 0
	}

	d.Run()

	if d.Cpu.Flags&cpu.FlagZF == 0 {
		t.Fatalf("expected Materialize to have set ZF from the deferred scratch")
	}
	if !zfAtForkCheck {
		t.Fatalf("expected ZF to be materialized before the fork callback ran")
	}
}

func TestRunInvokesForkCallback(t *testing.T) {
	d := newTestDispatcher(t)

	orig := RunBlock
	defer func() { RunBlock = orig }()

	RunBlock = func(entry uintptr, c *cpu.GuestCpu) {
		c.ForkRequest.Store(cpu.ForkPlain)
		c.Quit.Store(true)
	}

	forkCalls := 0
	d.OnFork = func(kind int32) {
		forkCalls++
		if kind != cpu.ForkPlain {
			t.Fatalf("kind = %d, want ForkPlain", kind)
		}
	}

	d.Run()

	if forkCalls != 1 {
		t.Fatalf("OnFork called %d times, want 1", forkCalls)
	}
}
