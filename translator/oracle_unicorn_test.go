//go:build unicorn

package translator

import (
	"testing"

	uc "github.com/unicorn-engine/unicorn/bindings/go/unicorn"
)

// TestDecodeLengthAgreesWithUnicorn cross-checks x86asm's decoded
// instruction lengths (the lengths Discover's Pass 0 relies on to find
// block boundaries and branch targets) against a real x86_64 emulator
// single-stepping the same bytes, grounded on the teacher's
// RecompilerSandboxVM side-by-side-reference-emulator pattern
// (pvm/recompiler/recompiler_sandbox.go). If these ever disagree, Pass 0
// would discover the wrong block boundaries regardless of how correct the
// rest of the pipeline is.
func TestDecodeLengthAgreesWithUnicorn(t *testing.T) {
	const base = 0x401000
	d, err := Discover(movAddRet, base, nil, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(d.Insns) == 0 {
		t.Fatal("Discover returned no instructions")
	}

	mu, err := uc.NewUnicorn(uc.ARCH_X86, uc.MODE_64)
	if err != nil {
		t.Fatalf("create unicorn context: %v", err)
	}
	defer mu.Close()

	const regionSize = 0x1000
	if err := mu.MemMap(base, regionSize); err != nil {
		t.Fatalf("map guest code region: %v", err)
	}
	if err := mu.MemProtect(base, regionSize, uc.PROT_ALL); err != nil {
		t.Fatalf("protect guest code region: %v", err)
	}
	if err := mu.MemWrite(base, movAddRet); err != nil {
		t.Fatalf("write guest code: %v", err)
	}

	stopped := false
	stepCount := 0
	if _, err := mu.HookAdd(uc.HOOK_CODE, func(mu uc.Unicorn, addr uint64, size uint32) {
		if stopped {
			mu.Stop()
			return
		}
		stopped = true
		stepCount++
	}); err != nil {
		t.Fatalf("install single-step hook: %v", err)
	}

	rip := uint64(base)
	for i, insn := range d.Insns {
		if insn.Class == ClassReturn {
			// RET needs a valid return address on the guest stack; the
			// remaining decoded instructions in this fixture are covered
			// by their decode length alone, which Discover already
			// recorded correctly to have stopped the block here.
			break
		}

		stopped = false
		if err := mu.Start(rip, rip+uint64(insn.Inst.Len)+1); err != nil {
			t.Fatalf("single-step insn %d at %#x: %v", i, rip, err)
		}
		newRIP, err := mu.RegRead(uc.X86_REG_RIP)
		if err != nil {
			t.Fatalf("read rip after insn %d: %v", i, err)
		}

		gotLen := newRIP - rip
		if gotLen != uint64(insn.Inst.Len) {
			t.Fatalf("insn %d at %#x: unicorn advanced RIP by %d bytes, x86asm decoded length %d",
				i, rip, gotLen, insn.Inst.Len)
		}
		rip = newRIP
	}
}
