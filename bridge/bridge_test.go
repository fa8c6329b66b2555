package bridge

import (
	"testing"

	"github.com/coldforge/dbt64/cpu"
)

func TestInvokeContinuesInlineWhenIPUnchanged(t *testing.T) {
	r := NewRegistry()
	const stub = uintptr(0x700000)
	r.Register(stub, func(c *cpu.GuestCpu) {
		c.GPR[cpu.RAX] = 42
	})

	c := cpu.New(nil, 0x401000)
	c.RIP = 0x401010 // expected post-call IP, wrapper does not touch it
	res := r.Invoke(stub, c, 0x401010)

	if res != ContinueInline {
		t.Fatalf("Invoke = %v, want ContinueInline", res)
	}
	if c.GPR[cpu.RAX] != 42 {
		t.Fatalf("expected wrapper result in RAX")
	}
}

func TestInvokeExitsWhenWrapperAltersIP(t *testing.T) {
	r := NewRegistry()
	const stub = uintptr(0x700000)
	r.Register(stub, func(c *cpu.GuestCpu) {
		c.RIP = 0x999999 // simulates a longjmp
	})

	c := cpu.New(nil, 0x401000)
	res := r.Invoke(stub, c, 0x401010)

	if res != ExitToDispatcher {
		t.Fatalf("Invoke = %v, want ExitToDispatcher", res)
	}
}

func TestInvokeUnregisteredStubQuits(t *testing.T) {
	r := NewRegistry()
	c := cpu.New(nil, 0x401000)
	res := r.Invoke(0xBADBAD, c, 0x401010)
	if res != ExitToDispatcher {
		t.Fatalf("Invoke = %v, want ExitToDispatcher", res)
	}
	if !c.Quit.Load() {
		t.Fatalf("expected Quit set after call to unregistered stub")
	}
}

func TestGuestCallSetsArgsAndSentinel(t *testing.T) {
	c := cpu.New(nil, 0x401000)
	var pushed []uint64
	GuestCall(c, 0x500000, []uint64{1, 2, 3}, func(v uint64) { pushed = append(pushed, v) })

	if c.RIP != 0x500000 {
		t.Fatalf("RIP = %#x, want 0x500000", c.RIP)
	}
	if c.GPR[cpu.RDI] != 1 || c.GPR[cpu.RSI] != 2 || c.GPR[cpu.RDX] != 3 {
		t.Fatalf("arguments not placed in SysV registers: %+v", c.GPR)
	}
	if len(pushed) != 1 || pushed[0] != ExitSentinel {
		t.Fatalf("expected exit sentinel pushed, got %v", pushed)
	}
}

func TestReturnedToSentinelAndResult(t *testing.T) {
	c := cpu.New(nil, 0x401000)
	c.RIP = ExitSentinel
	c.GPR[cpu.RAX] = 0xCAFE
	if !ReturnedToSentinel(c) {
		t.Fatalf("expected ReturnedToSentinel true")
	}
	if Result(c) != 0xCAFE {
		t.Fatalf("Result = %#x, want 0xCAFE", Result(c))
	}
}
