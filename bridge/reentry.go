package bridge

import "github.com/coldforge/dbt64/cpu"

// ExitSentinel is the synthetic guest return address pushed by a
// host->guest call so the dispatcher recognizes the guest function has
// returned rather than looking it up as a real block (spec.md §4.6). No
// valid ELF image is ever mapped at this address.
const ExitSentinel uint64 = 0xFFFFFFFFFFFFFFF0

// GuestCall prepares c to invoke a guest function: arguments in the
// guest-ABI argument registers (already written by the caller into args,
// in guest-ABI order), the guest IP set to target, and the exit sentinel
// pushed as the return address on the guest stack (spec.md §4.6 Host ->
// guest).
//
// pushQword decrements RSP by 8 and writes one 64-bit word to the guest
// stack at the new RSP, matching x86_64 PUSH semantics; it is supplied
// by the caller rather than implemented here because writing guest memory
// requires the guest address space mapping, which this package does not
// own.
func GuestCall(c *cpu.GuestCpu, target uint64, args []uint64, pushQword func(v uint64)) {
	// x86_64 SysV ABI: first six integer/pointer arguments in
	// RDI, RSI, RDX, RCX, R8, R9.
	argRegs := []int{cpu.RDI, cpu.RSI, cpu.RDX, cpu.RCX, cpu.R8, cpu.R9}
	for i, v := range args {
		if i >= len(argRegs) {
			break // remaining arguments go on the stack, via pushQword by the caller before calling GuestCall
		}
		c.GPR[argRegs[i]] = v
	}

	pushQword(ExitSentinel)
	c.RIP = target
}

// ReturnedToSentinel reports whether the dispatcher's current guest IP is
// the exit sentinel, meaning a host->guest call has completed and the
// dispatcher loop started for it should return control to the host caller
// (spec.md §4.6: "When the guest returns through the sentinel, the
// dispatcher exits").
func ReturnedToSentinel(c *cpu.GuestCpu) bool {
	return c.RIP == ExitSentinel
}

// Result reads the guest function's return value from the designated
// result register (RAX, per the SysV ABI) after ReturnedToSentinel is
// true.
func Result(c *cpu.GuestCpu) uint64 {
	return c.GPR[cpu.RAX]
}
