//go:build arm64

package dispatcher

/*
#include <stdint.h>

// dbt64_run_block transfers control to a translated block's host entry
// point with the reserved GuestCpu pointer loaded into x28 (codegen's
// GuestCpuReg, spec.md §4.4), then returns once the block's epilog (or the
// miss stub) executes RET. x28 is AAPCS64 callee-saved, so it survives the
// call without the compiler clobbering it on the way in or out, and the
// generated code's own prolog/epilog never touch it except to read it.
static void dbt64_run_block(void *hostEntry, void *cpuPtr) {
	__asm__ volatile(
		"mov x28, %0\n"
		"blr %1\n"
		:
		: "r"(cpuPtr), "r"(hostEntry)
		: "x28", "x30", "memory", "cc"
	);
}
*/
import "C"

import (
	"unsafe"

	"github.com/coldforge/dbt64/cpu"
)

func init() {
	RunBlock = runBlockARM64
}

// runBlockARM64 is the arm64 platform implementation of RunBlock (spec.md
// §4.1): it jumps directly into generated machine code and relies on that
// code's own epilog to return here via RET.
func runBlockARM64(hostEntry uintptr, c *cpu.GuestCpu) {
	C.dbt64_run_block(unsafe.Pointer(hostEntry), unsafe.Pointer(c))
}
