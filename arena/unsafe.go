package arena

import "unsafe"

// handleBase returns the address of an allocation's first byte, used as the
// executable entry point address recorded in blockcache leaf slots.
func handleBase(code []byte) uintptr {
	if len(code) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&code[0]))
}
