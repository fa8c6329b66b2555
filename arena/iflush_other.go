//go:build !arm64

package arena

// FlushInstructionCache is a no-op on hosts where the code generator does
// not target native ARM64 machine code (e.g. running the test suite on
// amd64 against the decode-only paths). Real deployments of this engine
// are ARM64-host only, per spec.md §1.
func FlushInstructionCache(code []byte) {}
