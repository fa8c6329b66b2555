// Package bridge implements the boundary between translated guest code and
// native host library wrappers or the interpreter fallback (spec.md §4.6):
// the guest->host call stub contract and the host->guest re-entry
// contract.
//
// Grounded on the teacher's per-VM registry pattern in
// pvm/recompiler/recompiler_hostfunc.go (verifierStorage: a
// sync.RWMutex-guarded map keyed by a stable per-VM pointer, looked up
// from a cgo callback given only that pointer) — generalized from "find
// the verifier for this VM" to "find the Go wrapper function for this
// import slot", since a translated call site only carries a host address,
// not a Go closure.
package bridge

import (
	"sync"

	"github.com/coldforge/dbt64/cpu"
	"github.com/coldforge/dbt64/log"
)

// Wrapper is a native host implementation of one guest-ABI import (libc,
// libpthread, etc.). It receives the calling GuestCpu and must follow the
// guest ABI itself: read arguments from GuestCpu per the guest calling
// convention, leave the result in the designated guest result register,
// and touch GuestCpu.Flags only if the guest function it stands in for
// would (spec.md §6 "Bridge stub contract").
type Wrapper func(c *cpu.GuestCpu)

// Registry maps bridge stub addresses (the host addresses the loader
// patched into the GOT, spec.md §6) to their Wrapper implementations.
type Registry struct {
	mu       sync.RWMutex
	wrappers map[uintptr]Wrapper
}

// NewRegistry creates an empty bridge stub registry.
func NewRegistry() *Registry {
	return &Registry{wrappers: make(map[uintptr]Wrapper)}
}

// Register binds a bridge stub address to its wrapper. Called once per
// import while the loader is patching the GOT (spec.md §6).
func (r *Registry) Register(stubAddr uintptr, w Wrapper) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wrappers[stubAddr] = w
}

// Lookup finds the wrapper for a stub address, used by the generated
// guest->host call-site sequence (spec.md §4.6).
func (r *Registry) Lookup(stubAddr uintptr) (Wrapper, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.wrappers[stubAddr]
	return w, ok
}

// InvokeResult reports what the dispatcher should do after a guest->host
// call returns.
type InvokeResult int

const (
	// ContinueInline means the wrapper did not alter guest IP beyond the
	// expected post-call address; translated code can resume inline
	// without a dispatcher round-trip.
	ContinueInline InvokeResult = iota
	// ExitToDispatcher means the guest IP after the call no longer matches
	// the expected post-call address (e.g. a longjmp through the wrapper),
	// so control must return through the epilog (spec.md §4.6).
	ExitToDispatcher
)

// Invoke runs the guest->host call sequence spec.md §4.6 describes: the
// translator's call-site code has already spilled guest registers into c
// before calling this; Invoke calls the wrapper, then compares c.RIP
// against expectedPostCallIP to decide whether the dispatcher must be
// re-entered.
func (r *Registry) Invoke(stubAddr uintptr, c *cpu.GuestCpu, expectedPostCallIP uint64) InvokeResult {
	w, ok := r.Lookup(stubAddr)
	if !ok {
		log.Error(log.Bridge, "call to unregistered bridge stub", "stubAddr", stubAddr)
		c.Quit.Store(true)
		return ExitToDispatcher
	}

	c.Materialize()
	w(c)

	if c.RIP != expectedPostCallIP {
		log.Debug(log.Bridge, "wrapper altered guest IP, exiting to dispatcher",
			"expected", expectedPostCallIP, "actual", c.RIP)
		return ExitToDispatcher
	}
	return ContinueInline
}
