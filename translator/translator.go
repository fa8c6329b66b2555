package translator

import (
	"fmt"

	"github.com/coldforge/dbt64/arena"
	"github.com/coldforge/dbt64/blockcache"
	"github.com/coldforge/dbt64/codegen"
	"github.com/coldforge/dbt64/config"
	"github.com/coldforge/dbt64/log"
	"github.com/coldforge/dbt64/perf"
	"github.com/coldforge/dbt64/trace"
)

// ErrUnsupportedInstruction is returned when Pass 0 cannot decode or
// classify an instruction and the caller has no existing instructions to
// fall back on, meaning the block cannot be translated at all (spec.md
// §4.2: "failure to translate an instruction forces falling back to the
// interpreter for that block").
var ErrUnsupportedInstruction = fmt.Errorf("translator: unsupported instruction, fall back to interpreter")

// Translator runs the four-pass pipeline and publishes the result into a
// BlockCache.
type Translator struct {
	Arena    *arena.Arena
	Cache    *blockcache.BlockCache
	Config   *config.Config
	Counters *perf.Counters

	// Tracer, if non-nil, receives one BlockRecord per successful
	// translation (the block dump cmd/dbt64 enables when DBT64_DUMP_BLOCKS
	// is set, SPEC_FULL.md §6).
	Tracer *trace.JSONLTraceWriter
}

// New creates a Translator bound to the given arena, cache, and config (a
// nil config uses defaults, a nil Counters disables metrics).
func New(a *arena.Arena, cache *blockcache.BlockCache, cfg *config.Config, counters *perf.Counters) *Translator {
	return &Translator{Arena: a, Cache: cache, Config: cfg, Counters: counters}
}

// Translate runs Discovery, Analysis, Sizing, and Emission over guest
// bytes starting at start, returning the published block (spec.md §4.2).
// code must hold at least enough bytes to cover one maximal block; the
// translator never reads past config.MaxBlockBytes.
func (t *Translator) Translate(start uint64, code []byte, pages PageWritabilityChecker) (*EmitResult, error) {
	if t.Config != nil && t.Config.DisableJIT {
		if t.Counters != nil {
			t.Counters.InterpreterFallbacks.Add(1)
		}
		return nil, ErrUnsupportedInstruction
	}
	disc, err := Discover(code, start, t.Config, pages)
	if err != nil {
		if t.Counters != nil {
			t.Counters.InterpreterFallbacks.Add(1)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedInstruction, err)
	}
	if len(disc.Insns) == 0 {
		if t.Counters != nil {
			t.Counters.InterpreterFallbacks.Add(1)
		}
		return nil, ErrUnsupportedInstruction
	}

	analysis := Analyze(disc)
	sizing := Size(disc, analysis)

	regAlloc := allocateHostRegisters(disc)
	sourceBytes := code[:disc.End()-start]

	result, err := Emit(t.Arena, t.Cache, sourceBytes, sizing, t.Cache.MissStub, regAlloc, t.Tracer)
	if err != nil {
		return nil, fmt.Errorf("translator: emit block at %#x: %w", start, err)
	}

	if t.Counters != nil {
		t.Counters.Translations.Add(1)
	}
	log.Debug(log.Translate, "translated block", "guestStart", fmt.Sprintf("%#x", start),
		"guestBytes", len(sourceBytes), "hostBytes", sizing.TotalHostBytes)

	return result, nil
}

// allocateHostRegisters picks a fixed guest-GPR-to-host-register subset to
// keep resident for the block's duration. A real register allocator would
// weigh usage counts per spec.md §4.4's "mapping is fixed (not per-block)
// for the always-resident set, but additional registers may be cached
// opportunistically"; this engine keeps the always-resident mapping the
// prolog/epilog already assume and allocates nothing extra, which is
// always correct (just not always fastest).
func allocateHostRegisters(d *Discovery) map[int]codegen.Reg {
	return map[int]codegen.Reg{}
}
