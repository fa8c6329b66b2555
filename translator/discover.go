package translator

import "github.com/coldforge/dbt64/config"

// Discovery is Pass 0's output: the maximal straight-line instruction run
// starting at Start, its intra-block branch targets, and the reason the
// run terminated (spec.md §4.2).
type Discovery struct {
	Start uint64
	Insns []DecodedInsn

	// Labels maps an intra-block branch target address to the index into
	// Insns where it lands, used by Pass 1 to place barriers and by Pass 3
	// to resolve host branch labels (spec.md §4.2's "pass-1 label table").
	// A target that does not start a discovered instruction is not recorded.
	Labels map[uint64]int

	// Terminal records why the block ended, for diagnostics and for the
	// emitter's choice of epilog kind.
	Terminal TerminalReason
}

// TerminalReason is why Pass 0 stopped extending the block.
type TerminalReason int

const (
	TerminalUnconditionalTransfer TerminalReason = iota // ret, indirect jump, direct jmp, syscall; an unhandled opcode ends the block with TerminalUnsupported
	TerminalSizeCeiling
	TerminalWritablePage
	TerminalUnsupported
)

// PageWritabilityChecker abstracts the SMC detector's page-protection query so
// Pass 0 can force a terminal boundary the moment it would cross into
// guest code whose source page is writable (spec.md §4.2: "forcing a
// terminal boundary so SMC cannot silently extend a block").
type PageWritabilityChecker interface {
	IsWritable(guestAddr uint64) bool
}

// Discover runs Pass 0 over code (guest bytes starting at start),
// decoding until the block naturally terminates.
func Discover(code []byte, start uint64, cfg *config.Config, pages PageWritabilityChecker) (*Discovery, error) {
	d := &Discovery{Start: start, Labels: make(map[uint64]int)}
	defer func() {
		for target := range d.Labels {
			d.Labels[target] = -1
			for i, insn := range d.Insns {
				if insn.Addr == target {
					d.Labels[target] = i
					break
				}
			}
			if d.Labels[target] < 0 {
				delete(d.Labels, target)
			}
		}
	}()

	maxBytes := config.DefaultMaxBlockBytes
	if cfg != nil && cfg.MaxBlockBytes > 0 {
		maxBytes = cfg.MaxBlockBytes
	}

	offset := 0
	for offset < len(code) {
		addr := start + uint64(offset)

		if pages != nil && pages.IsWritable(addr) {
			d.Terminal = TerminalWritablePage
			break
		}

		insn, err := DecodeOne(code[offset:], addr)
		if err != nil || insn.Class == ClassUnsupported || !Supported(insn) {
			// spec.md §7: an instruction Pass 3 cannot actually expand must
			// terminate the block here rather than silently fall through to
			// emitInstruction's single-NOP fallback (Supported consults the
			// same per-class predicates expand.go's word-count/emit
			// functions use, so the two can never disagree about what's
			// translatable).
			if len(d.Insns) == 0 {
				if err != nil {
					return nil, err
				}
				return nil, ErrUnsupportedInstruction
			}
			d.Terminal = TerminalUnsupported
			break
		}

		if offset+insn.Inst.Len > maxBytes {
			d.Terminal = TerminalSizeCeiling
			break
		}

		d.Insns = append(d.Insns, insn)
		if insn.HasTarget && insn.Target >= start && insn.Target < start+uint64(len(code)) {
			d.Labels[insn.Target] = -1 // resolved to an index when Discover returns
		}

		offset += insn.Inst.Len

		switch insn.Class {
		case ClassReturn, ClassIndirectJump, ClassDirectBranch, ClassSyscall:
			d.Terminal = TerminalUnconditionalTransfer
			return d, nil
		}
	}
	return d, nil
}

// End returns the exclusive guest end address of the discovered run.
func (d *Discovery) End() uint64 {
	if len(d.Insns) == 0 {
		return d.Start
	}
	last := d.Insns[len(d.Insns)-1]
	return last.Addr + uint64(last.Inst.Len)
}
