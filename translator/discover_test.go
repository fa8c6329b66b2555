package translator

import "testing"

// 48 89 d8          mov rax, rbx
// 48 01 d8          add rax, rbx
// c3                ret
var movAddRet = []byte{0x48, 0x89, 0xd8, 0x48, 0x01, 0xd8, 0xc3}

func TestDiscoverStopsAtReturn(t *testing.T) {
	d, err := Discover(movAddRet, 0x401000, nil, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(d.Insns) != 3 {
		t.Fatalf("got %d instructions, want 3", len(d.Insns))
	}
	if d.Terminal != TerminalUnconditionalTransfer {
		t.Fatalf("Terminal = %v, want TerminalUnconditionalTransfer", d.Terminal)
	}
	if got := d.Insns[2].Class; got != ClassReturn {
		t.Fatalf("last insn class = %v, want ClassReturn", got)
	}
	if d.End() != 0x401000+7 {
		t.Fatalf("End() = %#x, want %#x", d.End(), 0x401000+7)
	}
}

func TestDiscoverTerminatesBeforeUnsupportedShift(t *testing.T) {
	// 48 89 d8    mov rax, rbx
	// 48 d1 e0    shl rax, 1 (variable/implicit shift count: no expansion
	//             in expand.go, tracked in DESIGN.md)
	// c3          ret (never reached by Discover)
	code := []byte{0x48, 0x89, 0xd8, 0x48, 0xd1, 0xe0, 0xc3}
	d, err := Discover(code, 0x401000, nil, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(d.Insns) != 1 {
		t.Fatalf("got %d instructions, want 1 (block must stop before the shl)", len(d.Insns))
	}
	if d.Terminal != TerminalUnsupported {
		t.Fatalf("Terminal = %v, want TerminalUnsupported", d.Terminal)
	}
}

func TestDiscoverReturnsErrorWhenFirstInsnUnsupported(t *testing.T) {
	// 48 d1 e0    shl rax, 1 as the very first instruction: there is no
	//             partial block to hand back, so Discover must report the
	//             sentinel error instead of a zero-length Discovery
	//             (spec.md §7's interpreter-fallback contract).
	code := []byte{0x48, 0xd1, 0xe0}
	if _, err := Discover(code, 0x401000, nil, nil); err != ErrUnsupportedInstruction {
		t.Fatalf("Discover error = %v, want ErrUnsupportedInstruction", err)
	}
}

type alwaysWritable struct{}

func (alwaysWritable) IsWritable(uint64) bool { return true }

func TestDiscoverTerminatesOnWritablePage(t *testing.T) {
	d, err := Discover(movAddRet, 0x401000, nil, alwaysWritable{})
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(d.Insns) != 0 {
		t.Fatalf("expected zero instructions when first page is writable")
	}
	if d.Terminal != TerminalWritablePage {
		t.Fatalf("Terminal = %v, want TerminalWritablePage", d.Terminal)
	}
}

func TestDiscoverLabelsConditionalBranchTarget(t *testing.T) {
	// 75 00       jne +0 (targets the next instruction, itself)
	// c3          ret
	code := []byte{0x75, 0x00, 0xc3}
	d, err := Discover(code, 0x401000, nil, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(d.Insns) != 2 {
		t.Fatalf("got %d instructions, want 2", len(d.Insns))
	}
	if _, ok := d.Labels[0x401002]; !ok {
		t.Fatalf("expected a label recorded for the branch target, got %v", d.Labels)
	}
}
