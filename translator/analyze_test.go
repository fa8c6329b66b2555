package translator

import "testing"

func TestAnalyzeConditionalBranchNeverMaterializes(t *testing.T) {
	// 48 39 d8    cmp rax, rbx
	// 75 00       jne +0
	code := []byte{0x48, 0x39, 0xd8, 0x75, 0x00}
	d, err := Discover(code, 0x401000, nil, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	a := Analyze(d)
	if len(a.Materialize) != len(d.Insns) {
		t.Fatalf("Materialize length mismatch")
	}
	for i, insn := range d.Insns {
		if insn.Class == ClassConditionalBranch && a.Materialize[i] {
			t.Fatalf("conditional branch at %d should never require materialization", i)
		}
	}
}

func TestAnalyzeMaterializesAtBlockEnd(t *testing.T) {
	code := movAddRet // mov, add, ret — add defines flags observed by nothing in-block
	d, err := Discover(code, 0x401000, nil, nil)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	a := Analyze(d)
	if len(a.Materialize) != 3 {
		t.Fatalf("got %d materialize flags, want 3", len(a.Materialize))
	}
	if !a.Materialize[1] {
		t.Fatalf("add's flags reach the block exit and must be materialized")
	}
}
