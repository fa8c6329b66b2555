package cpu

import "testing"

type fakeShared struct{}

func (fakeShared) ForkRecordCount() int { return 0 }

func TestReconstructFlagZFSF(t *testing.T) {
	d := DeferredFlags{Op: OpSub, Width: 4, Op1: 5, Op2: 5, Result: 0}
	if !ReconstructFlag(d, FlagZF) {
		t.Errorf("expected ZF set for 5-5=0")
	}
	if ReconstructFlag(d, FlagSF) {
		t.Errorf("expected SF clear for non-negative result")
	}
}

func TestReconstructCFSubBorrow(t *testing.T) {
	d := DeferredFlags{Op: OpSub, Width: 1, Op1: 1, Op2: 2, Result: 0xFF}
	if !ReconstructFlag(d, FlagCF) {
		t.Errorf("expected CF set: 1-2 borrows")
	}
}

func TestMaterializeWritesFlagsWord(t *testing.T) {
	c := New(fakeShared{}, 0x1000)
	c.Deferred = DeferredFlags{Op: OpAdd, Width: 8, Op1: 1, Op2: 1, Result: 2}
	c.Materialize()
	if c.Flags&FlagZF != 0 {
		t.Errorf("ZF should be clear for 1+1=2")
	}
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	c := New(fakeShared{}, 0)
	c.GPR[RAX] = 42
	snap := c.Snapshot()
	c.GPR[RAX] = 99
	if snap.GPR[RAX] != 42 {
		t.Errorf("snapshot should not observe later mutation")
	}
}
