package threadfork

import (
	"testing"

	"github.com/coldforge/dbt64/cpu"
	"github.com/coldforge/dbt64/sharedctx"
)

func TestCleanupStackIsLIFO(t *testing.T) {
	h := New(nil, 0x401000, 0)
	h.PushCleanup(CleanupRecord{JmpBufAddr: 1})
	h.PushCleanup(CleanupRecord{JmpBufAddr: 2})
	h.PushCleanup(CleanupRecord{JmpBufAddr: 3})

	if h.CleanupDepth() != 3 {
		t.Fatalf("CleanupDepth = %d, want 3", h.CleanupDepth())
	}

	var order []uint64
	h.RunCancellation(func(r CleanupRecord) bool {
		order = append(order, r.JmpBufAddr)
		return true
	})

	want := []uint64{3, 2, 1}
	if len(order) != len(want) {
		t.Fatalf("got %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("got %v, want %v", order, want)
		}
	}
	if !h.Cpu.Quit.Load() {
		t.Fatalf("expected Quit set after cleanup stack drained")
	}
}

type fakeShared struct {
	records []sharedctx.AtForkRecord
}

func (f fakeShared) ForkRecords() []sharedctx.AtForkRecord { return f.records }

func TestForkProtocolOrdering(t *testing.T) {
	s := fakeShared{records: []sharedctx.AtForkRecord{
		{Prepare: 1, Parent: 10, Child: 100},
		{Prepare: 2, Parent: 20, Child: 200},
	}}

	var prepareOrder, parentOrder, childOrder []uint64
	reinitCalled := false

	result := RunForkProtocol(s, cpu.ForkPlain,
		func() (int64, bool) { return 42, true },
		func(p uint64) { prepareOrder = append(prepareOrder, p) },
		func(p uint64) { parentOrder = append(parentOrder, p) },
		func(p uint64) { childOrder = append(childOrder, p) },
		func() { reinitCalled = true },
		func() {},
	)

	if result != 42 {
		t.Fatalf("result = %d, want 42", result)
	}
	if len(prepareOrder) != 2 || prepareOrder[0] != 2 || prepareOrder[1] != 1 {
		t.Fatalf("prepare order = %v, want reverse registration order [2,1]", prepareOrder)
	}
	if len(parentOrder) != 2 || parentOrder[0] != 10 || parentOrder[1] != 20 {
		t.Fatalf("parent order = %v, want registration order [10,20]", parentOrder)
	}
	if len(childOrder) != 0 {
		t.Fatalf("child callbacks should not run in the parent branch")
	}
	if reinitCalled {
		t.Fatalf("reinitLocks should not run in the parent branch")
	}
}

func TestForkProtocolChildBranch(t *testing.T) {
	s := fakeShared{records: []sharedctx.AtForkRecord{{Prepare: 1, Parent: 10, Child: 100}}}

	var childOrder []uint64
	reinitCalled := false

	RunForkProtocol(s, cpu.ForkPlain,
		func() (int64, bool) { return 0, false },
		func(uint64) {},
		func(uint64) { t.Fatalf("parent callbacks should not run in the child branch") },
		func(p uint64) { childOrder = append(childOrder, p) },
		func() { reinitCalled = true },
		func() {},
	)

	if len(childOrder) != 1 || childOrder[0] != 100 {
		t.Fatalf("child order = %v, want [100]", childOrder)
	}
	if !reinitCalled {
		t.Fatalf("expected reinitLocks to run in the child branch")
	}
}

func TestForkProtocolVforkBlocksParent(t *testing.T) {
	s := fakeShared{}
	blocked := false

	RunForkProtocol(s, cpu.ForkVforkLike,
		func() (int64, bool) { return 7, true },
		func(uint64) {}, func(uint64) {}, func(uint64) {},
		func() {},
		func() { blocked = true },
	)

	if !blocked {
		t.Fatalf("expected vfork-like parent to block on the child")
	}
}
