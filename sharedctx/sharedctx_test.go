package sharedctx

import "testing"

func TestRegisterAndFindELF(t *testing.T) {
	s := New(0xdead0000)
	s.RegisterELF(&ELFImage{Path: "/bin/guest", LoadBase: 0x400000, LoadExtent: 0x500000})

	img, ok := s.ELFContaining(0x450000)
	if !ok || img.Path != "/bin/guest" {
		t.Fatalf("ELFContaining failed to find loaded image")
	}
	if _, ok := s.ELFContaining(0x600000); ok {
		t.Fatalf("ELFContaining should not find unmapped address")
	}
}

func TestAtForkOrderingAndUnregister(t *testing.T) {
	s := New(0xdead0000)
	s.RegisterAtFork(AtForkRecord{Prepare: 1, Owner: 0x1})
	s.RegisterAtFork(AtForkRecord{Prepare: 2, Owner: 0x2})
	s.RegisterAtFork(AtForkRecord{Prepare: 3, Owner: 0x1})

	recs := s.ForkRecords()
	if len(recs) != 3 || recs[0].Prepare != 1 || recs[2].Prepare != 3 {
		t.Fatalf("ForkRecords out of registration order: %+v", recs)
	}

	s.UnregisterAtForkOwner(0x1)
	recs = s.ForkRecords()
	if len(recs) != 1 || recs[0].Owner != 0x2 {
		t.Fatalf("UnregisterAtForkOwner left wrong records: %+v", recs)
	}
	if s.ForkRecordCount() != 1 {
		t.Fatalf("ForkRecordCount = %d, want 1", s.ForkRecordCount())
	}
}

func TestTLSTemplateRoundTrip(t *testing.T) {
	s := New(0xdead0000)
	s.SetTLSTemplate([]byte{1, 2, 3, 4}, 65536)

	tmpl, size := s.TLSTemplate()
	if size != 65536 || len(tmpl) != 4 {
		t.Fatalf("TLSTemplate = %v,%d", tmpl, size)
	}
}
