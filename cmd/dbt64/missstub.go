package main

import "github.com/coldforge/dbt64/codegen"

// newMissStubAssembler assembles the single shared miss stub every
// BlockCache leaf slot points to before a block at that address has been
// translated (spec.md §4.3). It is allocated once at startup and its
// address is handed to blockcache.New and sharedctx.New as the sentinel
// every inline lookup falls back to.
func newMissStubAssembler() []byte {
	asm := codegen.NewAssembler()
	codegen.EmitMissStub(asm)
	return asm.Bytes()
}
