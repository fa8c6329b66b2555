//go:build arm64

package arena

/*
void dbt64_clear_cache(void *start, void *end) {
	__builtin___clear_cache(start, end);
}
*/
import "C"
import "unsafe"

// FlushInstructionCache synchronizes the host I-cache and D-cache over a
// freshly emitted code range. ARM64 (unlike x86_64) does not keep the two
// coherent automatically, so every block must flush before its entry point
// is published into the cache's leaf slot (spec.md §4.3's publication
// ordering: "a block is made visible ... only after its code is written
// and i-cache flushed").
func FlushInstructionCache(code []byte) {
	if len(code) == 0 {
		return
	}
	start := unsafe.Pointer(&code[0])
	end := unsafe.Add(start, len(code)) // exclusive end
	C.dbt64_clear_cache(start, end)
}
