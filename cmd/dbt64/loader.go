package main

import (
	"debug/elf"
	"fmt"
)

// loadedImage is the minimal view this command needs of a loaded guest
// ELF: spec.md §1 puts the real loader out of scope ("ELF parsing,
// loader, relocation processor" are external collaborators), so this is
// the thinnest possible stand-in that satisfies the core's contract
// (spec.md §6: "by the time the dispatcher runs, the guest code pages are
// mapped executable and readable at their guest-visible addresses").
//
// Uses the standard library's debug/elf rather than a third-party ELF
// library because the loader itself is explicitly out of this module's
// scope (spec.md §1) — a full loader (relocation, dynamic linking, GOT
// patching) is exactly the part spec.md says to treat as an external
// collaborator, so this command only needs enough of debug/elf to find an
// entry point and its code bytes for a static, non-PIE test binary, not a
// production-grade loader.
type loadedImage struct {
	LoadBase   uint64
	LoadExtent uint64
	EntryPoint uint64
	TLSImage   []byte

	segments []elfSegment
}

type elfSegment struct {
	VAddr uint64
	Data  []byte
}

func loadELF(path string) (*loadedImage, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if f.Machine != elf.EM_X86_64 {
		return nil, fmt.Errorf("not an x86_64 ELF: %s", f.Machine)
	}

	img := &loadedImage{EntryPoint: f.Entry}
	var minAddr, maxAddr uint64 = ^uint64(0), 0

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			if prog.Type == elf.PT_TLS {
				data := make([]byte, prog.Filesz)
				if _, err := prog.ReadAt(data, 0); err != nil && prog.Filesz > 0 {
					return nil, fmt.Errorf("read PT_TLS: %w", err)
				}
				img.TLSImage = data
			}
			continue
		}
		data := make([]byte, prog.Filesz)
		if prog.Filesz > 0 {
			if _, err := prog.ReadAt(data, 0); err != nil {
				return nil, fmt.Errorf("read PT_LOAD at %#x: %w", prog.Vaddr, err)
			}
		}
		img.segments = append(img.segments, elfSegment{VAddr: prog.Vaddr, Data: data})

		if prog.Vaddr < minAddr {
			minAddr = prog.Vaddr
		}
		if end := prog.Vaddr + prog.Memsz; end > maxAddr {
			maxAddr = end
		}
	}

	img.LoadBase = minAddr
	img.LoadExtent = maxAddr
	return img, nil
}

// ReadGuestCode implements dispatcher.GuestReader by slicing into whichever
// loaded segment covers addr.
func (img *loadedImage) ReadGuestCode(addr uint64, maxLen int) []byte {
	for _, seg := range img.segments {
		if addr < seg.VAddr || addr >= seg.VAddr+uint64(len(seg.Data)) {
			continue
		}
		off := addr - seg.VAddr
		end := len(seg.Data)
		if maxLen > 0 && int(off)+maxLen < end {
			end = int(off) + maxLen
		}
		return seg.Data[off:end]
	}
	return nil
}
