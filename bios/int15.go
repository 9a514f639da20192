package bios

import "github.com/rcornwell/pcemu/cpu"

// int15 implements the INT 15h system services subset spec.md 4.I calls
// for: AH=88 get extended memory size (AX, KB above 1MB), AX=E820h system
// memory map query.
func (s *Services) int15() {
	switch s.ah() {
	case 0x88:
		above1M := uint16(0)
		if s.MemSizeKB > 1024 {
			v := s.MemSizeKB - 1024
			if v > 0xFFFF {
				v = 0xFFFF
			}
			above1M = uint16(v)
		}
		s.CPU.SetGPR16(cpu.RAX, above1M)
		s.setCF(false)
	case 0xE8:
		s.e820()
	default:
		s.fail(0x86) // unsupported function
	}
}

// e820 answers the AX=E820h memory map query with a single entry
// covering all of configured RAM as type 1 (usable), the minimum a
// guest's memory-map loop needs to terminate.
func (s *Services) e820() {
	di := s.gpr16(cpu.RDI)
	esSel := s.CPU.Selector(cpu.ES)
	base := uint64(esSel)<<4 + uint64(di)

	s.Mem.Write64(base, 0)                          // base address
	s.Mem.Write64(base+8, uint64(s.MemSizeKB)*1024) // length
	s.Mem.Write32(base+16, 1)                       // type 1: usable RAM

	s.CPU.SetGPR32(cpu.RAX, 0x534D4150) // "SMAP" signature
	s.CPU.SetGPR32(cpu.RCX, 20)
	s.CPU.SetGPR32(cpu.RBX, 0) // no continuation; single-region map
	s.setCF(false)
}
