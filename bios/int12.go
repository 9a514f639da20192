package bios

import "github.com/rcornwell/pcemu/cpu"

// int12 implements INT 12h: returns conventional memory size in KB in AX.
func (s *Services) int12() {
	kb := s.MemSizeKB
	if kb > 640 { // conventional memory ends at 640 KiB
		kb = 640
	}
	s.CPU.SetGPR16(cpu.RAX, uint16(kb))
}

// int08 implements the INT 08h system timer tick: increments the BIOS
// data area's tick counter at 0040:006C and handles the midnight
// rollover, per spec.md 4.I. It only updates that state; it does not
// chain to INT 1Ch.
func (s *Services) int08() {
	const bdaTickAddr = 0x46C
	ticks := s.Mem.Read32(bdaTickAddr)
	ticks++
	if ticks >= 0x1800B0 { // approx. 24h at 18.2Hz, BIOS midnight rollover
		ticks = 0
		s.Mem.Write8(midnightFlagAddr, s.Mem.Read8(midnightFlagAddr)|0x1)
	}
	s.Mem.Write32(bdaTickAddr, ticks)
}
