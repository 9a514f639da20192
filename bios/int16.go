package bios

import "github.com/rcornwell/pcemu/cpu"

// int16 implements the INT 16h keyboard service subset spec.md 4.I calls
// for: AH=00/10 read key (blocking: an empty queue rewinds the return IP
// so the pending IRET re-enters the same INT instruction instead of
// returning with stale AX), AH=01/11 check for key (ZF set if none),
// AH=02 get shift flags. AH=10/11 are the "enhanced" (101/102-key)
// equivalents of 00/01; this emulator tracks no extended scan codes
// beyond what the keyboard source already reports, so they share the
// same implementation.
func (s *Services) int16() {
	switch s.ah() {
	case 0x00, 0x10:
		s.readKeyBlocking()
	case 0x01, 0x11:
		s.checkKey()
	case 0x02:
		s.setAL(0) // no shift/ctrl/alt state tracked
	}
}

// readKeyBlocking implements AH=00/10's contract: pop the next buffered
// key into AX, or, if none is queued yet, rewind the return IP by 2 so
// the instruction after BIOSReturn's IRET is the INT itself, causing the
// guest's blocking read to busy-wait until a key arrives.
func (s *Services) readKeyBlocking() {
	if s.Keys == nil {
		s.rewindReturnIP()
		return
	}
	ascii, scan, ok := s.Keys.PopKey()
	if !ok {
		s.rewindReturnIP()
		return
	}
	s.setAL(ascii)
	s.setAH(scan)
}

// checkKey implements AH=01/11: peek the next buffered key into AX with
// ZF clear, or set ZF with AX untouched when none is queued.
func (s *Services) checkKey() {
	if s.Keys == nil {
		s.CPU.SetFlag(cpu.FlagZF, true)
		return
	}
	ascii, scan, ok := s.Keys.PeekKey()
	if !ok {
		s.CPU.SetFlag(cpu.FlagZF, true)
		return
	}
	s.setAL(ascii)
	s.setAH(scan)
	s.CPU.SetFlag(cpu.FlagZF, false)
}

// rewindReturnIP decrements the word at SS:SP (the return IP an INT
// instruction just pushed) by 2, so the pending IRET re-executes the INT
// itself rather than advancing past it.
func (s *Services) rewindReturnIP() {
	base := uint64(s.CPU.Selector(cpu.SS))<<4 + uint64(s.gpr16(cpu.RSP))
	ip := s.Mem.Read16(base)
	s.Mem.Write16(base, ip-2)
}
