package bios

import "github.com/rcornwell/pcemu/cpu"

// midnightFlagAddr is the BIOS data area byte int08 sets when the tick
// counter rolls over a day's worth of ticks; AH=00 reads and clears it.
const midnightFlagAddr = 0x470

// int1A implements the INT 1Ah time-of-day subset spec.md 4.I calls for:
// AH=00 get system timer tick count, AH=02 get RTC time (BCD), AH=04 get
// RTC date (BCD).
func (s *Services) int1A() {
	switch s.ah() {
	case 0x00:
		ticks := s.Mem.Read32(0x46C)
		s.CPU.SetGPR16(cpu.RCX, uint16(ticks>>16))
		s.CPU.SetGPR16(cpu.RDX, uint16(ticks))
		s.setAL(s.Mem.Read8(midnightFlagAddr))
		s.Mem.Write8(midnightFlagAddr, 0)
	case 0x02:
		s.CPU.SetGPR8High(cpu.RCX, bcd(s.CMOS.Hours))   // CH = hours
		s.CPU.SetGPR8Low(cpu.RCX, bcd(s.CMOS.Minutes))  // CL = minutes
		s.CPU.SetGPR8High(cpu.RDX, bcd(s.CMOS.Seconds)) // DH = seconds
		s.CPU.SetGPR8Low(cpu.RDX, 0)                    // DL = daylight savings
		s.setCF(false)
	case 0x04:
		s.CPU.SetGPR8High(cpu.RCX, bcd(s.CMOS.Year/100+19)) // CH = century
		s.CPU.SetGPR8Low(cpu.RCX, bcd(s.CMOS.Year%100))      // CL = year
		s.CPU.SetGPR8High(cpu.RDX, bcd(s.CMOS.Month))        // DH = month
		s.CPU.SetGPR8Low(cpu.RDX, bcd(s.CMOS.Day))           // DL = day
		s.setCF(false)
	}
}

func bcd(v uint8) uint8 { return ((v / 10) << 4) | (v % 10) }
