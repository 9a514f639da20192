package bios

import "github.com/rcornwell/pcemu/cpu"

// int10 implements the INT 10h video services subset spec.md 4.I calls
// for: AH=00 set video mode, AH=02 set cursor position, AH=03 get cursor
// position, AH=0E teletype output, AH=0F get video mode.
func (s *Services) int10() {
	switch s.ah() {
	case 0x00: // set video mode
		s.VGA.Mode = s.al()
	case 0x02: // set cursor position: DH=row DL=col, BH=page (ignored)
		dx := s.gpr16(cpu.RDX)
		row, col := uint8(dx>>8), uint8(dx)
		s.VGA.SetCursorPosition(uint16(row)*80 + uint16(col))
	case 0x03: // get cursor position
		pos := s.VGA.CursorPosition()
		row := uint8(pos / 80)
		col := uint8(pos % 80)
		s.CPU.SetGPR16(cpu.RDX, uint16(row)<<8|uint16(col))
		s.CPU.SetGPR16(cpu.RCX, 0x0607) // default cursor shape
	case 0x0E: // teletype output: AL=char
		pos := s.VGA.CursorPosition()
		if s.al() == '\n' {
			pos += 80 - pos%80
		} else if s.al() == '\r' {
			pos -= pos % 80
		} else {
			pos++
		}
		s.VGA.SetCursorPosition(pos)
	case 0x0F: // get video mode: AL=mode, AH=columns, BH=active page
		s.setAL(s.VGA.Mode)
		s.setAH(80)
		s.CPU.SetGPR8High(3, 0)
	}
	s.setCF(false)
}
