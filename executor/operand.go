package executor

import (
	"github.com/rcornwell/pcemu/cpu"
	"github.com/rcornwell/pcemu/decoder"
)

// regNum combines a 3-bit ModR/M field with the REX extension bit it pairs
// with (R for reg, X for index, B for rm/base), per spec.md 4.E's REX table.
func regNum(field uint8, rexBit uint8, ins *decoder.Instruction) uint8 {
	n := field
	if ins.HasREX && ins.REX&rexBit != 0 {
		n |= 0x8
	}
	return n
}

// regValue reads a general register of the given bit width, honoring the
// legacy AH/CH/DH/BH encoding for 8-bit operands without REX.
func (e *Executor) regValue(n uint8, width int, ins *decoder.Instruction) uint64 {
	switch width {
	case 8:
		if !ins.HasREX && n >= 4 && n < 8 {
			return uint64(e.CPU.GPR8High(int(n & 0x3)))
		}
		return uint64(e.CPU.GPR8Low(int(n)))
	case 16:
		return uint64(uint16(e.CPU.GPR(int(n))))
	case 32:
		return uint64(uint32(e.CPU.GPR(int(n))))
	default:
		return e.CPU.GPR(int(n))
	}
}

func (e *Executor) setRegValue(n uint8, width int, ins *decoder.Instruction, v uint64) {
	switch width {
	case 8:
		if !ins.HasREX && n >= 4 && n < 8 {
			e.CPU.SetGPR8High(int(n&0x3), uint8(v))
			return
		}
		e.CPU.SetGPR8Low(int(n), uint8(v))
	case 16:
		e.CPU.SetGPR16(int(n), uint16(v))
	case 32:
		e.CPU.SetGPR32(int(n), uint32(v))
	default:
		e.CPU.SetGPR64(int(n), v)
	}
}

// effectiveAddress computes the ModR/M's memory offset (before segment base
// is applied), per spec.md 4.E's SIB/disp rules, and the default segment
// for that addressing form.
func (e *Executor) effectiveAddress(ins *decoder.Instruction) (uint64, int) {
	m := ins.ModRM
	seg := decoder.DefaultSegment(m, ins.AddressSize)

	var addr uint64
	if ins.AddressSize == 16 {
		switch m.RM {
		case 0:
			addr = e.reg16(cpu.RBX) + e.reg16(cpu.RSI)
		case 1:
			addr = e.reg16(cpu.RBX) + e.reg16(cpu.RDI)
		case 2:
			addr = e.reg16(cpu.RBP) + e.reg16(cpu.RSI)
		case 3:
			addr = e.reg16(cpu.RBP) + e.reg16(cpu.RDI)
		case 4:
			addr = e.reg16(cpu.RSI)
		case 5:
			addr = e.reg16(cpu.RDI)
		case 6:
			if m.Mod == 0 {
				addr = 0 // disp16 only, no base register
			} else {
				addr = e.reg16(cpu.RBP)
			}
		case 7:
			addr = e.reg16(cpu.RBX)
		}
		addr = uint64(uint16(addr + uint64(m.Disp)))
		return addr, seg
	}

	if m.HasSIB {
		var base, index uint64
		baseReg := regNum(m.SIB.Base, 0x1, ins)
		if !(m.Mod == 0 && m.SIB.Base == 5) {
			base = e.gprWidth(baseReg, ins.AddressSize)
		}
		if m.SIB.Index != 4 || ins.HasREX && ins.REX&0x2 != 0 {
			indexReg := regNum(m.SIB.Index, 0x2, ins)
			index = e.gprWidth(indexReg, ins.AddressSize) << m.SIB.Scale
		}
		addr = base + index
	} else if m.RIPRelative {
		addr = e.CPU.RIP() + ins.Length
	} else {
		baseReg := regNum(m.RM, 0x1, ins)
		if !(m.Mod == 0 && m.RM == 5) {
			addr = e.gprWidth(baseReg, ins.AddressSize)
		}
	}
	addr += uint64(m.Disp)

	if ins.AddressSize == 32 {
		addr = uint64(uint32(addr))
	}
	return addr, seg
}

func (e *Executor) reg16(n uint8) uint64 { return uint64(uint16(e.CPU.GPR(int(n)))) }

func (e *Executor) gprWidth(n uint8, width int) uint64 {
	switch width {
	case 16:
		return uint64(uint16(e.CPU.GPR(int(n))))
	case 32:
		return uint64(uint32(e.CPU.GPR(int(n))))
	default:
		return e.CPU.GPR(int(n))
	}
}

// loadRM reads the r/m operand (register if mod==3, else memory) at the
// instruction's resolved operand width.
func (e *Executor) loadRM(ins *decoder.Instruction, width int) (uint64, error) {
	if ins.ModRM.Mod == 3 {
		n := regNum(ins.ModRM.RM, 0x1, ins)
		return e.regValue(n, width, ins), nil
	}
	off, defSeg := e.effectiveAddress(ins)
	seg := e.effectiveSegment(ins, defSeg)
	return e.readLinear(seg, off, width, false)
}

// storeRM writes the r/m operand.
func (e *Executor) storeRM(ins *decoder.Instruction, width int, v uint64) error {
	if ins.ModRM.Mod == 3 {
		n := regNum(ins.ModRM.RM, 0x1, ins)
		e.setRegValue(n, width, ins, v)
		return nil
	}
	off, defSeg := e.effectiveAddress(ins)
	seg := e.effectiveSegment(ins, defSeg)
	return e.writeLinear(seg, off, width, v)
}

// regOperand returns the Reg-field register's current value/setter at the
// instruction's resolved operand width.
func (e *Executor) regOperand(ins *decoder.Instruction, width int) uint64 {
	n := regNum(ins.ModRM.Reg, 0x4, ins)
	return e.regValue(n, width, ins)
}

func (e *Executor) setRegOperand(ins *decoder.Instruction, width int, v uint64) {
	n := regNum(ins.ModRM.Reg, 0x4, ins)
	e.setRegValue(n, width, ins, v)
}
