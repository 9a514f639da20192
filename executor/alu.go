package executor

import "github.com/rcornwell/pcemu/cpu"

func widthMask(width int) uint64 {
	switch width {
	case 8:
		return 0xFF
	case 16:
		return 0xFFFF
	case 32:
		return 0xFFFFFFFF
	default:
		return 0xFFFFFFFFFFFFFFFF
	}
}

func signBit(width int) uint64 { return 1 << (width - 1) }

func parity8(v uint8) bool {
	v ^= v >> 4
	v ^= v >> 2
	v ^= v >> 1
	return v&1 == 0
}

// setLogicFlags updates SF/ZF/PF and clears CF/OF/AF, per the semantics of
// AND/OR/XOR/TEST.
func (e *Executor) setLogicFlags(result uint64, width int) {
	mask := widthMask(width)
	r := result & mask
	c := e.CPU
	c.SetFlag(cpu.FlagCF, false)
	c.SetFlag(cpu.FlagOF, false)
	c.SetFlag(cpu.FlagZF, r == 0)
	c.SetFlag(cpu.FlagSF, r&signBit(width) != 0)
	c.SetFlag(cpu.FlagPF, parity8(uint8(r)))
	c.SetFlag(cpu.FlagAF, false)
}

// addWithFlags computes a+b(+carryIn) at the given width and sets
// CF/OF/AF/ZF/SF/PF, returning the masked result.
func (e *Executor) addWithFlags(a, b uint64, width int, carryIn bool) uint64 {
	mask := widthMask(width)
	a &= mask
	b &= mask
	var cin uint64
	if carryIn {
		cin = 1
	}
	full := a + b + cin
	result := full & mask

	c := e.CPU
	c.SetFlag(cpu.FlagCF, full > mask)
	c.SetFlag(cpu.FlagAF, (a&0xF)+(b&0xF)+cin > 0xF)
	c.SetFlag(cpu.FlagZF, result == 0)
	c.SetFlag(cpu.FlagSF, result&signBit(width) != 0)
	c.SetFlag(cpu.FlagPF, parity8(uint8(result)))
	aSign := a&signBit(width) != 0
	bSign := b&signBit(width) != 0
	rSign := result&signBit(width) != 0
	c.SetFlag(cpu.FlagOF, aSign == bSign && aSign != rSign)
	return result
}

// subWithFlags computes a-b(-borrowIn) at the given width and sets flags
// as CMP/SUB/SBB do, returning the masked result.
func (e *Executor) subWithFlags(a, b uint64, width int, borrowIn bool) uint64 {
	mask := widthMask(width)
	a &= mask
	b &= mask
	var bin uint64
	if borrowIn {
		bin = 1
	}
	result := (a - b - bin) & mask

	c := e.CPU
	c.SetFlag(cpu.FlagCF, a < b+bin)
	c.SetFlag(cpu.FlagAF, (a&0xF) < (b&0xF)+bin)
	c.SetFlag(cpu.FlagZF, result == 0)
	c.SetFlag(cpu.FlagSF, result&signBit(width) != 0)
	c.SetFlag(cpu.FlagPF, parity8(uint8(result)))
	aSign := a&signBit(width) != 0
	bSign := b&signBit(width) != 0
	rSign := result&signBit(width) != 0
	c.SetFlag(cpu.FlagOF, aSign != bSign && bSign == rSign)
	return result
}

// incWithFlags/decWithFlags update AF/ZF/SF/OF/PF for INC/DEC, which by definition
// leave CF unaffected.
func (e *Executor) incWithFlags(a uint64, width int) uint64 {
	cf := e.CPU.FlagSet(cpu.FlagCF)
	r := e.addWithFlags(a, 1, width, false)
	e.CPU.SetFlag(cpu.FlagCF, cf)
	return r
}

func (e *Executor) decWithFlags(a uint64, width int) uint64 {
	cf := e.CPU.FlagSet(cpu.FlagCF)
	r := e.subWithFlags(a, 1, width, false)
	e.CPU.SetFlag(cpu.FlagCF, cf)
	return r
}

// aluOp dispatches the eight classic ALU operations (ADD,OR,ADC,SBB,
// AND,SUB,XOR,CMP), matching the /0../7 grouping of opcodes 00-3D and the
// 80/81/83 immediate-group encodings.
func (e *Executor) aluOp(which uint8, a, b uint64, width int) (uint64, bool) {
	switch which {
	case 0: // ADD
		return e.addWithFlags(a, b, width, false), true
	case 1: // OR
		r := (a | b) & widthMask(width)
		e.setLogicFlags(r, width)
		return r, true
	case 2: // ADC
		return e.addWithFlags(a, b, width, e.CPU.FlagSet(cpu.FlagCF)), true
	case 3: // SBB
		return e.subWithFlags(a, b, width, e.CPU.FlagSet(cpu.FlagCF)), true
	case 4: // AND
		r := (a & b) & widthMask(width)
		e.setLogicFlags(r, width)
		return r, true
	case 5: // SUB
		return e.subWithFlags(a, b, width, false), true
	case 6: // XOR
		r := (a ^ b) & widthMask(width)
		e.setLogicFlags(r, width)
		return r, true
	case 7: // CMP: flags only, no writeback
		e.subWithFlags(a, b, width, false)
		return a, false
	}
	return a, false
}
