package executor

import (
	"github.com/rcornwell/pcemu/cpu"
	"github.com/rcornwell/pcemu/decoder"
	"github.com/rcornwell/pcemu/fault"
)

// aluGroupBase maps an ALU opcode's high nibble-and-a-half to the eight
// classic operations, per the 00h/08h/10h/.../38h grouping of spec.md 4.E.
func aluGroupBase(op uint8) (which uint8, ok bool) {
	if op > 0x3D {
		return 0, false
	}
	group := op / 8
	form := op % 8
	if form > 5 {
		return 0, false
	}
	return group, true
}

func condTrue(c *cpu.State, cc uint8) bool {
	cf := c.FlagSet(cpu.FlagCF)
	zf := c.FlagSet(cpu.FlagZF)
	sf := c.FlagSet(cpu.FlagSF)
	of := c.FlagSet(cpu.FlagOF)
	pf := c.FlagSet(cpu.FlagPF)
	switch cc {
	case 0x0:
		return of
	case 0x1:
		return !of
	case 0x2:
		return cf
	case 0x3:
		return !cf
	case 0x4:
		return zf
	case 0x5:
		return !zf
	case 0x6:
		return cf || zf
	case 0x7:
		return !cf && !zf
	case 0x8:
		return sf
	case 0x9:
		return !sf
	case 0xA:
		return pf
	case 0xB:
		return !pf
	case 0xC:
		return sf != of
	case 0xD:
		return sf == of
	case 0xE:
		return zf || sf != of
	case 0xF:
		return !zf && sf == of
	}
	return false
}

// dispatch executes the decoded instruction, pulling any further bytes
// (ModR/M, immediate) it needs from cur.
func (e *Executor) dispatch(ins *decoder.Instruction, cur decoder.Cursor) error {
	if ins.TwoByte {
		return e.dispatchTwoByte(ins, cur)
	}

	op := ins.Opcode
	width := ins.OperandSize

	if which, ok := aluGroupBase(op); ok {
		form := op % 8
		return e.execALUForm(ins, cur, which, form, width)
	}

	switch {
	case op >= 0x50 && op <= 0x57: // PUSH r16/r32/r64
		n := regNum(op-0x50, 0x1, ins)
		return e.push(pushPopWidth(e.CPU), e.regValue(n, pushPopWidth(e.CPU), ins))
	case op >= 0x58 && op <= 0x5F: // POP r16/r32/r64
		n := regNum(op-0x58, 0x1, ins)
		v, err := e.pop(pushPopWidth(e.CPU))
		if err != nil {
			return err
		}
		e.setRegValue(n, pushPopWidth(e.CPU), ins, v)
		return nil
	case op >= 0xB0 && op <= 0xB7: // MOV r8, ib
		n := regNum(op-0xB0, 0x1, ins)
		v := e.Dec.DecodeImmediate(cur, ins, 8)
		e.setRegValue(n, 8, ins, uint64(v))
		return nil
	case op >= 0xB8 && op <= 0xBF: // MOV r16/32/64, iz/io
		n := regNum(op-0xB8, 0x1, ins)
		immWidth := width
		if immWidth == 64 {
			v := e.Dec.DecodeImmediate(cur, ins, 64)
			e.setRegValue(n, 64, ins, uint64(v))
			return nil
		}
		v := e.Dec.DecodeImmediate(cur, ins, immWidth)
		e.setRegValue(n, width, ins, uint64(v))
		return nil
	case op >= 0x70 && op <= 0x7F: // Jcc rel8
		rel := e.Dec.DecodeImmediate(cur, ins, 8)
		if condTrue(e.CPU, op-0x70) {
			e.branchTo(ins, rel)
		}
		return nil
	}

	switch op {
	case 0x88: // MOV Eb, Gb
		e.Dec.DecodeModRM(cur, ins)
		return e.storeRM(ins, 8, e.regOperand(ins, 8))
	case 0x89: // MOV Ev, Gv
		e.Dec.DecodeModRM(cur, ins)
		return e.storeRM(ins, width, e.regOperand(ins, width))
	case 0x8A: // MOV Gb, Eb
		e.Dec.DecodeModRM(cur, ins)
		v, err := e.loadRM(ins, 8)
		if err != nil {
			return err
		}
		e.setRegOperand(ins, 8, v)
		return nil
	case 0x8B: // MOV Gv, Ev
		e.Dec.DecodeModRM(cur, ins)
		v, err := e.loadRM(ins, width)
		if err != nil {
			return err
		}
		e.setRegOperand(ins, width, v)
		return nil
	case 0x8D: // LEA Gv, M
		e.Dec.DecodeModRM(cur, ins)
		off, _ := e.effectiveAddress(ins)
		e.setRegOperand(ins, width, off)
		return nil
	case 0xC6: // MOV Eb, ib
		e.Dec.DecodeModRM(cur, ins)
		v := e.Dec.DecodeImmediate(cur, ins, 8)
		return e.storeRM(ins, 8, uint64(v))
	case 0xC7: // MOV Ev, iz
		e.Dec.DecodeModRM(cur, ins)
		v := e.Dec.DecodeImmediate(cur, ins, min(width, 32))
		return e.storeRM(ins, width, uint64(v))
	case 0x80: // group1 Eb, ib
		e.Dec.DecodeModRM(cur, ins)
		imm := e.Dec.DecodeImmediate(cur, ins, 8)
		return e.execGroup1(ins, 8, uint64(imm))
	case 0x81: // group1 Ev, iz
		e.Dec.DecodeModRM(cur, ins)
		imm := e.Dec.DecodeImmediate(cur, ins, min(width, 32))
		return e.execGroup1(ins, width, uint64(imm))
	case 0x83: // group1 Ev, ib (sign-extended)
		e.Dec.DecodeModRM(cur, ins)
		imm := e.Dec.DecodeImmediate(cur, ins, 8)
		return e.execGroup1(ins, width, uint64(imm))
	case 0xFE: // INC/DEC Eb
		e.Dec.DecodeModRM(cur, ins)
		return e.execIncDecGroup(ins, 8)
	case 0xFF: // INC/DEC/CALL/JMP/PUSH Ev
		e.Dec.DecodeModRM(cur, ins)
		return e.execGroupFF(ins, width)
	case 0x90: // NOP
		return nil
	case 0x91, 0x92, 0x93, 0x94, 0x95, 0x96, 0x97: // XCHG acc, r
		n := regNum(op-0x90, 0x1, ins)
		a := e.regValue(cpu.RAX, width, ins)
		b := e.regValue(n, width, ins)
		e.setRegValue(cpu.RAX, width, ins, b)
		e.setRegValue(n, width, ins, a)
		return nil
	case 0x9C: // PUSHF
		return e.push(pushPopWidth(e.CPU), e.CPU.Flags())
	case 0x9D: // POPF
		v, err := e.pop(pushPopWidth(e.CPU))
		if err != nil {
			return err
		}
		e.CPU.SetFlags(v)
		return nil
	case 0x9E: // SAHF
		ah := e.CPU.GPR8High(0)
		e.CPU.SetFlags((e.CPU.Flags() &^ 0xFF) | uint64(ah))
		return nil
	case 0x9F: // LAHF
		e.CPU.SetGPR8High(0, uint8(e.CPU.Flags()))
		return nil
	case 0xE8: // CALL rel
		rel := e.Dec.DecodeImmediate(cur, ins, min(width, 32))
		ret := e.CPU.RIP() + ins.Length
		if err := e.push(pushPopWidth(e.CPU), ret); err != nil {
			return err
		}
		e.branchTo(ins, rel)
		return nil
	case 0xE9: // JMP rel32/16
		rel := e.Dec.DecodeImmediate(cur, ins, min(width, 32))
		e.branchTo(ins, rel)
		return nil
	case 0xEB: // JMP rel8
		rel := e.Dec.DecodeImmediate(cur, ins, 8)
		e.branchTo(ins, rel)
		return nil
	case 0xC2: // RET iw
		imm := e.Dec.DecodeImmediate(cur, ins, 16)
		ret, err := e.pop(pushPopWidth(e.CPU))
		if err != nil {
			return err
		}
		e.setSP(e.CPU.GPR(cpu.RSP) + uint64(imm))
		e.CPU.SetRIP(ret)
		ins.IsBranch = true
		return nil
	case 0xC3: // RET
		ret, err := e.pop(pushPopWidth(e.CPU))
		if err != nil {
			return err
		}
		e.CPU.SetRIP(ret)
		ins.IsBranch = true
		return nil
	case 0x9A: // CALL ptr16:16/32
		return e.farCall(ins, cur)
	case 0xEA: // JMP ptr16:16/32
		return e.farJmp(ins, cur)
	case 0xCA: // RETF iw
		imm := e.Dec.DecodeImmediate(cur, ins, 16)
		ins.IsBranch = true
		return e.retFar(pushPopWidth(e.CPU), uint16(imm))
	case 0xCB: // RETF
		ins.IsBranch = true
		return e.retFar(pushPopWidth(e.CPU), 0)
	case 0xCC: // INT3
		ins.IsBranch = true
		e.CPU.SetRIP(e.CPU.RIP() + ins.Length) // the pushed return IP is the next instruction
		return e.interruptByVector(fault.BP)
	case 0xCD: // INT ib
		vec := e.Dec.DecodeImmediate(cur, ins, 8)
		ins.IsBranch = true
		e.CPU.SetRIP(e.CPU.RIP() + ins.Length) // the pushed return IP is the next instruction
		return e.interruptByVector(uint8(vec))
	case 0xCF: // IRET
		ins.IsBranch = true
		return e.iret(pushPopWidth(e.CPU))
	case 0xF4: // HLT
		e.CPU.SetHalted(true)
		return nil
	case 0xF5: // CMC
		e.CPU.SetFlag(cpu.FlagCF, !e.CPU.FlagSet(cpu.FlagCF))
		return nil
	case 0xF8: // CLC
		e.CPU.SetFlag(cpu.FlagCF, false)
		return nil
	case 0xF9: // STC
		e.CPU.SetFlag(cpu.FlagCF, true)
		return nil
	case 0xFA: // CLI
		e.CPU.SetFlag(cpu.FlagIF, false)
		return nil
	case 0xFB: // STI
		e.CPU.SetFlag(cpu.FlagIF, true)
		e.CPU.SetInterruptShadow()
		return nil
	case 0xFC: // CLD
		e.CPU.SetFlag(cpu.FlagDF, false)
		return nil
	case 0xFD: // STD
		e.CPU.SetFlag(cpu.FlagDF, true)
		return nil
	case 0xE4: // IN AL, ib
		port := e.Dec.DecodeImmediate(cur, ins, 8)
		return e.ioIn(uint16(port), 8)
	case 0xE5: // IN eAX, ib
		port := e.Dec.DecodeImmediate(cur, ins, 8)
		return e.ioIn(uint16(port), width)
	case 0xE6: // OUT ib, AL
		port := e.Dec.DecodeImmediate(cur, ins, 8)
		return e.ioOut(uint16(port), 8)
	case 0xE7: // OUT ib, eAX
		port := e.Dec.DecodeImmediate(cur, ins, 8)
		return e.ioOut(uint16(port), width)
	case 0xEC: // IN AL, DX
		return e.ioIn(uint16(e.CPU.GPR(cpu.RDX)), 8)
	case 0xED: // IN eAX, DX
		return e.ioIn(uint16(e.CPU.GPR(cpu.RDX)), width)
	case 0xEE: // OUT DX, AL
		return e.ioOut(uint16(e.CPU.GPR(cpu.RDX)), 8)
	case 0xEF: // OUT DX, eAX
		return e.ioOut(uint16(e.CPU.GPR(cpu.RDX)), width)
	}

	// Unimplemented opcode: treated as #UD per spec.md 4.F's fallback.
	return fault.New(fault.UD)
}

func (e *Executor) ioIn(port uint16, width int) error {
	var v uint32
	if e.Ports != nil {
		v = e.Ports.In(port, width)
	} else {
		v = 0xFFFFFFFF
	}
	switch width {
	case 8:
		e.CPU.SetGPR8Low(cpu.RAX, uint8(v))
	case 16:
		e.CPU.SetGPR16(cpu.RAX, uint16(v))
	default:
		e.CPU.SetGPR32(cpu.RAX, v)
	}
	return nil
}

func (e *Executor) ioOut(port uint16, width int) error {
	if e.Ports == nil {
		return nil
	}
	v := uint32(e.regValue(cpu.RAX, width, &decoder.Instruction{}))
	e.Ports.Out(port, width, v)
	return nil
}

func pushPopWidth(c *cpu.State) int {
	if c.Mode() == cpu.ModeLong64 {
		return 64
	}
	if c.Cache(cpu.SS).DefaultBig {
		return 32
	}
	return 16
}

func (e *Executor) branchTo(ins *decoder.Instruction, rel int64) {
	target := e.CPU.RIP() + ins.Length + uint64(rel)
	if ins.AddressSize == 16 {
		target &= 0xFFFF
	} else if ins.AddressSize == 32 {
		target &= 0xFFFFFFFF
	}
	e.CPU.SetRIP(target)
	ins.IsBranch = true
}

func (e *Executor) execALUForm(ins *decoder.Instruction, cur decoder.Cursor, which uint8, form uint8, width int) error {
	switch form {
	case 0: // Eb, Gb
		e.Dec.DecodeModRM(cur, ins)
		a, err := e.loadRM(ins, 8)
		if err != nil {
			return err
		}
		r, writeback := e.aluOp(which, a, e.regOperand(ins, 8), 8)
		if writeback {
			return e.storeRM(ins, 8, r)
		}
		return nil
	case 1: // Ev, Gv
		e.Dec.DecodeModRM(cur, ins)
		a, err := e.loadRM(ins, width)
		if err != nil {
			return err
		}
		r, writeback := e.aluOp(which, a, e.regOperand(ins, width), width)
		if writeback {
			return e.storeRM(ins, width, r)
		}
		return nil
	case 2: // Gb, Eb
		e.Dec.DecodeModRM(cur, ins)
		b, err := e.loadRM(ins, 8)
		if err != nil {
			return err
		}
		r, writeback := e.aluOp(which, e.regOperand(ins, 8), b, 8)
		if writeback {
			e.setRegOperand(ins, 8, r)
		}
		return nil
	case 3: // Gv, Ev
		e.Dec.DecodeModRM(cur, ins)
		b, err := e.loadRM(ins, width)
		if err != nil {
			return err
		}
		r, writeback := e.aluOp(which, e.regOperand(ins, width), b, width)
		if writeback {
			e.setRegOperand(ins, width, r)
		}
		return nil
	case 4: // AL, ib
		imm := e.Dec.DecodeImmediate(cur, ins, 8)
		r, writeback := e.aluOp(which, e.regValue(cpu.RAX, 8, ins), uint64(imm), 8)
		if writeback {
			e.setRegValue(cpu.RAX, 8, ins, r)
		}
		return nil
	case 5: // eAX, iz
		imm := e.Dec.DecodeImmediate(cur, ins, min(width, 32))
		r, writeback := e.aluOp(which, e.regValue(cpu.RAX, width, ins), uint64(imm), width)
		if writeback {
			e.setRegValue(cpu.RAX, width, ins, r)
		}
		return nil
	}
	return nil
}

func (e *Executor) execGroup1(ins *decoder.Instruction, width int, imm uint64) error {
	a, err := e.loadRM(ins, width)
	if err != nil {
		return err
	}
	r, writeback := e.aluOp(ins.ModRM.Reg, a, imm, width)
	if writeback {
		return e.storeRM(ins, width, r)
	}
	return nil
}

func (e *Executor) execIncDecGroup(ins *decoder.Instruction, width int) error {
	a, err := e.loadRM(ins, width)
	if err != nil {
		return err
	}
	switch ins.ModRM.Reg {
	case 0:
		return e.storeRM(ins, width, e.incWithFlags(a, width))
	case 1:
		return e.storeRM(ins, width, e.decWithFlags(a, width))
	}
	return fault.New(fault.UD)
}

func (e *Executor) execGroupFF(ins *decoder.Instruction, width int) error {
	switch ins.ModRM.Reg {
	case 0, 1:
		return e.execIncDecGroup(ins, width)
	case 2: // CALL Ev (near indirect)
		target, err := e.loadRM(ins, width)
		if err != nil {
			return err
		}
		ret := e.CPU.RIP() + ins.Length
		if err := e.push(pushPopWidth(e.CPU), ret); err != nil {
			return err
		}
		e.CPU.SetRIP(target)
		ins.IsBranch = true
		return nil
	case 4: // JMP Ev (near indirect)
		target, err := e.loadRM(ins, width)
		if err != nil {
			return err
		}
		e.CPU.SetRIP(target)
		ins.IsBranch = true
		return nil
	case 6: // PUSH Ev
		v, err := e.loadRM(ins, pushPopWidth(e.CPU))
		if err != nil {
			return err
		}
		return e.push(pushPopWidth(e.CPU), v)
	}
	return fault.New(fault.UD)
}

func (e *Executor) dispatchTwoByte(ins *decoder.Instruction, cur decoder.Cursor) error {
	op2 := ins.Opcode2

	switch {
	case op2 >= 0x80 && op2 <= 0x8F: // Jcc rel32/16
		rel := e.Dec.DecodeImmediate(cur, ins, min(ins.OperandSize, 32))
		if condTrue(e.CPU, op2-0x80) {
			e.branchTo(ins, rel)
		}
		return nil
	case op2 >= 0x90 && op2 <= 0x9F: // SETcc Eb
		e.Dec.DecodeModRM(cur, ins)
		v := uint64(0)
		if condTrue(e.CPU, op2-0x90) {
			v = 1
		}
		return e.storeRM(ins, 8, v)
	}

	switch op2 {
	case 0x01: // group: LGDT/LIDT (and others, unimplemented)
		e.Dec.DecodeModRM(cur, ins)
		switch ins.ModRM.Reg {
		case 2, 3:
			off, defSeg := e.effectiveAddress(ins)
			seg := e.effectiveSegment(ins, defSeg)
			limit, err := e.readLinear(seg, off, 16, false)
			if err != nil {
				return err
			}
			base, err := e.readLinear(seg, off+2, 32, false)
			if err != nil {
				return err
			}
			tr := cpu.TableReg{Base: base, Limit: uint32(limit)}
			if ins.ModRM.Reg == 2 {
				e.CPU.SetGDTR(tr)
			} else {
				e.CPU.SetIDTR(tr)
			}
			return nil
		}
		return fault.New(fault.UD)
	case 0x20: // MOV r32, CRn
		e.Dec.DecodeModRM(cur, ins)
		n := regNum(ins.ModRM.RM, 0x1, ins)
		var v uint64
		switch ins.ModRM.Reg {
		case 0:
			v = e.CPU.CR0()
		case 2:
			v = e.CPU.CR2()
		case 3:
			v = e.CPU.CR3()
		case 4:
			v = e.CPU.CR4()
		}
		e.setRegValue(n, 32, ins, v)
		return nil
	case 0x22: // MOV CRn, r32
		e.Dec.DecodeModRM(cur, ins)
		n := regNum(ins.ModRM.RM, 0x1, ins)
		v := e.regValue(n, 32, ins)
		switch ins.ModRM.Reg {
		case 0:
			e.CPU.WriteCR0(v, e.Pg)
		case 2:
			e.CPU.SetCR2(v)
		case 3:
			e.CPU.WriteCR3(v, e.Pg)
		case 4:
			e.CPU.WriteCR4(v)
		}
		return nil
	case 0xAF: // IMUL Gv, Ev
		e.Dec.DecodeModRM(cur, ins)
		b, err := e.loadRM(ins, ins.OperandSize)
		if err != nil {
			return err
		}
		a := e.regOperand(ins, ins.OperandSize)
		prod := int64(int32(a)) * int64(int32(b))
		e.setRegOperand(ins, ins.OperandSize, uint64(prod)&widthMask(ins.OperandSize))
		of := prod != int64(int32(prod))
		e.CPU.SetFlag(cpu.FlagCF, of)
		e.CPU.SetFlag(cpu.FlagOF, of)
		return nil
	case 0xB6: // MOVZX Gv, Eb
		e.Dec.DecodeModRM(cur, ins)
		v, err := e.loadRM(ins, 8)
		if err != nil {
			return err
		}
		e.setRegOperand(ins, ins.OperandSize, v&0xFF)
		return nil
	case 0xB7: // MOVZX Gv, Ew
		e.Dec.DecodeModRM(cur, ins)
		v, err := e.loadRM(ins, 16)
		if err != nil {
			return err
		}
		e.setRegOperand(ins, ins.OperandSize, v&0xFFFF)
		return nil
	case 0xBE: // MOVSX Gv, Eb
		e.Dec.DecodeModRM(cur, ins)
		v, err := e.loadRM(ins, 8)
		if err != nil {
			return err
		}
		e.setRegOperand(ins, ins.OperandSize, uint64(int64(int8(v)))&widthMask(ins.OperandSize))
		return nil
	case 0xBF: // MOVSX Gv, Ew
		e.Dec.DecodeModRM(cur, ins)
		v, err := e.loadRM(ins, 16)
		if err != nil {
			return err
		}
		e.setRegOperand(ins, ins.OperandSize, uint64(int64(int16(v)))&widthMask(ins.OperandSize))
		return nil
	}

	return fault.New(fault.UD)
}
