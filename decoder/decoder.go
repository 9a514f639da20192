// Package decoder implements the fetch-byte-stream pull interface of
// spec.md 4.E: prefix collection (legacy, REX), opcode bytes, ModR/M+SIB,
// displacement and immediate decode, and the per-sub-mode operand-/address-
// size rules. It is grounded on the stepInfo/dispatch convention of the
// teacher's internal/cpu package (cpudefs.go's stepInfo struct, generalized
// here into Instruction) and on the opcode-table shape shown in the reference
// file other_examples/648ade99_retroenv-retrogolib__arch-cpu-x86-opcode.go.go
// (read for naming/table-layout only).
package decoder

/*
 * pcemu - Instruction decoder
 *
 * Copyright 2026, pcemu authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

import "github.com/rcornwell/pcemu/cpu"

// Cursor is a pull-style byte source over the instruction stream: ReadByte
// returns the byte at IP-relative displacement n from the start of the
// current fetch and does not itself track position; the Decoder tracks the
// running offset and reports the total length consumed via Len().
type Cursor interface {
	ReadByte(offset uint64) uint8
}

// SIB holds a decoded scale-index-base byte.
type SIB struct {
	Scale uint8
	Index uint8
	Base  uint8
}

// ModRM holds a decoded ModR/M byte plus any SIB/displacement it pulled in.
type ModRM struct {
	Mod uint8
	Reg uint8
	RM  uint8

	HasSIB bool
	SIB    SIB

	HasDisp  bool
	DispSize int // 8, 16, 32
	Disp     int64

	RIPRelative bool // 64-bit mode rm=5,mod=0
}

// Instruction is the fully decoded instruction: prefixes, opcode bytes,
// optional ModR/M, optional immediate, and the operand-/address-size that
// applied, per the spec.md 4.E table. This is the generalized analog of the
// teacher's stepInfo.
type Instruction struct {
	Lock           bool
	SegmentOverride int // -1 if none
	RepPrefix      uint8 // 0 none, 0xF2 REPNE, 0xF3 REP/REPE
	OperandSize66  bool
	AddressSize67  bool
	REX            uint8
	HasREX         bool

	Opcode    uint8
	Opcode2   uint8 // second byte after 0x0F escape
	TwoByte   bool

	HasModRM bool
	ModRM    ModRM

	Immediate     int64
	ImmSize       int // 0,8,16,32,64
	HasImmediate  bool

	OperandSize int // 8,16,32,64 -- the resolved effective operand size
	AddressSize int // 16,32,64 -- the resolved effective address size

	Length uint64 // total bytes consumed, for IP advance

	// IsBranch is set by the executor's dispatch step when the opcode
	// itself commits a new RIP (jumps, calls, returns, interrupt
	// delivery), suppressing the normal Length-based advance.
	IsBranch bool
}

// Decoder decodes one instruction at a time from a Cursor, given the CPU's
// current sub-mode (for default operand/address size and REX legality).
type Decoder struct {
	c *cpu.State
}

// New returns a Decoder bound to CPU state c (for mode queries only; it
// never mutates c -- prefixes are recorded in the returned Instruction).
func New(c *cpu.State) *Decoder {
	return &Decoder{c: c}
}

func isRexByte(b uint8, long bool) bool { return long && b >= 0x40 && b <= 0x4F }

func segOverrideFromPrefix(b uint8) (int, bool) {
	switch b {
	case 0x26:
		return cpu.ES, true
	case 0x2E:
		return cpu.CS, true
	case 0x36:
		return cpu.SS, true
	case 0x3E:
		return cpu.DS, true
	case 0x64:
		return cpu.FS, true
	case 0x65:
		return cpu.GS, true
	}
	return 0, false
}

// Decode pulls and decodes one instruction starting at cursor offset 0.
func (d *Decoder) Decode(cur Cursor) Instruction {
	mode := d.c.Mode()
	long := mode == cpu.ModeLong64
	defOp, defAddr := d.c.OperandAddressDefaults()

	var ins Instruction
	ins.SegmentOverride = -1

	var pos uint64

	// Prefix collection loop. Up to four legacy prefix groups, then an
	// optional REX byte in 64-bit sub-mode (REX must be the last prefix
	// before the opcode; a later legacy prefix after REX is accepted too
	// since real decoders tolerate it, but REX closest to the opcode wins).
prefixLoop:
	for {
		b := cur.ReadByte(pos)
		switch {
		case b == 0xF0:
			ins.Lock = true
			pos++
		case b == 0xF2 || b == 0xF3:
			ins.RepPrefix = b
			pos++
		case b == 0x66:
			ins.OperandSize66 = true
			pos++
		case b == 0x67:
			ins.AddressSize67 = true
			pos++
		default:
			if seg, ok := segOverrideFromPrefix(b); ok {
				ins.SegmentOverride = seg
				pos++
				continue
			}
			if isRexByte(b, long) {
				ins.REX = b
				ins.HasREX = true
				pos++
				continue
			}
			break prefixLoop
		}
	}

	// Opcode bytes.
	op := cur.ReadByte(pos)
	pos++
	if op == 0x0F {
		ins.TwoByte = true
		ins.Opcode = 0x0F
		ins.Opcode2 = cur.ReadByte(pos)
		pos++
	} else {
		ins.Opcode = op
	}

	// Resolve effective operand/address size per the spec.md 4.E table.
	opSize, addrSize := defOp, defAddr
	if ins.OperandSize66 {
		if defOp == 16 {
			opSize = 32
		} else {
			opSize = 16
		}
	}
	if ins.AddressSize67 {
		if defAddr == 64 {
			addrSize = 32
		} else if defAddr == 32 {
			addrSize = 16
		} else {
			addrSize = 32
		}
	}
	if long && ins.HasREX && ins.REX&0x08 != 0 { // REX.W promotes to 64-bit operand
		opSize = 64
	}
	ins.OperandSize = opSize
	ins.AddressSize = addrSize

	ins.Length = pos
	return ins
}

// DecodeModRM pulls a ModR/M byte (and SIB/displacement it implies) from
// cur starting at ins.Length, honoring the 16/32/64-bit effective-address
// rules of spec.md 4.E, and updates ins.Length.
func (d *Decoder) DecodeModRM(cur Cursor, ins *Instruction) ModRM {
	pos := ins.Length
	b := cur.ReadByte(pos)
	pos++

	m := ModRM{Mod: b >> 6, Reg: (b >> 3) & 0x7, RM: b & 0x7}

	if ins.AddressSize == 16 {
		// Only the eight classic 16-bit encodings apply.
		if m.Mod != 3 && m.RM == 6 && m.Mod == 0 {
			m.HasDisp, m.DispSize = true, 16
			m.Disp = int64(int16(readLE(cur, pos, 2)))
			pos += 2
		} else if m.Mod == 1 {
			m.HasDisp, m.DispSize = true, 8
			m.Disp = int64(int8(cur.ReadByte(pos)))
			pos++
		} else if m.Mod == 2 {
			m.HasDisp, m.DispSize = true, 16
			m.Disp = int64(int16(readLE(cur, pos, 2)))
			pos += 2
		}
	} else {
		if m.Mod != 3 && m.RM == 4 {
			sb := cur.ReadByte(pos)
			pos++
			m.HasSIB = true
			m.SIB = SIB{Scale: sb >> 6, Index: (sb >> 3) & 0x7, Base: sb & 0x7}
			if m.Mod == 0 && m.SIB.Base == 5 {
				m.HasDisp, m.DispSize = true, 32
				m.Disp = int64(int32(readLE(cur, pos, 4)))
				pos += 4
			}
		}
		switch {
		case m.Mod == 0 && m.RM == 5:
			m.HasDisp, m.DispSize = true, 32
			m.Disp = int64(int32(readLE(cur, pos, 4)))
			pos += 4
			if ins.AddressSize == 64 {
				m.RIPRelative = true
			}
		case m.Mod == 1:
			m.HasDisp, m.DispSize = true, 8
			m.Disp = int64(int8(cur.ReadByte(pos)))
			pos++
		case m.Mod == 2:
			m.HasDisp, m.DispSize = true, 32
			m.Disp = int64(int32(readLE(cur, pos, 4)))
			pos += 4
		}
	}

	ins.HasModRM = true
	ins.ModRM = m
	ins.Length = pos
	return m
}

// DecodeImmediate pulls an immediate of the given width (8/16/32/64 bits,
// sign-extended to int64) from cur starting at ins.Length.
func (d *Decoder) DecodeImmediate(cur Cursor, ins *Instruction, width int) int64 {
	pos := ins.Length
	var v int64
	switch width {
	case 8:
		v = int64(int8(cur.ReadByte(pos)))
		pos++
	case 16:
		v = int64(int16(readLE(cur, pos, 2)))
		pos += 2
	case 32:
		v = int64(int32(readLE(cur, pos, 4)))
		pos += 4
	case 64:
		v = int64(readLE(cur, pos, 8))
		pos += 8
	}
	ins.Immediate = v
	ins.ImmSize = width
	ins.HasImmediate = true
	ins.Length = pos
	return v
}

func readLE(cur Cursor, pos uint64, n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		v |= uint64(cur.ReadByte(pos+uint64(i))) << (8 * i)
	}
	return v
}

// DefaultSegment returns the default segment for a decoded ModR/M's
// effective-address computation: SS when the base is (E)(R)SP/(E)(R)BP,
// DS otherwise, per spec.md 4.E -- before any segment-override prefix is
// applied.
func DefaultSegment(m ModRM, addrSize int) int {
	if addrSize == 16 {
		// Classic encodings using BP as a base default to SS.
		switch m.RM {
		case 2, 3: // [BP+SI], [BP+DI]
			return cpu.SS
		case 6: // [BP+disp]; with mod=0 it is a bare disp16 with no base
			if m.Mod != 0 {
				return cpu.SS
			}
		}
		return cpu.DS
	}
	base := m.RM
	if m.HasSIB {
		base = m.SIB.Base
	}
	// SP/BP (and R12/R13 under REX.B, same low 3 bits); base=5 with mod=0
	// is a bare disp32 (or RIP-relative) with no base register.
	if base == 4 || (base == 5 && m.Mod != 0) {
		return cpu.SS
	}
	return cpu.DS
}
