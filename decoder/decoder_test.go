package decoder

import (
	"testing"

	"github.com/rcornwell/pcemu/cpu"
)

type byteSlice []uint8

func (b byteSlice) ReadByte(offset uint64) uint8 {
	if offset >= uint64(len(b)) {
		return 0
	}
	return b[offset]
}

func TestDecodeRealModeSimpleOpcode(t *testing.T) {
	c := cpu.New() // reset state = real mode
	d := New(c)

	// B8 imm16 -> MOV AX, imm16
	ins := d.Decode(byteSlice{0xB8, 0x34, 0x12})
	if ins.Opcode != 0xB8 {
		t.Fatalf("opcode = %x, want B8", ins.Opcode)
	}
	if ins.OperandSize != 16 || ins.AddressSize != 16 {
		t.Errorf("real mode defaults = %d/%d, want 16/16", ins.OperandSize, ins.AddressSize)
	}
	if ins.Length != 1 {
		t.Errorf("length after opcode only = %d, want 1", ins.Length)
	}
}

func TestDecodeOperandSizeOverride(t *testing.T) {
	c := cpu.New()
	d := New(c)
	ins := d.Decode(byteSlice{0x66, 0xB8, 0x78, 0x56, 0x34, 0x12})
	if !ins.OperandSize66 {
		t.Fatal("expected 0x66 prefix recorded")
	}
	if ins.OperandSize != 32 {
		t.Errorf("operand size after 0x66 in real mode = %d, want 32", ins.OperandSize)
	}
	if ins.Length != 2 {
		t.Errorf("length = %d, want 2 (prefix+opcode)", ins.Length)
	}
}

func TestDecodeSegmentOverridePrefix(t *testing.T) {
	c := cpu.New()
	d := New(c)
	ins := d.Decode(byteSlice{0x3E, 0x90}) // DS: NOP
	if ins.SegmentOverride != cpu.DS {
		t.Errorf("segment override = %d, want DS", ins.SegmentOverride)
	}
	if ins.Opcode != 0x90 {
		t.Errorf("opcode = %x, want 90", ins.Opcode)
	}
}

func TestDecodeTwoByteOpcode(t *testing.T) {
	c := cpu.New()
	d := New(c)
	ins := d.Decode(byteSlice{0x0F, 0xAF}) // IMUL r32, r/m32
	if !ins.TwoByte || ins.Opcode2 != 0xAF {
		t.Fatalf("expected two-byte opcode 0F AF, got %+v", ins)
	}
	if ins.Length != 2 {
		t.Errorf("length = %d, want 2", ins.Length)
	}
}

func TestDecodeModRMDisp8(t *testing.T) {
	c := cpu.New()
	c.WriteCR0(cpu.CR0PE, nil) // put in 32-bit protected mode defaults
	c.SetCache(cpu.CS, cpu.SegmentCache{DefaultBig: true, Present: true, Executable: true, S: true})
	d := New(c)

	// mod=01 reg=000 rm=000 (EAX), disp8 = 0x10
	bytes := byteSlice{0x8B, 0x40, 0x10}
	ins := d.Decode(bytes)
	m := d.DecodeModRM(bytes, &ins)
	if m.Mod != 1 || m.RM != 0 {
		t.Fatalf("modrm decode = %+v", m)
	}
	if !m.HasDisp || m.DispSize != 8 || m.Disp != 0x10 {
		t.Errorf("disp8 decode = %+v", m)
	}
	if ins.Length != 3 {
		t.Errorf("length = %d, want 3", ins.Length)
	}
}

func TestDecodeModRMWithSIB(t *testing.T) {
	c := cpu.New()
	c.WriteCR0(cpu.CR0PE, nil)
	c.SetCache(cpu.CS, cpu.SegmentCache{DefaultBig: true, Present: true, Executable: true, S: true})
	d := New(c)

	// mod=00 reg=000 rm=100(SIB) ; SIB scale=00 index=001(ECX) base=101 -> disp32 follows
	bytes := byteSlice{0x8B, 0x04, 0x0D, 0x78, 0x56, 0x34, 0x12}
	ins := d.Decode(bytes)
	m := d.DecodeModRM(bytes, &ins)
	if !m.HasSIB {
		t.Fatal("expected SIB byte")
	}
	if m.SIB.Index != 1 || m.SIB.Base != 5 {
		t.Errorf("sib decode = %+v", m.SIB)
	}
	if !m.HasDisp || m.DispSize != 32 || m.Disp != 0x12345678 {
		t.Errorf("disp32 via mod=0 base=5 = %+v", m)
	}
}

func TestDecodeImmediateSignExtension(t *testing.T) {
	c := cpu.New()
	d := New(c)
	bytes := byteSlice{0x3C, 0xFF} // CMP AL, imm8 = -1
	ins := d.Decode(bytes)
	v := d.DecodeImmediate(bytes, &ins, 8)
	if v != -1 {
		t.Errorf("sign-extended imm8 0xFF = %d, want -1", v)
	}
}

func TestDefaultSegmentUsesSSForBPBase(t *testing.T) {
	m := ModRM{Mod: 1, RM: 6} // [BP+disp8] classic 16-bit encoding
	if seg := DefaultSegment(m, 16); seg != cpu.SS {
		t.Errorf("DefaultSegment = %d, want SS for BP-based 16-bit EA", seg)
	}
}

func TestDefaultSegment32BitSIBBaseESP(t *testing.T) {
	m := ModRM{Mod: 1, RM: 4, HasSIB: true, SIB: SIB{Base: 4}} // [ESP+disp8]
	if seg := DefaultSegment(m, 32); seg != cpu.SS {
		t.Errorf("DefaultSegment = %d, want SS for ESP-based SIB", seg)
	}
}
