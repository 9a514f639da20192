// Package cpu models the architectural state of a single x86 logical
// processor: general-purpose and segment registers, control registers,
// EFER, the system-table registers, FLAGS, and the transient latches the
// decoder and executor consume between instructions.
package cpu

/*
 * pcemu - CPU architectural state
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

// Register index constants for the 16 general-purpose registers, in the
// standard x86-64 numbering (0-7 are the legacy AX..DI registers, 8-15 are
// R8..R15 reachable only via a REX prefix).
const (
	RAX = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

// Segment register indices.
const (
	ES = iota
	CS
	SS
	DS
	FS
	GS
	SegCount
)

// FLAGS bit positions.
const (
	FlagCF = 1 << 0
	flagR1 = 1 << 1 // always reads 1
	FlagPF = 1 << 2
	flagR3 = 1 << 3 // always reads 0
	FlagAF = 1 << 4
	flagR5 = 1 << 5 // always reads 0
	FlagZF = 1 << 6
	FlagSF = 1 << 7
	FlagTF = 1 << 8
	FlagIF = 1 << 9
	FlagDF = 1 << 10
	FlagOF = 1 << 11
	// FlagIOPL occupies bits 12-13.
	FlagIOPLShift = 12
	FlagIOPLMask  = 0x3 << FlagIOPLShift
	FlagNT        = 1 << 14
	flagR15       = 1 << 15 // always reads 0
	FlagRF        = 1 << 16
	FlagVM        = 1 << 17
	FlagAC        = 1 << 18
	FlagVIF       = 1 << 19
	FlagVIP       = 1 << 20
	FlagID        = 1 << 21

	flagsReservedOnes  = flagR1
	flagsReservedZeros = flagR3 | flagR5 | flagR15
	flagsMask          = 0x3FFFFF &^ flagsReservedZeros
)

// Mode is returned by State.Mode, describing the CPU's current execution mode.
type Mode int

const (
	ModeReal Mode = iota
	ModeProtected16
	ModeProtected32
	ModeCompat
	ModeLong64
	ModeVirtual8086
)

// SegmentCache holds a segment register's hidden descriptor cache, loaded on
// selector write in protected mode, or on far transfer in real mode.
type SegmentCache struct {
	Selector   uint16
	Base       uint64
	Limit      uint32
	Type       uint8
	DPL        uint8
	S          bool // descriptor type: 1 = code/data, 0 = system
	Present    bool
	Executable bool
	DefaultBig bool // D/B bit: 32-bit default operand/address size
	Long       bool // L bit: 64-bit code segment
	Granular   bool // G bit: limit is 4KiB granular
}

// TableReg models GDTR/IDTR (no selector) and LDTR/TR (selector + cache).
type TableReg struct {
	Selector uint16
	Base     uint64
	Limit    uint32
	Cache    SegmentCache // used by LDTR/TR only
}

// State is the complete architectural register file of one logical CPU.
// All mutation happens through its methods so that mode-dependent
// invariants (EFER.LMA, CPL, descriptor caches) stay consistent.
type State struct {
	gpr   [16]uint64
	seg   [SegCount]uint16
	cache [SegCount]SegmentCache

	rip uint64

	flags uint64

	cr0, cr2, cr3, cr4 uint64
	efer               uint64

	gdtr, idtr TableReg
	ldtr, tr   TableReg

	// Transient decode/execute latches.
	rex              uint8
	hasREX           bool
	segOverride      int // -1 if none, else a Seg* index
	operandOverride  bool
	addressOverride  bool
	interruptShadow  bool
	deliveryDepth    int // nesting depth of exception delivery, for #DF/triple fault
	a20Enabled       bool
	halted           bool
	pendingTaskSwitc bool
}

// New returns a CPU in its architectural power-on/reset state: real mode,
// CS:IP = F000:FFF0, FLAGS = 0x2, A20 enabled (this emulator always carries
// the BIOS's A20 enable through reset rather than modeling the raw
// gate-disabled power-on state, since every guest we boot enables it within
// the first few instructions of the reset vector).
func New() *State {
	s := &State{}
	s.flags = flagsReservedOnes
	s.cache[CS] = SegmentCache{Selector: 0xF000, Base: 0xFFFF0000, Limit: 0xFFFF, Present: true, Executable: true, S: true}
	s.seg[CS] = 0xF000
	s.rip = 0xFFF0
	s.a20Enabled = true
	s.segOverride = -1
	s.idtr.Limit = 0xFFFF
	s.gdtr.Limit = 0xFFFF
	return s
}

// RIP/PC access.

func (s *State) RIP() uint64       { return s.rip }
func (s *State) SetRIP(v uint64)   { s.rip = v }
func (s *State) AdvanceRIP(n uint64) { s.rip += n }

// GPR returns the full 64-bit value of general-purpose register r.
func (s *State) GPR(r int) uint64 { return s.gpr[r&0xF] }

// SetGPR64 writes the full 64-bit register.
func (s *State) SetGPR64(r int, v uint64) { s.gpr[r&0xF] = v }

// SetGPR32 writes the low 32 bits and, per the x86-64 rule, zeroes the
// upper 32 bits of the register.
func (s *State) SetGPR32(r int, v uint32) { s.gpr[r&0xF] = uint64(v) }

// SetGPR16 writes the low 16 bits, preserving the rest of the register.
func (s *State) SetGPR16(r int, v uint16) {
	s.gpr[r&0xF] = (s.gpr[r&0xF] &^ 0xFFFF) | uint64(v)
}

// GPR8Low returns register r's low byte (AL, CL, ... or, under REX, SPL..R15B).
func (s *State) GPR8Low(r int) uint8 { return uint8(s.gpr[r&0xF]) }

func (s *State) SetGPR8Low(r int, v uint8) {
	s.gpr[r&0xF] = (s.gpr[r&0xF] &^ 0xFF) | uint64(v)
}

// GPR8High returns the legacy AH/CH/DH/BH high-byte view, valid only for
// r in {0,1,2,3} and only absent a REX prefix (spec.md 4.E / Open Question c).
func (s *State) GPR8High(r int) uint8 { return uint8(s.gpr[r&0x3] >> 8) }

func (s *State) SetGPR8High(r int, v uint8) {
	idx := r & 0x3
	s.gpr[idx] = (s.gpr[idx] &^ 0xFF00) | (uint64(v) << 8)
}

// Segments.

func (s *State) Selector(seg int) uint16          { return s.seg[seg] }
func (s *State) Cache(seg int) SegmentCache       { return s.cache[seg] }
func (s *State) SetCache(seg int, c SegmentCache) { s.seg[seg] = c.Selector; s.cache[seg] = c }

// CPL returns the current privilege level, defined as CS's RPL (low 2 bits
// of the CS selector) per spec.md 4.A.
func (s *State) CPL() uint8 { return uint8(s.seg[CS] & 0x3) }

// FLAGS.

// Flags returns the packed EFLAGS/RFLAGS value with reserved bits forced to
// their architectural values (bit 1 = 1; bits 3,5,15 = 0).
func (s *State) Flags() uint64 {
	return (s.flags &^ flagsReservedZeros) | flagsReservedOnes
}

// SetFlags stores v, masking to the bits this emulator models and forcing
// reserved bits to their architectural values. VM/RF/IOPL writes are not
// gated here; the executor enforces the CPL check called out in spec.md
// 4.A before calling SetFlags from POPF/IRET paths that must honor it.
func (s *State) SetFlags(v uint64) {
	s.flags = (v & flagsMask &^ flagsReservedZeros) | flagsReservedOnes
}

func (s *State) FlagSet(mask uint64) bool { return s.flags&mask != 0 }

func (s *State) SetFlag(mask uint64, on bool) {
	if on {
		s.flags |= mask
	} else {
		s.flags &^= mask
	}
}

func (s *State) IOPL() uint8 { return uint8((s.flags & FlagIOPLMask) >> FlagIOPLShift) }

func (s *State) SetIOPL(v uint8) {
	s.flags = (s.flags &^ FlagIOPLMask) | (uint64(v&0x3) << FlagIOPLShift)
}

// Control registers, EFER, descriptor table registers.

func (s *State) CR0() uint64 { return s.cr0 }
func (s *State) CR2() uint64 { return s.cr2 }
func (s *State) CR3() uint64 { return s.cr3 }
func (s *State) CR4() uint64 { return s.cr4 }
func (s *State) EFER() uint64 { return s.efer }

func (s *State) SetCR2(v uint64) { s.cr2 = v }
func (s *State) SetCR4Raw(v uint64) { s.cr4 = v }
func (s *State) SetEFERRaw(v uint64) { s.efer = v }

func (s *State) GDTR() TableReg      { return s.gdtr }
func (s *State) SetGDTR(t TableReg)  { s.gdtr = t }
func (s *State) IDTR() TableReg      { return s.idtr }
func (s *State) SetIDTR(t TableReg)  { s.idtr = t }
func (s *State) LDTR() TableReg      { return s.ldtr }
func (s *State) SetLDTR(t TableReg)  { s.ldtr = t }
func (s *State) TR() TableReg        { return s.tr }
func (s *State) SetTR(t TableReg)    { s.tr = t }

// A20 gate.

func (s *State) A20Enabled() bool    { return s.a20Enabled }
func (s *State) SetA20Enabled(v bool) { s.a20Enabled = v }

// Halt.

func (s *State) Halted() bool    { return s.halted }
func (s *State) SetHalted(v bool) { s.halted = v }

// Transient latches consumed by the decoder/executor.

func (s *State) SetREX(b uint8)   { s.rex = b; s.hasREX = true }
func (s *State) ClearLatches() {
	s.rex = 0
	s.hasREX = false
	s.segOverride = -1
	s.operandOverride = false
	s.addressOverride = false
}
func (s *State) REX() (uint8, bool) { return s.rex, s.hasREX }

func (s *State) SetSegmentOverride(seg int) { s.segOverride = seg }
func (s *State) SegmentOverride() (int, bool) {
	if s.segOverride < 0 {
		return 0, false
	}
	return s.segOverride, true
}

func (s *State) SetOperandSizeOverride(v bool) { s.operandOverride = v }
func (s *State) OperandSizeOverride() bool     { return s.operandOverride }
func (s *State) SetAddressSizeOverride(v bool) { s.addressOverride = v }
func (s *State) AddressSizeOverride() bool     { return s.addressOverride }

// Interrupt shadow: armed by STI/MOV SS/POP SS, consumed by the next
// instruction's call into the interrupt-delivery check (spec.md 4.A, 4.J).
func (s *State) SetInterruptShadow()     { s.interruptShadow = true }
func (s *State) ConsumeInterruptShadow() bool {
	v := s.interruptShadow
	s.interruptShadow = false
	return v
}

// Exception-delivery nesting depth, used by the executor to detect the
// #DF / triple-fault escalation described in spec.md 4.F / 7.
func (s *State) DeliveryDepth() int      { return s.deliveryDepth }
func (s *State) EnterDelivery()          { s.deliveryDepth++ }
func (s *State) ExitDelivery()           { if s.deliveryDepth > 0 { s.deliveryDepth-- } }
