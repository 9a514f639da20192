// Package executor implements spec.md 4.F: fetch-decode-execute stepping,
// per-opcode semantics and flag updates, and the control-transfer and
// interrupt-delivery operations (CALL/RET/JMP, INT n/IRET, task switch).
// It is grounded on the op_*(step *stepInfo) uint16 dispatch convention of
// the teacher's internal/cpu/cpu_standard.go and cpu_system.go, generalized
// from IBM 370 instruction semantics into decoder.Instruction-driven x86
// semantics.
package executor

/*
 * pcemu - Instruction execution
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

import (
	"github.com/rcornwell/pcemu/cpu"
	"github.com/rcornwell/pcemu/decoder"
	"github.com/rcornwell/pcemu/fault"
	"github.com/rcornwell/pcemu/memory"
	"github.com/rcornwell/pcemu/paging"
	"github.com/rcornwell/pcemu/segment"
)

// Executor ties the CPU, segment resolver, paging translator, and physical
// memory together to step a single instruction at a time. This is the
// generalized analog of the teacher's CPU struct embedding stepInfo.
type Executor struct {
	CPU *cpu.State
	Mem *memory.Memory
	Seg *segment.Resolver
	Pg  *paging.Translator
	Dec *decoder.Decoder

	// Ports is consulted for IN/OUT; nil ports read as 0xFF.. and discard
	// writes, matching an empty bus per spec.md 4.G's chipset contract.
	Ports PortBus
}

// PortBus is the I/O-port side of the bus the chipset package implements.
type PortBus interface {
	In(port uint16, width int) uint32
	Out(port uint16, width int, value uint32)
}

// New returns an Executor wired to the given architectural state.
func New(c *cpu.State, m *memory.Memory, s *segment.Resolver, p *paging.Translator) *Executor {
	return &Executor{CPU: c, Mem: m, Seg: s, Pg: p, Dec: decoder.New(c)}
}

// codeCursor adapts CS:RIP-relative fetches to decoder.Cursor, resolving
// each byte through segmentation and paging as the fetch-credential path
// spec.md 4.E requires.
type codeCursor struct {
	e    *Executor
	base uint64 // RIP at decode start
}

func (c codeCursor) ReadByte(offset uint64) uint8 {
	linear, err := c.e.Seg.LinearFor(cpu.CS, c.base+offset, false)
	if err != nil {
		return 0
	}
	phys, err := c.e.Pg.Translate(linear, false, true, c.e.CPU.CPL() == 3)
	if err != nil {
		return 0
	}
	return uint8(c.e.Pg.ReadPhysical(phys, 8))
}

// Step fetches, decodes, and executes exactly one instruction, returning
// any fault raised during fetch, decode-time effective-address resolution,
// or execution -- per spec.md 4.F's per-step contract.
func (e *Executor) Step() error {
	if e.CPU.Halted() {
		return nil
	}

	rip := e.CPU.RIP()
	cur := codeCursor{e: e, base: rip}
	ins := e.Dec.Decode(cur)

	if err := e.dispatch(&ins, cur); err != nil {
		if f, ok := err.(fault.Fault); ok {
			return e.Deliver(f)
		}
		return err
	}

	if !ins.IsBranch {
		e.CPU.SetRIP(rip + ins.Length)
	}
	e.CPU.ClearLatches()
	return nil
}

// readLinear/writeLinear perform a segmented, paged memory access of the
// given width, honoring the segment-override prefix when present.
func (e *Executor) effectiveSegment(ins *decoder.Instruction, def int) int {
	if ins.SegmentOverride >= 0 {
		return ins.SegmentOverride
	}
	return def
}

func (e *Executor) readLinear(seg int, offset uint64, width int, write bool) (uint64, error) {
	linear, err := e.Seg.LinearFor(seg, offset, write)
	if err != nil {
		return 0, err
	}
	phys, err := e.Pg.Translate(linear, write, false, e.CPU.CPL() == 3)
	if err != nil {
		return 0, err
	}
	return e.Pg.ReadPhysical(phys, width), nil
}

func (e *Executor) writeLinear(seg int, offset uint64, width int, value uint64) error {
	linear, err := e.Seg.LinearFor(seg, offset, true)
	if err != nil {
		return err
	}
	phys, err := e.Pg.Translate(linear, true, false, e.CPU.CPL() == 3)
	if err != nil {
		return err
	}
	e.Pg.WritePhysical(phys, width, value)
	return nil
}

// push/pop implement the stack operations used by CALL/RET/PUSH/POP/
// INT/IRET at the width the caller passes (pushPopWidth gives the stack's
// default: SS.DefaultBig ? 32 : 16 in legacy modes, always 64 in long
// mode); the stack pointer is masked to that same SS-derived size.
func (e *Executor) push(width int, value uint64) error {
	sp := e.CPU.GPR(cpu.RSP)
	sp -= uint64(width / 8)
	if err := e.writeLinear(cpu.SS, maskStack(e.CPU, sp), width, value); err != nil {
		return err
	}
	e.setSP(sp)
	return nil
}

func (e *Executor) pop(width int) (uint64, error) {
	sp := e.CPU.GPR(cpu.RSP)
	v, err := e.readLinear(cpu.SS, maskStack(e.CPU, sp), width, false)
	if err != nil {
		return 0, err
	}
	e.setSP(sp + uint64(width/8))
	return v, nil
}

func maskStack(c *cpu.State, sp uint64) uint64 {
	if c.Mode() == cpu.ModeLong64 {
		return sp
	}
	if c.Cache(cpu.SS).DefaultBig {
		return sp & 0xFFFFFFFF
	}
	return sp & 0xFFFF
}

func (e *Executor) setSP(sp uint64) {
	switch {
	case e.CPU.Mode() == cpu.ModeLong64:
		e.CPU.SetGPR64(cpu.RSP, sp)
	case e.CPU.Cache(cpu.SS).DefaultBig:
		e.CPU.SetGPR32(cpu.RSP, uint32(sp))
	default:
		e.CPU.SetGPR16(cpu.RSP, uint16(sp))
	}
}
