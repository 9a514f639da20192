// Package bios implements the BIOS service interrupts spec.md 4.I calls
// for: INT 10h (video), INT 13h (disk), INT 15h (system services), INT
// 16h (keyboard), INT 1Ah (time-of-day), INT 12h (memory size), and
// the INT 08h timer tick handler. These are implemented as host-native
// "shortcut" handlers invoked by vector instead of real 8086 ROM code --
// the same trap-and-emulate approach the teacher's channel model uses for
// unit-record devices (the channel program never walks real microcode;
// emu/model1403 short-circuits the command straight to Go logic).
package bios

/*
 * pcemu - BIOS service interrupts
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
	"github.com/rcornwell/pcemu/ata"
	"github.com/rcornwell/pcemu/chipset"
	"github.com/rcornwell/pcemu/cpu"
	"github.com/rcornwell/pcemu/memory"
)

// KeyboardSource feeds INT 16h from the KBC's scan-code buffer translated
// into (ASCII, scan code) pairs -- the translation the real BIOS keyboard
// buffer performs ahead of INT 16h.
type KeyboardSource interface {
	// PeekKey reports the next buffered key, if any, without consuming it.
	PeekKey() (ascii uint8, scan uint8, ok bool)
	// PopKey consumes and returns the next buffered key.
	PopKey() (ascii uint8, scan uint8, ok bool)
}

// Services implements the BIOS interrupts, holding the CPU/memory it
// operates on plus the chipset/ata components each service vector reads
// or drives, per spec.md 4.I.
type Services struct {
	CPU *cpu.State
	Mem *memory.Memory

	VGA     *chipset.VGA
	CMOS    *chipset.CMOS
	Disks   [4]*ata.Channel // INT 13h drives 0x80-0x83
	Keys    KeyboardSource
	MemSizeKB uint32 // reported by INT 12h
}

// Dispatch runs the handler for vector, if this package owns it,
// returning false when the vector is not a BIOS service this package
// implements (the caller should fall back to real interrupt delivery).
func (s *Services) Dispatch(vector uint8) bool {
	switch vector {
	case 0x10:
		s.int10()
	case 0x12:
		s.int12()
	case 0x13:
		s.int13()
	case 0x15:
		s.int15()
	case 0x16:
		s.int16()
	case 0x1A:
		s.int1A()
	case 0x08:
		s.int08()
	default:
		return false
	}
	return true
}

// ah/al read and write the conventional INT-call register halves.
func (s *Services) ah() uint8    { return s.CPU.GPR8High(0) }
func (s *Services) al() uint8    { return s.CPU.GPR8Low(0) }
func (s *Services) setAH(v uint8) { s.CPU.SetGPR8High(0, v) }
func (s *Services) setAL(v uint8) { s.CPU.SetGPR8Low(0, v) }

func (s *Services) setCF(v bool) { s.CPU.SetFlag(cpu.FlagCF, v) }

func (s *Services) gpr16(n uint8) uint16 { return uint16(s.CPU.GPR(int(n))) }
