// Package chipset implements the PC platform devices spec.md 4.G calls
// out: the 8259 PIC pair, 8254 PIT, CMOS/RTC, 8042 keyboard controller,
// PCI configuration mechanism #1, and the VGA register file. Grounded on
// the priority-scan and command-dispatch shape of the teacher's
// emu/sys_channel/channel.go and emu/model1403's state-machine style
// device, generalized from channel-attached unit-record devices to
// port-mapped PC chipset registers.
package chipset

/*
 * pcemu - PC chipset: 8259 PIC
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

// PIC models one 8259A, in the master/slave cascade the PC platform wires
// at ports 0x20/0x21 (master) and 0xA0/0xA1 (slave).
type PIC struct {
	irr    uint8 // interrupt request register
	isr    uint8 // in-service register
	imr    uint8 // interrupt mask register
	vector uint8 // base vector from ICW2

	icwStep   int // 0 = idle, 1 awaiting ICW2, 3 awaiting ICW3, 4 awaiting ICW4
	icw4Needed bool
	autoEOI   bool
	rotatePriority bool
	readISR   bool // OCW3 read-register select: false=IRR, true=ISR
}

// NewPIC returns a freshly reset 8259 (matching the power-on state: all
// masked, vector base 0).
func NewPIC() *PIC {
	return &PIC{imr: 0xFF}
}

// Raise asserts IRQ line n (0-7 within this PIC).
func (p *PIC) Raise(n uint8) {
	p.irr |= 1 << n
}

// Lower deasserts IRQ line n, for level-triggered devices that clear their
// own condition.
func (p *PIC) Lower(n uint8) {
	p.irr &^= 1 << n
}

// Pending implements interrupt.Source: an unmasked, not-yet-in-service
// request exists.
func (p *PIC) Pending() bool {
	return p.highestPending() >= 0
}

func (p *PIC) highestPending() int {
	active := p.irr &^ p.imr
	for i := 0; i < 8; i++ {
		if active&(1<<i) != 0 {
			return i
		}
	}
	return -1
}

// Vector implements interrupt.Source: acknowledges the highest-priority
// pending line (the INTA cycle), setting ISR and clearing IRR for
// edge-triggered sources, per spec.md 4.G.
func (p *PIC) Vector() uint8 {
	n := p.highestPending()
	if n < 0 {
		return 0
	}
	p.isr |= 1 << n
	p.irr &^= 1 << n
	return p.vector + uint8(n)
}

// EOI signals end-of-interrupt for the highest in-service line (non-
// specific EOI, the common case for OCW2=0x20).
func (p *PIC) EOI() {
	for i := 0; i < 8; i++ {
		if p.isr&(1<<i) != 0 {
			p.isr &^= 1 << i
			return
		}
	}
}

// SpecificEOI clears in-service status for a single named line.
func (p *PIC) SpecificEOI(n uint8) {
	p.isr &^= 1 << n
}

// WriteCommand handles writes to the PIC's command port (0x20/0xA0).
func (p *PIC) WriteCommand(v uint8) {
	switch {
	case v&0x10 != 0: // ICW1: begins initialization sequence
		p.icwStep = 1
		p.icw4Needed = v&0x1 != 0
		p.irr, p.isr, p.imr = 0, 0, 0
	case v == 0x20: // OCW2: non-specific EOI
		p.EOI()
	case v&0xE0 == 0x60: // OCW2: specific EOI, line in low 3 bits
		p.SpecificEOI(v & 0x7)
	case v&0xE0 == 0xC0: // OCW2: rotate on specific EOI
		p.rotatePriority = true
		p.SpecificEOI(v & 0x7)
	case v&0x18 == 0x08: // OCW3
		p.readISR = v&0x2 != 0
	}
}

// WriteData handles writes to the PIC's data port (0x21/0xA1): either the
// remaining ICW2-4 initialization bytes, or the OCW1 interrupt mask once
// initialized.
func (p *PIC) WriteData(v uint8) {
	switch p.icwStep {
	case 1:
		p.vector = v &^ 0x7
		if p.icw4Needed {
			p.icwStep = 3 // ICW3 (cascade wiring) is a don't-care for us
		} else {
			p.icwStep = 0
		}
	case 3:
		p.icwStep = 4
	case 4:
		p.autoEOI = v&0x2 != 0
		p.icwStep = 0
	default:
		p.imr = v
	}
}

// ReadData returns the OCW1 mask register (port 0x21/0xA1 read).
func (p *PIC) ReadData() uint8 { return p.imr }

// ReadCommand returns IRR or ISR per the OCW3 read-register select (port
// 0x20/0xA0 read).
func (p *PIC) ReadCommand() uint8 {
	if p.readISR {
		return p.isr
	}
	return p.irr
}

// Cascade wires a master/slave 8259 pair into the single interrupt.Source
// the real hardware cascade presents: the slave's output feeds the
// master's IRQ2 line, so Vector's IRQ2 acknowledgement is transparently
// redirected into the slave's own priority scan, per spec.md 4.G/4.J.
type Cascade struct {
	Master, Slave *PIC
}

// Pending implements interrupt.Source, syncing the slave's output onto
// the master's cascade line before checking the master.
func (c *Cascade) Pending() bool {
	if c.Slave.Pending() {
		c.Master.Raise(2)
	} else {
		c.Master.Lower(2)
	}
	return c.Master.Pending()
}

// Vector implements interrupt.Source.
func (c *Cascade) Vector() uint8 {
	c.Pending()
	if c.Master.highestPending() == 2 && c.Slave.Pending() {
		_ = c.Master.Vector() // acknowledge the cascade line itself
		return c.Slave.Vector()
	}
	return c.Master.Vector()
}
