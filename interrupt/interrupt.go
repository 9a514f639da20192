// Package interrupt arbitrates pending interrupt requests from the
// chipset's sources (the PIC cascade and NMI) into the single vector the
// executor delivers next, per spec.md 4.J.
// Grounded on the priority-scan loop of the teacher's
// emu/sys_channel/channel.go (Chan_scan) and the delta-time event queue of
// emu/event/event.go, generalized from channel-end interrupts to x86
// PIC/NMI arbitration.
package interrupt

/*
 * pcemu - Interrupt arbitration
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

// Source is a maskable interrupt source the arbiter polls in priority
// order (lowest index wins), mirroring the PIC's IRQ0-highest convention.
type Source interface {
	// Pending reports whether this source currently asserts its line.
	Pending() bool
	// Vector returns the vector to deliver and clears the source's
	// in-service/pending state as the real PIC's INTA cycle would.
	Vector() uint8
}

// Arbiter tracks NMI and a priority-ordered list of maskable sources (in
// practice, a single chipset.Cascade of the two PICs, but the interface
// accepts any ordering of sources for test doubles).
type Arbiter struct {
	nmiPending bool
	sources    []Source
}

// New returns an empty Arbiter.
func New() *Arbiter {
	return &Arbiter{}
}

// AddSource registers a maskable interrupt source at the next-lowest
// priority.
func (a *Arbiter) AddSource(s Source) {
	a.sources = append(a.sources, s)
}

// RaiseNMI latches a non-maskable interrupt request; NMI is edge-triggered
// and auto-clears once delivered.
func (a *Arbiter) RaiseNMI() {
	a.nmiPending = true
}

// Next returns the vector to deliver this step and whether one is
// pending, honoring spec.md 4.J's priority order: NMI (vector 2) first,
// unconditionally; then the highest-priority asserting maskable source,
// only when ifEnabled (the caller's IF state) is true.
func (a *Arbiter) Next(ifEnabled bool) (uint8, bool) {
	if a.nmiPending {
		a.nmiPending = false
		return 2, true
	}
	if !ifEnabled {
		return 0, false
	}
	for _, s := range a.sources {
		if s.Pending() {
			return s.Vector(), true
		}
	}
	return 0, false
}

// HasPending reports whether any source (maskable or not) currently
// asserts, without consuming it and regardless of IF (HLT wake-up uses
// WakesFromHalt instead).
func (a *Arbiter) HasPending() bool {
	if a.nmiPending {
		return true
	}
	for _, s := range a.sources {
		if s.Pending() {
			return true
		}
	}
	return false
}

// WakesFromHalt reports whether a pending request would actually resume
// a halted CPU: NMI always does, but a maskable source only does so
// when the caller's IF allows it -- otherwise HLT with interrupts
// disabled blocks forever, matching real hardware.
func (a *Arbiter) WakesFromHalt(ifEnabled bool) bool {
	if a.nmiPending {
		return true
	}
	if !ifEnabled {
		return false
	}
	for _, s := range a.sources {
		if s.Pending() {
			return true
		}
	}
	return false
}
