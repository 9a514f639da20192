// Package paging implements linear-to-physical translation: the identity
// mapping used when CR0.PG=0, 2-level (and PSE 4MiB) and 3-level PAE page
// walks when paging is enabled, a bounded translation cache, and MMIO
// carve-out dispatch, per spec.md 4.D. Grounded on the teacher's
// internal/cpu DAT walk (page_shift/page_mask/pte_* fields) and its
// tlb [256]uint32 cache, generalized to x86 page-table formats.
package paging

/*
 * pcemu - Paging and MMIO translation
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
	"github.com/rcornwell/pcemu/fault"
	"github.com/rcornwell/pcemu/memory"
)

const pageSize = 4096
const pageShift = 12

// MMIOHandler is implemented by devices that own an address window (VGA
// framebuffer, VBE LFB, BIOS ROM shadow).
type MMIOHandler interface {
	MMIORead(addr uint64, width int) uint64
	MMIOWrite(addr uint64, width int, value uint64)
}

type mmioWindow struct {
	base, size uint64
	handler    MMIOHandler
}

type tlbKey struct {
	page      uint64
	privilege uint8
	write     bool
}

type tlbEntry struct {
	frame uint64
	// allowed mirrors the permissions observed at translation time so a
	// cached read-only entry isn't reused for a write without a re-walk.
	allowed bool
}

const tlbCapacity = 256

// Translator resolves linear addresses to physical addresses.
type Translator struct {
	cpu *cpu.State
	mem *memory.Memory

	windows []mmioWindow

	cache    map[tlbKey]tlbEntry
	cacheAge []tlbKey // insertion order, for arbitrary (FIFO) eviction
}

// New returns a Translator bound to the given CPU state and physical
// memory.
func New(c *cpu.State, m *memory.Memory) *Translator {
	return &Translator{cpu: c, mem: m, cache: make(map[tlbKey]tlbEntry)}
}

// AddMMIOWindow registers a physical address window routed to handler
// instead of the flat memory store.
func (t *Translator) AddMMIOWindow(base, size uint64, handler MMIOHandler) {
	t.windows = append(t.windows, mmioWindow{base: base, size: size, handler: handler})
}

func (t *Translator) windowFor(addr uint64) (mmioWindow, bool) {
	for _, w := range t.windows {
		if addr >= w.base && addr < w.base+w.size {
			return w, true
		}
	}
	return mmioWindow{}, false
}

// InvalidateAll drops every cached translation; called on CR0.PG toggles
// and INVLPG (when instructed to cover a whole page region conservatively).
func (t *Translator) InvalidateAll() {
	t.cache = make(map[tlbKey]tlbEntry)
	t.cacheAge = nil
}

// InvalidateNonGlobal drops every cached translation; this emulator does
// not model the G (global) PTE bit as TLB-preservation-worthy across CR3
// writes, so CR3 writes are treated as a full flush (a correct, if more
// conservative, implementation of spec.md 4.A's requirement).
func (t *Translator) InvalidateNonGlobal() {
	t.InvalidateAll()
}

// InvalidatePage drops the cached translation(s) for the page containing
// linear, across all cached privilege/write-intent combinations -- the
// effect of INVLPG.
func (t *Translator) InvalidatePage(linear uint64) {
	page := linear &^ (pageSize - 1)
	for k := range t.cache {
		if k.page == page {
			delete(t.cache, k)
		}
	}
}

func (t *Translator) remember(key tlbKey, e tlbEntry) {
	if _, exists := t.cache[key]; !exists {
		if len(t.cacheAge) >= tlbCapacity {
			oldest := t.cacheAge[0]
			t.cacheAge = t.cacheAge[1:]
			delete(t.cache, oldest)
		}
		t.cacheAge = append(t.cacheAge, key)
	}
	t.cache[key] = e
}

// Translate resolves a linear address to a physical address, walking page
// tables when CR0.PG=1 and memoizing the result, per spec.md 4.D.
func (t *Translator) Translate(linear uint64, write, fetch, user bool) (uint64, error) {
	if t.cpu.CR0()&cpu.CR0PG == 0 {
		return t.gateA20(linear), nil
	}

	page := linear &^ (pageSize - 1)
	offset := linear & (pageSize - 1)
	priv := uint8(0)
	if user {
		priv = 1
	}
	key := tlbKey{page: page, privilege: priv, write: write}
	if e, ok := t.cache[key]; ok {
		return t.gateA20(e.frame + offset), nil
	}

	frame, err := t.walk(linear, write, fetch, user)
	if err != nil {
		return 0, err
	}

	t.remember(key, tlbEntry{frame: frame &^ (pageSize - 1), allowed: true})
	return t.gateA20(frame), nil
}

// gateA20 masks bit 20 of a physical address to 0 when the A20 gate is
// closed, reproducing the 8086-era 1MiB wraparound that BIOS/real-mode
// code can still rely on until it opens the gate via the keyboard
// controller or the system-control port.
func (t *Translator) gateA20(phys uint64) uint64 {
	if t.cpu.A20Enabled() {
		return phys
	}
	return phys &^ (1 << 20)
}

func (t *Translator) pageFault(linear uint64, present, write, user, fetch bool) error {
	var code uint32
	if present {
		code |= fault.PFPresent
	}
	if write {
		code |= fault.PFWrite
	}
	if user {
		code |= fault.PFUser
	}
	if fetch {
		code |= fault.PFFetch
	}
	t.cpu.SetCR2(linear)
	return fault.NewPageFault(code, linear)
}

// walk performs a 2-level (32-bit, optionally PSE 4MiB) or 3-level PAE walk
// depending on CR4.PAE, per spec.md 4.D.
func (t *Translator) walk(linear uint64, write, fetch, user bool) (uint64, error) {
	if t.cpu.CR4()&cpu.CR4PAE != 0 {
		return t.walkPAE(linear, write, fetch, user)
	}
	return t.walk32(linear, write, fetch, user)
}

func (t *Translator) walk32(linear uint64, write, fetch, user bool) (uint64, error) {
	cr3 := t.cpu.CR3() &^ 0xFFF
	dirIndex := (linear >> 22) & 0x3FF
	tblIndex := (linear >> 12) & 0x3FF

	pde := t.mem.Read32(cr3 + dirIndex*4)
	if pde&1 == 0 {
		return 0, t.pageFault(linear, false, write, user, fetch)
	}
	if !t.permit(pde, write, user) {
		return 0, t.pageFault(linear, true, write, user, fetch)
	}

	if t.cpu.CR4()&cpu.CR4PSE != 0 && pde&0x80 != 0 {
		// 4MiB page: bits 22..31 of PDE plus bit 13..20 for bits 32..39 in
		// PSE-36 are not modeled; we keep the low 32-bit frame.
		frame := uint64(pde&0xFFC00000) | (linear & 0x3FFFFF)
		return frame, nil
	}

	ptBase := uint64(pde &^ 0xFFF)
	pte := t.mem.Read32(ptBase + tblIndex*4)
	if pte&1 == 0 {
		return 0, t.pageFault(linear, false, write, user, fetch)
	}
	if !t.permit(pte, write, user) {
		return 0, t.pageFault(linear, true, write, user, fetch)
	}

	frame := uint64(pte&0xFFFFF000) | (linear & 0xFFF)
	return frame, nil
}

func (t *Translator) permit(entry uint32, write, user bool) bool {
	if user && entry&0x4 == 0 {
		return false
	}
	if write && entry&0x2 == 0 {
		if t.cpu.CR0()&cpu.CR0WP != 0 || user {
			return false
		}
	}
	return true
}

func (t *Translator) walkPAE(linear uint64, write, fetch, user bool) (uint64, error) {
	cr3 := t.cpu.CR3() &^ 0x1F
	ptrIndex := (linear >> 30) & 0x3
	dirIndex := (linear >> 21) & 0x1FF
	tblIndex := (linear >> 12) & 0x1FF

	pdpte := t.mem.Read64(cr3 + ptrIndex*8)
	if pdpte&1 == 0 {
		return 0, t.pageFault(linear, false, write, user, fetch)
	}

	pdBase := pdpte &^ 0xFFF
	pde := t.mem.Read64(pdBase + dirIndex*8)
	if pde&1 == 0 {
		return 0, t.pageFault(linear, false, write, user, fetch)
	}
	if !t.permit64(pde, write, user) {
		return 0, t.pageFault(linear, true, write, user, fetch)
	}

	if pde&0x80 != 0 {
		frame := (pde &^ 0x1FFFFF) | (linear & 0x1FFFFF)
		return frame, nil
	}

	ptBase := pde &^ 0xFFF
	pte := t.mem.Read64(ptBase + tblIndex*8)
	if pte&1 == 0 {
		return 0, t.pageFault(linear, false, write, user, fetch)
	}
	if !t.permit64(pte, write, user) {
		return 0, t.pageFault(linear, true, write, user, fetch)
	}

	frame := (pte &^ 0xFFF) | (linear & 0xFFF)
	return frame, nil
}

func (t *Translator) permit64(entry uint64, write, user bool) bool {
	if user && entry&0x4 == 0 {
		return false
	}
	if write && entry&0x2 == 0 {
		if t.cpu.CR0()&cpu.CR0WP != 0 || user {
			return false
		}
	}
	return true
}

// ReadPhysical/WritePhysical route through MMIO windows before falling
// back to flat memory, per spec.md 4.D.
func (t *Translator) ReadPhysical(addr uint64, width int) uint64 {
	if w, ok := t.windowFor(addr); ok {
		return w.handler.MMIORead(addr-w.base, width)
	}
	switch width {
	case 8:
		return uint64(t.mem.Read8(addr))
	case 16:
		return uint64(t.mem.Read16(addr))
	case 32:
		return uint64(t.mem.Read32(addr))
	default:
		return t.mem.Read64(addr)
	}
}

func (t *Translator) WritePhysical(addr uint64, width int, value uint64) {
	if w, ok := t.windowFor(addr); ok {
		w.handler.MMIOWrite(addr-w.base, width, value)
		return
	}
	switch width {
	case 8:
		t.mem.Write8(addr, uint8(value))
	case 16:
		t.mem.Write16(addr, uint16(value))
	case 32:
		t.mem.Write32(addr, uint32(value))
	default:
		t.mem.Write64(addr, value)
	}
}
