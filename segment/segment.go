// Package segment implements selector-to-linear-address resolution:
// descriptor table reads, present/limit/privilege checks, and the
// unreal-mode fallback, per spec.md 4.C. It is grounded on the
// segment/page table walk shape of the teacher's internal/cpu DAT logic,
// generalized from IBM 370 segment tables to x86 GDT/LDT descriptors.
package segment

/*
 * pcemu - Segmentation
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

// Resolver resolves selectors against a CPU's descriptor tables and a
// physical memory.
type Resolver struct {
	cpu *cpu.State
	mem *memory.Memory
}

// New returns a Resolver bound to the given CPU state and physical memory.
func New(c *cpu.State, m *memory.Memory) *Resolver {
	return &Resolver{cpu: c, mem: m}
}

// Descriptor is a decoded 8 (or 16, in IA-32e) byte segment/system
// descriptor, spec.md 3.
type Descriptor struct {
	Base     uint64
	Limit    uint32 // already expanded by the G bit to bytes
	Type     uint8
	S        bool
	DPL      uint8
	Present  bool
	AVL      bool
	Long     bool
	Big      bool
	Granular bool
}

// ReadDescriptor reads the 8-byte (or 16-byte system descriptor in IA-32e)
// entry at selector>>3 from GDT or LDT, per spec.md 4.C. ok is false when
// the index exceeds the table's limit.
func (r *Resolver) ReadDescriptor(selector uint16) (Descriptor, bool) {
	index := uint64(selector>>3) * 8

	var base uint64
	var limit uint32
	if selector&0x4 != 0 {
		ldtr := r.cpu.LDTR()
		base, limit = ldtr.Cache.Base, ldtr.Cache.Limit
	} else {
		gdtr := r.cpu.GDTR()
		base, limit = gdtr.Base, gdtr.Limit
	}

	if index+7 > uint64(limit) {
		return Descriptor{}, false
	}

	lo := r.mem.Read64(base + index)
	return decodeDescriptor(lo), true
}

func decodeDescriptor(raw uint64) Descriptor {
	limit16 := uint32(raw & 0xFFFF)
	base24 := uint32((raw >> 16) & 0xFFFFFF)
	typ := uint8((raw >> 40) & 0xF)
	s := (raw>>44)&1 != 0
	dpl := uint8((raw >> 45) & 0x3)
	present := (raw>>47)&1 != 0
	limitHi := uint32((raw >> 48) & 0xF)
	avl := (raw>>52)&1 != 0
	long := (raw>>53)&1 != 0
	big := (raw>>54)&1 != 0
	gran := (raw>>55)&1 != 0
	base32 := base24 | uint32((raw>>56)&0xFF)<<24

	limit := limit16 | (limitHi << 16)
	if gran {
		limit = (limit << 12) | 0xFFF
	}

	return Descriptor{
		Base: uint64(base32), Limit: limit, Type: typ, S: s, DPL: dpl,
		Present: present, AVL: avl, Long: long, Big: big, Granular: gran,
	}
}

// CacheFromDescriptor builds a cpu.SegmentCache from a resolved descriptor,
// for use by selector-load handling in the executor.
func CacheFromDescriptor(selector uint16, d Descriptor) cpu.SegmentCache {
	return cpu.SegmentCache{
		Selector: selector, Base: d.Base, Limit: d.Limit, Type: d.Type,
		DPL: d.DPL, S: d.S, Present: d.Present,
		Executable: d.S && d.Type&0x8 != 0,
		DefaultBig: d.Big, Long: d.Long, Granular: d.Granular,
	}
}

// LinearMaskFor returns the address mask applied after base+offset
// computation: 20 bits with A20 disabled, 32 bits otherwise in non-long
// modes, 48 bits in IA-32e, per spec.md 4.C.
func (r *Resolver) LinearMaskFor() uint64 {
	if !r.cpu.A20Enabled() {
		return 0xFFFFF
	}
	if r.cpu.IA32EActive() {
		return 0xFFFFFFFFFFFF
	}
	return 0xFFFFFFFF
}

// LinearFor resolves seg:offset to a linear address, applying the
// present/limit/DPL checks spec.md 4.C describes, with the unreal-mode
// fallback for real-mode segments carrying an oversized cached descriptor.
func (r *Resolver) LinearFor(seg int, offset uint64, write bool) (uint64, error) {
	mode := r.cpu.Mode()
	cache := r.cpu.Cache(seg)

	var base uint64
	switch mode {
	case cpu.ModeReal, cpu.ModeVirtual8086:
		if cache.Limit > 0xFFFF {
			// Unreal mode: a cached descriptor from a prior PM excursion
			// survives CR0.PE=1->0 and is used as-is (spec.md 4.C, 9 open
			// question a).
			base = cache.Base
		} else {
			base = uint64(r.cpu.Selector(seg)) << 4
			if offset > 0xFFFF && !write {
				offset &= 0xFFFF
			}
		}
	default:
		if !cache.Present {
			return 0, fault.NewWithCode(fault.NP, uint32(r.cpu.Selector(seg)))
		}
		limit := uint64(cache.Limit)
		if offset > limit {
			return 0, fault.NewWithCode(fault.GP, uint32(r.cpu.Selector(seg)))
		}
		if write && cache.Executable {
			return 0, fault.NewWithCode(fault.GP, uint32(r.cpu.Selector(seg)))
		}
		base = cache.Base
	}

	linear := (base + offset) & r.LinearMaskFor()
	return linear, nil
}

// LoadSegment performs the load-time checks spec.md 4.F calls out for
// selector writes in protected mode: reads the descriptor, validates
// present + type + privilege, and returns the cache to install. It does
// not itself mutate cpu state -- the executor commits the result via
// cpu.SetCache after a successful load, keeping this function pure.
func (r *Resolver) LoadSegment(seg int, selector uint16) (cpu.SegmentCache, error) {
	if r.cpu.Mode() == cpu.ModeReal {
		return cpu.SegmentCache{
			Selector: selector, Base: uint64(selector) << 4, Limit: 0xFFFF, Present: true,
			Executable: seg == cpu.CS, S: true,
		}, nil
	}

	// The null selector is valid for ES/DS/FS/GS/SS loads outside of actual
	// use; callers needing the "unusable" semantics check Present on the
	// returned cache.
	if selector>>3 == 0 && selector&0x4 == 0 {
		return cpu.SegmentCache{Selector: 0, Present: false}, nil
	}

	d, ok := r.ReadDescriptor(selector)
	if !ok {
		return cpu.SegmentCache{}, fault.NewWithCode(fault.GP, uint32(selector))
	}
	if !d.Present {
		vec := fault.NP
		if seg == cpu.SS {
			vec = fault.SS
		}
		return cpu.SegmentCache{}, fault.NewWithCode(vec, uint32(selector))
	}

	rpl := selector & 0x3
	cpl := r.cpu.CPL()
	if seg == cpu.SS {
		if d.DPL != cpl || uint16(rpl) != uint16(cpl) {
			return cpu.SegmentCache{}, fault.NewWithCode(fault.GP, uint32(selector))
		}
	} else if d.S && d.Type&0x8 != 0 { // code segment
		conforming := d.Type&0x4 != 0
		if !conforming && (d.DPL < cpl || d.DPL < uint8(rpl)) {
			return cpu.SegmentCache{}, fault.NewWithCode(fault.GP, uint32(selector))
		}
	}

	return CacheFromDescriptor(selector, d), nil
}
