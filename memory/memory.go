// Package memory implements the flat, byte-addressable physical store of
// spec.md 4.B: raw little-endian 8/16/32/64-bit access and bulk copy, owned
// exclusively by this package. Every other component reaches physical
// storage only through these primitives.
package memory

/*
 * pcemu - Physical memory
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

// Memory is a flat byte-addressable physical store.
type Memory struct {
	bytes []byte
}

// New allocates a Memory of the given size in bytes.
func New(size uint64) *Memory {
	return &Memory{bytes: make([]byte, size)}
}

// Size returns the configured memory size in bytes.
func (m *Memory) Size() uint64 { return uint64(len(m.bytes)) }

// CheckAddr reports whether addr is within the configured memory range.
func (m *Memory) CheckAddr(addr uint64) bool { return addr < uint64(len(m.bytes)) }

// Read8 returns the byte at addr, or 0 if addr is out of range.
func (m *Memory) Read8(addr uint64) uint8 {
	if addr >= uint64(len(m.bytes)) {
		return 0
	}
	return m.bytes[addr]
}

// Write8 stores a byte at addr; writes past the configured maximum are
// silently discarded (spec.md 4.B).
func (m *Memory) Write8(addr uint64, v uint8) {
	if addr >= uint64(len(m.bytes)) {
		return
	}
	m.bytes[addr] = v
}

// Read16 returns a little-endian halfword, unaligned-safe.
func (m *Memory) Read16(addr uint64) uint16 {
	return uint16(m.Read8(addr)) | uint16(m.Read8(addr+1))<<8
}

func (m *Memory) Write16(addr uint64, v uint16) {
	m.Write8(addr, uint8(v))
	m.Write8(addr+1, uint8(v>>8))
}

// Read32 returns a little-endian word, unaligned-safe.
func (m *Memory) Read32(addr uint64) uint32 {
	return uint32(m.Read8(addr)) | uint32(m.Read8(addr+1))<<8 |
		uint32(m.Read8(addr+2))<<16 | uint32(m.Read8(addr+3))<<24
}

func (m *Memory) Write32(addr uint64, v uint32) {
	m.Write8(addr, uint8(v))
	m.Write8(addr+1, uint8(v>>8))
	m.Write8(addr+2, uint8(v>>16))
	m.Write8(addr+3, uint8(v>>24))
}

// Read64 returns a little-endian quadword, unaligned-safe.
func (m *Memory) Read64(addr uint64) uint64 {
	return uint64(m.Read32(addr)) | uint64(m.Read32(addr+4))<<32
}

func (m *Memory) Write64(addr uint64, v uint64) {
	m.Write32(addr, uint32(v))
	m.Write32(addr+4, uint32(v>>32))
}

// CopyFrom bulk-copies src into memory starting at addr, truncating at the
// configured maximum.
func (m *Memory) CopyFrom(addr uint64, src []byte) {
	if addr >= uint64(len(m.bytes)) {
		return
	}
	n := copy(m.bytes[addr:], src)
	_ = n
}

// CopyTo bulk-reads length bytes starting at addr into a fresh slice,
// zero-filling anything past the configured maximum.
func (m *Memory) CopyTo(addr uint64, length int) []byte {
	out := make([]byte, length)
	if addr >= uint64(len(m.bytes)) {
		return out
	}
	n := copy(out, m.bytes[addr:])
	_ = n
	return out
}
