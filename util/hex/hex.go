// Package hex formats register and memory dump output for the debug
// console: fixed-width hexadecimal addresses, byte runs, and decimal
// counters, written straight into a strings.Builder instead of going
// through fmt's reflection-based formatting for every byte of a dump.
package hex

/*
 * pcemu - hex dump formatting
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

import "strings"

var hexMap = "0123456789abcdef"

// FormatAddr32 writes addr as 8 hex digits, the linear-address width a
// memory dump line's leading column uses.
func FormatAddr32(str *strings.Builder, addr uint32) {
	shift := 28
	for range 8 {
		str.WriteByte(hexMap[(addr>>shift)&0xf])
		shift -= 4
	}
}

// FormatReg64 writes v as 16 hex digits, the width a 64-bit GPR dump
// uses.
func FormatReg64(str *strings.Builder, v uint64) {
	shift := 60
	for range 16 {
		str.WriteByte(hexMap[(v>>shift)&0xf])
		shift -= 4
	}
}

// FormatBytes writes data as two-digit hex pairs, separated by a space
// when space is true.
func FormatBytes(str *strings.Builder, space bool, data []byte) {
	for _, by := range data {
		FormatByte(str, by)
		if space {
			str.WriteByte(' ')
		}
	}
}

// FormatByte writes a single byte as two hex digits.
func FormatByte(str *strings.Builder, data byte) {
	str.WriteByte(hexMap[(data>>4)&0xf])
	str.WriteByte(hexMap[data&0xf])
}

// FormatASCII writes data as its printable-ASCII rendering, substituting
// '.' for any byte outside the printable range -- the right-hand column
// of a classic hex dump.
func FormatASCII(str *strings.Builder, data []byte) {
	for _, by := range data {
		if by < 0x20 || by >= 0x7F {
			str.WriteByte('.')
			continue
		}
		str.WriteByte(by)
	}
}
