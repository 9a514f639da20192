// Package headlessdisplay is a pure-Go chipset.Framebuffer and
// bios.KeyboardSource backend with no terminal dependency, for batch
// runs and tests: it stores the VGA window's bytes in memory and lets
// a caller inject keystrokes programmatically instead of reading stdin.
package headlessdisplay

/*
 * pcemu - headless display/keyboard backend
 *
 * Copyright 2026, pcemu authors
 */

import "sync"

// windowSize is the legacy VGA memory window's extent (A0000h-BFFFFh),
// matching machine.VGAFramebufferSize.
const windowSize = 0x20000

// Display is a chipset.Framebuffer that records writes into a flat byte
// array instead of rendering them, so tests can assert on exactly what a
// BIOS or guest driver wrote to video memory.
type Display struct {
	mu  sync.Mutex
	mem [windowSize]byte
}

// New returns an empty headless framebuffer.
func New() *Display {
	return &Display{}
}

// Read implements chipset.Framebuffer.
func (d *Display) Read(offset uint64, width int) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	var v uint64
	for i := 0; i < width; i++ {
		idx := offset + uint64(i)
		if idx >= windowSize {
			break
		}
		v |= uint64(d.mem[idx]) << (8 * i)
	}
	return v
}

// Write implements chipset.Framebuffer.
func (d *Display) Write(offset uint64, width int, value uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i < width; i++ {
		idx := offset + uint64(i)
		if idx >= windowSize {
			break
		}
		d.mem[idx] = uint8(value >> (8 * i))
	}
}

// Snapshot returns a copy of the current window contents, for test
// assertions against the text-mode or graphics buffer.
func (d *Display) Snapshot() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]byte, windowSize)
	copy(out, d.mem[:])
	return out
}

// Keyboard is a bios.KeyboardSource fed by InjectKey instead of a real
// keyboard controller, for driving INT 16h in tests.
type Keyboard struct {
	mu   sync.Mutex
	keys []key
}

type key struct {
	ascii uint8
	scan  uint8
}

// NewKeyboard returns an empty key buffer.
func NewKeyboard() *Keyboard {
	return &Keyboard{}
}

// InjectKey appends a key as though the keyboard controller had
// buffered it.
func (k *Keyboard) InjectKey(ascii, scan uint8) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys = append(k.keys, key{ascii: ascii, scan: scan})
}

// PeekKey implements bios.KeyboardSource.
func (k *Keyboard) PeekKey() (ascii uint8, scan uint8, ok bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.keys) == 0 {
		return 0, 0, false
	}
	return k.keys[0].ascii, k.keys[0].scan, true
}

// PopKey implements bios.KeyboardSource.
func (k *Keyboard) PopKey() (ascii uint8, scan uint8, ok bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if len(k.keys) == 0 {
		return 0, 0, false
	}
	next := k.keys[0]
	k.keys = k.keys[1:]
	return next.ascii, next.scan, true
}
