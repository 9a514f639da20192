// Package ttydisplay backs the legacy VGA memory window and the BIOS
// keyboard buffer with the host's own terminal: it renders 80x25 text
// mode to stdout with ANSI escapes and reads raw stdin into XT scan
// codes, the way a real console redirection would. Grounded on the
// raw-mode stdin reader of IntuitionEngine's terminal_host.go
// (golang.org/x/term MakeRaw/Restore, a non-blocking read goroutine with
// a stop channel) generalized from a single MMIO terminal device to the
// VGA text-mode window and the INT 16h keyboard buffer.
package ttydisplay

/*
 * pcemu - terminal display/keyboard backend
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
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/rcornwell/pcemu/chipset"
)

// Text mode geometry and the B8000 window's offset within the
// A0000-BFFFF MMIO range machine.VGAFramebufferBase/Size describe.
const (
	textCols      = 80
	textRows      = 25
	textBufOffset = 0x18000
	windowSize    = 0x20000
	bytesPerGlyph = 2 // character byte + attribute byte
)

// Display is a chipset.Framebuffer that renders the VGA text-mode window
// to the host terminal. Graphics-mode writes (the A0000-AFFFF range) are
// stored but not rendered -- only text mode is drawn to a terminal.
type Display struct {
	vga *chipset.VGA

	mu  sync.Mutex
	mem [windowSize]byte
	out io.Writer
}

// New returns a Display that renders to stdout. vga may be nil, in which
// case the cursor is always drawn at the top-left; SetVGA can supply it
// once the owning machine has constructed its chipset bus.
func New(vga *chipset.VGA) *Display {
	return &Display{vga: vga, out: os.Stdout}
}

// SetVGA attaches the CRTC register file to read the cursor position
// from, for callers that build the Display before the machine.Machine
// that owns the VGA registers exists.
func (d *Display) SetVGA(vga *chipset.VGA) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.vga = vga
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

// Write implements chipset.Framebuffer, redrawing the terminal when the
// write lands in the text-mode window.
func (d *Display) Write(offset uint64, width int, value uint64) {
	d.mu.Lock()
	for i := 0; i < width; i++ {
		idx := offset + uint64(i)
		if idx >= windowSize {
			break
		}
		d.mem[idx] = uint8(value >> (8 * i))
	}
	d.mu.Unlock()

	if offset+uint64(width) > textBufOffset {
		d.Render()
	}
}

// Render redraws the full 80x25 text grid to the terminal with ANSI
// cursor positioning and SGR color escapes derived from each cell's
// attribute byte.
func (d *Display) Render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	var b []byte
	b = append(b, "\x1b[H"...) // cursor home
	for row := 0; row < textRows; row++ {
		for col := 0; col < textCols; col++ {
			cellOff := textBufOffset + (row*textCols+col)*bytesPerGlyph
			ch := d.mem[cellOff]
			attr := d.mem[cellOff+1]
			b = append(b, sgrEscape(attr)...)
			if ch < 0x20 || ch >= 0x7F {
				ch = ' '
			}
			b = append(b, ch)
		}
		b = append(b, "\x1b[0m\r\n"...)
	}
	if d.vga != nil {
		pos := d.vga.CursorPosition()
		row := int(pos) / textCols
		col := int(pos) % textCols
		b = append(b, fmt.Sprintf("\x1b[%d;%dH", row+1, col+1)...)
	}
	_, _ = d.out.Write(b)
}

// sgrEscape maps a VGA text attribute byte (background<<4 | foreground)
// to an ANSI 8-color SGR sequence; the foreground intensity bit and the
// blink/background-intensity bit are dropped.
func sgrEscape(attr uint8) string {
	fg := attr & 0x0F
	bg := (attr >> 4) & 0x07
	return fmt.Sprintf("\x1b[0;%d;%dm", 30+int(fg&0x07), 40+int(bg))
}

// Keyboard reads raw host keystrokes and translates them into the
// (ASCII, scan code) pairs bios.KeyboardSource reports to INT 16h.
type Keyboard struct {
	fd       int
	oldState *term.State
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	mu   sync.Mutex
	keys []key
}

type key struct {
	ascii uint8
	scan  uint8
}

// NewKeyboard returns a Keyboard reading from os.Stdin. Call Start to
// begin reading, Stop to restore the terminal.
func NewKeyboard() *Keyboard {
	return &Keyboard{
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Start puts stdin in raw, non-blocking mode and begins translating
// keystrokes in the background.
func (k *Keyboard) Start() error {
	k.fd = int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(k.fd)
	if err != nil {
		close(k.done)
		return fmt.Errorf("ttydisplay: MakeRaw: %w", err)
	}
	k.oldState = oldState

	if err := syscall.SetNonblock(k.fd, true); err != nil {
		_ = term.Restore(k.fd, k.oldState)
		close(k.done)
		return fmt.Errorf("ttydisplay: SetNonblock: %w", err)
	}

	go k.readLoop()
	return nil
}

func (k *Keyboard) readLoop() {
	defer close(k.done)
	buf := make([]byte, 1)
	for {
		select {
		case <-k.stopCh:
			return
		default:
		}
		n, err := syscall.Read(k.fd, buf)
		if n > 0 {
			k.translate(buf[0])
		}
		if err == syscall.EAGAIN || err == syscall.EWOULDBLOCK {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if err != nil {
			return
		}
		if n == 0 {
			time.Sleep(5 * time.Millisecond)
		}
	}
}

// translate maps one raw input byte to an (ASCII, scan) pair using the
// XT scan-code-set-1 values for the few control keys INT 16h callers
// commonly test; unmapped keys are reported with scan 0.
func (k *Keyboard) translate(b byte) {
	ascii, scan := b, uint8(0)
	switch b {
	case '\r':
		ascii, scan = '\r', 0x1C
	case 0x7F:
		ascii, scan = 0x08, 0x0E
	case '\t':
		scan = 0x0F
	case 0x1B:
		scan = 0x01
	}
	k.mu.Lock()
	k.keys = append(k.keys, key{ascii: ascii, scan: scan})
	k.mu.Unlock()
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

// Stop restores the terminal to its previous state and stops the read
// goroutine.
func (k *Keyboard) Stop() {
	k.stopOnce.Do(func() { close(k.stopCh) })
	<-k.done
	if k.oldState != nil {
		_ = term.Restore(k.fd, k.oldState)
		k.oldState = nil
	}
}
