package ttydisplay

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rcornwell/pcemu/chipset"
)

func newTestDisplay() (*Display, *bytes.Buffer) {
	var buf bytes.Buffer
	d := &Display{out: &buf}
	return d, &buf
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	d, _ := newTestDisplay()
	d.Write(textBufOffset, 2, 0x4141) // 'A' with attribute 0x41
	if v := d.Read(textBufOffset, 2); v != 0x4141 {
		t.Errorf("Read = %x, want 4141", v)
	}
}

func TestTextWriteTriggersRender(t *testing.T) {
	d, buf := newTestDisplay()
	d.Write(textBufOffset, 1, 'X')
	if buf.Len() == 0 {
		t.Fatal("expected a text-mode write to render to the terminal")
	}
	if !strings.ContainsRune(buf.String(), 'X') {
		t.Errorf("rendered output %q does not contain the written glyph", buf.String())
	}
}

func TestGraphicsWriteDoesNotRender(t *testing.T) {
	d, buf := newTestDisplay()
	d.Write(0, 1, 0xFF) // A0000: graphics window, not text mode
	if buf.Len() != 0 {
		t.Errorf("expected no terminal output for a graphics-mode write, got %q", buf.String())
	}
}

func TestCursorPositionReflectsVGA(t *testing.T) {
	vga := chipset.NewVGA()
	vga.SetCursorPosition(81) // row 1, col 1
	d := &Display{vga: vga, out: new(bytes.Buffer)}
	d.Write(textBufOffset, 1, 'Y')
	out := d.out.(*bytes.Buffer).String()
	if !strings.Contains(out, "\x1b[2;2H") {
		t.Errorf("expected a cursor escape for row 2 col 2, got %q", out)
	}
}

func TestTranslateMapsControlKeys(t *testing.T) {
	k := NewKeyboard()
	k.translate('\r')
	k.translate(0x7F)
	k.translate(0x1B)

	ascii, scan, ok := k.PopKey()
	if !ok || ascii != '\r' || scan != 0x1C {
		t.Errorf("Enter = %x %x, want 0D 1C", ascii, scan)
	}
	ascii, scan, ok = k.PopKey()
	if !ok || ascii != 0x08 || scan != 0x0E {
		t.Errorf("Backspace = %x %x, want 08 0E", ascii, scan)
	}
	_, scan, ok = k.PopKey()
	if !ok || scan != 0x01 {
		t.Errorf("Escape scan = %x, want 01", scan)
	}
}

func TestTranslatePassesThroughPrintableASCII(t *testing.T) {
	k := NewKeyboard()
	k.translate('q')
	ascii, scan, ok := k.PopKey()
	if !ok || ascii != 'q' || scan != 0 {
		t.Errorf("'q' = %x %x, want 71 00", ascii, scan)
	}
}
