package hex

import (
	"strings"
	"testing"
)

func TestFormatAddr32PadsToEightDigits(t *testing.T) {
	var b strings.Builder
	FormatAddr32(&b, 0xAB)
	if got, want := b.String(), "000000ab"; got != want {
		t.Errorf("FormatAddr32(0xAB) = %q, want %q", got, want)
	}
}

func TestFormatReg64PadsToSixteenDigits(t *testing.T) {
	var b strings.Builder
	FormatReg64(&b, 0x1234)
	if got, want := b.String(), "0000000000001234"; got != want {
		t.Errorf("FormatReg64(0x1234) = %q, want %q", got, want)
	}
}

func TestFormatBytesWithSpaces(t *testing.T) {
	var b strings.Builder
	FormatBytes(&b, true, []byte{0xDE, 0xAD})
	if got, want := b.String(), "de ad "; got != want {
		t.Errorf("FormatBytes = %q, want %q", got, want)
	}
}

func TestFormatBytesWithoutSpaces(t *testing.T) {
	var b strings.Builder
	FormatBytes(&b, false, []byte{0xDE, 0xAD})
	if got, want := b.String(), "dead"; got != want {
		t.Errorf("FormatBytes = %q, want %q", got, want)
	}
}

func TestFormatASCIIReplacesNonPrintable(t *testing.T) {
	var b strings.Builder
	FormatASCII(&b, []byte{'A', 0x00, 'z', 0x7F})
	if got, want := b.String(), "A.z."; got != want {
		t.Errorf("FormatASCII = %q, want %q", got, want)
	}
}
