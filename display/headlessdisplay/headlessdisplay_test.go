package headlessdisplay

import "testing"

func TestWriteThenReadRoundTrip(t *testing.T) {
	d := New()
	d.Write(0x18000, 2, 0x4142) // B8000: char 'B' (0x42), attribute 0x41
	if v := d.Read(0x18000, 2); v != 0x4142 {
		t.Errorf("Read = %x, want 4142", v)
	}
}

func TestSnapshotReflectsWrites(t *testing.T) {
	d := New()
	d.Write(0x18000, 1, 0x58)
	snap := d.Snapshot()
	if snap[0x18000] != 0x58 {
		t.Errorf("snapshot[0x18000] = %x, want 58", snap[0x18000])
	}
}

func TestWriteBeyondWindowIsIgnored(t *testing.T) {
	d := New()
	d.Write(windowSize, 1, 0xFF) // one past the end
	if v := d.Read(windowSize-1, 1); v != 0 {
		t.Errorf("unexpected write bled into the last valid byte: %x", v)
	}
}

func TestKeyboardPeekDoesNotConsume(t *testing.T) {
	k := NewKeyboard()
	k.InjectKey('a', 0x1E)
	ascii, scan, ok := k.PeekKey()
	if !ok || ascii != 'a' || scan != 0x1E {
		t.Fatalf("PeekKey = %x %x %v, want 'a' 1E true", ascii, scan, ok)
	}
	if _, _, ok := k.PeekKey(); !ok {
		t.Error("PeekKey must not consume the buffered key")
	}
}

func TestKeyboardPopConsumesInOrder(t *testing.T) {
	k := NewKeyboard()
	k.InjectKey('a', 0x1E)
	k.InjectKey('b', 0x30)
	ascii, _, ok := k.PopKey()
	if !ok || ascii != 'a' {
		t.Fatalf("first PopKey = %x, want 'a'", ascii)
	}
	ascii, _, ok = k.PopKey()
	if !ok || ascii != 'b' {
		t.Fatalf("second PopKey = %x, want 'b'", ascii)
	}
	if _, _, ok := k.PopKey(); ok {
		t.Error("expected empty buffer after draining both keys")
	}
}
