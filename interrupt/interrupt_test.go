package interrupt

import "testing"

type fakeSource struct {
	pending bool
	vector  uint8
}

func (f *fakeSource) Pending() bool { return f.pending }
func (f *fakeSource) Vector() uint8 { f.pending = false; return f.vector }

func TestNMITakesPriorityOverMaskable(t *testing.T) {
	a := New()
	s := &fakeSource{pending: true, vector: 0x20}
	a.AddSource(s)
	a.RaiseNMI()

	v, ok := a.Next(true)
	if !ok || v != 2 {
		t.Fatalf("expected NMI vector 2, got %d ok=%v", v, ok)
	}
	// NMI auto-clears; the maskable source should now be reported.
	v, ok = a.Next(true)
	if !ok || v != 0x20 {
		t.Fatalf("expected maskable vector 20h after NMI cleared, got %d", v)
	}
}

func TestMaskableGatedByIF(t *testing.T) {
	a := New()
	a.AddSource(&fakeSource{pending: true, vector: 0x21})
	if _, ok := a.Next(false); ok {
		t.Error("maskable source must not be delivered with IF=0")
	}
	if _, ok := a.Next(true); !ok {
		t.Error("maskable source should deliver once IF=1")
	}
}

func TestPriorityOrderLowestIndexWins(t *testing.T) {
	a := New()
	a.AddSource(&fakeSource{pending: true, vector: 0x20})
	a.AddSource(&fakeSource{pending: true, vector: 0x28})
	v, _ := a.Next(true)
	if v != 0x20 {
		t.Errorf("expected lowest-priority-index source first, got vector %x", v)
	}
}

func TestHasPendingDoesNotConsume(t *testing.T) {
	a := New()
	s := &fakeSource{pending: true, vector: 0x20}
	a.AddSource(s)
	if !a.HasPending() {
		t.Fatal("expected pending")
	}
	if !s.pending {
		t.Error("HasPending must not consume the source")
	}
}

func TestWakesFromHaltRespectsIFForMaskable(t *testing.T) {
	a := New()
	a.AddSource(&fakeSource{pending: true, vector: 0x20})
	if a.WakesFromHalt(false) {
		t.Error("HLT with IF=0 must not wake on a maskable source")
	}
	if !a.WakesFromHalt(true) {
		t.Error("HLT with IF=1 should wake on a pending maskable source")
	}
}

func TestWakesFromHaltAlwaysWakesOnNMI(t *testing.T) {
	a := New()
	a.RaiseNMI()
	if !a.WakesFromHalt(false) {
		t.Error("NMI must wake a halted CPU regardless of IF")
	}
}
