package segment

import (
	"testing"

	"github.com/rcornwell/pcemu/cpu"
	"github.com/rcornwell/pcemu/fault"
	"github.com/rcornwell/pcemu/memory"
)

func writeDescriptor(m *memory.Memory, base uint64, index int, base32 uint32, limit uint32, typ uint8, s bool, dpl uint8, present bool, big bool) {
	var raw uint64
	gran := false
	lim := limit
	if limit > 0xFFFFF {
		gran = true
		lim = limit >> 12
	}
	raw = uint64(lim & 0xFFFF)
	raw |= uint64(base32&0xFFFFFF) << 16
	raw |= uint64(typ&0xF) << 40
	if s {
		raw |= 1 << 44
	}
	raw |= uint64(dpl&0x3) << 45
	if present {
		raw |= 1 << 47
	}
	raw |= uint64((lim>>16)&0xF) << 48
	if big {
		raw |= 1 << 54
	}
	if gran {
		raw |= 1 << 55
	}
	raw |= uint64(base32>>24) << 56
	m.Write64(base+uint64(index)*8, raw)
}

func TestReadDescriptorFlatDataSegment(t *testing.T) {
	m := memory.New(0x10000)
	c := cpu.New()
	c.SetGDTR(cpu.TableReg{Base: 0x1000, Limit: 0xFF})
	writeDescriptor(m, 0x1000, 3, 0, 0xFFFFFFFF, 0x2, true, 0, true, true)

	r := New(c, m)
	d, ok := r.ReadDescriptor(0x18) // index 3
	if !ok {
		t.Fatal("expected descriptor to be found within GDT limit")
	}
	if d.Base != 0 || d.Limit != 0xFFFFFFFF {
		t.Errorf("got base=%x limit=%x, want base=0 limit=FFFFFFFF", d.Base, d.Limit)
	}
}

func TestReadDescriptorOutOfLimit(t *testing.T) {
	m := memory.New(0x10000)
	c := cpu.New()
	c.SetGDTR(cpu.TableReg{Base: 0x1000, Limit: 0x10})
	r := New(c, m)
	if _, ok := r.ReadDescriptor(0x20); ok {
		t.Error("selector index beyond GDT limit must report not found")
	}
}

func TestUnrealModeFallback(t *testing.T) {
	m := memory.New(0x200000)
	c := cpu.New()
	r := New(c, m)

	// Simulate a prior PM excursion leaving a flat 4GB cache on DS, then
	// CR0.PE dropping back to real mode (open question a).
	c.SetCache(cpu.DS, cpu.SegmentCache{Selector: 0x18, Base: 0, Limit: 0xFFFFFFFF, Present: true})

	linear, err := r.LinearFor(cpu.DS, 0x100000, true)
	if err != nil {
		t.Fatalf("unexpected fault: %v", err)
	}
	if linear != 0x100000 {
		t.Errorf("unreal-mode access should reach physical 0x100000, got %x", linear)
	}
}

func TestA20MaskWraps(t *testing.T) {
	m := memory.New(0x200000)
	c := cpu.New()
	c.SetA20Enabled(false)
	r := New(c, m)

	linear, err := r.LinearFor(cpu.DS, 0x100000, true)
	if err != nil {
		t.Fatalf("unexpected fault: %v", err)
	}
	if linear != 0 {
		t.Errorf("A20 disabled should wrap 0x100000 to 0, got %x", linear)
	}
}

func TestLinearForLimitViolationRaisesGP(t *testing.T) {
	m := memory.New(0x10000)
	c := cpu.New()
	tlb := struct {
		a, n int
	}{}
	_ = tlb
	c.WriteCR0(cpu.CR0PE, nil)
	c.SetCache(cpu.DS, cpu.SegmentCache{Selector: 0x10, Base: 0, Limit: 0xFF, Present: true})
	r := New(c, m)

	_, err := r.LinearFor(cpu.DS, 0x1000, false)
	f, ok := err.(fault.Fault)
	if !ok || f.Vector != fault.GP {
		t.Fatalf("expected #GP for limit violation, got %v", err)
	}
}
