package chipset

import (
	"testing"

	"github.com/rcornwell/pcemu/ata"
	"github.com/rcornwell/pcemu/event"
)

func TestPICMaskingSuppressesPending(t *testing.T) {
	p := NewPIC()
	p.WriteData(0xFF) // mask all
	p.Raise(0)
	if p.Pending() {
		t.Error("masked IRQ must not be pending")
	}
	p.WriteData(0xFE) // unmask IRQ0
	if !p.Pending() {
		t.Error("unmasked IRQ0 should be pending")
	}
}

func TestPICVectorBaseFromICW2(t *testing.T) {
	p := NewPIC()
	p.WriteCommand(0x11) // ICW1, ICW4 needed
	p.WriteData(0x08)    // ICW2: vector base 0x08
	p.WriteData(0x04)    // ICW3 (don't care)
	p.WriteData(0x01)    // ICW4
	p.WriteData(0xFE)    // OCW1: unmask IRQ0

	p.Raise(0)
	if v := p.Vector(); v != 0x08 {
		t.Errorf("vector = %x, want 08", v)
	}
}

func TestPICEOIClearsInService(t *testing.T) {
	p := NewPIC()
	p.WriteData(0xFE)
	p.Raise(0)
	p.Vector()
	p.WriteCommand(0x20) // non-specific EOI
	if p.isr != 0 {
		t.Error("EOI should clear ISR")
	}
}

func TestPITChannel0FiresAtReload(t *testing.T) {
	q := event.NewQueue()
	var count int
	ch := NewPITChannel(0, q, func() { count++ })
	ch.WriteControl(0x34) // channel0, LSB/MSB, mode2
	ch.WriteData(0x10)
	ch.WriteData(0x00)
	q.Advance(0x10)
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestKBCA20GateCommands(t *testing.T) {
	k := NewKBC()
	k.WriteCommand(0xDD)
	if k.A20Enabled {
		t.Error("expected A20 disabled after 0xDD")
	}
	k.WriteCommand(0xDF)
	if !k.A20Enabled {
		t.Error("expected A20 enabled after 0xDF")
	}
}

func TestCMOSClockEncodingBinaryMode(t *testing.T) {
	c := NewCMOS()
	c.WriteIndex(0x0B)
	c.WriteData(0x06) // 24-hour + binary mode
	c.Seconds, c.Minutes, c.Hours = 30, 15, 8
	c.WriteIndex(0x00)
	if v := c.ReadData(); v != 30 {
		t.Errorf("seconds register = %d, want 30 (binary mode)", v)
	}
}

func TestCMOSClockEncodingBCDModeDefault(t *testing.T) {
	c := NewCMOS()
	c.Seconds = 30
	c.WriteIndex(0x00)
	if v := c.ReadData(); v != 0x30 {
		t.Errorf("seconds register = %x, want 30 (BCD default)", v)
	}
}

func TestPCIConfigRoutingUnpopulatedReturnsOnes(t *testing.T) {
	bus := NewPCIBus()
	bus.WriteAddress(0x80000000)
	if v := bus.ReadData(32); v != 0xFFFFFFFF {
		t.Errorf("unpopulated slot = %x, want FFFFFFFF", v)
	}
}

func TestVGACursorPositionRoundTrip(t *testing.T) {
	v := NewVGA()
	v.SetCursorPosition(0x0A1B)
	if v.CursorPosition() != 0x0A1B {
		t.Errorf("cursor = %x, want 0A1B", v.CursorPosition())
	}
}

func TestCascadeRoutesSlaveVectorThroughIRQ2(t *testing.T) {
	master, slave := NewPIC(), NewPIC()
	master.WriteCommand(0x11)
	master.WriteData(0x08) // ICW2 master base
	master.WriteData(0x04)
	master.WriteData(0x01)
	master.WriteData(0xFB) // unmask IRQ2 (cascade) only

	slave.WriteCommand(0x11)
	slave.WriteData(0x70) // ICW2 slave base
	slave.WriteData(0x02)
	slave.WriteData(0x01)
	slave.WriteData(0xFE) // unmask IRQ0 on slave

	c := &Cascade{Master: master, Slave: slave}
	slave.Raise(0)

	if !c.Pending() {
		t.Fatal("cascade should report pending when slave has a request")
	}
	if v := c.Vector(); v != 0x70 {
		t.Errorf("vector = %#x, want 70 (slave's own vector base)", v)
	}
}

type countingDisk struct{ writes int }

func (d *countingDisk) ReadSector(lba uint64, buf []byte) error {
	for i := range buf {
		buf[i] = 0
	}
	return nil
}
func (d *countingDisk) WriteSector(lba uint64, buf []byte) error { d.writes++; return nil }
func (d *countingDisk) SectorSize() int                         { return 512 }
func (d *countingDisk) SectorCount() uint64                      { return 1 }
func (d *countingDisk) IsATAPI() bool                            { return false }

func TestBusRoutesPrimaryATAPorts(t *testing.T) {
	b := NewBus()
	b.Primary = ata.NewChannel(ata.NewDrive(&countingDisk{}), nil)

	b.Out(0x1F7, 8, 0xEC) // IDENTIFY DEVICE
	if b.In(0x1F7, 8)&0x08 == 0 {
		t.Fatal("expected DRQ set after IDENTIFY")
	}
	_ = b.In(0x1F0, 16) // drain one word from the identify FIFO
}

func TestBusMasterRegistersRoundTripPRDPointer(t *testing.T) {
	b := NewBus()
	b.Out(0xC004, 32, 0x00123000)
	if v := b.In(0xC004, 32); v != 0x00123000 {
		t.Errorf("primary PRD pointer = %#x, want 123000", v)
	}
	b.Out(0xC008+4, 32, 0x00456000) // secondary channel's PRD register
	if v := b.In(0xC00C, 32); v != 0x00456000 {
		t.Errorf("secondary PRD pointer = %#x, want 456000", v)
	}
}

func TestBusMasterStatusWriteOneToClear(t *testing.T) {
	b := NewBus()
	b.BusMaster[0].Status = BMStatusActive | BMStatusError | BMStatusIntr
	b.Out(0xC002, 8, BMStatusError|BMStatusIntr)
	if got := b.In(0xC002, 8); got != BMStatusActive {
		t.Errorf("status after write-one-to-clear = %#x, want only active bit set", got)
	}
}

func TestBusA20GateCombinesKBCAndFastGate(t *testing.T) {
	b := NewBus()
	if !b.A20Enabled() {
		t.Error("expected A20 enabled at reset via the KBC's default state")
	}

	b.KBC.WriteCommand(0xDD) // disable A20 via the keyboard controller
	if b.A20Enabled() {
		t.Error("expected A20 disabled once KBC and fast gate both clear it")
	}

	b.Out(0x92, 8, 0x02) // fast A20 gate, port 0x92 bit 1
	if !b.A20Enabled() {
		t.Error("expected A20 enabled once the fast gate opens it")
	}
	if b.In(0x92, 8)&0x02 == 0 {
		t.Error("expected port 0x92 read-back to reflect the fast gate bit")
	}
}
