package bios

import (
	"testing"

	"github.com/rcornwell/pcemu/ata"
	"github.com/rcornwell/pcemu/chipset"
	"github.com/rcornwell/pcemu/cpu"
	"github.com/rcornwell/pcemu/memory"
)

type fakeDisk struct {
	sectors [][]byte
}

func (d *fakeDisk) ReadSector(lba uint64, buf []byte) error { copy(buf, d.sectors[lba]); return nil }
func (d *fakeDisk) WriteSector(lba uint64, buf []byte) error {
	copy(d.sectors[lba], buf)
	return nil
}
func (d *fakeDisk) SectorSize() int     { return 512 }
func (d *fakeDisk) SectorCount() uint64 { return uint64(len(d.sectors)) }
func (d *fakeDisk) IsATAPI() bool       { return false }

func newServices(t *testing.T) (*Services, *cpu.State, *memory.Memory) {
	t.Helper()
	c := cpu.New()
	m := memory.New(0x100000)
	disk := &fakeDisk{sectors: make([][]byte, 100)}
	for i := range disk.sectors {
		disk.sectors[i] = make([]byte, 512)
	}
	ch := ata.NewChannel(ata.NewDrive(disk), nil)
	s := &Services{CPU: c, Mem: m, VGA: chipset.NewVGA(), CMOS: chipset.NewCMOS(), MemSizeKB: 640}
	s.Disks[0] = ch
	return s, c, m
}

func TestInt12ReportsMemorySize(t *testing.T) {
	s, c, _ := newServices(t)
	s.int12()
	if uint16(c.GPR(cpu.RAX)) != 640 {
		t.Errorf("AX = %d, want 640", uint16(c.GPR(cpu.RAX)))
	}
}

func TestInt13ExtensionsPresentCheck(t *testing.T) {
	s, c, _ := newServices(t)
	c.SetGPR8High(0, 0x41)
	c.SetGPR8Low(2, 0x80) // DL = first hard drive
	s.Dispatch(0x13)
	if c.FlagSet(cpu.FlagCF) {
		t.Fatal("expected extensions present, CF clear")
	}
	if uint16(c.GPR(cpu.RBX)) != 0xAA55 {
		t.Errorf("BX = %x, want AA55", uint16(c.GPR(cpu.RBX)))
	}
}

func TestInt13ExtendedReadWritesBuffer(t *testing.T) {
	s, c, m := newServices(t)
	// Seed sector 5 with a marker byte, then build a DAP at DS:0x0100
	// requesting one sector into ES:0x0200 (DS=ES=0 in this test).
	fake := s.Disks[0].Drives[0].Dev.(*fakeDisk)
	fake.sectors[5][0] = 0x42

	dapBase := uint64(0x100)
	m.Write16(dapBase+2, 1)      // block count
	m.Write16(dapBase+4, 0x0200) // buffer offset
	m.Write16(dapBase+6, 0)      // buffer segment
	m.Write64(dapBase+8, 5)      // starting LBA

	c.SetGPR16(cpu.RSI, 0x0100)
	c.SetGPR8High(0, 0x42)
	c.SetGPR8Low(2, 0x80)
	s.Dispatch(0x13)

	if c.FlagSet(cpu.FlagCF) {
		t.Fatal("extended read reported failure")
	}
	if m.Read8(0x0200) != 0x42 {
		t.Errorf("buffer byte = %x, want 42", m.Read8(0x0200))
	}
}

func TestInt13CHSReadBuffer(t *testing.T) {
	s, c, m := newServices(t)
	fake := s.Disks[0].Drives[0].Dev.(*fakeDisk)
	fake.sectors[0][0] = 0x77 // CHS cyl0/head0/sector1 -> LBA 0

	c.SetGPR8High(0, 0x02) // AH = read
	c.SetGPR8Low(0, 1)     // AL = sector count
	c.SetGPR8High(1, 0)    // CH = cylinder low
	c.SetGPR8Low(1, 1)     // CL = sector 1, cylinder high bits 0
	c.SetGPR8High(2, 0)    // DH = head 0
	c.SetGPR8Low(2, 0x80)  // DL = first hard drive
	c.SetGPR16(cpu.RBX, 0x0300)
	s.Dispatch(0x13)

	if c.FlagSet(cpu.FlagCF) {
		t.Fatal("CHS read reported failure")
	}
	if m.Read8(0x0300) != 0x77 {
		t.Errorf("buffer byte = %x, want 77", m.Read8(0x0300))
	}
	if uint8(c.GPR(cpu.RAX)) != 1 {
		t.Errorf("AL = %d, want 1 sector transferred", uint8(c.GPR(cpu.RAX)))
	}
}

func TestInt13GetDriveParamsReportsGeometry(t *testing.T) {
	s, c, _ := newServices(t)
	c.SetGPR8High(0, 0x08)
	c.SetGPR8Low(2, 0x80)
	s.Dispatch(0x13)

	if c.FlagSet(cpu.FlagCF) {
		t.Fatal("get drive params reported failure")
	}
	if c.GPR8High(cpu.RDX) != chsHeads-1 {
		t.Errorf("DH = %d, want %d", c.GPR8High(cpu.RDX), chsHeads-1)
	}
	if c.GPR8Low(cpu.RCX)&0x3F != chsSectorsPerTrack {
		t.Errorf("CL sectors/track = %d, want %d", c.GPR8Low(cpu.RCX)&0x3F, chsSectorsPerTrack)
	}
	if c.GPR8Low(cpu.RDX) != 1 {
		t.Errorf("DL drive count = %d, want 1", c.GPR8Low(cpu.RDX))
	}
}

func TestInt16NoKeyReportsZF(t *testing.T) {
	s, c, _ := newServices(t)
	c.SetGPR8High(0, 0x01)
	s.Dispatch(0x16)
	if !c.FlagSet(cpu.FlagZF) {
		t.Error("expected ZF set when no key is queued")
	}
}

func TestInt1AGetTickCountReadsAndClearsMidnightFlag(t *testing.T) {
	s, c, m := newServices(t)
	m.Write32(0x46C, 12345)
	m.Write8(midnightFlagAddr, 0x01) // int08 set this on a prior rollover

	c.SetGPR8High(0, 0x00)
	s.Dispatch(0x1A)

	if uint8(c.GPR(cpu.RAX)) != 0x01 {
		t.Errorf("AL = %d, want 1 (midnight flag reported)", uint8(c.GPR(cpu.RAX)))
	}
	if m.Read8(midnightFlagAddr) != 0 {
		t.Error("expected midnight flag cleared after AH=00 reads it")
	}
	ticks := uint32(c.GPR(cpu.RDX)) | uint32(c.GPR(cpu.RCX))<<16
	if ticks != 12345 {
		t.Errorf("tick count CX:DX = %d, want 12345", ticks)
	}
}

func TestInt16EmptyQueueRewindsReturnIP(t *testing.T) {
	s, c, m := newServices(t)
	c.SetGPR16(cpu.RSP, 0x2000)
	m.Write16(0x2000, 0x1234) // stand-in for the INT's pushed return IP
	c.SetGPR8High(0, 0x00)
	s.Dispatch(0x16)
	if v := m.Read16(0x2000); v != 0x1232 {
		t.Errorf("return IP = %x, want 1232 (rewound by 2)", v)
	}
}

func TestInt16EnhancedCheckForKeyReportsZF(t *testing.T) {
	s, c, _ := newServices(t)
	c.SetGPR8High(0, 0x11)
	s.Dispatch(0x16)
	if !c.FlagSet(cpu.FlagZF) {
		t.Error("expected ZF set when no key queued (enhanced check)")
	}
}

func TestInt10SetCursorAndReadBack(t *testing.T) {
	s, c, _ := newServices(t)
	c.SetGPR8High(0, 0x02)
	c.SetGPR16(cpu.RDX, 0x050A) // row 5, col 10
	s.Dispatch(0x10)

	c.SetGPR8High(0, 0x03)
	s.Dispatch(0x10)
	dx := uint16(c.GPR(cpu.RDX))
	if uint8(dx>>8) != 5 || uint8(dx) != 10 {
		t.Errorf("cursor readback = row %d col %d, want 5,10", dx>>8, uint8(dx))
	}
}
