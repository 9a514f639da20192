package chipset

/*
 * pcemu - PC chipset: port-mapped I/O bus
 *
 * Copyright 2026, pcemu authors
 */

import (
	"github.com/rcornwell/pcemu/ata"
	"github.com/rcornwell/pcemu/event"
)

// Bus implements executor.PortBus, routing IN/OUT to the fixed-function
// chipset registers at their conventional PC/AT port addresses, per
// spec.md 4.G. Unclaimed ports read as all ones (In returns 0xFFFFFFFF,
// of which the executor keeps the access width) and discard writes,
// matching the executor's no-device-present contract.
type Bus struct {
	Master, Slave *PIC
	PIT           [3]*PITChannel
	CMOS          *CMOS
	KBC           *KBC
	PCI           *PCIBus
	VGA           *VGA

	// Primary/Secondary are the two ATA command-block channels at their
	// conventional PC/AT base ports (0x1F0, 0x170); nil when not attached,
	// per spec.md 4.H.
	Primary, Secondary *ata.Channel

	// BusMaster holds the PCI bus-master IDE DMA engine registers for the
	// primary/secondary channels (conventionally ports 0xC000-0xC007 and
	// 0xC008-0xC00F). The register state lives here; the PRD-table walk
	// and the actual memory<->drive transfer run in the machine package,
	// the one place that holds both the bus and physical memory.
	BusMaster [2]BusMasterChannel

	Queue *event.Queue

	pciAddress  uint32
	sysControlA uint8 // port 0x92: bit 0 fast-reset, bit 1 fast A20 gate
}

// BusMasterChannel models one IDE channel's bus-master DMA registers: the
// command byte (bit0 start/stop, bit3 transfer direction), the status byte
// (bit0 active, bit1 error, bit2 interrupt, all but active write-one-to-
// clear), and the 32-bit PRD table pointer, per spec.md 4.H's scatter-
// gather DMA requirement.
type BusMasterChannel struct {
	Command  uint8
	Status   uint8
	PRDTable uint32
}

// Bus-master command/status register bits.
const (
	BMCmdStart    = 1 << 0
	BMCmdWrite    = 1 << 3
	BMStatusActive = 1 << 0
	BMStatusError  = 1 << 1
	BMStatusIntr   = 1 << 2
)

// NewBus wires a complete chipset: a master/slave PIC cascade, three PIT
// channels sharing one event queue, a CMOS/RTC, an 8042, a PCI
// configuration bus, and VGA registers.
func NewBus() *Bus {
	q := event.NewQueue()
	b := &Bus{
		Master: NewPIC(),
		Slave:  NewPIC(),
		CMOS:   NewCMOS(),
		KBC:    NewKBC(),
		PCI:    NewPCIBus(),
		VGA:    NewVGA(),
		Queue:  q,
	}
	b.PIT[0] = NewPITChannel(0, q, func() { b.Master.Raise(0) })
	b.PIT[1] = NewPITChannel(1, q, nil)
	b.PIT[2] = NewPITChannel(2, q, nil)
	return b
}

// In implements executor.PortBus.
func (b *Bus) In(port uint16, width int) uint32 {
	switch port {
	case 0x20:
		return uint32(b.Master.ReadCommand())
	case 0x21:
		return uint32(b.Master.ReadData())
	case 0xA0:
		return uint32(b.Slave.ReadCommand())
	case 0xA1:
		return uint32(b.Slave.ReadData())
	case 0x40, 0x41, 0x42:
		return uint32(b.PIT[port-0x40].ReadData())
	case 0x60:
		return uint32(b.KBC.ReadData())
	case 0x64:
		return uint32(b.KBC.ReadStatus())
	case 0x70:
		return 0xFF // write-only index port
	case 0x71:
		return uint32(b.CMOS.ReadData())
	case 0xCF8:
		return b.address32()
	case 0xCFC:
		return b.PCI.ReadData(width)
	case 0x3C2:
		return uint32(b.VGA.ReadMiscOutput())
	case 0x3C5:
		return 0 // sequencer data read-back not modeled
	case 0x3CC:
		return uint32(b.VGA.ReadMiscOutput())
	case 0x3D4:
		return uint32(b.VGA.crtcIndex)
	case 0x3D5:
		return uint32(b.VGA.ReadCRTCData())
	case 0x3DA:
		return uint32(b.VGA.ReadAttrStatus())
	case 0x92:
		return uint32(b.sysControlA)
	}
	if ch, reg, ok := b.ataPort(port); ok {
		return ataIn(ch, reg, width)
	}
	if idx, reg, ok := busMasterPort(port); ok {
		return b.BusMaster[idx].read(reg, width)
	}
	return 0xFFFFFFFF
}

// busMasterPort maps a port address to its owning channel index (0=primary,
// 1=secondary) and register offset (0-7) within the conventional bus-master
// IDE register blocks (0xC000-0xC007, 0xC008-0xC00F).
func busMasterPort(port uint16) (idx int, reg uint16, ok bool) {
	switch {
	case port >= 0xC000 && port <= 0xC007:
		return 0, port - 0xC000, true
	case port >= 0xC008 && port <= 0xC00F:
		return 1, port - 0xC008, true
	}
	return 0, 0, false
}

func (bm *BusMasterChannel) read(reg uint16, width int) uint32 {
	switch reg {
	case 0:
		return uint32(bm.Command)
	case 2:
		return uint32(bm.Status)
	case 4:
		if width == 32 {
			return bm.PRDTable
		}
		return bm.PRDTable & 0xFFFF
	case 6:
		return (bm.PRDTable >> 16) & 0xFFFF
	}
	return 0
}

func (bm *BusMasterChannel) write(reg uint16, width int, value uint32) {
	switch reg {
	case 0:
		bm.Command = uint8(value)
	case 2:
		// Active is engine-owned; error/interrupt are write-one-to-clear.
		bm.Status &^= uint8(value) & (BMStatusError | BMStatusIntr)
	case 4:
		if width == 32 {
			bm.PRDTable = value
		} else {
			bm.PRDTable = (bm.PRDTable &^ 0xFFFF) | (value & 0xFFFF)
		}
	case 6:
		bm.PRDTable = (bm.PRDTable &^ 0xFFFF0000) | (value&0xFFFF)<<16
	}
}

// ataPort maps a port address to its owning channel and task-file
// register offset (0-7), for the primary (0x1F0-0x1F7) and secondary
// (0x170-0x177) command blocks.
func (b *Bus) ataPort(port uint16) (*ata.Channel, uint16, bool) {
	switch {
	case port >= 0x1F0 && port <= 0x1F7:
		return b.Primary, port - 0x1F0, b.Primary != nil
	case port >= 0x170 && port <= 0x177:
		return b.Secondary, port - 0x170, b.Secondary != nil
	}
	return nil, 0, false
}

func ataIn(ch *ata.Channel, reg uint16, width int) uint32 {
	switch reg {
	case 0:
		if width == 16 {
			return uint32(ch.ReadData())
		}
		return uint32(ch.ReadData() & 0xFF)
	case 1:
		return uint32(ch.ReadError())
	case 2:
		return uint32(ch.ReadSectorCount())
	case 3:
		return uint32(ch.ReadLBALow())
	case 4:
		return uint32(ch.ReadLBAMid())
	case 5:
		return uint32(ch.ReadLBAHigh())
	case 6:
		return uint32(ch.ReadDevice())
	case 7:
		return uint32(ch.ReadStatus())
	}
	return 0xFF
}

func ataOut(ch *ata.Channel, reg uint16, width int, value uint32) {
	switch reg {
	case 0:
		if width == 16 {
			ch.WriteData(uint16(value))
		} else {
			ch.WriteData(uint16(value) & 0xFF)
		}
	case 2:
		ch.WriteSectorCount(uint8(value))
	case 3:
		ch.WriteLBALow(uint8(value))
	case 4:
		ch.WriteLBAMid(uint8(value))
	case 5:
		ch.WriteLBAHigh(uint8(value))
	case 6:
		ch.WriteDevice(uint8(value))
	case 7:
		ch.WriteCommand(uint8(value))
	}
}

// Out implements executor.PortBus.
func (b *Bus) Out(port uint16, width int, value uint32) {
	v8 := uint8(value)
	switch port {
	case 0x20:
		b.Master.WriteCommand(v8)
	case 0x21:
		b.Master.WriteData(v8)
	case 0xA0:
		b.Slave.WriteCommand(v8)
	case 0xA1:
		b.Slave.WriteData(v8)
	case 0x40, 0x41, 0x42:
		b.PIT[port-0x40].WriteData(v8)
	case 0x43:
		ch := (v8 >> 6) & 0x3
		if ch < 3 {
			b.PIT[ch].WriteControl(v8)
		}
	case 0x60:
		b.KBC.WriteData(v8)
	case 0x64:
		b.KBC.WriteCommand(v8)
	case 0x70:
		b.CMOS.WriteIndex(v8)
	case 0x71:
		b.CMOS.WriteData(v8)
	case 0xCF8:
		b.pciAddress = value
		b.PCI.WriteAddress(value)
	case 0xCFC:
		b.PCI.WriteData(width, value)
	case 0x3C0:
		b.VGA.WriteAttr(v8)
	case 0x3C2:
		b.VGA.WriteMiscOutput(v8)
	case 0x3C4:
		b.VGA.WriteSeqIndex(v8)
	case 0x3C5:
		b.VGA.WriteSeqData(v8)
	case 0x3D4:
		b.VGA.WriteCRTCIndex(v8)
	case 0x3D5:
		b.VGA.WriteCRTCData(v8)
	case 0x92:
		b.sysControlA = v8
	default:
		if ch, reg, ok := b.ataPort(port); ok {
			ataOut(ch, reg, width, value)
			return
		}
		if idx, reg, ok := busMasterPort(port); ok {
			b.BusMaster[idx].write(reg, width, value)
		}
	}
}

func (b *Bus) address32() uint32 { return b.pciAddress }

// A20Enabled reports the gate a real AT's A20 line ORs together from two
// sources: the keyboard controller's output-port bit and the fast-A20
// bit of system control port A (0x92). Either path opening the gate
// opens it.
func (b *Bus) A20Enabled() bool {
	return b.KBC.A20Enabled || b.sysControlA&0x02 != 0
}
