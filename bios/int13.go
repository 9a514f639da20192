package bios

import (
	"github.com/rcornwell/pcemu/ata"
	"github.com/rcornwell/pcemu/cpu"
)

// int13 implements the INT 13h disk service subset spec.md 4.I calls
// for: AH=00 reset, AH=02/03 legacy CHS read/write, AH=08 get drive
// parameters, AH=41 extensions-present check, AH=42 extended read (LBA),
// AH=43 extended write (LBA), AH=48 extended get drive parameters.
func (s *Services) int13() {
	dl := s.al2dl()
	drive := driveIndex(dl)
	var ch *ata.Channel
	if drive >= 0 && drive < len(s.Disks) {
		ch = s.Disks[drive]
	}

	switch s.ah() {
	case 0x00:
		s.setAH(0)
		s.setCF(false)
	case 0x02:
		s.chsReadWrite(ch, false)
	case 0x03:
		s.chsReadWrite(ch, true)
	case 0x08:
		s.getDriveParams(ch)
	case 0x41:
		if ch == nil {
			s.fail(0x01)
			return
		}
		s.CPU.SetGPR16(cpu.RBX, 0xAA55)
		s.setAH(0x30) // extension version 3.0
		s.setCF(false)
	case 0x42:
		s.extendedReadWrite(ch, false)
	case 0x43:
		s.extendedReadWrite(ch, true)
	case 0x48:
		s.extendedDriveParams(ch)
	default:
		s.fail(0x01)
	}
}

// al2dl reads DL, the conventional INT 13h drive-number register.
func (s *Services) al2dl() uint8 { return s.CPU.GPR8Low(2) }

func driveIndex(dl uint8) int {
	if dl&0x80 == 0 {
		return -1 // floppy drives are not modeled
	}
	return int(dl & 0x7F)
}

func (s *Services) fail(ahCode uint8) {
	s.setAH(ahCode)
	s.setCF(true)
}

func activeDrive(ch *ata.Channel) *ata.Drive {
	if ch == nil {
		return nil
	}
	return ch.Drives[0]
}

// chsHeads/chsSectorsPerTrack are the fixed legacy CHS translation this
// emulator reports for AH=02/03/08: 16 heads and 63 sectors/track, the
// common "LBA-assist" geometry real BIOSes settle on for drives whose
// sector count fits under 1024 cylinders at that ratio.
const (
	chsHeads           = 16
	chsSectorsPerTrack = 63
)

func chsCylinders(totalSectors uint64) uint16 {
	cyl := totalSectors / (chsHeads * chsSectorsPerTrack)
	if cyl > 1023 {
		cyl = 1023
	}
	return uint16(cyl)
}

// chsToLBA converts a 1-based sector/0-based cylinder,head CHS address
// into an LBA under the fixed chsHeads/chsSectorsPerTrack geometry.
func chsToLBA(cyl uint16, head, sector uint8) uint64 {
	return (uint64(cyl)*chsHeads+uint64(head))*chsSectorsPerTrack + uint64(sector-1)
}

// chsReadWrite implements AH=02 (read) and AH=03 (write): CH/CL encode
// cylinder (CL bits 6-7 are the cylinder's high 2 bits) and sector (CL
// bits 0-5, 1-based), DH is the head, AL is the sector count, and
// ES:BX is the transfer buffer, per the legacy INT 13h calling
// convention.
func (s *Services) chsReadWrite(ch *ata.Channel, write bool) {
	d := activeDrive(ch)
	if d == nil || d.Dev == nil {
		s.fail(0x01)
		return
	}
	cl := s.CPU.GPR8Low(cpu.RCX)
	cyl := uint16(s.CPU.GPR8High(cpu.RCX)) | uint16(cl&0xC0)<<2
	sector := cl & 0x3F
	head := s.CPU.GPR8High(cpu.RDX)
	count := s.al()
	bufBase := uint64(s.CPU.Selector(cpu.ES))<<4 + uint64(s.gpr16(cpu.RBX))

	lba := chsToLBA(cyl, head, sector)
	sectorSize := d.Dev.SectorSize()
	buf := make([]byte, sectorSize)
	for i := 0; i < int(count); i++ {
		off := bufBase + uint64(i*sectorSize)
		if write {
			for j := 0; j < sectorSize; j++ {
				buf[j] = s.Mem.Read8(off + uint64(j))
			}
			if err := d.Dev.WriteSector(lba+uint64(i), buf); err != nil {
				s.fail(0x04)
				return
			}
		} else {
			if err := d.Dev.ReadSector(lba+uint64(i), buf); err != nil {
				s.fail(0x04)
				return
			}
			s.Mem.CopyFrom(off, buf)
		}
	}
	s.setAL(count)
	s.setAH(0)
	s.setCF(false)
}

// getDriveParams implements AH=08: legacy CHS geometry in CH/CL/DH plus
// the drive count in DL, and (for floppies, never modeled here) a
// floppy parameter table pointer in ES:DI, per spec.md 4.I.
func (s *Services) getDriveParams(ch *ata.Channel) {
	d := activeDrive(ch)
	if d == nil || d.Dev == nil {
		s.fail(0x01)
		return
	}
	cyl := chsCylinders(d.Dev.SectorCount())
	s.CPU.SetGPR8High(cpu.RCX, uint8(cyl))
	s.CPU.SetGPR8Low(cpu.RCX, uint8(chsSectorsPerTrack)|uint8((cyl>>2)&0xC0))
	s.CPU.SetGPR8High(cpu.RDX, chsHeads-1)
	s.CPU.SetGPR8Low(cpu.RDX, uint8(hardDiskCount(s.Disks)))
	// No floppy parameter table is modeled; ES:DI is set to DS:0000
	// rather than left unwritten. Nothing is stored at that address.
	s.CPU.SetCache(cpu.ES, s.CPU.Cache(cpu.DS))
	s.CPU.SetGPR16(cpu.RDI, 0)
	s.setAH(0)
	s.setCF(false)
}

// hardDiskCount reports how many of the four INT 13h drive slots have a
// drive attached, for AH=08's DL return value.
func hardDiskCount(disks [4]*ata.Channel) int {
	n := 0
	for _, ch := range disks {
		if ch != nil && activeDrive(ch) != nil && activeDrive(ch).Dev != nil {
			n++
		}
	}
	return n
}

// diskAddressPacket is the INT 13h extensions DAP the guest builds at
// DS:SI, per spec.md 4.I.
type diskAddressPacket struct {
	blockCount uint16
	bufferOff  uint16
	bufferSeg  uint16
	lba        uint64
}

func (s *Services) readDAP() diskAddressPacket {
	si := s.gpr16(cpu.RSI)
	seg := s.CPU.Selector(cpu.DS)
	base := uint64(seg)<<4 + uint64(si)

	var p diskAddressPacket
	p.blockCount = uint16(s.Mem.Read16(base + 2))
	p.bufferOff = uint16(s.Mem.Read16(base + 4))
	p.bufferSeg = uint16(s.Mem.Read16(base + 6))
	p.lba = s.Mem.Read64(base + 8)
	return p
}

func (s *Services) extendedReadWrite(ch *ata.Channel, write bool) {
	d := activeDrive(ch)
	if d == nil || d.Dev == nil {
		s.fail(0x01)
		return
	}
	dap := s.readDAP()
	sectorSize := d.Dev.SectorSize()
	bufBase := uint64(dap.bufferSeg)<<4 + uint64(dap.bufferOff)

	buf := make([]byte, sectorSize)
	for i := 0; i < int(dap.blockCount); i++ {
		lba := dap.lba + uint64(i)
		off := bufBase + uint64(i*sectorSize)
		if write {
			for j := 0; j < sectorSize; j++ {
				buf[j] = s.Mem.Read8(off + uint64(j))
			}
			if err := d.Dev.WriteSector(lba, buf); err != nil {
				s.fail(0x04)
				return
			}
		} else {
			if err := d.Dev.ReadSector(lba, buf); err != nil {
				s.fail(0x04)
				return
			}
			s.Mem.CopyFrom(off, buf)
		}
	}
	s.setAH(0)
	s.setCF(false)
}

func (s *Services) extendedDriveParams(ch *ata.Channel) {
	d := activeDrive(ch)
	if d == nil || d.Dev == nil {
		s.fail(0x01)
		return
	}
	si := s.gpr16(cpu.RSI)
	seg := s.CPU.Selector(cpu.DS)
	base := uint64(seg)<<4 + uint64(si)

	s.Mem.Write16(base, 0x1E)                       // buffer size
	infoFlags := uint16(0) // bit 1 (CHS valid) clear
	if d.Dev.IsATAPI() {
		infoFlags |= 0x0004 // bit 2: removable media
	}
	s.Mem.Write16(base+2, infoFlags)                 // info flags: CHS invalid, removable for ATAPI
	s.Mem.Write32(base+4, 0xFFFFFFFF)                // cylinders (unused, CHS invalid)
	s.Mem.Write32(base+8, 0xFFFFFFFF)                // heads
	s.Mem.Write32(base+12, 0xFFFFFFFF)               // sectors/track
	s.Mem.Write64(base+16, d.Dev.SectorCount())       // total sectors
	s.Mem.Write16(base+24, uint16(d.Dev.SectorSize())) // bytes per sector

	s.setAH(0)
	s.setCF(false)
}
