package ata

import "testing"

type memDisk struct {
	sectors [][]byte
	atapi   bool
}

func newMemDisk(n int, sectorSize int, atapi bool) *memDisk {
	d := &memDisk{atapi: atapi}
	for i := 0; i < n; i++ {
		d.sectors = append(d.sectors, make([]byte, sectorSize))
	}
	return d
}

func (d *memDisk) ReadSector(lba uint64, buf []byte) error {
	copy(buf, d.sectors[lba])
	return nil
}
func (d *memDisk) WriteSector(lba uint64, buf []byte) error {
	copy(d.sectors[lba], buf)
	return nil
}
func (d *memDisk) SectorSize() int     { return len(d.sectors[0]) }
func (d *memDisk) SectorCount() uint64 { return uint64(len(d.sectors)) }
func (d *memDisk) IsATAPI() bool       { return d.atapi }

func TestNoDriveAbortsCommand(t *testing.T) {
	d := NewDrive(nil)
	d.WriteCommand(0xEC)
	if d.Status&StatusERR == 0 {
		t.Error("expected ERR status with no drive present")
	}
}

func TestIdentifyLoadsFIFOAndClearsOnDrain(t *testing.T) {
	disk := newMemDisk(100, 512, false)
	d := NewDrive(disk)
	d.WriteCommand(0xEC)
	if d.Status&StatusDRQ == 0 {
		t.Fatal("expected DRQ after IDENTIFY")
	}
	for i := 0; i < 256; i++ {
		d.ReadData()
	}
	if d.Status&StatusDRQ != 0 {
		t.Error("DRQ should clear once the 512-byte FIFO drains")
	}
}

func TestPIOReadWriteRoundTrip(t *testing.T) {
	disk := newMemDisk(10, 512, false)
	d := NewDrive(disk)
	d.setLBA(3)
	d.SectorCount = 1
	d.WriteCommand(0x30) // WRITE SECTOR
	for i := 0; i < 256; i++ {
		d.WriteData(uint16(i))
	}
	if d.Status&StatusDRQ != 0 {
		t.Error("DRQ should clear after the write completes")
	}

	d.WriteCommand(0x20) // READ SECTOR
	v := d.ReadData()
	if v != 0 {
		t.Errorf("first word read back = %x, want 0", v)
	}
}

func TestATAPIInquiryPacket(t *testing.T) {
	disk := newMemDisk(1000, 2048, true)
	d := NewDrive(disk)
	d.WriteCommand(0xA0) // PACKET
	if d.Status&StatusDRQ == 0 {
		t.Fatal("expected DRQ to accept the command packet")
	}
	pkt := [12]byte{0x12} // INQUIRY
	for i := 0; i < 12; i += 2 {
		d.WriteData(uint16(pkt[i]) | uint16(pkt[i+1])<<8)
	}
	if d.Status&StatusDRQ == 0 {
		t.Fatal("expected DRQ for INQUIRY data-in phase")
	}
	v := d.ReadData()
	if uint8(v) != 0x05 {
		t.Errorf("peripheral device type = %x, want 05 (CD-ROM)", uint8(v))
	}
}

func sendPacket(d *Drive, pkt [12]byte) {
	d.WriteCommand(0xA0)
	for i := 0; i < 12; i += 2 {
		d.WriteData(uint16(pkt[i]) | uint16(pkt[i+1])<<8)
	}
}

func TestATAPIModeSenseAndStartStopAndTOC(t *testing.T) {
	disk := newMemDisk(10, 2048, true)
	d := NewDrive(disk)

	sendPacket(d, [12]byte{0x1B}) // START STOP UNIT
	if d.Status&StatusDRQ != 0 {
		t.Error("START STOP UNIT has no data-in phase, DRQ should not be set")
	}

	sendPacket(d, [12]byte{0x1A, 0, 0, 0, 4}) // MODE SENSE(6), alloc len 4
	if d.Status&StatusDRQ == 0 {
		t.Fatal("expected DRQ for MODE SENSE(6) data-in phase")
	}
	v := d.ReadData()
	if uint8(v) != 3 {
		t.Errorf("MODE SENSE(6) header mode data length = %x, want 3", uint8(v))
	}

	sendPacket(d, [12]byte{0x43}) // READ TOC
	if d.Status&StatusDRQ == 0 {
		t.Fatal("expected DRQ for READ TOC data-in phase")
	}
}

func TestATAPIReadChunksByByteCountLimit(t *testing.T) {
	disk := newMemDisk(10, 2048, true)
	d := NewDrive(disk)
	d.LBAMid, d.LBAHigh = 4, 0 // byte count limit = 4 bytes per DRQ

	pkt := [12]byte{0x28, 0, 0, 0, 0, 0, 0, 0, 1} // READ(10), LBA 0, 1 sector
	sendPacket(d, pkt)

	words := 0
	for d.Status&StatusDRQ != 0 {
		d.ReadData()
		words++
		if words > 2048 {
			t.Fatal("READ(10) never finished draining")
		}
	}
	if words != 2048/2 {
		t.Errorf("total words read = %d, want %d (one 2048-byte sector)", words, 2048/2)
	}
}

func TestChannelDriveSelection(t *testing.T) {
	master := NewDrive(newMemDisk(1, 512, false))
	slave := NewDrive(nil)
	ch := NewChannel(master, slave)

	ch.WriteDevice(0x00)
	if ch.current() != master {
		t.Error("expected master selected with bit4=0")
	}
	ch.WriteDevice(0x10)
	if ch.current() != slave {
		t.Error("expected slave selected with bit4=1")
	}
}
