package ata

import "encoding/binary"

// execPacket dispatches the 12-byte ATAPI command packet assembled by
// WriteData, implementing the SCSI subset spec.md 4.H calls out: TEST
// UNIT READY, REQUEST SENSE, INQUIRY, READ CAPACITY, READ(10)/(12),
// MODE SENSE(6)/(10), START STOP UNIT, and READ TOC.
func (d *Drive) execPacket() {
	op := d.packet[0]
	switch op {
	case 0x00: // TEST UNIT READY
		d.completePacket(nil)
	case 0x03: // REQUEST SENSE
		sense := make([]byte, 18)
		sense[0] = 0x70 // current error, fixed format
		d.completePacket(sense)
	case 0x12: // INQUIRY
		inq := make([]byte, 36)
		inq[0] = 0x05 // CD-ROM device
		inq[1] = 0x80 // removable
		inq[2] = 0x00
		inq[4] = uint8(len(inq) - 5)
		copy(inq[8:16], []byte("PCEMU   "))
		copy(inq[16:32], []byte("VIRTUAL CD-ROM  "))
		copy(inq[32:36], []byte("1.0 "))
		d.completePacket(inq)
	case 0x1A: // MODE SENSE(6)
		d.completePacket(truncateToAllocLen(modeSenseHeader6(), int(d.packet[4])))
	case 0x1B: // START STOP UNIT
		d.completePacket(nil)
	case 0x25: // READ CAPACITY(10)
		buf := make([]byte, 8)
		last := uint32(0)
		if n := d.Dev.SectorCount(); n > 0 {
			last = uint32(n - 1)
		}
		binary.BigEndian.PutUint32(buf[0:], last)
		binary.BigEndian.PutUint32(buf[4:], uint32(d.Dev.SectorSize()))
		d.completePacket(buf)
	case 0x28, 0xA8: // READ(10), READ(12)
		lba := binary.BigEndian.Uint32(d.packet[2:6])
		var count uint32
		if op == 0x28 {
			count = uint32(binary.BigEndian.Uint16(d.packet[7:9]))
		} else {
			count = binary.BigEndian.Uint32(d.packet[6:10])
		}
		buf := make([]byte, int(count)*d.Dev.SectorSize())
		for i := uint32(0); i < count; i++ {
			sec := buf[int(i)*d.Dev.SectorSize() : int(i+1)*d.Dev.SectorSize()]
			if err := d.Dev.ReadSector(uint64(lba)+uint64(i), sec); err != nil {
				d.abort()
				return
			}
		}
		d.completePacket(buf)
	case 0x43: // READ TOC
		d.completePacket(d.readTOC())
	case 0x5A: // MODE SENSE(10)
		allocLen := int(binary.BigEndian.Uint16(d.packet[7:9]))
		d.completePacket(truncateToAllocLen(modeSenseHeader10(), allocLen))
	default:
		d.abort()
	}
}

// modeSenseHeader6/10 return a header-only MODE SENSE response: no block
// descriptor and no mode pages, since this drive has no page data to
// report -- enough for a guest driver that only checks the mode data
// length before moving on.
func modeSenseHeader6() []byte {
	buf := make([]byte, 4)
	buf[0] = uint8(len(buf) - 1)
	return buf
}

func modeSenseHeader10() []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint16(buf[0:], uint16(len(buf)-2))
	return buf
}

// truncateToAllocLen shortens buf to the host's requested allocation
// length, the SCSI convention for "the host may ask for less than the
// full response and expects only that much back".
func truncateToAllocLen(buf []byte, allocLen int) []byte {
	if allocLen > 0 && allocLen < len(buf) {
		return buf[:allocLen]
	}
	return buf
}

// readTOC builds a minimal single-track table of contents: track 1 at
// LBA 0 and the lead-out track at the disc's sector count, the smallest
// response a READ TOC guest driver can rely on to enumerate one data
// track.
func (d *Drive) readTOC() []byte {
	var lastLBA uint32
	if n := d.Dev.SectorCount(); n > 0 {
		lastLBA = uint32(n)
	}
	buf := make([]byte, 4+2*8)
	binary.BigEndian.PutUint16(buf[0:], uint16(len(buf)-2))
	buf[2] = 1 // first track
	buf[3] = 1 // last track
	buf[4+1] = 0x14 // ADR/CONTROL: data track, recorded uninterrupted
	buf[4+2] = 1    // track number
	binary.BigEndian.PutUint32(buf[4+4:], 0)
	buf[12+1] = 0x14
	buf[12+2] = 0xAA // lead-out track number
	binary.BigEndian.PutUint32(buf[12+4:], lastLBA)
	return buf
}

// completePacket starts the command's data-in phase (if any), handing the
// first byteCountLimit-sized chunk to the PIO FIFO; ReadData advances
// through the remaining chunks as the host drains each one, per the
// ATAPI PIO byte-count-register chunking contract.
func (d *Drive) completePacket(data []byte) {
	if len(data) == 0 {
		d.Status = StatusDRDY
		return
	}
	d.packetData = data
	d.packetSent = 0
	d.loadNextPacketChunk()
}

// loadNextPacketChunk loads up to byteCountLimit() remaining bytes of the
// current packet data-in transfer into the FIFO, or ends the transfer
// once it is exhausted.
func (d *Drive) loadNextPacketChunk() {
	remaining := d.packetData[d.packetSent:]
	if len(remaining) == 0 {
		d.packetData = nil
		d.Status = StatusDRDY
		return
	}
	n := d.byteCountLimit()
	if n > len(remaining) {
		n = len(remaining)
	}
	if n%2 != 0 && n < len(remaining) {
		n-- // keep interior chunks word-aligned; only the final chunk may be odd
	}
	d.fifo = remaining[:n]
	d.fifoAt = 0
	d.packetSent += n
	d.Status = StatusDRQ | StatusDRDY
}

// byteCountLimit reads the host-programmed byte count limit for an ATAPI
// PIO data-in transfer, latched into the cylinder low/high registers
// (LBAMid/LBAHigh) before the PACKET command is issued.
func (d *Drive) byteCountLimit() int {
	bc := int(d.LBAHigh)<<8 | int(d.LBAMid)
	if bc <= 0 {
		bc = 0xFFFF
	}
	return bc
}
