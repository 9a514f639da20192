// Package ata implements an ATA/ATAPI channel: PIO and bus-master DMA
// register state machines, IDENTIFY DEVICE/IDENTIFY PACKET DEVICE, and
// ATAPI PACKET command dispatch (the SCSI subset spec.md 4.H calls for:
// TEST UNIT READY, REQUEST SENSE, INQUIRY, MODE SENSE(6)/(10), START
// STOP UNIT, READ CAPACITY, READ(10)/(12), READ TOC).
// Grounded on the command-dispatch state-machine shape of the teacher's
// emu/model1403 (print-unit) and emu/modelTape (tape-unit) device models,
// generalized from channel-program command bytes to ATA task-file
// registers and ATAPI command packets.
package ata

/*
 * pcemu - ATA/ATAPI channel
 *
 * Copyright 2026, pcemu authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

import "encoding/binary"

// BlockDevice is the storage an ATA drive reads/writes -- implemented by
// the image package's raw and ISO9660 backends, per spec.md 6.
type BlockDevice interface {
	ReadSector(lba uint64, buf []byte) error
	WriteSector(lba uint64, buf []byte) error
	SectorSize() int
	SectorCount() uint64
	IsATAPI() bool
}

// Status register bits (port 1F7h/base+7).
const (
	StatusERR  = 1 << 0
	StatusDRQ  = 1 << 3
	StatusDF   = 1 << 5
	StatusDRDY = 1 << 6
	StatusBSY  = 1 << 7
)

// Error register bits (port 1F1h/base+1).
const (
	ErrABRT = 1 << 2
)

// Drive models one ATA/ATAPI drive's task-file registers and its PIO data
// FIFO, per spec.md 4.H.
type Drive struct {
	Dev BlockDevice

	// Task-file registers.
	Error          uint8
	SectorCount    uint8
	LBALow, LBAMid, LBAHigh uint8
	Device         uint8 // bit6 = LBA mode, bit4 = drive select, bits0-3 = LBA27-24
	Status         uint8

	fifo   []byte
	fifoAt int

	// awaitingPacket/packet/packetAt hold a 12-byte ATAPI command packet being assembled
	// via PIO writes after the PACKET command sets up DRQ.
	awaitingPacket bool
	packet         [12]byte
	packetAt       int

	// dmaPending/dmaWrite record an outstanding READ DMA/WRITE DMA command
	// (0xC8/0xCA) until a bus-master engine starts the transfer.
	dmaPending bool
	dmaWrite   bool

	// packetData/packetSent hold an ATAPI data-in transfer still being
	// drained to the host in byteCountLimit-sized chunks; nil once the
	// transfer (or a non-packet FIFO load) is not mid-chunking.
	packetData []byte
	packetSent int
}

// NewDrive returns a drive backed by dev (nil for "no drive present",
// which always reports not-ready).
func NewDrive(dev BlockDevice) *Drive {
	d := &Drive{Dev: dev}
	if dev != nil {
		d.Status = StatusDRDY
	}
	return d
}

func (d *Drive) lba() uint64 {
	return uint64(d.LBALow) | uint64(d.LBAMid)<<8 | uint64(d.LBAHigh)<<16 | uint64(d.Device&0xF)<<24
}

func (d *Drive) setLBA(lba uint64) {
	d.LBALow = uint8(lba)
	d.LBAMid = uint8(lba >> 8)
	d.LBAHigh = uint8(lba >> 16)
	d.Device = (d.Device &^ 0xF) | uint8(lba>>24)&0xF
}

// WriteCommand handles a write to the command register (1F7h), per
// spec.md 4.H's command dispatch.
func (d *Drive) WriteCommand(cmd uint8) {
	if d.Dev == nil {
		d.Status = StatusERR
		d.Error = ErrABRT
		return
	}
	d.Status = StatusDRDY
	d.Error = 0

	switch cmd {
	case 0xEC: // IDENTIFY DEVICE
		if d.Dev.IsATAPI() {
			d.abort()
			return
		}
		d.loadFIFO(identifyData(d.Dev, false))
	case 0xA1: // IDENTIFY PACKET DEVICE
		if !d.Dev.IsATAPI() {
			d.abort()
			return
		}
		d.loadFIFO(identifyData(d.Dev, true))
	case 0x20, 0x21: // READ SECTOR(S)
		d.doPIOReadN(1)
	case 0x30, 0x31: // WRITE SECTOR(S)
		d.beginPIOWriteN(1)
	case 0xC4: // READ MULTIPLE
		d.doPIOReadN(d.multipleCount())
	case 0xC5: // WRITE MULTIPLE
		d.beginPIOWriteN(d.multipleCount())
	case 0xC8: // READ DMA
		d.dmaPending, d.dmaWrite = true, false
	case 0xCA: // WRITE DMA
		d.dmaPending, d.dmaWrite = true, true
	case 0xE7: // FLUSH CACHE
		// No write-behind cache exists in this model; nothing to flush.
	case 0x08: // DEVICE RESET (ATAPI)
		d.Error = 0
		d.Status = StatusDRDY
		d.awaitingPacket, d.packetAt = false, 0
		d.fifo, d.fifoAt = nil, 0
		d.packetData, d.packetSent = nil, 0
	case 0xA0: // PACKET
		if !d.Dev.IsATAPI() {
			d.abort()
			return
		}
		d.awaitingPacket = true
		d.packetAt = 0
		d.Status = StatusDRQ | StatusDRDY
	case 0x00: // NOP
	default:
		d.abort()
	}
}

// multipleCount returns the sector count READ/WRITE MULTIPLE transfers per
// command, per the SectorCount register (0 conventionally means 256).
func (d *Drive) multipleCount() int {
	if d.SectorCount == 0 {
		return 256
	}
	return int(d.SectorCount)
}

func (d *Drive) abort() {
	d.Status = StatusERR | StatusDRDY
	d.Error = ErrABRT
}

func (d *Drive) loadFIFO(buf []byte) {
	d.fifo = buf
	d.fifoAt = 0
	d.Status = StatusDRQ | StatusDRDY
}

// doPIOReadN loads n consecutive sectors starting at the task-file LBA
// into one FIFO, backing both plain READ SECTOR(S) (n=1) and READ
// MULTIPLE (n=SectorCount).
func (d *Drive) doPIOReadN(n int) {
	size := d.Dev.SectorSize()
	buf := make([]byte, size*n)
	lba := d.lba()
	for i := 0; i < n; i++ {
		if err := d.Dev.ReadSector(lba+uint64(i), buf[i*size:(i+1)*size]); err != nil {
			d.abort()
			return
		}
	}
	d.loadFIFO(buf)
}

// beginPIOWriteN opens a FIFO for n consecutive sectors' worth of PIO
// writes, backing both plain WRITE SECTOR(S) (n=1) and WRITE MULTIPLE.
func (d *Drive) beginPIOWriteN(n int) {
	d.fifo = make([]byte, d.Dev.SectorSize()*n)
	d.fifoAt = 0
	d.Status = StatusDRQ | StatusDRDY
}

// RunDMA executes a pending READ DMA/WRITE DMA command by moving one
// sector through the bus-master engine's PRD scatter-gather list, per
// spec.md 4.H. No-op if no DMA command is outstanding.
func (d *Drive) RunDMA(mem DMAMemory, prds []PRDEntry) error {
	if !d.dmaPending || d.Dev == nil {
		return nil
	}
	d.dmaPending = false
	buf := make([]byte, d.Dev.SectorSize())

	if d.dmaWrite {
		n := 0
		for _, p := range prds {
			if n >= len(buf) {
				break
			}
			n += copy(buf[n:], mem.CopyTo(uint64(p.Base), int(p.Count)))
		}
		if err := d.Dev.WriteSector(d.lba(), buf); err != nil {
			d.abort()
			return err
		}
		return nil
	}

	if err := d.Dev.ReadSector(d.lba(), buf); err != nil {
		d.abort()
		return err
	}
	n := 0
	for _, p := range prds {
		if n >= len(buf) {
			break
		}
		end := n + int(p.Count)
		if end > len(buf) {
			end = len(buf)
		}
		mem.CopyFrom(uint64(p.Base), buf[n:end])
		n = end
	}
	return nil
}

// DMAMemory is the physical memory a bus-master DMA engine moves sector
// data through; satisfied by *memory.Memory.
type DMAMemory interface {
	CopyTo(addr uint64, length int) []byte
	CopyFrom(addr uint64, src []byte)
}

// PRDEntry is one bus-master physical-region descriptor: a physical base
// address and byte count, with EOT marking the table's last entry.
type PRDEntry struct {
	Base  uint32
	Count uint32
	EOT   bool
}

// ReadData handles a 16-bit read from the data register (1F0h) during a
// PIO IN phase (PIO-in: IDENTIFY, READ SECTOR, ATAPI data-in).
func (d *Drive) ReadData() uint16 {
	if d.fifoAt >= len(d.fifo) {
		return 0xFFFF
	}
	v := binary.LittleEndian.Uint16(d.fifo[d.fifoAt:])
	d.fifoAt += 2
	if d.fifoAt >= len(d.fifo) {
		if d.packetData != nil {
			d.loadNextPacketChunk()
		} else {
			d.Status &^= StatusDRQ
		}
	}
	return v
}

// WriteData handles a 16-bit write to the data register during a PIO OUT
// phase (WRITE SECTOR PIO-out, or an ATAPI command packet's 12 bytes).
func (d *Drive) WriteData(v uint16) {
	if d.awaitingPacket {
		d.packet[d.packetAt] = uint8(v)
		d.packet[d.packetAt+1] = uint8(v >> 8)
		d.packetAt += 2
		if d.packetAt >= 12 {
			d.awaitingPacket = false
			d.Status &^= StatusDRQ
			d.execPacket()
		}
		return
	}
	if d.fifoAt+1 < len(d.fifo) {
		d.fifo[d.fifoAt] = uint8(v)
		d.fifo[d.fifoAt+1] = uint8(v >> 8)
		d.fifoAt += 2
		if d.fifoAt >= len(d.fifo) {
			d.Status &^= StatusDRQ
			size := d.Dev.SectorSize()
			lba := d.lba()
			for i := 0; i*size < len(d.fifo); i++ {
				_ = d.Dev.WriteSector(lba+uint64(i), d.fifo[i*size:(i+1)*size])
			}
		}
	}
}

func identifyData(dev BlockDevice, atapi bool) []byte {
	buf := make([]byte, 512)
	var general uint16
	if atapi {
		general = 0x8580 // ATAPI, CD-ROM device type, removable
	} else {
		general = 0x0040 // fixed, non-removable
	}
	binary.LittleEndian.PutUint16(buf[0:], general)
	sectors := dev.SectorCount()
	binary.LittleEndian.PutUint32(buf[120:], uint32(sectors))
	binary.LittleEndian.PutUint16(buf[166:], 0) // no DMA reporting, PIO only
	return buf
}
