// Package rawimage implements the raw disk-image half of the Image
// contract (spec.md 6): a byte-addressable, sector-granular backing
// store over a flat host file, attached/detached the way the teacher's
// util/tape.Context wraps an *os.File (Attach/Detach, seek-then-read or
// seek-then-write, no in-memory copy of the whole image).
package rawimage

/*
 * pcemu - raw disk image backend
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

import (
	"errors"
	"io"
	"os"
)

// DefaultSectorSize is the conventional ATA hard-disk sector size; most
// raw images (DOS/MikeOS hard-disk or floppy images) use it.
const DefaultSectorSize = 512

var errNotAttached = errors.New("rawimage: not attached")

// Image is a flat raw disk image attached to a host file. It implements
// ata.BlockDevice directly so it can back an ata.Drive without an
// adapter type.
type Image struct {
	file       *os.File
	sectorSize int
	readOnly   bool
	sectors    uint64
}

// Open attaches a raw image file. readOnly governs whether WriteSector
// is permitted; sectorSize is normally DefaultSectorSize but floppy
// images may pass a smaller geometry-derived size.
func Open(path string, sectorSize int, readOnly bool) (*Image, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Image{
		file:       f,
		sectorSize: sectorSize,
		readOnly:   readOnly,
		sectors:    uint64(info.Size()) / uint64(sectorSize),
	}, nil
}

// Close detaches the backing file.
func (img *Image) Close() error {
	if img.file == nil {
		return nil
	}
	err := img.file.Close()
	img.file = nil
	return err
}

// ReadSector implements ata.BlockDevice.
func (img *Image) ReadSector(lba uint64, buf []byte) error {
	if img.file == nil {
		return errNotAttached
	}
	n, err := img.file.ReadAt(buf[:img.sectorSize], int64(lba)*int64(img.sectorSize))
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	for i := n; i < img.sectorSize; i++ {
		buf[i] = 0
	}
	return nil
}

// WriteSector implements ata.BlockDevice.
func (img *Image) WriteSector(lba uint64, buf []byte) error {
	if img.file == nil {
		return errNotAttached
	}
	if img.readOnly {
		return errors.New("rawimage: media is read-only")
	}
	_, err := img.file.WriteAt(buf[:img.sectorSize], int64(lba)*int64(img.sectorSize))
	return err
}

// SectorSize implements ata.BlockDevice.
func (img *Image) SectorSize() int { return img.sectorSize }

// SectorCount implements ata.BlockDevice.
func (img *Image) SectorCount() uint64 { return img.sectors }

// IsATAPI implements ata.BlockDevice: raw images always back plain ATA
// hard-disk drives, never ATAPI.
func (img *Image) IsATAPI() bool { return false }
