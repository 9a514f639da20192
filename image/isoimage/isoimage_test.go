package isoimage

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// buildSyntheticISO assembles the minimal volume descriptor set plus an
// El Torito boot catalog an x86 BIOS would need: a boot record
// descriptor at LBA 16 pointing at a catalog, a PVD at LBA 17, a
// terminator at LBA 18, and the catalog itself at LBA 19.
func buildSyntheticISO(t *testing.T) string {
	t.Helper()
	const totalSectors = 24
	data := make([]byte, totalSectors*SectorSize)

	sector := func(lba int) []byte { return data[lba*SectorSize : (lba+1)*SectorSize] }

	// Boot record descriptor (type 0).
	br := sector(16)
	br[0] = bootRecordID
	copy(br[1:6], "CD001")
	copy(br[7:], elToritoSignature)
	binary.LittleEndian.PutUint32(br[71:75], 19) // boot catalog LBA

	// Primary volume descriptor (type 1).
	pvd := sector(17)
	pvd[0] = primaryVolumeID
	copy(pvd[1:6], "CD001")

	// Volume set terminator (type 255).
	term := sector(18)
	term[0] = volumeSetTerminatorID
	copy(term[1:6], "CD001")

	// Boot catalog at LBA 19: validation entry + initial/default entry.
	cat := sector(19)
	cat[0] = 1 // header ID
	entry := cat[32:64]
	entry[0] = 0x88 // bootable
	entry[1] = MediaNoEmulation
	binary.LittleEndian.PutUint16(entry[2:4], 0x07C0) // load segment
	binary.LittleEndian.PutUint16(entry[6:8], 4)      // sector count
	binary.LittleEndian.PutUint32(entry[8:12], 20)    // load RBA

	// Boot image payload at LBA 20, a recognizable marker byte.
	sector(20)[0] = 0x55
	sector(20)[1] = 0xAA

	path := filepath.Join(t.TempDir(), "boot.iso")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write synthetic iso: %v", err)
	}
	return path
}

func TestOpenParsesElToritoBootImage(t *testing.T) {
	path := buildSyntheticISO(t)
	img, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	boot, ok := img.BootImage()
	if !ok {
		t.Fatal("expected a boot image to be present")
	}
	if boot.LoadRBA != 20 {
		t.Errorf("LoadRBA = %d, want 20", boot.LoadRBA)
	}
	if boot.LoadSegment != 0x07C0 {
		t.Errorf("LoadSegment = %#x, want 07C0", boot.LoadSegment)
	}
	if !boot.IsNoEmulation {
		t.Error("expected no-emulation media type")
	}
}

func TestReadSectorReturnsBootImagePayload(t *testing.T) {
	path := buildSyntheticISO(t)
	img, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	buf := make([]byte, SectorSize)
	if err := img.ReadSector(20, buf); err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	if buf[0] != 0x55 || buf[1] != 0xAA {
		t.Errorf("boot image payload = %02x %02x, want 55 aa", buf[0], buf[1])
	}
}

func TestIsoImageReportsATAPIAndReadOnly(t *testing.T) {
	path := buildSyntheticISO(t)
	img, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	if !img.IsATAPI() {
		t.Error("ISO image must report ATAPI")
	}
	if err := img.WriteSector(0, make([]byte, SectorSize)); err == nil {
		t.Error("expected write to ISO media to fail")
	}
}

func TestNonBootableISOHasNoBootImage(t *testing.T) {
	const totalSectors = 19
	data := make([]byte, totalSectors*SectorSize)
	sector := func(lba int) []byte { return data[lba*SectorSize : (lba+1)*SectorSize] }

	pvd := sector(16)
	pvd[0] = primaryVolumeID
	copy(pvd[1:6], "CD001")
	term := sector(17)
	term[0] = volumeSetTerminatorID
	copy(term[1:6], "CD001")

	path := filepath.Join(t.TempDir(), "data.iso")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write iso: %v", err)
	}

	img, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	if _, ok := img.BootImage(); ok {
		t.Error("expected no boot image for a plain data ISO")
	}
}
