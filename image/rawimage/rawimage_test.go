package rawimage

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeTempImage(t *testing.T, sectors int, sectorSize int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "disk.img")
	data := make([]byte, sectors*sectorSize)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write temp image: %v", err)
	}
	return path
}

func TestOpenReportsSectorCount(t *testing.T) {
	path := writeTempImage(t, 100, DefaultSectorSize)
	img, err := Open(path, DefaultSectorSize, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	if img.SectorCount() != 100 {
		t.Errorf("SectorCount = %d, want 100", img.SectorCount())
	}
	if img.IsATAPI() {
		t.Error("raw image must not report ATAPI")
	}
}

func TestWriteThenReadSectorRoundTrip(t *testing.T) {
	path := writeTempImage(t, 10, DefaultSectorSize)
	img, err := Open(path, DefaultSectorSize, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	want := bytes.Repeat([]byte{0xAB}, DefaultSectorSize)
	if err := img.WriteSector(3, want); err != nil {
		t.Fatalf("WriteSector: %v", err)
	}

	got := make([]byte, DefaultSectorSize)
	if err := img.ReadSector(3, got); err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Error("read back sector does not match written sector")
	}
}

func TestReadOnlyImageRejectsWrite(t *testing.T) {
	path := writeTempImage(t, 4, DefaultSectorSize)
	img, err := Open(path, DefaultSectorSize, true)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer img.Close()

	buf := make([]byte, DefaultSectorSize)
	if err := img.WriteSector(0, buf); err == nil {
		t.Error("expected write-protect error on read-only image")
	}
}
