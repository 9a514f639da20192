package machineconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "pcemu.cfg")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadParsesMemorySize(t *testing.T) {
	path := writeConfig(t, "memory 16M\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MemoryBytes != 16*1024*1024 {
		t.Errorf("MemoryBytes = %d, want %d", cfg.MemoryBytes, 16*1024*1024)
	}
}

func TestLoadParsesKilobyteSize(t *testing.T) {
	path := writeConfig(t, "memory 640K\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MemoryBytes != 640*1024 {
		t.Errorf("MemoryBytes = %d, want %d", cfg.MemoryBytes, 640*1024)
	}
}

func TestLoadIgnoresCommentsAndBlankLines(t *testing.T) {
	path := writeConfig(t, "# a comment\n\nmemory 4M # trailing comment\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MemoryBytes != 4*1024*1024 {
		t.Errorf("MemoryBytes = %d, want %d", cfg.MemoryBytes, 4*1024*1024)
	}
}

func TestLoadParsesDriveDirectives(t *testing.T) {
	path := writeConfig(t, ""+
		"drive primary master /images/disk0.img\n"+
		"drive secondary slave /images/cdrom.iso iso\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Drives) != 2 {
		t.Fatalf("len(Drives) = %d, want 2", len(cfg.Drives))
	}
	d0 := cfg.Drives[0]
	if d0.Channel != 0 || d0.Slave || d0.Path != "/images/disk0.img" || d0.Kind != "raw" {
		t.Errorf("Drives[0] = %+v, unexpected", d0)
	}
	d1 := cfg.Drives[1]
	if d1.Channel != 1 || !d1.Slave || d1.Path != "/images/cdrom.iso" || d1.Kind != "iso" {
		t.Errorf("Drives[1] = %+v, unexpected", d1)
	}
}

func TestLoadRejectsUnknownDirective(t *testing.T) {
	path := writeConfig(t, "bogus 1 2 3\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown directive")
	}
}

func TestLoadRejectsBadChannelName(t *testing.T) {
	path := writeConfig(t, "drive tertiary master /images/disk0.img\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown channel")
	}
}

func TestLoadParsesTracepointToggles(t *testing.T) {
	path := writeConfig(t, ""+
		"StopOnInt13ReadLBA 10,0x20,30\n"+
		"StopOnSetVideoMode\n"+
		"StopOnVBESetMode\n"+
		"StopOnInt10WriteString\n"+
		"StopOnInt16Wait\n"+
		"StopOnIA32EActive\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []uint64{10, 0x20, 30}
	if len(cfg.Trace.StopOnInt13ReadLBA) != len(want) {
		t.Fatalf("StopOnInt13ReadLBA = %v, want %v", cfg.Trace.StopOnInt13ReadLBA, want)
	}
	for i, v := range want {
		if cfg.Trace.StopOnInt13ReadLBA[i] != v {
			t.Errorf("StopOnInt13ReadLBA[%d] = %x, want %x", i, cfg.Trace.StopOnInt13ReadLBA[i], v)
		}
	}
	if !cfg.Trace.StopOnSetVideoMode || !cfg.Trace.StopOnVBESetMode ||
		!cfg.Trace.StopOnInt10WriteString || !cfg.Trace.StopOnInt16Wait ||
		!cfg.Trace.StopOnIA32EActive {
		t.Errorf("Trace = %+v, expected all toggles set", cfg.Trace)
	}
}

func TestEnvOverridesFileTracepoints(t *testing.T) {
	path := writeConfig(t, "memory 4M\n")
	t.Setenv("PHPME_STOP_ON_INT16_WAIT", "1")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Trace.StopOnInt16Wait {
		t.Error("expected environment variable to set StopOnInt16Wait")
	}
}

func TestLoadDefaultsMemoryWhenUnset(t *testing.T) {
	path := writeConfig(t, "drive primary master /images/disk0.img\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MemoryBytes != 16*1024*1024 {
		t.Errorf("default MemoryBytes = %d, want 16MiB", cfg.MemoryBytes)
	}
}
