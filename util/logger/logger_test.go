package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestHandleFormatsKeyValueAttrs(t *testing.T) {
	var buf bytes.Buffer
	debug := false
	h := NewHandler(&buf, nil, &debug)
	log := slog.New(h)

	log.Info("boot sector loaded", "lba", 0, "drive", "hda")

	out := buf.String()
	if !strings.Contains(out, "lba=0") || !strings.Contains(out, "drive=hda") {
		t.Errorf("expected key=value attrs in output, got %q", out)
	}
	if !strings.Contains(out, "boot sector loaded") {
		t.Errorf("expected message in output, got %q", out)
	}
}

func TestWithAttrsCarriesBoundFieldsIntoEveryRecord(t *testing.T) {
	var buf bytes.Buffer
	debug := false
	h := NewHandler(&buf, nil, &debug)
	log := slog.New(h).With("channel", "primary")

	log.Info("drive reset")

	out := buf.String()
	if !strings.Contains(out, "channel=primary") {
		t.Errorf("expected bound attr to appear in record, got %q", out)
	}
}

func TestWithGroupPrefixesKeys(t *testing.T) {
	var buf bytes.Buffer
	debug := false
	h := NewHandler(&buf, nil, &debug)
	log := slog.New(h).WithGroup("ata").With("lba", 5)

	log.Info("read sector")

	out := buf.String()
	if !strings.Contains(out, "ata.lba=5") {
		t.Errorf("expected group-prefixed attr, got %q", out)
	}
}

func TestEnabledRespectsConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	debug := false
	h := NewHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, &debug)
	log := slog.New(h)

	log.Info("should be dropped")
	log.Warn("should be kept")

	out := buf.String()
	if strings.Contains(out, "should be dropped") {
		t.Errorf("expected Info below configured Warn level to be dropped, got %q", out)
	}
	if !strings.Contains(out, "should be kept") {
		t.Errorf("expected Warn record to be written, got %q", out)
	}
}

func TestHandleWithNoFileOnlyWritesStderr(t *testing.T) {
	debug := false
	h := NewHandler(nil, nil, &debug)

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "tick", 0)
	if err := h.Handle(context.Background(), r); err != nil {
		t.Errorf("Handle with nil out: %v", err)
	}
}
