// Package machineconfig parses the line-oriented configuration file
// spec.md 6's ambient stack calls for: memory size, boot image, the two
// ATA channels' attached drives, and the PHPME_STOP_ON_* debug
// tracepoint toggles (readable from the file or the environment).
// Grounded on the teacher's config/configparser line-at-a-time grammar
// (model name + address + options), generalized from device-model
// registration to this emulator's fixed set of directives.
package machineconfig

/*
 * pcemu - machine configuration file parser
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
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

/* Configuration file format:
 *
 * '#' starts a comment, rest of line ignored.
 * <line> := 'memory' <size>['K'|'M'] |
 *           'drive' <primary|secondary> <master|slave> <path> [<raw|iso>] |
 *           'log' <path> |
 *           'StopOnInt13ReadLBA' <lba>[,<lba>...] |
 *           'StopOnSetVideoMode' | 'StopOnVBESetMode' |
 *           'StopOnInt10WriteString' | 'StopOnInt16Wait' |
 *           'StopOnIA32EActive'
 * Directive names are matched case-insensitively.
 */

// DriveSpec names one attached drive and its backing image kind.
type DriveSpec struct {
	Channel int // 0 = primary, 1 = secondary
	Slave   bool
	Path    string
	Kind    string // "raw" or "iso"; defaults to "raw"
}

// Tracepoints mirrors spec.md 6's PHPME_STOP_ON_* debug toggles.
type Tracepoints struct {
	StopOnInt13ReadLBA     []uint64
	StopOnSetVideoMode     bool
	StopOnVBESetMode       bool
	StopOnInt10WriteString bool
	StopOnInt16Wait        bool
	StopOnIA32EActive      bool
}

// Config is the parsed result of a machine configuration file.
type Config struct {
	MemoryBytes uint64
	Drives      []DriveSpec
	LogPath     string
	Trace       Tracepoints
}

type configLine struct {
	fields []string
	number int
}

// Load parses the configuration file at path, then applies any
// PHPME_STOP_ON_* environment variables on top of the file's tracepoint
// settings (the environment always wins, matching a debug override the
// operator can set without editing the file).
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := &Config{MemoryBytes: 16 * 1024 * 1024}
	reader := bufio.NewReader(file)
	lineNumber := 0
	for {
		raw, err := reader.ReadString('\n')
		lineNumber++
		if len(raw) == 0 && err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if parseErr := parseLine(cfg, raw, lineNumber); parseErr != nil {
			return nil, parseErr
		}
		if err != nil && errors.Is(err, io.EOF) {
			break
		}
	}

	applyEnvTracepoints(&cfg.Trace)
	return cfg, nil
}

func parseLine(cfg *Config, raw string, lineNumber int) error {
	if idx := strings.IndexByte(raw, '#'); idx >= 0 {
		raw = raw[:idx]
	}
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}
	line := configLine{fields: fields, number: lineNumber}

	switch strings.ToLower(fields[0]) {
	case "memory":
		return line.parseMemory(cfg)
	case "drive":
		return line.parseDrive(cfg)
	case "log":
		return line.parseLog(cfg)
	case "stoponint13readlba":
		return line.parseStopOnInt13(cfg)
	case "stoponsetvideomode":
		cfg.Trace.StopOnSetVideoMode = true
	case "stoponvbesetmode":
		cfg.Trace.StopOnVBESetMode = true
	case "stoponint10writestring":
		cfg.Trace.StopOnInt10WriteString = true
	case "stoponint16wait":
		cfg.Trace.StopOnInt16Wait = true
	case "stoponia32eactive":
		cfg.Trace.StopOnIA32EActive = true
	default:
		return fmt.Errorf("machineconfig: line %d: unknown directive %q", lineNumber, fields[0])
	}
	return nil
}

func (line configLine) parseMemory(cfg *Config) error {
	if len(line.fields) != 2 {
		return fmt.Errorf("machineconfig: line %d: memory requires one size argument", line.number)
	}
	size, err := parseSize(line.fields[1])
	if err != nil {
		return fmt.Errorf("machineconfig: line %d: %w", line.number, err)
	}
	cfg.MemoryBytes = size
	return nil
}

func parseSize(s string) (uint64, error) {
	mult := uint64(1)
	switch {
	case strings.HasSuffix(s, "K") || strings.HasSuffix(s, "k"):
		mult = 1024
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "M") || strings.HasSuffix(s, "m"):
		mult = 1024 * 1024
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return n * mult, nil
}

func (line configLine) parseDrive(cfg *Config) error {
	if len(line.fields) < 4 {
		return fmt.Errorf("machineconfig: line %d: drive requires channel, position, and path", line.number)
	}
	var spec DriveSpec
	switch strings.ToLower(line.fields[1]) {
	case "primary":
		spec.Channel = 0
	case "secondary":
		spec.Channel = 1
	default:
		return fmt.Errorf("machineconfig: line %d: unknown channel %q", line.number, line.fields[1])
	}
	switch strings.ToLower(line.fields[2]) {
	case "master":
		spec.Slave = false
	case "slave":
		spec.Slave = true
	default:
		return fmt.Errorf("machineconfig: line %d: unknown position %q", line.number, line.fields[2])
	}
	spec.Path = line.fields[3]
	spec.Kind = "raw"
	if len(line.fields) >= 5 {
		spec.Kind = strings.ToLower(line.fields[4])
	}
	cfg.Drives = append(cfg.Drives, spec)
	return nil
}

func (line configLine) parseLog(cfg *Config) error {
	if len(line.fields) != 2 {
		return fmt.Errorf("machineconfig: line %d: log requires one path argument", line.number)
	}
	cfg.LogPath = line.fields[1]
	return nil
}

func (line configLine) parseStopOnInt13(cfg *Config) error {
	if len(line.fields) < 2 {
		return fmt.Errorf("machineconfig: line %d: StopOnInt13ReadLBA requires an LBA list", line.number)
	}
	for _, tok := range strings.Split(line.fields[1], ",") {
		lba, err := strconv.ParseUint(tok, 0, 64)
		if err != nil {
			return fmt.Errorf("machineconfig: line %d: invalid LBA %q: %w", line.number, tok, err)
		}
		cfg.Trace.StopOnInt13ReadLBA = append(cfg.Trace.StopOnInt13ReadLBA, lba)
	}
	return nil
}

func applyEnvTracepoints(t *Tracepoints) {
	if v := os.Getenv("PHPME_STOP_ON_INT13_READ_LBA"); v != "" {
		var lbas []uint64
		for _, tok := range strings.Split(v, ",") {
			if lba, err := strconv.ParseUint(tok, 0, 64); err == nil {
				lbas = append(lbas, lba)
			}
		}
		if len(lbas) > 0 {
			t.StopOnInt13ReadLBA = lbas
		}
	}
	setBoolEnv("PHPME_STOP_ON_SET_VIDEO_MODE", &t.StopOnSetVideoMode)
	setBoolEnv("PHPME_STOP_ON_VBE_SETMODE", &t.StopOnVBESetMode)
	setBoolEnv("PHPME_STOP_ON_INT10_WRITE_STRING", &t.StopOnInt10WriteString)
	setBoolEnv("PHPME_STOP_ON_INT16_WAIT", &t.StopOnInt16Wait)
	setBoolEnv("PHPME_STOP_ON_IA32E_ACTIVE", &t.StopOnIA32EActive)
}

func setBoolEnv(name string, dst *bool) {
	if _, ok := os.LookupEnv(name); ok {
		*dst = true
	}
}
