/*
 * pcemu - main process
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
 *
 */

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	getopt "github.com/pborman/getopt/v2"

	"github.com/rcornwell/pcemu/ata"
	"github.com/rcornwell/pcemu/config/machineconfig"
	"github.com/rcornwell/pcemu/debug/console"
	"github.com/rcornwell/pcemu/display/ttydisplay"
	"github.com/rcornwell/pcemu/image/isoimage"
	"github.com/rcornwell/pcemu/image/rawimage"
	"github.com/rcornwell/pcemu/machine"
	"github.com/rcornwell/pcemu/util/logger"
)

var Logger *slog.Logger

func main() {
	optConfig := getopt.StringLong("config", 'c', "pcemu.cfg", "Configuration file")
	optLogFile := getopt.StringLong("log", 'l', "", "Log file")
	optDebug := getopt.BoolLong("debug", 'd', "Enter the interactive debug console instead of free-running")
	optHelp := getopt.BoolLong("help", 'h', "Help")
	getopt.Parse()

	if *optHelp {
		getopt.Usage()
		os.Exit(0)
	}

	var file *os.File
	if *optLogFile != "" {
		var err error
		file, err = os.Create(*optLogFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "pcemu: cannot create log file:", err)
			os.Exit(1)
		}
	}
	programLevel := new(slog.LevelVar)
	programLevel.Set(slog.LevelInfo)
	Logger = slog.New(logger.NewHandler(file, &slog.HandlerOptions{Level: programLevel, AddSource: false}, optDebug))
	slog.SetDefault(Logger)

	Logger.Info("pcemu started")

	if _, err := os.Stat(*optConfig); os.IsNotExist(err) {
		Logger.Error("configuration file not found", "path", *optConfig)
		os.Exit(1)
	}

	cfg, err := machineconfig.Load(*optConfig)
	if err != nil {
		Logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	drives, err := openDrives(cfg.Drives)
	if err != nil {
		Logger.Error("failed to open a drive image", "error", err)
		os.Exit(1)
	}

	vga := ttydisplay.New(nil)
	keys := ttydisplay.NewKeyboard()

	m, err := machine.New(machine.Config{
		MemoryBytes: cfg.MemoryBytes,
		Drives:      drives,
		Keys:        keys,
		Framebuffer: vga,
		Logger:      Logger,
		Trace:       cfg.Trace,
	})
	if err != nil {
		Logger.Error("failed to build machine", "error", err)
		os.Exit(1)
	}
	vga.SetVGA(m.Bus.VGA)

	if dev := primaryMasterDrive(drives); dev != nil {
		if err := m.Boot(dev); err != nil {
			Logger.Warn("failed to load boot sector", "error", err)
		}
	}

	if err := keys.Start(); err != nil {
		Logger.Warn("interactive keyboard unavailable, running with no keyboard input", "error", err)
	} else {
		defer keys.Stop()
	}

	if *optDebug {
		console.Run(m)
		return
	}

	m.Start()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	Logger.Info("shutting down")
	m.Stop()
}

// openDrives opens the backing image for each configured drive slot,
// choosing the raw or El Torito ISO9660 image reader per its Kind.
func openDrives(specs []machineconfig.DriveSpec) ([]machine.DriveConfig, error) {
	drives := make([]machine.DriveConfig, 0, len(specs))
	for _, spec := range specs {
		var dev ata.BlockDevice
		switch spec.Kind {
		case "iso":
			img, err := isoimage.Open(spec.Path)
			if err != nil {
				return nil, fmt.Errorf("opening %s: %w", spec.Path, err)
			}
			dev = img
		default:
			img, err := rawimage.Open(spec.Path, rawimage.DefaultSectorSize, false)
			if err != nil {
				return nil, fmt.Errorf("opening %s: %w", spec.Path, err)
			}
			dev = img
		}
		drives = append(drives, machine.DriveConfig{
			Channel: spec.Channel,
			Slave:   spec.Slave,
			Dev:     dev,
		})
	}
	return drives, nil
}

// primaryMasterDrive returns the configured primary-master device, the slot
// a real BIOS's INT 19h bootstrap loader reads its boot sector from, or nil
// if none was configured.
func primaryMasterDrive(drives []machine.DriveConfig) ata.BlockDevice {
	for _, d := range drives {
		if d.Channel == 0 && !d.Slave {
			return d.Dev
		}
	}
	return nil
}
