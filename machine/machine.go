// Package machine implements spec.md 9's single arena: it owns every
// architectural and chipset component and drives the fetch-decode-
// execute loop that ties them together, interleaving instruction
// stepping with interrupt arbitration and event-queue time advance.
// Grounded on the teacher's emu/core.core (a struct holding the running
// flag, a done channel, and a WaitGroup-backed Start/Stop pair around a
// for-select loop) generalized from an external master-channel command
// queue to a self-contained machine with no package-level globals.
package machine

/*
 * pcemu - machine arena
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
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rcornwell/pcemu/ata"
	"github.com/rcornwell/pcemu/bios"
	"github.com/rcornwell/pcemu/chipset"
	"github.com/rcornwell/pcemu/config/machineconfig"
	"github.com/rcornwell/pcemu/cpu"
	"github.com/rcornwell/pcemu/executor"
	"github.com/rcornwell/pcemu/fault"
	"github.com/rcornwell/pcemu/interrupt"
	"github.com/rcornwell/pcemu/memory"
	"github.com/rcornwell/pcemu/paging"
	"github.com/rcornwell/pcemu/segment"
)

// VGAFramebufferBase and Size are the conventional legacy VGA memory
// window's physical address and extent (A0000h-BFFFFh).
const (
	VGAFramebufferBase = 0xA0000
	VGAFramebufferSize  = 0x20000
)

// biosVectorSegment/Offset place the BIOS service stubs in the unused tail
// of the conventional F000h ROM segment, below the power-on CS:IP
// (F000:FFF0) that LoadBootSector's caller typically leaves untouched.
const (
	biosVectorSegment = 0xF000
	biosVectorOffset  = 0xE000
	biosVectorStride  = 4
)

// biosVectors lists the interrupt vectors bios.Services.Dispatch owns, per
// spec.md 4.I; each gets one 4-byte IVT entry pointing at a host-intercepted
// stub instead of real 8086 ROM code.
var biosVectors = []uint8{0x08, 0x10, 0x12, 0x13, 0x15, 0x16, 0x1A}

// DriveConfig names one of the four INT-13h-addressable drive slots
// (primary master/slave, secondary master/slave) and which physical ATA
// channel/position it occupies.
type DriveConfig struct {
	Channel int  // 0 = primary (1F0h), 1 = secondary (170h)
	Slave   bool // false = master, true = slave
	Dev     ata.BlockDevice
}

// Config configures a Machine at construction. Fields left at their
// zero value take a sensible default: MemoryBytes defaults to 16MiB,
// Logger defaults to slog.Default().
type Config struct {
	MemoryBytes uint64
	Drives      []DriveConfig
	Keys        bios.KeyboardSource
	Framebuffer chipset.Framebuffer
	Logger      *slog.Logger
	Trace       machineconfig.Tracepoints
}

// Machine is the complete PC: CPU architectural state, physical memory,
// segmentation and paging translation, the instruction executor, the PC
// chipset bus, ATA storage, BIOS service shortcuts, and the interrupt
// arbiter that ties chipset IRQ sources to the executor's delivery path.
type Machine struct {
	CPU  *cpu.State
	Mem  *memory.Memory
	Seg  *segment.Resolver
	Pg   *paging.Translator
	Exec *executor.Executor
	Bus  *chipset.Bus

	Arbiter *interrupt.Arbiter
	cascade *chipset.Cascade

	BIOS      *bios.Services
	biosStubs map[uint64]uint8 // physical CS:IP -> vector, for Step's intercept

	trace      machineconfig.Tracepoints
	tripped    bool
	tripReason string

	logger *slog.Logger

	mu      sync.Mutex
	wg      sync.WaitGroup
	done    chan struct{}
	running bool
}

// New builds a fully wired Machine from cfg.
func New(cfg Config) (*Machine, error) {
	memSize := cfg.MemoryBytes
	if memSize == 0 {
		memSize = 16 * 1024 * 1024
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Machine{
		CPU:    cpu.New(),
		Mem:    memory.New(memSize),
		logger: logger,
		done:   make(chan struct{}),
		trace:  cfg.Trace,
	}
	m.Seg = segment.New(m.CPU, m.Mem)
	m.Pg = paging.New(m.CPU, m.Mem)
	m.Exec = executor.New(m.CPU, m.Mem, m.Seg, m.Pg)

	m.Bus = chipset.NewBus()
	m.Exec.Ports = m.Bus

	if cfg.Framebuffer != nil {
		m.Pg.AddMMIOWindow(VGAFramebufferBase, VGAFramebufferSize,
			&chipset.FramebufferWindow{FB: cfg.Framebuffer})
	}

	if err := m.attachDrives(cfg.Drives); err != nil {
		return nil, err
	}

	m.Arbiter = interrupt.New()
	m.cascade = &chipset.Cascade{Master: m.Bus.Master, Slave: m.Bus.Slave}
	m.Arbiter.AddSource(m.cascade)

	m.BIOS = &bios.Services{
		CPU:       m.CPU,
		Mem:       m.Mem,
		VGA:       m.Bus.VGA,
		CMOS:      m.Bus.CMOS,
		Keys:      cfg.Keys,
		MemSizeKB: uint32(memSize / 1024),
	}
	m.BIOS.Disks[0] = channelFor(m.Bus, 0, false)
	m.BIOS.Disks[1] = channelFor(m.Bus, 0, true)
	m.BIOS.Disks[2] = channelFor(m.Bus, 1, false)
	m.BIOS.Disks[3] = channelFor(m.Bus, 1, true)

	m.installBIOSVectors()

	return m, nil
}

// installBIOSVectors populates the real-mode IVT entries for every vector
// bios.Services.Dispatch owns with stubs in the F000h segment, per spec.md
// 4.I's "reached via the real-mode IVT populated at init with stubs
// pointing to the host-side handlers". Each stub is a single IRET byte: a
// guest that somehow executes one directly (rather than Step intercepting
// it first) returns harmlessly instead of running off into ROM space.
func (m *Machine) installBIOSVectors() {
	m.biosStubs = make(map[uint64]uint8, len(biosVectors))
	base := uint64(biosVectorSegment)<<4 + biosVectorOffset
	for i, vector := range biosVectors {
		addr := base + uint64(i)*biosVectorStride
		m.Mem.Write8(addr, 0xCF) // IRET
		m.Mem.Write16(uint64(vector)*4, uint16(biosVectorOffset+i*biosVectorStride))
		m.Mem.Write16(uint64(vector)*4+2, biosVectorSegment)
		m.biosStubs[addr] = vector
	}
}

// attachDrives builds the primary/secondary ata.Channel pairs on the bus
// from the requested drive slots.
func (m *Machine) attachDrives(drives []DriveConfig) error {
	var primaryMaster, primarySlave, secondaryMaster, secondarySlave *ata.Drive
	for _, d := range drives {
		if d.Channel != 0 && d.Channel != 1 {
			return fmt.Errorf("machine: invalid ATA channel %d", d.Channel)
		}
		drive := ata.NewDrive(d.Dev)
		switch {
		case d.Channel == 0 && !d.Slave:
			primaryMaster = drive
		case d.Channel == 0 && d.Slave:
			primarySlave = drive
		case d.Channel == 1 && !d.Slave:
			secondaryMaster = drive
		case d.Channel == 1 && d.Slave:
			secondarySlave = drive
		}
	}
	m.Bus.Primary = ata.NewChannel(primaryMaster, primarySlave)
	m.Bus.Secondary = ata.NewChannel(secondaryMaster, secondarySlave)
	return nil
}

// channelFor returns the single-drive view of one of the four INT-13h
// drive slots, for bios.Services.Disks: the BIOS interrupt handlers
// always address "the selected drive" of a channel, so each slot is
// wrapped in its own Channel pointed at the right Drive of the shared
// bus channel.
func channelFor(bus *chipset.Bus, physicalChannel int, slave bool) *ata.Channel {
	src := bus.Primary
	if physicalChannel == 1 {
		src = bus.Secondary
	}
	idx := 0
	if slave {
		idx = 1
	}
	return ata.NewChannel(src.Drives[idx], nil)
}

// Step executes exactly one fetch-decode-execute cycle, including any
// interrupt delivery due at the current instruction boundary and a
// matching single tick of device time, per spec.md 4.J/9.
func (m *Machine) Step() error {
	m.CPU.SetA20Enabled(m.Bus.A20Enabled())

	if m.trace.StopOnIA32EActive && m.CPU.Mode() == cpu.ModeLong64 {
		m.trip("IA-32e mode active")
		return nil
	}

	// A software INT reaching a stub CS:IP in a prior Step is intercepted
	// here, before fetch; a hardware IRQ vectoring through the IVT into a
	// stub within this same Step is caught by the second check below,
	// right after Deliver redirects CS:IP.
	if handled, err := m.interceptBIOSStub(); handled || err != nil {
		return err
	}

	ifEnabled := m.CPU.FlagSet(cpu.FlagIF)
	shadowed := m.CPU.ConsumeInterruptShadow()

	if m.CPU.Halted() {
		if m.Arbiter.WakesFromHalt(ifEnabled) {
			m.CPU.SetHalted(false)
		} else {
			m.Bus.Queue.Advance(1)
			return nil
		}
	}

	// A maskable interrupt due the instruction after STI is held back one
	// more step: the shadow guarantees STI;HLT and similar idioms always
	// get to execute the next instruction before delivery.
	if !shadowed {
		if vector, ok := m.Arbiter.Next(ifEnabled); ok {
			if err := m.Exec.Deliver(fault.New(vector)); err != nil {
				return err
			}
			if handled, err := m.interceptBIOSStub(); handled || err != nil {
				return err
			}
		}
	}

	if err := m.Exec.Step(); err != nil {
		return err
	}
	if err := m.runBusMasterDMA(); err != nil {
		return err
	}
	m.Bus.Queue.Advance(1)
	return nil
}

// runBusMasterDMA drains any bus-master IDE channel whose command register
// has the start bit set, walking its PRD table and handing the scatter-
// gather list to the selected drive's RunDMA, per spec.md 4.H. This
// emulator has no concurrent DMA engine to race against the CPU, so the
// whole transfer completes within the Step that set the start bit; the
// guest sees it exactly as it would a real controller's completion
// interrupt, just without the latency.
func (m *Machine) runBusMasterDMA() error {
	channels := [2]*ata.Channel{m.Bus.Primary, m.Bus.Secondary}
	for i, ch := range channels {
		bm := &m.Bus.BusMaster[i]
		if bm.Command&chipset.BMCmdStart == 0 || ch == nil {
			continue
		}
		prds := m.readPRDTable(bm.PRDTable)
		if err := ch.Current().RunDMA(m.Mem, prds); err != nil {
			return err
		}
		bm.Command &^= chipset.BMCmdStart
		bm.Status = (bm.Status &^ chipset.BMStatusActive) | chipset.BMStatusIntr
		m.Bus.Slave.Raise(uint8(6 + i)) // IRQ14 (primary) / IRQ15 (secondary)
	}
	return nil
}

// readPRDTable walks a guest-built physical-region descriptor table: each
// 8-byte entry is a little-endian (base uint32, count uint16, reserved
// uint16) triple with the table's last entry marked by bit 15 of the
// reserved word (bit 63 of the raw quadword); a zero count means 64KiB.
func (m *Machine) readPRDTable(base uint32) []ata.PRDEntry {
	var prds []ata.PRDEntry
	addr := uint64(base)
	for {
		raw := m.Mem.Read64(addr)
		count := uint32(raw>>32) & 0xFFFF
		if count == 0 {
			count = 0x10000
		}
		entry := ata.PRDEntry{
			Base:  uint32(raw),
			Count: count,
			EOT:   raw&(1<<63) != 0,
		}
		prds = append(prds, entry)
		if entry.EOT || addr > uint64(^uint32(0))-8 {
			break
		}
		addr += 8
	}
	return prds
}

// interceptBIOSStub recognizes CS:IP sitting at a BIOS vector stub and runs
// the host-native handler in place of fetching the stub's placeholder
// IRET, reporting handled=true when it did so (the caller should not also
// fetch-execute this step).
func (m *Machine) interceptBIOSStub() (handled bool, err error) {
	vector, ok := m.biosStubs[m.CPU.Cache(cpu.CS).Base+m.CPU.RIP()]
	if !ok {
		return false, nil
	}
	m.checkVectorTracepoint(vector)
	m.BIOS.Dispatch(vector)
	if err := m.Exec.BIOSReturn(); err != nil {
		return true, err
	}
	m.Bus.Queue.Advance(1)
	return true, nil
}

// checkVectorTracepoint inspects the registers a guest set up for a BIOS
// vector about to be dispatched and trips the debug console's stop-here
// condition when one of the configured Tracepoints matches, the same
// breakpoint-on-condition idea the debug console's "step"/"continue"
// commands build on -- this just adds conditions besides "every
// instruction" and "never". Registers are inspected before Dispatch runs
// since a handler may overwrite AX/CX/DX/etc. with its result.
func (m *Machine) checkVectorTracepoint(vector uint8) {
	switch vector {
	case 0x10:
		m.checkInt10Tracepoint()
	case 0x13:
		m.checkInt13Tracepoint()
	case 0x16:
		m.checkInt16Tracepoint()
	}
}

func (m *Machine) checkInt10Tracepoint() {
	ah := m.CPU.GPR8High(cpu.RAX)
	al := m.CPU.GPR8Low(cpu.RAX)
	switch {
	case m.trace.StopOnSetVideoMode && ah == 0x00:
		m.trip("INT 10h AH=00 set video mode")
	case m.trace.StopOnVBESetMode && ah == 0x4F && al == 0x02:
		m.trip("INT 10h AX=4F02 VBE set mode")
	case m.trace.StopOnInt10WriteString && ah == 0x13:
		m.trip("INT 10h AH=13 write string")
	}
}

// checkInt13Tracepoint matches a configured LBA against a legacy AH=02 CHS
// read (translated with the same fixed 16-head/63-sector-per-track geometry
// bios.Services uses) or an extended AH=42 read's Disk Address Packet.
func (m *Machine) checkInt13Tracepoint() {
	if len(m.trace.StopOnInt13ReadLBA) == 0 {
		return
	}
	var lba uint64
	switch m.CPU.GPR8High(cpu.RAX) {
	case 0x02:
		lba = m.chsTracepointLBA()
	case 0x42:
		lba = m.extendedReadTracepointLBA()
	default:
		return
	}
	for _, want := range m.trace.StopOnInt13ReadLBA {
		if want == lba {
			m.trip(fmt.Sprintf("INT 13h read LBA %d", lba))
			return
		}
	}
}

func (m *Machine) chsTracepointLBA() uint64 {
	const heads, sectorsPerTrack = 16, 63
	cl := m.CPU.GPR8Low(cpu.RCX)
	cyl := uint16(m.CPU.GPR8High(cpu.RCX)) | uint16(cl&0xC0)<<2
	sector := cl & 0x3F
	head := m.CPU.GPR8High(cpu.RDX)
	return (uint64(cyl)*heads+uint64(head))*sectorsPerTrack + uint64(sector-1)
}

func (m *Machine) extendedReadTracepointLBA() uint64 {
	base := uint64(m.CPU.Selector(cpu.DS))<<4 + uint64(uint16(m.CPU.GPR(cpu.RSI)))
	return m.Mem.Read64(base + 8)
}

func (m *Machine) checkInt16Tracepoint() {
	if !m.trace.StopOnInt16Wait || m.BIOS.Keys == nil {
		return
	}
	ah := m.CPU.GPR8High(cpu.RAX)
	if ah != 0x00 && ah != 0x10 {
		return
	}
	if _, _, ok := m.BIOS.Keys.PeekKey(); !ok {
		m.trip("INT 16h AH=00/10 blocking read with empty key queue")
	}
}

// trip records that a tracepoint fired; runLoop checks this after every
// Step and halts the background fetch loop the same way Stop does.
func (m *Machine) trip(reason string) {
	m.tripped = true
	m.tripReason = reason
}

// Start runs the fetch loop in the background until Stop is called or
// Step returns an unrecoverable error.
func (m *Machine) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.done = make(chan struct{})
	m.mu.Unlock()

	m.wg.Add(1)
	go m.runLoop()
}

func (m *Machine) runLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			m.logger.Info("machine stopped")
			return
		default:
		}
		if err := m.Step(); err != nil {
			m.logger.Error("fetch loop halted on error", "error", err)
			return
		}
		if m.tripped {
			m.tripped = false
			m.logger.Info("machine stopped at tracepoint", "reason", m.tripReason)
			m.mu.Lock()
			m.running = false
			m.mu.Unlock()
			return
		}
	}
}

// Stop halts the background fetch loop, waiting up to one second for it
// to exit.
func (m *Machine) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	close(m.done)
	stopped := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		m.logger.Warn("timed out waiting for machine to stop")
	}
}

// LoadBootSector copies data into physical memory at addr, the way a
// BIOS loads a boot sector or an El Torito boot image before transferring
// control to it.
func (m *Machine) LoadBootSector(addr uint64, data []byte) {
	m.Mem.CopyFrom(addr, data)
}

// Boot reads dev's first sector to the conventional 0000:7C00 boot-sector
// address and points CS:IP at it, completing the lifecycle a real BIOS's
// bootstrap loader (INT 19h) performs after POST, per spec.md 4's reset ->
// boot-sector-load -> transfer-control sequence.
func (m *Machine) Boot(dev ata.BlockDevice) error {
	buf := make([]byte, dev.SectorSize())
	if err := dev.ReadSector(0, buf); err != nil {
		return fmt.Errorf("machine: reading boot sector: %w", err)
	}
	m.LoadBootSector(0x7C00, buf)
	m.CPU.SetCache(cpu.CS, cpu.SegmentCache{
		Selector: 0, Base: 0, Limit: 0xFFFF, Present: true, Executable: true, S: true,
	})
	m.CPU.SetRIP(0x7C00)
	return nil
}
