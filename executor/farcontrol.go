package executor

/*
 * pcemu - far control transfer and task switch
 *
 * Copyright 2026, pcemu authors
 */

import (
	"github.com/rcornwell/pcemu/cpu"
	"github.com/rcornwell/pcemu/decoder"
	"github.com/rcornwell/pcemu/fault"
	"github.com/rcornwell/pcemu/segment"
)

// farCall implements CALL ptr16:16/32 (0x9A): a direct far call, which in
// protected mode may land on a code segment, a task gate, or a TSS
// descriptor instead -- the latter two trigger a task switch rather than a
// normal control transfer, per spec.md 4.F.
func (e *Executor) farCall(ins *decoder.Instruction, cur decoder.Cursor) error {
	offset, selector := e.decodeFarPointer(ins, cur)
	ins.IsBranch = true
	return e.farTransfer(ins, selector, offset, true)
}

// farJmp implements JMP ptr16:16/32 (0xEA).
func (e *Executor) farJmp(ins *decoder.Instruction, cur decoder.Cursor) error {
	offset, selector := e.decodeFarPointer(ins, cur)
	ins.IsBranch = true
	return e.farTransfer(ins, selector, offset, false)
}

// decodeFarPointer pulls a ptr16:16 (operand size 16) or ptr16:32 (operand
// size 32) immediate: the offset first, then the destination selector.
func (e *Executor) decodeFarPointer(ins *decoder.Instruction, cur decoder.Cursor) (offset uint64, selector uint16) {
	offWidth := min(ins.OperandSize, 32)
	offset = uint64(e.Dec.DecodeImmediate(cur, ins, offWidth)) & widthMask(offWidth)
	selector = uint16(e.Dec.DecodeImmediate(cur, ins, 16))
	return offset, selector
}

// farTransfer dispatches a far CALL/JMP to either a normal code-segment
// transfer or a task switch, depending on what the destination selector's
// descriptor names. pushWidth is the operand size the pointer was decoded
// at (16 or 32): a far CALL's return frame is pushed at that width, not the
// stack segment's default width.
func (e *Executor) farTransfer(ins *decoder.Instruction, selector uint16, offset uint64, isCall bool) error {
	pushWidth := min(ins.OperandSize, 32)
	ret := e.CPU.RIP() + ins.Length

	if e.CPU.Mode() == cpu.ModeReal {
		return e.farTransferReal(selector, offset, ret, pushWidth, isCall)
	}

	d, ok := e.Seg.ReadDescriptor(selector)
	if !ok {
		return fault.NewWithCode(fault.GP, uint32(selector))
	}

	switch {
	case d.S: // code or data segment descriptor
		if d.Type&0x8 == 0 {
			return fault.NewWithCode(fault.GP, uint32(selector))
		}
		cache, err := e.Seg.LoadSegment(cpu.CS, selector)
		if err != nil {
			return err
		}
		if isCall {
			if err := e.push(pushWidth, uint64(e.CPU.Selector(cpu.CS))); err != nil {
				return err
			}
			if err := e.push(pushWidth, ret); err != nil {
				return err
			}
		}
		e.CPU.SetCache(cpu.CS, cache)
		e.CPU.SetRIP(offset)
		return nil
	case d.Type == 0x5: // task gate: selector field names the TSS
		return e.taskSwitchViaGate(selector, isCall)
	case d.Type == 0x9 || d.Type == 0xB: // 32-bit TSS
		return e.taskSwitch(selector, isCall, false)
	}
	return fault.NewWithCode(fault.GP, uint32(selector))
}

func (e *Executor) farTransferReal(selector uint16, offset, ret uint64, pushWidth int, isCall bool) error {
	if isCall {
		if err := e.push(pushWidth, uint64(e.CPU.Selector(cpu.CS))); err != nil {
			return err
		}
		if err := e.push(pushWidth, ret); err != nil {
			return err
		}
	}
	e.CPU.SetCache(cpu.CS, cpu.SegmentCache{
		Selector: selector, Base: uint64(selector) << 4, Limit: 0xFFFF,
		Present: true, Executable: true, S: true,
	})
	e.CPU.SetRIP(offset)
	return nil
}

// taskGateTarget reads the TSS selector a task-gate descriptor names: bits
// 16-31 of the raw 8-byte descriptor hold it, in the same selector field a
// call/interrupt/trap gate uses for its code selector.
func (e *Executor) taskGateTarget(gateSelector uint16) (uint16, error) {
	addr, err := e.gdtEntryAddr(gateSelector)
	if err != nil {
		return 0, err
	}
	raw := e.Mem.Read64(addr)
	return uint16((raw >> 16) & 0xFFFF), nil
}

func (e *Executor) taskSwitchViaGate(gateSelector uint16, isCall bool) error {
	tssSelector, err := e.taskGateTarget(gateSelector)
	if err != nil {
		return err
	}
	return e.taskSwitch(tssSelector, isCall, false)
}

// gdtEntryAddr returns the physical address of selector's descriptor,
// rejecting LDT-relative selectors: a TSS or task-gate descriptor must live
// in the GDT, per spec.md 4.F.
func (e *Executor) gdtEntryAddr(selector uint16) (uint64, error) {
	if selector&0x4 != 0 {
		return 0, fault.NewWithCode(fault.GP, uint32(selector))
	}
	gdtr := e.CPU.GDTR()
	index := uint64(selector>>3) * 8
	if index+7 > uint64(gdtr.Limit) {
		return 0, fault.NewWithCode(fault.GP, uint32(selector))
	}
	return gdtr.Base + index, nil
}

// setDescriptorBusy toggles bit 41 of a GDT descriptor -- the busy bit of a
// TSS descriptor's 4-bit type field (bits 40-43).
func (e *Executor) setDescriptorBusy(selector uint16, busy bool) error {
	addr, err := e.gdtEntryAddr(selector)
	if err != nil {
		return err
	}
	raw := e.Mem.Read64(addr)
	if busy {
		raw |= 1 << 41
	} else {
		raw &^= 1 << 41
	}
	e.Mem.Write64(addr, raw)
	return nil
}

// tss32 layout, spec.md 4.F: the 32-bit TSS's fixed register-state fields.
const (
	tssLink   = 0x00
	tssESP0   = 0x04
	tssSS0    = 0x08
	tssESP1   = 0x0C
	tssSS1    = 0x10
	tssESP2   = 0x14
	tssSS2    = 0x18
	tssCR3    = 0x1C
	tssEIP    = 0x20
	tssEFLAGS = 0x24
	tssEAX    = 0x28
	tssECX    = 0x2C
	tssEDX    = 0x30
	tssEBX    = 0x34
	tssESP    = 0x38
	tssEBP    = 0x3C
	tssESI    = 0x40
	tssEDI    = 0x44
	tssES     = 0x48
	tssCS     = 0x4C
	tssSS     = 0x50
	tssDS     = 0x54
	tssFS     = 0x58
	tssGS     = 0x5C
	tssLDT    = 0x60
	tssMinLimit = 0x67 // last valid byte offset of the fixed-field area
)

// taskSwitch performs a 32-bit TSS-based task switch, per spec.md 4.F:
// save the outgoing task's register state into its TSS, load the
// incoming task's state from its own TSS, and update TR/the busy bits.
// Re-entering the same TSS (selector == CPU.TR().Selector) preserves every
// register, since the save writes exactly the fields the load then rereads.
func (e *Executor) taskSwitch(selector uint16, isCall bool, viaIRet bool) error {
	d, ok := e.Seg.ReadDescriptor(selector)
	if !ok || !d.Present {
		return fault.NewWithCode(fault.TS, uint32(selector))
	}
	// Only the 32-bit TSS layout (types 0x9/0xB) is supported; a 16-bit TSS
	// (0x1/0x3) uses a different, narrower field layout this emulator does
	// not model, so it is rejected rather than read with the wrong offsets.
	if d.Type != 0x9 && d.Type != 0xB {
		return fault.NewWithCode(fault.TS, uint32(selector))
	}
	if d.Limit < tssMinLimit {
		return fault.NewWithCode(fault.TS, uint32(selector))
	}

	oldTR := e.CPU.TR()
	nextIP := e.CPU.RIP()

	// Save the outgoing task's state into its own TSS. When selector names
	// the same task (task switch to self), this and the load below target
	// the identical memory, round-tripping every register unchanged.
	if oldTR.Limit >= tssMinLimit {
		base := oldTR.Base
		e.Mem.Write32(base+tssEIP, uint32(nextIP))
		e.Mem.Write32(base+tssEFLAGS, uint32(e.CPU.Flags()))
		e.Mem.Write32(base+tssEAX, uint32(e.CPU.GPR(cpu.RAX)))
		e.Mem.Write32(base+tssECX, uint32(e.CPU.GPR(cpu.RCX)))
		e.Mem.Write32(base+tssEDX, uint32(e.CPU.GPR(cpu.RDX)))
		e.Mem.Write32(base+tssEBX, uint32(e.CPU.GPR(cpu.RBX)))
		e.Mem.Write32(base+tssESP, uint32(e.CPU.GPR(cpu.RSP)))
		e.Mem.Write32(base+tssEBP, uint32(e.CPU.GPR(cpu.RBP)))
		e.Mem.Write32(base+tssESI, uint32(e.CPU.GPR(cpu.RSI)))
		e.Mem.Write32(base+tssEDI, uint32(e.CPU.GPR(cpu.RDI)))
		e.Mem.Write16(base+tssES, e.CPU.Selector(cpu.ES))
		e.Mem.Write16(base+tssCS, e.CPU.Selector(cpu.CS))
		e.Mem.Write16(base+tssSS, e.CPU.Selector(cpu.SS))
		e.Mem.Write16(base+tssDS, e.CPU.Selector(cpu.DS))
		e.Mem.Write16(base+tssFS, e.CPU.Selector(cpu.FS))
		e.Mem.Write16(base+tssGS, e.CPU.Selector(cpu.GS))
		e.Mem.Write32(base+tssCR3, uint32(e.CPU.CR3()))

		if isCall {
			e.Mem.Write16(base+tssLink, 0) // overwritten on the new task below
		}
	}

	if isCall {
		if err := e.setDescriptorBusy(selector, true); err != nil {
			return err
		}
	} else if !viaIRet {
		if oldTR.Selector != selector {
			if err := e.setDescriptorBusy(oldTR.Selector, false); err != nil {
				return err
			}
		}
	} else {
		if err := e.setDescriptorBusy(oldTR.Selector, false); err != nil {
			return err
		}
	}

	newBase := d.Base
	if isCall {
		e.Mem.Write16(newBase+tssLink, oldTR.Selector)
	}

	newCR3 := uint64(e.Mem.Read32(newBase + tssCR3))
	newEIP := uint64(e.Mem.Read32(newBase + tssEIP))
	newFlags := uint64(e.Mem.Read32(newBase + tssEFLAGS))
	if isCall {
		newFlags |= cpu.FlagNT
	}

	e.CPU.WriteCR3(newCR3, e.Pg)
	e.CPU.SetGPR32(cpu.RAX, e.Mem.Read32(newBase+tssEAX))
	e.CPU.SetGPR32(cpu.RCX, e.Mem.Read32(newBase+tssECX))
	e.CPU.SetGPR32(cpu.RDX, e.Mem.Read32(newBase+tssEDX))
	e.CPU.SetGPR32(cpu.RBX, e.Mem.Read32(newBase+tssEBX))
	e.CPU.SetGPR32(cpu.RSP, e.Mem.Read32(newBase+tssESP))
	e.CPU.SetGPR32(cpu.RBP, e.Mem.Read32(newBase+tssEBP))
	e.CPU.SetGPR32(cpu.RSI, e.Mem.Read32(newBase+tssESI))
	e.CPU.SetGPR32(cpu.RDI, e.Mem.Read32(newBase+tssEDI))
	e.CPU.SetFlags(newFlags)
	e.CPU.SetRIP(newEIP)

	e.loadTaskSegment(cpu.ES, e.Mem.Read16(newBase+tssES))
	e.loadTaskSegment(cpu.CS, e.Mem.Read16(newBase+tssCS))
	e.loadTaskSegment(cpu.SS, e.Mem.Read16(newBase+tssSS))
	e.loadTaskSegment(cpu.DS, e.Mem.Read16(newBase+tssDS))
	e.loadTaskSegment(cpu.FS, e.Mem.Read16(newBase+tssFS))
	e.loadTaskSegment(cpu.GS, e.Mem.Read16(newBase+tssGS))

	ldtSel := e.Mem.Read16(newBase + tssLDT)
	if ldtSel != 0 {
		if ld, ok := e.Seg.ReadDescriptor(ldtSel); ok {
			e.CPU.SetLDTR(cpu.TableReg{Selector: ldtSel, Base: ld.Base, Limit: ld.Limit})
		}
	} else {
		e.CPU.SetLDTR(cpu.TableReg{})
	}

	e.CPU.SetTR(cpu.TableReg{Selector: selector, Base: newBase, Limit: d.Limit})
	return nil
}

// loadTaskSegment installs a segment cache during a task switch, best-effort:
// an absent or unreadable descriptor leaves the segment unusable (Present
// false) rather than failing the whole switch, since a guest OS that built
// the TSS incorrectly will fault on first use of that segment anyway.
func (e *Executor) loadTaskSegment(seg int, selector uint16) {
	if selector>>3 == 0 {
		e.CPU.SetCache(seg, cpu.SegmentCache{Selector: 0})
		return
	}
	d, ok := e.Seg.ReadDescriptor(selector)
	if !ok {
		e.CPU.SetCache(seg, cpu.SegmentCache{Selector: selector})
		return
	}
	e.CPU.SetCache(seg, segment.CacheFromDescriptor(selector, d))
}

// retFar implements RETF/RETF iw (0xCB/0xCA): pop IP then CS, reloading the
// code-segment cache, then discard imm extra bytes of argument space.
func (e *Executor) retFar(width int, imm uint16) error {
	ip, err := e.pop(width)
	if err != nil {
		return err
	}
	cs, err := e.pop(width)
	if err != nil {
		return err
	}
	if e.CPU.Mode() == cpu.ModeReal {
		e.CPU.SetCache(cpu.CS, cpu.SegmentCache{
			Selector: uint16(cs), Base: uint64(uint16(cs)) << 4, Limit: 0xFFFF,
			Present: true, Executable: true, S: true,
		})
	} else {
		cache, err := e.Seg.LoadSegment(cpu.CS, uint16(cs))
		if err != nil {
			return err
		}
		e.CPU.SetCache(cpu.CS, cache)
	}
	e.CPU.SetRIP(ip)
	if imm != 0 {
		e.setSP(e.CPU.GPR(cpu.RSP) + uint64(imm))
	}
	return nil
}
