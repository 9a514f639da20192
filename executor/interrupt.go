package executor

import (
	"github.com/rcornwell/pcemu/cpu"
	"github.com/rcornwell/pcemu/fault"
	"github.com/rcornwell/pcemu/segment"
)

// Deliver performs the interrupt/exception-delivery sequence of spec.md
// 4.F: push the return context, load CS:RIP from the vector table, and
// clear IF/TF, escalating to #DF/triple-fault per the teacher's nested-
// fault bookkeeping pattern (internal/cpu's rupt-depth field, generalized
// here as CPU.DeliveryDepth).
func (e *Executor) Deliver(f fault.Fault) error {
	if e.CPU.DeliveryDepth() >= 2 {
		// A fault raised while delivering a double fault is a triple
		// fault: the architectural response is a CPU reset.
		*e.CPU = *cpu.New()
		return nil
	}

	depth := e.CPU.DeliveryDepth()
	if depth == 1 {
		f = fault.New(fault.DF)
	}
	e.CPU.EnterDelivery()
	defer e.CPU.ExitDelivery()

	var err error
	if e.CPU.Mode() == cpu.ModeReal {
		err = e.deliverReal(f)
	} else {
		err = e.deliverProtected(f)
	}
	if err != nil {
		// A fault while building the new frame recurses into Deliver at
		// one deeper nesting level.
		if inner, ok := err.(fault.Fault); ok {
			return e.Deliver(inner)
		}
		return err
	}
	return nil
}

func (e *Executor) deliverReal(f fault.Fault) error {
	ivtEntry, err := e.readLinear(0, uint64(f.Vector)*4, 32, false)
	if err != nil {
		return err
	}
	newIP := uint16(ivtEntry)
	newCS := uint16(ivtEntry >> 16)

	if err := e.push(16, e.CPU.Flags()&0xFFFF); err != nil {
		return err
	}
	if err := e.push(16, uint64(e.CPU.Selector(cpu.CS))); err != nil {
		return err
	}
	if err := e.push(16, e.CPU.RIP()&0xFFFF); err != nil {
		return err
	}

	e.CPU.SetFlag(cpu.FlagIF, false)
	e.CPU.SetFlag(cpu.FlagTF, false)
	e.CPU.SetCache(cpu.CS, cpu.SegmentCache{
		Selector: newCS, Base: uint64(newCS) << 4, Limit: 0xFFFF,
		Present: true, Executable: true, S: true,
	})
	e.CPU.SetRIP(uint64(newIP))
	return nil
}

// deliverProtected reads an IDT gate (spec.md 4.C/4.F system-descriptor
// format). A task gate (type 0x5) redirects delivery into a task switch
// instead of a normal push-and-jump; of the remaining gate types, only an
// interrupt gate (0x6/0xE) clears IF -- a trap gate (0x7/0xF) leaves it as
// the interrupted task left it. A destination code segment more privileged
// than the interrupted one switches to that privilege level's stack, per
// the TSS's ESPn/SSn fields.
func (e *Executor) deliverProtected(f fault.Fault) error {
	idtr := e.CPU.IDTR()
	index := uint64(f.Vector) * 8
	if index+7 > uint64(idtr.Limit) {
		return fault.NewWithCode(fault.GP, uint32(f.Vector)*8+2)
	}
	raw := e.Mem.Read64(idtr.Base + index)

	offsetLow := raw & 0xFFFF
	selector := uint16((raw >> 16) & 0xFFFF)
	gateType := uint8((raw >> 40) & 0xF)
	present := (raw>>47)&1 != 0
	offsetHigh := (raw >> 48) & 0xFFFF
	offset := offsetLow | (offsetHigh << 16)

	if !present {
		return fault.NewWithCode(fault.NP, uint32(f.Vector)*8+2)
	}

	if gateType == 0x5 {
		if err := e.taskSwitch(selector, true, false); err != nil {
			return err
		}
		if f.HasError {
			return e.push(pushPopWidth(e.CPU), uint64(f.ErrorCode))
		}
		return nil
	}

	width := 32
	if e.CPU.Mode() != cpu.ModeLong64 {
		if gateType&0x8 == 0 {
			width = 16 // legacy 16-bit gate
		}
	}
	clearIF := gateType == 0x6 || gateType == 0xE

	d, ok := e.Seg.ReadDescriptor(selector)
	if !ok || !d.Present {
		return fault.NewWithCode(fault.NP, uint32(selector))
	}
	conforming := d.Type&0x4 != 0
	cpl := e.CPU.CPL()

	oldSS := e.CPU.Selector(cpu.SS)
	oldSP := e.CPU.GPR(cpu.RSP)
	oldCS := e.CPU.Selector(cpu.CS)
	oldIP := e.CPU.RIP()
	oldFlags := e.CPU.Flags()

	if !conforming && d.DPL < cpl {
		tr := e.CPU.TR()
		if tr.Limit < tssMinLimit {
			return fault.NewWithCode(fault.TS, uint32(selector))
		}
		newSS := e.Mem.Read16(tr.Base + tssSS0 + 8*uint64(d.DPL))
		newSP := uint64(e.Mem.Read32(tr.Base + tssESP0 + 8*uint64(d.DPL)))
		ssCache, err := e.Seg.LoadSegment(cpu.SS, newSS)
		if err != nil {
			return err
		}
		e.CPU.SetCache(cpu.SS, ssCache)
		e.setSP(newSP)

		if err := e.push(width, uint64(oldSS)); err != nil {
			return err
		}
		if err := e.push(width, oldSP); err != nil {
			return err
		}
	}

	if err := e.push(width, oldFlags); err != nil {
		return err
	}
	if err := e.push(width, uint64(oldCS)); err != nil {
		return err
	}
	if err := e.push(width, oldIP); err != nil {
		return err
	}
	if f.HasError {
		if err := e.push(width, uint64(f.ErrorCode)); err != nil {
			return err
		}
	}

	if clearIF {
		e.CPU.SetFlag(cpu.FlagIF, false)
	}
	e.CPU.SetFlag(cpu.FlagTF, false)
	e.CPU.SetCache(cpu.CS, segment.CacheFromDescriptor(selector, d))
	e.CPU.SetRIP(offset)
	return nil
}

// iret pops a return context and restores CS:RIP/FLAGS, per spec.md 4.F.
// When the running task's NT flag is set, IRET instead performs a task
// switch back to the task named by the current TSS's back-link field,
// abandoning the stack frame entirely rather than popping one.
func (e *Executor) iret(width int) error {
	if e.CPU.Mode() != cpu.ModeReal && e.CPU.FlagSet(cpu.FlagNT) {
		tr := e.CPU.TR()
		if tr.Limit < tssMinLimit {
			return fault.NewWithCode(fault.TS, 0)
		}
		link := e.Mem.Read16(tr.Base + tssLink)
		return e.taskSwitch(link, false, true)
	}

	ip, err := e.pop(width)
	if err != nil {
		return err
	}
	cs, err := e.pop(width)
	if err != nil {
		return err
	}
	flags, err := e.pop(width)
	if err != nil {
		return err
	}

	if e.CPU.Mode() == cpu.ModeReal {
		e.CPU.SetCache(cpu.CS, cpu.SegmentCache{
			Selector: uint16(cs), Base: uint64(uint16(cs)) << 4, Limit: 0xFFFF,
			Present: true, Executable: true, S: true,
		})
		e.CPU.SetRIP(ip)
		preserved := e.CPU.Flags() & 0x2 // reserved bit
		e.CPU.SetFlags((flags &^ 0x2) | preserved)
		return nil
	}

	cache, err := e.Seg.LoadSegment(cpu.CS, uint16(cs))
	if err != nil {
		return err
	}

	outer := uint8(cs)&0x3 > e.CPU.CPL()
	var newSP, newSS uint64
	if outer {
		newSP, err = e.pop(width)
		if err != nil {
			return err
		}
		newSS, err = e.pop(width)
		if err != nil {
			return err
		}
	}

	e.CPU.SetCache(cpu.CS, cache)
	e.CPU.SetRIP(ip)
	preserved := e.CPU.Flags() & 0x2 // reserved bit
	e.CPU.SetFlags((flags &^ 0x2) | preserved)

	if outer {
		ssCache, err := e.Seg.LoadSegment(cpu.SS, uint16(newSS))
		if err == nil {
			e.CPU.SetCache(cpu.SS, ssCache)
		}
		e.setSP(newSP)
	}
	return nil
}

// interruptByVector performs a software INT n (CD ib), per spec.md 4.F.
func (e *Executor) interruptByVector(vector uint8) error {
	return e.Deliver(fault.New(vector))
}

// BIOSReturn pops the return frame a real-mode INT delivery pushed, the
// same way an IRET at the end of a BIOS service routine's stub would --
// used by the machine package to resume the caller after it intercepts
// control at a BIOS vector stub and runs the host-native handler instead
// of real stub code.
func (e *Executor) BIOSReturn() error {
	return e.iret(16)
}
