// Package fault defines the typed architectural-fault value that flows
// from component code (segmentation, paging, the executor) up to the
// interrupt-delivery layer, per spec.md 7: faults are never panics; they
// travel as typed Fault values (which satisfy error) that the caller
// inspects and routes to §4.J delivery.
package fault

import "fmt"

// Vector numbers for the faults this emulator raises.
const (
	DE uint8 = 0  // divide error
	DB uint8 = 1  // debug
	BP uint8 = 3  // breakpoint
	OF uint8 = 4  // overflow (INTO)
	BR uint8 = 5  // bound range exceeded
	UD uint8 = 6  // invalid opcode
	NM uint8 = 7  // device not available
	DF uint8 = 8  // double fault
	TS uint8 = 10 // invalid TSS
	NP uint8 = 11 // segment not present
	SS uint8 = 12 // stack fault
	GP uint8 = 13 // general protection
	PF uint8 = 14 // page fault
	MF uint8 = 16 // x87 FP error (stubbed)
	AC uint8 = 17 // alignment check
	MC uint8 = 18 // machine check
	XM uint8 = 19 // SIMD FP error (stubbed)
)

// hasErrorCode is the set of vectors whose IDT/stack frame carries an error
// code, per spec.md 4.F.
var hasErrorCode = map[uint8]bool{
	DF: true, TS: true, NP: true, SS: true, GP: true, PF: true,
}

// HasErrorCode reports whether vector v pushes an error code on delivery.
func HasErrorCode(v uint8) bool { return hasErrorCode[v] }

// Fault is the typed value architectural-fault conditions are returned as.
type Fault struct {
	Vector    uint8
	HasError  bool
	ErrorCode uint32
	CR2       uint64 // valid only for Vector == PF
	HasCR2    bool
}

func (f Fault) Error() string {
	if f.HasError {
		return fmt.Sprintf("fault vector %d error code %#x", f.Vector, f.ErrorCode)
	}
	return fmt.Sprintf("fault vector %d", f.Vector)
}

// New builds a Fault with no error code.
func New(vector uint8) Fault {
	return Fault{Vector: vector}
}

// NewWithCode builds a Fault carrying an error code (selector index or
// #PF-style code word).
func NewWithCode(vector uint8, code uint32) Fault {
	return Fault{Vector: vector, HasError: true, ErrorCode: code}
}

// NewPageFault builds a #PF carrying the faulting linear address in CR2, as
// spec.md 4.D requires.
func NewPageFault(code uint32, linear uint64) Fault {
	return Fault{Vector: PF, HasError: true, ErrorCode: code, CR2: linear, HasCR2: true}
}

// PageFaultCode bit layout, spec.md 4.D: {present, write, user, reserved,
// instruction-fetch}.
const (
	PFPresent = 1 << 0
	PFWrite   = 1 << 1
	PFUser    = 1 << 2
	PFReserved = 1 << 3
	PFFetch   = 1 << 4
)
