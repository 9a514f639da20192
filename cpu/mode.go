package cpu

// CR0 bits this emulator models.
const (
	CR0PE uint64 = 1 << 0 // protection enable
	CR0MP uint64 = 1 << 1
	CR0EM uint64 = 1 << 2
	CR0TS uint64 = 1 << 3
	CR0NE uint64 = 1 << 5
	CR0WP uint64 = 1 << 16
	CR0AM uint64 = 1 << 18
	CR0NW uint64 = 1 << 29
	CR0CD uint64 = 1 << 30
	CR0PG uint64 = 1 << 31
)

// CR4 bits this emulator models.
const (
	CR4VME uint64 = 1 << 0
	CR4PSE uint64 = 1 << 4
	CR4PAE uint64 = 1 << 5
	CR4PGE uint64 = 1 << 7
)

// EFER bits.
const (
	EFERSCE uint64 = 1 << 0
	EFERLME uint64 = 1 << 8 // long mode enable
	EFERLMA uint64 = 1 << 10 // long mode active (computed, not guest-writable)
	EFERNXE uint64 = 1 << 11
)

// TranslatorInvalidator is implemented by the paging package; cpu calls back
// into it so that CR0.PG toggles and CR3 writes invalidate the TLB without
// cpu importing paging (which would create the cyclic reference spec.md 9
// calls out -- the Machine arena wires this callback at construction).
type TranslatorInvalidator interface {
	InvalidateAll()
	InvalidateNonGlobal()
}

// WriteCR0 implements the post-condition spec.md 4.A requires: re-evaluate
// IA-32e activation; if PE just cleared, preserve hidden descriptor caches
// (enabling unreal mode) while forcing CS back to 16-bit real-mode
// defaults (Open Question a); if PG toggled, invalidate the translator.
func (s *State) WriteCR0(v uint64, tlb TranslatorInvalidator) {
	old := s.cr0
	s.cr0 = v

	peCleared := old&CR0PE != 0 && v&CR0PE == 0
	pgToggled := (old & CR0PG) != (v & CR0PG)

	if peCleared {
		c := s.cache[CS]
		c.DefaultBig = false
		c.Long = false
		c.Type = 0xB // execute/read, accessed
		c.DPL = 0
		c.Present = true
		s.cache[CS] = c
	}

	s.recomputeLMA()

	if pgToggled && tlb != nil {
		tlb.InvalidateAll()
	}
}

// WriteCR3 stores the new page-table base and invalidates all non-global
// TLB entries, per spec.md 4.A.
func (s *State) WriteCR3(v uint64, tlb TranslatorInvalidator) {
	s.cr3 = v
	if tlb != nil {
		tlb.InvalidateNonGlobal()
	}
}

// WriteCR4 stores CR4 and re-evaluates IA-32e activation (PAE gates it).
func (s *State) WriteCR4(v uint64) {
	s.cr4 = v
	s.recomputeLMA()
}

// WriteEFER stores the guest-writable EFER bits (LMA is computed) and
// re-evaluates IA-32e activation.
func (s *State) WriteEFER(v uint64) {
	s.efer = (s.efer & EFERLMA) | (v &^ EFERLMA)
	s.recomputeLMA()
}

// recomputeLMA implements spec.md 4.A's invariant:
// EFER.LMA == CR0.PE && CR0.PG && CR4.PAE && EFER.LME.
// When LMA flips on, CS's long/compat sub-mode is determined by the
// *current* CS cached descriptor's L bit, per spec.md 4.F.
func (s *State) recomputeLMA() {
	active := s.cr0&CR0PE != 0 && s.cr0&CR0PG != 0 && s.cr4&CR4PAE != 0 && s.efer&EFERLME != 0
	if active {
		s.efer |= EFERLMA
	} else {
		s.efer &^= EFERLMA
		// Outside IA-32e, CS.L is architecturally meaningless; clear it so
		// Mode() below falls through to the PE-based 16/32-bit decision.
		c := s.cache[CS]
		c.Long = false
		s.cache[CS] = c
	}
}

// IA32EActive reports whether EFER.LMA is set.
func (s *State) IA32EActive() bool { return s.efer&EFERLMA != 0 }

// Mode returns the CPU's current execution mode, derived from CR0.PE,
// EFLAGS.VM, EFER.LMA and CS.L/D exactly as spec.md 3 describes.
func (s *State) Mode() Mode {
	switch {
	case s.IA32EActive() && s.cache[CS].Long:
		return ModeLong64
	case s.IA32EActive():
		return ModeCompat
	case s.cr0&CR0PE == 0:
		return ModeReal
	case s.FlagSet(FlagVM):
		return ModeVirtual8086
	case s.cache[CS].DefaultBig:
		return ModeProtected32
	default:
		return ModeProtected16
	}
}

// OperandAddressDefaults returns the default operand-size and address-size
// in bits for the current sub-mode, per the spec.md 4.E table.
func (s *State) OperandAddressDefaults() (opSize, addrSize int) {
	switch s.Mode() {
	case ModeLong64:
		return 32, 64
	case ModeProtected32, ModeVirtual8086:
		return 32, 32
	default: // real mode, 16-bit protected, compat-mode-but-not-64 fallthrough
		if s.Mode() == ModeCompat && s.cache[CS].DefaultBig {
			return 32, 32
		}
		return 16, 16
	}
}
