package chipset

/*
 * pcemu - PC chipset: CMOS/RTC
 *
 * Copyright 2026, pcemu authors
 */

// CMOS models the MC146818 RTC/CMOS RAM pair addressed via ports 0x70
// (index, NMI-mask in bit 7) and 0x71 (data), per spec.md 4.G.
type CMOS struct {
	ram   [128]uint8
	index uint8

	// Clock fields mirrored into ram[0..9] on read, per register layout:
	// 0 seconds, 2 minutes, 4 hours, 6 weekday, 7 day, 8 month, 9 year.
	Seconds, Minutes, Hours   uint8
	Day, Month, Year, Weekday uint8
}

// NewCMOS returns a CMOS with register B's default (24-hour, BCD mode)
// and register D's valid-RAM bit set.
func NewCMOS() *CMOS {
	c := &CMOS{}
	c.ram[0x0B] = 0x02 // 24-hour, BCD (binary-mode bit 2 clear)
	c.ram[0x0D] = 0x80 // VRT: CMOS battery good
	return c
}

// WriteIndex handles a write to port 0x70; bit 7 is the NMI-mask and is
// discarded, keeping only the 7-bit register index (NMI masking is owned
// by the interrupt arbiter in this implementation).
func (c *CMOS) WriteIndex(v uint8) {
	c.index = v & 0x7F
}

func bcd(v uint8) uint8 { return ((v / 10) << 4) | (v % 10) }

func (c *CMOS) syncClock() {
	binary := c.ram[0x0B]&0x4 != 0
	enc := func(v uint8) uint8 {
		if binary {
			return v
		}
		return bcd(v)
	}
	c.ram[0x00] = enc(c.Seconds)
	c.ram[0x02] = enc(c.Minutes)
	c.ram[0x04] = enc(c.Hours)
	c.ram[0x06] = c.Weekday
	c.ram[0x07] = enc(c.Day)
	c.ram[0x08] = enc(c.Month)
	c.ram[0x09] = enc(c.Year)
}

// ReadData handles a read from port 0x71, refreshing the clock registers
// from the fields the machine's wall-clock source sets.
func (c *CMOS) ReadData() uint8 {
	if c.index <= 0x09 {
		c.syncClock()
	}
	return c.ram[c.index]
}

// WriteData handles a write to port 0x71.
func (c *CMOS) WriteData(v uint8) {
	c.ram[c.index] = v
}
