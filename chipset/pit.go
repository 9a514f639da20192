package chipset

/*
 * pcemu - PC chipset: 8254 PIT
 *
 * Copyright 2026, pcemu authors
 */

import "github.com/rcornwell/pcemu/event"

// pitChannelID namespaces this channel's event tag within a shared Queue.
type pitChannelID int

// PITChannel models one of the 8254's three counters. Channel 0 is wired
// to IRQ0 (the system timer tick); channel 2 gates the PC speaker; channel
// 1 (historically DRAM refresh) is modeled for register completeness only.
type PITChannel struct {
	id     pitChannelID
	queue  *event.Queue
	onZero func()

	mode        uint8
	bcd         bool
	accessMode  uint8 // 0=latch,1=LSB,2=MSB,3=LSB then MSB
	latched     bool
	latchValue  uint16
	readHighNext bool

	reload  uint16
	counter uint16
	writeHighNext bool
	gate    bool
	out     bool
}

// NewPITChannel returns a channel whose terminal-count callback onZero
// fires (e.g. to raise IRQ0 or toggle the speaker gate) each time the
// counter reaches zero, scheduled on queue.
func NewPITChannel(id int, queue *event.Queue, onZero func()) *PITChannel {
	return &PITChannel{id: pitChannelID(id), queue: queue, onZero: onZero, gate: true}
}

// WriteControl handles a write to the PIT's control-word port (0x43),
// selecting which channel (bits 6-7) the remaining bits configure.
func (c *PITChannel) WriteControl(v uint8) {
	c.accessMode = (v >> 4) & 0x3
	c.mode = (v >> 1) & 0x7
	c.bcd = v&0x1 != 0
	if c.accessMode == 0 {
		c.latched = true
		c.latchValue = c.counter
		c.readHighNext = false
		return
	}
	c.writeHighNext = false
}

// WriteData handles a write to the channel's data port (0x40/0x41/0x42).
func (c *PITChannel) WriteData(v uint8) {
	switch c.accessMode {
	case 1: // LSB only
		c.reload = (c.reload & 0xFF00) | uint16(v)
		c.arm()
	case 2: // MSB only
		c.reload = (c.reload & 0x00FF) | uint16(v)<<8
		c.arm()
	default: // LSB then MSB
		if !c.writeHighNext {
			c.reload = (c.reload & 0xFF00) | uint16(v)
			c.writeHighNext = true
		} else {
			c.reload = (c.reload & 0x00FF) | uint16(v)<<8
			c.writeHighNext = false
			c.arm()
		}
	}
}

func (c *PITChannel) arm() {
	c.counter = c.reload
	if c.queue != nil {
		c.queue.Cancel(int(c.id))
		ticks := int(c.reload)
		if ticks == 0 {
			ticks = 0x10000
		}
		c.schedule(ticks)
	}
}

func (c *PITChannel) schedule(ticks int) {
	c.queue.Add(int(c.id), func(int) {
		c.out = true
		if c.onZero != nil {
			c.onZero()
		}
		if c.mode == 2 || c.mode == 3 { // rate generator / square wave: auto-reload
			reload := int(c.reload)
			if reload == 0 {
				reload = 0x10000
			}
			c.schedule(reload)
		}
	}, ticks, 0)
}

// ReadData handles a read from the channel's data port, honoring a
// pending latch command.
func (c *PITChannel) ReadData() uint8 {
	var v uint16
	if c.latched {
		v = c.latchValue
	} else {
		v = c.counter
	}
	switch c.accessMode {
	case 1:
		return uint8(v)
	case 2:
		return uint8(v >> 8)
	default:
		if !c.readHighNext {
			c.readHighNext = true
			return uint8(v)
		}
		c.readHighNext = false
		c.latched = false
		return uint8(v >> 8)
	}
}

// SetGate records the channel's GATE input level (port 0x61 bit 0 for
// channel 2). The level is only stored; counting is not started or
// stopped by it.
func (c *PITChannel) SetGate(level bool) {
	c.gate = level
}

// Out reports the channel's current OUT line level (used by the PC
// speaker path for channel 2).
func (c *PITChannel) Out() bool { return c.out }
