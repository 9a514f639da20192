// Package event implements the delta-time callback scheduler used by the
// PIT, CMOS/RTC periodic interrupt, and ATA command-completion timing, per
// spec.md 4.G/4.H. Adapted from the teacher's emu/event package: the same
// linked-list delta-time design, but rehomed from a package-level global
// list into a Queue value owned by the machine arena (spec.md 9 explicitly
// calls for no package-level globals).
package event

/*
 * pcemu - Event scheduler
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

// Callback runs when its event's delta time reaches zero.
type Callback func(arg int)

type entry struct {
	time int
	id   int // caller-assigned source id, for CancelAll
	cb   Callback
	arg  int
	prev *entry
	next *entry
}

// Queue is a delta-time ordered callback list: each entry's time is
// relative to the entry before it, so Advance need only decrement the
// head.
type Queue struct {
	head *entry
	tail *entry
}

// NewQueue returns an empty event queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Add schedules cb to run after the given number of cycles, tagged with
// id (a device/timer identifier) for later cancellation. time==0 runs the
// callback immediately, matching the teacher's synchronous-event
// shortcut.
func (q *Queue) Add(id int, cb Callback, ticks int, arg int) {
	if ticks <= 0 {
		cb(arg)
		return
	}

	ev := &entry{time: ticks, id: id, cb: cb, arg: arg}

	cur := q.head
	for cur != nil {
		if ev.time <= cur.time {
			cur.time -= ev.time
			ev.prev = cur.prev
			ev.next = cur
			cur.prev = ev
			if ev.prev != nil {
				ev.prev.next = ev
			} else {
				q.head = ev
			}
			return
		}
		ev.time -= cur.time
		cur = cur.next
	}

	ev.prev = q.tail
	if q.tail != nil {
		q.tail.next = ev
	} else {
		q.head = ev
	}
	q.tail = ev
}

// Cancel removes every still-pending event tagged with id.
func (q *Queue) Cancel(id int) {
	cur := q.head
	for cur != nil {
		next := cur.next
		if cur.id == id {
			if cur.next != nil {
				cur.next.time += cur.time
				cur.next.prev = cur.prev
			} else {
				q.tail = cur.prev
			}
			if cur.prev != nil {
				cur.prev.next = cur.next
			} else {
				q.head = cur.next
			}
		}
		cur = next
	}
}

// Advance consumes ticks cycles of wall-clock-equivalent time, firing
// every callback whose delta time reaches zero, in order.
func (q *Queue) Advance(ticks int) {
	if q.head == nil {
		return
	}
	q.head.time -= ticks
	for q.head != nil && q.head.time <= 0 {
		ev := q.head
		q.head = ev.next
		if q.head != nil {
			q.head.prev = nil
			q.head.time += ev.time // carry any overshoot into the next delta
		} else {
			q.tail = nil
		}
		ev.cb(ev.arg)
	}
}

// Pending reports whether any event is scheduled.
func (q *Queue) Pending() bool { return q.head != nil }
