// This is free and unencumbered software released into the public domain.
// See the LICENSE file for additional details.

// Package clock implements the CLOCK command's wall-clock offset: the
// host tells the firmware what time it is once, and from then on the
// firmware can report a wall-clock reading derived from its own
// monotonic microsecond uptime counter plus that remembered offset.
package clock

import "sync"

// Clock tracks the offset between the firmware's monotonic uptime
// counter and the host's wall clock. It holds no wall-clock hardware of
// its own; uptimeUsec supplies the monotonic side.
type Clock struct {
	mu         sync.Mutex
	uptimeUsec func() uint64

	offsetUsec int64
	set        bool
}

// New returns a Clock deriving wall-clock readings from uptimeUsec, a
// monotonically increasing microsecond counter since boot.
func New(uptimeUsec func() uint64) *Clock {
	return &Clock{uptimeUsec: uptimeUsec}
}

// Set records that the host's wall clock reads sec seconds + usec
// microseconds right now, unconditionally replacing any previous offset.
func (c *Clock) Set(sec, usec uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setLocked(sec, usec)
}

// SetIfNotSet behaves like Set only if no offset has been recorded yet;
// otherwise it is a no-op, matching the CLOCK command's set-if-not-set
// variant used by a host that does not want to stomp on a clock another
// host already set.
func (c *Clock) SetIfNotSet(sec, usec uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.set {
		return
	}
	c.setLocked(sec, usec)
}

func (c *Clock) setLocked(sec, usec uint32) {
	target := int64(sec)*1_000_000 + int64(usec)
	c.offsetUsec = target - int64(c.uptimeUsec())
	c.set = true
}

// Get returns the current wall-clock reading as seconds + microseconds,
// or (0, 0) if no offset has ever been set — matching the original
// firmware's convention of reporting epoch zero until the host sets the
// clock at least once.
func (c *Clock) Get() (sec, usec uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.set {
		return 0, 0
	}
	both := int64(c.uptimeUsec()) + c.offsetUsec
	if both < 0 {
		both = 0
	}
	return uint32(both / 1_000_000), uint32(both % 1_000_000)
}
