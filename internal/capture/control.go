package capture

import (
	"net"
	"sync/atomic"
)

// Control is the cross-thread signalling surface (spec.md §4.8): the only
// cross-goroutine-visible mutable state in the capture engine. It is
// safe to read and write concurrently with the packet loop; the loop
// consults these flags only at its own boundaries (spec.md §5).
type Control struct {
	running             atomic.Bool
	dumpVPNStatsNow     atomic.Bool
	dumpCaptureStatsNow atomic.Bool
	newDNSServer        atomic.Pointer[net.IP]
}

// NewControl returns a Control with running already set to true, ready
// for a loop about to start.
func NewControl() *Control {
	c := &Control{}
	c.running.Store(true)
	return c
}

// Running reports whether the loop should continue.
func (c *Control) Running() bool {
	return c.running.Load()
}

// Stop requests the loop exit at its next boundary (spec.md §4.8;
// bounded by the 500ms select timeout).
func (c *Control) Stop() {
	c.running.Store(false)
}

// RequestCaptureStatsDump forces a capture-stats emission on the next
// housekeeping pass.
func (c *Control) RequestCaptureStatsDump() {
	c.dumpCaptureStatsNow.Store(true)
}

// RequestVPNStatsDump forces a purge/stats cycle on the next housekeeping
// pass.
func (c *Control) RequestVPNStatsDump() {
	c.dumpVPNStatsNow.Store(true)
}

// SetDNSServer stages a new upstream DNS server, consumed on the next
// new-connection DNS-policy evaluation (spec.md §4.4 step 1).
func (c *Control) SetDNSServer(ip net.IP) {
	cp := append(net.IP(nil), ip...)
	c.newDNSServer.Store(&cp)
}

// takeDumpCaptureStatsNow consumes (clears) the capture-stats flag,
// reporting whether it had been set.
func (c *Control) takeDumpCaptureStatsNow() bool {
	return c.dumpCaptureStatsNow.CompareAndSwap(true, false)
}

// takeDumpVPNStatsNow consumes (clears) the VPN-stats flag.
func (c *Control) takeDumpVPNStatsNow() bool {
	return c.dumpVPNStatsNow.CompareAndSwap(true, false)
}

// takeNewDNSServer consumes a staged DNS server change, if any.
func (c *Control) takeNewDNSServer() (net.IP, bool) {
	p := c.newDNSServer.Swap(nil)
	if p == nil {
		return nil, false
	}
	return *p, true
}
