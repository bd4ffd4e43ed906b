// Package stats implements the Capture Stats aggregate (spec.md §3, §4.7
// housekeeping branch 1): running totals plus a dirty bit and the last
// update timestamp used to rate-limit emission to the host.
package stats

// UpdateFrequencyMS is the minimum interval between capture-stats
// emissions (spec.md §4.7, CAPTURE_STATS_UPDATE_FREQUENCY_MS).
const UpdateFrequencyMS = 300

// Capture holds the aggregate totals plus the housekeeping bookkeeping.
type Capture struct {
	SentPkts, RcvdPkts   int
	SentBytes, RcvdBytes int64
	DroppedConnections   int
	DNSRequests          int

	dirty         bool
	lastUpdateMS  int64
}

// AccountPacket folds one packet's counters into the aggregate and marks
// the stats dirty.
func (c *Capture) AccountPacket(outbound bool, size int) {
	if outbound {
		c.SentPkts++
		c.SentBytes += int64(size)
	} else {
		c.RcvdPkts++
		c.RcvdBytes += int64(size)
	}
	c.dirty = true
}

// DropConnection increments the dropped-connection counter and marks dirty.
func (c *Capture) DropConnection() {
	c.DroppedConnections++
	c.dirty = true
}

// SetDNSRequests syncs the DNS request counter from the DNS Policy and
// marks dirty if it changed.
func (c *Capture) SetDNSRequests(n int) {
	if n != c.DNSRequests {
		c.DNSRequests = n
		c.dirty = true
	}
}

// ShouldEmit implements the evidently-intended grouping of spec.md §4.7's
// housekeeping branch 1 predicate: "(dirty AND elapsed>=300ms) OR
// dump_now" — the Open Question in spec.md §9 resolved toward the
// parenthesization that actually rate-limits routine emissions while
// still honoring an explicit forced dump.
func (c *Capture) ShouldEmit(nowMS int64, dumpNow bool) bool {
	return (c.dirty && nowMS-c.lastUpdateMS >= UpdateFrequencyMS) || dumpNow
}

// MarkEmitted clears the dirty bit and records the emission time.
func (c *Capture) MarkEmitted(nowMS int64) {
	c.dirty = false
	c.lastUpdateMS = nowMS
}

// Dirty reports the current dirty bit, for tests and diagnostics.
func (c *Capture) Dirty() bool {
	return c.dirty
}
