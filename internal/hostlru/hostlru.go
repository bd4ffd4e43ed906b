// Package hostlru implements the bounded IP→hostname LRU used to carry a
// DNS-learned name onto the flows that follow it. It wraps
// hashicorp/golang-lru, the same LRU the teacher module already carries
// (pulled in indirectly via client-go) for exact bounded-cache semantics.
package hostlru

import (
	"net"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Capacity is the fixed size of the Host LRU (spec.md §3).
const Capacity = 128

// maxNameLen is the longest hostname the LRU will retain; longer names are
// truncated, per spec.md §4.1.
const maxNameLen = 255

// LRU is a bounded map from IP address to the last-observed hostname for
// that address, with strict least-recently-used eviction.
type LRU struct {
	c *lru.Cache[string, string]
}

// New returns an empty Host LRU at the fixed capacity.
func New() *LRU {
	c, err := lru.New[string, string](Capacity)
	if err != nil {
		// Capacity is a positive compile-time constant; New only fails for
		// size <= 0.
		panic(err)
	}
	return &LRU{c: c}
}

// Add inserts or overwrites the hostname for ip, promoting it to
// most-recently-used. Evicts the least-recently-used entry first if the
// LRU is already at capacity and ip is not already present.
func (l *LRU) Add(ip net.IP, name string) {
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	l.c.Add(ip.String(), name)
}

// Find returns the hostname last recorded for ip, promoting the entry to
// most-recently-used on a hit.
func (l *LRU) Find(ip net.IP) (string, bool) {
	return l.c.Get(ip.String())
}

// Size returns the number of entries currently held.
func (l *LRU) Size() int {
	return l.c.Len()
}

// Destroy releases all entries. The LRU must not be used afterward.
func (l *LRU) Destroy() {
	l.c.Purge()
}
