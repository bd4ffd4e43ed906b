// Package dnsservers implements the Known-DNS-Server Set: a read-only,
// host-routed (/32, /128) lookup table seeded with well-known public
// resolver addresses, used by the DNS Policy to recognize DoH/DoT-capable
// resolvers so non-UDP/53 traffic to them can be blocked (spec.md §4.4).
//
// It is grounded on github.com/gaissmai/bart, a balanced routing table
// library from the retrieval pack: exactly the longest-prefix-match
// structure the spec calls for, used here with /32 and /128 prefixes so
// every lookup is an exact-address match.
package dnsservers

import (
	"net"
	"net/netip"

	"github.com/gaissmai/bart"
)

// defaultSeed is the fixed list of known DNS resolvers from spec.md §3.
var defaultSeed = []string{
	"8.8.8.8",
	"8.8.4.4",
	"1.1.1.1",
	"1.0.0.1",
	"2001:4860:4860::8888",
	"2001:4860:4860::8844",
	"2606:4700:4700::64",
	"2606:4700:4700::6400",
}

// Set is a read-only-after-startup set of known DNS server addresses.
type Set struct {
	t *bart.Table[struct{}]
}

// New builds a Set seeded with the fixed default resolver list plus any
// extra addresses supplied by the caller (e.g. a configured upstream DNS
// server that isn't in the default list).
func New(extra ...net.IP) *Set {
	s := &Set{t: &bart.Table[struct{}]{}}
	for _, a := range defaultSeed {
		s.insert(net.ParseIP(a))
	}
	for _, a := range extra {
		s.insert(a)
	}
	return s
}

func (s *Set) insert(ip net.IP) {
	addr, ok := toAddr(ip)
	if !ok {
		return
	}
	bits := 32
	if addr.Is6() {
		bits = 128
	}
	pfx := netip.PrefixFrom(addr, bits)
	s.t.Update(pfx, func(struct{}, bool) struct{} { return struct{}{} })
}

// Contains reports whether ip is a known DNS server.
func (s *Set) Contains(ip net.IP) bool {
	addr, ok := toAddr(ip)
	if !ok {
		return false
	}
	return s.t.Contains(addr)
}

func toAddr(ip net.IP) (netip.Addr, bool) {
	if ip == nil {
		return netip.Addr{}, false
	}
	if v4 := ip.To4(); v4 != nil {
		a, ok := netip.AddrFromSlice(v4)
		return a, ok
	}
	v6 := ip.To16()
	if v6 == nil {
		return netip.Addr{}, false
	}
	a, ok := netip.AddrFromSlice(v6)
	return a, ok
}
