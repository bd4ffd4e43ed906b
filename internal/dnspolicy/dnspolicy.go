// Package dnspolicy implements the DNS Policy (spec.md §4.4): on
// connection open it decides whether a flow is DNS, redirects internal
// DNS to the configured upstream via DNAT, and blocks non-UDP/non-53
// queries to known resolvers to defeat DoH/DoT.
package dnspolicy

import (
	"encoding/binary"
	"net"

	"github.com/pcapdroid/corecap/internal/dnsservers"
	"github.com/pcapdroid/corecap/internal/ipproto"
)

// Decision is the outcome of evaluating the policy on a new connection.
type Decision int

const (
	Allow Decision = iota
	Deny
)

// Policy holds the mutable state the DNS Policy needs across evaluations:
// the currently configured upstream DNS server and the known-resolver set.
type Policy struct {
	VpnDNSv4  net.IP
	VpnDNSv6  net.IP
	DNSServer net.IP // upstream to DNAT internal DNS toward

	known *dnsservers.Set

	DNSRequests int // spec.md §3 Capture Stats: dns_requests
}

// New builds a Policy for the given VPN DNS endpoints and initial
// upstream, with the known-DNS-server set seeded with the fixed default
// resolver list only; the configured upstream is not added to it.
func New(vpnDNSv4, vpnDNSv6, dnsServer net.IP) *Policy {
	return &Policy{
		VpnDNSv4:  vpnDNSv4,
		VpnDNSv6:  vpnDNSv6,
		DNSServer: dnsServer,
		known:     dnsservers.New(),
	}
}

// Stack is the narrow slice of stackapi.Stack the policy needs to install
// a fresh DNAT mapping when the upstream DNS server changes.
type Stack interface {
	SetDNAT(ip net.IP, port uint16, ipVer int) error
}

// SetUpstream publishes a newly staged upstream DNS server (spec.md §4.4
// step 1: "If the Control Surface has staged a new upstream DNS server
// since the last call, publish it").
func (p *Policy) SetUpstream(st Stack, newServer net.IP) error {
	p.DNSServer = newServer
	return st.SetDNAT(newServer, 53, 4)
}

// Evaluate runs the DNS Policy against a new connection's 5-tuple and,
// when available, the L7 payload of the triggering packet. dnat is true
// when the caller should mark the connection for DNAT toward
// p.DNSServer.
func (p *Policy) Evaluate(proto uint8, dst net.IP, dstPort uint16, payload []byte) (decision Decision, dnat bool) {
	isInternal := dst4Equal(dst, p.VpnDNSv4)
	isDNSServer := isInternal ||
		(p.VpnDNSv6 != nil && dst.Equal(p.VpnDNSv6)) ||
		p.known.Contains(dst)

	if !isDNSServer {
		return Allow, false
	}

	if proto == ipproto.UDP && dstPort == 53 && isWellFormedQuery(payload) {
		p.DNSRequests++
		return Allow, isInternal
	}

	return Deny, false
}

func dst4Equal(dst, vpnDNSv4 net.IP) bool {
	if vpnDNSv4 == nil {
		return false
	}
	v4 := dst.To4()
	return v4 != nil && v4.Equal(vpnDNSv4.To4())
}

// isWellFormedQuery checks the fixed 12-byte DNS header: long enough, and
// the QR bit (top bit of byte 2, i.e. bits 0x8000 of the 16-bit flags
// word) clear, meaning this is a query and not a response (spec.md §4.4
// step 5).
func isWellFormedQuery(payload []byte) bool {
	if len(payload) < 12 {
		return false
	}
	flags := binary.BigEndian.Uint16(payload[2:4])
	return flags&0x8000 == 0
}

// IsIgnored implements the independently-defined "ignored connection"
// rule (spec.md §4.4): internal diagnostics to the VPN's DNS endpoint on
// a non-53 port. Ignored connections are withheld from the registry but
// still flow through the stack for accounting.
func (p *Policy) IsIgnored(dst net.IP, dstPort uint16) bool {
	return dst4Equal(dst, p.VpnDNSv4) && dstPort != 53
}
