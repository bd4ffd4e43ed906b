// Package dpiapi declares the interface to the deep-packet-inspection
// library. Classification itself is out of scope (spec.md §1): the DPI
// library is a black box taking packets and emitting a protocol
// classification plus parsed fields.
package dpiapi

import (
	"fmt"
	"time"
)

// Proto is a DPI-assigned protocol id. Zero is reserved for UNKNOWN.
type Proto int

const Unknown Proto = 0

// Well-known master protocols the DNS/DPI drivers branch on.
const (
	ProtoDNS  Proto = 1
	ProtoHTTP Proto = 2
	ProtoTLS  Proto = 3
)

// String renders the handful of master protocols this module branches on
// by name; anything else (an app-level id from the real DPI library) is
// rendered numerically, since only the library itself knows its full name
// table (ProtoName).
func (p Proto) String() string {
	switch p {
	case Unknown:
		return "UNKNOWN"
	case ProtoDNS:
		return "DNS"
	case ProtoHTTP:
		return "HTTP"
	case ProtoTLS:
		return "TLS"
	default:
		return fmt.Sprintf("proto-%d", int(p))
	}
}

// Classification is the {app, master} protocol pair DPI produces for a
// flow (spec.md §3, Connection Record `l7_proto`).
type Classification struct {
	App    Proto
	Master Proto
}

// DNSFields are the DNS-specific fields the library can extract once it
// has parsed a response on a DNS-classified flow.
type DNSFields struct {
	HostServerName string
	HasA           bool
	AddrA          [4]byte
	HasAAAA        bool
	AddrAAAA       [16]byte
}

// HTTPFields are the HTTP-specific fields DPI extracts.
type HTTPFields struct {
	HostServerName string
	URL            string
}

// TLSFields are the TLS-specific fields DPI extracts (the ClientHello SNI).
type TLSFields struct {
	ClientRequestedServerName string
}

// Flow is an opaque per-connection DPI handle.
type Flow interface{}

// Module is the DPI library's black-box entry point.
type Module interface {
	// NewFlow allocates a DPI flow handle for one connection.
	NewFlow() (Flow, error)

	// ProcessPacket feeds one packet into the classifier. srcID/dstID are
	// the per-direction flow ids the library needs for correct per-
	// direction state (spec.md §4.3); they are swapped depending on
	// packet direction by the caller.
	ProcessPacket(flow Flow, payload []byte, ts time.Time, srcID, dstID int) Classification

	// GiveUp forces a best-effort classification when the packet budget
	// is exhausted without a confident result.
	GiveUp(flow Flow) Proto

	// ExtraDissectionPossible reports whether the library could still
	// extract more from this flow given more packets.
	ExtraDissectionPossible(flow Flow) bool

	// DNSFields / HTTPFields / TLSFields return the parsed fields for the
	// given classification master protocol, if any were extracted.
	DNSFields(flow Flow) (DNSFields, bool)
	HTTPFields(flow Flow) (HTTPFields, bool)
	TLSFields(flow Flow) (TLSFields, bool)

	// FreeFlow releases a DPI flow handle.
	FreeFlow(flow Flow)

	// ProtoName returns the human-readable name of a protocol id.
	ProtoName(p Proto) string
}
