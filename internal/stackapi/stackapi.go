// Package stackapi declares the interface the capture engine uses to talk
// to the userspace TCP/IP stack. The stack itself — TCP reassembly, NAT
// tables, socket management — is out of scope for this module (spec.md
// §1 Non-goals): it is a black-box collaborator the Packet Loop drives.
package stackapi

import (
	"context"
	"net"

	"github.com/pcapdroid/corecap/internal/tuple"
)

// Status mirrors the stack's connection lifecycle state (spec.md §4.2).
// Ordering matters: code that needs "any terminal state" compares with
// >= Closed, per the Open Question in spec.md §9.
type Status int

const (
	Embryonic Status = iota
	Open
	Closed
	Freed
)

// Packet is a parsed view over one raw IP packet read from (or destined
// for) the tun device.
type Packet struct {
	Raw         []byte
	IPVer       int
	Proto       uint8
	Tuple       tuple.Tuple
	Payload     []byte // L4 payload, e.g. the UDP/TCP payload carrying a DNS message
	IsSYNnotACK bool   // true for a TCP packet that is SYN and not ACK
}

// Conn is an opaque handle to a stack connection. The core never reaches
// into it; it only carries an id used to attach a Connection Record via
// SetUserData/UserData.
type Conn interface {
	Tuple() tuple.Tuple
	Status() Status
}

// Stack is the subset of the userspace TCP/IP stack's surface the capture
// engine drives directly (spec.md §6 Downward interfaces).
type Stack interface {
	// ParsePacket parses raw bytes read from the tun into a Packet.
	ParsePacket(raw []byte) (Packet, error)

	// Lookup finds the connection for pkt's tuple. If create is true and
	// no connection exists, one is created (and the on-connection-open
	// callback fires). Returns nil if the policy rejected the connection
	// or none could be created.
	Lookup(ctx context.Context, pkt Packet, create bool) (Conn, error)

	// Forward hands pkt to the stack for processing on an established
	// connection. A non-nil error means the stack could not forward it.
	Forward(ctx context.Context, pkt Packet, c Conn) error

	// Destroy tears down a connection immediately.
	Destroy(ctx context.Context, c Conn)

	// SetDNAT installs a destination NAT mapping for internal DNS traffic.
	SetDNAT(ip net.IP, port uint16, ipVer int) error

	// SetSOCKS5 configures the upstream SOCKS5 relay address.
	SetSOCKS5(ip net.IP, port uint16, ipVer int) error

	// ConnDNAT marks c for DNAT toward the configured upstream DNS server.
	ConnDNAT(c Conn)

	// ConnProxy marks c to be proxied via SOCKS5 (one-shot, TCP only).
	ConnProxy(c Conn)

	// UserData / SetUserData attach the core's Connection Record id to c.
	UserData(c Conn) (id uint64, ok bool)
	SetUserData(c Conn, id uint64)

	// FDSet returns the stack's current file descriptors for multiplexed
	// I/O, alongside the highest fd number (for select()-style sizing).
	FDSet() (fds []int, maxFD int)

	// HandleFD services stack I/O on the given readable/writable fd sets.
	HandleFD(ctx context.Context, readable, writable []int)

	// Stats reports point-in-time stack-level counters.
	Stats() Stats

	// PurgeExpired evicts connections that have been idle past the
	// stack's own timeout, given the current time in seconds.
	PurgeExpired(nowSec int64)

	// Close tears the stack down, releasing every connection.
	Close()
}

// Stats are the stack-level counters folded into the VPN stats record
// (spec.md §6, "VPN stats fields").
type Stats struct {
	OpenSockets int
	MaxFD       int
	ActiveConns int
	TotalConns  int
}

// Callbacks are the five callbacks the stack invokes into the core
// (spec.md §6 Downward interfaces).
type Callbacks interface {
	// SendToClient writes a stack-originated packet back to the tun.
	SendToClient(ctx context.Context, pkt []byte) error

	// AccountPacket is invoked for every packet the stack forwards, in
	// either direction, so the core can update per-connection counters.
	AccountPacket(ctx context.Context, pkt []byte, outbound bool, c Conn)

	// OnSocketOpen is invoked when the stack opens a native OS socket; the
	// host must protect it against the tun (see hostapi.Protect).
	OnSocketOpen(ctx context.Context, fd int)

	// OnConnectionOpen decides whether a new connection is accepted. A
	// true reject means the stack discards the triggering packet and c is
	// never attached any userdata. c is already a live handle so an
	// accepting implementation can SetUserData on it immediately.
	OnConnectionOpen(ctx context.Context, c Conn, pkt Packet) (reject bool)

	// OnConnectionClose is invoked once, when the stack finalizes a
	// connection's lifecycle.
	OnConnectionClose(ctx context.Context, c Conn)
}
