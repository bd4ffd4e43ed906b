// Package tuple implements the 5-tuple identity of a flow: protocol,
// source/destination IP, and source/destination port. It is grounded on
// the teacher's pkg/connpool.ConnID: a single comparable string built from
// the raw address bytes so a Tuple can be used directly as a map key
// without a custom hash function.
package tuple

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/pcapdroid/corecap/internal/ipproto"
)

// Tuple is an immutable, comparable identifier for a flow. The zero value
// is not meaningful; always construct with New.
type Tuple string

// New builds a Tuple from its components. IPv4 addresses are always stored
// in their 4-byte form so that a v4 Tuple and a v6 Tuple never collide in
// length, mirroring ConnID.IsIPv4's length discriminator.
func New(proto uint8, src, dst net.IP, srcPort, dstPort uint16) Tuple {
	src4, dst4 := src.To4(), dst.To4()
	if src4 != nil && dst4 != nil {
		src, dst = src4, dst4
	} else {
		src, dst = src.To16(), dst.To16()
	}
	ls, ld := len(src), len(dst)
	buf := make([]byte, ls+ld+5)
	copy(buf, src)
	binary.BigEndian.PutUint16(buf[ls:], srcPort)
	off := ls + 2
	copy(buf[off:], dst)
	off += ld
	binary.BigEndian.PutUint16(buf[off:], dstPort)
	buf[off+2] = proto
	return Tuple(buf)
}

// IsIPv4 reports whether this tuple's addresses are IPv4.
func (t Tuple) IsIPv4() bool {
	return len(t) == 13
}

// IPVersion returns 4 or 6.
func (t Tuple) IPVersion() int {
	if t.IsIPv4() {
		return 4
	}
	return 6
}

// Proto returns the IP protocol number (e.g. ipproto.TCP).
func (t Tuple) Proto() uint8 {
	return t[len(t)-1]
}

// Src returns the source IP.
func (t Tuple) Src() net.IP {
	if t.IsIPv4() {
		return net.IP(t[0:4])
	}
	return net.IP(t[0:16])
}

// SrcPort returns the source port.
func (t Tuple) SrcPort() uint16 {
	if t.IsIPv4() {
		return binary.BigEndian.Uint16([]byte(t)[4:])
	}
	return binary.BigEndian.Uint16([]byte(t)[16:])
}

// Dst returns the destination IP.
func (t Tuple) Dst() net.IP {
	if t.IsIPv4() {
		return net.IP(t[6:10])
	}
	return net.IP(t[18:34])
}

// DstPort returns the destination port.
func (t Tuple) DstPort() uint16 {
	if t.IsIPv4() {
		return binary.BigEndian.Uint16([]byte(t)[10:])
	}
	return binary.BigEndian.Uint16([]byte(t)[34:])
}

// Reply returns a copy of t with source and destination swapped: the
// identity of the return-path flow for the same connection.
func (t Tuple) Reply() Tuple {
	return New(t.Proto(), t.Dst(), t.Src(), t.DstPort(), t.SrcPort())
}

// String renders "proto src:port -> dst:port", suitable for logging.
func (t Tuple) String() string {
	return fmt.Sprintf("%s %s:%d -> %s:%d", ipproto.Name(t.Proto()), t.Src(), t.SrcPort(), t.Dst(), t.DstPort())
}
