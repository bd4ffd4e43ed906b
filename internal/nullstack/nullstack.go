// Package nullstack is a minimal, clearly-scoped stand-in for the
// userspace TCP/IP stack (internal/stackapi.Stack). The real stack — TCP
// reassembly, NAT tables, socket management — is an external
// collaborator the spec explicitly puts out of scope (spec.md §1
// Non-goals); nothing in this module reimplements it.
//
// nullstack exists only so cmd/vpncap has something to link against and
// run stand-alone: it does IP/TCP/UDP header parsing good enough to
// produce a stackapi.Packet and a per-tuple Conn, forwards by handing the
// raw bytes straight back to SendToClient (so a capture session run
// against it is self-looped rather than actually routed), and never
// reassembles or proxies a TCP stream. Swap this out for a real stack
// before driving live traffic.
package nullstack

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/pcapdroid/corecap/internal/ipproto"
	"github.com/pcapdroid/corecap/internal/stackapi"
	"github.com/pcapdroid/corecap/internal/tuple"
)

type fakeConn struct {
	t      tuple.Tuple
	status stackapi.Status
	userID uint64
	hasID  bool
	dnat   bool
	proxy  bool
}

func (c *fakeConn) Tuple() tuple.Tuple      { return c.t }
func (c *fakeConn) Status() stackapi.Status { return c.status }

// Stack is the loopback placeholder stackapi.Stack implementation.
type Stack struct {
	cb stackapi.Callbacks

	mu    sync.Mutex
	conns map[tuple.Tuple]*fakeConn

	socks5Addr net.IP
	socks5Port uint16
	dnatAddr   net.IP
	dnatPort   uint16
}

// New builds a Stack with no callback sink attached yet; call
// SetCallbacks before driving any traffic through it. The two-phase
// construction lets a caller build the Stack and the capture.Loop that
// will supply its callbacks in either order.
func New() *Stack {
	return &Stack{conns: make(map[tuple.Tuple]*fakeConn)}
}

// SetCallbacks attaches the sink invoked on connection/packet events,
// normally a capture.Loop's Callbacks().
func (s *Stack) SetCallbacks(cb stackapi.Callbacks) {
	s.cb = cb
}

// ParsePacket does just enough IPv4/IPv6 + TCP/UDP header parsing to
// build a tuple and locate the L4 payload; it does not validate checksums.
// IPv4 options are skipped via the IHL field; IPv6 extension headers are
// not walked.
func (s *Stack) ParsePacket(raw []byte) (stackapi.Packet, error) {
	if len(raw) < 1 {
		return stackapi.Packet{}, fmt.Errorf("nullstack: empty packet")
	}
	ver := raw[0] >> 4
	switch ver {
	case 4:
		return parseIPv4(raw)
	case 6:
		return parseIPv6(raw)
	default:
		return stackapi.Packet{}, fmt.Errorf("nullstack: unsupported IP version %d", ver)
	}
}

func parseIPv4(raw []byte) (stackapi.Packet, error) {
	if len(raw) < 20 {
		return stackapi.Packet{}, fmt.Errorf("nullstack: short IPv4 header")
	}
	ihl := int(raw[0]&0x0f) * 4
	if ihl < 20 || len(raw) < ihl {
		return stackapi.Packet{}, fmt.Errorf("nullstack: bad IPv4 IHL")
	}
	proto := raw[9]
	src := net.IP(raw[12:16])
	dst := net.IP(raw[16:20])
	return buildPacket(raw, 4, proto, src, dst, raw[ihl:])
}

func parseIPv6(raw []byte) (stackapi.Packet, error) {
	if len(raw) < 40 {
		return stackapi.Packet{}, fmt.Errorf("nullstack: short IPv6 header")
	}
	proto := raw[6]
	src := net.IP(raw[8:24])
	dst := net.IP(raw[24:40])
	return buildPacket(raw, 6, proto, src, dst, raw[40:])
}

func buildPacket(raw []byte, ipVer int, proto uint8, src, dst net.IP, l4 []byte) (stackapi.Packet, error) {
	var srcPort, dstPort uint16
	var payload []byte
	isSYNnotACK := false
	switch proto {
	case ipproto.TCP:
		if len(l4) < 20 {
			return stackapi.Packet{}, fmt.Errorf("nullstack: short TCP header")
		}
		srcPort = binary.BigEndian.Uint16(l4[0:2])
		dstPort = binary.BigEndian.Uint16(l4[2:4])
		dataOff := int(l4[12]>>4) * 4
		if dataOff < 20 || len(l4) < dataOff {
			return stackapi.Packet{}, fmt.Errorf("nullstack: bad TCP data offset")
		}
		flags := l4[13]
		const synFlag, ackFlag = 0x02, 0x10
		isSYNnotACK = flags&synFlag != 0 && flags&ackFlag == 0
		payload = l4[dataOff:]
	case ipproto.UDP:
		if len(l4) < 8 {
			return stackapi.Packet{}, fmt.Errorf("nullstack: short UDP header")
		}
		srcPort = binary.BigEndian.Uint16(l4[0:2])
		dstPort = binary.BigEndian.Uint16(l4[2:4])
		payload = l4[8:]
	default:
		payload = l4
	}
	return stackapi.Packet{
		Raw:         raw,
		IPVer:       ipVer,
		Proto:       proto,
		Tuple:       tuple.New(proto, src, dst, srcPort, dstPort),
		Payload:     payload,
		IsSYNnotACK: isSYNnotACK,
	}, nil
}

// Lookup finds or, if create and not rejected, creates the Conn for
// pkt.Tuple, invoking OnConnectionOpen exactly once per new flow.
func (s *Stack) Lookup(ctx context.Context, pkt stackapi.Packet, create bool) (stackapi.Conn, error) {
	s.mu.Lock()
	c, ok := s.conns[pkt.Tuple]
	s.mu.Unlock()
	if ok {
		return c, nil
	}
	if !create {
		return nil, nil
	}
	c = &fakeConn{t: pkt.Tuple, status: stackapi.Open}
	if reject := s.cb.OnConnectionOpen(ctx, c, pkt); reject {
		return nil, nil
	}
	s.mu.Lock()
	s.conns[pkt.Tuple] = c
	s.mu.Unlock()
	return c, nil
}

// Forward loops pkt straight back to the client: this placeholder never
// routes anywhere, it only exercises the accounting/DPI path.
func (s *Stack) Forward(ctx context.Context, pkt stackapi.Packet, c stackapi.Conn) error {
	s.cb.AccountPacket(ctx, pkt.Raw, true, c)
	return s.cb.SendToClient(ctx, pkt.Raw)
}

// Destroy removes the connection and fires OnConnectionClose.
func (s *Stack) Destroy(ctx context.Context, c stackapi.Conn) {
	fc := c.(*fakeConn)
	fc.status = stackapi.Closed
	s.mu.Lock()
	delete(s.conns, fc.t)
	s.mu.Unlock()
	s.cb.OnConnectionClose(ctx, c)
}

func (s *Stack) SetDNAT(ip net.IP, port uint16, ipVer int) error {
	s.dnatAddr, s.dnatPort = ip, port
	return nil
}

func (s *Stack) SetSOCKS5(ip net.IP, port uint16, ipVer int) error {
	s.socks5Addr, s.socks5Port = ip, port
	return nil
}

func (s *Stack) ConnDNAT(c stackapi.Conn)  { c.(*fakeConn).dnat = true }
func (s *Stack) ConnProxy(c stackapi.Conn) { c.(*fakeConn).proxy = true }

func (s *Stack) UserData(c stackapi.Conn) (uint64, bool) {
	fc := c.(*fakeConn)
	return fc.userID, fc.hasID
}

func (s *Stack) SetUserData(c stackapi.Conn, id uint64) {
	fc := c.(*fakeConn)
	fc.userID, fc.hasID = id, true
}

// FDSet is empty: this placeholder owns no native file descriptors.
func (s *Stack) FDSet() ([]int, int) { return nil, -1 }

// HandleFD is a no-op: nothing to service.
func (s *Stack) HandleFD(ctx context.Context, readable, writable []int) {}

func (s *Stack) Stats() stackapi.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return stackapi.Stats{ActiveConns: len(s.conns), TotalConns: len(s.conns)}
}

// PurgeExpired is a no-op: this placeholder has no idle timeout of its
// own, relying entirely on OnConnectionClose from Destroy.
func (s *Stack) PurgeExpired(nowSec int64) {}

// Close tears down every outstanding connection.
func (s *Stack) Close() {
	s.mu.Lock()
	conns := make([]*fakeConn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.conns = make(map[tuple.Tuple]*fakeConn)
	s.mu.Unlock()
	for _, c := range conns {
		c.status = stackapi.Closed
	}
}
