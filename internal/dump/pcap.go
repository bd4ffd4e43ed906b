// Package dump implements the two Dump Sinks (spec.md §4.6): the
// in-memory PCAP ring buffer handed to the host in chunks, and an
// optional UDP/TCP collector socket, both emitting the classic libpcap
// wire format.
package dump

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"time"
)

const (
	magic        = 0xA1B2C3D4
	versionMajor = 2
	versionMinor = 4

	// LinkTypeRaw is used for captures off a tun device (no link-layer
	// header); LinkTypeEthernet is kept available for completeness.
	LinkTypeRaw      = 101
	LinkTypeEthernet = 1

	// BufferSize is the fixed size of the in-memory PCAP ring (spec.md
	// §3, PCAP Dump Buffer).
	BufferSize = 512 * 1024

	// FlushIntervalMS is the maximum time a non-empty buffer/collector
	// may go without being flushed (spec.md §4.6).
	FlushIntervalMS = 1000
)

// GlobalHeader returns the 24-byte libpcap global header for the given
// snap length and link type.
func GlobalHeader(snaplen uint32, linkType uint32) []byte {
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint32(buf[0:], magic)
	binary.LittleEndian.PutUint16(buf[4:], versionMajor)
	binary.LittleEndian.PutUint16(buf[6:], versionMinor)
	// thiszone, sigfigs are left zero.
	binary.LittleEndian.PutUint32(buf[16:], snaplen)
	binary.LittleEndian.PutUint32(buf[20:], linkType)
	return buf
}

// record renders one libpcap packet record: a 16-byte header followed by
// the payload bytes.
func record(payload []byte, ts time.Time) []byte {
	buf := make([]byte, 16+len(payload))
	binary.LittleEndian.PutUint32(buf[0:], uint32(ts.Unix()))
	binary.LittleEndian.PutUint32(buf[4:], uint32(ts.Nanosecond()/1000))
	binary.LittleEndian.PutUint32(buf[8:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(buf[12:], uint32(len(payload)))
	copy(buf[16:], payload)
	return buf
}

// Buffer is the fixed-size in-memory PCAP ring: records accumulate until
// the next one wouldn't fit, at which point the caller must flush and
// reset it.
type Buffer struct {
	buf            []byte
	used           int
	lastFlushMS    int64
	globalEmitted  bool
	snaplen        uint32
	linkType       uint32
}

// NewBuffer allocates an empty Buffer.
func NewBuffer(snaplen uint32, linkType uint32) *Buffer {
	return &Buffer{buf: make([]byte, BufferSize), snaplen: snaplen, linkType: linkType}
}

// Append adds one packet record. It returns the bytes that must be
// flushed to the host first if the record would not otherwise fit (the
// caller is expected to flush and retry); in that case the record is not
// yet appended. Returns (nil, false) on ordinary append.
func (b *Buffer) Append(payload []byte, ts time.Time) (toFlush []byte, mustFlushFirst bool) {
	if !b.globalEmitted {
		b.used += copy(b.buf[b.used:], GlobalHeader(b.snaplen, b.linkType))
		b.globalEmitted = true
	}
	rec := record(payload, ts)
	if b.used+len(rec) > len(b.buf) {
		return b.Flush(), true
	}
	b.used += copy(b.buf[b.used:], rec)
	return nil, false
}

// Flush returns the accumulated bytes and resets the cursor.
func (b *Buffer) Flush() []byte {
	if b.used == 0 {
		return nil
	}
	out := make([]byte, b.used)
	copy(out, b.buf[:b.used])
	b.used = 0
	b.globalEmitted = false
	return out
}

// Used returns the number of bytes currently buffered.
func (b *Buffer) Used() int {
	return b.used
}

// ShouldTimeFlush reports whether the buffer is non-empty and has gone
// longer than FlushIntervalMS since the last flush (spec.md §4.6).
func (b *Buffer) ShouldTimeFlush(nowMS int64) bool {
	return b.used > 0 && nowMS-b.lastFlushMS >= FlushIntervalMS
}

// MarkFlushed records the flush time for ShouldTimeFlush's bookkeeping.
func (b *Buffer) MarkFlushed(nowMS int64) {
	b.lastFlushMS = nowMS
}

// Collector is the optional UDP/TCP sink described in spec.md §4.6. Its
// socket is expected to have already been protected by the host (so its
// own traffic bypasses the tun) before use.
type Collector struct {
	conn          net.Conn
	pconn         net.PacketConn // used for UDP, where Send is unconnected
	addr          net.Addr
	tcp           bool
	globalEmitted bool
	snaplen       uint32
	linkType      uint32
}

// DialTCP connects a TCP collector up-front.
func DialTCP(addr string, snaplen, linkType uint32) (*Collector, error) {
	c, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial collector: %w", err)
	}
	return &Collector{conn: c, tcp: true, snaplen: snaplen, linkType: linkType}, nil
}

// NewUDP builds a UDP collector that sends unconnected datagrams to addr.
func NewUDP(pc net.PacketConn, addr net.Addr, snaplen, linkType uint32) *Collector {
	return &Collector{pconn: pc, addr: addr, snaplen: snaplen, linkType: linkType}
}

// Send emits the global header on first use, then one record for payload.
// Errors are intentionally swallowed by the caller (spec.md §4.6,
// "best-effort"); Send itself returns the error so the caller can log it.
func (c *Collector) Send(payload []byte, ts time.Time) error {
	var buf bytes.Buffer
	if !c.globalEmitted {
		buf.Write(GlobalHeader(c.snaplen, c.linkType))
		c.globalEmitted = true
	}
	buf.Write(record(payload, ts))

	if c.tcp {
		_, err := c.conn.Write(buf.Bytes())
		return err
	}
	_, err := c.pconn.WriteTo(buf.Bytes(), c.addr)
	return err
}

// Close releases the collector's socket.
func (c *Collector) Close() error {
	if c.tcp {
		return c.conn.Close()
	}
	return c.pconn.Close()
}
