// Package capture implements the Packet Loop and Control Surface
// (spec.md §4.7-§4.8): the single-threaded event loop that multiplexes
// the tun device and the stack's file descriptors, dispatches packets
// through the DNS Policy, DPI, and Registry, and runs the mutually
// exclusive housekeeping cascade on every iteration.
package capture

import (
	"context"
	"time"

	"github.com/pcapdroid/corecap/internal/conn"
	"github.com/pcapdroid/corecap/internal/dnspolicy"
	"github.com/pcapdroid/corecap/internal/dpi"
	"github.com/pcapdroid/corecap/internal/errcat"
	"github.com/pcapdroid/corecap/internal/hostapi"
	"github.com/pcapdroid/corecap/internal/ipproto"
	"github.com/pcapdroid/corecap/internal/registry"
	"github.com/pcapdroid/corecap/internal/stackapi"
	"github.com/pcapdroid/corecap/internal/stats"
	"github.com/pcapdroid/corecap/internal/uidapi"

	"github.com/datawire/dlib/dlog"
	"golang.org/x/sys/unix"
)

// selectTimeoutMS bounds the select() call so the loop reliably notices
// Control Surface changes (spec.md §4.7).
const selectTimeoutMS = 500

const (
	connDumpFreqMS  = registry.DumpFrequencyMS
	purgeIntervalMS = 5000
)

// Tun is the minimal tun-device surface the loop drives directly: a
// blocking-mode fd the loop only reads once select reports it readable
// (spec.md §5, "Suspension points").
type Tun interface {
	Fd() int
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
}

// Deps collects every collaborator the Loop composes. All fields are
// required.
type Deps struct {
	Tun      Tun
	Stack    stackapi.Stack
	Table    *conn.Table
	Registry *registry.Registry
	Policy   *dnspolicy.Policy
	DPI      *dpi.Driver
	UID      uidapi.Resolver
	Host     hostapi.Host
	Stats    *stats.Capture
	PCAP     *pcapSinks
	Control  *Control

	IPv6Enabled   bool
	SOCKS5Enabled bool
}

// Loop is the Packet Loop: one instance drives exactly one capture
// session, start to shutdown (spec.md §5, "Ownership").
type Loop struct {
	d  Deps
	cb *callbacks

	lastStatsUpdateMS int64
	lastConnDumpMS    int64
	lastPCAPFlushMS   int64
	nextPurgeMS       int64
}

// NewLoop wires a Loop from its dependencies, constructing the
// stackapi.Callbacks implementation the Stack will invoke.
func NewLoop(d Deps) *Loop {
	l := &Loop{d: d}
	l.cb = &callbacks{
		stack:       d.Stack,
		table:       d.Table,
		registry:    d.Registry,
		policy:      d.Policy,
		dpi:         d.DPI,
		uid:         d.UID,
		host:        d.Host,
		capStats:    d.Stats,
		pcap:        d.PCAP,
		control:     d.Control,
		ipv6Enabled: d.IPv6Enabled,
		tunWrite: func(ctx context.Context, pkt []byte) error {
			return l.writeTun(ctx, pkt)
		},
	}
	return l
}

// Callbacks exposes the stackapi.Callbacks implementation for the caller
// to register with the Stack before any traffic is driven through it.
func (l *Loop) Callbacks() stackapi.Callbacks {
	return l.cb
}

// writeTun implements net2tun (spec.md §4.7, "Error handling on tun
// write"): ENOBUFS is non-fatal, EIO and any short/negative write stop
// the loop.
func (l *Loop) writeTun(ctx context.Context, pkt []byte) error {
	n, err := l.d.Tun.Write(pkt)
	if err != nil {
		if err == unix.ENOBUFS {
			dlog.Errorf(ctx, "tun write ENOBUFS")
			return errcat.TunENOBUFS.New(err)
		}
		if err == unix.EIO {
			dlog.Infof(ctx, "tun closed, stopping")
			l.d.Control.Stop()
			return errcat.TunEIO.New(err)
		}
		dlog.Errorf(ctx, "fatal tun write error: %v", err)
		l.d.Control.Stop()
		return errcat.TunShortWrite.New(err)
	}
	if n < len(pkt) {
		dlog.Errorf(ctx, "short tun write: %d/%d bytes", n, len(pkt))
		l.d.Control.Stop()
		return errcat.TunShortWrite.Newf("short write: %d/%d", n, len(pkt))
	}
	return nil
}

// Run drives the loop until Control.Stop() is called or ctx is canceled,
// performing the shutdown sequence described in spec.md §5 before
// returning.
func (l *Loop) Run(ctx context.Context) error {
	dlog.Infof(ctx, "capture loop starting")
	l.d.Host.SendServiceStatus(ctx, "started")
	defer l.shutdown(ctx)

	buf := make([]byte, 65536)
	tunFD := l.d.Tun.Fd()

	for l.d.Control.Running() {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		fds, _ := l.d.Stack.FDSet()
		readable, tunReadable, err := selectOnce(tunFD, fds, selectTimeoutMS)
		if err != nil {
			dlog.Errorf(ctx, "select error: %v", err)
			continue
		}
		if !l.d.Control.Running() {
			break
		}

		now := time.Now()
		nowMS := now.UnixMilli()

		switch {
		case tunReadable:
			n, err := l.d.Tun.Read(buf)
			if err == nil && n > 0 {
				l.dispatchTunPacket(ctx, buf[:n])
			}
		case len(readable) > 0:
			l.d.Stack.HandleFD(ctx, readable, nil)
		}

		l.housekeeping(ctx, nowMS)
	}
	return nil
}

// selectOnce multiplexes the tun fd and the stack's fd set, returning
// which stack fds are readable and whether the tun itself is. Isolated
// from Run so the dispatch/housekeeping logic above it stays testable
// without real file descriptors.
func selectOnce(tunFD int, stackFDs []int, timeoutMS int) (readable []int, tunReadable bool, err error) {
	var set unix.FdSet
	maxFD := tunFD
	fdSet(&set, tunFD)
	for _, fd := range stackFDs {
		fdSet(&set, fd)
		if fd > maxFD {
			maxFD = fd
		}
	}
	tv := unix.NsecToTimeval(int64(timeoutMS) * int64(time.Millisecond))
	n, err := unix.Select(maxFD+1, &set, nil, nil, &tv)
	if err != nil || n == 0 {
		return nil, false, err
	}
	if fdIsSet(&set, tunFD) {
		tunReadable = true
	}
	for _, fd := range stackFDs {
		if fdIsSet(&set, fd) {
			readable = append(readable, fd)
		}
	}
	return readable, tunReadable, nil
}

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}

// dispatchTunPacket implements the tun-readable branch of spec.md §4.7's
// pseudocode.
func (l *Loop) dispatchTunPacket(ctx context.Context, raw []byte) {
	logFragmentation(ctx, raw)

	pkt, err := l.d.Stack.ParsePacket(raw)
	if err != nil {
		dlog.Errorf(ctx, "dropping unparseable packet: %v", err)
		return
	}
	if pkt.IPVer == 6 && !l.d.IPv6Enabled {
		return
	}

	tcpEstablished := pkt.Proto == ipproto.TCP && !pkt.IsSYNnotACK

	c, err := l.d.Stack.Lookup(ctx, pkt, !tcpEstablished)
	if err != nil || c == nil {
		if l.cb.lastConnBlocked {
			// DNS Policy denied it: swallow, no error (spec.md §4.7).
		} else if !tcpEstablished {
			l.d.Stats.DropConnection()
			dlog.Errorf(ctx, "failed to allocate connection for %s", pkt.Tuple)
		} else {
			dlog.Debugf(ctx, "skipping packet for established TCP flow: %s", pkt.Tuple)
		}
		return
	}

	if l.d.SOCKS5Enabled {
		l.maybeSocks5Redirect(c, pkt)
	}

	if err := l.d.Stack.Forward(ctx, pkt, c); err != nil {
		dlog.Errorf(ctx, "forward failed for %s: %v", pkt.Tuple, err)
		l.d.Stats.DropConnection()
		l.d.Stack.Destroy(ctx, c)
	}
}

// maybeSocks5Redirect implements spec.md §4.7.1: redirect a brand-new TCP
// flow's first packet to the SOCKS5 relay, one-shot per connection.
func (l *Loop) maybeSocks5Redirect(c stackapi.Conn, pkt stackapi.Packet) {
	if pkt.Proto != ipproto.TCP {
		return
	}
	id, ok := l.d.Stack.UserData(c)
	if !ok {
		return
	}
	rec, ok := l.d.Table.Get(conn.RecordID(id))
	if !ok || rec.Ignored {
		return
	}
	if rec.SentPkts+rec.RcvdPkts == 0 {
		l.d.Stack.ConnProxy(c)
	}
}

// housekeeping runs the mutually-exclusive cascade from spec.md §4.7: at
// most one branch fires per iteration.
func (l *Loop) housekeeping(ctx context.Context, nowMS int64) {
	dumpCaptureStatsNow := l.d.Control.takeDumpCaptureStatsNow()
	if l.d.Stats.ShouldEmit(nowMS, dumpCaptureStatsNow) {
		l.emitCaptureStats(ctx, nowMS)
		return
	}

	if nowMS-l.lastConnDumpMS >= connDumpFreqMS {
		if err := l.d.Registry.Drain(ctx, l.d.Host); err != nil {
			dlog.Errorf(ctx, "registry drain failed: %v", err)
		}
		l.lastConnDumpMS = nowMS
		return
	}

	if l.d.PCAP.dueForTimeFlush(nowMS) {
		if err := l.d.PCAP.flushTimeBased(ctx, nowMS); err != nil {
			dlog.Errorf(ctx, "pcap time-based flush failed: %v", err)
		}
		l.lastPCAPFlushMS = nowMS
		return
	}

	dumpVPNStatsNow := l.d.Control.takeDumpVPNStatsNow()
	if nowMS >= l.nextPurgeMS || dumpVPNStatsNow {
		l.d.Stack.PurgeExpired(nowMS / 1000)
		l.nextPurgeMS = nowMS + purgeIntervalMS
	}
}

func (l *Loop) emitCaptureStats(ctx context.Context, nowMS int64) {
	st := l.d.Stack.Stats()
	vpn := hostapi.VPNStats{
		SentBytes:          l.d.Stats.SentBytes,
		RcvdBytes:          l.d.Stats.RcvdBytes,
		SentPkts:           l.d.Stats.SentPkts,
		RcvdPkts:           l.d.Stats.RcvdPkts,
		DroppedConnections: l.d.Stats.DroppedConnections,
		OpenSockets:        st.OpenSockets,
		MaxFD:              st.MaxFD,
		ActiveConns:        st.ActiveConns,
		TotalConns:         st.TotalConns,
		DNSRequests:        l.d.Stats.DNSRequests,
	}
	if err := l.d.Host.SendStatsDump(ctx, vpn); err != nil {
		dlog.Errorf(ctx, "stats dump failed: %v", err)
		return
	}
	l.d.Stats.MarkEmitted(nowMS)
	l.lastStatsUpdateMS = nowMS
}

// shutdown implements spec.md §5's cancellation sequence: finalize DPI
// on every live record, flush any non-empty PCAP buffer, free every
// record, tear down the stack and the Host LRU, and report "stopped".
func (l *Loop) shutdown(ctx context.Context) {
	for _, rec := range l.d.Table.All() {
		l.d.DPI.Finalize(rec)
	}
	if l.d.PCAP.used() > 0 {
		if err := l.d.PCAP.forceFlush(ctx, time.Now().UnixMilli()); err != nil {
			dlog.Errorf(ctx, "final pcap flush failed: %v", err)
		}
	}
	if err := l.d.Registry.ShutdownDrain(ctx, l.d.Host); err != nil {
		dlog.Errorf(ctx, "shutdown registry drain failed: %v", err)
	}
	l.d.Stack.Close()
	l.d.DPI.Destroy()
	l.d.Host.SendServiceStatus(ctx, "stopped")
	dlog.Infof(ctx, "capture loop stopped")
}
