package capture

import (
	"context"
	"time"

	"github.com/pcapdroid/corecap/internal/conn"
	"github.com/pcapdroid/corecap/internal/dnspolicy"
	"github.com/pcapdroid/corecap/internal/dpi"
	"github.com/pcapdroid/corecap/internal/hostapi"
	"github.com/pcapdroid/corecap/internal/registry"
	"github.com/pcapdroid/corecap/internal/stackapi"
	"github.com/pcapdroid/corecap/internal/stats"
	"github.com/pcapdroid/corecap/internal/uidapi"

	"github.com/datawire/dlib/dlog"
)

// callbacks implements stackapi.Callbacks, wiring the stack's five
// upcalls into the Connection Record lifecycle, DNS Policy, Registry,
// DPI Driver, and dump sinks (spec.md §4.2, §4.4). It is driven
// exclusively from the Packet Loop's goroutine, so it needs no locking
// (spec.md §5).
type callbacks struct {
	stack    stackapi.Stack
	table    *conn.Table
	registry *registry.Registry
	policy   *dnspolicy.Policy
	dpi      *dpi.Driver
	uid      uidapi.Resolver
	host     hostapi.Host
	capStats *stats.Capture
	pcap     *pcapSinks
	control  *Control

	// tunWrite writes a stack-originated packet back to the tun; it is
	// supplied by the Loop at construction time since only the Loop owns
	// the tun device (spec.md §5, "the tun fd is owned by the loop").
	tunWrite func(ctx context.Context, pkt []byte) error

	ipv6Enabled bool

	// lastConnBlocked records whether the most recent OnConnectionOpen
	// call rejected due to a DNS Policy deny (spec.md §4.7: "if
	// last_conn_blocked: swallow" vs. "dropped_connections++"), so the
	// loop can tell a policy block from a genuine allocation failure.
	lastConnBlocked bool

	// nextDPIID hands out distinct per-direction DPI flow ids, loop-thread-
	// local like everything else in this struct (spec.md §5).
	nextDPIID int
}

// SendToClient writes a stack-originated packet back to the tun
// (spec.md §2, "stack emits -> net2tun callback -> write(tun)").
func (cb *callbacks) SendToClient(ctx context.Context, pkt []byte) error {
	return cb.tunWrite(ctx, pkt)
}

func (cb *callbacks) AccountPacket(ctx context.Context, pkt []byte, outbound bool, c stackapi.Conn) {
	id, ok := cb.stack.UserData(c)
	if !ok {
		return
	}
	rec, ok := cb.table.Get(conn.RecordID(id))
	if !ok {
		return
	}

	now := time.Now()
	rec.AccountPacket(outbound, len(pkt), now.Unix())
	cb.capStats.AccountPacket(outbound, len(pkt))

	if !rec.Ignored {
		cb.registry.NoteUpdated(rec.ID)
	}

	if parsed, err := cb.stack.ParsePacket(pkt); err == nil {
		cb.dpi.Feed(rec, parsed.Payload, outbound)
	}

	cb.pcap.account(ctx, pkt, now)
}

func (cb *callbacks) OnSocketOpen(ctx context.Context, fd int) {
	if !cb.host.Protect(fd) {
		dlog.Errorf(ctx, "failed to protect native socket fd=%d", fd)
	}
}

// OnConnectionOpen implements the Embryonic->Open transition (spec.md
// §4.2): consume any pending Control Surface DNS-server change first, run
// the DNS Policy, and only allocate a Connection Record if it allows the
// flow.
func (cb *callbacks) OnConnectionOpen(ctx context.Context, c stackapi.Conn, pkt stackapi.Packet) (reject bool) {
	cb.lastConnBlocked = false

	if newServer, ok := cb.control.takeNewDNSServer(); ok {
		if err := cb.policy.SetUpstream(cb.stack, newServer); err != nil {
			dlog.Errorf(ctx, "failed to publish new upstream DNS server %s: %v", newServer, err)
		}
	}

	if pkt.IPVer == 6 && !cb.ipv6Enabled {
		return true
	}

	t := pkt.Tuple
	ignored := cb.policy.IsIgnored(t.Dst(), t.DstPort())

	decision, dnat := cb.policy.Evaluate(pkt.Proto, t.Dst(), t.DstPort(), pkt.Payload)
	cb.capStats.SetDNSRequests(cb.policy.DNSRequests)
	if decision == dnspolicy.Deny {
		cb.lastConnBlocked = true
		return true
	}

	uid := uidapi.Unknown
	if got, ok := cb.uid.Lookup(t); ok {
		uid = got
	}

	srcID, dstID := cb.nextDPIIDs()
	rec := cb.table.Alloc(t, time.Now().Unix(), uid, ignored, srcID, dstID)
	if name, ok := cb.dpi.LookupHost(t.Dst()); ok {
		rec.Info = name
	}
	cb.stack.SetUserData(c, uint64(rec.ID))
	cb.registry.NoteNew(rec.ID)

	if dnat {
		cb.stack.ConnDNAT(c)
	}
	return false
}

func (cb *callbacks) OnConnectionClose(ctx context.Context, c stackapi.Conn) {
	id, ok := cb.stack.UserData(c)
	if !ok {
		return
	}
	rec, ok := cb.table.Get(conn.RecordID(id))
	if !ok {
		return
	}

	cb.dpi.Finalize(rec)
	rec.Close()
	if !rec.Ignored && !rec.PendingNotification {
		cb.registry.NoteUpdated(rec.ID)
	}
}

// nextDPIIDs hands out a fresh, distinct per-direction DPI id pair.
func (cb *callbacks) nextDPIIDs() (src, dst int) {
	cb.nextDPIID++
	src = cb.nextDPIID
	cb.nextDPIID++
	dst = cb.nextDPIID
	return src, dst
}
