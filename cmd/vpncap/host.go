package main

import (
	"context"
	"fmt"

	"github.com/pcapdroid/corecap/internal/hostapi"
	"github.com/pcapdroid/corecap/internal/uidlabel"

	"github.com/datawire/dlib/dlog"
)

// loggingHost is a stand-alone hostapi.Host that logs every callback
// instead of relaying it to a controlling application over IPC — the
// host application itself is out of scope (spec.md §6 Upward
// interfaces). It exists so cmd/vpncap can run a complete capture
// session end to end for demonstration.
type loggingHost struct{}

func newLoggingHost() *loggingHost { return &loggingHost{} }

func (h *loggingHost) GetApplicationByUid(uid int) string {
	if name, ok := uidlabel.Label(uid); ok {
		return name
	}
	return fmt.Sprintf("uid-%d", uid)
}

// Protect is a no-op here: keeping the host's own sockets (e.g. a pcap
// collector socket) out of the tun is a platform-specific mechanism
// (SO_BINDTODEVICE / VpnService.protect()) this stand-alone build has no
// tun routing to protect against in the first place.
func (h *loggingHost) Protect(fd int) bool { return true }

func (h *loggingHost) DumpPcapData(ctx context.Context, data []byte) error {
	dlog.Debugf(ctx, "pcap dump: %d bytes", len(data))
	return nil
}

func (h *loggingHost) SendConnectionsDump(ctx context.Context, newConns, updated []hostapi.ConnDescriptor) error {
	dlog.Infof(ctx, "connections dump: %d new, %d updated", len(newConns), len(updated))
	return nil
}

func (h *loggingHost) SendStatsDump(ctx context.Context, stats hostapi.VPNStats) error {
	dlog.Infof(ctx, "stats: sent=%d/%d rcvd=%d/%d dropped=%d active=%d total=%d dns=%d",
		stats.SentPkts, stats.SentBytes, stats.RcvdPkts, stats.RcvdBytes,
		stats.DroppedConnections, stats.ActiveConns, stats.TotalConns, stats.DNSRequests)
	return nil
}

func (h *loggingHost) SendServiceStatus(ctx context.Context, status string) {
	dlog.Infof(ctx, "service status: %s", status)
}
