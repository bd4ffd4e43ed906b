package capture

import (
	"context"
	"net"

	"github.com/datawire/dlib/dlog"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// logFragmentation peeks at the raw IP header to flag fragmented
// datagrams at debug level before handing the packet to the stack.
// Fragment reassembly itself is the stack's job (out of scope, spec.md
// §1); this is purely diagnostic, grounded in the same header-level
// parsing rootd/router.go does with golang.org/x/net/ipv4.
func logFragmentation(ctx context.Context, raw []byte) {
	if len(raw) == 0 {
		return
	}
	switch raw[0] >> 4 {
	case 4:
		h, err := ipv4.ParseHeader(raw)
		if err != nil {
			return
		}
		if h.Flags&ipv4.MoreFragments != 0 || h.FragOff != 0 {
			dlog.Debugf(ctx, "fragmented IPv4 datagram id=%d off=%d from %s to %s", h.ID, h.FragOff, h.Src, h.Dst)
		}
	case 6:
		if len(raw) < ipv6.HeaderLen {
			return
		}
		// IPv6 carries fragmentation in an extension header rather than
		// the fixed header; the fixed-header next-header field is
		// enough to flag the common case without a full extension-chain
		// walk (out of scope for this diagnostic).
		const fragmentExtensionHeader = 44
		if raw[6] == fragmentExtensionHeader {
			dlog.Debugf(ctx, "fragmented IPv6 datagram from %s", net.IP(raw[8:24]))
		}
	}
}
