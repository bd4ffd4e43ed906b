// Package hostapi declares the callbacks the capture engine invokes on the
// controlling host application (spec.md §6 Upward interfaces). The host's
// own implementation — UI plumbing, IPC to a controlling app — is out of
// scope for this module.
package hostapi

import "context"

// ConnDescriptor is the ordered connection record the registry hands to
// the host on each drain (spec.md §6, "Connection descriptor fields").
type ConnDescriptor struct {
	SrcIP      string
	DstIP      string
	Info       string
	URL        string
	L7Proto    string
	Status     int
	IPVer      int
	IPProto    int
	SrcPort    int
	DstPort    int
	FirstSeen  int64
	LastSeen   int64
	SentBytes  int64
	RcvdBytes  int64
	SentPkts   int
	RcvdPkts   int
	UID        int
	IncrID     int
}

// VPNStats is the ordered aggregate stats record handed to the host
// (spec.md §6, "VPN stats fields").
type VPNStats struct {
	SentBytes          int64
	RcvdBytes          int64
	SentPkts           int
	RcvdPkts           int
	DroppedConnections int
	OpenSockets        int
	MaxFD              int
	ActiveConns        int
	TotalConns         int
	DNSRequests        int
}

// Host is the set of callbacks the capture engine invokes on the
// controlling application.
type Host interface {
	// GetApplicationByUid resolves a UID to a display name. Implementations
	// should use uidlabel.Label for the well-known sentinels.
	GetApplicationByUid(uid int) string

	// Protect asks the host to bypass the tun for fd (a native OS socket
	// the stack or a dump sink opened), so its own traffic doesn't loop
	// back through the capture.
	Protect(fd int) bool

	// DumpPcapData hands a chunk of libpcap-formatted bytes to the host.
	DumpPcapData(ctx context.Context, data []byte) error

	// SendConnectionsDump hands the registry's new and updated batches to
	// the host as a single atomic call.
	SendConnectionsDump(ctx context.Context, newConns, updated []ConnDescriptor) error

	// SendStatsDump reports the current aggregate capture stats.
	SendStatsDump(ctx context.Context, stats VPNStats) error

	// SendServiceStatus reports "started" once the loop enters and
	// "stopped" immediately before it returns.
	SendServiceStatus(ctx context.Context, status string)
}
