// Package conn implements the Connection Record and its lifecycle
// (spec.md §3, §4.2). Records are owned by a Table keyed by a stable
// RecordID rather than referenced by raw pointer from the stack's opaque
// userdata slot, per the safe-ownership design note in spec.md §9: "model
// this as an arena of records indexed by a stable id; the stack holds the
// id, not a raw reference."
package conn

import (
	"github.com/pcapdroid/corecap/internal/dpiapi"
	"github.com/pcapdroid/corecap/internal/stackapi"
	"github.com/pcapdroid/corecap/internal/tuple"
)

// RecordID is a stable handle into a Table; it never refers to memory the
// stack itself allocated.
type RecordID uint64

// DPIState is Finished once the DPI driver has released its flow handle,
// or Active while DPI is still feeding packets for this connection.
type DPIState int

const (
	DPIActive DPIState = iota
	DPIFinished
)

const (
	// MaxInfoLen / MaxURLLen bound the owned strings on a Record
	// (spec.md §3: "≤256 bytes, trailing NUL").
	MaxInfoLen = 256
	MaxURLLen  = 256
)

// IgnoredIncrID is the incr_id value on ignored (non-registered)
// connections: they never receive one (spec.md §3).
const IgnoredIncrID = -1

// Record is the per-flow state object attached to every stack connection
// the core accepts.
type Record struct {
	ID    RecordID
	Tuple tuple.Tuple

	SentPkts, RcvdPkts   uint64
	SentBytes, RcvdBytes uint64

	FirstSeen, LastSeen int64 // seconds since epoch

	Status stackapi.Status

	UID int // uidapi.Unknown if unresolved

	IncrID int // IgnoredIncrID if this connection is ignored

	PendingNotification bool

	L7Proto   dpiapi.Classification
	DPIState  DPIState
	DPIPkts   int // packets fed to DPI so far, across both directions
	dpiFlow   dpiapi.Flow
	srcID     int
	dstID     int

	Info string // learned hostname, "" if none
	URL  string // learned HTTP URL, "" if none

	Ignored bool
}

// NewRecord builds a fresh Embryonic->Open record for t, with DPI ids
// assigned and UID resolved by the caller.
func NewRecord(id RecordID, t tuple.Tuple, now int64, uid int, ignored bool, srcID, dstID int) *Record {
	incr := IgnoredIncrID
	r := &Record{
		ID:        id,
		Tuple:     t,
		FirstSeen: now,
		LastSeen:  now,
		Status:    stackapi.Open,
		UID:       uid,
		IncrID:    incr,
		Ignored:   ignored,
		srcID:     srcID,
		dstID:     dstID,
	}
	return r
}

// AccountPacket updates counters and LastSeen for one packet in the given
// direction, maintaining the invariant first_seen <= last_seen whenever
// any packet has been accounted (spec.md §8).
func (r *Record) AccountPacket(outbound bool, size int, now int64) {
	if outbound {
		r.SentPkts++
		r.SentBytes += uint64(size)
	} else {
		r.RcvdPkts++
		r.RcvdBytes += uint64(size)
	}
	if now > r.LastSeen {
		r.LastSeen = now
	}
}

// DirectionIDs returns the (src, dst) DPI flow ids to present for a packet
// travelling in the given direction: unswapped for tun-egress (outbound)
// packets, swapped for tun-ingress (inbound) ones (spec.md §4.3).
func (r *Record) DirectionIDs(outbound bool) (src, dst int) {
	if outbound {
		return r.srcID, r.dstID
	}
	return r.dstID, r.srcID
}

// DPIFlow returns the DPI flow handle, or nil if DPI has already finished
// for this record.
func (r *Record) DPIFlow() dpiapi.Flow {
	return r.dpiFlow
}

// SetDPIFlow attaches a freshly allocated DPI flow handle.
func (r *Record) SetDPIFlow(f dpiapi.Flow) {
	r.dpiFlow = f
}

// FinishDPI releases the DPI flow handle and transitions the record's DPI
// sub-state to Finished. The record itself may remain Open.
func (r *Record) FinishDPI(dpi dpiapi.Module) {
	if r.DPIState == DPIFinished {
		return
	}
	if r.dpiFlow != nil {
		dpi.FreeFlow(r.dpiFlow)
		r.dpiFlow = nil
	}
	r.DPIState = DPIFinished
}

// Close transitions the record to Closed. It does not free the record —
// that only happens during a registry drain (spec.md §4.2, §4.5).
func (r *Record) Close() {
	r.Status = stackapi.Closed
}

// Freeable reports whether this record may be released during a normal
// (non-shutdown) registry drain.
func (r *Record) Freeable() bool {
	return r.Status >= stackapi.Closed
}
