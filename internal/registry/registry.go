// Package registry implements the Connection Registry (spec.md §4.5): two
// append-only batches of new and updated connections, drained on a timer
// and handed to the host as descriptors.
package registry

import (
	"context"

	"github.com/pcapdroid/corecap/internal/conn"
	"github.com/pcapdroid/corecap/internal/hostapi"
)

// DumpFrequencyMS is the minimum interval between drains (spec.md §4.5,
// CONNECTION_DUMP_UPDATE_FREQUENCY_MS).
const DumpFrequencyMS = 1000

// Registry holds the new/updates batches for one capture session.
type Registry struct {
	table   *conn.Table
	newConn []conn.RecordID
	updated []conn.RecordID
}

// New builds a Registry backed by table.
func New(table *conn.Table) *Registry {
	return &Registry{table: table}
}

// NoteNew appends a freshly accepted connection's record to the new
// batch and marks it pending (spec.md §4.2, Embryonic->Open).
func (r *Registry) NoteNew(id conn.RecordID) {
	rec, ok := r.table.Get(id)
	if !ok || rec.Ignored {
		return
	}
	r.newConn = append(r.newConn, id)
	rec.PendingNotification = true
}

// NoteUpdated appends rec to the updates batch iff it isn't already
// pending and isn't ignored (spec.md §4.2, Open->Open and Open->Closed).
func (r *Registry) NoteUpdated(id conn.RecordID) {
	rec, ok := r.table.Get(id)
	if !ok || rec.Ignored || rec.PendingNotification {
		return
	}
	r.updated = append(r.updated, id)
	rec.PendingNotification = true
}

// Empty reports whether both batches are empty.
func (r *Registry) Empty() bool {
	return len(r.newConn) == 0 && len(r.updated) == 0
}

// Drain builds descriptors for both batches, hands them to host as one
// atomic call, clears pending_notification on every entry, and frees
// records whose status has reached Closed (spec.md §4.5). Records still
// Open are retained for a future drain.
func (r *Registry) Drain(ctx context.Context, host hostapi.Host) error {
	if r.Empty() {
		return nil
	}

	newDescs := r.describe(r.newConn)
	updDescs := r.describe(r.updated)

	for _, id := range r.newConn {
		if rec, ok := r.table.Get(id); ok {
			rec.PendingNotification = false
		}
	}
	for _, id := range r.updated {
		if rec, ok := r.table.Get(id); ok {
			rec.PendingNotification = false
		}
	}

	if err := host.SendConnectionsDump(ctx, newDescs, updDescs); err != nil {
		return err
	}

	r.freeClosed(r.newConn)
	r.freeClosed(r.updated)
	r.newConn = nil
	r.updated = nil
	return nil
}

// ShutdownDrain frees every record regardless of status (spec.md §4.5,
// Shutdown drain), after handing a final descriptor batch to the host.
func (r *Registry) ShutdownDrain(ctx context.Context, host hostapi.Host) error {
	newDescs := r.describe(r.newConn)
	updDescs := r.describe(r.updated)
	var err error
	if len(newDescs) > 0 || len(updDescs) > 0 {
		err = host.SendConnectionsDump(ctx, newDescs, updDescs)
	}
	for _, id := range r.table.All() {
		r.table.Free(id.ID)
	}
	r.newConn = nil
	r.updated = nil
	return err
}

func (r *Registry) freeClosed(ids []conn.RecordID) {
	for _, id := range ids {
		rec, ok := r.table.Get(id)
		if ok && rec.Freeable() {
			r.table.Free(id)
		}
	}
}

func (r *Registry) describe(ids []conn.RecordID) []hostapi.ConnDescriptor {
	out := make([]hostapi.ConnDescriptor, 0, len(ids))
	for _, id := range ids {
		rec, ok := r.table.Get(id)
		if !ok {
			continue
		}
		out = append(out, toDescriptor(rec))
	}
	return out
}

func toDescriptor(rec *conn.Record) hostapi.ConnDescriptor {
	l7 := "UNKNOWN"
	if rec.L7Proto.Master != 0 {
		l7 = rec.L7Proto.Master.String()
	}
	return hostapi.ConnDescriptor{
		SrcIP:     rec.Tuple.Src().String(),
		DstIP:     rec.Tuple.Dst().String(),
		Info:      rec.Info,
		URL:       rec.URL,
		L7Proto:   l7,
		Status:    int(rec.Status),
		IPVer:     rec.Tuple.IPVersion(),
		IPProto:   int(rec.Tuple.Proto()),
		SrcPort:   int(rec.Tuple.SrcPort()),
		DstPort:   int(rec.Tuple.DstPort()),
		FirstSeen: rec.FirstSeen,
		LastSeen:  rec.LastSeen,
		SentBytes: int64(rec.SentBytes),
		RcvdBytes: int64(rec.RcvdBytes),
		SentPkts:  int(rec.SentPkts),
		RcvdPkts:  int(rec.RcvdPkts),
		UID:       rec.UID,
		IncrID:    rec.IncrID,
	}
}
