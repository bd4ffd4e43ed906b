package conn

import "github.com/pcapdroid/corecap/internal/tuple"

// Table is the arena owning every live Record for one capture session. It
// hands out stable RecordIDs and assigns the gap-free incr_id sequence to
// registered (non-ignored) connections (spec.md §3 invariant).
type Table struct {
	records  map[RecordID]*Record
	nextID   RecordID
	nextIncr int
}

// NewTable returns an empty arena.
func NewTable() *Table {
	return &Table{records: make(map[RecordID]*Record)}
}

// Alloc creates and stores a new Record for t, assigning it an incr_id
// unless ignored is true.
func (tb *Table) Alloc(t tuple.Tuple, now int64, uid int, ignored bool, srcID, dstID int) *Record {
	id := tb.nextID
	tb.nextID++
	r := NewRecord(id, t, now, uid, ignored, srcID, dstID)
	if !ignored {
		r.IncrID = tb.nextIncr
		tb.nextIncr++
	}
	tb.records[id] = r
	return r
}

// Get returns the record for id, if still live.
func (tb *Table) Get(id RecordID) (*Record, bool) {
	r, ok := tb.records[id]
	return r, ok
}

// Free removes id from the arena. It is the caller's responsibility to
// have already finished DPI and drained any pending notification.
func (tb *Table) Free(id RecordID) {
	delete(tb.records, id)
}

// Len returns the number of live records.
func (tb *Table) Len() int {
	return len(tb.records)
}

// All returns every live record. Used for shutdown drain and tests.
func (tb *Table) All() []*Record {
	out := make([]*Record, 0, len(tb.records))
	for _, r := range tb.records {
		out = append(out, r)
	}
	return out
}
