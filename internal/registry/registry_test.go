package registry

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcapdroid/corecap/internal/conn"
	"github.com/pcapdroid/corecap/internal/hostapi"
	"github.com/pcapdroid/corecap/internal/ipproto"
	"github.com/pcapdroid/corecap/internal/tuple"
)

type fakeHost struct {
	newConns []hostapi.ConnDescriptor
	updated  []hostapi.ConnDescriptor
	calls    int
}

func (f *fakeHost) GetApplicationByUid(uid int) string { return "" }
func (f *fakeHost) Protect(fd int) bool                { return true }
func (f *fakeHost) DumpPcapData(ctx context.Context, data []byte) error { return nil }
func (f *fakeHost) SendConnectionsDump(ctx context.Context, newConns, updated []hostapi.ConnDescriptor) error {
	f.calls++
	f.newConns = newConns
	f.updated = updated
	return nil
}
func (f *fakeHost) SendStatsDump(ctx context.Context, stats hostapi.VPNStats) error { return nil }
func (f *fakeHost) SendServiceStatus(ctx context.Context, status string)            {}

func mkTuple(port uint16) tuple.Tuple {
	return tuple.New(ipproto.TCP, net.ParseIP("10.0.0.1"), net.ParseIP("1.2.3.4"), port, 443)
}

func TestOrderingNewThenUpdate(t *testing.T) {
	tb := conn.NewTable()
	reg := New(tb)
	host := &fakeHost{}

	a := tb.Alloc(mkTuple(1), 0, -1, false, 0, 0)
	b := tb.Alloc(mkTuple(2), 0, -1, false, 0, 0)
	c := tb.Alloc(mkTuple(3), 0, -1, false, 0, 0)
	reg.NoteNew(a.ID)
	reg.NoteNew(b.ID)
	reg.NoteNew(c.ID)

	require.NoError(t, reg.Drain(context.Background(), host))
	assert.Equal(t, 1, host.calls)
	assert.Len(t, host.newConns, 3)
	assert.Empty(t, host.updated)
	assert.Equal(t, 0, a.IncrID)
	assert.Equal(t, 1, b.IncrID)
	assert.Equal(t, 2, c.IncrID)

	// A is modified after being announced: next drain should emit it as
	// an update, not a new connection.
	reg.NoteUpdated(a.ID)
	require.NoError(t, reg.Drain(context.Background(), host))
	assert.Equal(t, 2, host.calls)
	assert.Empty(t, host.newConns)
	assert.Len(t, host.updated, 1)
}

func TestPendingNotificationPreventsDoubleQueueing(t *testing.T) {
	tb := conn.NewTable()
	reg := New(tb)
	a := tb.Alloc(mkTuple(1), 0, -1, false, 0, 0)
	reg.NoteNew(a.ID)
	reg.NoteUpdated(a.ID) // already pending as "new" this cycle: must be a no-op

	host := &fakeHost{}
	require.NoError(t, reg.Drain(context.Background(), host))
	assert.Len(t, host.newConns, 1)
	assert.Empty(t, host.updated)
}

func TestIgnoredConnectionNeverQueued(t *testing.T) {
	tb := conn.NewTable()
	reg := New(tb)
	a := tb.Alloc(mkTuple(1), 0, -1, true /* ignored */, 0, 0)
	reg.NoteNew(a.ID)
	assert.True(t, reg.Empty())
	assert.False(t, a.PendingNotification)
}

func TestDrainFreesClosedRecordsButKeepsOpenOnes(t *testing.T) {
	tb := conn.NewTable()
	reg := New(tb)
	open := tb.Alloc(mkTuple(1), 0, -1, false, 0, 0)
	closed := tb.Alloc(mkTuple(2), 0, -1, false, 0, 0)
	closed.Close()
	reg.NoteNew(open.ID)
	reg.NoteNew(closed.ID)

	host := &fakeHost{}
	require.NoError(t, reg.Drain(context.Background(), host))

	_, stillThere := tb.Get(open.ID)
	assert.True(t, stillThere)
	_, gone := tb.Get(closed.ID)
	assert.False(t, gone)
}

func TestShutdownDrainFreesEverythingIncludingOpen(t *testing.T) {
	tb := conn.NewTable()
	reg := New(tb)
	a := tb.Alloc(mkTuple(1), 0, -1, false, 0, 0)
	b := tb.Alloc(mkTuple(2), 0, -1, false, 0, 0)
	b.Close()
	reg.NoteNew(a.ID)

	host := &fakeHost{}
	require.NoError(t, reg.ShutdownDrain(context.Background(), host))
	assert.Equal(t, 0, tb.Len())
}
