package conn

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcapdroid/corecap/internal/ipproto"
	"github.com/pcapdroid/corecap/internal/stackapi"
	"github.com/pcapdroid/corecap/internal/tuple"
)

func testTuple() tuple.Tuple {
	return tuple.New(ipproto.UDP, net.ParseIP("10.0.0.1"), net.ParseIP("8.8.8.8"), 1234, 53)
}

func TestIncrIDAssignedOnlyToRegistered(t *testing.T) {
	tb := NewTable()
	a := tb.Alloc(testTuple(), 100, -1, false, 1, 2)
	b := tb.Alloc(testTuple(), 100, -1, true /* ignored */, 3, 4)
	c := tb.Alloc(testTuple(), 100, -1, false, 5, 6)

	assert.Equal(t, 0, a.IncrID)
	assert.Equal(t, IgnoredIncrID, b.IncrID)
	assert.Equal(t, 1, c.IncrID)
}

func TestAccountPacketKeepsFirstSeenBeforeLastSeen(t *testing.T) {
	r := NewRecord(1, testTuple(), 100, -1, false, 0, 0)
	r.AccountPacket(true, 40, 105)
	assert.LessOrEqual(t, r.FirstSeen, r.LastSeen)
	assert.EqualValues(t, 1, r.SentPkts)
	assert.EqualValues(t, 40, r.SentBytes)
}

func TestDirectionIDsSwapOnInbound(t *testing.T) {
	r := NewRecord(1, testTuple(), 100, -1, false, 11, 22)
	src, dst := r.DirectionIDs(true)
	assert.Equal(t, 11, src)
	assert.Equal(t, 22, dst)

	src, dst = r.DirectionIDs(false)
	assert.Equal(t, 22, src)
	assert.Equal(t, 11, dst)
}

func TestFreeableRequiresClosedOrLater(t *testing.T) {
	r := NewRecord(1, testTuple(), 100, -1, false, 0, 0)
	require.False(t, r.Freeable())
	r.Close()
	assert.True(t, r.Freeable())
	assert.GreaterOrEqual(t, int(stackapi.Freed), int(stackapi.Closed))
}

func TestTableFreeRemovesRecord(t *testing.T) {
	tb := NewTable()
	r := tb.Alloc(testTuple(), 100, -1, false, 0, 0)
	require.Equal(t, 1, tb.Len())
	tb.Free(r.ID)
	assert.Equal(t, 0, tb.Len())
	_, ok := tb.Get(r.ID)
	assert.False(t, ok)
}
