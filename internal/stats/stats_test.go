package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestShouldEmitRequiresBothDirtyAndElapsed(t *testing.T) {
	c := &Capture{}
	assert.False(t, c.ShouldEmit(1000, false), "not dirty: no emission")

	c.AccountPacket(true, 100)
	assert.False(t, c.ShouldEmit(100, false), "dirty but not enough elapsed time")
	assert.True(t, c.ShouldEmit(1000, false))
}

func TestDumpNowForcesEmissionRegardlessOfDirtyOrElapsed(t *testing.T) {
	c := &Capture{}
	assert.True(t, c.ShouldEmit(0, true))
}

func TestMarkEmittedClearsDirty(t *testing.T) {
	c := &Capture{}
	c.AccountPacket(true, 10)
	c.MarkEmitted(500)
	assert.False(t, c.Dirty())
	assert.False(t, c.ShouldEmit(501, false))
}

func TestAggregatesMatchAccountedCounters(t *testing.T) {
	c := &Capture{}
	c.AccountPacket(true, 100)
	c.AccountPacket(true, 50)
	c.AccountPacket(false, 30)

	assert.Equal(t, 2, c.SentPkts)
	assert.EqualValues(t, 150, c.SentBytes)
	assert.Equal(t, 1, c.RcvdPkts)
	assert.EqualValues(t, 30, c.RcvdBytes)
}
