package dump

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalHeaderMagicAndVersion(t *testing.T) {
	h := GlobalHeader(65535, LinkTypeRaw)
	require.Len(t, h, 24)
	assert.EqualValues(t, magic, binary.LittleEndian.Uint32(h[0:]))
	assert.EqualValues(t, versionMajor, binary.LittleEndian.Uint16(h[4:]))
	assert.EqualValues(t, versionMinor, binary.LittleEndian.Uint16(h[6:]))
	assert.EqualValues(t, LinkTypeRaw, binary.LittleEndian.Uint32(h[20:]))
}

func TestAppendAccumulatesAndFlushReturnsEverything(t *testing.T) {
	b := NewBuffer(65535, LinkTypeRaw)
	payload := make([]byte, 100)
	toFlush, must := b.Append(payload, time.Unix(1000, 0))
	assert.False(t, must)
	assert.Nil(t, toFlush)
	assert.Equal(t, 24+16+100, b.Used())

	out := b.Flush()
	assert.Len(t, out, 24+16+100)
	assert.Equal(t, 0, b.Used())
}

func TestOverflowTriggersFlushBeforeAppending(t *testing.T) {
	b := NewBuffer(65535, LinkTypeRaw)
	payload := make([]byte, 1500)
	perRecord := 16 + len(payload)
	fits := (BufferSize - 24) / perRecord

	for i := 0; i < fits; i++ {
		_, must := b.Append(payload, time.Unix(int64(i), 0))
		assert.False(t, must)
	}
	usedBeforeOverflow := b.Used()
	require.Greater(t, usedBeforeOverflow, 0)

	toFlush, must := b.Append(payload, time.Unix(9999, 0))
	assert.True(t, must)
	assert.Len(t, toFlush, usedBeforeOverflow)
	assert.Equal(t, 0, b.Used(), "buffer must reset after an overflow-triggered flush")
}

func TestShouldTimeFlush(t *testing.T) {
	b := NewBuffer(65535, LinkTypeRaw)
	assert.False(t, b.ShouldTimeFlush(10_000), "empty buffer never needs a time-based flush")

	b.Append([]byte("x"), time.Unix(0, 0))
	b.MarkFlushed(1000)
	assert.False(t, b.ShouldTimeFlush(1500))
	assert.True(t, b.ShouldTimeFlush(2001))
}
