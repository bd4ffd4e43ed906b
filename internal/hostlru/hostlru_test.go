package hostlru

import (
	"net"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAndFind(t *testing.T) {
	l := New()
	ip := net.ParseIP("93.184.216.34")
	l.Add(ip, "example.com")

	name, ok := l.Find(ip)
	require.True(t, ok)
	assert.Equal(t, "example.com", name)
	assert.Equal(t, 1, l.Size())
}

func TestFindMiss(t *testing.T) {
	l := New()
	_, ok := l.Find(net.ParseIP("1.1.1.1"))
	assert.False(t, ok)
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	l := New()
	for i := 0; i < Capacity; i++ {
		l.Add(net.ParseIP("10.0.0."+strconv.Itoa(i%250+1)), "host"+strconv.Itoa(i))
	}
	require.Equal(t, Capacity, l.Size())

	first := net.ParseIP("10.0.0.1")
	// Promote the first entry so it is no longer the least-recently-used.
	_, ok := l.Find(first)
	require.True(t, ok)

	// Insert one more, forcing an eviction of whatever is now least-recent.
	l.Add(net.ParseIP("10.0.1.1"), "overflow")
	assert.Equal(t, Capacity, l.Size())

	_, stillThere := l.Find(first)
	assert.True(t, stillThere, "promoted entry should survive the eviction that follows it")
}

func TestNameTruncatedAt255Bytes(t *testing.T) {
	l := New()
	longName := strings.Repeat("a", 300)
	l.Add(net.ParseIP("2.2.2.2"), longName)

	name, ok := l.Find(net.ParseIP("2.2.2.2"))
	require.True(t, ok)
	assert.Len(t, name, maxNameLen)
}
