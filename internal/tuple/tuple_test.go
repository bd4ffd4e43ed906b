package tuple

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcapdroid/corecap/internal/ipproto"
)

func TestV4RoundTrip(t *testing.T) {
	src := net.ParseIP("10.215.173.2")
	dst := net.ParseIP("8.8.8.8")
	tp := New(ipproto.UDP, src, dst, 12345, 53)

	require.True(t, tp.IsIPv4())
	assert.Equal(t, 4, tp.IPVersion())
	assert.True(t, tp.Src().Equal(src))
	assert.True(t, tp.Dst().Equal(dst))
	assert.EqualValues(t, 12345, tp.SrcPort())
	assert.EqualValues(t, 53, tp.DstPort())
	assert.EqualValues(t, ipproto.UDP, tp.Proto())
}

func TestV6RoundTrip(t *testing.T) {
	src := net.ParseIP("2001:db8::1")
	dst := net.ParseIP("2606:4700:4700::1111")
	tp := New(ipproto.TCP, src, dst, 443, 80)

	require.False(t, tp.IsIPv4())
	assert.Equal(t, 6, tp.IPVersion())
	assert.True(t, tp.Src().Equal(src))
	assert.True(t, tp.Dst().Equal(dst))
}

func TestReplySwapsSrcAndDst(t *testing.T) {
	tp := New(ipproto.TCP, net.ParseIP("1.2.3.4"), net.ParseIP("5.6.7.8"), 111, 222)
	r := tp.Reply()
	assert.True(t, r.Src().Equal(tp.Dst()))
	assert.True(t, r.Dst().Equal(tp.Src()))
	assert.Equal(t, tp.SrcPort(), r.DstPort())
	assert.Equal(t, tp.DstPort(), r.SrcPort())
}

func TestUsableAsMapKey(t *testing.T) {
	m := map[Tuple]int{}
	a := New(ipproto.UDP, net.ParseIP("1.1.1.1"), net.ParseIP("2.2.2.2"), 1, 2)
	b := New(ipproto.UDP, net.ParseIP("1.1.1.1"), net.ParseIP("2.2.2.2"), 1, 2)
	m[a] = 1
	assert.Equal(t, 1, m[b])
}
