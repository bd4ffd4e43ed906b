package dnspolicy

import (
	"encoding/binary"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcapdroid/corecap/internal/ipproto"
)

func dnsQuery() []byte {
	b := make([]byte, 12)
	binary.BigEndian.PutUint16(b[0:], 0x1234) // id
	binary.BigEndian.PutUint16(b[2:], 0x0100) // flags: QR=0 (query), RD=1
	return b
}

func dnsResponse() []byte {
	b := dnsQuery()
	binary.BigEndian.PutUint16(b[2:], 0x8180) // QR=1
	return b
}

func TestInternalDNSAllowedAndDNATed(t *testing.T) {
	p := New(net.ParseIP("10.215.173.1"), nil, net.ParseIP("8.8.8.8"))
	decision, dnat := p.Evaluate(ipproto.UDP, net.ParseIP("10.215.173.1"), 53, dnsQuery())

	assert.Equal(t, Allow, decision)
	assert.True(t, dnat)
	assert.Equal(t, 1, p.DNSRequests)
}

func TestTCPToKnownResolverBlocked(t *testing.T) {
	p := New(net.ParseIP("10.215.173.1"), nil, net.ParseIP("8.8.8.8"))
	// Any TCP connection to a known resolver is denied whatever the port:
	// here TCP to 1.1.1.1:53; TCP to 1.1.1.1:443 (DoH) takes the same path.
	decision, dnat := p.Evaluate(ipproto.TCP, net.ParseIP("1.1.1.1"), 53, nil)
	assert.Equal(t, Deny, decision)
	assert.False(t, dnat)
	assert.Equal(t, 0, p.DNSRequests)
}

func TestUDPNon53ToKnownResolverBlocked(t *testing.T) {
	p := New(net.ParseIP("10.215.173.1"), nil, net.ParseIP("8.8.8.8"))
	decision, _ := p.Evaluate(ipproto.UDP, net.ParseIP("1.1.1.1"), 8053, dnsQuery())
	assert.Equal(t, Deny, decision)
}

func TestUnrelatedTrafficAllowed(t *testing.T) {
	p := New(net.ParseIP("10.215.173.1"), nil, net.ParseIP("8.8.8.8"))
	decision, dnat := p.Evaluate(ipproto.TCP, net.ParseIP("93.184.216.34"), 443, nil)
	assert.Equal(t, Allow, decision)
	assert.False(t, dnat)
}

func TestDNSResponseIsNotCountedAsRequest(t *testing.T) {
	p := New(net.ParseIP("10.215.173.1"), nil, net.ParseIP("8.8.8.8"))
	// A response arriving as dst port 53 (unusual, but the header check
	// must still reject it as a query).
	decision, _ := p.Evaluate(ipproto.UDP, net.ParseIP("10.215.173.1"), 53, dnsResponse())
	assert.Equal(t, Deny, decision)
	assert.Equal(t, 0, p.DNSRequests)
}

func TestMalformedDNSHeaderRejected(t *testing.T) {
	p := New(net.ParseIP("10.215.173.1"), nil, net.ParseIP("8.8.8.8"))
	decision, _ := p.Evaluate(ipproto.UDP, net.ParseIP("10.215.173.1"), 53, []byte{1, 2, 3})
	assert.Equal(t, Deny, decision)
}

func TestIdempotent(t *testing.T) {
	p := New(net.ParseIP("10.215.173.1"), nil, net.ParseIP("8.8.8.8"))
	d1, n1 := p.Evaluate(ipproto.TCP, net.ParseIP("1.1.1.1"), 53, nil)
	d2, n2 := p.Evaluate(ipproto.TCP, net.ParseIP("1.1.1.1"), 53, nil)
	assert.Equal(t, d1, d2)
	assert.Equal(t, n1, n2)
}

func TestIsIgnoredOnlyForNonDNSPortToVpnDNS(t *testing.T) {
	p := New(net.ParseIP("10.215.173.1"), nil, nil)
	assert.True(t, p.IsIgnored(net.ParseIP("10.215.173.1"), 8080))
	assert.False(t, p.IsIgnored(net.ParseIP("10.215.173.1"), 53))
	assert.False(t, p.IsIgnored(net.ParseIP("1.1.1.1"), 8080))
}

func TestSetUpstreamInstallsDNAT(t *testing.T) {
	p := New(net.ParseIP("10.215.173.1"), nil, net.ParseIP("8.8.8.8"))
	var gotIP net.IP
	var gotPort uint16
	fake := fakeDNATStack{set: func(ip net.IP, port uint16, ver int) error {
		gotIP, gotPort = ip, port
		return nil
	}}
	require.NoError(t, p.SetUpstream(fake, net.ParseIP("1.1.1.1")))
	assert.True(t, gotIP.Equal(net.ParseIP("1.1.1.1")))
	assert.EqualValues(t, 53, gotPort)
	assert.True(t, p.DNSServer.Equal(net.ParseIP("1.1.1.1")))
}

type fakeDNATStack struct {
	set func(ip net.IP, port uint16, ipVer int) error
}

func (f fakeDNATStack) SetDNAT(ip net.IP, port uint16, ipVer int) error {
	return f.set(ip, port, ipVer)
}
