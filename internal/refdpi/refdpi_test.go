package refdpi

import (
	"net"
	"testing"
	"time"

	"github.com/pcapdroid/corecap/internal/dpiapi"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifiesDNSResponseAndExtractsFields(t *testing.T) {
	m := new(dns.Msg)
	m.SetQuestion("example.com.", dns.TypeA)
	m.Response = true
	m.Answer = append(m.Answer, &dns.A{
		Hdr: dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeA, Class: dns.ClassINET},
		A:   net.ParseIP("93.184.216.34"),
	})
	packed, err := m.Pack()
	require.NoError(t, err)

	mod := New()
	fl, err := mod.NewFlow()
	require.NoError(t, err)

	cls := mod.ProcessPacket(fl, packed, time.Now(), 1, 2)
	assert.Equal(t, dpiapi.ProtoDNS, cls.Master)
	assert.False(t, mod.ExtraDissectionPossible(fl))

	fields, ok := mod.DNSFields(fl)
	require.True(t, ok)
	assert.Equal(t, "example.com.", fields.HostServerName)
	assert.True(t, fields.HasA)
}

func TestClassifiesHTTPRequestHost(t *testing.T) {
	req := []byte("GET /index.html HTTP/1.1\r\nHost: www.example.com\r\nUser-Agent: test\r\n\r\n")
	mod := New()
	fl, _ := mod.NewFlow()

	cls := mod.ProcessPacket(fl, req, time.Now(), 1, 2)
	assert.Equal(t, dpiapi.ProtoHTTP, cls.Master)

	fields, ok := mod.HTTPFields(fl)
	require.True(t, ok)
	assert.Equal(t, "www.example.com", fields.HostServerName)
}

func TestUnrecognizedPayloadStaysUnknownAndGivesUpToUnknown(t *testing.T) {
	mod := New()
	fl, _ := mod.NewFlow()

	cls := mod.ProcessPacket(fl, []byte{0xde, 0xad, 0xbe, 0xef}, time.Now(), 1, 2)
	assert.Equal(t, dpiapi.Unknown, cls.Master)
	assert.Equal(t, dpiapi.Unknown, mod.GiveUp(fl))
}

func TestProcessPacketIsStickyOnceClassified(t *testing.T) {
	req := []byte("GET / HTTP/1.1\r\nHost: a.example\r\n\r\n")
	mod := New()
	fl, _ := mod.NewFlow()

	mod.ProcessPacket(fl, req, time.Now(), 1, 2)
	// A second, unrelated payload must not reclassify the flow.
	cls := mod.ProcessPacket(fl, []byte{0xde, 0xad}, time.Now(), 1, 2)
	assert.Equal(t, dpiapi.ProtoHTTP, cls.Master)
}
