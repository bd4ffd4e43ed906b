package dnsservers

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeededAddressesRecognized(t *testing.T) {
	s := New()
	for _, a := range []string{"8.8.8.8", "1.1.1.1", "2001:4860:4860::8888", "2606:4700:4700::64"} {
		assert.True(t, s.Contains(net.ParseIP(a)), "expected %s to be a known DNS server", a)
	}
}

func TestUnknownAddressNotRecognized(t *testing.T) {
	s := New()
	assert.False(t, s.Contains(net.ParseIP("93.184.216.34")))
}

func TestExtraSeedIsRecognized(t *testing.T) {
	s := New(net.ParseIP("10.215.173.1"))
	assert.True(t, s.Contains(net.ParseIP("10.215.173.1")))
	assert.False(t, s.Contains(net.ParseIP("10.215.173.2")))
}
