package capture

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestControlStartsRunning(t *testing.T) {
	c := NewControl()
	assert.True(t, c.Running())
	c.Stop()
	assert.False(t, c.Running())
}

func TestTakeDumpFlagsConsumeOnce(t *testing.T) {
	c := NewControl()
	assert.False(t, c.takeDumpCaptureStatsNow())

	c.RequestCaptureStatsDump()
	assert.True(t, c.takeDumpCaptureStatsNow())
	assert.False(t, c.takeDumpCaptureStatsNow(), "flag must clear after being taken")

	c.RequestVPNStatsDump()
	assert.True(t, c.takeDumpVPNStatsNow())
	assert.False(t, c.takeDumpVPNStatsNow())
}

func TestTakeNewDNSServerConsumesStagedValue(t *testing.T) {
	c := NewControl()
	_, ok := c.takeNewDNSServer()
	assert.False(t, ok)

	c.SetDNSServer(net.ParseIP("1.1.1.1"))
	ip, ok := c.takeNewDNSServer()
	assert.True(t, ok)
	assert.True(t, ip.Equal(net.ParseIP("1.1.1.1")))

	_, ok = c.takeNewDNSServer()
	assert.False(t, ok, "staged value must be consumed exactly once")
}
