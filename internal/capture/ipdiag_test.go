package capture

import (
	"context"
	"testing"
)

// logFragmentation only logs; these tests exercise it purely for panic-
// freedom across header shapes, since its output isn't observable
// through the package API.
func TestLogFragmentationHandlesShortAndMalformedInput(t *testing.T) {
	logFragmentation(context.Background(), nil)
	logFragmentation(context.Background(), []byte{0x45})
	logFragmentation(context.Background(), make([]byte, 20)) // version nibble 0
}

func TestLogFragmentationHandlesOrdinaryIPv4Header(t *testing.T) {
	hdr := make([]byte, 20)
	hdr[0] = 0x45 // version 4, IHL 5
	hdr[2], hdr[3] = 0, 20 // total length
	logFragmentation(context.Background(), hdr)
}
