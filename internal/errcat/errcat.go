// Package errcat categorizes the errors the packet loop can encounter so
// callers can tell a policy block from a stack error from a fatal tun
// teardown without string-matching (spec.md §7). Adapted from the
// teacher's pkg/client/errcat, whose category set was a CLI-facing
// (User/Config/OtherCLI) taxonomy; here the categories are the ones
// spec.md §7 actually distinguishes.
package errcat

import (
	"errors"
	"fmt"
)

// Category classifies an error for the packet loop's decision of whether
// to continue, drop a connection, or stop.
type Category int

const (
	// OK is the zero value: no error.
	OK Category = iota
	// Parse is a malformed/non-IP packet: log and discard, keep running.
	Parse
	// PolicyBlock is a DNS Policy denial: not a failure, no record is made.
	PolicyBlock
	// Alloc is a resource allocation failure (record, DPI flow/ids, PCAP
	// buffer): reject the connection, or stop if it happens at startup.
	Alloc
	// Forward is a stack forwarding failure: drop the connection, keep
	// running.
	Forward
	// TunShortWrite is any tun write failure other than ENOBUFS/EIO:
	// fatal, stop the loop.
	TunShortWrite
	// TunENOBUFS means the stack will tear the affected connection down;
	// the loop itself keeps running.
	TunENOBUFS
	// TunEIO means the tun device closed; the loop must stop.
	TunEIO
	// Unknown is any other error.
	Unknown
)

type categorized struct {
	error
	category Category
}

// New wraps err (or converts a string) into a categorized error of
// category c. Returns nil for a nil error.
func (c Category) New(err interface{}) error {
	switch e := err.(type) {
	case nil:
		return nil
	case error:
		return &categorized{error: e, category: c}
	case string:
		return &categorized{error: errors.New(e), category: c}
	default:
		return &categorized{error: fmt.Errorf("%v", e), category: c}
	}
}

// Newf creates a categorized error from a format string, like fmt.Errorf.
func (c Category) Newf(format string, a ...interface{}) error {
	return &categorized{error: fmt.Errorf(format, a...), category: c}
}

// Unwrap exposes the underlying error to errors.Is/As.
func (ce *categorized) Unwrap() error {
	return ce.error
}

// GetCategory returns err's category, OK for a nil error, and Unknown for
// an error that was never categorized.
func GetCategory(err error) Category {
	if err == nil {
		return OK
	}
	for {
		var ce *categorized
		if errors.As(err, &ce) {
			return ce.category
		}
		unwrapped := errors.Unwrap(err)
		if unwrapped == nil {
			return Unknown
		}
		err = unwrapped
	}
}
