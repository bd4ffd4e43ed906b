// Package uidapi declares the interface to the UID resolver: given a
// 5-tuple, it returns the Linux UID of the owning application, or
// UNKNOWN. The resolver's implementation (reading /proc or a platform
// equivalent) is out of scope for this module.
package uidapi

import "github.com/pcapdroid/corecap/internal/tuple"

// Unknown is the sentinel UID used when the owning application cannot be
// determined (spec.md §3, Connection Record `uid`).
const Unknown = -1

// Resolver looks up the application UID that owns a connection.
type Resolver interface {
	Lookup(t tuple.Tuple) (uid int, ok bool)
}
