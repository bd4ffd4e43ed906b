package main

import (
	"github.com/pcapdroid/corecap/internal/tuple"
	"github.com/pcapdroid/corecap/internal/uidapi"
)

// unresolvedUID is a uidapi.Resolver stub: the real resolver reads
// /proc/net or a platform equivalent to map a tuple to its owning
// application, which is an external collaborator out of this module's
// scope (spec.md §6 Downward interfaces). It always reports unknown.
type unresolvedUID struct{}

func (unresolvedUID) Lookup(t tuple.Tuple) (int, bool) {
	return uidapi.Unknown, false
}
