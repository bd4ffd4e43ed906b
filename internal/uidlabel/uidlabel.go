// Package uidlabel carries the fixed UID-to-name sentinels used when the
// host cannot (or need not) resolve an application name, grounded in
// original_source's vpnproxy.c special-casing of uid 0 and uid 1051.
package uidlabel

const (
	Root    = "ROOT"
	Netd    = "netd"
	Unknown = "???"
)

// NetdUID is the uid of Android's netd DNS resolver process; Label
// reports it under its own Netd name, distinct from Unknown.
const NetdUID = 1051

// Label returns the sentinel name for well-known uids, or ok=false if the
// caller should resolve uid through the normal uidapi.Resolver/host path.
func Label(uid int) (name string, ok bool) {
	switch uid {
	case 0:
		return Root, true
	case NetdUID:
		return Netd, true
	default:
		if uid < 0 {
			return Unknown, true
		}
		return "", false
	}
}
