// Package dpi implements the DPI Driver (spec.md §4.3): it feeds packets
// from a Connection Record into the DPI library, decides when detection
// is complete, extracts DNS/HTTP/TLS metadata, and updates the Host LRU.
package dpi

import (
	"net"
	"time"

	"github.com/pcapdroid/corecap/internal/conn"
	"github.com/pcapdroid/corecap/internal/dpiapi"
	"github.com/pcapdroid/corecap/internal/hostlru"
)

// MaxPackets is the per-connection packet budget fed into the DPI library
// before the driver gives up and finalizes (spec.md §4.3).
const MaxPackets = 12

// Driver feeds packets into a dpiapi.Module on behalf of Connection
// Records and finalizes classification, maintaining the Host LRU.
type Driver struct {
	mod dpiapi.Module
	lru *hostlru.LRU
}

// NewDriver returns a Driver bound to a DPI module and the Host LRU it
// should populate on DNS finalization.
func NewDriver(mod dpiapi.Module, lru *hostlru.LRU) *Driver {
	return &Driver{mod: mod, lru: lru}
}

// LookupHost returns the hostname a prior DNS-classified flow learned for
// ip, if any, so a newly opened connection to that address can carry the
// name forward (spec.md §4.2 Embryonic->Open step (b), §1 "carry
// DNS-learned names onto subsequent flows").
func (d *Driver) LookupHost(ip net.IP) (string, bool) {
	return d.lru.Find(ip)
}

// Destroy releases the Host LRU. Called once, on capture shutdown
// (spec.md §5(d), §8 "no allocated record, DPI flow, or LRU entry
// remains").
func (d *Driver) Destroy() {
	d.lru.Destroy()
}

// Feed processes one packet's L4 payload for r's DPI flow. outbound is
// true for a tun-egress packet. Finalizes and releases the DPI flow once
// the app protocol is known and the library has no more useful dissection
// to do, or once the packet budget is exhausted.
func (d *Driver) Feed(r *conn.Record, payload []byte, outbound bool) {
	if r.DPIState == conn.DPIFinished {
		return
	}
	if r.DPIFlow() == nil {
		f, err := d.mod.NewFlow()
		if err != nil {
			// Allocation failure: give up on DPI for this connection but
			// keep it open (spec.md §7, Allocation failure).
			r.FinishDPI(d.mod)
			return
		}
		r.SetDPIFlow(f)
	}

	srcID, dstID := r.DirectionIDs(outbound)
	r.L7Proto = d.mod.ProcessPacket(r.DPIFlow(), payload, time.Now(), srcID, dstID)
	r.DPIPkts++

	appKnown := r.L7Proto.App != dpiapi.Unknown
	extra := d.mod.ExtraDissectionPossible(r.DPIFlow())
	if (appKnown && !extra) || r.DPIPkts >= MaxPackets {
		d.finalize(r)
	}
}

// Finalize forces finalization regardless of budget, used when a
// connection is closed with DPI still active (spec.md §4.2, Open->Closed).
func (d *Driver) Finalize(r *conn.Record) {
	if r.DPIState == conn.DPIFinished {
		return
	}
	d.finalize(r)
}

func (d *Driver) finalize(r *conn.Record) {
	if r.L7Proto.App == dpiapi.Unknown {
		r.L7Proto.App = d.mod.GiveUp(r.DPIFlow())
	}
	if r.L7Proto.Master == dpiapi.Unknown {
		r.L7Proto.Master = r.L7Proto.App
	}

	switch r.L7Proto.Master {
	case dpiapi.ProtoDNS:
		d.finalizeDNS(r)
	case dpiapi.ProtoHTTP:
		if f, ok := d.mod.HTTPFields(r.DPIFlow()); ok {
			r.Info = truncate(f.HostServerName, conn.MaxInfoLen)
			r.URL = truncate(f.URL, conn.MaxURLLen)
		}
	case dpiapi.ProtoTLS:
		if f, ok := d.mod.TLSFields(r.DPIFlow()); ok {
			r.Info = truncate(f.ClientRequestedServerName, conn.MaxInfoLen)
		}
	}

	r.FinishDPI(d.mod)
}

func (d *Driver) finalizeDNS(r *conn.Record) {
	f, ok := d.mod.DNSFields(r.DPIFlow())
	if !ok {
		return
	}
	r.Info = truncate(f.HostServerName, conn.MaxInfoLen)

	if f.HostServerName == "" || !containsDot(f.HostServerName) {
		return
	}
	if f.HasA {
		d.lru.Add(ipFromBytes(f.AddrA[:]), f.HostServerName)
	}
	if f.HasAAAA && isGlobalUnicastV6(f.AddrAAAA) {
		d.lru.Add(ipFromBytes(f.AddrAAAA[:]), f.HostServerName)
	}
}

// isGlobalUnicastV6 implements the spec's exact test: top byte & 0xE0 ==
// 0x20 (spec.md §4.3), rather than net.IP.IsGlobalUnicast's broader rules.
func isGlobalUnicastV6(addr [16]byte) bool {
	return addr[0]&0xE0 == 0x20
}

func containsDot(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return true
		}
	}
	return false
}

func ipFromBytes(b []byte) net.IP {
	return net.IP(append([]byte(nil), b...))
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
