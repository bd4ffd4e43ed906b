// Package refdpi is a minimal reference dpiapi.Module: a real DPI
// library is an external collaborator (spec.md §1), but a small,
// honest implementation lets the capture engine run stand-alone against
// plain DNS/HTTP/TLS traffic without a production DPI library linked in.
// Grounded in the teacher's own use of github.com/miekg/dns for message
// parsing (pkg/client/rootd/dns/server.go).
package refdpi

import (
	"bytes"
	"time"

	"github.com/pcapdroid/corecap/internal/dpiapi"

	"github.com/miekg/dns"
)

// flow accumulates the single classification this reference module
// manages to extract; unlike a real DPI library it never asks for more
// packets once it has guessed (ExtraDissectionPossible always false).
type flow struct {
	classification dpiapi.Classification
	dns            dpiapi.DNSFields
	dnsOK          bool
	http           dpiapi.HTTPFields
	httpOK         bool
	tls            dpiapi.TLSFields
	tlsOK          bool
}

// Module is a stateless dpiapi.Module; all per-connection state lives on
// the Flow values it hands out.
type Module struct{}

// New returns a ready-to-use reference DPI module.
func New() *Module { return &Module{} }

func (Module) NewFlow() (dpiapi.Flow, error) {
	return &flow{}, nil
}

// ProcessPacket classifies a single L4 payload on first sight: DNS
// messages are unpacked with miekg/dns, HTTP requests are recognized by
// their request line, and TLS ClientHellos by their fixed record header.
func (Module) ProcessPacket(f dpiapi.Flow, payload []byte, ts time.Time, srcID, dstID int) dpiapi.Classification {
	fl := f.(*flow)
	if fl.classification.Master != dpiapi.Unknown {
		return fl.classification // already classified, nothing more to learn
	}

	if msg := tryParseDNS(payload); msg != nil {
		fl.classification = dpiapi.Classification{App: dpiapi.ProtoDNS, Master: dpiapi.ProtoDNS}
		fl.dns, fl.dnsOK = extractDNSFields(msg)
		return fl.classification
	}
	if host, ok := tryParseHTTPHost(payload); ok {
		fl.classification = dpiapi.Classification{App: dpiapi.ProtoHTTP, Master: dpiapi.ProtoHTTP}
		fl.http, fl.httpOK = dpiapi.HTTPFields{HostServerName: host}, true
		return fl.classification
	}
	if sni, ok := tryParseTLSSNI(payload); ok {
		fl.classification = dpiapi.Classification{App: dpiapi.ProtoTLS, Master: dpiapi.ProtoTLS}
		fl.tls, fl.tlsOK = dpiapi.TLSFields{ClientRequestedServerName: sni}, true
		return fl.classification
	}
	return fl.classification
}

func (Module) GiveUp(f dpiapi.Flow) dpiapi.Proto {
	return f.(*flow).classification.App
}

// ExtraDissectionPossible is always false: this reference module makes
// its one classification attempt per packet and never asks for more.
func (Module) ExtraDissectionPossible(f dpiapi.Flow) bool {
	return false
}

func (Module) DNSFields(f dpiapi.Flow) (dpiapi.DNSFields, bool) {
	fl := f.(*flow)
	return fl.dns, fl.dnsOK
}

func (Module) HTTPFields(f dpiapi.Flow) (dpiapi.HTTPFields, bool) {
	fl := f.(*flow)
	return fl.http, fl.httpOK
}

func (Module) TLSFields(f dpiapi.Flow) (dpiapi.TLSFields, bool) {
	fl := f.(*flow)
	return fl.tls, fl.tlsOK
}

func (Module) FreeFlow(f dpiapi.Flow) {}

func (Module) ProtoName(p dpiapi.Proto) string {
	return p.String()
}

func tryParseDNS(payload []byte) *dns.Msg {
	if len(payload) < 12 {
		return nil
	}
	msg := new(dns.Msg)
	if err := msg.Unpack(payload); err != nil {
		return nil
	}
	if len(msg.Question) == 0 {
		return nil
	}
	return msg
}

func extractDNSFields(msg *dns.Msg) (dpiapi.DNSFields, bool) {
	f := dpiapi.DNSFields{HostServerName: msg.Question[0].Name}
	for _, rr := range msg.Answer {
		switch rec := rr.(type) {
		case *dns.A:
			f.HasA = true
			copy(f.AddrA[:], rec.A.To4())
		case *dns.AAAA:
			f.HasAAAA = true
			copy(f.AddrAAAA[:], rec.AAAA.To16())
		}
	}
	return f, true
}

var httpMethods = [][]byte{
	[]byte("GET "), []byte("POST "), []byte("HEAD "), []byte("PUT "), []byte("OPTIONS "),
}

// tryParseHTTPHost recognizes a plaintext HTTP/1.x request by its first
// line and extracts the Host header.
func tryParseHTTPHost(payload []byte) (string, bool) {
	matched := false
	for _, m := range httpMethods {
		if bytes.HasPrefix(payload, m) {
			matched = true
			break
		}
	}
	if !matched {
		return "", false
	}
	const hostHeader = "\r\nHost: "
	idx := bytes.Index(payload, []byte(hostHeader))
	if idx < 0 {
		return "", false
	}
	rest := payload[idx+len(hostHeader):]
	end := bytes.IndexByte(rest, '\r')
	if end < 0 {
		return "", false
	}
	return string(rest[:end]), true
}

// tryParseTLSSNI extracts the server_name extension from a TLS
// ClientHello, identified by the fixed record header (handshake content
// type 0x16, TLS 1.0+ version) and a minimal hand-rolled walk of the
// extension list.
func tryParseTLSSNI(payload []byte) (string, bool) {
	if len(payload) < 5 || payload[0] != 0x16 || payload[1] != 0x03 {
		return "", false
	}
	// record header(5) + handshake header(4) + client version(2) + random(32)
	pos := 5 + 4 + 2 + 32
	if len(payload) < pos+1 {
		return "", false
	}
	sessIDLen := int(payload[pos])
	pos += 1 + sessIDLen
	if len(payload) < pos+2 {
		return "", false
	}
	cipherSuitesLen := int(payload[pos])<<8 | int(payload[pos+1])
	pos += 2 + cipherSuitesLen
	if len(payload) < pos+1 {
		return "", false
	}
	compMethodsLen := int(payload[pos])
	pos += 1 + compMethodsLen
	if len(payload) < pos+2 {
		return "", false
	}
	extsLen := int(payload[pos])<<8 | int(payload[pos+1])
	pos += 2
	end := pos + extsLen
	if end > len(payload) {
		return "", false
	}
	for pos+4 <= end {
		extType := int(payload[pos])<<8 | int(payload[pos+1])
		extLen := int(payload[pos+2])<<8 | int(payload[pos+3])
		pos += 4
		if pos+extLen > end {
			return "", false
		}
		if extType == 0 { // server_name
			if name, ok := parseSNIExtension(payload[pos : pos+extLen]); ok {
				return name, true
			}
		}
		pos += extLen
	}
	return "", false
}

func parseSNIExtension(ext []byte) (string, bool) {
	if len(ext) < 5 {
		return "", false
	}
	nameLen := int(ext[3])<<8 | int(ext[4])
	if len(ext) < 5+nameLen {
		return "", false
	}
	return string(ext[5 : 5+nameLen]), true
}
