package main

import "os"

// fdTun wraps an already-open tun file descriptor (handed down by the
// platform integration, e.g. Android's VpnService.establish()) to satisfy
// capture.Tun. Opening/configuring the tun device itself is a platform
// concern out of this module's scope (spec.md §1).
type fdTun struct {
	f *os.File
}

func newFDTun(fd int) *fdTun {
	return &fdTun{f: os.NewFile(uintptr(fd), "tun")}
}

func (t *fdTun) Fd() int { return int(t.f.Fd()) }

func (t *fdTun) Read(buf []byte) (int, error) { return t.f.Read(buf) }

func (t *fdTun) Write(buf []byte) (int, error) { return t.f.Write(buf) }
