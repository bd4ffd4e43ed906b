// Command vpncap is the process entrypoint: it wires a file-descriptor
// backed tun, a flag-driven config.Source, and a logging host-callback
// sink together and runs the capture loop, in the style of the teacher's
// cmd/ tree (cobra + dgroup + dlog).
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pcapdroid/corecap/internal/capture"
	"github.com/pcapdroid/corecap/internal/config"
	"github.com/pcapdroid/corecap/internal/conn"
	"github.com/pcapdroid/corecap/internal/dnspolicy"
	"github.com/pcapdroid/corecap/internal/dpi"
	"github.com/pcapdroid/corecap/internal/dump"
	"github.com/pcapdroid/corecap/internal/hostlru"
	"github.com/pcapdroid/corecap/internal/nullstack"
	"github.com/pcapdroid/corecap/internal/refdpi"
	"github.com/pcapdroid/corecap/internal/registry"
	"github.com/pcapdroid/corecap/internal/stats"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func main() {
	ctx := makeBaseLogger(context.Background())
	if err := Main(ctx, os.Args[1:]); err != nil {
		dlog.Errorf(ctx, "%+v", err)
		os.Exit(1)
	}
}

// Args are the flags the cmd accepts; they stand in for the host
// preferences a real platform integration would read instead
// (spec.md §6, getXxxPref).
type Args struct {
	TunFD int

	VpnDNSv4  string
	VpnDNSv6  string
	DNSServer string
	IPv6      bool

	SOCKS5Enabled   bool
	SOCKS5ProxyAddr string
	SOCKS5ProxyPort int

	PcapRing          bool
	PcapCollectorAddr string
	PcapCollectorPort int
}

// Main builds the Cobra command tree and executes it against argv.
func Main(ctx context.Context, argv []string) error {
	var args Args
	cmd := &cobra.Command{
		Use:          "vpncap",
		Short:        "on-device packet-capture engine",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), args)
		},
	}
	cmd.Flags().IntVar(&args.TunFD, "tun-fd", -1,
		"file descriptor of an already-open tun device (required)")
	cmd.Flags().StringVar(&args.VpnDNSv4, "vpn-dns", "",
		"IPv4 address of this VPN session's DNS endpoint")
	cmd.Flags().StringVar(&args.VpnDNSv6, "vpn-dns6", "",
		"IPv6 address of this VPN session's DNS endpoint")
	cmd.Flags().StringVar(&args.DNSServer, "dns-server", "",
		"upstream DNS server to DNAT internal DNS traffic toward")
	cmd.Flags().BoolVar(&args.IPv6, "ipv6", false, "enable IPv6 connections")
	cmd.Flags().BoolVar(&args.SOCKS5Enabled, "socks5-enabled", false,
		"redirect the first packet of new TCP flows through a SOCKS5 proxy")
	cmd.Flags().StringVar(&args.SOCKS5ProxyAddr, "socks5-addr", "", "SOCKS5 proxy address")
	cmd.Flags().IntVar(&args.SOCKS5ProxyPort, "socks5-port", 0, "SOCKS5 proxy port")
	cmd.Flags().BoolVar(&args.PcapRing, "pcap-ring", true, "enable the in-memory PCAP ring dump sink")
	cmd.Flags().StringVar(&args.PcapCollectorAddr, "pcap-collector-addr", "",
		"host:port of a libpcap-format UDP collector (empty disables it)")
	cmd.Flags().IntVar(&args.PcapCollectorPort, "pcap-collector-port", 0, "unused, kept for parity with getPcapCollectorPort")

	cmd.SetArgs(argv)
	return cmd.ExecuteContext(ctx)
}

func run(ctx context.Context, args Args) error {
	if args.TunFD < 0 {
		return errors.New("--tun-fd is required")
	}
	tun := newFDTun(args.TunFD)

	src := &flagSource{args: args}
	cfg := config.Load(src)

	sessionID := uuid.New()
	ctx = dlog.WithField(ctx, "session", sessionID.String())

	table := conn.NewTable()
	reg := registry.New(table)
	policy := dnspolicy.New(cfg.VpnDNSv4, cfg.VpnDNSv6, cfg.DNSServer)
	dpiDriver := dpi.NewDriver(refdpi.New(), hostlru.New())
	capStats := &stats.Capture{}
	host := newLoggingHost()
	uid := &unresolvedUID{}

	var ring *dump.Buffer
	if cfg.DumpToJava {
		ring = dump.NewBuffer(dump.BufferSize, dump.LinkTypeRaw)
	}
	var collector *dump.Collector
	if cfg.DumpToUDP && cfg.PcapCollectorAddr != nil {
		pc, err := net.ListenUDP("udp", nil)
		if err != nil {
			return errors.Wrap(err, "opening pcap collector socket")
		}
		addr := &net.UDPAddr{IP: cfg.PcapCollectorAddr, Port: int(cfg.PcapCollectorPort)}
		collector = dump.NewUDP(pc, addr, dump.BufferSize, dump.LinkTypeRaw)
	}
	pcapSinks := capture.NewPCAPSinks(host, ring, collector)

	control := capture.NewControl()
	stack := nullstack.New()
	loop := capture.NewLoop(capture.Deps{
		Tun:           tun,
		Stack:         stack,
		Table:         table,
		Registry:      reg,
		Policy:        policy,
		DPI:           dpiDriver,
		UID:           uid,
		Host:          host,
		Stats:         capStats,
		PCAP:          pcapSinks,
		Control:       control,
		IPv6Enabled:   cfg.IPv6Enabled,
		SOCKS5Enabled: cfg.SOCKS5Enabled,
	})
	stack.SetCallbacks(loop.Callbacks())

	if cfg.SOCKS5Enabled && cfg.SOCKS5ProxyAddr != nil {
		if err := stack.SetSOCKS5(cfg.SOCKS5ProxyAddr, cfg.SOCKS5ProxyPort, 4); err != nil {
			return errors.Wrap(err, "configuring SOCKS5 proxy")
		}
	}

	// SIGPIPE would otherwise kill the process on a collector-socket
	// write after the peer goes away (spec.md §9).
	signal.Ignore(syscall.SIGPIPE)

	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{
		SoftShutdownTimeout:  3 * time.Second,
		EnableSignalHandling: true,
		ShutdownOnNonError:   true,
	})
	grp.Go("packet-loop", func(ctx context.Context) error {
		return loop.Run(ctx)
	})
	grp.Go("shutdown-watch", func(ctx context.Context) error {
		<-ctx.Done()
		control.Stop()
		return nil
	})
	return grp.Wait()
}
