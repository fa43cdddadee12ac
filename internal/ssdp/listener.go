package ssdp

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// SSDP multicast constants.
const (
	multicastAddrV4 = "239.255.255.250"
	ssdpPort        = 1900

	// readBufferSize comfortably holds any single SSDP datagram.
	readBufferSize = 4096
)

// BroadcastAddrV4 is the IPv4 broadcast search target. Some devices (notably
// older Sonos firmware) only answer searches sent to the broadcast address.
var BroadcastAddrV4 = &net.UDPAddr{IP: net.IPv4bcast, Port: ssdpPort}

// listenerCallback receives every propagated device change from the shared
// tracker: the device snapshot, the service type it was observed under, and
// the observation source.
type listenerCallback func(device *Device, serviceType string, source Source)

// Listener receives SSDP traffic for one local source address. It maintains
// two sockets: a multicast membership on 239.255.255.250:1900 for NOTIFY
// advertisements, and a unicast socket bound to the source address for
// sending M-SEARCH queries and receiving their responses.
//
// Observed messages feed the shared DeviceTracker; propagated changes are
// delivered on the callback.
type Listener struct {
	source   net.IP
	tracker  *DeviceTracker
	callback listenerCallback
	searchMX int
	logger   Logger

	multicast *net.UDPConn
	unicast   *net.UDPConn
	wg        sync.WaitGroup

	// started flips atomically: Search may race stop when a scan snapshot
	// outlives a teardown.
	started atomic.Bool
}

// newListener builds a listener for one source address. Call start to bind
// the sockets.
func newListener(source net.IP, tracker *DeviceTracker, callback listenerCallback, searchMX int, logger Logger) *Listener {
	if searchMX < 1 || searchMX > 5 {
		searchMX = 4
	}
	return &Listener{
		source:   source,
		tracker:  tracker,
		callback: callback,
		searchMX: searchMX,
		logger:   logger,
	}
}

// Source returns the local source address this listener is bound to.
func (l *Listener) Source() net.IP {
	return l.source
}

// IsIPv4 reports whether the listener's source address is IPv4.
func (l *Listener) IsIPv4() bool {
	return l.source.To4() != nil
}

// start binds both sockets and spawns the receive loops. The loops exit when
// ctx is cancelled or the sockets are closed by stop.
func (l *Listener) start(ctx context.Context) error {
	iface, err := interfaceFor(l.source)
	if err != nil {
		return fmt.Errorf("ssdp: listener %s: %w", l.source, err)
	}

	group := &net.UDPAddr{IP: net.ParseIP(multicastAddrV4), Port: ssdpPort}
	multicast, err := net.ListenMulticastUDP("udp4", iface, group)
	if err != nil {
		return fmt.Errorf("ssdp: listener %s: joining multicast group: %w", l.source, err)
	}

	unicast, err := net.ListenUDP("udp4", &net.UDPAddr{IP: l.source, Port: 0})
	if err != nil {
		multicast.Close()
		return fmt.Errorf("ssdp: listener %s: binding search socket: %w", l.source, err)
	}

	l.multicast = multicast
	l.unicast = unicast
	l.started.Store(true)

	l.wg.Add(2)
	go l.receiveLoop(ctx, multicast, "multicast")
	go l.receiveLoop(ctx, unicast, "unicast")
	return nil
}

// stop closes the sockets and waits for the receive loops to drain. Safe
// to call more than once.
func (l *Listener) stop() {
	if !l.started.CompareAndSwap(true, false) {
		return
	}
	l.multicast.Close()
	l.unicast.Close()
	l.wg.Wait()
}

// Search sends one M-SEARCH query to the given destination, or to the
// standard multicast group when dst is nil. Responses arrive asynchronously
// on the unicast socket.
func (l *Listener) Search(dst *net.UDPAddr) error {
	if !l.started.Load() {
		return ErrNotStarted
	}
	if dst == nil {
		dst = &net.UDPAddr{IP: net.ParseIP(multicastAddrV4), Port: ssdpPort}
	}
	packet := buildSearchPacket(dst, l.searchMX)
	if _, err := l.unicast.WriteToUDP(packet, dst); err != nil {
		return fmt.Errorf("ssdp: listener %s: search: %w", l.source, err)
	}
	return nil
}

// buildSearchPacket renders an M-SEARCH request for ssdp:all.
func buildSearchPacket(dst *net.UDPAddr, mx int) []byte {
	var b strings.Builder
	b.WriteString("M-SEARCH * HTTP/1.1\r\n")
	fmt.Fprintf(&b, "HOST: %s\r\n", dst.String())
	b.WriteString("MAN: \"ssdp:discover\"\r\n")
	fmt.Fprintf(&b, "MX: %d\r\n", mx)
	b.WriteString("ST: ssdp:all\r\n")
	b.WriteString("\r\n")
	return []byte(b.String())
}

// receiveLoop reads datagrams until the socket closes or ctx is cancelled.
func (l *Listener) receiveLoop(ctx context.Context, conn *net.UDPConn, kind string) {
	defer l.wg.Done()

	buf := make([]byte, readBufferSize)
	for {
		if ctx.Err() != nil {
			return
		}
		// A deadline keeps the loop responsive to cancellation even when
		// the network is silent.
		_ = conn.SetReadDeadline(time.Now().Add(time.Second))
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			// Socket closed during shutdown.
			return
		}
		l.handleDatagram(buf[:n], addr, kind)
	}
}

// handleDatagram parses one datagram and feeds it into the tracker.
func (l *Listener) handleDatagram(data []byte, addr *net.UDPAddr, kind string) {
	msgKind, headers, err := parseMessage(data)
	if err != nil {
		l.logger.Debug("discarding ssdp datagram", "source", l.source.String(), "from", addr.String(), "error", err)
		return
	}

	var (
		device      *Device
		serviceType string
		source      Source
		ok          bool
	)
	switch msgKind {
	case kindAdvertisement:
		device, serviceType, source, ok = l.tracker.SeeAdvertisement(headers)
	case kindSearchResponse:
		device, serviceType, source, ok = l.tracker.SeeSearch(headers)
	case kindSearchRequest:
		// Another control point searching; nothing to track.
		return
	}
	if !ok {
		l.logger.Debug("ignoring ssdp message without usable identity",
			"source", l.source.String(), "from", addr.String(), "kind", kind)
		return
	}
	l.callback(device, serviceType, source)
}

// interfaceFor finds the network interface holding the given source address.
func interfaceFor(source net.IP) (*net.Interface, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("enumerating interfaces: %w", err)
	}
	for i := range ifaces {
		addrs, err := ifaces[i].Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if ok && ipNet.IP.Equal(source) {
				return &ifaces[i], nil
			}
		}
	}
	return nil, fmt.Errorf("no interface holds address %s", source)
}

// SourceAddresses enumerates the local IPv4 addresses usable for SSDP:
// non-loopback, non-global addresses (private and link-local ranges).
func SourceAddresses() ([]net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("ssdp: enumerating addresses: %w", err)
	}
	var sources []net.IP
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipNet.IP.To4()
		if ip == nil || ip.IsLoopback() {
			continue
		}
		if !ip.IsPrivate() && !ip.IsLinkLocalUnicast() {
			continue
		}
		sources = append(sources, ip)
	}
	return sources, nil
}
