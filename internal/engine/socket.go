package engine

import (
	"context"
	"fmt"
	"net"
	"sync"
	"syscall"

	"golang.org/x/net/ipv4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// mdnsGroup is the mDNS IPv4 multicast group (RFC 6762 §5).
var mdnsGroup = net.IPv4(224, 0, 0, 251)

// MultiNetworkSocketProvider joins/leaves the mDNS multicast group on
// every usable interface, generalizing the teacher's single-interface
// UDPv4Transport to the "multi-network" socket provider spec.md's
// glossary describes for the managed backend.
type MultiNetworkSocketProvider struct {
	mu      sync.Mutex
	conn    *net.UDPConn
	pc      *ipv4.PacketConn
	started bool
}

// NewMultiNetworkSocketProvider returns a provider with no socket open
// yet; StartMonitoringSockets opens one.
func NewMultiNetworkSocketProvider() *MultiNetworkSocketProvider {
	return &MultiNetworkSocketProvider{}
}

// reusePortControl sets SO_REUSEADDR and SO_REUSEPORT on the raw socket
// before bind, the way the teacher's udp.go notes (as a TODO) it would
// need to for a multi-listener deployment: several broker processes, or
// this one restarting quickly after a crash, can then all bind :5353
// without "address already in use".
func reusePortControl(_, _ string, c syscall.RawConn) error {
	var setErr error
	err := c.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		setErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
	if err != nil {
		return err
	}
	return setErr
}

func (s *MultiNetworkSocketProvider) StartMonitoringSockets() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	lc := net.ListenConfig{Control: reusePortControl}
	pconn, err := lc.ListenPacket(context.Background(), "udp4", ":5353")
	if err != nil {
		return fmt.Errorf("socket provider: listen: %w", err)
	}
	conn := pconn.(*net.UDPConn)
	pc := ipv4.NewPacketConn(conn)

	ifaces, err := net.Interfaces()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("socket provider: list interfaces: %w", err)
	}

	// Interfaces are joined concurrently: on hosts with many virtual
	// interfaces (containers, VPNs) sequential JoinGroup calls are the
	// dominant cost of a cold start.
	var joined sync.Map
	g, _ := errgroup.WithContext(context.Background())
	for _, iface := range ifaces {
		iface := iface
		if iface.Flags&net.FlagMulticast == 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		g.Go(func() error {
			if err := pc.JoinGroup(&iface, &net.UDPAddr{IP: mdnsGroup}); err == nil {
				joined.Store(iface.Index, true)
			}
			return nil
		})
	}
	_ = g.Wait()

	count := 0
	joined.Range(func(_, _ any) bool { count++; return true })
	if count == 0 {
		_ = conn.Close()
		return fmt.Errorf("socket provider: no usable multicast interface")
	}

	s.conn = conn
	s.pc = pc
	s.started = true
	return nil
}

func (s *MultiNetworkSocketProvider) StopMonitoringSockets() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.pc = nil
	s.started = false
	return err
}
