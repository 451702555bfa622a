//go:build linux

package dgram

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"golang.org/x/sys/unix"
)

const INVALID_SOCKET = -1

type unixSocket struct {
	fd     int
	family int
}

// CreateUdpSocket creates a non-blocking datagram socket and applies the
// socket level options of cfg.
func CreateUdpSocket(cfg *Config) (Socket, error) {
	family := unix.AF_INET
	if cfg.Family == FamilyIPv6 {
		family = unix.AF_INET6
	}
	fd, err := unix.Socket(family, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_UDP)
	if err != nil {
		return nil, opError("socket", KindIO, err)
	}
	if err := applySocketOptions(fd, family, cfg); err != nil {
		CloseSocket(fd)
		return nil, opError("setsockopt", KindIO, err)
	}
	return &unixSocket{fd: fd, family: family}, nil
}

func applySocketOptions(fd, family int, cfg *Config) error {
	if family == unix.AF_INET6 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0); err != nil {
			return err
		}
	}
	if cfg.ReuseAddr {
		if err := SetReUseAddr(fd); err != nil {
			return err
		}
	}
	if cfg.ReusePort {
		if err := SetReUsePort(fd); err != nil {
			return err
		}
	}
	if cfg.Broadcast {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
			return err
		}
	}
	if cfg.SoRcvBuf > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, cfg.SoRcvBuf); err != nil {
			return err
		}
	}
	if cfg.SoSndBuf > 0 {
		if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, cfg.SoSndBuf); err != nil {
			return err
		}
	}
	if cfg.TrafficClass > 0 {
		if family == unix.AF_INET6 {
			return unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_TCLASS, cfg.TrafficClass)
		}
		return unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TOS, cfg.TrafficClass)
	}
	return nil
}

func (s *unixSocket) Fd() int {
	return s.fd
}

func (s *unixSocket) Bind(addr netip.AddrPort) error {
	if s.fd == INVALID_SOCKET {
		return unix.EBADF
	}
	sa, err := toSockaddr(s.family, addr)
	if err != nil {
		return err
	}
	return unix.Bind(s.fd, sa)
}

func (s *unixSocket) LocalAddr() (netip.AddrPort, error) {
	if s.fd == INVALID_SOCKET {
		return netip.AddrPort{}, unix.EBADF
	}
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return fromSockaddr(sa), nil
}

func (s *unixSocket) SendTo(p []byte, to netip.AddrPort) (int, error) {
	if s.fd == INVALID_SOCKET {
		return 0, unix.EBADF
	}
	sa, err := toSockaddr(s.family, to)
	if err != nil {
		return 0, err
	}
	for {
		err = unix.Sendto(s.fd, p, 0, sa)
		switch {
		case err == nil:
			return len(p), nil
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN || err == unix.ENOBUFS:
			return 0, ErrWouldBlock
		default:
			return 0, err
		}
	}
}

func (s *unixSocket) RecvFrom(p []byte) (int, netip.AddrPort, error) {
	if s.fd == INVALID_SOCKET {
		return 0, netip.AddrPort{}, unix.EBADF
	}
	for {
		n, sa, err := unix.Recvfrom(s.fd, p, 0)
		switch {
		case err == nil:
			return n, fromSockaddr(sa), nil
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return 0, netip.AddrPort{}, ErrWouldBlock
		default:
			return 0, netip.AddrPort{}, err
		}
	}
}

func (s *unixSocket) PendingError() error {
	if s.fd == INVALID_SOCKET {
		return unix.EBADF
	}
	errno, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

func (s *unixSocket) Close() error {
	if s.fd == INVALID_SOCKET {
		return nil
	}
	fd := s.fd
	s.fd = INVALID_SOCKET
	return CloseSocket(fd)
}

func toSockaddr(family int, ap netip.AddrPort) (unix.Sockaddr, error) {
	addr := ap.Addr()
	if !addr.IsValid() {
		return nil, fmt.Errorf("%w: invalid address", unix.EINVAL)
	}
	if family == unix.AF_INET {
		addr = addr.Unmap()
		if !addr.Is4() {
			return nil, fmt.Errorf("%s: %w", ap, unix.EAFNOSUPPORT)
		}
		return &unix.SockaddrInet4{Port: int(ap.Port()), Addr: addr.As4()}, nil
	}
	sa := &unix.SockaddrInet6{Port: int(ap.Port()), Addr: addr.As16()}
	if zone := addr.Zone(); zone != "" {
		index, err := zoneIndex(zone)
		if err != nil {
			return nil, err
		}
		sa.ZoneId = index
	}
	return sa, nil
}

func fromSockaddr(sa unix.Sockaddr) netip.AddrPort {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port))
	case *unix.SockaddrInet6:
		addr := netip.AddrFrom16(sa.Addr).Unmap()
		if sa.ZoneId != 0 && addr.Is6() {
			addr = addr.WithZone(zoneName(sa.ZoneId))
		}
		return netip.AddrPortFrom(addr, uint16(sa.Port))
	}
	return netip.AddrPort{}
}

// zoneName maps an interface index to its name, or to the decimal index when
// the interface is gone.
func zoneName(index uint32) string {
	if ifi, err := net.InterfaceByIndex(int(index)); err == nil {
		return ifi.Name
	}
	return strconv.FormatUint(uint64(index), 10)
}

func zoneIndex(zone string) (uint32, error) {
	if n, err := strconv.ParseUint(zone, 10, 32); err == nil {
		return uint32(n), nil
	}
	ifi, err := net.InterfaceByName(zone)
	if err != nil {
		return 0, err
	}
	return uint32(ifi.Index), nil
}

func SetReUseAddr(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
}

func SetReUsePort(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
}

func CloseSocket(fd int) error {
	return unix.Close(fd)
}
