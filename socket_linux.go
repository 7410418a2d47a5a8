package main

import (
	"fmt"
	"math"
	"net"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
)

// udpConn is a raw non-blocking UDP socket driven with poll(2).
type udpConn struct {
	fd  int
	pfd []unix.PollFd
}

// SocketOptions tunes the socket created by openSocket.
type SocketOptions struct {
	BufferSize int
	// Source, if set, is bound before the first send.
	Source net.IP
}

// openSocket creates a non-blocking datagram socket suitable for sending to
// dst, with large buffers and path MTU discovery disabled.
func openSocket(dst *net.UDPAddr, opts SocketOptions) (*udpConn, unix.Sockaddr, error) {
	to, family, err := toSockaddr(dst)
	if err != nil {
		return nil, nil, err
	}

	fd, err := unix.Socket(family, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.IPPROTO_UDP)
	if err != nil {
		return nil, nil, WrapErrorWithContext("socket", err, dst.String())
	}
	c := &udpConn{fd: fd, pfd: []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN | unix.POLLERR}}}

	if opts.BufferSize > 0 {
		setBuffer(fd, unix.SO_RCVBUFFORCE, unix.SO_RCVBUF, opts.BufferSize)
		setBuffer(fd, unix.SO_SNDBUFFORCE, unix.SO_SNDBUF, opts.BufferSize)
	}
	if family == unix.AF_INET {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_MTU_DISCOVER, unix.IP_PMTUDISC_OMIT); err != nil {
			appLogger.Debug("IP_PMTUDISC_OMIT not supported, trying IP_PMTUDISC_DONT: %v", err)
			_ = unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_MTU_DISCOVER, unix.IP_PMTUDISC_DONT)
		}
	}

	if opts.Source != nil {
		src, _, err := toSockaddr(&net.UDPAddr{IP: opts.Source})
		if err == nil {
			err = unix.Bind(fd, src)
		}
		if err != nil {
			_ = c.Close()
			return nil, nil, WrapErrorWithContext("bind", err, opts.Source.String())
		}
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		_ = c.Close()
		return nil, nil, WrapErrorWithContext("setnonblock", err, dst.String())
	}
	return c, to, nil
}

// setBuffer tries the privileged option first so the size can exceed
// rmem_max/wmem_max, then falls back to the plain one.
func setBuffer(fd, force, plain, size int) {
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, force, size); err == nil {
		return
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, plain, size); err != nil {
		appLogger.Warn("%v", WrapErrorWithContext("setsockopt", err, strconv.Itoa(size)+" bytes"))
	}
}

func (c *udpConn) SendTo(p []byte, to unix.Sockaddr) error {
	return unix.Sendto(c.fd, p, 0, to)
}

func (c *udpConn) Recv(p []byte) (int, error) {
	n, _, err := unix.Recvfrom(c.fd, p, 0)
	return n, err
}

func (c *udpConn) Wait(timeout time.Duration) (bool, error) {
	ms := -1
	if timeout >= 0 {
		// Round up so a sub-millisecond wait does not become a busy poll.
		ms = int(timeout / time.Millisecond)
		if timeout%time.Millisecond != 0 {
			ms++
		}
		if ms > math.MaxInt32 {
			ms = math.MaxInt32
		}
	}
	c.pfd[0].Revents = 0
	n, err := unix.Poll(c.pfd, ms)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c *udpConn) Close() error {
	return unix.Close(c.fd)
}

func toSockaddr(addr *net.UDPAddr) (unix.Sockaddr, int, error) {
	if ip4 := addr.IP.To4(); ip4 != nil || addr.IP == nil {
		sa := &unix.SockaddrInet4{Port: addr.Port}
		copy(sa.Addr[:], ip4)
		return sa, unix.AF_INET, nil
	}
	if ip6 := addr.IP.To16(); ip6 != nil {
		sa := &unix.SockaddrInet6{Port: addr.Port}
		copy(sa.Addr[:], ip6)
		if addr.Zone != "" {
			if ifi, err := net.InterfaceByName(addr.Zone); err == nil {
				sa.ZoneId = uint32(ifi.Index)
			}
		}
		return sa, unix.AF_INET6, nil
	}
	return nil, 0, fmt.Errorf("unsupported address %s", addr)
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	default:
		return fmt.Sprintf("%v", sa)
	}
}
