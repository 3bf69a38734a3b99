package zcm

import (
	"fmt"
	"net"
	"os"
	"syscall"
)

// listenMulticastUDP4 binds a UDP socket to laddr, setting
// SO_REUSEADDR and SO_REUSEPORT so multiple processes can share the
// multicast port on the same host. Adapted from the reference
// listen_multicast_linux.go: AMT's BPF filter is dropped (no tunnel,
// no raw-frame filtering in this transport); SO_BINDTODEVICE still
// pins the socket to ifi when one is given.
func listenMulticastUDP4(ifi *net.Interface, laddr *net.UDPAddr, recvBufSize int) (conn net.PacketConn, actualRecvBuf int, err error) {
	if laddr == nil || laddr.IP == nil || laddr.IP.To4() == nil {
		return nil, 0, fmt.Errorf("zcm: invalid ipv4 listen address")
	}

	sock, err := syscall.Socket(syscall.AF_INET, syscall.SOCK_DGRAM, syscall.IPPROTO_UDP)
	if err != nil {
		return nil, 0, fmt.Errorf("zcm: could not get socket: %w", err)
	}

	if err := syscall.SetsockoptInt(sock, syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); err != nil {
		return nil, 0, fmt.Errorf("zcm: could not set socket reuseaddr: %w", err)
	}

	if recvBufSize > 0 {
		_ = syscall.SetsockoptInt(sock, syscall.SOL_SOCKET, syscall.SO_RCVBUF, recvBufSize)
	}
	actualRecvBuf, _ = syscall.GetsockoptInt(sock, syscall.SOL_SOCKET, syscall.SO_RCVBUF)

	const soReuseport = 0x0f
	if err := syscall.SetsockoptInt(sock, syscall.SOL_SOCKET, soReuseport, 1); err != nil {
		return nil, 0, fmt.Errorf("zcm: could not set socket reuseport: %w", err)
	}

	// Best effort: ask the kernel to timestamp incoming datagrams.
	// Like the reference transport, we don't currently parse the
	// ancillary SCM_TIMESTAMP data back out of recvmsg, so this only
	// primes the kernel; recv_utime falls back to the wall clock (see
	// Transport.recvOne).
	_ = syscall.SetsockoptInt(sock, syscall.SOL_SOCKET, syscall.SO_TIMESTAMP, 1)

	if ifi != nil {
		if err := syscall.SetsockoptString(sock, syscall.SOL_SOCKET, syscall.SO_BINDTODEVICE, ifi.Name); err != nil {
			return nil, 0, fmt.Errorf("zcm: could not bind to interface: %w", err)
		}
	}

	lsa := syscall.SockaddrInet4{Port: laddr.Port}
	copy(lsa.Addr[:], laddr.IP.To4())
	if err := syscall.Bind(sock, &lsa); err != nil {
		_ = syscall.Close(sock)
		return nil, 0, fmt.Errorf("zcm: could not bind socket: %w", err)
	}

	file := os.NewFile(uintptr(sock), "")
	conn, err = net.FilePacketConn(file)
	file.Close()
	if err != nil {
		return nil, 0, fmt.Errorf("zcm: could not wrap file packet conn: %w", err)
	}

	return conn, actualRecvBuf, nil
}
