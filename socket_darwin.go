package zcm

import (
	"fmt"
	"net"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// listenMulticastUDP4 binds a UDP socket to laddr. Darwin requires
// SO_REUSEPORT (not just SO_REUSEADDR) to let multiple processes share
// a multicast port, and pins to an interface via IP_BOUND_IF rather
// than SO_BINDTODEVICE. Adapted from the reference
// listen_multicast_darwin.go.
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

	if err := unix.SetsockoptInt(sock, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
		return nil, 0, fmt.Errorf("zcm: could not set socket reuseport: %w", err)
	}

	_ = syscall.SetsockoptInt(sock, syscall.SOL_SOCKET, syscall.SO_TIMESTAMP, 1)

	if ifi != nil {
		if err := unix.SetsockoptInt(sock, unix.IPPROTO_IP, unix.IP_BOUND_IF, ifi.Index); err != nil {
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
