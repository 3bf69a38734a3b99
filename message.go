package zcm

import "net"

// Default resource-sizing constants. Wire-format constants that must
// match across peers (channel length, short/fragment budgets, magic
// values, MTU) live in package wire.
const (
	// DefaultRingBufSize is the default ring arena capacity.
	DefaultRingBufSize = 2 * 1024 * 1024

	// DefaultRecvBufs is the default scratch descriptor pool depth.
	DefaultRecvBufs = 32

	// MaxFragBufTotalSize is the fragment table's default byte cap.
	MaxFragBufTotalSize = 1 << 24

	// MaxNumFragBufs is the fragment table's default record-count cap.
	MaxNumFragBufs = 1000

	// maxDatagramSize is the largest possible UDP payload a single
	// recvfrom can return.
	maxDatagramSize = 65535
)

// Message is a completed (channel, payload) record delivered upstream
// by the receive path. Its backing buffer is valid until the next
// call to Recv on the same Transport — short messages live inside the
// ring arena and are released lazily on the following Recv call;
// long (reassembled) messages own a heap buffer that is simply
// dropped for the garbage collector to reclaim.
type Message struct {
	Channel   string
	// RecvUtime is in microseconds: the receipt of the datagram for a
	// short message, and the receipt of the final fragment (not of the
	// first one) for a reassembled message.
	RecvUtime int64
	From      net.Addr

	buf        []byte
	dataOffset int
	dataSize   int
}

// Payload returns the message's payload bytes. The invariant
// dataOffset+dataSize <= len(buf) holds for every delivered Message.
func (m *Message) Payload() []byte {
	return m.buf[m.dataOffset : m.dataOffset+m.dataSize]
}
