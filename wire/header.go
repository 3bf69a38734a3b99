// Package wire implements the on-wire framing for ZCM UDP multicast
// datagrams: the short and long header layouts and the constants that
// govern channel and fragment sizing. It is pure encode/decode, no I/O.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Magic values identifying the two frame types, network byte order on
// the wire. Values must match whatever the reference ZCM header
// defines; these are the ones observed in the reference UDPM
// transport.
const (
	MagicShort uint32 = 0x4c433032
	MagicLong  uint32 = 0x4c433033
)

// Wire format constants shared across peers.
const (
	// ChannelMaxLen is the maximum channel-name byte length, excluding
	// the NUL terminator.
	ChannelMaxLen = 63

	// ShortMessageMaxSize bounds channel+NUL+payload for short framing.
	ShortMessageMaxSize = 1400

	// FragmentMaxPayload is the per-fragment payload budget for long
	// framing; the channel is counted against fragment 0's budget.
	FragmentMaxPayload = 1400

	// MTU is the hard ceiling on a reassembled message size. Not the
	// IP MTU.
	MTU = 1 << 20
)

// ShortHeaderSize and LongHeaderSize are the on-wire sizes of the two
// header layouts.
const (
	ShortHeaderSize = 8
	LongHeaderSize  = 20
)

// ShortHeader is followed immediately by a NUL-terminated channel name
// and then the raw payload.
type ShortHeader struct {
	MsgSeqno uint32
}

// LongHeader frames one fragment of a multi-datagram message. When
// FragmentNo == 0 the header is followed by the NUL-terminated channel
// name and then the first payload chunk; otherwise it is followed
// immediately by the payload chunk.
type LongHeader struct {
	MsgSeqno       uint32
	MsgSize        uint32
	FragmentOffset uint32
	FragmentNo     uint16
	FragmentsInMsg uint16
}

// EncodeShortHeader serializes a short header into dst, which must be
// at least ShortHeaderSize bytes.
func EncodeShortHeader(dst []byte, h ShortHeader) {
	binary.BigEndian.PutUint32(dst[0:4], MagicShort)
	binary.BigEndian.PutUint32(dst[4:8], h.MsgSeqno)
}

// DecodeShortHeader parses a short header out of b. The caller must
// have already verified the magic and that len(b) >= ShortHeaderSize.
func DecodeShortHeader(b []byte) ShortHeader {
	return ShortHeader{MsgSeqno: binary.BigEndian.Uint32(b[4:8])}
}

// EncodeLongHeader serializes a long header into dst, which must be at
// least LongHeaderSize bytes.
func EncodeLongHeader(dst []byte, h LongHeader) {
	binary.BigEndian.PutUint32(dst[0:4], MagicLong)
	binary.BigEndian.PutUint32(dst[4:8], h.MsgSeqno)
	binary.BigEndian.PutUint32(dst[8:12], h.MsgSize)
	binary.BigEndian.PutUint32(dst[12:16], h.FragmentOffset)
	binary.BigEndian.PutUint16(dst[16:18], h.FragmentNo)
	binary.BigEndian.PutUint16(dst[18:20], h.FragmentsInMsg)
}

// DecodeLongHeader parses a long header out of b. The caller must have
// already verified the magic and that len(b) >= LongHeaderSize.
func DecodeLongHeader(b []byte) LongHeader {
	return LongHeader{
		MsgSeqno:       binary.BigEndian.Uint32(b[4:8]),
		MsgSize:        binary.BigEndian.Uint32(b[8:12]),
		FragmentOffset: binary.BigEndian.Uint32(b[12:16]),
		FragmentNo:     binary.BigEndian.Uint16(b[16:18]),
		FragmentsInMsg: binary.BigEndian.Uint16(b[18:20]),
	}
}

// PeekMagic reads the 4-byte magic at the start of a datagram without
// otherwise interpreting it. The caller must ensure len(b) >= 4.
func PeekMagic(b []byte) uint32 {
	return binary.BigEndian.Uint32(b[0:4])
}

// SplitChannel locates the NUL-terminated channel name starting at
// offset 0 of b and returns the channel string and the offset of the
// first byte following the terminator. It returns an error if no NUL
// is found within ChannelMaxLen+1 bytes of b, or if the channel name
// exceeds ChannelMaxLen.
func SplitChannel(b []byte) (channel string, dataOffset int, err error) {
	limit := len(b)
	if limit > ChannelMaxLen+1 {
		limit = ChannelMaxLen + 1
	}
	for i := 0; i < limit; i++ {
		if b[i] == 0 {
			return string(b[:i]), i + 1, nil
		}
	}
	return "", 0, fmt.Errorf("wire: channel name exceeds %d bytes or missing NUL terminator", ChannelMaxLen)
}
