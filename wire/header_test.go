package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShortHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, ShortHeaderSize)
	EncodeShortHeader(buf, ShortHeader{MsgSeqno: 0xdeadbeef})

	require.Equal(t, MagicShort, PeekMagic(buf))
	got := DecodeShortHeader(buf)
	require.Equal(t, uint32(0xdeadbeef), got.MsgSeqno)
}

func TestLongHeaderRoundTrip(t *testing.T) {
	buf := make([]byte, LongHeaderSize)
	in := LongHeader{
		MsgSeqno:       7,
		MsgSize:        10000,
		FragmentOffset: 2800,
		FragmentNo:     2,
		FragmentsInMsg: 8,
	}
	EncodeLongHeader(buf, in)

	require.Equal(t, MagicLong, PeekMagic(buf))
	require.Equal(t, in, DecodeLongHeader(buf))
}

func TestSplitChannel(t *testing.T) {
	b := append([]byte("FOO\x00"), []byte{1, 2, 3}...)
	channel, offset, err := SplitChannel(b)
	require.NoError(t, err)
	require.Equal(t, "FOO", channel)
	require.Equal(t, 4, offset)
	require.Equal(t, []byte{1, 2, 3}, b[offset:])
}

func TestSplitChannelTooLong(t *testing.T) {
	b := make([]byte, ChannelMaxLen+3)
	for i := range b {
		b[i] = 'a'
	}
	_, _, err := SplitChannel(b)
	require.Error(t, err)
}

func TestSplitChannelMaxLenAccepted(t *testing.T) {
	name := make([]byte, ChannelMaxLen)
	for i := range name {
		name[i] = 'x'
	}
	b := append(name, 0)
	channel, offset, err := SplitChannel(b)
	require.NoError(t, err)
	require.Equal(t, ChannelMaxLen, len(channel))
	require.Equal(t, ChannelMaxLen+1, offset)
}
