package zcm

import (
	"bytes"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.ErrorLevel)
	return l
}

var testGroupAddr = net.ParseIP("239.255.76.67")

var testPortCounter uint16

// nextTestPort hands out a fresh port per test so unrelated tests
// never share a multicast group/port pair.
func nextTestPort() uint16 {
	testPortCounter++
	return 30000 + testPortCounter
}

// newLoopbackPair builds two Transports bound to the same multicast
// group/port with loopback delivery enabled, the way a single-host
// integration test exercises the wire path without a real network.
func newLoopbackPair(t *testing.T, port uint16) (*Transport, *Transport) {
	t.Helper()

	cfg := Config{
		GroupAddr: testGroupAddr,
		Port:      port,
		Logger:    testLogger(),
	}

	tx, err := NewTransport(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tx.Destroy() })

	rx, err := NewTransport(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rx.Destroy() })

	return tx, rx
}

func TestShortMessageRoundTrip(t *testing.T) {
	tx, rx := newLoopbackPair(t, nextTestPort())

	payload := []byte{0x01, 0x02, 0x03}
	require.NoError(t, tx.Send("FOO", payload))

	msg, err := rx.Recv(2000)
	require.NoError(t, err)
	require.Equal(t, "FOO", msg.Channel)
	require.Equal(t, payload, msg.Payload())
}

func TestLongMessageRoundTrip(t *testing.T) {
	tx, rx := newLoopbackPair(t, nextTestPort())

	payload := make([]byte, 10000)
	require.NoError(t, tx.Send("X", payload))

	msg, err := rx.Recv(2000)
	require.NoError(t, err)
	require.Equal(t, "X", msg.Channel)
	require.True(t, bytes.Equal(payload, msg.Payload()))
}

func TestSameSenderTwoMessagesBothDeliver(t *testing.T) {
	tx, rx := newLoopbackPair(t, nextTestPort())

	payload := make([]byte, 10000)
	for i := range payload {
		payload[i] = byte(i)
	}

	require.NoError(t, tx.Send("X", payload))
	require.NoError(t, tx.Send("X", payload))

	msg1, err := rx.Recv(2000)
	require.NoError(t, err)
	msg2, err := rx.Recv(2000)
	require.NoError(t, err)

	require.True(t, bytes.Equal(payload, msg1.Payload()))
	require.True(t, bytes.Equal(payload, msg2.Payload()))
}

func TestSendRejectsOversizeChannel(t *testing.T) {
	tx, _ := newLoopbackPair(t, nextTestPort())

	longChannel := bytes.Repeat([]byte{'a'}, 64)
	err := tx.Send(string(longChannel), []byte("x"))
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSendAcceptsMaxLengthChannel(t *testing.T) {
	tx, rx := newLoopbackPair(t, nextTestPort())

	channel := string(bytes.Repeat([]byte{'a'}, 63))
	require.NoError(t, tx.Send(channel, []byte("x")))

	msg, err := rx.Recv(2000)
	require.NoError(t, err)
	require.Equal(t, channel, msg.Channel)
}

func TestRecvTimesOutWithNoTraffic(t *testing.T) {
	_, rx := newLoopbackPair(t, nextTestPort())

	_, err := rx.Recv(50)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestDestroyUnblocksRecv(t *testing.T) {
	_, rx := newLoopbackPair(t, nextTestPort())

	done := make(chan error, 1)
	go func() {
		_, err := rx.Recv(0)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, rx.Destroy())

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Recv did not return after Destroy")
	}
}

// TestBadMagicDiscardedAsGarbage sends a raw datagram with neither
// magic value into the group and confirms it is silently discarded
// (counted, not delivered) rather than surfacing as a Recv error.
func TestBadMagicDiscardedAsGarbage(t *testing.T) {
	port := nextTestPort()
	_, rx := newLoopbackPair(t, port)

	before := rx.Stats().DiscardedBad

	raw, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: testGroupAddr, Port: int(port)})
	require.NoError(t, err)
	defer raw.Close()

	garbage := bytes.Repeat([]byte{0xff}, 16)
	_, err = raw.Write(garbage)
	require.NoError(t, err)

	// The garbage datagram is the only thing in flight: Recv must
	// discard it internally and then time out, never delivering it
	// as a Message.
	_, err = rx.Recv(200)
	require.ErrorIs(t, err, ErrTimeout)
	require.Greater(t, rx.Stats().DiscardedBad, before)
}

func TestStatsSnapshotTracksReceivedMessages(t *testing.T) {
	tx, rx := newLoopbackPair(t, nextTestPort())

	before := rx.Stats().Rx
	require.NoError(t, tx.Send("FOO", []byte("hello")))

	_, err := rx.Recv(2000)
	require.NoError(t, err)

	require.Equal(t, before+1, rx.Stats().Rx)
}
