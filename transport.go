package zcm

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/net/ipv4"

	"github.com/zcmgo/udpm/fragment"
	"github.com/zcmgo/udpm/ring"
	"github.com/zcmgo/udpm/wire"
)

// Transport is a ZCM UDP multicast publish/subscribe endpoint: one
// multicast group joined on both a send and a receive socket, a ring
// arena and scratch pool backing the receive path, and a fragment
// table reassembling long messages. Send may be called from any
// goroutine; Recv is meant to be driven by a single caller, per the
// reference transport's single-receive-worker model.
type Transport struct {
	cfg Config

	conn    *ipv4.PacketConn
	dstAddr *net.UDPAddr

	pool  *ring.Pool
	frags *fragment.Table
	stats *Stats

	sendMu  sync.Mutex
	sendBuf sync.Pool
	seqno   uint32

	pendingRelease   func()
	recvBufSize      int
	lowRecvBufWarned bool
}

// NewTransport joins the configured multicast group on a single
// ipv4.PacketConn shared by send and receive, and allocates the ring
// arena, scratch pool, and fragment table. A Fatal-class error here
// (socket creation, bind, join, setsockopt) is returned directly; the
// transport makes no attempt at recovery, matching §7.
func NewTransport(cfg Config) (*Transport, error) {
	cfg = cfg.withDefaults()

	if cfg.GroupAddr == nil || cfg.GroupAddr.To4() == nil || !cfg.GroupAddr.IsMulticast() {
		return nil, fmt.Errorf("zcm: GroupAddr must be an IPv4 multicast address")
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("zcm: Port must be non-zero")
	}

	laddr := &net.UDPAddr{IP: net.IPv4zero, Port: int(cfg.Port)}
	rawConn, actualRecvBuf, err := listenMulticastUDP4(cfg.Interface, laddr, cfg.RecvBufSize)
	if err != nil {
		return nil, fmt.Errorf("zcm: could not open multicast socket: %w", err)
	}

	conn := ipv4.NewPacketConn(rawConn)
	group := &net.UDPAddr{IP: cfg.GroupAddr, Port: int(cfg.Port)}

	if err := conn.JoinGroup(cfg.Interface, group); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("zcm: could not join multicast group: %w", err)
	}
	if cfg.Interface != nil {
		if err := conn.SetMulticastInterface(cfg.Interface); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("zcm: could not set multicast interface: %w", err)
		}
	}
	if err := conn.SetMulticastLoopback(true); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("zcm: could not enable multicast loopback: %w", err)
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 1
	}
	if err := conn.SetMulticastTTL(ttl); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("zcm: could not set multicast TTL: %w", err)
	}

	t := &Transport{
		cfg:         cfg,
		conn:        conn,
		dstAddr:     group,
		pool:        ring.NewPool(ring.NewArena(cfg.RingBufSize), cfg.PoolDepth),
		frags:       fragment.NewTable(cfg.MaxFragBufTotalSize, cfg.MaxNumFragBufs),
		stats:       newStats(),
		recvBufSize: actualRecvBuf,
	}
	t.sendBuf.New = func() any {
		buf := make([]byte, wire.LongHeaderSize+wire.ChannelMaxLen+1+wire.FragmentMaxPayload)
		return &buf
	}

	return t, nil
}

// GetMTU returns the hard ceiling on a reassembled message size.
func (t *Transport) GetMTU() int { return wire.MTU }

// RecvEnable is a no-op retained for interface parity with the
// upstream dispatcher; channel-level subscription filtering happens
// above this transport.
func (t *Transport) RecvEnable(channel string, enable bool) {}

// Stats returns a point-in-time snapshot of the receive counters.
func (t *Transport) Stats() Snapshot { return t.stats.Snapshot() }

// Destroy closes the shared socket. The fragment table is not
// cleared: pending fragment records stay in it until the Transport
// itself is garbage collected.
func (t *Transport) Destroy() error {
	return t.conn.Close()
}

func (t *Transport) checkRecvBufSize(dataSize int) {
	const smallRecvBufThreshold = 262145
	if t.lowRecvBufWarned {
		return
	}
	if t.recvBufSize > 0 && t.recvBufSize < smallRecvBufThreshold && dataSize > t.recvBufSize {
		t.cfg.Logger.WithFields(loggerFields{
			"recv_buf_size": t.recvBufSize,
		}).Warn("zcm: kernel UDP receive buffer is very small, datagrams may be dropped under load")
		t.lowRecvBufWarned = true
	}
}

// loggerFields is a thin alias so this file doesn't need to import
// logrus just for the Fields map type.
type loggerFields = map[string]any

// Send implements §4.5: a single short datagram when the framed size
// fits ZCM_SHORT_MESSAGE_MAX_SIZE, otherwise fragmented datagrams each
// bounded by ZCM_FRAGMENT_MAX_PAYLOAD. The sequence counter advances
// exactly once per call, even when a fragmented send aborts partway.
func (t *Transport) Send(channel string, payload []byte) error {
	if len(channel) > wire.ChannelMaxLen {
		return fmt.Errorf("%w: channel %q exceeds %d bytes", ErrInvalidArgument, channel, wire.ChannelMaxLen)
	}

	c := len(channel)
	p := c + 1 + len(payload)

	t.sendMu.Lock()
	seqno := t.seqno
	t.seqno++
	t.sendMu.Unlock()

	bufPtr := t.sendBuf.Get().(*[]byte)
	defer t.sendBuf.Put(bufPtr)
	buf := *bufPtr

	if p <= wire.ShortMessageMaxSize {
		return t.sendShort(buf, seqno, channel, payload)
	}
	return t.sendFragmented(buf, seqno, channel, payload)
}

func (t *Transport) sendShort(buf []byte, seqno uint32, channel string, payload []byte) error {
	n := wire.ShortHeaderSize
	wire.EncodeShortHeader(buf[:n], wire.ShortHeader{MsgSeqno: seqno})
	n += copy(buf[n:], channel)
	buf[n] = 0
	n++
	n += copy(buf[n:], payload)

	if _, err := t.conn.WriteTo(buf[:n], nil, t.dstAddr); err != nil {
		return fmt.Errorf("%w: %v", ErrTransientIO, err)
	}
	return nil
}

func (t *Transport) sendFragmented(buf []byte, seqno uint32, channel string, payload []byte) error {
	c := len(channel)
	n := len(payload)
	budget := wire.FragmentMaxPayload

	nfragments64 := ceilDiv(c+1+n, budget)
	if nfragments64 > 65535 {
		return fmt.Errorf("%w: message requires %d fragments, more than 65535", ErrInvalidArgument, nfragments64)
	}
	nfragments := uint16(nfragments64)

	firstBudget := budget - (c + 1)
	if firstBudget < 0 {
		firstBudget = 0
	}

	offset := 0
	for frag := uint16(0); frag < nfragments; frag++ {
		var fragLen int
		headerLen := wire.LongHeaderSize
		pos := headerLen

		if frag == 0 {
			pos += copy(buf[pos:], channel)
			buf[pos] = 0
			pos++
			fragLen = firstBudget
			if fragLen > n-offset {
				fragLen = n - offset
			}
		} else {
			fragLen = budget
			if fragLen > n-offset {
				fragLen = n - offset
			}
		}

		hdr := wire.LongHeader{
			MsgSeqno:       seqno,
			MsgSize:        uint32(n),
			FragmentOffset: uint32(offset),
			FragmentNo:     frag,
			FragmentsInMsg: nfragments,
		}
		wire.EncodeLongHeader(buf[:headerLen], hdr)

		pos += copy(buf[pos:], payload[offset:offset+fragLen])
		offset += fragLen

		if _, err := t.conn.WriteTo(buf[:pos], nil, t.dstAddr); err != nil {
			return fmt.Errorf("%w: %v", ErrTransientIO, err)
		}
	}
	return nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// Recv implements §4.4: it blocks (respecting timeoutMs, <= 0 meaning
// no timeout) until one complete Message is available, a timeout
// expires, or the transport is closed. The returned Message's buffer
// is only valid until the next call to Recv on this Transport (see
// package doc on Message).
func (t *Transport) Recv(timeoutMs int) (*Message, error) {
	if t.pendingRelease != nil {
		t.pendingRelease()
		t.pendingRelease = nil
	}

	t.stats.observeFreeFraction(t.pool.FreeFraction())
	t.stats.maybeReport(t.cfg.Logger)

	if timeoutMs > 0 {
		if err := t.conn.SetReadDeadline(time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrTransientIO, err)
		}
	} else {
		_ = t.conn.SetReadDeadline(time.Time{})
	}

	for {
		msg, err := t.recvOne()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil, ErrTimeout
			}
			if errors.Is(err, ErrClosed) {
				return nil, err
			}
			// Transient read errors and malformed/discarded datagrams
			// loop to the next datagram rather than surfacing upstream
			// (§7: "no datagram-level error is ever propagated").
			continue
		}
		if msg != nil {
			return msg, nil
		}
	}
}

// recvOne reads and processes exactly one datagram, returning a
// completed Message (non-nil) on short messages and final fragments,
// nil on an intermediate fragment or a discarded/malformed datagram
// that the caller should simply retry, or an error. Recv stops only on
// a timeout or ErrClosed; after any other error (pool or arena
// exhaustion, a transient read error) it reads again.
func (t *Transport) recvOne() (*Message, error) {
	desc, err := t.pool.Checkout()
	if err != nil {
		// Arena/pool exhausted: nothing to read into. Treat as a
		// transient condition and let the caller retry once a prior
		// Message's region has been released.
		return nil, fmt.Errorf("%w: %v", ErrTransientIO, err)
	}

	region, err := t.pool.Reserve(maxDatagramSize)
	if err != nil {
		t.pool.Return(desc)
		t.stats.incDiscardedBad()
		return nil, fmt.Errorf("%w: %v", ErrResourceExhausted, err)
	}
	desc.Region = region

	n, _, addr, err := t.conn.ReadFrom(region.Bytes)
	recvUtime := time.Now().UnixMicro()
	if err != nil {
		_ = t.pool.Release(region)
		t.pool.Return(desc)
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, ne
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("%w: %v", ErrTransientIO, err)
	}

	t.checkRecvBufSize(n)
	desc.Addr = addr
	desc.RecvUtime = recvUtime
	desc.Size = n
	datagram := region.Bytes[:n]

	if n < wire.ShortHeaderSize {
		t.stats.incDiscardedBad()
		_ = t.pool.Release(region)
		t.pool.Return(desc)
		return nil, nil
	}

	switch wire.PeekMagic(datagram) {
	case wire.MagicShort:
		msg, err := t.finalizeShort(desc, datagram)
		if err != nil {
			t.stats.incDiscardedBad()
			_ = t.pool.Release(region)
			t.pool.Return(desc)
			return nil, nil
		}
		t.stats.incRx()
		return msg, nil

	case wire.MagicLong:
		// Every fragment's bytes are copied into the reassembly
		// record's own payload buffer, so the scratch region is never
		// retained across datagrams the way a short message's is; it
		// is shrunk and released as soon as handleLongFragment is done
		// with it, regardless of whether the message it belongs to is
		// now complete.
		msg, complete, err := t.handleLongFragment(desc, datagram)
		_ = t.pool.ShrinkLast(region, len(datagram))
		_ = t.pool.Release(region)
		t.pool.Return(desc)
		if err != nil {
			return nil, nil
		}
		if !complete {
			return nil, nil
		}
		t.stats.incRx()
		return msg, nil

	default:
		t.stats.incDiscardedBad()
		_ = t.pool.Release(region)
		t.pool.Return(desc)
		return nil, nil
	}
}

// finalizeShort implements §4.4.1. The returned Message's buffer is
// the arena region itself; release is deferred to the next Recv call
// via pendingRelease (§9 Design Note, "the model used here").
func (t *Transport) finalizeShort(desc *ring.Descriptor, datagram []byte) (*Message, error) {
	channel, dataOffset, err := wire.SplitChannel(datagram[wire.ShortHeaderSize:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDatagram, err)
	}
	dataOffset += wire.ShortHeaderSize
	dataSize := len(datagram) - dataOffset

	if err := t.pool.ShrinkLast(desc.Region, len(datagram)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDatagram, err)
	}

	region := desc.Region
	msg := &Message{
		Channel:    channel,
		RecvUtime:  desc.RecvUtime,
		From:       desc.Addr,
		buf:        datagram,
		dataOffset: dataOffset,
		dataSize:   dataSize,
	}

	t.pendingRelease = func() {
		_ = t.pool.Release(region)
		t.pool.Return(desc)
	}

	return msg, nil
}

// handleLongFragment implements §4.4.2. It returns (msg, true, nil) on
// the final fragment, (nil, false, nil) on an accepted but incomplete
// fragment, and (nil, false, err) on a datagram the caller should
// discard. It never touches desc's scratch region itself: every
// fragment's bytes are copied into the reassembly record's own
// payload, so the caller (recvOne) shrinks and releases the region
// uniformly after this call returns, independent of the outcome.
func (t *Transport) handleLongFragment(desc *ring.Descriptor, datagram []byte) (*Message, bool, error) {
	if len(datagram) < wire.LongHeaderSize {
		t.stats.incDiscardedBad()
		return nil, false, fmt.Errorf("%w: short long-header datagram", ErrMalformedDatagram)
	}
	hdr := wire.DecodeLongHeader(datagram)

	rec, found := t.frags.Lookup(desc.Addr)
	if found && (rec.Seqno != hdr.MsgSeqno || rec.TotalSize != hdr.MsgSize) {
		t.frags.Remove(rec)
		rec, found = nil, false
	}

	if hdr.MsgSize > wire.MTU {
		if found {
			t.frags.Remove(rec)
		}
		return nil, false, fmt.Errorf("%w: total_size %d exceeds MTU", ErrResourceExhausted, hdr.MsgSize)
	}

	body := datagram[wire.LongHeaderSize:]

	if !found && hdr.FragmentNo == 0 {
		channel, dataOffset, err := wire.SplitChannel(body)
		if err != nil {
			t.stats.incDiscardedBad()
			return nil, false, fmt.Errorf("%w: %v", ErrMalformedDatagram, err)
		}
		body = body[dataOffset:]

		created, err := t.frags.Create(desc.Addr, channel, hdr.MsgSeqno, hdr.MsgSize, hdr.FragmentsInMsg, desc.RecvUtime)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", ErrResourceExhausted, err)
		}
		rec = created
		found = true
	}

	if !found {
		// Opening fragment was missed; drop silently, no counter bump.
		return nil, false, fmt.Errorf("%w: no record for fragment_no %d", ErrMalformedDatagram, hdr.FragmentNo)
	}

	complete, err := rec.WriteFragment(hdr.FragmentNo, int(hdr.FragmentOffset), body)
	if err != nil {
		t.frags.Remove(rec)
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedDatagram, err)
	}
	rec.LastActivity = desc.RecvUtime

	if !complete {
		return nil, false, nil
	}

	payload := rec.Payload
	channel := rec.Channel
	recvUtime := rec.LastActivity
	addr := rec.Addr
	t.frags.Remove(rec)

	msg := &Message{
		Channel:    channel,
		RecvUtime:  recvUtime,
		From:       addr,
		buf:        payload,
		dataOffset: 0,
		dataSize:   len(payload),
	}
	return msg, true, nil
}
