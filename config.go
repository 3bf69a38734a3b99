package zcm

import (
	"net"

	"github.com/sirupsen/logrus"

	"github.com/zcmgo/udpm/internal/logging"
)

// Config carries the construction inputs for a Transport: the
// multicast group, the desired kernel receive buffer size, multicast
// TTL, and the local resource caps governing the ring arena, scratch
// pool, and fragment table.
type Config struct {
	GroupAddr net.IP
	Port      uint16

	// Interface pins the multicast join/send to one NIC; nil lets the
	// OS pick.
	Interface *net.Interface

	// TTL is the multicast TTL used on the send socket. 0 selects a
	// TTL of 1; don't use anything above 1.
	TTL int

	// RecvBufSize requests a kernel SO_RCVBUF size; 0 leaves the OS
	// default in place.
	RecvBufSize int

	// RingBufSize overrides DefaultRingBufSize when non-zero.
	RingBufSize int

	// PoolDepth overrides DefaultRecvBufs when non-zero.
	PoolDepth int

	// MaxFragBufTotalSize overrides MaxFragBufTotalSize when non-zero.
	MaxFragBufTotalSize uint32

	// MaxNumFragBufs overrides MaxNumFragBufs when non-zero.
	MaxNumFragBufs int

	// Logger receives diagnostics (loss/buffer reports, startup
	// warnings). If nil, a warn-level logger writing to stderr is used.
	Logger *logrus.Logger
}

func (c Config) withDefaults() Config {
	if c.RingBufSize <= 0 {
		c.RingBufSize = DefaultRingBufSize
	}
	if c.PoolDepth <= 0 {
		c.PoolDepth = DefaultRecvBufs
	}
	if c.MaxFragBufTotalSize <= 0 {
		c.MaxFragBufTotalSize = MaxFragBufTotalSize
	}
	if c.MaxNumFragBufs <= 0 {
		c.MaxNumFragBufs = MaxNumFragBufs
	}
	if c.Logger == nil {
		logger, err := logging.New(logging.Config{Level: "warn"})
		if err != nil {
			logger = logrus.New()
			logger.SetLevel(logrus.WarnLevel)
		}
		c.Logger = logger
	}
	return c
}
