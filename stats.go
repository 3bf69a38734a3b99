package zcm

import (
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// Stats holds the receive path's running counters: completed messages
// and discarded datagrams since the last report, and the minimum
// observed ring-arena free fraction since the last report. All three
// are touched from the single receive-path goroutine but exposed via
// Snapshot for concurrent callers (a health-check handler, the demo
// CLI), so they're atomics rather than plain fields guarded by the
// pool's mutex.
type Stats struct {
	rx             atomic.Uint32
	discardedBad   atomic.Uint32
	lowWatermark   atomic.Float64
	lastReportUnix int64 // receive-path-owned, no lock needed
}

func newStats() *Stats {
	s := &Stats{}
	s.lowWatermark.Store(1.0)
	return s
}

func (s *Stats) incRx()           { s.rx.Inc() }
func (s *Stats) incDiscardedBad() { s.discardedBad.Inc() }

func (s *Stats) observeFreeFraction(frac float64) {
	for {
		cur := s.lowWatermark.Load()
		if frac >= cur {
			return
		}
		if s.lowWatermark.CAS(cur, frac) {
			return
		}
	}
}

// Snapshot is a point-in-time, non-resetting read of Stats.
type Snapshot struct {
	Rx           uint32
	DiscardedBad uint32
	LowWatermark float64
}

// Snapshot returns the current counter values without resetting them.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Rx:           s.rx.Load(),
		DiscardedBad: s.discardedBad.Load(),
		LowWatermark: s.lowWatermark.Load(),
	}
}

// maybeReport implements §4.4 step 1: every ~2 seconds, if anything
// was discarded or the buffer ran low, emit a diagnostic line and
// reset the window. Mirrors the reference udp_read_packet's reporting
// cadence, including its quirk of only resetting the report clock
// when the condition actually fires.
func (s *Stats) maybeReport(logger *logrus.Logger) {
	now := time.Now().Unix()
	if now-s.lastReportUnix <= 2 {
		return
	}

	discarded := s.discardedBad.Load()
	low := s.lowWatermark.Load()
	if discarded == 0 && low >= 0.5 {
		return
	}

	rx := s.rx.Load()
	var lossPct float64
	if total := rx + discarded; total > 0 {
		lossPct = float64(discarded) * 100.0 / float64(total)
	}

	logger.WithFields(logrus.Fields{
		"loss_pct":      lossPct,
		"discarded":     discarded,
		"buf_avail_pct": low * 100.0,
	}).Warn("zcm udpm loss/buffer report")

	s.rx.Store(0)
	s.discardedBad.Store(0)
	s.lowWatermark.Store(1.0)
	s.lastReportUnix = now
}
