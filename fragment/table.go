// Package fragment implements the per-sender reassembly table for
// long (multi-datagram) ZCM messages: fragment records, capacity
// bounds, and oldest-first eviction. It is accessed only from the
// receive path and requires no lock of its own.
package fragment

import (
	"fmt"
	"net"
)

// ErrResourceExhausted is returned by Table.Create when the table's
// byte or count caps cannot be satisfied even after evicting every
// other record.
var ErrResourceExhausted = fmt.Errorf("fragment: table is full and no record could be evicted")

// ErrFragmentOutOfBounds is returned by Record.WriteFragment when the
// fragment's offset+length would overrun the record's declared total
// size.
var ErrFragmentOutOfBounds = fmt.Errorf("fragment: fragment offset+size exceeds declared total size")

// Record is the per-sender reassembly state for one in-progress
// multi-fragment message. It exclusively owns Payload until
// finalization (FragmentsRemaining reaches 0), at which point
// ownership transfers to the caller that observes completion.
type Record struct {
	Channel string
	Addr    net.Addr

	Payload   []byte
	TotalSize uint32
	Seqno     uint32

	FragmentsRemaining uint16
	LastActivity       int64 // microseconds

	received []bool // per-fragment-index dedup guard
}

// WriteFragment copies data into the record's payload at offset and
// decrements FragmentsRemaining on the first write for fragmentNo.
// Duplicate fragments (same fragmentNo arriving twice) overwrite the
// bytes but do not double-decrement. It reports complete == true once
// FragmentsRemaining reaches zero.
func (r *Record) WriteFragment(fragmentNo uint16, offset int, data []byte) (complete bool, err error) {
	if offset < 0 || offset+len(data) > len(r.Payload) {
		return false, ErrFragmentOutOfBounds
	}

	copy(r.Payload[offset:], data)

	if int(fragmentNo) < len(r.received) && !r.received[fragmentNo] {
		r.received[fragmentNo] = true
		if r.FragmentsRemaining > 0 {
			r.FragmentsRemaining--
		}
	}

	return r.FragmentsRemaining == 0, nil
}

// Table is the bounded collection of fragment records, keyed by
// sender address, enforcing global byte and count caps.
type Table struct {
	maxTotalSize uint32
	maxFragBufs  int

	totalSize uint32
	records   map[string]*Record
}

// NewTable creates an empty table with the given caps.
func NewTable(maxTotalSize uint32, maxFragBufs int) *Table {
	return &Table{
		maxTotalSize: maxTotalSize,
		maxFragBufs:  maxFragBufs,
		records:      make(map[string]*Record),
	}
}

func key(addr net.Addr) string { return addr.String() }

// Lookup returns the live record for sender, if any.
func (t *Table) Lookup(addr net.Addr) (*Record, bool) {
	rec, ok := t.records[key(addr)]
	return rec, ok
}

// Create allocates a new record for sender, evicting the oldest
// records (by LastActivity) as needed to satisfy the table's caps. It
// returns ErrResourceExhausted if the table is empty and the record
// still does not fit.
func (t *Table) Create(addr net.Addr, channel string, seqno uint32, totalSize uint32, nfragments uint16, t0 int64) (*Record, error) {
	for t.wouldExceedCaps(totalSize) && len(t.records) > 0 {
		t.evictOldest()
	}
	if t.wouldExceedCaps(totalSize) {
		return nil, ErrResourceExhausted
	}

	rec := &Record{
		Channel:            channel,
		Addr:               addr,
		Payload:            make([]byte, totalSize),
		TotalSize:          totalSize,
		Seqno:              seqno,
		FragmentsRemaining: nfragments,
		LastActivity:       t0,
		received:           make([]bool, nfragments),
	}
	t.records[key(addr)] = rec
	t.totalSize += totalSize
	return rec, nil
}

// Remove frees rec's bookkeeping. It does not touch rec.Payload —
// callers that have transferred ownership of the payload out of the
// record (on finalization) call Remove after lifting it out.
func (t *Table) Remove(rec *Record) {
	k := key(rec.Addr)
	if existing, ok := t.records[k]; ok && existing == rec {
		delete(t.records, k)
		t.totalSize -= rec.TotalSize
	}
}

// Len reports the number of live records.
func (t *Table) Len() int { return len(t.records) }

// TotalSize reports the sum of live records' declared payload sizes.
func (t *Table) TotalSize() uint32 { return t.totalSize }

func (t *Table) wouldExceedCaps(addedSize uint32) bool {
	return len(t.records)+1 > t.maxFragBufs || t.totalSize+addedSize > t.maxTotalSize
}

func (t *Table) evictOldest() {
	var oldestKey string
	var oldest *Record
	for k, rec := range t.records {
		if oldest == nil || rec.LastActivity < oldest.LastActivity {
			oldest = rec
			oldestKey = k
		}
	}
	if oldest != nil {
		delete(t.records, oldestKey)
		t.totalSize -= oldest.TotalSize
	}
}
