package ring

import (
	"fmt"
	"net"
	"sync"
)

// ErrPoolExhausted is returned by Checkout when no scratch descriptor
// is available. Under the single-receive-worker model this should
// not happen in steady state: the one checked-out descriptor is
// always returned before the next checkout.
var ErrPoolExhausted = fmt.Errorf("ring: scratch descriptor pool exhausted")

// Descriptor is a reusable handle for one in-flight datagram: a
// non-owning view into the arena, plus the metadata captured while the
// datagram was read from the kernel. It lives on the Pool's empty
// queue when available, or is checked out to the receive path.
type Descriptor struct {
	Region   Region
	Capacity int

	Addr      net.Addr
	RecvUtime int64 // microseconds, receipt of the first datagram
	Size      int   // observed datagram size once known
}

// Pool holds the set of reusable scratch descriptors, partitioned into
// an empty FIFO queue (available) and a filled FIFO queue (read but
// not yet handed upstream). It also owns the single mutex that
// protects the ring arena and both queues, per the transport's
// concurrency model: the scope of each critical section is a pool
// checkout, an arena reservation, an arena shrink, or a region
// release.
type Pool struct {
	mu    sync.Mutex
	arena *Arena

	empty  []*Descriptor
	filled []*Descriptor
}

// NewPool creates a pool of depth scratch descriptors backed by arena.
func NewPool(arena *Arena, depth int) *Pool {
	p := &Pool{arena: arena}
	for i := 0; i < depth; i++ {
		p.empty = append(p.empty, &Descriptor{})
	}
	return p
}

// Checkout removes and returns the descriptor at the front of the
// empty queue. Ownership passes to the caller until Return is called.
func (p *Pool) Checkout() (*Descriptor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.empty) == 0 {
		return nil, ErrPoolExhausted
	}
	d := p.empty[0]
	p.empty = p.empty[1:]
	return d, nil
}

// Return resets d and places it back on the empty queue.
func (p *Pool) Return(d *Descriptor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	*d = Descriptor{}
	p.empty = append(p.empty, d)
}

// EnqueueFilled places a descriptor that has a complete datagram onto
// the filled queue, decoupling the kernel-read step from the upstream
// hand-off.
func (p *Pool) EnqueueFilled(d *Descriptor) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.filled = append(p.filled, d)
}

// DequeueFilled removes and returns the descriptor at the front of the
// filled queue, if any.
func (p *Pool) DequeueFilled() (*Descriptor, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.filled) == 0 {
		return nil, false
	}
	d := p.filled[0]
	p.filled = p.filled[1:]
	return d, true
}

// Reserve reserves maxSize bytes from the underlying arena.
func (p *Pool) Reserve(maxSize int) (Region, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.arena.Reserve(maxSize)
}

// ShrinkLast shrinks the most recent arena reservation to actualSize.
func (p *Pool) ShrinkLast(r Region, actualSize int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.arena.ShrinkLast(r, actualSize)
}

// Release returns a region to the underlying arena.
func (p *Pool) Release(r Region) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.arena.Release(r)
}

// FreeFraction returns the fraction of the arena currently free,
// in [0, 1]. Used by the receive path to track the low watermark.
func (p *Pool) FreeFraction() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return float64(p.arena.Free()) / float64(p.arena.Capacity())
}
