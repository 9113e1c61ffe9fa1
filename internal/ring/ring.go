// Package ring implements a fixed-capacity, lock-free multi-producer
// single-consumer ring buffer of generic fixed-size values.
//
// Each slot carries its own sequence number (the Vyukov ticket pattern):
// a producer reserves a slot by winning a CAS on the tail cursor, writes
// its payload, then publishes by bumping the slot's sequence number. The
// single consumer only ever advances its own head cursor, so Pop needs no
// atomics beyond the sequence check.
package ring

import "sync/atomic"

type slot[T any] struct {
	seq uint64
	val T
}

// Ring is a bounded MPSC queue of T. Capacity must be a power of two.
type Ring[T any] struct {
	mask uint64
	step uint64
	buf  []slot[T]

	head uint64 // consumer-owned, never touched by producers
	tail uint64 // producer-contended cursor
}

// New constructs a ring with the given power-of-two capacity.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		panic("ring: capacity must be a power of two")
	}
	r := &Ring[T]{
		mask: uint64(capacity - 1),
		step: uint64(capacity),
		buf:  make([]slot[T], capacity),
	}
	for i := range r.buf {
		r.buf[i].seq = uint64(i)
	}
	return r
}

// Push attempts to enqueue val. Returns false if the ring is full.
func (r *Ring[T]) Push(val T) bool {
	for {
		tail := atomic.LoadUint64(&r.tail)
		s := &r.buf[tail&r.mask]
		seq := atomic.LoadUint64(&s.seq)

		switch {
		case seq == tail:
			// Slot is free for this tail position; try to claim it.
			if atomic.CompareAndSwapUint64(&r.tail, tail, tail+1) {
				s.val = val
				atomic.StoreUint64(&s.seq, tail+1)
				return true
			}
			// Lost the race to another producer; retry.
		case seq < tail:
			// Consumer has not yet freed this slot: ring is full.
			return false
		default:
			// Another producer already advanced past us; retry.
		}
	}
}

// Pop removes and returns the next value in FIFO order. ok is false if
// the ring is empty. Pop must only be called from the single consumer.
func (r *Ring[T]) Pop() (val T, ok bool) {
	h := r.head
	s := &r.buf[h&r.mask]
	if atomic.LoadUint64(&s.seq) != h+1 {
		return val, false
	}
	val = s.val
	atomic.StoreUint64(&s.seq, h+r.step)
	r.head = h + 1
	return val, true
}

// Drain pops up to limit values, invoking fn for each in FIFO order.
// Returns the number of values drained. limit <= 0 means unlimited.
func (r *Ring[T]) Drain(limit int, fn func(T)) int {
	n := 0
	for limit <= 0 || n < limit {
		val, ok := r.Pop()
		if !ok {
			break
		}
		fn(val)
		n++
	}
	return n
}

// Len estimates the number of queued items. It is exact only when no
// producer is concurrently pushing.
func (r *Ring[T]) Len() int {
	tail := atomic.LoadUint64(&r.tail)
	return int(tail - r.head)
}

// Cap returns the ring's fixed capacity.
func (r *Ring[T]) Cap() int {
	return int(r.step)
}
