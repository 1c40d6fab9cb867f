package sequence

import "sync"

// Cursor remembers the last accepted sequence number of one stream.
// It only ever moves forward in 16-bit serial-number order.
type Cursor struct {
	last uint16
}

// Accept applies the freshness rule: seq is fresh when it lies within the
// forward half-window of the last accepted value, i.e. int16(seq-last) > 0,
// or while the cursor is still at its bootstrap value 0. A fresh seq becomes
// the new last value. Duplicates and stale numbers are rejected.
func (c *Cursor) Accept(seq uint16) bool {
	if int16(seq-c.last) > 0 || c.last == 0 {
		c.last = seq
		return true
	}
	return false
}

// Last returns the last accepted sequence number.
func (c *Cursor) Last() uint16 { return c.last }

// Latest is a single-slot cache fed by an unordered stream. Writes from the
// receive path and reads from the consumer are serialized by one mutex; the
// slot keeps no history.
type Latest[T any] struct {
	mu     sync.Mutex
	value  T
	ok     bool
	cursor Cursor
}

// Offer stores v if seq passes the freshness rule and reports whether it did.
func (l *Latest[T]) Offer(seq uint16, v T) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.cursor.Accept(seq) {
		return false
	}
	l.value = v
	l.ok = true
	return true
}

// Load returns the cached value and whether any value was ever accepted.
func (l *Latest[T]) Load() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value, l.ok
}

// LastSeq returns the sequence number of the cached value.
func (l *Latest[T]) LastSeq() uint16 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cursor.Last()
}
