// Package sequence holds the per-sender sequence counters and the freshness
// rule that decides which unordered datagrams may replace the cached value.
package sequence

import "sync/atomic"

// SeqGen is a per-sender, per-direction sequence number generator.
// It may be shared between the tick goroutine and a keepalive goroutine,
// so all operations are atomic.
type SeqGen struct {
	val atomic.Uint32
}

// NewSeqGen creates a new sequence generator starting at 0.
// The first call to Next() returns 1.
func NewSeqGen() *SeqGen {
	return &SeqGen{}
}

// Next returns the next sequence number. It wraps from 65535 to 0.
func (s *SeqGen) Next() uint16 {
	return uint16(s.val.Add(1))
}
