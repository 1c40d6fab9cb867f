package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueOverflow is returned (or counted) when a bounded queue is full
	// and the item was dropped.
	ErrQueueOverflow = errors.New("queue overflow")

	// ErrPeerClosed is the termination cause after the remote end closed the
	// stream in an orderly way.
	ErrPeerClosed = errors.New("peer closed connection")

	// ErrReplaced is the termination cause of a connection superseded by a
	// newer one on the same listener.
	ErrReplaced = errors.New("connection replaced by newer peer")

	// ErrClosed is returned by operations on a closed channel.
	ErrClosed = errors.New("channel closed")

	// ErrNoPeer is returned when a datagram is sent before any peer endpoint
	// was configured or learned.
	ErrNoPeer = errors.New("no peer endpoint")
)

// Kind classifies a TransportError.
type Kind uint8

const (
	KindSocket Kind = iota
	KindConnectTimeout
	KindBind
)

func (k Kind) String() string {
	switch k {
	case KindConnectTimeout:
		return "connect timeout"
	case KindBind:
		return "bind"
	default:
		return "socket"
	}
}

// TransportError wraps an OS-level failure with the operation and address
// involved.
type TransportError struct {
	Op   string
	Addr string
	Kind Kind
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Addr, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
