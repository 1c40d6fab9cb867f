// Package transport implements the two channels of a link: a reliable,
// ordered, length-framed TCP stream and an unreliable, filtered UDP datagram
// socket. Both hand received frames to a single consumer through bounded
// queues and never block that consumer.
package transport

import (
	"net/netip"
	"time"

	"github.com/1ureka/simlink/internal/protocol"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultIOTimeout      = 30 * time.Second
	defaultJoinTimeout    = 2 * time.Second
	defaultQueueCapacity  = 128

	// retryDelay paces accept and datagram read loops after an error.
	retryDelay = 100 * time.Millisecond
)

// Options configures a reliable connection. Zero fields take defaults.
type Options struct {
	ConnectTimeout time.Duration // Dial only
	IOTimeout      time.Duration // per read and per write
	JoinTimeout    time.Duration // bounded wait for workers on Close

	// KeepaliveInterval enables the Ping worker when positive.
	KeepaliveInterval time.Duration

	InboundCapacity  int
	OutboundCapacity int

	// Clock stamps frames built by Conn.Send.
	Clock protocol.Clock
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.IOTimeout <= 0 {
		o.IOTimeout = defaultIOTimeout
	}
	if o.JoinTimeout <= 0 {
		o.JoinTimeout = defaultJoinTimeout
	}
	if o.InboundCapacity <= 0 {
		o.InboundCapacity = defaultQueueCapacity
	}
	if o.OutboundCapacity <= 0 {
		o.OutboundCapacity = defaultQueueCapacity
	}
	if o.Clock == nil {
		o.Clock = protocol.NewStopwatch()
	}
	return o
}

// Frame is one decoded message together with its header. From is the source
// endpoint for datagrams and zero for stream frames.
type Frame struct {
	Header protocol.Header
	Msg    protocol.Message
	From   netip.AddrPort
}
