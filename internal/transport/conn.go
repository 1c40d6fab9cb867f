package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/1ureka/simlink/internal/protocol"
	"github.com/1ureka/simlink/internal/queue"
	"github.com/1ureka/simlink/internal/sequence"
	"github.com/1ureka/simlink/internal/util"
	"github.com/google/uuid"
)

// Conn is one reliable stream connection. A receive worker decodes frames into
// the inbound queue, a send worker drains the outbound queue onto the socket
// and an optional keepalive worker enqueues Ping frames.
//
// Its lifecycle ends on Close, on peer EOF, on any socket error and on a
// malformed frame. Done is closed at that point and Err reports the cause.
type Conn struct {
	id     string
	log    util.Scope
	nc     net.Conn
	remote netip.AddrPort
	opts   Options
	seq    *sequence.SeqGen

	inbound  *queue.Ring[Frame]
	outbound *queue.Ring[[]byte]
	wake     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
	err    error

	overflows atomic.Int64
}

// newConn takes ownership of nc and starts the workers.
func newConn(nc net.Conn, opts Options) *Conn {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())

	id := uuid.NewString()[:8]
	c := &Conn{
		id:       id,
		log:      util.Scope(id),
		nc:       nc,
		remote:   addrPortOf(nc.RemoteAddr()),
		opts:     opts,
		seq:      sequence.NewSeqGen(),
		inbound:  queue.New[Frame](opts.InboundCapacity),
		outbound: queue.New[[]byte](opts.OutboundCapacity),
		wake:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}

	c.wg.Add(2)
	go c.recvLoop()
	go c.sendLoop()
	if opts.KeepaliveInterval > 0 {
		c.wg.Add(1)
		go c.keepaliveLoop()
	}

	c.log.Debug("connection open (remote=%s)", nc.RemoteAddr())
	return c
}

func addrPortOf(a net.Addr) netip.AddrPort {
	switch v := a.(type) {
	case *net.TCPAddr:
		ap := v.AddrPort()
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	case *net.UDPAddr:
		ap := v.AddrPort()
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	}
	return netip.AddrPort{}
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// ID returns the short connection id used in log lines.
func (c *Conn) ID() string { return c.id }

// RemoteEndpoint returns the observed address of the peer. It is zero when
// the underlying connection is not an IP socket.
func (c *Conn) RemoteEndpoint() netip.AddrPort { return c.remote }

// Done is closed when the connection has terminated for any reason.
func (c *Conn) Done() <-chan struct{} { return c.ctx.Done() }

// Err returns the termination cause: nil while open or after an explicit
// Close, ErrPeerClosed after EOF, otherwise a *protocol.FrameError or a
// *TransportError.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Overflows returns how many frames were dropped on a full queue.
func (c *Conn) Overflows() int64 { return c.overflows.Load() }

// ---------------------------------------------------------------------------
// Data
// ---------------------------------------------------------------------------

// SendMessage copies a fully encoded frame into the outbound queue and wakes
// the send worker. It never blocks.
func (c *Conn) SendMessage(frame []byte) error {
	if c.isClosed() {
		return ErrClosed
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)
	if !c.outbound.TryEnqueue(buf) {
		c.overflows.Add(1)
		util.Stats.AddOverflow()
		return ErrQueueOverflow
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

// Send encodes msg with the connection's own sequence counter and clock and
// enqueues it.
func (c *Conn) Send(msg protocol.Message) error {
	frame, err := protocol.Encode(msg, c.seq.Next(), c.opts.Clock)
	if err != nil {
		return err
	}
	return c.SendMessage(frame)
}

// TryReceive pops the oldest received frame.
func (c *Conn) TryReceive() (Frame, bool) {
	return c.inbound.TryDequeue()
}

// Close terminates the connection and waits up to JoinTimeout for the
// workers to exit. Calling Close more than once is safe.
func (c *Conn) Close() error {
	c.shutdown(nil)
	if !c.join(c.opts.JoinTimeout) {
		c.log.Warn("workers did not exit within %s", c.opts.JoinTimeout)
	}
	return nil
}

func (c *Conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// shutdown records the first cause, cancels the workers and closes the socket
// to unblock pending reads and writes.
func (c *Conn) shutdown(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.err = cause
	c.mu.Unlock()

	if cause != nil {
		c.log.Info("connection closed: %v", cause)
	} else {
		c.log.Debug("connection closed")
	}
	c.cancel()
	c.nc.Close()
	c.outbound.Clear()
}

func (c *Conn) join(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// ---------------------------------------------------------------------------
// Workers
// ---------------------------------------------------------------------------

// recvLoop reads header then payload, each fully, and pushes decoded frames
// in receive order.
func (c *Conn) recvLoop() {
	defer c.wg.Done()

	hdr := make([]byte, protocol.HeaderSize)
	for {
		c.nc.SetReadDeadline(time.Now().Add(c.opts.IOTimeout))
		if _, err := io.ReadFull(c.nc, hdr); err != nil {
			c.shutdown(c.readErr(err, true))
			return
		}

		h, err := protocol.ReadHeader(hdr)
		if err != nil {
			c.shutdown(err)
			return
		}

		payload := make([]byte, h.PayloadLength)
		if len(payload) > 0 {
			c.nc.SetReadDeadline(time.Now().Add(c.opts.IOTimeout))
			if _, err := io.ReadFull(c.nc, payload); err != nil {
				c.shutdown(c.readErr(err, false))
				return
			}
		}
		util.Stats.AddStreamRecv(protocol.HeaderSize + len(payload))

		msg, err := protocol.DecodePayload(h.Type, payload)
		if errors.Is(err, protocol.ErrUnknownType) {
			// The boundary is still known, so the stream stays usable.
			c.log.Warn("skipping frame: %v", err)
			continue
		}
		if err != nil {
			c.shutdown(err)
			return
		}

		if !c.inbound.TryEnqueue(Frame{Header: h, Msg: msg}) {
			c.overflows.Add(1)
			util.Stats.AddOverflow()
			c.log.Warn("inbound %v, dropped %s seq=%d", ErrQueueOverflow, h.Type, h.Seq)
		}
	}
}

// readErr maps a read failure to a termination cause. EOF at a frame boundary
// is an orderly close; EOF inside a frame is a truncated frame.
func (c *Conn) readErr(err error, atBoundary bool) error {
	if c.ctx.Err() != nil {
		return nil
	}
	if errors.Is(err, io.EOF) && atBoundary {
		return ErrPeerClosed
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &protocol.FrameError{Reason: "stream ended inside frame"}
	}
	return &TransportError{Op: "read", Addr: c.nc.RemoteAddr().String(), Kind: KindSocket, Err: err}
}

// sendLoop is the single writer of the socket.
func (c *Conn) sendLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.wake:
		case <-c.ctx.Done():
			return
		}

		for {
			frame, ok := c.outbound.TryDequeue()
			if !ok {
				break
			}
			c.nc.SetWriteDeadline(time.Now().Add(c.opts.IOTimeout))
			if _, err := c.nc.Write(frame); err != nil {
				if c.ctx.Err() == nil {
					c.shutdown(&TransportError{Op: "write", Addr: c.nc.RemoteAddr().String(), Kind: KindSocket, Err: err})
				}
				return
			}
			util.Stats.AddStreamSent(len(frame))
		}
	}
}

// keepaliveLoop enqueues an empty Ping every interval. A missing Pong never
// closes the connection.
func (c *Conn) keepaliveLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.opts.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.Send(protocol.Ping{}); err != nil && !errors.Is(err, ErrClosed) {
				c.log.Debug("keepalive: %v", err)
			}
		case <-c.ctx.Done():
			return
		}
	}
}
