package transport

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/1ureka/simlink/internal/protocol"
	"github.com/1ureka/simlink/internal/queue"
	"github.com/1ureka/simlink/internal/util"
)

// DatagramOptions configures an unreliable channel. Zero fields take defaults.
type DatagramOptions struct {
	// Accept lists the message types the receiver keeps; everything else is
	// discarded. An empty list accepts every known type.
	Accept []protocol.MsgType

	InboundCapacity int

	// DropRate is the probability in [0,1] that a received datagram is
	// discarded before decoding. Used to simulate a lossy network.
	DropRate float64

	Clock protocol.Clock
}

// DatagramCounters are the per-socket diagnostic counts.
type DatagramCounters struct {
	Received  int64
	Dropped   int64 // by loss injection
	Malformed int64 // short, unknown, filtered or undecodable
	Overflows int64
}

// Datagram is a bound UDP socket with a single peer. The peer is either set
// explicitly or learned from the first accepted datagram.
type Datagram struct {
	conn   *net.UDPConn
	local  netip.AddrPort
	accept [256]bool
	clock  protocol.Clock

	inbound *queue.Ring[Frame]

	mu      sync.Mutex
	peer    netip.AddrPort
	hasPeer bool

	dropRate atomic.Uint64 // math.Float64bits

	received, dropped, malformed, overflows atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ListenDatagram binds addr and starts the receive worker.
func ListenDatagram(addr string, opts DatagramOptions) (*Datagram, error) {
	ua, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, &TransportError{Op: "listen", Addr: addr, Kind: KindBind, Err: err}
	}
	conn, err := net.ListenUDP("udp", ua)
	if err != nil {
		return nil, &TransportError{Op: "listen", Addr: addr, Kind: KindBind, Err: err}
	}

	if opts.InboundCapacity <= 0 {
		opts.InboundCapacity = defaultQueueCapacity
	}
	if opts.Clock == nil {
		opts.Clock = protocol.NewStopwatch()
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Datagram{
		conn:    conn,
		local:   addrPortOf(conn.LocalAddr()),
		clock:   opts.Clock,
		inbound: queue.New[Frame](opts.InboundCapacity),
		ctx:     ctx,
		cancel:  cancel,
	}
	if len(opts.Accept) == 0 {
		for t := range d.accept {
			d.accept[t] = protocol.MsgType(t).Known()
		}
	}
	for _, t := range opts.Accept {
		d.accept[t] = true
	}
	d.SetDropRate(opts.DropRate)

	d.wg.Add(1)
	go d.recvLoop()

	util.LogInfo("datagram channel bound on udp %s", conn.LocalAddr())
	return d, nil
}

// LocalAddr returns the bound endpoint.
func (d *Datagram) LocalAddr() netip.AddrPort { return d.local }

// SetPeer fixes the destination of Send and stops peer learning.
func (d *Datagram) SetPeer(ap netip.AddrPort) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peer = netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
	d.hasPeer = true
}

// Peer returns the current peer endpoint, if any.
func (d *Datagram) Peer() (netip.AddrPort, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.peer, d.hasPeer
}

// learn adopts from as the peer if none is set yet.
func (d *Datagram) learn(from netip.AddrPort) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.hasPeer {
		d.peer = from
		d.hasPeer = true
		util.LogDebug("datagram peer learned: %s", from)
	}
}

// SetDropRate changes the loss injection probability, clamped to [0,1].
func (d *Datagram) SetDropRate(rate float64) {
	rate = math.Max(0, math.Min(1, rate))
	d.dropRate.Store(math.Float64bits(rate))
}

// DropRate returns the current loss injection probability.
func (d *Datagram) DropRate() float64 {
	return math.Float64frombits(d.dropRate.Load())
}

// Counters returns a snapshot of the diagnostic counts.
func (d *Datagram) Counters() DatagramCounters {
	return DatagramCounters{
		Received:  d.received.Load(),
		Dropped:   d.dropped.Load(),
		Malformed: d.malformed.Load(),
		Overflows: d.overflows.Load(),
	}
}

// Send encodes msg and writes it to the peer on the calling goroutine.
func (d *Datagram) Send(msg protocol.Message, seq uint16) error {
	if d.ctx.Err() != nil {
		return ErrClosed
	}
	peer, ok := d.Peer()
	if !ok {
		return ErrNoPeer
	}
	frame, err := protocol.Encode(msg, seq, d.clock)
	if err != nil {
		return err
	}
	n, err := d.conn.WriteToUDPAddrPort(frame, peer)
	if err != nil {
		return &TransportError{Op: "write", Addr: peer.String(), Kind: KindSocket, Err: err}
	}
	util.Stats.AddDatagramSent(n)
	return nil
}

// TryReceive pops the oldest accepted datagram.
func (d *Datagram) TryReceive() (Frame, bool) {
	return d.inbound.TryDequeue()
}

// Close unbinds the socket and waits for the receive worker.
func (d *Datagram) Close() error {
	if d.ctx.Err() != nil {
		return nil
	}
	d.cancel()
	err := d.conn.Close()
	d.wg.Wait()
	return err
}

// pause waits retryDelay before the next read. It reports false once the
// socket is closing.
func (d *Datagram) pause() bool {
	select {
	case <-time.After(retryDelay):
		return true
	case <-d.ctx.Done():
		return false
	}
}

func (d *Datagram) recvLoop() {
	defer d.wg.Done()

	buf := make([]byte, protocol.MaxPacketSize)
	for {
		n, from, err := d.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if d.ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			// Transient errors such as ICMP port unreachable surface here.
			util.LogDebug("datagram read: %v", err)
			if !d.pause() {
				return
			}
			continue
		}
		from = netip.AddrPortFrom(from.Addr().Unmap(), from.Port())

		if rate := d.DropRate(); rate > 0 && rand.Float64() < rate {
			d.dropped.Add(1)
			util.Stats.AddLossInjected()
			continue
		}

		if n < protocol.HeaderSize || !d.accept[buf[0]] {
			d.discard()
			continue
		}
		h, msg, err := protocol.Decode(buf[:n])
		if err != nil {
			d.discard()
			continue
		}

		d.learn(from)
		if !d.inbound.TryEnqueue(Frame{Header: h, Msg: msg, From: from}) {
			d.overflows.Add(1)
			util.Stats.AddOverflow()
			continue
		}
		d.received.Add(1)
		util.Stats.AddDatagramRecv(n)
	}
}

func (d *Datagram) discard() {
	d.malformed.Add(1)
	util.Stats.AddBadDatagram()
}
