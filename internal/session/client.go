package session

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"

	"github.com/1ureka/simlink/internal/config"
	"github.com/1ureka/simlink/internal/protocol"
	"github.com/1ureka/simlink/internal/queue"
	"github.com/1ureka/simlink/internal/sequence"
	"github.com/1ureka/simlink/internal/transport"
	"github.com/1ureka/simlink/internal/util"
)

type dialResult struct {
	gen  uint64
	conn *transport.Conn
	err  error
}

// Client is the controller end of a link.
type Client struct {
	Observers

	cfg   *config.Config
	clock protocol.Clock
	state stateVar

	gen     uint64
	dials   *queue.Ring[dialResult]
	conn    *transport.Conn
	udp     *transport.Datagram
	welcome protocol.Welcome

	inputSeq *sequence.SeqGen
	latest   *sequence.Latest[protocol.State]
}

// NewClient creates a disconnected client. A nil clock uses a stopwatch.
func NewClient(cfg *config.Config, clock protocol.Clock) *Client {
	if clock == nil {
		clock = protocol.NewStopwatch()
	}
	return &Client{
		cfg:      cfg,
		clock:    clock,
		dials:    queue.New[dialResult](4),
		inputSeq: sequence.NewSeqGen(),
		latest:   &sequence.Latest[protocol.State]{},
	}
}

// State returns the handshake state. Safe from any goroutine.
func (c *Client) State() State { return c.state.load() }

// Welcome returns the Welcome of the current session.
func (c *Client) Welcome() (protocol.Welcome, bool) {
	return c.welcome, c.State() == Authenticated
}

// Connect starts connecting to the configured server in the background and
// returns immediately. The outcome is observed by Tick.
func (c *Client) Connect() error {
	if c.State() != Disconnected {
		return ErrBusy
	}
	c.gen++
	c.state.store(Connecting)

	gen := c.gen
	addr := net.JoinHostPort(c.cfg.ServerHost, strconv.Itoa(int(c.cfg.TCPPort)))
	opts := c.transportOptions()
	util.LogInfo("connecting to %s", addr)

	go func() {
		conn, err := transport.Dial(context.Background(), addr, opts)
		if !c.dials.TryEnqueue(dialResult{gen: gen, conn: conn, err: err}) && conn != nil {
			conn.Close()
		}
	}()
	return nil
}

func (c *Client) transportOptions() transport.Options {
	return transport.Options{
		ConnectTimeout:    c.cfg.ConnectTimeout,
		IOTimeout:         c.cfg.IOTimeout,
		JoinTimeout:       c.cfg.JoinTimeout,
		KeepaliveInterval: c.cfg.KeepaliveInterval,
		InboundCapacity:   c.cfg.QueueCapacity,
		OutboundCapacity:  c.cfg.QueueCapacity,
		Clock:             c.clock,
	}
}

// Tick consumes everything the network goroutines produced since the last
// call and emits the resulting events.
func (c *Client) Tick() {
	c.drainDials()
	if c.conn != nil {
		c.drainReliable()
	}
	if c.conn != nil {
		c.reapClosed()
	}
	c.drainDatagrams()
}

// reapClosed tears the link down once the connection has terminated, after
// delivering whatever the receive worker queued before it stopped.
func (c *Client) reapClosed() {
	select {
	case <-c.conn.Done():
		c.drainReliable()
		if c.conn != nil {
			c.teardown(c.conn.Err())
		}
	default:
	}
}

func (c *Client) drainDials() {
	for {
		r, ok := c.dials.TryDequeue()
		if !ok {
			return
		}
		if r.gen != c.gen || c.State() != Connecting {
			if r.conn != nil {
				r.conn.Close()
			}
			continue
		}
		if r.err != nil {
			util.LogError("connect failed: %v", r.err)
			c.state.store(Disconnected)
			c.emit(Event{Kind: EventConnectionFailed, Err: r.err})
			continue
		}

		c.conn = r.conn
		c.latest = &sequence.Latest[protocol.State]{}
		if err := c.sendHello(c.cfg.Token); err != nil {
			c.teardown(err)
			continue
		}
		c.state.store(AwaitingWelcome)
	}
}

func (c *Client) sendHello(token string) error {
	return c.conn.Send(protocol.NewHello(token, c.cfg.UDPPortClient, c.cfg.DisplayName))
}

// Reauthenticate sends a new Hello after a rejected one. The host leaves the
// connection open after a token mismatch, so no reconnect is needed.
func (c *Client) Reauthenticate(token string) error {
	if c.conn == nil || c.State() != AwaitingWelcome {
		return ErrNotConnected
	}
	return c.sendHello(token)
}

func (c *Client) drainReliable() {
	for {
		f, ok := c.conn.TryReceive()
		if !ok {
			return
		}
		switch m := f.Msg.(type) {
		case protocol.Welcome:
			c.handleWelcome(m)
		case protocol.Notice:
			util.LogWarning("notice from host (code=%d): %s", m.Code, m.Text)
			c.emit(Event{Kind: EventNotice, Notice: m})
		case protocol.Pong:
			util.LogDebug("pong seq=%d", f.Header.Seq)
		default:
			util.LogWarning("unexpected %s on reliable channel", f.Header.Type)
		}
		if c.conn == nil {
			return
		}
	}
}

func (c *Client) handleWelcome(m protocol.Welcome) {
	if c.State() != AwaitingWelcome {
		util.LogWarning("ignoring duplicate welcome (session=%d)", m.SessionID)
		return
	}

	// The datagram channel only starts once the host accepted us.
	udp, err := transport.ListenDatagram(
		net.JoinHostPort(c.cfg.BindAddr, strconv.Itoa(int(c.cfg.UDPPortClient))),
		transport.DatagramOptions{
			Accept:          []protocol.MsgType{protocol.TypeState},
			InboundCapacity: c.cfg.QueueCapacity,
			DropRate:        c.cfg.DropRate,
			Clock:           c.clock,
		},
	)
	if err != nil {
		c.teardown(err)
		return
	}
	udp.SetPeer(netip.AddrPortFrom(c.conn.RemoteEndpoint().Addr(), c.cfg.UDPPortServer))

	c.udp = udp
	c.welcome = m
	c.state.store(Authenticated)
	util.LogSuccess("authenticated (session=%d, car=%d, tick=%dHz)", m.SessionID, m.CarID, m.TickRate)
	c.emit(Event{Kind: EventWelcome, Welcome: m})
}

func (c *Client) drainDatagrams() {
	if c.udp == nil {
		return
	}
	for {
		f, ok := c.udp.TryReceive()
		if !ok {
			return
		}
		st, ok := f.Msg.(protocol.State)
		if !ok {
			continue
		}
		if !c.latest.Offer(f.Header.Seq, st) {
			util.Stats.AddStale()
			util.LogDebug("stale state seq=%d (last=%d)", f.Header.Seq, c.latest.LastSeq())
		}
	}
}

// LatestState returns the freshest State received in this session.
func (c *Client) LatestState() (protocol.State, bool) {
	return c.latest.Load()
}

// SetDropRate changes loss injection on the State receiver.
func (c *Client) SetDropRate(rate float64) {
	c.cfg.DropRate = rate
	if c.udp != nil {
		c.udp.SetDropRate(rate)
	}
}

// ---------------------------------------------------------------------------
// Outbound
// ---------------------------------------------------------------------------

// SendInput sends one input sample on the datagram channel with the next
// input sequence number.
func (c *Client) SendInput(in protocol.Input) error {
	if c.State() != Authenticated || c.udp == nil {
		return ErrNotConnected
	}
	if err := in.Validate(); err != nil {
		return fmt.Errorf("input: %w", err)
	}
	return c.udp.Send(in, c.inputSeq.Next())
}

func (c *Client) sendCommand(msg protocol.Message) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	return c.conn.Send(msg)
}

func (c *Client) SetGear(gear int8) error {
	m := protocol.SetGear{Gear: gear}
	if err := m.Validate(); err != nil {
		return err
	}
	return c.sendCommand(m)
}

func (c *Client) ToggleHeadlights(on bool) error {
	var v uint8
	if on {
		v = 1
	}
	return c.sendCommand(protocol.ToggleHeadlights{On: v})
}

func (c *Client) SetIndicator(mode protocol.IndicatorMode) error {
	m := protocol.SetIndicator{Mode: mode}
	if err := m.Validate(); err != nil {
		return err
	}
	return c.sendCommand(m)
}

func (c *Client) SetCameraFocus(part protocol.CameraPart) error {
	m := protocol.SetCameraFocus{Part: part}
	if err := m.Validate(); err != nil {
		return err
	}
	return c.sendCommand(m)
}

func (c *Client) ResetCar() error {
	return c.sendCommand(protocol.ResetCar{})
}

// ---------------------------------------------------------------------------
// Teardown
// ---------------------------------------------------------------------------

// Close tears down both channels. A pending Connect is abandoned.
func (c *Client) Close() error {
	if c.State() == Disconnected {
		return nil
	}
	c.gen++
	c.teardown(nil)
	return nil
}

// teardown closes both channels and emits Disconnected once per link.
func (c *Client) teardown(cause error) {
	if c.State() == Disconnected {
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	if c.udp != nil {
		c.udp.Close()
		c.udp = nil
	}
	c.state.store(Disconnected)
	if cause != nil {
		util.LogWarning("disconnected: %v", cause)
	} else {
		util.LogInfo("disconnected")
	}
	c.emit(Event{Kind: EventDisconnected, Err: cause})
}
