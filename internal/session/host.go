package session

import (
	"net"
	"net/netip"
	"strconv"
	"time"

	"github.com/1ureka/simlink/internal/config"
	"github.com/1ureka/simlink/internal/protocol"
	"github.com/1ureka/simlink/internal/sequence"
	"github.com/1ureka/simlink/internal/transport"
	"github.com/1ureka/simlink/internal/util"
)

// Simulation is the host-side collaborator. It only sees decoded, freshness
// filtered values and never touches sockets or sequence numbers.
type Simulation interface {
	ApplyInput(protocol.Input)
	SetGear(int8)
	SetHeadlights(bool)
	SetIndicator(protocol.IndicatorMode)
	SetCameraFocus(protocol.CameraPart)
	ResetCar()
	Snapshot() protocol.State
}

// Info describes the authenticated session of a host.
type Info struct {
	ID          uint32
	DisplayName string
	Remote      netip.AddrPort // observed stream endpoint
	DatagramTo  netip.AddrPort // observed address + declared callback port
	Started     time.Time
}

// Host is the simulation end of a link. It serves one controller at a time.
type Host struct {
	Observers

	cfg   *config.Config
	sim   Simulation
	clock protocol.Clock
	state stateVar

	ln   *transport.Listener
	udp  *transport.Datagram
	conn *transport.Conn

	info          Info
	nextSessionID uint32

	inputs   *sequence.Latest[protocol.Input]
	stateSeq *sequence.SeqGen
}

// NewHost creates a host around sim. A nil clock uses a stopwatch.
func NewHost(cfg *config.Config, sim Simulation, clock protocol.Clock) *Host {
	if clock == nil {
		clock = protocol.NewStopwatch()
	}
	return &Host{
		cfg:      cfg,
		sim:      sim,
		clock:    clock,
		inputs:   &sequence.Latest[protocol.Input]{},
		stateSeq: sequence.NewSeqGen(),
	}
}

// Start binds the stream listener and the Input datagram receiver.
func (h *Host) Start() error {
	ln, err := transport.Listen(
		net.JoinHostPort(h.cfg.BindAddr, strconv.Itoa(int(h.cfg.TCPPort))),
		transport.Options{
			IOTimeout:        h.cfg.IOTimeout,
			JoinTimeout:      h.cfg.JoinTimeout,
			InboundCapacity:  h.cfg.QueueCapacity,
			OutboundCapacity: h.cfg.QueueCapacity,
			Clock:            h.clock,
		},
	)
	if err != nil {
		return err
	}

	udp, err := transport.ListenDatagram(
		net.JoinHostPort(h.cfg.BindAddr, strconv.Itoa(int(h.cfg.UDPPortServer))),
		transport.DatagramOptions{
			Accept:          []protocol.MsgType{protocol.TypeInput},
			InboundCapacity: h.cfg.QueueCapacity,
			DropRate:        h.cfg.DropRate,
			Clock:           h.clock,
		},
	)
	if err != nil {
		ln.Close()
		return err
	}

	h.ln, h.udp = ln, udp
	return nil
}

// StreamAddr returns the bound stream address, useful with port 0.
func (h *Host) StreamAddr() net.Addr { return h.ln.Addr() }

// DatagramAddr returns the bound datagram endpoint.
func (h *Host) DatagramAddr() netip.AddrPort { return h.udp.LocalAddr() }

// State returns the handshake state of the current controller. Safe from any
// goroutine.
func (h *Host) State() State { return h.state.load() }

// Session returns the current authenticated session, if any.
func (h *Host) Session() (Info, bool) {
	return h.info, h.State() == Authenticated
}

// SetDropRate changes loss injection on the Input receiver.
func (h *Host) SetDropRate(rate float64) { h.udp.SetDropRate(rate) }

// Tick adopts new connections, routes reliable messages in order and applies
// the freshest input to the simulation at most once.
func (h *Host) Tick() {
	h.adopt()
	if h.conn != nil {
		h.drainReliable()
		h.reapClosed()
	}
	h.drainInputs()
}

// reapClosed ends the session once the connection has terminated. Frames the
// receive worker queued before it stopped are routed first.
func (h *Host) reapClosed() {
	select {
	case <-h.conn.Done():
		h.drainReliable()
		h.endSession(h.conn.Err())
	default:
	}
}

func (h *Host) adopt() {
	for {
		c, ok := h.ln.TryAccept()
		if !ok {
			return
		}
		if h.conn != nil {
			h.endSession(transport.ErrReplaced)
		}
		h.conn = c
		h.inputs = &sequence.Latest[protocol.Input]{}
		h.state.store(AwaitingWelcome)
		util.LogInfo("[%s] controller connected from %s", c.ID(), c.RemoteEndpoint())
	}
}

func (h *Host) drainReliable() {
	for {
		f, ok := h.conn.TryReceive()
		if !ok {
			return
		}
		h.route(f)
	}
}

func (h *Host) route(f transport.Frame) {
	switch m := f.Msg.(type) {
	case protocol.Hello:
		h.handleHello(m)
		return
	case protocol.Ping:
		if err := h.conn.Send(protocol.Pong{}); err != nil {
			util.LogDebug("pong: %v", err)
		}
		return
	}

	if h.State() != Authenticated {
		util.LogWarning("[%s] ignoring %s before authentication", h.conn.ID(), f.Header.Type)
		return
	}

	switch m := f.Msg.(type) {
	case protocol.SetGear:
		gear := min(max(m.Gear, protocol.GearReverse), protocol.GearMax)
		util.LogDebug("set gear %d", gear)
		h.sim.SetGear(gear)
	case protocol.ToggleHeadlights:
		util.LogDebug("headlights %t", m.On != 0)
		h.sim.SetHeadlights(m.On != 0)
	case protocol.SetIndicator:
		if !m.Mode.Valid() {
			util.LogWarning("ignoring indicator mode %d", m.Mode)
			return
		}
		util.LogDebug("indicator %s", m.Mode)
		h.sim.SetIndicator(m.Mode)
	case protocol.SetCameraFocus:
		if !m.Part.Valid() {
			util.LogWarning("ignoring camera part %d", m.Part)
			return
		}
		util.LogDebug("camera focus %s", m.Part)
		h.sim.SetCameraFocus(m.Part)
	case protocol.ResetCar:
		util.LogDebug("reset car")
		h.sim.ResetCar()
	default:
		util.LogWarning("unexpected %s on reliable channel", f.Header.Type)
	}
}

func (h *Host) handleHello(m protocol.Hello) {
	c := h.conn
	if h.State() == Authenticated {
		util.LogWarning("[%s] ignoring hello on authenticated session %d", c.ID(), h.info.ID)
		return
	}

	if m.TokenString() != h.cfg.Token {
		util.Stats.AddAuthFailure()
		util.LogWarning("[%s] %v for %q from %s", c.ID(), ErrAuth, m.DisplayName, c.RemoteEndpoint())
		if err := c.Send(protocol.Notice{Code: protocol.NoticeAuthFailure, Text: "invalid token"}); err != nil {
			util.LogDebug("notice: %v", err)
		}
		// The connection stays open; a corrected Hello may follow.
		h.emit(Event{Kind: EventAuthFailed, Remote: c.RemoteEndpoint(), Err: ErrAuth})
		return
	}

	id := h.nextSessionID + 1
	welcome := protocol.Welcome{
		SessionID: id,
		TickRate:  uint8(h.cfg.SimTickRate),
		CarID:     h.cfg.CarID,
	}
	if err := c.Send(welcome); err != nil {
		util.LogError("[%s] welcome: %v", c.ID(), err)
		return
	}

	h.nextSessionID = id
	h.info = Info{
		ID:          id,
		DisplayName: m.DisplayName,
		Remote:      c.RemoteEndpoint(),
		DatagramTo:  netip.AddrPortFrom(c.RemoteEndpoint().Addr(), m.CallbackPort),
		Started:     time.Now(),
	}
	h.udp.SetPeer(h.info.DatagramTo)
	h.state.store(Authenticated)
	util.Stats.AddSession()
	util.LogSuccess("[%s] session %d opened for %q (datagrams to %s)", c.ID(), h.info.ID, m.DisplayName, h.info.DatagramTo)
	h.emit(Event{Kind: EventSessionOpened, Session: h.info, Remote: h.info.Remote})
}

// drainInputs empties the Input queue and applies the freshest accepted one.
func (h *Host) drainInputs() {
	fresh := false
	for {
		f, ok := h.udp.TryReceive()
		if !ok {
			break
		}
		in, ok := f.Msg.(protocol.Input)
		if !ok || h.State() != Authenticated {
			continue
		}
		if h.inputs.Offer(f.Header.Seq, in) {
			fresh = true
		} else {
			util.Stats.AddStale()
			util.LogDebug("stale input seq=%d (last=%d)", f.Header.Seq, h.inputs.LastSeq())
		}
	}
	if fresh {
		in, _ := h.inputs.Load()
		h.sim.ApplyInput(in)
	}
}

// SendState sends one State snapshot stamped with the last accepted input
// sequence number.
func (h *Host) SendState() error {
	if h.State() != Authenticated {
		return ErrNotConnected
	}
	st := h.sim.Snapshot()
	st.LastProcessedInputSeq = h.inputs.LastSeq()
	return h.udp.Send(st, h.stateSeq.Next())
}

// endSession closes the current connection and emits Disconnected.
func (h *Host) endSession(cause error) {
	c := h.conn
	h.conn = nil
	c.Close()

	if h.State() == Authenticated {
		util.Stats.RemoveSession()
	}
	h.state.store(Disconnected)
	util.LogInfo("[%s] controller disconnected: %v", c.ID(), cause)
	h.emit(Event{Kind: EventDisconnected, Session: h.info, Remote: c.RemoteEndpoint(), Err: cause})
	h.info = Info{}
}

// Close stops listening and ends the current session.
func (h *Host) Close() error {
	if h.conn != nil {
		h.endSession(nil)
	}
	var err error
	if h.ln != nil {
		err = h.ln.Close()
	}
	if h.udp != nil {
		h.udp.Close()
	}
	return err
}
