package protocol

import "fmt"

// Message is implemented by every payload in the catalog. Values are built at
// send time and consumed once at receive time; they are never mutated after
// construction.
type Message interface {
	Type() MsgType
	encode(w *Writer)
}

// ---------------------------------------------------------------------------
// Controller → Host
// ---------------------------------------------------------------------------

// Hello opens the handshake. Token is zero padded to TokenSize on the wire.
type Hello struct {
	Token        [TokenSize]byte
	CallbackPort uint16 // datagram port the controller listens on
	DisplayName  string
}

// NewHello builds a Hello with the token copied (and truncated) into the
// fixed-width field.
func NewHello(token string, callbackPort uint16, displayName string) Hello {
	h := Hello{CallbackPort: callbackPort, DisplayName: displayName}
	copy(h.Token[:], token)
	return h
}

// TokenString returns the token with its zero padding removed.
func (m Hello) TokenString() string { return TrimToken(m.Token[:]) }

// Input is the per-tick driving input.
type Input struct {
	Steer     float32 // [-1, 1]
	Throttle  float32 // [0, 1]
	Brake     float32 // [0, 1]
	Handbrake uint8   // 0 or 1
}

// Validate reports the first field outside its documented range.
func (m Input) Validate() error {
	switch {
	case !(m.Steer >= -1 && m.Steer <= 1):
		return fmt.Errorf("steer %v out of range [-1,1]", m.Steer)
	case !(m.Throttle >= 0 && m.Throttle <= 1):
		return fmt.Errorf("throttle %v out of range [0,1]", m.Throttle)
	case !(m.Brake >= 0 && m.Brake <= 1):
		return fmt.Errorf("brake %v out of range [0,1]", m.Brake)
	case m.Handbrake > 1:
		return fmt.Errorf("handbrake %d must be 0 or 1", m.Handbrake)
	}
	return nil
}

// Gear range: -1 reverse, 0 neutral, 1..GearMax forward.
const (
	GearReverse int8 = -1
	GearNeutral int8 = 0
	GearMax     int8 = 6
)

// SetGear selects a gear.
type SetGear struct {
	Gear int8
}

func (m SetGear) Validate() error {
	if m.Gear < GearReverse || m.Gear > GearMax {
		return fmt.Errorf("gear %d out of range [%d,%d]", m.Gear, GearReverse, GearMax)
	}
	return nil
}

type ToggleHeadlights struct {
	On uint8
}

type SetIndicator struct {
	Mode IndicatorMode
}

func (m SetIndicator) Validate() error {
	if !m.Mode.Valid() {
		return fmt.Errorf("invalid indicator mode %d", m.Mode)
	}
	return nil
}

type SetCameraFocus struct {
	Part CameraPart
}

func (m SetCameraFocus) Validate() error {
	if !m.Part.Valid() {
		return fmt.Errorf("invalid camera part %d", m.Part)
	}
	return nil
}

type ResetCar struct{}

type Ping struct{}

// ---------------------------------------------------------------------------
// Host → Controller
// ---------------------------------------------------------------------------

type Welcome struct {
	SessionID uint32
	TickRate  uint8
	CarID     uint8
}

// State is the telemetry snapshot broadcast every state tick.
type State struct {
	Position              Vec3
	Rotation              Quat
	SpeedKmh              float32
	RPM                   float32
	Gear                  int8
	SteerAngle            float32
	WheelSlip             [4]float32 // FL, FR, RL, RR
	Lights                LightFlags
	Indicator             IndicatorMode
	CameraPart            CameraPart
	LastProcessedInputSeq uint16
}

type Notice struct {
	Code uint8
	Text string
}

type Pong struct{}

// ---------------------------------------------------------------------------
// Type codes
// ---------------------------------------------------------------------------

func (Hello) Type() MsgType            { return TypeHello }
func (Welcome) Type() MsgType          { return TypeWelcome }
func (Input) Type() MsgType            { return TypeInput }
func (State) Type() MsgType            { return TypeState }
func (SetGear) Type() MsgType          { return TypeSetGear }
func (ToggleHeadlights) Type() MsgType { return TypeToggleHeadlights }
func (SetIndicator) Type() MsgType     { return TypeSetIndicator }
func (SetCameraFocus) Type() MsgType   { return TypeSetCameraFocus }
func (ResetCar) Type() MsgType         { return TypeResetCar }
func (Notice) Type() MsgType           { return TypeNotice }
func (Ping) Type() MsgType             { return TypePing }
func (Pong) Type() MsgType             { return TypePong }

// ---------------------------------------------------------------------------
// Payload layouts
// ---------------------------------------------------------------------------

func (m Hello) encode(w *Writer) {
	w.Fixed(m.Token[:], TokenSize)
	w.U16(m.CallbackPort)
	w.Text(m.DisplayName)
}

func (m Welcome) encode(w *Writer) {
	w.U32(m.SessionID)
	w.U8(m.TickRate)
	w.U8(m.CarID)
}

func (m Input) encode(w *Writer) {
	w.F32(m.Steer)
	w.F32(m.Throttle)
	w.F32(m.Brake)
	w.U8(m.Handbrake)
}

func (m State) encode(w *Writer) {
	w.Vec3(m.Position)
	w.Quat(m.Rotation)
	w.F32(m.SpeedKmh)
	w.F32(m.RPM)
	w.I8(m.Gear)
	w.F32(m.SteerAngle)
	for _, s := range m.WheelSlip {
		w.F32(s)
	}
	w.U8(uint8(m.Lights))
	w.U8(uint8(m.Indicator))
	w.U8(uint8(m.CameraPart))
	w.U16(m.LastProcessedInputSeq)
}

func (m SetGear) encode(w *Writer)          { w.I8(m.Gear) }
func (m ToggleHeadlights) encode(w *Writer) { w.U8(m.On) }
func (m SetIndicator) encode(w *Writer)     { w.U8(uint8(m.Mode)) }
func (m SetCameraFocus) encode(w *Writer)   { w.U8(uint8(m.Part)) }
func (ResetCar) encode(*Writer)             {}
func (Ping) encode(*Writer)                 {}
func (Pong) encode(*Writer)                 {}

func (m Notice) encode(w *Writer) {
	w.U8(m.Code)
	w.Text(m.Text)
}

// decodePayload parses a payload of the given type. The caller checks r.Err()
// and that the whole payload was consumed.
func decodePayload(t MsgType, r *Reader) (Message, error) {
	switch t {
	case TypeHello:
		var m Hello
		copy(m.Token[:], r.Fixed(TokenSize))
		m.CallbackPort = r.U16()
		m.DisplayName = r.Text()
		return m, nil
	case TypeWelcome:
		return Welcome{SessionID: r.U32(), TickRate: r.U8(), CarID: r.U8()}, nil
	case TypeInput:
		return Input{Steer: r.F32(), Throttle: r.F32(), Brake: r.F32(), Handbrake: r.U8()}, nil
	case TypeState:
		var m State
		m.Position = r.Vec3()
		m.Rotation = r.Quat()
		m.SpeedKmh = r.F32()
		m.RPM = r.F32()
		m.Gear = r.I8()
		m.SteerAngle = r.F32()
		for i := range m.WheelSlip {
			m.WheelSlip[i] = r.F32()
		}
		m.Lights = LightFlags(r.U8())
		m.Indicator = IndicatorMode(r.U8())
		m.CameraPart = CameraPart(r.U8())
		m.LastProcessedInputSeq = r.U16()
		return m, nil
	case TypeSetGear:
		return SetGear{Gear: r.I8()}, nil
	case TypeToggleHeadlights:
		return ToggleHeadlights{On: r.U8()}, nil
	case TypeSetIndicator:
		return SetIndicator{Mode: IndicatorMode(r.U8())}, nil
	case TypeSetCameraFocus:
		return SetCameraFocus{Part: CameraPart(r.U8())}, nil
	case TypeResetCar:
		return ResetCar{}, nil
	case TypeNotice:
		return Notice{Code: r.U8(), Text: r.Text()}, nil
	case TypePing:
		return Ping{}, nil
	case TypePong:
		return Pong{}, nil
	}
	return nil, fmt.Errorf("%w %d", ErrUnknownType, uint8(t))
}
