// Package protocol defines the wire format shared by the controller and the
// simulation host: a fixed 9-byte header followed by a fixed-layout payload.
package protocol

import "fmt"

// MsgType identifies the payload schema that follows a header.
type MsgType uint8

// Message type codes. Values are part of the wire format.
const (
	TypeHello            MsgType = 0  // C→H, reliable
	TypeWelcome          MsgType = 1  // H→C, reliable
	TypeInput            MsgType = 2  // C→H, unreliable
	TypeState            MsgType = 3  // H→C, unreliable
	TypeSetGear          MsgType = 4  // C→H, reliable
	TypeToggleHeadlights MsgType = 5  // C→H, reliable
	TypeSetIndicator     MsgType = 6  // C→H, reliable
	TypeSetCameraFocus   MsgType = 7  // C→H, reliable
	TypeResetCar         MsgType = 8  // C→H, reliable, empty
	TypeNotice           MsgType = 9  // H→C, reliable
	TypePing             MsgType = 10 // C→H, reliable, empty
	TypePong             MsgType = 11 // H→C, reliable, empty
)

var typeNames = [...]string{
	TypeHello:            "Hello",
	TypeWelcome:          "Welcome",
	TypeInput:            "Input",
	TypeState:            "State",
	TypeSetGear:          "SetGear",
	TypeToggleHeadlights: "ToggleHeadlights",
	TypeSetIndicator:     "SetIndicator",
	TypeSetCameraFocus:   "SetCameraFocus",
	TypeResetCar:         "ResetCar",
	TypeNotice:           "Notice",
	TypePing:             "Ping",
	TypePong:             "Pong",
}

// Known reports whether t is a message type this protocol version defines.
func (t MsgType) Known() bool {
	return int(t) < len(typeNames)
}

func (t MsgType) String() string {
	if t.Known() {
		return typeNames[t]
	}
	return fmt.Sprintf("MsgType(%d)", uint8(t))
}

// HeaderSize is the fixed header size:
// Type(1) + Seq(2) + TimestampMs(4) + PayloadLength(2).
const HeaderSize = 9

// MaxPacketSize bounds header plus payload so a datagram stays below common
// path MTUs without fragmentation.
const MaxPacketSize = 1400

// MaxPayloadSize is the largest payload a single frame may declare.
const MaxPayloadSize = MaxPacketSize - HeaderSize

// TokenSize is the fixed width of the Hello authentication token.
const TokenSize = 16

// Header precedes every payload on both channels.
type Header struct {
	Type          MsgType
	Seq           uint16 // per-sender, per-direction counter
	TimestampMs   uint32 // sender clock, wraps at 2^32
	PayloadLength uint16 // exact encoded byte count of the payload
}

// IndicatorMode is the turn-signal state.
type IndicatorMode uint8

const (
	IndicatorOff IndicatorMode = iota
	IndicatorLeft
	IndicatorRight
	IndicatorHazard
)

var indicatorNames = [...]string{"off", "left", "right", "hazard"}

func (m IndicatorMode) Valid() bool { return int(m) < len(indicatorNames) }

func (m IndicatorMode) String() string {
	if m.Valid() {
		return indicatorNames[m]
	}
	return fmt.Sprintf("IndicatorMode(%d)", uint8(m))
}

// ParseIndicator maps a lowercase name ("off", "left", ...) to its mode.
func ParseIndicator(s string) (IndicatorMode, error) {
	for i, name := range indicatorNames {
		if name == s {
			return IndicatorMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown indicator mode %q", s)
}

// CameraPart selects which part of the car the host camera frames.
type CameraPart uint8

const (
	CameraFLWheel CameraPart = iota
	CameraFRWheel
	CameraRLWheel
	CameraRRWheel
	CameraEngine
	CameraExhaust
	CameraSteeringLinkage
	CameraBrakeCaliperFront
	CameraSuspensionFront
	CameraDashboard
)

var cameraNames = [...]string{
	"fl-wheel", "fr-wheel", "rl-wheel", "rr-wheel", "engine",
	"exhaust", "steering", "brake-caliper", "suspension", "dashboard",
}

func (p CameraPart) Valid() bool { return int(p) < len(cameraNames) }

func (p CameraPart) String() string {
	if p.Valid() {
		return cameraNames[p]
	}
	return fmt.Sprintf("CameraPart(%d)", uint8(p))
}

// ParseCameraPart maps a name such as "engine" or "fl-wheel" to its id.
func ParseCameraPart(s string) (CameraPart, error) {
	for i, name := range cameraNames {
		if name == s {
			return CameraPart(i), nil
		}
	}
	return 0, fmt.Errorf("unknown camera part %q", s)
}

// LightFlags is a bitset of active car lights.
type LightFlags uint8

const (
	LightHeadlight LightFlags = 1 << iota
)

// Notice codes carried by Notice.Code.
const (
	NoticeInfo        uint8 = 0
	NoticeAuthFailure uint8 = 1
)
