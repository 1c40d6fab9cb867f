package protocol_test

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/1ureka/simlink/internal/protocol"
)

const testClock = protocol.FixedClock(123456)

// maxNoticeText is the longest Notice text that still fits in one packet:
// payload = code(1) + length(2) + text.
const maxNoticeText = protocol.MaxPayloadSize - 3

// TestEncodeDecodeRoundTrip verifies decode(encode(m)) == m for every message
// type, including boundary values.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	testCases := []struct {
		name string
		msg  protocol.Message
	}{
		{"Hello", protocol.NewHello("good", 9002, "pilot")},
		{"Hello full token, empty name", protocol.NewHello("0123456789abcdef", 0, "")},
		{"Hello unicode name", protocol.NewHello("t", 65535, "駕駛員 🚗")},
		{"Welcome", protocol.Welcome{SessionID: 0xDEADBEEF, TickRate: 50, CarID: 1}},
		{"Input steer -1", protocol.Input{Steer: -1, Throttle: 0.75, Brake: 0, Handbrake: 1}},
		{"Input steer 1", protocol.Input{Steer: 1, Throttle: 1, Brake: 1, Handbrake: 0}},
		{"State", protocol.State{
			Position:              protocol.Vec3{X: 1.5, Y: -2.25, Z: 1000},
			Rotation:              protocol.Quat{X: 0, Y: 0.7071, Z: 0, W: 0.7071},
			SpeedKmh:              123.4,
			RPM:                   6000,
			Gear:                  -1,
			SteerAngle:            -30,
			WheelSlip:             [4]float32{0.1, 0.2, 0.3, 0.4},
			Lights:                protocol.LightHeadlight,
			Indicator:             protocol.IndicatorHazard,
			CameraPart:            protocol.CameraDashboard,
			LastProcessedInputSeq: 65535,
		}},
		{"SetGear reverse", protocol.SetGear{Gear: -1}},
		{"SetGear sixth", protocol.SetGear{Gear: 6}},
		{"ToggleHeadlights", protocol.ToggleHeadlights{On: 1}},
		{"SetIndicator", protocol.SetIndicator{Mode: protocol.IndicatorLeft}},
		{"SetCameraFocus", protocol.SetCameraFocus{Part: protocol.CameraEngine}},
		{"ResetCar", protocol.ResetCar{}},
		{"Notice empty", protocol.Notice{Code: protocol.NoticeInfo, Text: ""}},
		{"Notice near max", protocol.Notice{Code: protocol.NoticeAuthFailure, Text: strings.Repeat("x", maxNoticeText)}},
		{"Ping", protocol.Ping{}},
		{"Pong", protocol.Pong{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			frame, err := protocol.Encode(tc.msg, 42, testClock)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			h, got, err := protocol.Decode(frame)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			if h.Type != tc.msg.Type() {
				t.Errorf("Type mismatch: got %s, want %s", h.Type, tc.msg.Type())
			}
			if h.Seq != 42 {
				t.Errorf("Seq mismatch: got %d, want 42", h.Seq)
			}
			if h.TimestampMs != uint32(testClock) {
				t.Errorf("TimestampMs mismatch: got %d, want %d", h.TimestampMs, uint32(testClock))
			}
			if !reflect.DeepEqual(got, tc.msg) {
				t.Errorf("Message mismatch:\n got  %+v\n want %+v", got, tc.msg)
			}
		})
	}
}

// TestHeaderPayloadLengthExact checks that PayloadLength equals the number of
// bytes that follow the header.
func TestHeaderPayloadLengthExact(t *testing.T) {
	testCases := []struct {
		msg  protocol.Message
		want int
	}{
		{protocol.NewHello("abc", 1, "xy"), protocol.TokenSize + 2 + 2 + 2},
		{protocol.Welcome{}, 6},
		{protocol.Input{}, 13},
		{protocol.State{}, 12 + 16 + 4 + 4 + 1 + 4 + 16 + 1 + 1 + 1 + 2},
		{protocol.SetGear{}, 1},
		{protocol.ResetCar{}, 0},
		{protocol.Notice{Text: "hello"}, 1 + 2 + 5},
		{protocol.Ping{}, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.msg.Type().String(), func(t *testing.T) {
			frame, err := protocol.Encode(tc.msg, 1, testClock)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			h, err := protocol.ReadHeader(frame)
			if err != nil {
				t.Fatalf("ReadHeader failed: %v", err)
			}
			if int(h.PayloadLength) != len(frame)-protocol.HeaderSize {
				t.Errorf("PayloadLength %d, actual payload %d bytes", h.PayloadLength, len(frame)-protocol.HeaderSize)
			}
			if int(h.PayloadLength) != tc.want {
				t.Errorf("PayloadLength %d, want %d", h.PayloadLength, tc.want)
			}
		})
	}
}

// TestHeaderLayout pins the little-endian byte layout of the header.
func TestHeaderLayout(t *testing.T) {
	frame, err := protocol.Encode(protocol.SetGear{Gear: 3}, 0x0102, protocol.FixedClock(0x0A0B0C0D))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := []byte{
		byte(protocol.TypeSetGear),
		0x02, 0x01,
		0x0D, 0x0C, 0x0B, 0x0A,
		0x01, 0x00,
		0x03,
	}
	if !bytes.Equal(frame, want) {
		t.Errorf("frame bytes:\n got  % x\n want % x", frame, want)
	}
}

// TestDecodeTruncated verifies that short headers and short payloads are
// reported as frame errors rather than decoded into garbage.
func TestDecodeTruncated(t *testing.T) {
	full, err := protocol.Encode(protocol.Input{Steer: 0.5}, 7, testClock)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	testCases := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"8 bytes (one less than HeaderSize)", full[:protocol.HeaderSize-1]},
		{"header only", full[:protocol.HeaderSize]},
		{"payload missing last byte", full[:len(full)-1]},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := protocol.Decode(tc.data)
			if err == nil {
				t.Fatal("Expected error for truncated frame, got nil")
			}
			var fe *protocol.FrameError
			if !errors.As(err, &fe) {
				t.Errorf("Expected *FrameError, got %T: %v", err, err)
			}
			if !errors.Is(err, protocol.ErrFrame) {
				t.Errorf("Expected errors.Is(err, ErrFrame)")
			}
		})
	}
}

// TestDecodeLengthMismatch verifies that a header declaring more bytes than
// the schema consumes is rejected.
func TestDecodeLengthMismatch(t *testing.T) {
	frame, err := protocol.Encode(protocol.SetGear{Gear: 2}, 1, testClock)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	frame = append(frame, 0xFF)
	protocol.PutHeader(frame, protocol.Header{Type: protocol.TypeSetGear, Seq: 1, PayloadLength: 2})

	if _, _, err := protocol.Decode(frame); !errors.Is(err, protocol.ErrFrame) {
		t.Fatalf("Expected frame error, got %v", err)
	}
}

// TestReadHeaderOversize rejects headers that declare more than a packet.
func TestReadHeaderOversize(t *testing.T) {
	b := make([]byte, protocol.HeaderSize)
	protocol.PutHeader(b, protocol.Header{Type: protocol.TypeNotice, PayloadLength: protocol.MaxPayloadSize + 1})
	if _, err := protocol.ReadHeader(b); !errors.Is(err, protocol.ErrFrame) {
		t.Fatalf("Expected frame error, got %v", err)
	}

	protocol.PutHeader(b, protocol.Header{Type: protocol.TypeNotice, PayloadLength: protocol.MaxPayloadSize})
	if _, err := protocol.ReadHeader(b); err != nil {
		t.Fatalf("Max payload should be accepted, got %v", err)
	}
}

func TestDecodeUnknownType(t *testing.T) {
	b := make([]byte, protocol.HeaderSize)
	protocol.PutHeader(b, protocol.Header{Type: protocol.MsgType(200)})
	_, _, err := protocol.Decode(b)
	if !errors.Is(err, protocol.ErrUnknownType) {
		t.Fatalf("Expected ErrUnknownType, got %v", err)
	}
	if !errors.Is(err, protocol.ErrFrame) {
		t.Errorf("ErrUnknownType should match ErrFrame")
	}
}

func TestEncodeTooLarge(t *testing.T) {
	_, err := protocol.Encode(protocol.Notice{Text: strings.Repeat("x", maxNoticeText+1)}, 1, testClock)
	if !errors.Is(err, protocol.ErrFrame) {
		t.Fatalf("Expected frame error for oversize payload, got %v", err)
	}
}

// TestTokenPadding checks that the fixed token field is zero padded on the
// wire and compared after trimming.
func TestTokenPadding(t *testing.T) {
	hello := protocol.NewHello("good", 9002, "")
	frame, err := protocol.Encode(hello, 1, testClock)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	token := frame[protocol.HeaderSize : protocol.HeaderSize+protocol.TokenSize]
	if !bytes.Equal(token, append([]byte("good"), make([]byte, 12)...)) {
		t.Errorf("token bytes % x", token)
	}

	_, msg, err := protocol.Decode(frame)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if got := msg.(protocol.Hello).TokenString(); got != "good" {
		t.Errorf("TokenString() = %q, want %q", got, "good")
	}
	if got := protocol.TrimToken([]byte("ab\x00\x00")); got != "ab" {
		t.Errorf("TrimToken = %q", got)
	}
	if got := protocol.NewHello("0123456789abcdefOVERFLOW", 0, "").TokenString(); got != "0123456789abcdef" {
		t.Errorf("long token should be truncated, got %q", got)
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"input ok", protocol.Input{Steer: -1, Throttle: 1, Brake: 0, Handbrake: 1}.Validate(), false},
		{"steer high", protocol.Input{Steer: 1.01}.Validate(), true},
		{"throttle negative", protocol.Input{Throttle: -0.1}.Validate(), true},
		{"brake high", protocol.Input{Brake: 2}.Validate(), true},
		{"handbrake 2", protocol.Input{Handbrake: 2}.Validate(), true},
		{"gear -1", protocol.SetGear{Gear: -1}.Validate(), false},
		{"gear 6", protocol.SetGear{Gear: 6}.Validate(), false},
		{"gear 7", protocol.SetGear{Gear: 7}.Validate(), true},
		{"gear -2", protocol.SetGear{Gear: -2}.Validate(), true},
		{"indicator hazard", protocol.SetIndicator{Mode: protocol.IndicatorHazard}.Validate(), false},
		{"indicator 4", protocol.SetIndicator{Mode: 4}.Validate(), true},
		{"camera dashboard", protocol.SetCameraFocus{Part: protocol.CameraDashboard}.Validate(), false},
		{"camera 10", protocol.SetCameraFocus{Part: 10}.Validate(), true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if (tc.err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", tc.err, tc.wantErr)
			}
		})
	}
}

func TestParseNames(t *testing.T) {
	if m, err := protocol.ParseIndicator("hazard"); err != nil || m != protocol.IndicatorHazard {
		t.Errorf("ParseIndicator(hazard) = %v, %v", m, err)
	}
	if _, err := protocol.ParseIndicator("up"); err == nil {
		t.Error("ParseIndicator(up) should fail")
	}
	if p, err := protocol.ParseCameraPart("engine"); err != nil || p != protocol.CameraEngine {
		t.Errorf("ParseCameraPart(engine) = %v, %v", p, err)
	}
	if p := protocol.CameraPart(3); p.String() != "rr-wheel" {
		t.Errorf("CameraPart(3).String() = %q", p.String())
	}
	if s := protocol.MsgType(99).String(); s != "MsgType(99)" {
		t.Errorf("unknown type String() = %q", s)
	}
}
