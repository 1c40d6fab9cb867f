package protocol

import (
	"fmt"
	"time"
)

// Clock supplies header timestamps. It is passed explicitly to the encoder so
// tests can use a fixed time.
type Clock interface {
	NowMs() uint32
}

// Stopwatch is a monotonic millisecond clock relative to its creation.
type Stopwatch struct {
	start time.Time
}

func NewStopwatch() *Stopwatch { return &Stopwatch{start: time.Now()} }

// NowMs returns elapsed milliseconds truncated to 32 bits.
func (s *Stopwatch) NowMs() uint32 {
	return uint32(time.Since(s.start).Milliseconds())
}

// FixedClock always reports the same timestamp.
type FixedClock uint32

func (c FixedClock) NowMs() uint32 { return uint32(c) }

// Encode serializes msg into a complete frame: header followed by payload.
// The header's PayloadLength is the exact payload byte count.
func Encode(msg Message, seq uint16, clock Clock) ([]byte, error) {
	w := NewWriter()
	w.Fixed(nil, HeaderSize) // reserved, patched below
	msg.encode(w)
	if err := w.Err(); err != nil {
		return nil, fmt.Errorf("encode %s: %w", msg.Type(), err)
	}

	payloadLen := w.Len() - HeaderSize
	if payloadLen > MaxPayloadSize {
		return nil, fmt.Errorf("encode %s: %w", msg.Type(),
			frameErr("payload exceeds packet limit", HeaderSize+payloadLen, MaxPacketSize))
	}

	var ts uint32
	if clock != nil {
		ts = clock.NowMs()
	}
	buf := w.Bytes()
	PutHeader(buf, Header{
		Type:          msg.Type(),
		Seq:           seq,
		TimestampMs:   ts,
		PayloadLength: uint16(payloadLen),
	})
	return buf, nil
}

// Decode parses one complete frame. It fails with a *FrameError when the
// header is truncated, when fewer than PayloadLength bytes follow it, or when
// the payload schema does not consume exactly PayloadLength bytes. Bytes
// beyond the declared payload are ignored.
func Decode(b []byte) (Header, Message, error) {
	h, err := ReadHeader(b)
	if err != nil {
		return h, nil, err
	}
	end := HeaderSize + int(h.PayloadLength)
	if len(b) < end {
		return h, nil, frameErr("truncated payload", end, len(b))
	}
	msg, err := DecodePayload(h.Type, b[HeaderSize:end])
	return h, msg, err
}

// DecodePayload parses a payload whose type and exact length are already
// known, as on the stream channel after the header has been read.
func DecodePayload(t MsgType, payload []byte) (Message, error) {
	r := NewReader(payload)
	msg, err := decodePayload(t, r)
	if err != nil {
		return nil, err
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t, err)
	}
	if r.Remaining() != 0 {
		return nil, fmt.Errorf("decode %s: %w", t,
			frameErr("payload length mismatch", r.Offset(), len(payload)))
	}
	return msg, nil
}
