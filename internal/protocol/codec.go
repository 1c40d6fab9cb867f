package protocol

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Vec3 is a position in world space.
type Vec3 struct{ X, Y, Z float32 }

// Quat is a rotation quaternion.
type Quat struct{ X, Y, Z, W float32 }

// ---------------------------------------------------------------------------
// Writer
// ---------------------------------------------------------------------------

// Writer appends little-endian primitives to a growing buffer. Errors are
// sticky: after the first one, further writes are ignored.
type Writer struct {
	buf []byte
	err error
}

// NewWriter returns a Writer whose buffer starts with capacity for a full packet.
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, MaxPacketSize)}
}

// Bytes returns the encoded bytes written so far.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Err returns the first encoding error, if any.
func (w *Writer) Err() error { return w.err }

func (w *Writer) U8(v uint8) {
	if w.err == nil {
		w.buf = append(w.buf, v)
	}
}

func (w *Writer) I8(v int8) { w.U8(uint8(v)) }

func (w *Writer) U16(v uint16) {
	if w.err == nil {
		w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
	}
}

func (w *Writer) U32(v uint32) {
	if w.err == nil {
		w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
	}
}

func (w *Writer) F32(v float32) { w.U32(math.Float32bits(v)) }

func (w *Writer) Vec3(v Vec3) {
	w.F32(v.X)
	w.F32(v.Y)
	w.F32(v.Z)
}

func (w *Writer) Quat(q Quat) {
	w.F32(q.X)
	w.F32(q.Y)
	w.F32(q.Z)
	w.F32(q.W)
}

// Text writes a uint16 byte length followed by the UTF-8 bytes.
func (w *Writer) Text(s string) {
	if len(s) > math.MaxUint16 {
		w.fail(frameErr("string too long", math.MaxUint16, len(s)))
		return
	}
	w.U16(uint16(len(s)))
	if w.err == nil {
		w.buf = append(w.buf, s...)
	}
}

// Fixed writes exactly n bytes: b truncated or zero padded to n.
func (w *Writer) Fixed(b []byte, n int) {
	if w.err != nil {
		return
	}
	if len(b) > n {
		b = b[:n]
	}
	w.buf = append(w.buf, b...)
	for i := len(b); i < n; i++ {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

// ---------------------------------------------------------------------------
// Reader
// ---------------------------------------------------------------------------

// Reader consumes little-endian primitives from a fixed buffer. A read past
// the end records a *FrameError and yields zero values from then on.
type Reader struct {
	buf []byte
	off int
	err error
}

func NewReader(b []byte) *Reader { return &Reader{buf: b} }

// Err returns the first decoding error, if any.
func (r *Reader) Err() error { return r.err }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int { return r.off }

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.Remaining() < n {
		r.err = frameErr("truncated payload", r.off+n, len(r.buf))
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) U8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *Reader) I8() int8 { return int8(r.U8()) }

func (r *Reader) U16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *Reader) U32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *Reader) F32() float32 { return math.Float32frombits(r.U32()) }

func (r *Reader) Vec3() Vec3 {
	return Vec3{X: r.F32(), Y: r.F32(), Z: r.F32()}
}

func (r *Reader) Quat() Quat {
	return Quat{X: r.F32(), Y: r.F32(), Z: r.F32(), W: r.F32()}
}

// Text reads a uint16 length-prefixed UTF-8 string.
func (r *Reader) Text() string {
	n := int(r.U16())
	if n == 0 {
		return ""
	}
	if b := r.take(n); b != nil {
		return string(b)
	}
	return ""
}

// Fixed copies exactly n bytes into a new slice.
func (r *Reader) Fixed(n int) []byte {
	b := r.take(n)
	if b == nil {
		return make([]byte, n)
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// TrimToken strips trailing zero bytes from a fixed-width field so it can be
// compared with an unpadded string.
func TrimToken(b []byte) string {
	return string(bytes.TrimRight(b, "\x00"))
}

// ---------------------------------------------------------------------------
// Header
// ---------------------------------------------------------------------------

// Header appends the 9-byte header.
func (w *Writer) Header(h Header) {
	w.U8(uint8(h.Type))
	w.U16(h.Seq)
	w.U32(h.TimestampMs)
	w.U16(h.PayloadLength)
}

// PutHeader serializes h into the first HeaderSize bytes of b.
func PutHeader(b []byte, h Header) {
	b[0] = uint8(h.Type)
	binary.LittleEndian.PutUint16(b[1:3], h.Seq)
	binary.LittleEndian.PutUint32(b[3:7], h.TimestampMs)
	binary.LittleEndian.PutUint16(b[7:9], h.PayloadLength)
}

// ReadHeader parses the header at the start of b. It rejects buffers shorter
// than HeaderSize and headers that declare a frame larger than MaxPacketSize.
// It does not check that the payload itself is present.
func ReadHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, frameErr("truncated header", HeaderSize, len(b))
	}
	h := Header{
		Type:          MsgType(b[0]),
		Seq:           binary.LittleEndian.Uint16(b[1:3]),
		TimestampMs:   binary.LittleEndian.Uint32(b[3:7]),
		PayloadLength: binary.LittleEndian.Uint16(b[7:9]),
	}
	if int(h.PayloadLength) > MaxPayloadSize {
		return h, frameErr("declared payload exceeds packet limit", HeaderSize+int(h.PayloadLength), MaxPacketSize)
	}
	return h, nil
}
