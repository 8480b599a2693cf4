package network

import (
	"errors"
	"fmt"

	"github.com/MixinNetwork/tcpipc/config"
)

const (
	FrameHeaderSize = 2
	FrameMaxPayload = config.MessageMaxPayload
	FrameMaxSize    = FrameHeaderSize + FrameMaxPayload
)

var (
	ErrIncomplete      = errors.New("incomplete frame")
	ErrPayloadTooLarge = fmt.Errorf("payload larger than %d bytes", FrameMaxPayload)
)

// EncodeFrame lays out m as [id, length] followed by the payload.
func EncodeFrame(m *Message) ([]byte, error) {
	return AppendFrame(make([]byte, 0, FrameHeaderSize+m.Len()), m)
}

func AppendFrame(dst []byte, m *Message) ([]byte, error) {
	l := m.Len()
	if l > FrameMaxPayload {
		return dst, fmt.Errorf("%w: %d", ErrPayloadTooLarge, l)
	}
	dst = append(dst, m.Id, uint8(l))
	return append(dst, m.Payload...), nil
}

// DecodeFrame decodes the first frame of buf and returns how many bytes it
// used. If buf does not hold a whole frame it returns ErrIncomplete and
// consumes nothing. The returned payload never aliases buf.
func DecodeFrame(buf []byte) (*Message, int, error) {
	if len(buf) < FrameHeaderSize {
		return nil, 0, ErrIncomplete
	}
	l := int(buf[1])
	size := FrameHeaderSize + l
	if len(buf) < size {
		return nil, 0, ErrIncomplete
	}
	m := &Message{Id: buf[0]}
	if l > 0 {
		m.Payload = make([]byte, l)
		copy(m.Payload, buf[FrameHeaderSize:size])
	}
	return m, size, nil
}

// FrameDecoder accumulates stream bytes and keeps any trailing partial frame
// until the rest of it arrives.
type FrameDecoder struct {
	buf []byte
	off int
}

func NewFrameDecoder(size int) *FrameDecoder {
	if size < FrameMaxSize {
		size = FrameMaxSize
	}
	return &FrameDecoder{buf: make([]byte, 0, size+FrameMaxSize)}
}

func (d *FrameDecoder) Feed(p []byte) {
	if d.off > 0 {
		n := copy(d.buf, d.buf[d.off:])
		d.buf = d.buf[:n]
		d.off = 0
	}
	d.buf = append(d.buf, p...)
}

func (d *FrameDecoder) Next() (*Message, error) {
	m, n, err := DecodeFrame(d.buf[d.off:])
	if err != nil {
		return nil, err
	}
	d.off += n
	if d.off == len(d.buf) {
		d.buf = d.buf[:0]
		d.off = 0
	}
	return m, nil
}

// Buffered is the number of received bytes not yet decoded.
func (d *FrameDecoder) Buffered() int {
	return len(d.buf) - d.off
}
