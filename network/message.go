package network

import (
	"fmt"
	"strings"
)

// Message is one application message. The wire length field is always
// len(Payload), and an empty payload may be nil.
type Message struct {
	Id      uint8
	Payload []byte
}

func NewMessage(id uint8, payload []byte) (*Message, error) {
	if l := len(payload); l > FrameMaxPayload {
		return nil, fmt.Errorf("%w: %d", ErrPayloadTooLarge, l)
	}
	return &Message{Id: id, Payload: payload}, nil
}

func (m *Message) Len() int {
	return len(m.Payload)
}

func (m *Message) Equal(o *Message) bool {
	if m == nil || o == nil {
		return m == o
	}
	if m.Id != o.Id || len(m.Payload) != len(o.Payload) {
		return false
	}
	for i := range m.Payload {
		if m.Payload[i] != o.Payload[i] {
			return false
		}
	}
	return true
}

func (m *Message) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "MESSAGE %d LENGTH %d DATA", m.Id, m.Len())
	for _, v := range m.Payload {
		fmt.Fprintf(&b, " %d", v)
	}
	return b.String()
}
