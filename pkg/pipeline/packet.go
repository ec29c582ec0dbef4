package pipeline

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Packet is the msgpack envelope for binary stream frames.
type Packet struct {
	Image  []byte `msgpack:"image"`
	Format string `msgpack:"format,omitempty"`
	Seq    uint64 `msgpack:"seq,omitempty"` // Sender's frame counter, echoed in logs only
}

// EncodePacket wraps f for a binary WebSocket message.
func EncodePacket(f Frame, seq uint64) ([]byte, error) {
	return msgpack.Marshal(Packet{Image: f.Data, Format: f.Format, Seq: seq})
}

// DecodePacket unwraps a binary WebSocket message.
func DecodePacket(b []byte) (Frame, Packet, error) {
	var p Packet
	if err := msgpack.Unmarshal(b, &p); err != nil {
		return Frame{}, Packet{}, &DecodeError{Err: fmt.Errorf("msgpack envelope: %w", err)}
	}
	return Frame{Data: p.Image, Format: p.Format}, p, nil
}
