package packet

import (
	"fmt"
)

const (
	// MaxChunkSize is the per-write payload ceiling of the link. The radio
	// accepts at most 20 bytes per write, so every framed payload is sliced
	// into chunks of at most this size.
	MaxChunkSize = 20

	// MaxPayloadSize is the largest payload that still frames into 255
	// chunks once the count byte is prepended.
	MaxPayloadSize = 255*MaxChunkSize - 1
)

// ErrPayloadTooLarge is returned when a payload would frame into more than
// 255 chunks, which cannot be expressed in the one-byte count header.
var ErrPayloadTooLarge = fmt.Errorf("payload exceeds %d bytes", MaxPayloadSize)

// Count returns the number of chunks a payload of the given length frames
// into, including the count byte prepended to the stream.
func Count(payloadLen int) int {
	if payloadLen == 0 {
		return 1
	}
	return (payloadLen + 1 + MaxChunkSize - 1) / MaxChunkSize
}

// Frame converts a payload into the on-wire chunk sequence.
//
// An empty payload encodes as a single [0x00] chunk, which the device treats
// as a reset signal. Otherwise the chunk count is prepended as one byte and
// the result is sliced into consecutive chunks of at most MaxChunkSize
// bytes, the last possibly shorter. The returned chunks are freshly
// allocated and never alias the caller's buffer.
func Frame(payload []byte) ([][]byte, error) {
	if len(payload) == 0 {
		return [][]byte{{0x00}}, nil
	}

	count := Count(len(payload))
	if count > 255 {
		return nil, fmt.Errorf("framing %d bytes: %w", len(payload), ErrPayloadTooLarge)
	}

	framed := make([]byte, 0, len(payload)+1)
	framed = append(framed, byte(count))
	framed = append(framed, payload...)

	chunks := make([][]byte, 0, count)
	for offset := 0; offset < len(framed); offset += MaxChunkSize {
		end := offset + MaxChunkSize
		if end > len(framed) {
			end = len(framed)
		}
		chunks = append(chunks, framed[offset:end:end])
	}

	return chunks, nil
}
