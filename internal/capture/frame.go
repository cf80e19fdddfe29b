package capture

import (
	"encoding/binary"
	"fmt"
)

// Datagram framing constants.
// Layout: [Version:1][Source:1][Sequence:4][PCM16LE:N]
const (
	FrameVersion = 0x01

	SourceGame = 0x01
	SourceMic  = 0x02

	HeaderSize = 6
)

// Frame is one parsed audio datagram.
type Frame struct {
	Source   uint8
	Sequence uint32
	Samples  []float32
}

// ParseFrame parses a capture datagram into normalized float32 samples in
// [-1, 1).
func ParseFrame(data []byte) (*Frame, error) {
	if len(data) < HeaderSize {
		return nil, fmt.Errorf("frame too short: expected at least %d bytes, got %d", HeaderSize, len(data))
	}

	if data[0] != FrameVersion {
		return nil, fmt.Errorf("unsupported frame version: 0x%02x", data[0])
	}

	source := data[1]
	if !IsValidSource(source) {
		return nil, fmt.Errorf("invalid source: 0x%02x", source)
	}

	payload := data[HeaderSize:]
	if len(payload)%2 != 0 {
		return nil, fmt.Errorf("odd PCM payload length: %d bytes", len(payload))
	}

	frame := &Frame{
		Source:   source,
		Sequence: binary.BigEndian.Uint32(data[2:6]),
		Samples:  make([]float32, len(payload)/2),
	}

	for i := range frame.Samples {
		s := int16(binary.LittleEndian.Uint16(payload[i*2:]))
		frame.Samples[i] = float32(s) / 32768.0
	}

	return frame, nil
}

// EncodeFrame builds a capture datagram from raw PCM16 samples.
func EncodeFrame(source uint8, sequence uint32, samples []int16) []byte {
	data := make([]byte, HeaderSize+len(samples)*2)
	data[0] = FrameVersion
	data[1] = source
	binary.BigEndian.PutUint32(data[2:6], sequence)

	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[HeaderSize+i*2:], uint16(s))
	}

	return data
}

// IsValidSource checks if the source byte is known.
func IsValidSource(source uint8) bool {
	return source == SourceGame || source == SourceMic
}

// SourceString converts a source byte to a human-readable name.
func SourceString(source uint8) string {
	switch source {
	case SourceGame:
		return "game"
	case SourceMic:
		return "mic"
	default:
		return fmt.Sprintf("unknown(0x%02x)", source)
	}
}
