// Package protocol implements the hubsync wire protocol: a length-prefixed
// frame codec (§4.1) and a family-discriminated message codec (§4.2) layered
// on top of it.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize is the hard cap on a frame's length field (type + payload).
const MaxFrameSize = 100 * 1024 * 1024

// FrameHeaderSize is the number of bytes preceding the payload on the wire:
// 4-byte big-endian length + 2-byte message type.
const FrameHeaderSize = 6

var (
	// ErrFrameTooLarge is returned when a frame's length exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("protocol: frame too large")
	// ErrFrameTooSmall is returned when a frame's length is below the 2-byte
	// minimum (the message type alone).
	ErrFrameTooSmall = errors.New("protocol: frame too small")
)

// Frame is the unit of the wire protocol: a 16-bit message type plus an
// arbitrary payload.
type Frame struct {
	Type    uint16
	Payload []byte
}

// Write encodes and writes f to w: 4-byte length, 2-byte type, payload.
// Refuses frames whose type+payload exceeds MaxFrameSize.
func Write(w io.Writer, frameType uint16, payload []byte) error {
	length := uint32(2 + len(payload))
	if length > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, length, MaxFrameSize)
	}

	header := make([]byte, FrameHeaderSize)
	binary.BigEndian.PutUint32(header[0:4], length)
	binary.BigEndian.PutUint16(header[4:6], frameType)

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("writing frame header: %w", err)
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return fmt.Errorf("writing frame payload: %w", err)
		}
	}
	return nil
}

// Read decodes one frame from r, blocking until the full frame arrives.
func Read(r io.Reader) (Frame, error) {
	var lenBytes [4]byte
	if _, err := io.ReadFull(r, lenBytes[:]); err != nil {
		return Frame{}, fmt.Errorf("reading frame length: %w", err)
	}
	length := binary.BigEndian.Uint32(lenBytes[:])

	if length > MaxFrameSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}
	if length < 2 {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrFrameTooSmall, length)
	}

	var typeBytes [2]byte
	if _, err := io.ReadFull(r, typeBytes[:]); err != nil {
		return Frame{}, fmt.Errorf("reading frame type: %w", err)
	}
	frameType := binary.BigEndian.Uint16(typeBytes[:])

	payload := make([]byte, length-2)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, fmt.Errorf("reading frame payload: %w", err)
	}

	return Frame{Type: frameType, Payload: payload}, nil
}

// Buffer incrementally assembles frames out of arbitrary byte runs appended
// by the caller. It tolerates any split point, including mid-header.
type Buffer struct {
	buf []byte
}

// NewBuffer returns an empty frame Buffer.
func NewBuffer() *Buffer {
	return &Buffer{buf: make([]byte, 0, 8192)}
}

// Append adds data to the buffer's backlog.
func (b *Buffer) Append(data []byte) {
	b.buf = append(b.buf, data...)
}

// TryParse extracts one complete frame from the buffer, if available. It
// returns (frame, true, nil) on success, (Frame{}, false, nil) when more
// data is needed, and a non-nil error for a malformed length field.
func (b *Buffer) TryParse() (Frame, bool, error) {
	if len(b.buf) < 4 {
		return Frame{}, false, nil
	}

	length := binary.BigEndian.Uint32(b.buf[0:4])
	if length > MaxFrameSize {
		return Frame{}, false, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}
	if length < 2 {
		return Frame{}, false, fmt.Errorf("%w: %d bytes", ErrFrameTooSmall, length)
	}

	total := 4 + int(length)
	if len(b.buf) < total {
		return Frame{}, false, nil
	}

	frameType := binary.BigEndian.Uint16(b.buf[4:6])
	payload := make([]byte, length-2)
	copy(payload, b.buf[6:total])

	remaining := len(b.buf) - total
	copy(b.buf, b.buf[total:])
	b.buf = b.buf[:remaining]

	return Frame{Type: frameType, Payload: payload}, true, nil
}

// Remaining reports the number of unparsed bytes currently buffered.
func (b *Buffer) Remaining() int {
	return len(b.buf)
}
