package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

// encoder accumulates a message's deterministic binary encoding: a fixed
// set of primitives (byte, bool, uint32, uint64, bytes, string, string
// slice, string map); fixed-width values are written big-endian as they are,
// variable-length ones carry a uint32 length or count prefix, and string
// maps are written in sorted key order, mirroring the teacher protocol's explicit
// field-by-field wire layout instead of a general-purpose serializer.
type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) byte(b byte) { e.buf.WriteByte(b) }

func (e *encoder) bool(v bool) {
	if v {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
}

func (e *encoder) uint64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) uint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

func (e *encoder) bytes(v []byte) {
	e.uint32(uint32(len(v)))
	e.buf.Write(v)
}

func (e *encoder) string(v string) { e.bytes([]byte(v)) }

func (e *encoder) strings(v []string) {
	e.uint32(uint32(len(v)))
	for _, s := range v {
		e.string(s)
	}
}

func (e *encoder) stringMap(v map[string]string) {
	e.uint32(uint32(len(v)))
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		e.string(k)
		e.string(v[k])
	}
}

func (e *encoder) bytesOut() []byte { return e.buf.Bytes() }

// decoder reads back the primitives encoder wrote, in the same order.
type decoder struct {
	r *bytes.Reader
}

func newDecoder(data []byte) *decoder { return &decoder{r: bytes.NewReader(data)} }

func (d *decoder) byte() (byte, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("decoding byte: %w", err)
	}
	return b, nil
}

func (d *decoder) bool() (bool, error) {
	b, err := d.byte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (d *decoder) uint64() (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return 0, fmt.Errorf("decoding uint64: %w", err)
	}
	return binary.BigEndian.Uint64(b[:]), nil
}

func (d *decoder) uint32() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(d.r, b[:]); err != nil {
		return 0, fmt.Errorf("decoding uint32: %w", err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func (d *decoder) bytes() ([]byte, error) {
	n, err := d.uint32()
	if err != nil {
		return nil, err
	}
	if uint64(n) > uint64(d.r.Len()) {
		return nil, fmt.Errorf("decoding bytes: length %d exceeds remaining input", n)
	}
	out := make([]byte, n)
	if _, err := io.ReadFull(d.r, out); err != nil {
		return nil, fmt.Errorf("decoding bytes: %w", err)
	}
	return out, nil
}

func (d *decoder) string() (string, error) {
	b, err := d.bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) strings() ([]string, error) {
	n, err := d.uint32()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]string, 0, n)
	for i := uint32(0); i < n; i++ {
		s, err := d.string()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (d *decoder) stringMap() (map[string]string, error) {
	n, err := d.uint32()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make(map[string]string, n)
	for i := uint32(0); i < n; i++ {
		k, err := d.string()
		if err != nil {
			return nil, err
		}
		v, err := d.string()
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}
