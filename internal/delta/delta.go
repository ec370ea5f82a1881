package delta

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	opLiteral  byte = 0
	opBlockRef byte = 1
)

// Op is one instruction in a Delta: either a literal byte run to write
// as-is, or a reference to a block of the destination's existing content.
type Op struct {
	Literal    []byte
	BlockIndex uint32
	isBlockRef bool
}

// Delta is the ordered list of operations that reconstruct the source
// content when applied against the destination's existing bytes.
type Delta struct {
	Ops []Op
}

// GenerateDelta compares src against sig (the destination's current
// signature) and returns the minimal set of literal runs and block
// references needed to reconstruct src on the receiving side.
//
// It buffers all of src in memory; callers transferring very large files
// should be mindful of that, matching the scale spec §4.3 targets (up to a
// few hundred MiB per sync rule).
func GenerateDelta(src io.Reader, sig Signature) (Delta, error) {
	content, err := io.ReadAll(src)
	if err != nil {
		return Delta{}, fmt.Errorf("delta: reading source: %w", err)
	}
	if sig.BlockSize == 0 || len(content) == 0 {
		if len(content) == 0 {
			return Delta{}, nil
		}
		return Delta{Ops: []Op{{Literal: content}}}, nil
	}

	index := make(map[uint32][]int)
	for i, b := range sig.Blocks {
		index[b.Weak] = append(index[b.Weak], i)
	}

	blockSize := int(sig.BlockSize)
	n := len(content)
	var ops []Op
	var literal []byte

	flushLiteral := func() {
		if len(literal) > 0 {
			ops = append(ops, Op{Literal: literal})
			literal = nil
		}
	}

	matchAt := func(pos int, weak uint32) (int, bool) {
		candidates, ok := index[weak]
		if !ok {
			return 0, false
		}
		window := content[pos : pos+blockSize]
		strong := sha256.Sum256(window)
		for _, c := range candidates {
			if bytes.Equal(sig.Blocks[c].Strong[:], strong[:strongHashSize]) {
				return c, true
			}
		}
		return 0, false
	}

	pos := 0
	if n >= blockSize {
		rc := newRollingChecksum(content[0:blockSize])
		for {
			if blockIndex, ok := matchAt(pos, rc.sum()); ok {
				flushLiteral()
				ops = append(ops, Op{BlockIndex: uint32(blockIndex), isBlockRef: true})
				pos += blockSize
				if pos+blockSize > n {
					break
				}
				rc = newRollingChecksum(content[pos : pos+blockSize])
				continue
			}

			literal = append(literal, content[pos])
			pos++
			if pos+blockSize > n {
				break
			}
			rc.roll(content[pos+blockSize-1])
		}
	}
	// Match the signature's final, possibly short, block against the tail.
	if last := len(sig.Blocks) - 1; last >= 0 {
		tailLen := int(sig.FileSize - int64(last)*int64(blockSize))
		if tailLen > 0 && tailLen <= n-pos {
			tail := content[n-tailLen:]
			strong := sha256.Sum256(tail)
			if weakChecksum(tail) == sig.Blocks[last].Weak && bytes.Equal(sig.Blocks[last].Strong[:], strong[:strongHashSize]) {
				literal = append(literal, content[pos:n-tailLen]...)
				flushLiteral()
				ops = append(ops, Op{BlockIndex: uint32(last), isBlockRef: true})
				pos = n
			}
		}
	}
	if pos < n {
		literal = append(literal, content[pos:]...)
	}
	flushLiteral()

	return Delta{Ops: ops}, nil
}

// Apply reconstructs the original content by writing Delta's operations to
// dst, reading block references from base (the destination's current
// content before the push).
func Apply(dst io.Writer, base io.ReaderAt, baseSize int64, blockSize uint32, d Delta) error {
	for _, op := range d.Ops {
		if op.isBlockRef {
			offset := int64(op.BlockIndex) * int64(blockSize)
			length := int64(blockSize)
			if offset+length > baseSize {
				length = baseSize - offset
			}
			if length <= 0 {
				return fmt.Errorf("delta: block reference %d out of range of base content (size %d)", op.BlockIndex, baseSize)
			}
			buf := make([]byte, length)
			if _, err := base.ReadAt(buf, offset); err != nil && err != io.EOF {
				return fmt.Errorf("delta: reading base block %d: %w", op.BlockIndex, err)
			}
			if _, err := dst.Write(buf); err != nil {
				return fmt.Errorf("delta: writing block %d: %w", op.BlockIndex, err)
			}
			continue
		}
		if _, err := dst.Write(op.Literal); err != nil {
			return fmt.Errorf("delta: writing literal run: %w", err)
		}
	}
	return nil
}

// Marshal encodes the delta into a self-contained byte slice.
func (d Delta) Marshal() []byte {
	var buf bytes.Buffer
	var tmp [4]byte

	binary.BigEndian.PutUint32(tmp[:], uint32(len(d.Ops)))
	buf.Write(tmp[:])

	for _, op := range d.Ops {
		if op.isBlockRef {
			buf.WriteByte(opBlockRef)
			binary.BigEndian.PutUint32(tmp[:], op.BlockIndex)
			buf.Write(tmp[:])
			continue
		}
		buf.WriteByte(opLiteral)
		binary.BigEndian.PutUint32(tmp[:], uint32(len(op.Literal)))
		buf.Write(tmp[:])
		buf.Write(op.Literal)
	}
	return buf.Bytes()
}

// UnmarshalDelta decodes a Delta previously produced by Marshal.
func UnmarshalDelta(data []byte) (Delta, error) {
	if len(data) < 4 {
		return Delta{}, fmt.Errorf("delta: payload too short")
	}
	count := binary.BigEndian.Uint32(data[0:4])
	offset := 4

	ops := make([]Op, 0, count)
	for i := uint32(0); i < count; i++ {
		if offset+1 > len(data) {
			return Delta{}, fmt.Errorf("delta: truncated op %d", i)
		}
		kind := data[offset]
		offset++

		switch kind {
		case opBlockRef:
			if offset+4 > len(data) {
				return Delta{}, fmt.Errorf("delta: truncated block ref at op %d", i)
			}
			idx := binary.BigEndian.Uint32(data[offset : offset+4])
			offset += 4
			ops = append(ops, Op{BlockIndex: idx, isBlockRef: true})
		case opLiteral:
			if offset+4 > len(data) {
				return Delta{}, fmt.Errorf("delta: truncated literal length at op %d", i)
			}
			length := binary.BigEndian.Uint32(data[offset : offset+4])
			offset += 4
			if offset+int(length) > len(data) {
				return Delta{}, fmt.Errorf("delta: truncated literal body at op %d", i)
			}
			literal := make([]byte, length)
			copy(literal, data[offset:offset+int(length)])
			offset += int(length)
			ops = append(ops, Op{Literal: literal})
		default:
			return Delta{}, fmt.Errorf("delta: unknown op kind %d at index %d", kind, i)
		}
	}
	return Delta{Ops: ops}, nil
}

// IsBlockRef reports whether op references an existing block rather than
// carrying literal bytes.
func (op Op) IsBlockRef() bool { return op.isBlockRef }
