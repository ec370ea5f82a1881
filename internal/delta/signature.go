package delta

import (
	"bufio"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
)

// strongHashSize is the number of leading bytes of a block's SHA-256 kept
// in its signature entry. A truncated hash is enough to resolve weak-sum
// collisions without carrying the full 32 bytes per block over the wire.
const strongHashSize = 8

// BlockSig is one block's signature: its weak rolling checksum plus a
// truncated strong hash used to confirm a weak-checksum match.
type BlockSig struct {
	Weak   uint32
	Strong [strongHashSize]byte
}

// Signature is the ordered list of block signatures for one file, computed
// by the agent for a destination file and sent to the hub so it can compute
// a delta against the pushed content.
type Signature struct {
	BlockSize uint32
	FileSize  int64
	Blocks    []BlockSig
}

// GenerateSignature reads r to EOF in BlockSize chunks and returns the
// signature of its content. The final block may be shorter than BlockSize.
func GenerateSignature(r io.Reader, blockSize uint32) (Signature, error) {
	if blockSize == 0 {
		return Signature{}, fmt.Errorf("delta: block size must be non-zero")
	}

	sig := Signature{BlockSize: blockSize}
	buf := make([]byte, blockSize)
	br := bufio.NewReaderSize(r, int(blockSize))

	for {
		n, err := io.ReadFull(br, buf)
		if n > 0 {
			block := buf[:n]
			strong := sha256.Sum256(block)
			var truncated [strongHashSize]byte
			copy(truncated[:], strong[:strongHashSize])
			sig.Blocks = append(sig.Blocks, BlockSig{Weak: weakChecksum(block), Strong: truncated})
			sig.FileSize += int64(n)
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			break
		}
		if err != nil {
			return Signature{}, fmt.Errorf("delta: reading signature source: %w", err)
		}
	}
	return sig, nil
}

// Marshal encodes the signature into a self-contained byte slice.
func (s Signature) Marshal() []byte {
	buf := make([]byte, 0, 16+len(s.Blocks)*(4+strongHashSize))
	var tmp [8]byte

	binary.BigEndian.PutUint32(tmp[:4], s.BlockSize)
	buf = append(buf, tmp[:4]...)
	binary.BigEndian.PutUint64(tmp[:8], uint64(s.FileSize))
	buf = append(buf, tmp[:8]...)
	binary.BigEndian.PutUint32(tmp[:4], uint32(len(s.Blocks)))
	buf = append(buf, tmp[:4]...)

	for _, b := range s.Blocks {
		binary.BigEndian.PutUint32(tmp[:4], b.Weak)
		buf = append(buf, tmp[:4]...)
		buf = append(buf, b.Strong[:]...)
	}
	return buf
}

// UnmarshalSignature decodes a Signature previously produced by Marshal.
func UnmarshalSignature(data []byte) (Signature, error) {
	if len(data) < 16 {
		return Signature{}, fmt.Errorf("delta: signature too short")
	}
	blockSize := binary.BigEndian.Uint32(data[0:4])
	fileSize := int64(binary.BigEndian.Uint64(data[4:12]))
	count := binary.BigEndian.Uint32(data[12:16])

	offset := 16
	entrySize := 4 + strongHashSize
	if len(data) < offset+int(count)*entrySize {
		return Signature{}, fmt.Errorf("delta: signature truncated: expected %d blocks", count)
	}

	blocks := make([]BlockSig, count)
	for i := range blocks {
		blocks[i].Weak = binary.BigEndian.Uint32(data[offset : offset+4])
		copy(blocks[i].Strong[:], data[offset+4:offset+entrySize])
		offset += entrySize
	}

	return Signature{BlockSize: blockSize, FileSize: fileSize, Blocks: blocks}, nil
}
