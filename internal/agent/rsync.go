package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/nishisan-dev/hubsync/internal/delta"
	"github.com/nishisan-dev/hubsync/internal/protocol"
	"github.com/nishisan-dev/hubsync/internal/transport"
)

// errChecksumMismatch is reported to the hub verbatim as RsyncComplete.Error
// (spec §4.6 step 4 / §8 scenario 3); the expected-vs-got detail is logged
// locally instead of sent over the wire.
var errChecksumMismatch = errors.New("Checksum mismatch")

// handleRsyncStart runs one push end to end: open a dedicated data channel,
// exchange signature/delta, apply the result into place, and report back
// on the control channel.
func (s *Session) handleRsyncStart(client *ssh.Client, ch ssh.Channel, m protocol.RsyncStart) {
	complete := protocol.RsyncComplete{RequestID: m.RequestID}

	size, hash, err := s.performRsync(client, m)
	if err != nil {
		complete.Error = err.Error()
		s.logger.Warn("rsync apply failed", "request_id", m.RequestID, "destination", m.Destination, "error", err)
	} else {
		complete.Success = true
		complete.BytesTransferred = uint64(size)
		complete.Hash = hash
	}

	if err := sendFrame(ch, protocol.EncodeAgentMessage(complete)); err != nil {
		s.logger.Warn("sending rsync complete", "request_id", m.RequestID, "error", err)
	}
}

func (s *Session) performRsync(client *ssh.Client, m protocol.RsyncStart) (int64, string, error) {
	if err := os.MkdirAll(filepath.Dir(m.Destination), 0755); err != nil {
		return 0, "", fmt.Errorf("creating destination directory: %w", err)
	}

	sig, err := s.localSignature(m.Destination, m.BlockSize)
	if err != nil {
		return 0, "", fmt.Errorf("generating local signature: %w", err)
	}

	dataCh, reqs, err := client.OpenChannel("rsync-data", []byte(m.RequestID))
	if err != nil {
		return 0, "", fmt.Errorf("opening data channel: %w", err)
	}
	defer dataCh.Close()
	go ssh.DiscardRequests(reqs)

	if err := s.sendSignature(dataCh, sig); err != nil {
		return 0, "", err
	}

	d, err := s.receiveDelta(dataCh)
	if err != nil {
		return 0, "", err
	}

	return s.applyDelta(m, d)
}

func (s *Session) localSignature(destination string, blockSize uint32) (delta.Signature, error) {
	base, err := os.Open(destination)
	if err != nil {
		if os.IsNotExist(err) {
			return delta.Signature{BlockSize: blockSize}, nil
		}
		return delta.Signature{}, err
	}
	defer base.Close()
	return delta.GenerateSignature(base, blockSize)
}

func (s *Session) sendSignature(dataCh ssh.Channel, sig delta.Signature) error {
	payload := sig.Marshal()
	if s.cfg.CompressTransfers {
		compressed, err := transport.CompressPayload(payload)
		if err != nil {
			return fmt.Errorf("compressing signature: %w", err)
		}
		payload = compressed
	}

	var w io.Writer = dataCh
	if s.cfg.ThrottleBytesPerSec > 0 {
		w = NewThrottledWriter(context.Background(), dataCh, s.cfg.ThrottleBytesPerSec)
	}
	if err := protocol.Write(w, uint16(protocol.MsgRsyncSignature), payload); err != nil {
		return fmt.Errorf("sending signature: %w", err)
	}
	return nil
}

func (s *Session) receiveDelta(dataCh ssh.Channel) (delta.Delta, error) {
	frame, err := protocol.Read(dataCh)
	if err != nil {
		return delta.Delta{}, fmt.Errorf("reading delta frame: %w", err)
	}
	if protocol.MessageType(frame.Type) != protocol.MsgRsyncDelta {
		return delta.Delta{}, fmt.Errorf("expected delta frame, got type %v", protocol.MessageType(frame.Type))
	}

	payload := frame.Payload
	if s.cfg.CompressTransfers {
		decompressed, err := transport.DecompressPayload(payload)
		if err != nil {
			return delta.Delta{}, fmt.Errorf("decompressing delta: %w", err)
		}
		payload = decompressed
	}

	d, err := delta.UnmarshalDelta(payload)
	if err != nil {
		return delta.Delta{}, fmt.Errorf("decoding delta: %w", err)
	}
	return d, nil
}

// applyDelta reconstructs m.Destination into a sibling temp file, verifies
// its SHA-256 against m.ContentHash, and only then renames it into place, so
// neither a crash mid-apply nor a checksum mismatch ever leaves the existing
// destination file corrupted (spec §4.6 step 4, §7 "Integrity").
func (s *Session) applyDelta(m protocol.RsyncStart, d delta.Delta) (int64, string, error) {
	base, baseErr := os.Open(m.Destination)
	var baseSize int64
	if baseErr == nil {
		defer base.Close()
		if info, err := base.Stat(); err == nil {
			baseSize = info.Size()
		}
	} else {
		base, _ = os.Open(os.DevNull)
		defer base.Close()
	}

	tmpPath := m.Destination + ".hubsync-tmp"
	out, err := os.Create(tmpPath)
	if err != nil {
		return 0, "", fmt.Errorf("creating temp file: %w", err)
	}

	applyErr := delta.Apply(out, base, baseSize, m.BlockSize, d)
	closeErr := out.Close()
	if applyErr != nil {
		os.Remove(tmpPath)
		return 0, "", fmt.Errorf("applying delta: %w", applyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return 0, "", fmt.Errorf("closing temp file: %w", closeErr)
	}

	tmp, err := os.Open(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return 0, "", fmt.Errorf("reopening temp file for verification: %w", err)
	}
	hash, hashErr := delta.Hash(tmp)
	tmp.Close()
	if hashErr != nil {
		os.Remove(tmpPath)
		return 0, "", fmt.Errorf("hashing temp file: %w", hashErr)
	}
	if hash != m.ContentHash {
		os.Remove(tmpPath)
		s.logger.Warn("checksum mismatch applying delta", "request_id", m.RequestID, "expected", m.ContentHash, "got", hash)
		return 0, "", errChecksumMismatch
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		os.Remove(tmpPath)
		return 0, "", fmt.Errorf("statting temp file: %w", err)
	}

	if err := os.Rename(tmpPath, m.Destination); err != nil {
		os.Remove(tmpPath)
		return 0, "", fmt.Errorf("renaming into place: %w", err)
	}

	if m.ModTime != 0 {
		mt := time.Unix(m.ModTime, 0)
		_ = os.Chtimes(m.Destination, mt, mt)
	}

	return info.Size(), hash, nil
}
