package delta

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
)

// Hash returns the lowercase hex SHA-256 digest of r's content, used as the
// content-hash field agents and the hub exchange to confirm a push landed
// intact (spec §4.3, §8).
func Hash(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
