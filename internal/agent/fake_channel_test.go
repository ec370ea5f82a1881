package agent

import (
	"bytes"
	"io"
)

// fakeChannel is a minimal ssh.Channel double for tests that only need to
// inspect what gets written back to the control channel.
type fakeChannel struct {
	bytes.Buffer
}

func (f *fakeChannel) Close() error                                   { return nil }
func (f *fakeChannel) CloseWrite() error                              { return nil }
func (f *fakeChannel) SendRequest(string, bool, []byte) (bool, error) { return false, nil }
func (f *fakeChannel) Stderr() io.ReadWriter                          { return &bytes.Buffer{} }
