package delta

const adlerMod = 65521

// rollingChecksum implements the Adler-32-style weak checksum used by the
// rsync algorithm: two accumulators, s1 (sum of bytes) and s2 (sum of
// partial sums), letting the checksum of a sliding window be updated in
// O(1) as the window advances one byte at a time. The stdlib hash/adler32
// package only exposes a write-once hash.Hash32, not the roll operation, so
// the accumulator math is reimplemented directly here.
type rollingChecksum struct {
	s1, s2 uint32
	window []byte
}

// newRollingChecksum computes the initial checksum over window.
func newRollingChecksum(window []byte) *rollingChecksum {
	rc := &rollingChecksum{window: append([]byte(nil), window...)}
	var s1, s2 uint32 = 1, 0
	for _, b := range window {
		s1 = (s1 + uint32(b)) % adlerMod
		s2 = (s2 + s1) % adlerMod
	}
	rc.s1, rc.s2 = s1, s2
	return rc
}

// sum returns the 32-bit weak checksum for the current window.
func (rc *rollingChecksum) sum() uint32 {
	return rc.s2<<16 | rc.s1
}

// roll advances the window by dropping the first byte and appending next.
func (rc *rollingChecksum) roll(next byte) {
	out := rc.window[0]
	n := uint32(len(rc.window))

	rc.s1 = (rc.s1 + adlerMod - uint32(out) + uint32(next)) % adlerMod
	rc.s2 = (rc.s2 + adlerMod*adlerMod - n*uint32(out) + rc.s1 - 1) % adlerMod

	rc.window = append(rc.window[1:], next)
}

// weakChecksum computes the one-shot weak checksum of a block, equivalent
// to newRollingChecksum(block).sum() but without retaining the window.
func weakChecksum(block []byte) uint32 {
	var s1, s2 uint32 = 1, 0
	for _, b := range block {
		s1 = (s1 + uint32(b)) % adlerMod
		s2 = (s2 + s1) % adlerMod
	}
	return s2<<16 | s1
}
