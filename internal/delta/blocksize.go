// Package delta implements the rsync-style block signature, delta, and
// apply operations used to push only the changed parts of a file across the
// wire (spec §4.3).
package delta

const (
	tierSmallBlockSize  = 4096
	tierMediumBlockSize = 8192
	tierLargeBlockSize  = 16384

	tierMediumThreshold = 100 * 1024 * 1024
	tierLargeThreshold  = 500 * 1024 * 1024
)

// ChooseBlockSize picks the block size for a file of the given size,
// trading fewer/larger blocks (less signature overhead) against finer delta
// granularity as files grow.
func ChooseBlockSize(fileSize int64) uint32 {
	switch {
	case fileSize > tierLargeThreshold:
		return tierLargeBlockSize
	case fileSize > tierMediumThreshold:
		return tierMediumBlockSize
	default:
		return tierSmallBlockSize
	}
}
