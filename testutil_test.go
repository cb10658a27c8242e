package regionfs_test

import (
	"testing"

	"github.com/arfs/regionfs"
)

// newRegion formats a fresh region sized for exactly n inodes/blocks of
// blockSize bytes each, mirroring the arithmetic format() itself uses so
// tests can pin down exact capacities.
func newRegion(t *testing.T, n int, blockSize uint32) []byte {
	t.Helper()
	const fsHeaderSize = 36
	const inodeRecordSize = 309
	size := fsHeaderSize + n*(inodeRecordSize+int(blockSize))
	region := make([]byte, size)
	if errno := regionfs.Format(region, regionfs.WithBlockSize(blockSize)); errno != regionfs.ErrNone {
		t.Fatalf("format failed: %v", errno)
	}
	return region
}
