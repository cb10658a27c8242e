package regionfs_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/arfs/regionfs"
)

// TestEndToEnd walks through the lifecycle spec.md's worked example covers:
// mkdir, mknod, write, read back, rename, truncate, unlink, rmdir.
func TestEndToEnd(t *testing.T) {
	region := newRegion(t, 64, 512)

	if errno := regionfs.Mkdir(region, "/docs"); errno != regionfs.ErrNone {
		t.Fatalf("mkdir /docs: %v", errno)
	}
	if errno := regionfs.Mknod(region, "/docs/readme.txt"); errno != regionfs.ErrNone {
		t.Fatalf("mknod: %v", errno)
	}

	payload := []byte("hello, region")
	n, errno := regionfs.Write(region, "/docs/readme.txt", payload, 0)
	if errno != regionfs.ErrNone || n != len(payload) {
		t.Fatalf("write: n=%d errno=%v", n, errno)
	}

	buf := make([]byte, len(payload))
	got, errno := regionfs.Read(region, "/docs/readme.txt", buf, 0)
	if errno != regionfs.ErrNone || !bytes.Equal(buf[:got], payload) {
		t.Fatalf("read back mismatch: got %q errno %v", buf[:got], errno)
	}

	names, errno := regionfs.List(region, "/docs")
	if errno != regionfs.ErrNone || len(names) != 1 || names[0] != "readme.txt" {
		t.Fatalf("list /docs = %v, errno %v", names, errno)
	}

	if errno := regionfs.Rename(region, "/docs/readme.txt", "/docs/README.txt"); errno != regionfs.ErrNone {
		t.Fatalf("rename: %v", errno)
	}
	if _, errno := regionfs.Attr(region, 0, 0, "/docs/readme.txt"); errno != regionfs.ErrNoEntry {
		t.Errorf("old name should be gone, got errno %v", errno)
	}

	if errno := regionfs.Truncate(region, "/docs/README.txt", 5); errno != regionfs.ErrNone {
		t.Fatalf("truncate: %v", errno)
	}
	a, errno := regionfs.Attr(region, 0, 0, "/docs/README.txt")
	if errno != regionfs.ErrNone || a.Size != 5 {
		t.Fatalf("size after truncate = %d, errno %v", a.Size, errno)
	}

	if errno := regionfs.Unlink(region, "/docs/README.txt"); errno != regionfs.ErrNone {
		t.Fatalf("unlink: %v", errno)
	}
	if errno := regionfs.Rmdir(region, "/docs"); errno != regionfs.ErrNone {
		t.Fatalf("rmdir: %v", errno)
	}
	names, errno = regionfs.List(region, "/")
	if errno != regionfs.ErrNone || len(names) != 0 {
		t.Fatalf("root should be empty again, got %v", names)
	}
}

func TestMknodRejectsDuplicate(t *testing.T) {
	region := newRegion(t, 8, 256)
	if errno := regionfs.Mknod(region, "/a"); errno != regionfs.ErrNone {
		t.Fatalf("mknod: %v", errno)
	}
	if errno := regionfs.Mknod(region, "/a"); errno != regionfs.ErrExists {
		t.Errorf("errno = %v, want ErrExists", errno)
	}
}

func TestRmdirRequiresEmpty(t *testing.T) {
	region := newRegion(t, 8, 256)
	if errno := regionfs.Mkdir(region, "/d"); errno != regionfs.ErrNone {
		t.Fatalf("mkdir: %v", errno)
	}
	if errno := regionfs.Mknod(region, "/d/child"); errno != regionfs.ErrNone {
		t.Fatalf("mknod: %v", errno)
	}
	if errno := regionfs.Rmdir(region, "/d"); errno != regionfs.ErrNotEmpty {
		t.Errorf("errno = %v, want ErrNotEmpty", errno)
	}
}

func TestUnlinkRejectsDirectory(t *testing.T) {
	region := newRegion(t, 8, 256)
	if errno := regionfs.Mkdir(region, "/d"); errno != regionfs.ErrNone {
		t.Fatalf("mkdir: %v", errno)
	}
	if errno := regionfs.Unlink(region, "/d"); errno != regionfs.ErrInvalidArg {
		t.Errorf("errno = %v, want ErrInvalidArg", errno)
	}
}

func TestRenameOntoSelfIsNoop(t *testing.T) {
	region := newRegion(t, 8, 256)
	if errno := regionfs.Mknod(region, "/a"); errno != regionfs.ErrNone {
		t.Fatalf("mknod: %v", errno)
	}
	if errno := regionfs.Rename(region, "/a", "/a"); errno != regionfs.ErrNone {
		t.Fatalf("rename onto self: %v", errno)
	}
	if _, errno := regionfs.Attr(region, 0, 0, "/a"); errno != regionfs.ErrNone {
		t.Errorf("file should still exist, errno %v", errno)
	}
}

func TestRenameOverwritesSameKind(t *testing.T) {
	region := newRegion(t, 8, 256)
	regionfs.Mknod(region, "/a")
	regionfs.Write(region, "/a", []byte("AAAA"), 0)
	regionfs.Mknod(region, "/b")
	regionfs.Write(region, "/b", []byte("B"), 0)

	if errno := regionfs.Rename(region, "/a", "/b"); errno != regionfs.ErrNone {
		t.Fatalf("rename: %v", errno)
	}
	buf := make([]byte, 4)
	got, errno := regionfs.Read(region, "/b", buf, 0)
	if errno != regionfs.ErrNone || string(buf[:got]) != "AAAA" {
		t.Fatalf("rename should have overwritten contents of /b, got %q", buf[:got])
	}
	if _, errno := regionfs.Attr(region, 0, 0, "/a"); errno != regionfs.ErrNoEntry {
		t.Errorf("/a should be gone")
	}
}

func TestRenameMixedKindsRejected(t *testing.T) {
	region := newRegion(t, 8, 256)
	regionfs.Mknod(region, "/a")
	regionfs.Mkdir(region, "/b")
	if errno := regionfs.Rename(region, "/a", "/b"); errno != regionfs.ErrInvalidArg {
		t.Errorf("errno = %v, want ErrInvalidArg", errno)
	}
}

func TestRenameOntoNonEmptyDirRejected(t *testing.T) {
	region := newRegion(t, 8, 256)
	regionfs.Mkdir(region, "/a")
	regionfs.Mkdir(region, "/b")
	regionfs.Mknod(region, "/b/child")
	if errno := regionfs.Rename(region, "/a", "/b"); errno != regionfs.ErrNotEmpty {
		t.Errorf("errno = %v, want ErrNotEmpty", errno)
	}
}

func TestWriteOffsetBeyondEndFails(t *testing.T) {
	region := newRegion(t, 8, 256)
	regionfs.Mknod(region, "/a")
	if _, errno := regionfs.Write(region, "/a", []byte("Z"), 10); errno != regionfs.ErrTooLarge {
		t.Errorf("errno = %v, want ErrTooLarge", errno)
	}
}

func TestWriteAtExactEndOfFileFails(t *testing.T) {
	// Per spec.md §8/§9, a non-zero offset equal to payload_bytes is a
	// rejection, not a silent append.
	region := newRegion(t, 8, 256)
	regionfs.Mknod(region, "/a")
	regionfs.Write(region, "/a", []byte("abc"), 0)
	if _, errno := regionfs.Write(region, "/a", []byte("d"), 3); errno != regionfs.ErrTooLarge {
		t.Errorf("errno = %v, want ErrTooLarge", errno)
	}
}

func TestWriteAtOffsetZeroAcceptedOnEmptyFile(t *testing.T) {
	region := newRegion(t, 8, 256)
	regionfs.Mknod(region, "/a")
	n, errno := regionfs.Write(region, "/a", []byte("new"), 0)
	if errno != regionfs.ErrNone || n != 3 {
		t.Fatalf("write: n=%d errno=%v", n, errno)
	}
}

func TestWriteAtOffsetTruncatesTail(t *testing.T) {
	// Per spec.md §4.5/§4.9, write at offset keeps only the first offset
	// bytes of the existing payload and replaces everything after it with
	// buf — it does not splice buf into the middle and preserve the rest.
	region := newRegion(t, 8, 256)
	regionfs.Mknod(region, "/a")
	regionfs.Write(region, "/a", []byte("abcdefgh"), 0)

	n, errno := regionfs.Write(region, "/a", []byte("XY"), 3)
	if errno != regionfs.ErrNone || n != 2 {
		t.Fatalf("write: n=%d errno=%v", n, errno)
	}

	a, errno := regionfs.Attr(region, 0, 0, "/a")
	if errno != regionfs.ErrNone || a.Size != 5 {
		t.Fatalf("size = %d, errno %v, want 5", a.Size, errno)
	}
	buf := make([]byte, 5)
	got, errno := regionfs.Read(region, "/a", buf, 0)
	if errno != regionfs.ErrNone || string(buf[:got]) != "abcXY" {
		t.Fatalf("contents = %q, errno %v, want \"abcXY\"", buf[:got], errno)
	}
}

func TestReadAtExactEndOfFileReturnsZero(t *testing.T) {
	region := newRegion(t, 8, 256)
	regionfs.Mknod(region, "/a")
	regionfs.Write(region, "/a", []byte("abc"), 0)
	buf := make([]byte, 4)
	n, errno := regionfs.Read(region, "/a", buf, 3)
	if errno != regionfs.ErrNone || n != 0 {
		t.Errorf("n=%d errno=%v, want 0/ErrNone", n, errno)
	}
}

func TestReadPastEndOfFileFails(t *testing.T) {
	region := newRegion(t, 8, 256)
	regionfs.Mknod(region, "/a")
	regionfs.Write(region, "/a", []byte("abc"), 0)
	buf := make([]byte, 4)
	if _, errno := regionfs.Read(region, "/a", buf, 100); errno != regionfs.ErrTooLarge {
		t.Errorf("errno = %v, want ErrTooLarge", errno)
	}
}

func TestReadUpdatesAtime(t *testing.T) {
	region := newRegion(t, 8, 256)
	regionfs.Mknod(region, "/a")
	regionfs.Write(region, "/a", []byte("abc"), 0)
	old := time.Unix(1, 0)
	regionfs.Utimens(region, "/a", old, old)

	buf := make([]byte, 3)
	if _, errno := regionfs.Read(region, "/a", buf, 0); errno != regionfs.ErrNone {
		t.Fatalf("read: %v", errno)
	}

	a, errno := regionfs.Attr(region, 0, 0, "/a")
	if errno != regionfs.ErrNone {
		t.Fatalf("attr: %v", errno)
	}
	if a.Atime.Equal(old) {
		t.Errorf("atime unchanged after read, still %v", a.Atime)
	}
	if !a.Mtime.Equal(old) {
		t.Errorf("mtime = %v, want unchanged %v", a.Mtime, old)
	}
}

func TestWriteTooLarge(t *testing.T) {
	region := newRegion(t, 4, 64)
	regionfs.Mknod(region, "/a")
	info, _ := regionfs.Statfs(region)
	huge := make([]byte, uint64(info.BlockCount)*uint64(info.BlockSize)+1)
	if _, errno := regionfs.Write(region, "/a", huge, 0); errno != regionfs.ErrTooLarge {
		t.Errorf("errno = %v, want ErrTooLarge", errno)
	}
}

func TestWriteExhaustsAllocatorAndRollsBack(t *testing.T) {
	// A handful of tiny blocks, three of them already held by root, /a and
	// /b: a write needing more blocks than remain runs the allocator dry
	// part-way through its chain. The failed write must not leave a
	// half-built chain behind.
	region := newRegion(t, 6, 32)
	regionfs.Mknod(region, "/a")
	regionfs.Mknod(region, "/b")

	info, _ := regionfs.Statfs(region)
	blockCap := int(info.BlockSize) - 16 // blockHeaderSize
	// FreeBlocks is a derived accounting figure (block_count minus the sum
	// of ceil(payload_bytes/capacity) over live inodes) and does not count
	// the head block an empty-payload inode already holds in reserve, so
	// it overstates what the allocator can actually still hand out here.
	// Every live inode (root, /a, /b) physically occupies one block before
	// any payload is written, so block_count-used_inodes is the true
	// number still free to the allocator; /a's own head block adds one
	// more it can grow into without a fresh allocation.
	physicallyFree := int(info.BlockCount) - int(info.UsedInodes)
	maxAchievable := blockCap * (physicallyFree + 1)
	tooBig := make([]byte, maxAchievable+1)
	for i := range tooBig {
		tooBig[i] = 'X'
	}

	if _, errno := regionfs.Write(region, "/a", tooBig, 0); errno != regionfs.ErrNoSpace {
		t.Fatalf("errno = %v, want ErrNoSpace", errno)
	}

	a, errno := regionfs.Attr(region, 0, 0, "/a")
	if errno != regionfs.ErrNone {
		t.Fatalf("attr after failed write: %v", errno)
	}
	if a.Size != 0 {
		t.Errorf("size after rolled-back write = %d, want 0", a.Size)
	}

	// The filesystem must still be usable afterwards.
	small := []byte("ok")
	if n, errno := regionfs.Write(region, "/a", small, 0); errno != regionfs.ErrNone || n != len(small) {
		t.Fatalf("write after rollback: n=%d errno=%v", n, errno)
	}
}

func TestTruncateGrowZeroFills(t *testing.T) {
	region := newRegion(t, 8, 256)
	regionfs.Mknod(region, "/a")
	regionfs.Write(region, "/a", []byte("hi"), 0)
	if errno := regionfs.Truncate(region, "/a", 6); errno != regionfs.ErrNone {
		t.Fatalf("truncate: %v", errno)
	}
	buf := make([]byte, 6)
	n, errno := regionfs.Read(region, "/a", buf, 0)
	if errno != regionfs.ErrNone || n != 6 {
		t.Fatalf("read: n=%d errno=%v", n, errno)
	}
	if !bytes.Equal(buf, []byte{'h', 'i', 0, 0, 0, 0}) {
		t.Errorf("buf = %v, want zero-padded hi", buf)
	}
}

func TestUtimens(t *testing.T) {
	region := newRegion(t, 8, 256)
	regionfs.Mknod(region, "/a")
	at := time.Unix(1000, 0)
	mt := time.Unix(2000, 0)
	if errno := regionfs.Utimens(region, "/a", at, mt); errno != regionfs.ErrNone {
		t.Fatalf("utimens: %v", errno)
	}
	a, errno := regionfs.Attr(region, 0, 0, "/a")
	if errno != regionfs.ErrNone {
		t.Fatalf("attr: %v", errno)
	}
	if !a.Atime.Equal(at) || !a.Mtime.Equal(mt) {
		t.Errorf("times = %v/%v, want %v/%v", a.Atime, a.Mtime, at, mt)
	}
}

func TestStatfsAccounting(t *testing.T) {
	region := newRegion(t, 8, 256)
	before, _ := regionfs.Statfs(region)

	regionfs.Mknod(region, "/a")
	regionfs.Mkdir(region, "/d")

	after, errno := regionfs.Statfs(region)
	if errno != regionfs.ErrNone {
		t.Fatalf("statfs: %v", errno)
	}
	if after.UsedInodes != before.UsedInodes+2 {
		t.Errorf("UsedInodes = %d, want %d", after.UsedInodes, before.UsedInodes+2)
	}
	// FreeBlocks is derived as block_count - sum(ceil(payload_bytes /
	// capacity)); a freshly created inode has an empty payload, so it
	// contributes 0 to that sum even though it holds a physical head
	// block in reserve. The root's directory table, empty before, now
	// holds two short entry lines and counts as one block, so the derived
	// count drops by exactly one.
	if after.FreeBlocks != before.FreeBlocks-1 {
		t.Errorf("FreeBlocks = %d, want %d", after.FreeBlocks, before.FreeBlocks-1)
	}

	if _, errno := regionfs.Write(region, "/a", []byte("hello"), 0); errno != regionfs.ErrNone {
		t.Fatalf("write: %v", errno)
	}
	withPayload, errno := regionfs.Statfs(region)
	if errno != regionfs.ErrNone {
		t.Fatalf("statfs: %v", errno)
	}
	if withPayload.FreeBlocks != after.FreeBlocks-1 {
		t.Errorf("FreeBlocks after non-empty write = %d, want %d", withPayload.FreeBlocks, after.FreeBlocks-1)
	}
}

// TestMalformedDirectoryLineStopsEnumeration corrupts the on-disk separator
// of a directory entry directly, the way a damaged region might look after
// partial external corruption, and checks that List stops rather than
// panicking or returning garbage names.
func TestMalformedDirectoryLineStopsEnumeration(t *testing.T) {
	region := newRegion(t, 8, 256)
	if errno := regionfs.Mknod(region, "/aaa"); errno != regionfs.ErrNone {
		t.Fatalf("mknod: %v", errno)
	}
	if errno := regionfs.Mknod(region, "/bbb"); errno != regionfs.ErrNone {
		t.Fatalf("mknod: %v", errno)
	}

	marker := []byte("aaa:")
	idx := bytes.Index(region, marker)
	if idx < 0 {
		t.Fatalf("could not find directory entry for aaa in region")
	}
	region[idx+len("aaa")] = '?' // replace ':' with a non-separator byte

	names, errno := regionfs.List(region, "/")
	if errno != regionfs.ErrNone {
		t.Fatalf("list: %v", errno)
	}
	if len(names) != 0 {
		t.Errorf("names = %v, want none (enumeration should stop at the malformed first line)", names)
	}
}
