package regionfs

import (
	"sync"
	"time"
)

// Host serializes access to a region on behalf of a caller that, unlike the
// package-level operations themselves, is not already single-threaded —
// a FUSE server dispatching requests from many kernel threads at once,
// say. The core has no suspension points and no goroutines of its own; one
// mutex around each call is sufficient. Spec.md §5.
type Host struct {
	mu     sync.Mutex
	region []byte
}

// NewHost wraps region, formatting it immediately if it is not already a
// regionfs image rather than waiting for the first operation to do so. An
// already-formatted region (e.g. a reopened backing file) is left as-is;
// opts only take effect on that first format.
func NewHost(region []byte, opts ...Option) *Host {
	attach(region, opts...)
	return &Host{region: region}
}

func (hs *Host) Attr(uid, gid uint32, path string) (AttrInfo, Errno) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return Attr(hs.region, uid, gid, path)
}

func (hs *Host) List(path string) ([]string, Errno) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return List(hs.region, path)
}

func (hs *Host) Mknod(path string) Errno {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return Mknod(hs.region, path)
}

func (hs *Host) Unlink(path string) Errno {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return Unlink(hs.region, path)
}

func (hs *Host) Mkdir(path string) Errno {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return Mkdir(hs.region, path)
}

func (hs *Host) Rmdir(path string) Errno {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return Rmdir(hs.region, path)
}

func (hs *Host) Rename(from, to string) Errno {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return Rename(hs.region, from, to)
}

func (hs *Host) Truncate(path string, n uint64) Errno {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return Truncate(hs.region, path, n)
}

func (hs *Host) OpenCheck(path string) Errno {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return OpenCheck(hs.region, path)
}

func (hs *Host) Read(path string, buf []byte, offset uint64) (int, Errno) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return Read(hs.region, path, buf, offset)
}

func (hs *Host) Write(path string, buf []byte, offset uint64) (int, Errno) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return Write(hs.region, path, buf, offset)
}

func (hs *Host) Statfs() (StatfsInfo, Errno) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return Statfs(hs.region)
}

func (hs *Host) Utimens(path string, atime, mtime time.Time) Errno {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	return Utimens(hs.region, path, atime, mtime)
}
