package regionfs

import "time"

// The thirteen package-level entry points below are regionfs's filesystem
// operations. Every one attaches (or formats) region fresh
// on entry and lets its *handle go on return — no state survives between
// calls except what is encoded in region itself. Hosts wanting
// cross-call exclusion wrap these in their own mutex; see Host in host.go.

// allocateChild creates a fresh inode named name under parentIdx, giving it
// an empty head block immediately so every live inode always has a valid
// FirstBlockOffset to write through later. Spec.md §4.4, §4.6.
func (h *handle) allocateChild(parentIdx uint32, name string, isDir bool) Errno {
	if _, errno := h.dirLookup(parentIdx, name); errno == ErrNone {
		return ErrExists
	}

	idx, errno := h.nextFreeInode()
	if errno != ErrNone {
		return errno
	}
	blockOff, errno := h.nextFreeBlock()
	if errno != ErrNone {
		return errno
	}
	h.writeBlockHeader(blockOff, blockHeader{InUse: 1})

	now := time.Now()
	var in onDiskInode
	in.setName(name)
	if isDir {
		in.IsDir = 1
	}
	in.FirstBlockOffset = blockOff
	in.setTimes(now, now)
	h.writeInode(idx, in)

	if errno := h.dirInsert(parentIdx, name, h.inodeOffset(idx)); errno != ErrNone {
		h.releaseInode(idx)
		return errno
	}
	if isDir {
		parent := h.readInode(parentIdx)
		parent.SubdirCount++
		h.writeInode(parentIdx, parent)
	}
	return ErrNone
}

// Attr reports the metadata of the entry at path. Spec.md §4.9 "attr".
func Attr(region []byte, uid, gid uint32, path string) (AttrInfo, Errno) {
	h, errno := attach(region)
	if errno != ErrNone {
		return AttrInfo{}, errno
	}
	idx, errno := h.resolve(path)
	if errno != ErrNone {
		return AttrInfo{}, errno
	}
	return h.attrOf(h.readInode(idx), uid, gid), ErrNone
}

// List returns the child names of the directory at path. Spec.md §4.9
// "list".
func List(region []byte, path string) ([]string, Errno) {
	h, errno := attach(region)
	if errno != ErrNone {
		return nil, errno
	}
	idx, errno := h.resolve(path)
	if errno != ErrNone {
		return nil, errno
	}
	if !h.readInode(idx).isDir() {
		return nil, ErrInvalidArg
	}
	return h.dirEnumerate(idx), ErrNone
}

// Mknod creates an empty regular file at path. Spec.md §4.9 "mknod".
func Mknod(region []byte, path string) Errno {
	h, errno := attach(region)
	if errno != ErrNone {
		return errno
	}
	parent, name, errno := h.resolveParent(path)
	if errno != ErrNone {
		return errno
	}
	return h.allocateChild(parent, name, false)
}

// Mkdir creates an empty directory at path. Spec.md §4.9 "mkdir".
func Mkdir(region []byte, path string) Errno {
	h, errno := attach(region)
	if errno != ErrNone {
		return errno
	}
	parent, name, errno := h.resolveParent(path)
	if errno != ErrNone {
		return errno
	}
	return h.allocateChild(parent, name, true)
}

// Unlink removes a regular file. Spec.md §4.9 "unlink".
func Unlink(region []byte, path string) Errno {
	h, errno := attach(region)
	if errno != ErrNone {
		return errno
	}
	parent, name, errno := h.resolveParent(path)
	if errno != ErrNone {
		return errno
	}
	childIdx, errno := h.dirLookup(parent, name)
	if errno != ErrNone {
		return errno
	}
	if h.readInode(childIdx).isDir() {
		return ErrInvalidArg
	}
	if errno := h.dirRemove(parent, name); errno != ErrNone {
		return errno
	}
	h.releaseInode(childIdx)
	return ErrNone
}

// Rmdir removes an empty directory. Spec.md §4.9 "rmdir".
func Rmdir(region []byte, path string) Errno {
	h, errno := attach(region)
	if errno != ErrNone {
		return errno
	}
	parent, name, errno := h.resolveParent(path)
	if errno != ErrNone {
		return errno
	}
	childIdx, errno := h.dirLookup(parent, name)
	if errno != ErrNone {
		return errno
	}
	child := h.readInode(childIdx)
	if !child.isDir() {
		return ErrInvalidArg
	}
	if len(h.dirEnumerate(childIdx)) > 0 {
		return ErrNotEmpty
	}
	if errno := h.dirRemove(parent, name); errno != ErrNone {
		return errno
	}
	h.releaseInode(childIdx)

	p := h.readInode(parent)
	if p.SubdirCount > 0 {
		p.SubdirCount--
	}
	h.writeInode(parent, p)
	return ErrNone
}

// Rename moves or overwrites the entry at from to to. Renaming a directory
// over an existing non-empty directory fails with ErrNotEmpty; mixing a
// directory and a non-directory on either side fails with ErrInvalidArg.
// Spec.md §4.9 "rename".
func Rename(region []byte, from, to string) Errno {
	h, errno := attach(region)
	if errno != ErrNone {
		return errno
	}

	fromParent, fromName, errno := h.resolveParent(from)
	if errno != ErrNone {
		return errno
	}
	fromIdx, errno := h.dirLookup(fromParent, fromName)
	if errno != ErrNone {
		return errno
	}

	toParent, toName, errno := h.resolveParent(to)
	if errno != ErrNone {
		return errno
	}

	if toIdx, toErrno := h.dirLookup(toParent, toName); toErrno == ErrNone {
		if toIdx == fromIdx {
			return ErrNone
		}
		fromIn := h.readInode(fromIdx)
		toIn := h.readInode(toIdx)
		if fromIn.isDir() != toIn.isDir() {
			return ErrInvalidArg
		}
		if toIn.isDir() && len(h.dirEnumerate(toIdx)) > 0 {
			return ErrNotEmpty
		}
		if errno := h.dirRemove(toParent, toName); errno != ErrNone {
			return errno
		}
		h.releaseInode(toIdx)
		if toIn.isDir() {
			tp := h.readInode(toParent)
			if tp.SubdirCount > 0 {
				tp.SubdirCount--
			}
			h.writeInode(toParent, tp)
		}
	}

	fromIn := h.readInode(fromIdx)
	if errno := h.dirRemove(fromParent, fromName); errno != ErrNone {
		return errno
	}
	fromIn.setName(toName)
	h.writeInode(fromIdx, fromIn)
	if errno := h.dirInsert(toParent, toName, h.inodeOffset(fromIdx)); errno != ErrNone {
		return errno
	}

	if fromParent != toParent && fromIn.isDir() {
		fp := h.readInode(fromParent)
		if fp.SubdirCount > 0 {
			fp.SubdirCount--
		}
		h.writeInode(fromParent, fp)
		tp := h.readInode(toParent)
		tp.SubdirCount++
		h.writeInode(toParent, tp)
	}
	return ErrNone
}

// Truncate grows or shrinks a regular file to exactly n bytes. Spec.md
// §4.9 "truncate".
func Truncate(region []byte, path string, n uint64) Errno {
	h, errno := attach(region)
	if errno != ErrNone {
		return errno
	}
	idx, errno := h.resolve(path)
	if errno != ErrNone {
		return errno
	}
	if h.readInode(idx).isDir() {
		return ErrInvalidArg
	}
	if n > h.maxPayloadBytes() {
		return ErrTooLarge
	}
	return h.truncateTo(idx, n)
}

// OpenCheck validates that path names an existing regular file that may be
// opened. Spec.md §4.9 "open_check".
func OpenCheck(region []byte, path string) Errno {
	h, errno := attach(region)
	if errno != ErrNone {
		return errno
	}
	idx, errno := h.resolve(path)
	if errno != ErrNone {
		return errno
	}
	if h.readInode(idx).isDir() {
		return ErrInvalidArg
	}
	return ErrNone
}

// Read copies up to len(buf) bytes starting at offset into buf, returning
// the number of bytes copied. offset past end-of-file fails with
// ErrTooLarge; offset exactly at end-of-file succeeds with 0 bytes. A
// successful read stamps the inode's atime, the one observable side
// effect the read path has. Spec.md §4.9 "read".
func Read(region []byte, path string, buf []byte, offset uint64) (int, Errno) {
	h, errno := attach(region)
	if errno != ErrNone {
		return 0, errno
	}
	idx, errno := h.resolve(path)
	if errno != ErrNone {
		return 0, errno
	}
	in := h.readInode(idx)
	if in.isDir() {
		return 0, ErrInvalidArg
	}
	if offset > in.PayloadBytes {
		return 0, ErrTooLarge
	}
	n := copy(buf, h.readPayload(in)[offset:])
	in.setTimes(time.Now(), in.mtime())
	h.writeInode(idx, in)
	return n, ErrNone
}

// Write replaces everything from offset onward with buf: the new payload
// is the first offset bytes of the current one followed by buf, so a
// write does not preserve any of the file's old tail past offset+len(buf).
// A non-zero offset at or past the current payload length fails with
// ErrTooLarge rather than creating a sparse gap; offset 0 is always
// accepted, even against an empty payload, since it names a plain
// overwrite. Spec.md §4.9 "write", §4.5 "Write".
func Write(region []byte, path string, buf []byte, offset uint64) (int, Errno) {
	h, errno := attach(region)
	if errno != ErrNone {
		return 0, errno
	}
	idx, errno := h.resolve(path)
	if errno != ErrNone {
		return 0, errno
	}
	in := h.readInode(idx)
	if in.isDir() {
		return 0, ErrInvalidArg
	}
	if offset != 0 && offset >= in.PayloadBytes {
		return 0, ErrTooLarge
	}
	if offset+uint64(len(buf)) > h.maxPayloadBytes() {
		return 0, ErrTooLarge
	}

	cur := h.readPayload(in)
	newPayload := make([]byte, 0, offset+uint64(len(buf)))
	newPayload = append(newPayload, cur[:offset]...)
	newPayload = append(newPayload, buf...)

	if errno := h.setPayload(idx, newPayload); errno != ErrNone {
		return 0, errno
	}
	return len(buf), ErrNone
}

// StatfsInfo is the filesystem-wide summary Statfs reports. It adds the
// inode occupancy fields a bare squashfs-style statfs never needed, since a
// region has no separate device to ask.
type StatfsInfo struct {
	BlockSize  uint32
	BlockCount uint32
	FreeBlocks uint32
	InodeCount uint32
	UsedInodes uint32
}

// Statfs reports block and inode occupancy for the whole region. Spec.md
// §4.9 "statfs".
func Statfs(region []byte) (StatfsInfo, Errno) {
	h, errno := attach(region)
	if errno != ErrNone {
		return StatfsInfo{}, errno
	}
	used := uint32(0)
	for i := uint32(0); i < h.hdr.InodeCount; i++ {
		if h.readInode(i).FirstBlockOffset.valid() {
			used++
		}
	}
	return StatfsInfo{
		BlockSize:  h.blockSize,
		BlockCount: h.hdr.BlockCount,
		FreeBlocks: h.freeBlockCount(),
		InodeCount: h.hdr.InodeCount,
		UsedInodes: used,
	}, ErrNone
}

// Utimens sets an entry's access and modification times. Spec.md §4.9
// "utimens".
func Utimens(region []byte, path string, atime, mtime time.Time) Errno {
	h, errno := attach(region)
	if errno != ErrNone {
		return errno
	}
	idx, errno := h.resolve(path)
	if errno != ErrNone {
		return errno
	}
	in := h.readInode(idx)
	in.setTimes(atime, mtime)
	h.writeInode(idx, in)
	return ErrNone
}

// maxPayloadBytes is the largest payload any single inode could ever hold:
// every block in the region chained to one file. Writes or truncations
// past it fail with ErrTooLarge rather than silently exhausting the
// allocator on someone else's behalf.
func (h *handle) maxPayloadBytes() uint64 {
	return uint64(h.hdr.BlockCount) * uint64(h.blockCap)
}
