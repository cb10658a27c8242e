package regionfs

import "time"

// onDiskInode is the fixed-size record stored in the inode table. An
// inode is free iff FirstBlockOffset == 0.
type onDiskInode struct {
	Name             [maxNameLen + 1]byte
	IsDir            uint8
	SubdirCount      uint32
	PayloadBytes     uint64
	AtimeSec         int64
	AtimeNsec        int64
	MtimeSec         int64
	MtimeNsec        int64
	FirstBlockOffset Offset
}

func (in *onDiskInode) setName(name string) {
	for i := range in.Name {
		in.Name[i] = 0
	}
	copy(in.Name[:], name)
}

func (in onDiskInode) name() string {
	n := 0
	for n < len(in.Name) && in.Name[n] != 0 {
		n++
	}
	return string(in.Name[:n])
}

func (in *onDiskInode) setTimes(atime, mtime time.Time) {
	in.AtimeSec, in.AtimeNsec = atime.Unix(), int64(atime.Nanosecond())
	in.MtimeSec, in.MtimeNsec = mtime.Unix(), int64(mtime.Nanosecond())
}

func (in *onDiskInode) atime() time.Time {
	return time.Unix(in.AtimeSec, in.AtimeNsec)
}

func (in *onDiskInode) mtime() time.Time {
	return time.Unix(in.MtimeSec, in.MtimeNsec)
}

func (in onDiskInode) isDir() bool { return in.IsDir != 0 }

func (h *handle) inodeOffset(index uint32) Offset {
	return Offset(h.hdr.InodeTableOffset) + Offset(index)*inodeRecordSize
}

func (h *handle) inodeIndex(off Offset) uint32 {
	return uint32((uint64(off) - h.hdr.InodeTableOffset) / inodeRecordSize)
}

func (h *handle) readInode(index uint32) onDiskInode {
	return h.readInodeAt(h.inodeOffset(index))
}

func (h *handle) readInodeAt(off Offset) onDiskInode {
	b := h.region[off:]
	var in onDiskInode
	copy(in.Name[:], b[0:len(in.Name)])
	p := len(in.Name)
	in.IsDir = b[p]
	p++
	in.SubdirCount = order.Uint32(b[p : p+4])
	p += 4
	in.PayloadBytes = order.Uint64(b[p : p+8])
	p += 8
	in.AtimeSec = int64(order.Uint64(b[p : p+8]))
	p += 8
	in.AtimeNsec = int64(order.Uint64(b[p : p+8]))
	p += 8
	in.MtimeSec = int64(order.Uint64(b[p : p+8]))
	p += 8
	in.MtimeNsec = int64(order.Uint64(b[p : p+8]))
	p += 8
	in.FirstBlockOffset = Offset(order.Uint64(b[p : p+8]))
	return in
}

func (h *handle) writeInode(index uint32, in onDiskInode) {
	h.writeInodeAt(h.inodeOffset(index), in)
}

func (h *handle) writeInodeAt(off Offset, in onDiskInode) {
	b := h.region[off:]
	copy(b[0:len(in.Name)], in.Name[:])
	p := len(in.Name)
	b[p] = in.IsDir
	p++
	order.PutUint32(b[p:p+4], in.SubdirCount)
	p += 4
	order.PutUint64(b[p:p+8], in.PayloadBytes)
	p += 8
	order.PutUint64(b[p:p+8], uint64(in.AtimeSec))
	p += 8
	order.PutUint64(b[p:p+8], uint64(in.AtimeNsec))
	p += 8
	order.PutUint64(b[p:p+8], uint64(in.MtimeSec))
	p += 8
	order.PutUint64(b[p:p+8], uint64(in.MtimeNsec))
	p += 8
	order.PutUint64(b[p:p+8], uint64(in.FirstBlockOffset))
}

// nextFreeInode linearly scans the inode table for an unused slot. Spec.md
// §4.4.
func (h *handle) nextFreeInode() (uint32, Errno) {
	for i := uint32(0); i < h.hdr.InodeCount; i++ {
		if !h.readInode(i).FirstBlockOffset.valid() {
			return i, ErrNone
		}
	}
	return 0, ErrNoSpace
}

// releaseInode resets an inode to its free state and tears down its block
// chain. The caller is responsible for having already removed it from its
// parent's directory table.
func (h *handle) releaseInode(index uint32) {
	in := h.readInode(index)
	h.releaseChain(in.FirstBlockOffset)
	h.writeInode(index, onDiskInode{})
}

// AttrInfo is the subset of metadata spec.md's attr() operation reports.
type AttrInfo struct {
	IsDir     bool
	Size      uint64
	LinkCount uint32
	Uid, Gid  uint32
	Atime     time.Time
	Mtime     time.Time
}

func (h *handle) attrOf(in onDiskInode, uid, gid uint32) AttrInfo {
	a := AttrInfo{
		IsDir: in.isDir(),
		Size:  in.PayloadBytes,
		Uid:   uid,
		Gid:   gid,
		Atime: in.atime(),
		Mtime: in.mtime(),
	}
	if in.isDir() {
		a.LinkCount = in.SubdirCount + 2
	} else {
		a.LinkCount = 1
	}
	return a
}
