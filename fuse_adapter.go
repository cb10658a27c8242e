//go:build fuse

package regionfs

import (
	"context"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// fsNode is the fs.InodeEmbedder backing every entry the FUSE adapter
// exposes. Unlike a loopback filesystem it carries no file descriptor of
// its own and no cached attributes: every operation re-resolves path
// against the shared Host on each call, mirroring the core's own
// path-in/path-out contract rather than caching anything go-fuse-side.
type fsNode struct {
	fs.Inode
	host *Host
	path string
}

var (
	_ fs.NodeLookuper   = (*fsNode)(nil)
	_ fs.NodeGetattrer  = (*fsNode)(nil)
	_ fs.NodeSetattrer  = (*fsNode)(nil)
	_ fs.NodeReaddirer  = (*fsNode)(nil)
	_ fs.NodeMkdirer    = (*fsNode)(nil)
	_ fs.NodeCreater    = (*fsNode)(nil)
	_ fs.NodeUnlinker   = (*fsNode)(nil)
	_ fs.NodeRmdirer    = (*fsNode)(nil)
	_ fs.NodeRenamer    = (*fsNode)(nil)
	_ fs.NodeOpener     = (*fsNode)(nil)
	_ fs.NodeReader     = (*fsNode)(nil)
	_ fs.NodeWriter     = (*fsNode)(nil)
	_ fs.NodeStatfser   = (*fsNode)(nil)
)

func childPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}

func (n *fsNode) child(name string) *fsNode {
	return &fsNode{host: n.host, path: childPath(n.path, name)}
}

func fillAttr(out *fuse.Attr, a AttrInfo) {
	out.Uid = a.Uid
	out.Gid = a.Gid
	out.Size = a.Size
	out.Nlink = a.LinkCount
	out.SetTimes(&a.Atime, &a.Mtime, &a.Mtime)
	if a.IsDir {
		out.Mode = syscall.S_IFDIR | 0755
	} else {
		out.Mode = syscall.S_IFREG | 0644
	}
}

func callerIDs() (uid, gid uint32) {
	return uint32(syscall.Getuid()), uint32(syscall.Getgid())
}

func (n *fsNode) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	uid, gid := callerIDs()
	a, errno := n.host.Attr(uid, gid, n.path)
	if errno != ErrNone {
		return errno.Status()
	}
	fillAttr(&out.Attr, a)
	return 0
}

func (n *fsNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child := n.child(name)
	uid, gid := callerIDs()
	a, errno := n.host.Attr(uid, gid, child.path)
	if errno != ErrNone {
		return nil, errno.Status()
	}
	fillAttr(&out.Attr, a)
	mode := uint32(syscall.S_IFREG)
	if a.IsDir {
		mode = syscall.S_IFDIR
	}
	inode := n.NewInode(ctx, child, fs.StableAttr{Mode: mode})
	return inode, 0
}

func (n *fsNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	names, errno := n.host.List(n.path)
	if errno != ErrNone {
		return nil, errno.Status()
	}
	uid, gid := callerIDs()
	entries := make([]fuse.DirEntry, 0, len(names))
	for _, name := range names {
		a, aErrno := n.host.Attr(uid, gid, childPath(n.path, name))
		if aErrno != ErrNone {
			continue
		}
		mode := uint32(syscall.S_IFREG)
		if a.IsDir {
			mode = syscall.S_IFDIR
		}
		entries = append(entries, fuse.DirEntry{Name: name, Mode: mode})
	}
	return fs.NewListDirStream(entries), 0
}

func (n *fsNode) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	child := n.child(name)
	if errno := n.host.Mkdir(child.path); errno != ErrNone {
		return nil, errno.Status()
	}
	uid, gid := callerIDs()
	a, _ := n.host.Attr(uid, gid, child.path)
	fillAttr(&out.Attr, a)
	inode := n.NewInode(ctx, child, fs.StableAttr{Mode: syscall.S_IFDIR})
	return inode, 0
}

func (n *fsNode) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (*fs.Inode, fs.FileHandle, uint32, syscall.Errno) {
	child := n.child(name)
	if errno := n.host.Mknod(child.path); errno != ErrNone && errno != ErrExists {
		return nil, nil, 0, errno.Status()
	}
	uid, gid := callerIDs()
	a, errno := n.host.Attr(uid, gid, child.path)
	if errno != ErrNone {
		return nil, nil, 0, errno.Status()
	}
	fillAttr(&out.Attr, a)
	inode := n.NewInode(ctx, child, fs.StableAttr{Mode: syscall.S_IFREG})
	return inode, nil, 0, 0
}

func (n *fsNode) Unlink(ctx context.Context, name string) syscall.Errno {
	return n.host.Unlink(childPath(n.path, name)).Status()
}

func (n *fsNode) Rmdir(ctx context.Context, name string) syscall.Errno {
	return n.host.Rmdir(childPath(n.path, name)).Status()
}

func (n *fsNode) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) syscall.Errno {
	np, ok := newParent.(*fsNode)
	if !ok {
		return syscall.EXDEV
	}
	return n.host.Rename(childPath(n.path, name), childPath(np.path, newName)).Status()
}

func (n *fsNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if errno := n.host.OpenCheck(n.path); errno != ErrNone {
		return nil, 0, errno.Status()
	}
	return nil, 0, 0
}

func (n *fsNode) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	got, errno := n.host.Read(n.path, dest, uint64(off))
	if errno != ErrNone {
		return nil, errno.Status()
	}
	return fuse.ReadResultData(dest[:got]), 0
}

func (n *fsNode) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	written, errno := n.host.Write(n.path, data, uint64(off))
	if errno != ErrNone {
		return 0, errno.Status()
	}
	return uint32(written), 0
}

func (n *fsNode) Setattr(ctx context.Context, f fs.FileHandle, in *fuse.SetAttrIn, out *fuse.AttrOut) syscall.Errno {
	if in.Valid&fuse.FATTR_SIZE != 0 {
		if errno := n.host.Truncate(n.path, in.Size); errno != ErrNone {
			return errno.Status()
		}
	}
	if in.Valid&(fuse.FATTR_ATIME|fuse.FATTR_MTIME) != 0 {
		atime := time.Unix(int64(in.Atime), int64(in.Atimensec))
		mtime := time.Unix(int64(in.Mtime), int64(in.Mtimensec))
		if errno := n.host.Utimens(n.path, atime, mtime); errno != ErrNone {
			return errno.Status()
		}
	}
	uid, gid := callerIDs()
	a, errno := n.host.Attr(uid, gid, n.path)
	if errno != ErrNone {
		return errno.Status()
	}
	fillAttr(&out.Attr, a)
	return 0
}

func (n *fsNode) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	info, errno := n.host.Statfs()
	if errno != ErrNone {
		return errno.Status()
	}
	out.Bsize = info.BlockSize
	out.Blocks = uint64(info.BlockCount)
	out.Bfree = uint64(info.FreeBlocks)
	out.Bavail = uint64(info.FreeBlocks)
	out.Files = uint64(info.InodeCount)
	out.Ffree = uint64(info.InodeCount - info.UsedInodes)
	out.NameLen = maxNameLen
	return 0
}

// Mount attaches host as the filesystem rooted at mountpoint, blocking
// until the kernel or a signal unmounts it.
func Mount(mountpoint string, host *Host, opts *fs.Options) error {
	root := &fsNode{host: host, path: "/"}
	server, err := fs.Mount(mountpoint, root, opts)
	if err != nil {
		return err
	}
	server.Wait()
	return nil
}
