// Package fuseadapter mounts a kernel.Frontend as a FUSE filesystem,
// operation-by-operation grounded on original_source/filer-fuse/src/lib.rs's
// FilerFs (getattr, opendir/readdir, open, read, write, release; anything
// mutating returns ENOSYS, matching the original's read-mostly introspection
// surface). Built on github.com/hanwen/go-fuse/v2's inode-based fs package
// rather than the original's path-based fuse_mt, since nodes here are
// stateless views over Frontend paths and need no per-inode bookkeeping of
// their own.
package fuseadapter

import (
	"context"
	"path"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/nicolagi/memfs/kernel"
)

// Node is both a directory and a file node: which operations the kernel
// actually exposes at this path decides how the FUSE layer treats it, not
// the Go type.
type Node struct {
	fs.Inode
	frontend Frontend
	nodePath string
}

// Frontend is the subset of *kernel.Frontend the adapter depends on,
// narrowed so tests can substitute a fake.
type Frontend interface {
	Metadata(path string) (kernel.NodeMetadata, *kernel.Error)
	List(path string, out func(kernel.ListEntry) bool) *kernel.Error
	Open(path string) (uint64, *kernel.Error)
	Close(handle uint64) *kernel.Error
	Read(handle uint64, ops kernel.VecOps[kernel.RWRange]) *kernel.Error
	Write(handle uint64, ops kernel.VecOps[kernel.RORange]) *kernel.Error
}

// NewRoot returns the root Node to pass to fs.Mount or fs.NewNodeFS.
func NewRoot(frontend Frontend) *Node {
	return &Node{frontend: frontend, nodePath: ""}
}

// Mount mounts frontend's namespace at mountpoint and returns the live
// *fuse.Server; callers typically defer server.Unmount() and call
// server.Wait() to block until the mount is torn down.
func Mount(mountpoint string, frontend Frontend, readonly bool) (*fuse.Server, error) {
	opts := &fs.Options{
		MountOptions: fuse.MountOptions{
			FsName:     "memfs",
			Name:       "memfs",
			ReadOnly:   readonly,
			AllowOther: false,
		},
	}
	server, err := fs.Mount(mountpoint, NewRoot(frontend), opts)
	if err != nil {
		return nil, err
	}
	return server, nil
}

func join(base, name string) string {
	if base == "" {
		return name
	}
	return path.Join(base, name)
}

func (n *Node) attrFromMetadata(md kernel.NodeMetadata, out *fuse.Attr) {
	now := time.Now()
	if md.IsBranch {
		out.Mode = syscall.S_IFDIR | 0755
	} else {
		var mode uint32 = syscall.S_IFREG
		if md.HasRead {
			mode |= 0444
		}
		if md.HasWrite {
			mode |= 0200
		}
		out.Mode = mode
		out.Size = md.Size
	}
	out.SetTimes(&now, &now, &now)
}

func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	md, kerr := n.frontend.Metadata(n.nodePath)
	if kerr != nil {
		return syscall.ENOENT
	}
	n.attrFromMetadata(md, &out.Attr)
	return 0
}

func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	childPath := join(n.nodePath, name)
	md, kerr := n.frontend.Metadata(childPath)
	if kerr != nil {
		return nil, syscall.ENOENT
	}
	n.attrFromMetadata(md, &out.Attr)
	mode := uint32(syscall.S_IFREG)
	if md.IsBranch {
		mode = syscall.S_IFDIR
	}
	child := &Node{frontend: n.frontend, nodePath: childPath}
	return n.NewInode(ctx, child, fs.StableAttr{Mode: mode}), 0
}

func (n *Node) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	var entries []fuse.DirEntry
	kerr := n.frontend.List(n.nodePath, func(e kernel.ListEntry) bool {
		mode := uint32(syscall.S_IFREG)
		if e.IsBranch {
			mode = syscall.S_IFDIR
		}
		entries = append(entries, fuse.DirEntry{Name: e.Name, Mode: mode})
		return true
	})
	if kerr != nil {
		return nil, syscall.ENOENT
	}
	return &dirStream{entries: entries}, 0
}

type dirStream struct {
	entries []fuse.DirEntry
	i       int
}

func (s *dirStream) HasNext() bool { return s.i < len(s.entries) }

func (s *dirStream) Next() (fuse.DirEntry, syscall.Errno) {
	e := s.entries[s.i]
	s.i++
	return e, 0
}

func (s *dirStream) Close() {}

// fileHandle binds an open kernel handle to the Frontend that owns it.
type fileHandle struct {
	frontend Frontend
	handle   uint64
}

func (n *Node) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	handle, kerr := n.frontend.Open(n.nodePath)
	if kerr != nil {
		return nil, 0, syscall.ENOENT
	}
	return &fileHandle{frontend: n.frontend, handle: handle}, fuse.FOPEN_DIRECT_IO, 0
}

func (n *Node) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	fh, ok := f.(*fileHandle)
	if !ok {
		return nil, syscall.EIO
	}
	var n64 int
	kerr := fh.frontend.Read(fh.handle, kernel.VecOps[kernel.RWRange]{
		In: []kernel.RWRange{{Addr: uint64(off), Buf: dest}},
		Out: func(r kernel.RWRange) bool {
			n64 += len(r.Buf)
			return true
		},
	})
	if kerr != nil {
		return nil, syscall.EIO
	}
	return fuse.ReadResultData(dest[:n64]), 0
}

func (n *Node) Write(ctx context.Context, f fs.FileHandle, data []byte, off int64) (uint32, syscall.Errno) {
	fh, ok := f.(*fileHandle)
	if !ok {
		return 0, syscall.EIO
	}
	var written int
	var failed *kernel.Error
	kerr := fh.frontend.Write(fh.handle, kernel.VecOps[kernel.RORange]{
		In: []kernel.RORange{{Addr: uint64(off), Buf: data}},
		Out: func(r kernel.RORange) bool {
			written += len(r.Buf)
			return true
		},
		OutFail: func(fr kernel.FailRange[kernel.RORange]) bool {
			failed = fr.Err
			return true
		},
	})
	if kerr != nil {
		return 0, syscall.EIO
	}
	if written == 0 && failed != nil {
		if failed.Kind == kernel.KindReadOnly {
			return 0, syscall.EROFS
		}
		return 0, syscall.EIO
	}
	return uint32(written), 0
}

func (n *Node) Release(ctx context.Context, f fs.FileHandle) syscall.Errno {
	fh, ok := f.(*fileHandle)
	if !ok {
		return syscall.EIO
	}
	if kerr := fh.frontend.Close(fh.handle); kerr != nil {
		return syscall.EIO
	}
	return 0
}

var (
	_ fs.NodeGetattrer = (*Node)(nil)
	_ fs.NodeLookuper  = (*Node)(nil)
	_ fs.NodeReaddirer = (*Node)(nil)
	_ fs.NodeOpener    = (*Node)(nil)
	_ fs.NodeReader    = (*Node)(nil)
	_ fs.NodeWriter    = (*Node)(nil)
	_ fs.NodeReleaser  = (*Node)(nil)
)
