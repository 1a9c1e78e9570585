package kernel

import "io"

// Frontend is the single entry point every transport (wire, FUSE, ninep)
// talks to. It owns the handle slab and the root Backend, and exposes the
// eight operations a transport needs: GetEntry, List, Metadata, Open, Read,
// Write, Rpc, Close.
type Frontend struct {
	root    Backend
	handles *Handles
	plugins *PluginStore
}

func NewFrontend(root Backend, plugins *PluginStore) *Frontend {
	return &Frontend{root: root, handles: NewHandles(), plugins: plugins}
}

func (f *Frontend) GetEntry(path string) (DirEntry, *Error) {
	return f.root.GetEntry(path, f.plugins)
}

func (f *Frontend) List(path string, out func(ListEntry) bool) *Error {
	return f.root.List(path, f.plugins, out)
}

// Metadata resolves path and reports its NodeMetadata without opening it.
// The empty path is the namespace root, which is always a directory.
func (f *Frontend) Metadata(path string) (NodeMetadata, *Error) {
	if path == "" {
		return BranchMetadata(), nil
	}
	entry, err := f.GetEntry(path)
	if err != nil {
		return NodeMetadata{}, err
	}
	if entry.IsBranch() {
		return BranchMetadata(), nil
	}
	return entry.Leaf.Metadata()
}

// Open resolves path to a Leaf and opens it, returning a handle number
// valid until a matching Close.
func (f *Frontend) Open(path string) (uint64, *Error) {
	entry, err := f.GetEntry(path)
	if err != nil {
		return 0, err
	}
	if entry.IsBranch() {
		return 0, NewError(OriginNode, KindInvalidPath)
	}
	ops, err := entry.Leaf.Open()
	if err != nil {
		return 0, err
	}
	return f.handles.OpenObject(ops), nil
}

func (f *Frontend) Close(handle uint64) *Error {
	return f.handles.Close(handle)
}

func (f *Frontend) Read(handle uint64, ops VecOps[RWRange]) *Error {
	return f.handles.Read(handle, ops)
}

func (f *Frontend) Write(handle uint64, ops VecOps[RORange]) *Error {
	return f.handles.Write(handle, ops)
}

func (f *Frontend) Rpc(handle uint64, input, output []byte) *Error {
	return f.handles.Rpc(handle, input, output)
}

// ObjCursor adapts a handle opened on a Frontend into an io.Reader,
// io.Writer and io.Seeker, the way original_source/filer/src/node.rs's
// ObjCursor implements std::io::{Read,Write,Seek} over the same handle
// abstraction. It lets a caller treat an open kernel handle like any other
// Go stream.
type ObjCursor struct {
	frontend *Frontend
	handle   uint64
	offset   uint64
	size     func() (uint64, *Error)
}

// NewObjCursor wraps handle, opened against frontend, as a seekable stream.
// size resolves the underlying object's length for io.SeekEnd; it may be
// nil if callers never seek from the end.
func NewObjCursor(frontend *Frontend, handle uint64, size func() (uint64, *Error)) *ObjCursor {
	return &ObjCursor{frontend: frontend, handle: handle, size: size}
}

func (c *ObjCursor) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	var n int
	var readErr *Error
	err := c.frontend.Read(c.handle, VecOps[RWRange]{
		In: []RWRange{{Addr: c.offset, Buf: p}},
		Out: func(r RWRange) bool {
			n += len(r.Buf)
			return true
		},
		OutFail: func(fr FailRange[RWRange]) bool {
			readErr = fr.Err
			return true
		},
	})
	c.offset += uint64(n)
	if err != nil {
		return n, err
	}
	if n == 0 {
		if readErr != nil && readErr.Kind == KindOutOfBounds {
			return 0, io.EOF
		}
		return 0, io.EOF
	}
	return n, nil
}

func (c *ObjCursor) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	var n int
	var writeErr *Error
	err := c.frontend.Write(c.handle, VecOps[RORange]{
		In: []RORange{{Addr: c.offset, Buf: p}},
		Out: func(r RORange) bool {
			n += len(r.Buf)
			return true
		},
		OutFail: func(fr FailRange[RORange]) bool {
			writeErr = fr.Err
			return true
		},
	})
	c.offset += uint64(n)
	if err != nil {
		return n, err
	}
	if n < len(p) {
		if writeErr != nil {
			return n, writeErr
		}
		return n, io.ErrShortWrite
	}
	return n, nil
}

func (c *ObjCursor) Seek(offset int64, whence int) (int64, error) {
	var base uint64
	switch whence {
	case io.SeekStart:
		base = 0
	case io.SeekCurrent:
		base = c.offset
	case io.SeekEnd:
		if c.size == nil {
			return 0, NewError(OriginIo, KindNotSupported)
		}
		size, err := c.size()
		if err != nil {
			return 0, err
		}
		base = size
	default:
		return 0, NewError(OriginIo, KindInvalidArgument)
	}
	next := int64(base) + offset
	if next < 0 {
		return 0, NewError(OriginIo, KindOffset)
	}
	c.offset = uint64(next)
	return next, nil
}

func (c *ObjCursor) Close() error {
	return c.frontend.Close(c.handle)
}
