package fuseadapter

import (
	"context"
	"syscall"
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolagi/memfs/kernel"
)

// fakeFrontend is an in-memory stand-in for *kernel.Frontend, just enough
// surface for the adapter's unit tests.
type fakeFrontend struct {
	metadata map[string]kernel.NodeMetadata
	children map[string][]kernel.ListEntry
	data     map[uint64][]byte
	nextH    uint64
	opened   map[uint64]string
}

func newFakeFrontend() *fakeFrontend {
	return &fakeFrontend{
		metadata: make(map[string]kernel.NodeMetadata),
		children: make(map[string][]kernel.ListEntry),
		data:     make(map[uint64][]byte),
		opened:   make(map[uint64]string),
	}
}

func (f *fakeFrontend) Metadata(path string) (kernel.NodeMetadata, *kernel.Error) {
	md, ok := f.metadata[path]
	if !ok {
		return kernel.NodeMetadata{}, kernel.NewError(kernel.OriginBackend, kernel.KindNotFound)
	}
	return md, nil
}

func (f *fakeFrontend) List(path string, out func(kernel.ListEntry) bool) *kernel.Error {
	for _, e := range f.children[path] {
		if !out(e) {
			break
		}
	}
	return nil
}

func (f *fakeFrontend) Open(path string) (uint64, *kernel.Error) {
	if _, ok := f.metadata[path]; !ok {
		return 0, kernel.NewError(kernel.OriginBackend, kernel.KindNotFound)
	}
	f.nextH++
	f.opened[f.nextH] = path
	return f.nextH, nil
}

func (f *fakeFrontend) Close(handle uint64) *kernel.Error {
	delete(f.opened, handle)
	return nil
}

func (f *fakeFrontend) Read(handle uint64, ops kernel.VecOps[kernel.RWRange]) *kernel.Error {
	path := f.opened[handle]
	content := f.data[handle]
	_ = path
	for _, r := range ops.In {
		if r.Addr >= uint64(len(content)) {
			continue
		}
		n := copy(r.Buf, content[r.Addr:])
		if ops.Out != nil {
			ops.Out(kernel.RWRange{Addr: r.Addr, Buf: r.Buf[:n]})
		}
	}
	return nil
}

func (f *fakeFrontend) Write(handle uint64, ops kernel.VecOps[kernel.RORange]) *kernel.Error {
	for _, r := range ops.In {
		buf := f.data[handle]
		end := r.Addr + uint64(len(r.Buf))
		if end > uint64(len(buf)) {
			grown := make([]byte, end)
			copy(grown, buf)
			buf = grown
		}
		copy(buf[r.Addr:], r.Buf)
		f.data[handle] = buf
		if ops.Out != nil {
			ops.Out(r)
		}
	}
	return nil
}

func TestNode_GetattrMissingPath(t *testing.T) {
	fe := newFakeFrontend()
	root := NewRoot(fe)
	var out fuse.AttrOut
	errno := root.Getattr(context.Background(), nil, &out)
	assert.Equal(t, syscall.ENOENT, errno)
}

func TestNode_Lookup(t *testing.T) {
	fe := newFakeFrontend()
	fe.metadata["greeting"] = kernel.NodeMetadata{HasRead: true, Size: 5}
	root := NewRoot(fe)

	var out fuse.EntryOut
	_, errno := root.Lookup(context.Background(), "greeting", &out)
	require.Equal(t, syscall.Errno(0), errno)
	assert.Equal(t, uint64(5), out.Attr.Size)
}

func TestNode_LookupMissing(t *testing.T) {
	fe := newFakeFrontend()
	root := NewRoot(fe)
	_, errno := root.Lookup(context.Background(), "missing", &fuse.EntryOut{})
	assert.Equal(t, syscall.ENOENT, errno)
}

func TestNode_Readdir(t *testing.T) {
	fe := newFakeFrontend()
	fe.children[""] = []kernel.ListEntry{
		{Name: "greeting", IsBranch: false},
		{Name: "dir", IsBranch: true},
	}
	root := NewRoot(fe)

	stream, errno := root.Readdir(context.Background())
	require.Equal(t, syscall.Errno(0), errno)

	var names []string
	for stream.HasNext() {
		e, errno := stream.Next()
		require.Equal(t, syscall.Errno(0), errno)
		names = append(names, e.Name)
	}
	assert.ElementsMatch(t, []string{"greeting", "dir"}, names)
}

func TestNode_OpenReadWrite(t *testing.T) {
	fe := newFakeFrontend()
	fe.metadata["f"] = kernel.NodeMetadata{HasRead: true, HasWrite: true, Size: 0}
	root := &Node{frontend: fe, nodePath: "f"}

	fh, _, errno := root.Open(context.Background(), 0)
	require.Equal(t, syscall.Errno(0), errno)

	n, errno := root.Write(context.Background(), fh, []byte("hello"), 0)
	require.Equal(t, syscall.Errno(0), errno)
	require.EqualValues(t, 5, n)

	dest := make([]byte, 5)
	res, errno := root.Read(context.Background(), fh, dest, 0)
	require.Equal(t, syscall.Errno(0), errno)
	b, status := res.Bytes(dest)
	require.True(t, status.Ok())
	assert.Equal(t, "hello", string(b))

	assert.Equal(t, syscall.Errno(0), root.Release(context.Background(), fh))
}
