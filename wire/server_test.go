package wire

import (
	"io"
	"net"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/nicolagi/memfs/kernel"
)

// testRoot exposes a single leaf, "greeting", serving a fixed string, and a
// single branch, "dir", with one child leaf, "nested" -- enough surface to
// exercise Metadata, List, Open/Read/Write and Rpc end to end.
type testRoot struct {
	greeting *kernel.FnFile[struct{}, []byte]
	dir      *testDir
}

type testDir struct {
	nested *kernel.FnFile[struct{}, []byte]
}

func newTestRoot() *testRoot {
	return &testRoot{
		greeting: kernel.NewFnFile[struct{}, []byte](struct{}{}, func(struct{}) ([]byte, *kernel.Error) {
			return []byte("hello"), nil
		}),
		dir: &testDir{
			nested: kernel.NewFnFile[struct{}, []byte](struct{}{}, func(struct{}) ([]byte, *kernel.Error) {
				return []byte("nested"), nil
			}),
		},
	}
}

func (r *testRoot) GetEntry(path string, plugins *kernel.PluginStore) (kernel.DirEntry, *kernel.Error) {
	head, rest, hasRest := kernel.SplitPath(path)
	switch head {
	case "greeting":
		if hasRest {
			return kernel.DirEntry{}, kernel.NewError(kernel.OriginBranch, kernel.KindInvalidPath)
		}
		return kernel.LeafEntry(r.greeting), nil
	case "dir":
		if !hasRest {
			return kernel.BranchEntry(r.dir), nil
		}
		return r.dir.GetEntry(rest, plugins)
	default:
		return kernel.DirEntry{}, kernel.NewError(kernel.OriginBranch, kernel.KindNotFound)
	}
}

func (r *testRoot) List(plugins *kernel.PluginStore, out func(kernel.BranchListEntry) bool) *kernel.Error {
	if !out(kernel.BranchListEntry{Name: "greeting", Entry: kernel.LeafEntry(r.greeting)}) {
		return nil
	}
	out(kernel.BranchListEntry{Name: "dir", Entry: kernel.BranchEntry(r.dir)})
	return nil
}

func (d *testDir) GetEntry(path string, plugins *kernel.PluginStore) (kernel.DirEntry, *kernel.Error) {
	head, _, hasRest := kernel.SplitPath(path)
	if head != "nested" || hasRest {
		return kernel.DirEntry{}, kernel.NewError(kernel.OriginBranch, kernel.KindNotFound)
	}
	return kernel.LeafEntry(d.nested), nil
}

func (d *testDir) List(plugins *kernel.PluginStore, out func(kernel.BranchListEntry) bool) *kernel.Error {
	out(kernel.BranchListEntry{Name: "nested", Entry: kernel.LeafEntry(d.nested)})
	return nil
}

// testBackend adapts testRoot, a bare Branch, into a kernel.Backend so it
// can sit directly behind a Frontend.
type testBackend struct {
	root *testRoot
}

func (b *testBackend) GetEntry(path string, plugins *kernel.PluginStore) (kernel.DirEntry, *kernel.Error) {
	if path == "" {
		return kernel.BranchEntry(b.root), nil
	}
	return b.root.GetEntry(path, plugins)
}

func (b *testBackend) List(path string, plugins *kernel.PluginStore, out func(kernel.ListEntry) bool) *kernel.Error {
	return kernel.ListRecurse(b.root, path, plugins, func(e kernel.BranchListEntry) bool {
		return out(kernel.ListEntry{Name: e.Name, IsBranch: e.Entry.IsBranch()})
	})
}

func newTestClientServer(t *testing.T) (*Client, func()) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	plugins := kernel.NewPluginStore()
	frontend := kernel.NewFrontend(&testBackend{root: newTestRoot()}, plugins)

	log := logrus.New()
	log.SetOutput(io.Discard)

	go ServeConn(serverConn, frontend, log)

	client := NewClient(clientConn)
	return client, func() { _ = client.Close() }
}

func TestClient_Metadata(t *testing.T) {
	client, closeFn := newTestClientServer(t)
	defer closeFn()

	md, err := client.Metadata("greeting")
	require.NoError(t, err)
	require.False(t, md.IsBranch)
	require.True(t, md.HasRead)
	require.EqualValues(t, 5, md.Size)
}

func TestClient_List(t *testing.T) {
	client, closeFn := newTestClientServer(t)
	defer closeFn()

	var names []string
	err := client.List("", func(e kernel.ListEntry) bool {
		names = append(names, e.Name)
		return true
	})
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"greeting", "dir"}, names)
}

func TestClient_OpenReadClose(t *testing.T) {
	client, closeFn := newTestClientServer(t)
	defer closeFn()

	handle, err := client.Open("greeting")
	require.NoError(t, err)
	require.NotZero(t, handle)

	buf := make([]byte, 5)
	err = client.Read(handle, []kernel.RWRange{{Addr: 0, Buf: buf}})
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf))

	require.NoError(t, client.CloseHandle(handle))
}

func TestClient_ReadNestedLeaf(t *testing.T) {
	client, closeFn := newTestClientServer(t)
	defer closeFn()

	handle, err := client.Open("dir/nested")
	require.NoError(t, err)

	buf := make([]byte, 6)
	err = client.Read(handle, []kernel.RWRange{{Addr: 0, Buf: buf}})
	require.NoError(t, err)
	require.Equal(t, "nested", string(buf))
}

func TestClient_ReadPastEndFillsAvailablePrefix(t *testing.T) {
	client, closeFn := newTestClientServer(t)
	defer closeFn()

	handle, err := client.Open("greeting")
	require.NoError(t, err)

	buf := make([]byte, 10)
	err = client.Read(handle, []kernel.RWRange{{Addr: 0, Buf: buf}})
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:5]))
}

func TestClient_OpenMissingPathReturnsNotFound(t *testing.T) {
	client, closeFn := newTestClientServer(t)
	defer closeFn()

	_, err := client.Open("missing")
	require.Error(t, err)
	kerr, ok := err.(*kernel.Error)
	require.True(t, ok)
	require.Equal(t, kernel.KindNotFound, kerr.Kind)
}
